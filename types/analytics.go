package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// AnalyticsEvent is one gated request outcome.
type AnalyticsEvent struct {
	ID              string           `json:"id"`
	Timestamp       time.Time        `json:"timestamp"`
	Endpoint        string           `json:"endpoint"`
	Method          string           `json:"method"`
	Status          int              `json:"status"`
	PaymentRequired bool             `json:"paymentRequired"`
	PaymentProvided bool             `json:"paymentProvided"`
	PaymentValid    bool             `json:"paymentValid"`
	Amount          *decimal.Decimal `json:"amount,omitempty"`
	Chain           Chain            `json:"chain,omitempty"`
	Wallet          string           `json:"walletAddress,omitempty"`
	ResponseTimeMs  int64            `json:"responseTime"`
	UserAgent       string           `json:"userAgent,omitempty"`
	Error           string           `json:"error,omitempty"`
}

// Successful reports whether the request completed with a 2xx/3xx status.
func (e *AnalyticsEvent) Successful() bool {
	return e.Status >= 200 && e.Status < 400
}

// AnalyticsFilter selects events; every set field is combined with AND.
type AnalyticsFilter struct {
	StartDate *time.Time       `json:"startDate,omitempty"`
	EndDate   *time.Time       `json:"endDate,omitempty"`
	Endpoint  string           `json:"endpoint,omitempty"`
	Status    int              `json:"status,omitempty"`
	MinAmount *decimal.Decimal `json:"minAmount,omitempty"`
	MaxAmount *decimal.Decimal `json:"maxAmount,omitempty"`
	Wallet    string           `json:"walletAddress,omitempty"`
	Limit     int              `json:"limit,omitempty"`
}

// EndpointMetrics is the per-endpoint breakdown.
type EndpointMetrics struct {
	Endpoint          string          `json:"endpoint"`
	Calls             int             `json:"calls"`
	Successful        int             `json:"successful"`
	Failed            int             `json:"failed"`
	Revenue           decimal.Decimal `json:"revenue"`
	AvgResponseTimeMs float64         `json:"avgResponseTime"`
}

// AnalyticsMetrics is derived from the filtered event set.
type AnalyticsMetrics struct {
	TotalRequests      int               `json:"totalRequests"`
	SuccessfulRequests int               `json:"successfulRequests"`
	FailedRequests     int               `json:"failedRequests"`
	PaymentsRequired   int               `json:"paymentRequired"`
	PaymentsProvided   int               `json:"paymentProvided"`
	PaymentsValid      int               `json:"paymentValid"`
	TotalRevenue       decimal.Decimal   `json:"totalRevenue"`
	AvgResponseTimeMs  float64           `json:"avgResponseTime"`
	UniqueWallets      int               `json:"uniqueWallets"`
	Endpoints          []EndpointMetrics `json:"endpoints"`
	RecentEvents       []AnalyticsEvent  `json:"recentEvents"`
}
