// Package metrics records counters and latencies for gate outcomes.
package metrics

import "time"

// Metric names shared by the recorders.
const (
	PaymentVerifications = "payment_verification"
	VerifyLatency        = "verify"
	GateRequests         = "gate_request"
	HandlerLatency       = "handler"
	TierChecks           = "tier_check"
	BalanceLookups       = "balance_lookup"
	BalanceLatency       = "balance"
	RateLimited          = "rate_limited"
	WebhookDeliveries    = "webhook_delivery"
	WebhookLatency       = "webhook_post"
)

// Label keys understood by the recorders.
const (
	LabelChain   = "chain"
	LabelOutcome = "outcome"
)

type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}
