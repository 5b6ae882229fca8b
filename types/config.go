package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Defaults matching the public x402 facilitator and the $PAYLESS token.
const (
	DefaultFacilitatorURL    = "https://facilitator.x402.org"
	DefaultCurrency          = "USDC/USDT"
	DefaultFreshnessWindow   = 5 * time.Minute
	DefaultClockSkew         = time.Minute
	DefaultRateWindow        = time.Hour
	DefaultAnalyticsCapacity = 10000
	DefaultRPCTimeout        = 5 * time.Second
	DefaultWebhookTimeout    = 10 * time.Second
	DefaultWebhookBackoff    = time.Second
	DefaultPollInterval      = 250 * time.Millisecond
)

// TierLevel configures one step of the tier ladder.
type TierLevel struct {
	Tier      Tier            `json:"tier" validate:"required,oneof=none basic pro enterprise"`
	Threshold decimal.Decimal `json:"threshold"`
	RateLimit int             `json:"rateLimit" validate:"gte=-1"`
	Benefits  []string        `json:"benefits,omitempty"`
}

// TokenGateConfig configures the held-token tier system.
type TokenGateConfig struct {
	Symbol      string          `json:"symbol" validate:"required"`
	Mint        string          `json:"mint" validate:"required"`
	Chain       Chain           `json:"chain" validate:"required,oneof=solana bsc ethereum polygon"`
	RPCURL      string          `json:"rpcUrl,omitempty" validate:"omitempty,url"`
	Decimals    int32           `json:"decimals" validate:"gte=0,lte=36"`
	TotalSupply decimal.Decimal `json:"totalSupply"`
	Levels      []TierLevel     `json:"levels" validate:"required,min=1,dive"`
	RateWindow  time.Duration   `json:"rateWindow,omitempty"`
	RPCTimeout  time.Duration   `json:"rpcTimeout,omitempty"`
	Website     string          `json:"website,omitempty"`
}

// WebhookConfig configures webhook delivery.
type WebhookConfig struct {
	Timeout      time.Duration `json:"timeout,omitempty"`
	MaxAttempts  int           `json:"maxAttempts,omitempty" validate:"gte=0,lte=10"`
	BaseBackoff  time.Duration `json:"baseBackoff,omitempty"`
	PollInterval time.Duration `json:"pollInterval,omitempty"`
}

// Config is the root configuration document.
type Config struct {
	ListenAddr        string            `json:"listenAddr,omitempty"`
	FacilitatorURL    string            `json:"facilitatorUrl" validate:"required,url"`
	Currency          string            `json:"currency" validate:"required"`
	LogLevel          string            `json:"logLevel,omitempty" validate:"omitempty,oneof=debug info warn error"`
	EnableMetrics     bool              `json:"enableMetrics,omitempty"`
	FreshnessWindow   time.Duration     `json:"freshnessWindow,omitempty"`
	ClockSkew         time.Duration     `json:"clockSkew,omitempty"`
	Chains            []ChainConfig     `json:"chains" validate:"required,min=1,dive"`
	Pricing           map[string]string `json:"pricing"`
	FreeEndpoints     []string          `json:"freeEndpoints,omitempty"`
	TokenGate         TokenGateConfig   `json:"tokenGate"`
	Webhooks          WebhookConfig     `json:"webhooks"`
	AnalyticsCapacity int               `json:"analyticsCapacity,omitempty" validate:"gte=0"`
}

// ApplyDefaults fills zero durations and sizes with package defaults.
func (c *Config) ApplyDefaults() {
	if c.FacilitatorURL == "" {
		c.FacilitatorURL = DefaultFacilitatorURL
	}
	if c.Currency == "" {
		c.Currency = DefaultCurrency
	}
	if c.FreshnessWindow <= 0 {
		c.FreshnessWindow = DefaultFreshnessWindow
	}
	if c.ClockSkew <= 0 {
		c.ClockSkew = DefaultClockSkew
	}
	if c.AnalyticsCapacity <= 0 {
		c.AnalyticsCapacity = DefaultAnalyticsCapacity
	}
	if c.TokenGate.RateWindow <= 0 {
		c.TokenGate.RateWindow = DefaultRateWindow
	}
	if c.TokenGate.RPCTimeout <= 0 {
		c.TokenGate.RPCTimeout = DefaultRPCTimeout
	}
	if c.Webhooks.Timeout <= 0 {
		c.Webhooks.Timeout = DefaultWebhookTimeout
	}
	if c.Webhooks.MaxAttempts <= 0 {
		c.Webhooks.MaxAttempts = DefaultMaxAttempts
	}
	if c.Webhooks.BaseBackoff <= 0 {
		c.Webhooks.BaseBackoff = DefaultWebhookBackoff
	}
	if c.Webhooks.PollInterval <= 0 {
		c.Webhooks.PollInterval = DefaultPollInterval
	}
}

// Chain returns the configuration for chain c.
func (c *Config) Chain(chain Chain) (*ChainConfig, bool) {
	for i := range c.Chains {
		if c.Chains[i].Chain == chain {
			return &c.Chains[i], true
		}
	}
	return nil, false
}

// DefaultConfig returns the production chain, pricing and tier tables.
// Recipient wallets are left empty and must be supplied by the operator.
func DefaultConfig() *Config {
	cfg := &Config{
		ListenAddr:     ":8080",
		FacilitatorURL: DefaultFacilitatorURL,
		Currency:       DefaultCurrency,
		LogLevel:       "info",
		Chains: []ChainConfig{
			{
				Chain:   ChainSolana,
				Name:    "Solana Mainnet",
				Network: "mainnet-beta",
				RPCURL:  "https://api.mainnet-beta.solana.com",
				Tokens: []TokenInfo{
					{Symbol: "USDC", Name: "USD Coin", Address: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", Decimals: 6},
					{Symbol: "USDT", Name: "Tether USD", Address: "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB", Decimals: 6},
				},
			},
			{
				Chain:   ChainBSC,
				Name:    "BNB Smart Chain",
				Network: "56",
				RPCURL:  "https://bsc-dataseed1.binance.org",
				Tokens: []TokenInfo{
					{Symbol: "USDT", Name: "Tether USD", Address: "0x55d398326f99059fF775485246999027B3197955", Decimals: 18},
					{Symbol: "BUSD", Name: "Binance USD", Address: "0xe9e7CEA3DedcA5984780Bafc599bD69ADd087D56", Decimals: 18},
					{Symbol: "USDC", Name: "USD Coin", Address: "0x8AC76a51cc950d9822D68b83fE1Ad97B32Cd580d", Decimals: 18},
				},
			},
			{
				Chain:   ChainEthereum,
				Name:    "Ethereum Mainnet",
				Network: "1",
				RPCURL:  "https://eth.llamarpc.com",
				Tokens: []TokenInfo{
					{Symbol: "USDC", Name: "USD Coin", Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Decimals: 6},
					{Symbol: "USDT", Name: "Tether USD", Address: "0xdAC17F958D2ee523a2206206994597C13D831ec7", Decimals: 6},
				},
			},
			{
				Chain:   ChainPolygon,
				Name:    "Polygon Mainnet",
				Network: "137",
				RPCURL:  "https://polygon-rpc.com",
				Tokens: []TokenInfo{
					{Symbol: "USDC", Name: "USD Coin", Address: "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174", Decimals: 6},
					{Symbol: "USDT", Name: "Tether USD", Address: "0xc2132D05D31c914a87C6611C10748AEb04B58e8F", Decimals: 6},
				},
			},
		},
		Pricing: map[string]string{
			"/api/ai/chat":         "0.05",
			"/api/ai/image":        "0.10",
			"/api/ai/tts":          "0.03",
			"/api/ai/translate":    "0.02",
			"/api/data/weather":    "0.01",
			"/api/data/stock":      "0.02",
			"/api/data/crypto":     "0.01",
			"/api/data/news":       "0.02",
			"/api/tools/qrcode":    "0.01",
			"/api/premium/content": "1.00",
		},
		FreeEndpoints: []string{"/api/health", "/api/info"},
		TokenGate: TokenGateConfig{
			Symbol:      "$PAYLESS",
			Mint:        "FDgSegoxrdpsct21YVeAbC9dWeTwTxA8Cceeh8BPpump",
			Chain:       ChainSolana,
			RPCURL:      "https://api.mainnet-beta.solana.com",
			Decimals:    6,
			TotalSupply: decimal.NewFromInt(1_000_000_000),
			Website:     "https://payless.network",
			Levels: []TierLevel{
				{
					Tier:      TierNone,
					RateLimit: 10,
					Benefits:  []string{"Limited API access (10 requests/hour)", "Basic endpoints only"},
				},
				{
					Tier:      TierBasic,
					Threshold: decimal.NewFromInt(100_000),
					RateLimit: 100,
					Benefits:  []string{"100 requests/hour", "All AI APIs", "Data APIs", "Basic support"},
				},
				{
					Tier:      TierPro,
					Threshold: decimal.NewFromInt(500_000),
					RateLimit: 500,
					Benefits:  []string{"500 requests/hour", "All Basic tier features", "Premium tools", "Priority support"},
				},
				{
					Tier:      TierEnterprise,
					Threshold: decimal.NewFromInt(1_000_000),
					RateLimit: Unlimited,
					Benefits:  []string{"Unlimited requests", "All Pro tier features", "Dedicated support"},
				},
			},
		},
	}
	cfg.ApplyDefaults()
	return cfg
}
