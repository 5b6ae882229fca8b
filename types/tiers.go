package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tier is an access class derived from a wallet's held-token balance.
type Tier string

const (
	TierNone       Tier = "none"
	TierBasic      Tier = "basic"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

// Unlimited is the rate limit value that disables counting.
const Unlimited = -1

// TierOrder lists tiers from lowest to highest.
var TierOrder = []Tier{TierNone, TierBasic, TierPro, TierEnterprise}

// Rank returns the position of t in TierOrder, or -1 for unknown tiers.
func (t Tier) Rank() int {
	for i, o := range TierOrder {
		if o == t {
			return i
		}
	}
	return -1
}

// AtLeast reports whether t is the same as or above required.
func (t Tier) AtLeast(required Tier) bool {
	return t.Rank() >= required.Rank()
}

func (t Tier) String() string {
	return string(t)
}

// ParseTier returns the tier named by s.
func ParseTier(s string) (Tier, bool) {
	t := Tier(s)
	return t, t.Rank() >= 0
}

// TierRecord is the per-request view of a wallet's tier and rate window.
type TierRecord struct {
	Wallet        string          `json:"wallet"`
	Balance       decimal.Decimal `json:"balance"`
	Tier          Tier            `json:"tier"`
	RateLimit     int             `json:"rateLimit"`
	WindowCount   int             `json:"windowCount"`
	WindowResetAt time.Time       `json:"windowResetAt"`
}

// NextTier describes the next tier a wallet could reach.
type NextTier struct {
	Tier         Tier            `json:"tier"`
	TokensNeeded decimal.Decimal `json:"tokensNeeded"`
}

// TierCheck is the full tier report for a wallet.
type TierCheck struct {
	Wallet     string          `json:"wallet"`
	Balance    decimal.Decimal `json:"balance"`
	Tier       Tier            `json:"tier"`
	Percentage decimal.Decimal `json:"percentage"`
	RateLimit  int             `json:"rateLimit"`
	Benefits   []string        `json:"benefits"`
	NextTier   *NextTier       `json:"nextTier,omitempty"`
}

// TierVerification is the result of a minimum-tier check.
type TierVerification struct {
	Valid        bool            `json:"valid"`
	CurrentTier  Tier            `json:"currentTier"`
	RequiredTier Tier            `json:"requiredTier"`
	Balance      decimal.Decimal `json:"balance"`
	TokensNeeded decimal.Decimal `json:"tokensNeeded"`
	Message      string          `json:"message,omitempty"`
}

// RateDecision is the outcome of one rate-limiter check.
type RateDecision struct {
	Allowed   bool      `json:"allowed"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"resetAt"`
}

// RetryAfter returns the whole seconds until the window resets, at least 1.
func (d RateDecision) RetryAfter(now time.Time) int {
	secs := int(d.ResetAt.Sub(now).Seconds() + 0.999)
	if secs < 1 {
		secs = 1
	}
	return secs
}
