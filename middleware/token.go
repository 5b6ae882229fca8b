package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/vitwit/payless/metrics"
	"github.com/vitwit/payless/tiers"
	"github.com/vitwit/payless/types"
)

// TokenGate admits wallets by the gating-token tier they hold and meters them
// against the hourly limit of that tier.
type TokenGate struct {
	base
	tiers   *tiers.Service
	limiter *tiers.RateLimiter
}

// TierOption configures one gated route.
type TierOption func(*tierRoute)

type tierRoute struct {
	minimum   types.Tier
	allowFree bool
}

// MinimumTier sets the lowest tier admitted. The default is basic.
func MinimumTier(t types.Tier) TierOption {
	return func(r *tierRoute) {
		r.minimum = t
	}
}

// AllowFree admits any wallet within its rate window, skipping the tier check.
func AllowFree() TierOption {
	return func(r *tierRoute) {
		r.allowFree = true
	}
}

func NewTokenGate(svc *tiers.Service, limiter *tiers.RateLimiter, opts ...Option) *TokenGate {
	return &TokenGate{
		base:    newBase("token", opts),
		tiers:   svc,
		limiter: limiter,
	}
}

// Wrap gates next by the wallet in X-Wallet-Address.
func (g *TokenGate) Wrap(next http.Handler, opts ...TierOption) http.Handler {
	route := tierRoute{minimum: types.TierBasic}
	for _, opt := range opts {
		opt(&route)
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.serve(w, r, func(w *statusRecorder, ev *types.AnalyticsEvent) {
			g.handle(w, r, ev, next, route)
		})
	})
}

func (g *TokenGate) Basic(next http.Handler) http.Handler {
	return g.Wrap(next, MinimumTier(types.TierBasic))
}

func (g *TokenGate) Pro(next http.Handler) http.Handler {
	return g.Wrap(next, MinimumTier(types.TierPro))
}

func (g *TokenGate) Enterprise(next http.Handler) http.Handler {
	return g.Wrap(next, MinimumTier(types.TierEnterprise))
}

// Free admits every identified wallet within its rate limit.
func (g *TokenGate) Free(next http.Handler) http.Handler {
	return g.Wrap(next, MinimumTier(types.TierNone), AllowFree())
}

type rateLimitInfo struct {
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
	ResetAt   int64  `json:"resetAt"`
	ResetIn   string `json:"resetIn"`
}

type rateLimitBody struct {
	types.ErrorBody
	RateLimit rateLimitInfo `json:"rateLimit"`
	Upgrade   string        `json:"upgrade"`
}

type tokenInfo struct {
	Symbol  string `json:"symbol"`
	Message string `json:"message"`
	Website string `json:"website,omitempty"`
}

type insufficientBody struct {
	types.ErrorBody
	CurrentTier  types.Tier      `json:"currentTier"`
	RequiredTier types.Tier      `json:"requiredTier"`
	Balance      decimal.Decimal `json:"balance"`
	TokensNeeded decimal.Decimal `json:"tokensNeeded"`
	TokenInfo    tokenInfo       `json:"tokenInfo"`
}

func (g *TokenGate) handle(w *statusRecorder, r *http.Request, ev *types.AnalyticsEvent, next http.Handler, route tierRoute) {
	wallet := strings.TrimSpace(r.Header.Get(types.HeaderWalletAddress))
	if wallet == "" {
		ev.Error = "wallet address required"
		WriteError(w, http.StatusUnauthorized, types.CodeWalletRequired,
			"X-Wallet-Address header is required for token-gated access", "")
		return
	}
	ev.Wallet = wallet
	ev.Chain = g.tiers.Config().Chain

	balance := g.tiers.GetBalance(r.Context(), wallet)
	tier := g.tiers.DetermineTier(balance)
	limit := g.tiers.RateLimit(tier)

	decision, err := g.limiter.Allow(r.Context(), g.tiers.NormalizeWallet(wallet), limit)
	if err != nil {
		ev.Error = err.Error()
		g.log.Error("rate limiter unavailable", map[string]any{"wallet": wallet, "error": err})
		WriteError(w, http.StatusInternalServerError, types.CodeInternalError, "Token verification failed", "")
		return
	}
	setRateHeaders(w.Header(), decision)

	if !decision.Allowed {
		ev.Error = "rate limit exceeded"
		g.metrics.IncCounter(metrics.RateLimited, map[string]string{metrics.LabelChain: string(ev.Chain), metrics.LabelOutcome: string(tier)})
		g.reject429(w, decision, tier)
		return
	}

	if route.allowFree {
		next.ServeHTTP(w, r)
		return
	}

	v := g.tiers.Evaluate(balance, route.minimum)
	if !v.Valid {
		ev.Error = "insufficient token holdings"
		cfg := g.tiers.Config()
		WriteJSON(w, http.StatusPaymentRequired, insufficientBody{
			ErrorBody: types.ErrorBody{
				Error:   http.StatusText(http.StatusPaymentRequired),
				Message: v.Message,
				Code:    types.CodeInsufficientTokenHoldings,
			},
			CurrentTier:  v.CurrentTier,
			RequiredTier: v.RequiredTier,
			Balance:      v.Balance,
			TokensNeeded: v.TokensNeeded,
			TokenInfo: tokenInfo{
				Symbol:  cfg.Symbol,
				Message: "Hold tokens to access this endpoint",
				Website: cfg.Website,
			},
		})
		return
	}

	w.Header().Set(types.HeaderTokenTier, string(v.CurrentTier))
	next.ServeHTTP(w, r)
}

func (g *TokenGate) reject429(w http.ResponseWriter, d types.RateDecision, tier types.Tier) {
	now := g.now()
	retry := d.RetryAfter(now)
	w.Header().Set(types.HeaderRetryAfter, strconv.Itoa(retry))

	upgrade := "Upgrade to a higher tier for more requests"
	if tier == types.TierNone {
		upgrade = fmt.Sprintf("Hold %s tokens to increase your rate limit", g.tiers.Config().Symbol)
	}
	WriteJSON(w, http.StatusTooManyRequests, rateLimitBody{
		ErrorBody: types.ErrorBody{
			Error:   "Rate Limit Exceeded",
			Message: fmt.Sprintf("You have exceeded your rate limit of %d requests per hour", d.Limit),
			Code:    types.CodeRateLimitExceeded,
		},
		RateLimit: rateLimitInfo{
			Limit:     d.Limit,
			Remaining: 0,
			ResetAt:   d.ResetAt.UnixMilli(),
			ResetIn:   fmt.Sprintf("%d minutes", int(math.Ceil(d.ResetAt.Sub(now).Minutes()))),
		},
		Upgrade: upgrade,
	})
}

func setRateHeaders(h http.Header, d types.RateDecision) {
	h.Set(types.HeaderRateLimit, strconv.Itoa(d.Limit))
	h.Set(types.HeaderRateRemaining, strconv.Itoa(d.Remaining))
	h.Set(types.HeaderRateReset, strconv.FormatInt(d.ResetAt.Unix(), 10))
}
