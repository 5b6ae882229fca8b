package tiers

import (
	"context"
	"errors"
	"time"

	"github.com/vitwit/payless/storage"
	"github.com/vitwit/payless/types"
)

// Window is the persisted fixed-window counter of one wallet.
type Window struct {
	Count   int       `json:"count"`
	ResetAt time.Time `json:"resetAt"`
}

// RateLimiter counts requests per wallet in fixed windows. Each check is a
// compare-and-swap on the wallet's key, so concurrent requests from one
// wallet cannot overshoot the limit and unrelated wallets never contend.
type RateLimiter struct {
	store  storage.Store[Window]
	window time.Duration
	now    func() time.Time
}

// LimiterOption configures a RateLimiter.
type LimiterOption func(*RateLimiter)

// WithWindow sets the window length.
func WithWindow(d time.Duration) LimiterOption {
	return func(r *RateLimiter) {
		if d > 0 {
			r.window = d
		}
	}
}

// WithClock overrides the limiter's time source.
func WithClock(now func() time.Time) LimiterOption {
	return func(r *RateLimiter) {
		r.now = now
	}
}

func NewRateLimiter(store storage.Store[Window], opts ...LimiterOption) *RateLimiter {
	r := &RateLimiter{
		store:  store,
		window: types.DefaultRateWindow,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func windowKey(wallet string) string {
	return "rate:" + wallet
}

// Allow consumes one request from wallet's window if limit permits. A limit
// of types.Unlimited allows the request without counting it.
func (r *RateLimiter) Allow(ctx context.Context, wallet string, limit int) (types.RateDecision, error) {
	now := r.now()
	if limit == types.Unlimited {
		return types.RateDecision{Allowed: true, Limit: types.Unlimited, Remaining: types.Unlimited, ResetAt: now.Add(r.window)}, nil
	}

	var decision types.RateDecision
	_, err := storage.Update(ctx, r.store, windowKey(wallet), func(cur Window, exists bool) (Window, error) {
		if !exists || now.After(cur.ResetAt) {
			cur = Window{Count: 0, ResetAt: now.Add(r.window)}
		}
		if cur.Count >= limit {
			decision = types.RateDecision{Allowed: false, Limit: limit, Remaining: 0, ResetAt: cur.ResetAt}
			return cur, nil
		}
		cur.Count++
		decision = types.RateDecision{Allowed: true, Limit: limit, Remaining: limit - cur.Count, ResetAt: cur.ResetAt}
		return cur, nil
	})
	if err != nil {
		return types.RateDecision{}, err
	}
	return decision, nil
}

// Peek reports wallet's current window without consuming a request.
func (r *RateLimiter) Peek(ctx context.Context, wallet string, limit int) (types.RateDecision, error) {
	now := r.now()
	if limit == types.Unlimited {
		return types.RateDecision{Allowed: true, Limit: types.Unlimited, Remaining: types.Unlimited, ResetAt: now.Add(r.window)}, nil
	}

	entry, err := r.store.Get(ctx, windowKey(wallet))
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return types.RateDecision{Allowed: limit > 0, Limit: limit, Remaining: limit, ResetAt: now.Add(r.window)}, nil
	case err != nil:
		return types.RateDecision{}, err
	}

	w := entry.Value
	if now.After(w.ResetAt) {
		return types.RateDecision{Allowed: limit > 0, Limit: limit, Remaining: limit, ResetAt: now.Add(r.window)}, nil
	}
	remaining := limit - w.Count
	if remaining < 0 {
		remaining = 0
	}
	return types.RateDecision{Allowed: remaining > 0, Limit: limit, Remaining: remaining, ResetAt: w.ResetAt}, nil
}

// Reset clears wallet's window.
func (r *RateLimiter) Reset(ctx context.Context, wallet string) error {
	return r.store.Delete(ctx, windowKey(wallet))
}
