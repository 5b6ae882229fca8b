// Package tiers maps held-token balances to access tiers and enforces the
// per-wallet hourly request window of each tier.
package tiers

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vitwit/payless/clients"
	"github.com/vitwit/payless/logger"
	"github.com/vitwit/payless/metrics"
	"github.com/vitwit/payless/types"
	"github.com/vitwit/payless/utils"
	"golang.org/x/sync/singleflight"
)

// Service resolves wallets to tiers. Balances are read fresh on every call;
// concurrent lookups for the same wallet share one RPC round trip.
type Service struct {
	client  clients.BalanceClient
	cfg     types.TokenGateConfig
	levels  []types.TierLevel
	timeout time.Duration
	group   singleflight.Group
	log     logger.Logger
	metrics metrics.Recorder
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		s.log = l
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(s *Service) {
		s.metrics = r
	}
}

// WithTimeout bounds each balance lookup.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewService builds a tier service over client. Levels are ordered by
// threshold; a config without a level for TierNone gets one with no benefits.
func NewService(client clients.BalanceClient, cfg types.TokenGateConfig, opts ...Option) (*Service, error) {
	levels := append([]types.TierLevel(nil), cfg.Levels...)
	sort.SliceStable(levels, func(i, j int) bool {
		return levels[i].Threshold.LessThan(levels[j].Threshold)
	})
	if len(levels) == 0 || levels[0].Tier != types.TierNone {
		levels = append([]types.TierLevel{{Tier: types.TierNone}}, levels...)
	}
	for i := 1; i < len(levels); i++ {
		if !levels[i].Threshold.GreaterThan(levels[i-1].Threshold) {
			return nil, types.NewError(types.ErrInvalidConfig, "tier thresholds must be strictly increasing at %s", levels[i].Tier)
		}
		if levels[i].Tier.Rank() <= levels[i-1].Tier.Rank() {
			return nil, types.NewError(types.ErrInvalidConfig, "tier %s is out of order", levels[i].Tier)
		}
	}

	s := &Service{
		client:  client,
		cfg:     cfg,
		levels:  levels,
		timeout: types.DefaultRPCTimeout,
		log:     logger.NoopLogger{},
		metrics: metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Config returns the token gate configuration.
func (s *Service) Config() types.TokenGateConfig {
	return s.cfg
}

// NormalizeWallet returns the key under which a wallet's state is stored.
func (s *Service) NormalizeWallet(wallet string) string {
	wallet = strings.TrimSpace(wallet)
	if s.cfg.Chain.IsEVM() {
		return strings.ToLower(wallet)
	}
	return wallet
}

// GetBalance returns the wallet's gating-token balance. Any lookup failure
// yields zero so the wallet falls to the lowest tier.
func (s *Service) GetBalance(ctx context.Context, wallet string) decimal.Decimal {
	key := s.NormalizeWallet(wallet)
	start := time.Now()

	v, err, _ := s.group.Do(key, func() (any, error) {
		// Detached from the first caller's context so its cancellation does
		// not fail the callers sharing this lookup.
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		return s.client.TokenBalance(lookupCtx, wallet, s.cfg.Mint)
	})

	labels := map[string]string{metrics.LabelChain: string(s.cfg.Chain), metrics.LabelOutcome: "ok"}
	if err != nil {
		labels[metrics.LabelOutcome] = "error"
	}
	s.metrics.IncCounter(metrics.BalanceLookups, labels)
	s.metrics.ObserveLatency(metrics.BalanceLatency, time.Since(start), labels)

	if err != nil {
		s.log.Warn("balance lookup failed, treating as zero", map[string]any{
			"wallet": wallet,
			"chain":  s.cfg.Chain,
			"error":  err,
		})
		return decimal.Zero
	}
	bal := v.(decimal.Decimal)
	if bal.IsNegative() {
		return decimal.Zero
	}
	return bal
}

// DetermineTier returns the highest tier whose threshold balance meets.
func (s *Service) DetermineTier(balance decimal.Decimal) types.Tier {
	tier := types.TierNone
	for _, l := range s.levels {
		if balance.GreaterThanOrEqual(l.Threshold) {
			tier = l.Tier
		}
	}
	return tier
}

// Level returns the configuration of tier. Unconfigured tiers above the
// ladder report ok=false.
func (s *Service) Level(tier types.Tier) (types.TierLevel, bool) {
	for _, l := range s.levels {
		if l.Tier == tier {
			return l, true
		}
	}
	return types.TierLevel{Tier: tier}, false
}

// RateLimit returns the hourly request ceiling of tier.
func (s *Service) RateLimit(tier types.Tier) int {
	l, _ := s.Level(tier)
	return l.RateLimit
}

// Threshold returns the balance required for tier.
func (s *Service) Threshold(tier types.Tier) decimal.Decimal {
	l, _ := s.Level(tier)
	return l.Threshold
}

// Evaluate checks an already fetched balance against required.
func (s *Service) Evaluate(balance decimal.Decimal, required types.Tier) types.TierVerification {
	current := s.DetermineTier(balance)
	v := types.TierVerification{
		Valid:        current.AtLeast(required),
		CurrentTier:  current,
		RequiredTier: required,
		Balance:      balance,
		TokensNeeded: decimal.Zero,
	}

	labels := map[string]string{metrics.LabelChain: string(s.cfg.Chain), metrics.LabelOutcome: "pass"}
	if !v.Valid {
		labels[metrics.LabelOutcome] = "insufficient"
		v.TokensNeeded = decimal.Max(s.Threshold(required).Sub(balance), decimal.Zero)
		v.Message = fmt.Sprintf("You need %s more %s tokens to access %s tier",
			utils.FormatTokens(v.TokensNeeded), s.cfg.Symbol, required)
	}
	s.metrics.IncCounter(metrics.TierChecks, labels)
	return v
}

// VerifyMinimumTier looks up wallet and reports whether it holds enough for
// required.
func (s *Service) VerifyMinimumTier(ctx context.Context, wallet string, required types.Tier) types.TierVerification {
	return s.Evaluate(s.GetBalance(ctx, wallet), required)
}

// CheckWalletTier returns the full tier report for wallet.
func (s *Service) CheckWalletTier(ctx context.Context, wallet string) types.TierCheck {
	return s.Report(wallet, s.GetBalance(ctx, wallet))
}

// Report builds a TierCheck from an already fetched balance.
func (s *Service) Report(wallet string, balance decimal.Decimal) types.TierCheck {
	tier := s.DetermineTier(balance)
	level, _ := s.Level(tier)

	check := types.TierCheck{
		Wallet:     wallet,
		Balance:    balance,
		Tier:       tier,
		Percentage: decimal.Zero,
		RateLimit:  level.RateLimit,
		Benefits:   level.Benefits,
	}
	if s.cfg.TotalSupply.IsPositive() {
		check.Percentage = balance.Div(s.cfg.TotalSupply).Mul(decimal.NewFromInt(100)).Round(6)
	}
	for _, l := range s.levels {
		if l.Threshold.GreaterThan(balance) {
			check.NextTier = &types.NextTier{Tier: l.Tier, TokensNeeded: l.Threshold.Sub(balance)}
			break
		}
	}
	return check
}

// Levels returns the tier ladder from lowest to highest.
func (s *Service) Levels() []types.TierLevel {
	return append([]types.TierLevel(nil), s.levels...)
}
