// Package payless wires the payment gate, token gate, webhook dispatcher and
// analytics recorder from a single Config.
package payless

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/vitwit/payless/analytics"
	"github.com/vitwit/payless/api"
	"github.com/vitwit/payless/clients"
	"github.com/vitwit/payless/logger"
	"github.com/vitwit/payless/metrics"
	"github.com/vitwit/payless/middleware"
	"github.com/vitwit/payless/storage"
	"github.com/vitwit/payless/tiers"
	"github.com/vitwit/payless/types"
	"github.com/vitwit/payless/utils"
	"github.com/vitwit/payless/verification"
	"github.com/vitwit/payless/webhooks"
)

// Payless owns every service built from a Config.
type Payless struct {
	cfg *types.Config

	verifier  *verification.Service
	ledger    *verification.NonceLedger
	tiers     *tiers.Service
	limiter   *tiers.RateLimiter
	webhooks  *webhooks.Dispatcher
	analytics *analytics.Recorder
	payments  *middleware.PaymentGate
	tokens    *middleware.TokenGate
	balance   clients.BalanceClient

	log     logger.Logger
	metrics metrics.Recorder
	now     func() time.Time

	startOnce sync.Once
	closeOnce sync.Once
	stop      chan struct{}
	swept     chan struct{}
}

// New validates cfg and builds the services. A nil cfg uses DefaultConfig.
func New(ctx context.Context, cfg *types.Config, opts ...Option) (*Payless, error) {
	if cfg == nil {
		cfg = types.DefaultConfig()
	}
	cfg.ApplyDefaults()
	if err := utils.ValidateConfig(cfg); err != nil {
		return nil, err
	}

	o := options{
		log:     logger.NoopLogger{},
		metrics: metrics.NoopRecorder{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.nonces == nil {
		o.nonces = storage.NewMemoryStore[time.Time]()
	}
	if o.windows == nil {
		o.windows = storage.NewMemoryStore[tiers.Window]()
	}

	p := &Payless{
		cfg:     cfg,
		log:     o.log,
		metrics: o.metrics,
		now:     o.now,
		stop:    make(chan struct{}),
		swept:   make(chan struct{}),
	}

	registry, err := verification.RegistryFromConfig(cfg.Chains,
		verification.WithFreshness(cfg.FreshnessWindow, cfg.ClockSkew),
		verification.WithClock(o.now),
	)
	if err != nil {
		return nil, err
	}
	p.ledger = verification.NewNonceLedger(o.nonces, cfg.FreshnessWindow+cfg.ClockSkew, o.now)
	p.verifier = verification.NewService(registry,
		verification.WithLedger(p.ledger),
		verification.WithLogger(logger.Named(o.log, "verification")),
		verification.WithMetrics(o.metrics),
	)

	p.balance = o.balance
	if p.balance == nil {
		if p.balance, err = clients.New(ctx, cfg.TokenGate.Chain, tokenRPC(cfg)); err != nil {
			return nil, err
		}
	}
	if p.tiers, err = tiers.NewService(p.balance, cfg.TokenGate,
		tiers.WithTimeout(cfg.TokenGate.RPCTimeout),
		tiers.WithLogger(logger.Named(o.log, "tiers")),
		tiers.WithMetrics(o.metrics),
	); err != nil {
		p.balance.Close()
		return nil, err
	}
	p.limiter = tiers.NewRateLimiter(o.windows,
		tiers.WithWindow(cfg.TokenGate.RateWindow),
		tiers.WithClock(o.now),
	)

	hookOpts := []webhooks.Option{
		webhooks.WithTimeout(cfg.Webhooks.Timeout),
		webhooks.WithMaxAttempts(cfg.Webhooks.MaxAttempts),
		webhooks.WithBackoff(cfg.Webhooks.BaseBackoff),
		webhooks.WithPollInterval(cfg.Webhooks.PollInterval),
		webhooks.WithClock(o.now),
		webhooks.WithLogger(logger.Named(o.log, "webhooks")),
		webhooks.WithMetrics(o.metrics),
	}
	if o.httpClient != nil {
		hookOpts = append(hookOpts, webhooks.WithHTTPClient(o.httpClient))
	}
	if o.subs != nil && o.deliveries != nil && o.tasks != nil {
		hookOpts = append(hookOpts, webhooks.WithStores(o.subs, o.deliveries, o.tasks))
	}
	p.webhooks = webhooks.NewDispatcher(hookOpts...)

	p.analytics = analytics.NewRecorder(cfg.AnalyticsCapacity, analytics.WithClock(o.now))

	gateOpts := []middleware.Option{
		middleware.WithAnalytics(p.analytics),
		middleware.WithLogger(logger.Named(o.log, "gate")),
		middleware.WithMetrics(o.metrics),
		middleware.WithClock(o.now),
	}
	if p.payments, err = middleware.NewPaymentGate(cfg, p.verifier,
		middleware.WithPaymentEvents(p.webhooks),
		middleware.WithGateOptions(gateOpts...),
	); err != nil {
		p.balance.Close()
		return nil, err
	}
	p.tokens = middleware.NewTokenGate(p.tiers, p.limiter, gateOpts...)

	return p, nil
}

// tokenRPC picks the token gate RPC, falling back to the endpoint of the
// matching payment chain.
func tokenRPC(cfg *types.Config) string {
	if cfg.TokenGate.RPCURL != "" {
		return cfg.TokenGate.RPCURL
	}
	if c, ok := cfg.Chain(cfg.TokenGate.Chain); ok {
		return c.RPCURL
	}
	return ""
}

// Start launches webhook retries and the nonce ledger sweeper.
func (p *Payless) Start() {
	p.startOnce.Do(func() {
		p.webhooks.Start()
		go p.sweep()
	})
}

func (p *Payless) sweep() {
	defer close(p.swept)

	ticker := time.NewTicker(p.cfg.FreshnessWindow)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			n, err := p.ledger.Sweep(context.Background())
			if err != nil {
				p.log.Warn("nonce sweep failed", map[string]any{"error": err})
				continue
			}
			if n > 0 {
				p.log.Debug("expired nonces removed", map[string]any{"count": n})
			}
		}
	}
}

// Close stops background work, waiting for in-flight webhook attempts until
// ctx is done, and releases the balance client.
func (p *Payless) Close(ctx context.Context) error {
	var err error
	p.closeOnce.Do(func() {
		started := true
		p.startOnce.Do(func() { started = false })
		close(p.stop)
		if started {
			<-p.swept
		}
		err = p.webhooks.Close(ctx)
		p.balance.Close()
	})
	return err
}

// Verify checks a proof against the price of path.
func (p *Payless) Verify(ctx context.Context, proof *types.PaymentProof, path string) (types.VerificationResult, error) {
	price, ok := p.cfg.Pricing[path]
	if !ok {
		return types.VerificationResult{}, types.NewError(types.ErrNotFound, "no price configured for %s", path)
	}
	amount, err := utils.ValidateAmount(price)
	if err != nil {
		return types.VerificationResult{}, err
	}
	return p.verifier.Verify(ctx, proof, *amount)
}

// Supported lists the payment requirements of every configured chain.
func (p *Payless) Supported() []types.ChainPaymentInfo {
	return p.verifier.PaymentInfo()
}

func (p *Payless) IsChainSupported(chain types.Chain) bool {
	return p.verifier.IsChainSupported(chain)
}

// AdminServer returns the admin API over this instance's services.
func (p *Payless) AdminServer(version string) *api.Server {
	return &api.Server{
		Config:    p.cfg,
		Webhooks:  p.webhooks,
		Analytics: p.analytics,
		Tiers:     p.tiers,
		Version:   version,
		Log:       logger.Named(p.log, "api"),
		Now:       p.now,
	}
}

// Mount registers the admin API and gates every priced path of the
// configuration with handlers from priced. Paths without a handler are
// skipped.
func (p *Payless) Mount(mux *http.ServeMux, version string, priced map[string]http.Handler) {
	p.AdminServer(version).Register(mux)
	for path := range p.cfg.Pricing {
		if h, ok := priced[path]; ok {
			mux.Handle(path, p.payments.Wrap(h))
		}
	}
}

func (p *Payless) Config() *types.Config { return p.cfg }
func (p *Payless) Verifier() *verification.Service { return p.verifier }
func (p *Payless) Tiers() *tiers.Service { return p.tiers }
func (p *Payless) RateLimiter() *tiers.RateLimiter { return p.limiter }
func (p *Payless) Webhooks() *webhooks.Dispatcher { return p.webhooks }
func (p *Payless) Analytics() *analytics.Recorder { return p.analytics }
func (p *Payless) PaymentGate() *middleware.PaymentGate { return p.payments }
func (p *Payless) TokenGate() *middleware.TokenGate { return p.tokens }

// IsNotFound reports whether err is a payless NOT_FOUND error.
func IsNotFound(err error) bool {
	var perr *types.PaylessError
	return errors.As(err, &perr) && perr.Code == types.ErrNotFound
}
