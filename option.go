package payless

import (
	"net/http"
	"time"

	"github.com/vitwit/payless/clients"
	"github.com/vitwit/payless/logger"
	"github.com/vitwit/payless/metrics"
	"github.com/vitwit/payless/storage"
	"github.com/vitwit/payless/tiers"
	"github.com/vitwit/payless/types"
	"github.com/vitwit/payless/webhooks"
)

type Option func(*options)

type options struct {
	log        logger.Logger
	metrics    metrics.Recorder
	now        func() time.Time
	balance    clients.BalanceClient
	httpClient *http.Client
	nonces     storage.Store[time.Time]
	windows    storage.Store[tiers.Window]
	subs       storage.Store[types.WebhookSubscription]
	deliveries storage.Store[types.WebhookDelivery]
	tasks      storage.Store[webhooks.Task]
}

func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		o.log = l
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(o *options) {
		o.metrics = r
	}
}

// WithClock overrides the time source of every component.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithBalanceClient replaces the RPC client used for tier lookups.
func WithBalanceClient(c clients.BalanceClient) Option {
	return func(o *options) {
		o.balance = c
	}
}

// WithWebhookHTTPClient sets the client used to POST webhook deliveries.
func WithWebhookHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

// WithNonceStore backs the replay ledger with s.
func WithNonceStore(s storage.Store[time.Time]) Option {
	return func(o *options) {
		o.nonces = s
	}
}

// WithRateStore backs the per-wallet rate windows with s.
func WithRateStore(s storage.Store[tiers.Window]) Option {
	return func(o *options) {
		o.windows = s
	}
}

// WithWebhookStores backs subscriptions, deliveries and retry tasks.
func WithWebhookStores(subs storage.Store[types.WebhookSubscription], deliveries storage.Store[types.WebhookDelivery], tasks storage.Store[webhooks.Task]) Option {
	return func(o *options) {
		o.subs, o.deliveries, o.tasks = subs, deliveries, tasks
	}
}
