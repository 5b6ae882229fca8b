package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/vitwit/payless/logger"
	"github.com/vitwit/payless/metrics"
	"github.com/vitwit/payless/types"
)

// EventSink receives one analytics event per gated request.
type EventSink interface {
	AddEvent(e types.AnalyticsEvent) types.AnalyticsEvent
}

type noopSink struct{}

func (noopSink) AddEvent(e types.AnalyticsEvent) types.AnalyticsEvent { return e }

// Option configures the shared parts of both gates.
type Option func(*base)

func WithAnalytics(s EventSink) Option {
	return func(b *base) {
		if s != nil {
			b.sink = s
		}
	}
}

func WithLogger(l logger.Logger) Option {
	return func(b *base) {
		b.log = l
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(b *base) {
		b.metrics = r
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *base) {
		b.now = now
	}
}

type base struct {
	name    string
	sink    EventSink
	log     logger.Logger
	metrics metrics.Recorder
	now     func() time.Time
}

func newBase(name string, opts []Option) base {
	b := base{
		name:    name,
		sink:    noopSink{},
		log:     logger.NoopLogger{},
		metrics: metrics.NoopRecorder{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

// serve runs fn with a status-capturing writer and records exactly one
// analytics event when it returns or panics. A panic becomes a 500 unless
// the response was already started.
func (b *base) serve(w http.ResponseWriter, r *http.Request, fn func(w *statusRecorder, ev *types.AnalyticsEvent)) {
	start := b.now()
	rec := &statusRecorder{ResponseWriter: w}
	ev := types.AnalyticsEvent{
		Endpoint:  r.URL.Path,
		Method:    r.Method,
		UserAgent: r.UserAgent(),
	}

	defer func() {
		p := recover()
		if p != nil {
			ev.Error = fmt.Sprint(p)
			b.log.Error("gated handler panicked", map[string]any{
				"gate":     b.name,
				"endpoint": ev.Endpoint,
				"panic":    ev.Error,
			})
			if !rec.wroteHeader {
				// The handler did not complete, so the payment is not confirmed.
				rec.Header().Del(types.HeaderPaymentConfirmed)
				rec.Header().Del(types.HeaderPaymentChain)
				WriteError(rec, http.StatusInternalServerError, types.CodeInternalError, "internal server error", "")
			}
		}

		ev.Status = rec.Status()
		if p != nil {
			ev.Status = http.StatusInternalServerError
		}
		elapsed := b.now().Sub(start)
		ev.ResponseTimeMs = elapsed.Milliseconds()
		b.sink.AddEvent(ev)

		labels := map[string]string{metrics.LabelChain: string(ev.Chain), metrics.LabelOutcome: fmt.Sprint(ev.Status)}
		b.metrics.IncCounter(metrics.GateRequests, labels)
		b.metrics.ObserveLatency(metrics.HandlerLatency, elapsed, labels)

		if err, ok := p.(error); ok && errors.Is(err, http.ErrAbortHandler) {
			panic(p)
		}
	}()

	fn(rec, &ev)
}
