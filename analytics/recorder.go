// Package analytics keeps a bounded log of gated request outcomes and derives
// request, payment and revenue metrics from it.
package analytics

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vitwit/payless/types"
)

// DefaultRecent is the number of events included in AnalyticsMetrics.
const DefaultRecent = 10

// Recorder is a fixed-capacity ring of events. Once full, each new event
// overwrites the oldest one.
type Recorder struct {
	mu     sync.RWMutex
	events []types.AnalyticsEvent
	next   int
	full   bool
	recent int
	now    func() time.Time
}

// Option configures a Recorder.
type Option func(*Recorder)

func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		r.now = now
	}
}

// WithRecent sets how many recent events GetMetrics returns.
func WithRecent(n int) Option {
	return func(r *Recorder) {
		if n >= 0 {
			r.recent = n
		}
	}
}

func NewRecorder(capacity int, opts ...Option) *Recorder {
	if capacity <= 0 {
		capacity = types.DefaultAnalyticsCapacity
	}
	r := &Recorder{
		events: make([]types.AnalyticsEvent, capacity),
		recent: DefaultRecent,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AddEvent assigns an id and, when unset, a timestamp to e and appends it.
func (r *Recorder) AddEvent(e types.AnalyticsEvent) types.AnalyticsEvent {
	e.ID = uuid.NewString()
	if e.Timestamp.IsZero() {
		e.Timestamp = r.now()
	}

	r.mu.Lock()
	r.events[r.next] = e
	r.next = (r.next + 1) % len(r.events)
	if r.next == 0 {
		r.full = true
	}
	r.mu.Unlock()
	return e
}

// Len returns the number of retained events.
func (r *Recorder) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.full {
		return len(r.events)
	}
	return r.next
}

// Capacity returns the ring size.
func (r *Recorder) Capacity() int {
	return len(r.events)
}

// Clear drops every event.
func (r *Recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = make([]types.AnalyticsEvent, len(r.events))
	r.next = 0
	r.full = false
}

// snapshot returns the events matching f, newest first.
func (r *Recorder) snapshot(f types.AnalyticsFilter) []types.AnalyticsEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := r.next
	if r.full {
		n = len(r.events)
	}
	out := make([]types.AnalyticsEvent, 0, n)
	for i := 0; i < n; i++ {
		idx := (r.next - 1 - i + len(r.events)) % len(r.events)
		if Matches(f, &r.events[idx]) {
			out = append(out, r.events[idx])
		}
	}
	return out
}

// Events returns the events matching f, newest first, truncated to f.Limit
// when it is positive.
func (r *Recorder) Events(f types.AnalyticsFilter) []types.AnalyticsEvent {
	events := r.snapshot(f)
	if f.Limit > 0 && len(events) > f.Limit {
		events = events[:f.Limit]
	}
	return events
}

// Matches reports whether e satisfies every set field of f.
func Matches(f types.AnalyticsFilter, e *types.AnalyticsEvent) bool {
	if f.StartDate != nil && e.Timestamp.Before(*f.StartDate) {
		return false
	}
	if f.EndDate != nil && e.Timestamp.After(*f.EndDate) {
		return false
	}
	if f.Endpoint != "" && e.Endpoint != f.Endpoint {
		return false
	}
	if f.Status != 0 && e.Status != f.Status {
		return false
	}
	if f.Wallet != "" && e.Wallet != f.Wallet {
		return false
	}
	if f.MinAmount != nil && (e.Amount == nil || e.Amount.LessThan(*f.MinAmount)) {
		return false
	}
	if f.MaxAmount != nil && (e.Amount == nil || e.Amount.GreaterThan(*f.MaxAmount)) {
		return false
	}
	return true
}

type endpointAcc struct {
	types.EndpointMetrics
	totalMs int64
}

// GetMetrics derives request, payment funnel and revenue figures over the
// events matching f. Revenue counts only events with a valid payment.
func (r *Recorder) GetMetrics(f types.AnalyticsFilter) types.AnalyticsMetrics {
	events := r.snapshot(f)

	m := types.AnalyticsMetrics{
		TotalRevenue: decimal.Zero,
		Endpoints:    []types.EndpointMetrics{},
		RecentEvents: []types.AnalyticsEvent{},
	}
	wallets := make(map[string]struct{})
	endpoints := make(map[string]*endpointAcc)
	var totalMs int64

	for i := range events {
		e := &events[i]
		m.TotalRequests++
		totalMs += e.ResponseTimeMs

		acc, ok := endpoints[e.Endpoint]
		if !ok {
			acc = &endpointAcc{EndpointMetrics: types.EndpointMetrics{Endpoint: e.Endpoint, Revenue: decimal.Zero}}
			endpoints[e.Endpoint] = acc
		}
		acc.Calls++
		acc.totalMs += e.ResponseTimeMs

		if e.Successful() {
			m.SuccessfulRequests++
			acc.Successful++
		} else {
			m.FailedRequests++
			acc.Failed++
		}
		if e.PaymentRequired {
			m.PaymentsRequired++
		}
		if e.PaymentProvided {
			m.PaymentsProvided++
		}
		if e.PaymentValid {
			m.PaymentsValid++
			if e.Amount != nil {
				m.TotalRevenue = m.TotalRevenue.Add(*e.Amount)
				acc.Revenue = acc.Revenue.Add(*e.Amount)
			}
		}
		if e.Wallet != "" {
			wallets[e.Wallet] = struct{}{}
		}
	}

	if m.TotalRequests > 0 {
		m.AvgResponseTimeMs = float64(totalMs) / float64(m.TotalRequests)
	}
	m.UniqueWallets = len(wallets)

	for _, acc := range endpoints {
		acc.AvgResponseTimeMs = float64(acc.totalMs) / float64(acc.Calls)
		m.Endpoints = append(m.Endpoints, acc.EndpointMetrics)
	}
	sort.Slice(m.Endpoints, func(i, j int) bool {
		if m.Endpoints[i].Calls != m.Endpoints[j].Calls {
			return m.Endpoints[i].Calls > m.Endpoints[j].Calls
		}
		return m.Endpoints[i].Endpoint < m.Endpoints[j].Endpoint
	})

	n := r.recent
	if n > len(events) {
		n = len(events)
	}
	m.RecentEvents = append(m.RecentEvents, events[:n]...)
	return m
}
