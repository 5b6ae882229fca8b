package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/vitwit/payless/logger"
	"github.com/vitwit/payless/metrics"
	"github.com/vitwit/payless/storage"
	"github.com/vitwit/payless/types"
	"golang.org/x/sync/errgroup"
)

const (
	deliveryPrefix = "delivery:"
	userAgent      = "Payless-Webhooks/1.0"

	// DefaultConcurrency bounds simultaneous POSTs.
	DefaultConcurrency = 64

	maxResponseDrain = 64 << 10
)

// ErrClosed is returned by TriggerEvent after Close.
var ErrClosed = errors.New("webhook dispatcher closed")

// Dispatcher owns webhook subscriptions and delivers events to them. The
// first attempt of each delivery starts immediately; retries are queued as
// tasks and picked up by the polling loop started with Start.
type Dispatcher struct {
	subs       storage.Store[types.WebhookSubscription]
	deliveries storage.Store[types.WebhookDelivery]
	queue      *Queue

	client      *http.Client
	maxAttempts int
	backoff     time.Duration
	poll        time.Duration
	concurrency int
	now         func() time.Time
	log         logger.Logger
	metrics     metrics.Recorder

	batches sync.Map // delivery id -> *Batch
	workers errgroup.Group

	ctx       context.Context
	cancel    context.CancelFunc
	closed    atomic.Bool
	started   atomic.Bool
	startOnce sync.Once
	loopDone  chan struct{}
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) {
		d.client = c
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(t time.Duration) Option {
	return func(d *Dispatcher) {
		if t > 0 {
			d.client = &http.Client{Timeout: t}
		}
	}
}

func WithMaxAttempts(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxAttempts = n
		}
	}
}

// WithBackoff sets the delay after the first failed attempt. Each further
// failure doubles it.
func WithBackoff(base time.Duration) Option {
	return func(d *Dispatcher) {
		if base > 0 {
			d.backoff = base
		}
	}
}

// WithPollInterval sets how often the retry queue is polled.
func WithPollInterval(p time.Duration) Option {
	return func(d *Dispatcher) {
		if p > 0 {
			d.poll = p
		}
	}
}

func WithConcurrency(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		d.now = now
	}
}

func WithLogger(l logger.Logger) Option {
	return func(d *Dispatcher) {
		d.log = l
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(d *Dispatcher) {
		d.metrics = r
	}
}

// WithStores replaces the in-memory stores.
func WithStores(subs storage.Store[types.WebhookSubscription], deliveries storage.Store[types.WebhookDelivery], tasks storage.Store[Task]) Option {
	return func(d *Dispatcher) {
		d.subs = subs
		d.deliveries = deliveries
		d.queue = NewQueue(tasks)
	}
}

func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		subs:        storage.NewMemoryStore[types.WebhookSubscription](),
		deliveries:  storage.NewMemoryStore[types.WebhookDelivery](),
		queue:       NewQueue(storage.NewMemoryStore[Task]()),
		client:      &http.Client{Timeout: types.DefaultWebhookTimeout},
		maxAttempts: types.DefaultMaxAttempts,
		backoff:     types.DefaultWebhookBackoff,
		poll:        types.DefaultPollInterval,
		concurrency: DefaultConcurrency,
		now:         time.Now,
		log:         logger.NoopLogger{},
		metrics:     metrics.NoopRecorder{},
		loopDone:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.workers.SetLimit(d.concurrency)
	d.ctx, d.cancel = context.WithCancel(context.Background())
	return d
}

// Start launches the polling loop that runs retries and first attempts
// deferred by a saturated worker pool. Calling it again has no effect.
func (d *Dispatcher) Start() {
	d.startOnce.Do(func() {
		d.started.Store(true)
		go d.loop()
	})
}

// Close stops the polling loop and waits for in-flight attempts, or for ctx.
func (d *Dispatcher) Close(ctx context.Context) error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	// Keeps a later Start from launching the loop.
	d.startOnce.Do(func() {})
	d.cancel()
	if d.started.Load() {
		<-d.loopDone
	}

	done := make(chan struct{})
	go func() {
		_ = d.workers.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) loop() {
	defer close(d.loopDone)
	ticker := time.NewTicker(d.poll)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			tasks, err := d.queue.Claim(d.ctx, d.now())
			if err != nil && !errors.Is(err, context.Canceled) {
				d.log.Error("claiming webhook retries failed", map[string]any{"error": err})
			}
			for _, t := range tasks {
				t := t
				d.workers.Go(func() error {
					d.attempt(t)
					return nil
				})
			}
		}
	}
}

// TriggerEvent sends an event of type t to every enabled subscription that
// asked for it. Deliveries run independently of each other and of ctx; the
// returned batch settles when every delivery has succeeded, failed for good
// or been cancelled.
func (d *Dispatcher) TriggerEvent(ctx context.Context, t types.EventType, data any) (*Batch, error) {
	if d.closed.Load() {
		return nil, ErrClosed
	}
	if !t.Valid() {
		return nil, types.NewError(types.ErrInvalidPayload, "unknown event type %q", t)
	}

	event, body, err := d.newEvent(t, data)
	if err != nil {
		return nil, err
	}

	var targets []types.WebhookSubscription
	err = d.subs.Scan(ctx, "sub:", func(e storage.Entry[types.WebhookSubscription]) bool {
		if e.Value.Enabled && e.Value.Subscribes(t) {
			targets = append(targets, e.Value)
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	batch := newBatch(event.ID)
	for _, sub := range targets {
		delivery, err := d.enqueue(ctx, sub, event, body, batch)
		if err != nil {
			d.log.Error("creating webhook delivery failed", map[string]any{"subscription": sub.ID, "error": err})
			continue
		}
		d.launch(Task{DeliveryID: delivery.ID, SubscriptionID: sub.ID, Attempt: 1, DueAt: d.now(), Body: body})
	}
	batch.seal()

	d.log.Debug("webhook event triggered", map[string]any{"event": event.ID, "type": t, "subscribers": len(targets)})
	return batch, nil
}

// SendTest delivers a sample payment.confirmed event to one subscription,
// whatever event types it has selected.
func (d *Dispatcher) SendTest(ctx context.Context, subscriptionID string) (*Batch, types.PaymentEventData, error) {
	sub, err := d.Subscription(ctx, subscriptionID)
	if err != nil {
		return nil, types.PaymentEventData{}, err
	}

	now := d.now()
	data := types.PaymentEventData{
		PaymentID: fmt.Sprintf("test_%d", now.UnixMilli()),
		Signature: "test_signature_" + uuid.NewString()[:8],
		Chain:     types.ChainSolana,
		From:      "11111111111111111111111111111111",
		To:        "22222222222222222222222222222222",
		Amount:    "1.00",
		Token:     "USDC",
		Endpoint:  "/api/test",
		Timestamp: now.UnixMilli(),
		Status:    "confirmed",
		Method:    http.MethodPost,
		UserAgent: "PaylessWebhookTest/1.0",
	}

	event, body, err := d.newEvent(types.EventPaymentConfirmed, data)
	if err != nil {
		return nil, data, err
	}
	batch := newBatch(event.ID)
	delivery, err := d.enqueue(ctx, sub, event, body, batch)
	if err != nil {
		return nil, data, err
	}
	batch.seal()

	d.launch(Task{DeliveryID: delivery.ID, SubscriptionID: sub.ID, Attempt: 1, DueAt: now, Body: body})
	return batch, data, nil
}

// EmitPaymentConfirmed triggers payment.confirmed.
func (d *Dispatcher) EmitPaymentConfirmed(ctx context.Context, data types.PaymentEventData) (*Batch, error) {
	return d.TriggerEvent(ctx, types.EventPaymentConfirmed, data)
}

// EmitPaymentPending triggers payment.pending.
func (d *Dispatcher) EmitPaymentPending(ctx context.Context, data types.PaymentEventData) (*Batch, error) {
	return d.TriggerEvent(ctx, types.EventPaymentPending, data)
}

// EmitPaymentFailed triggers payment.failed.
func (d *Dispatcher) EmitPaymentFailed(ctx context.Context, data types.PaymentEventData) (*Batch, error) {
	return d.TriggerEvent(ctx, types.EventPaymentFailed, data)
}

func (d *Dispatcher) newEvent(t types.EventType, data any) (types.WebhookEvent, []byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return types.WebhookEvent{}, nil, types.NewError(types.ErrInvalidPayload, "marshal event data: %v", err)
	}
	event := types.WebhookEvent{
		ID:        uuid.NewString(),
		Type:      t,
		Timestamp: d.now().UnixMilli(),
		Data:      raw,
	}
	body, err := json.Marshal(event)
	if err != nil {
		return types.WebhookEvent{}, nil, types.NewError(types.ErrInvalidPayload, "marshal event: %v", err)
	}
	return event, body, nil
}

func (d *Dispatcher) enqueue(ctx context.Context, sub types.WebhookSubscription, event types.WebhookEvent, body []byte, batch *Batch) (types.WebhookDelivery, error) {
	delivery := types.WebhookDelivery{
		ID:             uuid.NewString(),
		SubscriptionID: sub.ID,
		EventID:        event.ID,
		EventType:      event.Type,
		URL:            sub.URL,
		Status:         types.DeliveryPending,
		MaxAttempts:    d.maxAttempts,
		Attempts:       []types.DeliveryAttempt{},
		CreatedAt:      d.now(),
	}
	if _, err := d.deliveries.CompareAndSwap(ctx, deliveryPrefix+delivery.ID, 0, delivery); err != nil {
		return delivery, err
	}
	batch.add(delivery.ID)
	d.batches.Store(delivery.ID, batch)
	return delivery, nil
}

// launch runs the first attempt of a delivery right away when a worker is
// free and otherwise leaves it on the queue for the polling loop, so callers
// never block on a saturated pool.
func (d *Dispatcher) launch(task Task) {
	ok := d.workers.TryGo(func() error {
		d.attempt(task)
		return nil
	})
	if ok {
		return
	}
	if err := d.queue.Schedule(context.WithoutCancel(d.ctx), task); err != nil {
		d.log.Error("queueing webhook delivery failed", map[string]any{"delivery": task.DeliveryID, "error": err})
		_ = d.cancelDelivery(context.WithoutCancel(d.ctx), task.DeliveryID)
	}
}

// attempt performs one POST for task and records the outcome, scheduling the
// next attempt when the delivery may still succeed.
func (d *Dispatcher) attempt(task Task) {
	ctx := d.ctx
	key := deliveryPrefix + task.DeliveryID

	current, err := d.deliveries.Get(context.WithoutCancel(ctx), key)
	if err != nil {
		d.log.Error("webhook delivery record missing", map[string]any{"delivery": task.DeliveryID, "error": err})
		_ = d.queue.Remove(context.WithoutCancel(ctx), task.DeliveryID)
		d.settle(task.DeliveryID)
		return
	}
	if current.Value.Status.Terminal() {
		_ = d.queue.Remove(context.WithoutCancel(ctx), task.DeliveryID)
		d.settle(task.DeliveryID)
		return
	}

	sub, err := d.Subscription(context.WithoutCancel(ctx), task.SubscriptionID)
	if err != nil {
		_ = d.cancelDelivery(context.WithoutCancel(ctx), task.DeliveryID)
		return
	}

	record := d.post(ctx, sub, current.Value, task)

	var next *Task
	updated, err := storage.Update(context.WithoutCancel(ctx), d.deliveries, key, func(del types.WebhookDelivery, exists bool) (types.WebhookDelivery, error) {
		next = nil
		if !exists {
			return del, storage.ErrNotFound
		}
		del.Attempts = append(append([]types.DeliveryAttempt(nil), del.Attempts...), record)
		del.AttemptNumber = task.Attempt
		del.LastAttemptAt = record.AttemptedAt
		del.NextRetryAt = nil
		if del.Status.Terminal() {
			return del, nil
		}

		switch {
		case record.Error == "":
			del.Status = types.DeliverySuccess
		case task.Attempt >= del.MaxAttempts:
			del.Status = types.DeliveryFailed
		default:
			due := d.now().Add(d.backoffFor(task.Attempt))
			del.NextRetryAt = &due
			next = &Task{
				DeliveryID:     task.DeliveryID,
				SubscriptionID: task.SubscriptionID,
				Attempt:        task.Attempt + 1,
				DueAt:          due,
				Body:           task.Body,
			}
		}
		return del, nil
	})
	if err != nil {
		d.log.Error("recording webhook attempt failed", map[string]any{"delivery": task.DeliveryID, "error": err})
		d.settle(task.DeliveryID)
		return
	}

	labels := map[string]string{metrics.LabelOutcome: string(updated.Status)}
	d.metrics.IncCounter(metrics.WebhookDeliveries, labels)

	if next != nil {
		if err := d.queue.Schedule(context.WithoutCancel(ctx), *next); err != nil {
			d.log.Error("scheduling webhook retry failed", map[string]any{"delivery": task.DeliveryID, "error": err})
		}
		d.log.Warn("webhook delivery failed, retry scheduled", map[string]any{
			"delivery": task.DeliveryID,
			"url":      sub.URL,
			"attempt":  task.Attempt,
			"retryAt":  next.DueAt,
			"error":    record.Error,
		})
		// Unsubscribed between the attempt and scheduling the retry.
		if _, err := d.Subscription(context.WithoutCancel(ctx), task.SubscriptionID); err != nil {
			_ = d.cancelDelivery(context.WithoutCancel(ctx), task.DeliveryID)
		}
		return
	}

	_ = d.queue.Remove(context.WithoutCancel(ctx), task.DeliveryID)
	if updated.Status == types.DeliveryFailed {
		d.log.Warn("webhook delivery failed permanently", map[string]any{
			"delivery": task.DeliveryID,
			"url":      sub.URL,
			"attempts": task.Attempt,
			"error":    record.Error,
		})
	}
	d.settle(task.DeliveryID)
}

func (d *Dispatcher) post(ctx context.Context, sub types.WebhookSubscription, del types.WebhookDelivery, task Task) (record types.DeliveryAttempt) {
	start := d.now()
	record = types.DeliveryAttempt{Number: task.Attempt, AttemptedAt: start}
	defer func() {
		record.DurationMs = d.now().Sub(start).Milliseconds()
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader(task.Body))
	if err != nil {
		record.Error = err.Error()
		return record
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(types.HeaderSignature, Sign(task.Body, sub.Secret))
	req.Header.Set(types.HeaderEventID, del.EventID)
	req.Header.Set(types.HeaderEventType, string(del.EventType))

	began := time.Now()
	resp, err := d.client.Do(req)
	d.metrics.ObserveLatency(metrics.WebhookLatency, time.Since(began), nil)
	if err != nil {
		record.Error = err.Error()
		return record
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseDrain))

	record.StatusCode = resp.StatusCode
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		record.Error = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	return record
}

// backoffFor returns the delay after failed attempt n: base, 2*base, 4*base...
func (d *Dispatcher) backoffFor(n int) time.Duration {
	return d.backoff << (n - 1)
}

func (d *Dispatcher) cancelDelivery(ctx context.Context, deliveryID string) error {
	_ = d.queue.Remove(ctx, deliveryID)
	_, err := storage.Update(ctx, d.deliveries, deliveryPrefix+deliveryID, func(del types.WebhookDelivery, exists bool) (types.WebhookDelivery, error) {
		if !exists {
			return del, storage.ErrNotFound
		}
		if !del.Status.Terminal() {
			del.Status = types.DeliveryCancelled
			del.NextRetryAt = nil
		}
		return del, nil
	})
	d.settle(deliveryID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	return err
}

func (d *Dispatcher) settle(deliveryID string) {
	if b, ok := d.batches.LoadAndDelete(deliveryID); ok {
		b.(*Batch).done()
	}
}

// Delivery returns one delivery record.
func (d *Dispatcher) Delivery(ctx context.Context, id string) (types.WebhookDelivery, error) {
	e, err := d.deliveries.Get(ctx, deliveryPrefix+id)
	if errors.Is(err, storage.ErrNotFound) {
		return types.WebhookDelivery{}, types.NewError(types.ErrNotFound, "delivery %s not found", id)
	}
	return e.Value, err
}

// Deliveries returns the delivery history, newest first. An empty
// subscriptionID returns deliveries of every subscription.
func (d *Dispatcher) Deliveries(ctx context.Context, subscriptionID string) ([]types.WebhookDelivery, error) {
	var out []types.WebhookDelivery
	err := d.deliveries.Scan(ctx, deliveryPrefix, func(e storage.Entry[types.WebhookDelivery]) bool {
		if subscriptionID == "" || e.Value.SubscriptionID == subscriptionID {
			out = append(out, e.Value)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// PendingRetries returns the queued retry tasks.
func (d *Dispatcher) PendingRetries(ctx context.Context) ([]Task, error) {
	return d.queue.Pending(ctx)
}
