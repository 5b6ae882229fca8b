package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitwit/payless/types"
)

type capturedRequest struct {
	header http.Header
	body   []byte
	at     time.Time
}

type receiver struct {
	*httptest.Server
	mu       sync.Mutex
	requests []capturedRequest
	status   atomic.Int32
	delay    time.Duration
}

func newReceiver(t *testing.T, status int) *receiver {
	t.Helper()
	r := &receiver{}
	r.status.Store(int32(status))
	r.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)
		r.mu.Lock()
		r.requests = append(r.requests, capturedRequest{header: req.Header.Clone(), body: body, at: time.Now()})
		r.mu.Unlock()
		if r.delay > 0 {
			time.Sleep(r.delay)
		}
		w.WriteHeader(int(r.status.Load()))
	}))
	t.Cleanup(r.Close)
	return r
}

func (r *receiver) received() []capturedRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]capturedRequest(nil), r.requests...)
}

func newTestDispatcher(t *testing.T, opts ...Option) *Dispatcher {
	t.Helper()
	opts = append([]Option{
		WithBackoff(20 * time.Millisecond),
		WithPollInterval(5 * time.Millisecond),
		WithTimeout(2 * time.Second),
	}, opts...)
	d := NewDispatcher(opts...)
	d.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = d.Close(ctx)
	})
	return d
}

func register(t *testing.T, d *Dispatcher, url string, events ...types.EventType) types.WebhookSubscription {
	t.Helper()
	if len(events) == 0 {
		events = []types.EventType{types.EventPaymentConfirmed}
	}
	sub, err := d.Register(context.Background(), types.WebhookSubscription{
		URL:        url,
		Secret:     "whsec_test_secret",
		EventTypes: events,
		Enabled:    true,
	})
	require.NoError(t, err)
	return sub
}

func waitBatch(t *testing.T, b *Batch) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, b.Wait(ctx))
}

func paymentData() types.PaymentEventData {
	return types.PaymentEventData{
		PaymentID: "pay_1",
		Signature: "sig",
		Chain:     types.ChainSolana,
		From:      "payer",
		To:        "merchant",
		Amount:    "0.05",
		Token:     "USDC",
		Endpoint:  "/api/ai/chat",
		Timestamp: time.Now().UnixMilli(),
		Status:    "confirmed",
	}
}

func TestDispatcher_DeliversSignedEvent(t *testing.T) {
	rcv := newReceiver(t, http.StatusOK)
	d := newTestDispatcher(t)
	sub := register(t, d, rcv.URL)

	batch, err := d.EmitPaymentConfirmed(context.Background(), paymentData())
	require.NoError(t, err)
	waitBatch(t, batch)

	reqs := rcv.received()
	require.Len(t, reqs, 1)
	req := reqs[0]

	assert.Equal(t, "application/json", req.header.Get("Content-Type"))
	assert.Equal(t, "Payless-Webhooks/1.0", req.header.Get("User-Agent"))
	assert.Equal(t, string(types.EventPaymentConfirmed), req.header.Get(types.HeaderEventType))
	assert.Equal(t, batch.EventID, req.header.Get(types.HeaderEventID))
	assert.True(t, VerifySignature(req.body, req.header.Get(types.HeaderSignature), sub.Secret))

	var event types.WebhookEvent
	require.NoError(t, json.Unmarshal(req.body, &event))
	assert.Equal(t, batch.EventID, event.ID)
	assert.Equal(t, types.EventPaymentConfirmed, event.Type)

	var data types.PaymentEventData
	require.NoError(t, json.Unmarshal(event.Data, &data))
	assert.Equal(t, "0.05", data.Amount)

	ids := batch.DeliveryIDs()
	require.Len(t, ids, 1)
	del, err := d.Delivery(context.Background(), ids[0])
	require.NoError(t, err)
	assert.Equal(t, types.DeliverySuccess, del.Status)
	require.Len(t, del.Attempts, 1)
	assert.Equal(t, http.StatusOK, del.Attempts[0].StatusCode)
	assert.Empty(t, del.Attempts[0].Error)
}

func TestDispatcher_RetriesWithGrowingBackoff(t *testing.T) {
	rcv := newReceiver(t, http.StatusInternalServerError)
	d := newTestDispatcher(t)
	sub := register(t, d, rcv.URL)

	batch, err := d.TriggerEvent(context.Background(), types.EventPaymentConfirmed, paymentData())
	require.NoError(t, err)
	waitBatch(t, batch)

	reqs := rcv.received()
	require.Len(t, reqs, 3)
	first := reqs[1].at.Sub(reqs[0].at)
	second := reqs[2].at.Sub(reqs[1].at)
	assert.GreaterOrEqual(t, first, 20*time.Millisecond)
	assert.GreaterOrEqual(t, second, 40*time.Millisecond)

	dels, err := d.Deliveries(context.Background(), sub.ID)
	require.NoError(t, err)
	require.Len(t, dels, 1)
	del := dels[0]
	assert.Equal(t, types.DeliveryFailed, del.Status)
	assert.Equal(t, 3, del.AttemptNumber)
	assert.Nil(t, del.NextRetryAt)
	require.Len(t, del.Attempts, 3)
	for i, a := range del.Attempts {
		assert.Equal(t, i+1, a.Number)
		assert.Equal(t, http.StatusInternalServerError, a.StatusCode)
		assert.Contains(t, a.Error, "HTTP 500")
	}

	pending, err := d.PendingRetries(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestDispatcher_RecoversOnRetry(t *testing.T) {
	rcv := newReceiver(t, http.StatusBadGateway)
	d := newTestDispatcher(t, WithBackoff(50*time.Millisecond))
	register(t, d, rcv.URL)

	batch, err := d.TriggerEvent(context.Background(), types.EventPaymentConfirmed, paymentData())
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(rcv.received()) == 1 }, 2*time.Second, time.Millisecond)
	rcv.status.Store(http.StatusNoContent)
	waitBatch(t, batch)

	del, err := d.Delivery(context.Background(), batch.DeliveryIDs()[0])
	require.NoError(t, err)
	assert.Equal(t, types.DeliverySuccess, del.Status)
	assert.Len(t, del.Attempts, 2)
}

func TestDispatcher_SubscribersAreIndependent(t *testing.T) {
	slow := newReceiver(t, http.StatusServiceUnavailable)
	fast := newReceiver(t, http.StatusOK)
	d := newTestDispatcher(t)
	register(t, d, slow.URL)
	good := register(t, d, fast.URL)

	batch, err := d.TriggerEvent(context.Background(), types.EventPaymentConfirmed, paymentData())
	require.NoError(t, err)
	require.Len(t, batch.DeliveryIDs(), 2)

	require.Eventually(t, func() bool {
		dels, err := d.Deliveries(context.Background(), good.ID)
		return err == nil && len(dels) == 1 && dels[0].Status == types.DeliverySuccess
	}, 2*time.Second, time.Millisecond)

	select {
	case <-batch.Done():
		t.Fatal("batch settled before the failing subscriber exhausted its attempts")
	default:
	}

	waitBatch(t, batch)
	assert.Len(t, slow.received(), 3)
	assert.Len(t, fast.received(), 1)
}

func TestDispatcher_FiltersByEventTypeAndEnabled(t *testing.T) {
	rcv := newReceiver(t, http.StatusOK)
	d := newTestDispatcher(t)
	register(t, d, rcv.URL, types.EventPaymentFailed)
	disabled := register(t, d, rcv.URL, types.EventPaymentConfirmed)
	off := false
	_, err := d.Update(context.Background(), disabled.ID, types.SubscriptionUpdate{Enabled: &off})
	require.NoError(t, err)

	batch, err := d.EmitPaymentConfirmed(context.Background(), paymentData())
	require.NoError(t, err)
	assert.Empty(t, batch.DeliveryIDs())
	waitBatch(t, batch)

	batch, err = d.EmitPaymentFailed(context.Background(), paymentData())
	require.NoError(t, err)
	waitBatch(t, batch)
	assert.Len(t, rcv.received(), 1)
}

func TestDispatcher_UnknownEventType(t *testing.T) {
	d := newTestDispatcher(t)
	_, err := d.TriggerEvent(context.Background(), types.EventType("payment.refunded"), paymentData())
	require.Error(t, err)
}

func TestDispatcher_DeleteCancelsRetries(t *testing.T) {
	rcv := newReceiver(t, http.StatusInternalServerError)
	d := newTestDispatcher(t, WithBackoff(time.Hour))
	sub := register(t, d, rcv.URL)

	batch, err := d.TriggerEvent(context.Background(), types.EventPaymentConfirmed, paymentData())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		pending, err := d.PendingRetries(context.Background())
		return err == nil && len(pending) == 1
	}, 2*time.Second, time.Millisecond)

	require.NoError(t, d.Delete(context.Background(), sub.ID))
	waitBatch(t, batch)

	del, err := d.Delivery(context.Background(), batch.DeliveryIDs()[0])
	require.NoError(t, err)
	assert.Equal(t, types.DeliveryCancelled, del.Status)
	assert.Len(t, del.Attempts, 1)

	pending, err := d.PendingRetries(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.Len(t, rcv.received(), 1)
}

func TestDispatcher_TriggerDoesNotWaitForDelivery(t *testing.T) {
	rcv := newReceiver(t, http.StatusOK)
	rcv.delay = 200 * time.Millisecond
	d := newTestDispatcher(t)
	register(t, d, rcv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	start := time.Now()
	batch, err := d.TriggerEvent(ctx, types.EventPaymentConfirmed, paymentData())
	require.NoError(t, err)
	cancel()
	assert.Less(t, time.Since(start), 150*time.Millisecond)

	waitBatch(t, batch)
	del, err := d.Delivery(context.Background(), batch.DeliveryIDs()[0])
	require.NoError(t, err)
	assert.Equal(t, types.DeliverySuccess, del.Status)
}

func TestDispatcher_SendTest(t *testing.T) {
	rcv := newReceiver(t, http.StatusOK)
	other := newReceiver(t, http.StatusOK)
	d := newTestDispatcher(t)
	sub := register(t, d, rcv.URL, types.EventPaymentFailed)
	register(t, d, other.URL)

	batch, data, err := d.SendTest(context.Background(), sub.ID)
	require.NoError(t, err)
	waitBatch(t, batch)

	assert.Equal(t, "1.00", data.Amount)
	assert.Len(t, rcv.received(), 1)
	assert.Empty(t, other.received())

	_, _, err = d.SendTest(context.Background(), "missing")
	var perr *types.PaylessError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, types.ErrNotFound, perr.Code)
}

func TestDispatcher_ClosedRejectsEvents(t *testing.T) {
	d := NewDispatcher()
	d.Start()
	require.NoError(t, d.Close(context.Background()))
	require.NoError(t, d.Close(context.Background()))

	_, err := d.TriggerEvent(context.Background(), types.EventPaymentConfirmed, paymentData())
	assert.ErrorIs(t, err, ErrClosed)
}
