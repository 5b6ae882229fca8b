package webhooks

import (
	"context"
	"sync"
)

// Batch tracks the deliveries started by one event. It settles once every
// delivery has reached a terminal status.
type Batch struct {
	EventID string

	mu       sync.Mutex
	ids      []string
	pending  int
	sealed   bool
	finished chan struct{}
}

func newBatch(eventID string) *Batch {
	return &Batch{EventID: eventID, finished: make(chan struct{})}
}

func (b *Batch) add(id string) {
	b.mu.Lock()
	b.ids = append(b.ids, id)
	b.pending++
	b.mu.Unlock()
}

// seal marks the batch complete for additions; it settles immediately if no
// delivery was started or all have already finished.
func (b *Batch) seal() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sealed = true
	b.maybeFinish()
}

func (b *Batch) done() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending--
	b.maybeFinish()
}

func (b *Batch) maybeFinish() {
	if b.sealed && b.pending == 0 {
		select {
		case <-b.finished:
		default:
			close(b.finished)
		}
	}
}

// DeliveryIDs returns the ids of the deliveries in the batch.
func (b *Batch) DeliveryIDs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.ids...)
}

// Done is closed when the batch settles.
func (b *Batch) Done() <-chan struct{} {
	return b.finished
}

// Wait blocks until the batch settles or ctx ends.
func (b *Batch) Wait(ctx context.Context) error {
	select {
	case <-b.finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
