package webhooks

import (
	"context"
	"errors"
	"time"

	"github.com/vitwit/payless/storage"
)

// Task is a scheduled delivery attempt.
type Task struct {
	DeliveryID     string    `json:"deliveryId"`
	SubscriptionID string    `json:"subscriptionId"`
	Attempt        int       `json:"attempt"`
	DueAt          time.Time `json:"dueAt"`
	Body           []byte    `json:"body"`
	Claimed        bool      `json:"claimed"`
}

// Queue holds at most one pending task per delivery. Tasks are claimed with
// compare-and-swap, so several pollers can share a store without running a
// task twice.
type Queue struct {
	store storage.Store[Task]
}

func NewQueue(store storage.Store[Task]) *Queue {
	return &Queue{store: store}
}

func taskKey(deliveryID string) string {
	return "task:" + deliveryID
}

// Schedule stores t, replacing any task for the same delivery.
func (q *Queue) Schedule(ctx context.Context, t Task) error {
	t.Claimed = false
	_, err := q.store.Set(ctx, taskKey(t.DeliveryID), t)
	return err
}

// Claim marks every unclaimed task due at or before now as claimed and
// returns them ordered as scanned.
func (q *Queue) Claim(ctx context.Context, now time.Time) ([]Task, error) {
	var due []storage.Entry[Task]
	err := q.store.Scan(ctx, "task:", func(e storage.Entry[Task]) bool {
		if !e.Value.Claimed && !e.Value.DueAt.After(now) {
			due = append(due, e)
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	claimed := make([]Task, 0, len(due))
	for _, e := range due {
		t := e.Value
		t.Claimed = true
		if _, err := q.store.CompareAndSwap(ctx, e.Key, e.Version, t); err != nil {
			if errors.Is(err, storage.ErrConflict) {
				continue
			}
			return claimed, err
		}
		claimed = append(claimed, t)
	}
	return claimed, nil
}

// Remove drops the task of a delivery.
func (q *Queue) Remove(ctx context.Context, deliveryID string) error {
	return q.store.Delete(ctx, taskKey(deliveryID))
}

// CancelSubscription removes every task of a subscription and returns the
// affected delivery ids.
func (q *Queue) CancelSubscription(ctx context.Context, subscriptionID string) ([]string, error) {
	var ids []string
	err := q.store.Scan(ctx, "task:", func(e storage.Entry[Task]) bool {
		if e.Value.SubscriptionID == subscriptionID {
			ids = append(ids, e.Value.DeliveryID)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		if err := q.Remove(ctx, id); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

// Pending returns every queued task.
func (q *Queue) Pending(ctx context.Context) ([]Task, error) {
	return storage.Values(ctx, q.store, "task:")
}
