package webhooks

import (
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"
	"github.com/vitwit/payless/storage"
	"github.com/vitwit/payless/types"
	"github.com/vitwit/payless/utils"
)

func subKey(id string) string {
	return "sub:" + id
}

func notFound(id string) error {
	return types.NewError(types.ErrNotFound, "webhook %s not found", id)
}

// Register validates sub and stores it under a new id.
func (d *Dispatcher) Register(ctx context.Context, sub types.WebhookSubscription) (types.WebhookSubscription, error) {
	if err := utils.ValidateStruct(&sub); err != nil {
		return types.WebhookSubscription{}, err
	}

	now := d.now()
	sub.ID = uuid.NewString()
	sub.EventTypes = dedupe(sub.EventTypes)
	sub.CreatedAt = now
	sub.UpdatedAt = now

	if _, err := d.subs.CompareAndSwap(ctx, subKey(sub.ID), 0, sub); err != nil {
		return types.WebhookSubscription{}, err
	}
	d.log.Info("webhook registered", map[string]any{"id": sub.ID, "url": sub.URL, "events": sub.EventTypes})
	return sub, nil
}

// Subscription returns the subscription with id.
func (d *Dispatcher) Subscription(ctx context.Context, id string) (types.WebhookSubscription, error) {
	e, err := d.subs.Get(ctx, subKey(id))
	if errors.Is(err, storage.ErrNotFound) {
		return types.WebhookSubscription{}, notFound(id)
	}
	return e.Value, err
}

// Update applies the non-nil fields of upd and revalidates the result.
func (d *Dispatcher) Update(ctx context.Context, id string, upd types.SubscriptionUpdate) (types.WebhookSubscription, error) {
	if _, err := d.Subscription(ctx, id); err != nil {
		return types.WebhookSubscription{}, err
	}

	return storage.Update(ctx, d.subs, subKey(id), func(sub types.WebhookSubscription, exists bool) (types.WebhookSubscription, error) {
		if !exists {
			return sub, notFound(id)
		}
		if upd.URL != nil {
			sub.URL = *upd.URL
		}
		if upd.Secret != nil {
			sub.Secret = *upd.Secret
		}
		if upd.EventTypes != nil {
			sub.EventTypes = dedupe(upd.EventTypes)
		}
		if upd.Enabled != nil {
			sub.Enabled = *upd.Enabled
		}
		if err := utils.ValidateStruct(&sub); err != nil {
			return sub, err
		}
		sub.UpdatedAt = d.now()
		return sub, nil
	})
}

// Delete removes the subscription and cancels its scheduled retries.
func (d *Dispatcher) Delete(ctx context.Context, id string) error {
	if _, err := d.Subscription(ctx, id); err != nil {
		return err
	}
	if err := d.subs.Delete(ctx, subKey(id)); err != nil {
		return err
	}

	ids, err := d.queue.CancelSubscription(ctx, id)
	if err != nil {
		return err
	}
	// Deliveries whose first attempt is still in flight have no task yet.
	err = d.deliveries.Scan(ctx, deliveryPrefix, func(e storage.Entry[types.WebhookDelivery]) bool {
		if e.Value.SubscriptionID == id && !e.Value.Status.Terminal() {
			ids = append(ids, e.Value.ID)
		}
		return true
	})
	if err != nil {
		return err
	}

	for _, deliveryID := range dedupeStrings(ids) {
		if err := d.cancelDelivery(ctx, deliveryID); err != nil {
			return err
		}
	}
	d.log.Info("webhook deleted", map[string]any{"id": id, "cancelled": len(ids)})
	return nil
}

// List returns every subscription, oldest first.
func (d *Dispatcher) List(ctx context.Context) ([]types.WebhookSubscription, error) {
	subs, err := storage.Values(ctx, d.subs, "sub:")
	if err != nil {
		return nil, err
	}
	sort.Slice(subs, func(i, j int) bool {
		if subs[i].CreatedAt.Equal(subs[j].CreatedAt) {
			return subs[i].ID < subs[j].ID
		}
		return subs[i].CreatedAt.Before(subs[j].CreatedAt)
	})
	return subs, nil
}

func dedupe(in []types.EventType) []types.EventType {
	seen := make(map[types.EventType]bool, len(in))
	out := make([]types.EventType, 0, len(in))
	for _, e := range in {
		if !seen[e] {
			seen[e] = true
			out = append(out, e)
		}
	}
	return out
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
