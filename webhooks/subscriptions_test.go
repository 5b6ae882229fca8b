package webhooks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitwit/payless/types"
)

func TestRegister_Validation(t *testing.T) {
	d := NewDispatcher()
	ctx := context.Background()

	tests := []struct {
		name string
		sub  types.WebhookSubscription
	}{
		{"missing url", types.WebhookSubscription{Secret: "s", EventTypes: []types.EventType{types.EventPaymentConfirmed}}},
		{"bad url", types.WebhookSubscription{URL: "not a url", Secret: "s", EventTypes: []types.EventType{types.EventPaymentConfirmed}}},
		{"missing secret", types.WebhookSubscription{URL: "https://example.com/hook", EventTypes: []types.EventType{types.EventPaymentConfirmed}}},
		{"no events", types.WebhookSubscription{URL: "https://example.com/hook", Secret: "s"}},
		{"unknown event", types.WebhookSubscription{URL: "https://example.com/hook", Secret: "s", EventTypes: []types.EventType{"payment.refunded"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Register(ctx, tt.sub)
			var perr *types.PaylessError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, types.ErrValidationFailed, perr.Code)
		})
	}

	subs, err := d.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestSubscriptionLifecycle(t *testing.T) {
	d := NewDispatcher()
	ctx := context.Background()

	sub, err := d.Register(ctx, types.WebhookSubscription{
		URL:        "https://merchant.example/hooks",
		Secret:     "whsec_1",
		EventTypes: []types.EventType{types.EventPaymentConfirmed, types.EventPaymentConfirmed, types.EventPaymentFailed},
		Enabled:    true,
	})
	require.NoError(t, err)
	require.NotEmpty(t, sub.ID)
	assert.Equal(t, []types.EventType{types.EventPaymentConfirmed, types.EventPaymentFailed}, sub.EventTypes)
	assert.False(t, sub.CreatedAt.IsZero())

	second, err := d.Register(ctx, types.WebhookSubscription{
		URL:        "https://other.example/hooks",
		Secret:     "whsec_2",
		EventTypes: []types.EventType{types.EventPaymentPending},
	})
	require.NoError(t, err)
	assert.NotEqual(t, sub.ID, second.ID)

	url := "https://merchant.example/v2/hooks"
	updated, err := d.Update(ctx, sub.ID, types.SubscriptionUpdate{URL: &url})
	require.NoError(t, err)
	assert.Equal(t, url, updated.URL)
	assert.Equal(t, "whsec_1", updated.Secret)

	bad := "::"
	_, err = d.Update(ctx, sub.ID, types.SubscriptionUpdate{URL: &bad})
	require.Error(t, err)
	got, err := d.Subscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, url, got.URL)

	subs, err := d.List(ctx)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, sub.ID, subs[0].ID)

	require.NoError(t, d.Delete(ctx, sub.ID))
	_, err = d.Subscription(ctx, sub.ID)
	var perr *types.PaylessError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, types.ErrNotFound, perr.Code)

	require.Error(t, d.Delete(ctx, sub.ID))
	_, err = d.Update(ctx, "missing", types.SubscriptionUpdate{})
	require.ErrorAs(t, err, &perr)
}
