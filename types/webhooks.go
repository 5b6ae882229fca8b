package types

import (
	"encoding/json"
	"time"
)

// EventType names a payment lifecycle event delivered to webhook subscribers.
type EventType string

const (
	EventPaymentConfirmed EventType = "payment.confirmed"
	EventPaymentPending   EventType = "payment.pending"
	EventPaymentFailed    EventType = "payment.failed"
)

// EventTypes is the set of events a subscription may ask for.
var EventTypes = []EventType{EventPaymentConfirmed, EventPaymentPending, EventPaymentFailed}

// Valid reports whether e is a known event type.
func (e EventType) Valid() bool {
	for _, k := range EventTypes {
		if k == e {
			return true
		}
	}
	return false
}

// Webhook delivery headers.
const (
	HeaderSignature = "X-Signature"
	HeaderEventID   = "X-Event-Id"
	HeaderEventType = "X-Event-Type"
)

// WebhookSubscription registers a subscriber URL for a set of event types.
type WebhookSubscription struct {
	ID         string      `json:"id"`
	URL        string      `json:"url" validate:"required,http_url"`
	Secret     string      `json:"-" validate:"required"`
	EventTypes []EventType `json:"events" validate:"required,min=1,dive,oneof=payment.confirmed payment.pending payment.failed"`
	Enabled    bool        `json:"enabled"`
	CreatedAt  time.Time   `json:"createdAt"`
	UpdatedAt  time.Time   `json:"updatedAt"`
}

// Subscribes reports whether the subscription wants events of type t.
func (s *WebhookSubscription) Subscribes(t EventType) bool {
	for _, e := range s.EventTypes {
		if e == t {
			return true
		}
	}
	return false
}

// SubscriptionUpdate is a partial update; nil fields are left unchanged.
type SubscriptionUpdate struct {
	URL        *string     `json:"url,omitempty"`
	Secret     *string     `json:"secret,omitempty"`
	EventTypes []EventType `json:"events,omitempty"`
	Enabled    *bool       `json:"enabled,omitempty"`
}

// WebhookEvent is the JSON body POSTed to subscribers.
type WebhookEvent struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// PaymentEventData is the data section of payment events.
type PaymentEventData struct {
	PaymentID string `json:"paymentId"`
	Signature string `json:"signature"`
	Chain     Chain  `json:"chain"`
	From      string `json:"from"`
	To        string `json:"to"`
	Amount    string `json:"amount"`
	Token     string `json:"token"`
	Endpoint  string `json:"endpoint"`
	Timestamp int64  `json:"timestamp"`
	Status    string `json:"status"`
	Method    string `json:"method,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
}

// DeliveryStatus is the lifecycle state of a webhook delivery.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliverySuccess   DeliveryStatus = "success"
	DeliveryFailed    DeliveryStatus = "failed"
	DeliveryCancelled DeliveryStatus = "cancelled"
)

// Terminal reports whether no further attempts will be made.
func (s DeliveryStatus) Terminal() bool {
	return s == DeliverySuccess || s == DeliveryFailed || s == DeliveryCancelled
}

// DefaultMaxAttempts bounds webhook delivery attempts.
const DefaultMaxAttempts = 3

// DeliveryAttempt records one POST to a subscriber.
type DeliveryAttempt struct {
	Number      int       `json:"attemptNumber"`
	AttemptedAt time.Time `json:"attemptedAt"`
	StatusCode  int       `json:"statusCode,omitempty"`
	Error       string    `json:"error,omitempty"`
	DurationMs  int64     `json:"durationMs"`
}

// WebhookDelivery tracks the delivery of one event to one subscription.
type WebhookDelivery struct {
	ID             string            `json:"id"`
	SubscriptionID string            `json:"subscriptionId"`
	EventID        string            `json:"eventId"`
	EventType      EventType         `json:"eventType"`
	URL            string            `json:"url"`
	Status         DeliveryStatus    `json:"status"`
	AttemptNumber  int               `json:"attemptNumber"`
	MaxAttempts    int               `json:"maxAttempts"`
	LastAttemptAt  time.Time         `json:"lastAttemptAt"`
	NextRetryAt    *time.Time        `json:"nextRetryAt,omitempty"`
	Attempts       []DeliveryAttempt `json:"attempts"`
	CreatedAt      time.Time         `json:"createdAt"`
}
