package api

import (
	"net/http"

	"github.com/vitwit/payless/middleware"
	"github.com/vitwit/payless/types"
)

type createWebhookRequest struct {
	URL     string            `json:"url"`
	Secret  string            `json:"secret"`
	Events  []types.EventType `json:"events"`
	Enabled *bool             `json:"enabled"`
}

func (s *Server) listWebhooks(w http.ResponseWriter, r *http.Request) {
	subs, err := s.Webhooks.List(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"webhooks": subs,
		"total":    len(subs),
	})
}

func (s *Server) createWebhook(w http.ResponseWriter, r *http.Request) {
	var req createWebhookRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, err)
		return
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	sub, err := s.Webhooks.Register(r.Context(), types.WebhookSubscription{
		URL:        req.URL,
		Secret:     req.Secret,
		EventTypes: req.Events,
		Enabled:    enabled,
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, map[string]any{
		"success":   true,
		"webhookId": sub.ID,
		"webhook":   sub,
		"message":   "Webhook registered successfully",
	})
}

func (s *Server) getWebhook(w http.ResponseWriter, r *http.Request) {
	sub, err := s.Webhooks.Subscription(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "webhook": sub})
}

func (s *Server) updateWebhook(w http.ResponseWriter, r *http.Request) {
	var upd types.SubscriptionUpdate
	if err := decodeBody(w, r, &upd); err != nil {
		s.fail(w, err)
		return
	}
	sub, err := s.Webhooks.Update(r.Context(), r.PathValue("id"), upd)
	if err != nil {
		s.fail(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"webhook": sub,
		"message": "Webhook updated successfully",
	})
}

func (s *Server) deleteWebhook(w http.ResponseWriter, r *http.Request) {
	if err := s.Webhooks.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.fail(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Webhook deleted successfully",
	})
}

// testWebhook queues a sample delivery and returns without waiting for it.
func (s *Server) testWebhook(w http.ResponseWriter, r *http.Request) {
	batch, data, err := s.Webhooks.SendTest(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusAccepted, map[string]any{
		"success":     true,
		"message":     "Test webhook queued",
		"eventId":     batch.EventID,
		"deliveryIds": batch.DeliveryIDs(),
		"testData":    data,
	})
}

func (s *Server) deliveries(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("webhookId")
	dels, err := s.Webhooks.Deliveries(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"deliveries": dels,
		"total":      len(dels),
	})
}
