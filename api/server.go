// Package api serves the admin HTTP surface: webhook management, analytics
// queries and exports, token tier lookups, health and service info.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/vitwit/payless/analytics"
	"github.com/vitwit/payless/logger"
	"github.com/vitwit/payless/middleware"
	"github.com/vitwit/payless/tiers"
	"github.com/vitwit/payless/types"
	"github.com/vitwit/payless/webhooks"
)

const maxBodyBytes = 1 << 20

// Server holds the services behind the admin routes. Nil services leave
// their routes unregistered.
type Server struct {
	Config    *types.Config
	Webhooks  *webhooks.Dispatcher
	Analytics *analytics.Recorder
	Tiers     *tiers.Service
	Version   string
	Log       logger.Logger
	Now       func() time.Time
}

// Register adds the admin routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	if s.Log == nil {
		s.Log = logger.NoopLogger{}
	}
	if s.Now == nil {
		s.Now = time.Now
	}

	mux.HandleFunc("GET /api/health", s.health)
	mux.HandleFunc("GET /api/info", s.info)

	if s.Webhooks != nil {
		mux.HandleFunc("GET /api/webhooks", s.listWebhooks)
		mux.HandleFunc("POST /api/webhooks", s.createWebhook)
		mux.HandleFunc("GET /api/webhooks/deliveries", s.deliveries)
		mux.HandleFunc("GET /api/webhooks/{id}", s.getWebhook)
		mux.HandleFunc("PATCH /api/webhooks/{id}", s.updateWebhook)
		mux.HandleFunc("DELETE /api/webhooks/{id}", s.deleteWebhook)
		mux.HandleFunc("POST /api/webhooks/{id}/test", s.testWebhook)
	}
	if s.Analytics != nil {
		mux.HandleFunc("GET /api/analytics", s.getAnalytics)
		mux.HandleFunc("POST /api/analytics/export", s.exportAnalytics)
	}
	if s.Tiers != nil {
		mux.HandleFunc("GET /api/token-tier", s.tokenTier)
	}
}

// Handler returns a mux serving only the admin routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return mux
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return types.NewError(types.ErrInvalidPayload, "invalid request body: %v", err)
	}
	return nil
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	var perr *types.PaylessError
	if !errors.As(err, &perr) {
		s.Log.Error("admin request failed", map[string]any{"error": err})
		middleware.WriteError(w, http.StatusInternalServerError, types.CodeInternalError, "internal server error", "")
		return
	}

	status, code := http.StatusInternalServerError, types.CodeInternalError
	switch perr.Code {
	case types.ErrValidationFailed, types.ErrInvalidPayload, types.ErrInvalidConfig:
		status, code = http.StatusBadRequest, types.CodeBadRequest
	case types.ErrNotFound:
		status, code = http.StatusNotFound, types.CodeNotFound
	case types.ErrUpstreamUnavailable:
		status = http.StatusBadGateway
	}
	middleware.WriteError(w, status, code, perr.Message, "")
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": s.Now().UTC().Format(time.RFC3339),
		"version":   s.Version,
	})
}

type endpointInfo struct {
	Path   string `json:"path"`
	Price  string `json:"price"`
	Method string `json:"method"`
}

func (s *Server) info(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{
		"name":        "Payless API",
		"description": "Pay-per-request API gateway using the x402 protocol",
		"version":     s.Version,
	}
	if s.Config != nil {
		endpoints := make([]endpointInfo, 0, len(s.Config.Pricing))
		for _, path := range sortedKeys(s.Config.Pricing) {
			endpoints = append(endpoints, endpointInfo{
				Path:   path,
				Price:  "$" + s.Config.Pricing[path] + " " + s.Config.Currency,
				Method: "GET/POST",
			})
		}
		chains := make([]types.ChainPaymentInfo, 0, len(s.Config.Chains))
		for _, c := range s.Config.Chains {
			chains = append(chains, types.ChainPaymentInfo{
				Chain:     c.Chain,
				Recipient: c.Recipient,
				Network:   c.Network,
				Tokens:    c.TokenSymbols(),
			})
		}
		body["payment"] = map[string]any{
			"protocol":    "x402",
			"currency":    s.Config.Currency,
			"facilitator": s.Config.FacilitatorURL,
			"chains":      chains,
		}
		body["endpoints"] = endpoints
		body["freeEndpoints"] = s.Config.FreeEndpoints
	}
	middleware.WriteJSON(w, http.StatusOK, body)
}
