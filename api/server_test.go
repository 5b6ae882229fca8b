package api

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitwit/payless/analytics"
	"github.com/vitwit/payless/clients"
	"github.com/vitwit/payless/tiers"
	"github.com/vitwit/payless/types"
	"github.com/vitwit/payless/webhooks"
)

const holder = "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"

type fixture struct {
	handler    http.Handler
	dispatcher *webhooks.Dispatcher
	recorder   *analytics.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := types.DefaultConfig()

	client := clients.NewStaticClient(types.ChainSolana)
	client.SetBalance(holder, decimal.NewFromInt(250_000))
	svc, err := tiers.NewService(client, cfg.TokenGate)
	require.NoError(t, err)

	d := webhooks.NewDispatcher(webhooks.WithPollInterval(5 * time.Millisecond))
	d.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = d.Close(ctx)
	})

	s := &Server{
		Config:    cfg,
		Webhooks:  d,
		Analytics: analytics.NewRecorder(100),
		Tiers:     svc,
		Version:   "test",
	}
	return &fixture{handler: s.Handler(), dispatcher: d, recorder: s.Analytics}
}

func (f *fixture) do(t *testing.T, method, target string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)

	var out map[string]any
	if strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	}
	return rr, out
}

func TestHealthAndInfo(t *testing.T) {
	f := newFixture(t)

	rr, body := f.do(t, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "test", body["version"])

	rr, body = f.do(t, http.MethodGet, "/api/info", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	endpoints := body["endpoints"].([]any)
	assert.Len(t, endpoints, 10)
	first := endpoints[0].(map[string]any)
	assert.Equal(t, "/api/ai/chat", first["path"])
	assert.Equal(t, "$0.05 USDC/USDT", first["price"])
}

func TestWebhookRoutes(t *testing.T) {
	f := newFixture(t)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer hook.Close()

	rr, body := f.do(t, http.MethodPost, "/api/webhooks", map[string]any{
		"url":    hook.URL,
		"secret": "whsec_api",
		"events": []string{"payment.confirmed"},
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	id := body["webhookId"].(string)
	require.NotEmpty(t, id)
	assert.NotContains(t, rr.Body.String(), "whsec_api")

	rr, _ = f.do(t, http.MethodPost, "/api/webhooks", map[string]any{
		"url": hook.URL, "secret": "s", "events": []string{"payment.refunded"},
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr, body = f.do(t, http.MethodGet, "/api/webhooks", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.EqualValues(t, 1, body["total"])

	rr, body = f.do(t, http.MethodPatch, "/api/webhooks/"+id, map[string]any{"events": []string{"payment.failed", "payment.confirmed"}})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	events := body["webhook"].(map[string]any)["events"].([]any)
	assert.Len(t, events, 2)

	rr, body = f.do(t, http.MethodPost, "/api/webhooks/"+id+"/test", nil)
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	assert.Len(t, body["deliveryIds"], 1)

	require.Eventually(t, func() bool {
		dels, err := f.dispatcher.Deliveries(context.Background(), id)
		return err == nil && len(dels) == 1 && dels[0].Status == types.DeliverySuccess
	}, 3*time.Second, 5*time.Millisecond)

	rr, body = f.do(t, http.MethodGet, "/api/webhooks/deliveries?webhookId="+id, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.EqualValues(t, 1, body["total"])

	rr, _ = f.do(t, http.MethodGet, "/api/webhooks/deliveries?webhookId=other", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr, _ = f.do(t, http.MethodDelete, "/api/webhooks/"+id, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr, body = f.do(t, http.MethodDelete, "/api/webhooks/"+id, nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, types.CodeNotFound, body["code"])

	rr, _ = f.do(t, http.MethodPost, "/api/webhooks/missing/test", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestAnalyticsRoutes(t *testing.T) {
	f := newFixture(t)
	paid := decimal.RequireFromString("0.05")
	f.recorder.AddEvent(types.AnalyticsEvent{Endpoint: "/api/ai/chat", Status: 200, PaymentRequired: true, PaymentProvided: true, PaymentValid: true, Amount: &paid})
	f.recorder.AddEvent(types.AnalyticsEvent{Endpoint: "/api/ai/chat", Status: 402, PaymentRequired: true})
	f.recorder.AddEvent(types.AnalyticsEvent{Endpoint: "/api/health", Status: 200})

	rr, body := f.do(t, http.MethodGet, "/api/analytics?endpoint=/api/ai/chat", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	data := body["data"].(map[string]any)
	assert.EqualValues(t, 2, data["totalRequests"])
	assert.Equal(t, "0.05", data["totalRevenue"])

	rr, _ = f.do(t, http.MethodGet, "/api/analytics?status=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr, body = f.do(t, http.MethodPost, "/api/analytics/export", map[string]any{"format": "json", "filter": map[string]any{"status": 200}})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.EqualValues(t, 2, body["count"])

	rr, _ = f.do(t, http.MethodPost, "/api/analytics/export", map[string]any{"format": "csv"})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/csv", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "attachment")
	rows, err := csv.NewReader(rr.Body).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 4)

	rr, _ = f.do(t, http.MethodPost, "/api/analytics/export", map[string]any{"format": "xml"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestTokenTierRoute(t *testing.T) {
	f := newFixture(t)

	rr, body := f.do(t, http.MethodGet, "/api/token-tier?wallet="+holder, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "basic", body["tier"])
	balance := body["balance"].(map[string]any)
	assert.Equal(t, "250,000", balance["formatted"])
	assert.Equal(t, "0.0250%", balance["percentage"])
	next := body["nextTier"].(map[string]any)
	assert.Equal(t, "pro", next["tier"])
	assert.Equal(t, "250,000", next["formatted"])
	rate := body["rateLimit"].(map[string]any)
	assert.Equal(t, "100 requests/hour", rate["limit"])
	all := body["allTiers"].(map[string]any)
	assert.Equal(t, "1,000,000", all["enterprise"].(map[string]any)["requirement"])

	rr, _ = f.do(t, http.MethodGet, "/api/token-tier", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr, _ = f.do(t, http.MethodGet, "/api/token-tier?wallet=0Oil", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
