package payless

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitwit/payless/clients"
	"github.com/vitwit/payless/metrics"
	"github.com/vitwit/payless/types"
	"github.com/vitwit/payless/utils"
	"github.com/vitwit/payless/webhooks"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func newTestPayless(t *testing.T, recipient string, opts ...Option) (*Payless, *clients.StaticClient) {
	t.Helper()
	cfg := types.DefaultConfig()
	cfg.Chains[0].Recipient = recipient
	cfg.Webhooks.BaseBackoff = 10 * time.Millisecond
	cfg.Webhooks.PollInterval = 5 * time.Millisecond

	balances := clients.NewStaticClient(types.ChainSolana)
	opts = append([]Option{WithBalanceClient(balances), WithClock(fixedClock)}, opts...)
	p, err := New(context.Background(), cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close(context.Background()) })
	return p, balances
}

func signedHeader(t *testing.T, payer solana.PrivateKey, to, amount, nonce string) string {
	t.Helper()
	proof := &types.PaymentProof{
		Chain:        types.ChainSolana,
		From:         payer.PublicKey().String(),
		To:           to,
		Amount:       amount,
		TokenAddress: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
		Nonce:        nonce,
		TimestampMs:  testNow.UnixMilli(),
	}
	proof.Message = utils.PaymentMessage(proof.From, proof.To, proof.Amount, "USDC", proof.TimestampMs, proof.Nonce)
	sig, err := utils.SignSolanaMessage(proof.Message, payer)
	require.NoError(t, err)
	proof.Signature = sig

	header, err := utils.EncodePaymentProof(proof)
	require.NoError(t, err)
	return header
}

func TestNewWithDefaults(t *testing.T) {
	p, err := New(context.Background(), nil, WithBalanceClient(clients.NewStaticClient(types.ChainSolana)))
	require.NoError(t, err)
	defer p.Close(context.Background())

	var chains []types.Chain
	for _, info := range p.Supported() {
		chains = append(chains, info.Chain)
	}
	assert.Equal(t, []types.Chain{types.ChainSolana, types.ChainBSC, types.ChainEthereum, types.ChainPolygon}, chains)
	assert.True(t, p.IsChainSupported(types.ChainPolygon))
	assert.False(t, p.IsChainSupported(types.Chain("cosmos")))
	assert.Equal(t, types.DefaultAnalyticsCapacity, p.Analytics().Capacity())
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := types.DefaultConfig()
	cfg.Pricing["/api/broken"] = "free"

	_, err := New(context.Background(), cfg, WithBalanceClient(clients.NewStaticClient(types.ChainSolana)))
	require.Error(t, err)
	var perr *types.PaylessError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, types.ErrInvalidConfig, perr.Code)
}

func TestVerifyUnknownPath(t *testing.T) {
	p, _ := newTestPayless(t, solana.NewWallet().PublicKey().String())

	_, err := p.Verify(context.Background(), &types.PaymentProof{}, "/api/unpriced")
	assert.True(t, IsNotFound(err))
}

func TestPaidRequestEndToEnd(t *testing.T) {
	recipient := solana.NewWallet().PublicKey().String()
	rec := metrics.NewMemoryRecorder()
	p, _ := newTestPayless(t, recipient, WithMetrics(rec))
	p.Start()

	received := make(chan types.WebhookEvent, 1)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if !webhooks.VerifySignature(body, r.Header.Get(types.HeaderSignature), "s3cret") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var ev types.WebhookEvent
		_ = json.Unmarshal(body, &ev)
		received <- ev
	}))
	defer hook.Close()

	_, err := p.Webhooks().Register(context.Background(), types.WebhookSubscription{
		URL:        hook.URL,
		Secret:     "s3cret",
		EventTypes: []types.EventType{types.EventPaymentConfirmed},
		Enabled:    true,
	})
	require.NoError(t, err)

	mux := http.NewServeMux()
	p.Mount(mux, "test", map[string]http.Handler{
		"/api/ai/chat": http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"reply":"hi"}`))
		}),
	})

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/ai/chat", nil))
	assert.Equal(t, http.StatusPaymentRequired, w.Code)

	payer, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/ai/chat", nil)
	header := signedHeader(t, payer, recipient, "0.05", "n-1")
	req.Header.Set(types.HeaderPayment, header)
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(types.HeaderPaymentConfirmed))
	assert.Equal(t, "solana", w.Header().Get(types.HeaderPaymentChain))

	select {
	case ev := <-received:
		assert.Equal(t, types.EventPaymentConfirmed, ev.Type)
		var data types.PaymentEventData
		require.NoError(t, json.Unmarshal(ev.Data, &data))
		assert.Equal(t, "/api/ai/chat", data.Endpoint)
		assert.Equal(t, payer.PublicKey().String(), data.From)
	case <-time.After(5 * time.Second):
		t.Fatal("payment.confirmed webhook not delivered")
	}

	m := p.Analytics().GetMetrics(types.AnalyticsFilter{})
	assert.Equal(t, 2, m.TotalRequests)
	assert.Equal(t, 1, m.PaymentsValid)
	assert.True(t, decimal.RequireFromString("0.05").Equal(m.TotalRevenue))
	assert.Equal(t, 2, rec.Total(metrics.GateRequests))
	assert.Equal(t, 1, rec.Count(metrics.PaymentVerifications, map[string]string{
		metrics.LabelChain: "solana", metrics.LabelOutcome: "valid",
	}))

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestTokenGateFromConfig(t *testing.T) {
	p, balances := newTestPayless(t, solana.NewWallet().PublicKey().String())
	wallet := solana.NewWallet().PublicKey().String()
	balances.SetBalance(wallet, decimal.NewFromInt(600_000))

	h := p.TokenGate().Pro(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/premium/tools", nil)
	req.Header.Set(types.HeaderWalletAddress, wallet)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "pro", rec.Header().Get(types.HeaderTokenTier))
	assert.Equal(t, "500", rec.Header().Get(types.HeaderRateLimit))
}

func TestCloseIsIdempotent(t *testing.T) {
	p, err := New(context.Background(), nil, WithBalanceClient(clients.NewStaticClient(types.ChainSolana)))
	require.NoError(t, err)

	require.NoError(t, p.Close(context.Background()))
	require.NoError(t, p.Close(context.Background()))
	p.Start()
}
