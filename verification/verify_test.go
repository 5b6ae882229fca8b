package verification

import (
	"context"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitwit/payless/storage"
	"github.com/vitwit/payless/types"
	"github.com/vitwit/payless/utils"
)

func newTestService(t *testing.T, f *solanaFixture, opts ...ServiceOption) *Service {
	t.Helper()
	r := NewRegistry()
	r.Register(f.verifier)
	return NewService(r, opts...)
}

func TestService_Verify(t *testing.T) {
	f := newSolanaFixture(t)
	ledger := NewNonceLedger(storage.NewMemoryStore[time.Time](), 6*time.Minute, fixedClock)
	s := newTestService(t, f, WithLedger(ledger))
	ctx := context.Background()

	p := f.proof(t, "0.05", testNow)
	res, err := s.Verify(ctx, p, price)
	require.NoError(t, err)
	require.True(t, res.Valid, res.Reason())
	assert.True(t, decimal.RequireFromString("0.05").Equal(*res.Amount))

	res, err = s.Verify(ctx, p, price)
	require.NoError(t, err)
	require.False(t, res.Valid)
	assert.Equal(t, types.VerifyReplay, res.Kind())
}

func TestService_RejectedProofDoesNotConsumeNonce(t *testing.T) {
	f := newSolanaFixture(t)
	ledger := NewNonceLedger(storage.NewMemoryStore[time.Time](), 6*time.Minute, fixedClock)
	s := newTestService(t, f, WithLedger(ledger))

	low := f.proof(t, "0.01", testNow)
	res, err := s.Verify(context.Background(), low, price)
	require.NoError(t, err)
	assert.Equal(t, types.VerifyAmount, res.Kind())

	require.NoError(t, ledger.Consume(context.Background(), types.ChainSolana, low.Nonce))
}

func TestService_UnsupportedChain(t *testing.T) {
	s := newTestService(t, newSolanaFixture(t))

	res, err := s.Verify(context.Background(), &types.PaymentProof{Chain: "tron"}, price)
	require.NoError(t, err)
	assert.Equal(t, types.VerifyUnsupportedChain, res.Kind())

	res, err = s.Verify(context.Background(), nil, price)
	require.NoError(t, err)
	assert.Equal(t, types.VerifyMalformed, res.Kind())

	assert.True(t, s.IsChainSupported(types.ChainSolana))
	assert.False(t, s.IsChainSupported(types.ChainBSC))
	assert.Len(t, s.PaymentInfo(), 1)
}

type brokenStore struct {
	storage.Store[time.Time]
}

func (brokenStore) Get(context.Context, string) (storage.Entry[time.Time], error) {
	return storage.Entry[time.Time]{}, errors.New("disk on fire")
}

func TestService_LedgerFailureSurfaces(t *testing.T) {
	f := newSolanaFixture(t)
	ledger := NewNonceLedger(brokenStore{}, time.Minute, fixedClock)
	s := newTestService(t, f, WithLedger(ledger))

	res, err := s.Verify(context.Background(), f.proof(t, "0.05", testNow), price)
	require.Error(t, err)
	assert.False(t, res.Valid)
}

func TestService_ReencodedSignatureIsStillReplay(t *testing.T) {
	f := newEVMFixture(t)
	r := NewRegistry()
	r.Register(f.verifier)
	ledger := NewNonceLedger(storage.NewMemoryStore[time.Time](), 6*time.Minute, fixedClock)
	s := NewService(r, WithLedger(ledger))
	ctx := context.Background()

	p := f.proof(t, "0.05", testNow)
	res, err := s.Verify(ctx, p, price)
	require.NoError(t, err)
	require.True(t, res.Valid, res.Reason())

	raw, err := hex.DecodeString(strings.TrimPrefix(p.Signature, "0x"))
	require.NoError(t, err)
	if raw[64] >= 27 {
		raw[64] -= 27
	} else {
		raw[64] += 27
	}
	again := *p
	again.Signature = strings.ToUpper(hex.EncodeToString(raw))

	require.True(t, f.verifier.Verify(&again, price, f.recipient).Valid, "re-encoded signature still verifies")
	res, err = s.Verify(ctx, &again, price)
	require.NoError(t, err)
	require.False(t, res.Valid)
	assert.Equal(t, types.VerifyReplay, res.Kind())
}

func TestService_ProofWithoutNonceIsMalformed(t *testing.T) {
	f := newSolanaFixture(t)
	s := newTestService(t, f, WithLedger(NewNonceLedger(storage.NewMemoryStore[time.Time](), 6*time.Minute, fixedClock)))

	p := f.proof(t, "0.05", testNow)
	p.Nonce = ""
	f.sign(t, p, "USDC")
	header, err := utils.EncodePaymentProof(p)
	require.NoError(t, err)

	parsed, err := utils.ParsePaymentProof(header)
	require.NoError(t, err)
	require.Empty(t, parsed.Nonce)

	res, err := s.Verify(context.Background(), parsed, price)
	require.NoError(t, err)
	require.False(t, res.Valid)
	assert.Equal(t, types.VerifyMalformed, res.Kind())
}
