package utils

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Well-known anvil/hardhat development key.
const testPrivateKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func TestPersonalMessageRoundTrip(t *testing.T) {
	key, err := PrivateKeyFromHex("0x" + testPrivateKey)
	require.NoError(t, err)
	addr := AddressFromPrivateKey(key)
	assert.Equal(t, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", addr.Hex())

	msg := PaymentMessage(addr.Hex(), "0x70997970C51812dc3A010C7d01b50e0d17dc79C8", "0.05", "USDT", 1700000000000, "n-1")
	sig, err := SignPersonalMessage(msg, key)
	require.NoError(t, err)
	assert.Len(t, sig, 2+crypto.SignatureLength*2)

	ok, err := VerifyPersonalMessage(msg, sig, addr)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPersonalMessage(msg+" ", sig, addr)
	require.NoError(t, err)
	assert.False(t, ok, "signature must not verify over a different message")
}

func TestRecoverAddressFromSignature_BadInput(t *testing.T) {
	_, err := RecoverAddressFromSignature(make([]byte, 32), "0xzz")
	require.Error(t, err)

	_, err = RecoverAddressFromSignature(make([]byte, 32), "0x1234")
	require.ErrorContains(t, err, "65 bytes")
}

func TestSolanaMessageRoundTrip(t *testing.T) {
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	other, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	msg := "Payless Payment:\nAmount: 0.05"
	sig, err := SignSolanaMessage(msg, key)
	require.NoError(t, err)

	ok, err := VerifySolanaMessage(msg, sig, key.PublicKey().String())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifySolanaMessage(msg, sig, other.PublicKey().String())
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = VerifySolanaMessage(msg, "not-base58!", key.PublicKey().String())
	require.Error(t, err)
}

func TestNormalizeAddress(t *testing.T) {
	assert.Equal(t, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
		NormalizeAddress("0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266"))
	assert.Empty(t, NormalizeAddress("nope"))
	assert.True(t, ValidateAddress("0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266"))
}

func TestParsePaymentMessage(t *testing.T) {
	msg := PaymentMessage("alice", "bob", "0.05", "USDC", 1700000000000, "n-1")
	got, err := ParsePaymentMessage(msg)
	require.NoError(t, err)
	assert.Equal(t, PaymentFields{
		From: "alice", To: "bob", Amount: "0.05", Token: "USDC", TimestampMs: 1700000000000, Nonce: "n-1",
	}, got)

	bad := []string{
		"",
		"m",
		"Payless Payment:\nFrom: alice\nTo: bob\nAmount: 0.05\nToken: USDC\nTimestamp: 1700000000000",
		msg + "\nExtra: 1",
		strings.Replace(msg, "Nonce: ", "Nonce:", 1),
		strings.Replace(msg, "1700000000000", "soon", 1),
	}
	for _, m := range bad {
		_, err := ParsePaymentMessage(m)
		assert.Error(t, err, "%q", m)
	}
}
