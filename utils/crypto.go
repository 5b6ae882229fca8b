package utils

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gagliardetto/solana-go"
)

// RecoverAddressFromSignature recovers the Ethereum address from a signature
func RecoverAddressFromSignature(hash []byte, signature string) (common.Address, error) {
	sigBytes, err := hex.DecodeString(strings.TrimPrefix(signature, "0x"))
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to decode signature: %w", err)
	}

	if len(sigBytes) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(sigBytes))
	}

	// Wallets emit v as 27/28; SigToPub wants the raw recovery id.
	if sigBytes[64] >= 27 {
		sigBytes[64] -= 27
	}

	pubKey, err := crypto.SigToPub(hash, sigBytes)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", err)
	}

	return crypto.PubkeyToAddress(*pubKey), nil
}

// PrivateKeyFromHex creates a private key from hex string
func PrivateKeyFromHex(hexKey string) (*ecdsa.PrivateKey, error) {
	return crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
}

// AddressFromPrivateKey derives the Ethereum address from a private key
func AddressFromPrivateKey(privateKey *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(privateKey.PublicKey)
}

// SignHash signs a hash and returns the 0x-hex signature with v in 27/28 form.
func SignHash(hash []byte, privateKey *ecdsa.PrivateKey) (string, error) {
	signature, err := crypto.Sign(hash, privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign hash: %w", err)
	}
	signature[64] += 27
	return hexutil.Encode(signature), nil
}

// ValidateAddress checks if a string is a valid Ethereum address
func ValidateAddress(address string) bool {
	return common.IsHexAddress(address)
}

// NormalizeAddress ensures an address is properly checksummed
func NormalizeAddress(address string) string {
	if !common.IsHexAddress(address) {
		return ""
	}
	return common.HexToAddress(address).Hex()
}

// SignPersonalMessage signs message with the personal_sign prefix.
func SignPersonalMessage(message string, privateKey *ecdsa.PrivateKey) (string, error) {
	return SignHash(accounts.TextHash([]byte(message)), privateKey)
}

// RecoverPersonalMessage returns the address that produced a personal_sign
// signature over message.
func RecoverPersonalMessage(message, signature string) (common.Address, error) {
	return RecoverAddressFromSignature(accounts.TextHash([]byte(message)), signature)
}

// VerifyPersonalMessage reports whether signature is a personal_sign
// signature over message by expectedAddress.
func VerifyPersonalMessage(message, signature string, expectedAddress common.Address) (bool, error) {
	recoveredAddr, err := RecoverPersonalMessage(message, signature)
	if err != nil {
		return false, err
	}
	return recoveredAddr == expectedAddress, nil
}

// SignSolanaMessage signs the raw message bytes with ed25519 and returns the
// base58 signature.
func SignSolanaMessage(message string, key solana.PrivateKey) (string, error) {
	sig, err := key.Sign([]byte(message))
	if err != nil {
		return "", fmt.Errorf("failed to sign message: %w", err)
	}
	return sig.String(), nil
}

// VerifySolanaMessage verifies a base58 ed25519 signature over the raw
// message bytes against a base58 public key.
func VerifySolanaMessage(message, signature, publicKey string) (bool, error) {
	pub, err := solana.PublicKeyFromBase58(publicKey)
	if err != nil {
		return false, fmt.Errorf("invalid public key: %w", err)
	}
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return false, fmt.Errorf("invalid signature encoding: %w", err)
	}
	return sig.Verify(pub, []byte(message)), nil
}

const paymentMessageHeader = "Payless Payment:"

var paymentMessageKeys = [...]string{"From", "To", "Amount", "Token", "Timestamp", "Nonce"}

// PaymentMessage builds the canonical text a wallet signs for a payment.
// Every field that the gate checks or records is part of the signed text.
func PaymentMessage(from, to, amount, token string, timestampMs int64, nonce string) string {
	return fmt.Sprintf("%s\nFrom: %s\nTo: %s\nAmount: %s\nToken: %s\nTimestamp: %d\nNonce: %s",
		paymentMessageHeader, from, to, amount, token, timestampMs, nonce)
}

// PaymentFields are the values committed to by a signed payment message.
type PaymentFields struct {
	From        string
	To          string
	Amount      string
	Token       string
	TimestampMs int64
	Nonce       string
}

// ParsePaymentMessage is the inverse of PaymentMessage. It rejects any text
// that does not have exactly the canonical layout.
func ParsePaymentMessage(message string) (PaymentFields, error) {
	lines := strings.Split(message, "\n")
	if len(lines) != len(paymentMessageKeys)+1 || lines[0] != paymentMessageHeader {
		return PaymentFields{}, fmt.Errorf("not a payment message")
	}

	values := make([]string, len(paymentMessageKeys))
	for i, key := range paymentMessageKeys {
		v, ok := strings.CutPrefix(lines[i+1], key+": ")
		if !ok {
			return PaymentFields{}, fmt.Errorf("payment message is missing %s", strings.ToLower(key))
		}
		values[i] = v
	}

	ts, err := strconv.ParseInt(values[4], 10, 64)
	if err != nil {
		return PaymentFields{}, fmt.Errorf("invalid payment message timestamp: %w", err)
	}
	return PaymentFields{
		From:        values[0],
		To:          values[1],
		Amount:      values[2],
		Token:       values[3],
		TimestampMs: ts,
		Nonce:       values[5],
	}, nil
}
