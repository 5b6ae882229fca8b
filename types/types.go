package types

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ProtocolVersion is the version of the x402 flavour spoken by the gate.
const ProtocolVersion = 1

// HTTP headers used by the gates.
const (
	HeaderPayment          = "X-Payment"
	HeaderPaymentConfirmed = "X-Payment-Confirmed"
	HeaderPaymentChain     = "X-Payment-Chain"
	HeaderWalletAddress    = "X-Wallet-Address"
	HeaderTokenTier        = "X-Token-Tier"
	HeaderRateLimit        = "X-RateLimit-Limit"
	HeaderRateRemaining    = "X-RateLimit-Remaining"
	HeaderRateReset        = "X-RateLimit-Reset"
	HeaderRetryAfter       = "Retry-After"
)

// PaymentProof is a signed assertion of payment presented by a client in the
// X-Payment header.
type PaymentProof struct {
	// Chain the proof was produced for (e.g. "solana", "bsc").
	Chain Chain `json:"chain" validate:"required"`

	// ChainID is the network id the signer targeted. Required for EVM chains.
	ChainID string `json:"chainId,omitempty"`

	// From is the payer's address; the signature must verify to it.
	From string `json:"from" validate:"required"`

	// To is the recipient address.
	To string `json:"to" validate:"required"`

	// Amount paid as a decimal string in whole token units ("0.05").
	Amount string `json:"amount" validate:"required"`

	TokenSymbol string `json:"token,omitempty"`

	// TokenAddress is the token contract (EVM) or mint (Solana).
	TokenAddress string `json:"tokenMint,omitempty"`

	Nonce string `json:"nonce" validate:"required"`

	// TimestampMs is the unix time in milliseconds at which the proof was signed.
	TimestampMs int64 `json:"timestamp" validate:"required,gt=0"`

	// Message is the exact text that was signed.
	Message string `json:"message" validate:"required"`

	// Signature over Message, encoded per chain (base58 for Solana, 0x-hex for EVM).
	Signature string `json:"signature" validate:"required"`
}

// Timestamp returns the signing time of the proof.
func (p *PaymentProof) Timestamp() time.Time {
	return time.UnixMilli(p.TimestampMs)
}

// ChainPaymentInfo lists the payment requirements of one chain inside a 402
// challenge.
type ChainPaymentInfo struct {
	Chain     Chain    `json:"chain"`
	Recipient string   `json:"recipient"`
	Network   string   `json:"network"`
	Tokens    []string `json:"tokens"`
}

// PaymentRequirements is the payment section of a 402 challenge.
type PaymentRequirements struct {
	Amount      string             `json:"amount"`
	Currency    string             `json:"currency"`
	Facilitator string             `json:"facilitator"`
	Chains      []ChainPaymentInfo `json:"chains"`
}

// PaymentChallenge is the body returned with 402 when no payment header is
// present. It is chain agnostic: every supported chain is listed.
type PaymentChallenge struct {
	Status  int                 `json:"status"`
	Message string              `json:"message"`
	Payment PaymentRequirements `json:"payment"`
}

// VerifyErrorKind classifies why a proof was rejected.
type VerifyErrorKind string

const (
	VerifyMalformed        VerifyErrorKind = "malformed"
	VerifyRecipient        VerifyErrorKind = "recipient"
	VerifyToken            VerifyErrorKind = "token"
	VerifyAmount           VerifyErrorKind = "amount"
	VerifyExpired          VerifyErrorKind = "expired"
	VerifyChain            VerifyErrorKind = "chain"
	VerifySignature        VerifyErrorKind = "signature"
	VerifyUnsupportedChain VerifyErrorKind = "unsupported_chain"
	VerifyReplay           VerifyErrorKind = "replay"
)

// VerifyError is a typed verification failure. It is returned inside a
// VerificationResult, never as a Go error from Verify.
type VerifyError struct {
	Kind   VerifyErrorKind `json:"kind"`
	Reason string          `json:"reason"`
}

func (e *VerifyError) Error() string {
	return e.Reason
}

// NewVerifyError builds a VerifyError with a formatted reason.
func NewVerifyError(kind VerifyErrorKind, format string, args ...any) *VerifyError {
	return &VerifyError{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// VerificationResult contains the result of payment verification
type VerificationResult struct {
	Valid     bool             `json:"valid"`
	Error     *VerifyError     `json:"error,omitempty"`
	Chain     Chain            `json:"chain,omitempty"`
	Payer     string           `json:"payer,omitempty"`
	Recipient string           `json:"recipient,omitempty"`
	Amount    *decimal.Decimal `json:"amount,omitempty"`
	Token     string           `json:"token,omitempty"`
	Signature string           `json:"signature,omitempty"`
}

// ValidResult returns a successful result for proof.
func ValidResult(proof *PaymentProof, amount decimal.Decimal, token string) VerificationResult {
	return VerificationResult{
		Valid:     true,
		Chain:     proof.Chain,
		Payer:     proof.From,
		Recipient: proof.To,
		Amount:    &amount,
		Token:     token,
		Signature: proof.Signature,
	}
}

// InvalidResult returns a failed result carrying err.
func InvalidResult(proof *PaymentProof, err *VerifyError) VerificationResult {
	res := VerificationResult{Error: err}
	if proof != nil {
		res.Chain = proof.Chain
		res.Payer = proof.From
	}
	return res
}

// Reason returns the rejection reason or "" for valid results.
func (r VerificationResult) Reason() string {
	if r.Error == nil {
		return ""
	}
	return r.Error.Reason
}

// Kind returns the rejection class or "" for valid results.
func (r VerificationResult) Kind() VerifyErrorKind {
	if r.Error == nil {
		return ""
	}
	return r.Error.Kind
}

// PaylessError is returned for configuration, storage and CRUD failures.
type PaylessError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *PaylessError) Error() string {
	return e.Message
}

// NewError builds a PaylessError with a formatted message.
func NewError(code, format string, args ...any) *PaylessError {
	return &PaylessError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Common error codes
const (
	ErrInvalidPayload      = "INVALID_PAYLOAD"
	ErrInvalidConfig       = "INVALID_CONFIG"
	ErrUnsupportedChain    = "UNSUPPORTED_CHAIN"
	ErrNotFound            = "NOT_FOUND"
	ErrValidationFailed    = "VALIDATION_FAILED"
	ErrUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
)

// Codes carried by HTTP rejection bodies.
const (
	CodePaymentRequired           = "PAYMENT_REQUIRED"
	CodeInvalidPayment            = "INVALID_PAYMENT"
	CodePaymentMalformed          = "PAYMENT_MALFORMED"
	CodeUnsupportedChain          = "UNSUPPORTED_CHAIN"
	CodeEndpointNotConfigured     = "ENDPOINT_NOT_CONFIGURED"
	CodeWalletRequired            = "WALLET_REQUIRED"
	CodeRateLimitExceeded         = "RATE_LIMIT_EXCEEDED"
	CodeInsufficientTokenHoldings = "INSUFFICIENT_TOKEN_HOLDINGS"
	CodeInternalError             = "INTERNAL_ERROR"
	CodeBadRequest                = "BAD_REQUEST"
	CodeNotFound                  = "NOT_FOUND"
)

// ErrorBody is the JSON shape of every rejection response.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Reason  string `json:"reason,omitempty"`
}
