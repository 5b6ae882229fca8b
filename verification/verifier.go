// Package verification checks signed payment proofs against the price and
// recipient configured for each chain.
package verification

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vitwit/payless/types"
	"github.com/vitwit/payless/utils"
)

// ChainVerifier validates payment proofs for a single chain. Verify has no
// side effects: calling it twice on the same proof at the same instant
// yields the same result.
type ChainVerifier interface {
	Chain() types.Chain
	Config() types.ChainConfig
	Verify(proof *types.PaymentProof, expectedAmount decimal.Decimal, expectedRecipient string) types.VerificationResult
}

// VerifierOption configures a chain verifier.
type VerifierOption func(*checker)

// WithClock overrides the time source used for freshness checks.
func WithClock(now func() time.Time) VerifierOption {
	return func(c *checker) {
		c.now = now
	}
}

// WithFreshness sets the maximum proof age and the tolerated future skew.
func WithFreshness(window, skew time.Duration) VerifierOption {
	return func(c *checker) {
		if window > 0 {
			c.window = window
		}
		if skew >= 0 {
			c.skew = skew
		}
	}
}

// checker holds the chain-independent part of verification. The signature
// scheme is supplied by the concrete verifier.
type checker struct {
	cfg    types.ChainConfig
	now    func() time.Time
	window time.Duration
	skew   time.Duration

	checkChainID   func(proof *types.PaymentProof) *types.VerifyError
	checkSignature func(proof *types.PaymentProof) *types.VerifyError
}

func newChecker(cfg types.ChainConfig, opts []VerifierOption) *checker {
	c := &checker{
		cfg:    cfg,
		now:    time.Now,
		window: types.DefaultFreshnessWindow,
		skew:   types.DefaultClockSkew,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// verify runs the checks in order and stops at the first failure.
// Freshness runs before field validation so a stale proof is reported as
// expired whatever else is wrong with it.
func (c *checker) verify(proof *types.PaymentProof, expectedAmount decimal.Decimal, expectedRecipient string) types.VerificationResult {
	if proof == nil {
		return types.InvalidResult(nil, types.NewVerifyError(types.VerifyMalformed, "missing payment proof"))
	}
	if proof.TimestampMs <= 0 {
		return types.InvalidResult(proof, types.NewVerifyError(types.VerifyMalformed, "missing payment timestamp"))
	}
	if err := c.checkFreshness(proof); err != nil {
		return types.InvalidResult(proof, err)
	}

	if err := utils.ValidateStruct(proof); err != nil {
		return types.InvalidResult(proof, types.NewVerifyError(types.VerifyMalformed, "%s", err.Error()))
	}
	if proof.Chain != c.cfg.Chain {
		return types.InvalidResult(proof, types.NewVerifyError(types.VerifyChain,
			"proof is for chain %s, verifier handles %s", proof.Chain, c.cfg.Chain))
	}

	if expectedRecipient == "" || !utils.SameAddress(c.cfg.Chain, proof.To, expectedRecipient) {
		return types.InvalidResult(proof, types.NewVerifyError(types.VerifyRecipient, "invalid recipient address"))
	}

	token, verr := c.resolveToken(proof)
	if verr != nil {
		return types.InvalidResult(proof, verr)
	}

	paid, verr := c.checkAmount(proof, token, expectedAmount)
	if verr != nil {
		return types.InvalidResult(proof, verr)
	}

	if err := c.checkMessage(proof, token); err != nil {
		return types.InvalidResult(proof, err)
	}
	if err := c.checkChainID(proof); err != nil {
		return types.InvalidResult(proof, err)
	}
	if err := c.checkSignature(proof); err != nil {
		return types.InvalidResult(proof, err)
	}

	return types.ValidResult(proof, paid, token.Symbol)
}

func (c *checker) checkFreshness(proof *types.PaymentProof) *types.VerifyError {
	now := c.now()
	ts := proof.Timestamp()
	if now.Sub(ts) > c.window {
		return types.NewVerifyError(types.VerifyExpired, "payment expired: signed %s ago, window is %s",
			now.Sub(ts).Truncate(time.Second), c.window)
	}
	if ts.Sub(now) > c.skew {
		return types.NewVerifyError(types.VerifyExpired, "payment timestamp is %s in the future",
			ts.Sub(now).Truncate(time.Second))
	}
	return nil
}

func (c *checker) resolveToken(proof *types.PaymentProof) (types.TokenInfo, *types.VerifyError) {
	if proof.TokenSymbol == "" && proof.TokenAddress == "" {
		return types.TokenInfo{}, types.NewVerifyError(types.VerifyToken, "no payment token specified")
	}
	token, ok := c.cfg.FindToken(proof.TokenSymbol, proof.TokenAddress)
	if !ok {
		name := proof.TokenAddress
		if name == "" {
			name = proof.TokenSymbol
		}
		return types.TokenInfo{}, types.NewVerifyError(types.VerifyToken, "token %s is not accepted on %s", name, c.cfg.Chain)
	}
	// When both are given they must name the same token.
	if proof.TokenSymbol != "" && proof.TokenAddress != "" {
		if bySymbol, ok := c.cfg.FindToken(proof.TokenSymbol, ""); !ok || bySymbol.Address != token.Address {
			return types.TokenInfo{}, types.NewVerifyError(types.VerifyToken, "token symbol %s does not match address %s",
				proof.TokenSymbol, proof.TokenAddress)
		}
	}
	return token, nil
}

func (c *checker) checkAmount(proof *types.PaymentProof, token types.TokenInfo, expected decimal.Decimal) (decimal.Decimal, *types.VerifyError) {
	paid, err := utils.ValidateAmount(proof.Amount)
	if err != nil {
		return decimal.Zero, types.NewVerifyError(types.VerifyMalformed, "%s", err.Error())
	}
	if paid.LessThan(expected) {
		return decimal.Zero, types.NewVerifyError(types.VerifyAmount, "insufficient payment amount: got %s, need %s",
			paid.String(), expected.String())
	}
	if _, err := utils.ScaleAmount(*paid, token.Decimals); err != nil {
		return decimal.Zero, types.NewVerifyError(types.VerifyMalformed, "%s", err.Error())
	}
	return *paid, nil
}

// checkMessage requires the signed text to commit to the proof's own fields,
// nonce and timestamp included.
func (c *checker) checkMessage(proof *types.PaymentProof, token types.TokenInfo) *types.VerifyError {
	signed, err := utils.ParsePaymentMessage(proof.Message)
	if err != nil {
		return types.NewVerifyError(types.VerifySignature, "invalid signed message: %s", err.Error())
	}

	chain := c.cfg.Chain
	var field string
	switch {
	case !utils.SameAddress(chain, signed.From, proof.From):
		field = "from"
	case !utils.SameAddress(chain, signed.To, proof.To):
		field = "to"
	case signed.Amount != proof.Amount:
		field = "amount"
	case !sameToken(chain, signed.Token, token):
		field = "token"
	case signed.TimestampMs != proof.TimestampMs:
		field = "timestamp"
	case signed.Nonce != proof.Nonce:
		field = "nonce"
	default:
		return nil
	}
	return types.NewVerifyError(types.VerifySignature, "signed message does not match payment %s", field)
}

// sameToken accepts a token named in the signed text by symbol or address.
func sameToken(chain types.Chain, name string, token types.TokenInfo) bool {
	if strings.EqualFold(name, token.Symbol) {
		return true
	}
	return token.Address != "" && utils.SameAddress(chain, name, token.Address)
}
