package verification

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/vitwit/payless/types"
	"github.com/vitwit/payless/utils"
)

// EVMVerifier recovers the signer of a personal_sign message and compares it
// with the payer. One instance serves one EVM network.
type EVMVerifier struct {
	*checker
}

var _ ChainVerifier = (*EVMVerifier)(nil)

func NewEVMVerifier(cfg types.ChainConfig, opts ...VerifierOption) *EVMVerifier {
	v := &EVMVerifier{checker: newChecker(cfg, opts)}
	v.checkChainID = v.chainID
	v.checkSignature = v.signature
	return v
}

func (v *EVMVerifier) Chain() types.Chain {
	return v.cfg.Chain
}

func (v *EVMVerifier) Config() types.ChainConfig {
	return v.cfg
}

func (v *EVMVerifier) Verify(proof *types.PaymentProof, expectedAmount decimal.Decimal, expectedRecipient string) types.VerificationResult {
	return v.verify(proof, expectedAmount, expectedRecipient)
}

func (v *EVMVerifier) chainID(proof *types.PaymentProof) *types.VerifyError {
	if proof.ChainID != v.cfg.Network {
		return types.NewVerifyError(types.VerifyChain, "invalid chain id %q, expected %q", proof.ChainID, v.cfg.Network)
	}
	return nil
}

func (v *EVMVerifier) signature(proof *types.PaymentProof) *types.VerifyError {
	recovered, err := utils.RecoverPersonalMessage(proof.Message, proof.Signature)
	if err != nil {
		return types.NewVerifyError(types.VerifySignature, "invalid signature: %v", err)
	}
	if !strings.EqualFold(recovered.Hex(), strings.TrimSpace(proof.From)) {
		return types.NewVerifyError(types.VerifySignature, "invalid signature: recovered %s", recovered.Hex())
	}
	return nil
}

// NewVerifier returns the verifier matching the chain family of cfg.
func NewVerifier(cfg types.ChainConfig, opts ...VerifierOption) (ChainVerifier, error) {
	switch cfg.Chain.Family() {
	case types.FamilySolana:
		return NewSolanaVerifier(cfg, opts...), nil
	case types.FamilyEVM:
		return NewEVMVerifier(cfg, opts...), nil
	default:
		return nil, types.NewError(types.ErrUnsupportedChain, "unsupported chain: %s", cfg.Chain)
	}
}
