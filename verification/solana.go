package verification

import (
	"github.com/shopspring/decimal"
	"github.com/vitwit/payless/types"
	"github.com/vitwit/payless/utils"
)

// SolanaVerifier checks raw ed25519 signatures over the message bytes, with
// no message prefix.
type SolanaVerifier struct {
	*checker
}

var _ ChainVerifier = (*SolanaVerifier)(nil)

func NewSolanaVerifier(cfg types.ChainConfig, opts ...VerifierOption) *SolanaVerifier {
	v := &SolanaVerifier{checker: newChecker(cfg, opts)}
	v.checkChainID = v.chainID
	v.checkSignature = v.signature
	return v
}

func (v *SolanaVerifier) Chain() types.Chain {
	return v.cfg.Chain
}

func (v *SolanaVerifier) Config() types.ChainConfig {
	return v.cfg
}

func (v *SolanaVerifier) Verify(proof *types.PaymentProof, expectedAmount decimal.Decimal, expectedRecipient string) types.VerificationResult {
	return v.verify(proof, expectedAmount, expectedRecipient)
}

// chainID is optional for Solana; when present it must name the cluster.
func (v *SolanaVerifier) chainID(proof *types.PaymentProof) *types.VerifyError {
	if proof.ChainID != "" && proof.ChainID != v.cfg.Network {
		return types.NewVerifyError(types.VerifyChain, "invalid chain id %q, expected %q", proof.ChainID, v.cfg.Network)
	}
	return nil
}

func (v *SolanaVerifier) signature(proof *types.PaymentProof) *types.VerifyError {
	ok, err := utils.VerifySolanaMessage(proof.Message, proof.Signature, proof.From)
	if err != nil {
		return types.NewVerifyError(types.VerifySignature, "invalid signature: %v", err)
	}
	if !ok {
		return types.NewVerifyError(types.VerifySignature, "invalid signature")
	}
	return nil
}
