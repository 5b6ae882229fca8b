package verification

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vitwit/payless/logger"
	"github.com/vitwit/payless/metrics"
	"github.com/vitwit/payless/types"
)

// Service dispatches proofs to the verifier registered for their chain and
// enforces single use of each nonce.
type Service struct {
	registry *Registry
	ledger   *NonceLedger
	log      logger.Logger
	metrics  metrics.Recorder
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLedger enables replay protection.
func WithLedger(l *NonceLedger) ServiceOption {
	return func(s *Service) {
		s.ledger = l
	}
}

func WithLogger(l logger.Logger) ServiceOption {
	return func(s *Service) {
		s.log = l
	}
}

func WithMetrics(r metrics.Recorder) ServiceOption {
	return func(s *Service) {
		s.metrics = r
	}
}

// NewService creates a new verification service
func NewService(registry *Registry, opts ...ServiceOption) *Service {
	s := &Service{
		registry: registry,
		log:      logger.NoopLogger{},
		metrics:  metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegistryFromConfig builds a verifier for every configured chain.
func RegistryFromConfig(chains []types.ChainConfig, opts ...VerifierOption) (*Registry, error) {
	r := NewRegistry()
	for _, cfg := range chains {
		v, err := NewVerifier(cfg, opts...)
		if err != nil {
			return nil, err
		}
		r.Register(v)
	}
	return r, nil
}

// Verify checks proof against expectedAmount and the recipient configured for
// its chain, then consumes its nonce. Rejections are reported in the result;
// the error is reserved for ledger failures.
func (s *Service) Verify(ctx context.Context, proof *types.PaymentProof, expectedAmount decimal.Decimal) (types.VerificationResult, error) {
	start := time.Now()
	res, err := s.verify(ctx, proof, expectedAmount)

	labels := map[string]string{metrics.LabelChain: string(res.Chain), metrics.LabelOutcome: outcome(res, err)}
	s.metrics.IncCounter(metrics.PaymentVerifications, labels)
	s.metrics.ObserveLatency(metrics.VerifyLatency, time.Since(start), labels)

	switch {
	case err != nil:
		s.log.Error("nonce ledger failure", map[string]any{"chain": res.Chain, "error": err.Error()})
	case !res.Valid:
		s.log.Debug("payment rejected", map[string]any{
			"chain":  res.Chain,
			"payer":  res.Payer,
			"kind":   res.Kind(),
			"reason": res.Reason(),
		})
	default:
		s.log.Info("payment verified", map[string]any{
			"chain":  res.Chain,
			"payer":  res.Payer,
			"amount": res.Amount.String(),
			"token":  res.Token,
		})
	}
	return res, err
}

func (s *Service) verify(ctx context.Context, proof *types.PaymentProof, expectedAmount decimal.Decimal) (types.VerificationResult, error) {
	if proof == nil {
		return types.InvalidResult(nil, types.NewVerifyError(types.VerifyMalformed, "missing payment proof")), nil
	}

	v, ok := s.registry.Get(proof.Chain)
	if !ok {
		return types.InvalidResult(proof, types.NewVerifyError(types.VerifyUnsupportedChain,
			"unsupported chain: %s", proof.Chain)), nil
	}

	res := v.Verify(proof, expectedAmount, v.Config().Recipient)
	if !res.Valid || s.ledger == nil {
		return res, nil
	}

	if err := s.ledger.Consume(ctx, proof.Chain, proof.Nonce); err != nil {
		if errors.Is(err, ErrReplay) {
			return types.InvalidResult(proof, types.NewVerifyError(types.VerifyReplay, "payment nonce already used")), nil
		}
		return types.InvalidResult(proof, types.NewVerifyError(types.VerifyReplay, "nonce ledger unavailable")), err
	}
	return res, nil
}

func outcome(res types.VerificationResult, err error) string {
	switch {
	case err != nil:
		return "error"
	case res.Valid:
		return "valid"
	default:
		return string(res.Kind())
	}
}

// Registry returns the verifier registry.
func (s *Service) Registry() *Registry {
	return s.registry
}

// IsChainSupported checks if a chain has a registered verifier
func (s *Service) IsChainSupported(chain types.Chain) bool {
	_, ok := s.registry.Get(chain)
	return ok
}

// PaymentInfo lists the payment requirements of every supported chain.
func (s *Service) PaymentInfo() []types.ChainPaymentInfo {
	return s.registry.PaymentInfo()
}
