package verification

import (
	"sync"

	"github.com/vitwit/payless/types"
)

// Registry maps a chain identifier to its verifier. Adding a chain means
// registering another ChainVerifier.
type Registry struct {
	mu        sync.RWMutex
	verifiers map[types.Chain]ChainVerifier
	order     []types.Chain
}

func NewRegistry() *Registry {
	return &Registry{verifiers: make(map[types.Chain]ChainVerifier)}
}

// Register adds v, replacing any verifier already registered for its chain.
func (r *Registry) Register(v ChainVerifier) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.verifiers[v.Chain()]; !exists {
		r.order = append(r.order, v.Chain())
	}
	r.verifiers[v.Chain()] = v
}

// Get returns the verifier for chain.
func (r *Registry) Get(chain types.Chain) (ChainVerifier, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.verifiers[chain]
	return v, ok
}

// Chains returns the registered chains in registration order.
func (r *Registry) Chains() []types.Chain {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]types.Chain(nil), r.order...)
}

// PaymentInfo lists the payment requirements of every registered chain for
// a 402 challenge.
func (r *Registry) PaymentInfo() []types.ChainPaymentInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.ChainPaymentInfo, 0, len(r.order))
	for _, chain := range r.order {
		cfg := r.verifiers[chain].Config()
		out = append(out, types.ChainPaymentInfo{
			Chain:     cfg.Chain,
			Recipient: cfg.Recipient,
			Network:   cfg.Network,
			Tokens:    cfg.TokenSymbols(),
		})
	}
	return out
}
