package clients

import (
	"context"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/vitwit/payless/types"
)

// StaticClient serves balances from memory. It backs local development and
// tests where no RPC endpoint is available.
type StaticClient struct {
	chain types.Chain

	mu       sync.RWMutex
	balances map[string]decimal.Decimal
	err      error
}

var _ BalanceClient = (*StaticClient)(nil)

func NewStaticClient(chain types.Chain) *StaticClient {
	return &StaticClient{chain: chain, balances: make(map[string]decimal.Decimal)}
}

func (s *StaticClient) key(owner string) string {
	if s.chain.IsEVM() {
		return strings.ToLower(owner)
	}
	return owner
}

// SetBalance records owner's balance. The token argument of TokenBalance is
// ignored; a static client models a single gating token.
func (s *StaticClient) SetBalance(owner string, amount decimal.Decimal) {
	s.mu.Lock()
	s.balances[s.key(owner)] = amount
	s.mu.Unlock()
}

// FailWith makes every lookup return err until reset with nil.
func (s *StaticClient) FailWith(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *StaticClient) TokenBalance(ctx context.Context, owner, _ string) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return decimal.Zero, s.err
	}
	return s.balances[s.key(owner)], nil
}

func (s *StaticClient) Chain() types.Chain {
	return s.chain
}

func (s *StaticClient) Close() {}
