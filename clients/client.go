// Package clients implements the per-chain RPC clients used to read
// held-token balances for tier gating.
package clients

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/vitwit/payless/types"
)

// BalanceClient reads the balance of a fungible token held by a wallet.
type BalanceClient interface {
	// TokenBalance returns owner's balance of token (an SPL mint or an ERC20
	// contract) in whole token units.
	TokenBalance(ctx context.Context, owner, token string) (decimal.Decimal, error)

	// Chain returns the chain the client reads from.
	Chain() types.Chain

	Close()
}

// New returns the RPC balance client for chain.
func New(ctx context.Context, chain types.Chain, rpcURL string) (BalanceClient, error) {
	switch chain.Family() {
	case types.FamilySolana:
		return NewSolanaClient(rpcURL), nil
	case types.FamilyEVM:
		return DialEVMClient(ctx, chain, rpcURL)
	default:
		return nil, types.NewError(types.ErrUnsupportedChain, "no balance client for chain %s", chain)
	}
}
