package clients

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	"github.com/vitwit/payless/types"
)

// SolanaClient reads SPL token balances over JSON-RPC.
type SolanaClient struct {
	rpcURL     string
	client     *rpc.Client
	commitment rpc.CommitmentType
}

var _ BalanceClient = (*SolanaClient)(nil)

// NewSolanaClient creates a Solana client
func NewSolanaClient(rpcURL string) *SolanaClient {
	return &SolanaClient{
		rpcURL:     rpcURL,
		client:     rpc.New(rpcURL),
		commitment: rpc.CommitmentConfirmed,
	}
}

func (c *SolanaClient) Chain() types.Chain {
	return types.ChainSolana
}

// TokenBalance sums the balances of every token account owner holds for mint.
// A wallet with no token account has a zero balance.
func (c *SolanaClient) TokenBalance(ctx context.Context, owner, mint string) (decimal.Decimal, error) {
	ownerKey, err := solana.PublicKeyFromBase58(owner)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrInvalidOwner, err)
	}
	mintKey, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	accounts, err := c.client.GetTokenAccountsByOwner(
		ctx,
		ownerKey,
		&rpc.GetTokenAccountsConfig{Mint: &mintKey},
		&rpc.GetTokenAccountsOpts{Commitment: c.commitment, Encoding: solana.EncodingBase64},
	)
	if err != nil {
		return decimal.Zero, upstream(types.ChainSolana, "getTokenAccountsByOwner", err)
	}

	total := decimal.Zero
	for _, acc := range accounts.Value {
		bal, err := c.client.GetTokenAccountBalance(ctx, acc.Pubkey, c.commitment)
		if err != nil {
			return decimal.Zero, upstream(types.ChainSolana, "getTokenAccountBalance", err)
		}
		if bal == nil || bal.Value == nil {
			continue
		}
		raw, err := decimal.NewFromString(bal.Value.Amount)
		if err != nil {
			return decimal.Zero, upstream(types.ChainSolana, "getTokenAccountBalance", err)
		}
		total = total.Add(raw.Shift(-int32(bal.Value.Decimals)))
	}
	return total, nil
}

// Close is a no-op; the JSON-RPC client holds no persistent connection.
func (c *SolanaClient) Close() {}
