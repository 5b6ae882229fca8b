package clients

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"github.com/vitwit/payless/types"
)

const erc20ABI = `[
  {"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
  {"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"}
]`

var parsedERC20 = mustParseABI(erc20ABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

// EVMClient reads ERC20 balances with eth_call.
type EVMClient struct {
	chain  types.Chain
	caller ethereum.ContractCaller
	closer func()

	mu       sync.RWMutex
	decimals map[common.Address]uint8
}

var _ BalanceClient = (*EVMClient)(nil)

// DialEVMClient connects to an EVM JSON-RPC endpoint.
func DialEVMClient(ctx context.Context, chain types.Chain, rpcURL string) (*EVMClient, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s RPC: %w", chain, err)
	}
	c := NewEVMClient(chain, client)
	c.closer = client.Close
	return c, nil
}

// NewEVMClient wraps an existing contract caller such as *ethclient.Client.
func NewEVMClient(chain types.Chain, caller ethereum.ContractCaller) *EVMClient {
	return &EVMClient{
		chain:    chain,
		caller:   caller,
		decimals: make(map[common.Address]uint8),
	}
}

func (e *EVMClient) Chain() types.Chain {
	return e.chain
}

// TokenBalance returns balanceOf(owner) scaled by the token's decimals.
func (e *EVMClient) TokenBalance(ctx context.Context, owner, token string) (decimal.Decimal, error) {
	if !common.IsHexAddress(owner) {
		return decimal.Zero, ErrInvalidOwner
	}
	if !common.IsHexAddress(token) {
		return decimal.Zero, ErrInvalidToken
	}
	tokenAddr := common.HexToAddress(token)

	dec, err := e.tokenDecimals(ctx, tokenAddr)
	if err != nil {
		return decimal.Zero, err
	}

	out, err := e.call(ctx, tokenAddr, "balanceOf", common.HexToAddress(owner))
	if err != nil {
		return decimal.Zero, err
	}
	bal, ok := out[0].(*big.Int)
	if !ok {
		return decimal.Zero, upstream(e.chain, "balanceOf", fmt.Errorf("unexpected return type %T", out[0]))
	}
	return decimal.NewFromBigInt(bal, -int32(dec)), nil
}

func (e *EVMClient) tokenDecimals(ctx context.Context, token common.Address) (uint8, error) {
	e.mu.RLock()
	d, ok := e.decimals[token]
	e.mu.RUnlock()
	if ok {
		return d, nil
	}

	out, err := e.call(ctx, token, "decimals")
	if err != nil {
		return 0, err
	}
	d, ok = out[0].(uint8)
	if !ok {
		return 0, upstream(e.chain, "decimals", fmt.Errorf("unexpected return type %T", out[0]))
	}

	e.mu.Lock()
	e.decimals[token] = d
	e.mu.Unlock()
	return d, nil
}

func (e *EVMClient) call(ctx context.Context, to common.Address, method string, args ...any) ([]any, error) {
	data, err := parsedERC20.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	raw, err := e.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, upstream(e.chain, method, err)
	}
	out, err := parsedERC20.Unpack(method, raw)
	if err != nil {
		return nil, upstream(e.chain, method, err)
	}
	if len(out) == 0 {
		return nil, upstream(e.chain, method, fmt.Errorf("empty result"))
	}
	return out, nil
}

func (e *EVMClient) Close() {
	if e.closer != nil {
		e.closer()
	}
}
