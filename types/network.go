package types

import "strings"

// Chain identifies a supported blockchain.
type Chain string

const (
	ChainSolana   Chain = "solana"
	ChainBSC      Chain = "bsc"
	ChainEthereum Chain = "ethereum"
	ChainPolygon  Chain = "polygon"
)

// ChainFamily classifies a chain by its signature scheme.
type ChainFamily string

const (
	FamilyEVM    ChainFamily = "evm"
	FamilySolana ChainFamily = "solana"
)

func (c Chain) String() string {
	return string(c)
}

// Family returns the signature family of a known chain, or "" when unknown.
func (c Chain) Family() ChainFamily {
	switch c {
	case ChainSolana:
		return FamilySolana
	case ChainBSC, ChainEthereum, ChainPolygon:
		return FamilyEVM
	default:
		return ""
	}
}

// IsEVM reports whether the chain uses secp256k1 personal_sign proofs.
func (c Chain) IsEVM() bool {
	return c.Family() == FamilyEVM
}

// TokenInfo describes a token accepted as payment on a chain.
type TokenInfo struct {
	Symbol   string `json:"symbol" validate:"required"`
	Name     string `json:"name,omitempty"`
	Address  string `json:"address" validate:"required"`
	Decimals int32  `json:"decimals" validate:"gte=0,lte=36"`
}

// ChainConfig configures one payment chain.
type ChainConfig struct {
	Chain     Chain       `json:"chain" validate:"required,oneof=solana bsc ethereum polygon"`
	Name      string      `json:"name,omitempty"`
	Network   string      `json:"network" validate:"required"`
	RPCURL    string      `json:"rpcUrl,omitempty" validate:"omitempty,url"`
	Recipient string      `json:"recipient"`
	Tokens    []TokenInfo `json:"tokens" validate:"required,min=1,dive"`
}

// TokenSymbols returns the accepted token symbols in configuration order.
func (c *ChainConfig) TokenSymbols() []string {
	symbols := make([]string, 0, len(c.Tokens))
	for _, t := range c.Tokens {
		symbols = append(symbols, t.Symbol)
	}
	return symbols
}

// FindToken resolves a token by symbol or address. Address comparison is
// case-insensitive on EVM chains and exact on Solana.
func (c *ChainConfig) FindToken(symbol, address string) (TokenInfo, bool) {
	for _, t := range c.Tokens {
		if address != "" {
			if c.Chain.IsEVM() && strings.EqualFold(t.Address, address) {
				return t, true
			}
			if t.Address == address {
				return t, true
			}
			continue
		}
		if strings.EqualFold(t.Symbol, symbol) {
			return t, true
		}
	}
	return TokenInfo{}, false
}
