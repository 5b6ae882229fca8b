package clients

import (
	"errors"
	"fmt"

	"github.com/vitwit/payless/types"
)

var (
	// ErrInvalidOwner is returned when the wallet address cannot be decoded
	// for the client's chain.
	ErrInvalidOwner = errors.New("invalid owner address")

	// ErrInvalidToken is returned when the token mint or contract is invalid.
	ErrInvalidToken = errors.New("invalid token address")
)

// upstream wraps an RPC failure so callers can classify it.
func upstream(chain types.Chain, op string, err error) error {
	return &types.PaylessError{
		Code:    types.ErrUpstreamUnavailable,
		Message: fmt.Sprintf("%s %s: %v", chain, op, err),
		Data:    err,
	}
}
