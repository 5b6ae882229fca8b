package clients

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitwit/payless/types"
)

func TestStaticClient(t *testing.T) {
	c := NewStaticClient(types.ChainEthereum)
	c.SetBalance("0xABC", decimal.NewFromInt(42))

	bal, err := c.TokenBalance(context.Background(), "0xabc", "")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(42).Equal(bal))

	bal, err = c.TokenBalance(context.Background(), "0xdef", "")
	require.NoError(t, err)
	assert.True(t, bal.IsZero())

	c.FailWith(errors.New("rpc down"))
	_, err = c.TokenBalance(context.Background(), "0xabc", "")
	require.EqualError(t, err, "rpc down")
}

func TestNew_UnsupportedChain(t *testing.T) {
	_, err := New(context.Background(), types.Chain("cosmos"), "")
	var perr *types.PaylessError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, types.ErrUnsupportedChain, perr.Code)

	c, err := New(context.Background(), types.ChainSolana, "http://127.0.0.1:8899")
	require.NoError(t, err)
	assert.Equal(t, types.ChainSolana, c.Chain())
}
