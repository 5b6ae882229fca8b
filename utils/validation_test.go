package utils

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitwit/payless/types"
)

func TestValidateAmount(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"0.05", false},
		{"0", false},
		{"1000000000000000000000.000000000000000001", false},
		{"", true},
		{"-1", true},
		{"abc", true},
		{"1e3000000", true},
		{"5E-2", true},
		{".5", true},
		{"1234567890123456789012345678901", true},
		{" 0.05 ", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			_, err := ValidateAmount(tt.in)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestParseAmountWithDecimals(t *testing.T) {
	v, err := ParseAmountWithDecimals("0.05", 6)
	require.NoError(t, err)
	assert.Equal(t, "50000", v.String())

	v, err = ParseAmountWithDecimals("1.5", 18)
	require.NoError(t, err)
	assert.Equal(t, "1500000000000000000", v.String())

	_, err = ParseAmountWithDecimals("0.0000001", 6)
	require.ErrorContains(t, err, "decimal places")

	assert.Equal(t, "0.05", FormatAmountFromBigInt(v.SetInt64(50000), 6))
}

func TestFormatTokens(t *testing.T) {
	assert.Equal(t, "50,000", FormatTokens(decimal.NewFromInt(50000)))
	assert.Equal(t, "1,250.5", FormatTokens(decimal.RequireFromString("1250.5")))
	assert.Equal(t, "0", FormatTokens(decimal.Zero))
	assert.Equal(t, "-1,000", FormatTokens(decimal.NewFromInt(-1000)))
}

func TestValidateAddressForChain(t *testing.T) {
	require.NoError(t, ValidateAddressForChain("0x55d398326f99059fF775485246999027B3197955", types.ChainBSC))
	require.Error(t, ValidateAddressForChain("55d398326f99059fF775485246999027B3197955", types.ChainBSC))
	require.NoError(t, ValidateAddressForChain("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", types.ChainSolana))
	require.Error(t, ValidateAddressForChain("0OIl", types.ChainSolana))
	require.Error(t, ValidateAddressForChain("x", types.Chain("cosmos")))
	require.Error(t, ValidateAddressForChain("", types.ChainSolana))
}

func TestSameAddress(t *testing.T) {
	assert.True(t, SameAddress(types.ChainEthereum, "0xABCDEF0000000000000000000000000000000001", "0xabcdef0000000000000000000000000000000001"))
	assert.False(t, SameAddress(types.ChainSolana, "AbC", "abc"))
	assert.True(t, SameAddress(types.ChainSolana, " AbC", "AbC"))
}
