package utils

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
	"github.com/vitwit/payless/types"
)

var (
	hexPattern    = regexp.MustCompile("^[0-9a-fA-F]+$")
	base58Pattern = regexp.MustCompile("^[1-9A-HJ-NP-Za-km-z]+$")
	// Plain decimal notation only. Exponents would let a short string expand
	// into an arbitrarily large integer when scaled to base units.
	amountPattern = regexp.MustCompile(`^[0-9]{1,30}(\.[0-9]{1,36})?$`)
)

// ValidateAmount checks if an amount string is a valid non-negative decimal
func ValidateAmount(amount string) (*decimal.Decimal, error) {
	if amount == "" {
		return nil, fmt.Errorf("amount cannot be empty")
	}

	amount = strings.TrimSpace(amount)
	if strings.HasPrefix(amount, "-") {
		return nil, fmt.Errorf("amount cannot be negative")
	}
	if !amountPattern.MatchString(amount) {
		return nil, fmt.Errorf("invalid amount format: expected a plain decimal number")
	}

	dec, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount format: %w", err)
	}

	return &dec, nil
}

// ParseAmountWithDecimals parses a decimal amount and scales it to base units
// of a token with the given precision. Amounts carrying more fractional
// digits than the token supports are rejected rather than rounded.
func ParseAmountWithDecimals(amount string, decimals int32) (*big.Int, error) {
	dec, err := ValidateAmount(amount)
	if err != nil {
		return nil, err
	}
	return ScaleAmount(*dec, decimals)
}

// ScaleAmount converts a whole-unit amount into base units.
func ScaleAmount(amount decimal.Decimal, decimals int32) (*big.Int, error) {
	scaled := amount.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("amount %s has more than %d decimal places", amount.String(), decimals)
	}
	return scaled.BigInt(), nil
}

// FormatAmountFromBigInt formats a base-unit amount as a whole-unit decimal string
func FormatAmountFromBigInt(amount *big.Int, decimals int32) string {
	return decimal.NewFromBigInt(amount, -decimals).String()
}

// FormatTokens renders an amount with thousands separators, e.g. 50,000 or
// 1,250.5.
func FormatTokens(amount decimal.Decimal) string {
	whole := amount.Truncate(0)
	out := humanize.BigComma(whole.Abs().BigInt())
	if frac := amount.Sub(whole).Abs(); !frac.IsZero() {
		out += strings.TrimPrefix(frac.String(), "0")
	}
	if amount.IsNegative() {
		out = "-" + out
	}
	return out
}

// ValidateAddressForChain validates a wallet or token address for chain.
func ValidateAddressForChain(address string, chain types.Chain) error {
	if address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	switch chain.Family() {
	case types.FamilyEVM:
		if !strings.HasPrefix(address, "0x") {
			return fmt.Errorf("EVM address must start with 0x")
		}
		if len(address) != 42 {
			return fmt.Errorf("EVM address must be 42 characters long")
		}
		if !hexPattern.MatchString(address[2:]) {
			return fmt.Errorf("EVM address must be valid hex")
		}

	case types.FamilySolana:
		// base58 encoding of a 32 byte key
		if len(address) < 32 || len(address) > 44 {
			return fmt.Errorf("Solana address has invalid length")
		}
		if !base58Pattern.MatchString(address) {
			return fmt.Errorf("Solana address must be valid base58")
		}

	default:
		return fmt.Errorf("unsupported chain for address validation: %s", chain)
	}

	return nil
}

// SameAddress compares two addresses using the chain's normalization:
// case-insensitive hex for EVM, exact base58 for Solana.
func SameAddress(chain types.Chain, a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if chain.IsEVM() {
		return strings.EqualFold(a, b)
	}
	return a == b
}
