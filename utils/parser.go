package utils

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/vitwit/payless/types"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateStruct runs struct tag validation on v.
func ValidateStruct(v any) error {
	if err := validate.Struct(v); err != nil {
		return &types.PaylessError{
			Code:    types.ErrValidationFailed,
			Message: fmt.Sprintf("validation failed: %v", err),
		}
	}
	return nil
}

// ParseConfig parses and validates a Config from JSON. Missing durations and
// sizes are filled with defaults.
func ParseConfig(data []byte) (*types.Config, error) {
	var config types.Config

	if err := json.Unmarshal(data, &config); err != nil {
		return nil, &types.PaylessError{
			Code:    types.ErrInvalidConfig,
			Message: fmt.Sprintf("failed to parse config: %v", err),
		}
	}

	config.ApplyDefaults()
	if err := ValidateConfig(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// ValidateConfig checks struct tags and cross-field constraints.
func ValidateConfig(config *types.Config) error {
	if err := validate.Struct(config); err != nil {
		return &types.PaylessError{
			Code:    types.ErrInvalidConfig,
			Message: fmt.Sprintf("validation failed: %v", err),
		}
	}

	for path, price := range config.Pricing {
		if _, err := ValidateAmount(price); err != nil {
			return types.NewError(types.ErrInvalidConfig, "invalid price for %s: %v", path, err)
		}
	}

	levels := config.TokenGate.Levels
	for i := 1; i < len(levels); i++ {
		if !levels[i].Threshold.GreaterThan(levels[i-1].Threshold) {
			return types.NewError(types.ErrInvalidConfig,
				"tier thresholds must be strictly increasing: %s <= %s", levels[i].Tier, levels[i-1].Tier)
		}
	}
	return nil
}

// envelope is the chain-tagged wrapper form {"chain":..., "payment":{...}}.
type envelope struct {
	Chain   types.Chain     `json:"chain"`
	Payment json.RawMessage `json:"payment"`
}

// ParsePaymentProof decodes an X-Payment header value. The header carries
// JSON, optionally base64 encoded, either as a flat chain-tagged proof or as
// an envelope with the proof under "payment".
func ParsePaymentProof(header string) (*types.PaymentProof, error) {
	raw := []byte(strings.TrimSpace(header))
	if len(raw) == 0 {
		return nil, types.NewError(types.ErrInvalidPayload, "empty payment header")
	}
	if raw[0] != '{' {
		decoded, err := base64.StdEncoding.DecodeString(string(raw))
		if err != nil {
			return nil, types.NewError(types.ErrInvalidPayload, "payment header is neither JSON nor base64: %v", err)
		}
		raw = decoded
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, types.NewError(types.ErrInvalidPayload, "invalid payment header: %v", err)
	}

	var proof types.PaymentProof
	body := raw
	if len(env.Payment) > 0 && !bytes.Equal(env.Payment, []byte("null")) {
		body = env.Payment
	}
	if err := json.Unmarshal(body, &proof); err != nil {
		return nil, types.NewError(types.ErrInvalidPayload, "invalid payment proof: %v", err)
	}
	if proof.Chain == "" {
		proof.Chain = env.Chain
	}

	// EVM wallets put the token contract under "token".
	if proof.TokenAddress == "" && strings.HasPrefix(proof.TokenSymbol, "0x") {
		proof.TokenAddress, proof.TokenSymbol = proof.TokenSymbol, ""
	}

	return &proof, nil
}

// EncodePaymentProof renders proof as the JSON X-Payment header value.
func EncodePaymentProof(proof *types.PaymentProof) (string, error) {
	b, err := json.Marshal(proof)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ParseFlexibleTime parses unix milliseconds or one of the common textual
// layouts.
func ParseFlexibleTime(timeStr string) (time.Time, error) {
	timeStr = strings.TrimSpace(timeStr)
	if ms, err := strconv.ParseInt(timeStr, 10, 64); err == nil {
		return time.UnixMilli(ms), nil
	}

	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, timeStr); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse time: %s", timeStr)
}
