package main

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/vitwit/payless/types"
	"github.com/vitwit/payless/utils"
)

type signRequest struct {
	Chain  types.Chain
	Key    string
	To     string
	Amount string
	Token  string
	Nonce  string
	Now    time.Time
}

var (
	signChain   string
	signKey     string
	signTo      string
	signAmount  string
	signToken   string
	signEncoded bool
)

var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "Produce an X-Payment header signed with a Solana or EVM key",
	Long: `Sign builds a payment proof for the given chain, amount and token and prints it
as an X-Payment header value. The key is a base58 Solana secret key or a hex
EVM private key, read from --key or PAYER_PRIVATE_KEY.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath, envFile)
		if err != nil {
			return err
		}
		key := signKey
		if key == "" {
			key = os.Getenv("PAYER_PRIVATE_KEY")
		}

		proof, err := buildProof(cfg, signRequest{
			Chain:  types.Chain(strings.ToLower(signChain)),
			Key:    key,
			To:     signTo,
			Amount: signAmount,
			Token:  signToken,
			Nonce:  uuid.NewString(),
			Now:    time.Now(),
		})
		if err != nil {
			return err
		}

		header, err := utils.EncodePaymentProof(proof)
		if err != nil {
			return err
		}
		if signEncoded {
			header = base64.StdEncoding.EncodeToString([]byte(header))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", types.HeaderPayment, header)
		return nil
	},
}

func init() {
	f := signCmd.Flags()
	f.StringVar(&signChain, "chain", string(types.ChainSolana), "chain to pay on (solana, bsc, ethereum, polygon)")
	f.StringVar(&signKey, "key", "", "payer private key")
	f.StringVar(&signTo, "to", "", "recipient, defaults to the configured recipient of the chain")
	f.StringVar(&signAmount, "amount", "", "amount in whole token units, e.g. 0.05")
	f.StringVar(&signToken, "token", "USDC", "token symbol accepted on the chain")
	f.BoolVar(&signEncoded, "base64", false, "base64 encode the header value")
	f.StringVarP(&configPath, "config", "c", "", "path to a JSON config file")
	f.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before applying environment overrides")
	_ = signCmd.MarkFlagRequired("amount")
}

// buildProof signs the canonical payment message for req.
func buildProof(cfg *types.Config, req signRequest) (*types.PaymentProof, error) {
	chain, ok := cfg.Chain(req.Chain)
	if !ok {
		return nil, types.NewError(types.ErrUnsupportedChain, "unsupported chain: %s", req.Chain)
	}
	if _, err := utils.ValidateAmount(req.Amount); err != nil {
		return nil, err
	}
	token, ok := chain.FindToken(req.Token, "")
	if !ok {
		return nil, types.NewError(types.ErrInvalidPayload, "token %s is not accepted on %s", req.Token, req.Chain)
	}
	to := req.To
	if to == "" {
		to = chain.Recipient
	}
	if err := utils.ValidateAddressForChain(to, req.Chain); err != nil {
		return nil, fmt.Errorf("recipient: %w", err)
	}
	if req.Key == "" {
		return nil, types.NewError(types.ErrInvalidPayload, "a payer private key is required")
	}

	proof := &types.PaymentProof{
		Chain:        req.Chain,
		To:           to,
		Amount:       req.Amount,
		TokenSymbol:  token.Symbol,
		TokenAddress: token.Address,
		Nonce:        req.Nonce,
		TimestampMs:  req.Now.UnixMilli(),
	}

	switch req.Chain.Family() {
	case types.FamilySolana:
		key, err := solana.PrivateKeyFromBase58(strings.TrimSpace(req.Key))
		if err != nil {
			return nil, types.NewError(types.ErrInvalidPayload, "invalid solana key: %v", err)
		}
		proof.From = key.PublicKey().String()
		proof.Message = utils.PaymentMessage(proof.From, to, req.Amount, token.Symbol, proof.TimestampMs, proof.Nonce)
		if proof.Signature, err = utils.SignSolanaMessage(proof.Message, key); err != nil {
			return nil, err
		}
	case types.FamilyEVM:
		key, err := utils.PrivateKeyFromHex(req.Key)
		if err != nil {
			return nil, types.NewError(types.ErrInvalidPayload, "invalid evm key: %v", err)
		}
		proof.ChainID = chain.Network
		proof.From = utils.AddressFromPrivateKey(key).Hex()
		proof.Message = utils.PaymentMessage(proof.From, to, req.Amount, token.Symbol, proof.TimestampMs, proof.Nonce)
		if proof.Signature, err = utils.SignPersonalMessage(proof.Message, key); err != nil {
			return nil, err
		}
	default:
		return nil, types.NewError(types.ErrUnsupportedChain, "unsupported chain: %s", req.Chain)
	}
	return proof, nil
}
