package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/vitwit/payless/types"
	"github.com/vitwit/payless/utils"
)

// loadConfig reads the JSON config at path, or the defaults when path is
// empty, after loading envFile into the process environment. Variables
// already set in the environment win over the file.
func loadConfig(path, envFile string) (*types.Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	cfg := types.DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if cfg, err = utils.ParseConfig(data); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg, os.LookupEnv)
	if err := utils.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

var chainEnvPrefix = map[types.Chain]string{
	types.ChainSolana:   "SOLANA",
	types.ChainBSC:      "BSC",
	types.ChainEthereum: "ETHEREUM",
	types.ChainPolygon:  "POLYGON",
}

// applyEnv overrides cfg from the environment. WALLET_ADDRESS sets the
// recipient of every chain whose address format it fits; the per-chain
// variables take precedence.
func applyEnv(cfg *types.Config, lookup func(string) (string, bool)) {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get("LISTEN_ADDR"); ok {
		cfg.ListenAddr = v
	}
	if v, ok := get("LOG_LEVEL"); ok {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v, ok := get("FACILITATOR_URL"); ok {
		cfg.FacilitatorURL = v
	}
	if v, ok := get("PAYLESS_TOKEN_MINT"); ok {
		cfg.TokenGate.Mint = v
	}

	shared, hasShared := get("WALLET_ADDRESS")
	for i := range cfg.Chains {
		c := &cfg.Chains[i]
		prefix := chainEnvPrefix[c.Chain]
		if hasShared && utils.ValidateAddressForChain(shared, c.Chain) == nil {
			c.Recipient = shared
		}
		if v, ok := get(prefix + "_WALLET_ADDRESS"); ok {
			c.Recipient = v
		}
		if v, ok := get(prefix + "_RPC_URL"); ok {
			c.RPCURL = v
			if c.Chain == cfg.TokenGate.Chain {
				cfg.TokenGate.RPCURL = v
			}
		}
	}
}
