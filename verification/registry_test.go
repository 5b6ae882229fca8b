package verification

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitwit/payless/types"
)

func TestRegistry_PaymentInfoListsEveryChain(t *testing.T) {
	cfg := types.DefaultConfig()
	for i := range cfg.Chains {
		cfg.Chains[i].Recipient = "wallet-" + string(cfg.Chains[i].Chain)
	}
	r, err := RegistryFromConfig(cfg.Chains)
	require.NoError(t, err)

	assert.Equal(t, []types.Chain{types.ChainSolana, types.ChainBSC, types.ChainEthereum, types.ChainPolygon}, r.Chains())

	info := r.PaymentInfo()
	require.Len(t, info, 4)
	assert.Equal(t, types.ChainPaymentInfo{
		Chain:     types.ChainBSC,
		Recipient: "wallet-bsc",
		Network:   "56",
		Tokens:    []string{"USDT", "BUSD", "USDC"},
	}, info[1])
}

func TestRegistry_ReplaceKeepsOrder(t *testing.T) {
	r := NewRegistry()
	r.Register(NewSolanaVerifier(solanaConfig("a")))
	r.Register(NewEVMVerifier(bscConfig("b")))
	r.Register(NewSolanaVerifier(solanaConfig("c")))

	assert.Equal(t, []types.Chain{types.ChainSolana, types.ChainBSC}, r.Chains())
	v, ok := r.Get(types.ChainSolana)
	require.True(t, ok)
	assert.Equal(t, "c", v.Config().Recipient)

	_, ok = r.Get(types.ChainPolygon)
	assert.False(t, ok)
}

func TestRegistryFromConfig_Unsupported(t *testing.T) {
	_, err := RegistryFromConfig([]types.ChainConfig{{Chain: "tron"}})
	require.Error(t, err)
}
