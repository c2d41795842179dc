package config

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsAndEnv(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Chdir(t.TempDir())
	t.Setenv("INTENTGATE_STORE_BACKEND", "redis")
	t.Setenv("INTENTGATE_MARKET_DEFAULT_FEE_BIPS", "25")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "redis", cfg.Store.Backend)
	assert.Equal(t, uint64(25), cfg.Market.DefaultFeeBips)
	assert.Equal(t, int64(137), cfg.Chain.ID)
	assert.Equal(t, "Permit2", cfg.Domain.Name)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Store: StoreConfig{Backend: "memory"},
			Contracts: ContractsConfig{
				Permit2: "0x000000000022D473030F116dDEE9F6B43aC78BA3",
				Reactor: "0x0000000000000000000000000000000000001001",
				Factory: "0x0000000000000000000000000000000000001002",
			},
		}
	}
	require.NoError(t, valid().Validate())

	c := valid()
	c.Store.Backend = "sqlite"
	assert.Error(t, c.Validate())

	c = valid()
	c.Contracts.Reactor = "nope"
	assert.Error(t, c.Validate())

	c = valid()
	c.Relayers = []RelayerConfig{{APIKey: "k"}}
	assert.Error(t, c.Validate())

	c = valid()
	c.Market.DefaultFeeBips = 10001
	assert.Error(t, c.Validate())
}

func TestDomainSalt(t *testing.T) {
	raw := "0x00000000000000000000000000000000000000000000000000000000000000aa"
	assert.Equal(t, common.HexToHash(raw), DomainConfig{Salt: raw}.DomainSalt())
	assert.Equal(t, crypto.Keccak256Hash([]byte("intentgate")), DomainConfig{Salt: "intentgate"}.DomainSalt())
}
