package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig      `mapstructure:"server"`
	Log        LogConfig         `mapstructure:"log"`
	Auth       AuthConfig        `mapstructure:"auth"`
	Chain      ChainConfig       `mapstructure:"chain"`
	Domain     DomainConfig      `mapstructure:"domain"`
	Contracts  ContractsConfig   `mapstructure:"contracts"`
	Store      StoreConfig       `mapstructure:"store"`
	Database   DatabaseConfig    `mapstructure:"database"`
	Redis      RedisConfig       `mapstructure:"redis"`
	Events     EventsConfig      `mapstructure:"events"`
	Market     MarketConfig      `mapstructure:"market"`
	Relayers   []RelayerConfig   `mapstructure:"relayers"`
	Brokerbots []BrokerbotConfig `mapstructure:"brokerbots"`
}

type ServerConfig struct {
	Port            string `mapstructure:"port"`
	ShutdownSeconds int    `mapstructure:"shutdown_seconds"`
	ReadOnly        bool   `mapstructure:"read_only"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or text
}

type AuthConfig struct {
	AdminKey string `mapstructure:"admin_key"`
}

type ChainConfig struct {
	ID                  int64  `mapstructure:"id"`
	RPCURL              string `mapstructure:"rpc_url"`
	EIP1271CacheSeconds int    `mapstructure:"eip1271_cache_seconds"`
	EIP1271TimeoutMs    int    `mapstructure:"eip1271_timeout_ms"`
	EIP1271Retries      int    `mapstructure:"eip1271_retries"`
}

// DomainConfig is the signing domain; Salt is hashed with keccak256 unless it is already 32 bytes of hex.
type DomainConfig struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
	Salt    string `mapstructure:"salt"`
}

type ContractsConfig struct {
	Permit2 string `mapstructure:"permit2"`
	Reactor string `mapstructure:"reactor"`
	Factory string `mapstructure:"factory"`
}

type StoreConfig struct {
	// Backend is memory, postgres or redis.
	Backend    string `mapstructure:"backend"`
	MaxRetries int    `mapstructure:"max_retries"`
	Prefix     string `mapstructure:"prefix"`
}

type DatabaseConfig struct {
	DSN                    string `mapstructure:"dsn"`
	MaxOpenConns           int    `mapstructure:"max_open_conns"`
	MaxIdleConns           int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `mapstructure:"conn_max_lifetime_minutes"`
	EventRetentionDays     int    `mapstructure:"event_retention_days"`
}

type RedisConfig struct {
	Addr                  string `mapstructure:"addr"`
	Password              string `mapstructure:"password"`
	DB                    int    `mapstructure:"db"`
	IdempotencyTTLSeconds int    `mapstructure:"idempotency_ttl_seconds"`
	EventChannel          string `mapstructure:"event_channel"`
	EventListKey          string `mapstructure:"event_list_key"`
	EventListMax          int    `mapstructure:"event_list_max"`
}

type EventsConfig struct {
	BufferSize int  `mapstructure:"buffer_size"`
	Journal    bool `mapstructure:"journal"`
	Redis      bool `mapstructure:"redis"`
}

type MarketConfig struct {
	DefaultFeeBips uint64 `mapstructure:"default_fee_bips"`
}

type RelayerConfig struct {
	ID      string  `mapstructure:"id"`
	Name    string  `mapstructure:"name"`
	APIKey  string  `mapstructure:"api_key"`
	Address string  `mapstructure:"address"`
	QPS     float64 `mapstructure:"qps"`
	Burst   int     `mapstructure:"burst"`
}

type BrokerbotConfig struct {
	Address   string `mapstructure:"address"`
	Token     string `mapstructure:"token"`
	Currency  string `mapstructure:"currency"`
	Price     string `mapstructure:"price"`
	Increment string `mapstructure:"increment"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")

	// e.g. INTENTGATE_STORE_BACKEND
	viper.SetEnvPrefix("intentgate")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.shutdown_seconds", 5)
	viper.SetDefault("server.read_only", false)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")
	viper.SetDefault("auth.admin_key", "")
	viper.SetDefault("chain.id", 137)
	viper.SetDefault("chain.eip1271_cache_seconds", 60)
	viper.SetDefault("chain.eip1271_timeout_ms", 5000)
	viper.SetDefault("chain.eip1271_retries", 1)
	viper.SetDefault("domain.name", "Permit2")
	viper.SetDefault("domain.version", "1")
	viper.SetDefault("domain.salt", "intentgate")
	viper.SetDefault("contracts.permit2", "0x000000000022D473030F116dDEE9F6B43aC78BA3")
	viper.SetDefault("contracts.reactor", "0x0000000000000000000000000000000000001001")
	viper.SetDefault("contracts.factory", "0x0000000000000000000000000000000000001002")
	viper.SetDefault("store.backend", "memory")
	viper.SetDefault("store.max_retries", 10)
	viper.SetDefault("store.prefix", "{intentgate}:state:")
	viper.SetDefault("database.max_open_conns", 50)
	viper.SetDefault("database.max_idle_conns", 10)
	viper.SetDefault("database.conn_max_lifetime_minutes", 60)
	viper.SetDefault("database.event_retention_days", 30)
	viper.SetDefault("redis.idempotency_ttl_seconds", 86400)
	viper.SetDefault("redis.event_channel", "intentgate:events")
	viper.SetDefault("redis.event_list_key", "intentgate:events:recent")
	viper.SetDefault("redis.event_list_max", 10000)
	viper.SetDefault("events.buffer_size", 1000)
	viper.SetDefault("events.journal", true)
	viper.SetDefault("events.redis", true)
	viper.SetDefault("market.default_fee_bips", 0)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No config file found, using defaults and env vars")
		} else {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings that would only fail later, at first use.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "memory", "postgres", "redis":
	default:
		return fmt.Errorf("store.backend must be memory, postgres or redis, got %q", c.Store.Backend)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "json", "text":
	default:
		return fmt.Errorf("log.format must be json or text, got %q", c.Log.Format)
	}
	for name, addr := range map[string]string{
		"contracts.permit2": c.Contracts.Permit2,
		"contracts.reactor": c.Contracts.Reactor,
		"contracts.factory": c.Contracts.Factory,
	} {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("%s is not an address: %q", name, addr)
		}
	}
	for i, r := range c.Relayers {
		if r.APIKey == "" || !common.IsHexAddress(r.Address) {
			return fmt.Errorf("relayers[%d] needs an api_key and an address", i)
		}
	}
	for i, b := range c.Brokerbots {
		if !common.IsHexAddress(b.Address) || !common.IsHexAddress(b.Token) || !common.IsHexAddress(b.Currency) {
			return fmt.Errorf("brokerbots[%d] needs address, token and currency", i)
		}
	}
	if c.Market.DefaultFeeBips > 10000 {
		return fmt.Errorf("market.default_fee_bips must not exceed 10000")
	}
	return nil
}

func (c *Config) EIP1271CacheTTL() time.Duration {
	return time.Duration(c.Chain.EIP1271CacheSeconds) * time.Second
}

func (c *Config) EIP1271Timeout() time.Duration {
	return time.Duration(c.Chain.EIP1271TimeoutMs) * time.Millisecond
}

func (c *Config) IdempotencyTTL() time.Duration {
	return time.Duration(c.Redis.IdempotencyTTLSeconds) * time.Second
}

// DomainSalt returns the configured salt as a 32-byte value.
func (d DomainConfig) DomainSalt() common.Hash {
	if strings.HasPrefix(d.Salt, "0x") && len(d.Salt) == 66 {
		return common.HexToHash(d.Salt)
	}
	return crypto.Keccak256Hash([]byte(d.Salt))
}
