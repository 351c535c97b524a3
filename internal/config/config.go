// Package config defines the top-level configuration for perpcaster and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by PERPCAST_* environment
// variables.
type Config struct {
	Exchange  ExchangeConfig  `toml:"exchange"`
	Stark     StarkConfig     `toml:"stark"`
	Poller    PollerConfig    `toml:"poller"`
	Broadcast BroadcastConfig `toml:"broadcast"`
	Bot       BotConfig       `toml:"bot"`
	Feed      FeedConfig      `toml:"feed"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	Server    ServerConfig    `toml:"server"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// ExchangeConfig holds the exchange REST API endpoint and credentials.
type ExchangeConfig struct {
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
}

// StarkConfig holds the order-signing key pair. Orders are signed with the
// private key and verified against the public key before submission.
type StarkConfig struct {
	PublicKey        string `toml:"public_key"`
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
	VaultID          int64  `toml:"vault_id"`
	ClientID         string `toml:"client_id"`
}

// PollerConfig holds the polling cadences and per-call fetch timeouts.
type PollerConfig struct {
	FastInterval   duration `toml:"fast_interval"`
	TradesInterval duration `toml:"trades_interval"`
	OrdersInterval duration `toml:"orders_interval"`
	FastTimeout    duration `toml:"fast_timeout"`
	SlowTimeout    duration `toml:"slow_timeout"`
}

// BroadcastConfig holds WebSocket fan-out parameters.
type BroadcastConfig struct {
	PingInterval   duration `toml:"ping_interval"`
	SendBufferSize int      `toml:"send_buffer_size"`
}

// BotConfig holds the market-making engine parameters. Mutable only while
// the engine is stopped.
type BotConfig struct {
	Market             string   `toml:"market"`
	SpreadPercentage   float64  `toml:"spread_percentage"`
	OrderSize          float64  `toml:"order_size"`
	RefreshInterval    duration `toml:"refresh_interval"`
	PriceMoveThreshold float64  `toml:"price_move_threshold"`
	PriceStalenessMax  duration `toml:"price_staleness_max"`
}

// FeedConfig holds the external mark-price WebSocket feed parameters.
type FeedConfig struct {
	Enabled        bool     `toml:"enabled"`
	URL            string   `toml:"url"`
	ExchangeFilter string   `toml:"exchange_filter"`
	ReconnectMin   duration `toml:"reconnect_min"`
	ReconnectMax   duration `toml:"reconnect_max"`
	MaxAttempts    int      `toml:"max_attempts"`
}

// PostgresConfig holds connection parameters for the optional snapshot
// mirror. Disabled by default; the mirror is never load-bearing.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds connection parameters for the mark-price mirror.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "250ms", "5s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "250ms" or "5s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Exchange: ExchangeConfig{
			BaseURL: "https://api.starknet.extended.exchange",
		},
		Poller: PollerConfig{
			FastInterval:   duration{250 * time.Millisecond},
			TradesInterval: duration{5 * time.Second},
			OrdersInterval: duration{500 * time.Millisecond},
			FastTimeout:    duration{200 * time.Millisecond},
			SlowTimeout:    duration{3 * time.Second},
		},
		Broadcast: BroadcastConfig{
			PingInterval:   duration{30 * time.Second},
			SendBufferSize: 256,
		},
		Bot: BotConfig{
			Market:             "BTC-USD",
			SpreadPercentage:   0.001,
			OrderSize:          0.01,
			RefreshInterval:    duration{5 * time.Second},
			PriceMoveThreshold: 0.002,
			PriceStalenessMax:  duration{10 * time.Second},
		},
		Feed: FeedConfig{
			Enabled:        false,
			ExchangeFilter: "extended",
			ReconnectMin:   duration{time.Second},
			ReconnectMax:   duration{30 * time.Second},
			MaxAttempts:    0, // unbounded
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "perpcaster",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  5,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
		},
		Server: ServerConfig{
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode. "broadcast"
// runs the poller, hub, and read-only API without the bot or order
// mutations; "full" runs everything.
var validModes = map[string]bool{
	"broadcast": true,
	"full":      true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and
// returns a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: broadcast, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Exchange.BaseURL == "" {
		errs = append(errs, "exchange: base_url must not be empty")
	}
	if c.Exchange.APIKey == "" {
		errs = append(errs, "exchange: api_key must not be empty")
	}

	// Stark keys are needed only when order mutations are possible.
	if strings.ToLower(c.Mode) == "full" {
		if c.Stark.PrivateKey == "" && c.Stark.EncryptedKeyPath == "" {
			errs = append(errs, "stark: either private_key or encrypted_key_path must be set for mode full")
		}
		if c.Stark.EncryptedKeyPath != "" && c.Stark.KeyPassword == "" {
			errs = append(errs, "stark: key_password is required when encrypted_key_path is set")
		}
		if c.Stark.PublicKey == "" {
			errs = append(errs, "stark: public_key must not be empty for mode full")
		}
	}

	if c.Poller.FastInterval.Duration <= 0 {
		errs = append(errs, "poller: fast_interval must be > 0")
	}
	if c.Poller.TradesInterval.Duration <= 0 {
		errs = append(errs, "poller: trades_interval must be > 0")
	}
	if c.Poller.OrdersInterval.Duration <= 0 {
		errs = append(errs, "poller: orders_interval must be > 0")
	}
	if c.Poller.FastTimeout.Duration >= c.Poller.FastInterval.Duration {
		errs = append(errs, "poller: fast_timeout must be below fast_interval to avoid tick overrun")
	}

	if c.Broadcast.PingInterval.Duration <= 0 {
		errs = append(errs, "broadcast: ping_interval must be > 0")
	}
	if c.Broadcast.SendBufferSize < 1 {
		errs = append(errs, "broadcast: send_buffer_size must be >= 1")
	}

	if c.Bot.Market == "" {
		errs = append(errs, "bot: market must not be empty")
	}
	if c.Bot.SpreadPercentage <= 0 || c.Bot.SpreadPercentage >= 1 {
		errs = append(errs, fmt.Sprintf("bot: spread_percentage must be in (0, 1), got %g", c.Bot.SpreadPercentage))
	}
	if c.Bot.OrderSize <= 0 {
		errs = append(errs, "bot: order_size must be > 0")
	}
	if c.Bot.RefreshInterval.Duration <= 0 {
		errs = append(errs, "bot: refresh_interval must be > 0")
	}
	if c.Bot.PriceMoveThreshold <= 0 {
		errs = append(errs, "bot: price_move_threshold must be > 0")
	}
	if c.Bot.PriceStalenessMax.Duration <= 0 {
		errs = append(errs, "bot: price_staleness_max must be > 0")
	}

	if c.Feed.Enabled {
		if c.Feed.URL == "" {
			errs = append(errs, "feed: url must not be empty when enabled")
		}
		if c.Feed.ReconnectMin.Duration <= 0 || c.Feed.ReconnectMax.Duration < c.Feed.ReconnectMin.Duration {
			errs = append(errs, "feed: reconnect_min must be > 0 and <= reconnect_max")
		}
	}

	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty when enabled")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
