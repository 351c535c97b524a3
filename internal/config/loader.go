package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies PERPCAST_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known PERPCAST_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Exchange ──
	setStr(&cfg.Exchange.BaseURL, "PERPCAST_EXCHANGE_BASE_URL")
	setStr(&cfg.Exchange.APIKey, "PERPCAST_EXCHANGE_API_KEY")

	// ── Stark ──
	setStr(&cfg.Stark.PublicKey, "PERPCAST_STARK_PUBLIC_KEY")
	setStr(&cfg.Stark.PrivateKey, "PERPCAST_STARK_PRIVATE_KEY")
	setStr(&cfg.Stark.EncryptedKeyPath, "PERPCAST_STARK_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Stark.KeyPassword, "PERPCAST_STARK_KEY_PASSWORD")
	setInt64(&cfg.Stark.VaultID, "PERPCAST_STARK_VAULT_ID")
	setStr(&cfg.Stark.ClientID, "PERPCAST_STARK_CLIENT_ID")

	// ── Poller ──
	setDuration(&cfg.Poller.FastInterval, "PERPCAST_POLLER_FAST_INTERVAL")
	setDuration(&cfg.Poller.TradesInterval, "PERPCAST_POLLER_TRADES_INTERVAL")
	setDuration(&cfg.Poller.OrdersInterval, "PERPCAST_POLLER_ORDERS_INTERVAL")
	setDuration(&cfg.Poller.FastTimeout, "PERPCAST_POLLER_FAST_TIMEOUT")
	setDuration(&cfg.Poller.SlowTimeout, "PERPCAST_POLLER_SLOW_TIMEOUT")

	// ── Broadcast ──
	setDuration(&cfg.Broadcast.PingInterval, "PERPCAST_BROADCAST_PING_INTERVAL")
	setInt(&cfg.Broadcast.SendBufferSize, "PERPCAST_BROADCAST_SEND_BUFFER_SIZE")

	// ── Bot ──
	setStr(&cfg.Bot.Market, "PERPCAST_BOT_MARKET")
	setFloat64(&cfg.Bot.SpreadPercentage, "PERPCAST_BOT_SPREAD_PERCENTAGE")
	setFloat64(&cfg.Bot.OrderSize, "PERPCAST_BOT_ORDER_SIZE")
	setDuration(&cfg.Bot.RefreshInterval, "PERPCAST_BOT_REFRESH_INTERVAL")
	setFloat64(&cfg.Bot.PriceMoveThreshold, "PERPCAST_BOT_PRICE_MOVE_THRESHOLD")
	setDuration(&cfg.Bot.PriceStalenessMax, "PERPCAST_BOT_PRICE_STALENESS_MAX")

	// ── Feed ──
	setBool(&cfg.Feed.Enabled, "PERPCAST_FEED_ENABLED")
	setStr(&cfg.Feed.URL, "PERPCAST_FEED_URL")
	setStr(&cfg.Feed.ExchangeFilter, "PERPCAST_FEED_EXCHANGE_FILTER")
	setDuration(&cfg.Feed.ReconnectMin, "PERPCAST_FEED_RECONNECT_MIN")
	setDuration(&cfg.Feed.ReconnectMax, "PERPCAST_FEED_RECONNECT_MAX")
	setInt(&cfg.Feed.MaxAttempts, "PERPCAST_FEED_MAX_ATTEMPTS")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "PERPCAST_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "PERPCAST_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "PERPCAST_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "PERPCAST_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "PERPCAST_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "PERPCAST_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "PERPCAST_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "PERPCAST_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "PERPCAST_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "PERPCAST_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "PERPCAST_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "PERPCAST_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "PERPCAST_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PERPCAST_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PERPCAST_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PERPCAST_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PERPCAST_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PERPCAST_REDIS_TLS_ENABLED")

	// ── Server ──
	setInt(&cfg.Server.Port, "PERPCAST_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "PERPCAST_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "PERPCAST_SERVER_API_KEY")

	// ── Top-level ──
	setStr(&cfg.Mode, "PERPCAST_MODE")
	setStr(&cfg.LogLevel, "PERPCAST_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
