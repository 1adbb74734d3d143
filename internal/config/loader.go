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
// built-in defaults, applies CASTORA_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyChainDefaults(&cfg)
	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyChainDefaults fills per-chain fields that a TOML map entry cannot
// inherit from Defaults.
func applyChainDefaults(cfg *Config) {
	for name, ch := range cfg.Chains {
		if ch.CompletionMode == "" {
			ch.CompletionMode = CompletionBatched
		}
		if ch.ConfirmPoll.Duration <= 0 {
			ch.ConfirmPoll = duration{2 * time.Second}
		}
		if ch.ConfirmTimeout.Duration <= 0 {
			ch.ConfirmTimeout = duration{3 * time.Minute}
		}
		if ch.SupersededWait.Duration <= 0 {
			ch.SupersededWait = duration{5 * time.Second}
		}
		cfg.Chains[name] = ch
	}
}

// applyEnvOverrides reads well-known CASTORA_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Chains ──
	for name, ch := range cfg.Chains {
		prefix := "CASTORA_CHAINS_" + strings.ToUpper(name) + "_"
		setStr(&ch.RPCURL, prefix+"RPC_URL")
		setStr(&ch.ContractAddress, prefix+"CONTRACT_ADDRESS")
		setStr(&ch.CompletionMode, prefix+"COMPLETION_MODE")
		cfg.Chains[name] = ch
	}

	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "CASTORA_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "CASTORA_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "CASTORA_WALLET_KEY_PASSWORD")

	// ── Oracle ──
	setStr(&cfg.Oracle.HermesURL, "CASTORA_ORACLE_HERMES_URL")
	setInt(&cfg.Oracle.RateLimit, "CASTORA_ORACLE_RATE_LIMIT")
	setDuration(&cfg.Oracle.RateWindow, "CASTORA_ORACLE_RATE_WINDOW")
	setBool(&cfg.Oracle.CacheQuotes, "CASTORA_ORACLE_CACHE_QUOTES")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "CASTORA_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "CASTORA_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "CASTORA_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "CASTORA_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "CASTORA_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "CASTORA_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "CASTORA_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "CASTORA_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "CASTORA_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "CASTORA_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "CASTORA_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "CASTORA_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "CASTORA_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "CASTORA_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "CASTORA_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "CASTORA_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "CASTORA_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "CASTORA_S3_REGION")
	setStr(&cfg.S3.Bucket, "CASTORA_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "CASTORA_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "CASTORA_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "CASTORA_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "CASTORA_S3_FORCE_PATH_STYLE")

	// ── Temporal ──
	setStr(&cfg.Temporal.HostPort, "CASTORA_TEMPORAL_HOST_PORT")
	setStr(&cfg.Temporal.Namespace, "CASTORA_TEMPORAL_NAMESPACE")
	setStr(&cfg.Temporal.TaskQueue, "CASTORA_TEMPORAL_TASK_QUEUE")
	setInt(&cfg.Temporal.MaxAttempts, "CASTORA_TEMPORAL_MAX_ATTEMPTS")
	setDuration(&cfg.Temporal.InitialInterval, "CASTORA_TEMPORAL_INITIAL_INTERVAL")
	setFloat64(&cfg.Temporal.BackoffCoefficient, "CASTORA_TEMPORAL_BACKOFF_COEFFICIENT")
	setDuration(&cfg.Temporal.MaxInterval, "CASTORA_TEMPORAL_MAX_INTERVAL")
	setInt(&cfg.Temporal.WorkerConcurrency, "CASTORA_TEMPORAL_WORKER_CONCURRENCY")

	// ── Pipeline ──
	setDuration(&cfg.Pipeline.CompletionGrace, "CASTORA_PIPELINE_COMPLETION_GRACE")
	setBool(&cfg.Pipeline.LeaderboardEnabled, "CASTORA_PIPELINE_LEADERBOARD_ENABLED")
	setBool(&cfg.Pipeline.NotifyCreators, "CASTORA_PIPELINE_NOTIFY_CREATORS")
	setStr(&cfg.Pipeline.AppURL, "CASTORA_PIPELINE_APP_URL")
	setStr(&cfg.Pipeline.SweepCron, "CASTORA_PIPELINE_SWEEP_CRON")

	// ── Syncer ──
	setBool(&cfg.Syncer.Enabled, "CASTORA_SYNCER_ENABLED")
	setStr(&cfg.Syncer.Cron, "CASTORA_SYNCER_CRON")
	setDuration(&cfg.Syncer.Lookahead, "CASTORA_SYNCER_LOOKAHEAD")
	setBool(&cfg.Community.Enabled, "CASTORA_COMMUNITY_ENABLED")
	setStr(&cfg.Community.Cron, "CASTORA_COMMUNITY_CRON")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "CASTORA_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "CASTORA_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "CASTORA_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "CASTORA_SERVER_RATE_LIMIT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "CASTORA_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "CASTORA_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "CASTORA_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "CASTORA_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "CASTORA_MODE")
	setStr(&cfg.LogLevel, "CASTORA_LOG_LEVEL")
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
