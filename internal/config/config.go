// Package config defines the top-level configuration for the settler and
// provides validation helpers.
package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/castora-xyz/castora-sub001/internal/domain"
	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by CASTORA_* environment variables.
type Config struct {
	Chains    map[string]ChainConfig `toml:"chains"`
	Wallet    WalletConfig           `toml:"wallet"`
	Oracle    OracleConfig           `toml:"oracle"`
	Postgres  PostgresConfig         `toml:"postgres"`
	Redis     RedisConfig            `toml:"redis"`
	S3        S3Config               `toml:"s3"`
	Temporal  TemporalConfig         `toml:"temporal"`
	Pipeline  PipelineConfig         `toml:"pipeline"`
	Syncer    SyncerConfig           `toml:"syncer"`
	Community CommunityConfig        `toml:"community"`
	Server    ServerConfig           `toml:"server"`
	Notify    NotifyConfig           `toml:"notify"`
	Mode      string                 `toml:"mode"`
	LogLevel  string                 `toml:"log_level"`
}

// ChainConfig describes one settlement contract deployment.
type ChainConfig struct {
	RPCURL          string        `toml:"rpc_url"`
	ChainID         int64         `toml:"chain_id"`
	ContractAddress string        `toml:"contract_address"`
	CompletionMode  string        `toml:"completion_mode"`
	ConfirmPoll     duration      `toml:"confirm_poll"`
	ConfirmTimeout  duration      `toml:"confirm_timeout"`
	SupersededWait  duration      `toml:"superseded_backoff"`
	Tokens          []TokenConfig `toml:"tokens"`
}

// TokenConfig maps a token contract to the oracle symbol used to price it.
type TokenConfig struct {
	Address  string `toml:"address"`
	Symbol   string `toml:"symbol"`
	Decimals uint8  `toml:"decimals"`
}

// Completion modes.
const (
	CompletionBatched = "batched"
	CompletionSingle  = "single"
)

// WalletConfig holds the operator key used to sign contract writes.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// OracleConfig holds Pyth Hermes parameters.
type OracleConfig struct {
	HermesURL string `toml:"hermes_url"`
	// Feeds maps a token symbol to its Pyth price feed id.
	Feeds       map[string]string `toml:"feeds"`
	Timeout     duration          `toml:"timeout"`
	RateLimit   int               `toml:"rate_limit"`
	RateWindow  duration          `toml:"rate_window"`
	CacheTTL    duration          `toml:"cache_ttl"`
	CacheQuotes bool              `toml:"cache_quotes"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
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

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// TemporalConfig holds the job scheduler connection and retry policy.
type TemporalConfig struct {
	HostPort           string   `toml:"host_port"`
	Namespace          string   `toml:"namespace"`
	TaskQueue          string   `toml:"task_queue"`
	MaxAttempts        int      `toml:"max_attempts"`
	InitialInterval    duration `toml:"initial_interval"`
	BackoffCoefficient float64  `toml:"backoff_coefficient"`
	MaxInterval        duration `toml:"max_interval"`
	ActivityTimeout    duration `toml:"activity_timeout"`
	HeartbeatTimeout   duration `toml:"heartbeat_timeout"`
	WorkerConcurrency  int      `toml:"worker_concurrency"`
}

// PipelineConfig holds settlement stage parameters.
type PipelineConfig struct {
	CompletionGrace    duration `toml:"completion_grace"`
	LeaderboardEnabled bool     `toml:"leaderboard_enabled"`
	NotifyCreators     bool     `toml:"notify_creators"`
	AppURL             string   `toml:"app_url"`
	// SweepCron schedules the re-enqueue of lost follow-up jobs. Empty
	// disables the sweep.
	SweepCron string `toml:"sweep_cron"`
}

// SyncerConfig holds pool discovery and creation parameters.
type SyncerConfig struct {
	Enabled   bool             `toml:"enabled"`
	Cron      string           `toml:"cron"`
	Lookahead duration         `toml:"lookahead"`
	LockTTL   duration         `toml:"lock_ttl"`
	Templates []TemplateConfig `toml:"templates"`
}

// TemplateConfig is one recurring pool shape. StakeAmount is a decimal
// integer in the stake token's smallest unit.
type TemplateConfig struct {
	Name            string   `toml:"name"`
	Chains          []string `toml:"chains"`
	PredictionToken string   `toml:"prediction_token"`
	StakeToken      string   `toml:"stake_token"`
	StakeAmount     string   `toml:"stake_amount"`
	Duration        duration `toml:"duration"`
	Cadence         duration `toml:"cadence"`
	FeesPercent     uint16   `toml:"fees_percent"`
	Multiplier      uint16   `toml:"multiplier"`
	IsUnlisted      bool     `toml:"is_unlisted"`
}

// CommunityConfig holds parameters of the user-created pool checker.
type CommunityConfig struct {
	Enabled bool   `toml:"enabled"`
	Cron    string `toml:"cron"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// Duration builds a config duration. It is mostly useful in tests.
func Duration(d time.Duration) duration {
	return duration{d}
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
	// RateLimit is requests per client per minute; 0 disables limiting.
	RateLimit int `toml:"rate_limit"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Chains: map[string]ChainConfig{},
		Oracle: OracleConfig{
			HermesURL:   "https://hermes.pyth.network",
			Feeds:       map[string]string{},
			Timeout:     duration{10 * time.Second},
			RateLimit:   20,
			RateWindow:  duration{time.Second},
			CacheTTL:    duration{7 * 24 * time.Hour},
			CacheQuotes: true,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "castora",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "castora-archives",
			ForcePathStyle: true,
		},
		Temporal: TemporalConfig{
			HostPort:           "localhost:7233",
			Namespace:          "default",
			TaskQueue:          "castora-settlement",
			MaxAttempts:        10,
			InitialInterval:    duration{10 * time.Second},
			BackoffCoefficient: 2.0,
			MaxInterval:        duration{30 * time.Minute},
			ActivityTimeout:    duration{30 * time.Minute},
			HeartbeatTimeout:   duration{2 * time.Minute},
			WorkerConcurrency:  4,
		},
		Pipeline: PipelineConfig{
			CompletionGrace:    duration{10 * time.Second},
			LeaderboardEnabled: true,
			NotifyCreators:     true,
			AppURL:             "https://castora.xyz",
			SweepCron:          "0 */10 * * * *",
		},
		Syncer: SyncerConfig{
			Enabled:   true,
			Cron:      "0 */5 * * * *",
			Lookahead: duration{24 * time.Hour},
			LockTTL:   duration{4 * time.Minute},
		},
		Community: CommunityConfig{
			Enabled: true,
			Cron:    "*/30 * * * * *",
		},
		Server: ServerConfig{
			Enabled:   true,
			Port:      8000,
			RateLimit: 120,
		},
		Notify: NotifyConfig{
			Events: []string{"pool_completed", "error"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"worker": true,
	"syncer": true,
	"full":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: worker, syncer, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Chains
	if len(c.Chains) == 0 {
		errs = append(errs, "chains: at least one chain must be configured")
	}
	for name, ch := range c.Chains {
		if _, err := domain.ParseChain(name); err != nil {
			errs = append(errs, fmt.Sprintf("chains.%s: unsupported chain (valid: monadtestnet, sepolia)", name))
			continue
		}
		if ch.RPCURL == "" {
			errs = append(errs, fmt.Sprintf("chains.%s: rpc_url must not be empty", name))
		}
		if ch.ChainID <= 0 {
			errs = append(errs, fmt.Sprintf("chains.%s: chain_id must be positive", name))
		}
		if !isHexAddress(ch.ContractAddress) {
			errs = append(errs, fmt.Sprintf("chains.%s: contract_address %q is not a hex address", name, ch.ContractAddress))
		}
		if ch.CompletionMode != CompletionBatched && ch.CompletionMode != CompletionSingle {
			errs = append(errs, fmt.Sprintf("chains.%s: completion_mode must be %q or %q, got %q", name, CompletionBatched, CompletionSingle, ch.CompletionMode))
		}
		for i, tok := range ch.Tokens {
			if !isHexAddress(tok.Address) {
				errs = append(errs, fmt.Sprintf("chains.%s.tokens[%d]: address %q is not a hex address", name, i, tok.Address))
			}
			if tok.Symbol == "" {
				errs = append(errs, fmt.Sprintf("chains.%s.tokens[%d]: symbol must not be empty", name, i))
			} else if _, ok := c.Oracle.Feeds[tok.Symbol]; !ok {
				errs = append(errs, fmt.Sprintf("chains.%s.tokens[%d]: no oracle feed for symbol %s", name, i, tok.Symbol))
			}
		}
	}

	// Wallet is needed by every mode: the worker completes pools, the syncer creates them.
	if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
		errs = append(errs, "wallet: either private_key or encrypted_key_path must be set")
	}
	if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
		errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
	}

	// Oracle
	if c.Oracle.HermesURL == "" {
		errs = append(errs, "oracle: hermes_url must not be empty")
	}
	if c.Oracle.RateLimit < 1 {
		errs = append(errs, "oracle: rate_limit must be >= 1")
	}

	// Postgres
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
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3
	if c.S3.Endpoint == "" {
		errs = append(errs, "s3: endpoint must not be empty")
	}
	if c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty")
	}

	// Temporal
	if c.Temporal.HostPort == "" {
		errs = append(errs, "temporal: host_port must not be empty")
	}
	if c.Temporal.TaskQueue == "" {
		errs = append(errs, "temporal: task_queue must not be empty")
	}
	if c.Temporal.MaxAttempts < 1 {
		errs = append(errs, "temporal: max_attempts must be >= 1")
	}
	if c.Temporal.BackoffCoefficient < 1 {
		errs = append(errs, "temporal: backoff_coefficient must be >= 1")
	}

	// Syncer
	if c.Syncer.Enabled {
		if c.Syncer.Cron == "" {
			errs = append(errs, "syncer: cron must not be empty when enabled")
		}
		if c.Syncer.LockTTL.Duration <= 0 {
			errs = append(errs, "syncer: lock_ttl must be > 0")
		}
		for i, tpl := range c.Syncer.Templates {
			errs = append(errs, tpl.problems(i)...)
		}
	}
	if c.Community.Enabled && c.Community.Cron == "" {
		errs = append(errs, "community: cron must not be empty when enabled")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func (t TemplateConfig) problems(i int) []string {
	var errs []string
	prefix := fmt.Sprintf("syncer.templates[%d]", i)
	if t.Name != "" {
		prefix += " (" + t.Name + ")"
	}
	if !isHexAddress(t.PredictionToken) {
		errs = append(errs, prefix+": prediction_token is not a hex address")
	}
	if !isHexAddress(t.StakeToken) {
		errs = append(errs, prefix+": stake_token is not a hex address")
	}
	if amt, ok := new(big.Int).SetString(t.StakeAmount, 10); !ok || amt.Sign() <= 0 {
		errs = append(errs, prefix+": stake_amount must be a positive integer")
	}
	if t.Duration.Duration < time.Minute {
		errs = append(errs, prefix+": duration must be at least 1m")
	}
	if t.Cadence.Duration < time.Minute {
		errs = append(errs, prefix+": cadence must be at least 1m")
	}
	if t.Multiplier < 2 {
		errs = append(errs, prefix+": multiplier must be >= 2")
	}
	if t.FeesPercent >= 100 {
		errs = append(errs, prefix+": fees_percent must be < 100")
	}
	for _, name := range t.Chains {
		if _, err := domain.ParseChain(name); err != nil {
			errs = append(errs, prefix+": "+err.Error())
		}
	}
	return errs
}

func isHexAddress(s string) bool {
	return strings.HasPrefix(s, "0x") && common.IsHexAddress(s)
}

// ChainNames returns the configured chains as domain values.
func (c *Config) ChainNames() []domain.Chain {
	out := make([]domain.Chain, 0, len(c.Chains))
	for _, known := range domain.SupportedChains {
		if _, ok := c.Chains[string(known)]; ok {
			out = append(out, known)
		}
	}
	return out
}
