package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/castora-xyz/castora-sub001/internal/blob/s3"
	"github.com/castora-xyz/castora-sub001/internal/cache/redis"
	"github.com/castora-xyz/castora-sub001/internal/chain"
	"github.com/castora-xyz/castora-sub001/internal/config"
	"github.com/castora-xyz/castora-sub001/internal/crypto"
	"github.com/castora-xyz/castora-sub001/internal/domain"
	"github.com/castora-xyz/castora-sub001/internal/notify"
	"github.com/castora-xyz/castora-sub001/internal/oracle"
	"github.com/castora-xyz/castora-sub001/internal/scheduler"
	"github.com/castora-xyz/castora-sub001/internal/server/handler"
	"github.com/castora-xyz/castora-sub001/internal/store/postgres"
	"go.temporal.io/sdk/client"
)

// Dependencies bundles every concrete collaborator the modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Chains
	Gateways domain.Gateways
	Quoter   *oracle.Resolver

	// Stores
	Archives    domain.ArchiveStore
	Leaderboard domain.LeaderboardStore
	AuditStore  domain.AuditStore

	// Caches
	RateLimiter      domain.RateLimiter
	LockManager      domain.LockManager
	Discovery        domain.DiscoveryIndex
	Cursors          domain.CursorStore
	LeaderboardClock domain.LeaderboardClock
	Chats            domain.ChatDirectory

	// Scheduling
	Temporal client.Client
	Queue    *scheduler.Queue

	// Notifications
	Notifier    *notify.Notifier
	TelegramBot *notify.TelegramBot

	// HealthChecks probe every connected backend for GET /api/health.
	HealthChecks map[string]handler.Check
}

// needsArchives returns true for modes that run the settlement stages.
func needsArchives(mode string) bool {
	switch mode {
	case ModeWorker, ModeFull:
		return true
	default:
		return false
	}
}

// needsArchiveStore returns true when some component reads archives: the
// stages, or the settlement sweep run by the orchestrator in syncer mode.
func needsArchiveStore(cfg *config.Config) bool {
	return needsArchives(cfg.Mode) || (cfg.Mode == ModeSyncer && cfg.Pipeline.SweepCron != "")
}

// needsLeaderboard returns true when the leaderboard store must be wired.
func needsLeaderboard(cfg *config.Config) bool {
	return needsArchives(cfg.Mode) && cfg.Pipeline.LeaderboardEnabled
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{HealthChecks: map[string]handler.Check{}}

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		return fail(fmt.Errorf("wire: redis: %w", err))
	}
	closers = append(closers, func() { _ = redisClient.Close() })
	deps.HealthChecks["redis"] = redisClient.Ping

	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.Discovery = redis.NewDiscoveryIndex(redisClient)
	deps.Cursors = redis.NewCursorStore(redisClient)
	deps.LeaderboardClock = redis.NewLeaderboardClock(redisClient)
	deps.Chats = redis.NewChatDirectory(redisClient)

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		return fail(fmt.Errorf("wire: postgres: %w", err))
	}
	closers = append(closers, pgClient.Close)
	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			return fail(fmt.Errorf("wire: postgres migrations: %w", err))
		}
	}
	pool := pgClient.Pool()
	deps.HealthChecks["postgres"] = pool.Ping
	deps.AuditStore = postgres.NewAuditStore(pool)
	if needsLeaderboard(cfg) {
		deps.Leaderboard = postgres.NewLeaderboardStore(pool)
	}

	// --- S3 archive store ---
	if needsArchiveStore(cfg) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		deps.HealthChecks["s3"] = s3Client.Health
		deps.Archives = s3blob.NewArchiveStore(s3blob.NewReader(s3Client), s3blob.NewWriter(s3Client))
	}

	// --- Oracle ---
	hermes := oracle.NewHermesClient(oracle.HermesConfig{
		BaseURL:    cfg.Oracle.HermesURL,
		Timeout:    cfg.Oracle.Timeout.Duration,
		RateLimit:  cfg.Oracle.RateLimit,
		RateWindow: cfg.Oracle.RateWindow.Duration,
	}, deps.RateLimiter)
	var priceOracle domain.PriceOracle = hermes
	if cfg.Oracle.CacheQuotes {
		priceOracle = oracle.NewCachedOracle(hermes, redis.NewPriceCache(redisClient, cfg.Oracle.CacheTTL.Duration), logger)
	}
	deps.Quoter = oracle.NewResolver(priceOracle, chainTokens(cfg), cfg.Oracle.Feeds)

	// --- Chain gateways ---
	key, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    cfg.Wallet.PrivateKey,
		EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      cfg.Wallet.KeyPassword,
	})
	if err != nil {
		return fail(fmt.Errorf("wire: operator key: %w", err))
	}
	signer := crypto.NewSigner(key)
	logger.Info("operator account loaded", slog.String("address", signer.Address().Hex()))

	deps.Gateways = domain.Gateways{}
	for _, c := range cfg.ChainNames() {
		gw, closeGW, err := chain.Dial(ctx, gatewayConfig(c, cfg.Chains[string(c)]), signer, logger)
		if err != nil {
			return fail(fmt.Errorf("wire: %w", err))
		}
		closers = append(closers, closeGW)
		deps.Gateways[c] = gw
	}

	// --- Temporal ---
	tc, err := scheduler.Dial(ctx, scheduler.ClientConfig{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
	}, logger)
	if err != nil {
		return fail(fmt.Errorf("wire: %w", err))
	}
	closers = append(closers, tc.Close)
	deps.Temporal = tc
	deps.Queue = scheduler.NewQueue(tc, cfg.Temporal.TaskQueue, logger)
	deps.HealthChecks["temporal"] = func(ctx context.Context) error {
		_, err := tc.CheckHealth(ctx, nil)
		return err
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" {
		deps.TelegramBot = notify.NewTelegramBot(cfg.Notify.TelegramToken, "")
		if cfg.Notify.TelegramChatID != "" {
			senders = append(senders, notify.NewTelegramSender(deps.TelegramBot, cfg.Notify.TelegramChatID))
		}
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

func gatewayConfig(c domain.Chain, cc config.ChainConfig) chain.Config {
	return chain.Config{
		Chain:             c,
		RPCURL:            cc.RPCURL,
		ChainID:           cc.ChainID,
		ContractAddress:   cc.ContractAddress,
		ConfirmPoll:       cc.ConfirmPoll.Duration,
		ConfirmTimeout:    cc.ConfirmTimeout.Duration,
		SupersededBackoff: cc.SupersededWait.Duration,
	}
}

func chainTokens(cfg *config.Config) map[domain.Chain][]domain.Token {
	out := make(map[domain.Chain][]domain.Token, len(cfg.Chains))
	for _, c := range cfg.ChainNames() {
		for _, t := range cfg.Chains[string(c)].Tokens {
			out[c] = append(out[c], domain.Token{Address: t.Address, Symbol: t.Symbol, Decimals: t.Decimals})
		}
	}
	return out
}
