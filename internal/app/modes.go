package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/castora-xyz/castora-sub001/internal/config"
	"github.com/castora-xyz/castora-sub001/internal/domain"
	"github.com/castora-xyz/castora-sub001/internal/pipeline"
	"github.com/castora-xyz/castora-sub001/internal/scheduler"
	"github.com/castora-xyz/castora-sub001/internal/server"
	"github.com/castora-xyz/castora-sub001/internal/server/handler"
)

// WorkerMode runs the settlement stages as Temporal activities.
func (a *App) WorkerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting worker mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startWorker(ctx, g, deps)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// SyncerMode keeps template pools in existence and schedules community pools.
func (a *App) SyncerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting syncer mode")

	g, ctx := errgroup.WithContext(ctx)
	if err := a.startOrchestrator(ctx, g, deps); err != nil {
		return fmt.Errorf("syncer mode: %w", err)
	}
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// FullMode runs the worker and the orchestrator in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startWorker(ctx, g, deps)
	if err := a.startOrchestrator(ctx, g, deps); err != nil {
		return fmt.Errorf("full mode: %w", err)
	}
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

func (a *App) pipelineDeps(deps *Dependencies) pipeline.Deps {
	return pipeline.Deps{
		Gateways: deps.Gateways,
		Archives: deps.Archives,
		Audit:    deps.AuditStore,
		Alerter:  deps.Notifier,
		Logger:   a.base,
	}
}

// buildStages constructs the stage implementations enabled by config.
func (a *App) buildStages(deps *Dependencies) scheduler.Stages {
	pd := a.pipelineDeps(deps)
	pc := a.cfg.Pipeline
	notifyCreators := pc.NotifyCreators && deps.TelegramBot != nil

	archiver := pipeline.NewArchiver(pd)
	stages := scheduler.Stages{
		Archiver: archiver,
		Completer: pipeline.NewCompleter(pd, deps.Quoter, deps.Queue, archiver, pipeline.CompleterConfig{
			Modes:              completionModes(a.cfg),
			LeaderboardEnabled: deps.Leaderboard != nil,
			NotifyCreators:     notifyCreators,
		}),
	}
	if deps.Leaderboard != nil {
		stages.Leaderboard = pipeline.NewLeaderboardUpdater(pd, deps.Quoter, deps.Leaderboard, deps.LeaderboardClock, deps.Queue,
			pipeline.LeaderboardConfig{NotifyCreators: notifyCreators})
	}
	if notifyCreators {
		stages.Notifier = pipeline.NewCreatorNotifier(pd, deps.Chats, deps.TelegramBot, pc.AppURL)
	}
	return stages
}

func (a *App) startWorker(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	tc := a.cfg.Temporal
	wf := scheduler.NewWorkflows(scheduler.WorkflowConfig{
		Retry: scheduler.RetryConfig{
			MaxAttempts:        tc.MaxAttempts,
			InitialInterval:    tc.InitialInterval.Duration,
			BackoffCoefficient: tc.BackoffCoefficient,
			MaxInterval:        tc.MaxInterval.Duration,
		},
		ActivityTimeout:  tc.ActivityTimeout.Duration,
		HeartbeatTimeout: tc.HeartbeatTimeout.Duration,
	})
	w := scheduler.NewWorker(deps.Temporal, tc.TaskQueue, tc.WorkerConcurrency, wf, scheduler.NewActivities(a.buildStages(deps)))

	g.Go(func() error {
		a.logger.InfoContext(ctx, "temporal worker starting", slog.String("task_queue", tc.TaskQueue))
		if err := w.Start(); err != nil {
			return fmt.Errorf("worker: start: %w", err)
		}
		<-ctx.Done()
		w.Stop()
		return nil
	})
}

func (a *App) startOrchestrator(ctx context.Context, g *errgroup.Group, deps *Dependencies) error {
	pd := a.pipelineDeps(deps)
	grace := a.cfg.Pipeline.CompletionGrace.Duration

	var syncer *pipeline.Syncer
	ocfg := pipeline.OrchestratorConfig{Chains: a.cfg.ChainNames()}
	if a.cfg.Syncer.Enabled {
		tpls, err := templates(a.cfg.Syncer.Templates)
		if err != nil {
			return err
		}
		syncer = pipeline.NewSyncer(pd, deps.Queue, deps.LockManager, deps.Discovery, pipeline.SyncerConfig{
			Templates:       tpls,
			Lookahead:       a.cfg.Syncer.Lookahead.Duration,
			LockTTL:         a.cfg.Syncer.LockTTL.Duration,
			CompletionGrace: grace,
		})
		ocfg.SyncerCron = a.cfg.Syncer.Cron
	}

	var community *pipeline.CommunityChecker
	if a.cfg.Community.Enabled {
		community = pipeline.NewCommunityChecker(pd, deps.Queue, deps.Discovery, grace)
		ocfg.CommunityCron = a.cfg.Community.Cron
	}

	var sweeper *pipeline.SettlementSweeper
	if a.cfg.Pipeline.SweepCron != "" && deps.Archives != nil {
		sweeper = pipeline.NewSettlementSweeper(pd, deps.Queue, pipeline.SweepConfig{
			LeaderboardEnabled: a.cfg.Pipeline.LeaderboardEnabled,
			NotifyCreators:     a.cfg.Pipeline.NotifyCreators && deps.TelegramBot != nil,
		})
		ocfg.SweepCron = a.cfg.Pipeline.SweepCron
	}

	orch := pipeline.NewOrchestrator(pipeline.Loops{
		Syncer:    syncer,
		Community: community,
		Sweeper:   sweeper,
	}, deps.Cursors, ocfg, a.base)
	g.Go(func() error {
		return orch.Run(ctx)
	})
	return nil
}

// startHTTPServer adds the operator HTTP server to the errgroup when enabled.
// The server shuts down gracefully when ctx is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if !a.cfg.Server.Enabled {
		return
	}
	chains := make([]string, 0, len(deps.Gateways))
	for _, c := range a.cfg.ChainNames() {
		chains = append(chains, string(c))
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		Limiter:     deps.RateLimiter,
	}, server.Handlers{
		Health:      handler.NewHealthHandler(deps.HealthChecks, a.base),
		Status:      handler.NewStatusHandler(a.cfg.Mode, chains),
		Pools:       handler.NewPoolHandler(deps.Discovery, a.base),
		Leaderboard: handler.NewLeaderboardHandler(deps.Leaderboard, deps.LeaderboardClock, a.base),
		Audit:       handler.NewAuditHandler(deps.AuditStore, a.base),
	}, a.base)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

func completionModes(cfg *config.Config) map[domain.Chain]pipeline.CompletionMode {
	out := make(map[domain.Chain]pipeline.CompletionMode, len(cfg.Chains))
	for _, c := range cfg.ChainNames() {
		out[c] = pipeline.CompletionMode(cfg.Chains[string(c)].CompletionMode)
	}
	return out
}

func templates(cfgs []config.TemplateConfig) ([]pipeline.Template, error) {
	out := make([]pipeline.Template, 0, len(cfgs))
	for _, tc := range cfgs {
		stake, ok := new(big.Int).SetString(tc.StakeAmount, 10)
		if !ok {
			return nil, fmt.Errorf("template %s: invalid stake_amount %q", tc.Name, tc.StakeAmount)
		}
		chains := make([]domain.Chain, 0, len(tc.Chains))
		for _, name := range tc.Chains {
			c, err := domain.ParseChain(name)
			if err != nil {
				return nil, fmt.Errorf("template %s: %w", tc.Name, err)
			}
			chains = append(chains, c)
		}
		out = append(out, pipeline.Template{
			Name:            tc.Name,
			Chains:          chains,
			PredictionToken: tc.PredictionToken,
			StakeToken:      tc.StakeToken,
			StakeAmount:     stake,
			Duration:        tc.Duration.Duration,
			Cadence:         tc.Cadence.Duration,
			FeesPercent:     tc.FeesPercent,
			Multiplier:      tc.Multiplier,
			IsUnlisted:      tc.IsUnlisted,
		})
	}
	return out, nil
}
