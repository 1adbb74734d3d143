package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/castora-xyz/castora-sub001/internal/domain"
)

// OrchestratorConfig holds the cron specs (with a seconds field) of the
// scheduled loops. An empty expression disables the loop.
type OrchestratorConfig struct {
	Chains        []domain.Chain
	SyncerCron    string
	CommunityCron string
	SweepCron     string
}

// Loops are the scheduled components. A nil loop is disabled.
type Loops struct {
	Syncer    *Syncer
	Community *CommunityChecker
	Sweeper   *SettlementSweeper
}

// Orchestrator drives the syncer, the community checker and the settlement
// sweep on their cron schedules, fanning each tick out across chains.
type Orchestrator struct {
	syncer    *Syncer
	community *CommunityChecker
	sweeper   *SettlementSweeper
	cursors   domain.CursorStore
	cfg       OrchestratorConfig
	logger    *slog.Logger
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(loops Loops, cursors domain.CursorStore, cfg OrchestratorConfig, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		syncer:    loops.Syncer,
		community: loops.Community,
		sweeper:   loops.Sweeper,
		cursors:   cursors,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "orchestrator")),
	}
}

// Run runs one tick of every enabled loop immediately, then follows the cron
// schedules until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	c := cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))

	var ticks []func(context.Context) error
	if o.syncer != nil && o.cfg.SyncerCron != "" {
		if _, err := c.AddFunc(o.cfg.SyncerCron, func() { o.logTick(ctx, "syncer", o.SyncTick(ctx)) }); err != nil {
			return fmt.Errorf("orchestrator: syncer cron %q: %w", o.cfg.SyncerCron, err)
		}
		ticks = append(ticks, o.SyncTick)
	}
	if o.community != nil && o.cfg.CommunityCron != "" {
		if _, err := c.AddFunc(o.cfg.CommunityCron, func() { o.logTick(ctx, "community", o.CommunityTick(ctx)) }); err != nil {
			return fmt.Errorf("orchestrator: community cron %q: %w", o.cfg.CommunityCron, err)
		}
		ticks = append(ticks, o.CommunityTick)
	}
	if o.sweeper != nil && o.cfg.SweepCron != "" {
		if _, err := c.AddFunc(o.cfg.SweepCron, func() { o.logTick(ctx, "sweep", o.SweepTick(ctx)) }); err != nil {
			return fmt.Errorf("orchestrator: sweep cron %q: %w", o.cfg.SweepCron, err)
		}
		ticks = append(ticks, o.SweepTick)
	}

	o.logger.Info("orchestrator starting",
		slog.Int("chains", len(o.cfg.Chains)),
		slog.String("syncer_cron", o.cfg.SyncerCron),
		slog.String("community_cron", o.cfg.CommunityCron),
		slog.String("sweep_cron", o.cfg.SweepCron),
	)

	for _, tick := range ticks {
		o.logTick(ctx, "startup", tick(ctx))
	}

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()

	o.logger.Info("orchestrator stopped")
	return nil
}

func (o *Orchestrator) logTick(ctx context.Context, loop string, err error) {
	if err != nil && ctx.Err() == nil {
		o.logger.Error("tick failed", slog.String("loop", loop), slog.String("error", err.Error()))
	}
}

// SyncTick runs the syncer for every chain concurrently.
func (o *Orchestrator) SyncTick(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, ch := range o.cfg.Chains {
		g.Go(func() error {
			report, err := o.syncer.Sync(ctx, ch)
			if err != nil {
				return err
			}
			if len(report.Created) > 0 {
				o.logger.Info("sync tick created pools",
					slog.String("chain", string(ch)),
					slog.Int("created", len(report.Created)),
					slog.Int("existing", len(report.Existing)),
				)
			}
			return nil
		})
	}
	return g.Wait()
}

// CommunityTick advances each chain's community cursor and sweeps the
// discovery index.
func (o *Orchestrator) CommunityTick(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, ch := range o.cfg.Chains {
		g.Go(func() error {
			name := "community:" + string(ch)
			cursor, err := o.cursors.Get(ctx, name)
			if err != nil {
				return fmt.Errorf("community %s: load cursor: %w", ch, err)
			}
			next, checkErr := o.community.Check(ctx, ch, cursor)
			if next != cursor {
				if err := o.cursors.Set(ctx, name, next); err != nil {
					return fmt.Errorf("community %s: save cursor: %w", ch, err)
				}
			}
			if checkErr != nil {
				return checkErr
			}
			removed, err := o.community.Sweep(ctx, ch)
			if err != nil {
				return err
			}
			if removed > 0 {
				o.logger.Info("unlisted settled pools", slog.String("chain", string(ch)), slog.Int("removed", removed))
			}
			return nil
		})
	}
	return g.Wait()
}

// SweepTick re-enqueues lost follow-up jobs on every chain.
func (o *Orchestrator) SweepTick(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, ch := range o.cfg.Chains {
		g.Go(func() error {
			report, err := o.sweeper.Sweep(ctx, ch)
			if report.Leaderboard+report.Notify > 0 {
				o.logger.Info("re-enqueued settlement follow-ups",
					slog.String("chain", string(ch)),
					slog.Int("scanned", report.Scanned),
					slog.Int("leaderboard", report.Leaderboard),
					slog.Int("notify", report.Notify),
				)
			}
			return err
		})
	}
	return g.Wait()
}
