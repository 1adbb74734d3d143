package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/castora-xyz/castora-sub001/internal/chain"
	"github.com/castora-xyz/castora-sub001/internal/domain"
)

// Template is a recurring pool shape. A template yields one pool per
// Cadence, each closing for entries on a Cadence boundary and snapshotting
// Duration later.
type Template struct {
	Name            string
	Chains          []domain.Chain
	PredictionToken string
	StakeToken      string
	StakeAmount     *big.Int
	Duration        time.Duration
	Cadence         time.Duration
	FeesPercent     uint16
	Multiplier      uint16
	IsUnlisted      bool
}

func (t Template) appliesTo(c domain.Chain) bool {
	if len(t.Chains) == 0 {
		return true
	}
	for _, tc := range t.Chains {
		if tc == c {
			return true
		}
	}
	return false
}

// SyncerConfig tunes the Syncer.
type SyncerConfig struct {
	Templates       []Template
	Lookahead       time.Duration
	LockTTL         time.Duration
	CompletionGrace time.Duration
}

// SyncReport summarises one Sync run.
type SyncReport struct {
	Chain    domain.Chain
	Created  []uint64
	Existing []uint64
	LockHeld bool
}

// Syncer keeps each template's upcoming pools in existence on chain and
// schedules their settlement jobs.
type Syncer struct {
	base
	queue     domain.JobQueue
	locks     domain.LockManager
	discovery domain.DiscoveryIndex
	cfg       SyncerConfig
	seedsHash func(domain.PoolSeeds) (string, error)
}

// NewSyncer creates a Syncer. discovery may be nil.
func NewSyncer(deps Deps, queue domain.JobQueue, locks domain.LockManager, discovery domain.DiscoveryIndex, cfg SyncerConfig) *Syncer {
	return &Syncer{
		base:      deps.base("syncer"),
		queue:     queue,
		locks:     locks,
		discovery: discovery,
		cfg:       cfg,
		seedsHash: chain.SeedsHash,
	}
}

// Sync creates missing pools for the chain's templates and (re)schedules
// their jobs. Job ids are deterministic, so rescheduling an existing pool is
// a no-op at the queue. A tick that finds the chain lock held does nothing.
func (s *Syncer) Sync(ctx context.Context, c domain.Chain) (SyncReport, error) {
	report := SyncReport{Chain: c}
	log := s.logger.With(slog.String("chain", string(c)))

	gw, err := s.gateways.Get(c)
	if err != nil {
		return report, err
	}

	unlock, err := s.locks.Acquire(ctx, "syncer:"+string(c), s.cfg.LockTTL)
	if errors.Is(err, domain.ErrLockHeld) {
		log.DebugContext(ctx, "syncer lock held elsewhere, skipping tick")
		report.LockHeld = true
		return report, nil
	}
	if err != nil {
		return report, fmt.Errorf("syncer %s: %w", c, err)
	}
	defer unlock()

	now := s.now()
	for _, tpl := range s.cfg.Templates {
		if !tpl.appliesTo(c) {
			continue
		}
		for _, seeds := range s.upcomingSeeds(tpl, now) {
			id, created, err := s.ensurePool(ctx, gw, seeds)
			if err != nil {
				return report, fmt.Errorf("syncer %s template %s window %d: %w", c, tpl.Name, seeds.WindowCloseTime, err)
			}
			if created {
				report.Created = append(report.Created, id)
				log.InfoContext(ctx, "pool created",
					slog.String("template", tpl.Name),
					slog.Uint64("pool_id", id),
					slog.Int64("window_close", seeds.WindowCloseTime),
				)
				s.record(ctx, auditCreated, domain.PoolRef{Chain: c, PoolID: id}, map[string]any{"template": tpl.Name})
			} else {
				report.Existing = append(report.Existing, id)
			}

			ref := domain.PoolRef{Chain: c, PoolID: id}
			if err := scheduleSettlement(ctx, s.queue, ref, seeds, now, s.cfg.CompletionGrace); err != nil {
				return report, fmt.Errorf("syncer %s pool %d: %w", c, id, err)
			}
			if s.discovery != nil && !seeds.IsUnlisted {
				if err := s.discovery.List(ctx, c, id); err != nil {
					log.WarnContext(ctx, "discovery list failed", slog.Uint64("pool_id", id), slog.String("error", err.Error()))
				}
			}
		}
	}
	return report, nil
}

// upcomingSeeds returns the template's pools whose window closes within
// (now, now+lookahead], starting at the next cadence boundary.
func (s *Syncer) upcomingSeeds(tpl Template, now time.Time) []domain.PoolSeeds {
	cadence := tpl.Cadence
	if cadence <= 0 {
		cadence = tpl.Duration
	}
	if cadence <= 0 {
		return nil
	}
	step := int64(cadence / time.Second)
	if step <= 0 {
		return nil
	}
	horizon := now.Add(s.cfg.Lookahead).Unix()
	first := (now.Unix()/step + 1) * step

	var out []domain.PoolSeeds
	for wc := first; wc <= horizon || len(out) == 0; wc += step {
		out = append(out, domain.PoolSeeds{
			PredictionToken: tpl.PredictionToken,
			StakeToken:      tpl.StakeToken,
			StakeAmount:     new(big.Int).Set(tpl.StakeAmount),
			WindowCloseTime: wc,
			SnapshotTime:    wc + int64(tpl.Duration/time.Second),
			FeesPercent:     tpl.FeesPercent,
			Multiplier:      tpl.Multiplier,
			IsUnlisted:      tpl.IsUnlisted,
		})
	}
	return out
}

// ensurePool finds the pool with the seeds' hash or creates it.
func (s *Syncer) ensurePool(ctx context.Context, gw domain.ChainGateway, seeds domain.PoolSeeds) (uint64, bool, error) {
	hash, err := s.seedsHash(seeds)
	if err != nil {
		return 0, false, fmt.Errorf("seeds hash: %w", err)
	}
	id, err := gw.PoolIDBySeedsHash(ctx, hash)
	if err != nil {
		return 0, false, fmt.Errorf("lookup seeds hash: %w", err)
	}
	if id != 0 {
		return id, false, nil
	}
	if err := gw.CreatePool(ctx, seeds); err != nil {
		return 0, false, fmt.Errorf("create pool: %w", err)
	}
	id, err = gw.PoolIDBySeedsHash(ctx, hash)
	if err != nil {
		return 0, false, fmt.Errorf("lookup created pool: %w", err)
	}
	if id == 0 {
		return 0, false, domain.Invariant("syncer", "pool with seeds hash %s missing after creation", hash)
	}
	return id, true, nil
}
