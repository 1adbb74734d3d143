package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/castora-xyz/castora-sub001/internal/domain"
)

// SweepConfig mirrors the follow-up switches of the completer.
type SweepConfig struct {
	LeaderboardEnabled bool
	NotifyCreators     bool
}

// SweepReport counts the follow-up jobs one sweep re-enqueued.
type SweepReport struct {
	Scanned     int
	Leaderboard int
	Notify      int
}

// SettlementSweeper re-enqueues the stages that follow completion for every
// completed archive still missing them. It picks up pools whose follow-up
// enqueue was lost, e.g. after the completer workflow ran out of attempts.
// Job ids are deterministic, so a follow-up that is already queued or
// finished is not started again.
type SettlementSweeper struct {
	base
	queue domain.JobQueue
	cfg   SweepConfig
}

// NewSettlementSweeper creates a SettlementSweeper.
func NewSettlementSweeper(deps Deps, queue domain.JobQueue, cfg SweepConfig) *SettlementSweeper {
	return &SettlementSweeper{
		base:  deps.base("settlement_sweep"),
		queue: queue,
		cfg:   cfg,
	}
}

// Sweep walks the archives of ch. It stops at the first error and reports
// what it enqueued up to then.
func (s *SettlementSweeper) Sweep(ctx context.Context, ch domain.Chain) (SweepReport, error) {
	var report SweepReport
	ids, err := s.archives.PoolIDs(ctx, ch)
	if err != nil {
		return report, fmt.Errorf("settlement sweep %s: list archives: %w", ch, err)
	}

	for _, id := range ids {
		archived, err := s.archives.Get(ctx, ch, id)
		if err != nil {
			return report, fmt.Errorf("settlement sweep %s: load pool %d: %w", ch, id, err)
		}
		report.Scanned++

		job, ok := s.pending(archived)
		if !ok {
			continue
		}
		ref := domain.PoolRef{Chain: ch, PoolID: id}
		if err := s.queue.Enqueue(ctx, job, ref, domain.EnqueueOptions{}); err != nil {
			return report, fmt.Errorf("settlement sweep %s: enqueue %s for pool %d: %w", ch, job, id, err)
		}
		if job == domain.JobUpdateLeaderboard {
			report.Leaderboard++
		} else {
			report.Notify++
		}
		s.poolLogger(ref).DebugContext(ctx, "follow-up re-enqueued", slog.String("job", string(job)))
	}
	return report, nil
}

// pending returns the next follow-up a completed archive still needs. The
// leaderboard comes first; it enqueues the creator notification itself.
func (s *SettlementSweeper) pending(a domain.ArchivedPool) (domain.JobName, bool) {
	if a.Results == nil {
		return "", false
	}
	win := a.Pool.WinAmount
	if s.cfg.LeaderboardEnabled && win != nil && win.Sign() > 0 && !a.HasBeenProcessedInLeaderboard {
		return domain.JobUpdateLeaderboard, true
	}
	if s.cfg.NotifyCreators && a.Pool.HasCreator() && !a.HasNotifiedCreatorOnTelegram {
		return domain.JobNotifyCreator, true
	}
	return "", false
}
