package scheduler

import (
	"context"
	"errors"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/castora-xyz/castora-sub001/internal/domain"
	"github.com/castora-xyz/castora-sub001/internal/pipeline"
)

// ArchiveStage is implemented by *pipeline.Archiver.
type ArchiveStage interface {
	Archive(ctx context.Context, ref domain.PoolRef) (pipeline.Outcome, error)
}

// CompleteStage is implemented by *pipeline.Completer.
type CompleteStage interface {
	Complete(ctx context.Context, ref domain.PoolRef) (pipeline.Outcome, error)
}

// LeaderboardStage is implemented by *pipeline.LeaderboardUpdater.
type LeaderboardStage interface {
	Update(ctx context.Context, ref domain.PoolRef, progress domain.Progress) (pipeline.Outcome, error)
}

// NotifyStage is implemented by *pipeline.CreatorNotifier.
type NotifyStage interface {
	Notify(ctx context.Context, ref domain.PoolRef) (pipeline.Outcome, error)
}

// Stages are the activity implementations. A nil stage is not registered.
type Stages struct {
	Archiver    ArchiveStage
	Completer   CompleteStage
	Leaderboard LeaderboardStage
	Notifier    NotifyStage
}

// Activities adapts the pipeline stages to Temporal activities.
type Activities struct {
	stages Stages
}

// NewActivities creates the activity set.
func NewActivities(stages Stages) *Activities {
	return &Activities{stages: stages}
}

func (a *Activities) ArchivePool(ctx context.Context, ref domain.PoolRef) (string, error) {
	out, err := a.stages.Archiver.Archive(ctx, ref)
	return string(out), translate(err)
}

func (a *Activities) CompletePool(ctx context.Context, ref domain.PoolRef) (string, error) {
	out, err := a.stages.Completer.Complete(ctx, ref)
	return string(out), translate(err)
}

// UpdateLeaderboard resumes from the cursor of the last failed attempt.
func (a *Activities) UpdateLeaderboard(ctx context.Context, ref domain.PoolRef) (string, error) {
	out, err := a.stages.Leaderboard.Update(ctx, ref, newHeartbeatProgress(ctx))
	return string(out), translate(err)
}

func (a *Activities) NotifyCreator(ctx context.Context, ref domain.PoolRef) (string, error) {
	out, err := a.stages.Notifier.Notify(ctx, ref)
	return string(out), translate(err)
}

// translate tags invariant and too-early failures so they are visible in
// workflow history. Both remain retryable.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case domain.IsFatal(err):
		return temporal.NewApplicationErrorWithCause(err.Error(), ErrTypeInvariant, err)
	case errors.Is(err, domain.ErrTooEarly):
		return temporal.NewApplicationErrorWithCause(err.Error(), ErrTypeTooEarly, err)
	default:
		return err
	}
}

// heartbeatProgress keeps the job cursor in the activity's heartbeat
// details, which Temporal hands to the next attempt.
type heartbeatProgress struct {
	cur int
}

func newHeartbeatProgress(ctx context.Context) *heartbeatProgress {
	p := &heartbeatProgress{}
	if activity.HasHeartbeatDetails(ctx) {
		var n int
		if err := activity.GetHeartbeatDetails(ctx, &n); err == nil {
			p.cur = n
		}
	}
	return p
}

func (p *heartbeatProgress) Current() int { return p.cur }

func (p *heartbeatProgress) Update(ctx context.Context, n int) error {
	activity.RecordHeartbeat(ctx, n)
	p.cur = n
	return nil
}
