package scheduler

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/castora-xyz/castora-sub001/internal/domain"
)

// RetryConfig is the bounded exponential backoff applied to every stage.
type RetryConfig struct {
	MaxAttempts        int
	InitialInterval    time.Duration
	BackoffCoefficient float64
	MaxInterval        time.Duration
}

func (r RetryConfig) policy() *temporal.RetryPolicy {
	return &temporal.RetryPolicy{
		InitialInterval:    r.InitialInterval,
		BackoffCoefficient: r.BackoffCoefficient,
		MaximumInterval:    r.MaxInterval,
		MaximumAttempts:    int32(r.MaxAttempts),
	}
}

// WorkflowConfig tunes the stage activities.
type WorkflowConfig struct {
	Retry            RetryConfig
	ActivityTimeout  time.Duration
	HeartbeatTimeout time.Duration
}

// Workflows holds one workflow per pool job.
type Workflows struct {
	cfg WorkflowConfig
}

// NewWorkflows creates the workflow set.
func NewWorkflows(cfg WorkflowConfig) *Workflows {
	if cfg.ActivityTimeout <= 0 {
		cfg.ActivityTimeout = 10 * time.Minute
	}
	return &Workflows{cfg: cfg}
}

// ArchivePool snapshots a closed pool's predictions.
func (w *Workflows) ArchivePool(ctx workflow.Context, ref domain.PoolRef) (string, error) {
	return w.run(ctx, ArchivePoolActivityName, ref, false)
}

// CompletePool settles a pool on chain and records its winners.
func (w *Workflows) CompletePool(ctx workflow.Context, ref domain.PoolRef) (string, error) {
	return w.run(ctx, CompletePoolActivityName, ref, false)
}

// UpdateLeaderboard credits a settled pool's participants. Its activity
// heartbeats its cursor.
func (w *Workflows) UpdateLeaderboard(ctx workflow.Context, ref domain.PoolRef) (string, error) {
	return w.run(ctx, UpdateLeaderboardActivityName, ref, true)
}

// NotifyCreator messages a community pool's creator.
func (w *Workflows) NotifyCreator(ctx workflow.Context, ref domain.PoolRef) (string, error) {
	return w.run(ctx, NotifyCreatorActivityName, ref, false)
}

func (w *Workflows) run(ctx workflow.Context, activity string, ref domain.PoolRef, heartbeats bool) (string, error) {
	opts := workflow.ActivityOptions{
		StartToCloseTimeout: w.cfg.ActivityTimeout,
		RetryPolicy:         w.cfg.Retry.policy(),
	}
	if heartbeats {
		opts.HeartbeatTimeout = w.cfg.HeartbeatTimeout
	}
	ctx = workflow.WithActivityOptions(ctx, opts)
	logger := workflow.GetLogger(ctx)

	var outcome string
	if err := workflow.ExecuteActivity(ctx, activity, ref).Get(ctx, &outcome); err != nil {
		logger.Error("stage exhausted retries",
			"activity", activity,
			"chain", string(ref.Chain),
			"pool_id", ref.PoolID,
			"error", err,
		)
		return "", err
	}
	logger.Info("stage finished",
		"activity", activity,
		"chain", string(ref.Chain),
		"pool_id", ref.PoolID,
		"outcome", outcome,
	)
	return outcome, nil
}
