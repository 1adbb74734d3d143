package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"

	"github.com/castora-xyz/castora-sub001/internal/domain"
)

// Queue enqueues pool jobs as delayed workflow starts.
type Queue struct {
	client    client.Client
	taskQueue string
	logger    *slog.Logger
}

var _ domain.JobQueue = (*Queue)(nil)

// NewQueue creates a Queue on taskQueue.
func NewQueue(c client.Client, taskQueue string, logger *slog.Logger) *Queue {
	return &Queue{
		client:    c,
		taskQueue: taskQueue,
		logger:    logger.With(slog.String("component", "job-queue")),
	}
}

// Enqueue starts the job's workflow after opts.Delay. A job whose id is
// running, or already completed successfully, is left alone. A failed job
// with the same id is started again.
func (q *Queue) Enqueue(ctx context.Context, job domain.JobName, ref domain.PoolRef, opts domain.EnqueueOptions) error {
	name, ok := WorkflowName(job)
	if !ok {
		return fmt.Errorf("scheduler: unknown job %q", job)
	}
	id := opts.JobID
	if id == "" {
		id = domain.JobID(job, ref)
	}

	_, err := q.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:                                       id,
		TaskQueue:                                q.taskQueue,
		StartDelay:                               opts.Delay,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE_FAILED_ONLY,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}, name, ref)
	if err != nil {
		var started *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &started) {
			q.logger.DebugContext(ctx, "job already scheduled", slog.String("job_id", id))
			return nil
		}
		return fmt.Errorf("scheduler: enqueue %s: %w", id, err)
	}

	q.logger.DebugContext(ctx, "job enqueued",
		slog.String("job_id", id),
		slog.Duration("delay", opts.Delay),
	)
	return nil
}
