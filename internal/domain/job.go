package domain

import (
	"context"
	"fmt"
	"time"
)

// JobName identifies a pipeline stage.
type JobName string

const (
	JobArchivePool       JobName = "archive-pool"
	JobCompletePool      JobName = "complete-pool"
	JobUpdateLeaderboard JobName = "update-leaderboard"
	JobNotifyCreator     JobName = "notify-creator"
)

// JobID is the deterministic dedupe key of a pool job.
func JobID(job JobName, ref PoolRef) string {
	return fmt.Sprintf("%s:%s:%d", job, ref.Chain, ref.PoolID)
}

// EnqueueOptions controls how a job is scheduled. An empty JobID falls back
// to JobID(job, ref).
type EnqueueOptions struct {
	Delay time.Duration
	JobID string
}

// JobQueue is the durable delayed job queue. Enqueueing a job whose id is
// already scheduled or running is not an error.
type JobQueue interface {
	Enqueue(ctx context.Context, job JobName, ref PoolRef, opts EnqueueOptions) error
}

// Progress is the per-job resumable counter persisted by the scheduler.
type Progress interface {
	Current() int
	Update(ctx context.Context, n int) error
}
