package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/castora-xyz/castora-sub001/internal/domain"
)

// scheduleSettlement enqueues the archive job for window close and the
// completion job for snapshot time plus grace. Past deadlines run at once.
func scheduleSettlement(ctx context.Context, queue domain.JobQueue, ref domain.PoolRef, seeds domain.PoolSeeds, now time.Time, grace time.Duration) error {
	archiveDelay := untilUnix(seeds.WindowCloseTime, now)
	if err := queue.Enqueue(ctx, domain.JobArchivePool, ref, domain.EnqueueOptions{Delay: archiveDelay}); err != nil {
		return fmt.Errorf("enqueue archive: %w", err)
	}
	completeDelay := untilUnix(seeds.SnapshotTime, now) + grace
	if err := queue.Enqueue(ctx, domain.JobCompletePool, ref, domain.EnqueueOptions{Delay: completeDelay}); err != nil {
		return fmt.Errorf("enqueue completion: %w", err)
	}
	return nil
}

func untilUnix(ts int64, now time.Time) time.Duration {
	d := time.Unix(ts, 0).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
