package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/castora-xyz/castora-sub001/internal/domain"
)

// CommunityChecker picks up pools created by users. The contract keeps an
// append-only list of them; the caller owns the cursor into that list.
type CommunityChecker struct {
	base
	queue     domain.JobQueue
	discovery domain.DiscoveryIndex
	grace     time.Duration
}

// NewCommunityChecker creates a CommunityChecker. discovery may be nil.
func NewCommunityChecker(deps Deps, queue domain.JobQueue, discovery domain.DiscoveryIndex, completionGrace time.Duration) *CommunityChecker {
	return &CommunityChecker{
		base:      deps.base("community"),
		queue:     queue,
		discovery: discovery,
		grace:     completionGrace,
	}
}

// Check schedules every user-created pool from index cursor onwards and
// returns the next cursor. On error the returned cursor still covers every
// pool handled before the failure, so the caller can persist it.
func (c *CommunityChecker) Check(ctx context.Context, ch domain.Chain, cursor uint64) (uint64, error) {
	gw, err := c.gateways.Get(ch)
	if err != nil {
		return cursor, err
	}
	total, err := gw.NoOfUserCreatedPools(ctx)
	if err != nil {
		return cursor, fmt.Errorf("community %s: count pools: %w", ch, err)
	}

	now := c.now()
	for ; cursor < total; cursor++ {
		id, err := gw.UserCreatedPoolID(ctx, cursor)
		if err != nil {
			return cursor, fmt.Errorf("community %s: pool at %d: %w", ch, cursor, err)
		}
		pool, err := gw.ReadPool(ctx, id)
		if err != nil {
			return cursor, fmt.Errorf("community %s: read pool %d: %w", ch, id, err)
		}

		ref := domain.PoolRef{Chain: ch, PoolID: id}
		if err := scheduleSettlement(ctx, c.queue, ref, pool.Seeds, now, c.grace); err != nil {
			return cursor, fmt.Errorf("community %s pool %d: %w", ch, id, err)
		}
		if c.discovery != nil && !pool.Seeds.IsUnlisted && now.Unix() < pool.Seeds.SnapshotTime {
			if err := c.discovery.List(ctx, ch, id); err != nil {
				return cursor, fmt.Errorf("community %s: list pool %d: %w", ch, id, err)
			}
		}
		c.poolLogger(ref).InfoContext(ctx, "community pool observed",
			slog.String("creator", pool.Creator),
			slog.Int64("snapshot_time", pool.Seeds.SnapshotTime),
		)
	}
	return cursor, nil
}

// Sweep unlists live pools whose snapshot time has passed.
func (c *CommunityChecker) Sweep(ctx context.Context, ch domain.Chain) (int, error) {
	if c.discovery == nil {
		return 0, nil
	}
	gw, err := c.gateways.Get(ch)
	if err != nil {
		return 0, err
	}
	live, err := c.discovery.Live(ctx, ch)
	if err != nil {
		return 0, fmt.Errorf("sweep %s: %w", ch, err)
	}

	now := c.now().Unix()
	var removed int
	for _, id := range live {
		pool, err := gw.ReadPool(ctx, id)
		if err != nil {
			return removed, fmt.Errorf("sweep %s: read pool %d: %w", ch, id, err)
		}
		if now < pool.Seeds.SnapshotTime {
			continue
		}
		if err := c.discovery.Unlist(ctx, ch, id); err != nil {
			return removed, fmt.Errorf("sweep %s: unlist pool %d: %w", ch, id, err)
		}
		removed++
	}
	return removed, nil
}
