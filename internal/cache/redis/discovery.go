package redis

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/castora-xyz/castora-sub001/internal/domain"
	"github.com/redis/go-redis/v9"
)

// DiscoveryIndex implements domain.DiscoveryIndex as one set of pool ids per
// chain at "discovery:{chain}".
type DiscoveryIndex struct {
	rdb *redis.Client
}

// NewDiscoveryIndex creates a DiscoveryIndex backed by the given Client.
func NewDiscoveryIndex(c *Client) *DiscoveryIndex {
	return &DiscoveryIndex{rdb: c.Underlying()}
}

func discoveryKey(chain domain.Chain) string {
	return "discovery:" + string(chain)
}

// List marks the pool live. Listing twice is a no-op.
func (d *DiscoveryIndex) List(ctx context.Context, chain domain.Chain, poolID uint64) error {
	if err := d.rdb.SAdd(ctx, discoveryKey(chain), strconv.FormatUint(poolID, 10)).Err(); err != nil {
		return fmt.Errorf("redis: list pool %s/%d: %w", chain, poolID, err)
	}
	return nil
}

// Unlist removes the pool. Unlisting an absent pool is a no-op.
func (d *DiscoveryIndex) Unlist(ctx context.Context, chain domain.Chain, poolID uint64) error {
	if err := d.rdb.SRem(ctx, discoveryKey(chain), strconv.FormatUint(poolID, 10)).Err(); err != nil {
		return fmt.Errorf("redis: unlist pool %s/%d: %w", chain, poolID, err)
	}
	return nil
}

// Live returns the listed pool ids in ascending order.
func (d *DiscoveryIndex) Live(ctx context.Context, chain domain.Chain) ([]uint64, error) {
	members, err := d.rdb.SMembers(ctx, discoveryKey(chain)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: live pools %s: %w", chain, err)
	}
	ids := make([]uint64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseUint(m, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Compile-time interface check.
var _ domain.DiscoveryIndex = (*DiscoveryIndex)(nil)
