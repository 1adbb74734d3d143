package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/castora-xyz/castora-sub001/internal/domain"
	"github.com/redis/go-redis/v9"
)

// PriceCache implements domain.PriceCache with one hash per historical quote
// at "oracle:quote:{feedID}:{at}" holding price, expo and publish_time.
type PriceCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewPriceCache creates a PriceCache. A zero ttl keeps quotes forever.
func NewPriceCache(c *Client, ttl time.Duration) *PriceCache {
	return &PriceCache{rdb: c.Underlying(), ttl: ttl}
}

func quoteKey(feedID string, at int64) string {
	return "oracle:quote:" + feedID + ":" + strconv.FormatInt(at, 10)
}

// SetQuote stores the quote for feedID at the given unix second.
func (pc *PriceCache) SetQuote(ctx context.Context, feedID string, at int64, q domain.PriceQuote) error {
	key := quoteKey(feedID, at)
	fields := map[string]interface{}{
		"price":        strconv.FormatInt(q.Price, 10),
		"expo":         strconv.FormatInt(int64(q.Expo), 10),
		"publish_time": strconv.FormatInt(q.PublishTime, 10),
	}

	pipe := pc.rdb.TxPipeline()
	pipe.HSet(ctx, key, fields)
	if pc.ttl > 0 {
		pipe.Expire(ctx, key, pc.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set quote %s@%d: %w", feedID, at, err)
	}
	return nil
}

// GetQuote returns the cached quote or domain.ErrNotFound.
func (pc *PriceCache) GetQuote(ctx context.Context, feedID string, at int64) (domain.PriceQuote, error) {
	vals, err := pc.rdb.HGetAll(ctx, quoteKey(feedID, at)).Result()
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("redis: get quote %s@%d: %w", feedID, at, err)
	}
	if len(vals) == 0 {
		return domain.PriceQuote{}, domain.ErrNotFound
	}

	var q domain.PriceQuote
	if q.Price, err = parseField(vals, "price"); err != nil {
		return domain.PriceQuote{}, fmt.Errorf("redis: get quote %s@%d: %w", feedID, at, err)
	}
	expo, err := parseField(vals, "expo")
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("redis: get quote %s@%d: %w", feedID, at, err)
	}
	q.Expo = int32(expo)
	if q.PublishTime, err = parseField(vals, "publish_time"); err != nil {
		return domain.PriceQuote{}, fmt.Errorf("redis: get quote %s@%d: %w", feedID, at, err)
	}
	return q, nil
}

func parseField(vals map[string]string, name string) (int64, error) {
	raw, ok := vals[name]
	if !ok {
		return 0, fmt.Errorf("missing field %q", name)
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", name, err)
	}
	return v, nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
