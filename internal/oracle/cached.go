package oracle

import (
	"context"
	"errors"
	"log/slog"

	"github.com/castora-xyz/castora-sub001/internal/domain"
)

// CachedOracle serves repeated lookups of the same (feed, time) from the
// price cache. Historical quotes never change, so there is no invalidation.
type CachedOracle struct {
	next   domain.PriceOracle
	cache  domain.PriceCache
	logger *slog.Logger
}

// NewCachedOracle wraps next with cache.
func NewCachedOracle(next domain.PriceOracle, cache domain.PriceCache, logger *slog.Logger) *CachedOracle {
	return &CachedOracle{
		next:   next,
		cache:  cache,
		logger: logger.With(slog.String("component", "oracle_cache")),
	}
}

// GetPrice implements domain.PriceOracle.
func (c *CachedOracle) GetPrice(ctx context.Context, feedID string, at int64) (domain.PriceQuote, error) {
	q, err := c.cache.GetQuote(ctx, feedID, at)
	if err == nil {
		return q, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		c.logger.WarnContext(ctx, "price cache read failed", slog.String("error", err.Error()))
	}

	q, err = c.next.GetPrice(ctx, feedID, at)
	if err != nil {
		return domain.PriceQuote{}, err
	}
	if err := c.cache.SetQuote(ctx, feedID, at, q); err != nil {
		c.logger.WarnContext(ctx, "price cache write failed", slog.String("error", err.Error()))
	}
	return q, nil
}

var _ domain.PriceOracle = (*CachedOracle)(nil)
