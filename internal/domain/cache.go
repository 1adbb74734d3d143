package domain

import (
	"context"
	"time"
)

// PriceCache stores historical oracle quotes. A quote for a given feed and
// timestamp never changes, so entries are written once.
type PriceCache interface {
	SetQuote(ctx context.Context, feedID string, at int64, q PriceQuote) error
	GetQuote(ctx context.Context, feedID string, at int64) (PriceQuote, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string, limit int, window time.Duration) error
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// DiscoveryIndex is the read model of live public pools per chain.
type DiscoveryIndex interface {
	List(ctx context.Context, chain Chain, poolID uint64) error
	Unlist(ctx context.Context, chain Chain, poolID uint64) error
	Live(ctx context.Context, chain Chain) ([]uint64, error)
}

// CursorStore persists named monotonically increasing counters.
type CursorStore interface {
	Get(ctx context.Context, name string) (uint64, error)
	Set(ctx context.Context, name string, value uint64) error
}

// LeaderboardClock records when the leaderboard last changed so read-side
// caches can invalidate stale snapshots.
type LeaderboardClock interface {
	Touch(ctx context.Context, at time.Time) error
	LastUpdated(ctx context.Context) (time.Time, error)
}

// ChatDirectory resolves a wallet address to its linked Telegram chat.
// It returns ErrNotFound when the address never linked one.
type ChatDirectory interface {
	ChatID(ctx context.Context, address string) (string, error)
}
