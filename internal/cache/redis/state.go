package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/castora-xyz/castora-sub001/internal/domain"
	"github.com/redis/go-redis/v9"
)

// CursorStore implements domain.CursorStore with one string key per cursor.
type CursorStore struct {
	rdb *redis.Client
}

// NewCursorStore creates a CursorStore backed by the given Client.
func NewCursorStore(c *Client) *CursorStore {
	return &CursorStore{rdb: c.Underlying()}
}

func cursorKey(name string) string {
	return "cursor:" + name
}

// Get returns the cursor value, 0 when it was never set.
func (cs *CursorStore) Get(ctx context.Context, name string) (uint64, error) {
	raw, err := cs.rdb.Get(ctx, cursorKey(name)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis: get cursor %s: %w", name, err)
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("redis: parse cursor %s: %w", name, err)
	}
	return v, nil
}

// Set stores the cursor value.
func (cs *CursorStore) Set(ctx context.Context, name string, value uint64) error {
	if err := cs.rdb.Set(ctx, cursorKey(name), strconv.FormatUint(value, 10), 0).Err(); err != nil {
		return fmt.Errorf("redis: set cursor %s: %w", name, err)
	}
	return nil
}

const leaderboardUpdatedKey = "leaderboard:last_updated"

// LeaderboardClock implements domain.LeaderboardClock as a unix-millisecond
// timestamp.
type LeaderboardClock struct {
	rdb *redis.Client
}

// NewLeaderboardClock creates a LeaderboardClock backed by the given Client.
func NewLeaderboardClock(c *Client) *LeaderboardClock {
	return &LeaderboardClock{rdb: c.Underlying()}
}

// Touch records at as the last leaderboard change.
func (lc *LeaderboardClock) Touch(ctx context.Context, at time.Time) error {
	if err := lc.rdb.Set(ctx, leaderboardUpdatedKey, strconv.FormatInt(at.UnixMilli(), 10), 0).Err(); err != nil {
		return fmt.Errorf("redis: touch leaderboard: %w", err)
	}
	return nil
}

// LastUpdated returns the last Touch time, or domain.ErrNotFound.
func (lc *LeaderboardClock) LastUpdated(ctx context.Context) (time.Time, error) {
	raw, err := lc.rdb.Get(ctx, leaderboardUpdatedKey).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, domain.ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("redis: leaderboard last updated: %w", err)
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("redis: parse leaderboard last updated: %w", err)
	}
	return time.UnixMilli(ms), nil
}

const telegramChatsKey = "telegram:chats"

// ChatDirectory implements domain.ChatDirectory over the hash the Telegram
// bot fills when a wallet owner links a chat.
type ChatDirectory struct {
	rdb *redis.Client
}

// NewChatDirectory creates a ChatDirectory backed by the given Client.
func NewChatDirectory(c *Client) *ChatDirectory {
	return &ChatDirectory{rdb: c.Underlying()}
}

// ChatID returns the linked chat for address. Addresses are matched
// case-insensitively.
func (cd *ChatDirectory) ChatID(ctx context.Context, address string) (string, error) {
	id, err := cd.rdb.HGet(ctx, telegramChatsKey, strings.ToLower(address)).Result()
	if errors.Is(err, redis.Nil) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis: chat id %s: %w", address, err)
	}
	return id, nil
}

// Link records chatID for address.
func (cd *ChatDirectory) Link(ctx context.Context, address, chatID string) error {
	if err := cd.rdb.HSet(ctx, telegramChatsKey, strings.ToLower(address), chatID).Err(); err != nil {
		return fmt.Errorf("redis: link chat %s: %w", address, err)
	}
	return nil
}

// Compile-time interface checks.
var (
	_ domain.CursorStore      = (*CursorStore)(nil)
	_ domain.LeaderboardClock = (*LeaderboardClock)(nil)
	_ domain.ChatDirectory    = (*ChatDirectory)(nil)
)
