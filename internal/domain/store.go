package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// ArchiveStore holds one immutable JSON document per (chain, poolId).
type ArchiveStore interface {
	Exists(ctx context.Context, chain Chain, poolID uint64) (bool, error)
	Get(ctx context.Context, chain Chain, poolID uint64) (ArchivedPool, error)
	Put(ctx context.Context, archived ArchivedPool) error
	// PoolIDs lists every archived pool id of a chain.
	PoolIDs(ctx context.Context, chain Chain) ([]uint64, error)
}

// CreditKind distinguishes the leaderboard credits one pool can produce for
// the same address.
type CreditKind string

const (
	CreditPredicter CreditKind = "predicter"
	CreditCreator   CreditKind = "creator"
)

// LeaderboardCredit is the accrual for one address from one pool.
type LeaderboardCredit struct {
	Chain   Chain
	PoolID  uint64
	Address string
	Kind    CreditKind

	// BaseXP covers per-prediction, per-win and creator bonus points.
	BaseXP int64
	// VolumeMicroUSD is converted to XP by the store after adding the
	// address's carried leftover (see CarryVolume).
	VolumeMicroUSD   int64
	WinningsMicroUSD int64
	Predictions      int64
	Wins             int64
}

// LeaderboardEntry is the accumulated standing of one address.
type LeaderboardEntry struct {
	Address          string
	XP               int64
	Predictions      int64
	Wins             int64
	VolumeMicroUSD   int64
	WinningsMicroUSD int64
	VolumeLeftover   int64
	UpdatedAt        time.Time
}

// LeaderboardStore accrues leaderboard credits. Credit applies a credit at most
// once per (chain, poolId, address, kind) and reports whether it was applied.
type LeaderboardStore interface {
	Credit(ctx context.Context, credit LeaderboardCredit) (bool, error)
	Get(ctx context.Context, address string) (LeaderboardEntry, error)
	Top(ctx context.Context, opts ListOpts) ([]LeaderboardEntry, error)
}

// MicroUSDPerXP is the dollar volume that earns one volume XP.
const MicroUSDPerXP = 1_000_000

// CarryVolume adds volume to an address's leftover and splits the sum into
// whole XP and the new leftover. Truncation never discards volume.
func CarryVolume(leftover, volumeMicroUSD int64) (xp, newLeftover int64) {
	total := leftover + volumeMicroUSD
	return total / MicroUSDPerXP, total % MicroUSDPerXP
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
