package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/castora-xyz/castora-sub001/internal/domain"
)

// LeaderboardStore implements domain.LeaderboardStore. Each credit is
// recorded in leaderboard_credits in the same transaction that increments
// the address's totals, so a credit lands at most once no matter how often
// the leaderboard job is delivered.
type LeaderboardStore struct {
	pool *pgxpool.Pool
}

// NewLeaderboardStore creates a new LeaderboardStore backed by the given pool.
func NewLeaderboardStore(pool *pgxpool.Pool) *LeaderboardStore {
	return &LeaderboardStore{pool: pool}
}

// Credit applies c unless a credit with the same (chain, pool, address,
// kind) already exists. It reports whether the credit was applied.
func (s *LeaderboardStore) Credit(ctx context.Context, c domain.LeaderboardCredit) (bool, error) {
	address := strings.ToLower(c.Address)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("postgres: begin credit %s: %w", address, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const claim = `
		INSERT INTO leaderboard_credits
			(chain, pool_id, address, kind, xp, volume_micro_usd, winnings_micro_usd, predictions, wins)
		VALUES ($1, $2, $3, $4, 0, $5, $6, $7, $8)
		ON CONFLICT (chain, pool_id, address, kind) DO NOTHING`
	tag, err := tx.Exec(ctx, claim,
		string(c.Chain), int64(c.PoolID), address, string(c.Kind),
		c.VolumeMicroUSD, c.WinningsMicroUSD, c.Predictions, c.Wins,
	)
	if err != nil {
		return false, fmt.Errorf("postgres: claim credit %s/%d/%s: %w", c.Chain, c.PoolID, address, err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	const ensure = `INSERT INTO leaderboard (address) VALUES ($1) ON CONFLICT (address) DO NOTHING`
	if _, err := tx.Exec(ctx, ensure, address); err != nil {
		return false, fmt.Errorf("postgres: ensure leaderboard row %s: %w", address, err)
	}

	var leftover int64
	const lockRow = `SELECT volume_leftover FROM leaderboard WHERE address = $1 FOR UPDATE`
	if err := tx.QueryRow(ctx, lockRow, address).Scan(&leftover); err != nil {
		return false, fmt.Errorf("postgres: lock leaderboard row %s: %w", address, err)
	}

	volumeXP, newLeftover := domain.CarryVolume(leftover, c.VolumeMicroUSD)
	xp := c.BaseXP + volumeXP

	const accrue = `
		UPDATE leaderboard SET
			xp                 = xp + $2,
			predictions        = predictions + $3,
			wins               = wins + $4,
			volume_micro_usd   = volume_micro_usd + $5,
			winnings_micro_usd = winnings_micro_usd + $6,
			volume_leftover    = $7,
			updated_at         = NOW()
		WHERE address = $1`
	if _, err := tx.Exec(ctx, accrue, address, xp, c.Predictions, c.Wins,
		c.VolumeMicroUSD, c.WinningsMicroUSD, newLeftover); err != nil {
		return false, fmt.Errorf("postgres: accrue leaderboard %s: %w", address, err)
	}

	const record = `
		UPDATE leaderboard_credits SET xp = $5
		WHERE chain = $1 AND pool_id = $2 AND address = $3 AND kind = $4`
	if _, err := tx.Exec(ctx, record, string(c.Chain), int64(c.PoolID), address, string(c.Kind), xp); err != nil {
		return false, fmt.Errorf("postgres: record credit xp %s: %w", address, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("postgres: commit credit %s: %w", address, err)
	}
	return true, nil
}

const entryColumns = `address, xp, predictions, wins, volume_micro_usd, winnings_micro_usd, volume_leftover, updated_at`

func scanEntry(row pgx.Row) (domain.LeaderboardEntry, error) {
	var e domain.LeaderboardEntry
	err := row.Scan(&e.Address, &e.XP, &e.Predictions, &e.Wins,
		&e.VolumeMicroUSD, &e.WinningsMicroUSD, &e.VolumeLeftover, &e.UpdatedAt)
	return e, err
}

// Get returns the standing of one address.
func (s *LeaderboardStore) Get(ctx context.Context, address string) (domain.LeaderboardEntry, error) {
	address = strings.ToLower(address)
	row := s.pool.QueryRow(ctx, `SELECT `+entryColumns+` FROM leaderboard WHERE address = $1`, address)
	e, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.LeaderboardEntry{}, fmt.Errorf("postgres: leaderboard %s: %w", address, domain.ErrNotFound)
	}
	if err != nil {
		return domain.LeaderboardEntry{}, fmt.Errorf("postgres: leaderboard %s: %w", address, err)
	}
	return e, nil
}

// Top returns addresses ordered by XP, highest first.
func (s *LeaderboardStore) Top(ctx context.Context, opts domain.ListOpts) ([]domain.LeaderboardEntry, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+entryColumns+` FROM leaderboard ORDER BY xp DESC, address LIMIT $1 OFFSET $2`,
		limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: top leaderboard: %w", err)
	}
	defer rows.Close()

	var entries []domain.LeaderboardEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan leaderboard entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: top leaderboard rows: %w", err)
	}
	return entries, nil
}

var _ domain.LeaderboardStore = (*LeaderboardStore)(nil)
