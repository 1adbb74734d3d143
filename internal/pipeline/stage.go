// Package pipeline holds the pool settlement stages and the schedules that
// feed them. Each stage is idempotent: the archive existence check, the
// on-chain completion state, the leaderboard processed flag and the progress
// cursor make repeated or concurrent deliveries of the same job safe.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/castora-xyz/castora-sub001/internal/domain"
)

// Outcome names what a stage run did.
type Outcome string

const (
	OutcomeArchived         Outcome = "archived"
	OutcomeCompleted        Outcome = "completed"
	OutcomeCredited         Outcome = "credited"
	OutcomeNotified         Outcome = "notified"
	OutcomeSkippedEmpty     Outcome = "skipped_empty"
	OutcomeSkippedDone      Outcome = "skipped_done"
	OutcomeSkippedNoCreator Outcome = "skipped_no_creator"
	OutcomeSkippedNoChat    Outcome = "skipped_no_chat"
	OutcomeAlreadyCompleted Outcome = "already_completed"
)

// Quoter prices a chain's token as of a unix time. *oracle.Resolver
// implements it.
type Quoter interface {
	Quote(ctx context.Context, chain domain.Chain, address string, at int64) (domain.Token, domain.PriceQuote, error)
}

// Alerter forwards operator alerts. *notify.Notifier implements it.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Event names shared with the notifier's filter.
const (
	alertError         = "error"
	alertPoolCompleted = "pool_completed"
)

// Audit event names.
const (
	auditArchived    = "pool.archived"
	auditCompleted   = "pool.completed"
	auditLeaderboard = "pool.leaderboard"
	auditNotified    = "pool.creator_notified"
	auditCreated     = "pool.created"
)

// base carries the collaborators every stage shares.
type base struct {
	gateways domain.Gateways
	archives domain.ArchiveStore
	audit    domain.AuditStore
	alerter  Alerter
	now      func() time.Time
	logger   *slog.Logger
}

func (b *base) poolLogger(ref domain.PoolRef) *slog.Logger {
	return b.logger.With(slog.String("chain", string(ref.Chain)), slog.Uint64("pool_id", ref.PoolID))
}

// fail logs err and, when it is fatal, alerts operators. err is returned
// unchanged so the scheduler's retry policy still applies.
func (b *base) fail(ctx context.Context, stage string, ref domain.PoolRef, err error) error {
	log := b.poolLogger(ref)
	if !domain.IsFatal(err) {
		if !errors.Is(err, domain.ErrTooEarly) {
			log.WarnContext(ctx, stage+" failed", slog.String("error", err.Error()))
		}
		return err
	}
	log.ErrorContext(ctx, stage+" failed", slog.Bool("fatal", true), slog.String("error", err.Error()))
	if b.alerter != nil {
		msg := fmt.Sprintf("%s pool %d: %v", ref.Chain, ref.PoolID, err)
		if aerr := b.alerter.Notify(ctx, alertError, "Settlement invariant violated", msg); aerr != nil {
			log.WarnContext(ctx, "alert failed", slog.String("error", aerr.Error()))
		}
	}
	return err
}

// record appends an audit entry. Audit failures never fail a stage.
func (b *base) record(ctx context.Context, event string, ref domain.PoolRef, detail map[string]any) {
	if b.audit == nil {
		return
	}
	if detail == nil {
		detail = map[string]any{}
	}
	detail["chain"] = string(ref.Chain)
	detail["pool_id"] = ref.PoolID
	if err := b.audit.Log(ctx, event, detail); err != nil {
		b.poolLogger(ref).WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (b *base) readPool(ctx context.Context, ref domain.PoolRef) (domain.ChainGateway, domain.Pool, error) {
	gw, err := b.gateways.Get(ref.Chain)
	if err != nil {
		return nil, domain.Pool{}, err
	}
	pool, err := gw.ReadPool(ctx, ref.PoolID)
	if err != nil {
		return nil, domain.Pool{}, fmt.Errorf("read pool: %w", err)
	}
	return gw, pool, nil
}

// Deps are the collaborators shared by the settlement stages. Audit and
// Alerter may be nil.
type Deps struct {
	Gateways domain.Gateways
	Archives domain.ArchiveStore
	Audit    domain.AuditStore
	Alerter  Alerter
	Logger   *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

func (d Deps) base(component string) base {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return base{
		gateways: d.Gateways,
		archives: d.Archives,
		audit:    d.Audit,
		alerter:  d.Alerter,
		now:      now,
		logger:   d.Logger.With(slog.String("component", component)),
	}
}
