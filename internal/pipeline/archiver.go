package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/castora-xyz/castora-sub001/internal/domain"
)

// Archiver snapshots a closed pool's predictions into the archive store.
type Archiver struct {
	base
}

// NewArchiver creates an Archiver.
func NewArchiver(deps Deps) *Archiver {
	return &Archiver{base: deps.base("archiver")}
}

// Archive writes the archive document for ref once the pool's window has
// closed. An existing document makes the run a no-op, which is the only guard
// against duplicate delivery; stage 1 never rewrites an archive.
func (a *Archiver) Archive(ctx context.Context, ref domain.PoolRef) (Outcome, error) {
	out, err := a.archive(ctx, ref)
	if err != nil {
		return "", a.fail(ctx, "archive", ref, fmt.Errorf("archive %s/%d: %w", ref.Chain, ref.PoolID, err))
	}
	return out, nil
}

func (a *Archiver) archive(ctx context.Context, ref domain.PoolRef) (Outcome, error) {
	log := a.poolLogger(ref)

	gw, pool, err := a.readPool(ctx, ref)
	if err != nil {
		return "", err
	}

	if now := a.now().Unix(); now < pool.Seeds.WindowCloseTime {
		return "", fmt.Errorf("window closes at %d, now %d: %w", pool.Seeds.WindowCloseTime, now, domain.ErrTooEarly)
	}

	if pool.NoOfPredictions == 0 {
		log.InfoContext(ctx, "pool has no predictions, nothing to archive")
		return OutcomeSkippedEmpty, nil
	}

	exists, err := a.archives.Exists(ctx, ref.Chain, ref.PoolID)
	if err != nil {
		return "", fmt.Errorf("check archive: %w", err)
	}
	if exists {
		log.InfoContext(ctx, "pool already archived")
		return OutcomeSkippedDone, nil
	}

	predictions := make([]domain.Prediction, 0, pool.NoOfPredictions)
	for id := uint64(1); id <= pool.NoOfPredictions; id++ {
		p, err := gw.ReadPrediction(ctx, ref.PoolID, id)
		if err != nil {
			return "", fmt.Errorf("read prediction %d: %w", id, err)
		}
		if p.PredictionID != id || p.PoolID != ref.PoolID {
			return "", domain.Invariant("archive", "requested prediction %d of pool %d, got %d of pool %d", id, ref.PoolID, p.PredictionID, p.PoolID)
		}
		predictions = append(predictions, p)
	}
	if uint64(len(predictions)) != pool.NoOfPredictions {
		return "", domain.Invariant("archive", "fetched %d predictions, pool reports %d", len(predictions), pool.NoOfPredictions)
	}

	archived := domain.ArchivedPool{
		Chain:       ref.Chain,
		Pool:        pool,
		Predictions: predictions,
	}
	if err := a.archives.Put(ctx, archived); err != nil {
		return "", fmt.Errorf("put archive: %w", err)
	}

	log.InfoContext(ctx, "pool archived", slog.Int("predictions", len(predictions)))
	a.record(ctx, auditArchived, ref, map[string]any{"predictions": len(predictions)})
	return OutcomeArchived, nil
}
