package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/castora-xyz/castora-sub001/internal/domain"
	"github.com/castora-xyz/castora-sub001/internal/oracle"
	"github.com/castora-xyz/castora-sub001/internal/selector"
)

// MaxWinnersBatch caps the winner ids carried by one setWinnersInBatch call.
const MaxWinnersBatch = 1000

// CompletionMode selects the on-chain completion protocol of a chain.
type CompletionMode string

const (
	// CompletionBatched initiates, sets winners in batches and finalizes.
	CompletionBatched CompletionMode = "batched"
	// CompletionSingle settles with one completePool call.
	CompletionSingle CompletionMode = "single"
)

// CompleterConfig tunes the Completer.
type CompleterConfig struct {
	Modes              map[domain.Chain]CompletionMode
	LeaderboardEnabled bool
	NotifyCreators     bool
}

// Completer settles a pool on chain and re-archives it with its results.
type Completer struct {
	base
	quoter   Quoter
	queue    domain.JobQueue
	archiver *Archiver
	cfg      CompleterConfig
}

// NewCompleter creates a Completer. archiver is used to archive a pool whose
// stage 1 job has not run yet; it may be nil.
func NewCompleter(deps Deps, quoter Quoter, queue domain.JobQueue, archiver *Archiver, cfg CompleterConfig) *Completer {
	return &Completer{
		base:     deps.base("completer"),
		quoter:   quoter,
		queue:    queue,
		archiver: archiver,
		cfg:      cfg,
	}
}

// Complete runs the completion protocol for ref. Every phase reads the
// on-chain state first and skips work already done, so a run interrupted at
// any point resumes cleanly on retry.
func (c *Completer) Complete(ctx context.Context, ref domain.PoolRef) (Outcome, error) {
	out, err := c.complete(ctx, ref)
	if err != nil {
		return "", c.fail(ctx, "complete", ref, fmt.Errorf("complete %s/%d: %w", ref.Chain, ref.PoolID, err))
	}
	return out, nil
}

func (c *Completer) complete(ctx context.Context, ref domain.PoolRef) (Outcome, error) {
	log := c.poolLogger(ref)

	gw, pool, err := c.readPool(ctx, ref)
	if err != nil {
		return "", err
	}
	if pool.NoOfPredictions == 0 {
		log.InfoContext(ctx, "pool has no predictions, nothing to complete")
		return OutcomeSkippedEmpty, nil
	}
	if now := c.now().Unix(); !pool.IsCompleted() && now < pool.Seeds.SnapshotTime {
		return "", fmt.Errorf("snapshot at %d, now %d: %w", pool.Seeds.SnapshotTime, now, domain.ErrTooEarly)
	}

	archived, err := c.loadArchive(ctx, ref)
	if err != nil {
		return "", err
	}
	if uint64(len(archived.Predictions)) != pool.NoOfPredictions {
		return "", domain.Invariant("complete", "archive holds %d predictions, pool reports %d", len(archived.Predictions), pool.NoOfPredictions)
	}

	noOfWinners := selector.NoOfWinners(pool.NoOfPredictions, pool.Seeds.Multiplier)

	if pool.IsCompleted() {
		if archived.Results != nil {
			log.InfoContext(ctx, "pool already completed and archived")
			return OutcomeSkippedDone, c.followUp(ctx, ref, pool)
		}
		log.InfoContext(ctx, "pool completed on chain, archiving results")
		final, err := c.archiveResults(ctx, gw, archived, pool.SnapshotPrice, noOfWinners)
		if err != nil {
			return "", err
		}
		return OutcomeAlreadyCompleted, c.followUp(ctx, ref, final)
	}

	var snapshotPrice int64
	switch c.mode(ref.Chain) {
	case CompletionSingle:
		if snapshotPrice, err = c.snapshotPrice(ctx, ref, pool); err != nil {
			return "", err
		}
		result := c.selectWinners(archived, snapshotPrice, noOfWinners)
		winAmount := selector.WinAmount(pool.Seeds.StakeAmount, pool.NoOfPredictions, noOfWinners, pool.Seeds.FeesPercent)
		if err := gw.CompletePool(ctx, ref.PoolID, snapshotPrice, noOfWinners, winAmount, result.WinnerPredictionIDs); err != nil {
			return "", fmt.Errorf("complete pool: %w", err)
		}
	default:
		if snapshotPrice, err = c.completeBatched(ctx, gw, archived, pool, noOfWinners); err != nil {
			return "", err
		}
	}

	final, err := c.archiveResults(ctx, gw, archived, snapshotPrice, noOfWinners)
	if err != nil {
		return "", err
	}

	log.InfoContext(ctx, "pool completed",
		slog.Int64("snapshot_price", snapshotPrice),
		slog.Uint64("winners", noOfWinners),
	)
	c.record(ctx, auditCompleted, ref, map[string]any{
		"snapshot_price": snapshotPrice,
		"winners":        noOfWinners,
		"win_amount":     final.WinAmount.String(),
		"mode":           string(c.mode(ref.Chain)),
	})
	if c.alerter != nil {
		msg := fmt.Sprintf("%s pool %d settled at %d with %d winners", ref.Chain, ref.PoolID, snapshotPrice, noOfWinners)
		if err := c.alerter.Notify(ctx, alertPoolCompleted, "Pool completed", msg); err != nil {
			log.WarnContext(ctx, "alert failed", slog.String("error", err.Error()))
		}
	}

	return OutcomeCompleted, c.followUp(ctx, ref, final)
}

// completeBatched runs initiate, set-winners and finalize, skipping phases
// the contract already reflects. It returns the snapshot price in force.
func (c *Completer) completeBatched(ctx context.Context, gw domain.ChainGateway, archived domain.ArchivedPool, pool domain.Pool, noOfWinners uint64) (int64, error) {
	ref := domain.PoolRef{Chain: archived.Chain, PoolID: pool.PoolID}
	log := c.poolLogger(ref)
	batchSize := min(noOfWinners, MaxWinnersBatch)

	if pool.NoOfWinners == 0 {
		price, err := c.snapshotPrice(ctx, ref, pool)
		if err != nil {
			return 0, err
		}
		if err := gw.InitiatePoolCompletion(ctx, pool.PoolID, price, batchSize); err != nil {
			return 0, fmt.Errorf("initiate completion: %w", err)
		}
		log.InfoContext(ctx, "completion initiated", slog.Int64("snapshot_price", price), slog.Uint64("batch_size", batchSize))
		if pool, err = gw.ReadPool(ctx, pool.PoolID); err != nil {
			return 0, fmt.Errorf("re-read pool: %w", err)
		}
	} else {
		log.InfoContext(ctx, "completion already initiated, resuming", slog.Int64("snapshot_price", pool.SnapshotPrice))
	}

	if pool.NoOfWinners != noOfWinners {
		return 0, domain.Invariant("complete", "contract reports %d winners, computed %d", pool.NoOfWinners, noOfWinners)
	}

	result := c.selectWinners(archived, pool.SnapshotPrice, noOfWinners)
	ids := result.WinnerPredictionIDs
	for start := uint64(0); start < uint64(len(ids)); start += batchSize {
		batch := ids[start:min(start+batchSize, uint64(len(ids)))]

		first, err := gw.ReadPrediction(ctx, pool.PoolID, batch[0])
		if err != nil {
			return 0, fmt.Errorf("read prediction %d: %w", batch[0], err)
		}
		if first.IsAWinner {
			log.DebugContext(ctx, "winner batch already set", slog.Uint64("offset", start))
			continue
		}
		if err := gw.SetWinnersInBatch(ctx, pool.PoolID, batch); err != nil {
			return 0, fmt.Errorf("set winners batch at %d: %w", start, err)
		}
		log.InfoContext(ctx, "winner batch set", slog.Uint64("offset", start), slog.Int("size", len(batch)))
	}

	if err := gw.FinalizePoolCompletion(ctx, pool.PoolID); err != nil {
		return 0, fmt.Errorf("finalize completion: %w", err)
	}
	return pool.SnapshotPrice, nil
}

// archiveResults re-reads the completed pool, checks it against the
// computed winner count and overwrites the archive with the results.
func (c *Completer) archiveResults(ctx context.Context, gw domain.ChainGateway, archived domain.ArchivedPool, snapshotPrice int64, noOfWinners uint64) (domain.Pool, error) {
	pool, err := gw.ReadPool(ctx, archived.Pool.PoolID)
	if err != nil {
		return domain.Pool{}, fmt.Errorf("read completed pool: %w", err)
	}
	if pool.NoOfWinners != noOfWinners {
		return domain.Pool{}, domain.Invariant("complete", "contract reports %d winners, computed %d", pool.NoOfWinners, noOfWinners)
	}
	result := c.selectWinners(archived, snapshotPrice, noOfWinners)
	if uint64(len(result.WinnerPredictionIDs)) != pool.NoOfWinners {
		return domain.Pool{}, domain.Invariant("complete", "selected %d winners, pool reports %d", len(result.WinnerPredictionIDs), pool.NoOfWinners)
	}

	archived.Pool = pool
	archived.Results = &domain.PoolResults{
		WinnerAddressesUniqued: result.WinnerAddressesUniqued,
		WinnerPredictionIDs:    result.WinnerPredictionIDs,
	}
	if err := c.archives.Put(ctx, archived); err != nil {
		return domain.Pool{}, fmt.Errorf("put results: %w", err)
	}
	return pool, nil
}

// selectWinners marks winners on archived.Predictions in place.
func (c *Completer) selectWinners(archived domain.ArchivedPool, snapshotPrice int64, noOfWinners uint64) selector.Result {
	preds := make([]*domain.Prediction, len(archived.Predictions))
	for i := range archived.Predictions {
		preds[i] = &archived.Predictions[i]
	}
	return selector.SelectWinners(snapshotPrice, preds, int(noOfWinners))
}

func (c *Completer) snapshotPrice(ctx context.Context, ref domain.PoolRef, pool domain.Pool) (int64, error) {
	_, q, err := c.quoter.Quote(ctx, ref.Chain, pool.Seeds.PredictionToken, pool.Seeds.SnapshotTime)
	if err != nil {
		return 0, fmt.Errorf("snapshot price: %w", err)
	}
	price, err := oracle.ToDecimals(q, oracle.ContractDecimals)
	if err != nil {
		return 0, fmt.Errorf("snapshot price: %w", err)
	}
	return price, nil
}

func (c *Completer) loadArchive(ctx context.Context, ref domain.PoolRef) (domain.ArchivedPool, error) {
	archived, err := c.archives.Get(ctx, ref.Chain, ref.PoolID)
	if err == nil {
		return archived, nil
	}
	if !errors.Is(err, domain.ErrNotFound) || c.archiver == nil {
		return domain.ArchivedPool{}, fmt.Errorf("load archive: %w", err)
	}
	c.poolLogger(ref).InfoContext(ctx, "archive missing, archiving first")
	if _, err := c.archiver.archive(ctx, ref); err != nil {
		return domain.ArchivedPool{}, fmt.Errorf("archive before completion: %w", err)
	}
	archived, err = c.archives.Get(ctx, ref.Chain, ref.PoolID)
	if err != nil {
		return domain.ArchivedPool{}, fmt.Errorf("load archive: %w", err)
	}
	return archived, nil
}

func (c *Completer) mode(chain domain.Chain) CompletionMode {
	if m, ok := c.cfg.Modes[chain]; ok && m != "" {
		return m
	}
	return CompletionBatched
}

// followUp enqueues the next stage. The leaderboard update runs before the
// creator notification so only one stage rewrites the archive at a time. An
// enqueue failure fails the run; the retry takes the already-completed path.
func (c *Completer) followUp(ctx context.Context, ref domain.PoolRef, pool domain.Pool) error {
	if c.queue == nil {
		return nil
	}
	var job domain.JobName
	switch {
	case c.cfg.LeaderboardEnabled && pool.WinAmount != nil && pool.WinAmount.Sign() > 0:
		job = domain.JobUpdateLeaderboard
	case c.cfg.NotifyCreators && pool.HasCreator():
		job = domain.JobNotifyCreator
	default:
		return nil
	}
	if err := c.queue.Enqueue(ctx, job, ref, domain.EnqueueOptions{}); err != nil {
		return fmt.Errorf("enqueue %s: %w", job, err)
	}
	return nil
}
