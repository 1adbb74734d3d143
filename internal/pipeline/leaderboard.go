package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/castora-xyz/castora-sub001/internal/domain"
	"github.com/castora-xyz/castora-sub001/internal/oracle"
)

// CreatorBonusXP is awarded to a community pool's creator once the pool is
// processed.
const CreatorBonusXP = 3

// LeaderboardConfig tunes the LeaderboardUpdater.
type LeaderboardConfig struct {
	NotifyCreators bool
}

// LeaderboardUpdater credits experience points for a completed pool. Progress
// counts the unique predicter addresses already credited, so a resumed run
// starts where the last one stopped.
type LeaderboardUpdater struct {
	base
	quoter Quoter
	store  domain.LeaderboardStore
	clock  domain.LeaderboardClock
	queue  domain.JobQueue
	cfg    LeaderboardConfig
}

// NewLeaderboardUpdater creates a LeaderboardUpdater. queue may be nil.
func NewLeaderboardUpdater(deps Deps, quoter Quoter, store domain.LeaderboardStore, clock domain.LeaderboardClock, queue domain.JobQueue, cfg LeaderboardConfig) *LeaderboardUpdater {
	return &LeaderboardUpdater{
		base:   deps.base("leaderboard"),
		quoter: quoter,
		store:  store,
		clock:  clock,
		queue:  queue,
		cfg:    cfg,
	}
}

// predicterStats aggregates one address's predictions in a pool.
type predicterStats struct {
	address     string
	predictions int64
	wins        int64
}

// Update credits every predicter of ref from progress.Current() onwards,
// then the creator bonus, then marks the archive processed.
func (u *LeaderboardUpdater) Update(ctx context.Context, ref domain.PoolRef, progress domain.Progress) (Outcome, error) {
	out, err := u.update(ctx, ref, progress)
	if err != nil {
		return "", u.fail(ctx, "leaderboard", ref, fmt.Errorf("leaderboard %s/%d: %w", ref.Chain, ref.PoolID, err))
	}
	return out, nil
}

func (u *LeaderboardUpdater) update(ctx context.Context, ref domain.PoolRef, progress domain.Progress) (Outcome, error) {
	log := u.poolLogger(ref)

	_, pool, err := u.readPool(ctx, ref)
	if err != nil {
		return "", err
	}
	if pool.NoOfPredictions == 0 {
		log.InfoContext(ctx, "pool has no predictions, nothing to credit")
		return OutcomeSkippedEmpty, nil
	}

	archived, err := u.archives.Get(ctx, ref.Chain, ref.PoolID)
	if err != nil {
		return "", fmt.Errorf("load archive: %w", err)
	}
	if archived.HasBeenProcessedInLeaderboard {
		log.InfoContext(ctx, "pool already processed in leaderboard")
		if err := u.followUp(ctx, ref, pool, archived.HasNotifiedCreatorOnTelegram); err != nil {
			return "", err
		}
		return OutcomeSkippedDone, nil
	}

	if pool.WinAmount == nil || pool.WinAmount.Sign() <= 0 {
		return "", domain.Invariant("leaderboard", "pool has no win amount")
	}
	if pool.Seeds.StakeAmount == nil {
		return "", domain.Invariant("leaderboard", "pool has no stake amount")
	}
	if uint64(len(archived.Predictions)) != pool.NoOfPredictions {
		return "", domain.Invariant("leaderboard", "archive holds %d predictions, pool reports %d", len(archived.Predictions), pool.NoOfPredictions)
	}
	if archived.Results == nil {
		return "", fmt.Errorf("archive has no results yet: %w", domain.ErrTooEarly)
	}

	token, quote, err := u.quoter.Quote(ctx, ref.Chain, pool.Seeds.StakeToken, pool.Seeds.SnapshotTime)
	if err != nil {
		return "", fmt.Errorf("stake token price: %w", err)
	}

	groups := groupPredicters(archived)
	start := progress.Current()
	if start > 0 {
		log.InfoContext(ctx, "resuming leaderboard update", slog.Int("cursor", start), slog.Int("addresses", len(groups)))
	}

	var applied int
	for i := start; i < len(groups); i++ {
		g := groups[i]
		credit, err := predicterCredit(ref, g, pool, token.Decimals, quote)
		if err != nil {
			return "", err
		}
		ok, err := u.store.Credit(ctx, credit)
		if err != nil {
			return "", fmt.Errorf("credit %s: %w", g.address, err)
		}
		if ok {
			applied++
		}
		if err := progress.Update(ctx, i+1); err != nil {
			return "", fmt.Errorf("save progress %d: %w", i+1, err)
		}
	}

	if pool.HasCreator() {
		if _, err := u.store.Credit(ctx, domain.LeaderboardCredit{
			Chain:   ref.Chain,
			PoolID:  ref.PoolID,
			Address: strings.ToLower(pool.Creator),
			Kind:    domain.CreditCreator,
			BaseXP:  CreatorBonusXP,
		}); err != nil {
			return "", fmt.Errorf("credit creator %s: %w", pool.Creator, err)
		}
	}

	archived.HasBeenProcessedInLeaderboard = true
	if err := u.archives.Put(ctx, archived); err != nil {
		return "", fmt.Errorf("mark processed: %w", err)
	}
	if err := u.clock.Touch(ctx, u.now()); err != nil {
		log.WarnContext(ctx, "touch leaderboard clock failed", slog.String("error", err.Error()))
	}

	log.InfoContext(ctx, "leaderboard updated",
		slog.Int("addresses", len(groups)),
		slog.Int("credited", applied),
	)
	u.record(ctx, auditLeaderboard, ref, map[string]any{
		"addresses": len(groups),
		"credited":  applied,
	})

	if err := u.followUp(ctx, ref, pool, archived.HasNotifiedCreatorOnTelegram); err != nil {
		return "", err
	}
	return OutcomeCredited, nil
}

// followUp enqueues the creator notification. It also runs on the
// already-processed path, so a retry after a failed enqueue still delivers it.
func (u *LeaderboardUpdater) followUp(ctx context.Context, ref domain.PoolRef, pool domain.Pool, notified bool) error {
	if u.queue == nil || !u.cfg.NotifyCreators || !pool.HasCreator() || notified {
		return nil
	}
	if err := u.queue.Enqueue(ctx, domain.JobNotifyCreator, ref, domain.EnqueueOptions{}); err != nil {
		return fmt.Errorf("enqueue %s: %w", domain.JobNotifyCreator, err)
	}
	return nil
}

// groupPredicters groups predictions by lowercase address in order of each
// address's first prediction, which keeps the cursor stable across runs.
func groupPredicters(archived domain.ArchivedPool) []predicterStats {
	winners := make(map[uint64]struct{}, len(archived.Results.WinnerPredictionIDs))
	for _, id := range archived.Results.WinnerPredictionIDs {
		winners[id] = struct{}{}
	}

	index := make(map[string]int)
	var groups []predicterStats
	for _, p := range archived.Predictions {
		addr := strings.ToLower(p.Predicter)
		i, ok := index[addr]
		if !ok {
			i = len(groups)
			index[addr] = i
			groups = append(groups, predicterStats{address: addr})
		}
		groups[i].predictions++
		if _, won := winners[p.PredictionID]; won {
			groups[i].wins++
		}
	}
	return groups
}

// predicterCredit awards 1 XP per prediction and per win; dollar volume is
// handed to the store, which converts it to XP with the address's leftover.
func predicterCredit(ref domain.PoolRef, g predicterStats, pool domain.Pool, decimals uint8, q domain.PriceQuote) (domain.LeaderboardCredit, error) {
	staked := new(big.Int).Mul(pool.Seeds.StakeAmount, big.NewInt(g.predictions))
	volume, err := oracle.MicroUSD(staked, decimals, q)
	if err != nil {
		return domain.LeaderboardCredit{}, fmt.Errorf("volume of %s: %w", g.address, err)
	}
	won := new(big.Int).Mul(pool.WinAmount, big.NewInt(g.wins))
	winnings, err := oracle.MicroUSD(won, decimals, q)
	if err != nil {
		return domain.LeaderboardCredit{}, fmt.Errorf("winnings of %s: %w", g.address, err)
	}
	return domain.LeaderboardCredit{
		Chain:            ref.Chain,
		PoolID:           ref.PoolID,
		Address:          g.address,
		Kind:             domain.CreditPredicter,
		BaseXP:           g.predictions + g.wins,
		VolumeMicroUSD:   volume,
		WinningsMicroUSD: winnings,
		Predictions:      g.predictions,
		Wins:             g.wins,
	}, nil
}
