// Package selector ranks predictions against a snapshot price and derives the
// payout figures of a completed pool. Everything here is pure.
package selector

import (
	"math/big"
	"sort"

	"github.com/castora-xyz/castora-sub001/internal/domain"
)

// Result is the outcome of SelectWinners.
type Result struct {
	Winners                []*domain.Prediction
	WinnerAddressesUniqued []string
	WinnerPredictionIDs    []uint64
}

// SelectWinners ranks predictions by absolute distance from snapshotPrice,
// breaking ties by the lower prediction id, and marks the first noOfWinners
// as winners in place. Every other prediction has IsAWinner cleared so that
// repeated calls with the same inputs converge on the same state.
func SelectWinners(snapshotPrice int64, predictions []*domain.Prediction, noOfWinners int) Result {
	ranked := make([]*domain.Prediction, len(predictions))
	copy(ranked, predictions)

	sort.SliceStable(ranked, func(i, j int) bool {
		di, dj := distance(ranked[i].PredictionPrice, snapshotPrice), distance(ranked[j].PredictionPrice, snapshotPrice)
		if c := di.Cmp(dj); c != 0 {
			return c < 0
		}
		return ranked[i].PredictionID < ranked[j].PredictionID
	})

	if noOfWinners > len(ranked) {
		noOfWinners = len(ranked)
	}
	if noOfWinners < 0 {
		noOfWinners = 0
	}

	for _, p := range ranked {
		p.IsAWinner = false
	}

	res := Result{
		Winners:             ranked[:noOfWinners],
		WinnerPredictionIDs: make([]uint64, 0, noOfWinners),
	}
	seen := make(map[string]struct{}, noOfWinners)
	for _, w := range res.Winners {
		w.IsAWinner = true
		res.WinnerPredictionIDs = append(res.WinnerPredictionIDs, w.PredictionID)
		if _, ok := seen[w.Predicter]; !ok {
			seen[w.Predicter] = struct{}{}
			res.WinnerAddressesUniqued = append(res.WinnerAddressesUniqued, w.Predicter)
		}
	}
	return res
}

// distance uses big.Int so prices near the int64 bounds cannot overflow.
func distance(a, b int64) *big.Int {
	d := new(big.Int).Sub(big.NewInt(a), big.NewInt(b))
	return d.Abs(d)
}

// NoOfWinners is floor(noOfPredictions / multiplier), never below 1 for a
// pool with at least one prediction.
func NoOfWinners(noOfPredictions uint64, multiplier uint16) uint64 {
	if noOfPredictions == 0 {
		return 0
	}
	if multiplier == 0 || noOfPredictions == 1 {
		return 1
	}
	n := noOfPredictions / uint64(multiplier)
	if n < 1 {
		return 1
	}
	return n
}

// WinAmount is trunc(stake * noOfPredictions * (100 - feesPercent) /
// (noOfWinners * 100)) in the stake token's smallest unit.
func WinAmount(stakeAmount *big.Int, noOfPredictions, noOfWinners uint64, feesPercent uint16) *big.Int {
	if stakeAmount == nil || noOfWinners == 0 || feesPercent > 100 {
		return new(big.Int)
	}
	num := new(big.Int).Mul(stakeAmount, new(big.Int).SetUint64(noOfPredictions))
	num.Mul(num, big.NewInt(int64(100-feesPercent)))
	den := new(big.Int).Mul(new(big.Int).SetUint64(noOfWinners), big.NewInt(100))
	return num.Quo(num, den)
}
