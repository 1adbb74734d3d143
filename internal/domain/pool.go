package domain

import (
	"math/big"
	"time"
)

// PoolStatus is the lifecycle state of a pool. It is derived from the current
// time and the stored pool fields and is never persisted.
type PoolStatus string

const (
	PoolStatusUpcoming  PoolStatus = "upcoming"
	PoolStatusOpen      PoolStatus = "open"
	PoolStatusClosed    PoolStatus = "closed"
	PoolStatusCompleted PoolStatus = "completed"
)

// PoolSeeds are the immutable parameters identifying a pool instance. Two
// pools with identical seeds are the same pool.
type PoolSeeds struct {
	PredictionToken string   `json:"predictionToken"`
	StakeToken      string   `json:"stakeToken"`
	StakeAmount     *big.Int `json:"stakeAmount"`
	SnapshotTime    int64    `json:"snapshotTime"`
	WindowCloseTime int64    `json:"windowCloseTime"`
	FeesPercent     uint16   `json:"feesPercent"`
	Multiplier      uint16   `json:"multiplier"`
	IsUnlisted      bool     `json:"isUnlisted"`
}

// Duration is the span between window close and snapshot. It doubles as the
// pre-open offset: a pool opens one duration before its window closes.
func (s PoolSeeds) Duration() time.Duration {
	return time.Duration(s.SnapshotTime-s.WindowCloseTime) * time.Second
}

// OpenTime is the unix time at which predictions start being accepted.
func (s PoolSeeds) OpenTime() int64 {
	return s.WindowCloseTime - (s.SnapshotTime - s.WindowCloseTime)
}

// Pool is the on-chain pool record.
type Pool struct {
	PoolID              uint64    `json:"poolId"`
	Seeds               PoolSeeds `json:"seeds"`
	SeedsHash           string    `json:"seedsHash"`
	CreationTime        int64     `json:"creationTime"`
	NoOfPredictions     uint64    `json:"noOfPredictions"`
	SnapshotPrice       int64     `json:"snapshotPrice"`
	CompletionTime      int64     `json:"completionTime"`
	WinAmount           *big.Int  `json:"winAmount"`
	NoOfWinners         uint64    `json:"noOfWinners"`
	NoOfClaimedWinnings uint64    `json:"noOfClaimedWinnings"`

	// Creator is empty for pools created by the protocol itself.
	Creator                   string `json:"creator,omitempty"`
	CreatorCompletionFeesPerc uint16 `json:"creatorCompletionFeesPercent,omitempty"`
}

// Status derives the lifecycle state at now.
func (p Pool) Status(now time.Time) PoolStatus {
	ts := now.Unix()
	switch {
	case ts < p.Seeds.OpenTime():
		return PoolStatusUpcoming
	case ts < p.Seeds.WindowCloseTime:
		return PoolStatusOpen
	case ts < p.Seeds.SnapshotTime || p.CompletionTime == 0:
		return PoolStatusClosed
	default:
		return PoolStatusCompleted
	}
}

// IsCompleted reports whether the settlement pipeline has finalized the pool.
func (p Pool) IsCompleted() bool {
	return p.CompletionTime > 0
}

// HasCreator reports whether the pool was created by a community member.
func (p Pool) HasCreator() bool {
	return p.Creator != "" && p.Creator != ZeroAddress
}

// ZeroAddress is the EVM zero address as returned by the contract for unset
// address fields.
const ZeroAddress = "0x0000000000000000000000000000000000000000"

// Prediction is a single entry in a pool.
type Prediction struct {
	Predicter       string `json:"predicter"`
	PoolID          uint64 `json:"poolId"`
	PredictionID    uint64 `json:"predictionId"`
	PredictionPrice int64  `json:"predictionPrice"`
	PredictionTime  int64  `json:"predictionTime"`
	ClaimedTime     int64  `json:"claimedWinningsTime"`
	IsAWinner       bool   `json:"isAWinner"`
}
