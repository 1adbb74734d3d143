package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/castora-xyz/castora-sub001/internal/domain"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const seedsComponents = `[
	{"name":"predictionToken","type":"address"},
	{"name":"stakeToken","type":"address"},
	{"name":"stakeAmount","type":"uint256"},
	{"name":"snapshotTime","type":"uint256"},
	{"name":"windowCloseTime","type":"uint256"},
	{"name":"feesPercent","type":"uint16"},
	{"name":"multiplier","type":"uint16"},
	{"name":"isUnlisted","type":"bool"}
]`

// castoraABI covers the subset of the settlement contract the settler uses.
var castoraABI = `[
{"type":"function","name":"getPool","stateMutability":"view",
 "inputs":[{"name":"poolId","type":"uint256"}],
 "outputs":[{"name":"","type":"tuple","components":[
	{"name":"poolId","type":"uint256"},
	{"name":"seeds","type":"tuple","components":` + seedsComponents + `},
	{"name":"seedsHash","type":"bytes32"},
	{"name":"creationTime","type":"uint256"},
	{"name":"noOfPredictions","type":"uint256"},
	{"name":"snapshotPrice","type":"uint256"},
	{"name":"completionTime","type":"uint256"},
	{"name":"winAmount","type":"uint256"},
	{"name":"noOfWinners","type":"uint256"},
	{"name":"noOfClaimedWinnings","type":"uint256"}]}]},
{"type":"function","name":"getPrediction","stateMutability":"view",
 "inputs":[{"name":"poolId","type":"uint256"},{"name":"predictionId","type":"uint256"}],
 "outputs":[{"name":"","type":"tuple","components":[
	{"name":"predicter","type":"address"},
	{"name":"poolId","type":"uint256"},
	{"name":"predictionId","type":"uint256"},
	{"name":"predictionPrice","type":"uint256"},
	{"name":"predictionTime","type":"uint256"},
	{"name":"claimedWinningsTime","type":"uint256"},
	{"name":"isAWinner","type":"bool"}]}]},
{"type":"function","name":"getPoolIdWithSeedsHash","stateMutability":"view",
 "inputs":[{"name":"seedsHash","type":"bytes32"}],
 "outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"getPoolCreator","stateMutability":"view",
 "inputs":[{"name":"poolId","type":"uint256"}],
 "outputs":[{"name":"creator","type":"address"},{"name":"completionFeesPercent","type":"uint16"}]},
{"type":"function","name":"noOfUserCreatedPools","stateMutability":"view",
 "inputs":[],
 "outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"userCreatedPoolIds","stateMutability":"view",
 "inputs":[{"name":"index","type":"uint256"}],
 "outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"createPool","stateMutability":"nonpayable",
 "inputs":[{"name":"seeds","type":"tuple","components":` + seedsComponents + `}],
 "outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"initiatePoolCompletion","stateMutability":"nonpayable",
 "inputs":[{"name":"poolId","type":"uint256"},{"name":"snapshotPrice","type":"uint256"},{"name":"batchSize","type":"uint256"}],
 "outputs":[]},
{"type":"function","name":"setWinnersInBatch","stateMutability":"nonpayable",
 "inputs":[{"name":"poolId","type":"uint256"},{"name":"winnerPredictionIds","type":"uint256[]"}],
 "outputs":[]},
{"type":"function","name":"finalizePoolCompletion","stateMutability":"nonpayable",
 "inputs":[{"name":"poolId","type":"uint256"}],
 "outputs":[]},
{"type":"function","name":"completePool","stateMutability":"nonpayable",
 "inputs":[{"name":"poolId","type":"uint256"},{"name":"snapshotPrice","type":"uint256"},{"name":"noOfWinners","type":"uint256"},{"name":"winAmount","type":"uint256"},{"name":"winnerPredictionIds","type":"uint256[]"}],
 "outputs":[]}
]`

var (
	contractABI = mustParseABI(castoraABI)
	seedsArgs   = mustSeedsArgs()
)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("chain: parse contract abi: %v", err))
	}
	return parsed
}

func mustSeedsArgs() abi.Arguments {
	return abi.Arguments{contractABI.Methods["createPool"].Inputs[0]}
}

// seedsTuple mirrors the contract's PoolSeeds struct. Field names follow the
// ABI component names so the abi package can map them.
type seedsTuple struct {
	PredictionToken common.Address
	StakeToken      common.Address
	StakeAmount     *big.Int
	SnapshotTime    *big.Int
	WindowCloseTime *big.Int
	FeesPercent     uint16
	Multiplier      uint16
	IsUnlisted      bool
}

type poolTuple struct {
	PoolId              *big.Int
	Seeds               seedsTuple
	SeedsHash           [32]byte
	CreationTime        *big.Int
	NoOfPredictions     *big.Int
	SnapshotPrice       *big.Int
	CompletionTime      *big.Int
	WinAmount           *big.Int
	NoOfWinners         *big.Int
	NoOfClaimedWinnings *big.Int
}

type predictionTuple struct {
	Predicter           common.Address
	PoolId              *big.Int
	PredictionId        *big.Int
	PredictionPrice     *big.Int
	PredictionTime      *big.Int
	ClaimedWinningsTime *big.Int
	IsAWinner           bool
}

func toSeedsTuple(s domain.PoolSeeds) seedsTuple {
	stake := s.StakeAmount
	if stake == nil {
		stake = new(big.Int)
	}
	return seedsTuple{
		PredictionToken: common.HexToAddress(s.PredictionToken),
		StakeToken:      common.HexToAddress(s.StakeToken),
		StakeAmount:     stake,
		SnapshotTime:    big.NewInt(s.SnapshotTime),
		WindowCloseTime: big.NewInt(s.WindowCloseTime),
		FeesPercent:     s.FeesPercent,
		Multiplier:      s.Multiplier,
		IsUnlisted:      s.IsUnlisted,
	}
}

func (t seedsTuple) toDomain(n *narrowing) domain.PoolSeeds {
	return domain.PoolSeeds{
		PredictionToken: t.PredictionToken.Hex(),
		StakeToken:      t.StakeToken.Hex(),
		StakeAmount:     orZero(t.StakeAmount),
		SnapshotTime:    n.toInt64("snapshotTime", t.SnapshotTime),
		WindowCloseTime: n.toInt64("windowCloseTime", t.WindowCloseTime),
		FeesPercent:     t.FeesPercent,
		Multiplier:      t.Multiplier,
		IsUnlisted:      t.IsUnlisted,
	}
}

func (t poolTuple) toDomain() (domain.Pool, error) {
	var n narrowing
	pool := domain.Pool{
		PoolID:              n.toUint64("poolId", t.PoolId),
		Seeds:               t.Seeds.toDomain(&n),
		SeedsHash:           common.Hash(t.SeedsHash).Hex(),
		CreationTime:        n.toInt64("creationTime", t.CreationTime),
		NoOfPredictions:     n.toUint64("noOfPredictions", t.NoOfPredictions),
		SnapshotPrice:       n.toInt64("snapshotPrice", t.SnapshotPrice),
		CompletionTime:      n.toInt64("completionTime", t.CompletionTime),
		WinAmount:           orZero(t.WinAmount),
		NoOfWinners:         n.toUint64("noOfWinners", t.NoOfWinners),
		NoOfClaimedWinnings: n.toUint64("noOfClaimedWinnings", t.NoOfClaimedWinnings),
	}
	return pool, n.err
}

func (t predictionTuple) toDomain() (domain.Prediction, error) {
	var n narrowing
	p := domain.Prediction{
		Predicter:       t.Predicter.Hex(),
		PoolID:          n.toUint64("poolId", t.PoolId),
		PredictionID:    n.toUint64("predictionId", t.PredictionId),
		PredictionPrice: n.toInt64("predictionPrice", t.PredictionPrice),
		PredictionTime:  n.toInt64("predictionTime", t.PredictionTime),
		ClaimedTime:     n.toInt64("claimedWinningsTime", t.ClaimedWinningsTime),
		IsAWinner:       t.IsAWinner,
	}
	return p, n.err
}

// narrowing converts uint256 fields to fixed-width integers and keeps the
// first field that does not fit. Out-of-range values are never truncated.
type narrowing struct {
	err error
}

func (n *narrowing) toInt64(field string, b *big.Int) int64 {
	b = orZero(b)
	if !b.IsInt64() {
		n.fail(field, b)
		return 0
	}
	return b.Int64()
}

func (n *narrowing) toUint64(field string, b *big.Int) uint64 {
	b = orZero(b)
	if !b.IsUint64() {
		n.fail(field, b)
		return 0
	}
	return b.Uint64()
}

func (n *narrowing) fail(field string, b *big.Int) {
	if n.err == nil {
		n.err = domain.Invariant("decode", "%s %s does not fit in 64 bits", field, b)
	}
}

func orZero(b *big.Int) *big.Int {
	if b == nil {
		return new(big.Int)
	}
	return b
}

func bigIDs(ids []uint64) []*big.Int {
	out := make([]*big.Int, len(ids))
	for i, id := range ids {
		out[i] = new(big.Int).SetUint64(id)
	}
	return out
}
