package domain

import (
	"context"
	"fmt"
	"math/big"
)

// ChainGateway reads pool state from, and submits transactions to, the
// settlement contract on one chain. Write methods simulate, send and wait for
// the receipt; a reverted receipt is an error.
type ChainGateway interface {
	Chain() Chain

	ReadPool(ctx context.Context, poolID uint64) (Pool, error)
	ReadPrediction(ctx context.Context, poolID, predictionID uint64) (Prediction, error)
	// PoolIDBySeedsHash returns 0 when no pool carries the hash.
	PoolIDBySeedsHash(ctx context.Context, seedsHash string) (uint64, error)
	NoOfUserCreatedPools(ctx context.Context) (uint64, error)
	UserCreatedPoolID(ctx context.Context, index uint64) (uint64, error)

	CreatePool(ctx context.Context, seeds PoolSeeds) error
	InitiatePoolCompletion(ctx context.Context, poolID uint64, snapshotPrice int64, batchSize uint64) error
	SetWinnersInBatch(ctx context.Context, poolID uint64, predictionIDs []uint64) error
	FinalizePoolCompletion(ctx context.Context, poolID uint64) error
	CompletePool(ctx context.Context, poolID uint64, snapshotPrice int64, noOfWinners uint64, winAmount *big.Int, predictionIDs []uint64) error
}

// Gateways is the startup-resolved table of chain gateways.
type Gateways map[Chain]ChainGateway

// Get returns the gateway for c or an error for unconfigured chains.
func (g Gateways) Get(c Chain) (ChainGateway, error) {
	gw, ok := g[c]
	if !ok {
		return nil, fmt.Errorf("domain: no gateway configured for chain %q", c)
	}
	return gw, nil
}

// PriceQuote is a raw oracle price: the real value is Price * 10^Expo.
type PriceQuote struct {
	Price       int64 `json:"price"`
	Expo        int32 `json:"expo"`
	PublishTime int64 `json:"publishTime"`
}

// PriceOracle fetches the authoritative price of a feed as of a unix time.
type PriceOracle interface {
	GetPrice(ctx context.Context, feedID string, at int64) (PriceQuote, error)
}

// Token describes a stake or prediction asset known to a chain.
type Token struct {
	Address  string
	Symbol   string
	Decimals uint8
}
