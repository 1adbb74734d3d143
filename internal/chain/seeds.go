package chain

import (
	"fmt"

	"github.com/castora-xyz/castora-sub001/internal/domain"
	"github.com/ethereum/go-ethereum/crypto"
)

// SeedsHash is keccak256 of the ABI-encoded seeds tuple, the same value the
// contract stores as a pool's seedsHash.
func SeedsHash(seeds domain.PoolSeeds) (string, error) {
	encoded, err := seedsArgs.Pack(toSeedsTuple(seeds))
	if err != nil {
		return "", fmt.Errorf("chain: encode seeds: %w", err)
	}
	return crypto.Keccak256Hash(encoded).Hex(), nil
}
