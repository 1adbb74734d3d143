package oracle

import (
	"fmt"
	"math/big"

	"github.com/castora-xyz/castora-sub001/internal/domain"
)

// ContractDecimals is the fixed-point precision of prices stored on chain.
const ContractDecimals = 8

func checkExpo(q domain.PriceQuote) error {
	if q.Expo > 0 {
		return domain.Invariant("oracle", "positive exponent %d in quote published at %d", q.Expo, q.PublishTime)
	}
	return nil
}

// ToDecimals rescales a quote to a fixed number of decimals, truncating any
// excess precision.
func ToDecimals(q domain.PriceQuote, decimals int) (int64, error) {
	if err := checkExpo(q); err != nil {
		return 0, err
	}
	v := big.NewInt(q.Price)
	shift := decimals + int(q.Expo)
	if shift >= 0 {
		v.Mul(v, pow10(shift))
	} else {
		v.Quo(v, pow10(-shift))
	}
	if !v.IsInt64() {
		return 0, fmt.Errorf("oracle: scaled price %s overflows int64", v)
	}
	return v.Int64(), nil
}

// MicroUSD values amount (in the token's smallest unit) in millionths of a
// dollar at the quoted price, truncated.
func MicroUSD(amount *big.Int, tokenDecimals uint8, q domain.PriceQuote) (int64, error) {
	if err := checkExpo(q); err != nil {
		return 0, err
	}
	if amount == nil {
		return 0, nil
	}
	v := new(big.Int).Mul(amount, big.NewInt(q.Price))
	v.Mul(v, big.NewInt(1_000_000))
	shift := int(q.Expo) - int(tokenDecimals)
	if shift >= 0 {
		v.Mul(v, pow10(shift))
	} else {
		v.Quo(v, pow10(-shift))
	}
	if !v.IsInt64() {
		return 0, fmt.Errorf("oracle: usd value %s overflows int64", v)
	}
	return v.Int64(), nil
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
