package oracle

import (
	"context"
	"fmt"
	"strings"

	"github.com/castora-xyz/castora-sub001/internal/domain"
)

// Resolver prices a chain's tokens by mapping token address to symbol and
// symbol to feed id.
type Resolver struct {
	oracle domain.PriceOracle
	tokens map[domain.Chain]map[string]domain.Token
	feeds  map[string]string
}

// NewResolver builds a Resolver. Token addresses are matched
// case-insensitively.
func NewResolver(oracle domain.PriceOracle, tokens map[domain.Chain][]domain.Token, feeds map[string]string) *Resolver {
	idx := make(map[domain.Chain]map[string]domain.Token, len(tokens))
	for chain, list := range tokens {
		m := make(map[string]domain.Token, len(list))
		for _, t := range list {
			m[strings.ToLower(t.Address)] = t
		}
		idx[chain] = m
	}
	return &Resolver{oracle: oracle, tokens: idx, feeds: feeds}
}

// Token looks up a token, returning domain.ErrUnsupportedToken when the
// address is not configured for the chain.
func (r *Resolver) Token(chain domain.Chain, address string) (domain.Token, error) {
	t, ok := r.tokens[chain][strings.ToLower(address)]
	if !ok {
		return domain.Token{}, fmt.Errorf("oracle: token %s on %s: %w", address, chain, domain.ErrUnsupportedToken)
	}
	return t, nil
}

// Quote returns the token metadata and its oracle quote as of at.
func (r *Resolver) Quote(ctx context.Context, chain domain.Chain, address string, at int64) (domain.Token, domain.PriceQuote, error) {
	t, err := r.Token(chain, address)
	if err != nil {
		return domain.Token{}, domain.PriceQuote{}, err
	}
	feed, ok := r.feeds[t.Symbol]
	if !ok {
		return domain.Token{}, domain.PriceQuote{}, fmt.Errorf("oracle: no feed for %s: %w", t.Symbol, domain.ErrUnsupportedToken)
	}
	q, err := r.oracle.GetPrice(ctx, feed, at)
	if err != nil {
		return domain.Token{}, domain.PriceQuote{}, err
	}
	if err := checkExpo(q); err != nil {
		return domain.Token{}, domain.PriceQuote{}, err
	}
	return t, q, nil
}
