package domain

import (
	"fmt"
	"strings"
)

// Chain identifies a supported settlement chain. The set is closed; config
// entries for any other name are rejected at startup.
type Chain string

const (
	ChainMonadTestnet Chain = "monadtestnet"
	ChainSepolia      Chain = "sepolia"
)

// SupportedChains lists every chain the settler knows how to address.
var SupportedChains = []Chain{ChainMonadTestnet, ChainSepolia}

// ParseChain converts a config or payload string into a Chain.
func ParseChain(s string) (Chain, error) {
	c := Chain(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range SupportedChains {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("domain: unsupported chain %q", s)
}

func (c Chain) String() string {
	return string(c)
}
