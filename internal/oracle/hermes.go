// Package oracle fetches historical asset prices from the Pyth Hermes API and
// converts them into the units the settlement contract and leaderboard use.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/castora-xyz/castora-sub001/internal/domain"
)

// HermesConfig holds Hermes client parameters.
type HermesConfig struct {
	BaseURL    string
	Timeout    time.Duration
	RateLimit  int
	RateWindow time.Duration
}

// HermesClient implements domain.PriceOracle against Pyth Hermes.
type HermesClient struct {
	cfg        HermesConfig
	httpClient *http.Client
	limiter    domain.RateLimiter
}

// NewHermesClient creates a Hermes client. limiter may be nil.
func NewHermesClient(cfg HermesConfig, limiter domain.RateLimiter) *HermesClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &HermesClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    limiter,
	}
}

// hermesResponse is the subset of /v2/updates/price/{time} the client reads.
type hermesResponse struct {
	Parsed []struct {
		ID    string `json:"id"`
		Price struct {
			Price       string `json:"price"`
			Expo        int32  `json:"expo"`
			PublishTime int64  `json:"publish_time"`
		} `json:"price"`
	} `json:"parsed"`
}

// GetPrice returns the feed's price update published at or just after at.
func (c *HermesClient) GetPrice(ctx context.Context, feedID string, at int64) (domain.PriceQuote, error) {
	if c.limiter != nil && c.cfg.RateLimit > 0 {
		if err := c.limiter.Wait(ctx, "oracle:hermes", c.cfg.RateLimit, c.cfg.RateWindow); err != nil {
			return domain.PriceQuote{}, fmt.Errorf("oracle: rate limit: %w", err)
		}
	}

	params := url.Values{}
	params.Add("ids[]", feedID)
	params.Set("parsed", "true")
	path := fmt.Sprintf("%s/v2/updates/price/%d?%s", strings.TrimRight(c.cfg.BaseURL, "/"), at, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, path, nil)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("oracle: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("oracle: get price %s@%d: %w", feedID, at, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("oracle: read response: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return domain.PriceQuote{}, fmt.Errorf("oracle: get price %s@%d: %w", feedID, at, domain.ErrRateLimited)
	case resp.StatusCode == http.StatusNotFound:
		return domain.PriceQuote{}, fmt.Errorf("oracle: get price %s@%d: %w", feedID, at, domain.ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		snippet := body
		if len(snippet) > 512 {
			snippet = snippet[:512]
		}
		return domain.PriceQuote{}, fmt.Errorf("oracle: unexpected status %d: %s", resp.StatusCode, string(snippet))
	}

	var decoded hermesResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return domain.PriceQuote{}, fmt.Errorf("oracle: decode response: %w", err)
	}

	want := strings.TrimPrefix(strings.ToLower(feedID), "0x")
	for _, p := range decoded.Parsed {
		if strings.TrimPrefix(strings.ToLower(p.ID), "0x") != want {
			continue
		}
		price, err := strconv.ParseInt(p.Price.Price, 10, 64)
		if err != nil {
			return domain.PriceQuote{}, fmt.Errorf("oracle: parse price %q: %w", p.Price.Price, err)
		}
		return domain.PriceQuote{Price: price, Expo: p.Price.Expo, PublishTime: p.Price.PublishTime}, nil
	}
	return domain.PriceQuote{}, fmt.Errorf("oracle: feed %s missing from response: %w", feedID, domain.ErrNotFound)
}

// Compile-time interface check.
var _ domain.PriceOracle = (*HermesClient)(nil)
