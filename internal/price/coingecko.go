// Package price fetches the BTC/USD spot price.
package price

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"v4v/internal/log"
)

const DefaultURL = "https://api.coingecko.com/api/v3/simple/price?ids=bitcoin&vs_currencies=usd"

type simplePrice struct {
	Bitcoin struct {
		USD *float64 `json:"usd"`
	} `json:"bitcoin"`
}

// Client queries the CoinGecko simple price endpoint.
type Client struct {
	url    string
	http   *http.Client
	logger *log.Logger
}

func NewClient(url string, logger *log.Logger) *Client {
	if url == "" {
		url = DefaultURL
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Client{
		url: url,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger.WithComponent(log.ComponentPrice),
	}
}

// FetchPrice returns the BTC price in USD, or nil on any failure.
func (c *Client) FetchPrice(ctx context.Context) *float64 {
	p, err := c.fetch(ctx)
	if err != nil {
		c.logger.Warn("BTC price unavailable", log.FieldError, err)
		return nil
	}
	return p
}

func (c *Client) fetch(ctx context.Context) (*float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch price: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var out simplePrice
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if out.Bitcoin.USD == nil || *out.Bitcoin.USD <= 0 {
		return nil, fmt.Errorf("response has no bitcoin usd price")
	}
	return out.Bitcoin.USD, nil
}
