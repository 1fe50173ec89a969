// Package market fetches historical and predicted price series and derives the
// dashboard's headline figures from them.
package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rewired-gh/coinpulse/internal/logger"
	"github.com/rewired-gh/coinpulse/internal/models"
)

// ErrDataUnavailable means the source has no usable series for a coin.
var ErrDataUnavailable = errors.New("data unavailable")

// Cache stores fetched data between requests. A miss is (nil, nil).
type Cache interface {
	Get(ctx context.Context, coin string) (*models.CryptoData, error)
	Set(ctx context.Context, data *models.CryptoData) error
}

// Client provides access to the crypto data API
type Client struct {
	baseURL    string
	httpClient *http.Client
	cache      Cache
	maxRetries int
	retryDelay time.Duration
}

// NewClient creates a new data API client. cache may be nil.
func NewClient(baseURL string, timeout time.Duration, cache Cache) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		cache:      cache,
		maxRetries: 3,
		retryDelay: time.Second,
	}
}

// Fetch retrieves the series for coin, consulting the cache first.
func (c *Client) Fetch(ctx context.Context, coin string) (*models.CryptoData, error) {
	coin = strings.ToUpper(strings.TrimSpace(coin))

	if c.cache != nil {
		cached, err := c.cache.Get(ctx, coin)
		if err != nil {
			logger.Warn("[market] cache read for %s failed: %v", coin, err)
		} else if cached != nil {
			logger.Debug("[market] cache hit for %s", coin)
			return cached, nil
		}
	}

	var data models.CryptoData
	if err := c.getJSON(ctx, "/api/crypto/"+url.PathEscape(coin), &data); err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", coin, err)
	}
	// ticks carry upper-case symbols and cards match on them exactly
	data.Coin = strings.ToUpper(strings.TrimSpace(data.Coin))
	if data.Coin == "" {
		data.Coin = coin
	}
	if err := data.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", coin, ErrDataUnavailable, err)
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, &data); err != nil {
			logger.Warn("[market] cache write for %s failed: %v", coin, err)
		}
	}
	return &data, nil
}

// Coins lists the coins the data API serves.
func (c *Client) Coins(ctx context.Context) ([]string, error) {
	var coins []string
	if err := c.getJSON(ctx, "/api/coins", &coins); err != nil {
		return nil, fmt.Errorf("failed to fetch coins: %w", err)
	}
	return coins, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	resp, err := c.doRequest(ctx, c.baseURL+path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrDataUnavailable
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// doRequest performs HTTP request with retry logic. Only transport errors and
// 5xx responses are retried.
func (c *Client) doRequest(ctx context.Context, urlStr string) (*http.Response, error) {
	var lastErr error

	for i := 0; i < c.maxRetries; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
		} else if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
		} else {
			return resp, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(i+1) * c.retryDelay):
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}
