package privvy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/eshaffer321/merchant-sync-backend/internal/observability/metrics"
)

// DefaultTimeout bounds each login and fetch request.
const DefaultTimeout = 30 * time.Second

// Config configures a Client
type Config struct {
	BaseURL  string
	Email    string
	Password string
	Timeout  time.Duration
}

// Client fetches merchants from the provider.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     *TokenCache
	logger     *slog.Logger
	metrics    *metrics.SyncMetrics
}

// NewClient creates a client and its token cache from cfg.
func NewClient(cfg Config, logger *slog.Logger, m *metrics.SyncMetrics) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := &http.Client{Timeout: timeout}

	tokens := NewTokenCache(
		Credentials{BaseURL: cfg.BaseURL, Email: cfg.Email, Password: cfg.Password},
		WithHTTPClient(httpClient),
		WithLogger(logger),
		WithMetrics(m),
	)
	return NewClientWithTokens(cfg.BaseURL, httpClient, tokens, logger, m)
}

// NewClientWithTokens creates a client that shares an existing token cache.
func NewClientWithTokens(baseURL string, httpClient *http.Client, tokens *TokenCache, logger *slog.Logger, m *metrics.SyncMetrics) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		tokens:     tokens,
		logger:     logger,
		metrics:    m,
	}
}

// Tokens returns the client's token cache
func (c *Client) Tokens() *TokenCache {
	return c.tokens
}

// FetchMerchants downloads the complete merchant list.
// Authentication failures are returned as *AuthError, everything else as *FetchError.
func (c *Client) FetchMerchants(ctx context.Context) ([]MerchantRecord, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	records, err := c.getMerchants(ctx, token)
	c.metrics.RecordFetch(time.Since(start))

	if err != nil {
		if IsUnauthorized(err) {
			// Token was revoked early; the next run logs in again
			c.tokens.Invalidate()
		}
		c.logger.Error("failed to fetch merchants", "error", err)
		return nil, &FetchError{Err: err}
	}

	c.logger.Info("fetched merchants", "count", len(records), "duration", time.Since(start))
	return records, nil
}

func (c *Client) getMerchants(ctx context.Context, token string) ([]MerchantRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/mids", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError(resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if len(strings.TrimSpace(string(body))) == 0 {
		return []MerchantRecord{}, nil
	}

	var records []MerchantRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("failed to decode merchants: %w", err)
	}
	if records == nil {
		records = []MerchantRecord{}
	}
	return records, nil
}
