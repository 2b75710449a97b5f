package privvy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"github.com/eshaffer321/merchant-sync-backend/internal/observability/metrics"
)

// TokenValidity is how long a login token is reused, regardless of what the
// provider says about its lifetime.
const TokenValidity = 50 * time.Minute

// maxErrorBody caps how much of a failed response is kept for the error message
const maxErrorBody = 512

// Credentials identify the account used to log in.
type Credentials struct {
	BaseURL  string
	Email    string
	Password string
}

// TokenCache holds the current bearer token and refreshes it on demand.
// It is safe for concurrent use; concurrent callers that find the cache
// stale share a single login request.
type TokenCache struct {
	creds      Credentials
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.SyncMetrics
	now        func() time.Time
	validity   time.Duration

	mu        sync.RWMutex
	token     string
	expiresAt time.Time

	group singleflight.Group
}

// TokenOption customizes a TokenCache
type TokenOption func(*TokenCache)

// WithHTTPClient sets the client used for login requests
func WithHTTPClient(c *http.Client) TokenOption {
	return func(tc *TokenCache) { tc.httpClient = c }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) TokenOption {
	return func(tc *TokenCache) { tc.logger = l }
}

// WithMetrics records login outcomes on m
func WithMetrics(m *metrics.SyncMetrics) TokenOption {
	return func(tc *TokenCache) { tc.metrics = m }
}

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) TokenOption {
	return func(tc *TokenCache) { tc.now = now }
}

// NewTokenCache creates an empty cache for creds
func NewTokenCache(creds Credentials, opts ...TokenOption) *TokenCache {
	creds.BaseURL = strings.TrimRight(creds.BaseURL, "/")
	tc := &TokenCache{
		creds:      creds,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default(),
		now:        time.Now,
		validity:   TokenValidity,
	}
	for _, opt := range opts {
		opt(tc)
	}
	return tc
}

// Token returns a valid bearer token, logging in if the cached one is missing or expired.
func (c *TokenCache) Token(ctx context.Context) (string, error) {
	if token, ok := c.cached(); ok {
		return token, nil
	}

	// The login is detached from any single caller's cancellation since
	// other callers may be waiting on it; the HTTP client timeout bounds it.
	loginCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan("login", func() (any, error) {
		if token, ok := c.cached(); ok {
			return token, nil
		}
		return c.login(loginCtx)
	})

	select {
	case <-ctx.Done():
		return "", &AuthError{Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// Invalidate drops the cached token so the next Token call logs in again.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.expiresAt = time.Time{}
}

// ExpiresAt reports when the cached token stops being reused (zero if none)
func (c *TokenCache) ExpiresAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.expiresAt
}

func (c *TokenCache) cached() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token != "" && c.now().Before(c.expiresAt) {
		return c.token, true
	}
	return "", false
}

func (c *TokenCache) login(ctx context.Context) (string, error) {
	loginAt := c.now()

	token, err := c.requestToken(ctx)
	c.metrics.RecordLogin(err == nil)
	if err != nil {
		c.logger.Error("privvy login failed", "error", err)
		return "", &AuthError{Err: err}
	}

	c.mu.Lock()
	c.token = token
	c.expiresAt = loginAt.Add(c.validity)
	c.mu.Unlock()

	c.logger.Info("privvy login succeeded", "expires_at", loginAt.Add(c.validity).Format(time.RFC3339))
	c.checkProviderExpiry(token, loginAt)
	return token, nil
}

func (c *TokenCache) requestToken(ctx context.Context) (string, error) {
	body, err := json.Marshal(loginRequest{Email: c.creds.Email, Password: c.creds.Password})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.creds.BaseURL+"/login", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", statusError(resp)
	}

	var lr loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return "", fmt.Errorf("failed to decode login response: %w", err)
	}

	token := lr.bearer()
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

// checkProviderExpiry warns when the token is a JWT that expires inside the reuse window.
func (c *TokenCache) checkProviderExpiry(token string, loginAt time.Time) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		c.logger.Debug("token is not a JWT, skipping expiry check")
		return
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return
	}

	if exp.Before(loginAt.Add(c.validity)) {
		c.logger.Warn("provider token expires before the cache window",
			"provider_expires_at", exp.Format(time.RFC3339),
			"window", c.validity,
		)
	}
}

func statusError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
}
