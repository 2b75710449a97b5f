package privvy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced clock
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// loginServer answers POST /login with the given body and counts calls
func loginServer(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/login" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		calls.Add(1)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func TestTokenCache_LoginSendsCredentials(t *testing.T) {
	var got loginRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/login", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"token":"abc"}`))
	}))
	defer srv.Close()

	tc := NewTokenCache(Credentials{BaseURL: srv.URL + "/", Email: "ops@example.com", Password: "pw"},
		WithLogger(discardLogger()))

	token, err := tc.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", token)
	assert.Equal(t, "ops@example.com", got.Email)
	assert.Equal(t, "pw", got.Password)
}

func TestTokenCache_ReusesTokenWithinWindow(t *testing.T) {
	srv, calls := loginServer(t, http.StatusOK, `{"token":"abc"}`)
	clock := newFakeClock()
	tc := NewTokenCache(Credentials{BaseURL: srv.URL}, WithClock(clock.Now), WithLogger(discardLogger()))

	for i := 0; i < 3; i++ {
		token, err := tc.Token(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "abc", token)
	}
	assert.Equal(t, int32(1), calls.Load())

	clock.Advance(49 * time.Minute)
	_, err := tc.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load(), "still inside the 50 minute window")
}

func TestTokenCache_RefreshesAfterWindow(t *testing.T) {
	srv, calls := loginServer(t, http.StatusOK, `{"token":"abc"}`)
	clock := newFakeClock()
	tc := NewTokenCache(Credentials{BaseURL: srv.URL}, WithClock(clock.Now), WithLogger(discardLogger()))

	_, err := tc.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(TokenValidity), tc.ExpiresAt())

	clock.Advance(51 * time.Minute)
	_, err = tc.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestTokenCache_AccessTokenFallback(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"token field", `{"token":"t1"}`, "t1"},
		{"access_token field", `{"access_token":"t2","expires_in":3600}`, "t2"},
		{"token wins when both present", `{"token":"t1","access_token":"t2"}`, "t1"},
		{"empty token falls back", `{"token":"","access_token":"t2"}`, "t2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := loginServer(t, http.StatusOK, tt.body)
			tc := NewTokenCache(Credentials{BaseURL: srv.URL}, WithLogger(discardLogger()))

			token, err := tc.Token(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, token)
		})
	}
}

func TestTokenCache_Failures(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		contains string
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":"bad credentials"}`, "unexpected status 401"},
		{"server error", http.StatusInternalServerError, "boom", "unexpected status 500: boom"},
		{"malformed body", http.StatusOK, "not json", "failed to decode login response"},
		{"no token", http.StatusOK, `{"user":"x"}`, "no token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := loginServer(t, tt.status, tt.body)
			tc := NewTokenCache(Credentials{BaseURL: srv.URL}, WithLogger(discardLogger()))

			_, err := tc.Token(context.Background())
			require.Error(t, err)

			var authErr *AuthError
			require.True(t, errors.As(err, &authErr), "expected *AuthError, got %T", err)
			assert.Contains(t, err.Error(), tt.contains)
			assert.Equal(t, "authentication", authErr.Phase())
			assert.True(t, tc.ExpiresAt().IsZero(), "failures are not cached")
		})
	}
}

func TestTokenCache_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	tc := NewTokenCache(Credentials{BaseURL: url}, WithLogger(discardLogger()))
	_, err := tc.Token(context.Background())

	var authErr *AuthError
	assert.ErrorAs(t, err, &authErr)
}

func TestTokenCache_ConcurrentCallersShareOneLogin(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(50 * time.Millisecond)
		_, _ = w.Write([]byte(`{"token":"shared"}`))
	}))
	defer srv.Close()

	tc := NewTokenCache(Credentials{BaseURL: srv.URL}, WithLogger(discardLogger()))

	var wg sync.WaitGroup
	tokens := make([]string, 10)
	errs := make([]error, 10)
	for i := range tokens {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = tc.Token(context.Background())
		}(i)
	}
	wg.Wait()

	for i := range tokens {
		require.NoError(t, errs[i])
		assert.Equal(t, "shared", tokens[i])
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestTokenCache_Invalidate(t *testing.T) {
	srv, calls := loginServer(t, http.StatusOK, `{"token":"abc"}`)
	tc := NewTokenCache(Credentials{BaseURL: srv.URL}, WithLogger(discardLogger()))

	_, err := tc.Token(context.Background())
	require.NoError(t, err)

	tc.Invalidate()
	assert.True(t, tc.ExpiresAt().IsZero())

	_, err = tc.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestTokenCache_CallerCancellation(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		_, _ = w.Write([]byte(`{"token":"late"}`))
	}))
	defer srv.Close()
	defer close(release)

	tc := NewTokenCache(Credentials{BaseURL: srv.URL}, WithLogger(discardLogger()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := tc.Token(ctx)
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTokenCache_WarnsWhenJWTExpiresEarly(t *testing.T) {
	clock := newFakeClock()
	short, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": clock.Now().Add(10 * time.Minute).Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	srv, _ := loginServer(t, http.StatusOK, `{"token":"`+short+`"}`)

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	tc := NewTokenCache(Credentials{BaseURL: srv.URL}, WithClock(clock.Now), WithLogger(logger))

	token, err := tc.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, short, token)
	assert.Contains(t, buf.String(), "provider token expires before the cache window")
	assert.Equal(t, clock.Now().Add(TokenValidity), tc.ExpiresAt(), "window is fixed regardless of provider expiry")
}
