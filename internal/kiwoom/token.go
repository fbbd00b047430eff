package kiwoom

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"kiwoom-gateway/internal/metrics"
)

// safetyMargin is how long before expiry a cached token is considered
// stale. Refreshing early keeps in-flight data calls from racing the
// upstream expiry clock.
const safetyMargin = 10 * time.Second

const mockToken = "mock-token"

// Token is the upstream bearer credential plus its absolute expiry.
// It is process-wide state, mutated only by refresh, never serialized.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   string `json:"expires_in"`
}

type errorResponse struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

// TokenSource owns the shared upstream bearer token. Acquire returns
// the cached token while it is fresh and refreshes it lazily otherwise.
// Concurrent refreshes collapse into a single auth call.
type TokenSource struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics

	now func() time.Time // overridable in tests

	mu    sync.Mutex
	token Token

	group singleflight.Group
}

// NewTokenSource creates a token source for the given upstream config.
// The metrics handle may be nil.
func NewTokenSource(cfg Config, logger *slog.Logger, m *metrics.Metrics) *TokenSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenSource{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger.With(slog.String("component", "token")),
		metrics:    m,
		now:        time.Now,
	}
}

// Acquire returns a valid bearer token, refreshing it if the cached one
// is within the safety margin of expiry. In mock mode it returns a
// fixed synthetic token without any network call. No retry happens at
// this layer; callers decide.
func (ts *TokenSource) Acquire(ctx context.Context) (string, error) {
	if ts.cfg.MockMode {
		ts.mu.Lock()
		ts.token = Token{Value: mockToken, ExpiresAt: ts.now().Add(time.Hour)}
		ts.mu.Unlock()
		return mockToken, nil
	}

	if ts.cfg.AppKey == "" || ts.cfg.AppSecret == "" {
		return "", &ConfigError{Reason: "KIWOOM_APP_KEY / KIWOOM_APP_SECRET not set"}
	}

	if tok, ok := ts.cached(); ok {
		return tok.Value, nil
	}

	// Single-flight so concurrent acquisitions during expiry do not
	// fire duplicate auth calls.
	v, err, _ := ts.group.Do("refresh", func() (any, error) {
		if tok, ok := ts.cached(); ok {
			return tok.Value, nil
		}
		tok, err := ts.refresh(ctx)
		if err != nil {
			return "", err
		}
		ts.mu.Lock()
		ts.token = tok
		ts.mu.Unlock()
		return tok.Value, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (ts *TokenSource) cached() (Token, bool) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.token.Value != "" && ts.token.ExpiresAt.Sub(ts.now()) > safetyMargin {
		return ts.token, true
	}
	return Token{}, false
}

func (ts *TokenSource) refresh(ctx context.Context) (Token, error) {
	form := url.Values{
		"grant_type": {"client_credentials"},
		"appkey":     {ts.cfg.AppKey},
		"appsecret":  {ts.cfg.AppSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		ts.cfg.BaseURL+"/oauth2/tokenP", strings.NewReader(form.Encode()))
	if err != nil {
		return Token{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := ts.httpClient.Do(req)
	if err != nil {
		return Token{}, &AuthError{Status: 0, Message: err.Error()}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr errorResponse
		msg := "unknown error"
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
			msg = apiErr.Message
		}
		return Token{}, &AuthError{Status: resp.StatusCode, Message: msg}
	}

	var payload tokenResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return Token{}, &AuthError{Status: resp.StatusCode, Message: "malformed token response: " + err.Error()}
	}

	expiresIn, err := strconv.ParseInt(payload.ExpiresIn, 10, 64)
	if err != nil {
		return Token{}, &AuthError{Status: resp.StatusCode, Message: "malformed expires_in: " + payload.ExpiresIn}
	}

	tok := Token{
		Value:     payload.AccessToken,
		ExpiresAt: ts.now().Add(time.Duration(expiresIn) * time.Second),
	}
	if ts.metrics != nil {
		ts.metrics.TokenRefreshes.Inc()
	}
	ts.logger.Info("token refreshed", slog.Time("expires_at", tok.ExpiresAt))
	return tok, nil
}
