// Package auth provides bearer tokens for the ERCOT public API using the
// B2C resource-owner password flow.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Defaults for the ERCOT B2C tenant.
const (
	DefaultTokenURL = "https://ercotb2c.b2clogin.com/ercotb2c.onmicrosoft.com/B2C_1_PUBAPI-ROPC-FLOW/oauth2/v2.0/token"
	DefaultClientID = "fec253ea-0d06-4272-a5e6-b478baeecd70"

	// DefaultExpiry is assumed when the token response has no usable expires_in.
	DefaultExpiry = time.Hour

	// refreshMargin treats a token as expired this long before it really is.
	refreshMargin = 5 * time.Minute
)

// Credentials holds the API account used to obtain tokens.
type Credentials struct {
	Username string
	Password string
	ClientID string
}

// NewCredentials validates and returns credentials for username/password.
func NewCredentials(username, password string) (*Credentials, error) {
	if username == "" {
		return nil, errors.New("username is required")
	}
	if password == "" {
		return nil, errors.New("password is required")
	}
	return &Credentials{
		Username: username,
		Password: password,
		ClientID: DefaultClientID,
	}, nil
}

// tokenResponse is the subset of the token endpoint reply that matters.
// expires_in arrives as either a string or a number.
type tokenResponse struct {
	IDToken     string          `json:"id_token"`
	AccessToken string          `json:"access_token"`
	ExpiresIn   json.RawMessage `json:"expires_in"`
}

func (r tokenResponse) expiry() time.Duration {
	raw := strings.Trim(string(r.ExpiresIn), `"`)
	secs, err := strconv.Atoi(raw)
	if err != nil || secs <= 0 {
		return DefaultExpiry
	}
	return time.Duration(secs) * time.Second
}

// TokenSource fetches and caches an id token. It is safe for concurrent
// use; concurrent callers share one in-flight token request.
type TokenSource struct {
	creds      Credentials
	tokenURL   string
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// Option configures a TokenSource.
type Option func(*TokenSource)

// WithTokenURL overrides the token endpoint.
func WithTokenURL(u string) Option {
	return func(s *TokenSource) { s.tokenURL = u }
}

// WithHTTPClient sets the HTTP client used for token requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *TokenSource) { s.httpClient = hc }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *TokenSource) { s.logger = l }
}

// WithNow sets the time source used for expiry checks.
func WithNow(now func() time.Time) Option {
	return func(s *TokenSource) { s.now = now }
}

// NewTokenSource returns a token source for creds.
func NewTokenSource(creds *Credentials, opts ...Option) *TokenSource {
	s := &TokenSource{
		creds:      *creds,
		tokenURL:   DefaultTokenURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default(),
		now:        time.Now,
	}
	if s.creds.ClientID == "" {
		s.creds.ClientID = DefaultClientID
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Token returns the cached token, fetching a new one if none is held or
// the held one expires within five minutes.
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && s.now().Add(refreshMargin).Before(s.expiresAt) {
		return s.token, nil
	}
	return s.fetchLocked(ctx)
}

// Refresh discards the cached token and fetches a new one.
func (s *TokenSource) Refresh(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = ""
	return s.fetchLocked(ctx)
}

// ExpiresAt returns when the cached token expires.
func (s *TokenSource) ExpiresAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expiresAt
}

func (s *TokenSource) fetchLocked(ctx context.Context) (string, error) {
	scope := "openid " + s.creds.ClientID + " offline_access"
	query := url.Values{}
	query.Set("username", s.creds.Username)
	query.Set("password", s.creds.Password)
	query.Set("grant_type", "password")
	query.Set("scope", scope)
	query.Set("client_id", s.creds.ClientID)
	query.Set("response_type", "id_token")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL+"?"+query.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request token: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned status %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}

	token := tr.IDToken
	if token == "" {
		token = tr.AccessToken
	}
	if token == "" {
		return "", errors.New("token response has no id_token")
	}

	s.token = token
	s.expiresAt = s.now().Add(tr.expiry())
	s.logger.Info("obtained api token", "expires_at", s.expiresAt.Format(time.RFC3339))

	return token, nil
}

// Static is a fixed token, for tests and for tokens obtained out of band.
// Refresh returns the same token.
type Static string

// Token returns the token.
func (s Static) Token(context.Context) (string, error) { return string(s), nil }

// Refresh returns the token.
func (s Static) Refresh(context.Context) (string, error) { return string(s), nil }
