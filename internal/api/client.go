package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// AuthProvider supplies bearer tokens. Refresh is called after a 401 and
// must return a token different from the rejected one when possible.
type AuthProvider interface {
	Token(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (string, error)
}

// Client is the single outbound gate to the report API. Every request made
// through a Client waits on its Limiter, so sharing one Client between
// workers bounds the process-wide request rate.
type Client struct {
	baseURL         string
	subscriptionKey string
	auth            AuthProvider
	httpClient      *http.Client
	logger          *slog.Logger
	limiter         *Limiter
	clock           Clock

	maxRetries       int
	retryBackoff     time.Duration
	maxRetryBackoff  time.Duration
	rateLimitBackoff time.Duration
	maxRateBackoff   time.Duration
	pageSize         int

	onTransition func(from, to State)
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// Default client settings.
const (
	DefaultTimeout         = 30 * time.Second
	DefaultMinInterval     = 6 * time.Second
	DefaultMaxRetries      = 5
	DefaultRetryBackoff    = 2 * time.Second
	DefaultMaxRetryBackoff = 60 * time.Second
	DefaultMaxRateBackoff  = 300 * time.Second
	DefaultPageSize        = 10000
)

// NewClient creates a client for the API rooted at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		logger:           slog.Default(),
		clock:            SystemClock{},
		maxRetries:       DefaultMaxRetries,
		retryBackoff:     DefaultRetryBackoff,
		maxRetryBackoff:  DefaultMaxRetryBackoff,
		rateLimitBackoff: DefaultRetryBackoff,
		maxRateBackoff:   DefaultMaxRateBackoff,
		pageSize:         DefaultPageSize,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.limiter == nil {
		c.limiter = NewLimiter(DefaultMinInterval, c.clock)
	}

	return c
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRetries sets the retry budget and the base and cap of the backoff
// used for 5xx and transport errors.
func WithRetries(max int, backoff, maxBackoff time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = max
		c.retryBackoff = backoff
		c.maxRetryBackoff = maxBackoff
	}
}

// WithRateLimitBackoff sets the base and cap of the backoff used after 429.
func WithRateLimitBackoff(base, max time.Duration) ClientOption {
	return func(c *Client) {
		c.rateLimitBackoff = base
		c.maxRateBackoff = max
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLimiter shares an existing limiter. Clients built from the same
// limiter share one request budget.
func WithLimiter(l *Limiter) ClientOption {
	return func(c *Client) {
		c.limiter = l
	}
}

// WithClock sets the clock used for backoff sleeps and, when no limiter is
// given, for the default limiter.
func WithClock(clock Clock) ClientOption {
	return func(c *Client) {
		c.clock = clock
	}
}

// WithAuth sets the bearer token provider.
func WithAuth(p AuthProvider) ClientOption {
	return func(c *Client) {
		c.auth = p
	}
}

// WithSubscriptionKey sets the API subscription key header.
func WithSubscriptionKey(key string) ClientOption {
	return func(c *Client) {
		c.subscriptionKey = key
	}
}

// WithPageSize sets the page size requested by paginated calls.
func WithPageSize(n int) ClientOption {
	return func(c *Client) {
		c.pageSize = n
	}
}

// WithTransitionHook registers a callback for request state changes.
func WithTransitionHook(fn func(from, to State)) ClientOption {
	return func(c *Client) {
		c.onTransition = fn
	}
}
