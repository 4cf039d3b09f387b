package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// State is a step of the request lifecycle.
type State int

// Request states.
const (
	StateIdle State = iota
	StateSending
	StateAwaitingRetry
	StateRefreshingAuth
	StateFailed
	StateSucceeded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateAwaitingRetry:
		return "awaiting_retry"
	case StateRefreshingAuth:
		return "refreshing_auth"
	case StateFailed:
		return "failed"
	case StateSucceeded:
		return "succeeded"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Request describes one logical call. Path is joined to the client's base
// URL unless it is already absolute.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header map[string]string
	Body   []byte
}

// Response is a successful (2xx/3xx) reply with its body fully read.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// attempt outcome of a single HTTP exchange.
type outcome struct {
	resp *Response
	err  error // transport error
}

// Send performs the request through the limiter, retrying 429, 5xx and
// transport failures with backoff and refreshing the bearer token once on
// 401.
//
// Errors: *TransientNetworkError (wrapped with ErrMaxRetries) when retries
// are exhausted, *AuthError when a 401 persists, *APIError for other 4xx,
// or the context error on cancellation.
func (c *Client) Send(ctx context.Context, req Request) (*Response, error) {
	fullURL := c.resolve(req.Path, req.Query)

	var (
		state        = StateIdle
		token        string
		retries      int
		refreshed    bool
		last         outcome
		lastAttempts int
	)

	transition := func(to State) {
		if c.onTransition != nil {
			c.onTransition(state, to)
		}
		state = to
	}

	if c.auth != nil {
		t, err := c.auth.Token(ctx)
		if err != nil {
			return nil, &AuthError{Err: err}
		}
		token = t
	}

	transition(StateSending)

	for {
		switch state {
		case StateSending:
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}

			headers := BuildHeaders(req.Header, token, c.subscriptionKey)
			c.logger.Debug("sending request",
				"method", req.Method,
				"url", fullURL,
				"attempt", lastAttempts+1,
				"headers", maskedPairs(headers),
			)

			last = c.exchange(ctx, req, fullURL, headers)
			lastAttempts++

			if last.err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				transition(StateAwaitingRetry)
				continue
			}

			code := last.resp.StatusCode
			switch {
			case code == http.StatusUnauthorized:
				if refreshed || c.auth == nil {
					transition(StateFailed)
					return nil, &AuthError{StatusCode: code}
				}
				transition(StateRefreshingAuth)
			case isRetryableStatus(code):
				transition(StateAwaitingRetry)
			case code >= 400:
				transition(StateFailed)
				return nil, &APIError{
					StatusCode: code,
					Message:    http.StatusText(code),
					Body:       last.resp.Body,
				}
			default:
				transition(StateSucceeded)
				return last.resp, nil
			}

		case StateRefreshingAuth:
			c.logger.Warn("unauthorized, refreshing token", "url", fullURL)
			t, err := c.auth.Refresh(ctx)
			if err != nil {
				transition(StateFailed)
				return nil, &AuthError{Err: fmt.Errorf("refresh token: %w", err)}
			}
			token = t
			refreshed = true
			transition(StateSending)

		case StateAwaitingRetry:
			if retries >= c.maxRetries {
				transition(StateFailed)
				continue
			}
			retries++

			wait := c.backoff(retries, last)
			c.logger.Debug("retrying request",
				"attempt", retries,
				"backoff", wait,
				"url", fullURL,
				"status", statusOf(last),
			)
			if err := c.clock.Sleep(ctx, wait); err != nil {
				return nil, err
			}
			transition(StateSending)

		case StateFailed:
			tne := &TransientNetworkError{
				StatusCode: statusOf(last),
				Attempts:   lastAttempts,
				Err:        last.err,
			}
			if last.resp != nil {
				tne.Body = truncateBody(last.resp.Body)
			}
			c.logger.Error("request failed", "url", fullURL, "error", tne)
			return nil, fmt.Errorf("%w: %w", ErrMaxRetries, tne)

		default:
			return nil, fmt.Errorf("unexpected request state %s", state)
		}
	}
}

// exchange performs exactly one HTTP round trip.
func (c *Client) exchange(ctx context.Context, req Request, fullURL string, headers http.Header) outcome {
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return outcome{err: fmt.Errorf("create request: %w", err)}
	}
	httpReq.Header = headers

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return outcome{err: fmt.Errorf("do request: %w", err)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return outcome{err: fmt.Errorf("read response: %w", err)}
	}

	return outcome{resp: &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}}
}

// backoff returns the wait before retry n (1-based). 429 uses its own
// schedule: short on the first retry, doubling up to maxRateBackoff.
// Other failures double from retryBackoff up to maxRetryBackoff with
// jitter of 0.5x to 1.5x.
func (c *Client) backoff(n int, last outcome) time.Duration {
	if last.resp != nil && last.resp.StatusCode == http.StatusTooManyRequests {
		if ra := retryAfter(last.resp.Header); ra > 0 {
			return min(ra, c.maxRateBackoff)
		}
		return capDouble(c.rateLimitBackoff, n, c.maxRateBackoff)
	}

	d := capDouble(c.retryBackoff, n, c.maxRetryBackoff)
	if d <= 0 {
		return 0
	}
	return d/2 + time.Duration(rand.Int63n(int64(d)))
}

func capDouble(base time.Duration, n int, max time.Duration) time.Duration {
	d := base
	for i := 1; i < n && d < max; i++ {
		d *= 2
	}
	if max > 0 && d > max {
		d = max
	}
	return d
}

func retryAfter(h http.Header) time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0
	}
	secs, err := time.ParseDuration(v + "s")
	if err != nil {
		return 0
	}
	return secs
}

func statusOf(o outcome) int {
	if o.resp == nil {
		return 0
	}
	return o.resp.StatusCode
}

func (c *Client) resolve(path string, query url.Values) string {
	full := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		full = strings.TrimRight(c.baseURL, "/") + "/" + strings.TrimLeft(path, "/")
	}
	if len(query) > 0 {
		sep := "?"
		if strings.Contains(full, "?") {
			sep = "&"
		}
		full += sep + query.Encode()
	}
	return full
}

// IsTransient reports whether err is a retry-exhausted transient failure.
func IsTransient(err error) bool {
	var tne *TransientNetworkError
	return errors.As(err, &tne)
}
