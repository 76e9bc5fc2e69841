package common

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"
)

// HttpClient is an interface for HTTP operations with optional retry logic.
// This allows mocking or custom transport layers in testing.
type HttpClient interface {
	Do(req *http.Request) (*http.Response, error)
	CloseIdleConnections()
	RetryWithExponentialBackoff(ctx context.Context, operation func() (interface{}, error)) (interface{}, error)
	SetRandAndSleepForTest(sleep func(d time.Duration), seed int64)
}

// HTTPError is a custom error that captures unexpected status codes and response bodies.
type HTTPError struct {
	StatusCode int
	Body       []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected status code: %d, body: %s", e.StatusCode, string(e.Body))
}

// IsStatus reports whether err is an *HTTPError carrying the given status.
func IsStatus(err error, status int) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == status
}

// userAgentRoundTripper is a custom RoundTripper that adds a User-Agent header.
type userAgentRoundTripper struct {
	Wrapped   http.RoundTripper
	UserAgent string
}

func (rt *userAgentRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	// clone request to avoid mutating the original
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", rt.UserAgent)
	return rt.Wrapped.RoundTrip(clone)
}

// WithUserAgent wraps next so every outgoing request carries userAgent.
func WithUserAgent(next http.RoundTripper, userAgent string) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return &userAgentRoundTripper{Wrapped: next, UserAgent: userAgent}
}

// Implementation of HttpClient that wraps a standard *http.Client with retry logic.
// One instance is shared by every API client, so rnd is guarded by mu.
type httpClient struct {
	client    *http.Client
	sleepFunc func(d time.Duration)

	mu  sync.Mutex
	rnd *rand.Rand
}

// DefaultTimeout bounds a whole logical call, refresh round trips included.
const DefaultTimeout = 60 * time.Second

// NewHttpClient returns a new HttpClient around base, adding a custom User-Agent.
// A zero timeout selects DefaultTimeout.
func NewHttpClient(userAgent string, base *http.Client, timeout time.Duration) HttpClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	base.Transport = WithUserAgent(base.Transport, userAgent)
	base.Timeout = timeout

	return &httpClient{
		client: base,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (h *httpClient) Do(req *http.Request) (*http.Response, error) {
	return h.client.Do(req)
}

func (h *httpClient) CloseIdleConnections() {
	h.client.CloseIdleConnections()
}

// Exponential backoff constants
const (
	maxRetries = 5
	baseDelay  = 1 * time.Second
	maxDelay   = 32 * time.Second
)

// RetryWithExponentialBackoff attempts the given operation() multiple times if
// we encounter a retryable HTTPError (500, 502, 503, 504).
// Authentication failures are never retried here; the auth transport owns those.
// A done ctx stops the retries and is returned as the error.
func (h *httpClient) RetryWithExponentialBackoff(ctx context.Context, operation func() (interface{}, error)) (interface{}, error) {
	var result interface{}
	var err error
	delay := baseDelay

	for i := 0; i < maxRetries; i++ {
		if result, err = operation(); err == nil {
			return result, nil
		}

		var httpErr *HTTPError
		if !errors.As(err, &httpErr) || !retryableStatus(httpErr.StatusCode) {
			break
		}
		if i == maxRetries-1 {
			break
		}
		if waitErr := h.wait(ctx, delay+h.jitter(delay)); waitErr != nil {
			return nil, waitErr
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
	return nil, err
}

func (h *httpClient) jitter(delay time.Duration) time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return time.Duration(h.rnd.Int63n(int64(delay)))
}

func (h *httpClient) wait(ctx context.Context, d time.Duration) error {
	h.mu.Lock()
	sleep := h.sleepFunc
	h.mu.Unlock()
	if sleep != nil {
		sleep(d)
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func (h *httpClient) SetRandAndSleepForTest(sleep func(d time.Duration), seed int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sleepFunc = sleep
	h.rnd = rand.New(rand.NewSource(seed))
}
