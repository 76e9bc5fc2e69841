package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"sync/atomic"
	"time"

	"github.com/guarzo/mystuff/common"
	"github.com/guarzo/mystuff/common/model"
)

// Client performs REST calls against the backend: GET with caching and
// backoff, POST/PUT/DELETE with expected status codes. Authorization is added
// by the transport, so callers never handle tokens.
type Client interface {
	GetJSON(ctx context.Context, endpoint string, entity interface{}, params map[string]string) error
	GetBytes(ctx context.Context, endpoint string, params map[string]string) ([]byte, error)
	PostJSON(ctx context.Context, endpoint string, body io.Reader, expectedStatusCodes ...int) ([]byte, error)
	PutJSON(ctx context.Context, endpoint string, body io.Reader, expectedStatusCodes ...int) ([]byte, error)
	DeleteJSON(ctx context.Context, endpoint string, expectedStatusCodes ...int) ([]byte, error)
	DoRequest(ctx context.Context, method, urlStr string, body io.Reader, expectedStatus ...int) ([]byte, error)
	RemoveCacheEntry(endpoint string, params map[string]string)
	Stats() Stats
}

// Stats are per-client call counters.
type Stats struct {
	Total    int64
	NotFound int64
	Success  int64
	Failed   int64
}

type restClient struct {
	baseURL    string
	httpClient common.HttpClient
	cache      common.CacheRepository

	totalCalls    atomic.Int64
	notFoundCount atomic.Int64
	successCount  atomic.Int64
	failCount     atomic.Int64
}

// Default for how long to cache GET responses.
const defaultCacheExpiration = 5 * time.Minute

// NewClient creates a Client for baseURL. cache may be nil to disable caching.
func NewClient(baseURL string, httpClient common.HttpClient, cache common.CacheRepository) Client {
	return &restClient{
		baseURL:    baseURL,
		httpClient: httpClient,
		cache:      cache,
	}
}

// GetJSON retrieves JSON from an endpoint and unmarshals into entity.
func (c *restClient) GetJSON(ctx context.Context, endpoint string, entity interface{}, params map[string]string) error {
	data, err := c.GetBytes(ctx, endpoint, params)
	if err != nil {
		return err
	}
	if err := model.JSONUnmarshal(data, entity); err != nil {
		return fmt.Errorf("failed to decode %s: %w", endpoint, err)
	}
	return nil
}

// GetBytes retrieves raw bytes from an endpoint, served from cache when possible.
func (c *restClient) GetBytes(ctx context.Context, endpoint string, params map[string]string) ([]byte, error) {
	cacheKey := c.buildCacheKey(endpoint, params)
	if c.cache != nil {
		if cached, found := c.cache.Get(cacheKey); found {
			return cached, nil
		}
	}

	urlStr, err := c.buildURL(endpoint, params)
	if err != nil {
		return nil, err
	}

	operation := func() (interface{}, error) {
		data, err := c.DoRequest(ctx, http.MethodGet, urlStr, nil)
		if err != nil {
			return nil, err
		}
		if c.cache != nil {
			c.cache.Set(cacheKey, data, defaultCacheExpiration)
		}
		return data, nil
	}

	result, err := c.httpClient.RetryWithExponentialBackoff(ctx, operation)
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

// PostJSON sends a POST; the default expected status is 200.
func (c *restClient) PostJSON(ctx context.Context, endpoint string, body io.Reader, expectedStatusCodes ...int) ([]byte, error) {
	return c.send(ctx, http.MethodPost, endpoint, body, expectedStatusCodes)
}

// PutJSON sends a PUT; the default expected status is 200.
func (c *restClient) PutJSON(ctx context.Context, endpoint string, body io.Reader, expectedStatusCodes ...int) ([]byte, error) {
	return c.send(ctx, http.MethodPut, endpoint, body, expectedStatusCodes)
}

// DeleteJSON sends a DELETE; the default expected status is 200.
func (c *restClient) DeleteJSON(ctx context.Context, endpoint string, expectedStatusCodes ...int) ([]byte, error) {
	return c.send(ctx, http.MethodDelete, endpoint, nil, expectedStatusCodes)
}

func (c *restClient) send(ctx context.Context, method, endpoint string, body io.Reader, expected []int) ([]byte, error) {
	urlStr, err := c.buildURL(endpoint, nil)
	if err != nil {
		return nil, err
	}
	return c.DoRequest(ctx, method, urlStr, body, expected...)
}

// DoRequest is the core method that actually performs the HTTP request.
func (c *restClient) DoRequest(ctx context.Context, method, urlStr string, body io.Reader, expectedStatus ...int) ([]byte, error) {
	if len(expectedStatus) == 0 {
		expectedStatus = []int{http.StatusOK}
	}

	// buffer the body so the auth transport can replay it
	var reader io.Reader
	if body != nil {
		b, err := io.ReadAll(body)
		if err != nil {
			return nil, fmt.Errorf("failed to read request body: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, urlStr, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.failCount.Add(1)
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	data, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return nil, fmt.Errorf("failed to read response body: %w", readErr)
	}

	c.record(resp.StatusCode)

	if !statusMatches(resp.StatusCode, expectedStatus) {
		return nil, &common.HTTPError{
			StatusCode: resp.StatusCode,
			Body:       data,
		}
	}
	return data, nil
}

func (c *restClient) record(status int) {
	c.totalCalls.Add(1)
	switch {
	case status == http.StatusNotFound:
		c.notFoundCount.Add(1)
	case status >= 200 && status < 300:
		c.successCount.Add(1)
	default:
		c.failCount.Add(1)
	}
}

func (c *restClient) Stats() Stats {
	return Stats{
		Total:    c.totalCalls.Load(),
		NotFound: c.notFoundCount.Load(),
		Success:  c.successCount.Load(),
		Failed:   c.failCount.Load(),
	}
}

// RemoveCacheEntry forcibly removes a cached GET response.
func (c *restClient) RemoveCacheEntry(endpoint string, params map[string]string) {
	if c.cache != nil {
		c.cache.Delete(c.buildCacheKey(endpoint, params))
	}
}

// buildURL merges baseURL + endpoint + params
func (c *restClient) buildURL(endpoint string, params map[string]string) (string, error) {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	path, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint: %w", err)
	}

	fullURL := base.ResolveReference(path)
	if len(params) > 0 {
		q := fullURL.Query()
		for k, v := range params {
			q.Set(k, v)
		}
		fullURL.RawQuery = q.Encode()
	}
	return fullURL.String(), nil
}

func (c *restClient) buildCacheKey(endpoint string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	queryParams := ""
	for _, k := range keys {
		queryParams += fmt.Sprintf("&%s=%s", k, params[k])
	}
	return fmt.Sprintf("mystuff:%s:%s", endpoint, queryParams)
}

func statusMatches(statusCode int, expected []int) bool {
	for _, s := range expected {
		if statusCode == s {
			return true
		}
	}
	return false
}
