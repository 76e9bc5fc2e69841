package common_test

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guarzo/mystuff/common"
)

func TestNewHttpClient(t *testing.T) {
	base := &http.Client{}
	client := common.NewHttpClient("MyUserAgent", base, 0)
	require.NotNil(t, client)
	assert.Equal(t, common.DefaultTimeout, base.Timeout)
}

func TestHttpClient_Do(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "TestUserAgent" {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, "wrong user-agent")
			return
		}
		fmt.Fprint(w, "hello world")
	}))
	defer ts.Close()

	hc := common.NewHttpClient("TestUserAgent", &http.Client{}, 5*time.Second)

	req, err := http.NewRequest(http.MethodGet, ts.URL, nil)
	require.NoError(t, err)

	resp, err := hc.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hello world", string(body))
}

func TestHttpClient_RetryWithExponentialBackoff(t *testing.T) {
	called := 0
	operation := func() (interface{}, error) {
		called++
		if called < 3 {
			// simulate a 503
			return nil, &common.HTTPError{
				StatusCode: http.StatusServiceUnavailable,
				Body:       []byte("temporary issue"),
			}
		}
		return "success", nil
	}

	hc := common.NewHttpClient("UA", &http.Client{}, 0)
	var slept []time.Duration
	hc.SetRandAndSleepForTest(func(d time.Duration) { slept = append(slept, d) }, rand.Int63())

	res, err := hc.RetryWithExponentialBackoff(context.Background(), operation)
	require.NoError(t, err)
	assert.Equal(t, "success", res)
	assert.Equal(t, 3, called)
	assert.Len(t, slept, 2)
}

func TestHttpClient_RetryDoesNotRetryUnauthorized(t *testing.T) {
	called := 0
	operation := func() (interface{}, error) {
		called++
		return nil, &common.HTTPError{StatusCode: http.StatusUnauthorized}
	}

	hc := common.NewHttpClient("UA", &http.Client{}, 0)
	hc.SetRandAndSleepForTest(func(time.Duration) {}, 1)

	_, err := hc.RetryWithExponentialBackoff(context.Background(), operation)
	require.Error(t, err)
	assert.True(t, common.IsStatus(err, http.StatusUnauthorized))
	assert.Equal(t, 1, called)
}

func TestHttpClient_RetryGivesUpAfterMaxRetries(t *testing.T) {
	called := 0
	operation := func() (interface{}, error) {
		called++
		return nil, &common.HTTPError{StatusCode: http.StatusBadGateway}
	}

	hc := common.NewHttpClient("UA", &http.Client{}, 0)
	hc.SetRandAndSleepForTest(func(time.Duration) {}, 1)

	_, err := hc.RetryWithExponentialBackoff(context.Background(), operation)
	assert.True(t, common.IsStatus(err, http.StatusBadGateway))
	assert.Equal(t, 5, called)
}

func TestHttpClient_RetryConcurrentBackoff(t *testing.T) {
	hc := common.NewHttpClient("UA", &http.Client{}, 0)
	hc.SetRandAndSleepForTest(func(time.Duration) {}, 1)

	var calls atomic.Int32
	operation := func() (interface{}, error) {
		calls.Add(1)
		return nil, &common.HTTPError{StatusCode: http.StatusServiceUnavailable}
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := hc.RetryWithExponentialBackoff(context.Background(), operation)
			assert.True(t, common.IsStatus(err, http.StatusServiceUnavailable))
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(8*5), calls.Load())
}

func TestHttpClient_RetryStopsWhenContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	called := 0
	operation := func() (interface{}, error) {
		called++
		return nil, &common.HTTPError{StatusCode: http.StatusServiceUnavailable}
	}

	hc := common.NewHttpClient("UA", &http.Client{}, 0)
	hc.SetRandAndSleepForTest(func(time.Duration) { cancel() }, 1)

	_, err := hc.RetryWithExponentialBackoff(ctx, operation)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, called)
}

func TestHttpClient_RetryWaitHonorsContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	operation := func() (interface{}, error) {
		return nil, &common.HTTPError{StatusCode: http.StatusBadGateway}
	}

	hc := common.NewHttpClient("UA", &http.Client{}, 0)

	start := time.Now()
	_, err := hc.RetryWithExponentialBackoff(ctx, operation)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}
