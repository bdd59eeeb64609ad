package httpretry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noSleep(delays *[]time.Duration) func(ctx context.Context, d time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
}

func TestDo_RateLimitExhaustsRetries(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	var delays []time.Duration
	rc := NewRetryClient(server.Client(), 3)
	rc.SetSleep(noSleep(&delays))

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, err := rc.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	// Initial attempt + 3 retries, all throttled
	assert.Equal(t, int32(4), hits.Load())
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	// Exponential schedule: 2s, 4s, 8s
	require.Len(t, delays, 3)
	assert.Equal(t, 2*time.Second, delays[0])
	assert.Equal(t, 4*time.Second, delays[1])
	assert.Equal(t, 8*time.Second, delays[2])
}

func TestDo_RateLimitRecovers(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	var delays []time.Duration
	rc := NewRetryClient(server.Client(), 3)
	rc.SetSleep(noSleep(&delays))

	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, nil)
	resp, err := rc.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), hits.Load())
}

type flakyDoer struct {
	failures int
	calls    int
}

func (f *flakyDoer) Do(req *http.Request) (*http.Response, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("connection reset by peer")
	}
	rec := httptest.NewRecorder()
	rec.WriteHeader(http.StatusOK)
	return rec.Result(), nil
}

func TestDo_NetworkErrorLinearBackoff(t *testing.T) {
	doer := &flakyDoer{failures: 2}
	var delays []time.Duration
	rc := NewRetryClient(doer, 3)
	rc.SetSleep(noSleep(&delays))

	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, "http://example.invalid/", nil)
	resp, err := rc.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 3, doer.calls)
	// Linear schedule: 1s * attempt
	require.Len(t, delays, 2)
	assert.Equal(t, 1*time.Second, delays[0])
	assert.Equal(t, 2*time.Second, delays[1])
}

func TestDo_NetworkErrorExhaustsRetries(t *testing.T) {
	doer := &flakyDoer{failures: 10}
	var delays []time.Duration
	rc := NewRetryClient(doer, 3)
	rc.SetSleep(noSleep(&delays))

	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, "http://example.invalid/", nil)
	resp, err := rc.Do(req)
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.Equal(t, 4, doer.calls)
}

func TestDo_ServerErrorNotRetried(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	rc := NewRetryClient(server.Client(), 3)
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, nil)
	resp, err := rc.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, int32(1), hits.Load())
}

func TestDo_ClientErrorNotRetried(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	rc := NewRetryClient(server.Client(), 3)
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, nil)
	resp, err := rc.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, int32(1), hits.Load())
}

func TestDo_ContextCanceledDuringBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	rc := NewRetryClient(server.Client(), 3)
	rc.SetSleep(func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	})

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	_, err := rc.Do(req)
	require.Error(t, err)
}

func TestThrottleDelayCap(t *testing.T) {
	rc := NewRetryClient(nil, 10)
	assert.Equal(t, 2*time.Second, rc.throttleDelay(1))
	assert.Equal(t, 32*time.Second, rc.throttleDelay(5))
	assert.Equal(t, 60*time.Second, rc.throttleDelay(6))
	assert.Equal(t, 60*time.Second, rc.throttleDelay(9))
}
