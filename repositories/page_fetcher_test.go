package repositories

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fastPolicy(retries int) RetryPolicy {
	return RetryPolicy{Retries: retries, BackoffBase: time.Millisecond}
}

func TestFetchPage_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Lightning Bolt", r.URL.Query().Get("q"))
		w.Write([]byte("<html>ok</html>"))
	}))
	defer server.Close()

	fetcher := NewPageFetcher(fastPolicy(3), 5*time.Second)
	params := url.Values{}
	params.Set("q", "Lightning Bolt")

	body, err := fetcher.FetchPage(context.Background(), server.URL, params)
	assert.NoError(t, err)
	assert.Equal(t, "<html>ok</html>", body)
}

func TestFetchPage_RetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("recovered"))
	}))
	defer server.Close()

	fetcher := NewPageFetcher(fastPolicy(3), 5*time.Second)
	body, err := fetcher.FetchPage(context.Background(), server.URL, nil)

	assert.NoError(t, err)
	assert.Equal(t, "recovered", body)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestFetchPage_ExhaustedRetriesReturnError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	fetcher := NewPageFetcher(fastPolicy(3), 5*time.Second)
	_, err := fetcher.FetchPage(context.Background(), server.URL, nil)

	assert.Error(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestFetchPage_RateLimitBodyIsRetried(t *testing.T) {
	// The storefront platform answers 200 OK with a throttle notice in
	// the body instead of a 429.
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Write([]byte("Whoa there, too many searches!"))
			return
		}
		w.Write([]byte("real results"))
	}))
	defer server.Close()

	fetcher := NewPageFetcher(fastPolicy(3), 5*time.Second)
	body, err := fetcher.FetchPage(context.Background(), server.URL, nil)

	assert.NoError(t, err)
	assert.Equal(t, "real results", body)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestFetchPage_ContextCancelStopsRetrying(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	fetcher := NewPageFetcher(RetryPolicy{Retries: 3, BackoffBase: time.Minute}, 5*time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fetcher.FetchPage(ctx, server.URL, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryPolicy_DelayDoubles(t *testing.T) {
	policy := DefaultRetryPolicy()
	assert.Equal(t, 500*time.Millisecond, policy.Delay(0))
	assert.Equal(t, 1*time.Second, policy.Delay(1))
	assert.Equal(t, 2*time.Second, policy.Delay(2))
}
