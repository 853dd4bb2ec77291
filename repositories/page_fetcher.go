package repositories

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrRateLimited marks the storefront's soft rate limit: a 200 response
// whose body carries the platform's throttle notice.
var ErrRateLimited = errors.New("rate limit detected in response body")

// rateLimitMarker is the body heuristic used by the storefront platform;
// it returns 200 OK with this text instead of a 429.
const rateLimitMarker = "too many searches"

// RetryPolicy bounds the retry loop around storefront fetches.
type RetryPolicy struct {
	Retries     int
	BackoffBase time.Duration
}

// DefaultRetryPolicy is 3 attempts at 0.5s, 1s, 2s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Retries: 3, BackoffBase: 500 * time.Millisecond}
}

// Delay returns the backoff before retry attempt i (0-based): base * 2^i.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	return p.BackoffBase * (1 << attempt)
}

type PageFetcher interface {
	FetchPage(ctx context.Context, rawURL string, params url.Values) (string, error)
}

// HTTPPageFetcher fetches storefront pages through a pooled client,
// retrying transport failures and rate-limit responses with exponential
// backoff. Exhausted retries surface as an error; callers degrade that to
// an empty result.
type HTTPPageFetcher struct {
	client *http.Client
	policy RetryPolicy
}

func NewPageFetcher(policy RetryPolicy, timeout time.Duration) *HTTPPageFetcher {
	if policy.Retries <= 0 {
		policy = DefaultRetryPolicy()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPPageFetcher{
		client: &http.Client{Timeout: timeout},
		policy: policy,
	}
}

func (f *HTTPPageFetcher) FetchPage(ctx context.Context, rawURL string, params url.Values) (string, error) {
	target := rawURL
	if len(params) > 0 {
		sep := "?"
		if strings.Contains(rawURL, "?") {
			sep = "&"
		}
		target = rawURL + sep + params.Encode()
	}

	var lastErr error
	for attempt := 0; attempt < f.policy.Retries; attempt++ {
		body, err := f.fetchOnce(ctx, target)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if attempt < f.policy.Retries-1 {
			wait := f.policy.Delay(attempt)
			log.Printf("request failed for %s: %v. Retrying in %s (attempt %d/%d)",
				target, err, wait, attempt+1, f.policy.Retries)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}

	log.Printf("request failed for %s after %d attempts: %v", target, f.policy.Retries, lastErr)
	return "", fmt.Errorf("fetch failed after %d attempts: %w", f.policy.Retries, lastErr)
}

func (f *HTTPPageFetcher) fetchOnce(ctx context.Context, target string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("unexpected status %d for %s", resp.StatusCode, target)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	body := string(raw)
	if strings.Contains(body, rateLimitMarker) {
		return "", ErrRateLimited
	}
	return body, nil
}
