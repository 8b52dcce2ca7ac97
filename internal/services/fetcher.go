package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/huangang/timelogbot/pkg/logger"
)

const (
	DefaultRetryDelay   = time.Second
	DefaultFetchTimeout = 30 * time.Second
)

// RetryPolicy controls how the fetcher retries failed requests.
type RetryPolicy struct {
	Delay       time.Duration // fixed wait between attempts
	MaxAttempts int           // 0 retries until success or cancellation
}

// HTTPError represents a non-2xx response.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// ErrMalformedResponse marks a body that decoded but did not carry the expected data.
var ErrMalformedResponse = errors.New("malformed response")

// validator is implemented by response envelopes that can reject a decoded body.
type validator interface {
	Validate() error
}

// Fetcher issues authenticated GET requests and retries every failure with a fixed delay.
type Fetcher struct {
	client *http.Client
	policy RetryPolicy
}

func NewFetcher(client *http.Client, policy RetryPolicy) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: DefaultFetchTimeout}
	}
	if policy.Delay <= 0 {
		policy.Delay = DefaultRetryDelay
	}
	return &Fetcher{client: client, policy: policy}
}

// Get fetches endpoint with the given query and bearer token and decodes the JSON body into out.
// Transport errors, non-2xx statuses, undecodable bodies and envelopes whose Validate fails are
// all retried. An error is returned only when ctx is done or MaxAttempts is exhausted.
func (f *Fetcher) Get(ctx context.Context, endpoint string, query url.Values, token string, out any) error {
	reqURL := endpoint
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	for attempt := 1; ; attempt++ {
		err := f.do(ctx, reqURL, token, out)
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		logger.Warn().
			Err(err).
			Str("endpoint", endpoint).
			Int("attempt", attempt).
			Msg("[Fetcher] request failed")

		if f.policy.MaxAttempts > 0 && attempt >= f.policy.MaxAttempts {
			return fmt.Errorf("%s: giving up after %d attempts: %w", endpoint, attempt, err)
		}

		logger.Info().
			Str("endpoint", endpoint).
			Dur("delay", f.policy.Delay).
			Int("next_attempt", attempt+1).
			Msg("[Fetcher] retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(f.policy.Delay):
		}
	}
}

func (f *Fetcher) do(ctx context.Context, reqURL, token string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "bearer "+token)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &HTTPError{StatusCode: resp.StatusCode, Message: truncate(string(body), 200)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	if v, ok := out.(validator); ok {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
