package registry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Transport is the out-of-scope HTTP boundary from spec.md §1: pkgforge's
// core only ever talks to this interface, never directly to net/http, so
// tests can substitute a fake and production code can swap in whatever
// retry/proxy policy a deployment needs.
type Transport interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// backoffTransport wraps an *http.Client with exponential-backoff retry
// on network errors and 5xx responses, matching the teacher's single
// HTTPClient field in Uploader but adding the retry policy it never had.
type backoffTransport struct {
	client      *http.Client
	maxAttempts uint
}

// NewTransport returns the default Transport: a *http.Client with the
// given per-request timeout, retrying idempotent GETs up to maxAttempts
// times with exponential backoff on network failure or a 5xx status.
func NewTransport(timeout time.Duration, maxAttempts uint) Transport {
	return &backoffTransport{
		client:      &http.Client{Timeout: timeout},
		maxAttempts: maxAttempts,
	}
}

func (t *backoffTransport) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	// Retry only on transport errors and 5xx; every other response
	// (including 404, which callers turn into PackageNotFoundError) is
	// returned as-is on the first attempt, with a nil error, so
	// backoff.Retry does not try again.
	retryable := func() (*http.Response, error) {
		resp, err := t.client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			resp.Body.Close()
			return nil, errRetryableStatus{status: resp.StatusCode}
		}
		return resp, nil
	}

	return backoff.Retry(ctx, retryable,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(t.maxAttempts),
	)
}

// errRetryableStatus marks a 5xx response as worth retrying without
// losing the status code for the final error message.
type errRetryableStatus struct {
	status int
}

func (e errRetryableStatus) Error() string {
	return fmt.Sprintf("registry returned retryable status %d", e.status)
}
