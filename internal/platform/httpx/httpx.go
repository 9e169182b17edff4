package httpx

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

type HTTPStatusCoder interface {
	HTTPStatusCode() int
}

func IsRetryableHTTPStatus(code int) bool {
	return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || (code >= 500 && code <= 599)
}

// IsRetryableError reports whether a transport-level retry may succeed.
// Caller cancellation is never retryable.
func IsRetryableError(err error) bool {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, context.DeadlineExceeded):
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var sc HTTPStatusCoder
	if errors.As(err, &sc) {
		return IsRetryableHTTPStatus(sc.HTTPStatusCode())
	}
	return false
}

// RetryAfterDuration reads a Retry-After header in seconds, capped at max.
func RetryAfterDuration(resp *http.Response, fallback, max time.Duration) time.Duration {
	wait := fallback
	if resp != nil {
		if secs, err := strconv.Atoi(strings.TrimSpace(resp.Header.Get("Retry-After"))); err == nil && secs > 0 {
			wait = time.Duration(secs) * time.Second
		}
	}
	if max > 0 && wait > max {
		wait = max
	}
	return wait
}

// JitterSleep spreads base by +/-20%.
func JitterSleep(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	delta := float64(base) * 0.2
	return time.Duration(float64(base) - delta + rand.Float64()*2*delta)
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RetryPolicy retries a single outbound call. It covers transport hiccups
// only; callers decide what a failed call means for their own workflow.
type RetryPolicy struct {
	MaxRetries int
	// Base is the first backoff, doubled per attempt up to Max.
	Base time.Duration
	Max  time.Duration
	// Retryable defaults to IsRetryableError.
	Retryable func(error) bool
	OnRetry   func(attempt int, wait time.Duration, err error)
}

// Do calls fn until it succeeds, fails permanently or the retries run out.
// fn may return a wait hint (for example from Retry-After) that replaces the
// computed backoff for that attempt.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) (time.Duration, error)) error {
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsRetryableError
	}
	backoff := p.Base
	if backoff <= 0 {
		backoff = time.Second
	}
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		hint, err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= p.MaxRetries || !retryable(err) {
			return err
		}
		wait := backoff
		if hint > 0 {
			wait = hint
		}
		wait = JitterSleep(wait)
		if p.OnRetry != nil {
			p.OnRetry(attempt+1, wait, err)
		}
		if err := SleepContext(ctx, wait); err != nil {
			return err
		}
		backoff *= 2
		if p.Max > 0 && backoff > p.Max {
			backoff = p.Max
		}
	}
}
