package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"net/url"
	"strings"
	"time"

	"github.com/qtfetch/qtfetch/internal/qterr"
)

// RetryOnErrors runs op up to maxRetries+1 times, retrying only when
// retryable(err) reports true. Used for checksum mismatches, which may be a
// transient corrupted transfer rather than a permanently bad source.
func RetryOnErrors(ctx context.Context, op func() error, retryable func(error) bool, maxRetries int, name string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) || attempt == maxRetries {
			return lastErr
		}
		delay := backoffDelay(attempt + 1)
		logger.Warn("retrying after error", "op", name, "attempt", attempt+1, "delay", delay, "error", lastErr)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

// RetryWithMirrors runs op against the first base URL in mirrors and, on
// connection failure, advances to the next one. maxRetries bounds the
// additional attempts after the first; when the budget outlasts the list the
// walk wraps around after a backoff pause. Checksum mismatches and context
// cancellation are never retried here. The same combinator serves both
// catalog fetches and archive downloads.
func RetryWithMirrors(ctx context.Context, op func(baseURL string) error, mirrors []string, maxRetries int, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	candidates := dedupMirrors(mirrors)
	if len(candidates) == 0 {
		return fmt.Errorf("no mirrors configured")
	}

	var err error
	for attempt := 0; ; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		base := candidates[attempt%len(candidates)]
		err = op(base)
		if err == nil || !isConnectionFailure(err) {
			return err
		}
		if attempt >= maxRetries {
			return fmt.Errorf("all mirrors exhausted after %d attempts: %w", attempt+1, err)
		}
		next := candidates[(attempt+1)%len(candidates)]
		logger.Warn("connection failed, trying next mirror", "failed", hostOf(base), "next", hostOf(next), "error", err)
		if (attempt+1)%len(candidates) == 0 {
			// A full sweep of the list failed; pause before starting over.
			select {
			case <-time.After(backoffDelay(attempt/len(candidates) + 1)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// dedupMirrors drops empty and repeated entries while keeping order, so a
// fallback that matches the primary is not attempted twice per sweep.
func dedupMirrors(mirrors []string) []string {
	seen := make(map[string]bool, len(mirrors))
	out := make([]string, 0, len(mirrors))
	for _, m := range mirrors {
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}

// isConnectionFailure reports whether err is in the retryable-by-mirror
// class: transfer failures, but never checksum mismatches or context
// cancellation.
func isConnectionFailure(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if qterr.IsChecksumError(err) {
		return false
	}
	return qterr.IsDownloadError(err)
}

// backoffDelay is exponential from 1s with jitter up to half the delay.
// A variable so tests can zero it out.
var backoffDelay = func(attempt int) time.Duration {
	base := time.Duration(math.Pow(2, float64(attempt-1))) * time.Second
	jitter := time.Duration(rand.Int63n(int64(base/2) + 1))
	return base + jitter
}

func hostOf(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		return u.Host
	}
	return strings.TrimPrefix(raw, "https://")
}
