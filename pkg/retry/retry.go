// Package retry implements exponential backoff with jitter and an
// HTTP-status-driven retry decision for the core's external collaborators
// (service probes, account APIs) — the only layer in this module that talks
// to anything outside the pane/storage boundary.
package retry

import (
	"context"
	cryptorand "crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	waerrors "github.com/wa-observability/wa/pkg/errors"
)

func cryptoRandFloat64() float64 {
	var b [8]byte
	if _, err := cryptorand.Read(b[:]); err != nil {
		return 0.5
	}
	n := binary.BigEndian.Uint64(b[:]) >> 11 // 53 bits
	return float64(n) / float64(uint64(1)<<53)
}

// Decision classifies how a failed call to an external collaborator should
// be handled.
type Decision int

const (
	// DecisionBackoff retries after the strategy's computed exponential delay.
	DecisionBackoff Decision = iota
	// DecisionAfter retries after an explicit delay (a Retry-After hint, or
	// the default for the status code that produced it).
	DecisionAfter
	// DecisionTerminal means retrying will not help; fail immediately.
	DecisionTerminal
)

// String returns the decision name.
func (d Decision) String() string {
	switch d {
	case DecisionBackoff:
		return "backoff"
	case DecisionAfter:
		return "after"
	case DecisionTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// defaultRateLimitRetryAfter is used when a 429 carries no Retry-After hint.
const defaultRateLimitRetryAfter = 60 * time.Second

// DecideRetry maps an external collaborator's HTTP status code (and an
// optional Retry-After hint, zero if absent) to a Decision:
//   - 429            → After(retryAfter), default 60s if no hint
//   - 5xx (esp. 503) → Backoff
//   - other 4xx      → Terminal
//   - anything else  → Backoff (unrecognized status, assume transient)
//
// A larger Retry-After hint than the computed backoff delay is always
// respected; a smaller hint is ignored by the caller (DecideRetry only
// reports the hint itself, the caller compares it against its own delay).
func DecideRetry(statusCode int, retryAfter time.Duration) Decision {
	switch {
	case statusCode == 429:
		return DecisionAfter
	case statusCode >= 500 && statusCode < 600:
		return DecisionBackoff
	case statusCode >= 400 && statusCode < 500:
		return DecisionTerminal
	default:
		return DecisionBackoff
	}
}

// ClassifyHTTPError builds the *errors.Error a collaborator call should
// return for a given HTTP status, with Retryable and the retry-after hint
// already populated from the decision mapping.
func ClassifyHTTPError(statusCode int, retryAfter time.Duration, underlying error) *waerrors.Error {
	decision := DecideRetry(statusCode, retryAfter)
	if statusCode == 429 {
		if retryAfter <= 0 {
			retryAfter = defaultRateLimitRetryAfter
		}
		return waerrors.RateLimited(underlying, retryAfter)
	}
	retryable := decision != DecisionTerminal
	remediation := ""
	if retryable {
		remediation = "retry with backoff"
	}
	return waerrors.External(underlying, retryable, remediation, retryAfter)
}

// RetryStrategy implements exponential backoff with jitter for retrying
// failed operations. It retries only errors marked Retryable (typically
// produced by ClassifyHTTPError), failing fast otherwise.
type RetryStrategy struct {
	// MaxRetries is the maximum number of retry attempts after the initial
	// execution: 0 means exactly one attempt. A negative value makes no
	// attempt at all; use Unbounded for unlimited retries.
	MaxRetries int

	// Unbounded, when true, ignores MaxRetries entirely.
	Unbounded bool

	// BaseDelay is the initial delay before the first retry.
	BaseDelay time.Duration

	// MaxDelay caps the delay between retry attempts (default 60s).
	MaxDelay time.Duration

	// Multiplier is the exponential backoff multiplier (typically 2.0).
	Multiplier float64
}

// Execute runs fn with automatic retry. fn's error, if non-nil, should be
// (or wrap) a *waerrors.Error produced via ClassifyHTTPError so Retryable
// and the Retry-After hint are available; any other error is treated as
// non-retryable.
func (s *RetryStrategy) Execute(ctx context.Context, fn func() error) error {
	var lastErr error
	delay := s.BaseDelay
	maxDelay := s.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 60 * time.Second
	}

	for attempt := 0; s.Unbounded || attempt <= s.MaxRetries; attempt++ {
		if attempt > 0 {
			jitterFactor := 0.75 + cryptoRandFloat64()*0.5
			wait := time.Duration(float64(delay) * jitterFactor)
			if after := retryAfterHint(lastErr); after > wait {
				wait = after
			}

			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}

			delay = time.Duration(float64(delay) * s.Multiplier)
			if delay > maxDelay {
				delay = maxDelay
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		if !isRetriable(err) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("max retries (%d) exceeded: %w", s.MaxRetries, lastErr)
}

// retryAfterHint extracts a Retry-After hint (in ms) from a *waerrors.Error,
// returning zero if none is present.
func retryAfterHint(err error) time.Duration {
	var we *waerrors.Error
	if !errors.As(err, &we) {
		return 0
	}
	ms, ok := we.Context["retry_after_ms"].(int64)
	if !ok {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

// isRetriable reports whether err should trigger a retry attempt. Context
// cancellation never retries; everything else defers to the error's own
// Retryable flag (context.DeadlineExceeded counts as retriable: timeouts
// are transient).
func isRetriable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return waerrors.IsRetryable(err)
}
