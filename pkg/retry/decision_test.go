package retry

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// A 503 with no hint backs off and stays retryable.
func TestDecideRetry_503IsBackoff(t *testing.T) {
	assert.Equal(t, DecisionBackoff, DecideRetry(503, 0))

	err := ClassifyHTTPError(503, 0, errors.New("service unavailable"))
	assert.True(t, err.Retryable)
}

func TestDecideRetry_429IsAfterWithDefault(t *testing.T) {
	assert.Equal(t, DecisionAfter, DecideRetry(429, 0))

	err := ClassifyHTTPError(429, 0, errors.New("rate limited"))
	assert.Equal(t, int64(defaultRateLimitRetryAfter.Milliseconds()), err.Context["retry_after_ms"])
}

func TestDecideRetry_429HonorsExplicitRetryAfter(t *testing.T) {
	err := ClassifyHTTPError(429, 5*time.Second, errors.New("rate limited"))
	assert.Equal(t, int64(5000), err.Context["retry_after_ms"])
}

func TestDecideRetry_OtherFourXXIsTerminal(t *testing.T) {
	assert.Equal(t, DecisionTerminal, DecideRetry(404, 0))
	assert.Equal(t, DecisionTerminal, DecideRetry(400, 0))

	err := ClassifyHTTPError(404, 0, errors.New("not found"))
	assert.False(t, err.Retryable)
}

func TestDecideRetry_5xxFamilyIsBackoff(t *testing.T) {
	for _, code := range []int{500, 502, 503, 504} {
		assert.Equal(t, DecisionBackoff, DecideRetry(code, 0), "code %d", code)
	}
}
