package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryDelay_Doubling(t *testing.T) {
	opts := JobOptions{RetryDelay: 30 * time.Second, RetryDelayMax: 10 * time.Minute}

	testCases := []struct {
		attempt  int
		expected time.Duration
	}{
		{attempt: 1, expected: 30 * time.Second},
		{attempt: 2, expected: time.Minute},
		{attempt: 3, expected: 2 * time.Minute},
		{attempt: 4, expected: 4 * time.Minute},
		{attempt: 5, expected: 8 * time.Minute},
		{attempt: 6, expected: 10 * time.Minute},
		{attempt: 20, expected: 10 * time.Minute},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, retryDelay(opts, tc.attempt), "attempt %d", tc.attempt)
	}
}

func TestRetryDelay_ZeroBaseFallsBack(t *testing.T) {
	opts := JobOptions{}
	assert.Equal(t, time.Second, retryDelay(opts, 1))
	assert.Equal(t, 2*time.Second, retryDelay(opts, 2))
}

func TestRetryDelay_NoCap(t *testing.T) {
	opts := JobOptions{RetryDelay: time.Second}
	assert.Equal(t, 8*time.Second, retryDelay(opts, 4))
}

func TestDefaultJobOptions(t *testing.T) {
	opts := DefaultJobOptions()
	assert.Equal(t, 25, opts.MaxAttempts)
	assert.Equal(t, 30*time.Second, opts.RetryDelay)
	assert.Equal(t, 10*time.Minute, opts.RetryDelayMax)
}
