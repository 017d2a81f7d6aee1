package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_AllowsWithinBurst(t *testing.T) {
	l := NewLimiter(1, 5, "bitcoin")

	start := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Wait(context.Background()))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestLimiter_WaitRespectsContext(t *testing.T) {
	l := NewLimiter(0.001, 1, "bitcoin")
	require.NoError(t, l.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := l.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClassifyRPCError(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		expected string
	}{
		{name: "nil", err: nil, expected: "ok"},
		{name: "timeout", err: errors.New("context deadline exceeded"), expected: "timeout"},
		{name: "rate limited", err: errors.New("HTTP 429 Too Many Requests"), expected: "rate_limited"},
		{name: "server error", err: errors.New("horizon status 502: bad gateway"), expected: "server_error"},
		{name: "network", err: errors.New("dial tcp: connection refused"), expected: "network_error"},
		{name: "other", err: errors.New("invalid params"), expected: "client_error"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, ClassifyRPCError(tc.err))
		})
	}
}
