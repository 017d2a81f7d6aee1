package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kingdavid6336/stellar-anchor/internal/metrics"
)

// Memory is an in-process Queue with the same redelivery semantics as the
// Redis transport. Used in tests and single-process development setups.
type Memory struct {
	mu      sync.Mutex
	streams map[string]chan envelope
	closed  bool
	seq     atomic.Int64

	// delayFn is overridable so tests do not sleep through real backoff.
	delayFn func(opts JobOptions, attempt int) time.Duration
}

type MemoryOption func(*Memory)

// WithRetryDelayFn overrides redelivery delay computation.
func WithRetryDelayFn(fn func(opts JobOptions, attempt int) time.Duration) MemoryOption {
	return func(m *Memory) { m.delayFn = fn }
}

func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		streams: make(map[string]chan envelope),
		delayFn: retryDelay,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) channel(stream string) chan envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.streams[stream]
	if !ok {
		ch = make(chan envelope, 1024)
		m.streams[stream] = ch
	}
	return ch
}

func (m *Memory) Enqueue(ctx context.Context, stream string, payload any, opts JobOptions) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal job payload: %w", err)
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return fmt.Errorf("queue is closed")
	}
	m.mu.Unlock()

	select {
	case m.channel(stream) <- envelope{Payload: body, Attempt: 1, Opts: opts}:
		metrics.QueueJobsPublishedTotal.WithLabelValues(stream).Inc()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Memory) Consume(ctx context.Context, stream, _, _ string, handler Handler) error {
	ch := m.channel(stream)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env := <-ch:
			id := strconv.FormatInt(m.seq.Add(1), 10)
			err := handler(ctx, Delivery{ID: id, Payload: env.Payload, Attempt: env.Attempt})
			if err == nil || ctx.Err() != nil {
				continue
			}
			m.redeliver(ctx, stream, env)
		}
	}
}

func (m *Memory) redeliver(ctx context.Context, stream string, env envelope) {
	if env.Opts.MaxAttempts > 0 && env.Attempt >= env.Opts.MaxAttempts {
		metrics.QueueJobsDeadTotal.WithLabelValues(stream).Inc()
		return
	}
	next := env
	next.Attempt++
	delay := m.delayFn(env.Opts, env.Attempt)
	metrics.QueueJobsRetriedTotal.WithLabelValues(stream).Inc()

	go func() {
		select {
		case <-ctx.Done():
		case <-time.After(delay):
			select {
			case m.channel(stream) <- next:
			case <-ctx.Done():
			}
		}
	}()
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
