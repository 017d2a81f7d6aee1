package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/kingdavid6336/stellar-anchor/internal/metrics"
)

const jobField = "job"

// envelope is the wire format carried in stream entries and the retry set.
type envelope struct {
	Payload json.RawMessage `json:"payload"`
	Attempt int             `json:"attempt"`
	Opts    JobOptions      `json:"opts"`
}

// RedisQueue implements Queue on Redis Streams with consumer groups.
// Failed jobs are parked in a per-stream sorted set scored by their ready
// time and moved back onto the stream by a scheduler loop, which yields
// delayed redelivery without blocking a consumer.
type RedisQueue struct {
	client           *redis.Client
	namespace        string
	blockInterval    time.Duration
	scheduleInterval time.Duration
	claimMinIdle     time.Duration
	logger           *slog.Logger
}

type RedisConfig struct {
	URL              string
	Namespace        string
	BlockInterval    time.Duration
	ScheduleInterval time.Duration
	ClaimMinIdle     time.Duration
}

func NewRedis(cfg RedisConfig, logger *slog.Logger) (*RedisQueue, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	q := &RedisQueue{
		client:           client,
		namespace:        cfg.Namespace,
		blockInterval:    cfg.BlockInterval,
		scheduleInterval: cfg.ScheduleInterval,
		claimMinIdle:     cfg.ClaimMinIdle,
		logger:           logger.With("component", "queue"),
	}
	if q.blockInterval <= 0 {
		q.blockInterval = 5 * time.Second
	}
	if q.scheduleInterval <= 0 {
		q.scheduleInterval = time.Second
	}
	if q.claimMinIdle <= 0 {
		q.claimMinIdle = time.Minute
	}
	return q, nil
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}

func (q *RedisQueue) streamKey(stream string) string {
	return q.namespace + ":" + stream
}

func (q *RedisQueue) retryKey(stream string) string {
	return q.namespace + ":" + stream + ":retry"
}

// Enqueue publishes a job. Transient publish failures are retried with
// exponential backoff before giving up.
func (q *RedisQueue) Enqueue(ctx context.Context, stream string, payload any, opts JobOptions) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal job payload: %w", err)
	}
	env := envelope{Payload: body, Attempt: 1, Opts: opts}
	if err := q.publish(ctx, stream, env); err != nil {
		return err
	}
	metrics.QueueJobsPublishedTotal.WithLabelValues(stream).Inc()
	return nil
}

func (q *RedisQueue) publish(ctx context.Context, stream string, env envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal job envelope: %w", err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.MaxInterval = 2 * time.Second

	operation := func() (string, error) {
		return q.client.XAdd(ctx, &redis.XAddArgs{
			Stream: q.streamKey(stream),
			Values: map[string]interface{}{jobField: string(raw)},
		}).Result()
	}
	if _, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(5),
	); err != nil {
		return fmt.Errorf("publish to %s: %w", stream, err)
	}
	return nil
}

// Consume delivers jobs until ctx is done. It runs a reader, a retry
// scheduler and a stale-delivery claimer concurrently; all stop together.
func (q *RedisQueue) Consume(ctx context.Context, stream, group, consumer string, handler Handler) error {
	if err := q.ensureGroup(ctx, stream, group); err != nil {
		return err
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error { return q.readLoop(gCtx, stream, group, consumer, handler) })
	g.Go(func() error { return q.scheduleLoop(gCtx, stream) })
	g.Go(func() error { return q.claimLoop(gCtx, stream, group, consumer, handler) })
	return g.Wait()
}

func (q *RedisQueue) ensureGroup(ctx context.Context, stream, group string) error {
	err := q.client.XGroupCreateMkStream(ctx, q.streamKey(stream), group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s on %s: %w", group, stream, err)
	}
	return nil
}

func (q *RedisQueue) readLoop(ctx context.Context, stream, group, consumer string, handler Handler) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		res, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    group,
			Consumer: consumer,
			Streams:  []string{q.streamKey(stream), ">"},
			Count:    10,
			Block:    q.blockInterval,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			q.logger.Warn("read from stream failed", "stream", stream, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(q.blockInterval):
			}
			continue
		}
		for _, sm := range res {
			for _, msg := range sm.Messages {
				q.handleMessage(ctx, stream, group, msg, handler)
			}
		}
	}
}

func (q *RedisQueue) handleMessage(ctx context.Context, stream, group string, msg redis.XMessage, handler Handler) {
	defer q.client.XAck(ctx, q.streamKey(stream), group, msg.ID)

	raw, ok := msg.Values[jobField].(string)
	if !ok {
		q.logger.Error("stream entry missing job field", "stream", stream, "id", msg.ID)
		return
	}
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		q.logger.Error("malformed job envelope dropped", "stream", stream, "id", msg.ID, "error", err)
		return
	}

	err := handler(ctx, Delivery{ID: msg.ID, Payload: env.Payload, Attempt: env.Attempt})
	if err == nil {
		return
	}
	if ctx.Err() != nil {
		// Shutdown mid-job: leave redelivery to the pending-entries claimer.
		return
	}
	q.scheduleRetry(ctx, stream, env, err)
}

func (q *RedisQueue) scheduleRetry(ctx context.Context, stream string, env envelope, cause error) {
	if env.Opts.MaxAttempts > 0 && env.Attempt >= env.Opts.MaxAttempts {
		metrics.QueueJobsDeadTotal.WithLabelValues(stream).Inc()
		q.logger.Error("job exhausted redelivery attempts",
			"stream", stream, "attempts", env.Attempt, "error", cause)
		return
	}

	next := env
	next.Attempt++
	raw, err := json.Marshal(next)
	if err != nil {
		q.logger.Error("marshal retry envelope", "stream", stream, "error", err)
		return
	}
	readyAt := time.Now().Add(retryDelay(env.Opts, env.Attempt))
	if err := q.client.ZAdd(ctx, q.retryKey(stream), redis.Z{
		Score:  float64(readyAt.UnixMilli()),
		Member: string(raw),
	}).Err(); err != nil {
		q.logger.Error("schedule retry failed", "stream", stream, "error", err)
		return
	}
	metrics.QueueJobsRetriedTotal.WithLabelValues(stream).Inc()
}

// scheduleLoop moves due retry entries back onto the stream. Multiple
// workers may run it concurrently; ZRem decides which one wins a member.
func (q *RedisQueue) scheduleLoop(ctx context.Context, stream string) error {
	ticker := time.NewTicker(q.scheduleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := q.moveDueRetries(ctx, stream); err != nil && ctx.Err() == nil {
				q.logger.Warn("retry scheduler failed", "stream", stream, "error", err)
			}
		}
	}
}

func (q *RedisQueue) moveDueRetries(ctx context.Context, stream string) error {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	members, err := q.client.ZRangeByScore(ctx, q.retryKey(stream), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   now,
		Count: 100,
	}).Result()
	if err != nil {
		return fmt.Errorf("range due retries: %w", err)
	}

	for _, member := range members {
		removed, err := q.client.ZRem(ctx, q.retryKey(stream), member).Result()
		if err != nil {
			return fmt.Errorf("remove due retry: %w", err)
		}
		if removed == 0 {
			continue // another scheduler took it
		}
		if err := q.client.XAdd(ctx, &redis.XAddArgs{
			Stream: q.streamKey(stream),
			Values: map[string]interface{}{jobField: member},
		}).Err(); err != nil {
			return fmt.Errorf("requeue due retry: %w", err)
		}
	}
	return nil
}

// claimLoop re-delivers entries stuck pending on crashed consumers.
func (q *RedisQueue) claimLoop(ctx context.Context, stream, group, consumer string, handler Handler) error {
	ticker := time.NewTicker(q.claimMinIdle)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			msgs, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
				Stream:   q.streamKey(stream),
				Group:    group,
				Consumer: consumer,
				MinIdle:  q.claimMinIdle,
				Start:    "0",
				Count:    50,
			}).Result()
			if err != nil && ctx.Err() == nil {
				q.logger.Warn("claim stale deliveries failed", "stream", stream, "error", err)
				continue
			}
			for _, msg := range msgs {
				q.handleMessage(ctx, stream, group, msg, handler)
			}
		}
	}
}
