// Package worker runs the reconciliation consumer pool on top of the job
// queue.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/kingdavid6336/stellar-anchor/internal/alert"
	"github.com/kingdavid6336/stellar-anchor/internal/domain/model"
	"github.com/kingdavid6336/stellar-anchor/internal/queue"
	"github.com/kingdavid6336/stellar-anchor/internal/reconcile"
)

const consumerGroup = "reconcilers"

// JobProcessor is the reconciliation entry point. Satisfied by
// *reconcile.Engine.
type JobProcessor interface {
	ProcessJob(ctx context.Context, job model.Job) error
}

// Pool consumes reconcile jobs with a fixed number of workers. Outputs
// inside one job are processed sequentially by the engine; concurrency only
// exists across jobs, and the ledger upsert keyed by (tx_in, tx_in_index)
// makes concurrent redeliveries safe.
type Pool struct {
	queue   queue.Queue
	engine  JobProcessor
	workers int
	alerter alert.Alerter
	logger  *slog.Logger
}

func NewPool(q queue.Queue, engine JobProcessor, workers int, alerter alert.Alerter, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if alerter == nil {
		alerter = &alert.NoopAlerter{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		queue:   q,
		engine:  engine,
		workers: workers,
		alerter: alerter,
		logger:  logger.With("component", "worker"),
	}
}

// Run blocks until ctx is cancelled.
func (p *Pool) Run(ctx context.Context) error {
	p.logger.Info("worker pool starting", "workers", p.workers)

	g, gCtx := errgroup.WithContext(ctx)
	for i := 0; i < p.workers; i++ {
		consumer := fmt.Sprintf("worker-%d", i)
		g.Go(func() error {
			return p.queue.Consume(gCtx, queue.StreamReconcile, consumerGroup, consumer, p.handle)
		})
	}
	return g.Wait()
}

func (p *Pool) handle(ctx context.Context, d queue.Delivery) error {
	var job model.Job
	if err := json.Unmarshal(d.Payload, &job); err != nil {
		// Unparseable payloads would fail forever; drop with an error log
		// instead of cycling through redelivery.
		p.logger.Error("dropping malformed job payload", "id", d.ID, "error", err)
		return nil
	}

	err := p.engine.ProcessJob(ctx, job)
	if err == nil {
		return nil
	}

	if reconcile.Retryable(err) {
		// Expected control outcome: the transfer is not final or not
		// visible yet. Redelivery is the retry mechanism.
		p.logger.Info("job requeued", "id", d.ID, "attempt", d.Attempt, "reason", err)
		return err
	}

	p.logger.Error("job processing failed", "id", d.ID, "attempt", d.Attempt, "error", err)
	_ = p.alerter.Send(ctx, alert.Alert{
		Type:    alert.AlertTypeProcessingError,
		Asset:   job.Asset,
		Title:   "Reconciliation job failed",
		Message: err.Error(),
		Fields: map[string]string{
			"type":    job.Type.String(),
			"hash":    job.Hash,
			"attempt": fmt.Sprintf("%d", d.Attempt),
		},
	})
	return err
}
