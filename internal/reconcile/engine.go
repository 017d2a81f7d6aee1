// Package reconcile turns raw blockchain observations into durable,
// deduplicated ledger records and decides when each record advances to the
// settlement stage.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kingdavid6336/stellar-anchor/internal/alert"
	"github.com/kingdavid6336/stellar-anchor/internal/chain"
	"github.com/kingdavid6336/stellar-anchor/internal/config"
	"github.com/kingdavid6336/stellar-anchor/internal/domain/model"
	"github.com/kingdavid6336/stellar-anchor/internal/horizon"
	"github.com/kingdavid6336/stellar-anchor/internal/metrics"
	"github.com/kingdavid6336/stellar-anchor/internal/policy"
	"github.com/kingdavid6336/stellar-anchor/internal/queue"
	"github.com/kingdavid6336/stellar-anchor/internal/rates"
	"github.com/kingdavid6336/stellar-anchor/internal/store"
	"github.com/kingdavid6336/stellar-anchor/internal/tracing"
)

// AccountChecker answers whether a destination account exists on the target
// ledger and trusts the asset. Queried on the deposit path only.
type AccountChecker interface {
	CheckAccount(ctx context.Context, address, assetCode, issuer string) (horizon.AccountStatus, error)
}

// Forwarder enqueues settlement jobs. Satisfied by queue.Queue.
type Forwarder interface {
	Enqueue(ctx context.Context, stream string, payload any, opts queue.JobOptions) error
}

// ForwardingJob is the payload handed to the settlement stage. Immediate
// forwarding always carries a single transaction; the batch collector fills
// larger lists.
type ForwardingJob struct {
	Txs []*model.Transaction `json:"txs"`
}

// Engine drives one processing job end to end: scan outputs, resolve
// mapping and funding status, fix fee and rate, classify finality and
// limits, persist, and forward when ready.
type Engine struct {
	wallets  *chain.Registry
	rateSrc  rates.Source
	accounts AccountChecker
	assets   *config.AssetRegistry
	policy   *policy.Engine
	ledger   store.TransactionRepository
	mappings store.MappingRepository
	staging  store.StagingRepository
	forward  Forwarder
	jobOpts  queue.JobOptions
	alerter  alert.Alerter
	logger   *slog.Logger
	tracer   trace.Tracer
}

type Deps struct {
	Wallets  *chain.Registry
	Rates    rates.Source
	Accounts AccountChecker
	Assets   *config.AssetRegistry
	Policy   *policy.Engine
	Ledger   store.TransactionRepository
	Mappings store.MappingRepository
	Staging  store.StagingRepository
	Forward  Forwarder
	JobOpts  queue.JobOptions
	Alerter  alert.Alerter
	Logger   *slog.Logger
}

func NewEngine(deps Deps) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	alerter := deps.Alerter
	if alerter == nil {
		alerter = &alert.NoopAlerter{}
	}
	return &Engine{
		wallets:  deps.Wallets,
		rateSrc:  deps.Rates,
		accounts: deps.Accounts,
		assets:   deps.Assets,
		policy:   deps.Policy,
		ledger:   deps.Ledger,
		mappings: deps.Mappings,
		staging:  deps.Staging,
		forward:  deps.Forward,
		jobOpts:  deps.JobOpts,
		alerter:  alerter,
		logger:   logger.With("component", "reconcile"),
		tracer:   tracing.Tracer("reconcile"),
	}
}

// ProcessJob reconciles every output of the job's chain transaction. The job
// succeeds only when all outputs are final; otherwise it returns ErrNotFinal
// so the queue redelivers it. A chain transaction not visible yet surfaces
// as chain.ErrTxNotFound, equally retryable. Anything else is a processing
// failure.
func (e *Engine) ProcessJob(ctx context.Context, job model.Job) (err error) {
	ctx, span := e.tracer.Start(ctx, "ProcessJob", trace.WithAttributes(
		attribute.String("job.type", job.Type.String()),
		attribute.String("job.asset", job.Asset),
		attribute.String("job.hash", job.Hash),
	))
	defer span.End()

	start := time.Now()
	defer func() {
		metrics.JobLatency.WithLabelValues(job.Type.String(), job.Asset).Observe(time.Since(start).Seconds())
		metrics.JobsProcessedTotal.WithLabelValues(job.Type.String(), job.Asset, outcomeLabel(err)).Inc()
	}()

	logger := e.logger.With("type", job.Type, "asset", job.Asset, "hash", job.Hash)

	if !job.Type.Valid() {
		return fmt.Errorf("invalid job type %q", job.Type)
	}

	pair, err := e.wallets.Get(job.Type, job.Asset)
	if err != nil {
		return err
	}

	outputs, err := pair.In.ScanOutputs(ctx, job.Asset, job.Hash)
	if errors.Is(err, chain.ErrTxNotFound) {
		logger.Info("chain transaction not visible yet")
		return fmt.Errorf("scan outputs: %w", err)
	}
	if err != nil {
		return fmt.Errorf("scan outputs: %w", err)
	}
	logger.Debug("outputs scanned", "count", len(outputs))

	allFinal := true
	for _, output := range outputs {
		final, err := e.processOutput(ctx, logger, job, pair.In, output)
		if err != nil {
			return err
		}
		allFinal = allFinal && final
	}

	if !allFinal {
		logger.Info("job not final, awaiting redelivery")
		return ErrNotFinal
	}
	logger.Info("job done", "outputs", len(outputs))
	return nil
}

// processOutput runs the per-output algorithm and reports whether the
// output's transfer is final.
func (e *Engine) processOutput(ctx context.Context, logger *slog.Logger, job model.Job, walletIn chain.Adapter, output model.Output) (bool, error) {
	mapping, err := e.mappings.Find(ctx, output.Asset, output.AddressIn, output.AddressInExtra)
	if err != nil {
		return false, fmt.Errorf("resolve mapping: %w", err)
	}
	if mapping == nil {
		_ = e.alerter.Send(ctx, alert.Alert{
			Type:    alert.AlertTypeUnmappedAddress,
			Asset:   output.Asset,
			Title:   "Output received for unmapped address",
			Message: fmt.Sprintf("tx %s:%d pays %s but no mapping exists", output.TxIn, output.TxInIndex, output.AddressIn),
		})
		return false, fmt.Errorf("%w: %s (asset %s)", ErrUnmappedAddress, output.AddressIn, output.Asset)
	}

	// Funding status is fixed here so amount_fee/amount_out stay immutable.
	// An account deleted after this check is resolved manually.
	status, err := e.accountStatus(ctx, job.Type, output.Asset, mapping.AddressOut)
	if err != nil {
		return false, fmt.Errorf("check account: %w", err)
	}

	needsFunding := job.Type == model.TransactionTypeDeposit && !status.Exists
	fee, err := e.policy.Fee(job.Type, output.Asset, output.Value, needsFunding)
	if err != nil {
		return false, fmt.Errorf("compute fee: %w", err)
	}

	rateUsd := e.usdRate(ctx, logger, output.Asset)
	final := walletIn.IsFinal(output.Value, output.Confirmations, rateUsd)

	existing, err := e.ledger.FindByInput(ctx, output.TxIn, output.TxInIndex)
	if err != nil {
		return false, fmt.Errorf("ledger lookup: %w", err)
	}

	// Dedup by (tx_in, tx_in_index): a re-observed input reuses its record
	// and keeps the fee/rate committed on first sight.
	tx := existing
	if tx == nil {
		tx = &model.Transaction{
			Type:            job.Type,
			TxIn:            output.TxIn,
			TxInIndex:       output.TxInIndex,
			AddressFrom:     output.AddressFrom,
			AddressIn:       output.AddressIn,
			AddressInExtra:  output.AddressInExtra,
			AddressOut:      mapping.AddressOut,
			AddressOutExtra: mapping.AddressOutExtra,
			Asset:           output.Asset,
			AmountIn:        output.Value,
			AmountFee:       fee,
			AmountOut:       output.Value.Sub(fee),
			RateUsd:         rateUsd,
			Refunded:        false,
			Mapping:         *mapping,
		}
	}

	state, err := e.decideState(job.Type, output, existing, status.Trusts, final)
	if err != nil {
		return false, err
	}
	tx.State = state

	stored, err := e.ledger.Upsert(ctx, tx)
	if err != nil {
		return false, fmt.Errorf("persist transaction: %w", err)
	}
	metrics.OutputsReconciledTotal.WithLabelValues(job.Type.String(), output.Asset, stored.State.String()).Inc()
	logger.Info("transaction reconciled",
		"tx_in", stored.TxIn, "tx_in_index", stored.TxInIndex,
		"state", stored.State, "amount_out", stored.AmountOut, "final", final,
	)

	// Cleanup, not dedup: the pending marker for the raw hash is obsolete
	// once the permanent record exists.
	if err := e.staging.Remove(ctx, job.Asset, job.Hash); err != nil {
		return false, fmt.Errorf("remove staging marker: %w", err)
	}

	if status.Trusts && final {
		batches, err := e.policy.Batches(job.Type, output.Asset)
		if err != nil {
			return false, err
		}
		if !batches {
			if err := e.forward.Enqueue(ctx, queue.StreamForward, ForwardingJob{Txs: []*model.Transaction{stored}}, e.jobOpts); err != nil {
				return false, fmt.Errorf("enqueue forwarding job: %w", err)
			}
			metrics.TransactionsForwardedTotal.WithLabelValues(job.Type.String(), output.Asset).Inc()
			logger.Info("transaction forwarded", "tx_in", stored.TxIn, "tx_in_index", stored.TxInIndex)
		}
	}
	return final, nil
}

// accountStatus resolves exists/trusts for the outbound destination.
// Withdrawals never query: the payout side is assumed to exist and accept
// the asset.
func (e *Engine) accountStatus(ctx context.Context, t model.TransactionType, asset, addressOut string) (horizon.AccountStatus, error) {
	if t == model.TransactionTypeWithdrawal {
		return horizon.AccountStatus{Exists: true, Trusts: true}, nil
	}
	assetPolicy, err := e.assets.Get(asset)
	if err != nil {
		return horizon.AccountStatus{}, err
	}
	return e.accounts.CheckAccount(ctx, addressOut, asset, assetPolicy.Issuer)
}

// usdRate snapshots the current rate, degrading to zero when the source has
// nothing. A missing rate never blocks reconciliation.
func (e *Engine) usdRate(ctx context.Context, logger *slog.Logger, asset string) decimal.Decimal {
	rate, ok, err := e.rateSrc.USDRate(ctx, asset)
	if err != nil {
		logger.Warn("rate lookup failed, proceeding with zero rate", "error", err)
		return decimal.Zero
	}
	if !ok {
		return decimal.Zero
	}
	return rate
}

// decideState is the ordered decision table for the record state:
//  1. a stored terminal limit state is sticky and wins;
//  2. a limit violation absorbs the record;
//  3. otherwise trust, then finality, decide the pending state.
func (e *Engine) decideState(t model.TransactionType, output model.Output, existing *model.Transaction, trusts, final bool) (model.TransactionState, error) {
	if existing != nil && existing.State.TerminalLimit() {
		return existing.State, nil
	}

	if violation, violated, err := e.policy.LimitViolation(t, output.Asset, output.Value); err != nil {
		return "", err
	} else if violated {
		return violation, nil
	}

	if !trusts {
		return model.StatePendingTrust, nil
	}
	if final {
		return model.StatePendingAnchor, nil
	}
	return model.StatePendingExternal, nil
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrNotFinal):
		return "not_final"
	case errors.Is(err, chain.ErrTxNotFound):
		return "not_found"
	default:
		return "error"
	}
}
