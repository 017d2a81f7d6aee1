// Package policy encodes the anchor's per-asset fee, limit and batching
// rules. All functions are pure; the only inputs are the validated asset
// registry and the call arguments.
package policy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/kingdavid6336/stellar-anchor/internal/config"
	"github.com/kingdavid6336/stellar-anchor/internal/domain/model"
)

type Engine struct {
	assets *config.AssetRegistry
}

func NewEngine(assets *config.AssetRegistry) *Engine {
	return &Engine{assets: assets}
}

// Fee computes the fee charged on an amount. Deposits to a destination
// account that does not exist yet carry the funding surcharge on top of the
// percent and fixed components; withdrawals never do, the destination is
// assumed to exist.
func (e *Engine) Fee(t model.TransactionType, asset string, amount decimal.Decimal, needsFunding bool) (decimal.Decimal, error) {
	policy, err := e.direction(t, asset)
	if err != nil {
		return decimal.Zero, err
	}

	fee := amount.Mul(policy.FeePercent).Add(policy.FeeFixed)
	if t == model.TransactionTypeDeposit && needsFunding {
		fee = fee.Add(policy.FeeCreate)
	}
	return fee, nil
}

// LimitViolation checks the amount against the configured min/max limits and
// returns the absorbing state for the first violated limit. The minimum is
// checked before the maximum; the maximum is only evaluated when the minimum
// did not trigger. ok is false when no limit is violated.
func (e *Engine) LimitViolation(t model.TransactionType, asset string, amount decimal.Decimal) (model.TransactionState, bool, error) {
	policy, err := e.direction(t, asset)
	if err != nil {
		return "", false, err
	}

	if policy.Min != nil && amount.LessThan(*policy.Min) {
		return model.StateTooSmall, true, nil
	}
	if policy.Max != nil && amount.GreaterThan(*policy.Max) {
		return model.StateTooLarge, true, nil
	}
	return "", false, nil
}

// Batches reports whether a ready transaction should be held back for
// batched settlement instead of being forwarded immediately. Only
// withdrawals batch, and only when the asset is configured for it.
func (e *Engine) Batches(t model.TransactionType, asset string) (bool, error) {
	if t != model.TransactionTypeWithdrawal {
		return false, nil
	}
	assetPolicy, err := e.assets.Get(asset)
	if err != nil {
		return false, err
	}
	return assetPolicy.WithdrawalBatching, nil
}

func (e *Engine) direction(t model.TransactionType, asset string) (*config.DirectionPolicy, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("unknown transaction type %q", t)
	}
	assetPolicy, err := e.assets.Get(asset)
	if err != nil {
		return nil, err
	}
	return assetPolicy.Direction(t), nil
}
