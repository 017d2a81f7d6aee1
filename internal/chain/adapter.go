package chain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/kingdavid6336/stellar-anchor/internal/domain/model"
)

// ErrTxNotFound is returned by ScanOutputs when the referenced chain
// transaction does not exist (yet). The caller treats it as a benign,
// retryable non-finding, not a failure.
var ErrTxNotFound = errors.New("chain transaction not found")

// Adapter abstracts chain-specific logic so the reconciliation engine
// operates chain-agnostically.
type Adapter interface {
	// Chain returns the chain identifier (e.g., "bitcoin", "stellar").
	Chain() string

	// ScanOutputs resolves the value transfers inside txHash that are
	// directed at addresses this anchor controls. Returns ErrTxNotFound
	// when the chain has not seen the transaction.
	ScanOutputs(ctx context.Context, asset, txHash string) ([]model.Output, error)

	// IsFinal decides whether a transfer of the given value with the given
	// confirmation depth will not be reversed by a reorganization. usdRate
	// lets adapters scale the required depth with the USD value at stake;
	// a zero rate means the rate was unavailable.
	IsFinal(value decimal.Decimal, confirmations int64, usdRate decimal.Decimal) bool
}
