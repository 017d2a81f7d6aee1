// Package stellar adapts the Stellar network for the withdrawal path: users
// send anchor-issued tokens to the anchor's account and the memo routes the
// payout.
package stellar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/kingdavid6336/stellar-anchor/internal/chain"
	"github.com/kingdavid6336/stellar-anchor/internal/config"
	"github.com/kingdavid6336/stellar-anchor/internal/domain/model"
	"github.com/kingdavid6336/stellar-anchor/internal/horizon"
)

const chainName = "stellar"

type Adapter struct {
	client  *horizon.Client
	account string // the anchor's receiving account
	assets  *config.AssetRegistry
	logger  *slog.Logger
}

var _ chain.Adapter = (*Adapter)(nil)

func NewAdapter(client *horizon.Client, account string, assets *config.AssetRegistry, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		client:  client,
		account: account,
		assets:  assets,
		logger:  logger.With("chain", chainName),
	}
}

func (a *Adapter) Chain() string {
	return chainName
}

// ScanOutputs lists the payments of txHash that credit the anchor's account
// with the given asset. The payment's position among the transaction's
// payment operations is the dedup index; the transaction memo carries the
// user's routing tag.
func (a *Adapter) ScanOutputs(ctx context.Context, asset, txHash string) ([]model.Output, error) {
	policy, err := a.assets.Get(asset)
	if err != nil {
		return nil, err
	}

	record, err := a.client.Transaction(ctx, txHash)
	if errors.Is(err, horizon.ErrNotFound) {
		return nil, chain.ErrTxNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetch transaction %s: %w", txHash, err)
	}
	if !record.Successful {
		a.logger.Debug("transaction failed on ledger, no outputs", "tx", txHash)
		return nil, nil
	}

	payments, err := a.client.TransactionPayments(ctx, txHash)
	if err != nil {
		return nil, fmt.Errorf("fetch payments %s: %w", txHash, err)
	}

	var memo *string
	if record.Memo != "" {
		m := record.Memo
		memo = &m
	}

	var outputs []model.Output
	for i, p := range payments {
		if p.To != a.account {
			continue
		}
		if p.AssetCode != asset || p.AssetIssuer != policy.Issuer {
			continue
		}
		value, err := decimal.NewFromString(p.Amount)
		if err != nil {
			return nil, fmt.Errorf("parse payment amount %q: %w", p.Amount, err)
		}
		outputs = append(outputs, model.Output{
			Asset:          asset,
			TxIn:           txHash,
			TxInIndex:      i,
			AddressFrom:    p.From,
			AddressIn:      p.To,
			AddressInExtra: memo,
			Value:          value,
			Confirmations:  1, // included in a closed ledger
		})
	}
	return outputs, nil
}

// IsFinal: a Stellar transaction is final once its ledger closes, regardless
// of value.
func (a *Adapter) IsFinal(_ decimal.Decimal, confirmations int64, _ decimal.Decimal) bool {
	return confirmations >= 1
}
