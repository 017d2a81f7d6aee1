// Package bitcoin adapts Bitcoin Core JSON-RPC for the deposit path.
package bitcoin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/kingdavid6336/stellar-anchor/internal/chain"
	"github.com/kingdavid6336/stellar-anchor/internal/chain/bitcoin/rpc"
	"github.com/kingdavid6336/stellar-anchor/internal/chain/ratelimit"
	"github.com/kingdavid6336/stellar-anchor/internal/domain/model"
)

const chainName = "bitcoin"

// Confirmation depth scales with the USD value at stake. An unavailable
// rate (zero) falls back to the deepest requirement.
var (
	usdTierMedium = decimal.NewFromInt(100)
	usdTierLarge  = decimal.NewFromInt(1000)
)

const (
	confirmationsSmall  = 1
	confirmationsMedium = 3
	confirmationsLarge  = 6
)

// AddressBook answers whether an address belongs to this anchor. Backed by
// the address-mapping store: an address is ours iff a mapping exists for it.
type AddressBook interface {
	Contains(ctx context.Context, asset, address string) (bool, error)
}

type Adapter struct {
	client    rpc.RPCClient
	addresses AddressBook
	logger    *slog.Logger
}

var _ chain.Adapter = (*Adapter)(nil)

func NewAdapter(rpcURL string, addresses AddressBook, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		client:    rpc.NewClient(rpcURL, logger),
		addresses: addresses,
		logger:    logger.With("chain", chainName),
	}
}

// NewAdapterWithClient is used by tests to inject a fake RPC client.
func NewAdapterWithClient(client rpc.RPCClient, addresses AddressBook, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		client:    client,
		addresses: addresses,
		logger:    logger.With("chain", chainName),
	}
}

// SetRateLimiter applies a rate limiter to the underlying RPC client.
func (a *Adapter) SetRateLimiter(l *ratelimit.Limiter) {
	if c, ok := a.client.(*rpc.Client); ok {
		c.SetRateLimiter(l)
	}
}

func (a *Adapter) Chain() string {
	return chainName
}

// ScanOutputs fetches txHash and returns the vouts paying addresses from the
// address book. The vout position is the dedup index; the txid reported by
// the node is the malleability-stable input reference.
func (a *Adapter) ScanOutputs(ctx context.Context, asset, txHash string) ([]model.Output, error) {
	tx, err := a.client.GetRawTransactionVerbose(ctx, txHash)
	if err != nil {
		var rpcErr *rpc.RPCError
		if errors.As(err, &rpcErr) && rpcErr.Code == rpc.ErrCodeNoSuchTransaction {
			return nil, chain.ErrTxNotFound
		}
		return nil, fmt.Errorf("get transaction %s: %w", txHash, err)
	}

	sender := senderAddress(tx)

	var outputs []model.Output
	for _, vout := range tx.Vout {
		addr := vout.ScriptPubKey.AddressValue()
		if addr == "" {
			continue
		}
		ours, err := a.addresses.Contains(ctx, asset, addr)
		if err != nil {
			return nil, fmt.Errorf("address book lookup %s: %w", addr, err)
		}
		if !ours {
			continue
		}
		value, err := decimal.NewFromString(vout.Value.String())
		if err != nil {
			return nil, fmt.Errorf("parse vout value %q: %w", vout.Value, err)
		}
		outputs = append(outputs, model.Output{
			Asset:         asset,
			TxIn:          tx.Txid,
			TxInIndex:     vout.N,
			AddressFrom:   sender,
			AddressIn:     addr,
			Value:         value,
			Confirmations: tx.Confirmations,
		})
	}
	return outputs, nil
}

// IsFinal requires deeper confirmation the more USD value is at stake.
func (a *Adapter) IsFinal(value decimal.Decimal, confirmations int64, usdRate decimal.Decimal) bool {
	if usdRate.IsZero() {
		// Rate unavailable: classify conservatively instead of guessing.
		return confirmations >= confirmationsLarge
	}
	usd := value.Mul(usdRate)
	switch {
	case usd.GreaterThanOrEqual(usdTierLarge):
		return confirmations >= confirmationsLarge
	case usd.GreaterThanOrEqual(usdTierMedium):
		return confirmations >= confirmationsMedium
	default:
		return confirmations >= confirmationsSmall
	}
}

// senderAddress picks the first resolvable input address, best effort. Nodes
// without vin.prevout support (pre 25.0) yield an empty sender.
func senderAddress(tx *rpc.Transaction) string {
	for _, vin := range tx.Vin {
		if vin.Coinbase != "" {
			return ""
		}
		if vin.Prevout != nil {
			if addr := vin.Prevout.ScriptPubKey.AddressValue(); addr != "" {
				return addr
			}
		}
	}
	return ""
}
