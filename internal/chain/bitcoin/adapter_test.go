package bitcoin

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingdavid6336/stellar-anchor/internal/chain"
	"github.com/kingdavid6336/stellar-anchor/internal/chain/bitcoin/rpc"
)

type fakeRPC struct {
	tx  *rpc.Transaction
	err error
}

func (f *fakeRPC) GetRawTransactionVerbose(context.Context, string) (*rpc.Transaction, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.tx, nil
}

type mapAddressBook map[string]bool

func (m mapAddressBook) Contains(_ context.Context, _, address string) (bool, error) {
	return m[address], nil
}

func sampleTx() *rpc.Transaction {
	return &rpc.Transaction{
		Txid:          "txid-1",
		Confirmations: 4,
		Vin: []rpc.Vin{
			{
				Txid: "prev-1",
				Prevout: &struct {
					ScriptPubKey rpc.ScriptPubKey `json:"scriptPubKey"`
				}{ScriptPubKey: rpc.ScriptPubKey{Address: "bc1qsender"}},
			},
		},
		Vout: []rpc.Vout{
			{Value: json.Number("0.5"), N: 0, ScriptPubKey: rpc.ScriptPubKey{Address: "bc1qours"}},
			{Value: json.Number("0.1"), N: 1, ScriptPubKey: rpc.ScriptPubKey{Address: "bc1qchange"}},
			{Value: json.Number("0.00000001"), N: 2, ScriptPubKey: rpc.ScriptPubKey{Addresses: []string{"bc1qours"}}},
		},
	}
}

func TestScanOutputs_FiltersByAddressBook(t *testing.T) {
	adapter := NewAdapterWithClient(
		&fakeRPC{tx: sampleTx()},
		mapAddressBook{"bc1qours": true},
		nil,
	)

	outputs, err := adapter.ScanOutputs(context.Background(), "BTC", "txid-1")
	require.NoError(t, err)
	require.Len(t, outputs, 2)

	assert.Equal(t, "txid-1", outputs[0].TxIn)
	assert.Equal(t, 0, outputs[0].TxInIndex)
	assert.Equal(t, "bc1qours", outputs[0].AddressIn)
	assert.Equal(t, "bc1qsender", outputs[0].AddressFrom)
	assert.True(t, outputs[0].Value.Equal(decimal.RequireFromString("0.5")))
	assert.Equal(t, int64(4), outputs[0].Confirmations)

	// Pre-22.0 addresses array still resolves; vout position is preserved.
	assert.Equal(t, 2, outputs[1].TxInIndex)
	assert.True(t, outputs[1].Value.Equal(decimal.RequireFromString("0.00000001")))
}

func TestScanOutputs_NoSuchTransaction(t *testing.T) {
	adapter := NewAdapterWithClient(
		&fakeRPC{err: &rpc.RPCError{Code: rpc.ErrCodeNoSuchTransaction, Message: "No such mempool or blockchain transaction"}},
		mapAddressBook{},
		nil,
	)

	_, err := adapter.ScanOutputs(context.Background(), "BTC", "missing")
	assert.ErrorIs(t, err, chain.ErrTxNotFound)
}

func TestScanOutputs_OtherRPCError(t *testing.T) {
	adapter := NewAdapterWithClient(
		&fakeRPC{err: errors.New("connection refused")},
		mapAddressBook{},
		nil,
	)

	_, err := adapter.ScanOutputs(context.Background(), "BTC", "txid-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, chain.ErrTxNotFound)
}

func TestScanOutputs_CoinbaseHasNoSender(t *testing.T) {
	tx := sampleTx()
	tx.Vin = []rpc.Vin{{Coinbase: "04ffff001d"}}
	adapter := NewAdapterWithClient(&fakeRPC{tx: tx}, mapAddressBook{"bc1qours": true}, nil)

	outputs, err := adapter.ScanOutputs(context.Background(), "BTC", "txid-1")
	require.NoError(t, err)
	require.NotEmpty(t, outputs)
	assert.Equal(t, "", outputs[0].AddressFrom)
}

func TestIsFinal_USDValueTiers(t *testing.T) {
	adapter := NewAdapterWithClient(&fakeRPC{}, mapAddressBook{}, nil)
	rate := decimal.NewFromInt(50000)

	testCases := []struct {
		name          string
		value         string
		confirmations int64
		final         bool
	}{
		{name: "small value one conf", value: "0.001", confirmations: 1, final: true}, // $50
		{name: "small value zero conf", value: "0.001", confirmations: 0, final: false},
		{name: "medium value needs three", value: "0.01", confirmations: 2, final: false}, // $500
		{name: "medium value three confs", value: "0.01", confirmations: 3, final: true},
		{name: "large value needs six", value: "0.1", confirmations: 5, final: false}, // $5000
		{name: "large value six confs", value: "0.1", confirmations: 6, final: true},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got := adapter.IsFinal(decimal.RequireFromString(tc.value), tc.confirmations, rate)
			assert.Equal(t, tc.final, got)
		})
	}
}

func TestIsFinal_ZeroRateConservative(t *testing.T) {
	adapter := NewAdapterWithClient(&fakeRPC{}, mapAddressBook{}, nil)

	// With no rate the tier is unknowable; require the deepest depth even
	// for dust.
	assert.False(t, adapter.IsFinal(decimal.RequireFromString("0.00000001"), 5, decimal.Zero))
	assert.True(t, adapter.IsFinal(decimal.RequireFromString("0.00000001"), 6, decimal.Zero))
}
