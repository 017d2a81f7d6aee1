package stellar

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingdavid6336/stellar-anchor/internal/chain"
	"github.com/kingdavid6336/stellar-anchor/internal/config"
	"github.com/kingdavid6336/stellar-anchor/internal/horizon"
)

const adapterAssetsYAML = `
assets:
  BTC:
    chain: bitcoin
    issuer: GISSUER
    deposit:
      fee_percent: "0"
      fee_fixed: "0"
    withdrawal:
      fee_percent: "0"
      fee_fixed: "0"
`

func testAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	assets, err := config.ParseAssets([]byte(adapterAssetsYAML))
	require.NoError(t, err)

	client := horizon.NewClient(server.URL, 5*time.Second, nil)
	return NewAdapter(client, "GANCHOR", assets, nil)
}

func TestScanOutputs_MatchingPayments(t *testing.T) {
	adapter := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/transactions/abc":
			_, _ = w.Write([]byte(`{"hash": "abc", "ledger": 100, "successful": true, "memo": "user-7", "memo_type": "text"}`))
		case "/transactions/abc/payments":
			_, _ = w.Write([]byte(`{"_embedded": {"records": [
				{"id": "1", "type": "payment", "from": "GUSER", "to": "GANCHOR", "asset_type": "credit_alphanum4", "asset_code": "BTC", "asset_issuer": "GISSUER", "amount": "2.5000000"},
				{"id": "2", "type": "payment", "from": "GUSER", "to": "GSOMEONE", "asset_type": "credit_alphanum4", "asset_code": "BTC", "asset_issuer": "GISSUER", "amount": "1.0000000"},
				{"id": "3", "type": "payment", "from": "GUSER", "to": "GANCHOR", "asset_type": "credit_alphanum4", "asset_code": "BTC", "asset_issuer": "GFAKE", "amount": "9.0000000"},
				{"id": "4", "type": "payment", "from": "GUSER", "to": "GANCHOR", "asset_type": "credit_alphanum4", "asset_code": "BTC", "asset_issuer": "GISSUER", "amount": "0.5000000"}
			]}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	outputs, err := adapter.ScanOutputs(context.Background(), "BTC", "abc")
	require.NoError(t, err)
	require.Len(t, outputs, 2)

	// Index is the payment's position among all payment operations, so the
	// second match keeps index 3.
	assert.Equal(t, 0, outputs[0].TxInIndex)
	assert.Equal(t, 3, outputs[1].TxInIndex)
	assert.Equal(t, "abc", outputs[0].TxIn)
	assert.Equal(t, "GANCHOR", outputs[0].AddressIn)
	assert.Equal(t, "GUSER", outputs[0].AddressFrom)
	assert.True(t, outputs[0].Value.Equal(decimal.RequireFromString("2.5")))
	require.NotNil(t, outputs[0].AddressInExtra)
	assert.Equal(t, "user-7", *outputs[0].AddressInExtra)
	assert.Equal(t, int64(1), outputs[0].Confirmations)
}

func TestScanOutputs_NoMemo(t *testing.T) {
	adapter := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/transactions/abc":
			_, _ = w.Write([]byte(`{"hash": "abc", "ledger": 100, "successful": true, "memo": "", "memo_type": "none"}`))
		case "/transactions/abc/payments":
			_, _ = w.Write([]byte(`{"_embedded": {"records": [
				{"id": "1", "type": "payment", "from": "GUSER", "to": "GANCHOR", "asset_type": "credit_alphanum4", "asset_code": "BTC", "asset_issuer": "GISSUER", "amount": "1.0000000"}
			]}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	outputs, err := adapter.ScanOutputs(context.Background(), "BTC", "abc")
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	assert.Nil(t, outputs[0].AddressInExtra)
}

func TestScanOutputs_FailedTransactionHasNoOutputs(t *testing.T) {
	adapter := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/transactions/abc" {
			_, _ = w.Write([]byte(`{"hash": "abc", "ledger": 100, "successful": false}`))
			return
		}
		t.Errorf("unexpected request %s", r.URL.Path)
	})

	outputs, err := adapter.ScanOutputs(context.Background(), "BTC", "abc")
	require.NoError(t, err)
	assert.Empty(t, outputs)
}

func TestScanOutputs_NotIngestedYet(t *testing.T) {
	adapter := testAdapter(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := adapter.ScanOutputs(context.Background(), "BTC", "abc")
	assert.ErrorIs(t, err, chain.ErrTxNotFound)
}

func TestScanOutputs_UnknownAsset(t *testing.T) {
	adapter := testAdapter(t, func(w http.ResponseWriter, _ *http.Request) {
		t.Error("no request expected for an unconfigured asset")
	})

	_, err := adapter.ScanOutputs(context.Background(), "DOGE", "abc")
	assert.Error(t, err)
}

func TestIsFinal_OneLedgerSuffices(t *testing.T) {
	adapter := testAdapter(t, func(w http.ResponseWriter, _ *http.Request) {})

	assert.True(t, adapter.IsFinal(decimal.NewFromInt(1000000), 1, decimal.Zero))
	assert.False(t, adapter.IsFinal(decimal.NewFromInt(1), 0, decimal.NewFromInt(100000)))
}
