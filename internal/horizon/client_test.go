package horizon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(server.URL, 5*time.Second, nil)
}

func TestCheckAccount_Trustline(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/accounts/GDEST", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"id": "GDEST",
			"balances": [
				{"asset_type": "native"},
				{"asset_type": "credit_alphanum4", "asset_code": "BTC", "asset_issuer": "GISSUER"}
			]
		}`))
	})

	status, err := c.CheckAccount(context.Background(), "GDEST", "BTC", "GISSUER")
	require.NoError(t, err)
	assert.True(t, status.Exists)
	assert.True(t, status.Trusts)
}

func TestCheckAccount_NoTrustline(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id": "GDEST", "balances": [{"asset_type": "native"}]}`))
	})

	status, err := c.CheckAccount(context.Background(), "GDEST", "BTC", "GISSUER")
	require.NoError(t, err)
	assert.True(t, status.Exists)
	assert.False(t, status.Trusts)
}

func TestCheckAccount_NativeNeedsNoTrustline(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id": "GDEST", "balances": [{"asset_type": "native"}]}`))
	})

	status, err := c.CheckAccount(context.Background(), "GDEST", "XLM", "")
	require.NoError(t, err)
	assert.True(t, status.Exists)
	assert.True(t, status.Trusts)
}

func TestCheckAccount_UnfundedIsNotAnError(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	status, err := c.CheckAccount(context.Background(), "GDEST", "BTC", "GISSUER")
	require.NoError(t, err)
	assert.False(t, status.Exists)
	assert.False(t, status.Trusts)
}

func TestCheckAccount_ServerError(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := c.CheckAccount(context.Background(), "GDEST", "BTC", "GISSUER")
	assert.Error(t, err)
}

func TestTransaction(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transactions/abc123", r.URL.Path)
		_, _ = w.Write([]byte(`{"hash": "abc123", "ledger": 52000000, "successful": true, "memo": "user-7", "memo_type": "text"}`))
	})

	record, err := c.Transaction(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, "abc123", record.Hash)
	assert.Equal(t, int64(52000000), record.Ledger)
	assert.True(t, record.Successful)
	assert.Equal(t, "user-7", record.Memo)
}

func TestTransaction_NotFound(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := c.Transaction(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTransactionPayments(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transactions/abc123/payments", r.URL.Path)
		assert.Equal(t, "200", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`{"_embedded": {"records": [
			{"id": "1", "type": "payment", "from": "GFROM", "to": "GACC", "asset_type": "credit_alphanum4", "asset_code": "BTC", "asset_issuer": "GISSUER", "amount": "1.2500000"},
			{"id": "2", "type": "payment", "from": "GFROM", "to": "GOTHER", "asset_type": "native", "amount": "10.0000000"}
		]}}`))
	})

	payments, err := c.TransactionPayments(context.Background(), "abc123")
	require.NoError(t, err)
	require.Len(t, payments, 2)
	assert.Equal(t, "GACC", payments[0].To)
	assert.Equal(t, "1.2500000", payments[0].Amount)
	assert.Equal(t, "native", payments[1].AssetType)
}
