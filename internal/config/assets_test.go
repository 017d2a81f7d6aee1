package config

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingdavid6336/stellar-anchor/internal/domain/model"
)

const validAssetsYAML = `
assets:
  BTC:
    chain: bitcoin
    issuer: GISSUER
    rate_provider_id: bitcoin
    deposit:
      fee_percent: "0.001"
      fee_fixed: "0.0001"
      fee_create: "0.00001"
      min: "0.0002"
      max: "10"
    withdrawal:
      fee_percent: "0.002"
      fee_fixed: "0.0005"
      min: "0.001"
    withdrawal_batching: true
`

func TestParseAssets_Valid(t *testing.T) {
	reg, err := ParseAssets([]byte(validAssetsYAML))
	require.NoError(t, err)

	assert.Equal(t, []string{"BTC"}, reg.Codes())

	p, err := reg.Get("BTC")
	require.NoError(t, err)
	assert.Equal(t, "bitcoin", p.Chain)
	assert.Equal(t, "GISSUER", p.Issuer)
	assert.Equal(t, "bitcoin", p.RateProviderID)
	assert.True(t, p.WithdrawalBatching)

	assert.True(t, p.Deposit.FeePercent.Equal(decimal.RequireFromString("0.001")))
	assert.True(t, p.Deposit.FeeCreate.Equal(decimal.RequireFromString("0.00001")))
	require.NotNil(t, p.Deposit.Min)
	require.NotNil(t, p.Deposit.Max)
	assert.True(t, p.Deposit.Min.Equal(decimal.RequireFromString("0.0002")))

	// Withdrawal has no max and no funding fee.
	assert.Nil(t, p.Withdrawal.Max)
	assert.True(t, p.Withdrawal.FeeCreate.IsZero())
}

func TestParseAssets_Direction(t *testing.T) {
	reg, err := ParseAssets([]byte(validAssetsYAML))
	require.NoError(t, err)
	p, err := reg.Get("BTC")
	require.NoError(t, err)

	assert.Equal(t, &p.Deposit, p.Direction(model.TransactionTypeDeposit))
	assert.Equal(t, &p.Withdrawal, p.Direction(model.TransactionTypeWithdrawal))
}

func TestParseAssets_UnknownAsset(t *testing.T) {
	reg, err := ParseAssets([]byte(validAssetsYAML))
	require.NoError(t, err)

	_, err = reg.Get("DOGE")
	assert.Error(t, err)
}

func TestParseAssets_Invalid(t *testing.T) {
	testCases := []struct {
		name string
		yaml string
	}{
		{
			name: "empty file",
			yaml: `assets: {}`,
		},
		{
			name: "missing chain",
			yaml: `
assets:
  BTC:
    issuer: GISSUER
    deposit:
      fee_percent: "0"
      fee_fixed: "0"
    withdrawal:
      fee_percent: "0"
      fee_fixed: "0"
`,
		},
		{
			name: "fee_create on withdrawal",
			yaml: `
assets:
  BTC:
    chain: bitcoin
    deposit:
      fee_percent: "0"
      fee_fixed: "0"
    withdrawal:
      fee_percent: "0"
      fee_fixed: "0"
      fee_create: "1"
`,
		},
		{
			name: "negative fee",
			yaml: `
assets:
  BTC:
    chain: bitcoin
    deposit:
      fee_percent: "-0.01"
      fee_fixed: "0"
    withdrawal:
      fee_percent: "0"
      fee_fixed: "0"
`,
		},
		{
			name: "min above max",
			yaml: `
assets:
  BTC:
    chain: bitcoin
    deposit:
      fee_percent: "0"
      fee_fixed: "0"
      min: "10"
      max: "1"
    withdrawal:
      fee_percent: "0"
      fee_fixed: "0"
`,
		},
		{
			name: "missing required fee",
			yaml: `
assets:
  BTC:
    chain: bitcoin
    deposit:
      fee_fixed: "0"
    withdrawal:
      fee_percent: "0"
      fee_fixed: "0"
`,
		},
		{
			name: "non-numeric fee",
			yaml: `
assets:
  BTC:
    chain: bitcoin
    deposit:
      fee_percent: "lots"
      fee_fixed: "0"
    withdrawal:
      fee_percent: "0"
      fee_fixed: "0"
`,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseAssets([]byte(tc.yaml))
			assert.Error(t, err)
		})
	}
}
