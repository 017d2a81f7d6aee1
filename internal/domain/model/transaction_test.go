package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransactionType_Valid(t *testing.T) {
	assert.True(t, TransactionTypeDeposit.Valid())
	assert.True(t, TransactionTypeWithdrawal.Valid())
	assert.False(t, TransactionType("transfer").Valid())
	assert.False(t, TransactionType("").Valid())
}

func TestTransactionState_TerminalLimit(t *testing.T) {
	assert.True(t, StateTooSmall.TerminalLimit())
	assert.True(t, StateTooLarge.TerminalLimit())
	assert.False(t, StatePendingTrust.TerminalLimit())
	assert.False(t, StatePendingExternal.TerminalLimit())
	assert.False(t, StatePendingAnchor.TerminalLimit())
}

func TestTransaction_SettlementReady(t *testing.T) {
	tx := Transaction{State: StatePendingAnchor}
	assert.True(t, tx.SettlementReady())

	for _, s := range []TransactionState{StatePendingTrust, StatePendingExternal, StateTooSmall, StateTooLarge} {
		tx.State = s
		assert.False(t, tx.SettlementReady(), "state %s", s)
	}
}
