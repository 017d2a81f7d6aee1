package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionTypeDeposit    TransactionType = "deposit"
	TransactionTypeWithdrawal TransactionType = "withdrawal"
)

func (t TransactionType) String() string {
	return string(t)
}

func (t TransactionType) Valid() bool {
	return t == TransactionTypeDeposit || t == TransactionTypeWithdrawal
}

type TransactionState string

const (
	// StatePendingTrust: destination account has no trustline yet.
	StatePendingTrust TransactionState = "pending_trust"
	// StatePendingExternal: trusted but the incoming transfer is not final yet.
	StatePendingExternal TransactionState = "pending_external"
	// StatePendingAnchor: trusted and final, ready for the settlement stage.
	StatePendingAnchor TransactionState = "pending_anchor"
	// StateTooSmall / StateTooLarge: limit violations, absorbing.
	StateTooSmall TransactionState = "too_small"
	StateTooLarge TransactionState = "too_large"
)

func (s TransactionState) String() string {
	return string(s)
}

// TerminalLimit reports whether s is an absorbing limit state. A record in a
// terminal limit state keeps it across later runs.
func (s TransactionState) TerminalLimit() bool {
	return s == StateTooSmall || s == StateTooLarge
}

// Transaction is the durable, deduplicated unit of work. A record is uniquely
// identified by (TxIn, TxInIndex), which is stable under chain-level hash
// malleability. AmountFee, AmountOut and RateUsd are computed once at creation
// and never rewritten; only State changes on later runs.
type Transaction struct {
	ID              uuid.UUID        `db:"id"`
	Type            TransactionType  `db:"type"`
	TxIn            string           `db:"tx_in"`
	TxInIndex       int              `db:"tx_in_index"`
	AddressFrom     string           `db:"address_from"`
	AddressIn       string           `db:"address_in"`
	AddressInExtra  *string          `db:"address_in_extra"`
	AddressOut      string           `db:"address_out"`
	AddressOutExtra *string          `db:"address_out_extra"`
	Asset           string           `db:"asset"`
	AmountIn        decimal.Decimal  `db:"amount_in"`
	AmountFee       decimal.Decimal  `db:"amount_fee"`
	AmountOut       decimal.Decimal  `db:"amount_out"`
	RateUsd         decimal.Decimal  `db:"rate_usd"`
	State           TransactionState `db:"state"`
	Refunded        bool             `db:"refunded"`
	Mapping         AddressMapping   `db:"mapping"` // snapshot at creation, for audit
	CreatedAt       time.Time        `db:"created_at"`
	UpdatedAt       time.Time        `db:"updated_at"`
}

// SettlementReady reports whether the transaction can advance to the
// settlement stage.
func (t *Transaction) SettlementReady() bool {
	return t.State == StatePendingAnchor
}
