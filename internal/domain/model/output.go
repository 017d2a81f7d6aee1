package model

import "github.com/shopspring/decimal"

// Output is one value transfer observed inside a chain transaction, addressed
// to an address this anchor controls. Outputs are ephemeral; they exist only
// for the duration of one processing attempt.
type Output struct {
	Asset          string
	TxIn           string // chain input reference (malleability-stable)
	TxInIndex      int
	AddressFrom    string
	AddressIn      string
	AddressInExtra *string // memo / destination tag, chain dependent
	Value          decimal.Decimal
	Confirmations  int64
}

// Job is an ephemeral processing request delivered by the queue. The same
// (Type, Asset, Hash) triple may be delivered more than once; processing must
// be idempotent.
type Job struct {
	Type  TransactionType `json:"type"`
	Asset string          `json:"asset"`
	Hash  string          `json:"hash"`
}
