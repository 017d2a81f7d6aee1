package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/kingdavid6336/stellar-anchor/internal/domain/model"
)

type TransactionRepo struct {
	db *DB
}

func NewTransactionRepo(db *DB) *TransactionRepo {
	return &TransactionRepo{db: db}
}

const transactionColumns = `
	id, type, tx_in, tx_in_index, address_from, address_in, address_in_extra,
	address_out, address_out_extra, asset, amount_in, amount_fee, amount_out,
	rate_usd, state, refunded, mapping, created_at, updated_at`

// FindByInput looks up a transaction by its dedup key. Returns nil when no
// record exists.
func (r *TransactionRepo) FindByInput(ctx context.Context, txIn string, txInIndex int) (*model.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE tx_in = $1 AND tx_in_index = $2
	`, txIn, txInIndex)

	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find transaction by input: %w", err)
	}
	return t, nil
}

// Upsert inserts the transaction or, when the dedup key already exists,
// updates only its state. Financial fields are written at most once per key;
// a stored terminal limit state is sticky and survives the update. The
// ON CONFLICT clause is the single serialization point for concurrent
// workers racing on the same key.
func (r *TransactionRepo) Upsert(ctx context.Context, t *model.Transaction) (*model.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	mapping, err := json.Marshal(t.Mapping)
	if err != nil {
		return nil, fmt.Errorf("marshal mapping snapshot: %w", err)
	}

	row := r.db.QueryRowContext(ctx, `
		INSERT INTO transactions (
			id, type, tx_in, tx_in_index, address_from, address_in, address_in_extra,
			address_out, address_out_extra, asset, amount_in, amount_fee, amount_out,
			rate_usd, state, refunded, mapping
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (tx_in, tx_in_index) DO UPDATE SET
			state = CASE
				WHEN transactions.state IN ('too_small', 'too_large') THEN transactions.state
				ELSE EXCLUDED.state
			END,
			updated_at = now()
		RETURNING `+transactionColumns+`
	`, t.ID, t.Type, t.TxIn, t.TxInIndex, t.AddressFrom, t.AddressIn, t.AddressInExtra,
		t.AddressOut, t.AddressOutExtra, t.Asset, t.AmountIn, t.AmountFee, t.AmountOut,
		t.RateUsd, t.State, t.Refunded, mapping,
	)

	stored, err := scanTransaction(row)
	if err != nil {
		return nil, fmt.Errorf("upsert transaction: %w", err)
	}
	return stored, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*model.Transaction, error) {
	var t model.Transaction
	var mapping []byte
	if err := row.Scan(
		&t.ID, &t.Type, &t.TxIn, &t.TxInIndex, &t.AddressFrom, &t.AddressIn, &t.AddressInExtra,
		&t.AddressOut, &t.AddressOutExtra, &t.Asset, &t.AmountIn, &t.AmountFee, &t.AmountOut,
		&t.RateUsd, &t.State, &t.Refunded, &mapping, &t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(mapping) > 0 {
		if err := json.Unmarshal(mapping, &t.Mapping); err != nil {
			return nil, fmt.Errorf("unmarshal mapping snapshot: %w", err)
		}
	}
	return &t, nil
}
