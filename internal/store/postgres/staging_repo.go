package postgres

import (
	"context"
	"fmt"

	"github.com/kingdavid6336/stellar-anchor/internal/domain/model"
)

// StagingRepo stores pending-observation markers for raw chain hashes that
// have been seen but not yet durably reconciled. Markers are removed once
// the permanent transaction record is written.
type StagingRepo struct {
	db *DB
}

func NewStagingRepo(db *DB) *StagingRepo {
	return &StagingRepo{db: db}
}

func (r *StagingRepo) Add(ctx context.Context, t model.TransactionType, asset, hash string) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO staging_transactions (type, asset, hash)
		VALUES ($1, $2, $3)
		ON CONFLICT (asset, hash) DO NOTHING
	`, t, asset, hash); err != nil {
		return fmt.Errorf("add staging marker: %w", err)
	}
	return nil
}

func (r *StagingRepo) Remove(ctx context.Context, asset, hash string) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `
		DELETE FROM staging_transactions WHERE asset = $1 AND hash = $2
	`, asset, hash); err != nil {
		return fmt.Errorf("remove staging marker: %w", err)
	}
	return nil
}

// List returns the pending markers for an asset as redeliverable jobs, used
// to re-seed the queue after a crash.
func (r *StagingRepo) List(ctx context.Context, asset string) ([]model.Job, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT type, asset, hash FROM staging_transactions WHERE asset = $1 ORDER BY created_at
	`, asset)
	if err != nil {
		return nil, fmt.Errorf("list staging markers: %w", err)
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		var j model.Job
		if err := rows.Scan(&j.Type, &j.Asset, &j.Hash); err != nil {
			return nil, fmt.Errorf("scan staging marker: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate staging markers: %w", err)
	}
	return jobs, nil
}
