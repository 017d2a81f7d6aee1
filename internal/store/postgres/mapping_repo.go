package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/kingdavid6336/stellar-anchor/internal/domain/model"
)

type MappingRepo struct {
	db *DB
}

func NewMappingRepo(db *DB) *MappingRepo {
	return &MappingRepo{db: db}
}

// Find resolves a mapping by (asset, address_in, address_in_extra). A NULL
// extra tag only matches rows without one. Returns nil when unmapped.
func (r *MappingRepo) Find(ctx context.Context, asset, addressIn string, addressInExtra *string) (*model.AddressMapping, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `
		SELECT id, asset, address_in, address_in_extra, address_out, address_out_extra, created_at
		FROM address_mappings
		WHERE asset = $1 AND address_in = $2
		  AND (address_in_extra = $3 OR (address_in_extra IS NULL AND $3 IS NULL))
	`, asset, addressIn, addressInExtra)

	var m model.AddressMapping
	err := row.Scan(&m.ID, &m.Asset, &m.AddressIn, &m.AddressInExtra, &m.AddressOut, &m.AddressOutExtra, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find address mapping: %w", err)
	}
	return &m, nil
}

// Contains reports whether any mapping exists for the address. The bitcoin
// adapter uses this as its address book when scanning vouts.
func (r *MappingRepo) Contains(ctx context.Context, asset, address string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var exists bool
	if err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM address_mappings WHERE asset = $1 AND address_in = $2)
	`, asset, address).Scan(&exists); err != nil {
		return false, fmt.Errorf("address mapping exists: %w", err)
	}
	return exists, nil
}

// Create registers a new mapping.
func (r *MappingRepo) Create(ctx context.Context, m *model.AddressMapping) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO address_mappings (id, asset, address_in, address_in_extra, address_out, address_out_extra)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, m.ID, m.Asset, m.AddressIn, m.AddressInExtra, m.AddressOut, m.AddressOutExtra); err != nil {
		return fmt.Errorf("create address mapping: %w", err)
	}
	return nil
}
