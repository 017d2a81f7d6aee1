package store

import (
	"context"

	"github.com/kingdavid6336/stellar-anchor/internal/domain/model"
)

// TransactionRepository is the durable transaction ledger, keyed by the
// (tx_in, tx_in_index) dedup key.
type TransactionRepository interface {
	// FindByInput returns the record for the dedup key, or nil when absent.
	FindByInput(ctx context.Context, txIn string, txInIndex int) (*model.Transaction, error)

	// Upsert atomically creates or updates the record for the transaction's
	// dedup key. On conflict only state may change, and a stored terminal
	// limit state wins over the incoming one. Returns the stored row.
	Upsert(ctx context.Context, t *model.Transaction) (*model.Transaction, error)
}

// MappingRepository resolves inbound chain addresses to outbound
// destinations.
type MappingRepository interface {
	// Find returns the mapping for (asset, addressIn, addressInExtra), or
	// nil when the address is unmapped.
	Find(ctx context.Context, asset, addressIn string, addressInExtra *string) (*model.AddressMapping, error)

	// Contains reports whether any mapping exists for the address,
	// regardless of extra tag.
	Contains(ctx context.Context, asset, address string) (bool, error)

	// Create registers a new mapping.
	Create(ctx context.Context, m *model.AddressMapping) error
}

// StagingRepository tracks pending-observation markers for raw chain hashes
// awaiting reconciliation. Removal is cleanup after a durable write, not the
// dedup mechanism.
type StagingRepository interface {
	Add(ctx context.Context, t model.TransactionType, asset, hash string) error
	Remove(ctx context.Context, asset, hash string) error
	List(ctx context.Context, asset string) ([]model.Job, error)
}
