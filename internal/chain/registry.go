package chain

import (
	"fmt"
	"sync"

	"github.com/kingdavid6336/stellar-anchor/internal/domain/model"
)

// Registry resolves the wallet pair for a job. Deposits flow from an
// external chain onto Stellar; withdrawals flow off Stellar back to the
// external chain. The inbound side is the one whose transaction the job
// references and whose outputs get scanned.
type Registry struct {
	mu       sync.RWMutex
	external map[string]Adapter // keyed by asset code
	stellar  Adapter
}

// WalletPair is the inbound/outbound adapter pair for one job.
type WalletPair struct {
	In  Adapter
	Out Adapter
}

func NewRegistry(stellar Adapter) *Registry {
	return &Registry{
		external: make(map[string]Adapter),
		stellar:  stellar,
	}
}

// RegisterExternal registers the external chain adapter handling an asset.
func (r *Registry) RegisterExternal(asset string, adapter Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.external[asset] = adapter
}

// Get returns the wallet pair for (type, asset). The asset must have a
// registered external adapter.
func (r *Registry) Get(t model.TransactionType, asset string) (WalletPair, error) {
	r.mu.RLock()
	external, ok := r.external[asset]
	r.mu.RUnlock()
	if !ok {
		return WalletPair{}, fmt.Errorf("no chain adapter registered for asset %q", asset)
	}

	switch t {
	case model.TransactionTypeDeposit:
		return WalletPair{In: external, Out: r.stellar}, nil
	case model.TransactionTypeWithdrawal:
		return WalletPair{In: r.stellar, Out: external}, nil
	default:
		return WalletPair{}, fmt.Errorf("unknown transaction type %q", t)
	}
}
