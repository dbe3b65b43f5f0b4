// Package wallets holds the wallet read model and the settlement-side
// wallet operations, currently fee reimbursement.
package wallets

import (
	"context"
	"errors"
	"sync"

	"github.com/chriszackpinto/galoy/internal/ledger"
)

var ErrWalletNotFound = errors.New("wallets: wallet not found")

// Wallet is a user's balance container. The currency is immutable once the
// wallet is created.
type Wallet struct {
	ID        string           `json:"id"`
	AccountID ledger.AccountID `json:"accountId"`
	Currency  ledger.Currency  `json:"currency"`
}

// Repository is the wallet read path.
type Repository interface {
	FindByID(ctx context.Context, id string) (*Wallet, error)
}

// MemoryRepository is an in-memory Repository for demo mode and tests.
type MemoryRepository struct {
	wallets map[string]*Wallet
	mu      sync.RWMutex
}

// NewMemoryRepository creates an in-memory wallet repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{wallets: make(map[string]*Wallet)}
}

// Add seeds a wallet.
func (m *MemoryRepository) Add(w *Wallet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *w
	m.wallets[w.ID] = &cp
}

func (m *MemoryRepository) FindByID(_ context.Context, id string) (*Wallet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	w, ok := m.wallets[id]
	if !ok {
		return nil, ErrWalletNotFound
	}
	cp := *w
	return &cp, nil
}
