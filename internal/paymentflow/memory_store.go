package paymentflow

import (
	"context"
	"fmt"
	"sync"

	"github.com/chriszackpinto/galoy/internal/ledger"
)

// MemoryStore is an in-memory flow store for demo mode and tests.
type MemoryStore struct {
	flows map[string]*Flow
	mu    sync.RWMutex
}

// NewMemoryStore creates an in-memory flow store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{flows: make(map[string]*Flow)}
}

func flowKey(walletID string, hash ledger.PaymentHash, inputAmount int64) string {
	return fmt.Sprintf("%s:%s:%d", walletID, hash, inputAmount)
}

// AddFlow seeds a flow record.
func (m *MemoryStore) AddFlow(flow *Flow) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *flow
	m.flows[flowKey(flow.WalletID, flow.PaymentHash, flow.InputAmount)] = &cp
}

func (m *MemoryStore) FindFlow(_ context.Context, walletID string, hash ledger.PaymentHash, inputAmount int64) (*Flow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	flow, ok := m.flows[flowKey(walletID, hash, inputAmount)]
	if !ok {
		return nil, ErrFlowNotFound
	}
	cp := *flow
	return &cp, nil
}
