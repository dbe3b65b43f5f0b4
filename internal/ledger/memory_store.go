package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory ledger store for demo mode and tests.
type MemoryStore struct {
	transactions map[PaymentHash]*Transaction
	entries      map[JournalID]*Entry
	reverted     map[PaymentHash]bool
	mu           sync.RWMutex
}

// NewMemoryStore creates a new in-memory ledger store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		transactions: make(map[PaymentHash]*Transaction),
		entries:      make(map[JournalID]*Entry),
		reverted:     make(map[PaymentHash]bool),
	}
}

// AddPendingPayment seeds a pending outbound payment record. Used by demo
// mode and tests; production records arrive through the payment API.
func (m *MemoryStore) AddPendingPayment(tx *Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *tx
	cp.Pending = true
	if cp.JournalID == "" {
		cp.JournalID = JournalID(uuid.NewString())
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	m.transactions[cp.PaymentHash] = &cp
}

func (m *MemoryStore) ListWalletIDsWithPendingPayments(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]bool)
	var ids []string
	for _, tx := range m.transactions {
		if tx.Pending && !seen[tx.WalletID] {
			seen[tx.WalletID] = true
			ids = append(ids, tx.WalletID)
		}
	}
	return ids, nil
}

func (m *MemoryStore) PendingPaymentsCount(_ context.Context, walletID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, tx := range m.transactions {
		if tx.Pending && tx.WalletID == walletID {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) ListPendingPayments(_ context.Context, walletID string) ([]*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var txs []*Transaction
	for _, tx := range m.transactions {
		if tx.Pending && tx.WalletID == walletID {
			cp := *tx
			txs = append(txs, &cp)
		}
	}
	// Oldest first, the order settlement processes them in.
	sort.Slice(txs, func(i, j int) bool { return txs[i].CreatedAt.Before(txs[j].CreatedAt) })
	return txs, nil
}

func (m *MemoryStore) IsPaymentRecorded(_ context.Context, hash PaymentHash) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tx, ok := m.transactions[hash]
	if !ok {
		return false, nil
	}
	return !tx.Pending, nil
}

func (m *MemoryStore) SettlePendingPayment(_ context.Context, hash PaymentHash) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.transactions[hash]
	if !ok {
		return ErrTransactionNotFound
	}
	// Safe to repeat after a crashed attempt.
	if tx.Pending {
		paymentsSettled.Inc()
	}
	tx.Pending = false
	return nil
}

func (m *MemoryStore) RevertPayment(_ context.Context, journalID JournalID, hash PaymentHash) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.transactions[hash]
	if !ok || tx.JournalID != journalID {
		return ErrTransactionNotFound
	}
	if m.reverted[hash] {
		return nil
	}
	m.reverted[hash] = true
	tx.Pending = false
	paymentsReverted.Inc()
	if tx.Metadata == nil {
		tx.Metadata = TxMetadata{}
	}
	tx.Metadata["voided"] = true
	return nil
}

func (m *MemoryStore) UpdateMetadataByHash(_ context.Context, hash PaymentHash, fields TxMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.transactions[hash]
	if !ok {
		return ErrTransactionNotFound
	}
	if tx.Metadata == nil {
		tx.Metadata = TxMetadata{}
	}
	for k, v := range fields {
		tx.Metadata[k] = v
	}
	return nil
}

func (m *MemoryStore) RecordEntry(_ context.Context, entry *Entry) (JournalID, error) {
	if len(entry.Lines) == 0 {
		return "", ErrEmptyEntry
	}
	if !entry.Balanced() {
		return "", ErrUnbalancedEntry
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := JournalID(uuid.NewString())
	cp := *entry
	cp.Lines = append([]Line(nil), entry.Lines...)
	m.entries[id] = &cp
	entriesRecorded.Inc()
	return id, nil
}

// Entries returns all recorded entries. Test helper.
func (m *MemoryStore) Entries() []*Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	return out
}

// Entry returns a recorded entry by journal id. Test helper.
func (m *MemoryStore) Entry(id JournalID) (*Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	return e, ok
}

// Reverted reports whether the payment's original entry was voided. Test
// helper.
func (m *MemoryStore) Reverted(hash PaymentHash) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reverted[hash]
}

// Transaction returns the record for a hash. Test helper.
func (m *MemoryStore) Transaction(hash PaymentHash) (*Transaction, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tx, ok := m.transactions[hash]
	if !ok {
		return nil, false
	}
	cp := *tx
	return &cp, true
}
