// Package ledger is the double-entry ledger core for the wallet backend.
//
// Flow:
//  1. A payment is initiated and recorded as a pending debit transaction
//  2. The reconciler discovers the pending record and looks up its status
//  3. Settled payments are finalized (plus fee true-up), failed ones voided
//  4. Every value movement is a balanced multi-line entry; cross-currency
//     movements are mediated by the dealer clearing pair
package ledger

import (
	"context"
	"errors"
	"time"
)

var (
	ErrTransactionNotFound = errors.New("ledger: transaction not found")
	ErrAlreadySettled      = errors.New("ledger: transaction already settled")
	ErrAlreadyReverted     = errors.New("ledger: transaction already reverted")
	ErrUnbalancedEntry     = errors.New("ledger: entry does not balance")
	ErrEmptyEntry          = errors.New("ledger: entry has no lines")
)

// Currency identifies which sub-ledger an amount lives in. BTC amounts are
// satoshis, USD amounts are cents.
type Currency string

const (
	CurrencyBtc Currency = "BTC"
	CurrencyUsd Currency = "USD"
)

// BtcAmount is a satoshi amount.
type BtcAmount int64

// UsdAmount is a cent amount.
type UsdAmount int64

// AccountID identifies a ledger account.
type AccountID string

// JournalID groups the lines of one ledger entry.
type JournalID string

// PaymentHash is the lightning payment hash, hex-encoded.
type PaymentHash string

// TxMetadata is free-form metadata attached to entries and lines.
type TxMetadata map[string]any

// merged returns base with extra merged over it. Returns base unchanged when
// extra is empty.
func (m TxMetadata) merged(extra TxMetadata) TxMetadata {
	if len(extra) == 0 {
		return m
	}
	out := make(TxMetadata, len(m)+len(extra))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// Transaction is one side of a recorded ledger entry as seen by a wallet.
// Pending transactions are outbound lightning payments awaiting network
// confirmation; exactly one of Debit/Credit is positive.
type Transaction struct {
	JournalID         JournalID   `json:"journalId"`
	WalletID          string      `json:"walletId"`
	Currency          Currency    `json:"currency"`
	PaymentHash       PaymentHash `json:"paymentHash,omitempty"`
	Pubkey            string      `json:"pubkey,omitempty"`
	Debit             int64       `json:"debit"`
	Credit            int64       `json:"credit"`
	Fee               int64       `json:"fee"`    // estimated network fee, sats
	FeeUsd            int64       `json:"feeUsd"` // estimated network fee, cents
	FeeKnownInAdvance bool        `json:"feeKnownInAdvance"`
	Pending           bool        `json:"pending"`
	Metadata          TxMetadata  `json:"metadata,omitempty"`
	CreatedAt         time.Time   `json:"createdAt"`
}

// SettledAmount is the positive side of the record.
func (t *Transaction) SettledAmount() int64 {
	if t.Debit > 0 {
		return t.Debit
	}
	return t.Credit
}

// InputAmount reconstructs the amount the payment was initiated with, in the
// wallet's currency: the debited amount net of the fee quoted at initiation.
func (t *Transaction) InputAmount() int64 {
	fee := t.Fee
	if t.Currency == CurrencyUsd {
		fee = t.FeeUsd
	}
	return t.SettledAmount() - fee
}

// Store persists ledger state. Settle, revert and the recorded check are
// keyed by payment hash so a retried or crashed reconciliation attempt can
// safely repeat them.
type Store interface {
	// ListWalletIDsWithPendingPayments returns wallets that have at least
	// one unresolved outbound lightning payment.
	ListWalletIDsWithPendingPayments(ctx context.Context) ([]string, error)

	PendingPaymentsCount(ctx context.Context, walletID string) (int, error)
	ListPendingPayments(ctx context.Context, walletID string) ([]*Transaction, error)

	// IsPaymentRecorded reports whether a finalized (settled or reverted)
	// transaction exists for the hash.
	IsPaymentRecorded(ctx context.Context, hash PaymentHash) (bool, error)

	// SettlePendingPayment transitions the pending record to resolved.
	SettlePendingPayment(ctx context.Context, hash PaymentHash) error

	// RevertPayment voids the original entry for a failed payment.
	RevertPayment(ctx context.Context, journalID JournalID, hash PaymentHash) error

	// UpdateMetadataByHash merges fields into the metadata of every line
	// recorded under the hash.
	UpdateMetadataByHash(ctx context.Context, hash PaymentHash, fields TxMetadata) error

	// RecordEntry persists a balanced entry and returns its journal id.
	RecordEntry(ctx context.Context, entry *Entry) (JournalID, error)
}
