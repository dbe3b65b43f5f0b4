package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// PostgresStore implements Store with PostgreSQL. Schema lives in the
// migrations/ directory.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed ledger store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) ListWalletIDsWithPendingPayments(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT DISTINCT wallet_id
		FROM ledger_transactions
		WHERE pending = TRUE AND payment_hash <> ''
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallets with pending payments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (p *PostgresStore) PendingPaymentsCount(ctx context.Context, walletID string) (int, error) {
	var count int
	err := p.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM ledger_transactions
		WHERE wallet_id = $1 AND pending = TRUE AND payment_hash <> ''
	`, walletID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending payments: %w", err)
	}
	return count, nil
}

func (p *PostgresStore) ListPendingPayments(ctx context.Context, walletID string) ([]*Transaction, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT journal_id, wallet_id, currency, payment_hash, pubkey,
		       debit, credit, fee, fee_usd, fee_known_in_advance, pending,
		       metadata, created_at
		FROM ledger_transactions
		WHERE wallet_id = $1 AND pending = TRUE AND payment_hash <> ''
		ORDER BY created_at ASC
	`, walletID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending payments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var txs []*Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func scanTransaction(rows *sql.Rows) (*Transaction, error) {
	tx := &Transaction{}
	var metadata []byte
	err := rows.Scan(
		&tx.JournalID, &tx.WalletID, &tx.Currency, &tx.PaymentHash, &tx.Pubkey,
		&tx.Debit, &tx.Credit, &tx.Fee, &tx.FeeUsd, &tx.FeeKnownInAdvance,
		&tx.Pending, &metadata, &tx.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &tx.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode transaction metadata: %w", err)
		}
	}
	return tx, nil
}

func (p *PostgresStore) IsPaymentRecorded(ctx context.Context, hash PaymentHash) (bool, error) {
	var recorded bool
	err := p.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM ledger_transactions
			WHERE payment_hash = $1 AND pending = FALSE
		)
	`, string(hash)).Scan(&recorded)
	if err != nil {
		return false, fmt.Errorf("failed to check recorded payment: %w", err)
	}
	return recorded, nil
}

func (p *PostgresStore) SettlePendingPayment(ctx context.Context, hash PaymentHash) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE ledger_transactions SET pending = FALSE
		WHERE payment_hash = $1
	`, string(hash))
	if err != nil {
		return fmt.Errorf("failed to settle pending payment: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrTransactionNotFound
	}
	paymentsSettled.Inc()
	return nil
}

func (p *PostgresStore) RevertPayment(ctx context.Context, journalID JournalID, hash PaymentHash) error {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	// Idempotent: a previous crashed attempt may already have voided it.
	var voided bool
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE((metadata->>'voided')::BOOLEAN, FALSE)
		FROM ledger_transactions
		WHERE journal_id = $1 AND payment_hash = $2
		FOR UPDATE
	`, string(journalID), string(hash)).Scan(&voided)
	if err == sql.ErrNoRows {
		return ErrTransactionNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load payment for revert: %w", err)
	}
	if voided {
		return tx.Commit()
	}

	// Void the original entry: flip every line's sides under the journal.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO ledger_lines (id, journal_id, account_id, debit, credit, currency, metadata)
		SELECT gen_random_uuid(), journal_id, account_id, credit, debit, currency,
		       COALESCE(metadata, '{}'::JSONB) || '{"voided_by": true}'::JSONB
		FROM ledger_lines WHERE journal_id = $1
	`, string(journalID))
	if err != nil {
		return fmt.Errorf("failed to write void lines: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE ledger_transactions SET
			pending  = FALSE,
			metadata = COALESCE(metadata, '{}'::JSONB) || '{"voided": true}'::JSONB
		WHERE journal_id = $1 AND payment_hash = $2
	`, string(journalID), string(hash))
	if err != nil {
		return fmt.Errorf("failed to void payment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	paymentsReverted.Inc()
	return nil
}

func (p *PostgresStore) UpdateMetadataByHash(ctx context.Context, hash PaymentHash, fields TxMetadata) error {
	encoded, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	_, err = p.db.ExecContext(ctx, `
		UPDATE ledger_transactions SET
			metadata = COALESCE(metadata, '{}'::JSONB) || $2::JSONB
		WHERE payment_hash = $1
	`, string(hash), encoded)
	if err != nil {
		return fmt.Errorf("failed to update metadata: %w", err)
	}
	return nil
}

func (p *PostgresStore) RecordEntry(ctx context.Context, entry *Entry) (JournalID, error) {
	if len(entry.Lines) == 0 {
		return "", ErrEmptyEntry
	}
	if !entry.Balanced() {
		return "", ErrUnbalancedEntry
	}

	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()

	journalID := JournalID(uuid.NewString())
	for _, line := range entry.Lines {
		metadata, err := json.Marshal(line.Metadata)
		if err != nil {
			return "", fmt.Errorf("failed to encode line metadata: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO ledger_lines (id, journal_id, account_id, debit, credit, currency, metadata)
			VALUES ($1, $2, $3, $4, $5, $6, $7::JSONB)
		`, uuid.NewString(), string(journalID), string(line.AccountID),
			line.Debit, line.Credit, string(line.Currency), metadata)
		if err != nil {
			return "", fmt.Errorf("failed to record ledger line: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	entriesRecorded.Inc()
	return journalID, nil
}
