package paymentflow

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/chriszackpinto/galoy/internal/ledger"
)

// PostgresStore implements Store with PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed flow store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) FindFlow(ctx context.Context, walletID string, hash ledger.PaymentHash, inputAmount int64) (*Flow, error) {
	flow := &Flow{}
	err := p.db.QueryRowContext(ctx, `
		SELECT wallet_id, payment_hash, input_amount,
		       btc_amount, usd_amount, btc_fee, usd_fee, created_at
		FROM payment_flows
		WHERE wallet_id = $1 AND payment_hash = $2 AND input_amount = $3
	`, walletID, string(hash), inputAmount).Scan(
		&flow.WalletID, &flow.PaymentHash, &flow.InputAmount,
		&flow.BtcAmount, &flow.UsdAmount, &flow.BtcFee, &flow.UsdFee,
		&flow.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrFlowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find payment flow: %w", err)
	}
	return flow, nil
}
