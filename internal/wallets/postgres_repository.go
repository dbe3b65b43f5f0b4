package wallets

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresRepository implements Repository with PostgreSQL.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a PostgreSQL-backed wallet repository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (p *PostgresRepository) FindByID(ctx context.Context, id string) (*Wallet, error) {
	w := &Wallet{}
	err := p.db.QueryRowContext(ctx, `
		SELECT id, account_id, currency FROM wallets WHERE id = $1
	`, id).Scan(&w.ID, &w.AccountID, &w.Currency)
	if err == sql.ErrNoRows {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find wallet: %w", err)
	}
	return w, nil
}
