// Package postgres implements the wallet store backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/apetweet-labs/swap_layer/internal/app/domain/wallet"
	"github.com/apetweet-labs/swap_layer/internal/app/storage"
)

// uniqueViolation is the Postgres error code for unique constraint failures.
const uniqueViolation = "23505"

// Store implements storage.WalletStore using a database handle.
type Store struct {
	db *sql.DB
}

var _ storage.WalletStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateWallet inserts the user→wallet row. Two concurrent inserts for the
// same user race on the user_id unique constraint; the loser returns the row
// the winner created rather than an error.
func (s *Store) CreateWallet(ctx context.Context, w wallet.UserWallet) (wallet.UserWallet, error) {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	w.CreatedAt = now
	w.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_wallets (id, user_id, address, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, w.ID, w.UserID, w.Address, w.CreatedAt, w.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return s.GetWalletByUserID(ctx, w.UserID)
		}
		return wallet.UserWallet{}, err
	}
	return w, nil
}

// GetWalletByUserID returns the wallet owned by userID, or
// storage.ErrNotFound.
func (s *Store) GetWalletByUserID(ctx context.Context, userID string) (wallet.UserWallet, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, address, created_at, updated_at
		FROM user_wallets
		WHERE user_id = $1
	`, userID)

	var w wallet.UserWallet
	if err := row.Scan(&w.ID, &w.UserID, &w.Address, &w.CreatedAt, &w.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return wallet.UserWallet{}, storage.ErrNotFound
		}
		return wallet.UserWallet{}, err
	}
	return w, nil
}
