// Package memory provides an in-memory WalletStore for tests and local
// development.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/apetweet-labs/swap_layer/internal/app/domain/wallet"
	"github.com/apetweet-labs/swap_layer/internal/app/storage"
)

// Store is an in-memory implementation of storage.WalletStore. Safe for
// concurrent use.
type Store struct {
	mu            sync.RWMutex
	walletsByUser map[string]wallet.UserWallet
}

var _ storage.WalletStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{walletsByUser: make(map[string]wallet.UserWallet)}
}

// CreateWallet inserts a wallet row. A second insert for the same user returns
// the existing row, mirroring the unique-constraint handling of the Postgres
// store.
func (s *Store) CreateWallet(ctx context.Context, w wallet.UserWallet) (wallet.UserWallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.walletsByUser[w.UserID]; ok {
		return existing, nil
	}

	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	w.CreatedAt = now
	w.UpdatedAt = now
	s.walletsByUser[w.UserID] = w
	return w, nil
}

// GetWalletByUserID looks up the wallet owned by userID.
func (s *Store) GetWalletByUserID(ctx context.Context, userID string) (wallet.UserWallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.walletsByUser[userID]
	if !ok {
		return wallet.UserWallet{}, storage.ErrNotFound
	}
	return w, nil
}
