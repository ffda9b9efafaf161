// Package wallets manages custodial wallet provisioning for authenticated
// users.
package wallets

import (
	"context"

	"github.com/apetweet-labs/swap_layer/internal/app/domain/wallet"
	"github.com/apetweet-labs/swap_layer/internal/app/metrics"
	"github.com/apetweet-labs/swap_layer/internal/app/storage"
	"github.com/apetweet-labs/swap_layer/internal/custody"
	svcerrors "github.com/apetweet-labs/swap_layer/internal/errors"
	"github.com/apetweet-labs/swap_layer/pkg/logger"
)

// Provider provisions wallets at the custody service.
type Provider interface {
	CreateWallet(ctx context.Context) (*custody.Wallet, error)
}

// Service implements the wallet operations.
type Service struct {
	store    storage.WalletStore
	provider Provider
	log      *logger.Logger
}

// New creates a wallet service.
func New(store storage.WalletStore, provider Provider, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("wallets")
	}
	return &Service{store: store, provider: provider, log: log}
}

// GetOrCreate returns the user's wallet, provisioning one at the custody
// service on first call. Repeated calls for the same user return the same
// wallet; the store enforces at most one wallet per user, so a concurrent
// double-provision resolves to the row that won the insert.
func (s *Service) GetOrCreate(ctx context.Context, userID string) (wallet.UserWallet, error) {
	if userID == "" {
		return wallet.UserWallet{}, svcerrors.Unauthorized("")
	}

	existing, err := s.store.GetWalletByUserID(ctx, userID)
	if err == nil {
		return existing, nil
	}
	if err != storage.ErrNotFound {
		return wallet.UserWallet{}, svcerrors.Internal("look up wallet", err)
	}

	provisioned, err := s.provider.CreateWallet(ctx)
	if err != nil {
		return wallet.UserWallet{}, svcerrors.Internal("provision wallet", err)
	}

	created, err := s.store.CreateWallet(ctx, wallet.UserWallet{
		ID:      provisioned.ID,
		UserID:  userID,
		Address: provisioned.Address,
	})
	if err != nil {
		return wallet.UserWallet{}, svcerrors.Internal("persist wallet", err)
	}

	metrics.RecordWalletProvisioned()
	s.log.WithFields(map[string]interface{}{
		"user_id": userID,
		"address": created.Address,
	}).Infof("provisioned custodial wallet")
	return created, nil
}

// Get returns the user's wallet without provisioning.
func (s *Service) Get(ctx context.Context, userID string) (wallet.UserWallet, error) {
	if userID == "" {
		return wallet.UserWallet{}, svcerrors.Unauthorized("")
	}

	w, err := s.store.GetWalletByUserID(ctx, userID)
	if err == storage.ErrNotFound {
		return wallet.UserWallet{}, svcerrors.NotFound("wallet not found")
	}
	if err != nil {
		return wallet.UserWallet{}, svcerrors.Internal("look up wallet", err)
	}
	return w, nil
}
