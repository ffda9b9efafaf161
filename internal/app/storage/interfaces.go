package storage

import (
	"context"
	"errors"

	"github.com/apetweet-labs/swap_layer/internal/app/domain/wallet"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// WalletStore persists the user→wallet mapping. Implementations must enforce
// at most one wallet per user ID.
type WalletStore interface {
	CreateWallet(ctx context.Context, w wallet.UserWallet) (wallet.UserWallet, error)
	GetWalletByUserID(ctx context.Context, userID string) (wallet.UserWallet, error)
}
