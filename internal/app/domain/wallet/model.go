package wallet

import "time"

// UserWallet maps an authenticated user to their custodial wallet. At most one
// row exists per user.
type UserWallet struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
