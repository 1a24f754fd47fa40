// Package model defines the persisted rows of the spin service.
package model

import "time"

// User is a Telegram user and their authoritative coin balance.
type User struct {
	TelegramID int64     `db:"telegram_id"`
	Username   string    `db:"username"`
	Balance    int64     `db:"balance"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// Transaction is an audit row for a balance change.
type Transaction struct {
	ID          int64     `db:"id"`
	UserID      int64     `db:"user_id"`
	Amount      int64     `db:"amount"`
	Type        string    `db:"type"`
	Description *string   `db:"description"`
	CreatedAt   time.Time `db:"created_at"`
}

// Record is a stored inventory record.
type Record struct {
	RecordID  string    `db:"record_id"`
	UserID    int64     `db:"user_id"`
	PrizeID   string    `db:"prize_id"`
	PrizeName string    `db:"prize_name"`
	ClaimedAt time.Time `db:"claimed_at"`
}

// Transaction types for categorizing balance changes.
const (
	TxTypeInitial       = "initial"        // Account creation
	TxTypeSpinCurrency  = "spin_currency"  // Coins won on the wheel
	TxTypeConvert       = "convert"        // Collectible converted to coins
	TxTypeClaimExternal = "claim_external" // Collectible sent out, zero amount
	TxTypeAdminCredit   = "admin_credit"   // Admin added balance
)
