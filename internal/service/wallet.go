// Package service provides the persistence-facing business operations.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/avito-tech/go-transaction-manager/trm/v2"
	"github.com/rs/zerolog/log"

	"telegram-daily-spin/internal/ledger"
	"telegram-daily-spin/internal/model"
	"telegram-daily-spin/internal/repository"
)

// UserStore is the users table.
type UserStore interface {
	GetOrCreate(ctx context.Context, telegramID int64, username string, initial int64) (*model.User, bool, error)
	GetBalance(ctx context.Context, telegramID int64) (int64, error)
	SetBalance(ctx context.Context, telegramID int64, balance int64) error
	UpdateUsername(ctx context.Context, telegramID int64, username string) error
}

// RecordStore is the inventory_records table.
type RecordStore interface {
	Insert(ctx context.Context, rec model.Record) error
	Delete(ctx context.Context, userID int64, recordID string) error
	ListByUser(ctx context.Context, userID int64, prizeNames []string) ([]model.Record, error)
}

// TransactionStore is the transactions table.
type TransactionStore interface {
	Create(ctx context.Context, userID int64, amount int64, txType string, description *string) (*model.Transaction, error)
	GetByUserID(ctx context.Context, userID int64, limit int) ([]*model.Transaction, error)
}

// maxHistory caps History.
const maxHistory = 100

// WalletService persists balances, inventory records and their audit
// trail. Multi-table writes run in one database transaction.
type WalletService struct {
	users   UserStore
	records RecordStore
	txs     TransactionStore
	txm     trm.Manager
	initial int64
}

// NewWalletService creates a WalletService. New users start with
// initialBalance coins.
func NewWalletService(users UserStore, records RecordStore, txs TransactionStore, manager trm.Manager, initialBalance int64) *WalletService {
	return &WalletService{
		users:   users,
		records: records,
		txs:     txs,
		txm:     manager,
		initial: initialBalance,
	}
}

// EnsureUser returns the user, creating it with the initial balance on
// first contact. A changed username is updated best-effort.
func (s *WalletService) EnsureUser(ctx context.Context, telegramID int64, username string) (*model.User, bool, error) {
	var (
		user    *model.User
		created bool
	)
	err := s.txm.Do(ctx, func(ctx context.Context) error {
		var err error
		user, created, err = s.users.GetOrCreate(ctx, telegramID, username, s.initial)
		if err != nil {
			return err
		}
		if created && s.initial > 0 {
			_, err = s.txs.Create(ctx, telegramID, s.initial, model.TxTypeInitial, nil)
		}
		return err
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to ensure user: %w", err)
	}

	if !created && username != "" && user.Username != username {
		if err := s.users.UpdateUsername(ctx, telegramID, username); err != nil {
			log.Warn().Err(err).Int64("user_id", telegramID).Msg("Failed to update username")
		} else {
			user.Username = username
		}
	}

	return user, created, nil
}

// FetchBalance returns the stored balance.
func (s *WalletService) FetchBalance(ctx context.Context, telegramID int64) (int64, error) {
	return s.users.GetBalance(ctx, telegramID)
}

// PersistBalance overwrites the stored balance.
func (s *WalletService) PersistBalance(ctx context.Context, telegramID int64, balance int64) error {
	return s.users.SetBalance(ctx, telegramID, balance)
}

// LoadRecords returns the user's stored inventory.
func (s *WalletService) LoadRecords(ctx context.Context, telegramID int64) ([]ledger.InventoryRecord, error) {
	rows, err := s.records.ListByUser(ctx, telegramID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load records: %w", err)
	}

	out := make([]ledger.InventoryRecord, len(rows))
	for i, r := range rows {
		out[i] = ledger.InventoryRecord{
			RecordID:  r.RecordID,
			PrizeID:   r.PrizeID,
			PrizeName: r.PrizeName,
			ClaimedAt: r.ClaimedAt,
		}
	}
	return out, nil
}

func toModel(telegramID int64, rec ledger.InventoryRecord) model.Record {
	return model.Record{
		RecordID:  rec.RecordID,
		UserID:    telegramID,
		PrizeID:   rec.PrizeID,
		PrizeName: rec.PrizeName,
		ClaimedAt: rec.ClaimedAt,
	}
}

// SaveRecord stores a newly claimed collectible.
func (s *WalletService) SaveRecord(ctx context.Context, telegramID int64, rec ledger.InventoryRecord) error {
	return s.records.Insert(ctx, toModel(telegramID, rec))
}

// RecordCredit writes an audit row for a coin credit.
func (s *WalletService) RecordCredit(ctx context.Context, telegramID int64, amount int64, txType string, description string) error {
	var desc *string
	if description != "" {
		desc = &description
	}
	if _, err := s.txs.Create(ctx, telegramID, amount, txType, desc); err != nil {
		return err
	}
	return nil
}

// History returns the user's most recent audit rows, newest first.
func (s *WalletService) History(ctx context.Context, telegramID int64, limit int) ([]*model.Transaction, error) {
	if limit <= 0 || limit > maxHistory {
		limit = maxHistory
	}
	return s.txs.GetByUserID(ctx, telegramID, limit)
}

// ConvertRecord removes a converted record together with its audit row.
// The balance itself is written only by PersistBalance, so a queued
// convert can never overwrite a newer balance. A record that was never
// stored is not an error.
func (s *WalletService) ConvertRecord(ctx context.Context, telegramID int64, rec ledger.InventoryRecord, credited int64) error {
	return s.txm.Do(ctx, func(ctx context.Context) error {
		if err := s.deleteRecord(ctx, telegramID, rec.RecordID); err != nil {
			return err
		}
		desc := rec.PrizeName
		_, err := s.txs.Create(ctx, telegramID, credited, model.TxTypeConvert, &desc)
		return err
	})
}

// DeleteRecord removes a record.
func (s *WalletService) DeleteRecord(ctx context.Context, telegramID int64, recordID string) error {
	return s.deleteRecord(ctx, telegramID, recordID)
}

// ClaimExternal removes a record that was handed to the host and leaves
// a zero-amount audit row naming it.
func (s *WalletService) ClaimExternal(ctx context.Context, telegramID int64, rec ledger.InventoryRecord) error {
	return s.txm.Do(ctx, func(ctx context.Context) error {
		if err := s.deleteRecord(ctx, telegramID, rec.RecordID); err != nil {
			return err
		}
		desc := rec.PrizeName + " " + rec.RecordID
		_, err := s.txs.Create(ctx, telegramID, 0, model.TxTypeClaimExternal, &desc)
		return err
	})
}

func (s *WalletService) deleteRecord(ctx context.Context, telegramID int64, recordID string) error {
	err := s.records.Delete(ctx, telegramID, recordID)
	if errors.Is(err, repository.ErrRecordNotFound) {
		log.Debug().Int64("user_id", telegramID).Str("record_id", recordID).Msg("Record was not stored")
		return nil
	}
	return err
}
