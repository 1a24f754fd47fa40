// Package repository provides the PostgreSQL data access layer.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	trmpgx "github.com/avito-tech/go-transaction-manager/drivers/pgxv5/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"telegram-daily-spin/internal/model"
)

// Common errors for repository operations.
var (
	ErrUserNotFound   = errors.New("user not found")
	ErrRecordNotFound = errors.New("inventory record not found")
)

const usersTable = "users"

var (
	userColumns       = []string{"telegram_id", "username", "balance", "created_at", "updated_at"}
	joinedUserColumns = strings.Join(userColumns, ", ")
)

// UserRepository persists users and their balance snapshot. The wallet
// overwrites the balance with the ledger's value; it never adds to it.
type UserRepository struct {
	pool   *pgxpool.Pool
	getter *trmpgx.CtxGetter
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool, getter: trmpgx.DefaultCtxGetter}
}

func (r *UserRepository) queryUser(ctx context.Context, query sq.Sqlizer) (*model.User, error) {
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}
	rows, err := r.getter.DefaultTrOrDB(ctx, r.pool).Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	user, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[model.User])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	return user, err
}

func (r *UserRepository) update(ctx context.Context, telegramID int64, set map[string]any) error {
	sqlStr, args, err := psql.Update(usersTable).
		SetMap(set).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"telegram_id": telegramID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update: %w", err)
	}
	tag, err := r.getter.DefaultTrOrDB(ctx, r.pool).Exec(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Create inserts a user with a starting balance.
func (r *UserRepository) Create(ctx context.Context, telegramID int64, username string, balance int64) (*model.User, error) {
	user, err := r.queryUser(ctx, psql.Insert(usersTable).
		Columns(userColumns...).
		Values(telegramID, username, balance, sq.Expr("NOW()"), sq.Expr("NOW()")).
		Suffix("RETURNING "+joinedUserColumns))
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// GetByID returns ErrUserNotFound if the user does not exist.
func (r *UserRepository) GetByID(ctx context.Context, telegramID int64) (*model.User, error) {
	user, err := r.queryUser(ctx, psql.Select(userColumns...).
		From(usersTable).
		Where(sq.Eq{"telegram_id": telegramID}))
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetOrCreate returns the user, creating it on first contact. created
// reports whether a row was inserted.
func (r *UserRepository) GetOrCreate(ctx context.Context, telegramID int64, username string, initial int64) (user *model.User, created bool, err error) {
	user, err = r.GetByID(ctx, telegramID)
	if !errors.Is(err, ErrUserNotFound) {
		return user, false, err
	}

	user, err = r.Create(ctx, telegramID, username, initial)
	if err != nil {
		// Lost a race with a concurrent first contact.
		user, err = r.GetByID(ctx, telegramID)
		return user, false, err
	}
	return user, true, nil
}

// GetBalance returns the stored balance.
func (r *UserRepository) GetBalance(ctx context.Context, telegramID int64) (int64, error) {
	user, err := r.GetByID(ctx, telegramID)
	if err != nil {
		return 0, err
	}
	return user.Balance, nil
}

// SetBalance overwrites the stored balance.
func (r *UserRepository) SetBalance(ctx context.Context, telegramID int64, balance int64) error {
	if err := r.update(ctx, telegramID, map[string]any{"balance": balance}); err != nil {
		return fmt.Errorf("failed to set balance: %w", err)
	}
	return nil
}

// UpdateUsername records a changed Telegram username.
func (r *UserRepository) UpdateUsername(ctx context.Context, telegramID int64, username string) error {
	if err := r.update(ctx, telegramID, map[string]any{"username": username}); err != nil {
		return fmt.Errorf("failed to update username: %w", err)
	}
	return nil
}
