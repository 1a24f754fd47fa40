package repository

import (
	"context"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	trmpgx "github.com/avito-tech/go-transaction-manager/drivers/pgxv5/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"telegram-daily-spin/internal/model"
)

const transactionsTable = "transactions"

var transactionColumns = []string{"id", "user_id", "amount", "type", "description", "created_at"}

// TransactionRepository writes the audit trail of balance changes.
type TransactionRepository struct {
	pool   *pgxpool.Pool
	getter *trmpgx.CtxGetter
}

// NewTransactionRepository creates a new TransactionRepository.
func NewTransactionRepository(pool *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{pool: pool, getter: trmpgx.DefaultCtxGetter}
}

// Create appends an audit row. It joins the caller's transaction when
// ctx carries one.
func (r *TransactionRepository) Create(ctx context.Context, userID int64, amount int64, txType string, description *string) (*model.Transaction, error) {
	sqlStr, args, err := psql.Insert(transactionsTable).
		Columns("user_id", "amount", "type", "description", "created_at").
		Values(userID, amount, txType, description, sq.Expr("NOW()")).
		Suffix("RETURNING " + strings.Join(transactionColumns, ", ")).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build insert: %w", err)
	}

	db := r.getter.DefaultTrOrDB(ctx, r.pool)
	rows, err := db.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}
	tx, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[model.Transaction])
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}
	return tx, nil
}

// GetByUserID lists up to limit audit rows for a user, newest first.
func (r *TransactionRepository) GetByUserID(ctx context.Context, userID int64, limit int) ([]*model.Transaction, error) {
	sqlStr, args, err := psql.Select(transactionColumns...).
		From(transactionsTable).
		Where(sq.Eq{"user_id": userID}).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select: %w", err)
	}

	db := r.getter.DefaultTrOrDB(ctx, r.pool)
	rows, err := db.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}
	txs, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[model.Transaction])
	if err != nil {
		return nil, fmt.Errorf("failed to scan transactions: %w", err)
	}
	return txs, nil
}
