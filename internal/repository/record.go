package repository

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	trmpgx "github.com/avito-tech/go-transaction-manager/drivers/pgxv5/v2"
	"github.com/jackc/pgx/v5/pgxpool"

	"telegram-daily-spin/internal/model"
)

const (
	recordsTable = "inventory_records"
	colRecordID  = "record_id"
	colUserID    = "user_id"
	colPrizeID   = "prize_id"
	colPrizeName = "prize_name"
	colClaimedAt = "claimed_at"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// RecordRepository persists inventory records.
type RecordRepository struct {
	pool   *pgxpool.Pool
	getter *trmpgx.CtxGetter
}

// NewRecordRepository creates a new RecordRepository.
func NewRecordRepository(pool *pgxpool.Pool) *RecordRepository {
	return &RecordRepository{pool: pool, getter: trmpgx.DefaultCtxGetter}
}

// Insert stores a record. Inserting an id that already exists is a no-op.
func (r *RecordRepository) Insert(ctx context.Context, rec model.Record) error {
	query := psql.Insert(recordsTable).
		Columns(colRecordID, colUserID, colPrizeID, colPrizeName, colClaimedAt).
		Values(rec.RecordID, rec.UserID, rec.PrizeID, rec.PrizeName, rec.ClaimedAt).
		Suffix("ON CONFLICT (" + colRecordID + ") DO NOTHING")

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert: %w", err)
	}

	db := r.getter.DefaultTrOrDB(ctx, r.pool)
	if _, err := db.Exec(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}
	return nil
}

// Delete removes a user's record, returning ErrRecordNotFound if it was
// not there.
func (r *RecordRepository) Delete(ctx context.Context, userID int64, recordID string) error {
	query := psql.Delete(recordsTable).
		Where(sq.Eq{colUserID: userID, colRecordID: recordID})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build delete: %w", err)
	}

	db := r.getter.DefaultTrOrDB(ctx, r.pool)
	result, err := db.Exec(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// ListByUser returns a user's records in claim order. A non-empty
// prizeNames restricts the result to those collectibles.
func (r *RecordRepository) ListByUser(ctx context.Context, userID int64, prizeNames []string) ([]model.Record, error) {
	where := sq.And{sq.Eq{colUserID: userID}}
	if len(prizeNames) > 0 {
		where = append(where, sq.Eq{colPrizeName: prizeNames})
	}

	query := psql.Select(colRecordID, colUserID, colPrizeID, colPrizeName, colClaimedAt).
		From(recordsTable).
		Where(where).
		OrderBy(colClaimedAt, colRecordID)

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select: %w", err)
	}

	db := r.getter.DefaultTrOrDB(ctx, r.pool)
	rows, err := db.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var records []model.Record
	for rows.Next() {
		var rec model.Record
		if err := rows.Scan(&rec.RecordID, &rec.UserID, &rec.PrizeID, &rec.PrizeName, &rec.ClaimedAt); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}
	return records, nil
}
