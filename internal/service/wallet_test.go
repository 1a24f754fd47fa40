package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/avito-tech/go-transaction-manager/trm/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegram-daily-spin/internal/ledger"
	"telegram-daily-spin/internal/model"
	"telegram-daily-spin/internal/repository"
)

// memDB backs all three stores. memManager rolls it back on error.
type memDB struct {
	users   map[int64]model.User
	records map[string]model.Record
	txs     []model.Transaction
	failTx  error
}

func newMemDB() *memDB {
	return &memDB{users: map[int64]model.User{}, records: map[string]model.Record{}}
}

func (db *memDB) clone() *memDB {
	c := &memDB{users: map[int64]model.User{}, records: map[string]model.Record{}, failTx: db.failTx}
	for k, v := range db.users {
		c.users[k] = v
	}
	for k, v := range db.records {
		c.records[k] = v
	}
	c.txs = append(c.txs, db.txs...)
	return c
}

type memUsers struct{ db *memDB }

func (m memUsers) GetOrCreate(ctx context.Context, id int64, username string, initial int64) (*model.User, bool, error) {
	if u, ok := m.db.users[id]; ok {
		return &u, false, nil
	}
	u := model.User{TelegramID: id, Username: username, Balance: initial, CreatedAt: time.Now()}
	m.db.users[id] = u
	return &u, true, nil
}

func (m memUsers) GetBalance(ctx context.Context, id int64) (int64, error) {
	u, ok := m.db.users[id]
	if !ok {
		return 0, repository.ErrUserNotFound
	}
	return u.Balance, nil
}

func (m memUsers) SetBalance(ctx context.Context, id int64, balance int64) error {
	u, ok := m.db.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.Balance = balance
	m.db.users[id] = u
	return nil
}

func (m memUsers) UpdateUsername(ctx context.Context, id int64, username string) error {
	u, ok := m.db.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.Username = username
	m.db.users[id] = u
	return nil
}

type memRecords struct{ db *memDB }

func (m memRecords) Insert(ctx context.Context, rec model.Record) error {
	if _, ok := m.db.records[rec.RecordID]; !ok {
		m.db.records[rec.RecordID] = rec
	}
	return nil
}

func (m memRecords) Delete(ctx context.Context, userID int64, id string) error {
	rec, ok := m.db.records[id]
	if !ok || rec.UserID != userID {
		return repository.ErrRecordNotFound
	}
	delete(m.db.records, id)
	return nil
}

func (m memRecords) ListByUser(ctx context.Context, userID int64, names []string) ([]model.Record, error) {
	var out []model.Record
	for _, r := range m.db.records {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

type memTxs struct{ db *memDB }

func (m memTxs) Create(ctx context.Context, userID int64, amount int64, txType string, desc *string) (*model.Transaction, error) {
	if m.db.failTx != nil {
		return nil, m.db.failTx
	}
	tx := model.Transaction{ID: int64(len(m.db.txs) + 1), UserID: userID, Amount: amount, Type: txType, Description: desc}
	m.db.txs = append(m.db.txs, tx)
	return &tx, nil
}

func (m memTxs) GetByUserID(ctx context.Context, userID int64, limit int) ([]*model.Transaction, error) {
	var out []*model.Transaction
	for i := len(m.db.txs) - 1; i >= 0 && len(out) < limit; i-- {
		if m.db.txs[i].UserID == userID {
			tx := m.db.txs[i]
			out = append(out, &tx)
		}
	}
	return out, nil
}

type memManager struct{ db *memDB }

func (m memManager) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	saved := m.db.clone()
	if err := fn(ctx); err != nil {
		*m.db = *saved
		return err
	}
	return nil
}

func (m memManager) DoWithSettings(ctx context.Context, _ trm.Settings, fn func(ctx context.Context) error) error {
	return m.Do(ctx, fn)
}

func newWallet(initial int64) (*WalletService, *memDB) {
	db := newMemDB()
	return NewWalletService(memUsers{db}, memRecords{db}, memTxs{db}, memManager{db}, initial), db
}

func TestEnsureUser(t *testing.T) {
	w, db := newWallet(100)
	ctx := context.Background()

	user, created, err := w.EnsureUser(ctx, 1, "alice")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, int64(100), user.Balance)
	require.Len(t, db.txs, 1)
	assert.Equal(t, model.TxTypeInitial, db.txs[0].Type)

	user, created, err = w.EnsureUser(ctx, 1, "alicia")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "alicia", user.Username)
	assert.Equal(t, "alicia", db.users[1].Username)
	assert.Len(t, db.txs, 1)
}

func TestEnsureUser_ZeroInitialWritesNoAudit(t *testing.T) {
	w, db := newWallet(0)
	_, _, err := w.EnsureUser(context.Background(), 1, "bob")
	require.NoError(t, err)
	assert.Empty(t, db.txs)
}

func TestRecordsRoundTrip(t *testing.T) {
	w, _ := newWallet(0)
	ctx := context.Background()
	_, _, err := w.EnsureUser(ctx, 1, "carol")
	require.NoError(t, err)

	rec := ledger.InventoryRecord{RecordID: "1234-5678-ABCD-EFGH", PrizeID: "giftRing", PrizeName: "Ring", ClaimedAt: time.Unix(1700000000, 0)}
	require.NoError(t, w.SaveRecord(ctx, 1, rec))

	loaded, err := w.LoadRecords(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []ledger.InventoryRecord{rec}, loaded)

	require.NoError(t, w.DeleteRecord(ctx, 1, rec.RecordID))
	require.NoError(t, w.DeleteRecord(ctx, 1, rec.RecordID), "missing record is not an error")
}

func TestConvertRecord(t *testing.T) {
	w, db := newWallet(0)
	ctx := context.Background()
	_, _, err := w.EnsureUser(ctx, 1, "dave")
	require.NoError(t, err)

	rec := ledger.InventoryRecord{RecordID: "1111-2222-AAAA-BBBB", PrizeName: "Diamond"}
	require.NoError(t, w.SaveRecord(ctx, 1, rec))
	require.NoError(t, w.PersistBalance(ctx, 1, 850))
	require.NoError(t, w.ConvertRecord(ctx, 1, rec, 750))

	assert.Empty(t, db.records)
	assert.Equal(t, int64(850), db.users[1].Balance, "convert leaves the stored balance alone")
	require.Len(t, db.txs, 1)
	assert.Equal(t, model.TxTypeConvert, db.txs[0].Type)
	assert.Equal(t, int64(750), db.txs[0].Amount)
}

func TestConvertRecord_RollsBack(t *testing.T) {
	w, db := newWallet(0)
	ctx := context.Background()
	_, _, err := w.EnsureUser(ctx, 1, "erin")
	require.NoError(t, err)

	rec := ledger.InventoryRecord{RecordID: "1111-2222-AAAA-BBBB", PrizeName: "Diamond"}
	require.NoError(t, w.SaveRecord(ctx, 1, rec))

	boom := errors.New("boom")
	db.failTx = boom
	assert.ErrorIs(t, w.ConvertRecord(ctx, 1, rec, 750), boom)

	assert.Len(t, db.records, 1)
	assert.Equal(t, int64(0), db.users[1].Balance)
}

func TestClaimExternal(t *testing.T) {
	w, db := newWallet(0)
	ctx := context.Background()
	_, _, err := w.EnsureUser(ctx, 1, "frank")
	require.NoError(t, err)

	rec := ledger.InventoryRecord{RecordID: "9999-8888-ZZZZ-YYYY", PrizeName: "Calendar"}
	require.NoError(t, w.SaveRecord(ctx, 1, rec))
	require.NoError(t, w.ClaimExternal(ctx, 1, rec))

	assert.Empty(t, db.records)
	require.Len(t, db.txs, 1)
	assert.Equal(t, model.TxTypeClaimExternal, db.txs[0].Type)
	assert.Zero(t, db.txs[0].Amount)
	assert.Contains(t, *db.txs[0].Description, rec.RecordID)
}

func TestBalancePassThrough(t *testing.T) {
	w, _ := newWallet(5)
	ctx := context.Background()

	_, err := w.FetchBalance(ctx, 1)
	assert.ErrorIs(t, err, repository.ErrUserNotFound)

	_, _, err = w.EnsureUser(ctx, 1, "gina")
	require.NoError(t, err)
	require.NoError(t, w.PersistBalance(ctx, 1, 42))
	bal, err := w.FetchBalance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(42), bal)

	require.NoError(t, w.RecordCredit(ctx, 1, 25, model.TxTypeSpinCurrency, ""))
}

func TestHistory(t *testing.T) {
	w, _ := newWallet(0)
	ctx := context.Background()

	require.NoError(t, w.RecordCredit(ctx, 1, 5, model.TxTypeSpinCurrency, "coin5"))
	require.NoError(t, w.RecordCredit(ctx, 2, 9, model.TxTypeSpinCurrency, ""))
	require.NoError(t, w.RecordCredit(ctx, 1, 50, model.TxTypeAdminCredit, "admin 7"))

	list, err := w.History(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, model.TxTypeAdminCredit, list[0].Type)
	assert.Equal(t, int64(5), list[1].Amount)

	list, err = w.History(ctx, 1, 1)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
