// Package ledger owns a user's coin balance and collectible inventory.
package ledger

import (
	"errors"
	"sync"
	"time"

	"telegram-daily-spin/internal/prize"
)

// ErrNegativeAmount is returned when a credit would lower the balance.
var ErrNegativeAmount = errors.New("credit amount must not be negative")

// InventoryRecord is one collectible the user holds.
type InventoryRecord struct {
	RecordID  string    `json:"record_id"`
	PrizeID   string    `json:"prize_id"`
	PrizeName string    `json:"prize_name"`
	ClaimedAt time.Time `json:"claimed_at"`
}

// Persister is told when the balance changed locally and should be written
// to the remote store.
type Persister interface {
	RequestPersist()
}

// Outcome is what claiming a prize did to the ledger.
type Outcome struct {
	Credited int64
	Balance  int64
	Record   *InventoryRecord
}

// Stats summarizes the inventory.
type Stats struct {
	Total int   `json:"total"`
	Value int64 `json:"value"`
	Rare  int   `json:"rare"`
}

// Ledger serializes every balance and inventory mutation behind one mutex.
// Records are unique by RecordID and kept in claim order.
type Ledger struct {
	catalog *prize.Catalog
	now     func() time.Time
	newID   func() string

	mu        sync.Mutex
	balance   int64
	version   uint64
	records   []InventoryRecord
	index     map[string]int
	display   counter
	persister Persister
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock sets the time source for claim stamps and the count-up.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithIDGenerator replaces NewRecordID.
func WithIDGenerator(fn func() string) Option {
	return func(l *Ledger) { l.newID = fn }
}

// New creates an empty ledger valuing collectibles with catalog.
func New(catalog *prize.Catalog, opts ...Option) *Ledger {
	l := &Ledger{
		catalog: catalog,
		now:     time.Now,
		newID:   NewRecordID,
		index:   make(map[string]int),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// SetPersister registers the sink for balance changes.
func (l *Ledger) SetPersister(p Persister) {
	l.mu.Lock()
	l.persister = p
	l.mu.Unlock()
}

// Restore replaces the ledger contents with stored state. Duplicate ids
// keep their first occurrence.
func (l *Ledger) Restore(balance int64, records []InventoryRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.balance = balance
	l.display.set(balance)
	l.records = l.records[:0]
	l.index = make(map[string]int, len(records))
	for _, r := range records {
		if _, dup := l.index[r.RecordID]; dup {
			continue
		}
		l.index[r.RecordID] = len(l.records)
		l.records = append(l.records, r)
	}
	l.version++
}

// Balance returns the committed balance.
func (l *Ledger) Balance() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance
}

// DisplayedBalance returns the count-up value for display. It settles on
// Balance within CountUpDuration of the last credit.
func (l *Ledger) DisplayedBalance() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.display.value(l.now())
}

// Snapshot returns the balance with a version that changes on every local
// mutation.
func (l *Ledger) Snapshot() (balance int64, version uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance, l.version
}

// CreditCurrency adds amount to the balance and returns the new balance.
func (l *Ledger) CreditCurrency(amount int64) (int64, error) {
	if amount < 0 {
		return 0, ErrNegativeAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credit(amount)
	return l.balance, nil
}

// credit requires l.mu.
func (l *Ledger) credit(amount int64) {
	if amount == 0 {
		return
	}
	l.balance += amount
	l.version++
	l.display.animate(l.now(), l.balance)
	if l.persister != nil {
		l.persister.RequestPersist()
	}
}

// AddCollectible records a newly claimed collectible.
func (l *Ledger) AddCollectible(p prize.CollectiblePrize) InventoryRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.add(p)
}

// add requires l.mu.
func (l *Ledger) add(p prize.CollectiblePrize) InventoryRecord {
	id := l.newID()
	for {
		if _, taken := l.index[id]; !taken {
			break
		}
		id = l.newID()
	}

	rec := InventoryRecord{
		RecordID:  id,
		PrizeID:   p.ID(),
		PrizeName: p.Name,
		ClaimedAt: l.now(),
	}
	l.index[id] = len(l.records)
	l.records = append(l.records, rec)
	l.version++
	return rec
}

// RemoveCollectible removes a record by id. ok is false when no such
// record exists, in which case nothing changes.
func (l *Ledger) RemoveCollectible(id string) (InventoryRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.remove(id)
}

// remove requires l.mu.
func (l *Ledger) remove(id string) (InventoryRecord, bool) {
	i, ok := l.index[id]
	if !ok {
		return InventoryRecord{}, false
	}

	rec := l.records[i]
	copy(l.records[i:], l.records[i+1:])
	l.records = l.records[:len(l.records)-1]
	delete(l.index, id)
	for j := i; j < len(l.records); j++ {
		l.index[l.records[j].RecordID] = j
	}
	l.version++
	return rec, true
}

// Convert turns a record into coins at its catalog value. Removal and
// credit happen in one critical section, so a record is never both held
// and paid out. ok is false for unknown ids.
func (l *Ledger) Convert(id string) (rec InventoryRecord, credited int64, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok = l.remove(id)
	if !ok {
		return InventoryRecord{}, 0, false
	}
	credited = l.catalog.CoinValue(rec.PrizeName)
	l.credit(credited)
	return rec, credited, true
}

// Award applies a claimed prize: coins are credited, collectibles become
// records.
func (l *Ledger) Award(p prize.Prize) Outcome {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out Outcome
	switch v := p.(type) {
	case prize.CurrencyPrize:
		l.credit(v.Amount)
		out.Credited = v.Amount
	case prize.CollectiblePrize:
		rec := l.add(v)
		out.Record = &rec
	}
	out.Balance = l.balance
	return out
}

// Get looks up a record.
func (l *Ledger) Get(id string) (InventoryRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	i, ok := l.index[id]
	if !ok {
		return InventoryRecord{}, false
	}
	return l.records[i], true
}

// List returns a copy of all records in claim order.
func (l *Ledger) List() []InventoryRecord {
	return l.Filter(prize.CategoryAll)
}

// Filter returns the records whose collectible falls in cat.
func (l *Ledger) Filter(cat prize.Category) []InventoryRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]InventoryRecord, 0, len(l.records))
	for _, r := range l.records {
		if l.catalog.Match(cat, r.PrizeName) {
			out = append(out, r)
		}
	}
	return out
}

// Stats counts records, their total coin value and how many are rare.
func (l *Ledger) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	var s Stats
	for _, r := range l.records {
		s.Total++
		s.Value += l.catalog.CoinValue(r.PrizeName)
		if l.catalog.IsRare(r.PrizeName) {
			s.Rare++
		}
	}
	return s
}

// Reconcile overwrites the balance with the remote value. The display
// jumps without a count-up. It reports whether anything changed.
func (l *Ledger) Reconcile(remote int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reconcile(remote)
}

// ReconcileAt is Reconcile guarded by a version from Snapshot: the remote
// value is only applied if nothing changed locally since.
func (l *Ledger) ReconcileAt(remote int64, version uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.version != version {
		return false
	}
	return l.reconcile(remote)
}

// reconcile requires l.mu.
func (l *Ledger) reconcile(remote int64) bool {
	if remote < 0 {
		remote = 0
	}
	l.display.set(remote)
	if l.balance == remote {
		return false
	}
	l.balance = remote
	l.version++
	return true
}
