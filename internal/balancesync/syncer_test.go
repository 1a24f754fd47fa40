package balancesync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"telegram-daily-spin/internal/ledger"
	"telegram-daily-spin/internal/prize"
)

// fakeStore returns a fixed remote balance and records persists.
type fakeStore struct {
	mu         sync.Mutex
	remote     int64
	persisted  []int64
	fetchErr   error
	persistErr error
	block      chan struct{}
	entered    chan struct{}
}

func (f *fakeStore) FetchBalance(ctx context.Context, userID int64) (int64, error) {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.remote, f.fetchErr
}

func (f *fakeStore) PersistBalance(ctx context.Context, userID int64, balance int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.persistErr != nil {
		return f.persistErr
	}
	f.persisted = append(f.persisted, balance)
	return nil
}

func newPair(store Store) (*ledger.Ledger, *Syncer) {
	l := ledger.New(prize.DefaultCatalog())
	s := New(1, store, l, time.Hour)
	l.SetPersister(s)
	return l, s
}

func TestSyncOnce_RemoteWins(t *testing.T) {
	store := &fakeStore{remote: 70}
	l, s := newPair(store)
	l.Restore(10, nil)

	_, err := l.CreditCurrency(40)
	require.NoError(t, err)
	assert.True(t, s.Pending())

	require.NoError(t, s.SyncOnce(context.Background()))

	assert.Equal(t, []int64{50}, store.persisted, "pending credit flushed before fetch")
	assert.Equal(t, int64(70), l.Balance())
	assert.Equal(t, int64(70), l.DisplayedBalance())
	assert.False(t, s.Pending())
}

func TestSyncOnce_FetchFailureKeepsLocal(t *testing.T) {
	store := &fakeStore{fetchErr: errors.New("network down")}
	l, s := newPair(store)
	l.Restore(10, nil)

	assert.Error(t, s.SyncOnce(context.Background()))
	assert.Equal(t, int64(10), l.Balance())
}

func TestFlush_FailureStaysPending(t *testing.T) {
	store := &fakeStore{persistErr: errors.New("db down")}
	l, s := newPair(store)

	_, err := l.CreditCurrency(5)
	require.NoError(t, err)

	assert.Error(t, s.Flush(context.Background()))
	assert.True(t, s.Pending())

	store.mu.Lock()
	store.persistErr = nil
	store.mu.Unlock()
	require.NoError(t, s.Flush(context.Background()))
	assert.False(t, s.Pending())
	assert.Equal(t, []int64{5}, store.persisted)
}

func TestSyncOnce_NoOverlap(t *testing.T) {
	store := &fakeStore{remote: 1, block: make(chan struct{}), entered: make(chan struct{}, 1)}
	_, s := newPair(store)

	done := make(chan error, 1)
	go func() { done <- s.SyncOnce(context.Background()) }()
	<-store.entered

	assert.ErrorIs(t, s.SyncOnce(context.Background()), ErrInFlight)
	assert.ErrorIs(t, s.Flush(context.Background()), ErrInFlight)

	close(store.block)
	require.NoError(t, <-done)
}

func TestSyncOnce_LocalChangeDuringFetchIsKept(t *testing.T) {
	store := &fakeStore{remote: 1000, block: make(chan struct{}), entered: make(chan struct{}, 1)}
	l, s := newPair(store)
	l.Restore(10, nil)

	done := make(chan error, 1)
	go func() { done <- s.SyncOnce(context.Background()) }()
	<-store.entered

	_, err := l.CreditCurrency(5)
	require.NoError(t, err)
	close(store.block)
	require.NoError(t, <-done)

	assert.Equal(t, int64(15), l.Balance())
	assert.True(t, s.Pending())
}

func TestRun_FlushesOnRequest(t *testing.T) {
	store := &fakeStore{}
	l, s := newPair(store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	_, err := l.CreditCurrency(9)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.persisted) > 0 && store.persisted[len(store.persisted)-1] == 9
	}, time.Second, 10*time.Millisecond)
}

func TestRun_TicksAndStops(t *testing.T) {
	store := &fakeStore{remote: 33}
	l := ledger.New(prize.DefaultCatalog())
	s := New(1, store, l, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(stopped)
	}()

	assert.Eventually(t, func() bool { return l.Balance() == 33 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}

// TestBalanceConvergenceProperty checks that after any local credits a
// completed sync leaves both the committed and displayed balance equal to
// the remote value.
func TestBalanceConvergenceProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		remote := rapid.Int64Range(0, 1_000_000).Draw(t, "remote")
		store := &fakeStore{remote: remote}
		l, s := newPair(store)
		l.Restore(rapid.Int64Range(0, 1_000_000).Draw(t, "start"), nil)

		credits := rapid.SliceOfN(rapid.Int64Range(0, 10_000), 0, 10).Draw(t, "credits")
		for _, c := range credits {
			if _, err := l.CreditCurrency(c); err != nil {
				t.Fatal(err)
			}
		}

		if err := s.SyncOnce(context.Background()); err != nil {
			t.Fatal(err)
		}
		if l.Balance() != remote || l.DisplayedBalance() != remote {
			t.Fatalf("balance %d displayed %d, remote %d", l.Balance(), l.DisplayedBalance(), remote)
		}
	})
}
