// Package balancesync keeps a user's local balance in step with the remote
// store: local credits are written through, remote values win on fetch.
package balancesync

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrInFlight is returned when a sync is already running.
var ErrInFlight = errors.New("balance sync already in flight")

// DefaultInterval is the reconciliation period.
const DefaultInterval = 30 * time.Second

// Store is the remote balance authority.
type Store interface {
	FetchBalance(ctx context.Context, userID int64) (int64, error)
	PersistBalance(ctx context.Context, userID int64, balance int64) error
}

// Ledger is the local side of the sync.
type Ledger interface {
	Snapshot() (balance int64, version uint64)
	ReconcileAt(remote int64, version uint64) bool
}

// Syncer reconciles one user's balance on a fixed interval. At most one
// sync or flush runs at a time; overlapping calls return ErrInFlight.
type Syncer struct {
	userID   int64
	store    Store
	ledger   Ledger
	interval time.Duration
	timeout  time.Duration

	inFlight atomic.Bool
	dirty    atomic.Bool
	wake     chan struct{}
}

// New creates a syncer. Non-positive interval means DefaultInterval.
func New(userID int64, store Store, ledger Ledger, interval time.Duration) *Syncer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Syncer{
		userID:   userID,
		store:    store,
		ledger:   ledger,
		interval: interval,
		timeout:  10 * time.Second,
		wake:     make(chan struct{}, 1),
	}
}

// RequestPersist marks the local balance for writing. It never blocks.
func (s *Syncer) RequestPersist() {
	s.dirty.Store(true)
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Pending reports whether a local change is waiting to be persisted.
func (s *Syncer) Pending() bool {
	return s.dirty.Load()
}

// Run syncs every interval and flushes on persist requests until ctx is
// done. Errors are logged and retried on the next occasion.
func (s *Syncer) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, s.SyncOnce, "sync")
		case <-s.wake:
			s.runOnce(ctx, s.Flush, "flush")
		}
	}
}

func (s *Syncer) runOnce(ctx context.Context, fn func(context.Context) error, op string) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := fn(ctx); err != nil && !errors.Is(err, ErrInFlight) {
		log.Warn().
			Err(err).
			Int64("user_id", s.userID).
			Str("op", op).
			Msg("Balance sync failed, will retry")
	}
}

// Flush writes a pending local balance to the store.
func (s *Syncer) Flush(ctx context.Context) error {
	if !s.inFlight.CompareAndSwap(false, true) {
		return ErrInFlight
	}
	defer s.inFlight.Store(false)

	_, err := s.flush(ctx)
	return err
}

func (s *Syncer) flush(ctx context.Context) (bool, error) {
	if !s.dirty.Swap(false) {
		return false, nil
	}
	balance, _ := s.ledger.Snapshot()
	if err := s.store.PersistBalance(ctx, s.userID, balance); err != nil {
		s.dirty.Store(true)
		return false, err
	}
	return true, nil
}

// SyncOnce flushes any pending local balance, then fetches the remote one
// and adopts it if it differs. A local change made while the fetch was
// outstanding is kept and persisted next time instead.
func (s *Syncer) SyncOnce(ctx context.Context) error {
	if !s.inFlight.CompareAndSwap(false, true) {
		return ErrInFlight
	}
	defer s.inFlight.Store(false)

	if _, err := s.flush(ctx); err != nil {
		return err
	}

	local, version := s.ledger.Snapshot()
	remote, err := s.store.FetchBalance(ctx, s.userID)
	if err != nil {
		return err
	}

	if s.ledger.ReconcileAt(remote, version) {
		log.Info().
			Int64("user_id", s.userID).
			Int64("local", local).
			Int64("remote", remote).
			Msg("Balance reconciled from remote")
	}
	return nil
}
