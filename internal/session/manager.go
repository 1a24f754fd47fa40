// Package session keeps one live wheel per user: a spin controller over
// the carousel, the user's ledger and a balance syncer, all serialized by a
// per-user lock and advanced by a shared frame driver.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"telegram-daily-spin/internal/balancesync"
	"telegram-daily-spin/internal/bridge"
	"telegram-daily-spin/internal/ledger"
	"telegram-daily-spin/internal/model"
	"telegram-daily-spin/internal/pkg/lock"
	"telegram-daily-spin/internal/prize"
	"telegram-daily-spin/internal/spin"
	"telegram-daily-spin/internal/wheel"
)

// Session errors.
var (
	ErrRecordNotFound = errors.New("record not found")
	ErrClaimPending   = errors.New("record is being claimed")
	ErrClaimRejected  = errors.New("claim was not accepted")
	ErrClosed         = errors.New("session manager closed")
)

// Wallet is the persistent side of a session.
type Wallet interface {
	balancesync.Store
	EnsureUser(ctx context.Context, telegramID int64, username string) (*model.User, bool, error)
	LoadRecords(ctx context.Context, telegramID int64) ([]ledger.InventoryRecord, error)
	SaveRecord(ctx context.Context, telegramID int64, rec ledger.InventoryRecord) error
	RecordCredit(ctx context.Context, telegramID int64, amount int64, txType string, description string) error
	ConvertRecord(ctx context.Context, telegramID int64, rec ledger.InventoryRecord, credited int64) error
	DeleteRecord(ctx context.Context, telegramID int64, recordID string) error
	ClaimExternal(ctx context.Context, telegramID int64, rec ledger.InventoryRecord) error
}

// ClaimSender delivers collectibles outside the app.
type ClaimSender interface {
	SendClaim(ctx context.Context, p bridge.ClaimPayload) bool
}

// RevealFunc is told about every revealed prize. It runs on the manager's
// notification goroutine, never under a user lock.
type RevealFunc func(userID int64, p prize.Prize)

// Config holds manager settings.
type Config struct {
	Layout        wheel.Layout
	Spin          spin.Config
	SyncInterval  time.Duration
	WriteTimeout  time.Duration
	FrameInterval time.Duration
	IdleTTL       time.Duration // zero keeps sessions until Close
	LockTimeout   time.Duration // wait for a busy user before lock.ErrLockTimeout
}

// Manager owns every open session.
type Manager struct {
	cfg      Config
	wallet   Wallet
	claims   ClaimSender
	catalog  *prize.Catalog
	selector prize.Selector
	renderer *wheel.Renderer
	locks    *lock.UserLock
	now      func() time.Time
	jitter   func() float64
	onReveal RevealFunc

	reveals chan reveal

	mu       sync.Mutex
	sessions map[int64]*session
	draining map[int64]*session // evicted, still writing back
	closed   bool
	wg       sync.WaitGroup
}

type reveal struct {
	userID int64
	prize  prize.Prize
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces time.Now for frame timing and idle eviction.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithJitterSource fixes the spin distance jitter.
func WithJitterSource(fn func() float64) Option {
	return func(m *Manager) { m.jitter = fn }
}

// WithRevealNotifier registers fn for reveal notifications.
func WithRevealNotifier(fn RevealFunc) Option {
	return func(m *Manager) { m.onReveal = fn }
}

// WithSelector replaces the weighted draw over the catalog.
func WithSelector(sel prize.Selector) Option {
	return func(m *Manager) { m.selector = sel }
}

// NewManager creates a manager. loader may be nil for static slots.
func NewManager(cfg Config, wallet Wallet, claims ClaimSender, catalog *prize.Catalog, loader wheel.AnimationLoader, opts ...Option) (*Manager, error) {
	if err := cfg.Layout.Validate(); err != nil {
		return nil, err
	}
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = 16 * time.Millisecond
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = 5 * time.Second
	}

	m := &Manager{
		cfg:      cfg,
		wallet:   wallet,
		claims:   claims,
		catalog:  catalog,
		selector: prize.NewWeightedSelector(catalog.Prizes),
		renderer: wheel.NewRenderer(loader),
		locks:    lock.NewUserLock(),
		now:      time.Now,
		reveals:  make(chan reveal, 256),
		sessions: make(map[int64]*session),
		draining: make(map[int64]*session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *Manager) open(ctx context.Context, userID int64, username string) (*session, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	s, ok := m.sessions[userID]
	prev := m.draining[userID]
	m.mu.Unlock()
	if ok {
		return s, nil
	}
	if prev != nil {
		// The evicted session must finish writing before state is reloaded.
		select {
		case <-prev.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	user, _, err := m.wallet.EnsureUser(ctx, userID, username)
	if err != nil {
		return nil, err
	}
	records, err := m.wallet.LoadRecords(ctx, userID)
	if err != nil {
		return nil, err
	}

	l := ledger.New(m.catalog, ledger.WithClock(m.now))
	l.Restore(user.Balance, records)

	loop, err := wheel.NewLoop(m.cfg.Layout, m.renderer, m.selector, m.cfg.Spin.IdleSpeed)
	if err != nil {
		return nil, fmt.Errorf("failed to build wheel: %w", err)
	}

	now := m.now()
	s = &session{
		userID:   userID,
		ledger:   l,
		wallet:   m.wallet,
		lastSeen: now,
		lastTick: now,
		claiming: make(map[string]bool),
		writes:   make(chan func(context.Context), writeQueueSize),
		done:     make(chan struct{}),
	}
	s.syncer = balancesync.New(userID, m.wallet, l, m.cfg.SyncInterval)
	l.SetPersister(s.syncer)

	ctrlOpts := []spin.Option{spin.WithRevealHook(func(p prize.Prize) { m.notify(userID, p) })}
	if m.jitter != nil {
		ctrlOpts = append(ctrlOpts, spin.WithJitterSource(m.jitter))
	}
	s.ctrl = spin.NewController(loop, m.selector, s, m.cfg.Spin, ctrlOpts...)

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		cancel()
		s.ctrl.Close()
		return nil, ErrClosed
	}
	m.sessions[userID] = s
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		s.run(runCtx, m.cfg.WriteTimeout)
	}()

	log.Info().Int64("user_id", userID).Int64("balance", user.Balance).Int("records", len(records)).Msg("Session opened")
	return s, nil
}

// with runs fn on the user's session under the user's lock, opening the
// session first if needed. A user busy for longer than cfg.LockTimeout
// gets lock.ErrLockTimeout.
func (m *Manager) with(ctx context.Context, userID int64, username string, fn func(s *session) error) error {
	return m.locks.WithLockTimeout(ctx, userID, m.cfg.LockTimeout, func() error {
		s, err := m.open(ctx, userID, username)
		if err != nil {
			return err
		}
		s.lastSeen = m.now()
		return fn(s)
	})
}

func (m *Manager) notify(userID int64, p prize.Prize) {
	if m.onReveal == nil {
		return
	}
	select {
	case m.reveals <- reveal{userID: userID, prize: p}:
	default:
		log.Warn().Int64("user_id", userID).Msg("Reveal notification dropped")
	}
}

// Open makes sure the user has a live session.
func (m *Manager) Open(ctx context.Context, userID int64, username string) error {
	return m.with(ctx, userID, username, func(*session) error { return nil })
}

// Spin starts a spin for the user.
func (m *Manager) Spin(ctx context.Context, userID int64) (View, error) {
	var v View
	err := m.with(ctx, userID, "", func(s *session) error {
		if err := s.ctrl.Spin(); err != nil {
			return err
		}
		v = m.view(s)
		return nil
	})
	return v, err
}

// Claim commits the revealed prize.
func (m *Manager) Claim(ctx context.Context, userID int64) (ClaimResult, error) {
	var res ClaimResult
	err := m.with(ctx, userID, "", func(s *session) error {
		p, err := s.ctrl.Claim()
		if errors.Is(err, spin.ErrNothingRevealed) {
			return err
		}
		res = claimResult(p, s.outcome)
		return err
	})
	return res, err
}

// Dismiss closes the reveal. The prize is awarded as with Claim.
func (m *Manager) Dismiss(ctx context.Context, userID int64) (ClaimResult, error) {
	return m.Claim(ctx, userID)
}

// State returns the user's wheel and balance.
func (m *Manager) State(ctx context.Context, userID int64, username string) (View, error) {
	var v View
	err := m.with(ctx, userID, username, func(s *session) error {
		v = m.view(s)
		return nil
	})
	return v, err
}

// Balance returns the committed and displayed balance.
func (m *Manager) Balance(ctx context.Context, userID int64) (committed, displayed int64, err error) {
	err = m.with(ctx, userID, "", func(s *session) error {
		committed = s.ledger.Balance()
		displayed = s.ledger.DisplayedBalance()
		return nil
	})
	return committed, displayed, err
}

// Records lists the user's inventory in a category.
func (m *Manager) Records(ctx context.Context, userID int64, cat prize.Category) ([]ledger.InventoryRecord, error) {
	var out []ledger.InventoryRecord
	err := m.with(ctx, userID, "", func(s *session) error {
		out = s.ledger.Filter(cat)
		return nil
	})
	return out, err
}

// Stats summarizes the user's inventory.
func (m *Manager) Stats(ctx context.Context, userID int64) (ledger.Stats, error) {
	var st ledger.Stats
	err := m.with(ctx, userID, "", func(s *session) error {
		st = s.ledger.Stats()
		return nil
	})
	return st, err
}

// Convert turns a record into coins.
func (m *Manager) Convert(ctx context.Context, userID int64, recordID string) (ConvertResult, error) {
	var res ConvertResult
	err := m.with(ctx, userID, "", func(s *session) error {
		if s.claiming[recordID] {
			return ErrClaimPending
		}
		rec, credited, ok := s.ledger.Convert(recordID)
		if !ok {
			return ErrRecordNotFound
		}
		// The credit already asked the syncer to persist the balance.
		s.enqueue("convert", func(ctx context.Context) error {
			return s.wallet.ConvertRecord(ctx, userID, rec, credited)
		})
		res = ConvertResult{Record: rec, Credited: credited, Balance: s.ledger.Balance()}
		return nil
	})
	return res, err
}

// Remove deletes a record without paying it out.
func (m *Manager) Remove(ctx context.Context, userID int64, recordID string) error {
	return m.with(ctx, userID, "", func(s *session) error {
		if s.claiming[recordID] {
			return ErrClaimPending
		}
		if _, ok := s.ledger.RemoveCollectible(recordID); !ok {
			return ErrRecordNotFound
		}
		s.enqueue("delete record", func(ctx context.Context) error {
			return s.wallet.DeleteRecord(ctx, userID, recordID)
		})
		return nil
	})
}

// Credit adds coins outside a spin, e.g. an admin grant.
func (m *Manager) Credit(ctx context.Context, userID int64, amount int64, reason string) (int64, error) {
	var balance int64
	err := m.with(ctx, userID, "", func(s *session) error {
		var err error
		balance, err = s.ledger.CreditCurrency(amount)
		if err != nil {
			return err
		}
		s.enqueue("admin credit", func(ctx context.Context) error {
			return s.wallet.RecordCredit(ctx, userID, amount, model.TxTypeAdminCredit, reason)
		})
		return nil
	})
	return balance, err
}

// ClaimExternal hands a record to the host and removes it once the host
// acknowledges. The user lock is not held while the host is contacted.
func (m *Manager) ClaimExternal(ctx context.Context, userID int64, username string, recordID string) (ledger.InventoryRecord, error) {
	var rec ledger.InventoryRecord
	err := m.with(ctx, userID, username, func(s *session) error {
		if s.claiming[recordID] {
			return ErrClaimPending
		}
		var ok bool
		rec, ok = s.ledger.Get(recordID)
		if !ok {
			return ErrRecordNotFound
		}
		s.claiming[recordID] = true
		return nil
	})
	if err != nil {
		return ledger.InventoryRecord{}, err
	}

	acked := m.claims != nil && m.claims.SendClaim(ctx, bridge.ClaimPayload{
		UserID:    userID,
		Username:  username,
		RecordID:  rec.RecordID,
		PrizeID:   rec.PrizeID,
		PrizeName: rec.PrizeName,
		ClaimedAt: rec.ClaimedAt,
	})

	err = m.with(context.WithoutCancel(ctx), userID, username, func(s *session) error {
		delete(s.claiming, recordID)
		if !acked {
			return ErrClaimRejected
		}
		if _, ok := s.ledger.RemoveCollectible(recordID); !ok {
			return ErrRecordNotFound
		}
		s.enqueue("claim external", func(ctx context.Context) error {
			return s.wallet.ClaimExternal(ctx, userID, rec)
		})
		return nil
	})
	if err != nil {
		return ledger.InventoryRecord{}, err
	}
	return rec, nil
}

// Step advances every session to the current time. Sessions whose lock is
// busy are skipped and catch up on the next step. Idle sessions past
// IdleTTL are closed.
func (m *Manager) Step() {
	m.mu.Lock()
	ids := make([]int64, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		if !m.locks.TryLock(id) {
			continue
		}
		m.stepOne(id)
		m.locks.Unlock(id)
	}
}

// stepOne requires the user's lock.
func (m *Manager) stepOne(userID int64) {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	m.mu.Unlock()
	if !ok {
		return
	}

	now := m.now()
	s.ctrl.Tick(now.Sub(s.lastTick))
	s.lastTick = now

	if m.cfg.IdleTTL > 0 && s.ctrl.State().Phase == spin.PhaseIdle && now.Sub(s.lastSeen) > m.cfg.IdleTTL {
		m.mu.Lock()
		delete(m.sessions, userID)
		m.draining[userID] = s
		m.mu.Unlock()
		s.close()
		go func() {
			<-s.done
			m.mu.Lock()
			if m.draining[userID] == s {
				delete(m.draining, userID)
			}
			m.mu.Unlock()
		}()
		log.Info().Int64("user_id", userID).Msg("Idle session closed")
	}
}

// Run drives frames and reveal notifications until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.FrameInterval)
	defer ticker.Stop()

	notifyDone := make(chan struct{})
	go func() {
		defer close(notifyDone)
		for {
			select {
			case <-ctx.Done():
				return
			case r := <-m.reveals:
				m.onReveal(r.userID, r.prize)
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			<-notifyDone
			return
		case <-ticker.C:
			m.Step()
		}
	}
}

// Active returns the number of open sessions.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close ends every session and waits for their pending writes.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	sessions := m.sessions
	m.sessions = make(map[int64]*session)
	m.mu.Unlock()

	for id, s := range sessions {
		m.locks.Lock(id)
		s.close()
		m.locks.Unlock(id)
	}
	m.wg.Wait()
	log.Info().Int("sessions", len(sessions)).Msg("Session manager closed")
}
