package session

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"telegram-daily-spin/internal/balancesync"
	"telegram-daily-spin/internal/ledger"
	"telegram-daily-spin/internal/model"
	"telegram-daily-spin/internal/prize"
	"telegram-daily-spin/internal/spin"
)

// writeQueueSize bounds the write-behind backlog per user.
const writeQueueSize = 64

// session is one user's wheel, ledger and sync loop. Everything except
// the writes channel is guarded by the manager's per-user lock.
type session struct {
	userID   int64
	ctrl     *spin.Controller
	ledger   *ledger.Ledger
	syncer   *balancesync.Syncer
	wallet   Wallet
	lastSeen time.Time
	lastTick time.Time

	// last award, read by Claim right after the controller calls Award
	outcome ledger.Outcome
	// records handed to the bridge and not yet acknowledged
	claiming map[string]bool

	writes chan func(context.Context)
	cancel context.CancelFunc
	done   chan struct{}
}

// Award implements spin.Rewarder: the ledger changes immediately, the
// database follows through the write queue.
func (s *session) Award(p prize.Prize) error {
	s.outcome = s.ledger.Award(p)

	switch v := p.(type) {
	case prize.CurrencyPrize:
		amount := v.Amount
		s.enqueue("spin credit", func(ctx context.Context) error {
			return s.wallet.RecordCredit(ctx, s.userID, amount, model.TxTypeSpinCurrency, v.ID())
		})
	case prize.CollectiblePrize:
		rec := *s.outcome.Record
		s.enqueue("save record", func(ctx context.Context) error {
			return s.wallet.SaveRecord(ctx, s.userID, rec)
		})
	}
	return nil
}

// enqueue schedules a database write. A full queue drops the write; the
// balance itself is still reconciled by the syncer.
func (s *session) enqueue(op string, fn func(context.Context) error) {
	userID := s.userID
	job := func(ctx context.Context) {
		if err := fn(ctx); err != nil {
			log.Error().Err(err).Int64("user_id", userID).Str("op", op).Msg("Write-behind failed")
		}
	}

	select {
	case s.writes <- job:
	default:
		log.Error().Int64("user_id", userID).Str("op", op).Msg("Write queue full, dropping write")
	}
}

// run drains the write queue and runs the balance syncer until ctx is
// cancelled, then finishes queued writes and flushes the balance.
func (s *session) run(ctx context.Context, writeTimeout time.Duration) {
	defer close(s.done)

	syncDone := make(chan struct{})
	go func() {
		s.syncer.Run(ctx)
		close(syncDone)
	}()

	exec := func(job func(context.Context)) {
		jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
		defer cancel()
		job(jobCtx)
	}

	for {
		select {
		case job := <-s.writes:
			exec(job)
		case <-ctx.Done():
			<-syncDone
			for {
				select {
				case job := <-s.writes:
					exec(job)
				default:
					flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
					if err := s.syncer.Flush(flushCtx); err != nil {
						log.Error().Err(err).Int64("user_id", s.userID).Msg("Final balance flush failed")
					}
					cancel()
					return
				}
			}
		}
	}
}

// close stops the controller and the background loop. It does not wait
// for queued writes; use done for that.
func (s *session) close() {
	s.ctrl.Close()
	s.cancel()
}
