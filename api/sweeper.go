/*
sweeper.go - Background maintenance scheduler

PURPOSE:
  Runs the periodic jobs the booking engine needs to stay consistent
  without anyone clicking anything:
    1. No-show sweep: booked slots past their grace window are marked
       no-show and the deduction stands.
    2. Waitlist expiry: notified entries whose claim window lapsed
       revert to waiting and the next student is up.
    3. Materialization: recurring templates always have slots generated
       through the rolling window.

SCHEDULING:
  A single ticker drives all three. Each pass is idempotent, so the
  interval is a freshness knob, not a correctness one. RunNow exists for
  the manual /api/admin/sweep path and for tests.

SEE ALSO:
  - booking/engine.go:   SweepNoShows
  - booking/waitlist.go: ExpireNotified
  - booking/registry.go: MaterializeAllRecurring
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/makersapien/classlog-sub002/booking"
)

// DefaultSweepInterval is how often the maintenance pass runs.
const DefaultSweepInterval = 15 * time.Minute

// Sweeper runs the periodic maintenance pass.
type Sweeper struct {
	Engine   *booking.BookingEngine
	Waitlist *booking.WaitlistQueue
	Registry *booking.SlotRegistry
	Logger   *zap.Logger

	Interval time.Duration

	mu      sync.Mutex
	ticker  *time.Ticker
	stop    chan struct{}
	wg      sync.WaitGroup
	running bool
}

// NewSweeper creates a sweeper with the default interval.
func NewSweeper(engine *booking.BookingEngine, waitlist *booking.WaitlistQueue,
	registry *booking.SlotRegistry, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		Engine:   engine,
		Waitlist: waitlist,
		Registry: registry,
		Logger:   logger,
		Interval: DefaultSweepInterval,
	}
}

// Start launches the background loop. No-op if already running.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.ticker = time.NewTicker(s.Interval)
	s.stop = make(chan struct{})

	s.wg.Add(1)
	go s.run()

	s.Logger.Info("sweeper started", zap.Duration("interval", s.Interval))
}

// Stop halts the loop and waits for an in-flight pass to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.ticker.Stop()
	close(s.stop)
	s.mu.Unlock()

	s.wg.Wait()
	s.Logger.Info("sweeper stopped")
}

// RunNow executes one maintenance pass immediately.
func (s *Sweeper) RunNow(ctx context.Context) {
	s.pass(ctx)
}

func (s *Sweeper) run() {
	defer s.wg.Done()

	// First pass right away so a restart doesn't wait a full interval
	// to catch up on no-shows.
	s.pass(context.Background())

	for {
		select {
		case <-s.ticker.C:
			s.pass(context.Background())
		case <-s.stop:
			return
		}
	}
}

// pass runs the three jobs. Failures are logged and do not stop the
// remaining jobs; each is independently idempotent.
func (s *Sweeper) pass(ctx context.Context) {
	start := time.Now()

	swept, err := s.Engine.SweepNoShows(ctx)
	if err != nil {
		s.Logger.Error("no-show sweep failed", zap.Error(err))
	} else if swept > 0 {
		s.Logger.Info("no-show sweep", zap.Int("swept", swept))
	}

	expired, err := s.Waitlist.ExpireNotified(ctx)
	if err != nil {
		s.Logger.Error("waitlist expiry failed", zap.Error(err))
	} else if expired > 0 {
		s.Logger.Info("waitlist expiry", zap.Int("expired", expired))
	}

	if err := s.Registry.MaterializeAllRecurring(ctx, booking.MaterializeWeeksDefault); err != nil {
		s.Logger.Error("materialization failed", zap.Error(err))
	}

	s.Logger.Debug("maintenance pass complete", zap.Duration("took", time.Since(start)))
}
