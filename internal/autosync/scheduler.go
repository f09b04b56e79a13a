// Package autosync backs local changes up to Drive automatically. Data
// change events are debounced so a burst of edits becomes one upload, and
// the whole machinery only runs while the user is signed in with a live
// token.
package autosync

import (
	"context"
	"sync"
	"time"

	"github.com/dvloznov/financetracker/internal/events"
	"github.com/dvloznov/financetracker/internal/logger"
)

const (
	// DefaultInterval is the quiet period after the last data change
	// before a backup starts.
	DefaultInterval = 800 * time.Millisecond

	// DefaultRunTimeout bounds a single backup run.
	DefaultRunTimeout = 2 * time.Minute
)

// AuthState reports whether background work may touch Drive. Background
// runs never prompt for consent: when the token has lapsed the scheduler
// simply skips the run.
type AuthState interface {
	IsAuthenticated() bool
	HasValidAccessToken() bool
}

// Backuper runs one backup.
type Backuper interface {
	BackupToDrive(ctx context.Context) error
}

// Scheduler wires data change events to debounced backup runs.
type Scheduler struct {
	auth     AuthState
	backuper Backuper
	bus      *events.Bus

	interval   time.Duration
	runTimeout time.Duration

	mu        sync.Mutex
	active    bool
	debouncer *Debouncer
	unsubData func()
}

func NewScheduler(auth AuthState, backuper Backuper, bus *events.Bus) *Scheduler {
	return &Scheduler{
		auth:       auth,
		backuper:   backuper,
		bus:        bus,
		interval:   DefaultInterval,
		runTimeout: DefaultRunTimeout,
	}
}

// Watch supervises the scheduler against the auth lifecycle: it starts or
// stops on every auth change and immediately applies the current state.
// The returned function detaches the supervision and stops the scheduler.
func (s *Scheduler) Watch(ctx context.Context) func() {
	unsub := s.bus.Subscribe(events.AuthChanged, func() { s.evaluate(ctx) })
	s.evaluate(ctx)
	return func() {
		unsub()
		s.Stop(ctx)
	}
}

func (s *Scheduler) evaluate(ctx context.Context) {
	if s.auth.IsAuthenticated() && s.auth.HasValidAccessToken() {
		s.Start(ctx)
	} else {
		s.Stop(ctx)
	}
}

// Start begins listening for data changes. Starting an active scheduler is
// a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		return
	}
	s.debouncer = NewDebouncer(s.interval, func() { s.run(ctx) })
	s.unsubData = s.bus.Subscribe(events.DataChanged, s.debouncer.Trigger)
	s.active = true
	log := logger.FromContext(ctx)
	log.Info().Dur("interval", s.interval).Msg("auto backup started")
}

// Stop detaches from data changes and discards any pending run.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return
	}
	s.debouncer.Cancel()
	s.unsubData()
	s.debouncer = nil
	s.unsubData = nil
	s.active = false
	log := logger.FromContext(ctx)
	log.Info().Msg("auto backup stopped")
}

// Active reports whether the scheduler is listening for data changes.
func (s *Scheduler) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Scheduler) run(ctx context.Context) {
	log := logger.FromContext(ctx)

	// The token may have lapsed since the change arrived. Skip quietly;
	// the next interactive sign-in brings the scheduler back.
	if !s.auth.IsAuthenticated() || !s.auth.HasValidAccessToken() {
		log.Debug().Msg("skipping auto backup, not signed in with a valid token")
		return
	}

	runCtx, cancel := context.WithTimeout(ctx, s.runTimeout)
	defer cancel()

	if err := s.backuper.BackupToDrive(runCtx); err != nil {
		// Auto backups fail silently from the user's point of view;
		// an explicit backup will surface the problem.
		log.Warn().Err(err).Msg("auto backup failed")
	}
}
