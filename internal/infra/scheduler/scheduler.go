package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"reminder-bot/internal/domain"
	"reminder-bot/internal/domain/model"
	"reminder-bot/internal/domain/ports/repository"
	"reminder-bot/internal/infra/logging"
	"reminder-bot/internal/infra/metrics"
	"reminder-bot/internal/usecase"
)

// Deliverer is the minimal interface the scheduler needs from the delivery use-case.
type Deliverer interface {
	Deliver(ctx context.Context, chatID int64, n usecase.Notice) usecase.Result
}

// Timer is a read-only view of one armed reminder.
type Timer struct {
	UserID   int64
	ChatID   int64
	Slot     model.Slot
	NextFire time.Time
}

type activeTimer struct {
	view   Timer
	cancel context.CancelFunc
	done   chan struct{}
}

// Scheduler keeps at most one armed timer per user. Each timer is a goroutine that
// sleeps until its slot, re-reads the user's settings and delivers when they are
// still active and unchanged.
type Scheduler struct {
	store       repository.SettingsRepository
	deliverer   Deliverer
	notice      usecase.Notice
	clock       Clock
	loc         *time.Location
	readTimeout time.Duration
	maxSleep    time.Duration
	log         *zerolog.Logger

	root       context.Context
	rootCancel context.CancelFunc

	mu     sync.Mutex
	timers map[int64]*activeTimer
	users  map[int64]*userGate
	closed bool
	wg     sync.WaitGroup
}

// userGate serializes Start/Stop for one user; it is dropped once nobody holds or
// waits on it.
type userGate struct {
	mu   sync.Mutex
	refs int
}

type Option func(*Scheduler)

func WithClock(c Clock) Option { return func(s *Scheduler) { s.clock = c } }

// WithLocation sets the fixed server zone slots are interpreted in.
func WithLocation(loc *time.Location) Option { return func(s *Scheduler) { s.loc = loc } }

func WithLogger(l *zerolog.Logger) Option { return func(s *Scheduler) { s.log = l } }

func WithNotice(n usecase.Notice) Option { return func(s *Scheduler) { s.notice = n } }

// WithReadTimeout bounds the reconfirmation read before each delivery.
func WithReadTimeout(d time.Duration) Option { return func(s *Scheduler) { s.readTimeout = d } }

// WithMaxSleep caps a single wait so wall-clock jumps and host suspend are noticed
// within d.
func WithMaxSleep(d time.Duration) Option { return func(s *Scheduler) { s.maxSleep = d } }

func NewScheduler(store repository.SettingsRepository, deliverer Deliverer, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:       store,
		deliverer:   deliverer,
		clock:       realClock{},
		loc:         time.UTC,
		readTimeout: 5 * time.Second,
		maxSleep:    time.Minute,
		timers:      make(map[int64]*activeTimer),
		users:       make(map[int64]*userGate),
		notice:      usecase.Notice{Text: "Reminder", FallbackFormat: "%s\n\n%s"},
	}
	for _, o := range opts {
		o(s)
	}
	if s.log == nil {
		s.log = logging.Nop()
	}
	l := s.log.With().Str("component", "ReminderScheduler").Logger()
	s.log = &l
	s.root, s.rootCancel = context.WithCancel(context.Background())
	return s
}

// lockUser takes the user's gate and returns its release.
func (s *Scheduler) lockUser(userID int64) (unlock func()) {
	s.mu.Lock()
	g, ok := s.users[userID]
	if !ok {
		g = &userGate{}
		s.users[userID] = g
	}
	g.refs++
	s.mu.Unlock()

	g.mu.Lock()
	return func() {
		g.mu.Unlock()
		s.mu.Lock()
		if g.refs--; g.refs == 0 {
			delete(s.users, userID)
		}
		s.mu.Unlock()
	}
}

// Start arms a timer for cfg, superseding any timer the user already has. The old
// timer is cancelled and has exited before the new one is installed.
func (s *Scheduler) Start(cfg *model.ReminderSettings) error {
	if cfg == nil || cfg.UserID == 0 {
		return domain.ErrInvalidArgument
	}
	if !cfg.FireTime.IsOffered() {
		return domain.ErrInvalidSlot
	}

	defer s.lockUser(cfg.UserID)()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.ErrSchedulerClosed
	}
	old := s.timers[cfg.UserID]
	delete(s.timers, cfg.UserID)
	s.mu.Unlock()

	if old != nil {
		old.cancel()
		<-old.done
		metrics.IncTimerEvent("superseded")
		s.log.Debug().Int64("user_id", cfg.UserID).Str("old_slot", old.view.Slot.String()).Msg("previous timer retired")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrSchedulerClosed
	}
	ctx, cancel := context.WithCancel(s.root)
	t := &activeTimer{
		view: Timer{
			UserID:   cfg.UserID,
			ChatID:   cfg.ChatID,
			Slot:     cfg.FireTime,
			NextFire: cfg.FireTime.Next(s.clock.Now(), s.loc),
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.timers[cfg.UserID] = t
	s.wg.Add(1)
	go s.run(ctx, t)

	metrics.IncTimerEvent("started")
	metrics.SetActiveTimers(len(s.timers))
	s.log.Info().Int64("user_id", cfg.UserID).Str("slot", cfg.FireTime.String()).Time("next_fire", t.view.NextFire).Msg("timer armed")
	return nil
}

// Stop cancels the user's timer and waits for it to exit. It reports whether a timer
// existed.
func (s *Scheduler) Stop(userID int64) bool {
	defer s.lockUser(userID)()

	s.mu.Lock()
	t := s.timers[userID]
	delete(s.timers, userID)
	n := len(s.timers)
	s.mu.Unlock()

	if t == nil {
		return false
	}
	t.cancel()
	<-t.done
	metrics.IncTimerEvent("stopped")
	metrics.SetActiveTimers(n)
	s.log.Info().Int64("user_id", userID).Msg("timer stopped")
	return true
}

// Restore arms a timer for every active configuration and returns how many were armed.
func (s *Scheduler) Restore(configs []*model.ReminderSettings) (int, error) {
	var (
		armed int
		errs  []error
	)
	for _, cfg := range configs {
		if cfg == nil || !cfg.Active {
			continue
		}
		if err := s.Start(cfg); err != nil {
			if errors.Is(err, domain.ErrSchedulerClosed) {
				return armed, err
			}
			errs = append(errs, fmt.Errorf("user %d: %w", cfg.UserID, err))
			continue
		}
		armed++
	}
	s.log.Info().Int("armed", armed).Int("failed", len(errs)).Msg("timers restored")
	return armed, errors.Join(errs...)
}

// RestoreFromStore loads every active configuration and restores it.
func (s *Scheduler) RestoreFromStore(ctx context.Context) (int, error) {
	configs, err := s.store.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active settings: %w", err)
	}
	return s.Restore(configs)
}

// ShutdownAll cancels every timer and waits for all of them. Once it returns no
// further deliveries happen and Start fails with ErrSchedulerClosed.
func (s *Scheduler) ShutdownAll() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	n := len(s.timers)
	s.timers = make(map[int64]*activeTimer)
	s.mu.Unlock()

	s.rootCancel()
	s.wg.Wait()
	metrics.SetActiveTimers(0)
	s.log.Info().Int("timers", n).Msg("scheduler shut down")
}

// Active returns the user's armed timer, if any.
func (s *Scheduler) Active(userID int64) (Timer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.timers[userID]
	if !ok {
		return Timer{}, false
	}
	return t.view, true
}

// NextFire returns when the user's timer fires next.
func (s *Scheduler) NextFire(userID int64) (time.Time, bool) {
	t, ok := s.Active(userID)
	return t.NextFire, ok
}

func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Snapshot lists the armed timers ordered by user id.
func (s *Scheduler) Snapshot() []Timer {
	s.mu.Lock()
	out := make([]Timer, 0, len(s.timers))
	for _, t := range s.timers {
		out = append(out, t.view)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

func (s *Scheduler) run(ctx context.Context, t *activeTimer) {
	defer s.wg.Done()
	defer close(t.done)

	s.mu.Lock()
	next := t.view.NextFire
	s.mu.Unlock()

	for {
		if !s.sleepUntil(ctx, next) {
			return
		}
		s.fire(ctx, t.view.UserID, t.view.Slot)
		if ctx.Err() != nil {
			return
		}

		following := t.view.Slot.After(next, s.loc)
		if now := s.clock.Now(); !following.After(now) {
			following = t.view.Slot.Next(now, s.loc)
		}
		next = following

		s.mu.Lock()
		t.view.NextFire = next
		s.mu.Unlock()
	}
}

// sleepUntil waits for at or cancellation and reports whether at was reached.
func (s *Scheduler) sleepUntil(ctx context.Context, at time.Time) bool {
	for {
		if ctx.Err() != nil {
			return false
		}
		d := at.Sub(s.clock.Now())
		if d <= 0 {
			return true
		}
		if s.maxSleep > 0 && d > s.maxSleep {
			d = s.maxSleep
		}
		tm := s.clock.NewTimer(d)
		select {
		case <-ctx.Done():
			tm.Stop()
			return false
		case <-tm.C():
		}
	}
}

func (s *Scheduler) fire(ctx context.Context, userID int64, slot model.Slot) {
	ctx = logging.WithTraceID(logging.WithUserID(ctx, userID), logging.NewTraceID())
	log := logging.With(ctx, s.log)
	defer func() {
		if r := recover(); r != nil {
			metrics.IncDelivery(usecase.KindScheduled, "panic")
			log.Error().Interface("panic", r).Msg("delivery panicked; timer continues")
		}
	}()

	rctx, cancel := context.WithTimeout(ctx, s.readTimeout)
	cur, err := s.store.Get(rctx, userID)
	cancel()
	switch {
	case ctx.Err() != nil:
		return
	case err != nil:
		metrics.IncReconfirmSkip("read_error")
		log.Warn().Err(err).Msg("reconfirmation read failed; skipping this cycle")
		return
	case !cur.Active:
		metrics.IncReconfirmSkip("inactive")
		log.Info().Msg("reminder deactivated; skipping")
		return
	case cur.FireTime != slot:
		metrics.IncReconfirmSkip("slot_changed")
		log.Info().Str("slot", slot.String()).Str("persisted", cur.FireTime.String()).Msg("reminder time changed; skipping")
		return
	}

	s.deliverer.Deliver(ctx, cur.ChatID, s.notice)
}
