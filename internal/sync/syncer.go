package sync

import (
	"context"
	"errors"
	gosync "sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/pmnotify/internal/api"
	"github.com/nhle/pmnotify/internal/events"
	"github.com/nhle/pmnotify/internal/model"
	"github.com/nhle/pmnotify/internal/resolve"
	"github.com/nhle/pmnotify/internal/session"
)

var (
	// ErrNotRunning is returned by Tick when sync has not been started.
	ErrNotRunning = errors.New("notification sync is not running")

	// ErrSkipped is returned by Tick when a previous tick is still in
	// flight. Skipped ticks are not queued.
	ErrSkipped = errors.New("tick skipped: previous fetch still in flight")

	// ErrUnknownNotification is returned by Open for an id that is not
	// in the local view.
	ErrUnknownNotification = errors.New("unknown notification")
)

const (
	defaultPollInterval = 30 * time.Second
	defaultPopupTTL     = 5 * time.Second
)

// Options configures a Syncer.
type Options struct {
	// API is the upstream notification API. Required.
	API api.NotificationAPI

	// Resolver maps notifications to projects for Open. Optional.
	Resolver *resolve.Resolver

	// OnSessionExpired is called when the server rejects the session
	// token. The syncer has already stopped and discarded its state.
	OnSessionExpired func()

	// PollInterval defaults to 30s.
	PollInterval time.Duration

	// PopupTTL defaults to 5s.
	PopupTTL time.Duration

	// RollbackOnFailure reverts optimistic mutations whose server call
	// failed.
	RollbackOnFailure bool

	Logger zerolog.Logger
}

// Syncer keeps a local view of the user's notifications in step with
// the server and surfaces newly arrived unread ones as popups.
type Syncer struct {
	api       api.NotificationAPI
	resolver  *resolve.Resolver
	onExpired func()
	interval  time.Duration
	rollback  bool
	logger    zerolog.Logger
	updates   chan struct{}

	mu       gosync.Mutex
	state    state
	popups   *popupQueue
	running  bool
	stopCh   chan struct{}
	gen      uint64 // bumped by Start and Reset; older results are dropped
	issued   uint64 // last issued tick sequence
	applied  uint64 // last applied tick sequence
	inFlight bool
	lastSync time.Time
	lastErr  error
}

// New creates a stopped Syncer.
func New(opts Options) *Syncer {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.PopupTTL <= 0 {
		opts.PopupTTL = defaultPopupTTL
	}

	s := &Syncer{
		api:       opts.API,
		resolver:  opts.Resolver,
		onExpired: opts.OnSessionExpired,
		interval:  opts.PollInterval,
		rollback:  opts.RollbackOnFailure,
		logger:    opts.Logger,
		updates:   make(chan struct{}, 1),
		state:     newState(),
	}
	s.popups = newPopupQueue(opts.PopupTTL, s.expirePopup)
	return s
}

// Start begins periodic synchronization: one tick immediately, then one
// every poll interval. It does nothing and returns false when token is
// not a usable session token. Starting a running Syncer is a no-op.
func (s *Syncer) Start(token string) bool {
	if !session.Valid(token, time.Now()) {
		s.logger.Debug().Msg("no valid session; sync not started")
		return false
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return true
	}
	s.running = true
	s.gen++
	s.inFlight = false
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	s.logger.Info().Dur("interval", s.interval).Msg("notification sync started")
	go s.loop(stopCh)
	s.notify()
	return true
}

// Stop cancels the schedule. A fetch already in flight is allowed to
// finish and is applied if it is still the newest. Stop is idempotent.
func (s *Syncer) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	close(s.stopCh)
	s.running = false
	s.mu.Unlock()

	s.logger.Info().Msg("notification sync stopped")
	s.notify()
}

// Reset discards the local view, popups included. Results of fetches
// issued before Reset are dropped.
func (s *Syncer) Reset() {
	s.mu.Lock()
	s.gen++
	s.inFlight = false
	s.state = newState()
	s.popups.clear()
	s.lastErr = nil
	s.lastSync = time.Time{}
	s.mu.Unlock()

	s.notify()
}

// Running reports whether periodic sync is active.
func (s *Syncer) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Updates delivers a signal after every state change. Signals coalesce:
// a consumer reads Snapshot after each one.
func (s *Syncer) Updates() <-chan struct{} {
	return s.updates
}

// Snapshot returns a copy of the current state.
func (s *Syncer) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Notifications: s.state.list(),
		UnreadCount:   s.state.unread,
		Popups:        s.popups.snapshot(),
		Running:       s.running,
		LastSync:      s.lastSync,
		Err:           s.lastErr,
	}
}

// PopupIDs returns the ids in the popup queue, oldest first.
func (s *Syncer) PopupIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.popups.ids()
}

// Refresh runs an out-of-band tick in the background. It is a hint: if
// a fetch is in flight or sync is stopped, nothing happens.
func (s *Syncer) Refresh(reason string) {
	go func() {
		err := s.Tick(context.Background())
		switch {
		case errors.Is(err, ErrSkipped), errors.Is(err, ErrNotRunning):
			s.logger.Debug().Str("reason", reason).Err(err).Msg("refresh not run")
		case err == nil:
			s.logger.Debug().Str("reason", reason).Msg("refreshed")
		}
	}()
}

// Tick fetches the full notification list and reconciles the local view
// with it. At most one tick is in flight at a time; a tick attempted
// meanwhile returns ErrSkipped. Fetch errors are logged and returned;
// the previous state is kept.
func (s *Syncer) Tick(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	if s.inFlight {
		s.mu.Unlock()
		s.logger.Debug().Msg("tick skipped: fetch in flight")
		return ErrSkipped
	}
	s.inFlight = true
	s.issued++
	seq, gen := s.issued, s.gen
	s.mu.Unlock()

	fetched, err := s.api.ListNotifications(ctx)
	if err != nil {
		s.fail(seq, gen, err)
		return err
	}

	s.apply(seq, gen, fetched)
	return nil
}

// loop runs the periodic schedule until stopCh is closed.
func (s *Syncer) loop(stopCh chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	go s.Tick(context.Background())

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			go s.Tick(context.Background())
		}
	}
}

// apply installs a fetch result if it is still the newest one for the
// current run.
func (s *Syncer) apply(seq, gen uint64, fetched []model.Notification) {
	s.mu.Lock()

	if gen == s.gen {
		s.inFlight = false
	}
	if gen != s.gen || seq <= s.applied {
		s.mu.Unlock()
		s.logger.Debug().Uint64("seq", seq).Msg("discarding stale fetch result")
		return
	}
	s.applied = seq

	fetched = s.dedupe(fetched)
	fetched = s.state.replay(seq, fetched)

	previous := s.state.all
	all := make(map[string]model.Notification, len(fetched))
	order := make([]string, 0, len(fetched))
	var newlyUnread []model.Notification
	for _, n := range fetched {
		all[n.ID] = n
		order = append(order, n.ID)
		if _, known := previous[n.ID]; !known && !n.Read {
			newlyUnread = append(newlyUnread, n)
		}
	}

	s.state.all = all
	s.state.order = order
	s.state.unread = s.state.countUnread()
	s.state.trimJournal(seq)

	now := time.Now()
	for _, n := range newlyUnread {
		s.popups.add(n, now)
	}

	s.lastSync = now
	s.lastErr = nil
	unread := s.state.unread
	s.mu.Unlock()

	s.logger.Debug().
		Uint64("seq", seq).
		Int("total", len(fetched)).
		Int("unread", unread).
		Int("new", len(newlyUnread)).
		Msg("notifications reconciled")
	s.notify()
}

// dedupe returns a copy of fetched keeping the first occurrence of each
// id. The caller's slice is never written.
func (s *Syncer) dedupe(fetched []model.Notification) []model.Notification {
	seen := make(map[string]bool, len(fetched))
	out := make([]model.Notification, 0, len(fetched))
	for _, n := range fetched {
		if seen[n.ID] {
			s.logger.Warn().Str("id", n.ID).Msg("duplicate notification id in fetch result")
			continue
		}
		seen[n.ID] = true
		out = append(out, n)
	}
	return out
}

// fail records a fetch error. The previous state is kept.
func (s *Syncer) fail(seq, gen uint64, err error) {
	s.mu.Lock()
	current := gen == s.gen
	if current {
		s.inFlight = false
		s.lastErr = err
	}
	s.mu.Unlock()

	if api.IsAuthError(err) {
		s.logger.Warn().Err(err).Msg("session rejected by server")
		if current {
			s.expireSession()
		}
		return
	}

	s.logger.Error().Stack().Err(err).Uint64("seq", seq).Msg("fetching notifications")
	s.notify()
}

// expireSession stops sync, drops the local view, and hands off to the
// application's session-expiry handler.
func (s *Syncer) expireSession() {
	s.Stop()
	s.Reset()
	if s.onExpired != nil {
		s.onExpired()
	}
}

// expirePopup is the popup timeout transition.
func (s *Syncer) expirePopup(e *popupEntry) {
	s.mu.Lock()
	removed := s.popups.removeEntry(e)
	s.mu.Unlock()

	if removed {
		s.notify()
	}
}

// notify signals consumers without blocking.
func (s *Syncer) notify() {
	select {
	case s.updates <- struct{}{}:
	default:
	}
}

// BindSession starts and stops sync as the session comes and goes. The
// current session is evaluated immediately. A session end also discards
// the local view. The returned function unbinds.
func (s *Syncer) BindSession(p session.Provider) func() {
	evaluate := func(token string) {
		if token != "" && s.Start(token) {
			return
		}
		s.Stop()
		s.Reset()
	}

	unsubscribe := p.Subscribe(func(ev session.Event) {
		s.logger.Info().
			Str("reason", ev.Reason).
			Bool("active", ev.Active()).
			Msg("session changed")
		if ev.Active() && s.Running() {
			// A different user may have logged in; start over.
			s.Stop()
			s.Reset()
		}
		evaluate(ev.Token)
	})

	evaluate(p.Token())
	return unsubscribe
}

// BindRefresh runs an out-of-band tick for every refresh hint on bus.
func (s *Syncer) BindRefresh(bus *events.Bus[events.RefreshRequested]) func() {
	return bus.Subscribe(func(ev events.RefreshRequested) {
		s.Refresh(ev.Reason)
	})
}
