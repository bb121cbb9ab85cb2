package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/nhle/pmnotify/internal/events"
)

// stampFile is touched on every login and logout. Other processes watch
// it to learn that the stored token changed.
const stampFile = "session.stamp"

// Source says where a session change came from.
type Source int

const (
	// SourceLocal is a login/logout in this process.
	SourceLocal Source = iota
	// SourceStorage is a change to the stored token seen through the
	// stamp file, usually made by another process.
	SourceStorage
)

// Event reports that the session token may have changed.
type Event struct {
	Token  string
	Source Source
	// Reason is "login", "logout", "expired" or "storage".
	Reason string
}

// Active reports whether the event leaves a session in place.
func (e Event) Active() bool { return e.Token != "" }

// Provider is the session capability the sync engine depends on.
type Provider interface {
	// Token returns the current session token, or "" when logged out.
	Token() string
	// Subscribe registers fn for session changes and returns an
	// unsubscribe function.
	Subscribe(fn func(Event)) func()
}

// Manager owns the stored session token and fans out change events from
// both the local process and the storage stamp.
type Manager struct {
	store     TokenStore
	stampPath string
	bus       events.Bus[Event]
	logger    zerolog.Logger

	mu    sync.Mutex
	token string
}

// NewManager loads the current token from store. dir is where the stamp
// file lives.
func NewManager(store TokenStore, dir string, logger zerolog.Logger) (*Manager, error) {
	m := &Manager{
		store:     store,
		stampPath: filepath.Join(dir, stampFile),
		logger:    logger,
	}
	token, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("loading session token: %w", err)
	}
	m.token = token
	return m, nil
}

// Token returns the cached session token.
func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// Subscribe registers fn for session change events.
func (m *Manager) Subscribe(fn func(Event)) func() {
	return m.bus.Subscribe(fn)
}

// Login stores token and announces the new session.
func (m *Manager) Login(token string) error {
	if err := m.store.Save(token); err != nil {
		return err
	}
	m.set(token)
	m.touchStamp()
	m.bus.Publish(Event{Token: token, Source: SourceLocal, Reason: "login"})
	return nil
}

// Logout removes the stored token and announces the end of the session.
func (m *Manager) Logout() error {
	return m.end("logout")
}

// Expire ends the session after the server rejected the token. It is the
// application-wide session-expiry handler.
func (m *Manager) Expire() {
	if err := m.end("expired"); err != nil {
		m.logger.Error().Err(err).Msg("clearing expired session")
	}
}

func (m *Manager) end(reason string) error {
	err := m.store.Clear()
	m.set("")
	m.touchStamp()
	m.bus.Publish(Event{Source: SourceLocal, Reason: reason})
	return err
}

func (m *Manager) set(token string) {
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
}

// touchStamp writes the current time to the stamp file. Failure only
// costs other processes the change signal, so it is logged, not returned.
func (m *Manager) touchStamp() {
	if err := os.MkdirAll(filepath.Dir(m.stampPath), 0o700); err != nil {
		m.logger.Warn().Err(err).Msg("creating session directory")
		return
	}
	stamp := strconv.FormatInt(time.Now().UnixNano(), 10)
	if err := os.WriteFile(m.stampPath, []byte(stamp), 0o600); err != nil {
		m.logger.Warn().Err(err).Str("path", m.stampPath).Msg("writing session stamp")
	}
}

// Reload re-reads the stored token and publishes a storage event if it
// differs from the cached one.
func (m *Manager) Reload() {
	token, err := m.store.Load()
	if err != nil {
		m.logger.Warn().Err(err).Msg("reloading session token")
		return
	}

	m.mu.Lock()
	changed := token != m.token
	m.token = token
	m.mu.Unlock()

	if changed {
		m.logger.Info().Bool("active", token != "").Msg("session changed in storage")
		m.bus.Publish(Event{Token: token, Source: SourceStorage, Reason: "storage"})
	}
}

// Watch follows the stamp file until ctx is done and reloads the token
// whenever it changes. The directory is watched rather than the file so
// that the watch survives the file being replaced or removed.
func (m *Manager) Watch(ctx context.Context) error {
	dir := filepath.Dir(m.stampPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating session directory %s: %w", dir, err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating session watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != stampFile {
					continue
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Remove) {
					m.Reload()
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				m.logger.Warn().Err(err).Msg("session watcher")
			}
		}
	}()

	return nil
}
