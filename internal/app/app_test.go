package app

import (
	"context"
	"errors"
	gosync "sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/pmnotify/internal/events"
	"github.com/nhle/pmnotify/internal/model"
	"github.com/nhle/pmnotify/internal/resolve"
	appsync "github.com/nhle/pmnotify/internal/sync"
	"github.com/nhle/pmnotify/internal/ui/command"
)

type stubAPI struct {
	mu     gosync.Mutex
	list   []model.Notification
	marked []string
}

func (s *stubAPI) ListNotifications(ctx context.Context) ([]model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Notification(nil), s.list...), nil
}

func (s *stubAPI) MarkRead(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marked = append(s.marked, id)
	return nil
}

func (s *stubAPI) MarkAllRead(ctx context.Context) error { return nil }

func (s *stubAPI) DeleteNotification(ctx context.Context, id string) error { return nil }

type stubSessions struct {
	token    string
	logouts  int
	loginErr error
}

func (s *stubSessions) Token() string { return s.token }

func (s *stubSessions) Login(token string) error {
	if s.loginErr != nil {
		return s.loginErr
	}
	s.token = token
	return nil
}

func (s *stubSessions) Logout() error {
	s.logouts++
	s.token = ""
	return nil
}

type stubEntities struct{}

func (stubEntities) GetTask(ctx context.Context, id string) (*model.Task, error) {
	return &model.Task{ID: id, Project: "p7"}, nil
}

func (stubEntities) GetComment(ctx context.Context, id string) (*model.Comment, error) {
	return nil, errors.New("not used")
}

func (stubEntities) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	return nil, errors.New("not used")
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// newRunningModel returns a sized model whose syncer has applied one
// fetch of list.
func newRunningModel(t *testing.T, list ...model.Notification) (Model, *stubAPI, *appsync.Syncer) {
	t.Helper()
	api := &stubAPI{list: list}
	syncer := appsync.New(appsync.Options{
		API:          api,
		Resolver:     resolve.New(stubEntities{}),
		PollInterval: time.Hour,
		PopupTTL:     time.Hour,
		Logger:       zerolog.Nop(),
	})
	require.True(t, syncer.Start("opaque-token"))
	t.Cleanup(syncer.Stop)
	require.Eventually(t, func() bool {
		return !syncer.Snapshot().LastSync.IsZero()
	}, time.Second, 5*time.Millisecond)

	m := New(Options{
		Syncer:   syncer,
		Sessions: &stubSessions{token: "opaque-token"},
		Logger:   zerolog.Nop(),
	})
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	next, _ = next.Update(sessionCheckMsg{})
	return next.(Model), api, syncer
}

func notification(id string, read bool) model.Notification {
	return model.Notification{
		ID: id, Type: model.TypeTaskAssigned, RawType: "task_assigned",
		Message: "message " + id, Read: read, CreatedAt: time.Now(),
		RelatedTo: "t-" + id, OnModel: model.EntityTask,
	}
}

func TestHeaderShowsUnreadCount(t *testing.T) {
	m, _, _ := newRunningModel(t, notification("a", false), notification("b", false), notification("c", true))

	assert.Equal(t, ViewList, m.currentView)
	view := m.View()
	assert.Contains(t, view, "🔔 Notifications")
	assert.Contains(t, view, "[2 new]")
	assert.Len(t, m.snapshot.Popups, 2)
}

func TestNoSessionShowsLogin(t *testing.T) {
	syncer := appsync.New(appsync.Options{API: &stubAPI{}, Logger: zerolog.Nop()})
	sessions := &stubSessions{}
	m := New(Options{Syncer: syncer, Sessions: sessions, Logger: zerolog.Nop()})

	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	next, _ = next.Update(sessionCheckMsg{})
	got := next.(Model)
	assert.Equal(t, ViewLogin, got.currentView)
	assert.Equal(t, "signed out", got.syncStatus())

	sessions.token = "opaque"
	next, _ = got.Update(sessionCheckMsg{})
	assert.Equal(t, ViewList, next.(Model).currentView)
}

func TestLoginFailureShowsError(t *testing.T) {
	syncer := appsync.New(appsync.Options{API: &stubAPI{}, Logger: zerolog.Nop()})
	m := New(Options{
		Syncer:   syncer,
		Sessions: &stubSessions{loginErr: errors.New("keyring locked")},
		Logger:   zerolog.Nop(),
	})
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	next, _ = next.Update(sessionCheckMsg{})

	next, cmd := next.Update(loginDoneMsg{err: errors.New("keyring locked")})
	assert.NotNil(t, cmd)
	assert.Contains(t, next.(Model).View(), "keyring locked")
}

func TestDismissKeyClosesOldestPopup(t *testing.T) {
	m, _, syncer := newRunningModel(t, notification("a", false), notification("b", false))
	require.Equal(t, []string{"a", "b"}, syncer.PopupIDs())

	_, cmd := m.Update(runes("x"))
	assert.Nil(t, cmd)
	assert.Equal(t, []string{"b"}, syncer.PopupIDs())
	assert.Equal(t, 2, syncer.Snapshot().UnreadCount)
}

func TestMarkReadKeyMarksSelected(t *testing.T) {
	m, api, syncer := newRunningModel(t, notification("a", false), notification("b", false))

	_, cmd := m.Update(runes("m"))
	require.NotNil(t, cmd)
	msg := cmd()
	done, ok := msg.(actionDoneMsg)
	require.True(t, ok)
	assert.NoError(t, done.err)

	assert.Equal(t, []string{"a"}, api.marked)
	assert.Equal(t, 1, syncer.Snapshot().UnreadCount)
}

func TestOpenPopupNavigatesToProject(t *testing.T) {
	m, _, syncer := newRunningModel(t, notification("a", false))

	_, cmd := m.Update(runes("o"))
	require.NotNil(t, cmd)
	opened, ok := cmd().(openedMsg)
	require.True(t, ok)
	require.NoError(t, opened.err)
	assert.Equal(t, "p7", opened.projectID)
	assert.Empty(t, syncer.PopupIDs())

	next, _ := m.Update(opened)
	got := next.(Model)
	assert.Equal(t, "p7", got.lastProject)
	assert.Contains(t, got.statusText(), "p7")
}

func TestRefreshKeyPublishesHint(t *testing.T) {
	m, _, _ := newRunningModel(t)
	var got []string
	m.refresh.Subscribe(func(ev events.RefreshRequested) { got = append(got, ev.Reason) })

	m.Update(runes("r"))
	assert.Equal(t, []string{"key"}, got)
}

func TestCommandPalette(t *testing.T) {
	m, _, _ := newRunningModel(t)

	next, _ := m.Update(runes(":"))
	assert.Equal(t, ViewCommand, next.(Model).currentView)

	next, _ = next.Update(command.CommandMsg("frobnicate"))
	got := next.(Model)
	assert.Equal(t, ViewList, got.currentView)
	assert.True(t, got.toastIsErr)
	assert.Contains(t, got.toast, "frobnicate")

	next, _ = got.Update(command.CommandMsg(command.Help))
	assert.Equal(t, ViewHelp, next.(Model).currentView)

	_, cmd := got.Update(command.CommandMsg(command.Quit))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestToastExpiresOnlyForLatest(t *testing.T) {
	m, _, _ := newRunningModel(t)
	m.showToast("first", false)
	m.showToast("second", false)

	next, _ := m.Update(toastExpiredMsg{seq: 1})
	assert.Equal(t, "second", next.(Model).toast)
	next, _ = next.Update(toastExpiredMsg{seq: 2})
	assert.Empty(t, next.(Model).toast)
}

func TestCtrlCQuitsFromAnyView(t *testing.T) {
	m, _, _ := newRunningModel(t)
	m.currentView = ViewLogin

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}
