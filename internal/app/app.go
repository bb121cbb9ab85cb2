package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/nhle/pmnotify/internal/events"
	"github.com/nhle/pmnotify/internal/keys"
	"github.com/nhle/pmnotify/internal/resolve"
	appsync "github.com/nhle/pmnotify/internal/sync"
	"github.com/nhle/pmnotify/internal/theme"
	"github.com/nhle/pmnotify/internal/ui"
	"github.com/nhle/pmnotify/internal/ui/command"
	helpview "github.com/nhle/pmnotify/internal/ui/help"
	"github.com/nhle/pmnotify/internal/ui/login"
	"github.com/nhle/pmnotify/internal/ui/notiflist"
	"github.com/nhle/pmnotify/internal/ui/popups"
)

const toastDuration = 4 * time.Second

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewList ViewState = iota
	ViewHelp
	ViewCommand
	ViewLogin
)

// Sessions is the session capability the UI drives.
type Sessions interface {
	Token() string
	Login(token string) error
	Logout() error
}

// Options wires the application model to its collaborators.
type Options struct {
	Syncer   *appsync.Syncer
	Sessions Sessions
	Refresh  *events.Bus[events.RefreshRequested]
	Logger   zerolog.Logger
}

// Model is the root Bubble Tea model: header with the unread badge, popup
// stack, notification list, and the help, command and login overlays.
type Model struct {
	currentView ViewState
	layout      ui.Layout
	keys        *keys.KeyMap
	syncer      *appsync.Syncer
	sessions    Sessions
	refresh     *events.Bus[events.RefreshRequested]
	logger      zerolog.Logger

	list        notiflist.Model
	helpView    helpview.Model
	commandView command.Model
	loginView   login.Model

	snapshot   appsync.Snapshot
	clockArmed bool
	ready      bool

	toast      string
	toastIsErr bool
	toastSeq   int

	// lastProject is the most recent navigation target from Open.
	lastProject string
}

// New creates the root application model.
func New(opts Options) Model {
	k := keys.DefaultKeyMap()
	refresh := opts.Refresh
	if refresh == nil {
		refresh = &events.Bus[events.RefreshRequested]{}
	}
	return Model{
		currentView: ViewList,
		layout:      ui.NewLayout(80, 24),
		keys:        k,
		syncer:      opts.Syncer,
		sessions:    opts.Sessions,
		refresh:     refresh,
		logger:      opts.Logger,
		list:        notiflist.New(80, 20),
		helpView:    helpview.New(k, 80, 24),
		commandView: command.New(80, 24),
		loginView:   login.New(80, 24),
	}
}

// Init waits for the first sync update and shows the login form when no
// session exists yet.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		waitForUpdate(m.syncer.Updates()),
		func() tea.Msg { return sessionCheckMsg{} },
	)
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		m.resize()
		var cmd tea.Cmd
		if m.currentView == ViewLogin {
			m.loginView, cmd = m.loginView.Update(msg)
		}
		return m, cmd

	case syncUpdatedMsg:
		next, cmd := m.applySnapshot()
		return next, tea.Batch(waitForUpdate(next.syncer.Updates()), cmd)

	case sessionCheckMsg:
		return m.applySnapshot()

	case clockMsg:
		m.clockArmed = false
		if len(m.snapshot.Popups) > 0 {
			m.clockArmed = true
			return m, clockTick()
		}
		return m, nil

	case actionDoneMsg:
		if msg.err != nil {
			cmd := m.showToast(fmt.Sprintf("%s failed: %v", msg.op, msg.err), true)
			return m, cmd
		}
		return m, nil

	case openedMsg:
		return m.handleOpened(msg)

	case toastExpiredMsg:
		if msg.seq == m.toastSeq {
			m.toast = ""
		}
		return m, nil

	case login.SubmittedMsg:
		return m, m.loginCmd(msg.Token)

	case login.CancelledMsg:
		return m, tea.Quit

	case loginDoneMsg:
		if msg.err != nil {
			m.loginView.SetError(msg.err.Error())
			return m, m.loginView.Init()
		}
		m.loginView.SetError("")
		return m, nil

	case command.CommandMsg:
		m.currentView = ViewList
		cmd := m.executeCommand(string(msg))
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m.updateActiveView(msg)
}

// applySnapshot reloads state from the syncer and switches between the
// login form and the list as the session comes and goes.
func (m Model) applySnapshot() (Model, tea.Cmd) {
	m.snapshot = m.syncer.Snapshot()
	cmds := []tea.Cmd{m.list.SetNotifications(m.snapshot.Notifications)}

	loggedIn := m.sessions.Token() != ""
	switch {
	case !loggedIn && m.currentView != ViewLogin:
		m.currentView = ViewLogin
		cmds = append(cmds, m.loginView.Init())
	case loggedIn && m.currentView == ViewLogin:
		m.currentView = ViewList
	}

	if len(m.snapshot.Popups) > 0 && !m.clockArmed {
		m.clockArmed = true
		cmds = append(cmds, clockTick())
	}

	m.resize()
	return m, tea.Batch(cmds...)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}

	switch m.currentView {
	case ViewLogin:
		var cmd tea.Cmd
		m.loginView, cmd = m.loginView.Update(msg)
		return m, cmd

	case ViewCommand:
		if key.Matches(msg, m.keys.Back) {
			m.currentView = ViewList
			return m, nil
		}
		var cmd tea.Cmd
		m.commandView, cmd = m.commandView.Update(msg)
		return m, cmd

	case ViewHelp:
		if key.Matches(msg, m.keys.Help) || key.Matches(msg, m.keys.Back) {
			m.currentView = ViewList
			return m, nil
		}
		if key.Matches(msg, m.keys.Quit) {
			return m, tea.Quit
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.currentView = ViewHelp
		return m, nil

	case key.Matches(msg, m.keys.Command):
		m.currentView = ViewCommand
		return m, tea.Batch(m.commandView.Focus(), m.commandView.Init())

	case key.Matches(msg, m.keys.Refresh):
		m.refresh.Publish(events.RefreshRequested{Reason: "key"})
		return m, nil

	case key.Matches(msg, m.keys.MarkRead):
		if n, ok := m.list.Selected(); ok && !n.Read {
			return m, m.markReadCmd(n.ID)
		}
		return m, nil

	case key.Matches(msg, m.keys.MarkAllRead):
		return m, m.markAllReadCmd()

	case key.Matches(msg, m.keys.Delete):
		if n, ok := m.list.Selected(); ok {
			return m, m.deleteCmd(n.ID)
		}
		return m, nil

	case key.Matches(msg, m.keys.DismissPopup):
		if id, ok := m.topPopup(); ok {
			m.syncer.DismissPopup(id)
		}
		return m, nil

	case key.Matches(msg, m.keys.OpenPopup):
		if id, ok := m.topPopup(); ok {
			return m, m.openCmd(id)
		}
		return m, nil

	case key.Matches(msg, m.keys.Open):
		if n, ok := m.list.Selected(); ok {
			return m, m.openCmd(n.ID)
		}
		return m, nil

	case key.Matches(msg, m.keys.Logout):
		return m, m.logoutCmd()
	}

	return m.updateActiveView(msg)
}

func (m Model) handleOpened(msg openedMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch {
	case msg.err == nil:
		m.lastProject = msg.projectID
		cmd = m.showToast("→ project "+msg.projectID, false)
	case errors.Is(msg.err, resolve.ErrNoTarget):
		cmd = m.showToast("nothing to open for this notification", false)
	default:
		cmd = m.showToast(fmt.Sprintf("could not open: %v", msg.err), true)
	}
	return m, cmd
}

// executeCommand handles a command string from the command palette.
func (m *Model) executeCommand(cmd string) tea.Cmd {
	switch cmd {
	case command.Refresh:
		m.refresh.Publish(events.RefreshRequested{Reason: "command"})
		return nil
	case command.ReadAll:
		return m.markAllReadCmd()
	case command.Logout:
		return m.logoutCmd()
	case command.Help:
		m.currentView = ViewHelp
		return nil
	case command.Quit:
		return tea.Quit
	default:
		return m.showToast("unknown command: "+cmd, true)
	}
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewList:
		m.list, cmd = m.list.Update(msg)
	case ViewHelp:
		m.helpView, cmd = m.helpView.Update(msg)
	case ViewCommand:
		m.commandView, cmd = m.commandView.Update(msg)
	case ViewLogin:
		m.loginView, cmd = m.loginView.Update(msg)
	}

	return m, cmd
}

// topPopup returns the popup the dismiss and open keys act on.
func (m Model) topPopup() (string, bool) {
	if len(m.snapshot.Popups) == 0 {
		return "", false
	}
	return m.snapshot.Popups[0].Notification.ID, true
}

func (m *Model) showToast(text string, isErr bool) tea.Cmd {
	m.toastSeq++
	m.toast = text
	m.toastIsErr = isErr
	seq := m.toastSeq
	return tea.Tick(toastDuration, func(time.Time) tea.Msg {
		return toastExpiredMsg{seq: seq}
	})
}

// resize shares the content area between the popup stack and the list.
func (m *Model) resize() {
	w := m.layout.ContentWidth()
	h := m.layout.ContentHeight()
	m.list.SetSize(w, m.layout.ListHeight(popups.Height(len(m.snapshot.Popups))))
	m.helpView.SetSize(w, h)
	m.commandView.SetSize(w, h)
	m.loginView.SetSize(w, h)
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	header := m.layout.RenderHeader(ui.Header{
		Unread: m.snapshot.UnreadCount,
		Status: m.syncStatus(),
		Warn:   m.snapshot.Err != nil,
	})
	statusBar := m.layout.RenderStatusBar(m.statusText())

	switch m.currentView {
	case ViewHelp:
		return m.layout.Compose(header, "", m.helpView.View(), statusBar)
	case ViewCommand:
		return m.layout.Compose(header, "", m.commandView.View(), statusBar)
	case ViewLogin:
		return m.layout.Compose(header, "", m.loginView.View(), statusBar)
	}

	stack := popups.Render(m.snapshot.Popups, m.layout.ContentWidth(), time.Now())
	return m.layout.Compose(header, stack, m.list.View(), statusBar)
}

// syncStatus returns a short string describing the sync state.
func (m Model) syncStatus() string {
	switch {
	case !m.snapshot.Running:
		return "signed out"
	case m.snapshot.Err != nil:
		return "⚠ server unreachable"
	case m.snapshot.LastSync.IsZero():
		return "syncing…"
	default:
		return "synced " + m.snapshot.LastSync.Format("15:04:05")
	}
}

// statusText is the toast when one is showing, else key hints.
func (m Model) statusText() string {
	if m.toast != "" {
		if m.toastIsErr {
			return theme.ToastStyle.Render(m.toast)
		}
		return theme.InfoToastStyle.Render(m.toast)
	}

	switch m.currentView {
	case ViewHelp:
		return "? close help | esc back"
	case ViewCommand:
		return "enter execute | tab complete | esc back"
	case ViewLogin:
		return "enter sign in | ctrl+c quit"
	default:
		bindings := m.keys.ShortHelp()
		parts := make([]string, 0, len(bindings))
		for _, b := range bindings {
			parts = append(parts, b.Help().Key+" "+b.Help().Desc)
		}
		hints := strings.Join(parts, " | ")
		if m.lastProject != "" {
			hints = "project " + m.lastProject + " | " + hints
		}
		return hints
	}
}
