package app

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// actionTimeout bounds one server call made on behalf of a key press.
const actionTimeout = 15 * time.Second

// syncUpdatedMsg is sent whenever the syncer reports a state change.
type syncUpdatedMsg struct{}

// sessionCheckMsg re-reads state without waiting for a sync signal.
type sessionCheckMsg struct{}

// clockMsg re-renders popup countdowns.
type clockMsg time.Time

// actionDoneMsg reports the outcome of a mutation.
type actionDoneMsg struct {
	op  string
	err error
}

// openedMsg carries the project an opened notification resolved to.
type openedMsg struct {
	projectID string
	err       error
}

type loginDoneMsg struct {
	err error
}

type toastExpiredMsg struct {
	seq int
}

// waitForUpdate blocks until the syncer signals a change.
func waitForUpdate(updates <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-updates
		return syncUpdatedMsg{}
	}
}

func clockTick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return clockMsg(t)
	})
}

func (m Model) markReadCmd(id string) tea.Cmd {
	s := m.syncer
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		return actionDoneMsg{op: "mark read", err: s.MarkAsRead(ctx, id)}
	}
}

func (m Model) markAllReadCmd() tea.Cmd {
	s := m.syncer
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		return actionDoneMsg{op: "mark all read", err: s.MarkAllAsRead(ctx)}
	}
}

func (m Model) deleteCmd(id string) tea.Cmd {
	s := m.syncer
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		return actionDoneMsg{op: "delete", err: s.DeleteNotification(ctx, id)}
	}
}

func (m Model) openCmd(id string) tea.Cmd {
	s := m.syncer
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		projectID, err := s.Open(ctx, id)
		return openedMsg{projectID: projectID, err: err}
	}
}

func (m Model) loginCmd(token string) tea.Cmd {
	sessions := m.sessions
	return func() tea.Msg {
		return loginDoneMsg{err: sessions.Login(token)}
	}
}

func (m Model) logoutCmd() tea.Cmd {
	sessions := m.sessions
	return func() tea.Msg {
		return actionDoneMsg{op: "log out", err: sessions.Logout()}
	}
}
