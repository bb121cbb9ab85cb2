// Package login is the sign-in form shown while no session is active.
package login

import (
	"errors"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/pmnotify/internal/session"
	"github.com/nhle/pmnotify/internal/theme"
)

// SubmittedMsg carries the token the user entered.
type SubmittedMsg struct {
	Token string
}

// CancelledMsg is sent when the user aborts the form.
type CancelledMsg struct{}

// Model wraps a huh form asking for a session token.
type Model struct {
	form   *huh.Form
	token  *string
	err    string
	width  int
	height int
}

// New creates a login form.
func New(width, height int) Model {
	m := Model{width: width, height: height}
	m.form = m.buildForm()
	return m
}

// buildForm creates a form that writes to a fresh token value shared by
// every copy of Model.
func (m *Model) buildForm() *huh.Form {
	m.token = new(string)
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Session token").
				Description("Paste the token issued by the project-management server").
				EchoMode(huh.EchoModePassword).
				Value(m.token).
				Validate(validateToken),
		),
	).WithWidth(m.formWidth()).WithShowHelp(true)
}

func validateToken(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return errors.New("token is required")
	}
	if !session.Valid(s, time.Now()) {
		return errors.New("token is malformed or expired")
	}
	return nil
}

func (m Model) formWidth() int {
	return min(max(m.width-8, 20), 72)
}

// Init starts the form.
func (m Model) Init() tea.Cmd {
	return m.form.Init()
}

// Update drives the form and emits SubmittedMsg or CancelledMsg when it
// finishes.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		token := strings.TrimSpace(*m.token)
		return m.reset(), func() tea.Msg { return SubmittedMsg{Token: token} }
	case huh.StateAborted:
		return m.reset(), func() tea.Msg { return CancelledMsg{} }
	}
	return m, cmd
}

// reset prepares a fresh form for the next attempt.
func (m Model) reset() Model {
	m.form = m.buildForm()
	return m
}

// SetError shows a message above the form, e.g. a rejected token.
func (m *Model) SetError(msg string) {
	m.err = msg
}

// View renders the form.
func (m Model) View() string {
	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1).
		Render("Sign in to receive notifications")

	parts := []string{title}
	if m.err != "" {
		parts = append(parts, theme.ToastStyle.Render(m.err), "")
	}
	parts = append(parts, m.form.View())

	return theme.PanelStyle.
		Width(m.width - 4).
		Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

// SetSize updates the form dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.form = m.form.WithWidth(m.formWidth())
}
