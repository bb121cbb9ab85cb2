// Package help is the keyboard reference overlay.
package help

import (
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/pmnotify/internal/keys"
	"github.com/nhle/pmnotify/internal/theme"
	"github.com/nhle/pmnotify/internal/ui/command"
)

// section is one titled column of bindings.
type section struct {
	title    string
	bindings []key.Binding
}

// Model lists the key bindings by what they act on, followed by the
// palette commands.
type Model struct {
	sections []section
	help     help.Model
	width    int
	height   int
}

// New creates the help overlay for k.
func New(k *keys.KeyMap, width, height int) Model {
	groups := k.FullHelp()
	titles := []string{"List", "Notifications", "Popups & session"}

	sections := make([]section, 0, len(groups))
	for i, g := range groups {
		title := "More"
		if i < len(titles) {
			title = titles[i]
		}
		sections = append(sections, section{title: title, bindings: g})
	}

	return Model{
		sections: sections,
		help:     help.New(),
		width:    width,
		height:   height,
	}
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update is a no-op; the parent closes the overlay.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	return m, nil
}

// View renders one column per section and the command list below them.
func (m Model) View() string {
	heading := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)

	columns := make([]string, 0, len(m.sections))
	for _, s := range m.sections {
		body := m.help.FullHelpView([][]key.Binding{s.bindings})
		columns = append(columns, lipgloss.NewStyle().MarginRight(4).Render(
			lipgloss.JoinVertical(lipgloss.Left, heading.Render(s.title), body),
		))
	}

	commands := theme.HelpStyle.Render(": " + strings.Join(command.Commands, "  "))

	content := lipgloss.JoinVertical(lipgloss.Left,
		heading.MarginBottom(1).Render("Keyboard Shortcuts"),
		lipgloss.JoinHorizontal(lipgloss.Top, columns...),
		"",
		heading.Render("Commands"),
		commands,
	)

	return theme.PanelStyle.
		Width(max(m.width-4, 0)).
		Height(max(m.height-4, 0)).
		Render(content)
}

// SetSize updates the overlay dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.help.Width = max(width-8, 0)
}
