package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/pmnotify/internal/theme"
)

// minListHeight keeps a few list rows visible however many popups are up.
const minListHeight = 3

// Layout splits the terminal into the header bar, the popup stack, the
// notification list and the status bar.
type Layout struct {
	Width  int
	Height int
}

// NewLayout creates a Layout for a terminal of the given size.
func NewLayout(width, height int) Layout {
	return Layout{Width: width, Height: height}
}

// ContentWidth is the width available to popups and the list.
func (l Layout) ContentWidth() int {
	return l.Width
}

// ContentHeight is the height between the header and status bars.
func (l Layout) ContentHeight() int {
	return max(l.Height-2, 0)
}

// ListHeight is what remains for the list below popupHeight lines of
// popups.
func (l Layout) ListHeight(popupHeight int) int {
	return max(l.ContentHeight()-popupHeight, minListHeight)
}

// Header is the content of the top bar.
type Header struct {
	Unread int
	Status string
	// Warn highlights the status, e.g. when the server is unreachable.
	Warn bool
}

// BadgeText is the unread badge label, or "" when nothing is unread.
func BadgeText(unread int) string {
	if unread <= 0 {
		return ""
	}
	return fmt.Sprintf("[%d new]", unread)
}

// RenderHeader draws the bell, the unread badge and the sync status.
func (l Layout) RenderHeader(h Header) string {
	left := theme.HeaderStyle.Render("🔔 Notifications")
	if badge := BadgeText(h.Unread); badge != "" {
		left = lipgloss.JoinHorizontal(lipgloss.Top, left, theme.BadgeStyle.Render(badge))
	}

	statusStyle := theme.HeaderStyle
	if h.Warn {
		statusStyle = statusStyle.Foreground(theme.ColorYellow)
	}
	right := statusStyle.Render(h.Status)

	return fill(theme.HeaderStyle, l.Width, left, right)
}

// RenderStatusBar draws the bottom bar.
func (l Layout) RenderStatusBar(text string) string {
	return fill(theme.StatusBarStyle, l.Width, theme.StatusBarStyle.Render(text), "")
}

// Compose stacks the frame parts, skipping an empty popup stack.
func (l Layout) Compose(header, popups, list, status string) string {
	parts := []string{header}
	if popups != "" {
		parts = append(parts, popups)
	}
	parts = append(parts, list, status)
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

// fill pads between left and right with the bar background so the bar
// spans width.
func fill(bar lipgloss.Style, width int, left, right string) string {
	gap := max(width-lipgloss.Width(left)-lipgloss.Width(right), 0)
	filler := lipgloss.NewStyle().
		Background(bar.GetBackground()).
		Render(strings.Repeat(" ", gap))
	return lipgloss.JoinHorizontal(lipgloss.Top, left, filler, right)
}
