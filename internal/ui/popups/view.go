// Package popups renders the stack of newly arrived notifications.
package popups

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	appsync "github.com/nhle/pmnotify/internal/sync"
	"github.com/nhle/pmnotify/internal/theme"
	"github.com/nhle/pmnotify/internal/ui/notiflist"
)

// MaxVisible caps how many popups are drawn; the rest are summarized.
const MaxVisible = 3

// Height returns the number of terminal lines Render will use for n
// popups.
func Height(n int) int {
	if n == 0 {
		return 0
	}
	shown := min(n, MaxVisible)
	h := shown * 4 // border top, title, message, border bottom
	if n > shown {
		h++
	}
	return h
}

// Render draws popups oldest first. The first one is the target of the
// dismiss and open keys.
func Render(ps []appsync.Popup, width int, now time.Time) string {
	if len(ps) == 0 {
		return ""
	}

	inner := max(width-4, 10)
	var blocks []string
	for i, p := range ps {
		if i == MaxVisible {
			break
		}
		blocks = append(blocks, renderOne(p, inner, now, i == 0))
	}
	if extra := len(ps) - MaxVisible; extra > 0 {
		blocks = append(blocks, theme.HelpStyle.Render(fmt.Sprintf("  +%d more", extra)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, blocks...)
}

func renderOne(p appsync.Popup, width int, now time.Time, first bool) string {
	n := p.Notification
	icon := theme.TypeStyle(n.Type).Render(theme.TypeIcon(n.Type))
	title := fmt.Sprintf("%s %s", icon, notiflist.TypeLabel(n))

	remaining := int(math.Ceil(p.Deadline.Sub(now).Seconds()))
	countdown := theme.HelpStyle.Render(fmt.Sprintf("%ds", max(remaining, 0)))
	if first {
		countdown = theme.HelpStyle.Render("x close · o open · ") + countdown
	}

	gap := max(width-lipgloss.Width(title)-lipgloss.Width(countdown), 1)
	header := title + strings.Repeat(" ", gap) + countdown

	message := n.Message
	if lipgloss.Width(message) > width {
		message = truncate(message, width)
	}

	return theme.PopupStyle.Width(width + 2).Render(header + "\n" + message)
}

func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	if width <= 1 {
		return string(r[:width])
	}
	return string(r[:width-1]) + "…"
}
