package notiflist

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/pmnotify/internal/model"
	"github.com/nhle/pmnotify/internal/theme"
)

// Item wraps a model.Notification so it can be used in a bubbles/list.
type Item struct {
	Notification model.Notification
}

// FilterValue returns the string used for fuzzy filtering.
func (i Item) FilterValue() string { return i.Notification.Message }

// Title returns the notification message.
func (i Item) Title() string { return i.Notification.Message }

// Description returns the type and age of the notification.
func (i Item) Description() string {
	return TypeLabel(i.Notification) + " | " + relativeTime(i.Notification.CreatedAt)
}

// TypeLabel returns the display label for n's type. Unknown tags are
// shown verbatim.
func TypeLabel(n model.Notification) string {
	if n.Type == model.TypeUnknown {
		if n.RawType != "" {
			return n.RawType
		}
		return "notification"
	}
	return n.Type.String()
}

// ItemDelegate implements list.ItemDelegate for rendering notifications.
type ItemDelegate struct{}

// Height returns the number of lines each item takes.
func (d ItemDelegate) Height() int { return 1 }

// Spacing returns the number of blank lines between items.
func (d ItemDelegate) Spacing() int { return 0 }

// Update handles per-item messages (unused).
func (d ItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

// Render draws a single notification line.
func (d ItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	it, ok := item.(Item)
	if !ok {
		return
	}
	n := it.Notification

	marker := "●"
	if n.Read {
		marker = " "
	}

	icon := theme.TypeStyle(n.Type).Render(theme.TypeIcon(n.Type))
	entity := ""
	if n.OnModel != model.EntityNone {
		entity = theme.EntityLabelStyle(n.OnModel).Render(n.OnModel.String())
	}

	line := fmt.Sprintf("%s %s %s%s %s",
		marker, icon, n.Message, entity,
		theme.HelpStyle.Render(relativeTime(n.CreatedAt)),
	)

	switch {
	case index == m.Index():
		line = theme.SelectedItemStyle.Render(line)
	case n.Read:
		line = theme.ReadItemStyle.Render(line)
	default:
		line = theme.ListItemStyle.Render(line)
	}

	fmt.Fprint(w, line)
}

// relativeTime formats t as a short human-readable age.
func relativeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return fmt.Sprintf("%dw ago", int(d.Hours()/24/7))
	}
}
