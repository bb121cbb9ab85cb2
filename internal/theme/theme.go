package theme

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/pmnotify/internal/model"
)

// Adaptive color pairs (dark terminal value, light terminal value).
var (
	ColorBlue    = lipgloss.AdaptiveColor{Dark: "#5B9BD5", Light: "#2B6CB0"}
	ColorGreen   = lipgloss.AdaptiveColor{Dark: "#6BCB77", Light: "#2F855A"}
	ColorYellow  = lipgloss.AdaptiveColor{Dark: "#FFD93D", Light: "#B7791F"}
	ColorRed     = lipgloss.AdaptiveColor{Dark: "#FF6B6B", Light: "#C53030"}
	ColorOrange  = lipgloss.AdaptiveColor{Dark: "#FFA94D", Light: "#C05621"}
	ColorMagenta = lipgloss.AdaptiveColor{Dark: "#CC5DE8", Light: "#805AD5"}
	ColorCyan    = lipgloss.AdaptiveColor{Dark: "#66D9E8", Light: "#0987A0"}
	ColorGray    = lipgloss.AdaptiveColor{Dark: "#868E96", Light: "#718096"}
	ColorWhite   = lipgloss.AdaptiveColor{Dark: "#F8F9FA", Light: "#1A202C"}
	ColorSubtle  = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#CBD5E0"}
	ColorBorder  = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#E2E8F0"}
)

// HeaderStyle is used for the application title bar.
var HeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorWhite).
	Background(ColorBlue).
	Padding(0, 1)

// StatusBarStyle is used for the bottom status bar.
var StatusBarStyle = lipgloss.NewStyle().
	Foreground(ColorWhite).
	Background(ColorSubtle).
	Padding(0, 1)

// PanelStyle wraps full-screen overlays such as help and login.
var PanelStyle = lipgloss.NewStyle().
	Padding(1, 2).
	Border(lipgloss.RoundedBorder()).
	BorderForeground(ColorBorder)

// BadgeStyle renders the unread counter next to the bell.
var BadgeStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("#FFFFFF")).
	Background(ColorRed).
	Padding(0, 1)

// PopupStyle frames one popup in the stack.
var PopupStyle = lipgloss.NewStyle().
	Padding(0, 1).
	Border(lipgloss.RoundedBorder()).
	BorderForeground(ColorYellow)

// ToastStyle is used for transient error and info messages.
var ToastStyle = lipgloss.NewStyle().
	Foreground(ColorWhite).
	Background(ColorRed).
	Padding(0, 1)

// InfoToastStyle is ToastStyle for non-error messages.
var InfoToastStyle = ToastStyle.Background(ColorGreen)

// ListItemStyle is the base style for items in a list.
var ListItemStyle = lipgloss.NewStyle().
	PaddingLeft(2)

// SelectedItemStyle highlights the currently focused list item.
var SelectedItemStyle = lipgloss.NewStyle().
	PaddingLeft(1).
	Bold(true).
	Foreground(ColorBlue).
	Border(lipgloss.NormalBorder(), false, false, false, true).
	BorderForeground(ColorBlue)

// ReadItemStyle dims notifications that have been read.
var ReadItemStyle = lipgloss.NewStyle().
	PaddingLeft(2).
	Foreground(ColorGray)

// HelpStyle is used for keyboard shortcut hints and help text.
var HelpStyle = lipgloss.NewStyle().
	Foreground(ColorGray).
	Italic(true)

// BorderStyle provides a standard rounded border for panels.
var BorderStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(ColorBorder)

// TypeIcon returns the glyph shown next to a notification of type t.
func TypeIcon(t model.NotificationType) string {
	switch t {
	case model.TypeTaskAssigned:
		return "◆"
	case model.TypeTaskDue:
		return "⏰"
	case model.TypeTaskStatusUpdate:
		return "↻"
	case model.TypeNewComment:
		return "✎"
	case model.TypeNewDocument:
		return "▤"
	case model.TypeAddedToProject:
		return "+"
	case model.TypeAddedToDepartment:
		return "⌂"
	case model.TypeApprovalRequest:
		return "?"
	case model.TypeMention:
		return "@"
	case model.TypeMilestoneCreated:
		return "⚑"
	default:
		return "•"
	}
}

// TypeStyle returns a color-coded style for notification type t.
func TypeStyle(t model.NotificationType) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true)

	switch t {
	case model.TypeTaskAssigned, model.TypeAddedToProject, model.TypeAddedToDepartment:
		return base.Foreground(ColorBlue)
	case model.TypeTaskDue:
		return base.Foreground(ColorRed)
	case model.TypeTaskStatusUpdate:
		return base.Foreground(ColorYellow)
	case model.TypeNewComment, model.TypeMention:
		return base.Foreground(ColorMagenta)
	case model.TypeNewDocument:
		return base.Foreground(ColorCyan)
	case model.TypeApprovalRequest:
		return base.Foreground(ColorOrange)
	case model.TypeMilestoneCreated:
		return base.Foreground(ColorGreen)
	default:
		return base.Foreground(ColorGray)
	}
}

// EntityLabelStyle returns a color-coded style for the related entity kind.
func EntityLabelStyle(kind model.EntityKind) lipgloss.Style {
	base := lipgloss.NewStyle().Padding(0, 1)

	switch kind {
	case model.EntityProject:
		return base.Foreground(ColorGreen)
	case model.EntityTask:
		return base.Foreground(ColorBlue)
	case model.EntityComment:
		return base.Foreground(ColorMagenta)
	case model.EntityDocument:
		return base.Foreground(ColorCyan)
	default:
		return base.Foreground(ColorGray)
	}
}
