package theme

import "github.com/charmbracelet/lipgloss"

// Adaptive color pairs (dark terminal value, light terminal value).
var (
	ColorBlue   = lipgloss.AdaptiveColor{Dark: "#5B9BD5", Light: "#2B6CB0"}
	ColorGreen  = lipgloss.AdaptiveColor{Dark: "#6BCB77", Light: "#2F855A"}
	ColorYellow = lipgloss.AdaptiveColor{Dark: "#FFD93D", Light: "#B7791F"}
	ColorRed    = lipgloss.AdaptiveColor{Dark: "#FF6B6B", Light: "#C53030"}
	ColorGray   = lipgloss.AdaptiveColor{Dark: "#868E96", Light: "#718096"}
	ColorWhite  = lipgloss.AdaptiveColor{Dark: "#F8F9FA", Light: "#1A202C"}
	ColorBorder = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#E2E8F0"}
)

// HeaderStyle is used for the status panel title.
var HeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorWhite).
	Background(ColorBlue).
	Padding(0, 1)

// PanelStyle wraps the status panel.
var PanelStyle = lipgloss.NewStyle().
	Padding(0, 1).
	Border(lipgloss.RoundedBorder()).
	BorderForeground(ColorBorder)

// LabelStyle is used for field names.
var LabelStyle = lipgloss.NewStyle().
	Foreground(ColorGray).
	Width(16)

// HelpStyle is used for hints and secondary text.
var HelpStyle = lipgloss.NewStyle().
	Foreground(ColorGray).
	Italic(true)

// WarningStyle highlights problems the user must act on.
var WarningStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorYellow)

// StateStyle returns a color-coded style for an on/off state.
func StateStyle(ok bool) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true)
	if ok {
		return base.Foreground(ColorGreen)
	}
	return base.Foreground(ColorRed)
}

// UnreadStyle returns a badge style; zero unread is rendered dim.
func UnreadStyle(count int) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	if count == 0 {
		return base.Foreground(ColorGray)
	}
	return base.Foreground(ColorWhite).Background(ColorRed)
}

// KindLabelStyle returns a color-coded style for a notification kind label.
func KindLabelStyle(kind string) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true)

	switch kind {
	case "comment":
		return base.Foreground(ColorBlue)
	case "pipeline":
		return base.Foreground(ColorYellow)
	default:
		return base.Foreground(ColorGray)
	}
}
