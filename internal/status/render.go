package status

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/review-notifier/internal/theme"
)

// Render draws the snapshot as a terminal panel.
func Render(snap Snapshot, now time.Time) string {
	var rows []string
	row := func(label, value string) {
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, theme.LabelStyle.Render(label), value))
	}

	enabled := "off"
	if snap.Enabled {
		enabled = "on"
	}
	row("Notifications", theme.StateStyle(snap.Enabled).Render(enabled))

	sinkState := "configured"
	if !snap.Ready {
		sinkState = "not ready"
	}
	row("Sink", fmt.Sprintf("%s %s", snap.Sink, theme.StateStyle(snap.Ready).Render(sinkState)))

	switch {
	case snap.Connection == nil:
		row("GitLab", theme.HelpStyle.Render("not checked yet"))
	case snap.Connection.Available && snap.Connection.Error == "":
		row("GitLab", theme.StateStyle(true).Render("available"))
	case snap.Connection.Available:
		row("GitLab", theme.WarningStyle.Render("available, last cycle failed"))
	default:
		row("GitLab", theme.StateStyle(false).Render("unavailable"))
	}

	row("Last check", Ago(snap.LastCheck, now))
	row("Projects", fmt.Sprintf("%d", snap.MonitoredProjects))
	row("Unread", theme.UnreadStyle(snap.Unread).Render(fmt.Sprintf("%d", snap.Unread)))

	if snap.Connection != nil && snap.Connection.Error != "" {
		rows = append(rows, "", theme.WarningStyle.Render("⚠ "+snap.Connection.Error))
	}
	if !snap.Ready && snap.NotReadyReason != "" {
		rows = append(rows, theme.HelpStyle.Render(snap.NotReadyReason))
	}

	if len(snap.Recent) > 0 {
		rows = append(rows, "", theme.LabelStyle.Render("Recent"))
		for _, n := range snap.Recent {
			rows = append(rows, fmt.Sprintf("  %s %s %s",
				theme.KindLabelStyle(string(n.Kind)).Render(fmt.Sprintf("%-8s", n.Kind)),
				theme.HelpStyle.Render(Ago(n.CreatedAt, now)),
				n.Title,
			))
		}
	}

	header := theme.HeaderStyle.Render("review-notifier")
	return header + "\n" + theme.PanelStyle.Render(strings.Join(rows, "\n"))
}
