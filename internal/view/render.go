package view

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/okian/credash/internal/domain/listsync"
	"github.com/okian/credash/internal/domain/model"
)

// Colors used across the dashboard.
const (
	ColorHeader  = lipgloss.Color("39")
	ColorOK      = lipgloss.Color("42")
	ColorWarning = lipgloss.Color("214")
	ColorError   = lipgloss.Color("196")
	ColorMuted   = lipgloss.Color("245")
	ColorBorder  = lipgloss.Color("240")
)

const (
	minWidth       = 40
	timeLayout     = "2006-01-02 15:04:05"
	sparkRunes     = "▁▂▃▄▅▆▇█"
	issuerColWidth = 18
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorHeader).
			Border(lipgloss.NormalBorder()).
			BorderForeground(ColorBorder).
			Padding(0, 1)
	labelStyle    = lipgloss.NewStyle().Foreground(ColorMuted)
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorHeader)
	sectionStyle  = lipgloss.NewStyle().Bold(true).Underline(true)
	errorStyle    = lipgloss.NewStyle().Foreground(ColorError)
	panelStyle    = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder).
			Padding(0, 1)
)

// Render draws the model as a terminal screen no wider than width.
func Render(m Model, width int) string {
	if width < minWidth {
		width = minWidth
	}
	var sb strings.Builder

	sb.WriteString(titleStyle.Render("Credit Scores"))
	sb.WriteString("\n")
	if m.Banner != "" {
		sb.WriteString(labelStyle.Render(m.Banner))
		sb.WriteString("\n")
	}
	sb.WriteString(renderStatus(m))
	sb.WriteString("\n")
	if m.Notice != "" {
		sb.WriteString(errorStyle.Render(m.Notice))
		sb.WriteString("\n")
	}
	sb.WriteString("\n")

	sb.WriteString(renderRows(m.Rows, width))

	if m.Detail != nil {
		sb.WriteString("\n")
		sb.WriteString(panelStyle.Width(width - 4).Render(renderDetail(*m.Detail)))
	}
	sb.WriteString("\n")
	return sb.String()
}

func renderStatus(m Model) string {
	var color lipgloss.Color
	switch m.Status {
	case listsync.StatusSynced:
		color = ColorOK
	case listsync.StatusDegraded:
		color = ColorWarning
	default:
		color = ColorMuted
	}
	line := m.StatusLine
	if m.ErrorKind != "" {
		line += " (" + m.ErrorKind + ")"
	}
	out := lipgloss.NewStyle().Foreground(color).Render(line)

	push := "live updates " + m.Push.String()
	if !m.LastSynced.IsZero() {
		push += ", synced " + m.LastSynced.Local().Format(timeLayout)
	}
	return out + labelStyle.Render("  ["+push+"]")
}

func renderRows(rows []Row, width int) string {
	if len(rows) == 0 {
		return labelStyle.Render("No scores yet.") + "\n"
	}
	var sb strings.Builder
	header := fmt.Sprintf("  %3s  %-*s %-10s %7s  %s", "#", issuerColWidth, "Issuer", "Class", "Score", "Time")
	sb.WriteString(sectionStyle.Render(truncate(header, width)))
	sb.WriteString("\n")
	for i, r := range rows {
		marker := " "
		if r.Selected {
			marker = ">"
		}
		line := fmt.Sprintf("%s %3d  %-*s %-10s %7.2f  %s",
			marker, i+1,
			issuerColWidth, truncate(r.Issuer, issuerColWidth),
			truncate(r.AssetClass, 10),
			r.Score,
			formatTime(r.TS))
		line = truncate(line, width)
		if r.Selected {
			line = selectedStyle.Render(line)
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return sb.String()
}

func renderDetail(d Detail) string {
	var sb strings.Builder
	sb.WriteString(selectedStyle.Render(fmt.Sprintf("%s  score %.2f  (#%d)", d.Row.Issuer, d.Row.Score, d.Row.ScoreID)))
	sb.WriteString("\n\n")

	sb.WriteString(sectionStyle.Render("Trend"))
	sb.WriteString("\n")
	switch {
	case d.TrendErr != "":
		sb.WriteString(errorStyle.Render("history unavailable (" + d.TrendErr + ")"))
	case d.TrendLoading:
		sb.WriteString(labelStyle.Render("loading..."))
	case len(d.Trend) == 0:
		sb.WriteString(labelStyle.Render("no history"))
	default:
		sb.WriteString(Sparkline(d.Trend))
		for _, h := range d.Trend {
			sb.WriteString(fmt.Sprintf("\n%s  %7.2f", formatTime(h.TS.Time), h.Score))
		}
	}
	sb.WriteString("\n\n")

	title := "Top drivers"
	if d.DriversTotal > len(d.Drivers) {
		title = fmt.Sprintf("Top %d of %d drivers", len(d.Drivers), d.DriversTotal)
	}
	sb.WriteString(sectionStyle.Render(title))
	sb.WriteString("\n")
	switch {
	case d.DriversErr != "":
		sb.WriteString(errorStyle.Render("explanation unavailable (" + d.DriversErr + ")"))
	case d.DriversLoading:
		sb.WriteString(labelStyle.Render("loading..."))
	case len(d.Drivers) == 0:
		sb.WriteString(labelStyle.Render("no drivers"))
	default:
		for i, e := range d.Drivers {
			if i > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString(renderDriver(e))
		}
	}
	return sb.String()
}

func renderDriver(e model.DriverExplanation) string {
	color := ColorOK
	if e.Shap < 0 {
		color = ColorError
	}
	shap := lipgloss.NewStyle().Foreground(color).Render(fmt.Sprintf("%+.4f", e.Shap))
	return fmt.Sprintf("%-24s %10.4f  %s", truncate(e.Feature, 24), e.Value, shap)
}

// Sparkline draws scores in order as block characters scaled to their range.
func Sparkline(h []model.HistoryEntry) string {
	if len(h) == 0 {
		return ""
	}
	lo, hi := h[0].Score, h[0].Score
	for _, e := range h {
		lo = min(lo, e.Score)
		hi = max(hi, e.Score)
	}
	runes := []rune(sparkRunes)
	var sb strings.Builder
	for _, e := range h {
		idx := 0
		if hi > lo {
			idx = int((e.Score - lo) / (hi - lo) * float64(len(runes)-1))
		}
		sb.WriteRune(runes[idx])
	}
	return sb.String()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(timeLayout)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
