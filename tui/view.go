package tui

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/hochfrequenz/knightshock/internal/domain"
	"github.com/hochfrequenz/knightshock/internal/sweep"
)

var (
	titleStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("205")).
		Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42"))

	undefinedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("214"))

	failedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("196"))

	statusBarStyle = lipgloss.NewStyle().
		Background(lipgloss.Color("236")).
		Foreground(lipgloss.Color("255"))

	tabActiveStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("205")).
		Underline(true)

	tabInactiveStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("244"))

	dimmedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240"))
)

const progressWidth = 40

// View renders the model
func (m Model) View() string {
	var b strings.Builder

	name := m.info.Name
	if name == "" {
		name = "sweep"
	}
	b.WriteString(titleStyle.Render("knightshock: " + name))
	b.WriteString("\n")
	b.WriteString(m.renderTabs())
	b.WriteString("\n\n")

	switch m.activeTab {
	case TabResults:
		b.WriteString(m.renderResults())
	case TabWorkers:
		b.WriteString(m.renderWorkers())
	default:
		b.WriteString(m.renderProgress())
	}

	b.WriteString("\n")
	b.WriteString(m.renderStatusBar())
	return b.String()
}

func (m Model) renderTabs() string {
	tabs := make([]string, 0, tabCount)
	for t := Tab(0); t < tabCount; t++ {
		style := tabInactiveStyle
		if t == m.activeTab {
			style = tabActiveStyle
		}
		tabs = append(tabs, style.Render(t.String()))
	}
	return strings.Join(tabs, "  ")
}

func (m Model) renderProgress() string {
	metrics := m.observer.GetMetrics()

	var b strings.Builder
	b.WriteString(progressBar(metrics.TotalCompleted, m.info.Total, progressWidth))
	fmt.Fprintf(&b, " %s/%s\n\n",
		humanize.Comma(int64(metrics.TotalCompleted)), humanize.Comma(int64(m.info.Total)))

	fmt.Fprintf(&b, "%s  %s  %s\n",
		okStyle.Render(fmt.Sprintf("ok %d", metrics.TotalOK)),
		undefinedStyle.Render(fmt.Sprintf("undefined %d", metrics.TotalUndefined)),
		failedStyle.Render(fmt.Sprintf("failed %d", metrics.TotalFailed)))

	if metrics.TotalCompleted > 0 {
		fmt.Fprintf(&b, "mean case %s, slowest %s",
			formatDuration(metrics.AvgElapsed), formatDuration(metrics.MaxElapsed))
		if eta := m.observer.ETA(m.now); eta > 0 {
			fmt.Fprintf(&b, ", about %s left", formatDuration(eta))
		}
		b.WriteString("\n")
	}
	if m.observer.IsStalled(m.now) {
		b.WriteString(undefinedStyle.Render("no case has finished recently"))
		b.WriteString("\n")
	}

	if len(m.recent) > 0 {
		lines := make([]string, len(m.recent))
		for i, r := range m.recent {
			lines[i] = formatResultLine(r)
		}
		b.WriteString("\n")
		b.WriteString(sectionStyle.Render("Recent\n" + strings.Join(lines, "\n")))
		b.WriteString("\n")
	}

	if m.summary != nil {
		b.WriteString("\n")
		b.WriteString(renderSummary(*m.summary, m.err))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderResults() string {
	results := m.visibleResults()
	if len(results) == 0 {
		return dimmedStyle.Render("no results yet") + "\n"
	}

	maxVisible := 15
	if m.height > 10 {
		maxVisible = m.height - 8
	}
	start := m.scroll
	end := min(start+maxVisible, len(results))

	var b strings.Builder
	header := fmt.Sprintf("%5s  %-14s  %-12s  %8s  %10s  %12s", "case", "mechanism", "mixture", "T", "P", "IDT")
	b.WriteString(dimmedStyle.Render(header))
	b.WriteString("\n")
	for _, r := range results[start:end] {
		b.WriteString(formatResultLine(r))
		b.WriteString("\n")
	}
	if m.failedOnly {
		b.WriteString(dimmedStyle.Render("showing failed cases only (f to toggle)"))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderWorkers() string {
	metrics := m.observer.GetMetrics()
	if len(metrics.PerWorker) == 0 {
		return dimmedStyle.Render(fmt.Sprintf("%d workers, no cases finished yet", m.info.Workers)) + "\n"
	}

	ids := make([]int, 0, len(metrics.PerWorker))
	for id := range metrics.PerWorker {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	var b strings.Builder
	for _, id := range ids {
		n := metrics.PerWorker[id]
		fmt.Fprintf(&b, "worker %-3d %s %d\n", id, progressBar(n, metrics.TotalCompleted, progressWidth/2), n)
	}
	return b.String()
}

func (m Model) renderStatusBar() string {
	status := "running"
	switch {
	case m.err != nil:
		status = "error: " + m.err.Error()
	case m.summary != nil && m.summary.Cancelled:
		status = "cancelled"
	case m.summary != nil:
		status = "finished"
	}
	help := "tab: switch  j/k: scroll  f: failed only  q: quit"
	bar := fmt.Sprintf(" %s | %s ", status, help)
	if m.width > 0 {
		return statusBarStyle.Width(m.width).Render(bar)
	}
	return statusBarStyle.Render(bar)
}

func renderSummary(s sweep.Summary, err error) string {
	line := fmt.Sprintf("%s of %s cases in %s",
		humanize.Comma(int64(s.Written())), humanize.Comma(int64(s.Total)), formatDuration(s.Elapsed()))
	if err != nil {
		return failedStyle.Render(line + ": " + err.Error())
	}
	if s.Cancelled {
		return undefinedStyle.Render(line + ", cancelled")
	}
	return okStyle.Render(line)
}

func formatResultLine(r domain.SweepResult) string {
	line := fmt.Sprintf("%5d  %-14s  %-12s  %7gK  %10s  %12s",
		r.Case.Index,
		truncate(r.Case.MechanismID, 14),
		truncate(r.Case.Composition.Label(), 12),
		r.Case.Temperature,
		formatPressure(r.Case.Pressure),
		formatDelay(r))
	switch r.Status {
	case domain.ResultOK:
		return okStyle.Render(line)
	case domain.ResultUndefined:
		return undefinedStyle.Render(line)
	default:
		return failedStyle.Render(line)
	}
}

func formatDelay(r domain.SweepResult) string {
	switch {
	case r.Failed():
		return "failed"
	case !r.Defined() || math.IsNaN(r.IgnitionDelay):
		return "undefined"
	default:
		return humanize.SIWithDigits(r.IgnitionDelay, 3, "s")
	}
}

func formatPressure(p float64) string {
	return humanize.SIWithDigits(p, 3, "Pa")
}

func progressBar(done, total, width int) string {
	if total <= 0 {
		return "[" + strings.Repeat("·", width) + "]"
	}
	filled := done * width / total
	if filled > width {
		filled = width
	}
	return "[" + okStyle.Render(strings.Repeat("█", filled)) + strings.Repeat("·", width-filled) + "]"
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	default:
		return d.Round(time.Second).String()
	}
}
