package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/five82/vapor-console/internal/metrics"
	"github.com/five82/vapor-console/internal/store"
	"github.com/five82/vapor-console/internal/uistate"
)

const maxNotifications = 3

// renderMain renders the full UI.
func (m Model) renderMain() string {
	theme := m.theme()
	t := m.tableFor(m.current, m.query)

	top := []string{m.renderHeader(theme), m.renderTabs(theme)}
	if line := m.renderError(theme); line != "" {
		top = append(top, line)
	}
	bottom := []string{}
	if notes := m.renderNotifications(theme); notes != "" {
		bottom = append(bottom, notes)
	}
	bottom = append(bottom, m.renderFooter(theme))

	used := lipgloss.Height(strings.Join(top, "\n")) + lipgloss.Height(strings.Join(bottom, "\n"))
	body := m.renderTable(theme, t, max(m.height-used, 2))

	return strings.Join(append(append(top, body), bottom...), "\n")
}

func (m Model) renderHeader(theme Theme) string {
	styles := theme.Styles()
	stats := m.virt.ResourceStats().Get()

	parts := []string{
		styles.Logo.Render("VAPOR"),
		fmt.Sprintf("%s %s", styles.MutedText.Render("VMs:"), styles.Text.Render(fmt.Sprint(stats.TotalVMs))),
		styles.SuccessText.Render(fmt.Sprintf("● %d running", stats.RunningVMs)),
		styles.MutedText.Render(fmt.Sprintf("■ %d stopped", stats.StoppedVMs)),
		styles.WarningText.Render(fmt.Sprintf("‖ %d paused", stats.PausedVMs)),
		fmt.Sprintf("%s %d", styles.MutedText.Render("vCPU:"), stats.TotalVCPUs),
		fmt.Sprintf("%s %s", styles.MutedText.Render("Mem:"), formatMemory(stats.TotalMemory)),
	}

	parts = append(parts, m.renderHostLoad(styles)...)

	if m.virt.LiveUpdates().Get() {
		parts = append(parts, styles.SuccessText.Render("LIVE"))
	} else {
		parts = append(parts, styles.FaintText.Render("POLL"))
	}
	if m.ui.IsLoading().Get() {
		parts = append(parts, styles.InfoText.Render(fmt.Sprintf("Loading (%d)", m.ui.LoadingCount().Get())))
	}
	if up := m.virt.UploadState().Get(); up.Uploading || up.Paused {
		label := "Uploading"
		if up.Paused {
			label = "Paused"
		}
		parts = append(parts, styles.AccentText.Render(fmt.Sprintf("%s %s %.0f%%", label, truncate(up.Filename, 20), up.Progress)))
	}
	return styles.Header.Width(m.width).Render(strings.Join(parts, "  "))
}

// renderHostLoad shows host CPU and memory use once the metrics feed has
// delivered a sample.
func (m Model) renderHostLoad(styles Styles) []string {
	if m.stats == nil || m.stats.CPU().Get() == nil {
		return nil
	}
	gauge := func(label string, pct float64, trend metrics.Trend) string {
		style := styles.Text
		switch {
		case pct > 90:
			style = styles.DangerText
		case pct > 75:
			style = styles.WarningText
		}
		return fmt.Sprintf("%s %s%s", styles.MutedText.Render(label), style.Render(fmt.Sprintf("%.0f%%", pct)), trendArrow(trend))
	}
	return []string{
		gauge("Host CPU:", m.stats.CPUUsage().Get(), m.stats.CPUTrend().Get()),
		gauge("Host Mem:", m.stats.MemoryUsage().Get(), m.stats.MemoryTrend().Get()),
	}
}

func trendArrow(t metrics.Trend) string {
	switch t {
	case metrics.TrendIncreasing:
		return "↑"
	case metrics.TrendDecreasing:
		return "↓"
	}
	return ""
}

func (m Model) renderTabs(theme Theme) string {
	styles := theme.Styles()
	tabs := make([]string, 0, len(viewNames))
	for i, name := range viewNames {
		label := fmt.Sprintf(" %d %s ", i+1, name)
		if View(i) == m.current {
			tabs = append(tabs, styles.Selected.Bold(true).Render(label))
			continue
		}
		tabs = append(tabs, styles.MutedText.Render(label))
	}
	line := strings.Join(tabs, " ")
	if m.query != "" && !m.searching {
		line += "  " + styles.AccentText.Render("/"+m.query)
	}
	return line
}

// renderError shows the current collection's error, if any.
func (m Model) renderError(theme Theme) string {
	var err *store.StoreError
	switch m.current {
	case ViewVMs:
		err = m.virt.VMs().Err().Get()
	case ViewPools:
		err = m.virt.Pools().Err().Get()
	case ViewISOs:
		err = m.virt.ISOs().Err().Get()
	case ViewNetworks:
		err = m.virt.Networks().Err().Get()
	case ViewInterfaces:
		if m.net != nil {
			err = m.net.Interfaces().Err().Get()
		}
	}
	if err == nil {
		return ""
	}
	return theme.Styles().DangerText.Render(truncate(fmt.Sprintf("%s: %s", err.Code, err.Message), max(m.width-2, 10)))
}

func (m Model) renderTable(theme Theme, t table, height int) string {
	styles := theme.Styles()
	if len(t.rows) == 0 {
		empty := "No " + strings.ToLower(m.current.Title())
		if m.query != "" {
			empty += " match " + m.query
		}
		return lipgloss.Place(m.width, height, lipgloss.Center, lipgloss.Center, styles.MutedText.Render(empty))
	}

	var b strings.Builder
	titles := make([]string, len(t.columns))
	for i, c := range t.columns {
		titles[i] = fit(c.title, c.width)
	}
	b.WriteString(styles.AccentText.Bold(true).Render(strings.Join(titles, " ")))

	visible := height - 1
	start := 0
	if m.selected >= visible {
		start = m.selected - visible + 1
	}
	end := min(start+visible, len(t.rows))

	for i := start; i < end; i++ {
		r := t.rows[i]
		cells := make([]string, len(t.columns))
		for j, c := range t.columns {
			text := ""
			if j < len(r.cells) {
				text = r.cells[j]
			}
			cell := fit(text, c.width)
			if j == t.stateCol && i != m.selected {
				cell = styles.StateStyle(r.state).Render(truncate(text, c.width-2)) +
					strings.Repeat(" ", max(c.width-len([]rune(truncate(text, c.width-2)))-2, 0))
			}
			cells[j] = cell
		}
		line := strings.Join(cells, " ")
		b.WriteString("\n")
		if i == m.selected {
			b.WriteString(styles.Selected.Render(line))
			continue
		}
		b.WriteString(styles.Text.Render(line))
	}
	return lipgloss.NewStyle().Height(height).Render(b.String())
}

func (m Model) renderNotifications(theme Theme) string {
	notes := m.ui.Notifications().Get()
	if len(notes) == 0 {
		return ""
	}
	if len(notes) > maxNotifications {
		notes = notes[len(notes)-maxNotifications:]
	}
	lines := make([]string, 0, len(notes))
	for _, n := range notes {
		lines = append(lines, renderNotification(theme, n, m.width))
	}
	return strings.Join(lines, "\n")
}

func renderNotification(theme Theme, n uistate.Notification, width int) string {
	color := lipgloss.Color(theme.SeverityColor(n.Severity))
	bar := lipgloss.NewStyle().Foreground(color).Render("▌")
	title := lipgloss.NewStyle().Foreground(color).Bold(true).Render(n.Title)
	text := title
	if n.Message != "" {
		text += " " + lipgloss.NewStyle().Foreground(lipgloss.Color(theme.Text)).Render(truncate(n.Message, max(width-len(n.Title)-6, 10)))
	}
	return bar + " " + text
}

func (m Model) renderFooter(theme Theme) string {
	if m.searching {
		return m.input.View()
	}
	return newHelp(theme).ShortHelpView(m.keys.ShortHelp())
}
