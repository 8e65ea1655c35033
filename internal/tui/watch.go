package tui

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mcpgate/mcpgate/internal/events"
	"github.com/mcpgate/mcpgate/internal/registry"
)

const maxEventLines = 12

// SnapshotFunc returns the current health view of every registered server.
type SnapshotFunc func() []registry.Health

type tickMsg time.Time

type hubEventMsg events.Event

// Model is the bubbletea model for the watch dashboard. It refreshes the
// server table once a second and streams hub events into a scrollback.
type Model struct {
	snapshot    SnapshotFunc
	eventCh     <-chan events.Event
	unsubscribe func()

	theme   Theme
	spin    spinner.Model
	servers []registry.Health
	log     []string
	started time.Time
	width   int
	height  int
}

func NewModel(snapshot SnapshotFunc, hub *events.Hub) Model {
	theme := NewDefaultTheme()
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = theme.Highlight

	ch, cancel := hub.Subscribe()
	return Model{
		snapshot:    snapshot,
		eventCh:     ch,
		unsubscribe: cancel,
		theme:       theme,
		spin:        sp,
		started:     time.Now(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, tickCmd(), waitForEvent(m.eventCh))
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func waitForEvent(ch <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return hubEventMsg(ev)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if m.unsubscribe != nil {
				m.unsubscribe()
			}
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.servers = m.snapshot()
		sort.Slice(m.servers, func(i, j int) bool {
			return m.servers[i].ServerID < m.servers[j].ServerID
		})
		return m, tickCmd()

	case hubEventMsg:
		m.log = append(m.log, formatEvent(events.Event(msg)))
		if len(m.log) > maxEventLines {
			m.log = m.log[len(m.log)-maxEventLines:]
		}
		return m, waitForEvent(m.eventCh)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) View() string {
	var b strings.Builder

	uptime := time.Since(m.started).Truncate(time.Second)
	title := m.theme.Title.Render(fmt.Sprintf("%s mcpgate watch  up %s", m.spin.View(), uptime))
	b.WriteString(title + "\n\n")

	b.WriteString(m.renderServers())
	b.WriteString("\n")
	b.WriteString(m.renderEvents())
	b.WriteString("\n" + m.theme.Dim.Render("q to quit"))

	return b.String()
}

func (m Model) renderServers() string {
	header := fmt.Sprintf("%-16s %-11s %8s %7s %6s %7s",
		"SERVER", "STATUS", "RT(ms)", "SR", "LOAD", "ERRORS")

	rows := []string{m.theme.Header.Render(header)}
	for _, h := range m.servers {
		row := fmt.Sprintf("%-16s %-11s %8.1f %6.1f%% %5.2f %7d",
			truncateID(h.ServerID, 16),
			h.Status,
			h.ResponseTime,
			h.SuccessRate*100,
			h.CurrentLoad,
			h.ErrorCount)
		rows = append(rows, m.statusStyle(h.Status).Render(row))
	}
	if len(m.servers) == 0 {
		rows = append(rows, m.theme.Dim.Render("no servers registered"))
	}

	body := lipgloss.JoinVertical(lipgloss.Left, rows...)
	return m.theme.Border.Render(body)
}

func (m Model) renderEvents() string {
	rows := []string{m.theme.Header.Render("EVENTS")}
	if len(m.log) == 0 {
		rows = append(rows, m.theme.Dim.Render("waiting for activity"))
	}
	rows = append(rows, m.log...)

	body := lipgloss.JoinVertical(lipgloss.Left, rows...)
	return m.theme.Border.Render(body)
}

func (m Model) statusStyle(s registry.Status) lipgloss.Style {
	switch s {
	case registry.StatusOnline:
		return m.theme.StatusOnline
	case registry.StatusDegraded:
		return m.theme.StatusDegraded
	case registry.StatusOverloaded:
		return m.theme.StatusOverloaded
	default:
		return m.theme.StatusOffline
	}
}

func formatEvent(ev events.Event) string {
	ts := ev.At.Format("15:04:05")
	detail := ""

	switch ev.Type {
	case events.TypeServerConnected, events.TypeServerDisconnected,
		events.TypeBreakerOpen, events.TypeBreakerHalfOpen, events.TypeBreakerClosed:
		var d events.ServerEvent
		if json.Unmarshal(ev.Data, &d) == nil {
			detail = d.ServerID
			if d.Detail != "" {
				detail += " " + d.Detail
			}
		}
	case events.TypePerfAlert:
		var d events.PerfAlert
		if json.Unmarshal(ev.Data, &d) == nil {
			detail = fmt.Sprintf("%s %s %.1fms (limit %.1fms)", d.Severity, d.Metric, d.Value, d.Threshold)
		}
	case events.TypePerfMetric:
		var d events.PerfMetric
		if json.Unmarshal(ev.Data, &d) == nil {
			detail = fmt.Sprintf("%s %.1fms", d.Operation, d.DurationMS)
		}
	}

	return fmt.Sprintf("%s  %-22s %s", ts, ev.Type, detail)
}

func truncateID(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "~"
}

// Run starts the watch TUI and blocks until the user quits.
func Run(snapshot SnapshotFunc, hub *events.Hub) error {
	p := tea.NewProgram(NewModel(snapshot, hub), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
