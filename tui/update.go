package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hochfrequenz/knightshock/internal/domain"
	"github.com/hochfrequenz/knightshock/internal/sweep"
)

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if !m.Done() && m.cancel != nil && !m.cancelled {
				m.cancel()
				m.cancelled = true
			}
			return m, tea.Quit
		case "j", "down":
			if m.activeTab == TabResults && m.scroll < len(m.visibleResults())-1 {
				m.scroll++
			}
		case "k", "up":
			if m.scroll > 0 {
				m.scroll--
			}
		case "tab":
			m.activeTab = (m.activeTab + 1) % tabCount
			m.scroll = 0
		case "shift+tab":
			m.activeTab = (m.activeTab + tabCount - 1) % tabCount
			m.scroll = 0
		case "r":
			m.activeTab = TabResults
			m.scroll = 0
		case "f":
			// Toggle failed-only filter on the results tab
			m.failedOnly = !m.failedOnly
			m.scroll = 0
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case TickMsg:
		m.now = time.Time(msg)
		return m, tickCmd()

	case StartMsg:
		m.info = sweep.Info(msg)
		m.results = nil
		m.recent = nil
		m.summary = nil
		m.err = nil
		m.observer.Begin(m.info)

	case ResultMsg:
		m.addResult(domain.SweepResult(msg))

	case DoneMsg:
		s := msg.Summary
		m.summary = &s
		m.err = msg.Err
	}

	return m, nil
}
