package tui

import (
	"sort"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hochfrequenz/knightshock/internal/domain"
	"github.com/hochfrequenz/knightshock/internal/observer"
	"github.com/hochfrequenz/knightshock/internal/sweep"
)

// Tab identifies a dashboard page
type Tab int

const (
	TabProgress Tab = iota
	TabResults
	TabWorkers
	tabCount
)

func (t Tab) String() string {
	switch t {
	case TabProgress:
		return "Progress"
	case TabResults:
		return "Results"
	case TabWorkers:
		return "Workers"
	default:
		return "?"
	}
}

// Model is the TUI application model
type Model struct {
	// Data
	info     sweep.Info
	results  []domain.SweepResult // ordered by case index
	recent   []domain.SweepResult // newest first
	summary  *sweep.Summary
	err      error
	observer *observer.Observer

	// UI state
	width       int
	height      int
	activeTab   Tab
	scroll      int
	failedOnly  bool
	cancel      func()
	cancelled   bool
	recentLimit int

	// Refresh
	now time.Time
}

// ModelConfig holds initial data for the TUI model
type ModelConfig struct {
	// Cancel stops the running sweep when the user quits early
	Cancel func()
	// StallThreshold flags a sweep with no completions for this long
	StallThreshold time.Duration
	// RecentLimit bounds the recent-results list on the progress tab
	RecentLimit int
}

// NewModel creates a new TUI model
func NewModel(cfg ModelConfig) Model {
	if cfg.StallThreshold <= 0 {
		cfg.StallThreshold = 2 * time.Minute
	}
	if cfg.RecentLimit <= 0 {
		cfg.RecentLimit = 8
	}
	return Model{
		observer:    observer.New(cfg.StallThreshold),
		cancel:      cfg.Cancel,
		recentLimit: cfg.RecentLimit,
		activeTab:   TabProgress,
		now:         time.Now(),
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
	)
}

// TickMsg triggers a refresh
type TickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// StartMsg announces a new sweep
type StartMsg sweep.Info

// ResultMsg delivers one finished case
type ResultMsg domain.SweepResult

// DoneMsg reports the end of the sweep
type DoneMsg struct {
	Summary sweep.Summary
	Err     error
}

// NewSink returns a sweep sink forwarding every event to send, typically
// tea.Program.Send
func NewSink(send func(tea.Msg)) sweep.FuncSink {
	return sweep.FuncSink{
		OnBegin: func(info sweep.Info) error {
			send(StartMsg(info))
			return nil
		},
		OnAppend: func(r domain.SweepResult) error {
			send(ResultMsg(r))
			return nil
		},
	}
}

func (m *Model) addResult(r domain.SweepResult) {
	i := sort.Search(len(m.results), func(i int) bool { return m.results[i].Case.Index >= r.Case.Index })
	m.results = append(m.results, domain.SweepResult{})
	copy(m.results[i+1:], m.results[i:])
	m.results[i] = r

	m.recent = append([]domain.SweepResult{r}, m.recent...)
	if len(m.recent) > m.recentLimit {
		m.recent = m.recent[:m.recentLimit]
	}
	m.observer.RecordCompletion(r, m.now)
}

// visibleResults returns the results shown on the results tab
func (m Model) visibleResults() []domain.SweepResult {
	if !m.failedOnly {
		return m.results
	}
	var out []domain.SweepResult
	for _, r := range m.results {
		if r.Failed() {
			out = append(out, r)
		}
	}
	return out
}

// Done reports whether the sweep has finished
func (m Model) Done() bool {
	return m.summary != nil || m.err != nil
}
