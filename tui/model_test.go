package tui

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hochfrequenz/knightshock/internal/domain"
	"github.com/hochfrequenz/knightshock/internal/sweep"
)

func result(index int, status domain.ResultStatus, worker int) domain.SweepResult {
	r := domain.SweepResult{
		Case: domain.ParameterCase{
			Index:       index,
			MechanismID: "h2-global",
			Temperature: 1000 + 100*float64(index),
			Pressure:    101325,
			Composition: domain.Composition{Name: "stoich"},
		},
		Status:        status,
		IgnitionDelay: math.NaN(),
		Worker:        worker,
		Elapsed:       time.Second,
	}
	if status == domain.ResultOK {
		r.IgnitionDelay = 4.2e-4
	}
	return r
}

func update(t *testing.T, m Model, msgs ...tea.Msg) Model {
	t.Helper()
	for _, msg := range msgs {
		next, _ := m.Update(msg)
		m = next.(Model)
	}
	return m
}

func TestNewModel(t *testing.T) {
	model := NewModel(ModelConfig{})

	if model.activeTab != TabProgress {
		t.Errorf("activeTab = %v, want Progress", model.activeTab)
	}
	if model.recentLimit != 8 {
		t.Errorf("recentLimit = %d, want 8", model.recentLimit)
	}
	if model.Done() {
		t.Error("new model should not be done")
	}
}

func TestModel_ResultsOrderedByCase(t *testing.T) {
	model := NewModel(ModelConfig{RecentLimit: 2})
	model = update(t, model,
		StartMsg(sweep.Info{Name: "h2", Total: 4, Workers: 2}),
		ResultMsg(result(2, domain.ResultOK, 1)),
		ResultMsg(result(0, domain.ResultFailed, 2)),
		ResultMsg(result(1, domain.ResultUndefined, 1)),
	)

	if len(model.results) != 3 {
		t.Fatalf("results = %d, want 3", len(model.results))
	}
	for i, r := range model.results {
		if r.Case.Index != i {
			t.Errorf("results[%d].Case.Index = %d", i, r.Case.Index)
		}
	}
	if len(model.recent) != 2 || model.recent[0].Case.Index != 1 || model.recent[1].Case.Index != 0 {
		t.Errorf("recent = %v, want cases 1 and 0", model.recent)
	}

	metrics := model.observer.GetMetrics()
	if metrics.TotalOK != 1 || metrics.TotalFailed != 1 || metrics.TotalUndefined != 1 {
		t.Errorf("metrics = %+v", metrics)
	}
}

func TestModel_TabSwitching(t *testing.T) {
	model := NewModel(ModelConfig{})

	model = update(t, model, tea.KeyMsg{Type: tea.KeyTab})
	if model.activeTab != TabResults {
		t.Errorf("after first tab: activeTab = %v, want Results", model.activeTab)
	}
	model = update(t, model, tea.KeyMsg{Type: tea.KeyTab}, tea.KeyMsg{Type: tea.KeyTab})
	if model.activeTab != TabProgress {
		t.Errorf("tab should wrap around, got %v", model.activeTab)
	}
	model = update(t, model, tea.KeyMsg{Type: tea.KeyShiftTab})
	if model.activeTab != TabWorkers {
		t.Errorf("shift+tab from Progress = %v, want Workers", model.activeTab)
	}
}

func TestModel_FailedFilterAndScroll(t *testing.T) {
	model := NewModel(ModelConfig{})
	model = update(t, model,
		StartMsg(sweep.Info{Total: 3}),
		ResultMsg(result(0, domain.ResultOK, 1)),
		ResultMsg(result(1, domain.ResultFailed, 1)),
		ResultMsg(result(2, domain.ResultFailed, 1)),
		tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")},
	)

	model = update(t, model, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("j")})
	if model.scroll != 1 {
		t.Errorf("scroll = %d, want 1", model.scroll)
	}

	model = update(t, model, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("f")})
	if model.scroll != 0 {
		t.Errorf("filter toggle should reset scroll, got %d", model.scroll)
	}
	if got := len(model.visibleResults()); got != 2 {
		t.Errorf("visible results = %d, want 2", got)
	}

	model = update(t, model,
		tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("j")},
		tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("j")},
		tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("j")},
	)
	if model.scroll != 1 {
		t.Errorf("scroll should stop at the last visible row, got %d", model.scroll)
	}
}

func TestModel_QuitCancelsRunningSweep(t *testing.T) {
	cancelled := 0
	model := NewModel(ModelConfig{Cancel: func() { cancelled++ }})
	model = update(t, model, StartMsg(sweep.Info{Total: 2}))

	next, cmd := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cancelled != 1 {
		t.Errorf("cancel called %d times, want 1", cancelled)
	}
	if cmd == nil {
		t.Error("quit should return a command")
	}
	if !next.(Model).cancelled {
		t.Error("model should remember the cancellation")
	}

	finished := NewModel(ModelConfig{Cancel: func() { cancelled++ }})
	finished = update(t, finished, DoneMsg{Summary: sweep.Summary{}})
	finished.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cancelled != 1 {
		t.Errorf("quitting a finished sweep should not cancel, calls = %d", cancelled)
	}
}

func TestModel_View(t *testing.T) {
	start := time.Now()
	model := NewModel(ModelConfig{})
	model = update(t, model,
		tea.WindowSizeMsg{Width: 120, Height: 40},
		StartMsg(sweep.Info{Name: "h2-sweep", Total: 2, Workers: 2, Started: start}),
		ResultMsg(result(0, domain.ResultOK, 1)),
	)

	view := model.View()
	for _, want := range []string{"h2-sweep", "1/2", "ok 1", "failed 0", "running"} {
		if !strings.Contains(view, want) {
			t.Errorf("progress view missing %q", want)
		}
	}

	model = update(t, model, DoneMsg{
		Summary: sweep.Summary{Info: sweep.Info{Total: 2, Started: start}, Finished: start.Add(2 * time.Second), OK: 1, Cancelled: true},
	})
	view = model.View()
	if !strings.Contains(view, "cancelled") {
		t.Errorf("view should show cancellation:\n%s", view)
	}

	model = update(t, model, tea.KeyMsg{Type: tea.KeyTab})
	if view := model.View(); !strings.Contains(view, "h2-global") || !strings.Contains(view, "101.325 kPa") {
		t.Errorf("results view missing case details:\n%s", view)
	}

	model = update(t, model, tea.KeyMsg{Type: tea.KeyTab})
	if view := model.View(); !strings.Contains(view, "worker 1") {
		t.Errorf("workers view missing worker 1:\n%s", view)
	}
}

func TestModel_DoneWithError(t *testing.T) {
	model := update(t, NewModel(ModelConfig{}), DoneMsg{Err: errors.New("sink failed")})
	if !model.Done() {
		t.Error("model should be done")
	}
	if !strings.Contains(model.View(), "sink failed") {
		t.Error("view should show the error")
	}
}

func TestNewSink(t *testing.T) {
	var msgs []tea.Msg
	sink := NewSink(func(msg tea.Msg) { msgs = append(msgs, msg) })

	sink.Begin(sweep.Info{ID: "x"})
	sink.Append(result(0, domain.ResultOK, 1))
	sink.Finish(sweep.Summary{})

	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(msgs))
	}
	if _, ok := msgs[0].(StartMsg); !ok {
		t.Errorf("first message = %T, want StartMsg", msgs[0])
	}
	if _, ok := msgs[1].(ResultMsg); !ok {
		t.Errorf("second message = %T, want ResultMsg", msgs[1])
	}
}

func TestFormatDelay(t *testing.T) {
	if got := formatDelay(result(0, domain.ResultOK, 1)); !strings.HasPrefix(got, "420 ") || !strings.HasSuffix(got, "s") {
		t.Errorf("formatDelay(ok) = %q, want 420 microseconds", got)
	}
	if got := formatDelay(result(0, domain.ResultUndefined, 1)); got != "undefined" {
		t.Errorf("formatDelay(undefined) = %q", got)
	}
	if got := formatDelay(result(0, domain.ResultFailed, 1)); got != "failed" {
		t.Errorf("formatDelay(failed) = %q", got)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"a-long-mechanism", 10, "a-long-..."},
		{"abcdef", 3, "abc"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}
