package observer

import (
	"testing"
	"time"

	"github.com/hochfrequenz/knightshock/internal/domain"
	"github.com/hochfrequenz/knightshock/internal/sweep"
)

func result(index int, status domain.ResultStatus, worker int, elapsed time.Duration) domain.SweepResult {
	return domain.SweepResult{
		Case:    domain.ParameterCase{Index: index},
		Status:  status,
		Worker:  worker,
		Elapsed: elapsed,
	}
}

func TestObserver_DetectStalled(t *testing.T) {
	obs := New(5 * time.Minute)
	start := time.Now().Add(-10 * time.Minute)
	obs.Begin(sweep.Info{Started: start, Total: 3})

	obs.RecordCompletion(result(0, domain.ResultOK, 1, time.Second), start.Add(time.Minute))

	if !obs.IsStalled(start.Add(10 * time.Minute)) {
		t.Error("no completion for 9 minutes should be detected as stalled")
	}
	if obs.IsStalled(start.Add(3 * time.Minute)) {
		t.Error("a completion 2 minutes ago should not be stalled")
	}
}

func TestObserver_NotStalledWhenDone(t *testing.T) {
	obs := New(time.Minute)
	start := time.Now()
	obs.Begin(sweep.Info{Started: start, Total: 1})
	obs.RecordCompletion(result(0, domain.ResultOK, 1, time.Second), start)

	if obs.IsStalled(start.Add(time.Hour)) {
		t.Error("a finished sweep should never be stalled")
	}
	if New(time.Minute).IsStalled(time.Now()) {
		t.Error("an observer that never began should not be stalled")
	}
}

func TestObserver_Metrics(t *testing.T) {
	obs := New(5 * time.Minute)
	obs.Begin(sweep.Info{Started: time.Now(), Total: 4})

	obs.Append(result(0, domain.ResultOK, 1, 5*time.Second))
	obs.Append(result(1, domain.ResultFailed, 2, 10*time.Second))
	obs.Append(result(2, domain.ResultUndefined, 1, 15*time.Second))

	metrics := obs.GetMetrics()

	if metrics.TotalCompleted != 3 {
		t.Errorf("TotalCompleted = %d, want 3", metrics.TotalCompleted)
	}
	if metrics.TotalOK != 1 || metrics.TotalFailed != 1 || metrics.TotalUndefined != 1 {
		t.Errorf("status counts = %+v", metrics)
	}
	if metrics.AvgElapsed != 10*time.Second {
		t.Errorf("AvgElapsed = %v, want 10s", metrics.AvgElapsed)
	}
	if metrics.MaxElapsed != 15*time.Second {
		t.Errorf("MaxElapsed = %v, want 15s", metrics.MaxElapsed)
	}
	if metrics.PerWorker[1] != 2 || metrics.PerWorker[2] != 1 {
		t.Errorf("PerWorker = %v", metrics.PerWorker)
	}
	if metrics.Remaining() != 1 {
		t.Errorf("Remaining() = %d, want 1", metrics.Remaining())
	}
}

func TestObserver_RecentAndETA(t *testing.T) {
	obs := New(time.Minute)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	obs.Begin(sweep.Info{Started: start, Total: 4})

	obs.RecordCompletion(result(3, domain.ResultOK, 1, 0), start.Add(10*time.Second))
	obs.RecordCompletion(result(1, domain.ResultOK, 1, 0), start.Add(20*time.Second))

	now := start.Add(20 * time.Second)
	recent := obs.GetRecentCompletions(5*time.Second, now)
	if len(recent) != 1 || recent[0] != 1 {
		t.Errorf("GetRecentCompletions() = %v, want [1]", recent)
	}
	if eta := obs.ETA(now); eta != 20*time.Second {
		t.Errorf("ETA() = %v, want 20s", eta)
	}
}
