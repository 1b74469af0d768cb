package observer

import (
	"sync"
	"time"

	"github.com/hochfrequenz/knightshock/internal/domain"
	"github.com/hochfrequenz/knightshock/internal/sweep"
)

// Observer follows a running sweep and collects throughput metrics. It is a
// sweep.Sink so it can sit next to the persistent sinks.
type Observer struct {
	stallThreshold time.Duration

	started     time.Time
	total       int
	completions []completion
	lastAt      time.Time
	mu          sync.RWMutex
}

type completion struct {
	CaseIndex   int
	Status      domain.ResultStatus
	Worker      int
	Elapsed     time.Duration
	CompletedAt time.Time
}

// Metrics holds aggregated metrics
type Metrics struct {
	Total          int
	TotalCompleted int
	TotalOK        int
	TotalUndefined int
	TotalFailed    int
	AvgElapsed     time.Duration
	MaxElapsed     time.Duration
	PerWorker      map[int]int
}

// Remaining returns the number of cases not yet reported
func (m Metrics) Remaining() int {
	return m.Total - m.TotalCompleted
}

// New creates a new Observer
func New(stallThreshold time.Duration) *Observer {
	return &Observer{
		stallThreshold: stallThreshold,
	}
}

func (o *Observer) Begin(info sweep.Info) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = info.Started
	o.lastAt = info.Started
	o.total = info.Total
	o.completions = nil
	return nil
}

func (o *Observer) Append(r domain.SweepResult) error {
	o.RecordCompletion(r, time.Now())
	return nil
}

func (o *Observer) Finish(sweep.Summary) error { return nil }

// RecordCompletion records a finished case
func (o *Observer) RecordCompletion(r domain.SweepResult, at time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.completions = append(o.completions, completion{
		CaseIndex:   r.Case.Index,
		Status:      r.Status,
		Worker:      r.Worker,
		Elapsed:     r.Elapsed,
		CompletedAt: at,
	})
	o.lastAt = at
}

// IsStalled returns true when cases remain and none has completed for
// longer than the stall threshold
func (o *Observer) IsStalled(now time.Time) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if o.lastAt.IsZero() || len(o.completions) >= o.total {
		return false
	}
	return now.Sub(o.lastAt) > o.stallThreshold
}

// GetMetrics returns aggregated metrics
func (o *Observer) GetMetrics() Metrics {
	o.mu.RLock()
	defer o.mu.RUnlock()

	metrics := Metrics{Total: o.total, PerWorker: make(map[int]int)}
	var totalElapsed time.Duration

	for _, c := range o.completions {
		metrics.TotalCompleted++
		switch c.Status {
		case domain.ResultOK:
			metrics.TotalOK++
		case domain.ResultUndefined:
			metrics.TotalUndefined++
		default:
			metrics.TotalFailed++
		}
		metrics.PerWorker[c.Worker]++
		totalElapsed += c.Elapsed
		if c.Elapsed > metrics.MaxElapsed {
			metrics.MaxElapsed = c.Elapsed
		}
	}

	if metrics.TotalCompleted > 0 {
		metrics.AvgElapsed = totalElapsed / time.Duration(metrics.TotalCompleted)
	}

	return metrics
}

// GetRecentCompletions returns the case indices completed within the last
// duration before now
func (o *Observer) GetRecentCompletions(since time.Duration, now time.Time) []int {
	o.mu.RLock()
	defer o.mu.RUnlock()

	cutoff := now.Add(-since)
	var result []int

	for _, c := range o.completions {
		if c.CompletedAt.After(cutoff) {
			result = append(result, c.CaseIndex)
		}
	}

	return result
}

// ETA estimates the time left from the mean completion rate so far
func (o *Observer) ETA(now time.Time) time.Duration {
	o.mu.RLock()
	defer o.mu.RUnlock()

	done := len(o.completions)
	if done == 0 || done >= o.total {
		return 0
	}
	perCase := now.Sub(o.started) / time.Duration(done)
	return perCase * time.Duration(o.total-done)
}
