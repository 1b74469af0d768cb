// Package schedule re-runs sweep plans on cron schedules.
package schedule

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// RunFunc runs one scheduled sweep
type RunFunc func(ctx context.Context, e Entry) error

// Scheduler decides when each entry is due and runs it
type Scheduler struct {
	entries   map[string]Entry
	schedules map[string]cron.Schedule
	lastRun   map[string]time.Time
	running   map[string]bool
	started   time.Time
	interval  time.Duration
	now       func() time.Time
	log       logrus.FieldLogger
	mu        sync.RWMutex
	wg        sync.WaitGroup
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseCron parses a five-field cron expression
func ParseCron(expr string) (cron.Schedule, error) {
	return parser.Parse(expr)
}

// NewScheduler creates a scheduler over validated entries
func NewScheduler(entries []Entry) (*Scheduler, error) {
	s := &Scheduler{
		entries:   make(map[string]Entry),
		schedules: make(map[string]cron.Schedule),
		lastRun:   make(map[string]time.Time),
		running:   make(map[string]bool),
		interval:  time.Minute,
		now:       time.Now,
		log:       logrus.StandardLogger(),
	}
	s.started = s.now()

	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return nil, err
		}
		sched, err := ParseCron(e.Cron)
		if err != nil {
			return nil, err
		}
		s.entries[e.Name] = e
		s.schedules[e.Name] = sched
	}

	return s, nil
}

// SetLogger replaces the scheduler logger
func (s *Scheduler) SetLogger(log logrus.FieldLogger) {
	s.log = log
}

// SetInterval changes how often due entries are checked
func (s *Scheduler) SetInterval(d time.Duration) {
	s.interval = d
}

// NextRun returns the next scheduled run after from
func (s *Scheduler) NextRun(name string, from time.Time) time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sched, ok := s.schedules[name]
	if !ok {
		return time.Time{}
	}
	return sched.Next(from)
}

// Due reports whether an entry should start at now. An entry that never
// ran counts from scheduler start, so a fresh scheduler does not fire
// every entry at once.
func (s *Scheduler) Due(name string, now time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sched, ok := s.schedules[name]
	if !ok || s.running[name] {
		return false
	}

	last := s.lastRun[name]
	if last.IsZero() {
		last = s.started
	}
	return !now.Before(sched.Next(last))
}

// MarkRunning marks an entry as currently running
func (s *Scheduler) MarkRunning(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[name] = true
}

// MarkComplete marks an entry as finished at the given time
func (s *Scheduler) MarkComplete(name string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[name] = false
	s.lastRun[name] = at
}

// Entry returns an entry by name
func (s *Scheduler) Entry(name string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[name]
	return e, ok
}

// Names returns all entry names, sorted
func (s *Scheduler) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tick starts every due entry in the background
func (s *Scheduler) Tick(ctx context.Context, now time.Time, run RunFunc) {
	for _, name := range s.Names() {
		if !s.Due(name, now) {
			continue
		}
		e, _ := s.Entry(name)
		s.MarkRunning(name)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			log := s.log.WithField("schedule", e.Name)
			log.WithField("plan", e.Plan).Info("scheduled sweep starting")

			runCtx, cancel := context.WithTimeout(ctx, e.MaxDuration)
			defer cancel()
			if err := run(runCtx, e); err != nil {
				log.WithError(err).Error("scheduled sweep failed")
			}
			s.MarkComplete(e.Name, s.now())
			log.WithField("next", s.NextRun(e.Name, s.now()).Format(time.RFC3339)).Info("scheduled sweep done")
		}()
	}
}

// Run checks due entries every interval until ctx is cancelled, then
// waits for running sweeps to return
func (s *Scheduler) Run(ctx context.Context, run RunFunc) error {
	if len(s.entries) == 0 {
		return fmt.Errorf("no scheduled sweeps")
	}
	for _, name := range s.Names() {
		s.log.WithFields(logrus.Fields{
			"schedule": name,
			"next":     s.NextRun(name, s.now()).Format(time.RFC3339),
		}).Info("sweep scheduled")
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return nil
		case <-ticker.C:
			s.Tick(ctx, s.now(), run)
		}
	}
}

// Wait blocks until every started sweep has returned
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
