package sweep

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/hochfrequenz/knightshock/internal/domain"
)

// Info describes a sweep at its start
type Info struct {
	ID      string
	Name    string
	Started time.Time
	Total   int
	Workers int
}

// Summary describes a finished (or cancelled) sweep
type Summary struct {
	Info
	Finished  time.Time
	OK        int
	Undefined int
	Failed    int
	Cancelled bool
}

// Written returns the number of results delivered to the sink
func (s Summary) Written() int {
	return s.OK + s.Undefined + s.Failed
}

// Elapsed returns the wall-clock duration of the sweep
func (s Summary) Elapsed() time.Duration {
	return s.Finished.Sub(s.Started)
}

func (s *Summary) count(r domain.SweepResult) {
	switch r.Status {
	case domain.ResultOK:
		s.OK++
	case domain.ResultUndefined:
		s.Undefined++
	default:
		s.Failed++
	}
}

// Sink receives the results of one sweep. Begin is called once before any
// result, Append once per completed case and Finish once at the end. All
// calls come from a single goroutine.
type Sink interface {
	Begin(info Info) error
	Append(r domain.SweepResult) error
	Finish(s Summary) error
}

// Aborter is implemented by sinks holding resources that must be released
// when a sweep stops without Finish.
type Aborter interface {
	Abort(cause error)
}

// MultiSink fans every call out to each sink in order
type MultiSink []Sink

func (m MultiSink) Begin(info Info) error {
	for _, s := range m {
		if err := s.Begin(info); err != nil {
			return err
		}
	}
	return nil
}

func (m MultiSink) Append(r domain.SweepResult) error {
	for _, s := range m {
		if err := s.Append(r); err != nil {
			return err
		}
	}
	return nil
}

// Finish finishes every sink even when one of them fails
func (m MultiSink) Finish(sum Summary) error {
	var errs []error
	for _, s := range m {
		if err := s.Finish(sum); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Abort forwards to every sink that implements Aborter
func (m MultiSink) Abort(cause error) {
	for _, s := range m {
		if a, ok := s.(Aborter); ok {
			a.Abort(cause)
		}
	}
}

// FuncSink adapts callbacks to a Sink; nil callbacks are skipped
type FuncSink struct {
	OnBegin  func(Info) error
	OnAppend func(domain.SweepResult) error
	OnFinish func(Summary) error
}

func (f FuncSink) Begin(info Info) error {
	if f.OnBegin == nil {
		return nil
	}
	return f.OnBegin(info)
}

func (f FuncSink) Append(r domain.SweepResult) error {
	if f.OnAppend == nil {
		return nil
	}
	return f.OnAppend(r)
}

func (f FuncSink) Finish(s Summary) error {
	if f.OnFinish == nil {
		return nil
	}
	return f.OnFinish(s)
}

// Collector keeps results in memory
type Collector struct {
	mu      sync.Mutex
	results []domain.SweepResult
	summary Summary
}

func (c *Collector) Begin(Info) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = nil
	return nil
}

func (c *Collector) Append(r domain.SweepResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, r)
	return nil
}

func (c *Collector) Finish(s Summary) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.summary = s
	return nil
}

// Results returns the collected results ordered by case index
func (c *Collector) Results() []domain.SweepResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := append([]domain.SweepResult(nil), c.results...)
	sort.Slice(out, func(i, j int) bool { return out[i].Case.Index < out[j].Case.Index })
	return out
}

// Summary returns the summary passed to Finish
func (c *Collector) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.summary
}

// CSVHeader is the column layout written by CSVSink
var CSVHeader = []string{"case", "mechanism_id", "composition", "pressure", "temperature", "ignition_delay", "status"}

// CSVSink writes one row per result to a file. The file is truncated and
// the header written on Begin; every row is flushed as it is appended so
// partial progress survives an aborted sweep.
type CSVSink struct {
	path string
	f    *os.File
	w    *csv.Writer
}

// NewCSVSink creates a sink writing to path
func NewCSVSink(path string) *CSVSink {
	return &CSVSink{path: path}
}

func (s *CSVSink) Begin(Info) error {
	if s.f != nil {
		s.f.Close()
	}
	f, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", s.path, err)
	}
	s.f = f
	s.w = csv.NewWriter(f)
	return s.write(CSVHeader)
}

func (s *CSVSink) Append(r domain.SweepResult) error {
	if s.w == nil {
		return fmt.Errorf("csv sink %s: append before begin", s.path)
	}
	return s.write([]string{
		strconv.Itoa(r.Case.Index),
		r.Case.MechanismID,
		r.Case.Composition.Label(),
		formatFloat(r.Case.Pressure),
		formatFloat(r.Case.Temperature),
		formatFloat(r.IgnitionDelay),
		string(r.Status),
	})
}

func (s *CSVSink) Finish(Summary) error {
	return s.Close()
}

// Abort closes the file, keeping the rows already flushed
func (s *CSVSink) Abort(error) {
	s.Close()
}

// Close releases the file; it is safe to call more than once
func (s *CSVSink) Close() error {
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f, s.w = nil, nil
	return err
}

// write closes the file on failure, later appends report "append before begin"
func (s *CSVSink) write(record []string) error {
	err := s.w.Write(record)
	if err == nil {
		s.w.Flush()
		err = s.w.Error()
	}
	if err != nil {
		s.Close()
		return fmt.Errorf("writing %s: %w", s.path, err)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
