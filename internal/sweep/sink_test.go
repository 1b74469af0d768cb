package sweep

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hochfrequenz/knightshock/internal/domain"
)

type recordingSink struct {
	calls []string
	err   error
}

func (s *recordingSink) Begin(Info) error                { s.calls = append(s.calls, "begin"); return s.err }
func (s *recordingSink) Append(domain.SweepResult) error { s.calls = append(s.calls, "append"); return s.err }
func (s *recordingSink) Finish(Summary) error            { s.calls = append(s.calls, "finish"); return s.err }

func TestMultiSink(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	m := MultiSink{a, b}

	if err := m.Begin(Info{}); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if err := m.Append(domain.SweepResult{}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := m.Finish(Summary{}); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	for _, s := range []*recordingSink{a, b} {
		if len(s.calls) != 3 {
			t.Errorf("calls = %v, want begin, append, finish", s.calls)
		}
	}
}

func TestMultiSink_FinishReachesEverySink(t *testing.T) {
	boom := errors.New("boom")
	a, b := &recordingSink{err: boom}, &recordingSink{}
	err := MultiSink{a, b}.Finish(Summary{})
	if !errors.Is(err, boom) {
		t.Errorf("Finish() error = %v, want %v", err, boom)
	}
	if len(b.calls) != 1 {
		t.Errorf("second sink calls = %v, want finish", b.calls)
	}

	a, b = &recordingSink{err: boom}, &recordingSink{}
	if err := (MultiSink{a, b}).Append(domain.SweepResult{}); !errors.Is(err, boom) {
		t.Errorf("Append() error = %v, want %v", err, boom)
	}
	if len(b.calls) != 0 {
		t.Errorf("second sink calls = %v, want none after a failed append", b.calls)
	}
}

func TestFuncSink_NilCallbacks(t *testing.T) {
	var f FuncSink
	if err := f.Begin(Info{}); err != nil {
		t.Errorf("Begin() error = %v", err)
	}
	if err := f.Append(domain.SweepResult{}); err != nil {
		t.Errorf("Append() error = %v", err)
	}
	if err := f.Finish(Summary{}); err != nil {
		t.Errorf("Finish() error = %v", err)
	}
}

func TestCSVSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	s := NewCSVSink(path)

	if err := s.Append(domain.SweepResult{}); err == nil {
		t.Error("Append() before Begin() should fail")
	}

	if err := os.WriteFile(path, []byte("stale\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := s.Begin(Info{}); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	failed := domain.NewFailure(domain.ParameterCase{
		Index:       3,
		MechanismID: "h2-global",
		Temperature: 1250,
		Pressure:    2e6,
		Composition: domain.Composition{Name: "lean"},
	}, errors.New("diverged"))
	if err := s.Append(failed); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	// rows are flushed as they are appended
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "case,mechanism_id,composition,pressure,temperature,ignition_delay,status\n" +
		"3,h2-global,lean,2e+06,1250,NaN,failed\n"
	if string(data) != want {
		t.Errorf("file = %q, want %q", data, want)
	}

	if err := s.Finish(Summary{}); err != nil {
		t.Errorf("Finish() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestCSVSink_Abort(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	s := NewCSVSink(path)
	if err := s.Begin(Info{}); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}

	MultiSink{s, FuncSink{}}.Abort(errors.New("store down"))
	if s.f != nil {
		t.Error("Abort() left the file open")
	}
	if err := s.Append(domain.SweepResult{}); err == nil {
		t.Error("Append() after Abort() should fail")
	}
	s.Abort(nil)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "case,") {
		t.Errorf("header lost: %q", data)
	}
}

func TestSummary_Counts(t *testing.T) {
	var s Summary
	s.count(domain.NewResult(domain.ParameterCase{}, 1e-3, true))
	s.count(domain.NewResult(domain.ParameterCase{}, math.NaN(), false))
	s.count(domain.NewFailure(domain.ParameterCase{}, nil))
	s.count(domain.NewFailure(domain.ParameterCase{}, nil))
	if s.OK != 1 || s.Undefined != 1 || s.Failed != 2 || s.Written() != 4 {
		t.Errorf("counts = %+v", s)
	}
}
