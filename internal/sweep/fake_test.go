package sweep

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/hochfrequenz/knightshock/internal/domain"
	"github.com/hochfrequenz/knightshock/internal/kinetics"
)

// fakeLoader serves fakeMechanisms and counts loads per id
type fakeLoader struct {
	mu    sync.Mutex
	loads map[string]int
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{loads: make(map[string]int)}
}

func (l *fakeLoader) Load(id string) (kinetics.Mechanism, error) {
	l.mu.Lock()
	l.loads[id]++
	l.mu.Unlock()

	switch id {
	case "fake", "fake-b", "panicky", "diverging", "slow":
		return &fakeMechanism{id: id}, nil
	default:
		return nil, fmt.Errorf("%s: %w", id, kinetics.ErrMechanismNotFound)
	}
}

func (l *fakeLoader) count(id string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loads[id]
}

type fakeMechanism struct{ id string }

func (m *fakeMechanism) Name() string           { return m.id }
func (m *fakeMechanism) SpeciesNames() []string { return []string{"FUEL", "PROD", "AR"} }

func (m *fakeMechanism) NewReactor(kind kinetics.Kind) (kinetics.Reactor, error) {
	return &fakeReactor{mech: m.id}, nil
}

// fakeReactor follows a logistic temperature rise centred on tau
type fakeReactor struct {
	mech   string
	t, T0  float64
	P0     float64
	tau, w float64
}

const fakeDt = 1e-5

// fakeTau is the ignition time the fake reactor produces for T0
func fakeTau(T0 float64) float64 {
	return 1e-3 * 1000 / T0
}

func (r *fakeReactor) Species() []string { return []string{"FUEL", "PROD", "AR"} }

func (r *fakeReactor) Initialize(s kinetics.State) (domain.Sample, error) {
	r.t, r.T0, r.P0 = 0, s.Temperature, s.Pressure
	r.tau, r.w = fakeTau(s.Temperature), 2e-5
	if r.mech == "slow" {
		// still accelerating when the horizon is reached
		r.tau, r.w = 1e-2, 2e-3
	}
	return r.sample(), nil
}

func (r *fakeReactor) Step() (domain.Sample, error) {
	switch r.mech {
	case "panicky":
		panic("stepper blew up")
	case "diverging":
		return domain.Sample{}, fmt.Errorf("t=%g: %w", r.t, kinetics.ErrNumericalFault)
	}
	r.t += fakeDt
	return r.sample(), nil
}

func (r *fakeReactor) sample() domain.Sample {
	progress := 1 / (1 + math.Exp(-(r.t-r.tau)/r.w))
	return domain.Sample{
		Time:        r.t,
		Temperature: r.T0 + 1000*progress,
		Pressure:    r.P0,
		X:           []float64{0.1 * (1 - progress), 0.1 * progress, 0.9},
	}
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

var errSinkFull = errors.New("sink full")

func compositions() []domain.Composition {
	return []domain.Composition{
		{Name: "lean", X: map[string]float64{"FUEL": 0.05, "AR": 0.95}},
		{Name: "rich", X: map[string]float64{"FUEL": 0.2, "AR": 0.8}},
	}
}
