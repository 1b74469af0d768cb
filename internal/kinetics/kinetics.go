// Package kinetics is the reactor-stepping capability the sweep engine
// drives: mechanisms are loaded once, reactors are created per case and
// advanced one sample at a time.
package kinetics

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hochfrequenz/knightshock/internal/domain"
)

var (
	// ErrMechanismNotFound is returned when no mechanism matches an identifier
	ErrMechanismNotFound = errors.New("kinetics: mechanism not found")
	// ErrInvalidMechanism is returned for malformed mechanism definitions
	ErrInvalidMechanism = errors.New("kinetics: invalid mechanism")
	// ErrUnknownSpecies is returned when a state names a species the
	// mechanism does not define
	ErrUnknownSpecies = errors.New("kinetics: unknown species")
	// ErrInvalidState is returned for non-physical initial states
	ErrInvalidState = errors.New("kinetics: invalid state")
	// ErrNumericalFault is returned when the integration produces a
	// non-finite or non-physical state
	ErrNumericalFault = errors.New("kinetics: numerical fault")
	// ErrStepLimit is returned when the horizon is not reached in MaxSteps
	ErrStepLimit = errors.New("kinetics: step limit reached before horizon")
)

// Kind selects the reactor model
type Kind string

const (
	ConstantVolume   Kind = "constant-volume"
	ConstantPressure Kind = "constant-pressure"
)

// ParseKind converts a reactor name; the empty string selects ConstantVolume
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return ConstantVolume, nil
	case ConstantVolume, ConstantPressure:
		return k, nil
	default:
		return "", fmt.Errorf("reactor %q; valid reactors are %q and %q: %w", s, ConstantVolume, ConstantPressure, ErrInvalidState)
	}
}

// State is an initial thermodynamic state
type State struct {
	Temperature float64 // [K]
	Pressure    float64 // [Pa]
	X           map[string]float64
}

// Mechanism is a constructed kinetics model. It is immutable once loaded
// and may be reused for any number of reactors.
type Mechanism interface {
	Name() string
	SpeciesNames() []string
	NewReactor(kind Kind) (Reactor, error)
}

// Reactor advances a single simulation
type Reactor interface {
	// Species returns the ordering of every Sample.X the reactor produces
	Species() []string
	// Initialize sets the initial state and returns it as the t=0 sample
	Initialize(s State) (domain.Sample, error)
	// Step advances the reactor and returns the next sample
	Step() (domain.Sample, error)
}

// Loader resolves mechanism identifiers to constructed mechanisms
type Loader interface {
	Load(id string) (Mechanism, error)
}

// RunOptions bounds a single integration
type RunOptions struct {
	Horizon  float64 // simulated end time [s]
	MaxSteps int     // 0 means unlimited
}

// ctxCheckInterval is how many steps run between context checks
const ctxCheckInterval = 256

// Run initializes the reactor and steps it until the simulated time
// reaches the horizon, collecting every sample
func Run(ctx context.Context, r Reactor, initial State, opts RunOptions) (*domain.Trajectory, error) {
	if !(opts.Horizon > 0) {
		return nil, fmt.Errorf("horizon %g must be positive: %w", opts.Horizon, ErrInvalidState)
	}

	tr := domain.NewTrajectory(r.Species())
	s, err := r.Initialize(initial)
	if err != nil {
		return nil, err
	}
	s.Time = 0
	if err := tr.Append(s); err != nil {
		return nil, fmt.Errorf("initial sample: %v: %w", err, ErrNumericalFault)
	}

	for steps := 0; s.Time < opts.Horizon; steps++ {
		if opts.MaxSteps > 0 && steps >= opts.MaxSteps {
			return tr, fmt.Errorf("t=%g after %d steps: %w", s.Time, steps, ErrStepLimit)
		}
		if steps%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return tr, err
			}
		}

		if s, err = r.Step(); err != nil {
			return tr, err
		}
		if err := tr.Append(s); err != nil {
			return tr, fmt.Errorf("step %d: %v: %w", steps+1, err, ErrNumericalFault)
		}
	}
	return tr, nil
}
