package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNonMonotonicTime is returned when a sample does not advance time
	ErrNonMonotonicTime = errors.New("trajectory: time must be strictly increasing")
	// ErrSpeciesMismatch is returned when a sample's mole-fraction vector does
	// not match the trajectory's species list
	ErrSpeciesMismatch = errors.New("trajectory: mole-fraction vector does not match species list")
	// ErrEmptyTrajectory is returned by operations needing at least one sample
	ErrEmptyTrajectory = errors.New("trajectory: no samples")
)

// Sample is one recorded reactor state
type Sample struct {
	Time        float64   // [s]
	Temperature float64   // [K]
	Pressure    float64   // [Pa]
	X           []float64 // mole fractions, ordered as Trajectory.Species
}

// Trajectory is the time history of a single reactor simulation.
// Sample 0 is the initial state at t=0.
type Trajectory struct {
	Species []string
	Samples []Sample
}

// NewTrajectory creates an empty trajectory for the given species ordering
func NewTrajectory(species []string) *Trajectory {
	names := make([]string, len(species))
	copy(names, species)
	return &Trajectory{Species: names}
}

// Append adds a sample, enforcing strictly increasing time
func (tr *Trajectory) Append(s Sample) error {
	if len(s.X) != len(tr.Species) {
		return fmt.Errorf("sample at t=%g has %d fractions for %d species: %w",
			s.Time, len(s.X), len(tr.Species), ErrSpeciesMismatch)
	}
	if n := len(tr.Samples); n > 0 && !(s.Time > tr.Samples[n-1].Time) {
		return fmt.Errorf("sample at t=%g after t=%g: %w", s.Time, tr.Samples[n-1].Time, ErrNonMonotonicTime)
	}
	tr.Samples = append(tr.Samples, s)
	return nil
}

// Len returns the number of samples
func (tr *Trajectory) Len() int {
	return len(tr.Samples)
}

// Validate checks the trajectory invariants
func (tr *Trajectory) Validate() error {
	if len(tr.Samples) == 0 {
		return ErrEmptyTrajectory
	}
	for i, s := range tr.Samples {
		if len(s.X) != len(tr.Species) {
			return fmt.Errorf("sample %d: %w", i, ErrSpeciesMismatch)
		}
		if i > 0 && !(s.Time > tr.Samples[i-1].Time) {
			return fmt.Errorf("sample %d: %w", i, ErrNonMonotonicTime)
		}
	}
	return nil
}

// Times returns the sample times
func (tr *Trajectory) Times() []float64 {
	out := make([]float64, len(tr.Samples))
	for i, s := range tr.Samples {
		out[i] = s.Time
	}
	return out
}

// Temperatures returns the temperature history
func (tr *Trajectory) Temperatures() []float64 {
	out := make([]float64, len(tr.Samples))
	for i, s := range tr.Samples {
		out[i] = s.Temperature
	}
	return out
}

// Pressures returns the pressure history
func (tr *Trajectory) Pressures() []float64 {
	out := make([]float64, len(tr.Samples))
	for i, s := range tr.Samples {
		out[i] = s.Pressure
	}
	return out
}

// SpeciesIndex returns the position of a species, matched case-insensitively,
// or -1 when the trajectory does not carry it
func (tr *Trajectory) SpeciesIndex(name string) int {
	for i, s := range tr.Species {
		if strings.EqualFold(s, name) {
			return i
		}
	}
	return -1
}

// MoleFractions returns the mole-fraction history of one species
func (tr *Trajectory) MoleFractions(name string) ([]float64, bool) {
	idx := tr.SpeciesIndex(name)
	if idx < 0 {
		return nil, false
	}
	out := make([]float64, len(tr.Samples))
	for i, s := range tr.Samples {
		out[i] = s.X[idx]
	}
	return out, true
}
