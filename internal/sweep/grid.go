// Package sweep runs independent reactor simulations over a parameter grid
// with a pool of workers and routes every result through one sink owner.
package sweep

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/hochfrequenz/knightshock/internal/domain"
)

// ErrInvalidConfiguration is returned for empty or non-physical grids and options
var ErrInvalidConfiguration = errors.New("sweep: invalid configuration")

// Grid is the set of inputs whose cartesian product forms the sweep
type Grid struct {
	Name         string // free-form label, e.g. the plan file
	Mechanisms   []string
	Temperatures []float64 // [K]
	Pressures    []float64 // [Pa]
	Compositions []domain.Composition
}

// Validate checks that every axis is non-empty and physical
func (g Grid) Validate() error {
	if len(g.Mechanisms) == 0 || len(g.Temperatures) == 0 || len(g.Pressures) == 0 || len(g.Compositions) == 0 {
		return fmt.Errorf("grid needs at least one mechanism, temperature, pressure and composition: %w", ErrInvalidConfiguration)
	}
	for _, m := range g.Mechanisms {
		if strings.TrimSpace(m) == "" {
			return fmt.Errorf("empty mechanism id: %w", ErrInvalidConfiguration)
		}
	}
	for _, t := range g.Temperatures {
		if !positive(t) {
			return fmt.Errorf("temperature %g: %w", t, ErrInvalidConfiguration)
		}
	}
	for _, p := range g.Pressures {
		if !positive(p) {
			return fmt.Errorf("pressure %g: %w", p, ErrInvalidConfiguration)
		}
	}
	for _, c := range g.Compositions {
		if len(c.X) == 0 {
			return fmt.Errorf("composition %q is empty: %w", c.Label(), ErrInvalidConfiguration)
		}
	}
	return nil
}

// Size returns the number of cases in the grid
func (g Grid) Size() int {
	return len(g.Mechanisms) * len(g.Temperatures) * len(g.Pressures) * len(g.Compositions)
}

// Cases enumerates the grid mechanism-major, then temperature, pressure and
// composition. The enumeration is stable and only assigns case identity.
func (g Grid) Cases() []domain.ParameterCase {
	cases := make([]domain.ParameterCase, 0, g.Size())
	for _, m := range g.Mechanisms {
		for _, t := range g.Temperatures {
			for _, p := range g.Pressures {
				for _, c := range g.Compositions {
					cases = append(cases, domain.ParameterCase{
						Index:       len(cases),
						MechanismID: m,
						Temperature: t,
						Pressure:    p,
						Composition: c,
					})
				}
			}
		}
	}
	return cases
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}
