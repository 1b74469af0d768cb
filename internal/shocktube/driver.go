// Package shocktube computes shock-tube fill conditions.
package shocktube

import (
	"errors"
	"fmt"
	"math"

	"github.com/hochfrequenz/knightshock/internal/rootfind"
)

// GasConstant is the universal gas constant [J kmol^-1 K^-1]
const GasConstant = 8.31432e3

var (
	// ErrInvalidConfiguration is returned for unphysical shock conditions
	ErrInvalidConfiguration = errors.New("shocktube: invalid configuration")
	// ErrRootFindDivergence is returned when a bracketed solve fails
	ErrRootFindDivergence = errors.New("shocktube: root finding did not converge")
)

// Regime names the driver-exit flow assumption in force
type Regime string

const (
	// RegimeSupersonic assumes a sonic driver-gas exit (Me = 1)
	RegimeSupersonic Regime = "supersonic"
	// RegimeSubsonic solves for a self-consistent subsonic exit (Me = M3)
	RegimeSubsonic Regime = "subsonic"
)

// RootFindError records which regime's solve failed
type RootFindError struct {
	Regime Regime
	Stage  string
	Err    error
}

func (e *RootFindError) Error() string {
	return fmt.Sprintf("shocktube: %s solve for %s: %v", e.Regime, e.Stage, e.Err)
}

// Unwrap lets errors.Is match both ErrRootFindDivergence and the root cause
func (e *RootFindError) Unwrap() []error {
	return []error{ErrRootFindDivergence, e.Err}
}

// ShockCondition is the target post-incident-shock state and driver gas
type ShockCondition struct {
	P2        float64 // pressure behind incident shock [Pa]
	U2        float64 // lab-frame gas velocity behind incident shock [m/s]
	MW4       float64 // driver gas mean molecular weight [kg/kmol]
	Gamma4    float64 // driver gas specific heat ratio
	T4        float64 // driver gas initial temperature [K]
	AreaRatio float64 // driver-to-throat area ratio, >= 1
}

// Validate checks the physical preconditions
func (c ShockCondition) Validate() error {
	switch {
	case !(c.AreaRatio >= 1):
		return fmt.Errorf("area ratio %g must be >= 1: %w", c.AreaRatio, ErrInvalidConfiguration)
	case !(c.Gamma4 > 1):
		return fmt.Errorf("gamma4 %g must be > 1: %w", c.Gamma4, ErrInvalidConfiguration)
	case !(c.T4 > 0):
		return fmt.Errorf("T4 %g must be > 0: %w", c.T4, ErrInvalidConfiguration)
	case !(c.MW4 > 0):
		return fmt.Errorf("MW4 %g must be > 0: %w", c.MW4, ErrInvalidConfiguration)
	case !(c.P2 > 0):
		return fmt.Errorf("P2 %g must be > 0: %w", c.P2, ErrInvalidConfiguration)
	case !(c.U2 > 0):
		return fmt.Errorf("U2 %g must be > 0: %w", c.U2, ErrInvalidConfiguration)
	}
	return nil
}

// SoundSpeed returns the driver gas sonic speed a4 [m/s]
func (c ShockCondition) SoundSpeed() float64 {
	return math.Sqrt(c.Gamma4 * GasConstant / c.MW4 * c.T4)
}

// Solution is the required driver fill pressure and the Mach numbers of
// the converged state
type Solution struct {
	Pressure float64 // driver fill pressure P4 [Pa]
	M3       float64
	M3a      float64
	Me       float64
	Regime   Regime
}

// finder is the bracketed root finder used by the solver
type finder func(f func(float64) float64, a, b float64) (float64, error)

func brent(f func(float64) float64, a, b float64) (float64, error) {
	r, err := rootfind.Brent(f, a, b, rootfind.DefaultOptions)
	return r.Root, err
}

// SolveDriverPressure returns the driver fill pressure that realizes the
// shock condition, first assuming a sonic exit and falling back to the
// self-consistent subsonic solution when that assumption yields M3 < 1
func SolveDriverPressure(c ShockCondition) (Solution, error) {
	return solve(c, brent)
}

type solver struct {
	c    ShockCondition
	g    float64
	a4   float64
	find finder
}

func solve(c ShockCondition, find finder) (Solution, error) {
	if err := c.Validate(); err != nil {
		return Solution{}, err
	}
	s := &solver{c: c, g: c.Gamma4, a4: c.SoundSpeed(), find: find}

	me := 1.0
	m3a, err := s.solveM3a(me)
	if err != nil {
		return Solution{}, &RootFindError{Regime: RegimeSupersonic, Stage: "M3a", Err: err}
	}
	m3 := s.calcM3(m3a, me)
	regime := RegimeSupersonic

	if m3 < 1 {
		regime = RegimeSubsonic
		var innerErr error
		residual := func(trial float64) float64 {
			a, err := s.solveM3a(trial)
			if err != nil {
				if innerErr == nil {
					innerErr = err
				}
				return math.NaN()
			}
			return trial - s.calcM3(a, trial)
		}

		root, err := s.find(residual, 0, 1)
		if innerErr != nil {
			return Solution{}, &RootFindError{Regime: RegimeSubsonic, Stage: "M3a", Err: innerErr}
		}
		if err != nil {
			return Solution{}, &RootFindError{Regime: RegimeSubsonic, Stage: "M3", Err: err}
		}

		m3 = root
		me = m3
		if m3a, err = s.solveM3a(me); err != nil {
			return Solution{}, &RootFindError{Regime: RegimeSubsonic, Stage: "M3a", Err: err}
		}
	}

	g := s.g
	p4 := c.P2 / s.equivalenceFactor(m3a, me) * math.Pow(1+(g-1)/2*m3, 2*g/(g-1))

	return Solution{Pressure: p4, M3: m3, M3a: m3a, Me: me, Regime: regime}, nil
}

// equivalenceFactor is the isentropic relation linking M3a and Me
func (s *solver) equivalenceFactor(m3a, me float64) float64 {
	g := s.g
	base := math.Sqrt((2+(g-1)*m3a*m3a)/(2+(g-1)*me*me)) * (2 + (g-1)*me) / (2 + (g-1)*m3a)
	return math.Pow(base, 2*g/(g-1))
}

func (s *solver) calcM3(m3a, me float64) float64 {
	g := s.g
	return 1 / (s.a4/s.c.U2*math.Pow(s.equivalenceFactor(m3a, me), (g-1)/g/2) - (g-1)/2)
}

// solveM3a finds the upstream Mach number consistent with the area ratio
// for the given exit Mach number
func (s *solver) solveM3a(me float64) (float64, error) {
	g, ar := s.g, s.c.AreaRatio
	areaRatioError := func(m3a float64) float64 {
		return ar*m3a - me*math.Pow((2+(g-1)*m3a*m3a)/(2+(g-1)*me*me), (g+1)/(g-1)/2)
	}
	return s.find(areaRatioError, 0, 1)
}
