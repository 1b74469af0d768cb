// Package absorption inverts the Beer-Lambert relation
//
//	A = σ X Nₐ L P / (R T)
//
// to recover species mole fractions from measured absorbance, for one
// species, for N species observed at N wavelengths, and for time series of
// such measurements.
package absorption

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	// AvogadroNumber [molecules/mol]
	AvogadroNumber = 6.02214076e23
	// GasConstant is the universal gas constant [J kmol^-1 K^-1]
	GasConstant = 8.31432e3

	// crossSectionScale converts cross-sections given in cm² to the
	// units of the rest of the relation
	crossSectionScale = 1e-6
)

var (
	// ErrSingularSystem is returned when the absorption system cannot be solved
	ErrSingularSystem = errors.New("absorption: singular system")
	// ErrShape is returned for inconsistent array dimensions
	ErrShape = errors.New("absorption: inconsistent dimensions")
	// ErrInvalidConfiguration is returned for non-physical conditions
	ErrInvalidConfiguration = errors.New("absorption: invalid configuration")
)

// Conditions are the gas state and optical path of a measurement
type Conditions struct {
	Temperature float64 // [K]
	Pressure    float64 // [Pa]
	PathLength  float64 // [cm]
}

// Validate requires strictly positive, finite conditions
func (c Conditions) Validate() error {
	for _, v := range []struct {
		name  string
		value float64
	}{
		{"temperature", c.Temperature},
		{"pressure", c.Pressure},
		{"path length", c.PathLength},
	} {
		if !(v.value > 0) || math.IsInf(v.value, 0) {
			return fmt.Errorf("%s %g: %w", v.name, v.value, ErrInvalidConfiguration)
		}
	}
	return nil
}

// factor returns Nₐ·L·P/(R·T) including the cross-section unit scaling,
// so that A = σ·factor·X
func (c Conditions) factor() float64 {
	return crossSectionScale * AvogadroNumber * c.PathLength * c.Pressure / (GasConstant * c.Temperature)
}

// Absorbance is the forward Beer-Lambert relation for one species
func Absorbance(x, sigma float64, c Conditions) float64 {
	return sigma * c.factor() * x
}

// MoleFraction inverts Absorbance for one species at one time
func MoleFraction(a, sigma float64, c Conditions) (float64, error) {
	if err := c.Validate(); err != nil {
		return math.NaN(), err
	}
	if sigma == 0 || math.IsNaN(sigma) {
		return math.NaN(), fmt.Errorf("cross-section %g: %w", sigma, ErrSingularSystem)
	}
	return a / (sigma * c.factor()), nil
}

// AbsorbanceVector is the forward relation for N species at N wavelengths:
// A[i] = Σⱼ σ[i][j]·factor·X[j]
func AbsorbanceVector(x []float64, sigma [][]float64, c Conditions) ([]float64, error) {
	n, err := squareSize(sigma)
	if err != nil {
		return nil, err
	}
	if len(x) != n {
		return nil, fmt.Errorf("%d mole fractions for %d species: %w", len(x), n, ErrShape)
	}

	f := c.factor()
	a := make([]float64, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			a[i] += sigma[i][j] * f * x[j]
		}
	}
	return a, nil
}

// Solve recovers N mole fractions from N absorbances by solving M·X = A
// with M[i][j] = σ[i][j]·Nₐ·L·P/(R·T). The system is solved directly by
// LU factorization, never by forming the inverse.
func Solve(a []float64, sigma [][]float64, c Conditions) ([]float64, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	n, err := squareSize(sigma)
	if err != nil {
		return nil, err
	}
	if len(a) != n {
		return nil, fmt.Errorf("%d absorbances for %d wavelengths: %w", len(a), n, ErrShape)
	}
	return solve(a, sigma, c.factor())
}

func solve(a []float64, sigma [][]float64, factor float64) ([]float64, error) {
	n := len(a)
	data := make([]float64, 0, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			data = append(data, sigma[i][j]*factor)
		}
	}
	m := mat.NewDense(n, n, data)
	rhs := mat.NewVecDense(n, append([]float64(nil), a...))

	var x mat.VecDense
	if err := x.SolveVec(m, rhs); err != nil {
		// mat.ErrSingular or an ill-conditioned mat.Condition
		return nil, fmt.Errorf("%v: %w", err, ErrSingularSystem)
	}

	out := make([]float64, n)
	for i := range out {
		out[i] = x.AtVec(i)
		if math.IsNaN(out[i]) || math.IsInf(out[i], 0) {
			return nil, fmt.Errorf("non-finite mole fraction for species %d: %w", i, ErrSingularSystem)
		}
	}
	return out, nil
}

func squareSize(sigma [][]float64) (int, error) {
	n := len(sigma)
	if n == 0 {
		return 0, fmt.Errorf("empty cross-section matrix: %w", ErrShape)
	}
	for i, row := range sigma {
		if len(row) != n {
			return 0, fmt.Errorf("cross-section row %d has %d entries, want %d: %w", i, len(row), n, ErrShape)
		}
	}
	return n, nil
}
