// Package rootfind provides bracketed scalar root finding.
package rootfind

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrNoBracket is returned when f(a) and f(b) share a sign
	ErrNoBracket = errors.New("rootfind: interval does not bracket a root")
	// ErrMaxIterations is returned when the tolerance is not met in time
	ErrMaxIterations = errors.New("rootfind: did not converge")
	// ErrNonFinite is returned when f yields NaN or Inf inside the bracket
	ErrNonFinite = errors.New("rootfind: function returned a non-finite value")
)

// Options controls convergence. Zero values select the defaults.
type Options struct {
	XTol    float64 // absolute tolerance on the root
	RTol    float64 // relative tolerance on the root
	MaxIter int
}

// DefaultOptions mirrors the tolerances commonly used for Brent's method
var DefaultOptions = Options{
	XTol:    2e-12,
	RTol:    4 * 2.220446049250313e-16,
	MaxIter: 100,
}

func (o Options) withDefaults() Options {
	if o.XTol <= 0 {
		o.XTol = DefaultOptions.XTol
	}
	if o.RTol <= 0 {
		o.RTol = DefaultOptions.RTol
	}
	if o.MaxIter <= 0 {
		o.MaxIter = DefaultOptions.MaxIter
	}
	return o
}

// Result describes a converged root
type Result struct {
	Root       float64
	Iterations int
	Calls      int
}

// Brent finds a root of f in [a, b] using Brent's method (bisection
// combined with secant and inverse quadratic interpolation). f(a) and f(b)
// must have opposite signs unless one of them is exactly zero.
func Brent(f func(float64) float64, a, b float64, opts Options) (Result, error) {
	opts = opts.withDefaults()

	calls := 0
	eval := func(x float64) (float64, error) {
		calls++
		y := f(x)
		if math.IsNaN(y) || math.IsInf(y, 0) {
			return y, fmt.Errorf("f(%g) = %g: %w", x, y, ErrNonFinite)
		}
		return y, nil
	}

	xpre, xcur := a, b
	fpre, err := eval(xpre)
	if err != nil {
		return Result{Calls: calls}, err
	}
	fcur, err := eval(xcur)
	if err != nil {
		return Result{Calls: calls}, err
	}

	if fpre == 0 {
		return Result{Root: xpre, Calls: calls}, nil
	}
	if fcur == 0 {
		return Result{Root: xcur, Calls: calls}, nil
	}
	if math.Signbit(fpre) == math.Signbit(fcur) {
		return Result{Calls: calls}, fmt.Errorf("f(%g)=%g, f(%g)=%g: %w", a, fpre, b, fcur, ErrNoBracket)
	}

	var xblk, fblk, spre, scur float64
	for i := 0; i < opts.MaxIter; i++ {
		if fpre != 0 && fcur != 0 && math.Signbit(fpre) != math.Signbit(fcur) {
			xblk, fblk = xpre, fpre
			spre = xcur - xpre
			scur = spre
		}
		if math.Abs(fblk) < math.Abs(fcur) {
			xpre, xcur, xblk = xcur, xblk, xcur
			fpre, fcur, fblk = fcur, fblk, fcur
		}

		delta := (opts.XTol + opts.RTol*math.Abs(xcur)) / 2
		sbis := (xblk - xcur) / 2
		if fcur == 0 || math.Abs(sbis) < delta {
			return Result{Root: xcur, Iterations: i, Calls: calls}, nil
		}

		if math.Abs(spre) > delta && math.Abs(fcur) < math.Abs(fpre) {
			var stry float64
			if xpre == xblk {
				// secant
				stry = -fcur * (xcur - xpre) / (fcur - fpre)
			} else {
				// inverse quadratic interpolation
				dpre := (fpre - fcur) / (xpre - xcur)
				dblk := (fblk - fcur) / (xblk - xcur)
				stry = -fcur * (fblk*dblk - fpre*dpre) / (dblk * dpre * (fblk - fpre))
			}
			if 2*math.Abs(stry) < math.Min(math.Abs(spre), 3*math.Abs(sbis)-delta) {
				spre, scur = scur, stry
			} else {
				spre, scur = sbis, sbis
			}
		} else {
			spre, scur = sbis, sbis
		}

		xpre, fpre = xcur, fcur
		if math.Abs(scur) > delta {
			xcur += scur
		} else if sbis > 0 {
			xcur += delta
		} else {
			xcur -= delta
		}

		if fcur, err = eval(xcur); err != nil {
			return Result{Iterations: i, Calls: calls}, err
		}
	}

	return Result{Root: xcur, Iterations: opts.MaxIter, Calls: calls},
		fmt.Errorf("after %d iterations: %w", opts.MaxIter, ErrMaxIterations)
}
