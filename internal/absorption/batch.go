package absorption

import (
	"fmt"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Layout names where the time axis sits in an absorbance array
type Layout int

const (
	// TimeLast arrays are indexed [wavelength][time]
	TimeLast Layout = iota
	// TimeFirst arrays are indexed [time][wavelength]
	TimeFirst
)

// String returns the layout name used in measurement files
func (l Layout) String() string {
	if l == TimeFirst {
		return "time-first"
	}
	return "time-last"
}

// ParseLayout converts a measurement-file layout name
func ParseLayout(s string) (Layout, error) {
	switch s {
	case "", "time-last":
		return TimeLast, nil
	case "time-first":
		return TimeFirst, nil
	default:
		return TimeLast, fmt.Errorf("layout %q: %w", s, ErrInvalidConfiguration)
	}
}

// SampleError identifies the time sample whose system could not be solved
type SampleError struct {
	Index int
	Err   error
}

func (e *SampleError) Error() string {
	return fmt.Sprintf("absorption: time sample %d: %v", e.Index, e.Err)
}

func (e *SampleError) Unwrap() error { return e.Err }

// Batch is a time series of N-wavelength absorbance measurements
type Batch struct {
	Absorbance [][]float64   // shaped by Layout
	Sigma      [][][]float64 // [N][N][1] constant in time, or [N][N][Tn]
	Conditions []Conditions  // length 1 (constant in time) or Tn
	Layout     Layout
}

// ConstantSigma wraps an N×N cross-section matrix as a time-constant tensor
func ConstantSigma(sigma [][]float64) [][][]float64 {
	out := make([][][]float64, len(sigma))
	for i, row := range sigma {
		out[i] = make([][]float64, len(row))
		for j, v := range row {
			out[i][j] = []float64{v}
		}
	}
	return out
}

// dims returns (N, Tn) after checking every array against them
func (b Batch) dims() (int, int, error) {
	var n, tn int
	switch b.Layout {
	case TimeLast:
		n = len(b.Absorbance)
		if n > 0 {
			tn = len(b.Absorbance[0])
		}
		for i, row := range b.Absorbance {
			if len(row) != tn {
				return 0, 0, fmt.Errorf("absorbance row %d has %d samples, want %d: %w", i, len(row), tn, ErrShape)
			}
		}
	case TimeFirst:
		tn = len(b.Absorbance)
		if tn > 0 {
			n = len(b.Absorbance[0])
		}
		for k, row := range b.Absorbance {
			if len(row) != n {
				return 0, 0, fmt.Errorf("absorbance sample %d has %d wavelengths, want %d: %w", k, len(row), n, ErrShape)
			}
		}
	default:
		return 0, 0, fmt.Errorf("layout %d: %w", b.Layout, ErrInvalidConfiguration)
	}
	if n == 0 || tn == 0 {
		return 0, 0, fmt.Errorf("empty absorbance array: %w", ErrShape)
	}

	if len(b.Sigma) != n {
		return 0, 0, fmt.Errorf("cross-section tensor has %d rows, want %d: %w", len(b.Sigma), n, ErrShape)
	}
	for i := range b.Sigma {
		if len(b.Sigma[i]) != n {
			return 0, 0, fmt.Errorf("cross-section row %d has %d columns, want %d: %w", i, len(b.Sigma[i]), n, ErrShape)
		}
		for j := range b.Sigma[i] {
			if l := len(b.Sigma[i][j]); l != 1 && l != tn {
				return 0, 0, fmt.Errorf("cross-section [%d][%d] has %d samples, want 1 or %d: %w", i, j, l, tn, ErrShape)
			}
		}
	}

	if l := len(b.Conditions); l != 1 && l != tn {
		return 0, 0, fmt.Errorf("%d conditions for %d samples: %w", l, tn, ErrShape)
	}
	for k, c := range b.Conditions {
		if err := c.Validate(); err != nil {
			return 0, 0, fmt.Errorf("conditions %d: %w", k, err)
		}
	}
	return n, tn, nil
}

// slice returns the absorbance vector, cross-section matrix and
// conditions of time sample k, broadcasting constant inputs
func (b Batch) slice(k, n int) ([]float64, [][]float64, Conditions) {
	a := make([]float64, n)
	for i := 0; i < n; i++ {
		if b.Layout == TimeLast {
			a[i] = b.Absorbance[i][k]
		} else {
			a[i] = b.Absorbance[k][i]
		}
	}

	sigma := make([][]float64, n)
	for i := 0; i < n; i++ {
		sigma[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			series := b.Sigma[i][j]
			if len(series) == 1 {
				sigma[i][j] = series[0]
			} else {
				sigma[i][j] = series[k]
			}
		}
	}

	c := b.Conditions[0]
	if len(b.Conditions) > 1 {
		c = b.Conditions[k]
	}
	return a, sigma, c
}

// SolveBatch solves every time sample's N×N system independently and
// returns mole fractions in the same layout as the absorbance input.
// Samples are solved concurrently; if any sample is singular the whole
// batch fails with a *SampleError naming the lowest such index.
func SolveBatch(b Batch) ([][]float64, error) {
	n, tn, err := b.dims()
	if err != nil {
		return nil, err
	}

	// time-major working array: one independent system per row
	x := make([][]float64, tn)
	errs := make([]error, tn)

	// lowest failing sample so far; samples above it are skipped, samples
	// below it still run so the reported index does not depend on scheduling
	var lowest atomic.Int64
	lowest.Store(int64(tn))

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for k := 0; k < tn; k++ {
		g.Go(func() error {
			if int64(k) > lowest.Load() {
				return nil
			}
			a, sigma, c := b.slice(k, n)
			sol, err := solve(a, sigma, c.factor())
			if err != nil {
				errs[k] = err
				for {
					cur := lowest.Load()
					if int64(k) >= cur || lowest.CompareAndSwap(cur, int64(k)) {
						break
					}
				}
				return nil
			}
			x[k] = sol
			return nil
		})
	}
	_ = g.Wait()
	if k := int(lowest.Load()); k < tn {
		return nil, &SampleError{Index: k, Err: errs[k]}
	}

	if b.Layout == TimeFirst {
		return x, nil
	}
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, tn)
		for k := 0; k < tn; k++ {
			out[i][k] = x[k][i]
		}
	}
	return out, nil
}
