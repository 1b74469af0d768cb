// Package ignition extracts ignition-delay metrics from a single reactor
// time history and ranks the species it carries.
package ignition

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/hochfrequenz/knightshock/internal/domain"
)

// ErrInvalidConfiguration is returned for an unknown detection method or a
// signal species the trajectory does not carry
var ErrInvalidConfiguration = errors.New("ignition: invalid configuration")

// Method selects how the ignition event is located in the signal
type Method string

const (
	// Inflection locates the maximum discrete slope of the signal
	Inflection Method = "inflection"
	// Peak locates the maximum of the signal
	Peak Method = "peak"
)

// ParseMethod converts a method name; the empty string selects Inflection
func ParseMethod(s string) (Method, error) {
	switch m := Method(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return Inflection, nil
	case Inflection, Peak:
		return m, nil
	default:
		return "", fmt.Errorf("method %q; valid methods are %q and %q: %w", s, Inflection, Peak, ErrInvalidConfiguration)
	}
}

// Options configures ignition-delay detection
type Options struct {
	Method  Method
	Species string // empty means the temperature history is the signal
}

// Validate checks the method name
func (o Options) Validate() error {
	switch o.Method {
	case Inflection, Peak:
		return nil
	default:
		return fmt.Errorf("method %q: %w", o.Method, ErrInvalidConfiguration)
	}
}

// Signal returns a description of the signal, e.g. "T" or "X(OH)"
func (o Options) Signal() string {
	if o.Species == "" {
		return "T"
	}
	return "X(" + strings.ToUpper(o.Species) + ")"
}

// Delay returns the ignition delay time of the trajectory. The boolean is
// false when the event cannot be resolved inside the simulated window: the
// maximum slope falls on the last interval (inflection) or the maximum
// value on the last sample (peak). An unresolved event is not an error.
func Delay(tr *domain.Trajectory, opts Options) (float64, bool, error) {
	if err := opts.Validate(); err != nil {
		return math.NaN(), false, err
	}

	var x []float64
	if opts.Species == "" {
		x = tr.Temperatures()
	} else {
		var ok bool
		if x, ok = tr.MoleFractions(opts.Species); !ok {
			return math.NaN(), false, fmt.Errorf("species %q not in trajectory: %w", opts.Species, ErrInvalidConfiguration)
		}
	}
	t := tr.Times()

	switch opts.Method {
	case Inflection:
		return inflection(t, x)
	default:
		return peak(t, x)
	}
}

func inflection(t, x []float64) (float64, bool, error) {
	n := len(t)
	if n < 2 {
		return math.NaN(), false, nil
	}

	best, bestSlope := -1, math.Inf(-1)
	for i := 0; i < n-1; i++ {
		slope := (x[i+1] - x[i]) / (t[i+1] - t[i])
		if math.IsNaN(slope) {
			return math.NaN(), false, nil
		}
		if best < 0 || slope > bestSlope {
			best, bestSlope = i, slope
		}
	}

	// steepest rise on the final interval: the true maximum may lie beyond
	if best == n-2 {
		return math.NaN(), false, nil
	}
	return t[best], true, nil
}

func peak(t, x []float64) (float64, bool, error) {
	n := len(t)
	if n == 0 {
		return math.NaN(), false, nil
	}

	best := 0
	for i := 1; i < n; i++ {
		if math.IsNaN(x[i]) {
			return math.NaN(), false, nil
		}
		if x[i] > x[best] {
			best = i
		}
	}

	if best == n-1 {
		return math.NaN(), false, nil
	}
	return t[best], true, nil
}

// RankOptions bounds and filters TopSpecies
type RankOptions struct {
	Count   *int     // maximum number of names returned; nil returns all
	Exclude []string // matched case-insensitively
}

// Limit returns a Count bound of n. A bound of zero is honored and
// yields no names.
func Limit(n int) *int {
	if n < 0 {
		n = 0
	}
	return &n
}

// TopSpecies ranks species by their maximum mole fraction over the whole
// trajectory, largest first
func TopSpecies(tr *domain.Trajectory, opts RankOptions) []string {
	if tr.Len() == 0 {
		return nil
	}

	type ranked struct {
		name string
		max  float64
	}
	all := make([]ranked, len(tr.Species))
	for j, name := range tr.Species {
		all[j] = ranked{name: name, max: math.Inf(-1)}
	}
	for _, s := range tr.Samples {
		for j, x := range s.X {
			if x > all[j].max {
				all[j].max = x
			}
		}
	}

	sort.SliceStable(all, func(a, b int) bool {
		if all[a].max != all[b].max {
			return all[a].max > all[b].max
		}
		return all[a].name > all[b].name
	})

	names := make([]string, 0, len(all))
	for _, r := range all {
		if excluded(r.name, opts.Exclude) {
			continue
		}
		names = append(names, r.name)
	}

	if opts.Count != nil && *opts.Count < len(names) {
		names = names[:*opts.Count]
	}
	return names
}

func excluded(name string, exclude []string) bool {
	for _, e := range exclude {
		if strings.EqualFold(strings.TrimSpace(e), name) {
			return true
		}
	}
	return false
}
