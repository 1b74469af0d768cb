// Package mixture turns user-supplied mixture descriptions into validated
// species→mole-fraction mappings.
package mixture

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/hochfrequenz/knightshock/internal/domain"
)

// ErrInvalidMixture is returned for malformed or unphysical mixtures
var ErrInvalidMixture = errors.New("mixture: invalid mixture")

// Mixture maps uppercase species names to fractions
type Mixture map[string]float64

// Parse reads "CH4: 0.04, O2: 0.08, AR: 0.88". A bare name such as "AR"
// is a pure species with fraction 1.0. Braces are ignored.
func Parse(s string) (Mixture, error) {
	s = strings.NewReplacer("{", "", "}", "").Replace(s)
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return nil, fmt.Errorf("empty mixture: %w", ErrInvalidMixture)
	}

	if !strings.Contains(s, ":") {
		if strings.Contains(s, ",") {
			return nil, fmt.Errorf("%q: species list without fractions: %w", s, ErrInvalidMixture)
		}
		return Mixture{s: 1.0}, nil
	}

	m := make(Mixture)
	for _, element := range strings.Split(s, ",") {
		name, value, ok := strings.Cut(element, ":")
		if !ok {
			return nil, fmt.Errorf("%q: missing ':' in %q: %w", s, element, ErrInvalidMixture)
		}
		name = strings.TrimSpace(name)
		x, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return nil, fmt.Errorf("%q: fraction of %s: %w", s, name, ErrInvalidMixture)
		}
		if _, dup := m[name]; dup {
			return nil, fmt.Errorf("%q: duplicate species %s: %w", s, name, ErrInvalidMixture)
		}
		m[name] = x
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// FromMap trims and uppercases species names
func FromMap(in map[string]float64) (Mixture, error) {
	m := make(Mixture, len(in))
	for name, x := range in {
		key := strings.ToUpper(strings.TrimSpace(name))
		if _, dup := m[key]; dup {
			return nil, fmt.Errorf("duplicate species %s: %w", key, ErrInvalidMixture)
		}
		m[key] = x
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate rejects empty names, negative or non-finite fractions and
// mixtures whose fractions are all zero
func (m Mixture) Validate() error {
	if len(m) == 0 {
		return fmt.Errorf("no species: %w", ErrInvalidMixture)
	}
	total := 0.0
	for name, x := range m {
		if name == "" {
			return fmt.Errorf("empty species name: %w", ErrInvalidMixture)
		}
		if math.IsNaN(x) || math.IsInf(x, 0) || x < 0 {
			return fmt.Errorf("fraction of %s is %g: %w", name, x, ErrInvalidMixture)
		}
		total += x
	}
	if total == 0 {
		return fmt.Errorf("all fractions are zero: %w", ErrInvalidMixture)
	}
	return nil
}

// Normalized returns a copy whose fractions sum to one
func (m Mixture) Normalized() Mixture {
	total := 0.0
	for _, x := range m {
		total += x
	}
	out := make(Mixture, len(m))
	for name, x := range m {
		out[name] = x / total
	}
	return out
}

// Names returns the species names sorted alphabetically
func (m Mixture) Names() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// String renders the canonical "NAME: value, ..." form
func (m Mixture) String() string {
	return m.Composition("").String()
}

// Composition wraps the mixture into a named domain composition
func (m Mixture) Composition(name string) domain.Composition {
	x := make(map[string]float64, len(m))
	for k, v := range m {
		x[k] = v
	}
	return domain.Composition{Name: name, X: x}
}
