package domain

import (
	"fmt"
	"sort"
	"strings"
)

// Composition is a named, validated species→mole-fraction mapping
type Composition struct {
	Name string
	X    map[string]float64
}

// String renders the fractions as "NAME: value, ..." sorted by species name
func (c Composition) String() string {
	names := make([]string, 0, len(c.X))
	for name := range c.X {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s: %g", name, c.X[name])
	}
	return strings.Join(parts, ", ")
}

// Label returns the composition name, falling back to its rendered fractions
func (c Composition) Label() string {
	if c.Name != "" {
		return c.Name
	}
	return c.String()
}

// ParameterCase is one point of a sweep grid. Index is its position in the
// grid enumeration and only identifies the case; it implies nothing about
// when the case runs.
type ParameterCase struct {
	Index       int
	MechanismID string
	Temperature float64 // initial temperature [K]
	Pressure    float64 // initial pressure [Pa]
	Composition Composition
}

// Key returns the identity of the case built from its input tuple
func (c ParameterCase) Key() string {
	return fmt.Sprintf("%s|%g|%g|%s", c.MechanismID, c.Temperature, c.Pressure, c.Composition.Label())
}

// String returns a short human-readable description
func (c ParameterCase) String() string {
	return fmt.Sprintf("#%d %s T=%gK P=%gPa X=%s", c.Index, c.MechanismID, c.Temperature, c.Pressure, c.Composition.Label())
}
