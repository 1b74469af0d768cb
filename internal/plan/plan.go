// Package plan reads sweep plans: TOML files naming the mechanisms,
// temperatures, pressures and mixtures of a sweep.
package plan

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/hochfrequenz/knightshock/internal/config"
	"github.com/hochfrequenz/knightshock/internal/domain"
	"github.com/hochfrequenz/knightshock/internal/mixture"
	"github.com/hochfrequenz/knightshock/internal/sweep"
)

// ErrInvalidPlan is returned for plans that cannot produce a grid
var ErrInvalidPlan = errors.New("plan: invalid plan")

// Range is an inclusive, evenly spaced sequence
type Range struct {
	Start float64 `toml:"start"`
	Stop  float64 `toml:"stop"`
	Num   int     `toml:"num"`
}

// Values returns Num values from Start to Stop inclusive
func (r Range) Values() ([]float64, error) {
	if r.Num < 1 {
		return nil, fmt.Errorf("range needs num >= 1, got %d: %w", r.Num, ErrInvalidPlan)
	}
	if r.Num == 1 {
		return []float64{r.Start}, nil
	}
	step := (r.Stop - r.Start) / float64(r.Num-1)
	vals := make([]float64, r.Num)
	for i := range vals {
		vals[i] = r.Start + float64(i)*step
	}
	vals[r.Num-1] = r.Stop
	return vals, nil
}

var pressureUnits = map[string]float64{
	"":    1,
	"pa":  1,
	"kpa": 1e3,
	"mpa": 1e6,
	"bar": 1e5,
	"atm": 101325,
}

// Plan is a parsed sweep plan
type Plan struct {
	Name             string                  `toml:"name"`
	Mechanisms       []string                `toml:"mechanisms"`
	Temperatures     []float64               `toml:"temperatures"`
	TemperatureRange *Range                  `toml:"temperature_range"`
	Pressures        []float64               `toml:"pressures"`
	PressureRange    *Range                  `toml:"pressure_range"`
	PressureUnit     string                  `toml:"pressure_unit"` // Pa (default), kPa, MPa, bar or atm
	Mixtures         map[string]string       `toml:"mixtures"`
	Simulation       config.SimulationConfig `toml:"simulation"`

	// Path is the file the plan was loaded from
	Path string `toml:"-"`
}

// Load reads a plan file. A plan without a name is named after its file.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	p.Path = path
	if p.Name == "" {
		p.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return p, nil
}

// Parse decodes a plan and checks that it produces a valid grid
func Parse(data []byte) (*Plan, error) {
	var p Plan
	if err := toml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrInvalidPlan)
	}
	if _, err := p.Grid(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Grid expands the plan into a sweep grid. Temperatures and pressures are
// sorted and deduplicated; mixtures are ordered by name.
func (p *Plan) Grid() (sweep.Grid, error) {
	temps, err := axis(p.Temperatures, p.TemperatureRange, 1)
	if err != nil {
		return sweep.Grid{}, fmt.Errorf("temperatures: %w", err)
	}

	unit, ok := pressureUnits[strings.ToLower(strings.TrimSpace(p.PressureUnit))]
	if !ok {
		return sweep.Grid{}, fmt.Errorf("unknown pressure unit %q: %w", p.PressureUnit, ErrInvalidPlan)
	}
	pressures, err := axis(p.Pressures, p.PressureRange, unit)
	if err != nil {
		return sweep.Grid{}, fmt.Errorf("pressures: %w", err)
	}

	names := make([]string, 0, len(p.Mixtures))
	for name := range p.Mixtures {
		names = append(names, name)
	}
	sort.Strings(names)

	comps := make([]domain.Composition, 0, len(names))
	for _, name := range names {
		m, err := mixture.Parse(p.Mixtures[name])
		if err != nil {
			return sweep.Grid{}, fmt.Errorf("mixture %s: %v: %w", name, err, ErrInvalidPlan)
		}
		comps = append(comps, m.Composition(name))
	}

	mechs := make([]string, 0, len(p.Mechanisms))
	for _, m := range p.Mechanisms {
		mechs = append(mechs, strings.TrimSpace(m))
	}

	g := sweep.Grid{
		Name:         p.Name,
		Mechanisms:   mechs,
		Temperatures: temps,
		Pressures:    pressures,
		Compositions: comps,
	}
	if err := g.Validate(); err != nil {
		return sweep.Grid{}, fmt.Errorf("%v: %w", err, ErrInvalidPlan)
	}
	return g, nil
}

// axis merges explicit values with a range, scales them and removes duplicates
func axis(values []float64, r *Range, scale float64) ([]float64, error) {
	all := append([]float64(nil), values...)
	if r != nil {
		vals, err := r.Values()
		if err != nil {
			return nil, err
		}
		all = append(all, vals...)
	}
	for i := range all {
		all[i] *= scale
	}
	sort.Float64s(all)

	out := all[:0]
	for i, v := range all {
		if i == 0 || v != all[i-1] {
			out = append(out, v)
		}
	}
	return out, nil
}
