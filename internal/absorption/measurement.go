package absorption

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Measurement is a time-resolved multi-wavelength absorbance record as
// stored in a TOML measurement file
type Measurement struct {
	Species     []string      `toml:"species"`
	Layout      string        `toml:"layout"`
	Temperature []float64     `toml:"temperature"`
	Pressure    []float64     `toml:"pressure"`
	PathLength  float64       `toml:"path_length"`
	Absorbance  [][]float64   `toml:"absorbance"`
	Sigma       [][][]float64 `toml:"sigma"`
}

// LoadMeasurement reads a measurement file
func LoadMeasurement(path string) (*Measurement, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var m Measurement
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &m, nil
}

// Batch converts the measurement into a solvable batch. Temperature and
// pressure hold one value (constant) or one per time sample; when both are
// per-sample they must have the same length.
func (m *Measurement) Batch() (Batch, error) {
	layout, err := ParseLayout(m.Layout)
	if err != nil {
		return Batch{}, err
	}

	nt, np := len(m.Temperature), len(m.Pressure)
	if nt == 0 || np == 0 {
		return Batch{}, fmt.Errorf("temperature and pressure are required: %w", ErrInvalidConfiguration)
	}
	count := max(nt, np)
	if (nt != 1 && nt != count) || (np != 1 && np != count) {
		return Batch{}, fmt.Errorf("%d temperatures and %d pressures: %w", nt, np, ErrShape)
	}

	conds := make([]Conditions, count)
	for k := range conds {
		conds[k] = Conditions{
			Temperature: m.Temperature[min(k, nt-1)],
			Pressure:    m.Pressure[min(k, np-1)],
			PathLength:  m.PathLength,
		}
	}

	return Batch{
		Absorbance: m.Absorbance,
		Sigma:      m.Sigma,
		Conditions: conds,
		Layout:     layout,
	}, nil
}
