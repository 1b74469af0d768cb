package sweep

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hochfrequenz/knightshock/internal/domain"
	"github.com/hochfrequenz/knightshock/internal/ignition"
)

// HistoryFileName returns the species-history file name for a case, e.g.
// "h2-global_P=1.0MPa_T=1200.0K_stoich.csv"
func HistoryFileName(c domain.ParameterCase) string {
	name := fmt.Sprintf("%s_P=%sMPa_T=%sK_%s.csv",
		filepath.Base(c.MechanismID),
		pointed(strconv.FormatFloat(c.Pressure/1e6, 'g', 2, 64)),
		pointed(strconv.FormatFloat(c.Temperature, 'g', -1, 64)),
		c.Composition.Label())
	return sanitizeFileName(name)
}

// pointed appends ".0" to integral renderings so 1 reads as 1.0
func pointed(s string) string {
	if strings.ContainsAny(s, ".eIN") {
		return s
	}
	return s + ".0"
}

func sanitizeFileName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_', r == '=', r == '+':
			return r
		default:
			return '_'
		}
	}, s)
}

// writeHistory writes time, temperature, pressure and the ranked species
// mole fractions of tr. Each case gets its own file.
func writeHistory(dir string, c domain.ParameterCase, tr *domain.Trajectory, rank ignition.RankOptions) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	species := ignition.TopSpecies(tr, rank)
	cols := make([]int, len(species))
	for i, name := range species {
		cols[i] = tr.SpeciesIndex(name)
	}

	path := filepath.Join(dir, HistoryFileName(c))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := append([]string{"time", "temperature", "pressure"}, species...)
	if err := w.Write(header); err != nil {
		return "", err
	}
	row := make([]string, len(header))
	for _, s := range tr.Samples {
		row[0] = formatFloat(s.Time)
		row[1] = formatFloat(s.Temperature)
		row[2] = formatFloat(s.Pressure)
		for i, k := range cols {
			row[3+i] = formatFloat(s.X[k])
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return path, f.Close()
}
