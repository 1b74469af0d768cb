package shocktube

import (
	"fmt"
	"sort"
	"strings"
)

// DriverGas holds the properties of a driver gas
type DriverGas struct {
	Name  string
	MW    float64 // [kg/kmol]
	Gamma float64
}

var driverGases = map[string]DriverGas{
	"HE": {Name: "He", MW: 4.002602, Gamma: 5.0 / 3.0},
	"AR": {Name: "Ar", MW: 39.948, Gamma: 5.0 / 3.0},
	"N2": {Name: "N2", MW: 28.0134, Gamma: 1.4},
	"H2": {Name: "H2", MW: 2.01588, Gamma: 1.405},
}

// LookupDriverGas returns a preset by case-insensitive name
func LookupDriverGas(name string) (DriverGas, error) {
	g, ok := driverGases[strings.ToUpper(strings.TrimSpace(name))]
	if !ok {
		return DriverGas{}, fmt.Errorf("unknown driver gas %q (known: %s): %w",
			name, strings.Join(DriverGasNames(), ", "), ErrInvalidConfiguration)
	}
	return g, nil
}

// DriverGasNames lists the preset names
func DriverGasNames() []string {
	names := make([]string, 0, len(driverGases))
	for _, g := range driverGases {
		names = append(names, g.Name)
	}
	sort.Strings(names)
	return names
}
