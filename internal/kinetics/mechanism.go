package kinetics

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// GasConstant is the universal gas constant [J/(kmol K)]
const GasConstant = 8314.462618

// SpeciesDef is a species with constant heat capacity thermo
type SpeciesDef struct {
	Name      string  `yaml:"name"`
	MolarMass float64 `yaml:"molar-mass"` // [kg/kmol]
	Cp        float64 `yaml:"cp"`         // [J/(kmol K)]
	Hf        float64 `yaml:"hf"`         // formation enthalpy at the reference temperature [J/kmol]
}

// ReactionDef is an irreversible global Arrhenius step
//
//	q = A T^b exp(-Ea/(R T)) prod(c_k^order_k)   [kmol/(m3 s)]
type ReactionDef struct {
	Equation  string             `yaml:"equation"`
	Reactants map[string]float64 `yaml:"reactants"`
	Products  map[string]float64 `yaml:"products"`
	Orders    map[string]float64 `yaml:"orders"` // defaults to the reactant coefficients
	A         float64            `yaml:"A"`
	B         float64            `yaml:"b"`
	Ea        float64            `yaml:"Ea"` // [J/kmol]
}

// GlobalMechanism is a mechanism of global Arrhenius reactions with
// constant heat capacities. It is read-only after parsing.
type GlobalMechanism struct {
	MechName    string        `yaml:"name"`
	Description string        `yaml:"description"`
	TRef        float64       `yaml:"reference-temperature"`
	MaxStep     float64       `yaml:"max-step"`             // [s]
	MaxDeltaT   float64       `yaml:"max-temperature-step"` // [K]
	SpeciesDefs []SpeciesDef  `yaml:"species"`
	Reactions   []ReactionDef `yaml:"reactions"`

	names []string
	index map[string]int
	rxns  []compiledReaction
}

type compiledReaction struct {
	a, b, ea float64
	orders   []term
	nu       []term // net stoichiometry
}

type term struct {
	k int
	v float64
}

const (
	defaultTRef      = 298.15
	defaultMaxStep   = 1e-6
	defaultMaxDeltaT = 2.0
)

// ParseMechanism decodes and validates a YAML mechanism definition
func ParseMechanism(data []byte) (*GlobalMechanism, error) {
	var m GlobalMechanism
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrInvalidMechanism)
	}
	if err := m.compile(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *GlobalMechanism) compile() error {
	if m.TRef == 0 {
		m.TRef = defaultTRef
	}
	if m.MaxStep == 0 {
		m.MaxStep = defaultMaxStep
	}
	if m.MaxDeltaT == 0 {
		m.MaxDeltaT = defaultMaxDeltaT
	}
	if !(m.TRef > 0) || !(m.MaxStep > 0) || !(m.MaxDeltaT > 0) {
		return fmt.Errorf("reference temperature and step limits must be positive: %w", ErrInvalidMechanism)
	}
	if len(m.SpeciesDefs) == 0 {
		return fmt.Errorf("no species: %w", ErrInvalidMechanism)
	}

	m.index = make(map[string]int, len(m.SpeciesDefs))
	m.names = make([]string, len(m.SpeciesDefs))
	for i := range m.SpeciesDefs {
		sp := &m.SpeciesDefs[i]
		sp.Name = strings.ToUpper(strings.TrimSpace(sp.Name))
		if sp.Name == "" {
			return fmt.Errorf("species %d has no name: %w", i, ErrInvalidMechanism)
		}
		if _, dup := m.index[sp.Name]; dup {
			return fmt.Errorf("duplicate species %s: %w", sp.Name, ErrInvalidMechanism)
		}
		if !(sp.MolarMass > 0) {
			return fmt.Errorf("species %s: molar mass must be positive: %w", sp.Name, ErrInvalidMechanism)
		}
		// cv = cp - R must stay positive for the constant-volume energy balance
		if !(sp.Cp > GasConstant) {
			return fmt.Errorf("species %s: cp must exceed R: %w", sp.Name, ErrInvalidMechanism)
		}
		m.index[sp.Name] = i
		m.names[i] = sp.Name
	}

	m.rxns = make([]compiledReaction, 0, len(m.Reactions))
	for i, r := range m.Reactions {
		label := r.Equation
		if label == "" {
			label = fmt.Sprintf("#%d", i)
		}
		if !(r.A > 0) || math.IsInf(r.A, 0) {
			return fmt.Errorf("reaction %s: A must be positive: %w", label, ErrInvalidMechanism)
		}
		if len(r.Reactants) == 0 {
			return fmt.Errorf("reaction %s: no reactants: %w", label, ErrInvalidMechanism)
		}
		orders := r.Orders
		if orders == nil {
			orders = r.Reactants
		}

		net := make(map[int]float64)
		cr := compiledReaction{a: r.A, b: r.B, ea: r.Ea}
		for name, v := range r.Reactants {
			k, err := m.lookup(label, name)
			if err != nil {
				return err
			}
			net[k] -= v
		}
		for name, v := range r.Products {
			k, err := m.lookup(label, name)
			if err != nil {
				return err
			}
			net[k] += v
		}
		for name, v := range orders {
			k, err := m.lookup(label, name)
			if err != nil {
				return err
			}
			cr.orders = append(cr.orders, term{k, v})
		}
		for k, v := range net {
			if v != 0 {
				cr.nu = append(cr.nu, term{k, v})
			}
		}
		sortTerms(cr.orders)
		sortTerms(cr.nu)
		m.rxns = append(m.rxns, cr)
	}
	return nil
}

func (m *GlobalMechanism) lookup(reaction, name string) (int, error) {
	k, ok := m.index[strings.ToUpper(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("reaction %s references %s: %w", reaction, name, ErrUnknownSpecies)
	}
	return k, nil
}

func sortTerms(ts []term) {
	sort.Slice(ts, func(i, j int) bool { return ts[i].k < ts[j].k })
}

// Name returns the mechanism name
func (m *GlobalMechanism) Name() string { return m.MechName }

// SpeciesNames returns the species in mechanism order
func (m *GlobalMechanism) SpeciesNames() []string {
	return append([]string(nil), m.names...)
}

// NewReactor creates an uninitialized reactor of the given kind
func (m *GlobalMechanism) NewReactor(kind Kind) (Reactor, error) {
	switch kind {
	case ConstantVolume, ConstantPressure:
	default:
		return nil, fmt.Errorf("reactor %q: %w", kind, ErrInvalidState)
	}
	n := len(m.names)
	return &reactor{
		mech: m,
		kind: kind,
		n:    make([]float64, n),
		c:    make([]float64, n),
		dn:   make([]float64, n),
	}, nil
}

// enthalpy returns the molar enthalpy of species k at temperature T [J/kmol]
func (m *GlobalMechanism) enthalpy(k int, T float64) float64 {
	sp := &m.SpeciesDefs[k]
	return sp.Hf + sp.Cp*(T-m.TRef)
}
