package kinetics

import (
	"fmt"
	"math"
	"strings"

	"github.com/hochfrequenz/knightshock/internal/domain"
)

const (
	// depletionFraction limits how much of a species one step may consume
	depletionFraction = 0.2
	// traceFraction is the mole fraction below which depletion is not limited
	traceFraction = 1e-6
	// reactorVolume is the constant-volume reactor size [m3]; all outputs are intensive
	reactorVolume = 1.0
)

// reactor integrates a homogeneous adiabatic reactor with an explicit
// step whose size is bounded by temperature change and species depletion
type reactor struct {
	mech *GlobalMechanism
	kind Kind

	t, T, P, V float64
	n          []float64 // moles [kmol]
	c          []float64 // concentrations [kmol/m3]
	dn         []float64 // dn/dt [kmol/s]
	ready      bool
}

func (r *reactor) Species() []string { return r.mech.SpeciesNames() }

func (r *reactor) Initialize(s State) (domain.Sample, error) {
	if !(s.Temperature > 0) || math.IsInf(s.Temperature, 0) {
		return domain.Sample{}, fmt.Errorf("temperature %g: %w", s.Temperature, ErrInvalidState)
	}
	if !(s.Pressure > 0) || math.IsInf(s.Pressure, 0) {
		return domain.Sample{}, fmt.Errorf("pressure %g: %w", s.Pressure, ErrInvalidState)
	}

	for i := range r.n {
		r.n[i] = 0
	}
	total := 0.0
	for name, x := range s.X {
		k, ok := r.mech.index[strings.ToUpper(strings.TrimSpace(name))]
		if !ok {
			return domain.Sample{}, fmt.Errorf("%s in %s: %w", name, r.mech.MechName, ErrUnknownSpecies)
		}
		if !(x >= 0) || math.IsInf(x, 0) {
			return domain.Sample{}, fmt.Errorf("mole fraction of %s is %g: %w", name, x, ErrInvalidState)
		}
		r.n[k] += x
		total += x
	}
	if !(total > 0) {
		return domain.Sample{}, fmt.Errorf("composition is empty: %w", ErrInvalidState)
	}

	nTot := s.Pressure * reactorVolume / (GasConstant * s.Temperature)
	for k := range r.n {
		r.n[k] *= nTot / total
	}
	r.t, r.T, r.P, r.V = 0, s.Temperature, s.Pressure, reactorVolume
	r.ready = true
	return r.sample(), nil
}

func (r *reactor) Step() (domain.Sample, error) {
	if !r.ready {
		return domain.Sample{}, fmt.Errorf("reactor not initialized: %w", ErrInvalidState)
	}
	m := r.mech

	for k := range r.n {
		r.c[k] = r.n[k] / r.V
		r.dn[k] = 0
	}
	for _, rx := range m.rxns {
		q := rx.a * math.Pow(r.T, rx.b) * math.Exp(-rx.ea/(GasConstant*r.T))
		for _, o := range rx.orders {
			c := r.c[o.k]
			if o.v < 0 {
				c = math.Max(c, 1e-20)
			}
			q *= math.Pow(c, o.v)
		}
		for _, nu := range rx.nu {
			r.dn[nu.k] += nu.v * q * r.V
		}
	}

	// energy balance: sum n_k e_k(T) is conserved, e = u (volume) or h (pressure)
	var release, heatCap, nTot float64
	for k := range r.n {
		h := m.enthalpy(k, r.T)
		cp := m.SpeciesDefs[k].Cp
		if r.kind == ConstantVolume {
			h -= GasConstant * r.T
			cp -= GasConstant
		}
		release -= h * r.dn[k]
		heatCap += r.n[k] * cp
		nTot += r.n[k]
	}
	dTdt := release / heatCap

	dt := m.MaxStep
	if a := math.Abs(dTdt); a > 0 {
		dt = math.Min(dt, m.MaxDeltaT/a)
	}
	for k := range r.n {
		if r.dn[k] < 0 && r.n[k] > traceFraction*nTot {
			dt = math.Min(dt, depletionFraction*r.n[k]/-r.dn[k])
		}
	}

	nTot = 0
	for k := range r.n {
		r.n[k] = math.Max(r.n[k]+r.dn[k]*dt, 0)
		nTot += r.n[k]
	}
	r.T += dTdt * dt
	r.t += dt

	if !(r.T > 0) || math.IsInf(r.T, 0) || !(nTot > 0) || math.IsInf(nTot, 0) {
		r.ready = false
		return domain.Sample{}, fmt.Errorf("t=%g T=%g: %w", r.t, r.T, ErrNumericalFault)
	}
	if r.kind == ConstantVolume {
		r.P = nTot * GasConstant * r.T / r.V
	} else {
		r.V = nTot * GasConstant * r.T / r.P
	}
	return r.sample(), nil
}

func (r *reactor) sample() domain.Sample {
	nTot := 0.0
	for _, v := range r.n {
		nTot += v
	}
	x := make([]float64, len(r.n))
	for k, v := range r.n {
		x[k] = v / nTot
	}
	return domain.Sample{Time: r.t, Temperature: r.T, Pressure: r.P, X: x}
}
