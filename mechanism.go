/*
Copyright © 2017 the ChemEq authors.
This file is part of ChemEq.

ChemEq is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

ChemEq is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with ChemEq.  If not, see <http://www.gnu.org/licenses/>.
*/

package chemeq

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ctessum/unit"
)

// MoleDim is the amount-of-substance dimension used for unit checking.
var MoleDim = unit.NewDimension("mole")

var (
	// rateConstantDims is the canonical dimension set of mineral rate
	// constants, mol/(m2 s).
	rateConstantDims = unit.Dimensions{MoleDim: 1, unit.LengthDim: -2, unit.TimeDim: -1}

	// molarEnergyDims is the canonical dimension set of activation
	// energies, J/mol.
	molarEnergyDims = unit.Dimensions{unit.MassDim: 1, unit.LengthDim: 2,
		unit.TimeDim: -2, MoleDim: -1}
)

// mechanismUnits maps the unit spellings the mechanism parser accepts
// to their conversion factor into SI and their dimensions.
var mechanismUnits = map[string]struct {
	factor float64
	dims   unit.Dimensions
}{
	"mol/(m2*s)":  {1, rateConstantDims},
	"mol/(cm2*s)": {1e4, rateConstantDims},
	"mmol/(m2*s)": {1e-3, rateConstantDims},
	"mol/(m2*h)":  {1.0 / 3600, rateConstantDims},
	"J/mol":       {1, molarEnergyDims},
	"kJ/mol":      {1e3, molarEnergyDims},
	"cal/mol":     {4.184, molarEnergyDims},
	"kcal/mol":    {4184, molarEnergyDims},
}

// parseUnit converts a unit spelling from a mechanism string into a
// checked unit value.
func parseUnit(spelling string, value float64) (*unit.Unit, error) {
	u, ok := mechanismUnits[spelling]
	if !ok {
		valid := make([]string, 0, len(mechanismUnits))
		for s := range mechanismUnits {
			valid = append(valid, s)
		}
		sort.Strings(valid)
		return nil, fmt.Errorf("unknown unit %q; accepted units are %s",
			spelling, strings.Join(valid, ", "))
	}
	return unit.New(value*u.factor, u.dims), nil
}

// A MineralCatalyst scales a mineral reaction rate by the activity of
// an aqueous species or the partial pressure of a gas, raised to a
// power.
type MineralCatalyst struct {
	// Species names the catalyzing species.
	Species string

	// Quantity is "a" when the catalyst strength is the species
	// activity and "p" when it is the species partial pressure.
	Quantity string

	// Power is the exponent applied to the catalyst quantity.
	Power float64
}

// A MineralMechanism parameterizes one parallel mechanism of a
// heterogeneous mineral reaction rate law.
type MineralMechanism struct {
	// Kappa is the kinetic rate constant at the reference temperature
	// [mol/(m2 s)].
	Kappa float64

	// ActivationEnergy is the Arrhenius activation energy [J/mol].
	ActivationEnergy float64

	// P and Q are the powers on the saturation term of the rate law,
	// (1 - Omega^P)^Q.
	P, Q float64

	// Catalysts scale the mechanism rate.
	Catalysts []MineralCatalyst
}

var eqSpace = regexp.MustCompile(`\s*=\s*`)

// ParseMineralMechanism parses a compact mineral mechanism
// description of key=value tokens separated by commas or spaces, for
// example
//
//	logk = -6.0 mol/(m2*s), Ea = 50.0 kJ/mol, p = 1.0, q = 2.0
//
// The recognized keys are logk (log10 of the rate constant; its unit
// defaults to mol/(m2*s) and must be convertible to it when given),
// Ea (activation energy; a unit convertible to kJ/mol is required),
// the dimensionless powers p and q, and catalyst tokens of the form
// a[species], activity[species], p[species], or pressure[species]
// giving the power on a species activity or partial pressure. The
// powers p and q default to one.
func ParseMineralMechanism(s string) (MineralMechanism, error) {
	m := MineralMechanism{P: 1, Q: 1}
	norm := eqSpace.ReplaceAllString(strings.ReplaceAll(s, ",", " "), "=")
	fields := strings.Fields(norm)

	// Coalesce each key=value field with the unit field that may
	// follow it.
	type token struct{ key, value, unitSpelling, raw string }
	var tokens []token
	for _, f := range fields {
		eq := strings.Index(f, "=")
		if eq < 0 {
			if len(tokens) == 0 || tokens[len(tokens)-1].unitSpelling != "" {
				return m, fmt.Errorf("chemeq: mineral mechanism: unexpected token %q; want key=value pairs like logk=-6.0 mol/(m2*s)", f)
			}
			tokens[len(tokens)-1].unitSpelling = f
			tokens[len(tokens)-1].raw += " " + f
			continue
		}
		tokens = append(tokens, token{key: f[:eq], value: f[eq+1:], raw: f})
	}

	var haveLogk bool
	for _, tok := range tokens {
		if tok.key == "" || tok.value == "" {
			return m, fmt.Errorf("chemeq: mineral mechanism: token %q is not a key=value pair", tok.raw)
		}
		v, err := strconv.ParseFloat(tok.value, 64)
		if err != nil {
			return m, fmt.Errorf("chemeq: mineral mechanism: token %q: value %q is not a number", tok.raw, tok.value)
		}
		switch {
		case tok.key == "logk":
			spelling := tok.unitSpelling
			if spelling == "" {
				spelling = "mol/(m2*s)"
			}
			u, err := parseUnit(spelling, math.Pow(10, v))
			if err != nil {
				return m, fmt.Errorf("chemeq: mineral mechanism: token %q: %v", tok.raw, err)
			}
			if err := u.Check(rateConstantDims); err != nil {
				return m, fmt.Errorf("chemeq: mineral mechanism: token %q: logk unit %q is not convertible to mol/(m2*s)",
					tok.raw, spelling)
			}
			m.Kappa = u.Value()
			haveLogk = true
		case tok.key == "Ea":
			if tok.unitSpelling == "" {
				return m, fmt.Errorf("chemeq: mineral mechanism: token %q: Ea is missing its unit; want an energy per mole such as kJ/mol", tok.raw)
			}
			u, err := parseUnit(tok.unitSpelling, v)
			if err != nil {
				return m, fmt.Errorf("chemeq: mineral mechanism: token %q: %v", tok.raw, err)
			}
			if err := u.Check(molarEnergyDims); err != nil {
				return m, fmt.Errorf("chemeq: mineral mechanism: token %q: Ea unit %q is not convertible to kJ/mol",
					tok.raw, tok.unitSpelling)
			}
			m.ActivationEnergy = u.Value()
		case tok.key == "p" || tok.key == "q":
			if tok.unitSpelling != "" {
				return m, fmt.Errorf("chemeq: mineral mechanism: token %q: %s must be dimensionless", tok.raw, tok.key)
			}
			if tok.key == "p" {
				m.P = v
			} else {
				m.Q = v
			}
		case strings.HasSuffix(tok.key, "]") && strings.Contains(tok.key, "["):
			if tok.unitSpelling != "" {
				return m, fmt.Errorf("chemeq: mineral mechanism: token %q: catalyst powers must be dimensionless", tok.raw)
			}
			br := strings.Index(tok.key, "[")
			prefix := tok.key[:br]
			species := tok.key[br+1 : len(tok.key)-1]
			if species == "" {
				return m, fmt.Errorf("chemeq: mineral mechanism: token %q names no catalyst species", tok.raw)
			}
			var quantity string
			switch prefix {
			case "a", "activity":
				quantity = "a"
			case "p", "pressure":
				quantity = "p"
			default:
				return m, fmt.Errorf("chemeq: mineral mechanism: token %q: unknown catalyst prefix %q; want a[...], activity[...], p[...], or pressure[...]",
					tok.raw, prefix)
			}
			m.Catalysts = append(m.Catalysts, MineralCatalyst{
				Species:  species,
				Quantity: quantity,
				Power:    v,
			})
		default:
			return m, fmt.Errorf("chemeq: mineral mechanism: unknown key %q in token %q; valid keys are logk, Ea, p, q, a[species], activity[species], p[species], and pressure[species]",
				tok.key, tok.raw)
		}
	}
	if !haveLogk {
		return m, fmt.Errorf("chemeq: mineral mechanism %q does not set logk", s)
	}
	return m, nil
}

// MineralRate builds a kinetic rate law for the heterogeneous
// reaction r from parallel mechanisms. The rate of each mechanism is
//
//	surfaceArea * kappa * exp(-Ea/R (1/T - 1/T0)) * prod(c^power) * (1 - Omega^p)^q
//
// where Omega = Q/K is the reaction saturation ratio, c runs over the
// catalyst activities or partial pressures, and T0 is the reference
// temperature. Positive rates dissolve the mineral (Omega < 1) and
// negative rates precipitate it (Omega > 1). The surface area is in
// m2.
func MineralRate(r Reaction, surfaceArea float64, mechanisms ...MineralMechanism) RateFn {
	sys := r.System()
	return func(props *Properties) (ChemicalScalar, error) {
		nsp := sys.NumSpecies()
		act := props.Activities()
		lnk := r.LnEquilibriumConstant(props.T, props.P)
		k := math.Exp(lnk.Val)
		q := r.Quotient(act)
		omega := NewChemicalScalar(nsp)
		omega.Val = q.Val / k
		omega.DDT = q.DDT/k - q.Val/k*lnk.DDT
		omega.DDP = q.DDP/k - q.Val/k*lnk.DDP
		for j := 0; j < nsp; j++ {
			omega.DDN[j] = q.DDN[j] / k
		}

		total := NewChemicalScalar(nsp)
		for _, mech := range mechanisms {
			arr := mech.Kappa * math.Exp(-mech.ActivationEnergy/GasConstant*(1/props.T-1/ReferenceTemperature))
			arrT := arr * mech.ActivationEnergy / (GasConstant * props.T * props.T)

			cat := ChemicalScalar{Val: 1, DDN: make([]float64, nsp)}
			for _, c := range mech.Catalysts {
				base, err := catalystQuantity(sys, props, act, c)
				if err != nil {
					return ChemicalScalar{}, fmt.Errorf("chemeq: mineral rate of reaction %q: %v", r.Name(), err)
				}
				cat = mulScalar(cat, powScalar(base, c.Power, nsp), nsp)
			}

			op := powScalar(omega, mech.P, nsp)
			sat := NewChemicalScalar(nsp)
			sat.Val = 1 - op.Val
			sat.DDT = -op.DDT
			sat.DDP = -op.DDP
			for j := 0; j < nsp; j++ {
				sat.DDN[j] = -op.DDN[j]
			}
			sq := powSignedScalar(sat, mech.Q, nsp)

			total.Val += surfaceArea * arr * cat.Val * sq.Val
			total.DDT += surfaceArea * (arrT*cat.Val*sq.Val + arr*cat.DDT*sq.Val + arr*cat.Val*sq.DDT)
			total.DDP += surfaceArea * arr * (cat.DDP*sq.Val + cat.Val*sq.DDP)
			for j := 0; j < nsp; j++ {
				total.DDN[j] += surfaceArea * arr * (cat.DDN[j]*sq.Val + cat.Val*sq.DDN[j])
			}
		}
		return total, nil
	}
}

// catalystQuantity evaluates the activity or partial pressure of a
// catalyst species with derivatives.
func catalystQuantity(sys *System, props *Properties, act ChemicalVector, c MineralCatalyst) (ChemicalScalar, error) {
	nsp := sys.NumSpecies()
	i := sys.SpeciesIndex(c.Species)
	if i == nsp {
		return ChemicalScalar{}, fmt.Errorf("no species named %q in the system", c.Species)
	}
	out := NewChemicalScalar(nsp)
	switch c.Quantity {
	case "a":
		out.Val = act.Val[i]
		out.DDT = act.DDT[i]
		out.DDP = act.DDP[i]
		for j := 0; j < nsp; j++ {
			out.DDN[j] = act.DDN.At(i, j)
		}
	case "p":
		ip := sys.PhaseOfSpecies(i)
		lo, hi := sys.PhaseSpeciesRange(ip)
		var nt float64
		for l := lo; l < hi; l++ {
			nt += props.N[l]
		}
		if nt <= 0 {
			return ChemicalScalar{}, fmt.Errorf("catalyst %q belongs to a phase with no amount", c.Species)
		}
		x := props.N[i] / nt
		out.Val = x * props.P
		out.DDP = x
		for l := lo; l < hi; l++ {
			if l == i {
				out.DDN[l] = props.P * (nt - props.N[i]) / (nt * nt)
			} else {
				out.DDN[l] = -props.P * props.N[i] / (nt * nt)
			}
		}
	default:
		return ChemicalScalar{}, fmt.Errorf("catalyst %q has unknown quantity %q", c.Species, c.Quantity)
	}
	return out, nil
}

// mulScalar multiplies two scalars with derivative propagation.
func mulScalar(a, b ChemicalScalar, nsp int) ChemicalScalar {
	out := NewChemicalScalar(nsp)
	out.Val = a.Val * b.Val
	out.DDT = a.DDT*b.Val + a.Val*b.DDT
	out.DDP = a.DDP*b.Val + a.Val*b.DDP
	for j := 0; j < nsp; j++ {
		out.DDN[j] = a.DDN[j]*b.Val + a.Val*b.DDN[j]
	}
	return out
}

// powScalar raises a scalar with a non-negative value to a power with
// derivative propagation.
func powScalar(s ChemicalScalar, power float64, nsp int) ChemicalScalar {
	out := NewChemicalScalar(nsp)
	if power == 1 {
		out.Val = s.Val
		out.DDT = s.DDT
		out.DDP = s.DDP
		copy(out.DDN, s.DDN)
		return out
	}
	out.Val = math.Pow(s.Val, power)
	if s.Val != 0 {
		w := power * out.Val / s.Val
		out.DDT = w * s.DDT
		out.DDP = w * s.DDP
		for j := 0; j < nsp; j++ {
			out.DDN[j] = w * s.DDN[j]
		}
	}
	return out
}

// powSignedScalar raises a scalar that may be negative, as the
// saturation term is when a mineral is supersaturated, to a power,
// keeping the sign of the base: sign(s) |s|^power.
func powSignedScalar(s ChemicalScalar, power float64, nsp int) ChemicalScalar {
	out := NewChemicalScalar(nsp)
	abs := math.Abs(s.Val)
	out.Val = math.Pow(abs, power)
	if s.Val < 0 {
		out.Val = -out.Val
	}
	if abs != 0 {
		w := power * math.Pow(abs, power-1)
		out.DDT = w * s.DDT
		out.DDP = w * s.DDP
		for j := 0; j < nsp; j++ {
			out.DDN[j] = w * s.DDN[j]
		}
	}
	return out
}
