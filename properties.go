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
	"context"
	"fmt"
	"math"

	"github.com/ctessum/requestcache"
)

// WaterMolarMass is the molar mass of water [kg/mol].
const WaterMolarMass = 0.018015268

// thermoCacheSize is the number of (T, P) conditions whose standard
// species properties are kept in memory.
const thermoCacheSize = 100

// Properties holds the thermochemical properties of a system evaluated
// at one condition.
type Properties struct {
	T float64   // temperature [K]
	P float64   // pressure [Pa]
	N []float64 // species amounts [mol]

	// Standard holds the standard thermodynamic properties of each
	// species at (T, P).
	Standard []SpeciesThermo

	// LnActivities holds the natural logarithm of each species
	// activity, with derivatives with respect to T, P, and the
	// species amounts.
	LnActivities ChemicalVector

	system *System
}

// Properties evaluates the thermochemical properties of the system at
// temperature T [K] and pressure P [Pa] with species amounts n [mol].
func (s *System) Properties(T, P float64, n []float64) (*Properties, error) {
	if !(T > 0) {
		return nil, fmt.Errorf("chemeq: temperature must be positive, got %g K", T)
	}
	if !(P > 0) {
		return nil, fmt.Errorf("chemeq: pressure must be positive, got %g Pa", P)
	}
	if len(n) != s.NumSpecies() {
		return nil, fmt.Errorf("chemeq: Properties: got %d species amounts for a system with %d species",
			len(n), s.NumSpecies())
	}
	std, err := s.StandardThermo(T, P)
	if err != nil {
		return nil, err
	}
	nn := make([]float64, len(n))
	copy(nn, n)
	props := &Properties{
		T:            T,
		P:            P,
		N:            nn,
		Standard:     std,
		LnActivities: NewChemicalVector(len(n), len(n)),
		system:       s,
	}
	for ip := range s.phases {
		lo, hi := s.PhaseSpeciesRange(ip)
		pa, err := s.activity[ip](T, P, n[lo:hi])
		if err != nil {
			return nil, fmt.Errorf("chemeq: evaluating activities of phase %q: %v", s.phases[ip].Name, err)
		}
		if pa.Len() != hi-lo {
			return nil, fmt.Errorf("chemeq: activity model of phase %q returned %d values for %d species",
				s.phases[ip].Name, pa.Len(), hi-lo)
		}
		for k := 0; k < hi-lo; k++ {
			props.LnActivities.Val[lo+k] = pa.Val[k]
			props.LnActivities.DDT[lo+k] = pa.DDT[k]
			props.LnActivities.DDP[lo+k] = pa.DDP[k]
			for l := 0; l < hi-lo; l++ {
				props.LnActivities.DDN.Set(lo+k, lo+l, pa.DDN.At(k, l))
			}
		}
	}
	return props, nil
}

// StandardThermo evaluates the standard thermodynamic properties of
// every system species at temperature T [K] and pressure P [Pa].
// Results are memoized, so repeated evaluations at the same condition,
// as happen during an equilibrium solve, reuse one computation.
func (s *System) StandardThermo(T, P float64) ([]SpeciesThermo, error) {
	if !(T > 0) {
		return nil, fmt.Errorf("chemeq: temperature must be positive, got %g K", T)
	}
	if !(P > 0) {
		return nil, fmt.Errorf("chemeq: pressure must be positive, got %g Pa", P)
	}
	return s.thermo.at(T, P)
}

// Activities returns the species activities a = exp(ln a) with
// derivatives propagated from the log activities.
func (p *Properties) Activities() ChemicalVector {
	nsp := len(p.N)
	a := NewChemicalVector(nsp, nsp)
	for i := 0; i < nsp; i++ {
		v := math.Exp(p.LnActivities.Val[i])
		a.Val[i] = v
		a.DDT[i] = v * p.LnActivities.DDT[i]
		a.DDP[i] = v * p.LnActivities.DDP[i]
		for j := 0; j < nsp; j++ {
			a.DDN.Set(i, j, v*p.LnActivities.DDN.At(i, j))
		}
	}
	return a
}

// ChemicalPotentials returns the chemical potential [J/mol] of each
// species, mu_i = mu0_i + R T ln a_i, with derivatives with respect to
// T, P, and the species amounts.
func (p *Properties) ChemicalPotentials() ChemicalVector {
	nsp := len(p.N)
	mu := NewChemicalVector(nsp, nsp)
	rt := GasConstant * p.T
	for i := 0; i < nsp; i++ {
		lna := p.LnActivities.Val[i]
		mu.Val[i] = p.Standard[i].Gibbs + rt*lna
		mu.DDT[i] = -p.Standard[i].Entropy + GasConstant*lna + rt*p.LnActivities.DDT[i]
		mu.DDP[i] = p.Standard[i].Volume + rt*p.LnActivities.DDP[i]
		for j := 0; j < nsp; j++ {
			mu.DDN.Set(i, j, rt*p.LnActivities.DDN.At(i, j))
		}
	}
	return mu
}

// PhaseVolume returns the volume [m3] of the phase with index ip,
// computed from the standard partial molar volumes of its species.
func (p *Properties) PhaseVolume(ip int) ChemicalScalar {
	v := NewChemicalScalar(len(p.N))
	lo, hi := p.system.PhaseSpeciesRange(ip)
	for i := lo; i < hi; i++ {
		v.Val += p.N[i] * p.Standard[i].Volume
		v.DDN[i] = p.Standard[i].Volume
	}
	return v
}

// thermoCache memoizes the standard species properties of a system,
// which depend only on temperature and pressure.
type thermoCache struct {
	sys   *System
	cache *requestcache.Cache
}

type thermoRequest struct{ T, P float64 }

func newThermoCache(sys *System) *thermoCache {
	tc := &thermoCache{sys: sys}
	tc.cache = requestcache.NewCache(tc.process, 1,
		requestcache.Deduplicate(), requestcache.Memory(thermoCacheSize))
	return tc
}

func (tc *thermoCache) process(ctx context.Context, req interface{}) (interface{}, error) {
	cond := req.(thermoRequest)
	std := make([]SpeciesThermo, len(tc.sys.species))
	for i, sp := range tc.sys.species {
		if sp.Thermo == nil {
			return nil, fmt.Errorf("chemeq: species %q has no standard thermodynamic data", sp.Name)
		}
		std[i] = sp.Thermo(cond.T, cond.P)
	}
	return std, nil
}

func (tc *thermoCache) at(T, P float64) ([]SpeciesThermo, error) {
	req := tc.cache.NewRequest(context.Background(), thermoRequest{T: T, P: P},
		fmt.Sprintf("%.10e_%.10e", T, P))
	res, err := req.Result()
	if err != nil {
		return nil, err
	}
	return res.([]SpeciesThermo), nil
}

// IsWater reports whether sp has the formula of neutral water.
func IsWater(sp Species) bool {
	return sp.Charge == 0 && len(sp.Formula) == 2 &&
		sp.Formula["H"] == 2 && sp.Formula["O"] == 1
}

// phaseActivity returns the activity model for ph, falling back to an
// ideal model for the phase kind when ph does not supply one.
func phaseActivity(ph Phase) (ActivityFn, error) {
	if ph.Activity != nil {
		return ph.Activity, nil
	}
	switch ph.Kind {
	case AqueousPhase:
		iw := -1
		for i, sp := range ph.Species {
			if IsWater(sp) {
				iw = i
				break
			}
		}
		if iw < 0 {
			return nil, fmt.Errorf("chemeq: aqueous phase %q has no water species", ph.Name)
		}
		return idealAqueousActivity(iw), nil
	case GaseousPhase:
		return idealGasActivity(), nil
	case MineralPhase:
		if len(ph.Species) > 1 {
			return idealSolidSolutionActivity(), nil
		}
		return pureActivity(), nil
	default:
		return nil, fmt.Errorf("chemeq: phase %q has unknown kind %v", ph.Name, ph.Kind)
	}
}

// idealAqueousActivity is an ideal dilute solution: solute activities
// equal their molalities and the water activity follows the ideal
// osmotic relation ln a_w = -Mw * sum of solute molalities.
func idealAqueousActivity(iw int) ActivityFn {
	return func(T, P float64, n []float64) (ChemicalVector, error) {
		v := NewChemicalVector(len(n), len(n))
		nw := math.Max(n[iw], amountFloor)
		var nsol float64
		for j := range n {
			if j != iw {
				nsol += n[j]
			}
		}
		for i := range n {
			if i == iw {
				v.Val[i] = -nsol / nw
				for j := range n {
					if j == iw {
						v.DDN.Set(i, j, nsol/(nw*nw))
					} else {
						v.DDN.Set(i, j, -1/nw)
					}
				}
				continue
			}
			ni := math.Max(n[i], amountFloor)
			v.Val[i] = math.Log(ni) - math.Log(nw) - math.Log(WaterMolarMass)
			v.DDN.Set(i, i, 1/ni)
			v.DDN.Set(i, iw, -1/nw)
		}
		return v, nil
	}
}

// idealGasActivity sets each activity to the species partial pressure
// relative to the reference pressure.
func idealGasActivity() ActivityFn {
	return func(T, P float64, n []float64) (ChemicalVector, error) {
		v := NewChemicalVector(len(n), len(n))
		var nt float64
		for _, ni := range n {
			nt += ni
		}
		nt = math.Max(nt, amountFloor)
		lp := math.Log(P / ReferencePressure)
		for i := range n {
			ni := math.Max(n[i], amountFloor)
			v.Val[i] = math.Log(ni) - math.Log(nt) + lp
			v.DDP[i] = 1 / P
			for j := range n {
				if j == i {
					v.DDN.Set(i, j, 1/ni-1/nt)
				} else {
					v.DDN.Set(i, j, -1/nt)
				}
			}
		}
		return v, nil
	}
}

// idealSolidSolutionActivity sets each activity to the species mole
// fraction within the phase.
func idealSolidSolutionActivity() ActivityFn {
	return func(T, P float64, n []float64) (ChemicalVector, error) {
		v := NewChemicalVector(len(n), len(n))
		var nt float64
		for _, ni := range n {
			nt += ni
		}
		nt = math.Max(nt, amountFloor)
		for i := range n {
			ni := math.Max(n[i], amountFloor)
			v.Val[i] = math.Log(ni) - math.Log(nt)
			for j := range n {
				if j == i {
					v.DDN.Set(i, j, 1/ni-1/nt)
				} else {
					v.DDN.Set(i, j, -1/nt)
				}
			}
		}
		return v, nil
	}
}

// pureActivity gives unit activity, as for a pure mineral.
func pureActivity() ActivityFn {
	return func(T, P float64, n []float64) (ChemicalVector, error) {
		return NewChemicalVector(len(n), len(n)), nil
	}
}
