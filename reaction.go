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
	"sort"

	"gonum.org/v1/gonum/mat"
)

// A LnKFn evaluates the natural logarithm of a reaction equilibrium
// constant at temperature T [K] and pressure P [Pa], with derivatives
// with respect to T and P.
type LnKFn func(T, P float64) ThermoScalar

// A RateFn evaluates a reaction rate [mol/s] from the thermochemical
// properties of the system. Positive rates proceed from reactants to
// products.
type RateFn func(props *Properties) (ChemicalScalar, error)

// A Reaction relates species of a system through stoichiometry, an
// equilibrium constant, and optionally a kinetic rate law. Reactions
// are read-only after construction; the With methods return modified
// copies.
type Reaction struct {
	name    string
	system  *System
	indices []int     // global indices of participating species
	stoich  []float64 // aligned with indices; products positive
	lnK     LnKFn
	rate    RateFn
}

// NewReaction assembles a reaction over the species of sys. The
// equation maps species names to stoichiometric coefficients, negative
// for reactants and positive for products. The equilibrium constant
// defaults to the one implied by the standard Gibbs energies of the
// participating species; use WithLnK to override it.
func NewReaction(name string, equation map[string]float64, sys *System) (Reaction, error) {
	if len(equation) == 0 {
		return Reaction{}, fmt.Errorf("chemeq: reaction %q has an empty equation", name)
	}
	r := Reaction{name: name, system: sys}
	for sp, nu := range equation {
		i := sys.SpeciesIndex(sp)
		if i == sys.NumSpecies() {
			return Reaction{}, fmt.Errorf("chemeq: reaction %q: no species named %q in the system", name, sp)
		}
		if nu == 0 {
			return Reaction{}, fmt.Errorf("chemeq: reaction %q: species %q has zero stoichiometry", name, sp)
		}
		r.indices = append(r.indices, i)
		r.stoich = append(r.stoich, nu)
	}
	sort.Sort(bySpeciesIndex{r.indices, r.stoich})
	r.lnK = EquilibriumConstantFn(sys, r)
	return r, nil
}

type bySpeciesIndex struct {
	idx    []int
	stoich []float64
}

func (s bySpeciesIndex) Len() int           { return len(s.idx) }
func (s bySpeciesIndex) Less(i, j int) bool { return s.idx[i] < s.idx[j] }
func (s bySpeciesIndex) Swap(i, j int) {
	s.idx[i], s.idx[j] = s.idx[j], s.idx[i]
	s.stoich[i], s.stoich[j] = s.stoich[j], s.stoich[i]
}

// EquilibriumConstantFn builds a closure over the standard chemical
// potentials of the participating species of r that evaluates
// ln K(T,P) = -sum(nu_i mu0_i) / (R T). The temperature derivative
// follows the van 't Hoff relation and the pressure derivative the
// standard reaction volume.
func EquilibriumConstantFn(sys *System, r Reaction) LnKFn {
	indices := r.indices
	stoich := r.stoich
	return func(T, P float64) ThermoScalar {
		std, err := sys.StandardThermo(T, P)
		if err != nil {
			return ThermoScalar{Val: math.NaN(), DDT: math.NaN(), DDP: math.NaN()}
		}
		var dg, dh, dv float64
		for k, i := range indices {
			dg += stoich[k] * std[i].Gibbs
			dh += stoich[k] * std[i].Enthalpy
			dv += stoich[k] * std[i].Volume
		}
		rt := GasConstant * T
		return ThermoScalar{
			Val: -dg / rt,
			DDT: dh / (rt * T),
			DDP: -dv / rt,
		}
	}
}

// WithLnK returns a copy of r using fn as its equilibrium constant.
func (r Reaction) WithLnK(fn LnKFn) Reaction {
	r.lnK = fn
	return r
}

// WithRate returns a copy of r using fn as its kinetic rate law.
func (r Reaction) WithRate(fn RateFn) Reaction {
	r.rate = fn
	return r
}

// Name returns the reaction name.
func (r Reaction) Name() string { return r.name }

// System returns the chemical system the reaction belongs to.
func (r Reaction) System() *System { return r.system }

// Indices returns the global indices of the participating species in
// ascending order. The returned slice is owned by the reaction and
// must not be modified.
func (r Reaction) Indices() []int { return r.indices }

// Stoichiometries returns the stoichiometric coefficients aligned with
// Indices. The returned slice is owned by the reaction and must not be
// modified.
func (r Reaction) Stoichiometries() []float64 { return r.stoich }

// Stoichiometry returns the stoichiometric coefficient of the named
// species in the reaction, or zero if the species does not take part.
func (r Reaction) Stoichiometry(species string) float64 {
	i := r.system.SpeciesIndex(species)
	for k, idx := range r.indices {
		if idx == i {
			return r.stoich[k]
		}
	}
	return 0
}

// Contains reports whether the named species takes part in the
// reaction.
func (r Reaction) Contains(species string) bool {
	i := r.system.SpeciesIndex(species)
	for _, idx := range r.indices {
		if idx == i {
			return true
		}
	}
	return false
}

// LnEquilibriumConstant evaluates the natural logarithm of the
// reaction equilibrium constant at T [K] and P [Pa].
func (r Reaction) LnEquilibriumConstant(T, P float64) ThermoScalar {
	return r.lnK(T, P)
}

// EquilibriumConstant evaluates the reaction equilibrium constant at
// T [K] and P [Pa].
func (r Reaction) EquilibriumConstant(T, P float64) float64 {
	return math.Exp(r.lnK(T, P).Val)
}

// Quotient evaluates the reaction quotient Q over the given species
// activities, Q = prod(a_i^nu_i) with the product running over the
// participating species only. Amount derivatives are accumulated
// through the logarithmic derivative of Q, visiting only the rows of
// participating species, so non-participating species cost nothing.
// All participating activities must be positive.
func (r Reaction) Quotient(a ChemicalVector) ChemicalScalar {
	nsp := r.system.NumSpecies()
	q := NewChemicalScalar(nsp)
	q.Val = 1
	for k, i := range r.indices {
		q.Val *= math.Pow(a.Val[i], r.stoich[k])
	}
	var ddt, ddp float64
	for k, i := range r.indices {
		w := r.stoich[k] / a.Val[i]
		ddt += w * a.DDT[i]
		ddp += w * a.DDP[i]
		for j := 0; j < nsp; j++ {
			if d := a.DDN.At(i, j); d != 0 {
				q.DDN[j] += q.Val * w * d
			}
		}
	}
	q.DDT = q.Val * ddt
	q.DDP = q.Val * ddp
	return q
}

// Rate evaluates the reaction kinetic rate [mol/s] at the given
// system properties. It fails if the reaction has no rate law.
func (r Reaction) Rate(props *Properties) (ChemicalScalar, error) {
	if r.rate == nil {
		return ChemicalScalar{}, fmt.Errorf("chemeq: reaction %q has no rate law", r.name)
	}
	return r.rate(props)
}

// A ReactionSystem is an ordered collection of reactions over one
// chemical system, with their joint stoichiometric matrix.
type ReactionSystem struct {
	system    *System
	reactions []Reaction
	stoich    *mat.Dense // reactions by species
}

// NewReactionSystem collects reactions over sys. All reactions must
// belong to sys.
func NewReactionSystem(sys *System, reactions []Reaction) (*ReactionSystem, error) {
	if len(reactions) == 0 {
		return nil, fmt.Errorf("chemeq: a reaction system must have at least one reaction")
	}
	rs := &ReactionSystem{
		system:    sys,
		reactions: reactions,
		stoich:    mat.NewDense(len(reactions), sys.NumSpecies(), nil),
	}
	for k, r := range reactions {
		if r.system != sys {
			return nil, fmt.Errorf("chemeq: reaction %q belongs to a different system", r.name)
		}
		for l, i := range r.indices {
			rs.stoich.Set(k, i, r.stoich[l])
		}
	}
	return rs, nil
}

// System returns the chemical system the reactions belong to.
func (rs *ReactionSystem) System() *System { return rs.system }

// Reactions returns the reactions in order. The returned slice is
// owned by the reaction system and must not be modified.
func (rs *ReactionSystem) Reactions() []Reaction { return rs.reactions }

// NumReactions returns the number of reactions.
func (rs *ReactionSystem) NumReactions() int { return len(rs.reactions) }

// StoichiometricMatrix returns the reactions-by-species stoichiometric
// matrix. The returned matrix is owned by the reaction system and must
// not be modified.
func (rs *ReactionSystem) StoichiometricMatrix() mat.Matrix { return rs.stoich }

// Rates evaluates the kinetic rates [mol/s] of all reactions at the
// given system properties.
func (rs *ReactionSystem) Rates(props *Properties) (ChemicalVector, error) {
	nsp := rs.system.NumSpecies()
	v := NewChemicalVector(len(rs.reactions), nsp)
	for k, r := range rs.reactions {
		rk, err := r.Rate(props)
		if err != nil {
			return ChemicalVector{}, err
		}
		v.Val[k] = rk.Val
		v.DDT[k] = rk.DDT
		v.DDP[k] = rk.DDP
		for j := 0; j < nsp; j++ {
			v.DDN.Set(k, j, rk.DDN[j])
		}
	}
	return v, nil
}
