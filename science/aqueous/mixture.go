/*
Copyright © 2018 the ChemEq authors.
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

// Package aqueous models mixtures of aqueous species. A Mixture
// classifies its species into neutral and charged sets at construction
// and calculates molalities, stoichiometric molalities, and ionic
// strengths with exact derivatives with respect to the species
// amounts. The package also provides a Debye–Hückel activity model
// built on the water equation of state.
package aqueous

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/chemmodel/chemeq"
)

// amountFloor is substituted for species amounts of zero to keep
// molality quotients finite.
const amountFloor = 1e-50

// A Mixture is a collection of aqueous species. It classifies the
// species by charge once, at construction; all of its calculations
// afterwards are pure functions of the species amounts.
type Mixture struct {
	species []chemeq.Species

	water   int
	neutral []int
	charged []int
	cations []int
	anions  []int

	// dissociation maps the neutral complexes (rows) to the charged
	// species (columns) they dissociate into; nil when the mixture
	// has no neutral or no charged species.
	dissociation *mat.Dense
}

// A MixtureState is a snapshot of the composition-dependent state of
// an aqueous mixture: the molalities M of all species, the
// stoichiometric molalities Ms of the charged species, and the
// effective and stoichiometric ionic strengths Ie and Is, all with
// derivatives with respect to the species amounts.
type MixtureState struct {
	T, P float64
	N    []float64
	M    chemeq.ChemicalVector
	Ms   chemeq.ChemicalVector
	Ie   chemeq.ChemicalScalar
	Is   chemeq.ChemicalScalar
}

// NewMixture constructs a Mixture from species, which must include
// water. Species with zero charge are classified as neutral (water
// among them) and the rest as cations or anions by the sign of their
// charge. The dissociation matrix is built from the Dissociation maps
// of the neutral species; dissociation products that are not charged
// species of the mixture are ignored.
func NewMixture(species []chemeq.Species) (*Mixture, error) {
	m := &Mixture{
		species: append([]chemeq.Species(nil), species...),
		water:   -1,
	}
	for i, sp := range m.species {
		switch {
		case sp.Charge > 0:
			m.charged = append(m.charged, i)
			m.cations = append(m.cations, i)
		case sp.Charge < 0:
			m.charged = append(m.charged, i)
			m.anions = append(m.anions, i)
		default:
			m.neutral = append(m.neutral, i)
			if m.water < 0 && chemeq.IsWater(sp) {
				m.water = i
			}
		}
	}
	if m.water < 0 {
		return nil, fmt.Errorf("aqueous: mixture has no water species")
	}
	if len(m.neutral) > 0 && len(m.charged) > 0 {
		m.dissociation = mat.NewDense(len(m.neutral), len(m.charged), nil)
		for i, in := range m.neutral {
			for ion, nu := range m.species[in].Dissociation {
				if j := m.IndexCharged(ion); j < len(m.charged) {
					m.dissociation.Set(i, j, nu)
				}
			}
		}
	}
	return m, nil
}

// NumSpecies returns the number of species in the mixture.
func (m *Mixture) NumSpecies() int { return len(m.species) }

// NumNeutral returns the number of neutral species in the mixture.
func (m *Mixture) NumNeutral() int { return len(m.neutral) }

// NumCharged returns the number of charged species in the mixture.
func (m *Mixture) NumCharged() int { return len(m.charged) }

// NumCations returns the number of cations in the mixture.
func (m *Mixture) NumCations() int { return len(m.cations) }

// NumAnions returns the number of anions in the mixture.
func (m *Mixture) NumAnions() int { return len(m.anions) }

// WaterIndex returns the index of the water species.
func (m *Mixture) WaterIndex() int { return m.water }

// Neutral returns the indices of the neutral species in the mixture.
func (m *Mixture) Neutral() []int { return m.neutral }

// Charged returns the indices of the charged species in the mixture.
func (m *Mixture) Charged() []int { return m.charged }

// Cations returns the indices of the cations in the mixture.
func (m *Mixture) Cations() []int { return m.cations }

// Anions returns the indices of the anions in the mixture.
func (m *Mixture) Anions() []int { return m.anions }

// Species returns the species at index i of the mixture.
func (m *Mixture) Species(i int) chemeq.Species { return m.species[i] }

// DissociationMatrix returns the dissociation matrix of the neutral
// complexes into the charged species: entry (i, j) is the
// stoichiometry of the j-th charged species in the dissociation of
// the i-th neutral species. It is nil when the mixture has no neutral
// or no charged species.
func (m *Mixture) DissociationMatrix() *mat.Dense { return m.dissociation }

// index returns the position of the species named name within the
// index set, or len(set) when no species of that name is in the set.
func (m *Mixture) index(set []int, name string) int {
	for i, is := range set {
		if m.species[is].Name == name {
			return i
		}
	}
	return len(set)
}

// IndexNeutral returns the local index of the named species among the
// neutral species, or NumNeutral() when there is no such species.
func (m *Mixture) IndexNeutral(name string) int { return m.index(m.neutral, name) }

// IndexCharged returns the local index of the named species among the
// charged species, or NumCharged() when there is no such species.
func (m *Mixture) IndexCharged(name string) int { return m.index(m.charged, name) }

// IndexCation returns the local index of the named species among the
// cations, or NumCations() when there is no such species.
func (m *Mixture) IndexCation(name string) int { return m.index(m.cations, name) }

// IndexAnion returns the local index of the named species among the
// anions, or NumAnions() when there is no such species.
func (m *Mixture) IndexAnion(name string) int { return m.index(m.anions, name) }

// IndexNeutralAny returns the local index of the first of names found
// among the neutral species, or NumNeutral() when none is found.
func (m *Mixture) IndexNeutralAny(names []string) int {
	for _, name := range names {
		if i := m.IndexNeutral(name); i < len(m.neutral) {
			return i
		}
	}
	return len(m.neutral)
}

// IndexChargedAny returns the local index of the first of names found
// among the charged species, or NumCharged() when none is found.
func (m *Mixture) IndexChargedAny(names []string) int {
	for _, name := range names {
		if i := m.IndexCharged(name); i < len(m.charged) {
			return i
		}
	}
	return len(m.charged)
}

// ChargedCharges returns the charges of the charged species.
func (m *Mixture) ChargedCharges() []float64 {
	z := make([]float64, len(m.charged))
	for i, is := range m.charged {
		z[i] = m.species[is].Charge
	}
	return z
}

// Molalities calculates the molalities (mol/kg) of all species from
// the species amounts n (mol), with derivatives with respect to the
// amounts. The mass of water is the reference: mᵢ = nᵢ/(n_w·Mw).
func (m *Mixture) Molalities(n []float64) chemeq.ChemicalVector {
	v := chemeq.NewChemicalVector(len(n), len(n))
	nw := math.Max(n[m.water], amountFloor)
	kgw := nw * chemeq.WaterMolarMass
	for i := range n {
		v.Val[i] = n[i] / kgw
		v.DDN.Set(i, i, v.DDN.At(i, i)+1/kgw)
		v.DDN.Set(i, m.water, v.DDN.At(i, m.water)-n[i]/(nw*kgw))
	}
	return v
}

// StoichiometricMolalities maps the molalities mv of all species into
// the stoichiometric molalities (mol/kg) of the charged species,
// adding to each charged species the contributions of the neutral
// complexes that dissociate into it.
func (m *Mixture) StoichiometricMolalities(mv chemeq.ChemicalVector) chemeq.ChemicalVector {
	if len(m.charged) == 0 {
		return chemeq.ChemicalVector{}
	}
	_, cols := mv.DDN.Dims()
	ms := chemeq.NewChemicalVector(len(m.charged), cols)
	for j, ic := range m.charged {
		ms.Val[j] = mv.Val[ic]
		ms.DDT[j] = mv.DDT[ic]
		ms.DDP[j] = mv.DDP[ic]
		for k := 0; k < cols; k++ {
			ms.DDN.Set(j, k, mv.DDN.At(ic, k))
		}
	}
	if m.dissociation == nil {
		return ms
	}
	for i, in := range m.neutral {
		for j := range m.charged {
			nu := m.dissociation.At(i, j)
			if nu == 0 {
				continue
			}
			ms.Val[j] += nu * mv.Val[in]
			ms.DDT[j] += nu * mv.DDT[in]
			ms.DDP[j] += nu * mv.DDP[in]
			for k := 0; k < cols; k++ {
				ms.DDN.Set(j, k, ms.DDN.At(j, k)+nu*mv.DDN.At(in, k))
			}
		}
	}
	return ms
}

// EffectiveIonicStrength calculates the effective ionic strength
// (mol/kg) of the mixture, 0.5·Σzᵢ²mᵢ over the charged species, from
// the molalities mv of all species.
func (m *Mixture) EffectiveIonicStrength(mv chemeq.ChemicalVector) chemeq.ChemicalScalar {
	_, cols := mv.DDN.Dims()
	ie := chemeq.NewChemicalScalar(cols)
	for _, ic := range m.charged {
		z2 := m.species[ic].Charge * m.species[ic].Charge
		ie.Val += 0.5 * z2 * mv.Val[ic]
		ie.DDT += 0.5 * z2 * mv.DDT[ic]
		ie.DDP += 0.5 * z2 * mv.DDP[ic]
		for k := 0; k < cols; k++ {
			ie.DDN[k] += 0.5 * z2 * mv.DDN.At(ic, k)
		}
	}
	return ie
}

// StoichiometricIonicStrength calculates the stoichiometric ionic
// strength (mol/kg) of the mixture from the stoichiometric molalities
// ms of the charged species.
func (m *Mixture) StoichiometricIonicStrength(ms chemeq.ChemicalVector) chemeq.ChemicalScalar {
	if len(m.charged) == 0 {
		return chemeq.NewChemicalScalar(len(m.species))
	}
	_, cols := ms.DDN.Dims()
	is := chemeq.NewChemicalScalar(cols)
	for j, ic := range m.charged {
		z2 := m.species[ic].Charge * m.species[ic].Charge
		is.Val += 0.5 * z2 * ms.Val[j]
		is.DDT += 0.5 * z2 * ms.DDT[j]
		is.DDP += 0.5 * z2 * ms.DDP[j]
		for k := 0; k < cols; k++ {
			is.DDN[k] += 0.5 * z2 * ms.DDN.At(j, k)
		}
	}
	return is
}

// State calculates the state of the mixture at temperature T (K),
// pressure P (Pa), and species amounts n (mol). The state is an
// independent snapshot: it shares no storage with n or the mixture.
func (m *Mixture) State(T, P float64, n []float64) MixtureState {
	st := MixtureState{
		T: T,
		P: P,
		N: append([]float64(nil), n...),
	}
	st.M = m.Molalities(n)
	st.Ms = m.StoichiometricMolalities(st.M)
	st.Ie = m.EffectiveIonicStrength(st.M)
	st.Is = m.StoichiometricIonicStrength(st.Ms)
	return st
}
