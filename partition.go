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
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// A Partition divides the species of a system into three disjoint
// groups: equilibrium species, whose amounts are controlled by
// chemical equilibrium; kinetic species, whose amounts evolve by rate
// laws; and inert species, whose amounts never change. Partitions are
// immutable after construction.
type Partition struct {
	system *System

	equilibrium []int
	kinetic     []int
	inert       []int

	// equilibriumElements are the indices of the elements that occur
	// in at least one equilibrium species.
	equilibriumElements []int
}

// NewPartition returns the default partition of sys, in which every
// species is in the equilibrium group.
func NewPartition(sys *System) *Partition {
	p, _ := NewPartitionWith(sys, nil, nil)
	return p
}

// NewPartitionWith returns a partition of sys with the named species
// in the kinetic and inert groups and all remaining species in the
// equilibrium group. A species may belong to at most one group.
func NewPartitionWith(sys *System, kinetic, inert []string) (*Partition, error) {
	p := &Partition{system: sys}
	taken := make(map[int]string)
	var err error
	if p.kinetic, err = resolveSpecies(sys, kinetic, taken, "kinetic"); err != nil {
		return nil, err
	}
	if p.inert, err = resolveSpecies(sys, inert, taken, "inert"); err != nil {
		return nil, err
	}
	for i := 0; i < sys.NumSpecies(); i++ {
		if _, ok := taken[i]; !ok {
			p.equilibrium = append(p.equilibrium, i)
		}
	}
	for ie := 0; ie < sys.NumElements(); ie++ {
		for _, is := range p.equilibrium {
			if sys.formula.At(ie, is) != 0 {
				p.equilibriumElements = append(p.equilibriumElements, ie)
				break
			}
		}
	}
	return p, nil
}

func resolveSpecies(sys *System, names []string, taken map[int]string, group string) ([]int, error) {
	if len(names) == 0 {
		return nil, nil
	}
	idx := make([]int, 0, len(names))
	for _, name := range names {
		i := sys.SpeciesIndex(name)
		if i == sys.NumSpecies() {
			valid := make([]string, len(sys.species))
			for j, sp := range sys.species {
				valid[j] = sp.Name
			}
			return nil, fmt.Errorf("chemeq: partition: no species named %q in the system; valid species are %s",
				name, strings.Join(valid, ", "))
		}
		if g, ok := taken[i]; ok {
			return nil, fmt.Errorf("chemeq: partition: species %q is in both the %s and %s groups",
				name, g, group)
		}
		taken[i] = group
		idx = append(idx, i)
	}
	sort.Ints(idx)
	return idx, nil
}

// System returns the chemical system the partition divides.
func (p *Partition) System() *System { return p.system }

// EquilibriumSpecies returns the global indices of the equilibrium
// species in ascending order. The returned slice is owned by the
// partition and must not be modified.
func (p *Partition) EquilibriumSpecies() []int { return p.equilibrium }

// KineticSpecies returns the global indices of the kinetic species in
// ascending order. The returned slice is owned by the partition and
// must not be modified.
func (p *Partition) KineticSpecies() []int { return p.kinetic }

// InertSpecies returns the global indices of the inert species in
// ascending order. The returned slice is owned by the partition and
// must not be modified.
func (p *Partition) InertSpecies() []int { return p.inert }

// NumEquilibriumSpecies returns the number of equilibrium species.
func (p *Partition) NumEquilibriumSpecies() int { return len(p.equilibrium) }

// NumKineticSpecies returns the number of kinetic species.
func (p *Partition) NumKineticSpecies() int { return len(p.kinetic) }

// NumInertSpecies returns the number of inert species.
func (p *Partition) NumInertSpecies() int { return len(p.inert) }

// EquilibriumElements returns the indices of the elements that occur
// in at least one equilibrium species, in ascending order. The
// returned slice is owned by the partition and must not be modified.
func (p *Partition) EquilibriumElements() []int { return p.equilibriumElements }

// NumEquilibriumElements returns the number of elements that occur in
// equilibrium species.
func (p *Partition) NumEquilibriumElements() int { return len(p.equilibriumElements) }

// EquilibriumFormulaMatrix returns the submatrix of the system formula
// matrix with one row per equilibrium element and one column per
// equilibrium species.
func (p *Partition) EquilibriumFormulaMatrix() *mat.Dense {
	w := mat.NewDense(len(p.equilibriumElements), len(p.equilibrium), nil)
	for i, ie := range p.equilibriumElements {
		for j, is := range p.equilibrium {
			w.Set(i, j, p.system.formula.At(ie, is))
		}
	}
	return w
}

// EquilibriumElementAmounts computes the amounts of the equilibrium
// elements contributed by the equilibrium species of n, where n holds
// amounts for all system species.
func (p *Partition) EquilibriumElementAmounts(n []float64) ([]float64, error) {
	if len(n) != p.system.NumSpecies() {
		return nil, fmt.Errorf("chemeq: EquilibriumElementAmounts: got %d species amounts for a system with %d species",
			len(n), p.system.NumSpecies())
	}
	b := make([]float64, len(p.equilibriumElements))
	for i, ie := range p.equilibriumElements {
		for _, is := range p.equilibrium {
			b[i] += p.system.formula.At(ie, is) * n[is]
		}
	}
	return b, nil
}

// Gather returns the entries of v at the given indices, in index
// order.
func Gather(v []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for k, i := range idx {
		out[k] = v[i]
	}
	return out
}

// Scatter copies the entries of src into dst at the given indices, so
// that dst[idx[k]] = src[k].
func Scatter(dst []float64, idx []int, src []float64) {
	for k, i := range idx {
		dst[i] = src[k]
	}
}
