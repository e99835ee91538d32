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

import "fmt"

// A State is the dynamic condition of a chemical system: its
// temperature, pressure, and species amounts. Many states may share
// one immutable System, but each state owns its condition variables,
// so distinct states may be manipulated concurrently.
type State struct {
	system *System
	t, p   float64
	n      []float64
}

// NewState returns a state of sys at the reference temperature and
// pressure with all species amounts set to zero.
func NewState(sys *System) *State {
	return &State{
		system: sys,
		t:      ReferenceTemperature,
		p:      ReferencePressure,
		n:      make([]float64, sys.NumSpecies()),
	}
}

// System returns the chemical system the state belongs to.
func (s *State) System() *System { return s.system }

// Temperature returns the state temperature [K].
func (s *State) Temperature() float64 { return s.t }

// Pressure returns the state pressure [Pa].
func (s *State) Pressure() float64 { return s.p }

// SetTemperature sets the state temperature [K]. Non-positive and NaN
// temperatures are rejected.
func (s *State) SetTemperature(T float64) error {
	if !(T > 0) {
		return fmt.Errorf("chemeq: temperature must be positive, got %g K", T)
	}
	s.t = T
	return nil
}

// SetPressure sets the state pressure [Pa]. Non-positive and NaN
// pressures are rejected.
func (s *State) SetPressure(P float64) error {
	if !(P > 0) {
		return fmt.Errorf("chemeq: pressure must be positive, got %g Pa", P)
	}
	s.p = P
	return nil
}

// SetSpeciesAmount sets the amount [mol] of the named species.
// Negative and NaN amounts are rejected.
func (s *State) SetSpeciesAmount(name string, amount float64) error {
	i := s.system.SpeciesIndex(name)
	if i == s.system.NumSpecies() {
		return fmt.Errorf("chemeq: no species named %q in the system", name)
	}
	if !(amount >= 0) {
		return fmt.Errorf("chemeq: amount of %q must be non-negative, got %g mol", name, amount)
	}
	s.n[i] = amount
	return nil
}

// SetSpeciesAmounts sets the amounts [mol] of all species at once.
// The length of n must match the number of system species, and all
// amounts must be non-negative.
func (s *State) SetSpeciesAmounts(n []float64) error {
	if len(n) != len(s.n) {
		return fmt.Errorf("chemeq: got %d species amounts for a system with %d species",
			len(n), len(s.n))
	}
	for i, v := range n {
		if !(v >= 0) {
			return fmt.Errorf("chemeq: amount of %q must be non-negative, got %g mol",
				s.system.species[i].Name, v)
		}
	}
	copy(s.n, n)
	return nil
}

// SpeciesAmount returns the amount [mol] of the species with global
// index i.
func (s *State) SpeciesAmount(i int) float64 { return s.n[i] }

// SpeciesAmounts returns a copy of the species amounts [mol] in
// global species order.
func (s *State) SpeciesAmounts() []float64 {
	n := make([]float64, len(s.n))
	copy(n, s.n)
	return n
}

// ElementAmounts computes the molar element amounts b = W n implied by
// the current species amounts.
func (s *State) ElementAmounts() []float64 {
	b, _ := s.system.ElementAmounts(s.n)
	return b
}

// PhaseAmount returns the total amount [mol] of species in the named
// phase.
func (s *State) PhaseAmount(phase string) (float64, error) {
	ip := s.system.PhaseIndex(phase)
	if ip == s.system.NumPhases() {
		return 0, fmt.Errorf("chemeq: no phase named %q in the system", phase)
	}
	lo, hi := s.system.PhaseSpeciesRange(ip)
	var sum float64
	for i := lo; i < hi; i++ {
		sum += s.n[i]
	}
	return sum, nil
}

// Properties evaluates the thermochemical properties of the system at
// the current state condition.
func (s *State) Properties() (*Properties, error) {
	return s.system.Properties(s.t, s.p, s.n)
}

// Clone returns a deep copy of the state. The copy shares the
// underlying immutable system but owns independent condition
// variables.
func (s *State) Clone() *State {
	n := make([]float64, len(s.n))
	copy(n, s.n)
	return &State{system: s.system, t: s.t, p: s.p, n: n}
}
