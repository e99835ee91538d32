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

// Package chemeq models multiphase chemical systems and solves for
// their equilibrium and kinetic behavior. A System describes the
// phases, species, and elements of a problem; a State holds one
// condition of that system (temperature, pressure, and species
// amounts); and solvers adjust states so that they satisfy
// equilibrium, inverse, or kinetic requirements.
package chemeq

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Version gives this version of ChemEq.
const Version = "1.2.0"

// Physical constants used throughout the model.
const (
	// GasConstant is the universal gas constant [J/(mol K)].
	GasConstant = 8.31446261815324

	// ReferenceTemperature [K] and ReferencePressure [Pa] are the
	// conditions at which standard thermodynamic data are reported.
	ReferenceTemperature = 298.15
	ReferencePressure    = 1.0e5

	// ChargeElement is the name of the synthetic element that tracks
	// electrical charge in the formula matrix.
	ChargeElement = "Z"
)

// amountFloor is the smallest species amount used when evaluating
// logarithmic activity models, so that species with zero amounts give
// finite results.
const amountFloor = 1.0e-50

// An Element is a chemical element that can appear in species
// formulas. The synthetic element "Z" tracks electrical charge and
// has zero molar mass.
type Element struct {
	Name      string
	MolarMass float64 // [kg/mol]
}

// SpeciesThermo holds the standard thermodynamic properties of a
// single species at some temperature and pressure.
type SpeciesThermo struct {
	Gibbs    float64 // standard partial molar Gibbs energy [J/mol]
	Enthalpy float64 // standard partial molar enthalpy [J/mol]
	Entropy  float64 // standard partial molar entropy [J/(mol K)]
	Volume   float64 // standard partial molar volume [m3/mol]
}

// A ThermoFn evaluates the standard thermodynamic properties of a
// species at temperature T [K] and pressure P [Pa].
type ThermoFn func(T, P float64) SpeciesThermo

// A Species is a chemical species belonging to one phase of a system.
// Species values are assembled before system construction and must be
// treated as read-only afterwards.
type Species struct {
	// Name identifies the species, for example "CO2(aq)" or "Calcite".
	Name string

	// Formula gives the number of atoms of each element in one formula
	// unit. Electrical charge is carried separately in Charge.
	Formula map[string]float64

	// Charge is the species electrical charge in elementary units.
	Charge float64

	// MolarMass is the species molar mass [kg/mol]. If zero, it is
	// filled in from the formula during system construction.
	MolarMass float64

	// Dissociation maps ion names to stoichiometric coefficients for
	// aqueous species that dissociate into charged species. It is nil
	// for species that do not dissociate.
	Dissociation map[string]float64

	// Thermo evaluates the standard thermodynamic properties of the
	// species. It must be non-nil for species that take part in
	// equilibrium or kinetic calculations.
	Thermo ThermoFn
}

// A PhaseKind classifies the physical state of a phase.
type PhaseKind int

const (
	// AqueousPhase is a liquid solution with water as the solvent.
	AqueousPhase PhaseKind = iota
	// GaseousPhase is a gas mixture.
	GaseousPhase
	// MineralPhase is a solid.
	MineralPhase
)

func (k PhaseKind) String() string {
	switch k {
	case AqueousPhase:
		return "aqueous"
	case GaseousPhase:
		return "gaseous"
	case MineralPhase:
		return "mineral"
	default:
		return fmt.Sprintf("PhaseKind(%d)", int(k))
	}
}

// An ActivityFn evaluates the activities of the species in one phase
// at temperature T [K] and pressure P [Pa] given the amounts n [mol]
// of the phase species. The returned vector holds the natural
// logarithm of each phase species activity, with derivatives with
// respect to T, P, and the phase species amounts.
type ActivityFn func(T, P float64, n []float64) (ChemicalVector, error)

// A Phase is a homogeneous part of a chemical system.
type Phase struct {
	// Name identifies the phase, for example "Aqueous" or "Calcite".
	Name string

	// Kind classifies the physical state of the phase.
	Kind PhaseKind

	// Species lists the species that can exist in the phase.
	Species []Species

	// Activity evaluates the log activities of the phase species. If
	// nil, a default model for the phase kind is used: ideal solution
	// for aqueous phases, ideal gas for gaseous phases, and unit
	// activity for mineral phases.
	Activity ActivityFn
}

// A System is the topology of a multiphase chemical problem: its
// phases, species, and elements, and the formula matrix connecting
// them. Systems are immutable after construction and may be shared
// freely among goroutines; the dynamic condition of a system lives in
// State values instead.
type System struct {
	phases   []Phase
	species  []Species
	elements []Element

	formula *mat.Dense // elements by species

	speciesIndex map[string]int
	elementIndex map[string]int
	phaseIndex   map[string]int

	phaseFirst []int // global index of the first species in each phase
	activity   []ActivityFn

	thermo *thermoCache
}

// NewSystem creates a chemical system from the given phases. Phase and
// species names must be unique across the whole system. The element
// set is assembled from the species formulas, ordered alphabetically,
// with the charge element appended last.
func NewSystem(phases []Phase) (*System, error) {
	if len(phases) == 0 {
		return nil, fmt.Errorf("chemeq: a system must have at least one phase")
	}
	sys := &System{
		phases:       phases,
		speciesIndex: make(map[string]int),
		elementIndex: make(map[string]int),
		phaseIndex:   make(map[string]int),
	}
	elemSet := make(map[string]struct{})
	for ip, ph := range phases {
		if _, ok := sys.phaseIndex[ph.Name]; ok {
			return nil, fmt.Errorf("chemeq: duplicate phase name %q", ph.Name)
		}
		if len(ph.Species) == 0 {
			return nil, fmt.Errorf("chemeq: phase %q has no species", ph.Name)
		}
		sys.phaseIndex[ph.Name] = ip
		sys.phaseFirst = append(sys.phaseFirst, len(sys.species))
		for _, sp := range ph.Species {
			if _, ok := sys.speciesIndex[sp.Name]; ok {
				return nil, fmt.Errorf("chemeq: duplicate species name %q", sp.Name)
			}
			for e := range sp.Formula {
				if e == ChargeElement {
					return nil, fmt.Errorf("chemeq: species %q: element name %q is reserved for charge",
						sp.Name, ChargeElement)
				}
				elemSet[e] = struct{}{}
			}
			sys.speciesIndex[sp.Name] = len(sys.species)
			sys.species = append(sys.species, sp)
		}
		a, err := phaseActivity(ph)
		if err != nil {
			return nil, err
		}
		sys.activity = append(sys.activity, a)
	}

	names := make([]string, 0, len(elemSet)+1)
	for e := range elemSet {
		names = append(names, e)
	}
	sort.Strings(names)
	names = append(names, ChargeElement)
	for i, e := range names {
		sys.elements = append(sys.elements, Element{Name: e, MolarMass: atomicMasses[e]})
		sys.elementIndex[e] = i
	}

	sys.formula = mat.NewDense(len(sys.elements), len(sys.species), nil)
	iz := sys.elementIndex[ChargeElement]
	for j := range sys.species {
		sp := &sys.species[j]
		for e, c := range sp.Formula {
			sys.formula.Set(sys.elementIndex[e], j, c)
		}
		sys.formula.Set(iz, j, sp.Charge)
		if sp.MolarMass == 0 {
			for e, c := range sp.Formula {
				sp.MolarMass += c * atomicMasses[e]
			}
		}
	}
	sys.thermo = newThermoCache(sys)
	return sys, nil
}

// NumSpecies returns the number of species in the system.
func (s *System) NumSpecies() int { return len(s.species) }

// NumElements returns the number of elements in the system, including
// the charge element.
func (s *System) NumElements() int { return len(s.elements) }

// NumPhases returns the number of phases in the system.
func (s *System) NumPhases() int { return len(s.phases) }

// Species returns the species of the system in global order. The
// returned slice is owned by the system and must not be modified.
func (s *System) Species() []Species { return s.species }

// Elements returns the elements of the system. The returned slice is
// owned by the system and must not be modified.
func (s *System) Elements() []Element { return s.elements }

// Phases returns the phases of the system. The returned slice is
// owned by the system and must not be modified.
func (s *System) Phases() []Phase { return s.phases }

// SpeciesIndex returns the global index of the named species, or
// NumSpecies() if there is no such species.
func (s *System) SpeciesIndex(name string) int {
	if i, ok := s.speciesIndex[name]; ok {
		return i
	}
	return len(s.species)
}

// ElementIndex returns the index of the named element, or
// NumElements() if there is no such element.
func (s *System) ElementIndex(name string) int {
	if i, ok := s.elementIndex[name]; ok {
		return i
	}
	return len(s.elements)
}

// PhaseIndex returns the index of the named phase, or NumPhases() if
// there is no such phase.
func (s *System) PhaseIndex(name string) int {
	if i, ok := s.phaseIndex[name]; ok {
		return i
	}
	return len(s.phases)
}

// FormulaMatrix returns the element-by-species formula matrix of the
// system. Row order matches Elements and column order matches Species;
// the last row holds species charges. The returned matrix is owned by
// the system and must not be modified.
func (s *System) FormulaMatrix() mat.Matrix { return s.formula }

// ElementCoefficient returns the number of atoms of the element with
// index ie in one formula unit of the species with index is.
func (s *System) ElementCoefficient(ie, is int) float64 { return s.formula.At(ie, is) }

// PhaseOfSpecies returns the index of the phase that contains the
// species with global index i.
func (s *System) PhaseOfSpecies(i int) int {
	ip := sort.SearchInts(s.phaseFirst, i+1) - 1
	return ip
}

// PhaseSpeciesRange returns the half open range [lo, hi) of global
// species indices belonging to the phase with index ip.
func (s *System) PhaseSpeciesRange(ip int) (lo, hi int) {
	lo = s.phaseFirst[ip]
	if ip+1 < len(s.phaseFirst) {
		hi = s.phaseFirst[ip+1]
	} else {
		hi = len(s.species)
	}
	return lo, hi
}

// ElementAmounts computes the molar element amounts b = W n, where W
// is the formula matrix and n the given species amounts.
func (s *System) ElementAmounts(n []float64) ([]float64, error) {
	if len(n) != len(s.species) {
		return nil, fmt.Errorf("chemeq: ElementAmounts: got %d species amounts for a system with %d species",
			len(n), len(s.species))
	}
	b := make([]float64, len(s.elements))
	for i := range s.elements {
		for j := range s.species {
			b[i] += s.formula.At(i, j) * n[j]
		}
	}
	return b, nil
}

// atomicMasses holds standard atomic masses [kg/mol] for the elements
// the thermodynamic database covers. Elements not listed here get zero
// molar mass.
var atomicMasses = map[string]float64{
	"H": 1.00794e-3, "He": 4.002602e-3, "Li": 6.941e-3, "Be": 9.012182e-3,
	"B": 10.811e-3, "C": 12.0107e-3, "N": 14.0067e-3, "O": 15.9994e-3,
	"F": 18.9984032e-3, "Ne": 20.1797e-3, "Na": 22.98977e-3, "Mg": 24.305e-3,
	"Al": 26.981538e-3, "Si": 28.0855e-3, "P": 30.973761e-3, "S": 32.065e-3,
	"Cl": 35.453e-3, "Ar": 39.948e-3, "K": 39.0983e-3, "Ca": 40.078e-3,
	"Ti": 47.867e-3, "Cr": 51.9961e-3, "Mn": 54.938049e-3, "Fe": 55.845e-3,
	"Ni": 58.6934e-3, "Cu": 63.546e-3, "Zn": 65.409e-3, "As": 74.9216e-3,
	"Br": 79.904e-3, "Sr": 87.62e-3, "Ag": 107.8682e-3, "Cd": 112.411e-3,
	"I": 126.90447e-3, "Ba": 137.327e-3, "Au": 196.96655e-3, "Hg": 200.59e-3,
	"Pb": 207.2e-3, "U": 238.02891e-3,
}
