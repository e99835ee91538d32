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

// Package water calculates the thermodynamic properties of pure water
// from a Helmholtz free energy equation of state.
//
// A Kernel evaluates the specific Helmholtz energy of water and its
// partial derivatives with respect to temperature and density; the
// package ships the Wagner–Pruss (IAPWS-95) formulation. Given a kernel,
// the package solves for the density of water at a temperature and
// pressure and converts the Helmholtz derivatives into the pressure,
// density, entropy, enthalpy, and heat capacity derivatives needed by
// thermodynamic and activity models.
package water

// Physical constants for water. Units are SI throughout the package:
// temperature in K, pressure in Pa, density in kg/m³, and specific
// energies in J/kg.
const (
	// MolarMass is the molar mass of water (kg/mol).
	MolarMass = 0.018015268

	// CriticalTemperature is the temperature of water at its
	// critical point (K).
	CriticalTemperature = 647.096

	// CriticalPressure is the pressure of water at its critical
	// point (Pa).
	CriticalPressure = 22.064e6

	// CriticalDensity is the density of water at its critical
	// point (kg/m³).
	CriticalDensity = 322.0

	// TriplePointTemperature is the temperature of water at its
	// triple point (K).
	TriplePointTemperature = 273.16

	// gasConstant is the specific gas constant of ordinary water
	// (J/(kg K)).
	gasConstant = 461.51805
)

// HelmholtzState holds the specific Helmholtz free energy of water and
// its partial derivatives with respect to temperature (T) and density
// (D), with the suffix of each field naming the differentiation order.
type HelmholtzState struct {
	Helmholtz    float64 // specific Helmholtz energy (J/kg)
	HelmholtzT   float64 // ∂A/∂T (J/(kg K))
	HelmholtzD   float64 // ∂A/∂D (J m³/kg²)
	HelmholtzTT  float64 // ∂²A/∂T²
	HelmholtzTD  float64 // ∂²A/∂T∂D
	HelmholtzDD  float64 // ∂²A/∂D²
	HelmholtzTTD float64 // ∂³A/∂T²∂D
	HelmholtzTDD float64 // ∂³A/∂T∂D²
	HelmholtzDDD float64 // ∂³A/∂D³
}

// A Kernel is a Helmholtz free energy formulation for water. It
// evaluates the specific Helmholtz energy and its derivatives at
// temperature T (K) and density D (kg/m³).
type Kernel func(T, D float64) HelmholtzState

// ThermoState holds the thermodynamic state of water at a temperature
// and pressure. The suffixes T, P, and D on the pressure and density
// fields name partial derivatives with respect to temperature,
// pressure, and density. Specific properties are per unit mass.
type ThermoState struct {
	Temperature float64 // K

	Pressure   float64 // Pa
	PressureT  float64 // ∂P/∂T at constant D
	PressureD  float64 // ∂P/∂D at constant T
	PressureTT float64
	PressureTD float64
	PressureDD float64

	Density   float64 // kg/m³
	DensityT  float64 // ∂D/∂T at constant P
	DensityP  float64 // ∂D/∂P at constant T
	DensityTT float64
	DensityTP float64
	DensityPP float64

	Volume    float64 // specific volume (m³/kg)
	Entropy   float64 // specific entropy (J/(kg K))
	Helmholtz float64 // specific Helmholtz energy (J/kg)
	Internal  float64 // specific internal energy (J/kg)
	Enthalpy  float64 // specific enthalpy (J/kg)
	Gibbs     float64 // specific Gibbs energy (J/kg)
	Cv        float64 // isochoric heat capacity (J/(kg K))
	Cp        float64 // isobaric heat capacity (J/(kg K))
}

// NewThermoState converts a Helmholtz free energy state evaluated at
// temperature T (K) and density D (kg/m³) into the thermodynamic state
// of water at T and pressure P (Pa). D must solve the equation of
// state at T and P, so that P = D²·(∂A/∂D); the density derivatives
// then follow from the pressure derivatives by implicit
// differentiation of that equation.
//
// Near the critical point of water PressureD vanishes, and the density
// derivatives, which carry it in their denominators, grow without
// bound. The conversion does not regularize them.
func NewThermoState(T, P, D float64, hs HelmholtzState) ThermoState {
	var ts ThermoState
	ts.Temperature = T

	ts.Pressure = P
	ts.PressureD = 2*D*hs.HelmholtzD + D*D*hs.HelmholtzDD
	ts.PressureT = D * D * hs.HelmholtzTD
	ts.PressureDD = 2*hs.HelmholtzD + 4*D*hs.HelmholtzDD + D*D*hs.HelmholtzDDD
	ts.PressureTD = 2*D*hs.HelmholtzTD + D*D*hs.HelmholtzTDD
	ts.PressureTT = D * D * hs.HelmholtzTTD

	ts.Density = D
	ts.DensityT = -ts.PressureT / ts.PressureD
	ts.DensityP = 1 / ts.PressureD
	ts.DensityTT = -ts.DensityP * (ts.PressureTT +
		ts.DensityT*(2*ts.PressureTD+ts.DensityT*ts.PressureDD))
	ts.DensityTP = -ts.DensityP * ts.DensityP *
		(ts.PressureTD + ts.DensityT*ts.PressureDD)
	ts.DensityPP = -ts.DensityP * ts.DensityP * ts.DensityP * ts.PressureDD

	ts.Volume = 1 / D
	ts.Entropy = -hs.HelmholtzT
	ts.Helmholtz = hs.Helmholtz
	ts.Internal = ts.Helmholtz + T*ts.Entropy
	ts.Enthalpy = ts.Internal + P/D
	ts.Gibbs = ts.Enthalpy - T*ts.Entropy
	ts.Cv = -T * hs.HelmholtzTT
	ts.Cp = ts.Cv + T/(D*D)*ts.PressureT*ts.PressureT/ts.PressureD

	return ts
}

// State calculates the thermodynamic state of water at temperature T
// (K) and pressure P (Pa) using the Helmholtz formulation k, solving
// for the density of the phase that is stable at T and P.
func State(T, P float64, k Kernel) (ThermoState, error) {
	D, err := Density(T, P, k)
	if err != nil {
		return ThermoState{}, err
	}
	return NewThermoState(T, P, D, k(T, D)), nil
}

// StateWagnerPruss calculates the thermodynamic state of water at
// temperature T (K) and pressure P (Pa) using the Wagner–Pruss
// formulation.
func StateWagnerPruss(T, P float64) (ThermoState, error) {
	return State(T, P, HelmholtzWagnerPruss)
}
