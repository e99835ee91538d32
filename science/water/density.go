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

package water

import (
	"fmt"
	"math"
)

const (
	// densityTolerance is the convergence tolerance of the density
	// iterations, applied to the pressure residual reduced by the
	// critical pressure of water.
	densityTolerance = 1e-12

	// densityMaxIterations is the maximum number of Newton
	// iterations when solving the equation of state for density.
	densityMaxIterations = 100
)

// density solves P(T,D) = P for D with Newton iterations starting
// from the density guess D0.
func density(T, P, D0 float64, k Kernel) (float64, error) {
	D := D0
	for i := 0; i < densityMaxIterations; i++ {
		hs := k(T, D)
		f := D*D*hs.HelmholtzD - P
		if math.Abs(f)/CriticalPressure < densityTolerance {
			return D, nil
		}
		df := 2*D*hs.HelmholtzD + D*D*hs.HelmholtzDD
		step := f / df
		// Newton steps that would leave the positive density
		// domain are shortened to a halving step.
		if step >= D {
			step = D / 2
		}
		D -= step
	}
	return 0, fmt.Errorf("water: density iterations did not converge at "+
		"T=%g K, P=%g Pa (initial density %g kg/m³)", T, P, D0)
}

// LiquidDensity calculates the density (kg/m³) of liquid water at
// temperature T (K) and pressure P (Pa) with the Helmholtz formulation
// k, starting the iterations from a liquid-like density.
func LiquidDensity(T, P float64, k Kernel) (float64, error) {
	return density(T, P, 1000, k)
}

// VaporDensity calculates the density (kg/m³) of water vapor at
// temperature T (K) and pressure P (Pa) with the Helmholtz formulation
// k, starting the iterations from the ideal gas density.
func VaporDensity(T, P float64, k Kernel) (float64, error) {
	return density(T, P, P/(gasConstant*T), k)
}

// Density calculates the density (kg/m³) of the water phase that is
// stable at temperature T (K) and pressure P (Pa): liquid when P
// exceeds the saturation pressure at T, vapor when it does not, and
// the single supercritical phase above the critical temperature.
func Density(T, P float64, k Kernel) (float64, error) {
	if T < CriticalTemperature && P < SaturationPressure(T) {
		return VaporDensity(T, P, k)
	}
	if T >= CriticalTemperature && P < CriticalPressure {
		return VaporDensity(T, P, k)
	}
	return LiquidDensity(T, P, k)
}

// Coefficients of the saturation pressure correlation of Wagner and
// Pruss (2002), eq. 2.5.
var saturationCoeffs = [6]float64{
	-7.85951783, 1.84408259, -11.7866497, 22.6807411, -15.9618719, 1.80122502,
}

// SaturationPressure calculates the pressure (Pa) at which liquid
// water and water vapor coexist at temperature T (K), from the
// vapor-pressure correlation of Wagner and Pruss. Above the critical
// temperature it returns the critical pressure.
func SaturationPressure(T float64) float64 {
	if T >= CriticalTemperature {
		return CriticalPressure
	}
	v := 1 - T/CriticalTemperature
	a := saturationCoeffs
	s := a[0]*v + a[1]*math.Pow(v, 1.5) + a[2]*v*v*v +
		a[3]*math.Pow(v, 3.5) + a[4]*v*v*v*v + a[5]*math.Pow(v, 7.5)
	return CriticalPressure * math.Exp(CriticalTemperature/T*s)
}
