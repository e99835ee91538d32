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
	"math"
	"testing"
)

func TestDensityBranches(t *testing.T) {
	cases := []struct {
		name     string
		T, P     float64
		lo, hi   float64
	}{
		{"liquid", 298.15, 101325, 990, 1000},
		{"hot liquid", 473.15, 3.e6, 850, 880},
		{"vapor", 473.15, 101325, 0.4, 0.6},
		{"supercritical", 700, 25.e6, 50, 400},
		{"dense supercritical", 900, 700.e6, 800, 950},
	}
	for _, c := range cases {
		D, err := Density(c.T, c.P, HelmholtzWagnerPruss)
		if err != nil {
			t.Fatalf("%s: %v", c.name, err)
		}
		if D < c.lo || D > c.hi {
			t.Errorf("%s: density %g out of range [%g, %g]", c.name, D, c.lo, c.hi)
		}
		// The solved density must reproduce the pressure.
		hs := HelmholtzWagnerPruss(c.T, D)
		p := D * D * hs.HelmholtzD
		if math.Abs(p-c.P)/CriticalPressure > 1.e-9 {
			t.Errorf("%s: pressure %g at solved density, want %g", c.name, p, c.P)
		}
	}
}

func TestDensityAnchors(t *testing.T) {
	// Liquid water at ambient conditions.
	D, err := Density(298.15, 101325, HelmholtzWagnerPruss)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(D-997.047) > 0.05 {
		t.Errorf("ambient liquid density %g, want 997.047", D)
	}

	// Inversions of published (T, D, p) states
	// (Wagner and Pruss (2002), table 13.1).
	Dl, err := LiquidDensity(300, 0.992418352e5, HelmholtzWagnerPruss)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(Dl-996.5560) > 1.e-3 {
		t.Errorf("liquid density %g, want 996.5560", Dl)
	}
	Dv, err := VaporDensity(500, 0.999679423e5, HelmholtzWagnerPruss)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(Dv-0.435) > 1.e-5 {
		t.Errorf("vapor density %g, want 0.435", Dv)
	}
}

func TestSaturationPressure(t *testing.T) {
	// Normal boiling point.
	if p := SaturationPressure(373.1243); math.Abs(p-101325)/101325 > 1.e-3 {
		t.Errorf("saturation pressure at normal boiling point: %g", p)
	}
	// Ambient vapor pressure.
	if p := SaturationPressure(298.15); math.Abs(p-3169.9)/3169.9 > 1.e-2 {
		t.Errorf("saturation pressure at 298.15 K: %g", p)
	}
	// Monotone increasing up to the critical pressure.
	prev := 0.0
	for _, T := range []float64{280, 320, 400, 500, 600, 640} {
		p := SaturationPressure(T)
		if p <= prev || p >= CriticalPressure {
			t.Errorf("saturation pressure %g at %g K not in (%g, %g)",
				p, T, prev, CriticalPressure)
		}
		prev = p
	}
	if p := SaturationPressure(CriticalTemperature); p != CriticalPressure {
		t.Errorf("saturation pressure at critical temperature: %g", p)
	}
}
