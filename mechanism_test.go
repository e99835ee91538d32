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
	"math"
	"strings"
	"testing"
)

func TestParseMineralMechanism(t *testing.T) {
	const testTolerance = 1.e-15

	m, err := ParseMineralMechanism("logk = -6.0 mol/(m2*s), Ea = 50.0 kJ/mol, p = 1.0, q = 2.0")
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(m.Kappa-1e-6) > testTolerance*1e-6 {
		t.Errorf("kappa = %g, want 1e-6", m.Kappa)
	}
	if m.ActivationEnergy != 50000 {
		t.Errorf("activation energy = %g, want 50000", m.ActivationEnergy)
	}
	if m.P != 1 {
		t.Errorf("p = %g, want 1", m.P)
	}
	if m.Q != 2 {
		t.Errorf("q = %g, want 2", m.Q)
	}
	if len(m.Catalysts) != 0 {
		t.Errorf("got %d catalysts, want none", len(m.Catalysts))
	}
}

// A mechanism needs nothing beyond logk: the rate constant unit
// defaults to mol/(m2*s) and the saturation powers default to one.
func TestParseMineralMechanismDefaults(t *testing.T) {
	m, err := ParseMineralMechanism("logk=-9.5")
	if err != nil {
		t.Fatal(err)
	}
	if want := math.Pow(10, -9.5); m.Kappa != want {
		t.Errorf("kappa = %g, want %g", m.Kappa, want)
	}
	if m.ActivationEnergy != 0 {
		t.Errorf("activation energy = %g, want 0", m.ActivationEnergy)
	}
	if m.P != 1 || m.Q != 1 {
		t.Errorf("p, q = %g, %g, want 1, 1", m.P, m.Q)
	}
}

func TestParseMineralMechanismUnits(t *testing.T) {
	const testTolerance = 1.e-12

	m, err := ParseMineralMechanism("logk=-2 mol/(cm2*s)")
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(m.Kappa-100) > testTolerance {
		t.Errorf("kappa = %g, want 100 mol/(m2*s)", m.Kappa)
	}
	m, err = ParseMineralMechanism("logk=0 Ea=12 kcal/mol")
	if err != nil {
		t.Fatal(err)
	}
	if m.Kappa != 1 {
		t.Errorf("kappa = %g, want 1", m.Kappa)
	}
	if m.ActivationEnergy != 50208 {
		t.Errorf("activation energy = %g, want 50208 J/mol", m.ActivationEnergy)
	}
}

func TestParseMineralMechanismCatalysts(t *testing.T) {
	m, err := ParseMineralMechanism("logk=-6, a[H+]=1.5, p[CO2(g)]=1, activity[Na+]=2, pressure[H2O(g)]=0.5")
	if err != nil {
		t.Fatal(err)
	}
	want := []MineralCatalyst{
		{Species: "H+", Quantity: "a", Power: 1.5},
		{Species: "CO2(g)", Quantity: "p", Power: 1},
		{Species: "Na+", Quantity: "a", Power: 2},
		{Species: "H2O(g)", Quantity: "p", Power: 0.5},
	}
	if len(m.Catalysts) != len(want) {
		t.Fatalf("got %d catalysts, want %d", len(m.Catalysts), len(want))
	}
	for i, c := range want {
		if m.Catalysts[i] != c {
			t.Errorf("catalyst %d is %+v, want %+v", i, m.Catalysts[i], c)
		}
	}
}

func TestParseMineralMechanismErrors(t *testing.T) {
	tests := []struct {
		input string
		want  string // a fragment of the expected error
	}{
		{"", "logk"},
		{"logk=-6 Ea=50", "missing its unit"},
		{"frequency=3", "valid keys"},
		{"logk=-6 p=2 mol/(m2*s)", "dimensionless"},
		{"logk=-6 a[H+]=2 mol/(m2*s)", "dimensionless"},
		{"mol/(m2*s)", "unexpected token"},
		{"logk=abc", "not a number"},
		{"logk=", "key=value"},
		{"logk=-6 Ea=50 eV/mol", "unknown unit"},
		{"logk=-6 Ea=50 mol/(cm2*s)", "not convertible to kJ/mol"},
		{"logk=-6 kJ/mol", "not convertible to mol/(m2*s)"},
		{"logk=-6 x[H+]=1", "unknown catalyst prefix"},
		{"logk=-6 a[]=1", "names no catalyst species"},
	}
	for _, test := range tests {
		_, err := ParseMineralMechanism(test.input)
		if err == nil {
			t.Errorf("%q: expected an error", test.input)
			continue
		}
		if !strings.Contains(err.Error(), test.want) {
			t.Errorf("%q: error %q does not mention %q", test.input, err, test.want)
		}
	}
}

func haliteDissolution(t *testing.T, sys *System) Reaction {
	t.Helper()
	r, err := NewReaction("halite dissolution", map[string]float64{
		"NaCl(s)": -1, "Na+": 1, "Cl-": 1,
	}, sys)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

// An undersaturated brine dissolves halite at
// area * kappa * (1 - Q/K), with the Arrhenius factor equal to one at
// the reference temperature. The amount and temperature derivatives
// of the rate must agree with finite differences.
func TestMineralRate(t *testing.T) {
	const testTolerance = 1.e-12
	const fdTolerance = 1.e-5

	sys := testMultiphaseSystem(t)
	r := haliteDissolution(t, sys)
	mech, err := ParseMineralMechanism("logk=-6.0 mol/(m2*s), Ea=50.0 kJ/mol, p=1.0, q=1.0")
	if err != nil {
		t.Fatal(err)
	}
	const area = 10.0
	fn := MineralRate(r, area, mech)

	t0, p0 := 298.15, 1.0e5
	n := testAmounts(sys)
	props, err := sys.Properties(t0, p0, n)
	if err != nil {
		t.Fatal(err)
	}
	rate, err := fn(props)
	if err != nil {
		t.Fatal(err)
	}

	lnk := r.LnEquilibriumConstant(t0, p0)
	q := r.Quotient(props.Activities())
	omega := q.Val / math.Exp(lnk.Val)
	if omega >= 1 {
		t.Fatalf("saturation ratio = %g, want it below 1", omega)
	}
	want := area * mech.Kappa * (1 - omega)
	if rate.Val <= 0 {
		t.Errorf("rate = %g, want it positive for an undersaturated brine", rate.Val)
	}
	if math.Abs(rate.Val-want) > testTolerance*want {
		t.Errorf("rate = %g, want %g", rate.Val, want)
	}

	// The pure mineral has unit activity regardless of its amount, so
	// the rate cannot depend on it.
	if d := rate.DDN[sys.SpeciesIndex("NaCl(s)")]; d != 0 {
		t.Errorf("rate derivative with respect to the mineral amount = %g, want 0", d)
	}

	iNa := sys.SpeciesIndex("Na+")
	h := 1e-3 * n[iNa]
	np, nm := make([]float64, len(n)), make([]float64, len(n))
	copy(np, n)
	copy(nm, n)
	np[iNa] += h
	nm[iNa] -= h
	propsP, err := sys.Properties(t0, p0, np)
	if err != nil {
		t.Fatal(err)
	}
	propsM, err := sys.Properties(t0, p0, nm)
	if err != nil {
		t.Fatal(err)
	}
	rp, err := fn(propsP)
	if err != nil {
		t.Fatal(err)
	}
	rm, err := fn(propsM)
	if err != nil {
		t.Fatal(err)
	}
	fd := (rp.Val - rm.Val) / (2 * h)
	if math.Abs(fd-rate.DDN[iNa]) > fdTolerance*math.Abs(rate.DDN[iNa]) {
		t.Errorf("rate sodium derivative = %g, finite difference gives %g", rate.DDN[iNa], fd)
	}

	hT := 1e-4 * t0
	propsP, err = sys.Properties(t0+hT, p0, n)
	if err != nil {
		t.Fatal(err)
	}
	propsM, err = sys.Properties(t0-hT, p0, n)
	if err != nil {
		t.Fatal(err)
	}
	rp, err = fn(propsP)
	if err != nil {
		t.Fatal(err)
	}
	rm, err = fn(propsM)
	if err != nil {
		t.Fatal(err)
	}
	fdT := (rp.Val - rm.Val) / (2 * hT)
	if math.Abs(fdT-rate.DDT) > fdTolerance*math.Abs(rate.DDT) {
		t.Errorf("rate temperature derivative = %g, finite difference gives %g", rate.DDT, fdT)
	}
}

// A supersaturated brine precipitates halite: the rate is negative,
// and the saturation power q applies to the magnitude of the
// saturation term while keeping its sign.
func TestMineralRateSupersaturated(t *testing.T) {
	const testTolerance = 1.e-12

	sys := testMultiphaseSystem(t)
	r := haliteDissolution(t, sys)
	mech, err := ParseMineralMechanism("logk=-6 p=1 q=2")
	if err != nil {
		t.Fatal(err)
	}
	const area = 10.0
	fn := MineralRate(r, area, mech)

	t0, p0 := 298.15, 1.0e5
	n := testAmounts(sys)
	n[sys.SpeciesIndex("Na+")] = 0.25
	n[sys.SpeciesIndex("Cl-")] = 0.25
	props, err := sys.Properties(t0, p0, n)
	if err != nil {
		t.Fatal(err)
	}
	rate, err := fn(props)
	if err != nil {
		t.Fatal(err)
	}

	q := r.Quotient(props.Activities())
	omega := q.Val / r.EquilibriumConstant(t0, p0)
	if omega <= 1 {
		t.Fatalf("saturation ratio = %g, want it above 1", omega)
	}
	if rate.Val >= 0 {
		t.Errorf("rate = %g, want it negative for a supersaturated brine", rate.Val)
	}
	want := -area * mech.Kappa * (omega - 1) * (omega - 1)
	if math.Abs(rate.Val-want) > testTolerance*math.Abs(want) {
		t.Errorf("rate = %g, want %g", rate.Val, want)
	}
}

// Catalysts scale the rate by the activity of an aqueous species or
// the partial pressure of a gas.
func TestMineralRateCatalysts(t *testing.T) {
	const testTolerance = 1.e-12

	sys := testMultiphaseSystem(t)
	r := haliteDissolution(t, sys)
	const area = 10.0
	t0, p0 := 298.15, 1.0e5
	props, err := sys.Properties(t0, p0, testAmounts(sys))
	if err != nil {
		t.Fatal(err)
	}

	parse := func(s string) MineralMechanism {
		m, err := ParseMineralMechanism(s)
		if err != nil {
			t.Fatal(err)
		}
		return m
	}
	rate := func(m MineralMechanism) float64 {
		v, err := MineralRate(r, area, m)(props)
		if err != nil {
			t.Fatal(err)
		}
		return v.Val
	}

	base := rate(parse("logk=-6"))
	withA := rate(parse("logk=-6 a[H+]=1"))
	aH := math.Exp(props.LnActivities.Val[sys.SpeciesIndex("H+")])
	if got := withA / base; math.Abs(got-aH) > testTolerance*aH {
		t.Errorf("proton catalyst scales the rate by %g, want %g", got, aH)
	}

	withP := rate(parse("logk=-6 p[CO2(g)]=1"))
	pCO2 := 0.1 / (0.4 + 0.1) * p0
	if got := withP / base; math.Abs(got-pCO2) > testTolerance*pCO2 {
		t.Errorf("gas catalyst scales the rate by %g, want %g", got, pCO2)
	}

	// Parallel mechanisms add.
	both, err := MineralRate(r, area, parse("logk=-6"), parse("logk=-6"))(props)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(both.Val-2*base) > testTolerance*math.Abs(2*base) {
		t.Errorf("two parallel mechanisms give %g, want %g", both.Val, 2*base)
	}
}

func TestMineralRateUnknownCatalyst(t *testing.T) {
	sys := testMultiphaseSystem(t)
	r := haliteDissolution(t, sys)
	mech, err := ParseMineralMechanism("logk=-6 a[Quartz]=1")
	if err != nil {
		t.Fatal(err)
	}
	props, err := sys.Properties(298.15, 1e5, testAmounts(sys))
	if err != nil {
		t.Fatal(err)
	}
	_, err = MineralRate(r, 1, mech)(props)
	if err == nil {
		t.Fatal("expected an error for an unknown catalyst species")
	}
	if !strings.Contains(err.Error(), "Quartz") {
		t.Errorf("error %q does not name the unknown species", err)
	}
}
