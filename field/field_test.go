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

package field

import (
	"context"
	"io"
	"math"
	"strings"
	"testing"

	"github.com/chemmodel/chemeq"
	"github.com/sirupsen/logrus"
)

func constantThermo(gibbs, volume float64) chemeq.ThermoFn {
	return func(T, P float64) chemeq.SpeciesThermo {
		return chemeq.SpeciesThermo{Gibbs: gibbs, Enthalpy: gibbs, Volume: volume}
	}
}

func idealGasThermo(gibbs float64) chemeq.ThermoFn {
	return func(T, P float64) chemeq.SpeciesThermo {
		return chemeq.SpeciesThermo{Gibbs: gibbs, Enthalpy: gibbs, Volume: chemeq.GasConstant * T / P}
	}
}

// aqueousPhase is dilute aqueous NaCl solution chemistry with standard
// Gibbs energies of formation at 298.15 K in J/mol.
func aqueousPhase() chemeq.Phase {
	return chemeq.Phase{
		Name: "Aqueous",
		Kind: chemeq.AqueousPhase,
		Species: []chemeq.Species{
			{Name: "H2O(l)", Formula: map[string]float64{"H": 2, "O": 1}, Thermo: constantThermo(-237.14e3, 1.807e-5)},
			{Name: "H+", Formula: map[string]float64{"H": 1}, Charge: 1, Thermo: constantThermo(0, 0)},
			{Name: "OH-", Formula: map[string]float64{"O": 1, "H": 1}, Charge: -1, Thermo: constantThermo(-157.3e3, 0)},
			{Name: "Na+", Formula: map[string]float64{"Na": 1}, Charge: 1, Thermo: constantThermo(-261.88e3, 0)},
			{Name: "Cl-", Formula: map[string]float64{"Cl": 1}, Charge: -1, Thermo: constantThermo(-131.26e3, 0)},
		},
	}
}

func aqueousSystem(t *testing.T) *chemeq.System {
	t.Helper()
	sys, err := chemeq.NewSystem([]chemeq.Phase{aqueousPhase()})
	if err != nil {
		t.Fatal(err)
	}
	return sys
}

// brineSystem adds a gas phase and a halite mineral to the aqueous
// phase.
func brineSystem(t *testing.T) *chemeq.System {
	t.Helper()
	gas := chemeq.Phase{
		Name: "Gas",
		Kind: chemeq.GaseousPhase,
		Species: []chemeq.Species{
			{Name: "H2O(g)", Formula: map[string]float64{"H": 2, "O": 1}, Thermo: idealGasThermo(-228.57e3)},
			{Name: "CO2(g)", Formula: map[string]float64{"C": 1, "O": 2}, Thermo: idealGasThermo(-394.36e3)},
		},
	}
	halite := chemeq.Phase{
		Name: "Halite",
		Kind: chemeq.MineralPhase,
		Species: []chemeq.Species{
			{Name: "NaCl(s)", Formula: map[string]float64{"Na": 1, "Cl": 1}, Thermo: constantThermo(-384.12e3, 2.702e-5)},
		},
	}
	sys, err := chemeq.NewSystem([]chemeq.Phase{aqueousPhase(), gas, halite})
	if err != nil {
		t.Fatal(err)
	}
	return sys
}

func haliteReaction(t *testing.T, sys *chemeq.System) chemeq.Reaction {
	t.Helper()
	r, err := chemeq.NewReaction("halite dissolution", map[string]float64{
		"NaCl(s)": -1, "Na+": 1, "Cl-": 1,
	}, sys)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestSetState(t *testing.T) {
	sys := aqueousSystem(t)
	s, err := NewSolver(chemeq.NewPartition(sys), 3)
	if err != nil {
		t.Fatal(err)
	}
	if s.NumPoints() != 3 {
		t.Fatalf("solver has %d points, want 3", s.NumPoints())
	}

	st := chemeq.NewState(sys)
	if err := st.SetSpeciesAmount("Na+", 0.25); err != nil {
		t.Fatal(err)
	}
	if err := s.SetState(st); err != nil {
		t.Fatal(err)
	}
	iNa := sys.SpeciesIndex("Na+")
	for i := 0; i < s.NumPoints(); i++ {
		if got := s.State(i).SpeciesAmount(iNa); got != 0.25 {
			t.Errorf("point %d has n[Na+] = %g, want 0.25", i, got)
		}
	}

	// The solver owns deep copies, not the template itself.
	if err := st.SetSpeciesAmount("Na+", 0.5); err != nil {
		t.Fatal(err)
	}
	if got := s.State(0).SpeciesAmount(iNa); got != 0.25 {
		t.Errorf("point 0 tracks the template state; want an independent copy")
	}

	st2 := chemeq.NewState(sys)
	if err := st2.SetSpeciesAmount("Na+", 1); err != nil {
		t.Fatal(err)
	}
	if err := s.SetStateAt(st2, 1); err != nil {
		t.Fatal(err)
	}
	for i, want := range []float64{0.25, 1, 0.25} {
		if got := s.State(i).SpeciesAmount(iNa); got != want {
			t.Errorf("point %d has n[Na+] = %g, want %g", i, got, want)
		}
	}
}

// A four point sweep over increasing salinity must reproduce the
// prescribed element amounts and a neutral solution at every point,
// and a follow-up sweep must converge from the warm-started states.
func TestEquilibrateField(t *testing.T) {
	sys := aqueousSystem(t)
	s, err := NewSolver(chemeq.NewPartition(sys), 4)
	if err != nil {
		t.Fatal(err)
	}
	s.Options.Tolerance = 1e-11

	// Element order is Cl, H, Na, O, Z.
	salt := []float64{1e-4, 1e-3, 1e-2, 0.1}
	T := make([]float64, len(salt))
	P := make([]float64, len(salt))
	var be []float64
	for i, x := range salt {
		T[i], P[i] = 298.15, 1e5
		be = append(be, x, 2, x, 1, 0)
	}
	if err := s.Equilibrate(context.Background(), T, P, be); err != nil {
		t.Fatal(err)
	}

	iH := sys.SpeciesIndex("H+")
	iOH := sys.SpeciesIndex("OH-")
	iNa := sys.SpeciesIndex("Na+")
	for i := range salt {
		state := s.State(i)
		b := state.ElementAmounts()
		for e, want := range be[i*5 : (i+1)*5] {
			if math.Abs(b[e]-want) > 1e-9 {
				t.Errorf("point %d: element %s amount = %g, want %g",
					i, sys.Elements()[e].Name, b[e], want)
			}
		}
		nH, nOH := state.SpeciesAmount(iH), state.SpeciesAmount(iOH)
		if math.Abs(nH-nOH) > 0.05*nH {
			t.Errorf("point %d: n[H+] = %g and n[OH-] = %g, want them equal", i, nH, nOH)
		}
		if math.Abs(state.SpeciesAmount(iNa)-salt[i]) > 1e-9 {
			t.Errorf("point %d: n[Na+] = %g, want %g", i, state.SpeciesAmount(iNa), salt[i])
		}
	}

	// A little more salt everywhere; the previous solutions seed the
	// new solves.
	for i := range salt {
		be[i*5] += 1e-5
		be[i*5+2] += 1e-5
	}
	if err := s.Equilibrate(context.Background(), T, P, be); err != nil {
		t.Fatal(err)
	}
	b := s.State(0).ElementAmounts()
	for e, want := range be[:5] {
		if math.Abs(b[e]-want) > 1e-9 {
			t.Errorf("after the second sweep, element %s amount = %g, want %g",
				sys.Elements()[e].Name, b[e], want)
		}
	}
}

func TestSolverErrors(t *testing.T) {
	sys := aqueousSystem(t)
	ctx := context.Background()

	if _, err := NewSolver(chemeq.NewPartition(sys), 0); err == nil {
		t.Error("expected an error for a solver without points")
	}

	s, err := NewSolver(chemeq.NewPartition(sys), 2)
	if err != nil {
		t.Fatal(err)
	}
	T := []float64{298.15, 298.15}
	P := []float64{1e5, 1e5}
	be := []float64{0.01, 2, 0.01, 1, 0, 0.01, 2, 0.01, 1, 0}

	if err := s.Equilibrate(ctx, T[:1], P, be); err == nil {
		t.Error("expected an error for a short temperature vector")
	}
	if err := s.Equilibrate(ctx, T, P, be[:7]); err == nil {
		t.Error("expected an error for a short element amount vector")
	}
	canceled, cancel := context.WithCancel(ctx)
	cancel()
	if err := s.Equilibrate(canceled, T, P, be); err != context.Canceled {
		t.Errorf("err = %v, want %v", err, context.Canceled)
	}

	other := aqueousSystem(t)
	if err := s.SetState(chemeq.NewState(other)); err == nil {
		t.Error("expected an error for a state from a different system")
	}
	if err := s.SetStateAt(chemeq.NewState(sys), 2); err == nil {
		t.Error("expected an error for an out of range point index")
	}

	if err := s.React(ctx, 0, 1); err == nil {
		t.Error("expected an error for reacting without reactions")
	}
	water, err := chemeq.NewReaction("water ionization", map[string]float64{
		"H2O(l)": -1, "H+": 1, "OH-": 1,
	}, other)
	if err != nil {
		t.Fatal(err)
	}
	rs, err := chemeq.NewReactionSystem(other, []chemeq.Reaction{water})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SetReactions(rs); err == nil {
		t.Error("expected an error for reactions over a different system")
	}

	multi := brineSystem(t)
	ms, err := NewSolver(chemeq.NewPartition(multi), 1)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ms.Saturation(multi.PhaseIndex("Halite")); err == nil {
		t.Error("expected an error for the saturation of a mineral phase")
	}
	if _, err := ms.Saturation(-1); err == nil {
		t.Error("expected an error for a negative phase index")
	}
	if _, err := ms.Density(multi.NumPhases()); err == nil {
		t.Error("expected an error for an out of range phase index")
	}
}

// When the iteration budget is too small to converge, the solver
// retries from perturbed guesses and then reports the failure.
func TestEquilibrateRetry(t *testing.T) {
	sys := aqueousSystem(t)
	s, err := NewSolver(chemeq.NewPartition(sys), 1)
	if err != nil {
		t.Fatal(err)
	}
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	s.Log = logger
	s.Options.MaxIterations = 1
	s.MaxRetries = 1

	err = s.Equilibrate(context.Background(),
		[]float64{298.15}, []float64{1e5}, []float64{0.01, 2, 0.01, 1, 0})
	if err == nil {
		t.Fatal("expected an error when the iteration budget is too small")
	}
	if !strings.Contains(err.Error(), "stopped with status") {
		t.Errorf("error %q does not describe the unconverged solve", err)
	}
}

// Reacting an undersaturated brine dissolves kinetic halite at the
// mechanism rate while conserving every element, and the dissolved
// salt shows up in the solution.
func TestReactField(t *testing.T) {
	const testTolerance = 1.e-7

	sys := brineSystem(t)
	p, err := chemeq.NewPartitionWith(sys, []string{"NaCl(s)"}, []string{"H2O(g)", "CO2(g)"})
	if err != nil {
		t.Fatal(err)
	}
	s, err := NewSolver(p, 2)
	if err != nil {
		t.Fatal(err)
	}
	s.Options.Tolerance = 1e-11

	mech, err := chemeq.ParseMineralMechanism("logk=-6.0 mol/(m2*s)")
	if err != nil {
		t.Fatal(err)
	}
	const area = 10.0
	r := haliteReaction(t, sys)
	r = r.WithRate(chemeq.MineralRate(r, area, mech))
	rs, err := chemeq.NewReactionSystem(sys, []chemeq.Reaction{r})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SetReactions(rs); err != nil {
		t.Fatal(err)
	}

	st := chemeq.NewState(sys)
	for name, amount := range map[string]float64{
		"H2O(l)": 2, "Na+": 0.01, "Cl-": 0.01, "NaCl(s)": 1e-3,
	} {
		if err := st.SetSpeciesAmount(name, amount); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.SetState(st); err != nil {
		t.Fatal(err)
	}

	// Equilibrate the solution first so the initial rate is well
	// defined.
	be, err := p.EquilibriumElementAmounts(st.SpeciesAmounts())
	if err != nil {
		t.Fatal(err)
	}
	T := []float64{298.15, 298.15}
	P := []float64{1e5, 1e5}
	bes := append(append([]float64{}, be...), be...)
	if err := s.Equilibrate(context.Background(), T, P, bes); err != nil {
		t.Fatal(err)
	}

	props, err := s.State(0).Properties()
	if err != nil {
		t.Fatal(err)
	}
	rates, err := rs.Rates(props)
	if err != nil {
		t.Fatal(err)
	}
	if rates.Val[0] <= 0 {
		t.Fatalf("initial rate = %g, want it positive for an undersaturated brine", rates.Val[0])
	}

	iNaEl := sys.ElementIndex("Na")
	iS := sys.SpeciesIndex("NaCl(s)")
	iNa := sys.SpeciesIndex("Na+")
	naBefore := s.State(0).ElementAmounts()[iNaEl]
	sBefore := s.State(0).SpeciesAmount(iS)

	const dt = 10.0
	if err := s.React(context.Background(), 0, dt); err != nil {
		t.Fatal(err)
	}

	// The rate barely changes over the step, so the dissolved amount
	// tracks rate times time.
	want := dt * rates.Val[0]
	for i := 0; i < s.NumPoints(); i++ {
		state := s.State(i)
		if d := math.Abs(state.ElementAmounts()[iNaEl] - naBefore); d > testTolerance {
			t.Errorf("point %d: sodium changed by %g mol over the step, want it conserved", i, d)
		}
		dissolved := sBefore - state.SpeciesAmount(iS)
		if dissolved <= 0 {
			t.Errorf("point %d: dissolved halite = %g mol, want it positive", i, dissolved)
		}
		if math.Abs(dissolved-want) > 0.02*want {
			t.Errorf("point %d: dissolved %g mol of halite, want about %g", i, dissolved, want)
		}
		if got := state.SpeciesAmount(iNa); math.Abs(got-(0.01+dissolved)) > testTolerance {
			t.Errorf("point %d: n[Na+] = %g, want %g", i, got, 0.01+dissolved)
		}
	}
}

// Porosity, saturation, and density of a hand-built state must match
// the phase volumes and masses computed from the standard properties.
func TestAssembleQuantities(t *testing.T) {
	const testTolerance = 1.e-12

	sys := brineSystem(t)
	p, err := chemeq.NewPartitionWith(sys, []string{"NaCl(s)"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	s, err := NewSolver(p, 2)
	if err != nil {
		t.Fatal(err)
	}

	st := chemeq.NewState(sys)
	for name, amount := range map[string]float64{
		"H2O(l)": 2, "H+": 1e-7, "OH-": 1e-7, "Na+": 0.05, "Cl-": 0.05,
		"H2O(g)": 0.4, "CO2(g)": 0.1, "NaCl(s)": 1000,
	} {
		if err := st.SetSpeciesAmount(name, amount); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.SetState(st); err != nil {
		t.Fatal(err)
	}

	const vs = 1000 * 2.702e-5 // halite volume
	vaq := 2 * 1.807e-5
	vgas := 0.5 * chemeq.GasConstant * 298.15 / 1e5

	phi, err := s.Porosity()
	if err != nil {
		t.Fatal(err)
	}
	if phi.NumPoints() != 2 {
		t.Fatalf("porosity covers %d points, want 2", phi.NumPoints())
	}
	if phi.DDT != nil || phi.DDBe != nil || phi.DDNk != nil {
		t.Error("a plain field carries derivative blocks")
	}
	for i := 0; i < 2; i++ {
		if got := phi.Val.Get(i); math.Abs(got-(1-vs)) > testTolerance {
			t.Errorf("porosity at point %d = %g, want %g", i, got, 1-vs)
		}
	}

	phiD, err := s.PorosityWithDiff()
	if err != nil {
		t.Fatal(err)
	}
	// Growing the halite by a mole shrinks the pore space by its
	// molar volume.
	if got := phiD.DDNk.Get(0, 0); math.Abs(got+2.702e-5) > testTolerance {
		t.Errorf("porosity kinetic derivative = %g, want %g", got, -2.702e-5)
	}
	if phiD.DDT.Get(0) != 0 || phiD.DDP.Get(0) != 0 {
		t.Error("porosity carries temperature or pressure dependence, want none for constant standard volumes")
	}

	iAq := sys.PhaseIndex("Aqueous")
	iGas := sys.PhaseIndex("Gas")
	satAq, err := s.Saturation(iAq)
	if err != nil {
		t.Fatal(err)
	}
	satGas, err := s.Saturation(iGas)
	if err != nil {
		t.Fatal(err)
	}
	wantAq := vaq / (vaq + vgas)
	if got := satAq.Val.Get(0); math.Abs(got-wantAq) > testTolerance {
		t.Errorf("aqueous saturation = %g, want %g", got, wantAq)
	}
	if got := satAq.Val.Get(0) + satGas.Val.Get(0); math.Abs(got-1) > testTolerance {
		t.Errorf("fluid saturations sum to %g, want 1", got)
	}

	rhoGas, err := s.Density(iGas)
	if err != nil {
		t.Fatal(err)
	}
	gasMass := 0.4*sys.Species()[sys.SpeciesIndex("H2O(g)")].MolarMass +
		0.1*sys.Species()[sys.SpeciesIndex("CO2(g)")].MolarMass
	if got, want := rhoGas.Val.Get(0), gasMass/vgas; math.Abs(got-want) > testTolerance*want {
		t.Errorf("gas density = %g kg/m3, want %g", got, want)
	}

	// The density of the pure mineral is its molar mass over its
	// molar volume, independent of the amount.
	rhoS, err := s.Density(sys.PhaseIndex("Halite"))
	if err != nil {
		t.Fatal(err)
	}
	wantS := sys.Species()[sys.SpeciesIndex("NaCl(s)")].MolarMass / 2.702e-5
	if got := rhoS.Val.Get(0); math.Abs(got-wantS) > testTolerance*wantS {
		t.Errorf("halite density = %g kg/m3, want %g", got, wantS)
	}
	if wantS < 2100 || wantS > 2250 {
		t.Errorf("halite density = %g kg/m3, want it near 2163", wantS)
	}
}

// At halite saturation, added salt precipitates mole for mole, so the
// porosity falls by the halite molar volume per mole of added sodium
// chloride. The element derivative block must reproduce that through
// the equilibrium sensitivities.
func TestPorosityElementDerivatives(t *testing.T) {
	sys := brineSystem(t)
	p, err := chemeq.NewPartitionWith(sys, nil, []string{"CO2(g)"})
	if err != nil {
		t.Fatal(err)
	}
	s, err := NewSolver(p, 1)
	if err != nil {
		t.Fatal(err)
	}

	// Element order is Cl, H, Na, O, Z; 0.3 mol of salt in a mole of
	// water leaves a solid residue.
	err = s.Equilibrate(context.Background(),
		[]float64{298.15}, []float64{1e5}, []float64{0.3, 2, 0.3, 1, 0})
	if err != nil {
		t.Fatal(err)
	}
	if got := s.State(0).SpeciesAmount(sys.SpeciesIndex("NaCl(s)")); got < 0.18 || got > 0.20 {
		t.Fatalf("solid residue = %g, want it near 0.189", got)
	}

	phi, err := s.PorosityWithDiff()
	if err != nil {
		t.Fatal(err)
	}
	if phi.DDNk != nil {
		t.Error("the partition has no kinetic species, but the field has a kinetic block")
	}

	col := func(name string) int {
		for c, ie := range p.EquilibriumElements() {
			if sys.Elements()[ie].Name == name {
				return c
			}
		}
		t.Fatalf("no equilibrium element named %s", name)
		return -1
	}
	dNa := phi.DDBe.Get(0, col("Na"))
	dCl := phi.DDBe.Get(0, col("Cl"))
	if dNa >= 0 || dCl >= 0 {
		t.Errorf("porosity element derivatives d[Na] = %g, d[Cl] = %g, want both negative", dNa, dCl)
	}
	const want = -2.702e-5 // one mole of halite per mole of added NaCl
	if got := dNa + dCl; math.Abs(got-want) > 0.05*math.Abs(want) {
		t.Errorf("porosity derivative for added NaCl = %g, want about %g", got, want)
	}
}
