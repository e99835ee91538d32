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

package chemeq

import (
	"context"
	"math"
	"strings"
	"testing"
)

// Fixing the proton activity and titrating with mutually exclusive
// acid and base must activate exactly one titrant: HCl for an acidic
// target, NaOH for an alkaline one. Reaching a proton molality of
// 1e-5 in one mole of water takes about 1.8e-7 mol of acid.
func TestSolveInversePH(t *testing.T) {
	cases := []struct {
		name     string
		activity float64
		active   int // index into the titrants [HCl, NaOH]
	}{
		{"acidic", 1e-5, 0},
		{"alkaline", 1e-9, 1},
	}
	for _, c := range cases {
		sys := testAqueousSystem(t)
		p := NewPartition(sys)
		ip := NewInverseProblem(p)
		if err := ip.SetConditions(298.15, 1e5); err != nil {
			t.Fatal(err)
		}
		// One mole of water with a trace of salt, element order
		// Cl, H, Na, O, Z.
		if err := ip.SetInitialElementAmounts([]float64{1e-4, 2, 1e-4, 1, 0}); err != nil {
			t.Fatal(err)
		}
		if err := ip.AddSpeciesActivityConstraint("H+", c.activity); err != nil {
			t.Fatal(err)
		}
		if err := ip.AddTitrant("HCl"); err != nil {
			t.Fatal(err)
		}
		if err := ip.AddTitrant("NaOH"); err != nil {
			t.Fatal(err)
		}
		if err := ip.SetMutuallyExclusive("HCl", "NaOH"); err != nil {
			t.Fatal(err)
		}

		state := NewState(sys)
		res, err := NewEquilibriumSolver(p).SolveInverse(context.Background(), state, ip)
		if err != nil {
			t.Fatalf("%s: %v", c.name, err)
		}
		if !res.Converged() {
			t.Fatalf("%s: residual %g after %d outer iterations, want convergence",
				c.name, res.ConstraintResidual, res.OuterIterations)
		}
		if res.OuterIterations == 0 {
			t.Errorf("%s: converged without outer iterations", c.name)
		}

		props, err := state.Properties()
		if err != nil {
			t.Fatal(err)
		}
		pH := -props.LnActivities.Val[sys.SpeciesIndex("H+")] / math.Ln10
		wantPH := -math.Log10(c.activity)
		if math.Abs(pH-wantPH) > 1e-3 {
			t.Errorf("%s: pH = %g, want %g", c.name, pH, wantPH)
		}
		active := res.TitrantAmounts[c.active]
		inactive := res.TitrantAmounts[1-c.active]
		if active < 1.6e-7 || active > 2.0e-7 {
			t.Errorf("%s: active titrant amount = %g, want it near 1.8e-7", c.name, active)
		}
		if inactive > 1e-8 {
			t.Errorf("%s: inactive titrant amount = %g, want it at zero", c.name, inactive)
		}

		// The titrants entered the element balance.
		be := state.ElementAmounts()
		if got, want := be[sys.ElementIndex("Cl")], 1e-4+res.TitrantAmounts[0]; math.Abs(got-want) > 1e-7 {
			t.Errorf("%s: chlorine amount = %g, want %g", c.name, got, want)
		}
		if got, want := be[sys.ElementIndex("Na")], 1e-4+res.TitrantAmounts[1]; math.Abs(got-want) > 1e-7 {
			t.Errorf("%s: sodium amount = %g, want %g", c.name, got, want)
		}
	}
}

// A species amount constraint with a matching salt titrant is the
// simplest inverse problem: the Jacobian is the identity and Newton
// lands on the answer almost immediately.
func TestSolveInverseAmount(t *testing.T) {
	const testTolerance = 1.e-5

	sys := testAqueousSystem(t)
	p := NewPartition(sys)
	ip := NewInverseProblem(p)
	if err := ip.SetConditions(298.15, 1e5); err != nil {
		t.Fatal(err)
	}
	if err := ip.SetInitialElementAmounts([]float64{1e-4, 2, 1e-4, 1, 0}); err != nil {
		t.Fatal(err)
	}
	if err := ip.AddSpeciesAmountConstraint("Na+", 0.02); err != nil {
		t.Fatal(err)
	}
	if err := ip.AddTitrant("NaCl"); err != nil {
		t.Fatal(err)
	}

	state := NewState(sys)
	res, err := NewEquilibriumSolver(p).SolveInverse(context.Background(), state, ip)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Converged() {
		t.Fatalf("residual %g after %d outer iterations, want convergence",
			res.ConstraintResidual, res.OuterIterations)
	}
	if got := state.SpeciesAmount(sys.SpeciesIndex("Na+")); math.Abs(got-0.02) > testTolerance {
		t.Errorf("n[Na+] = %g, want 0.02", got)
	}
	if got, want := res.TitrantAmounts[0], 0.02-1e-4; math.Abs(got-want) > testTolerance {
		t.Errorf("titrant amount = %g, want %g", got, want)
	}
}

func TestSolveInversePhaseAmount(t *testing.T) {
	const testTolerance = 1.e-5

	sys := testAqueousSystem(t)
	p := NewPartition(sys)
	ip := NewInverseProblem(p)
	if err := ip.SetConditions(298.15, 1e5); err != nil {
		t.Fatal(err)
	}
	if err := ip.SetInitialElementAmounts([]float64{1e-4, 2, 1e-4, 1, 0}); err != nil {
		t.Fatal(err)
	}
	if err := ip.AddPhaseAmountConstraint("Aqueous", 1.1); err != nil {
		t.Fatal(err)
	}
	// The titrant name resolves as a species of the system.
	if err := ip.AddTitrant("H2O(l)"); err != nil {
		t.Fatal(err)
	}

	state := NewState(sys)
	res, err := NewEquilibriumSolver(p).SolveInverse(context.Background(), state, ip)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Converged() {
		t.Fatalf("residual %g after %d outer iterations, want convergence",
			res.ConstraintResidual, res.OuterIterations)
	}
	got, err := state.PhaseAmount("Aqueous")
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(got-1.1) > testTolerance {
		t.Errorf("phase amount = %g, want 1.1", got)
	}
	if x := res.TitrantAmounts[0]; x < 0.09 || x > 0.11 {
		t.Errorf("titrant amount = %g, want it near 0.0998", x)
	}
}

// The residual rows follow constraint insertion order, one row per
// kind with the corresponding Jacobian entries.
func TestResidualEquilibriumConstraints(t *testing.T) {
	const testTolerance = 1.e-12

	sys := testAqueousSystem(t)
	ip := NewInverseProblem(NewPartition(sys))
	if err := ip.AddSpeciesActivityConstraint("H+", 1e-5); err != nil {
		t.Fatal(err)
	}
	if err := ip.AddSpeciesAmountConstraint("Na+", 0.02); err != nil {
		t.Fatal(err)
	}
	if err := ip.AddPhaseAmountConstraint("Aqueous", 1.1); err != nil {
		t.Fatal(err)
	}
	if err := ip.AddPhaseVolumeConstraint("Aqueous", 2e-5); err != nil {
		t.Fatal(err)
	}

	state := NewState(sys)
	if err := state.SetSpeciesAmounts(testAmounts(sys)); err != nil {
		t.Fatal(err)
	}
	rec, err := ip.ResidualEquilibriumConstraints(nil, state)
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.Val) != 4 {
		t.Fatalf("got %d residuals, want 4", len(rec.Val))
	}
	props, err := state.Properties()
	if err != nil {
		t.Fatal(err)
	}
	iH := sys.SpeciesIndex("H+")
	iNa := sys.SpeciesIndex("Na+")
	iW := sys.SpeciesIndex("H2O(l)")
	if want := props.LnActivities.Val[iH] - math.Log(1e-5); math.Abs(rec.Val[0]-want) > testTolerance {
		t.Errorf("activity residual = %g, want %g", rec.Val[0], want)
	}
	if want := 0.05 - 0.02; math.Abs(rec.Val[1]-want) > testTolerance {
		t.Errorf("amount residual = %g, want %g", rec.Val[1], want)
	}
	if want := 2.0 + 1e-7 + 1e-7 + 0.05 + 0.05 - 1.1; math.Abs(rec.Val[2]-want) > testTolerance {
		t.Errorf("phase amount residual = %g, want %g", rec.Val[2], want)
	}
	if want := 2*1.807e-5 - 2e-5; math.Abs(rec.Val[3]-want) > testTolerance {
		t.Errorf("phase volume residual = %g, want %g", rec.Val[3], want)
	}

	if rec.DDX != nil {
		t.Error("a problem without titrants must have no titrant Jacobian")
	}
	if got := rec.DDN.At(1, iNa); got != 1 {
		t.Errorf("d(amount residual)/dn[Na+] = %g, want 1", got)
	}
	if got := rec.DDN.At(1, iW); got != 0 {
		t.Errorf("d(amount residual)/dn[H2O(l)] = %g, want 0", got)
	}
	for j := 0; j < sys.NumSpecies(); j++ {
		if got := rec.DDN.At(2, j); got != 1 {
			t.Errorf("d(phase amount residual)/dn[%d] = %g, want 1", j, got)
		}
	}
	if got := rec.DDN.At(3, iW); math.Abs(got-1.807e-5) > testTolerance {
		t.Errorf("d(phase volume residual)/dn[H2O(l)] = %g, want 1.807e-5", got)
	}
	if got := rec.DDN.At(3, iH); got != 0 {
		t.Errorf("d(phase volume residual)/dn[H+] = %g, want 0", got)
	}

	if err := ip.AddTitrant("HCl"); err != nil {
		t.Fatal(err)
	}
	rec, err = ip.ResidualEquilibriumConstraints([]float64{1e-6}, state)
	if err != nil {
		t.Fatal(err)
	}
	if r, c := rec.DDX.Dims(); r != 4 || c != 1 {
		t.Errorf("titrant Jacobian is %d x %d, want 4 x 1", r, c)
	}

	defer func() {
		if recover() == nil {
			t.Error("expected a panic for mismatched titrant amounts")
		}
	}()
	ip.ResidualEquilibriumConstraints(nil, state)
}

func TestTitrantFormulaMatrix(t *testing.T) {
	const testTolerance = 1.e-14

	sys := testAqueousSystem(t)
	ip := NewInverseProblem(NewPartition(sys))
	if err := ip.AddTitrant("HCl"); err != nil {
		t.Fatal(err)
	}
	if err := ip.AddTitrant("NaOH"); err != nil {
		t.Fatal(err)
	}
	names := ip.Titrants()
	if len(names) != 2 || names[0] != "HCl" || names[1] != "NaOH" {
		t.Fatalf("titrants = %v, want [HCl NaOH]", names)
	}

	f := ip.TitrantFormulaMatrix()
	if r, c := f.Dims(); r != 5 || c != 2 {
		t.Fatalf("formula matrix is %d x %d, want 5 x 2", r, c)
	}
	// Element rows are Cl, H, Na, O, Z.
	want := [5][2]float64{
		{1, 0},
		{1, 1},
		{0, 1},
		{0, 1},
		{0, 0},
	}
	for i, row := range want {
		for j, w := range row {
			if math.Abs(f.At(i, j)-w) > testTolerance {
				t.Errorf("F[%d,%d] = %g, want %g", i, j, f.At(i, j), w)
			}
		}
	}
}

// A clone must not see constraints and titrants added to the original
// afterwards, and must remain solvable on its own.
func TestInverseProblemClone(t *testing.T) {
	sys := testAqueousSystem(t)
	p := NewPartition(sys)
	ip := NewInverseProblem(p)
	if err := ip.SetConditions(298.15, 1e5); err != nil {
		t.Fatal(err)
	}
	if err := ip.SetInitialElementAmounts([]float64{1e-4, 2, 1e-4, 1, 0}); err != nil {
		t.Fatal(err)
	}
	if err := ip.AddTitrant("HCl"); err != nil {
		t.Fatal(err)
	}
	if err := ip.AddSpeciesActivityConstraint("H+", 1e-5); err != nil {
		t.Fatal(err)
	}

	c := ip.Clone()
	if err := ip.AddTitrant("NaOH"); err != nil {
		t.Fatal(err)
	}
	if err := ip.AddSpeciesAmountConstraint("Na+", 0.01); err != nil {
		t.Fatal(err)
	}
	if c.NumTitrants() != 1 || c.NumConstraints() != 1 {
		t.Errorf("clone has %d titrants and %d constraints, want 1 and 1",
			c.NumTitrants(), c.NumConstraints())
	}
	if ip.NumTitrants() != 2 || ip.NumConstraints() != 2 {
		t.Errorf("original has %d titrants and %d constraints, want 2 and 2",
			ip.NumTitrants(), ip.NumConstraints())
	}

	state := NewState(sys)
	res, err := NewEquilibriumSolver(p).SolveInverse(context.Background(), state, c)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Converged() {
		t.Errorf("clone solve residual %g, want convergence", res.ConstraintResidual)
	}
	if x := res.TitrantAmounts[0]; x < 1.6e-7 || x > 2.0e-7 {
		t.Errorf("titrant amount = %g, want it near 1.8e-7", x)
	}
}

func TestInverseProblemErrors(t *testing.T) {
	sys := testAqueousSystem(t)
	ip := NewInverseProblem(NewPartition(sys))

	if err := ip.SetConditions(0, 1e5); err == nil {
		t.Error("expected an error for zero temperature")
	}
	if err := ip.SetConditions(298.15, -1); err == nil {
		t.Error("expected an error for negative pressure")
	}
	if err := ip.SetInitialElementAmounts([]float64{1}); err == nil {
		t.Error("expected an error for a wrong-length element vector")
	}
	if err := ip.SetInitialElementAmounts([]float64{-0.01, 2, 0.01, 1, 0}); err == nil {
		t.Error("expected an error for a negative element amount")
	}
	// Charge imbalance is a valid starting point.
	if err := ip.SetInitialElementAmounts([]float64{0.01, 2, 0.01, 1, -0.001}); err != nil {
		t.Errorf("negative charge rejected: %v", err)
	}
	if err := ip.AddSpeciesActivityConstraint("CO3--", 1e-5); err == nil || !strings.Contains(err.Error(), "CO3--") {
		t.Errorf("err = %v, want it to name the unknown species", err)
	}
	if err := ip.AddSpeciesActivityConstraint("H+", 0); err == nil {
		t.Error("expected an error for a zero target activity")
	}
	if err := ip.AddSpeciesAmountConstraint("Na+", -1); err == nil {
		t.Error("expected an error for a negative target amount")
	}
	if err := ip.AddPhaseAmountConstraint("Gaseous", 1); err == nil || !strings.Contains(err.Error(), "Gaseous") {
		t.Errorf("err = %v, want it to name the unknown phase", err)
	}
	if err := ip.AddPhaseVolumeConstraint("Aqueous", 0); err == nil {
		t.Error("expected an error for a zero target volume")
	}
	if err := ip.AddTitrant("xyz"); err == nil {
		t.Error("expected an error for a malformed titrant formula")
	}
	if err := ip.AddTitrant("CO2"); err == nil || !strings.Contains(err.Error(), "not in the system") {
		t.Errorf("err = %v, want a missing-element error", err)
	}
	if err := ip.AddTitrant("HCl"); err != nil {
		t.Fatal(err)
	}
	if err := ip.AddTitrant("HCl"); err == nil {
		t.Error("expected an error for a duplicate titrant")
	}
	if err := ip.SetMutuallyExclusive("HCl", "KOH"); err == nil || !strings.Contains(err.Error(), "KOH") {
		t.Errorf("err = %v, want it to name the unknown titrant", err)
	}
	if err := ip.SetMutuallyExclusive("HCl", "HCl"); err == nil {
		t.Error("expected an error for a titrant excluding itself")
	}

	// An element present in the system but only in non-equilibrium
	// species cannot receive titrant.
	msys := testMultiphaseSystem(t)
	mp, err := NewPartitionWith(msys, nil, []string{"CO2(g)"})
	if err != nil {
		t.Fatal(err)
	}
	if err := NewInverseProblem(mp).AddTitrant("CO2"); err == nil || !strings.Contains(err.Error(), "no equilibrium species") {
		t.Errorf("err = %v, want a carbon-outside-equilibrium error", err)
	}
}

func TestSolveInverseErrors(t *testing.T) {
	sys := testAqueousSystem(t)
	p := NewPartition(sys)
	es := NewEquilibriumSolver(p)
	ctx := context.Background()

	if _, err := es.SolveInverse(ctx, NewState(sys), NewInverseProblem(NewPartition(sys))); err == nil {
		t.Error("expected an error for an inverse problem over a different partition")
	}

	ip := NewInverseProblem(p)
	if _, err := es.SolveInverse(ctx, NewState(sys), ip); err == nil {
		t.Error("expected an error for a problem without titrants")
	}
	if err := ip.AddTitrant("HCl"); err != nil {
		t.Fatal(err)
	}
	if _, err := es.SolveInverse(ctx, NewState(sys), ip); err == nil {
		t.Error("expected an error for an underdetermined problem")
	}
	if err := ip.AddSpeciesActivityConstraint("H+", 1e-5); err != nil {
		t.Fatal(err)
	}
	if _, err := es.SolveInverse(ctx, NewState(sys), ip); err == nil {
		t.Error("expected an error for missing initial element amounts")
	}
	if err := ip.SetInitialElementAmounts([]float64{1e-4, 2, 1e-4, 1, 0}); err != nil {
		t.Fatal(err)
	}
	if _, err := es.SolveInverse(ctx, NewState(sys), ip); err == nil {
		t.Error("expected an error for missing conditions")
	}
}
