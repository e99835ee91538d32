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
	"fmt"

	"github.com/chemmodel/chemeq/optimize"
	"gonum.org/v1/gonum/mat"
)

// An EquilibriumProblem poses a direct equilibrium calculation: find
// the amounts of the equilibrium species that minimize the Gibbs
// energy of the system at temperature T and pressure P, subject to
// the given element amounts.
type EquilibriumProblem struct {
	T float64 // temperature [K]
	P float64 // pressure [Pa]

	// B holds the amounts [mol] of the equilibrium elements, ordered
	// as Partition.EquilibriumElements.
	B []float64
}

// An EquilibriumResult reports the outcome of an equilibrium solve.
// Its Sensitivity method returns the derivatives of the equilibrium
// species amounts with respect to the element amounts of the problem,
// in the row and column order of the partition.
type EquilibriumResult struct {
	optimize.Result
}

// An EquilibriumSolver solves direct equilibrium problems over the
// equilibrium partition of a chemical system. The solver keeps the
// final iterate of each solve and uses it to warm start the next one,
// which speeds up sweeps where consecutive problems resemble each
// other; correctness does not depend on it. A solver is not safe for
// concurrent use; create one per goroutine.
type EquilibriumSolver struct {
	system    *System
	partition *Partition
	a         *mat.Dense
	opt       *optimize.State

	// Options configure the optimizer.
	Options optimize.Options
}

// NewEquilibriumSolver returns a solver for the equilibrium partition
// of p.
func NewEquilibriumSolver(p *Partition) *EquilibriumSolver {
	es := &EquilibriumSolver{
		system:    p.System(),
		partition: p,
		Options:   optimize.DefaultOptions(),
	}
	if p.NumEquilibriumSpecies() > 0 && p.NumEquilibriumElements() > 0 {
		es.a = p.EquilibriumFormulaMatrix()
	}
	return es
}

// Solve finds the equilibrium amounts of the equilibrium species and
// stores them, together with the problem temperature and pressure, in
// state. Kinetic and inert species amounts are read from state and
// held fixed. Amounts already in state seed the initial guess; a
// state with zero equilibrium amounts produces a cold start. When the
// solve stops without convergence the last iterate is still written
// to state so that the caller can inspect it or retry from it.
func (es *EquilibriumSolver) Solve(ctx context.Context, state *State, problem EquilibriumProblem) (EquilibriumResult, error) {
	if state.System() != es.system {
		return EquilibriumResult{}, fmt.Errorf("chemeq: the state belongs to a different chemical system than the solver")
	}
	if err := state.SetTemperature(problem.T); err != nil {
		return EquilibriumResult{}, err
	}
	if err := state.SetPressure(problem.P); err != nil {
		return EquilibriumResult{}, err
	}
	iE := es.partition.EquilibriumSpecies()
	if len(iE) == 0 {
		return EquilibriumResult{}, fmt.Errorf("chemeq: the partition has no equilibrium species")
	}
	if len(problem.B) != es.partition.NumEquilibriumElements() {
		return EquilibriumResult{}, fmt.Errorf("chemeq: the problem has %d element amounts but the partition has %d equilibrium elements",
			len(problem.B), es.partition.NumEquilibriumElements())
	}

	if es.opt == nil {
		es.opt = optimize.NewState(len(iE), es.partition.NumEquilibriumElements())
	}
	for k, i := range iE {
		if v := state.SpeciesAmount(i); v > 0 {
			es.opt.X[k] = v
		}
	}

	// The objective is the total Gibbs energy G/RT. Its gradient with
	// respect to an equilibrium species amount is the chemical
	// potential of that species over RT, and its Hessian the
	// derivative of the log activities, both restricted to the
	// equilibrium species.
	n := state.SpeciesAmounts()
	rt := GasConstant * problem.T
	obj := func(x []float64) (float64, []float64, *mat.Dense, error) {
		Scatter(n, iE, x)
		props, err := es.system.Properties(problem.T, problem.P, n)
		if err != nil {
			return 0, nil, nil, err
		}
		mu := props.ChemicalPotentials()
		var f float64
		for j, nj := range n {
			f += nj * mu.Val[j] / rt
		}
		g := make([]float64, len(x))
		h := mat.NewDense(len(x), len(x), nil)
		for k, i := range iE {
			g[k] = mu.Val[i] / rt
			for l, j := range iE {
				h.Set(k, l, props.LnActivities.DDN.At(i, j))
			}
		}
		return f, g, h, nil
	}

	res, err := optimize.Solve(ctx, optimize.Problem{Objective: obj, A: es.a, B: problem.B}, es.opt, es.Options)

	Scatter(n, iE, es.opt.X)
	if err2 := state.SetSpeciesAmounts(n); err2 != nil {
		return EquilibriumResult{Result: res}, err2
	}
	return EquilibriumResult{Result: res}, err
}

// Equilibrate solves a single equilibrium problem over the whole
// system with default options. Callers solving many related problems
// should keep an EquilibriumSolver instead, to reuse its warm start.
func Equilibrate(ctx context.Context, state *State, problem EquilibriumProblem) (EquilibriumResult, error) {
	return NewEquilibriumSolver(NewPartition(state.System())).Solve(ctx, state, problem)
}
