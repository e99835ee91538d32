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
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// An InverseProblem determines unknown titrant additions. Instead of
// specifying the element amounts of an equilibrium calculation
// directly, the caller fixes observable quantities such as a species
// activity or a phase volume, names the titrants that may be added to
// reach them, and lets the solver find the titrant amounts. The
// problem accumulates constraints and titrants incrementally and is
// then read-only during the solve.
type InverseProblem struct {
	partition *Partition
	system    *System

	t  float64
	p  float64
	b0 []float64 // element amounts before titration

	constraints []inverseConstraint
	titrants    []titrant
	exclusive   [][2]int
}

type titrant struct {
	name    string
	formula []float64 // coefficients over the equilibrium elements
}

type constraintKind int

const (
	activityConstraint constraintKind = iota
	amountConstraint
	phaseAmountConstraint
	phaseVolumeConstraint
)

// An inverseConstraint fixes one scalar property of the equilibrium
// state to a target value.
type inverseConstraint struct {
	kind   constraintKind
	index  int     // species or phase index in the system
	target float64 // ln a for activity constraints, mol or m3 otherwise
}

// NewInverseProblem returns an empty inverse problem over the
// equilibrium partition of p.
func NewInverseProblem(p *Partition) *InverseProblem {
	return &InverseProblem{partition: p, system: p.System()}
}

// SetConditions fixes the temperature [K] and pressure [Pa] of the
// equilibrium calculations.
func (ip *InverseProblem) SetConditions(T, P float64) error {
	if !(T > 0) {
		return fmt.Errorf("chemeq: temperature must be positive, got %g K", T)
	}
	if !(P > 0) {
		return fmt.Errorf("chemeq: pressure must be positive, got %g Pa", P)
	}
	ip.t, ip.p = T, P
	return nil
}

// SetInitialElementAmounts fixes the amounts [mol] of the equilibrium
// elements before any titrant is added, ordered as
// Partition.EquilibriumElements.
func (ip *InverseProblem) SetInitialElementAmounts(b []float64) error {
	if len(b) != ip.partition.NumEquilibriumElements() {
		return fmt.Errorf("chemeq: got %d element amounts but the partition has %d equilibrium elements",
			len(b), ip.partition.NumEquilibriumElements())
	}
	zi := ip.system.ElementIndex(ChargeElement)
	for k, ie := range ip.partition.EquilibriumElements() {
		if ie != zi && b[k] < 0 {
			return fmt.Errorf("chemeq: amount of element %s is negative: %g mol",
				ip.system.Elements()[ie].Name, b[k])
		}
	}
	ip.b0 = append([]float64(nil), b...)
	return nil
}

// AddSpeciesActivityConstraint requires the activity of the named
// species to equal a at equilibrium.
func (ip *InverseProblem) AddSpeciesActivityConstraint(species string, a float64) error {
	i, err := ip.speciesIndex(species)
	if err != nil {
		return err
	}
	if !(a > 0) {
		return fmt.Errorf("chemeq: target activity of %s must be positive, got %g", species, a)
	}
	ip.constraints = append(ip.constraints, inverseConstraint{kind: activityConstraint, index: i, target: math.Log(a)})
	return nil
}

// AddSpeciesAmountConstraint requires the amount of the named species
// to equal n [mol] at equilibrium.
func (ip *InverseProblem) AddSpeciesAmountConstraint(species string, n float64) error {
	i, err := ip.speciesIndex(species)
	if err != nil {
		return err
	}
	if n < 0 {
		return fmt.Errorf("chemeq: target amount of %s is negative: %g mol", species, n)
	}
	ip.constraints = append(ip.constraints, inverseConstraint{kind: amountConstraint, index: i, target: n})
	return nil
}

// AddPhaseAmountConstraint requires the total species amount of the
// named phase to equal n [mol] at equilibrium.
func (ip *InverseProblem) AddPhaseAmountConstraint(phase string, n float64) error {
	i, err := ip.phaseIndex(phase)
	if err != nil {
		return err
	}
	if n < 0 {
		return fmt.Errorf("chemeq: target amount of phase %s is negative: %g mol", phase, n)
	}
	ip.constraints = append(ip.constraints, inverseConstraint{kind: phaseAmountConstraint, index: i, target: n})
	return nil
}

// AddPhaseVolumeConstraint requires the volume of the named phase to
// equal v [m3] at equilibrium.
func (ip *InverseProblem) AddPhaseVolumeConstraint(phase string, v float64) error {
	i, err := ip.phaseIndex(phase)
	if err != nil {
		return err
	}
	if !(v > 0) {
		return fmt.Errorf("chemeq: target volume of phase %s must be positive, got %g m3", phase, v)
	}
	ip.constraints = append(ip.constraints, inverseConstraint{kind: phaseVolumeConstraint, index: i, target: v})
	return nil
}

// AddTitrant registers a titrant whose amount the solver determines.
// The name is resolved first as a species of the system and otherwise
// parsed as a compound formula such as "HCl" or "CaCO3"; a name that
// is neither fails.
func (ip *InverseProblem) AddTitrant(name string) error {
	if i := ip.system.SpeciesIndex(name); i < ip.system.NumSpecies() {
		sp := ip.system.Species()[i]
		return ip.AddTitrantFormula(name, sp.Formula, sp.Charge)
	}
	formula, charge, err := ParseFormula(name)
	if err != nil {
		return fmt.Errorf("chemeq: titrant %q is not a species of the system and is not a compound formula: %v", name, err)
	}
	return ip.AddTitrantFormula(name, formula, charge)
}

// AddTitrantFormula registers a titrant given directly by its element
// composition and charge.
func (ip *InverseProblem) AddTitrantFormula(name string, formula map[string]float64, charge float64) error {
	for _, t := range ip.titrants {
		if t.name == name {
			return fmt.Errorf("chemeq: duplicate titrant %q", name)
		}
	}
	elems := ip.partition.EquilibriumElements()
	pos := make(map[int]int, len(elems)) // system element index to row
	for k, ie := range elems {
		pos[ie] = k
	}
	v := make([]float64, len(elems))
	for el, coeff := range formula {
		ie := ip.system.ElementIndex(el)
		if ie == ip.system.NumElements() {
			return fmt.Errorf("chemeq: titrant %q contains element %s, which is not in the system", name, el)
		}
		k, ok := pos[ie]
		if !ok {
			return fmt.Errorf("chemeq: titrant %q contains element %s, which no equilibrium species carries", name, el)
		}
		v[k] += coeff
	}
	if charge != 0 {
		zi := ip.system.ElementIndex(ChargeElement)
		k, ok := pos[zi]
		if !ok {
			return fmt.Errorf("chemeq: titrant %q is charged but no equilibrium species is", name)
		}
		v[k] += charge
	}
	ip.titrants = append(ip.titrants, titrant{name: name, formula: v})
	return nil
}

// SetMutuallyExclusive requires that at most one of two previously
// added titrants has a strictly positive amount in the solution. The
// solver enforces it as the complementarity condition x1*x2 = 0.
func (ip *InverseProblem) SetMutuallyExclusive(titrant1, titrant2 string) error {
	i1, err := ip.titrantIndex(titrant1)
	if err != nil {
		return err
	}
	i2, err := ip.titrantIndex(titrant2)
	if err != nil {
		return err
	}
	if i1 == i2 {
		return fmt.Errorf("chemeq: titrant %q cannot exclude itself", titrant1)
	}
	ip.exclusive = append(ip.exclusive, [2]int{i1, i2})
	return nil
}

// Clone returns a deep copy, so that a solver retry can start over
// from an untouched problem definition.
func (ip *InverseProblem) Clone() *InverseProblem {
	c := &InverseProblem{
		partition: ip.partition,
		system:    ip.system,
		t:         ip.t,
		p:         ip.p,
		b0:        append([]float64(nil), ip.b0...),
		exclusive: append([][2]int(nil), ip.exclusive...),
	}
	c.constraints = append([]inverseConstraint(nil), ip.constraints...)
	for _, t := range ip.titrants {
		c.titrants = append(c.titrants, titrant{name: t.name, formula: append([]float64(nil), t.formula...)})
	}
	return c
}

// NumConstraints returns the number of accumulated constraints.
func (ip *InverseProblem) NumConstraints() int { return len(ip.constraints) }

// NumTitrants returns the number of registered titrants.
func (ip *InverseProblem) NumTitrants() int { return len(ip.titrants) }

// Titrants returns the titrant names in registration order.
func (ip *InverseProblem) Titrants() []string {
	names := make([]string, len(ip.titrants))
	for i, t := range ip.titrants {
		names[i] = t.name
	}
	return names
}

// TitrantFormulaMatrix returns the matrix F whose column t holds the
// equilibrium-element composition of titrant t, so that adding
// amounts x changes the element amounts by F x.
func (ip *InverseProblem) TitrantFormulaMatrix() *mat.Dense {
	ne := ip.partition.NumEquilibriumElements()
	nt := len(ip.titrants)
	f := mat.NewDense(ne, nt, nil)
	for t, tit := range ip.titrants {
		for k, v := range tit.formula {
			f.Set(k, t, v)
		}
	}
	return f
}

// ResidualEquilibriumConstraints holds the residuals of the inverse
// constraints at one equilibrium state, with their Jacobian blocks
// with respect to the titrant amounts and the species amounts. Rows
// follow the insertion order of the constraints; a Jacobian with an
// empty dimension is nil.
type ResidualEquilibriumConstraints struct {
	Val []float64
	DDX *mat.Dense
	DDN *mat.Dense
}

// ResidualEquilibriumConstraints evaluates every constraint at the
// given titrant amounts and equilibrium state.
func (ip *InverseProblem) ResidualEquilibriumConstraints(x []float64, state *State) (ResidualEquilibriumConstraints, error) {
	if len(x) != len(ip.titrants) {
		panic(fmt.Sprintf("chemeq: got %d titrant amounts for %d titrants", len(x), len(ip.titrants)))
	}
	nc := len(ip.constraints)
	nn := ip.system.NumSpecies()
	rec := ResidualEquilibriumConstraints{Val: make([]float64, nc)}
	if nc > 0 {
		rec.DDN = mat.NewDense(nc, nn, nil)
		if len(x) > 0 {
			rec.DDX = mat.NewDense(nc, len(x), nil)
		}
	}
	props, err := state.Properties()
	if err != nil {
		return ResidualEquilibriumConstraints{}, err
	}
	for c, con := range ip.constraints {
		switch con.kind {
		case activityConstraint:
			rec.Val[c] = props.LnActivities.Val[con.index] - con.target
			for j := 0; j < nn; j++ {
				rec.DDN.Set(c, j, props.LnActivities.DDN.At(con.index, j))
			}
		case amountConstraint:
			rec.Val[c] = state.SpeciesAmount(con.index) - con.target
			rec.DDN.Set(c, con.index, 1)
		case phaseAmountConstraint:
			lo, hi := ip.system.PhaseSpeciesRange(con.index)
			var sum float64
			for j := lo; j < hi; j++ {
				sum += state.SpeciesAmount(j)
				rec.DDN.Set(c, j, 1)
			}
			rec.Val[c] = sum - con.target
		case phaseVolumeConstraint:
			v := props.PhaseVolume(con.index)
			rec.Val[c] = v.Val - con.target
			for j := 0; j < nn; j++ {
				rec.DDN.Set(c, j, v.DDN[j])
			}
		}
	}
	return rec, nil
}

func (ip *InverseProblem) speciesIndex(name string) (int, error) {
	i := ip.system.SpeciesIndex(name)
	if i == ip.system.NumSpecies() {
		names := make([]string, ip.system.NumSpecies())
		for j, sp := range ip.system.Species() {
			names[j] = sp.Name
		}
		sort.Strings(names)
		return 0, fmt.Errorf("chemeq: unknown species %q; the system contains %s", name, strings.Join(names, ", "))
	}
	return i, nil
}

func (ip *InverseProblem) phaseIndex(name string) (int, error) {
	i := ip.system.PhaseIndex(name)
	if i == ip.system.NumPhases() {
		names := make([]string, ip.system.NumPhases())
		for j, ph := range ip.system.Phases() {
			names[j] = ph.Name
		}
		sort.Strings(names)
		return 0, fmt.Errorf("chemeq: unknown phase %q; the system contains %s", name, strings.Join(names, ", "))
	}
	return i, nil
}

func (ip *InverseProblem) titrantIndex(name string) (int, error) {
	for i, t := range ip.titrants {
		if t.name == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("chemeq: unknown titrant %q; the problem has %s", name, strings.Join(ip.Titrants(), ", "))
}

// An InverseResult reports the outcome of an inverse equilibrium
// solve. The embedded EquilibriumResult describes the final direct
// equilibrium solve.
type InverseResult struct {
	EquilibriumResult

	// TitrantAmounts holds the solved amount [mol] of each titrant in
	// registration order.
	TitrantAmounts []float64

	// OuterIterations counts the Newton iterations on the constraint
	// residuals.
	OuterIterations int

	// ConstraintResidual is the infinity norm of the constraint and
	// complementarity residuals at the final iterate.
	ConstraintResidual float64

	// Feasible reports whether the constraint residuals met the
	// solver tolerance.
	Feasible bool
}

// Converged reports whether both the constraint system and the final
// equilibrium solve converged.
func (r InverseResult) Converged() bool {
	return r.Feasible && r.EquilibriumResult.Converged()
}

// maxOuterIterations bounds the Newton iterations of SolveInverse.
const maxOuterIterations = 100

// SolveInverse finds titrant amounts that satisfy the constraints of
// the inverse problem. Each constraint residual is driven to zero by
// a damped Newton iteration over the titrant amounts; every trial
// point requires one direct equilibrium solve, which the solver warm
// starts from the previous one. Mutually exclusive titrant pairs add
// complementarity equations x1*x2 = 0, so the number of constraints
// plus exclusion pairs must equal the number of titrants.
func (es *EquilibriumSolver) SolveInverse(ctx context.Context, state *State, inv *InverseProblem) (InverseResult, error) {
	if inv.partition != es.partition {
		return InverseResult{}, fmt.Errorf("chemeq: the inverse problem and the solver use different partitions")
	}
	nt := len(inv.titrants)
	nc := len(inv.constraints)
	nx := len(inv.exclusive)
	if nt == 0 {
		return InverseResult{}, fmt.Errorf("chemeq: the inverse problem has no titrants")
	}
	if nc+nx != nt {
		return InverseResult{}, fmt.Errorf("chemeq: %d constraints and %d exclusion pairs determine %d unknowns, but the problem has %d titrants",
			nc, nx, nc+nx, nt)
	}
	if inv.b0 == nil {
		return InverseResult{}, fmt.Errorf("chemeq: the inverse problem has no initial element amounts")
	}
	if !(inv.t > 0) || !(inv.p > 0) {
		return InverseResult{}, fmt.Errorf("chemeq: the inverse problem has no temperature and pressure conditions")
	}

	iE := es.partition.EquilibriumSpecies()
	f := inv.TitrantFormulaMatrix()
	x := make([]float64, nt)
	for t := range x {
		x[t] = coldStartTitrant
	}

	// The constraint residuals are computed from equilibrium states
	// that are themselves only resolved to the solver tolerance, so
	// they cannot be driven any tighter than that.
	outerTol := 100 * es.Options.Tolerance

	// solveAt equilibrates at the element amounts implied by the
	// titrant amounts and returns the residual vector of the
	// constraint system.
	b := make([]float64, len(inv.b0))
	solveAt := func(x []float64) (EquilibriumResult, ResidualEquilibriumConstraints, []float64, error) {
		copy(b, inv.b0)
		for t := range inv.titrants {
			for k, v := range inv.titrants[t].formula {
				b[k] += v * x[t]
			}
		}
		res, err := es.Solve(ctx, state, EquilibriumProblem{T: inv.t, P: inv.p, B: b})
		if err != nil {
			return res, ResidualEquilibriumConstraints{}, nil, err
		}
		rec, err := inv.ResidualEquilibriumConstraints(x, state)
		if err != nil {
			return res, ResidualEquilibriumConstraints{}, nil, err
		}
		r := make([]float64, nt)
		copy(r, rec.Val)
		for e, pair := range inv.exclusive {
			r[nc+e] = x[pair[0]] * x[pair[1]]
		}
		return res, rec, r, nil
	}

	res, rec, r, err := solveAt(x)
	if err != nil {
		return InverseResult{EquilibriumResult: res, TitrantAmounts: x}, err
	}

	out := InverseResult{EquilibriumResult: res, TitrantAmounts: x}
	for iter := 0; iter < maxOuterIterations; iter++ {
		out.OuterIterations = iter
		out.ConstraintResidual = vecMaxAbs(r)
		if !res.Converged() {
			return out, nil
		}
		if out.ConstraintResidual < outerTol {
			out.Feasible = true
			return out, nil
		}

		// The constraints see the titrant amounts through the element
		// amounts: dn/dx = S F, with S the sensitivity of the direct
		// solve.
		sens, err := res.Sensitivity()
		if err != nil {
			return out, fmt.Errorf("chemeq: inverse solve: %v", err)
		}
		var dndx mat.Dense
		dndx.Mul(sens, f)
		jac := mat.NewDense(nt, nt, nil)
		for c := 0; c < nc; c++ {
			for t := 0; t < nt; t++ {
				v := rec.DDX.At(c, t)
				for k, i := range iE {
					v += rec.DDN.At(c, i) * dndx.At(k, t)
				}
				jac.Set(c, t, v)
			}
		}
		for e, pair := range inv.exclusive {
			jac.Set(nc+e, pair[0], x[pair[1]])
			jac.Set(nc+e, pair[1], x[pair[0]])
		}

		dx, err := solveNewtonStep(jac, r)
		if err != nil {
			return out, fmt.Errorf("chemeq: inverse solve: %v", err)
		}

		// Backtrack on the residual norm. The last trial is kept even
		// without improvement: near a complementarity kink the norm
		// may rise before Newton locks onto the vanishing titrant.
		norm := out.ConstraintResidual
		alpha := 1.0
		for try := 0; ; try++ {
			xNew := make([]float64, nt)
			for t := range x {
				xNew[t] = math.Max(0, x[t]+alpha*dx[t])
			}
			resNew, recNew, rNew, err := solveAt(xNew)
			if err != nil {
				out.EquilibriumResult = resNew
				return out, err
			}
			if vecMaxAbs(rNew) < norm || try == 5 {
				x, res, rec, r = xNew, resNew, recNew, rNew
				out.EquilibriumResult = res
				out.TitrantAmounts = x
				break
			}
			alpha /= 2
		}
	}
	out.OuterIterations = maxOuterIterations
	out.ConstraintResidual = vecMaxAbs(r)
	out.Feasible = out.ConstraintResidual < outerTol
	return out, nil
}

// coldStartTitrant is the initial guess for titrant amounts, strictly
// positive so that complementarity Jacobian rows start non-singular.
const coldStartTitrant = 1.0e-6

// solveNewtonStep solves jac dx = -r, regularizing the diagonal when
// the matrix is singular, as happens when an exclusion pair has both
// amounts at zero.
func solveNewtonStep(jac *mat.Dense, r []float64) ([]float64, error) {
	n := len(r)
	rhs := mat.NewVecDense(n, nil)
	for i, v := range r {
		rhs.SetVec(i, -v)
	}
	dx := mat.NewVecDense(n, nil)
	reg := 0.0
	for try := 0; try < 4; try++ {
		var lu mat.LU
		lu.Factorize(jac)
		if err := lu.SolveVecTo(dx, false, rhs); err == nil && finiteSlice(dx.RawVector().Data) {
			return dx.RawVector().Data, nil
		}
		if reg == 0 {
			reg = 1e-12
		} else {
			reg *= 1e4
		}
		for i := 0; i < n; i++ {
			jac.Set(i, i, jac.At(i, i)+reg)
		}
	}
	return nil, fmt.Errorf("the constraint Jacobian is singular")
}

func vecMaxAbs(v []float64) float64 {
	var mx float64
	for _, x := range v {
		if a := math.Abs(x); a > mx {
			mx = a
		}
	}
	return mx
}

func finiteSlice(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
