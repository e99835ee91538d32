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

// Package optimize minimizes smooth objective functions subject to
// linear equality constraints and non-negative variables,
//
//	minimize f(x) subject to A x = b, x >= 0,
//
// using a primal-dual interior point method. The Gibbs energy
// minimization behind chemical equilibrium is the main client: there
// x holds species amounts, A the formula matrix, and b element
// amounts.
package optimize

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// An ObjectiveFn evaluates the objective at x, returning its value,
// gradient, and Hessian. The solver copies what it keeps, so the
// objective may reuse its result buffers between calls.
type ObjectiveFn func(x []float64) (f float64, g []float64, h *mat.Dense, err error)

// A Problem is a minimization problem over non-negative variables
// with linear equality constraints A x = b. A may be nil when the
// problem has no equality constraints.
type Problem struct {
	Objective ObjectiveFn
	A         *mat.Dense
	B         []float64
}

// Options configure the solver. Zero fields take their default
// values.
type Options struct {
	// Tolerance bounds the primal feasibility residual, the dual
	// feasibility residual, and the complementarity gap at a
	// solution, each measured separately.
	Tolerance float64

	// MaxIterations bounds the number of Newton iterations.
	MaxIterations int

	// Mu is the initial barrier parameter.
	Mu float64

	// Tau is the fraction-to-the-boundary coefficient that keeps
	// iterates strictly inside the non-negative orthant.
	Tau float64
}

// DefaultOptions returns the solver defaults.
func DefaultOptions() Options {
	return Options{
		Tolerance:     1e-8,
		MaxIterations: 200,
		Mu:            1e-2,
		Tau:           0.995,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Tolerance == 0 {
		o.Tolerance = d.Tolerance
	}
	if o.MaxIterations == 0 {
		o.MaxIterations = d.MaxIterations
	}
	if o.Mu == 0 {
		o.Mu = d.Mu
	}
	if o.Tau == 0 {
		o.Tau = d.Tau
	}
	return o
}

// A Status describes the stage or outcome of a solve.
type Status int

const (
	// Uninitialized means the solver has not started.
	Uninitialized Status = iota
	// Iterating means the solver is between iterations.
	Iterating
	// Converged means the primal feasibility residual, the dual
	// feasibility residual, and the complementarity gap are all below
	// the configured tolerance.
	Converged
	// MaxIterationsExceeded means the iteration budget ran out before
	// convergence. The caller may retry from the last iterate with a
	// larger budget or from a different initial guess.
	MaxIterationsExceeded
	// Infeasible means the solver found no improving step direction,
	// typically because the problem is ill posed or the Hessian is
	// badly conditioned at the iterate.
	Infeasible
)

func (s Status) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Iterating:
		return "iterating"
	case Converged:
		return "converged"
	case MaxIterationsExceeded:
		return "max iterations exceeded"
	case Infeasible:
		return "infeasible"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// State is an optimizer iterate: the primal variables x, the equality
// constraint duals y, the bound duals z, and the objective data at x.
// A state left over from a previous solve warm starts the next one.
type State struct {
	X []float64 // primal variables
	Y []float64 // equality constraint duals
	Z []float64 // bound constraint duals

	F float64    // objective value at X
	G []float64  // objective gradient at X
	H *mat.Dense // objective Hessian at X

	R []float64  // equality constraint residual A X - b
	A *mat.Dense // equality constraint Jacobian

	Iterations int
	Status     Status
}

// NewState returns an empty state for a problem with nvar variables
// and ncon equality constraints.
func NewState(nvar, ncon int) *State {
	return &State{
		X: make([]float64, nvar),
		Y: make([]float64, ncon),
		Z: make([]float64, nvar),
		G: make([]float64, nvar),
		R: make([]float64, ncon),
	}
}

// check panics when the state dimensions disagree with the problem
// dimensions; such mismatches are programming errors.
func (s *State) check(nvar, ncon int) {
	if len(s.X) != nvar || len(s.Z) != nvar || len(s.G) != nvar {
		panic(fmt.Sprintf("optimize: state has %d variables for a problem with %d", len(s.X), nvar))
	}
	if len(s.Y) != ncon || len(s.R) != ncon {
		panic(fmt.Sprintf("optimize: state has %d constraint duals for a problem with %d constraints", len(s.Y), ncon))
	}
}

// Result summarizes a finished solve. The final iterate itself lives
// in the State passed to Solve.
type Result struct {
	Status     Status
	Iterations int

	// PrimalResidual is the infinity norm of A x - b at the final
	// iterate.
	PrimalResidual float64
	// DualResidual is the infinity norm of g - A^T y - z at the final
	// iterate.
	DualResidual float64
	// Gap is the mean complementarity product x.z/n at the final
	// iterate.
	Gap float64

	// Message describes a failure in more detail.
	Message string

	lu   *mat.LU
	nvar int
	ncon int
}

// Converged reports whether the solve met all three convergence
// criteria.
func (r Result) Converged() bool { return r.Status == Converged }

// Sensitivity returns dx/db, the derivative of the solution with
// respect to the equality constraint right-hand side, computed from
// the factorized KKT system of the final iterate. It fails when the
// solve never factorized a KKT system or the problem has no
// constraints.
func (r Result) Sensitivity() (*mat.Dense, error) {
	if r.lu == nil || r.ncon == 0 {
		return nil, fmt.Errorf("optimize: no factorized KKT system is available for sensitivities")
	}
	n := r.nvar + r.ncon
	rhs := mat.NewDense(n, r.ncon, nil)
	for k := 0; k < r.ncon; k++ {
		rhs.Set(r.nvar+k, k, 1)
	}
	sol := mat.NewDense(n, r.ncon, nil)
	if err := r.lu.SolveTo(sol, false, rhs); err != nil {
		return nil, fmt.Errorf("optimize: solving for sensitivities: %v", err)
	}
	return mat.DenseCopyOf(sol.Slice(0, r.nvar, 0, r.ncon)), nil
}

// coldStartAmount initializes primal variables that carry no warm
// start information.
const coldStartAmount = 1.0e-6

// Solve minimizes the problem starting from, and finishing in, the
// given state. A zero-valued state produces a cold start; a state
// carrying the result of a previous solve warms the next one. Solve
// checks ctx between iterations and returns ctx.Err() when it is
// done. Numerical non-convergence is not an error: it is reported
// through Result.Status so that the caller can retry with different
// settings or a different initial guess.
func Solve(ctx context.Context, p Problem, s *State, o Options) (Result, error) {
	o = o.withDefaults()
	nvar := len(s.X)
	ncon := 0
	if p.A != nil {
		r, c := p.A.Dims()
		ncon = r
		if c != nvar {
			panic(fmt.Sprintf("optimize: constraint matrix has %d columns for %d variables", c, nvar))
		}
		if len(p.B) != ncon {
			panic(fmt.Sprintf("optimize: constraint matrix has %d rows but the right-hand side has %d entries", ncon, len(p.B)))
		}
	} else if len(p.B) != 0 {
		panic("optimize: right-hand side given without a constraint matrix")
	}
	if nvar == 0 {
		panic("optimize: the problem has no variables")
	}
	s.check(nvar, ncon)
	s.A = p.A

	// Warm or cold start: primal and bound dual variables must be
	// strictly positive.
	for i := 0; i < nvar; i++ {
		if !(s.X[i] > 0) {
			s.X[i] = coldStartAmount
		}
		if !(s.Z[i] > 0) {
			s.Z[i] = 1
		}
	}
	s.Status = Iterating
	s.Iterations = 0

	mu := o.Mu
	res := Result{Status: Iterating, nvar: nvar, ncon: ncon}

	f, g, h, err := p.Objective(s.X)
	if err != nil {
		return res, fmt.Errorf("optimize: evaluating objective: %v", err)
	}
	s.F = f
	copy(s.G, g)
	s.H = mat.DenseCopyOf(h)

	for iter := 0; iter < o.MaxIterations; iter++ {
		select {
		case <-ctx.Done():
			s.Status = Iterating
			res.Status = Iterating
			return res, ctx.Err()
		default:
		}
		s.Iterations = iter
		res.Iterations = iter

		rd, rp := residuals(p, s)
		gap := floats.Dot(s.X, s.Z) / float64(nvar)
		res.PrimalResidual = normInf(rp)
		res.DualResidual = normInf(rd)
		res.Gap = gap
		if res.PrimalResidual < o.Tolerance && res.DualResidual < o.Tolerance && gap < o.Tolerance {
			copy(s.R, rp)
			s.Status = Converged
			res.Status = Converged
			// Factorize the KKT system at the solution so that
			// composition sensitivities remain available, also after
			// a warm start that converges immediately.
			probe := mat.NewVecDense(nvar+ncon, nil)
			for i := 0; i < nvar+ncon; i++ {
				probe.SetVec(i, 1)
			}
			if lu, _, ok := factorizeKKT(assembleKKT(p, s, nvar, ncon), probe, matMaxAbs(s.H), nvar, ncon); ok {
				res.lu = lu
			}
			return res, nil
		}
		if !finiteAll(s.F, s.G) || !finiteMat(s.H) {
			s.Status = Infeasible
			res.Status = Infeasible
			res.Message = "objective value, gradient, or Hessian is not finite"
			return res, nil
		}

		// Newton step on the KKT conditions:
		//
		//	[ H + diag(z/x)  A^T ] [dx]   [ -rd - rc/x ]
		//	[ A              0   ] [w ] = [ -rp        ]
		//
		// where rc = x.z - mu and dy = -w.
		kkt := assembleKKT(p, s, nvar, ncon)
		rhs := mat.NewVecDense(nvar+ncon, nil)
		for i := 0; i < nvar; i++ {
			rc := s.X[i]*s.Z[i] - mu
			rhs.SetVec(i, -rd[i]-rc/s.X[i])
		}
		for k := 0; k < ncon; k++ {
			rhs.SetVec(nvar+k, -rp[k])
		}

		lu, step, solved := factorizeKKT(kkt, rhs, matMaxAbs(s.H), nvar, ncon)
		if !solved {
			s.Status = Infeasible
			res.Status = Infeasible
			res.Message = "the KKT system is singular"
			return res, nil
		}
		res.lu = lu

		dx := make([]float64, nvar)
		dy := make([]float64, ncon)
		dz := make([]float64, nvar)
		for i := 0; i < nvar; i++ {
			dx[i] = step.AtVec(i)
			rc := s.X[i]*s.Z[i] - mu
			dz[i] = -(rc + s.Z[i]*dx[i]) / s.X[i]
		}
		for k := 0; k < ncon; k++ {
			dy[k] = -step.AtVec(nvar + k)
		}

		alphaP := stepLength(s.X, dx, o.Tau)
		alphaD := stepLength(s.Z, dz, o.Tau)

		// Backtrack until the merit function improves.
		merit := res.PrimalResidual + res.DualResidual + gap
		accepted := false
		for try := 0; try < 30; try++ {
			xNew := make([]float64, nvar)
			zNew := make([]float64, nvar)
			yNew := make([]float64, ncon)
			for i := 0; i < nvar; i++ {
				xNew[i] = s.X[i] + alphaP*dx[i]
				zNew[i] = s.Z[i] + alphaD*dz[i]
			}
			for k := 0; k < ncon; k++ {
				yNew[k] = s.Y[k] + alphaD*dy[k]
			}
			fNew, gNew, hNew, err := p.Objective(xNew)
			if err == nil && finiteAll(fNew, gNew) && finiteMat(hNew) {
				trial := &State{X: xNew, Y: yNew, Z: zNew, G: gNew}
				rdNew, rpNew := residuals(p, trial)
				gapNew := floats.Dot(xNew, zNew) / float64(nvar)
				meritNew := normInf(rpNew) + normInf(rdNew) + gapNew
				if meritNew < merit {
					copy(s.X, xNew)
					copy(s.Z, zNew)
					copy(s.Y, yNew)
					copy(s.R, rpNew)
					s.F = fNew
					copy(s.G, gNew)
					s.H = mat.DenseCopyOf(hNew)
					accepted = true
					break
				}
			}
			alphaP /= 2
			alphaD /= 2
		}
		if !accepted {
			s.Status = Infeasible
			res.Status = Infeasible
			res.Message = "no step along the Newton direction improves the merit function"
			return res, nil
		}

		mu = math.Max(0.2*floats.Dot(s.X, s.Z)/float64(nvar), o.Tolerance/10)
	}

	s.Status = MaxIterationsExceeded
	res.Status = MaxIterationsExceeded
	res.Iterations = o.MaxIterations
	rd, rp := residuals(p, s)
	copy(s.R, rp)
	res.PrimalResidual = normInf(rp)
	res.DualResidual = normInf(rd)
	res.Gap = floats.Dot(s.X, s.Z) / float64(len(s.X))
	return res, nil
}

// assembleKKT builds the symmetric KKT matrix at the current iterate.
// Small asymmetries in the supplied Hessian, as activity model
// Hessians can carry, are averaged away.
func assembleKKT(p Problem, s *State, nvar, ncon int) *mat.Dense {
	kkt := mat.NewDense(nvar+ncon, nvar+ncon, nil)
	for i := 0; i < nvar; i++ {
		for j := 0; j < nvar; j++ {
			v := 0.5 * (s.H.At(i, j) + s.H.At(j, i))
			if i == j {
				v += s.Z[i] / s.X[i]
			}
			kkt.Set(i, j, v)
		}
	}
	for k := 0; k < ncon; k++ {
		for j := 0; j < nvar; j++ {
			a := p.A.At(k, j)
			kkt.Set(nvar+k, j, a)
			kkt.Set(j, nvar+k, a)
		}
	}
	return kkt
}

// factorizeKKT factorizes kkt, checking that it can solve probe.
// Singular systems, as arise when the constraint rows are linearly
// dependent (an aqueous charge balance is often implied by the
// element balances), get progressively stronger diagonal
// regularization, positive on the primal block and negative on the
// dual block, until they become solvable. Convergence is still
// measured on unregularized residuals.
func factorizeKKT(kkt *mat.Dense, probe mat.Vector, hMax float64, nvar, ncon int) (*mat.LU, *mat.VecDense, bool) {
	lu := &mat.LU{}
	sol := mat.NewVecDense(nvar+ncon, nil)
	reg := 0.0
	for try := 0; try < 4; try++ {
		lu.Factorize(kkt)
		if err := lu.SolveVecTo(sol, false, probe); err == nil && finiteVec(sol) {
			return lu, sol, true
		}
		if reg == 0 {
			reg = 1e-10 * (1 + hMax)
		} else {
			reg *= 1e4
		}
		for i := 0; i < nvar; i++ {
			kkt.Set(i, i, kkt.At(i, i)+reg)
		}
		for k := 0; k < ncon; k++ {
			kkt.Set(nvar+k, nvar+k, -reg)
		}
	}
	return lu, sol, false
}

// residuals computes the dual residual g - A^T y - z and the primal
// residual A x - b.
func residuals(p Problem, s *State) (rd, rp []float64) {
	nvar := len(s.X)
	rd = make([]float64, nvar)
	for i := 0; i < nvar; i++ {
		rd[i] = s.G[i] - s.Z[i]
	}
	if p.A == nil {
		return rd, nil
	}
	ncon, _ := p.A.Dims()
	rp = make([]float64, ncon)
	for k := 0; k < ncon; k++ {
		var ax float64
		for j := 0; j < nvar; j++ {
			ax += p.A.At(k, j) * s.X[j]
		}
		rp[k] = ax - p.B[k]
		for j := 0; j < nvar; j++ {
			rd[j] -= p.A.At(k, j) * s.Y[k]
		}
	}
	return rd, rp
}

// stepLength returns the longest step alpha <= 1 such that
// v + alpha*dv stays a fraction tau inside the positive orthant.
func stepLength(v, dv []float64, tau float64) float64 {
	alpha := 1.0
	for i := range v {
		if dv[i] < 0 {
			if a := -tau * v[i] / dv[i]; a < alpha {
				alpha = a
			}
		}
	}
	return alpha
}

func normInf(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	return floats.Norm(v, math.Inf(1))
}

func finiteAll(f float64, g []float64) bool {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return false
	}
	for _, v := range g {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func finiteMat(m *mat.Dense) bool {
	if m == nil {
		return false
	}
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := m.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

func finiteVec(v *mat.VecDense) bool {
	for i := 0; i < v.Len(); i++ {
		x := v.AtVec(i)
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

func matMaxAbs(m *mat.Dense) float64 {
	var mx float64
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if a := math.Abs(m.At(i, j)); a > mx {
				mx = a
			}
		}
	}
	return mx
}
