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
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/chemmodel/chemeq"
	"github.com/chemmodel/chemeq/optimize"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
)

// restartAmount is the base species amount [mol] a retried
// equilibration starts from. Each further attempt scales it up
// tenfold to move the restart away from the failed iterate.
const restartAmount = 1e-6

// A Solver advances the chemistry of many spatial points that share
// one chemical system. The per-point states are independent, so the
// solver works on all points concurrently, striding them across
// GOMAXPROCS goroutines. Point states persist between calls: the
// amounts left behind by one call warm start the next, which pays off
// in transport simulations where consecutive conditions resemble each
// other.
//
// The exported fields may be adjusted between calls but not during
// them.
type Solver struct {
	partition *chemeq.Partition
	system    *chemeq.System
	reactions *chemeq.ReactionSystem
	states    []*chemeq.State

	// sens holds, per point, the derivatives of the equilibrium
	// species amounts with respect to the equilibrium element
	// amounts, taken from the most recent solve that factorized a
	// KKT system.
	sens []*mat.Dense

	// Log receives progress and retry information.
	Log logrus.FieldLogger

	// Options configure the per-point equilibrium solves.
	Options optimize.Options

	// MaxRetries bounds the number of perturbed restarts attempted
	// when an equilibration stops without convergence.
	MaxRetries uint64
}

// NewSolver returns a solver holding points chemical states over the
// equilibrium partition p. All states start empty at the reference
// temperature and pressure.
func NewSolver(p *chemeq.Partition, points int) (*Solver, error) {
	if points <= 0 {
		return nil, fmt.Errorf("field: a solver needs a positive number of points, got %d", points)
	}
	s := &Solver{
		partition:  p,
		system:     p.System(),
		states:     make([]*chemeq.State, points),
		sens:       make([]*mat.Dense, points),
		Log:        logrus.StandardLogger(),
		Options:    optimize.DefaultOptions(),
		MaxRetries: 2,
	}
	for i := range s.states {
		s.states[i] = chemeq.NewState(s.system)
	}
	return s, nil
}

// NumPoints returns the number of points the solver advances.
func (s *Solver) NumPoints() int { return len(s.states) }

// System returns the shared chemical system.
func (s *Solver) System() *chemeq.System { return s.system }

// Partition returns the shared equilibrium partition.
func (s *Solver) Partition() *chemeq.Partition { return s.partition }

// State returns the chemical state at point i. The returned state is
// live, not a copy: the solver reads and writes it during Equilibrate
// and React.
func (s *Solver) State(i int) *chemeq.State { return s.states[i] }

// SetReactions gives the solver the reactions that React advances.
// The reactions must belong to the solver system.
func (s *Solver) SetReactions(rs *chemeq.ReactionSystem) error {
	if rs.System() != s.system {
		return fmt.Errorf("field: the reactions belong to a different chemical system than the solver")
	}
	s.reactions = rs
	return nil
}

// SetState copies state to every point.
func (s *Solver) SetState(state *chemeq.State) error {
	if state.System() != s.system {
		return fmt.Errorf("field: the state belongs to a different chemical system than the solver")
	}
	for i := range s.states {
		s.states[i] = state.Clone()
	}
	return nil
}

// SetStateAt copies state to the listed points.
func (s *Solver) SetStateAt(state *chemeq.State, points ...int) error {
	if state.System() != s.system {
		return fmt.Errorf("field: the state belongs to a different chemical system than the solver")
	}
	for _, i := range points {
		if i < 0 || i >= len(s.states) {
			return fmt.Errorf("field: point index %d out of range for a solver with %d points", i, len(s.states))
		}
	}
	for _, i := range points {
		s.states[i] = state.Clone()
	}
	return nil
}

// Equilibrate brings every point to chemical equilibrium. T and P
// hold the temperature [K] and pressure [Pa] of each point, and be
// the equilibrium element amounts [mol], flattened point by point in
// the element order of the partition. A solve that stops without
// convergence is retried from a perturbed initial guess up to
// MaxRetries times before the whole call fails.
func (s *Solver) Equilibrate(ctx context.Context, T, P, be []float64) error {
	np := len(s.states)
	nbe := s.partition.NumEquilibriumElements()
	if len(T) != np || len(P) != np {
		return fmt.Errorf("field: got %d temperatures and %d pressures for %d points", len(T), len(P), np)
	}
	if len(be) != np*nbe {
		return fmt.Errorf("field: got %d element amounts for %d points with %d equilibrium elements each",
			len(be), np, nbe)
	}

	start := time.Now()
	nprocs := runtime.GOMAXPROCS(0)
	errs := make([]error, nprocs)
	var wg sync.WaitGroup
	wg.Add(nprocs)
	for pp := 0; pp < nprocs; pp++ {
		go func(pp int) {
			defer wg.Done()
			// Warm starts live in the point states, so a fresh
			// solver per worker costs nothing but its allocation.
			es := chemeq.NewEquilibriumSolver(s.partition)
			es.Options = s.Options
			for ii := pp; ii < np; ii += nprocs {
				problem := chemeq.EquilibriumProblem{T: T[ii], P: P[ii], B: be[ii*nbe : (ii+1)*nbe]}
				if err := s.equilibratePoint(ctx, es, ii, problem); err != nil {
					errs[pp] = err
					return
				}
			}
		}(pp)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	s.Log.WithFields(logrus.Fields{
		"points":  np,
		"seconds": time.Since(start).Seconds(),
	}).Info("field: equilibration finished")
	return nil
}

// equilibratePoint solves one point, retrying non-converged solves
// from perturbed initial guesses. The sensitivities of the solution
// are kept for the derivative blocks of assembled fields; if the
// solve cannot provide them, the sensitivities of the previous solve
// at the point remain in force.
func (s *Solver) equilibratePoint(ctx context.Context, es *chemeq.EquilibriumSolver, i int, problem chemeq.EquilibriumProblem) error {
	state := s.states[i]
	var res chemeq.EquilibriumResult
	var attempt int
	op := func() error {
		r, err := es.Solve(ctx, state, problem)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !r.Converged() {
			// The solver seeds its initial guess from the positive
			// state amounts, so the restart must set them rather
			// than clear them.
			attempt++
			n := state.SpeciesAmounts()
			for _, j := range s.partition.EquilibriumSpecies() {
				n[j] = restartAmount * math.Pow(10, float64(attempt))
			}
			if err := state.SetSpeciesAmounts(n); err != nil {
				return backoff.Permanent(err)
			}
			return fmt.Errorf("field: equilibration at point %d stopped with status %v after %d iterations",
				i, r.Status, r.Iterations)
		}
		res = r
		return nil
	}
	notify := func(err error, _ time.Duration) {
		s.Log.WithFields(logrus.Fields{
			"point":   i,
			"attempt": attempt,
		}).Warn(err)
	}
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(0), s.MaxRetries), ctx)
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return err
	}
	if sens, err := res.Sensitivity(); err == nil {
		s.sens[i] = sens
	}
	return nil
}

// React advances the chemistry of every point from time t [s] over
// one step dt [s]. Within the step the kinetic species amounts and
// the equilibrium element amounts evolve together under the reaction
// rates, integrated with the classical fourth order Runge-Kutta
// scheme, and the equilibrium partition is re-equilibrated at every
// stage so that the rates see equilibrated activities. Kinetic
// amounts are clamped at zero, so a mineral that exhausts within the
// step stops reacting; the accuracy of the exhaustion time is
// controlled through dt. The time t enters the progress log only; the
// rates do not depend on it.
func (s *Solver) React(ctx context.Context, t, dt float64) error {
	if s.reactions == nil {
		return fmt.Errorf("field: the solver has no reactions; call SetReactions first")
	}
	if !(dt > 0) {
		return fmt.Errorf("field: the time step must be positive, got %g s", dt)
	}

	start := time.Now()
	a := s.partition.EquilibriumFormulaMatrix()
	np := len(s.states)
	nprocs := runtime.GOMAXPROCS(0)
	errs := make([]error, nprocs)
	var wg sync.WaitGroup
	wg.Add(nprocs)
	for pp := 0; pp < nprocs; pp++ {
		go func(pp int) {
			defer wg.Done()
			es := chemeq.NewEquilibriumSolver(s.partition)
			es.Options = s.Options
			for ii := pp; ii < np; ii += nprocs {
				if err := s.reactPoint(ctx, es, a, ii, dt); err != nil {
					errs[pp] = err
					return
				}
			}
		}(pp)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	s.Log.WithFields(logrus.Fields{
		"points":  np,
		"time":    t,
		"dt":      dt,
		"seconds": time.Since(start).Seconds(),
	}).Info("field: reaction step finished")
	return nil
}

// reactPoint integrates one point over dt. The integration variables
// are the kinetic species amounts and the equilibrium element
// amounts; the equilibrium species amounts follow them through the
// per-stage equilibrations.
func (s *Solver) reactPoint(ctx context.Context, es *chemeq.EquilibriumSolver, a *mat.Dense, i int, dt float64) error {
	state := s.states[i]
	ik := s.partition.KineticSpecies()
	iE := s.partition.EquilibriumSpecies()
	stoich := s.reactions.StoichiometricMatrix()
	T, P := state.Temperature(), state.Pressure()

	nk := chemeq.Gather(state.SpeciesAmounts(), ik)
	be, err := s.partition.EquilibriumElementAmounts(state.SpeciesAmounts())
	if err != nil {
		return err
	}

	// apply writes stage amounts into the state and re-equilibrates.
	apply := func(nks, bes []float64) error {
		n := state.SpeciesAmounts()
		for l, j := range ik {
			n[j] = math.Max(nks[l], 0)
		}
		if err := state.SetSpeciesAmounts(n); err != nil {
			return err
		}
		return s.equilibratePoint(ctx, es, i, chemeq.EquilibriumProblem{T: T, P: P, B: bes})
	}

	// deriv evaluates the time derivatives of the integration
	// variables at a stage composition. The element derivatives count
	// only the production entering equilibrium species; production of
	// kinetic species is carried by their own amounts.
	deriv := func(nks, bes []float64) (dnk, dbe []float64, err error) {
		if err := apply(nks, bes); err != nil {
			return nil, nil, err
		}
		props, err := state.Properties()
		if err != nil {
			return nil, nil, err
		}
		rates, err := s.reactions.Rates(props)
		if err != nil {
			return nil, nil, err
		}
		prod := make([]float64, s.system.NumSpecies())
		for k := 0; k < s.reactions.NumReactions(); k++ {
			for j := range prod {
				prod[j] += stoich.At(k, j) * rates.Val[k]
			}
		}
		dnk = chemeq.Gather(prod, ik)
		dbe = make([]float64, len(bes))
		for e := range dbe {
			for c, j := range iE {
				dbe[e] += a.At(e, c) * prod[j]
			}
		}
		return dnk, dbe, nil
	}

	k1n, k1b, err := deriv(nk, be)
	if err != nil {
		return err
	}
	k2n, k2b, err := deriv(step(nk, k1n, dt/2), step(be, k1b, dt/2))
	if err != nil {
		return err
	}
	k3n, k3b, err := deriv(step(nk, k2n, dt/2), step(be, k2b, dt/2))
	if err != nil {
		return err
	}
	k4n, k4b, err := deriv(step(nk, k3n, dt), step(be, k3b, dt))
	if err != nil {
		return err
	}
	for l := range nk {
		nk[l] += dt / 6 * (k1n[l] + 2*k2n[l] + 2*k3n[l] + k4n[l])
	}
	for e := range be {
		be[e] += dt / 6 * (k1b[e] + 2*k2b[e] + 2*k3b[e] + k4b[e])
	}
	return apply(nk, be)
}

// step returns y + h*dy.
func step(y, dy []float64, h float64) []float64 {
	out := make([]float64, len(y))
	for i := range y {
		out[i] = y[i] + h*dy[i]
	}
	return out
}

// assemble evaluates quantity at every point concurrently and packs
// the results into a field. With withDiff set, the element block is
// filled through the chain rule with the equilibrium sensitivities of
// the most recent solve at each point: a change in an element amount
// moves the equilibrium species amounts, which move the quantity.
// Points that have never been equilibrated carry zero element
// derivatives.
func (s *Solver) assemble(withDiff bool, quantity func(*chemeq.Properties) (chemeq.ChemicalScalar, error)) (*Field, error) {
	np := len(s.states)
	nbe := s.partition.NumEquilibriumElements()
	iE := s.partition.EquilibriumSpecies()
	ik := s.partition.KineticSpecies()
	f := newField(np, nbe, len(ik), withDiff)

	nprocs := runtime.GOMAXPROCS(0)
	errs := make([]error, nprocs)
	var wg sync.WaitGroup
	wg.Add(nprocs)
	for pp := 0; pp < nprocs; pp++ {
		go func(pp int) {
			defer wg.Done()
			for ii := pp; ii < np; ii += nprocs {
				props, err := s.states[ii].Properties()
				if err != nil {
					errs[pp] = err
					return
				}
				q, err := quantity(props)
				if err != nil {
					errs[pp] = err
					return
				}
				f.Val.Elements[ii] = q.Val
				if !withDiff {
					continue
				}
				f.DDT.Elements[ii] = q.DDT
				f.DDP.Elements[ii] = q.DDP
				if sens := s.sens[ii]; sens != nil && f.DDBe != nil {
					for b := 0; b < nbe; b++ {
						var d float64
						for c, j := range iE {
							d += q.DDN[j] * sens.At(c, b)
						}
						f.DDBe.Set(d, ii, b)
					}
				}
				if f.DDNk != nil {
					for l, j := range ik {
						f.DDNk.Set(q.DDN[j], ii, l)
					}
				}
			}
		}(pp)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return f, nil
}

// Porosity returns the volume fraction at each point not occupied by
// minerals. Species amounts are interpreted per unit bulk volume, so
// the mineral phase volumes are volume fractions directly.
func (s *Solver) Porosity() (*Field, error) {
	return s.assemble(false, s.porosity)
}

// PorosityWithDiff is Porosity with the derivative blocks filled in.
func (s *Solver) PorosityWithDiff() (*Field, error) {
	return s.assemble(true, s.porosity)
}

func (s *Solver) porosity(props *chemeq.Properties) (chemeq.ChemicalScalar, error) {
	phi := chemeq.NewChemicalScalar(s.system.NumSpecies())
	phi.Val = 1
	for ip, ph := range s.system.Phases() {
		if ph.Kind != chemeq.MineralPhase {
			continue
		}
		v := props.PhaseVolume(ip)
		phi.Val -= v.Val
		phi.DDT -= v.DDT
		phi.DDP -= v.DDP
		for j, d := range v.DDN {
			phi.DDN[j] -= d
		}
	}
	return phi, nil
}

// Saturation returns the fraction of the fluid volume at each point
// occupied by the phase with index ip, which must be an aqueous or
// gaseous phase. Points without any fluid report zero.
func (s *Solver) Saturation(ip int) (*Field, error) {
	if err := s.checkFluidPhase(ip); err != nil {
		return nil, err
	}
	return s.assemble(false, s.saturation(ip))
}

// SaturationWithDiff is Saturation with the derivative blocks filled
// in.
func (s *Solver) SaturationWithDiff(ip int) (*Field, error) {
	if err := s.checkFluidPhase(ip); err != nil {
		return nil, err
	}
	return s.assemble(true, s.saturation(ip))
}

func (s *Solver) checkFluidPhase(ip int) error {
	if ip < 0 || ip >= s.system.NumPhases() {
		return fmt.Errorf("field: phase index %d out of range for a system with %d phases", ip, s.system.NumPhases())
	}
	if ph := s.system.Phases()[ip]; ph.Kind == chemeq.MineralPhase {
		return fmt.Errorf("field: saturation applies to fluid phases, and phase %q is a mineral", ph.Name)
	}
	return nil
}

func (s *Solver) saturation(ip int) func(*chemeq.Properties) (chemeq.ChemicalScalar, error) {
	return func(props *chemeq.Properties) (chemeq.ChemicalScalar, error) {
		nsp := s.system.NumSpecies()
		total := chemeq.NewChemicalScalar(nsp)
		for jp, ph := range s.system.Phases() {
			if ph.Kind == chemeq.MineralPhase {
				continue
			}
			v := props.PhaseVolume(jp)
			total.Val += v.Val
			total.DDT += v.DDT
			total.DDP += v.DDP
			for j, d := range v.DDN {
				total.DDN[j] += d
			}
		}
		sat := chemeq.NewChemicalScalar(nsp)
		if total.Val == 0 {
			return sat, nil
		}
		v := props.PhaseVolume(ip)
		sat.Val = v.Val / total.Val
		sat.DDT = (v.DDT - sat.Val*total.DDT) / total.Val
		sat.DDP = (v.DDP - sat.Val*total.DDP) / total.Val
		for j := range sat.DDN {
			sat.DDN[j] = (v.DDN[j] - sat.Val*total.DDN[j]) / total.Val
		}
		return sat, nil
	}
}

// Density returns the mass density [kg/m3] of the phase with index ip
// at each point. Points where the phase has vanished report zero.
func (s *Solver) Density(ip int) (*Field, error) {
	if err := s.checkPhase(ip); err != nil {
		return nil, err
	}
	return s.assemble(false, s.density(ip))
}

// DensityWithDiff is Density with the derivative blocks filled in.
func (s *Solver) DensityWithDiff(ip int) (*Field, error) {
	if err := s.checkPhase(ip); err != nil {
		return nil, err
	}
	return s.assemble(true, s.density(ip))
}

func (s *Solver) checkPhase(ip int) error {
	if ip < 0 || ip >= s.system.NumPhases() {
		return fmt.Errorf("field: phase index %d out of range for a system with %d phases", ip, s.system.NumPhases())
	}
	return nil
}

func (s *Solver) density(ip int) func(*chemeq.Properties) (chemeq.ChemicalScalar, error) {
	return func(props *chemeq.Properties) (chemeq.ChemicalScalar, error) {
		nsp := s.system.NumSpecies()
		rho := chemeq.NewChemicalScalar(nsp)
		v := props.PhaseVolume(ip)
		if v.Val == 0 {
			return rho, nil
		}
		lo, hi := s.system.PhaseSpeciesRange(ip)
		var mass float64
		for j := lo; j < hi; j++ {
			mass += props.N[j] * s.system.Species()[j].MolarMass
		}
		rho.Val = mass / v.Val
		rho.DDT = -rho.Val / v.Val * v.DDT
		rho.DDP = -rho.Val / v.Val * v.DDP
		for j := range rho.DDN {
			rho.DDN[j] = -rho.Val / v.Val * v.DDN[j]
		}
		for j := lo; j < hi; j++ {
			rho.DDN[j] += s.system.Species()[j].MolarMass / v.Val
		}
		return rho, nil
	}
}
