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

package chemequtil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/chemmodel/chemeq"
	"github.com/chemmodel/chemeq/chemdb"
	"github.com/chemmodel/chemeq/field"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Run equilibrates the chemical states of a set of spatial points
// and, when Duration is positive, advances them in time under
// reaction kinetics. The results are written to OutputFile.
//
// LogFile is the path where the progress log is written.
//
// OutputFile is the path where the results are written. A '.csv'
// extension selects the tabular output defined by OutputVariables; a
// '.nc' or '.ncf' extension selects NetCDF output of the physical
// property fields.
//
// OutputVariables maps output column names to the expressions that
// calculate them.
//
// If OutputDerivatives is true, NetCDF output includes the
// derivatives of each field.
//
// DatabaseFile is the path to the TOML species database.
//
// AqueousSpecies, GaseousSpecies, and MineralSpecies name the
// database species that make up the phases of the system; each
// mineral becomes its own pure phase. KineticSpecies and InertSpecies
// name the species excluded from the equilibrium calculation.
//
// InitialAmounts gives the initial amount of each species in mol;
// species left out start at zero.
//
// Temperature [K] and Pressure [Pa] hold at the first point, and
// TemperatureGradient and PressureGradient are added linearly along
// the points, reaching their full value at the last point.
//
// NumPoints is the number of spatial points.
//
// Reactions maps reaction names to reaction equations, and
// SurfaceAreas gives the reactive surface area in m² for the mineral
// of each named reaction. Duration [s] is the length of the kinetic
// simulation, advanced in steps of TimeStep [s].
func Run(cmd *cobra.Command, LogFile, OutputFile string, OutputVariables map[string]string,
	OutputDerivatives bool, DatabaseFile string,
	AqueousSpecies, GaseousSpecies, MineralSpecies, KineticSpecies, InertSpecies []string,
	InitialAmounts map[string]float64,
	Temperature, Pressure, TemperatureGradient, PressureGradient float64,
	NumPoints int, Reactions map[string]string, SurfaceAreas map[string]float64,
	Duration, TimeStep float64) error {

	startTime := time.Now()

	logfile, err := os.Create(LogFile)
	if err != nil {
		return fmt.Errorf("chemeq: problem creating log file: %v", err)
	}
	defer logfile.Close()
	out := io.Writer(os.Stdout)
	if cmd != nil {
		out = cmd.OutOrStdout()
	}
	log := logrus.New()
	log.SetOutput(io.MultiWriter(out, logfile))

	log.WithField("database", DatabaseFile).Info("chemeq: loading the species database")
	db, err := chemdb.LoadFile(os.ExpandEnv(DatabaseFile))
	if err != nil {
		return err
	}

	sys, err := buildSystem(db, AqueousSpecies, GaseousSpecies, MineralSpecies)
	if err != nil {
		return err
	}
	partition, err := chemeq.NewPartitionWith(sys, KineticSpecies, InertSpecies)
	if err != nil {
		return err
	}

	// Compile the output expressions before solving anything, so
	// that a misspelled output variable fails fast.
	var outputter *chemeq.Outputter
	if filepath.Ext(OutputFile) == ".csv" {
		log.Info("chemeq: parsing output variable expressions")
		outputter, err = chemeq.NewOutputter(sys, OutputVariables, nil)
		if err != nil {
			return err
		}
	}

	initial := chemeq.NewState(sys)
	if err := initial.SetTemperature(Temperature); err != nil {
		return err
	}
	if err := initial.SetPressure(Pressure); err != nil {
		return err
	}
	for _, name := range sortedKeys(InitialAmounts) {
		if err := initial.SetSpeciesAmount(name, InitialAmounts[name]); err != nil {
			return fmt.Errorf("chemeq: applying InitialAmounts: %v", err)
		}
	}

	solver, err := field.NewSolver(partition, NumPoints)
	if err != nil {
		return err
	}
	solver.Log = log
	if err := solver.SetState(initial); err != nil {
		return err
	}

	be0, err := partition.EquilibriumElementAmounts(initial.SpeciesAmounts())
	if err != nil {
		return err
	}
	T := make([]float64, NumPoints)
	P := make([]float64, NumPoints)
	be := make([]float64, NumPoints*len(be0))
	for i := 0; i < NumPoints; i++ {
		frac := 0.0
		if NumPoints > 1 {
			frac = float64(i) / float64(NumPoints-1)
		}
		T[i] = Temperature + TemperatureGradient*frac
		P[i] = Pressure + PressureGradient*frac
		copy(be[i*len(be0):(i+1)*len(be0)], be0)
	}

	ctx := context.Background()
	if err := solver.Equilibrate(ctx, T, P, be); err != nil {
		return err
	}

	if Duration > 0 {
		if !(TimeStep > 0) {
			return fmt.Errorf("chemeq: Kinetics.Duration is %g s but Kinetics.TimeStep is %g s; the time step must be positive",
				Duration, TimeStep)
		}
		reactions, err := buildReactions(db, sys, Reactions, SurfaceAreas)
		if err != nil {
			return err
		}
		rs, err := chemeq.NewReactionSystem(sys, reactions)
		if err != nil {
			return err
		}
		if err := solver.SetReactions(rs); err != nil {
			return err
		}
		for t := 0.0; t < Duration; t += TimeStep {
			dt := TimeStep
			if t+dt > Duration {
				dt = Duration - t
			}
			if !(dt > 0) {
				break
			}
			if err := solver.React(ctx, t, dt); err != nil {
				return err
			}
		}
	}

	f, err := os.Create(OutputFile)
	if err != nil {
		return fmt.Errorf("chemeq: problem creating output file: %v", err)
	}
	defer f.Close()
	switch filepath.Ext(OutputFile) {
	case ".csv":
		states := make([]*chemeq.State, NumPoints)
		for i := range states {
			states[i] = solver.State(i)
		}
		if err := outputter.WriteCSV(f, states); err != nil {
			return err
		}
	case ".nc", ".ncf":
		fields, err := propertyFields(solver, OutputDerivatives)
		if err != nil {
			return err
		}
		if err := field.WriteNetCDF(f, fields); err != nil {
			return err
		}
	}

	log.WithFields(logrus.Fields{
		"output":  OutputFile,
		"seconds": time.Since(startTime).Seconds(),
	}).Info("chemeq: run finished")
	return nil
}

// buildSystem assembles the chemical system from database species.
// The aqueous and gaseous species each form one phase, and each
// mineral forms its own pure phase.
func buildSystem(db *chemdb.Database, aqueous, gaseous, minerals []string) (*chemeq.System, error) {
	var phases []chemeq.Phase
	if len(aqueous) > 0 {
		ph, err := db.Phase("Aqueous", chemeq.AqueousPhase, aqueous...)
		if err != nil {
			return nil, err
		}
		phases = append(phases, ph)
	}
	if len(gaseous) > 0 {
		ph, err := db.Phase("Gaseous", chemeq.GaseousPhase, gaseous...)
		if err != nil {
			return nil, err
		}
		phases = append(phases, ph)
	}
	for _, name := range minerals {
		ph, err := db.Phase(name, chemeq.MineralPhase, name)
		if err != nil {
			return nil, err
		}
		phases = append(phases, ph)
	}
	return chemeq.NewSystem(phases)
}

// buildReactions turns the configured reaction equations into
// reactions with mineral rate laws. Every reaction needs a rate
// mechanism in the database under its own name; without one it could
// never advance.
func buildReactions(db *chemdb.Database, sys *chemeq.System, equations map[string]string, surfaceAreas map[string]float64) ([]chemeq.Reaction, error) {
	if len(equations) == 0 {
		return nil, errors.New("chemeq: a kinetic simulation needs at least one reaction in Kinetics.Reactions")
	}
	names := make([]string, 0, len(equations))
	for name := range equations {
		names = append(names, name)
	}
	sort.Strings(names)

	reactions := make([]chemeq.Reaction, 0, len(names))
	for _, name := range names {
		eq, err := parseEquation(equations[name])
		if err != nil {
			return nil, err
		}
		r, err := chemeq.NewReaction(name, eq, sys)
		if err != nil {
			return nil, err
		}
		mech, err := db.Mechanism(name)
		if err != nil {
			return nil, fmt.Errorf("chemeq: reaction %q has no usable rate mechanism: %v", name, err)
		}
		sa, ok := surfaceAreas[name]
		if !ok {
			sa = 1
		}
		reactions = append(reactions, r.WithRate(chemeq.MineralRate(r, sa, mech)))
	}
	return reactions, nil
}

// propertyFields evaluates the physical property fields written to
// NetCDF output: the porosity, and the saturation and density of each
// fluid phase.
func propertyFields(solver *field.Solver, withDiff bool) (map[string]*field.Field, error) {
	fields := make(map[string]*field.Field)

	porosity := solver.Porosity
	if withDiff {
		porosity = solver.PorosityWithDiff
	}
	phi, err := porosity()
	if err != nil {
		return nil, err
	}
	fields["Porosity"] = phi

	for ip, ph := range solver.System().Phases() {
		if ph.Kind == chemeq.MineralPhase {
			continue
		}
		saturation, density := solver.Saturation, solver.Density
		if withDiff {
			saturation, density = solver.SaturationWithDiff, solver.DensityWithDiff
		}
		sat, err := saturation(ip)
		if err != nil {
			return nil, err
		}
		fields["Saturation_"+ph.Name] = sat
		rho, err := density(ip)
		if err != nil {
			return nil, err
		}
		fields["Density_"+ph.Name] = rho
	}
	return fields, nil
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
