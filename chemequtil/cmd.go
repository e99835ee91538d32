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

// Package chemequtil holds configuration and command-line handling
// for the ChemEq model.
package chemequtil

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/chemmodel/chemeq"
	"github.com/lnashier/viper"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	// Options are the configuration options available to ChemEq.
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "DatabaseFile",
			usage: `
              DatabaseFile is the path to the TOML file holding the standard
              thermodynamic properties, and optionally the dissolution rate
              mechanisms, of the chemical species. The path can include
              environment variables.`,
			defaultVal: "database.toml",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "System.AqueousSpecies",
			usage: `
              System.AqueousSpecies lists the database species that make up
              the aqueous phase. The list needs to contain a water species
              for the phase to have a solvent.`,
			defaultVal: []string{"H2O(l)", "H+", "OH-"},
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "System.GaseousSpecies",
			usage: `
              System.GaseousSpecies lists the database species that make up
              the gaseous phase. An empty list leaves the system without a
              gaseous phase.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "System.MineralSpecies",
			usage: `
              System.MineralSpecies lists the database minerals to include.
              Each mineral becomes its own pure phase.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "System.KineticSpecies",
			usage: `
              System.KineticSpecies lists the species whose amounts evolve
              under reaction kinetics instead of taking part in the
              equilibrium calculation. Each needs a reaction in
              Kinetics.Reactions to evolve at all.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "System.InertSpecies",
			usage: `
              System.InertSpecies lists the species whose amounts stay fixed
              at their initial values.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "InitialAmounts",
			usage: `
              InitialAmounts gives the initial amount of each species in mol.
              Species left out start at zero. The amounts of every point of
              the simulation start from this recipe.`,
			defaultVal: map[string]string{"H2O(l)": "55.508"},
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Conditions.Temperature",
			usage: `
              Conditions.Temperature is the temperature in K at the first
              point of the simulation.`,
			defaultVal: 298.15,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Conditions.Pressure",
			usage: `
              Conditions.Pressure is the pressure in Pa at the first point
              of the simulation.`,
			defaultVal: 1.0e5,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Conditions.TemperatureGradient",
			usage: `
              Conditions.TemperatureGradient is the temperature difference in
              K between the last point and the first point. The temperature
              varies linearly along the points.`,
			defaultVal: 0.0,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Conditions.PressureGradient",
			usage: `
              Conditions.PressureGradient is the pressure difference in Pa
              between the last point and the first point. The pressure varies
              linearly along the points.`,
			defaultVal: 0.0,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "NumPoints",
			usage: `
              NumPoints is the number of spatial points to simulate. The
              points share one chemical system and are solved concurrently.`,
			shorthand:  "n",
			defaultVal: 1,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Kinetics.Reactions",
			usage: `
              Kinetics.Reactions maps reaction names to reaction equations,
              written like "Calcite = Ca++ + CO3--" with ' + ' between the
              terms and '*' attaching a stoichiometric coefficient, as in
              "2*H+". A reaction named after a database mineral with a rate
              mechanism uses that mechanism as its rate law.`,
			defaultVal: map[string]string{},
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Kinetics.SurfaceAreas",
			usage: `
              Kinetics.SurfaceAreas gives the reactive surface area in m2
              for the mineral of each named reaction. Reactions left out use
              1 m2.`,
			defaultVal: map[string]string{},
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Kinetics.Duration",
			usage: `
              Kinetics.Duration is the length of the kinetic simulation in
              seconds. If it is zero, the simulation only equilibrates the
              points and no kinetics are run.`,
			defaultVal: 0.0,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Kinetics.TimeStep",
			usage: `
              Kinetics.TimeStep is the integration time step in seconds.`,
			defaultVal: 0.0,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "OutputFile",
			usage: `
              OutputFile is the path where the output is written. A '.csv'
              extension selects the tabular output defined by
              OutputVariables; a '.nc' or '.ncf' extension selects NetCDF
              output of the physical property fields. The path can include
              environment variables.`,
			defaultVal: "chemeq_output.csv",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "OutputVariables",
			usage: `
              OutputVariables maps output column names to the expressions
              that calculate them. Expressions can use T, P, pH, n_<species>,
              a_<species>, b_<element>, and v_<phase>; names containing
              characters such as '+' need to be escaped with brackets, for
              example "[a_H+]". It can include environment variables.`,
			defaultVal: map[string]string{
				"T":  "T",
				"pH": "pH",
			},
			flagsets: []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "OutputDerivatives",
			usage: `
              If OutputDerivatives is true, NetCDF output includes the
              derivatives of each field with respect to temperature,
              pressure, element amounts, and kinetic species amounts. It has
              no effect on CSV output.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "LogFile",
			usage: `
              LogFile is the path to the desired logfile location. It can
              include environment variables. If LogFile is left blank, the
              logfile will be saved in the same location as the OutputFile.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "EOS.Tmin",
			usage: `
              EOS.Tmin is the first temperature in K of the water property
              table.`,
			defaultVal: 273.16,
			flagsets:   []*pflag.FlagSet{eosCmd.Flags()},
		},
		{
			name: "EOS.Tmax",
			usage: `
              EOS.Tmax is the last temperature in K of the water property
              table.`,
			defaultVal: 623.15,
			flagsets:   []*pflag.FlagSet{eosCmd.Flags()},
		},
		{
			name: "EOS.Tstep",
			usage: `
              EOS.Tstep is the temperature spacing in K of the water
              property table.`,
			defaultVal: 25.0,
			flagsets:   []*pflag.FlagSet{eosCmd.Flags()},
		},
		{
			name: "EOS.Pressures",
			usage: `
              EOS.Pressures lists the pressures in Pa at which the water
              property table is evaluated.`,
			defaultVal: []string{"1e5"},
			flagsets:   []*pflag.FlagSet{eosCmd.Flags()},
		},
		{
			name: "EOS.OutputFile",
			usage: `
              EOS.OutputFile is the path where the water property table is
              written. If it is left blank, the table goes to standard
              output.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{eosCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("CHEMEQ")

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch option.defaultVal.(type) {
			case string:
				if option.shorthand == "" {
					set.String(option.name, option.defaultVal.(string), option.usage)
				} else {
					set.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
				}
			case []string:
				if option.shorthand == "" {
					set.StringSlice(option.name, option.defaultVal.([]string), option.usage)
				} else {
					set.StringSliceP(option.name, option.shorthand, option.defaultVal.([]string), option.usage)
				}
			case bool:
				if option.shorthand == "" {
					set.Bool(option.name, option.defaultVal.(bool), option.usage)
				} else {
					set.BoolP(option.name, option.shorthand, option.defaultVal.(bool), option.usage)
				}
			case int:
				if option.shorthand == "" {
					set.Int(option.name, option.defaultVal.(int), option.usage)
				} else {
					set.IntP(option.name, option.shorthand, option.defaultVal.(int), option.usage)
				}
			case float64:
				if option.shorthand == "" {
					set.Float64(option.name, option.defaultVal.(float64), option.usage)
				} else {
					set.Float64P(option.name, option.shorthand, option.defaultVal.(float64), option.usage)
				}
			case map[string]string:
				b := bytes.NewBuffer(nil)
				e := json.NewEncoder(b)
				e.Encode(option.defaultVal)
				s := string(b.Bytes())
				if option.shorthand == "" {
					set.String(option.name, s, option.usage)
				} else {
					set.StringP(option.name, option.shorthand, s, option.usage)
				}
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(runCmd)
	Root.AddCommand(eosCmd)
}

// setConfig finds and reads in the configuration file, if there is one.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("chemeq: problem reading configuration file: %v", err)
		}
	}
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "chemeq",
	Short: "A multiphase chemical equilibrium and kinetics model.",
	Long: `ChemEq calculates the equilibrium composition of multiphase chemical
systems, and advances them in time under reaction kinetics.
Use the subcommands specified below to access the model functionality.

Refer to the subcommand documentation for configuration options and default
settings. Configuration can be changed by using a configuration file (and
providing the path to the file using the --config flag), by using
command-line arguments, or by setting environment variables in the format
'CHEMEQ_var' where 'var' is the name of the variable to be set. Many
configuration variables are additionally allowed to contain environment
variables within them.
Refer to https://github.com/spf13/viper for additional configuration
information.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of ChemEq.",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ChemEq v%s\n", chemeq.Version)
	},
	DisableAutoGenTag: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the model.",
	Long: `run equilibrates the chemical state of a set of spatial points and,
if a kinetic duration is configured, advances them in time under reaction
kinetics. The results are written to OutputFile.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		outputFile, err := checkOutputFile(Cfg.GetString("OutputFile"))
		if err != nil {
			return err
		}
		outputVars, err := checkOutputVars(GetStringMapString("OutputVariables", Cfg))
		if err != nil {
			return err
		}
		initialAmounts, err := amounts(GetStringMapString("InitialAmounts", Cfg))
		if err != nil {
			return fmt.Errorf("chemeq: parsing config variable InitialAmounts: %v", err)
		}
		surfaceAreas, err := amounts(GetStringMapString("Kinetics.SurfaceAreas", Cfg))
		if err != nil {
			return fmt.Errorf("chemeq: parsing config variable Kinetics.SurfaceAreas: %v", err)
		}
		return Run(cmd,
			checkLogFile(Cfg.GetString("LogFile"), outputFile),
			outputFile,
			outputVars,
			Cfg.GetBool("OutputDerivatives"),
			Cfg.GetString("DatabaseFile"),
			expandStringSlice(Cfg.GetStringSlice("System.AqueousSpecies")),
			expandStringSlice(Cfg.GetStringSlice("System.GaseousSpecies")),
			expandStringSlice(Cfg.GetStringSlice("System.MineralSpecies")),
			expandStringSlice(Cfg.GetStringSlice("System.KineticSpecies")),
			expandStringSlice(Cfg.GetStringSlice("System.InertSpecies")),
			initialAmounts,
			Cfg.GetFloat64("Conditions.Temperature"),
			Cfg.GetFloat64("Conditions.Pressure"),
			Cfg.GetFloat64("Conditions.TemperatureGradient"),
			Cfg.GetFloat64("Conditions.PressureGradient"),
			Cfg.GetInt("NumPoints"),
			GetStringMapString("Kinetics.Reactions", Cfg),
			surfaceAreas,
			Cfg.GetFloat64("Kinetics.Duration"),
			Cfg.GetFloat64("Kinetics.TimeStep"),
		)
	},
	DisableAutoGenTag: true,
}

var eosCmd = &cobra.Command{
	Use:   "eos",
	Short: "Tabulate the thermodynamic properties of water.",
	Long: `eos evaluates the equation of state of water over a range of
temperatures and pressures and writes the properties as a table.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		pressures, err := pressureList(Cfg.GetStringSlice("EOS.Pressures"))
		if err != nil {
			return err
		}
		return EOSTable(cmd,
			Cfg.GetString("EOS.OutputFile"),
			Cfg.GetFloat64("EOS.Tmin"),
			Cfg.GetFloat64("EOS.Tmax"),
			Cfg.GetFloat64("EOS.Tstep"),
			pressures,
		)
	},
	DisableAutoGenTag: true,
}
