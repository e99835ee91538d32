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
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lnashier/viper"
	"github.com/spf13/cast"
)

// checkOutputVars removes end lines and expands environment
// variables in the output variables.
func checkOutputVars(vars map[string]string) (map[string]string, error) {
	if len(vars) == 0 {
		return nil, fmt.Errorf("there are no variables specified for output. Please fill in " +
			"the OutputVariables configuration and try again.")
	}
	for k, v := range vars {
		v = strings.Replace(v, "\r\n", " ", -1)
		v = strings.Replace(v, "\n", " ", -1)
		vars[os.ExpandEnv(k)] = os.ExpandEnv(v)
	}
	return vars, nil
}

// expandStringSlice expands the environment variables in a slice of strings.
func expandStringSlice(s []string) []string {
	for i := 0; i < len(s); i++ {
		s[i] = os.ExpandEnv(s[i])
	}
	return s
}

// checkOutputFile makes sure that the output file is specified, that its
// directory exists, and that its extension names a supported format, and
// expands any environment variables.
func checkOutputFile(f string) (string, error) {
	if f == "" {
		return "", fmt.Errorf(`you need to specify an output file configuration variable (for example: OutputFile="output.csv"`)
	}
	f = os.ExpandEnv(f)
	outdir := filepath.Dir(f)
	if _, err := os.Stat(outdir); err != nil {
		return f, fmt.Errorf("chemeq: the OutputFile directory doesn't exist: %v", err)
	}
	switch filepath.Ext(f) {
	case ".csv", ".nc", ".ncf":
	default:
		return f, fmt.Errorf("chemeq: the OutputFile extension needs to be .csv, .nc, or .ncf, but the file is `%s`", f)
	}
	return f, nil
}

// checkLogFile fills in a default value for the log file path if one isn't
// specified.
func checkLogFile(logFile, outputFile string) string {
	if logFile == "" {
		logFile = strings.TrimSuffix(outputFile, filepath.Ext(outputFile)) + ".log"
	}
	return logFile
}

// GetStringMapString returns a map[string]string from a viper configuration,
// accounting for the fact that it might be a json object if it was set
// from a command line argument.
func GetStringMapString(varName string, cfg *viper.Viper) map[string]string {
	i := cfg.Get(varName)
	switch i.(type) {
	case map[string]string:
		return i.(map[string]string)
	case map[string]interface{}:
		return cast.ToStringMapString(i)
	case string:
		b := bytes.NewBuffer(([]byte)(i.(string)))
		d := json.NewDecoder(b)
		o := make(map[string]string)
		if err := d.Decode(&o); err != nil {
			panic(err)
		}
		return o
	default:
		panic(fmt.Errorf("invalid type for getStringMapString variable %s: %#v", varName, i))
	}
}

// amounts converts the values of a configuration map to numbers, as in
// the InitialAmounts variable.
func amounts(m map[string]string) (map[string]float64, error) {
	o := make(map[string]float64, len(m))
	for k, v := range m {
		f, err := cast.ToFloat64E(os.ExpandEnv(v))
		if err != nil {
			return nil, fmt.Errorf("the value %q of key %q is not a number", v, k)
		}
		o[os.ExpandEnv(k)] = f
	}
	return o, nil
}

// pressureList converts the EOS.Pressures configuration to numbers.
func pressureList(s []string) ([]float64, error) {
	if len(s) == 0 {
		return nil, fmt.Errorf("chemeq: the EOS.Pressures variable needs at least one pressure")
	}
	o := make([]float64, len(s))
	for i, v := range s {
		f, err := cast.ToFloat64E(os.ExpandEnv(v))
		if err != nil {
			return nil, fmt.Errorf("chemeq: parsing config variable EOS.Pressures: %q is not a number", v)
		}
		if !(f > 0) {
			return nil, fmt.Errorf("chemeq: parsing config variable EOS.Pressures: the pressure %g Pa is not positive", f)
		}
		o[i] = f
	}
	return o, nil
}

// parseEquation parses a reaction equation written like
// "Calcite = Ca++ + CO3--" into a map from species names to
// stoichiometric coefficients, negative for the species on the left of
// the '=' and positive for the species on the right. The terms of each
// side are separated by ' + ' with the surrounding spaces, so that the
// charge signs in species names stay untouched, and a coefficient is
// attached to its species with '*', as in "2*H+".
func parseEquation(s string) (map[string]float64, error) {
	sides := strings.Split(s, "=")
	if len(sides) != 2 {
		return nil, fmt.Errorf("chemeq: the reaction equation %q needs exactly one '='", s)
	}
	eq := make(map[string]float64)
	for i, side := range sides {
		sign := -1.0
		if i == 1 {
			sign = 1.0
		}
		for _, term := range strings.Split(side, " + ") {
			term = strings.TrimSpace(term)
			if term == "" {
				return nil, fmt.Errorf("chemeq: the reaction equation %q has an empty term", s)
			}
			coeff := 1.0
			if k := strings.Index(term, "*"); k >= 0 {
				c, err := cast.ToFloat64E(strings.TrimSpace(term[:k]))
				if err != nil {
					return nil, fmt.Errorf("chemeq: the coefficient %q in reaction equation %q is not a number",
						strings.TrimSpace(term[:k]), s)
				}
				coeff = c
				term = strings.TrimSpace(term[k+1:])
				if term == "" {
					return nil, fmt.Errorf("chemeq: the coefficient in reaction equation %q has no species", s)
				}
			}
			eq[term] += sign * coeff
		}
	}
	return eq, nil
}
