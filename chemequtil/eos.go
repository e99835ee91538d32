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
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/chemmodel/chemeq/science/water"
	"github.com/spf13/cobra"
)

// eosColumns are the columns of the water property table, in order.
var eosColumns = []string{
	"T",        // K
	"P",        // Pa
	"density",  // kg/m³
	"volume",   // m³/kg
	"enthalpy", // J/kg
	"entropy",  // J/(kg K)
	"cp",       // J/(kg K)
	"cv",       // J/(kg K)
	"dDdT",     // kg/(m³ K)
	"dDdP",     // kg/(m³ Pa)
}

// EOSTable evaluates the Wagner–Pruss equation of state of water from
// Tmin to Tmax in steps of Tstep at each of the given pressures, and
// writes the properties as CSV to OutputFile, or to standard output
// if OutputFile is blank.
func EOSTable(cmd *cobra.Command, OutputFile string, Tmin, Tmax, Tstep float64, Pressures []float64) error {
	if !(Tstep > 0) {
		return fmt.Errorf("chemeq: EOS.Tstep is %g K but must be positive", Tstep)
	}
	if Tmax < Tmin {
		return fmt.Errorf("chemeq: EOS.Tmax (%g K) is below EOS.Tmin (%g K)", Tmax, Tmin)
	}

	out := io.Writer(os.Stdout)
	if cmd != nil {
		out = cmd.OutOrStdout()
	}
	if OutputFile != "" {
		f, err := os.Create(os.ExpandEnv(OutputFile))
		if err != nil {
			return fmt.Errorf("chemeq: problem creating EOS output file: %v", err)
		}
		defer f.Close()
		out = f
	}

	w := csv.NewWriter(out)
	if err := w.Write(eosColumns); err != nil {
		return fmt.Errorf("chemeq: writing EOS table header: %v", err)
	}
	record := make([]string, len(eosColumns))
	for _, P := range Pressures {
		for i := 0; ; i++ {
			T := Tmin + float64(i)*Tstep
			if T > Tmax+1e-9*Tstep {
				break
			}
			ts, err := water.StateWagnerPruss(T, P)
			if err != nil {
				return fmt.Errorf("chemeq: evaluating the water equation of state at T=%g K, P=%g Pa: %v", T, P, err)
			}
			for j, v := range []float64{
				T, P,
				ts.Density, ts.Volume, ts.Enthalpy, ts.Entropy,
				ts.Cp, ts.Cv, ts.DensityT, ts.DensityP,
			} {
				record[j] = strconv.FormatFloat(v, 'g', -1, 64)
			}
			if err := w.Write(record); err != nil {
				return fmt.Errorf("chemeq: writing EOS table row: %v", err)
			}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("chemeq: writing EOS table: %v", err)
	}
	return nil
}
