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
	"math"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/lnashier/viper"
)

func TestParseEquation(t *testing.T) {
	tests := []struct {
		eq   string
		want map[string]float64
	}{
		{
			eq:   "Calcite = Ca++ + CO3--",
			want: map[string]float64{"Calcite": -1, "Ca++": 1, "CO3--": 1},
		},
		{
			eq:   "Halite = Na+ + Cl-",
			want: map[string]float64{"Halite": -1, "Na+": 1, "Cl-": 1},
		},
		{
			eq:   "2*H+ + CO3-- = CO2(aq) + H2O(l)",
			want: map[string]float64{"H+": -2, "CO3--": -1, "CO2(aq)": 1, "H2O(l)": 1},
		},
		{
			eq:   "Calcite + H+ = Ca++ + HCO3-",
			want: map[string]float64{"Calcite": -1, "H+": -1, "Ca++": 1, "HCO3-": 1},
		},
		{
			eq:   "0.5*O2(g) + H2(g) = H2O(l)",
			want: map[string]float64{"O2(g)": -0.5, "H2(g)": -1, "H2O(l)": 1},
		},
	}
	for _, test := range tests {
		got, err := parseEquation(test.eq)
		if err != nil {
			t.Errorf("%s: %v", test.eq, err)
			continue
		}
		if !reflect.DeepEqual(got, test.want) {
			t.Errorf("%s: %v != %v", test.eq, got, test.want)
		}
	}

	bad := []string{
		"Calcite",              // no '='
		"a = b = c",            // two '='
		"x*H+ = OH-",           // coefficient isn't a number
		"Calcite = ",           // empty right side
		"2* = Na+",             // coefficient with no species
		"Calcite = Na+ +  + Cl-", // empty term
	}
	for _, eq := range bad {
		if _, err := parseEquation(eq); err == nil {
			t.Errorf("%s: expected an error", eq)
		}
	}
}

func TestAmounts(t *testing.T) {
	got, err := amounts(map[string]string{"H2O(l)": "55.508", "NaCl(aq)": "1e-1"})
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]float64{"H2O(l)": 55.508, "NaCl(aq)": 0.1}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("%v != %v", got, want)
	}
	if _, err := amounts(map[string]string{"H2O(l)": "lots"}); err == nil {
		t.Error("expected an error for a non-numeric amount")
	}
}

func TestPressureList(t *testing.T) {
	got, err := pressureList([]string{"1e5", "2.5e6"})
	if err != nil {
		t.Fatal(err)
	}
	if want := []float64{1e5, 2.5e6}; !reflect.DeepEqual(got, want) {
		t.Errorf("%v != %v", got, want)
	}
	for _, bad := range [][]string{nil, {"abc"}, {"-1e5"}, {"0"}} {
		if _, err := pressureList(bad); err == nil {
			t.Errorf("%v: expected an error", bad)
		}
	}
}

func TestCheckOutputFile(t *testing.T) {
	t.Run("missing", func(t *testing.T) {
		if _, err := checkOutputFile(""); err == nil {
			t.Error("expected an error for an empty output file")
		}
	})
	t.Run("extension", func(t *testing.T) {
		if _, err := checkOutputFile("out.shp"); err == nil {
			t.Error("expected an error for an unsupported extension")
		}
		for _, ok := range []string{"out.csv", "out.nc", "out.ncf"} {
			if _, err := checkOutputFile(ok); err != nil {
				t.Errorf("%s: %v", ok, err)
			}
		}
	})
	t.Run("directory", func(t *testing.T) {
		if _, err := checkOutputFile(filepath.Join("nonexistent_directory", "out.csv")); err == nil {
			t.Error("expected an error for a nonexistent directory")
		}
	})
	t.Run("environment", func(t *testing.T) {
		t.Setenv("CHEMEQ_TEST_OUTDIR", t.TempDir())
		got, err := checkOutputFile(filepath.Join("$CHEMEQ_TEST_OUTDIR", "out.csv"))
		if err != nil {
			t.Fatal(err)
		}
		if strings.Contains(got, "$") {
			t.Errorf("environment variable not expanded: %s", got)
		}
	})
}

func TestCheckLogFile(t *testing.T) {
	if got, want := checkLogFile("", "/tmp/out.csv"), "/tmp/out.log"; got != want {
		t.Errorf("%s != %s", got, want)
	}
	if got, want := checkLogFile("run.log", "/tmp/out.csv"), "run.log"; got != want {
		t.Errorf("%s != %s", got, want)
	}
}

func TestCheckOutputVars(t *testing.T) {
	if _, err := checkOutputVars(nil); err == nil {
		t.Error("expected an error for empty output variables")
	}
	got, err := checkOutputVars(map[string]string{"carbon": "[n_CO2(aq)] +\n[n_HCO3-]"})
	if err != nil {
		t.Fatal(err)
	}
	if want := "[n_CO2(aq)] + [n_HCO3-]"; got["carbon"] != want {
		t.Errorf("%q != %q", got["carbon"], want)
	}
}

func TestGetStringMapString(t *testing.T) {
	cfg := viper.New()
	want := map[string]string{"T": "T", "pH": "pH"}

	cfg.Set("fromConfig", map[string]interface{}{"T": "T", "pH": "pH"})
	if got := GetStringMapString("fromConfig", cfg); !reflect.DeepEqual(got, want) {
		t.Errorf("%v != %v", got, want)
	}

	// Command-line arguments arrive as JSON.
	cfg.Set("fromFlag", `{"T": "T", "pH": "pH"}`)
	if got := GetStringMapString("fromFlag", cfg); !reflect.DeepEqual(got, want) {
		t.Errorf("%v != %v", got, want)
	}

	// Numeric values, as in the InitialAmounts variable, convert to
	// strings and back to numbers without losing precision.
	cfg.Set("amounts", map[string]interface{}{"H2O(l)": 55.508})
	a, err := amounts(GetStringMapString("amounts", cfg))
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(a["H2O(l)"]-55.508) > 1e-12 {
		t.Errorf("H2O(l) = %g, want 55.508", a["H2O(l)"])
	}
}
