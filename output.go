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
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"

	"github.com/Knetic/govaluate"
)

// An Outputter computes user-defined quantities from chemical states.
//
// outputVariables maps the names of the quantities to expressions
// that define how they are calculated. Expressions can use the
// built-in quantities
//
//	T              temperature [K]
//	P              pressure [Pa]
//	pH             -log10 of the H+ activity (when the system has H+)
//	n_<species>    species amount [mol]
//	a_<species>    species activity
//	b_<element>    element amount [mol]
//	v_<phase>      phase volume [m3]
//
// as well as functions. Quantity names containing characters such as
// '+' or '(' must be escaped in expressions with brackets, for
// example "[a_H+]". Functions are defined in the outputFunctions
// variable.
type Outputter struct {
	system          *System
	names           []string
	expressions     map[string]*govaluate.EvaluableExpression
	outputFunctions map[string]govaluate.ExpressionFunction
}

// NewOutputter initializes a new Outputter and adds a set of default
// output functions. Default functions include 'exp(x)', 'log(x)'
// (natural), 'log10(x)', 'sqrt(x)', 'min(x, y)', and 'max(x, y)'.
// Expressions are compiled here, and every quantity they reference is
// checked against the system, so that a misspelled quantity fails
// before any state is evaluated.
func NewOutputter(sys *System, outputVariables map[string]string, outputFunctions map[string]govaluate.ExpressionFunction) (*Outputter, error) {
	oneArg := func(name string, f func(float64) float64) govaluate.ExpressionFunction {
		return func(arg ...interface{}) (interface{}, error) {
			if len(arg) != 1 {
				return nil, fmt.Errorf("chemeq: got %d arguments for function '%s', but needs 1", len(arg), name)
			}
			return f(arg[0].(float64)), nil
		}
	}
	twoArg := func(name string, f func(float64, float64) float64) govaluate.ExpressionFunction {
		return func(arg ...interface{}) (interface{}, error) {
			if len(arg) != 2 {
				return nil, fmt.Errorf("chemeq: got %d arguments for function '%s', but needs 2", len(arg), name)
			}
			return f(arg[0].(float64), arg[1].(float64)), nil
		}
	}
	defaultOutputFuncs := map[string]govaluate.ExpressionFunction{
		"exp":   oneArg("exp", math.Exp),
		"log":   oneArg("log", math.Log),
		"log10": oneArg("log10", math.Log10),
		"sqrt":  oneArg("sqrt", math.Sqrt),
		"min":   twoArg("min", math.Min),
		"max":   twoArg("max", math.Max),
	}
	for key, val := range outputFunctions {
		defaultOutputFuncs[key] = val
	}

	o := &Outputter{
		system:          sys,
		expressions:     make(map[string]*govaluate.EvaluableExpression, len(outputVariables)),
		outputFunctions: defaultOutputFuncs,
	}
	valid := o.validQuantities()
	for name, val := range outputVariables {
		expression, err := govaluate.NewEvaluableExpressionWithFunctions(val, defaultOutputFuncs)
		if err != nil {
			return nil, fmt.Errorf("chemeq: output variable %q: %v", name, err)
		}
		for _, v := range expression.Vars() {
			if _, ok := valid[v]; !ok {
				return nil, fmt.Errorf("chemeq: output variable %q uses unknown quantity %q; "+
					"valid quantities are T, P, pH, n_<species>, a_<species>, b_<element>, and v_<phase>", name, v)
			}
		}
		o.expressions[name] = expression
		o.names = append(o.names, name)
	}
	sort.Strings(o.names)
	return o, nil
}

func (o *Outputter) validQuantities() map[string]struct{} {
	valid := map[string]struct{}{"T": {}, "P": {}}
	for _, sp := range o.system.Species() {
		valid["n_"+sp.Name] = struct{}{}
		valid["a_"+sp.Name] = struct{}{}
	}
	for _, el := range o.system.Elements() {
		valid["b_"+el.Name] = struct{}{}
	}
	for _, ph := range o.system.Phases() {
		valid["v_"+ph.Name] = struct{}{}
	}
	if o.system.SpeciesIndex("H+") < o.system.NumSpecies() {
		valid["pH"] = struct{}{}
	}
	return valid
}

// Names returns the output variable names in the column order used by
// Row and WriteCSV.
func (o *Outputter) Names() []string {
	return append([]string(nil), o.names...)
}

// Eval computes every output variable at the given state.
func (o *Outputter) Eval(state *State) (map[string]float64, error) {
	if state.System() != o.system {
		return nil, fmt.Errorf("chemeq: the state belongs to a different chemical system than the outputter")
	}
	props, err := state.Properties()
	if err != nil {
		return nil, err
	}
	a := props.Activities()
	params := map[string]interface{}{
		"T": state.Temperature(),
		"P": state.Pressure(),
	}
	for i, sp := range o.system.Species() {
		params["n_"+sp.Name] = state.SpeciesAmount(i)
		params["a_"+sp.Name] = a.Val[i]
	}
	be := state.ElementAmounts()
	for k, el := range o.system.Elements() {
		params["b_"+el.Name] = be[k]
	}
	for ip, ph := range o.system.Phases() {
		params["v_"+ph.Name] = props.PhaseVolume(ip).Val
	}
	if ih := o.system.SpeciesIndex("H+"); ih < o.system.NumSpecies() {
		params["pH"] = -math.Log10(a.Val[ih])
	}

	out := make(map[string]float64, len(o.names))
	for name, expression := range o.expressions {
		v, err := expression.Evaluate(params)
		if err != nil {
			return nil, fmt.Errorf("chemeq: evaluating output variable %q: %v", name, err)
		}
		f, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("chemeq: output variable %q evaluated to %T, want a number", name, v)
		}
		out[name] = f
	}
	return out, nil
}

// Row computes every output variable at the given state, ordered as
// Names.
func (o *Outputter) Row(state *State) ([]float64, error) {
	vals, err := o.Eval(state)
	if err != nil {
		return nil, err
	}
	row := make([]float64, len(o.names))
	for i, name := range o.names {
		row[i] = vals[name]
	}
	return row, nil
}

// WriteCSV writes a header row followed by one row of output
// variables per state.
func (o *Outputter) WriteCSV(w io.Writer, states []*State) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(o.names); err != nil {
		return fmt.Errorf("chemeq: writing output header: %v", err)
	}
	record := make([]string, len(o.names))
	for _, state := range states {
		row, err := o.Row(state)
		if err != nil {
			return err
		}
		for i, v := range row {
			record[i] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("chemeq: writing output row: %v", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("chemeq: writing output: %v", err)
	}
	return nil
}
