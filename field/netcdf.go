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
	"fmt"
	"sort"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
)

// WriteNetCDF writes the given fields to w in NetCDF format. Each
// field is stored under its map key, with the derivative blocks it
// carries as companion variables suffixed _ddt, _ddp, _ddbe, and
// _ddnk. All fields must cover the same number of points, and fields
// carrying element or kinetic blocks must agree on the column counts.
func WriteNetCDF(w cdf.ReaderWriterAt, fields map[string]*Field) error {
	if len(fields) == 0 {
		return fmt.Errorf("field: there are no fields to write")
	}
	// Sort the names so variables write in the same order every time.
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	np, nbe, nk := -1, 0, 0
	for _, name := range names {
		f := fields[name]
		if f == nil || f.Val == nil {
			return fmt.Errorf("field: field %q has no values", name)
		}
		if np < 0 {
			np = f.Val.Shape[0]
		} else if f.Val.Shape[0] != np {
			return fmt.Errorf("field: field %q covers %d points but %q covers %d",
				name, f.Val.Shape[0], names[0], np)
		}
		if f.DDBe != nil {
			if nbe > 0 && f.DDBe.Shape[1] != nbe {
				return fmt.Errorf("field: field %q has %d element derivative columns, earlier fields have %d",
					name, f.DDBe.Shape[1], nbe)
			}
			nbe = f.DDBe.Shape[1]
		}
		if f.DDNk != nil {
			if nk > 0 && f.DDNk.Shape[1] != nk {
				return fmt.Errorf("field: field %q has %d kinetic derivative columns, earlier fields have %d",
					name, f.DDNk.Shape[1], nk)
			}
			nk = f.DDNk.Shape[1]
		}
	}

	dims := []string{"points"}
	lens := []int{np}
	if nbe > 0 {
		dims = append(dims, "elements")
		lens = append(lens, nbe)
	}
	if nk > 0 {
		dims = append(dims, "kinetics")
		lens = append(lens, nk)
	}
	h := cdf.NewHeader(dims, lens)
	for _, name := range names {
		f := fields[name]
		h.AddVariable(name, []string{"points"}, []float64{0.})
		if f.DDT != nil {
			h.AddVariable(name+"_ddt", []string{"points"}, []float64{0.})
			h.AddAttribute(name+"_ddt", "description", fmt.Sprintf("temperature derivative of %s", name))
		}
		if f.DDP != nil {
			h.AddVariable(name+"_ddp", []string{"points"}, []float64{0.})
			h.AddAttribute(name+"_ddp", "description", fmt.Sprintf("pressure derivative of %s", name))
		}
		if f.DDBe != nil {
			h.AddVariable(name+"_ddbe", []string{"points", "elements"}, []float64{0.})
			h.AddAttribute(name+"_ddbe", "description", fmt.Sprintf("equilibrium element amount derivatives of %s", name))
		}
		if f.DDNk != nil {
			h.AddVariable(name+"_ddnk", []string{"points", "kinetics"}, []float64{0.})
			h.AddAttribute(name+"_ddnk", "description", fmt.Sprintf("kinetic species amount derivatives of %s", name))
		}
	}
	h.Define()
	for _, err := range h.Check() {
		if err != nil {
			return fmt.Errorf("field: building netcdf header: %v", err)
		}
	}

	f, err := cdf.Create(w, h)
	if err != nil {
		return fmt.Errorf("field: creating netcdf file: %v", err)
	}
	for _, name := range names {
		fl := fields[name]
		blocks := []struct {
			v    string
			data *sparse.DenseArray
		}{
			{name, fl.Val},
			{name + "_ddt", fl.DDT},
			{name + "_ddp", fl.DDP},
			{name + "_ddbe", fl.DDBe},
			{name + "_ddnk", fl.DDNk},
		}
		for _, b := range blocks {
			if b.data == nil {
				continue
			}
			if err := writeNCF(f, b.v, b.data); err != nil {
				return err
			}
		}
	}
	return nil
}

// writeNCF writes one variable to an open netcdf file.
func writeNCF(f *cdf.File, v string, data *sparse.DenseArray) error {
	end := f.Header.Lengths(v)
	start := make([]int, len(end))
	w := f.Writer(v, start, end)
	if _, err := w.Write(data.Elements); err != nil {
		return fmt.Errorf("field: writing netcdf variable %s: %v", v, err)
	}
	return nil
}
