/*
Copyright © 2017 the ChemEq authors.
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

import "gonum.org/v1/gonum/mat"

// A ThermoScalar is a scalar thermodynamic quantity together with its
// partial derivatives with respect to temperature and pressure.
type ThermoScalar struct {
	Val float64 // value
	DDT float64 // derivative with respect to temperature [1/K]
	DDP float64 // derivative with respect to pressure [1/Pa]
}

// A ChemicalScalar is a scalar quantity of a chemical system together
// with its partial derivatives with respect to temperature, pressure,
// and the amounts of the system species.
type ChemicalScalar struct {
	Val float64
	DDT float64
	DDP float64
	DDN []float64 // derivatives with respect to species amounts [1/mol]
}

// NewChemicalScalar returns a zero ChemicalScalar with an amount
// derivative slot for each of n species.
func NewChemicalScalar(n int) ChemicalScalar {
	return ChemicalScalar{DDN: make([]float64, n)}
}

// A ChemicalVector is a vector quantity of a chemical system together
// with its partial derivatives with respect to temperature, pressure,
// and the amounts of the system species. Row i of DDN holds the
// amount derivatives of Val[i].
type ChemicalVector struct {
	Val []float64
	DDT []float64
	DDP []float64
	DDN *mat.Dense
}

// NewChemicalVector returns a zero ChemicalVector holding rows
// quantities differentiated with respect to cols species amounts.
func NewChemicalVector(rows, cols int) ChemicalVector {
	return ChemicalVector{
		Val: make([]float64, rows),
		DDT: make([]float64, rows),
		DDP: make([]float64, rows),
		DDN: mat.NewDense(rows, cols, nil),
	}
}

// Len returns the number of entries in the vector.
func (v ChemicalVector) Len() int { return len(v.Val) }
