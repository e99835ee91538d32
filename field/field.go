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

// Package field solves chemistry over collections of spatial points.
//
// A Solver holds one chemical state per point of a domain while all
// points share one immutable system, partition, and reaction set. It
// equilibrates and reacts the points concurrently and assembles
// per-point scalar quantities, together with their derivatives, into
// Field arrays suitable for coupling to transport codes and for
// NetCDF output.
package field

import (
	"github.com/ctessum/sparse"
)

// A Field holds one scalar quantity evaluated at every point of a
// solver domain. Val is always present; the derivative blocks are nil
// unless the field was assembled by one of the WithDiff methods.
type Field struct {
	// Val holds the quantity at each point, shaped [points].
	Val *sparse.DenseArray

	// DDT and DDP hold the partial derivatives of the quantity with
	// respect to temperature [1/K] and pressure [1/Pa] at fixed
	// composition, shaped [points].
	DDT, DDP *sparse.DenseArray

	// DDBe holds the derivatives of the quantity with respect to the
	// equilibrium element amounts [1/mol], propagated through the
	// equilibrium sensitivities of the most recent solve at each
	// point, shaped [points, elements].
	DDBe *sparse.DenseArray

	// DDNk holds the derivatives of the quantity with respect to the
	// kinetic species amounts [1/mol] at fixed equilibrium
	// composition, shaped [points, species].
	DDNk *sparse.DenseArray
}

// newField allocates a field over np points. The derivative blocks
// exist only when withDiff is set, and the element and kinetic blocks
// only when the partition gives them columns.
func newField(np, nbe, nk int, withDiff bool) *Field {
	f := &Field{Val: sparse.ZerosDense(np)}
	if !withDiff {
		return f
	}
	f.DDT = sparse.ZerosDense(np)
	f.DDP = sparse.ZerosDense(np)
	if nbe > 0 {
		f.DDBe = sparse.ZerosDense(np, nbe)
	}
	if nk > 0 {
		f.DDNk = sparse.ZerosDense(np, nk)
	}
	return f
}

// NumPoints returns the number of points the field covers.
func (f *Field) NumPoints() int { return f.Val.Shape[0] }
