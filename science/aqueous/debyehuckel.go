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

package aqueous

import (
	"fmt"
	"math"

	"github.com/chemmodel/chemeq"
	"github.com/chemmodel/chemeq/science/water"
)

// Coefficients of the dielectric constant correlation of Bradley and
// Pitzer (1979), J. Phys. Chem. 83, 1599, valid from 273 K to 623 K
// and up to 5 kbar.
var dielectricCoeffs = [9]float64{
	3.4279e2, -5.0866e-3, 9.4690e-7, -2.0525, 3.1159e3,
	-1.8289e2, -8.0325e3, 4.2142e6, 2.1417,
}

// Dielectric calculates the static dielectric constant of water at
// temperature T (K) and pressure P (Pa), with its derivatives with
// respect to temperature and pressure, from the correlation of
// Bradley and Pitzer.
func Dielectric(T, P float64) chemeq.ThermoScalar {
	u := dielectricCoeffs
	bar := P / 1e5

	e1000 := u[0] * math.Exp(u[1]*T+u[2]*T*T)
	e1000T := e1000 * (u[1] + 2*u[2]*T)
	c := u[3] + u[4]/(u[5]+T)
	cT := -u[4] / ((u[5] + T) * (u[5] + T))
	b := u[6] + u[7]/T + u[8]*T
	bT := -u[7]/(T*T) + u[8]

	lr := math.Log((b + bar) / (b + 1000))
	var eps chemeq.ThermoScalar
	eps.Val = e1000 + c*lr
	eps.DDT = e1000T + cT*lr + c*(bT/(b+bar)-bT/(b+1000))
	eps.DDP = c / (b + bar) * 1e-5
	return eps
}

// debyeHuckelAB calculates the Debye–Hückel A ((kg/mol)^½, decimal
// log basis) and B (1/(Å·(kg/mol)^½)) parameters from the density
// state of water ts and its dielectric constant eps, with temperature
// and pressure derivatives.
func debyeHuckelAB(T float64, ts water.ThermoState, eps chemeq.ThermoScalar) (A, B chemeq.ThermoScalar) {
	// Density enters in g/cm³; the ratios below make the unit
	// conversion factors cancel.
	rho := ts.Density / 1000
	dT := ts.DensityT / ts.Density
	dP := ts.DensityP / ts.Density
	eT := (eps.DDT*T + eps.Val) / (eps.Val * T)
	eP := eps.DDP / eps.Val

	A.Val = 1.824829238e6 * math.Sqrt(rho) * math.Pow(eps.Val*T, -1.5)
	A.DDT = A.Val * (dT/2 - 1.5*eT)
	A.DDP = A.Val * (dP/2 - 1.5*eP)

	B.Val = 50.29158649 * math.Sqrt(rho) / math.Sqrt(eps.Val*T)
	B.DDT = B.Val * (dT/2 - eT/2)
	B.DDP = B.Val * (dP/2 - eP/2)
	return A, B
}

// defaultIonSize is the effective ion size parameter (Å) used for
// charged species without an entry in the size table.
const defaultIonSize = 4.0

// ln10 converts decimal logarithms to natural ones.
var ln10 = math.Log(10)

// DebyeHuckel returns an activity model for the species of mix using
// the extended Debye–Hückel equation: for a charged species,
// log γᵢ = −A zᵢ² √I/(1 + B åᵢ √I) at the effective ionic strength I,
// with A and B calculated from the density and dielectric constant of
// water at T and P. Neutral solutes have unit activity coefficients,
// and the water activity follows the ideal osmotic relation
// ln a_w = −Mw·Σmᵢ over the solutes.
//
// size maps species names to effective ion size parameters å (Å);
// charged species not in the map (or all of them, when size is nil)
// use a size of 4 Å. The returned function indexes its amounts the
// same way as mix.
func DebyeHuckel(mix *Mixture, size map[string]float64) chemeq.ActivityFn {
	a := make([]float64, mix.NumCharged())
	for j, ic := range mix.Charged() {
		a[j] = defaultIonSize
		if s, ok := size[mix.Species(ic).Name]; ok {
			a[j] = s
		}
	}

	return func(T, P float64, n []float64) (chemeq.ChemicalVector, error) {
		if len(n) != mix.NumSpecies() {
			return chemeq.ChemicalVector{}, fmt.Errorf(
				"aqueous: %d species amounts for a %d species mixture",
				len(n), mix.NumSpecies())
		}
		ts, err := water.StateWagnerPruss(T, P)
		if err != nil {
			return chemeq.ChemicalVector{}, fmt.Errorf("aqueous: %w", err)
		}
		A, B := debyeHuckelAB(T, ts, Dielectric(T, P))

		st := mix.State(T, P, n)
		sqrtI := math.Sqrt(st.Ie.Val)
		iw := mix.WaterIndex()

		v := chemeq.NewChemicalVector(len(n), len(n))

		// Solutes: ln a = ln m + ln γ.
		for i := range n {
			if i == iw {
				continue
			}
			mi := math.Max(st.M.Val[i], amountFloor)
			v.Val[i] = math.Log(mi)
			for k := range n {
				v.DDN.Set(i, k, st.M.DDN.At(i, k)/mi)
			}
		}
		for j, ic := range mix.Charged() {
			z2 := mix.Species(ic).Charge * mix.Species(ic).Charge
			den := 1 + B.Val*a[j]*sqrtI
			lg := -ln10 * A.Val * z2 * sqrtI / den

			v.Val[ic] += lg
			v.DDT[ic] = -ln10*z2*sqrtI/den*A.DDT +
				ln10*A.Val*z2*sqrtI*a[j]*sqrtI/(den*den)*B.DDT
			v.DDP[ic] = -ln10*z2*sqrtI/den*A.DDP +
				ln10*A.Val*z2*sqrtI*a[j]*sqrtI/(den*den)*B.DDP
			if sqrtI > 0 {
				// d(ln γ)/dI at fixed A and B.
				dlgdI := -ln10 * A.Val * z2 / (2 * sqrtI * den * den)
				for k := range n {
					v.DDN.Set(ic, k, v.DDN.At(ic, k)+dlgdI*st.Ie.DDN[k])
				}
			}
		}

		// Water: ln a_w = −Mw·Σ of the solute molalities.
		var msum float64
		for i := range n {
			if i == iw {
				continue
			}
			msum += st.M.Val[i]
			for k := range n {
				v.DDN.Set(iw, k, v.DDN.At(iw, k)-
					chemeq.WaterMolarMass*st.M.DDN.At(i, k))
			}
		}
		v.Val[iw] = -chemeq.WaterMolarMass * msum

		return v, nil
	}
}
