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

package water

import "math"

// This file implements the Wagner–Pruss formulation for the Helmholtz
// free energy of water (W. Wagner and A. Pruß (2002), The IAPWS
// formulation 1995 for the thermodynamic properties of ordinary water
// substance for general and scientific use, J. Phys. Chem. Ref. Data
// 31, 387–535). The dimensionless Helmholtz energy
// φ(δ,τ) = φ°(δ,τ) + φʳ(δ,τ) is a function of the reduced density
// δ = D/Dc and inverse reduced temperature τ = Tc/T, and the residual
// part φʳ is a sum of polynomial, exponential, Gaussian, and two
// critical-region terms.
//
// Downstream thermodynamic models need third-order derivatives of the
// specific Helmholtz energy, so every term is evaluated as a jet: the
// term's value together with its eight partial derivatives
// (δ, δδ, δδδ, τ, ττ, τδ, ττδ, τδδ). Jets compose by the product and
// chain rules, which keeps the high-order algebra in one place instead
// of spread over per-term formulas.

// A jet holds the value of a function of (δ, τ) and its partial
// derivatives up to the orders needed by HelmholtzState. Slot names
// give the differentiation orders: d slots are δ derivatives, t slots
// are τ derivatives.
type jet struct {
	v, d, dd, ddd float64
	t, tt, td     float64
	ttd, tdd      float64
}

func addJet(a, b jet) jet {
	return jet{
		v: a.v + b.v, d: a.d + b.d, dd: a.dd + b.dd, ddd: a.ddd + b.ddd,
		t: a.t + b.t, tt: a.tt + b.tt, td: a.td + b.td,
		ttd: a.ttd + b.ttd, tdd: a.tdd + b.tdd,
	}
}

func scaleJet(a jet, c float64) jet {
	return jet{
		v: c * a.v, d: c * a.d, dd: c * a.dd, ddd: c * a.ddd,
		t: c * a.t, tt: c * a.tt, td: c * a.td,
		ttd: c * a.ttd, tdd: c * a.tdd,
	}
}

// mulJet applies the product rule slot by slot.
func mulJet(a, b jet) jet {
	return jet{
		v:   a.v * b.v,
		d:   a.d*b.v + a.v*b.d,
		dd:  a.dd*b.v + 2*a.d*b.d + a.v*b.dd,
		ddd: a.ddd*b.v + 3*a.dd*b.d + 3*a.d*b.dd + a.v*b.ddd,
		t:   a.t*b.v + a.v*b.t,
		tt:  a.tt*b.v + 2*a.t*b.t + a.v*b.tt,
		td:  a.td*b.v + a.t*b.d + a.d*b.t + a.v*b.td,
		ttd: a.ttd*b.v + a.tt*b.d + 2*(a.td*b.t+a.t*b.td) +
			a.d*b.tt + a.v*b.ttd,
		tdd: a.tdd*b.v + a.dd*b.t + 2*(a.td*b.d+a.d*b.td) +
			a.t*b.dd + a.v*b.tdd,
	}
}

// chainJet composes g∘a for a scalar function g with derivatives
// g1, g2, g3 evaluated at a.v.
func chainJet(a jet, g, g1, g2, g3 float64) jet {
	return jet{
		v:   g,
		d:   g1 * a.d,
		dd:  g2*a.d*a.d + g1*a.dd,
		ddd: g3*a.d*a.d*a.d + 3*g2*a.d*a.dd + g1*a.ddd,
		t:   g1 * a.t,
		tt:  g2*a.t*a.t + g1*a.tt,
		td:  g2*a.t*a.d + g1*a.td,
		ttd: g3*a.t*a.t*a.d + g2*(2*a.t*a.td+a.tt*a.d) + g1*a.ttd,
		tdd: g3*a.d*a.d*a.t + g2*(2*a.d*a.td+a.dd*a.t) + g1*a.tdd,
	}
}

func powJet(a jet, p float64) jet {
	return chainJet(a,
		math.Pow(a.v, p),
		p*math.Pow(a.v, p-1),
		p*(p-1)*math.Pow(a.v, p-2),
		p*(p-1)*(p-2)*math.Pow(a.v, p-3))
}

func expJet(a jet) jet {
	e := math.Exp(a.v)
	return chainJet(a, e, e, e, e)
}

// Coefficients of the ideal-gas part
// φ° = ln δ + n₁ + n₂τ + n₃ ln τ + Σ nᵢ ln(1−exp(−γᵢτ)).
const (
	idealN1 = -8.3204464837497
	idealN2 = 6.6832105275932
	idealN3 = 3.00632
)

var idealEinstein = []struct{ n, gamma float64 }{
	{0.012436, 1.28728967},
	{0.97315, 3.53734222},
	{1.27950, 7.74073708},
	{0.96956, 9.24437796},
	{0.24873, 27.5075105},
}

// Polynomial residual terms n δᵈ τᵗ.
var residualPoly = []struct {
	n float64
	d int
	t float64
}{
	{0.12533547935523e-1, 1, -0.5},
	{0.78957634722828e1, 1, 0.875},
	{-0.87803203303561e1, 1, 1},
	{0.31802509345418, 2, 0.5},
	{-0.26145533859358, 2, 0.75},
	{-0.78199751687981e-2, 3, 0.375},
	{0.88089493102134e-2, 4, 1},
}

// Exponential residual terms n δᵈ τᵗ exp(−δᶜ).
var residualExp = []struct {
	n    float64
	c, d int
	t    float64
}{
	{-0.66856572307965, 1, 1, 4},
	{0.20433810950965, 1, 1, 6},
	{-0.66212605039687e-4, 1, 1, 12},
	{-0.19232721156002, 1, 2, 1},
	{-0.25709043003438, 1, 2, 5},
	{0.16074868486251, 1, 3, 4},
	{-0.40092828925807e-1, 1, 4, 2},
	{0.39343422603254e-6, 1, 4, 13},
	{-0.75941377088144e-5, 1, 5, 9},
	{0.56250979351888e-3, 1, 7, 3},
	{-0.15608652257135e-4, 1, 9, 4},
	{0.11537996422951e-8, 1, 10, 11},
	{0.36582165144204e-6, 1, 11, 4},
	{-0.13251180074668e-11, 1, 13, 13},
	{-0.62639586912454e-9, 1, 15, 1},
	{-0.10793600908932, 2, 1, 7},
	{0.17611491008752e-1, 2, 2, 1},
	{0.22132295167546, 2, 2, 9},
	{-0.40247669763528, 2, 2, 10},
	{0.58083399985759, 2, 3, 10},
	{0.49969146990806e-2, 2, 4, 3},
	{-0.31358700712549e-1, 2, 4, 7},
	{-0.74315929710341, 2, 4, 10},
	{0.47807329915480, 2, 5, 10},
	{0.20527940895948e-1, 2, 6, 6},
	{-0.13636435110343, 2, 6, 10},
	{0.14180634400617e-1, 2, 7, 10},
	{0.83326504880713e-2, 2, 9, 1},
	{-0.29052336009585e-1, 2, 9, 2},
	{0.38615085574206e-1, 2, 9, 3},
	{-0.20393486513704e-1, 2, 9, 4},
	{-0.16554050063734e-2, 2, 9, 8},
	{0.19955571979541e-2, 2, 10, 6},
	{0.15870308324157e-3, 2, 10, 9},
	{-0.16388568342530e-4, 2, 12, 8},
	{0.43613615723811e-1, 3, 3, 16},
	{0.34994005463765e-1, 3, 4, 22},
	{-0.76788197844621e-1, 3, 4, 23},
	{0.22446277332006e-1, 3, 5, 23},
	{-0.62689710414685e-4, 4, 14, 10},
	{-0.55711118565645e-9, 6, 3, 50},
	{-0.19905718354408, 6, 6, 44},
	{0.31777497330738, 6, 6, 46},
	{-0.11841182425981, 6, 6, 50},
}

// Gaussian residual terms n δᵈ τᵗ exp(−α(δ−ε)² − β(τ−γ)²).
var residualGauss = []struct {
	n                       float64
	d                       int
	t, alpha, beta, gam, ep float64
}{
	{-0.31306260323435e2, 3, 0, 20, 150, 1.21, 1},
	{0.31546140237781e2, 3, 1, 20, 150, 1.21, 1},
	{-0.25213154341695e4, 3, 4, 20, 250, 1.25, 1},
}

// Critical-region residual terms n Δᵇ δ ψ, with
// Δ = θ² + B s^a, θ = (1−τ) + A s^(1/(2β)), ψ = exp(−C s − D(τ−1)²),
// and s = (δ−1)².
var residualCrit = []struct {
	n, a, b, B, C, D, A, beta float64
}{
	{-0.14874640856724, 3.5, 0.85, 0.2, 28, 700, 0.32, 0.3},
	{0.31806110878444, 3.5, 0.95, 0.2, 32, 800, 0.32, 0.3},
}

// idealPart evaluates the ideal-gas part φ° of the dimensionless
// Helmholtz energy. The mixed δ–τ derivatives of φ° are zero.
func idealPart(delta, tau float64) jet {
	var f jet
	f.v = math.Log(delta) + idealN1 + idealN2*tau + idealN3*math.Log(tau)
	f.d = 1 / delta
	f.dd = -1 / (delta * delta)
	f.ddd = 2 / (delta * delta * delta)
	f.t = idealN2 + idealN3/tau
	f.tt = -idealN3 / (tau * tau)
	for _, c := range idealEinstein {
		e := math.Exp(-c.gamma * tau)
		f.v += c.n * math.Log(1-e)
		f.t += c.n * c.gamma * (1/(1-e) - 1)
		f.tt -= c.n * c.gamma * c.gamma * e / ((1 - e) * (1 - e))
	}
	return f
}

// residualPart evaluates the residual part φʳ of the dimensionless
// Helmholtz energy as a jet.
func residualPart(delta, tau float64) jet {
	dj := jet{v: delta, d: 1}
	tj := jet{v: tau, t: 1}

	var f jet
	for _, c := range residualPoly {
		term := mulJet(powJet(dj, float64(c.d)), powJet(tj, c.t))
		f = addJet(f, scaleJet(term, c.n))
	}
	for _, c := range residualExp {
		term := mulJet(powJet(dj, float64(c.d)), powJet(tj, c.t))
		term = mulJet(term, expJet(scaleJet(powJet(dj, float64(c.c)), -1)))
		f = addJet(f, scaleJet(term, c.n))
	}
	for _, c := range residualGauss {
		arg := jet{
			v: -c.alpha*(delta-c.ep)*(delta-c.ep) -
				c.beta*(tau-c.gam)*(tau-c.gam),
			d:  -2 * c.alpha * (delta - c.ep),
			dd: -2 * c.alpha,
			t:  -2 * c.beta * (tau - c.gam),
			tt: -2 * c.beta,
		}
		term := mulJet(powJet(dj, float64(c.d)), powJet(tj, c.t))
		term = mulJet(term, expJet(arg))
		f = addJet(f, scaleJet(term, c.n))
	}
	for _, c := range residualCrit {
		s := jet{v: (delta - 1) * (delta - 1), d: 2 * (delta - 1), dd: 2}
		theta := addJet(jet{v: 1 - tau, t: -1},
			scaleJet(powJet(s, 1/(2*c.beta)), c.A))
		bigDelta := addJet(mulJet(theta, theta),
			scaleJet(powJet(s, c.a), c.B))
		psi := expJet(addJet(scaleJet(s, -c.C), jet{
			v:  -c.D * (tau - 1) * (tau - 1),
			t:  -2 * c.D * (tau - 1),
			tt: -2 * c.D,
		}))
		term := mulJet(powJet(bigDelta, c.b), mulJet(dj, psi))
		f = addJet(f, scaleJet(term, c.n))
	}
	return f
}

// HelmholtzWagnerPruss calculates the Helmholtz free energy state of
// water at temperature T (K) and density D (kg/m³) using the
// Wagner–Pruss formulation.
func HelmholtzWagnerPruss(T, D float64) HelmholtzState {
	delta := D / CriticalDensity
	tau := CriticalTemperature / T

	// The two critical-region terms have fractional powers of (δ−1)²
	// whose factored derivatives are indeterminate on the critical
	// isochore, so evaluate just off it.
	if math.Abs(delta-1) < 1e-13 {
		delta = 1 + 1e-13
	}

	f := addJet(idealPart(delta, tau), residualPart(delta, tau))

	// Convert the dimensionless derivatives in (δ, τ) into specific
	// Helmholtz energy derivatives in (T, D), using A = RTφ,
	// ∂δ/∂D = 1/Dc and ∂τ/∂T = −τ/T.
	const R, Dc = gasConstant, CriticalDensity
	return HelmholtzState{
		Helmholtz:    R * T * f.v,
		HelmholtzT:   R * (f.v - tau*f.t),
		HelmholtzD:   R * T * f.d / Dc,
		HelmholtzTT:  R * tau * tau * f.tt / T,
		HelmholtzTD:  R * (f.d - tau*f.td) / Dc,
		HelmholtzDD:  R * T * f.dd / (Dc * Dc),
		HelmholtzTTD: R * tau * tau * f.ttd / (T * Dc),
		HelmholtzTDD: R * (f.dd - tau*f.tdd) / (Dc * Dc),
		HelmholtzDDD: R * T * f.ddd / (Dc * Dc * Dc),
	}
}
