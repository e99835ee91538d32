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
	"fmt"
	"strconv"
)

// ParseFormula parses a chemical formula such as "H2O", "CaCO3",
// "CaMg(CO3)2", "Fe+++", or "SO4-2" into an element to coefficient
// map and an electric charge. A charge suffix is either a run of '+'
// or '-' characters, one unit each, or a single '+' or '-' followed
// by the charge magnitude.
func ParseFormula(s string) (map[string]float64, float64, error) {
	p := &formulaParser{s: s}
	formula := map[string]float64{}
	if err := p.parseGroup(formula, 1, 0); err != nil {
		return nil, 0, err
	}
	charge, err := p.parseCharge()
	if err != nil {
		return nil, 0, err
	}
	if p.i != len(p.s) {
		return nil, 0, p.errorf("unexpected character %q", p.s[p.i])
	}
	if len(formula) == 0 {
		return nil, 0, fmt.Errorf("chemeq: formula %q contains no elements", s)
	}
	return formula, charge, nil
}

type formulaParser struct {
	s string
	i int
}

func (p *formulaParser) errorf(format string, args ...interface{}) error {
	return fmt.Errorf("chemeq: invalid formula %q at position %d: %s", p.s, p.i, fmt.Sprintf(format, args...))
}

// parseGroup reads element and parenthesized sub-group units until the
// formula ends, a closing parenthesis at this depth, or a charge
// suffix begins. Coefficients multiply through by factor.
func (p *formulaParser) parseGroup(formula map[string]float64, factor float64, depth int) error {
	for p.i < len(p.s) {
		c := p.s[p.i]
		switch {
		case c == '(':
			p.i++
			group := map[string]float64{}
			if err := p.parseGroup(group, 1, depth+1); err != nil {
				return err
			}
			if p.i >= len(p.s) || p.s[p.i] != ')' {
				return p.errorf("missing closing parenthesis")
			}
			p.i++
			count, err := p.parseCount()
			if err != nil {
				return err
			}
			for el, v := range group {
				formula[el] += factor * count * v
			}
		case c == ')':
			if depth == 0 {
				return p.errorf("unmatched closing parenthesis")
			}
			return nil
		case c == '+' || c == '-':
			if depth != 0 {
				return p.errorf("charge suffix inside parentheses")
			}
			return nil
		case c >= 'A' && c <= 'Z':
			start := p.i
			p.i++
			for p.i < len(p.s) && p.s[p.i] >= 'a' && p.s[p.i] <= 'z' {
				p.i++
			}
			el := p.s[start:p.i]
			count, err := p.parseCount()
			if err != nil {
				return err
			}
			formula[el] += factor * count
		default:
			return p.errorf("unexpected character %q", c)
		}
	}
	return nil
}

// parseCount reads an optional numeric coefficient, defaulting to 1.
func (p *formulaParser) parseCount() (float64, error) {
	start := p.i
	for p.i < len(p.s) && (p.s[p.i] >= '0' && p.s[p.i] <= '9' || p.s[p.i] == '.') {
		p.i++
	}
	if p.i == start {
		return 1, nil
	}
	v, err := strconv.ParseFloat(p.s[start:p.i], 64)
	if err != nil {
		return 0, p.errorf("invalid coefficient %q", p.s[start:p.i])
	}
	return v, nil
}

// parseCharge reads an optional trailing charge suffix.
func (p *formulaParser) parseCharge() (float64, error) {
	if p.i >= len(p.s) {
		return 0, nil
	}
	sign := 0.0
	switch p.s[p.i] {
	case '+':
		sign = 1
	case '-':
		sign = -1
	default:
		return 0, nil
	}
	first := p.s[p.i]
	run := 0
	for p.i < len(p.s) && p.s[p.i] == first {
		run++
		p.i++
	}
	if p.i < len(p.s) {
		start := p.i
		for p.i < len(p.s) && p.s[p.i] >= '0' && p.s[p.i] <= '9' {
			p.i++
		}
		if p.i > start {
			if run != 1 {
				return 0, p.errorf("charge magnitude after repeated sign")
			}
			v, err := strconv.ParseFloat(p.s[start:p.i], 64)
			if err != nil {
				return 0, p.errorf("invalid charge %q", p.s[start:p.i])
			}
			return sign * v, nil
		}
	}
	return sign * float64(run), nil
}
