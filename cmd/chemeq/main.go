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

// Command chemeq is a command-line interface for the ChemEq
// multiphase chemical equilibrium and kinetics model.
package main

import (
	"fmt"
	"os"

	"github.com/chemmodel/chemeq/chemequtil"
)

func main() {
	if err := chemequtil.Root.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(-1)
	}
}
