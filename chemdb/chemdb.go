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

// Package chemdb loads chemical species databases from TOML files.
//
// A database file is a sequence of [[species]] tables. Each table
// names a species, gives its elemental formula and charge, assigns it
// to a phase kind, and carries the standard-state properties and
// Maier-Kelley heat capacity coefficients from which the species
// thermodynamic property function is built. Mineral species may also
// carry a dissolution rate mechanism in the compact format accepted
// by chemeq.ParseMineralMechanism. For example:
//
//	[[species]]
//	name = "Halite"
//	formula = { Na = 1, Cl = 1 }
//	phase = "mineral"
//	mechanism = "logk = -0.21 mol/(m2*s), Ea = 7.4 kJ/mol"
//	thermo = { gf = -384138.0, hf = -411260.0, s0 = 72.1, v0 = 2.7015e-5, a = 45.15, b = 1.797e-2 }
//
// All quantities are SI: J/mol for energies, J/(mol K) for entropies
// and heat capacities, m3/mol for volumes. Standard-state data are
// reported at chemeq.ReferenceTemperature and
// chemeq.ReferencePressure.
package chemdb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"runtime"

	"github.com/BurntSushi/toml"
	"github.com/ctessum/requestcache"

	"github.com/chemmodel/chemeq"
)

// ErrSpeciesNotFound is returned, wrapped, by database lookups for
// names that the database does not contain.
var ErrSpeciesNotFound = errors.New("species not found")

// A Database is an in-memory chemical species database. Databases are
// immutable after loading and may be shared among goroutines.
type Database struct {
	species map[string]entry
	names   []string // load order
}

type entry struct {
	sp      chemeq.Species
	kind    chemeq.PhaseKind
	mech    chemeq.MineralMechanism
	hasMech bool
}

// file is the top-level structure of a database file.
type file struct {
	Species []record
}

// A record is one [[species]] table of a database file.
type record struct {
	Name         string
	Formula      map[string]float64
	Charge       float64
	Phase        string
	Dissociation map[string]float64
	Mechanism    string
	Thermo       thermoRecord
}

// A thermoRecord holds the standard-state properties of one species
// at the reference temperature and pressure, together with the
// coefficients of the Maier-Kelley heat capacity polynomial
// Cp = a + b*T - c/T².
type thermoRecord struct {
	Gf float64 // standard Gibbs energy of formation [J/mol]
	Hf float64 // standard enthalpy of formation [J/mol]
	S0 float64 // standard entropy [J/(mol K)]
	V0 float64 // standard molar volume [m3/mol]
	A  float64 // Maier-Kelley a [J/(mol K)]
	B  float64 // Maier-Kelley b [J/(mol K2)]
	C  float64 // Maier-Kelley c [J K/mol]
}

// Load reads a TOML species database from r.
func Load(r io.Reader) (*Database, error) {
	var f file
	if _, err := toml.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("chemdb: %v", err)
	}
	return build(f)
}

// LoadFile reads the TOML species database in the named file.
func LoadFile(path string) (*Database, error) {
	var f file
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("chemdb: %v", err)
	}
	return build(f)
}

func build(f file) (*Database, error) {
	db := &Database{species: make(map[string]entry, len(f.Species))}
	for i, r := range f.Species {
		if r.Name == "" {
			return nil, fmt.Errorf("chemdb: species %d has no name", i)
		}
		if _, ok := db.species[r.Name]; ok {
			return nil, fmt.Errorf("chemdb: duplicate species %q", r.Name)
		}
		if len(r.Formula) == 0 {
			return nil, fmt.Errorf("chemdb: species %q has no formula", r.Name)
		}
		if _, ok := r.Formula[chemeq.ChargeElement]; ok {
			return nil, fmt.Errorf("chemdb: species %q: formula may not contain the reserved element %q",
				r.Name, chemeq.ChargeElement)
		}
		kind, err := parsePhase(r.Phase)
		if err != nil {
			return nil, fmt.Errorf("chemdb: species %q: %v", r.Name, err)
		}
		if kind != chemeq.AqueousPhase && r.Charge != 0 {
			return nil, fmt.Errorf("chemdb: %v species %q has charge %g", kind, r.Name, r.Charge)
		}
		if len(r.Dissociation) > 0 && (kind != chemeq.AqueousPhase || r.Charge != 0) {
			return nil, fmt.Errorf("chemdb: species %q: only neutral aqueous species may dissociate", r.Name)
		}
		e := entry{
			sp: chemeq.Species{
				Name:         r.Name,
				Formula:      r.Formula,
				Charge:       r.Charge,
				Dissociation: r.Dissociation,
				Thermo:       maierKelley(r.Thermo),
			},
			kind: kind,
		}
		if r.Mechanism != "" {
			if kind != chemeq.MineralPhase {
				return nil, fmt.Errorf("chemdb: species %q: rate mechanisms apply to mineral species only", r.Name)
			}
			m, err := chemeq.ParseMineralMechanism(r.Mechanism)
			if err != nil {
				return nil, fmt.Errorf("chemdb: species %q: %v", r.Name, err)
			}
			e.mech = m
			e.hasMech = true
		}
		db.species[r.Name] = e
		db.names = append(db.names, r.Name)
	}
	return db, nil
}

func parsePhase(s string) (chemeq.PhaseKind, error) {
	switch s {
	case "aqueous":
		return chemeq.AqueousPhase, nil
	case "gaseous":
		return chemeq.GaseousPhase, nil
	case "mineral":
		return chemeq.MineralPhase, nil
	}
	return 0, fmt.Errorf("unknown phase %q; want aqueous, gaseous, or mineral", s)
}

// maierKelley builds the thermodynamic property function for a
// database record. The Gibbs energy is integrated from the reference
// state along the Maier-Kelley heat capacity polynomial, with a
// constant-volume pressure correction; gaseous records carry a zero
// volume because their pressure dependence belongs to the activity
// model. Enthalpy is derived as H = G + T*S rather than integrated
// from the record enthalpy of formation, so that reaction enthalpies
// stay exactly consistent with the temperature derivative of reaction
// Gibbs energies.
func maierKelley(r thermoRecord) chemeq.ThermoFn {
	return func(T, P float64) chemeq.SpeciesThermo {
		const tr = chemeq.ReferenceTemperature
		cpdT := r.A*(T-tr) + 0.5*r.B*(T*T-tr*tr) + r.C*(1/T-1/tr)
		cpdlnT := r.A*math.Log(T/tr) + r.B*(T-tr) + 0.5*r.C*(1/(T*T)-1/(tr*tr))
		s := r.S0 + cpdlnT
		g := r.Gf - r.S0*(T-tr) + cpdT - T*cpdlnT + r.V0*(P-chemeq.ReferencePressure)
		return chemeq.SpeciesThermo{
			Gibbs:    g,
			Enthalpy: g + T*s,
			Entropy:  s,
			Volume:   r.V0,
		}
	}
}

// Len returns the number of species in the database.
func (db *Database) Len() int { return len(db.names) }

// Names returns the names of all database species in load order.
func (db *Database) Names() []string {
	out := make([]string, len(db.names))
	copy(out, db.names)
	return out
}

// Species returns the named species. The error unwraps to
// ErrSpeciesNotFound when the database does not contain the name.
func (db *Database) Species(name string) (chemeq.Species, error) {
	e, ok := db.species[name]
	if !ok {
		return chemeq.Species{}, fmt.Errorf("chemdb: %w: %q", ErrSpeciesNotFound, name)
	}
	return e.sp, nil
}

// Select resolves names into species values, preserving order.
func (db *Database) Select(names ...string) ([]chemeq.Species, error) {
	out := make([]chemeq.Species, len(names))
	for i, name := range names {
		sp, err := db.Species(name)
		if err != nil {
			return nil, err
		}
		out[i] = sp
	}
	return out, nil
}

// Kind returns the phase classification of the named species.
func (db *Database) Kind(name string) (chemeq.PhaseKind, error) {
	e, ok := db.species[name]
	if !ok {
		return 0, fmt.Errorf("chemdb: %w: %q", ErrSpeciesNotFound, name)
	}
	return e.kind, nil
}

// OfKind returns all database species of the given phase kind, in
// load order.
func (db *Database) OfKind(kind chemeq.PhaseKind) []chemeq.Species {
	var out []chemeq.Species
	for _, name := range db.names {
		if e := db.species[name]; e.kind == kind {
			out = append(out, e.sp)
		}
	}
	return out
}

// Mechanism returns the dissolution rate mechanism of the named
// mineral species.
func (db *Database) Mechanism(name string) (chemeq.MineralMechanism, error) {
	e, ok := db.species[name]
	if !ok {
		return chemeq.MineralMechanism{}, fmt.Errorf("chemdb: %w: %q", ErrSpeciesNotFound, name)
	}
	if !e.hasMech {
		return chemeq.MineralMechanism{}, fmt.Errorf("chemdb: species %q has no rate mechanism", name)
	}
	return e.mech, nil
}

// Phase assembles a chemeq.Phase of the given kind from named
// database species. Every named species must be classified under the
// requested kind.
func (db *Database) Phase(name string, kind chemeq.PhaseKind, species ...string) (chemeq.Phase, error) {
	sps := make([]chemeq.Species, len(species))
	for i, spName := range species {
		e, ok := db.species[spName]
		if !ok {
			return chemeq.Phase{}, fmt.Errorf("chemdb: %w: %q", ErrSpeciesNotFound, spName)
		}
		if e.kind != kind {
			return chemeq.Phase{}, fmt.Errorf("chemdb: species %q is %v, not %v", spName, e.kind, kind)
		}
		sps[i] = e.sp
	}
	return chemeq.Phase{Name: name, Kind: kind, Species: sps}, nil
}

// Memoize wraps fn with an in-memory cache holding up to maxEntries
// distinct (T, P) evaluations. Field calculations evaluate standard
// properties once per grid point, and points commonly share a
// temperature and pressure; the cache serves those repeats. The
// returned function is concurrency-safe as long as fn is pure.
func Memoize(fn chemeq.ThermoFn, maxEntries int) chemeq.ThermoFn {
	type tpRequest struct {
		t, p float64
	}
	cache := requestcache.NewCache(func(ctx context.Context, request interface{}) (interface{}, error) {
		r := request.(tpRequest)
		return fn(r.t, r.p), nil
	}, runtime.GOMAXPROCS(-1),
		requestcache.Deduplicate(), requestcache.Memory(maxEntries))
	return func(T, P float64) chemeq.SpeciesThermo {
		req := cache.NewRequest(context.TODO(), tpRequest{t: T, p: P},
			fmt.Sprintf("%x_%x", math.Float64bits(T), math.Float64bits(P)))
		result, err := req.Result()
		if err != nil {
			// The processor cannot fail; evaluate directly.
			return fn(T, P)
		}
		return result.(chemeq.SpeciesThermo)
	}
}
