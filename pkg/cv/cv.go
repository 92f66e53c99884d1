// Package cv describes the collective variables a bias acts on.
//
// The engine never computes collective variables itself; the host supplies
// one value per variable per step. What the engine does need is each
// variable's name and periodicity domain: periodic variables use circular
// (minimal-image) differences everywhere a distance from a kernel center is
// taken, and the domain recorded in a hill log must match the live domain on
// restart.
package cv

import "math"

// Value holds the metadata of one collective variable.
type Value struct {
	Name     string  `yaml:"name" json:"name"`
	Periodic bool    `yaml:"periodic" json:"periodic"`
	Min      float64 `yaml:"min" json:"min"`
	Max      float64 `yaml:"max" json:"max"`
}

// NewValue returns a non-periodic variable.
func NewValue(name string) Value {
	return Value{Name: name}
}

// NewPeriodicValue returns a periodic variable with domain [min, max).
func NewPeriodicValue(name string, min, max float64) Value {
	return Value{Name: name, Periodic: true, Min: min, Max: max}
}

// Period returns the length of the periodic domain, 0 for non-periodic
// variables.
func (v Value) Period() float64 {
	if !v.Periodic {
		return 0
	}
	return v.Max - v.Min
}

// Difference returns b-a folded into the minimal image for periodic
// variables, plain b-a otherwise.
func (v Value) Difference(a, b float64) float64 {
	d := b - a
	if !v.Periodic {
		return d
	}
	period := v.Max - v.Min
	return d - period*math.Round(d/period)
}

// SameDomain reports whether two variables agree on periodicity and, when
// periodic, on the domain itself. Restart replay uses this to reject hill
// logs written against incompatible variables.
func (v Value) SameDomain(o Value) bool {
	if v.Periodic != o.Periodic {
		return false
	}
	if !v.Periodic {
		return true
	}
	return v.Min == o.Min && v.Max == o.Max
}

// Space is the ordered set of collective variables a bias acts on.
type Space []Value

// Dim returns the number of collective variables.
func (s Space) Dim() int { return len(s) }

// Names returns the variable names in order.
func (s Space) Names() []string {
	names := make([]string, len(s))
	for i, v := range s {
		names[i] = v.Name
	}
	return names
}

// Difference computes the per-component difference point-center into dst,
// respecting each variable's periodicity. dst must have length Dim().
func (s Space) Difference(center, point, dst []float64) {
	for i, v := range s {
		dst[i] = v.Difference(center[i], point[i])
	}
}
