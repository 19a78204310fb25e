// Package burden supplies the speed multipliers applied to moving agents.
// Movement polls a Modifier every tick and never learns why the value
// changed.
package burden

import (
	"math"
	"sort"
)

// MaxFactor caps any modifier.
const MaxFactor = 4.0

// Modifier reports the current speed multiplier.
type Modifier interface {
	Factor() float64
}

// Func adapts a function into a Modifier.
type Func func() float64

func (f Func) Factor() float64 {
	if f == nil {
		return 1
	}
	return f()
}

// Fixed is a constant multiplier.
type Fixed float64

func (f Fixed) Factor() float64 {
	return float64(f)
}

// Resolve evaluates m, treating nil as 1 and clamping into [0, MaxFactor].
func Resolve(m Modifier) float64 {
	if m == nil {
		return 1
	}
	return Clamp(m.Factor())
}

// Clamp maps NaN to 1 and bounds everything else into [0, MaxFactor].
func Clamp(factor float64) float64 {
	switch {
	case math.IsNaN(factor):
		return 1
	case factor < 0:
		return 0
	case factor > MaxFactor:
		return MaxFactor
	default:
		return factor
	}
}

// Step applies Factor once the carried load reaches Load.
type Step struct {
	Load   float64 `yaml:"load" json:"load"`
	Factor float64 `yaml:"factor" json:"factor"`
}

// LoadTable maps carried load onto a speed factor. Loads below the first
// step move at full speed.
type LoadTable struct {
	Steps []Step `yaml:"steps" json:"steps"`
}

// DefaultLoadTable slows agents progressively as they fill their packs.
func DefaultLoadTable() LoadTable {
	return LoadTable{Steps: []Step{
		{Load: 10, Factor: 0.85},
		{Load: 20, Factor: 0.7},
		{Load: 30, Factor: 0.5},
	}}
}

// Normalized returns a copy with steps sorted by load.
func (t LoadTable) Normalized() LoadTable {
	steps := append([]Step(nil), t.Steps...)
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].Load < steps[j].Load })
	return LoadTable{Steps: steps}
}

// FactorFor returns the factor of the heaviest step not above load.
func (t LoadTable) FactorFor(load float64) float64 {
	factor := 1.0
	for _, step := range t.Steps {
		if load < step.Load {
			break
		}
		factor = step.Factor
	}
	return Clamp(factor)
}

// Bind returns a Modifier reading the load from fn on every poll.
func (t LoadTable) Bind(load func() float64) Modifier {
	table := t.Normalized()
	return Func(func() float64 {
		if load == nil {
			return 1
		}
		return table.FactorFor(load())
	})
}
