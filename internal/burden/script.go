package burden

import (
	"fmt"
	"os"

	"github.com/d5/tengo/v2"
	"github.com/d5/tengo/v2/stdlib"
)

// Script is a compiled tengo program that sets the global `factor` from the
// globals `load` and `capacity`:
//
//	factor = load > capacity ? 0.5 : 1.0 - load / (capacity * 4)
type Script struct {
	source   string
	compiled *tengo.Compiled
}

// CompileScript compiles src once; Bind clones the result per agent.
func CompileScript(src []byte) (*Script, error) {
	script := tengo.NewScript(src)
	if err := script.Add("load", 0.0); err != nil {
		return nil, fmt.Errorf("burden: declare load: %w", err)
	}
	if err := script.Add("capacity", 0.0); err != nil {
		return nil, fmt.Errorf("burden: declare capacity: %w", err)
	}
	if err := script.Add("factor", 1.0); err != nil {
		return nil, fmt.Errorf("burden: declare factor: %w", err)
	}
	script.SetImports(stdlib.GetModuleMap("math"))

	compiled, err := script.Compile()
	if err != nil {
		return nil, fmt.Errorf("burden: compile: %w", err)
	}
	return &Script{source: string(src), compiled: compiled}, nil
}

// LoadScript reads and compiles a script file.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("burden: read %s: %w", path, err)
	}
	script, err := CompileScript(data)
	if err != nil {
		return nil, fmt.Errorf("burden: %s: %w", path, err)
	}
	return script, nil
}

// Evaluate runs the script once on a private clone.
func (s *Script) Evaluate(load, capacity float64) (float64, error) {
	if s == nil || s.compiled == nil {
		return 1, nil
	}
	return evaluate(s.compiled.Clone(), load, capacity)
}

func evaluate(compiled *tengo.Compiled, load, capacity float64) (float64, error) {
	if err := compiled.Set("load", load); err != nil {
		return 1, fmt.Errorf("burden: set load: %w", err)
	}
	if err := compiled.Set("capacity", capacity); err != nil {
		return 1, fmt.Errorf("burden: set capacity: %w", err)
	}
	if err := compiled.Run(); err != nil {
		return 1, fmt.Errorf("burden: run: %w", err)
	}
	v := compiled.Get("factor")
	if v == nil || v.IsUndefined() {
		return 1, fmt.Errorf("burden: factor is undefined")
	}
	switch v.ValueType() {
	case "int", "float":
		return Clamp(v.Float()), nil
	default:
		return 1, fmt.Errorf("burden: factor has type %s", v.ValueType())
	}
}

// Bind returns a Modifier that re-runs the script each poll with the inputs
// from fn. Runtime failures keep the last good factor.
func (s *Script) Bind(inputs func() (load, capacity float64)) Modifier {
	if s == nil || s.compiled == nil || inputs == nil {
		return Fixed(1)
	}
	return &scriptModifier{compiled: s.compiled.Clone(), inputs: inputs, last: 1}
}

type scriptModifier struct {
	compiled *tengo.Compiled
	inputs   func() (float64, float64)
	last     float64
	lastErr  error
}

func (m *scriptModifier) Factor() float64 {
	load, capacity := m.inputs()
	factor, err := evaluate(m.compiled, load, capacity)
	m.lastErr = err
	if err != nil {
		return m.last
	}
	m.last = factor
	return factor
}

// Err reports the failure of the most recent evaluation, if any.
func (m *scriptModifier) Err() error {
	return m.lastErr
}
