package sim

// Engine is the simulation the loop drives. Both calls happen on the loop
// goroutine, Apply first.
type Engine interface {
	Apply(tick uint64, commands []Command)
	Step(tick uint64, dt float64)
}

// EngineFuncs adapts a pair of functions into an Engine.
type EngineFuncs struct {
	ApplyFunc func(tick uint64, commands []Command)
	StepFunc  func(tick uint64, dt float64)
}

func (e EngineFuncs) Apply(tick uint64, commands []Command) {
	if e.ApplyFunc != nil {
		e.ApplyFunc(tick, commands)
	}
}

func (e EngineFuncs) Step(tick uint64, dt float64) {
	if e.StepFunc != nil {
		e.StepFunc(tick, dt)
	}
}
