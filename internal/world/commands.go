package world

import "tilewalk/server/internal/sim"

// ApplyCommand executes one queued command and reports whether it took
// effect. Refusals are published by the operation itself.
func (w *World) ApplyCommand(cmd sim.Command) bool {
	if !cmd.Valid() {
		return false
	}
	switch cmd.Type {
	case sim.CommandMoveTo:
		return w.MoveAgent(cmd.ActorID, cmd.Move.Column, cmd.Move.Row)
	case sim.CommandInteract:
		return w.Interact(cmd.ActorID, cmd.Interact.ObjectID)
	case sim.CommandStop:
		return w.StopAgent(cmd.ActorID)
	case sim.CommandSetLoad:
		return w.SetLoad(cmd.ActorID, cmd.Load.Load)
	case sim.CommandPlaceObject:
		o := cmd.Object
		return w.PlaceObject(Object{ID: o.ID, Kind: o.Kind, Column: o.Column, Row: o.Row})
	case sim.CommandRemoveObject:
		_, ok := w.RemoveObject(cmd.Object.ID)
		return ok
	default:
		return false
	}
}

// Apply executes commands in order and returns how many took effect.
func (w *World) Apply(commands []sim.Command) int {
	applied := 0
	for _, cmd := range commands {
		if w.ApplyCommand(cmd) {
			applied++
		}
	}
	return applied
}
