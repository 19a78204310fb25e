package world

import (
	"sort"

	"tilewalk/server/internal/grid"
)

// PlaceObject marks the object's tile occupied. It fails for empty or
// duplicate ids, tiles that are not passable, the spawn tile and tiles an
// agent stands on or is entering. Agents whose remaining route crosses the
// tile are rerouted to their destination, or stopped if no route is left.
func (w *World) PlaceObject(obj Object) bool {
	if obj.ID == "" {
		return false
	}
	if _, exists := w.objects[obj.ID]; exists {
		return false
	}
	cell := obj.Cell()
	if !w.grid.Passable(cell.Column, cell.Row) || cell == w.spawn || w.agentClaims(cell) {
		return false
	}
	w.grid.SetOccupied(cell.Column, cell.Row, true)
	w.objects[obj.ID] = obj
	w.storeGauges()
	w.rerouteAround(cell)
	return true
}

// RemoveObject frees the object's tile. Agents on their way to interact
// with it walk on but nothing is dispatched when they arrive.
func (w *World) RemoveObject(id string) (Object, bool) {
	obj, ok := w.objects[id]
	if !ok {
		return Object{}, false
	}
	delete(w.objects, id)
	w.grid.SetOccupied(obj.Column, obj.Row, false)
	for _, a := range w.agents {
		if a.pending == id {
			a.pending = ""
		}
	}
	w.storeGauges()
	return obj, true
}

// Object looks up a placed object.
func (w *World) Object(id string) (Object, bool) {
	obj, ok := w.objects[id]
	return obj, ok
}

// Objects lists placed objects ordered by id.
func (w *World) Objects() []Object {
	out := make([]Object, 0, len(w.objects))
	for _, obj := range w.objects {
		out = append(out, obj)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (w *World) agentClaims(cell grid.Cell) bool {
	for _, a := range w.agents {
		if a.controller.Settled() == cell {
			return true
		}
		if next, ok := a.controller.Next(); ok && next.Cell() == cell {
			return true
		}
	}
	return false
}

func (w *World) rerouteAround(cell grid.Cell) {
	for _, id := range w.AgentIDs() {
		a := w.agents[id]
		path := a.controller.Path()
		if len(path) < 2 || !crosses(path[1:], cell) {
			continue
		}
		dest := path[len(path)-1]
		if dest.Cell() != cell && w.requestMove(a, dest.Column, dest.Row) {
			continue
		}
		a.controller.Stop()
		a.pending = ""
	}
}

func crosses(path []grid.Tile, cell grid.Cell) bool {
	for _, tile := range path {
		if tile.Cell() == cell {
			return true
		}
	}
	return false
}
