package world

import (
	"fmt"

	"tilewalk/server/internal/grid"
	"tilewalk/server/internal/layout"
	"tilewalk/server/internal/movement"
	"tilewalk/server/logging/navigation"
)

// Reload swaps in a new layout. Agents keep their id and load and reappear
// idle on their settled tile, or on the new spawn when that tile is no
// longer passable. Routes and pending interactions are dropped. It returns
// the number of agents moved to the spawn.
func (w *World) Reload(doc layout.Document, source string) (int, error) {
	g, err := doc.Terrain()
	if err != nil {
		return 0, fmt.Errorf("world: reload: %w", err)
	}

	previous := w.agents
	ids := w.AgentIDs()
	w.grid = g
	w.spawn = doc.Spawn
	w.objects = make(map[string]Object, len(doc.Objects))
	w.agents = make(map[string]*agent, len(previous))

	for _, obj := range doc.Objects {
		if !w.PlaceObject(Object{ID: obj.ID, Kind: obj.Kind, Column: obj.Column, Row: obj.Row}) {
			return 0, fmt.Errorf("world: reload: %w: cannot place object %q", layout.ErrInvalidLayout, obj.ID)
		}
	}

	respawned := 0
	for _, id := range ids {
		old := previous[id]
		cell := old.controller.Settled()
		if !g.Passable(cell.Column, cell.Row) {
			cell = doc.Spawn
			respawned++
		}
		a := &agent{id: id, load: old.load}
		controller, ok := movement.New(g, cell, w.controllerConfig(a))
		if !ok {
			continue
		}
		a.controller = controller
		w.agents[id] = a
	}
	w.storeGauges()

	navigation.LayoutReloaded(w.ctx, w.publisher, w.tick, navigation.LayoutReloadedPayload{
		Path:      source,
		Width:     g.Width(),
		Height:    g.Height(),
		Objects:   len(w.objects),
		Respawned: respawned,
	}, nil)
	return respawned, nil
}

// Restore places agents on persisted settled tiles. Unknown ids are added;
// tiles that are not walkable fall back to the spawn.
func (w *World) Restore(settled map[string]grid.Cell) {
	for id, cell := range settled {
		if tile, ok := w.grid.TileAtCell(cell); !ok || !tile.Walkable {
			cell = w.spawn
		}
		a, ok := w.agents[id]
		if !ok {
			w.AddAgent(id, cell)
			continue
		}
		a.controller.Restore(cell)
		a.pending = ""
	}
}
