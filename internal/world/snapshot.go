package world

import (
	"tilewalk/server/internal/grid"
	"tilewalk/server/internal/layout"
	"tilewalk/server/internal/movement"
)

// AgentSnapshot is the broadcast view of one agent.
type AgentSnapshot struct {
	ID          string        `json:"id"`
	State       string        `json:"state"`
	Position    movement.Vec2 `json:"position"`
	Facing      float64       `json:"facing"`
	Speed       float64       `json:"speed"`
	Load        float64       `json:"load"`
	Tile        grid.Cell     `json:"tile"`
	Next        *grid.Cell    `json:"next,omitempty"`
	Destination *grid.Cell    `json:"destination,omitempty"`
	Path        []grid.Cell   `json:"path,omitempty"`
	Pending     string        `json:"pending,omitempty"`
}

// Snapshot is the broadcast view of the whole world.
type Snapshot struct {
	Tick     uint64          `json:"tick"`
	Width    int             `json:"width"`
	Height   int             `json:"height"`
	TileSize float64         `json:"tileSize"`
	Agents   []AgentSnapshot `json:"agents"`
	Objects  []Object        `json:"objects"`
}

// Snapshot captures agents and objects in stable order.
func (w *World) Snapshot() Snapshot {
	snap := Snapshot{
		Tick:     w.tick,
		Width:    w.grid.Width(),
		Height:   w.grid.Height(),
		TileSize: w.grid.TileSize(),
		Agents:   make([]AgentSnapshot, 0, len(w.agents)),
		Objects:  w.Objects(),
	}
	for _, id := range w.AgentIDs() {
		a := w.agents[id]
		c := a.controller
		view := AgentSnapshot{
			ID:       id,
			State:    c.State().String(),
			Position: c.Position(),
			Facing:   c.Facing(),
			Speed:    c.Speed(),
			Load:     a.load,
			Tile:     c.Settled(),
			Pending:  a.pending,
		}
		if next, ok := c.Next(); ok {
			cell := next.Cell()
			view.Next = &cell
		}
		if dest, ok := c.Destination(); ok {
			cell := dest.Cell()
			view.Destination = &cell
		}
		for _, tile := range c.Path() {
			view.Path = append(view.Path, tile.Cell())
		}
		snap.Agents = append(snap.Agents, view)
	}
	return snap
}

// Layout renders the current terrain and objects as a layout document.
func (w *World) Layout() layout.Document {
	doc := layout.Document{
		Width:    w.grid.Width(),
		Height:   w.grid.Height(),
		TileSize: w.grid.TileSize(),
		Rows:     layout.Encode(w.grid),
		Spawn:    w.spawn,
	}
	for _, obj := range w.Objects() {
		doc.Objects = append(doc.Objects, layout.Object{ID: obj.ID, Kind: obj.Kind, Column: obj.Column, Row: obj.Row})
	}
	return doc
}
