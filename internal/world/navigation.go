package world

import (
	"tilewalk/server/internal/grid"
	"tilewalk/server/internal/movement"
	"tilewalk/server/internal/pathfind"
	"tilewalk/server/internal/reach"
	"tilewalk/server/logging"
	"tilewalk/server/logging/navigation"
)

// MoveAgent routes an agent to a tile and cancels any pending interaction.
// False means the request was refused and nothing changed.
func (w *World) MoveAgent(id string, col, row int) bool {
	a, ok := w.agents[id]
	if !ok {
		w.rejectPath(id, col, row, navigation.ReasonUnknownAgent)
		return false
	}
	if !w.requestMove(a, col, row) {
		return false
	}
	a.pending = ""
	return true
}

// Interact sends an agent to the best free tile beside an object. The
// interaction handler runs once the agent arrives there. An agent already
// standing idle on that tile interacts immediately.
func (w *World) Interact(id, objectID string) bool {
	a, ok := w.agents[id]
	if !ok {
		return false
	}
	obj, ok := w.objects[objectID]
	if !ok {
		w.obstructed(a, Object{ID: objectID}, navigation.ReasonNoTile)
		return false
	}

	origin := a.controller.Origin()
	approach, ok := reach.BestAdjacentTile(w.grid, obj.Column, obj.Row, origin.Column, origin.Row)
	if !ok {
		w.obstructed(a, obj, navigation.ReasonNoApproach)
		return false
	}

	if a.controller.State() == movement.Idle && a.controller.Settled() == approach.Cell() {
		a.pending = ""
		w.dispatchInteraction(a, obj)
		return true
	}
	if !w.requestMove(a, approach.Column, approach.Row) {
		w.obstructed(a, obj, navigation.ReasonNoRoute)
		return false
	}
	a.pending = obj.ID
	return true
}

// StopAgent trims the agent's route to the tile it is entering.
func (w *World) StopAgent(id string) bool {
	a, ok := w.agents[id]
	if !ok {
		return false
	}
	a.controller.Stop()
	a.pending = ""
	return true
}

// Pending reports the object an agent will interact with on arrival.
func (w *World) Pending(id string) (string, bool) {
	a, ok := w.agents[id]
	if !ok || a.pending == "" {
		return "", false
	}
	return a.pending, true
}

func (w *World) requestMove(a *agent, col, row int) bool {
	origin := a.controller.Origin()
	if !a.controller.RequestMove(col, row) {
		w.rejectPath(a.id, col, row, w.rejectReason(col, row))
		return false
	}
	path := a.controller.Path()
	w.count(metricPathsPlanned)
	navigation.PathPlanned(w.ctx, w.publisher, w.tick, logging.AgentRef(a.id), navigation.PathPlannedPayload{
		FromColumn: origin.Column,
		FromRow:    origin.Row,
		ToColumn:   col,
		ToRow:      row,
		Steps:      len(path),
		Cost:       pathfind.Cost(a.controller.CurrentTile().Cell(), path),
	}, nil)
	return true
}

func (w *World) rejectReason(col, row int) string {
	tile, ok := w.grid.TileAt(col, row)
	switch {
	case !ok:
		return navigation.ReasonNoTile
	case !tile.Walkable:
		return navigation.ReasonNotWalkable
	case tile.Occupied && !w.config.AllowOccupiedGoal:
		return navigation.ReasonOccupied
	default:
		return navigation.ReasonNoRoute
	}
}

func (w *World) rejectPath(id string, col, row int, reason string) {
	w.count(metricPathsRejected)
	navigation.PathRejected(w.ctx, w.publisher, w.tick, logging.AgentRef(id), navigation.PathRejectedPayload{
		ToColumn: col,
		ToRow:    row,
		Reason:   reason,
	}, nil)
}

func (w *World) obstructed(a *agent, obj Object, reason string) {
	w.count(metricObstructed)
	navigation.Obstructed(w.ctx, w.publisher, w.tick, logging.AgentRef(a.id), navigation.ObstructedPayload{
		ObjectID: obj.ID,
		Column:   obj.Column,
		Row:      obj.Row,
		Reason:   reason,
	}, nil)
}

func (w *World) waypointReached(a *agent, tile grid.Tile) {
	navigation.WaypointReached(w.ctx, w.publisher, w.tick, logging.AgentRef(a.id), tilePayload(tile), nil)
}

func (w *World) destinationReached(a *agent, tile grid.Tile) {
	navigation.DestinationReached(w.ctx, w.publisher, w.tick, logging.AgentRef(a.id), tilePayload(tile), nil)

	objectID := a.pending
	a.pending = ""
	if objectID == "" {
		return
	}
	obj, ok := w.objects[objectID]
	if !ok || !adjacent(tile.Cell(), obj.Cell()) {
		return
	}
	w.dispatchInteraction(a, obj)
}

func (w *World) dispatchInteraction(a *agent, obj Object) {
	w.count(metricInteractions)
	if w.onInteract != nil {
		w.onInteract(a.id, obj)
	}
}

func tilePayload(tile grid.Tile) navigation.TilePayload {
	return navigation.TilePayload{Column: tile.Column, Row: tile.Row, X: tile.WorldX, Z: tile.WorldZ}
}

// adjacent reports whether a and b share an edge.
func adjacent(a, b grid.Cell) bool {
	dc := a.Column - b.Column
	dr := a.Row - b.Row
	return (dc == 0 && (dr == 1 || dr == -1)) || (dr == 0 && (dc == 1 || dc == -1))
}
