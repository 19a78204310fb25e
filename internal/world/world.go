// Package world owns the navigation grid together with the agents walking
// on it and the objects blocking it. A World is not safe for concurrent use;
// the hub serialises access.
package world

import (
	"context"
	"fmt"
	"math"
	"sort"

	"tilewalk/server/internal/burden"
	"tilewalk/server/internal/grid"
	"tilewalk/server/internal/layout"
	"tilewalk/server/internal/movement"
	"tilewalk/server/internal/telemetry"
	"tilewalk/server/logging"
	"tilewalk/server/logging/lifecycle"
)

const (
	metricAgents        = "world_agents"
	metricObjects       = "world_objects"
	metricPathsPlanned  = "world_paths_planned_total"
	metricPathsRejected = "world_paths_rejected_total"
	metricObstructed    = "world_obstructed_total"
	metricInteractions  = "world_interactions_total"
)

// Object is a blocking entity. Its tile is marked occupied while placed.
type Object struct {
	ID     string `json:"id"`
	Kind   string `json:"kind,omitempty"`
	Column int    `json:"column"`
	Row    int    `json:"row"`
}

// Cell returns the tile the object stands on.
func (o Object) Cell() grid.Cell {
	return grid.Cell{Column: o.Column, Row: o.Row}
}

// InteractionHandler runs when an agent arrives beside the object it was
// sent to interact with.
type InteractionHandler func(agentID string, obj Object)

// Deps bundles the collaborators of a World.
type Deps struct {
	Publisher logging.Publisher
	Metrics   telemetry.Metrics
	// Script replaces the load table when set.
	Script     *burden.Script
	OnInteract InteractionHandler
}

type agent struct {
	id         string
	controller *movement.Controller
	load       float64
	// pending is the object to interact with once the current route ends.
	pending string
}

// World owns the grid, its agents and its objects.
type World struct {
	config     Config
	grid       *grid.Grid
	spawn      grid.Cell
	tick       uint64
	agents     map[string]*agent
	objects    map[string]Object
	publisher  logging.Publisher
	metrics    telemetry.Metrics
	script     *burden.Script
	onInteract InteractionHandler
	ctx        context.Context
}

// New builds a world from a layout document. Document objects are placed
// before New returns.
func New(doc layout.Document, cfg Config, deps Deps) (*World, error) {
	g, err := doc.Terrain()
	if err != nil {
		return nil, fmt.Errorf("world: %w", err)
	}
	publisher := deps.Publisher
	if publisher == nil {
		publisher = logging.NopPublisher()
	}
	w := &World{
		config:     cfg.normalized(),
		grid:       g,
		spawn:      doc.Spawn,
		agents:     make(map[string]*agent),
		objects:    make(map[string]Object, len(doc.Objects)),
		publisher:  publisher,
		metrics:    deps.Metrics,
		script:     deps.Script,
		onInteract: deps.OnInteract,
		ctx:        context.Background(),
	}
	for _, obj := range doc.Objects {
		if !w.PlaceObject(Object{ID: obj.ID, Kind: obj.Kind, Column: obj.Column, Row: obj.Row}) {
			return nil, fmt.Errorf("world: %w: cannot place object %q", layout.ErrInvalidLayout, obj.ID)
		}
	}
	return w, nil
}

// Grid exposes the navigation grid. Callers must not mutate it directly
// while agents are moving; use PlaceObject and RemoveObject.
func (w *World) Grid() *grid.Grid { return w.grid }

// Spawn is the tile new agents appear on.
func (w *World) Spawn() grid.Cell { return w.spawn }

// Tick is the number of completed steps.
func (w *World) Tick() uint64 { return w.tick }

// Config returns the normalised configuration.
func (w *World) Config() Config { return w.config }

// SetInteractionHandler replaces the arrival callback for interactions.
func (w *World) SetInteractionHandler(fn InteractionHandler) {
	w.onInteract = fn
}

// AddAgent puts a new idle agent on cell. It fails for duplicate or empty
// ids and for tiles that are missing or not walkable.
func (w *World) AddAgent(id string, cell grid.Cell) bool {
	if id == "" {
		return false
	}
	if _, exists := w.agents[id]; exists {
		return false
	}
	tile, ok := w.grid.TileAtCell(cell)
	if !ok || !tile.Walkable {
		return false
	}
	a := &agent{id: id}
	controller, ok := movement.New(w.grid, cell, w.controllerConfig(a))
	if !ok {
		return false
	}
	a.controller = controller
	w.agents[id] = a
	w.storeGauges()
	lifecycle.AgentJoined(w.ctx, w.publisher, w.tick, logging.AgentRef(id), lifecycle.AgentJoinedPayload{Column: cell.Column, Row: cell.Row}, nil)
	return true
}

// RemoveAgent drops the agent and returns the tile it last settled on.
func (w *World) RemoveAgent(id, reason string) (grid.Cell, bool) {
	a, ok := w.agents[id]
	if !ok {
		return grid.Cell{}, false
	}
	delete(w.agents, id)
	settled := a.controller.Settled()
	w.storeGauges()
	lifecycle.AgentLeft(w.ctx, w.publisher, w.tick, logging.AgentRef(id), lifecycle.AgentLeftPayload{Reason: reason, Column: settled.Column, Row: settled.Row}, nil)
	return settled, true
}

// HasAgent reports whether id is present.
func (w *World) HasAgent(id string) bool {
	_, ok := w.agents[id]
	return ok
}

// AgentIDs lists agents in stable order.
func (w *World) AgentIDs() []string {
	ids := make([]string, 0, len(w.agents))
	for id := range w.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Controller exposes an agent's movement controller for read access.
func (w *World) Controller(id string) (*movement.Controller, bool) {
	a, ok := w.agents[id]
	if !ok {
		return nil, false
	}
	return a.controller, true
}

// SetLoad changes the weight an agent carries. Negative loads become zero.
func (w *World) SetLoad(id string, load float64) bool {
	a, ok := w.agents[id]
	if !ok {
		return false
	}
	if load < 0 || math.IsNaN(load) {
		load = 0
	}
	a.load = load
	return true
}

// Load reports an agent's carried weight.
func (w *World) Load(id string) (float64, bool) {
	a, ok := w.agents[id]
	if !ok {
		return 0, false
	}
	return a.load, true
}

// Step advances every agent by dt seconds in id order.
func (w *World) Step(dt float64) {
	w.tick++
	for _, id := range w.AgentIDs() {
		// Callbacks may remove agents mid-step.
		if a, ok := w.agents[id]; ok {
			a.controller.Tick(dt)
		}
	}
}

// Settled returns the settled tile of every agent; the only per-agent state
// worth persisting.
func (w *World) Settled() map[string]grid.Cell {
	out := make(map[string]grid.Cell, len(w.agents))
	for id, a := range w.agents {
		out[id] = a.controller.Settled()
	}
	return out
}

func (w *World) controllerConfig(a *agent) movement.Config {
	return movement.Config{
		BaseSpeed:  w.config.BaseSpeed,
		Burden:     w.modifierFor(a),
		Pathing:    w.config.pathing(),
		OnWaypoint: func(tile grid.Tile) { w.waypointReached(a, tile) },
		OnArrive:   func(tile grid.Tile) { w.destinationReached(a, tile) },
	}
}

func (w *World) modifierFor(a *agent) burden.Modifier {
	if w.script != nil {
		capacity := w.config.Capacity
		return w.script.Bind(func() (float64, float64) { return a.load, capacity })
	}
	return w.config.Burden.Bind(func() float64 { return a.load })
}

func (w *World) storeGauges() {
	if w.metrics == nil {
		return
	}
	w.metrics.Store(metricAgents, uint64(len(w.agents)))
	w.metrics.Store(metricObjects, uint64(len(w.objects)))
}

func (w *World) count(key string) {
	if w.metrics != nil {
		w.metrics.Add(key, 1)
	}
}
