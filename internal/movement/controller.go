// Package movement walks one agent along pathfinder routes, one tile at a
// time, in fixed simulation ticks.
package movement

import (
	"math"

	"tilewalk/server/internal/burden"
	"tilewalk/server/internal/grid"
	"tilewalk/server/internal/pathfind"
)

// DefaultBaseSpeed is in world units per second.
const DefaultBaseSpeed = 3.0

// State is the controller's coarse mode.
type State int

const (
	// Idle: no waypoints, the agent stands on the centre of its tile.
	Idle State = iota
	// Following: the agent is advancing toward the head of its path.
	Following
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Following:
		return "following"
	default:
		return "unknown"
	}
}

// Vec2 is a point on the world ground plane.
type Vec2 struct {
	X float64 `json:"x"`
	Z float64 `json:"z"`
}

// Config wires the controller to its collaborators. Callbacks run
// synchronously inside Tick and may issue new requests.
type Config struct {
	BaseSpeed  float64
	Burden     burden.Modifier
	Pathing    pathfind.Options
	OnWaypoint func(tile grid.Tile)
	OnArrive   func(tile grid.Tile)
}

// Controller owns one agent's movement state.
type Controller struct {
	grid     *grid.Grid
	cfg      Config
	current  grid.Tile
	path     []grid.Tile
	position Vec2
	facing   float64
	speed    float64
}

// New places an idle agent on the centre of start. It returns false when
// start is outside the grid.
func New(g *grid.Grid, start grid.Cell, cfg Config) (*Controller, bool) {
	if cfg.BaseSpeed <= 0 || math.IsNaN(cfg.BaseSpeed) {
		cfg.BaseSpeed = DefaultBaseSpeed
	}
	c := &Controller{grid: g, cfg: cfg, speed: cfg.BaseSpeed}
	if !c.Restore(start) {
		return nil, false
	}
	return c, true
}

func (c *Controller) State() State {
	if len(c.path) == 0 {
		return Idle
	}
	return Following
}

// Position is the continuous world position, decoupled from CurrentTile
// while transitioning.
func (c *Controller) Position() Vec2 { return c.position }

// Facing is the yaw in radians of the last advance, atan2(dx, dz).
func (c *Controller) Facing() float64 { return c.facing }

// Speed is the effective speed used by the most recent moving tick.
func (c *Controller) Speed() float64 { return c.speed }

// CurrentTile is the last tile the agent fully reached.
func (c *Controller) CurrentTile() grid.Tile { return c.current }

// Path returns a copy of the remaining waypoints, head first.
func (c *Controller) Path() []grid.Tile {
	if len(c.path) == 0 {
		return nil
	}
	return append([]grid.Tile(nil), c.path...)
}

// Next returns the waypoint currently being approached.
func (c *Controller) Next() (grid.Tile, bool) {
	if len(c.path) == 0 {
		return grid.Tile{}, false
	}
	return c.path[0], true
}

// Destination returns the final waypoint.
func (c *Controller) Destination() (grid.Tile, bool) {
	if len(c.path) == 0 {
		return grid.Tile{}, false
	}
	return c.path[len(c.path)-1], true
}

// Origin is where a new route would start: the path head while moving so a
// mid-transition agent never doubles back, else the current tile.
func (c *Controller) Origin() grid.Cell {
	if head, ok := c.Next(); ok {
		return head.Cell()
	}
	return c.current.Cell()
}

// RequestMove routes the agent to (col, row). On false nothing changes.
func (c *Controller) RequestMove(col, row int) bool {
	target, ok := c.grid.TileAt(col, row)
	if !ok || !target.Walkable {
		return false
	}
	origin := c.Origin()
	head, following := c.Next()
	if following && origin == target.Cell() {
		c.path = c.path[:1]
		return true
	}
	route := pathfind.FindPathWith(c.grid, origin.Column, origin.Row, col, row, c.cfg.Pathing)
	if len(route) == 0 {
		return false
	}
	if following {
		path := make([]grid.Tile, 0, len(route)+1)
		path = append(path, head)
		c.path = append(path, route...)
		return true
	}
	c.path = route
	return true
}

// Tick advances the agent by dt seconds. At most one waypoint is consumed
// per tick; the agent snaps onto it instead of overshooting.
func (c *Controller) Tick(dt float64) {
	if len(c.path) == 0 {
		return
	}
	if dt < 0 || math.IsNaN(dt) {
		dt = 0
	}
	c.speed = c.cfg.BaseSpeed * burden.Resolve(c.cfg.Burden)

	head := c.path[0]
	dx := head.WorldX - c.position.X
	dz := head.WorldZ - c.position.Z
	dist := math.Hypot(dx, dz)
	step := c.speed * dt

	if dist <= step {
		c.position = Vec2{X: head.WorldX, Z: head.WorldZ}
		c.current = head
		c.path = c.path[1:]
		arrived := len(c.path) == 0
		if arrived {
			c.path = nil
		}
		if c.cfg.OnWaypoint != nil {
			c.cfg.OnWaypoint(head)
		}
		if arrived && c.cfg.OnArrive != nil {
			c.cfg.OnArrive(head)
		}
		return
	}

	c.position.X += dx / dist * step
	c.position.Z += dz / dist * step
	c.facing = math.Atan2(dx, dz)
}

// Stop keeps only the waypoint being approached so the agent still settles
// on a tile centre.
func (c *Controller) Stop() {
	if len(c.path) > 1 {
		c.path = c.path[:1]
	}
}

// Settled is the only movement state worth persisting.
func (c *Controller) Settled() grid.Cell {
	return c.current.Cell()
}

// Restore drops any path and puts the agent idle on cell. False when the
// cell is outside the grid.
func (c *Controller) Restore(cell grid.Cell) bool {
	tile, ok := c.grid.TileAtCell(cell)
	if !ok {
		return false
	}
	c.current = tile
	c.path = nil
	c.position = Vec2{X: tile.WorldX, Z: tile.WorldZ}
	return true
}
