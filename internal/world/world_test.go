package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tilewalk/server/internal/burden"
	"tilewalk/server/internal/grid"
	"tilewalk/server/internal/layout"
	"tilewalk/server/internal/movement"
	"tilewalk/server/internal/sim"
	"tilewalk/server/logging"
	"tilewalk/server/logging/lifecycle"
	"tilewalk/server/logging/navigation"
	"tilewalk/server/logging/sinks"
)

const meadow = `
width: 7
height: 5
rows:
  - "......."
  - "...#..."
  - "...#..."
  - "...#..."
  - "......."
objects:
  - {id: well, kind: well, column: 5, row: 2}
spawn: {column: 0, row: 2}
`

type harness struct {
	world        *World
	events       *sinks.MemorySink
	interactions []string
}

func newHarness(t *testing.T, src string, cfg Config) *harness {
	t.Helper()
	doc, err := layout.Parse([]byte(src))
	require.NoError(t, err)
	h := &harness{events: sinks.NewMemorySink()}
	w, err := New(doc, cfg, Deps{
		Publisher: h.events,
		OnInteract: func(agentID string, obj Object) {
			h.interactions = append(h.interactions, agentID+"->"+obj.ID)
		},
	})
	require.NoError(t, err)
	h.world = w
	return h
}

func (h *harness) runUntilIdle(t *testing.T, id string) {
	t.Helper()
	c, ok := h.world.Controller(id)
	require.True(t, ok)
	for i := 0; c.State() == movement.Following; i++ {
		require.Less(t, i, 10000, "agent %s never settled", id)
		h.world.Step(1.0 / 15)
	}
}

func TestNewPlacesLayoutObjects(t *testing.T) {
	h := newHarness(t, meadow, DefaultConfig())

	well, ok := h.world.Object("well")
	require.True(t, ok)
	tile, _ := h.world.Grid().TileAt(well.Column, well.Row)
	assert.True(t, tile.Occupied)
	assert.Equal(t, grid.Cell{Column: 0, Row: 2}, h.world.Spawn())

	_, err := New(layout.Document{Width: 0, Height: 1}, DefaultConfig(), Deps{})
	require.Error(t, err)
}

func TestAddAgentValidatesIDAndTile(t *testing.T) {
	h := newHarness(t, meadow, DefaultConfig())

	assert.True(t, h.world.AddAgent("a", h.world.Spawn()))
	assert.False(t, h.world.AddAgent("a", h.world.Spawn()), "duplicate")
	assert.False(t, h.world.AddAgent("", h.world.Spawn()), "empty id")
	assert.False(t, h.world.AddAgent("b", grid.Cell{Column: 3, Row: 1}), "wall")
	assert.False(t, h.world.AddAgent("b", grid.Cell{Column: 9, Row: 9}), "outside")
	assert.Equal(t, []string{"a"}, h.world.AgentIDs())
	assert.Len(t, h.events.OfType(lifecycle.EventAgentJoined), 1)

	settled, ok := h.world.RemoveAgent("a", "test")
	require.True(t, ok)
	assert.Equal(t, h.world.Spawn(), settled)
	assert.Len(t, h.events.OfType(lifecycle.EventAgentLeft), 1)
	_, ok = h.world.RemoveAgent("a", "test")
	assert.False(t, ok)
}

func TestMoveAgentWalksAroundWall(t *testing.T) {
	h := newHarness(t, meadow, DefaultConfig())
	require.True(t, h.world.AddAgent("a", h.world.Spawn()))

	require.True(t, h.world.MoveAgent("a", 6, 2))
	h.runUntilIdle(t, "a")

	c, _ := h.world.Controller("a")
	assert.Equal(t, grid.Cell{Column: 6, Row: 2}, c.Settled())
	assert.Len(t, h.events.OfType(navigation.EventPathPlanned), 1)
	assert.Len(t, h.events.OfType(navigation.EventDestinationReached), 1)

	waypoints := h.events.OfType(navigation.EventWaypointReached)
	require.NotEmpty(t, waypoints)
	for _, event := range waypoints {
		payload := event.Payload.(navigation.TilePayload)
		tile, _ := h.world.Grid().TileAt(payload.Column, payload.Row)
		assert.True(t, tile.Passable(), "waypoint %d,%d", payload.Column, payload.Row)
	}
}

func TestMoveAgentRejectionsArePublishedWithReason(t *testing.T) {
	h := newHarness(t, meadow, DefaultConfig())
	require.True(t, h.world.AddAgent("a", h.world.Spawn()))

	assert.False(t, h.world.MoveAgent("ghost", 1, 1))
	assert.False(t, h.world.MoveAgent("a", 20, 1))
	assert.False(t, h.world.MoveAgent("a", 3, 2))
	assert.False(t, h.world.MoveAgent("a", 5, 2))

	var reasons []string
	for _, event := range h.events.OfType(navigation.EventPathRejected) {
		reasons = append(reasons, event.Payload.(navigation.PathRejectedPayload).Reason)
	}
	assert.Equal(t, []string{
		navigation.ReasonUnknownAgent,
		navigation.ReasonNoTile,
		navigation.ReasonNotWalkable,
		navigation.ReasonOccupied,
	}, reasons)

	c, _ := h.world.Controller("a")
	assert.Equal(t, movement.Idle, c.State())
}

func TestAllowOccupiedGoalReachesObjectTile(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowOccupiedGoal = true
	h := newHarness(t, meadow, cfg)
	require.True(t, h.world.AddAgent("a", h.world.Spawn()))

	assert.True(t, h.world.MoveAgent("a", 5, 2))
}

func TestInteractWalksBesideObjectThenDispatches(t *testing.T) {
	h := newHarness(t, meadow, DefaultConfig())
	require.True(t, h.world.AddAgent("a", h.world.Spawn()))

	require.True(t, h.world.Interact("a", "well"))
	pending, ok := h.world.Pending("a")
	require.True(t, ok)
	assert.Equal(t, "well", pending)
	assert.Empty(t, h.interactions, "dispatch waits for arrival")

	h.runUntilIdle(t, "a")
	c, _ := h.world.Controller("a")
	settled := c.Settled()
	assert.True(t, adjacent(settled, grid.Cell{Column: 5, Row: 2}), "settled on %v", settled)
	assert.Equal(t, []string{"a->well"}, h.interactions)
	_, ok = h.world.Pending("a")
	assert.False(t, ok)

	require.True(t, h.world.Interact("a", "well"), "already beside the object")
	assert.Equal(t, []string{"a->well", "a->well"}, h.interactions)
}

func TestInteractObstructedWhenSurrounded(t *testing.T) {
	h := newHarness(t, meadow, DefaultConfig())
	require.True(t, h.world.AddAgent("a", h.world.Spawn()))
	for i, cell := range []grid.Cell{{Column: 5, Row: 1}, {Column: 6, Row: 2}, {Column: 5, Row: 3}, {Column: 4, Row: 2}} {
		require.True(t, h.world.PlaceObject(Object{ID: string(rune('p' + i)), Column: cell.Column, Row: cell.Row}))
	}

	assert.False(t, h.world.Interact("a", "well"))
	assert.False(t, h.world.Interact("a", "missing"))

	obstructed := h.events.OfType(navigation.EventObstructed)
	require.Len(t, obstructed, 2)
	assert.Equal(t, navigation.ReasonNoApproach, obstructed[0].Payload.(navigation.ObstructedPayload).Reason)
	assert.Equal(t, []logging.EntityRef{logging.ObjectRef("well")}, obstructed[0].Targets)
}

func TestRemovingTargetCancelsInteraction(t *testing.T) {
	h := newHarness(t, meadow, DefaultConfig())
	require.True(t, h.world.AddAgent("a", h.world.Spawn()))
	require.True(t, h.world.Interact("a", "well"))

	_, ok := h.world.RemoveObject("well")
	require.True(t, ok)
	assert.True(t, h.world.Grid().Passable(5, 2))

	h.runUntilIdle(t, "a")
	assert.Empty(t, h.interactions)
}

func TestMoveAgentCancelsPendingInteraction(t *testing.T) {
	h := newHarness(t, meadow, DefaultConfig())
	require.True(t, h.world.AddAgent("a", h.world.Spawn()))
	require.True(t, h.world.Interact("a", "well"))
	require.True(t, h.world.MoveAgent("a", 0, 0))

	h.runUntilIdle(t, "a")
	assert.Empty(t, h.interactions)
}

func TestPlaceObjectReroutesAgents(t *testing.T) {
	src := `
width: 5
height: 3
spawn: {column: 0, row: 1}
`
	h := newHarness(t, src, DefaultConfig())
	require.True(t, h.world.AddAgent("a", h.world.Spawn()))
	require.True(t, h.world.MoveAgent("a", 4, 1))

	c, _ := h.world.Controller("a")
	require.Contains(t, cellsOf(c.Path()), grid.Cell{Column: 2, Row: 1})

	assert.False(t, h.world.PlaceObject(Object{ID: "rock", Column: 1, Row: 1}), "agent is entering that tile")
	assert.False(t, h.world.PlaceObject(Object{ID: "rock", Column: 0, Row: 1}), "spawn")
	require.True(t, h.world.PlaceObject(Object{ID: "rock", Column: 2, Row: 1}))
	assert.False(t, h.world.PlaceObject(Object{ID: "rock", Column: 3, Row: 0}), "duplicate id")

	path := cellsOf(c.Path())
	assert.NotContains(t, path, grid.Cell{Column: 2, Row: 1})
	assert.Equal(t, grid.Cell{Column: 4, Row: 1}, path[len(path)-1])

	h.runUntilIdle(t, "a")
	assert.Equal(t, grid.Cell{Column: 4, Row: 1}, c.Settled())
}

func TestPlaceObjectOnDestinationStopsAgent(t *testing.T) {
	src := `
width: 5
height: 1
spawn: {column: 0, row: 0}
`
	h := newHarness(t, src, DefaultConfig())
	require.True(t, h.world.AddAgent("a", h.world.Spawn()))
	require.True(t, h.world.MoveAgent("a", 4, 0))
	require.True(t, h.world.PlaceObject(Object{ID: "crate", Column: 4, Row: 0}))

	h.runUntilIdle(t, "a")
	c, _ := h.world.Controller("a")
	assert.Equal(t, grid.Cell{Column: 1, Row: 0}, c.Settled())
}

func TestLoadSlowsAgents(t *testing.T) {
	h := newHarness(t, meadow, DefaultConfig())
	require.True(t, h.world.AddAgent("light", grid.Cell{Column: 0, Row: 0}))
	require.True(t, h.world.AddAgent("heavy", grid.Cell{Column: 0, Row: 4}))
	require.True(t, h.world.SetLoad("heavy", 35))
	assert.False(t, h.world.SetLoad("ghost", 1))

	require.True(t, h.world.MoveAgent("light", 2, 0))
	require.True(t, h.world.MoveAgent("heavy", 2, 4))
	h.world.Step(0.1)

	light, _ := h.world.Controller("light")
	heavy, _ := h.world.Controller("heavy")
	assert.InDelta(t, movement.DefaultBaseSpeed, light.Speed(), 1e-9)
	assert.InDelta(t, movement.DefaultBaseSpeed*0.5, heavy.Speed(), 1e-9)

	require.True(t, h.world.SetLoad("heavy", -4))
	load, _ := h.world.Load("heavy")
	assert.Equal(t, 0.0, load)
}

func TestScriptedBurden(t *testing.T) {
	script, err := burden.CompileScript([]byte(`factor = load >= capacity ? 0.25 : 1.0`))
	require.NoError(t, err)
	doc, err := layout.Parse([]byte(meadow))
	require.NoError(t, err)
	cfg := DefaultConfig()
	cfg.Capacity = 10
	w, err := New(doc, cfg, Deps{Script: script})
	require.NoError(t, err)

	require.True(t, w.AddAgent("a", grid.Cell{Column: 0, Row: 0}))
	require.True(t, w.SetLoad("a", 10))
	require.True(t, w.MoveAgent("a", 2, 0))
	w.Step(0.1)

	c, _ := w.Controller("a")
	assert.InDelta(t, movement.DefaultBaseSpeed*0.25, c.Speed(), 1e-9)
}

func TestReloadRestoresOrRespawnsAgents(t *testing.T) {
	h := newHarness(t, meadow, DefaultConfig())
	require.True(t, h.world.AddAgent("keeps", grid.Cell{Column: 1, Row: 0}))
	require.True(t, h.world.AddAgent("moves", grid.Cell{Column: 6, Row: 4}))
	require.True(t, h.world.SetLoad("keeps", 12))
	require.True(t, h.world.MoveAgent("keeps", 1, 4))

	doc, err := layout.Parse([]byte(`
width: 7
height: 5
rows:
  - "......."
  - "......."
  - "......."
  - "......."
  - "......#"
spawn: {column: 3, row: 3}
`))
	require.NoError(t, err)
	respawned, err := h.world.Reload(doc, "meadow.yaml")
	require.NoError(t, err)
	assert.Equal(t, 1, respawned)

	keeps, _ := h.world.Controller("keeps")
	moves, _ := h.world.Controller("moves")
	assert.Equal(t, movement.Idle, keeps.State())
	assert.Equal(t, grid.Cell{Column: 1, Row: 0}, keeps.Settled())
	assert.Equal(t, grid.Cell{Column: 3, Row: 3}, moves.Settled())
	load, _ := h.world.Load("keeps")
	assert.Equal(t, 12.0, load)
	assert.Empty(t, h.world.Objects())
	assert.True(t, h.world.Grid().Passable(3, 2), "old wall is gone")

	reloaded := h.events.OfType(navigation.EventLayoutReloaded)
	require.Len(t, reloaded, 1)
	assert.Equal(t, "meadow.yaml", reloaded[0].Payload.(navigation.LayoutReloadedPayload).Path)

	require.True(t, h.world.MoveAgent("keeps", 3, 0))
	h.runUntilIdle(t, "keeps")
	assert.Equal(t, grid.Cell{Column: 3, Row: 0}, keeps.Settled())
}

func TestRestoreSettledPositions(t *testing.T) {
	h := newHarness(t, meadow, DefaultConfig())
	require.True(t, h.world.AddAgent("a", h.world.Spawn()))
	require.True(t, h.world.MoveAgent("a", 6, 0))
	h.world.Step(0.2)

	h.world.Restore(map[string]grid.Cell{
		"a": {Column: 2, Row: 0},
		"b": {Column: 3, Row: 2},
	})
	a, _ := h.world.Controller("a")
	b, ok := h.world.Controller("b")
	require.True(t, ok)
	assert.Equal(t, movement.Idle, a.State())
	assert.Equal(t, grid.Cell{Column: 2, Row: 0}, a.Settled())
	assert.Equal(t, h.world.Spawn(), b.Settled(), "wall tile falls back to spawn")
	assert.Equal(t, map[string]grid.Cell{"a": {Column: 2, Row: 0}, "b": h.world.Spawn()}, h.world.Settled())
}

func TestApplyCommands(t *testing.T) {
	h := newHarness(t, meadow, DefaultConfig())
	require.True(t, h.world.AddAgent("a", h.world.Spawn()))

	applied := h.world.Apply([]sim.Command{
		{ActorID: "a", Type: sim.CommandSetLoad, Load: &sim.LoadCommand{Load: 5}},
		{ActorID: "a", Type: sim.CommandPlaceObject, Object: &sim.ObjectCommand{ID: "crate", Column: 6, Row: 0}},
		{ActorID: "a", Type: sim.CommandMoveTo, Move: &sim.MoveCommand{Column: 6, Row: 0}},
		{ActorID: "a", Type: sim.CommandInteract, Interact: &sim.InteractCommand{ObjectID: "crate"}},
		{ActorID: "a", Type: sim.CommandRemoveObject, Object: &sim.ObjectCommand{ID: "missing"}},
		{ActorID: "a", Type: sim.CommandMoveTo},
	})
	assert.Equal(t, 3, applied)

	pending, ok := h.world.Pending("a")
	require.True(t, ok)
	assert.Equal(t, "crate", pending)
	assert.True(t, h.world.ApplyCommand(sim.Command{ActorID: "a", Type: sim.CommandStop}))
	_, ok = h.world.Pending("a")
	assert.False(t, ok)
}

func TestSnapshotDescribesAgentsAndObjects(t *testing.T) {
	h := newHarness(t, meadow, DefaultConfig())
	require.True(t, h.world.AddAgent("b", grid.Cell{Column: 0, Row: 0}))
	require.True(t, h.world.AddAgent("a", h.world.Spawn()))
	require.True(t, h.world.MoveAgent("a", 2, 2))
	h.world.Step(0.1)

	snap := h.world.Snapshot()
	assert.Equal(t, uint64(1), snap.Tick)
	assert.Equal(t, 7, snap.Width)
	require.Len(t, snap.Agents, 2)
	assert.Equal(t, "a", snap.Agents[0].ID)
	assert.Equal(t, "following", snap.Agents[0].State)
	require.NotNil(t, snap.Agents[0].Next)
	require.NotNil(t, snap.Agents[0].Destination)
	assert.Equal(t, grid.Cell{Column: 2, Row: 2}, *snap.Agents[0].Destination)
	assert.Equal(t, "idle", snap.Agents[1].State)
	assert.Nil(t, snap.Agents[1].Next)
	assert.Equal(t, []Object{{ID: "well", Kind: "well", Column: 5, Row: 2}}, snap.Objects)

	doc := h.world.Layout()
	assert.Equal(t, "...#...", doc.Rows[1])
	require.NoError(t, doc.Validate())
}

func cellsOf(path []grid.Tile) []grid.Cell {
	out := make([]grid.Cell, 0, len(path))
	for _, tile := range path {
		out = append(out, tile.Cell())
	}
	return out
}
