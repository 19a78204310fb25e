package pathfind

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tilewalk/server/internal/grid"
)

const costEpsilon = 1e-9

func requireValidPath(t *testing.T, g *grid.Grid, start, goal grid.Cell, path []grid.Tile) {
	t.Helper()
	require.NotEmpty(t, path)
	require.Equal(t, goal, path[len(path)-1].Cell(), "path must end at goal")
	prev := start
	for i, tile := range path {
		dc := tile.Column - prev.Column
		dr := tile.Row - prev.Row
		require.LessOrEqual(t, abs(dc), 1, "step %d jumps columns", i)
		require.LessOrEqual(t, abs(dr), 1, "step %d jumps rows", i)
		require.False(t, dc == 0 && dr == 0, "step %d stands still", i)
		require.True(t, g.Passable(tile.Column, tile.Row), "step %d onto blocked tile %+v", i, tile.Cell())
		if dc != 0 && dr != 0 {
			require.True(t, g.Passable(prev.Column+dc, prev.Row), "step %d cuts corner", i)
			require.True(t, g.Passable(prev.Column, prev.Row+dr), "step %d cuts corner", i)
		}
		prev = tile.Cell()
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func TestFindPathExcludesStartAndEndsAtGoal(t *testing.T) {
	g := grid.New(5, 5, 1)

	path := FindPath(g, 0, 0, 4, 0)

	require.Len(t, path, 4)
	for i, tile := range path {
		assert.Equal(t, grid.Cell{Column: i + 1, Row: 0}, tile.Cell())
	}
}

func TestFindPathSameStartAndGoalIsEmpty(t *testing.T) {
	g := grid.New(3, 3, 1)
	assert.Empty(t, FindPath(g, 1, 1, 1, 1))
}

func TestFindPathRejectsMissingOrBlockedEndpoints(t *testing.T) {
	g := grid.New(4, 4, 1)
	g.SetWalkable(3, 3, false)

	for _, tc := range []struct {
		name        string
		start, goal grid.Cell
	}{
		{name: "goal out of range", start: grid.Cell{}, goal: grid.Cell{Column: 4, Row: 0}},
		{name: "goal negative", start: grid.Cell{}, goal: grid.Cell{Column: -1, Row: -1}},
		{name: "goal not walkable", start: grid.Cell{}, goal: grid.Cell{Column: 3, Row: 3}},
		{name: "start out of range", start: grid.Cell{Column: -1, Row: 0}, goal: grid.Cell{Column: 2, Row: 2}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Empty(t, FindPath(g, tc.start.Column, tc.start.Row, tc.goal.Column, tc.goal.Row))
		})
	}
}

func TestFindPathNeverReachesUnwalkableGoalFromAnyStart(t *testing.T) {
	g := grid.New(6, 6, 1)
	g.SetWalkable(2, 3, false)
	for row := 0; row < 6; row++ {
		for col := 0; col < 6; col++ {
			assert.Empty(t, FindPath(g, col, row, 2, 3), "start (%d,%d)", col, row)
		}
	}
}

func TestFindPathIgnoresStartOccupancy(t *testing.T) {
	g := grid.New(4, 1, 1)
	g.SetOccupied(0, 0, true)

	path := FindPath(g, 0, 0, 3, 0)
	requireValidPath(t, g, grid.Cell{Column: 0, Row: 0}, grid.Cell{Column: 3, Row: 0}, path)
}

func TestFindPathIsOptimalOnOpenGrid(t *testing.T) {
	g := grid.New(12, 9, 1)
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		start := grid.Cell{Column: rng.Intn(12), Row: rng.Intn(9)}
		goal := grid.Cell{Column: rng.Intn(12), Row: rng.Intn(9)}
		path := FindPath(g, start.Column, start.Row, goal.Column, goal.Row)
		if start == goal {
			require.Empty(t, path)
			continue
		}
		requireValidPath(t, g, start, goal, path)
		require.InDelta(t, Octile(start, goal), Cost(start, path), costEpsilon, "start %+v goal %+v", start, goal)
	}
}

func TestFindPathPreventsCornerCutting(t *testing.T) {
	g := grid.New(3, 3, 1)
	// Block both orthogonal tiles between (0,0) and the diagonal (1,1).
	g.SetWalkable(1, 0, false)
	g.SetOccupied(0, 1, true)

	path := FindPath(g, 0, 0, 1, 1)
	assert.Empty(t, path, "only route to (1,1) is the cut corner")

	g.SetOccupied(0, 1, false)
	path = FindPath(g, 0, 0, 1, 1)
	requireValidPath(t, g, grid.Cell{}, grid.Cell{Column: 1, Row: 1}, path)
	require.Len(t, path, 2)
	assert.Equal(t, grid.Cell{Column: 0, Row: 1}, path[0].Cell())
}

func TestFindPathSingleBlockedOrthogonalStillForbidsDiagonal(t *testing.T) {
	g := grid.New(3, 3, 1)
	g.SetOccupied(1, 0, true)

	path := FindPath(g, 0, 0, 1, 1)
	requireValidPath(t, g, grid.Cell{}, grid.Cell{Column: 1, Row: 1}, path)
	assert.Len(t, path, 2)
	assert.InDelta(t, 2.0, Cost(grid.Cell{}, path), costEpsilon)
}

func TestFindPathGoalPolicy(t *testing.T) {
	g := grid.New(5, 1, 1)
	g.SetOccupied(4, 0, true)

	assert.Empty(t, FindPath(g, 0, 0, 4, 0))
	assert.Empty(t, FindPathWith(g, 0, 0, 4, 0, Options{Goal: GoalMustBeFree}))

	path := FindPathWith(g, 0, 0, 4, 0, Options{Goal: GoalMayBeOccupied})
	require.Len(t, path, 4)
	assert.Equal(t, grid.Cell{Column: 4, Row: 0}, path[3].Cell())

	g.SetOccupied(2, 0, true)
	assert.Empty(t, FindPathWith(g, 0, 0, 4, 0, Options{Goal: GoalMayBeOccupied}),
		"occupied intermediate tiles stay blocked")
}

func TestFindPathReadsFlagsAtCallTime(t *testing.T) {
	g := grid.New(3, 3, 1)
	require.NotEmpty(t, FindPath(g, 0, 1, 2, 1))

	g.SetOccupied(1, 0, true)
	g.SetOccupied(1, 1, true)
	g.SetOccupied(1, 2, true)
	assert.Empty(t, FindPath(g, 0, 1, 2, 1))

	g.SetOccupied(1, 2, false)
	requireValidPath(t, g, grid.Cell{Column: 0, Row: 1}, grid.Cell{Column: 2, Row: 1}, FindPath(g, 0, 1, 2, 1))
}

func TestFindPathHonoursMoveCost(t *testing.T) {
	g := grid.New(5, 3, 1)
	// Swamp across the middle row makes the straight line more expensive
	// than the detour along row 0.
	for col := 1; col <= 3; col++ {
		g.SetMoveCost(col, 1, 5)
	}

	start := grid.Cell{Column: 0, Row: 1}
	goal := grid.Cell{Column: 4, Row: 1}
	path := FindPath(g, start.Column, start.Row, goal.Column, goal.Row)
	requireValidPath(t, g, start, goal, path)
	for _, tile := range path[:len(path)-1] {
		assert.NotEqual(t, 1, tile.Row, "path should avoid the swamp: %+v", tile.Cell())
	}
	assert.InDelta(t, referenceCost(g, start, goal, Options{}), Cost(start, path), costEpsilon)
}

func TestFindPathMatchesReferenceOnRandomGrids(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 60; trial++ {
		width, height := 4+rng.Intn(9), 4+rng.Intn(9)
		g := grid.New(width, height, 1)
		for row := 0; row < height; row++ {
			for col := 0; col < width; col++ {
				switch r := rng.Float64(); {
				case r < 0.15:
					g.SetWalkable(col, row, false)
				case r < 0.25:
					g.SetOccupied(col, row, true)
				case r < 0.35:
					g.SetMoveCost(col, row, 0.5+rng.Float64()*3)
				}
			}
		}
		start := grid.Cell{Column: rng.Intn(width), Row: rng.Intn(height)}
		goal := grid.Cell{Column: rng.Intn(width), Row: rng.Intn(height)}
		want := referenceCost(g, start, goal, Options{})

		path := FindPath(g, start.Column, start.Row, goal.Column, goal.Row)
		if math.IsInf(want, 1) || start == goal {
			assert.Empty(t, path, "trial %d: expected no path %+v -> %+v", trial, start, goal)
			continue
		}
		requireValidPath(t, g, start, goal, path)
		assert.InDelta(t, want, Cost(start, path), 1e-6, "trial %d: %+v -> %+v", trial, start, goal)
	}
}

// referenceCost is a plain O(n²) Dijkstra over the same movement rules.
func referenceCost(g *grid.Grid, start, goal grid.Cell, opts Options) float64 {
	goalTile, ok := g.TileAtCell(goal)
	if !ok || !goalTile.Walkable || (goalTile.Occupied && opts.Goal != GoalMayBeOccupied) {
		return math.Inf(1)
	}
	dist := map[grid.Cell]float64{start: 0}
	done := map[grid.Cell]bool{}
	s := &search{grid: g, goal: goal, opts: opts}
	for {
		var current grid.Cell
		best := math.Inf(1)
		for cell, d := range dist {
			if !done[cell] && d < best {
				best, current = d, cell
			}
		}
		if math.IsInf(best, 1) {
			return best
		}
		if current == goal {
			return best
		}
		done[current] = true
		for _, delta := range neighborOffsets {
			if !s.canTraverseDiagonal(current, delta) {
				continue
			}
			next := grid.Cell{Column: current.Column + delta.col, Row: current.Row + delta.row}
			tile, ok := s.enterable(next.Column, next.Row)
			if !ok {
				continue
			}
			nd := best + delta.cost*tile.MoveCost
			if prev, seen := dist[next]; !seen || nd < prev {
				dist[next] = nd
			}
		}
	}
}

func BenchmarkFindPath100x100(b *testing.B) {
	g := grid.New(100, 100, 1)
	for row := 10; row < 90; row += 10 {
		for col := 0; col < 95; col++ {
			g.SetWalkable((col+row)%100, row, false)
		}
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		FindPath(g, 0, 0, 99, 99)
	}
}
