// Package pathfind computes 8-directional routes across a grid.Grid with A*.
package pathfind

import (
	"container/heap"
	"math"

	"github.com/zyedidia/generic/mapset"

	"tilewalk/server/internal/grid"
)

// GoalPolicy decides whether an occupied destination may end a path.
type GoalPolicy int

const (
	// GoalMustBeFree rejects destinations that are currently occupied.
	GoalMustBeFree GoalPolicy = iota
	// GoalMayBeOccupied allows the final step onto an occupied but walkable
	// tile, e.g. when its occupant is about to be removed.
	GoalMayBeOccupied
)

// Options tunes a single search.
type Options struct {
	Goal GoalPolicy
}

type neighbor struct {
	col      int
	row      int
	cost     float64
	diagonal bool
}

var neighborOffsets = [...]neighbor{
	{col: 0, row: -1, cost: 1, diagonal: false},
	{col: 1, row: 0, cost: 1, diagonal: false},
	{col: 0, row: 1, cost: 1, diagonal: false},
	{col: -1, row: 0, cost: 1, diagonal: false},
	{col: 1, row: -1, cost: math.Sqrt2, diagonal: true},
	{col: 1, row: 1, cost: math.Sqrt2, diagonal: true},
	{col: -1, row: 1, cost: math.Sqrt2, diagonal: true},
	{col: -1, row: -1, cost: math.Sqrt2, diagonal: true},
}

// FindPath returns the tiles from start (exclusive) to goal (inclusive), or
// nil when the goal is missing, blocked or unreachable.
func FindPath(g *grid.Grid, startCol, startRow, goalCol, goalRow int) []grid.Tile {
	return FindPathWith(g, startCol, startRow, goalCol, goalRow, Options{})
}

// FindPathWith is FindPath with an explicit destination policy.
func FindPathWith(g *grid.Grid, startCol, startRow, goalCol, goalRow int, opts Options) []grid.Tile {
	goalTile, ok := g.TileAt(goalCol, goalRow)
	if !ok || !goalTile.Walkable {
		return nil
	}
	if goalTile.Occupied && opts.Goal != GoalMayBeOccupied {
		return nil
	}
	if _, ok := g.TileAt(startCol, startRow); !ok {
		return nil
	}
	s := &search{
		grid:   g,
		goal:   grid.Cell{Column: goalCol, Row: goalRow},
		opts:   opts,
		weight: g.MinMoveCost(),
	}
	return s.run(grid.Cell{Column: startCol, Row: startRow})
}

// Octile is the 8-directional distance between two cells at unit cost.
func Octile(a, b grid.Cell) float64 {
	dx := math.Abs(float64(a.Column - b.Column))
	dy := math.Abs(float64(a.Row - b.Row))
	if dx > dy {
		return dx + (math.Sqrt2-1)*dy
	}
	return dy + (math.Sqrt2-1)*dx
}

// Cost sums the step costs of path when walked from start.
func Cost(start grid.Cell, path []grid.Tile) float64 {
	total := 0.0
	prev := start
	for _, tile := range path {
		step := 1.0
		if prev.Column != tile.Column && prev.Row != tile.Row {
			step = math.Sqrt2
		}
		total += step * tile.MoveCost
		prev = tile.Cell()
	}
	return total
}

type search struct {
	grid   *grid.Grid
	goal   grid.Cell
	opts   Options
	weight float64
}

func (s *search) heuristic(c grid.Cell) float64 {
	return Octile(c, s.goal) * s.weight
}

// enterable re-reads the tile flags on every expansion.
func (s *search) enterable(col, row int) (grid.Tile, bool) {
	tile, ok := s.grid.TileAt(col, row)
	if !ok || !tile.Walkable {
		return tile, false
	}
	if !tile.Occupied {
		return tile, true
	}
	return tile, s.opts.Goal == GoalMayBeOccupied && col == s.goal.Column && row == s.goal.Row
}

func (s *search) canTraverseDiagonal(current grid.Cell, delta neighbor) bool {
	if !delta.diagonal {
		return true
	}
	return s.grid.Passable(current.Column+delta.col, current.Row) &&
		s.grid.Passable(current.Column, current.Row+delta.row)
}

func (s *search) run(start grid.Cell) []grid.Tile {
	open := &pathQueue{}
	heap.Init(open)
	heap.Push(open, &pathNode{cell: start, g: 0, f: s.heuristic(start)})

	gScore := map[grid.Cell]float64{start: 0}
	cameFrom := make(map[grid.Cell]grid.Cell)
	closed := mapset.New[grid.Cell]()

	for open.Len() > 0 {
		current := heap.Pop(open).(*pathNode)
		if closed.Has(current.cell) {
			continue
		}
		closed.Put(current.cell)
		if current.cell == s.goal {
			return s.reconstruct(cameFrom, start)
		}

		for _, delta := range neighborOffsets {
			if !s.canTraverseDiagonal(current.cell, delta) {
				continue
			}
			next := grid.Cell{Column: current.cell.Column + delta.col, Row: current.cell.Row + delta.row}
			tile, ok := s.enterable(next.Column, next.Row)
			if !ok || closed.Has(next) {
				continue
			}
			tentative := current.g + delta.cost*tile.MoveCost
			if prev, seen := gScore[next]; seen && tentative >= prev {
				continue
			}
			gScore[next] = tentative
			cameFrom[next] = current.cell
			heap.Push(open, &pathNode{
				cell: next,
				g:    tentative,
				f:    tentative + s.heuristic(next),
			})
		}
	}
	return nil
}

func (s *search) reconstruct(cameFrom map[grid.Cell]grid.Cell, start grid.Cell) []grid.Tile {
	path := make([]grid.Tile, 0, 16)
	for cell := s.goal; cell != start; {
		tile, _ := s.grid.TileAtCell(cell)
		path = append(path, tile)
		prev, ok := cameFrom[cell]
		if !ok {
			return nil
		}
		cell = prev
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	if len(path) == 0 {
		return nil
	}
	return path
}
