// Package reach picks the tile an agent should stand on to interact with
// something that blocks its own tile.
package reach

import "tilewalk/server/internal/grid"

// approachOffsets lists the cardinal sides in a fixed order: N, E, S, W.
// Earlier entries win ties.
var approachOffsets = [...]grid.Cell{
	{Column: 0, Row: -1},
	{Column: 1, Row: 0},
	{Column: 0, Row: 1},
	{Column: -1, Row: 0},
}

// BestAdjacentTile returns the free cardinal neighbour of the target closest
// to the observer, or false when every side is blocked. It does not check
// that the tile is reachable from the observer.
func BestAdjacentTile(g *grid.Grid, targetCol, targetRow, observerCol, observerRow int) (grid.Tile, bool) {
	var (
		best     grid.Tile
		bestDist int
		found    bool
	)
	for _, offset := range approachOffsets {
		tile, ok := g.TileAt(targetCol+offset.Column, targetRow+offset.Row)
		if !ok || !tile.Passable() {
			continue
		}
		dc := tile.Column - observerCol
		dr := tile.Row - observerRow
		dist := dc*dc + dr*dr
		if !found || dist < bestDist {
			best, bestDist, found = tile, dist, true
		}
	}
	return best, found
}

// Candidates returns every free cardinal neighbour of the target in
// enumeration order.
func Candidates(g *grid.Grid, targetCol, targetRow int) []grid.Tile {
	var out []grid.Tile
	for _, offset := range approachOffsets {
		tile, ok := g.TileAt(targetCol+offset.Column, targetRow+offset.Row)
		if ok && tile.Passable() {
			out = append(out, tile)
		}
	}
	return out
}
