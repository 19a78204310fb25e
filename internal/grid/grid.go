// Package grid owns the navigation tile array and the world/tile coordinate
// transform shared by every other navigation component.
package grid

import "math"

// DefaultMoveCost is the multiplier assigned to freshly created tiles.
const DefaultMoveCost = 1.0

// Cell addresses a tile by column and row.
type Cell struct {
	Column int `json:"column" yaml:"column"`
	Row    int `json:"row" yaml:"row"`
}

// Tile is one navigation cell. Lookups return copies; mutate through Grid.
type Tile struct {
	Column   int
	Row      int
	Walkable bool
	Occupied bool
	MoveCost float64
	WorldX   float64
	WorldZ   float64
}

// Cell returns the tile's address.
func (t Tile) Cell() Cell {
	return Cell{Column: t.Column, Row: t.Row}
}

// Passable reports whether an agent may step onto the tile right now.
func (t Tile) Passable() bool {
	return t.Walkable && !t.Occupied
}

// Grid is a fixed width×height array of tiles centred on the world origin:
// tile (0,0) sits at the negative corner.
type Grid struct {
	width    int
	height   int
	tileSize float64
	tiles    []Tile
	minCost  float64
}

// New builds a grid of walkable, unoccupied tiles. Non-positive dimensions
// are raised to 1 and a non-positive tile size falls back to 1.
func New(width, height int, tileSize float64) *Grid {
	if width <= 0 {
		width = 1
	}
	if height <= 0 {
		height = 1
	}
	if tileSize <= 0 || math.IsNaN(tileSize) || math.IsInf(tileSize, 0) {
		tileSize = 1
	}
	g := &Grid{
		width:    width,
		height:   height,
		tileSize: tileSize,
		tiles:    make([]Tile, width*height),
		minCost:  DefaultMoveCost,
	}
	for row := 0; row < height; row++ {
		for col := 0; col < width; col++ {
			x, z := g.ToWorld(col, row)
			g.tiles[g.index(col, row)] = Tile{
				Column:   col,
				Row:      row,
				Walkable: true,
				MoveCost: DefaultMoveCost,
				WorldX:   x,
				WorldZ:   z,
			}
		}
	}
	return g
}

func (g *Grid) Width() int {
	if g == nil {
		return 0
	}
	return g.width
}

func (g *Grid) Height() int {
	if g == nil {
		return 0
	}
	return g.height
}

func (g *Grid) TileSize() float64 {
	if g == nil {
		return 0
	}
	return g.tileSize
}

// InBounds reports whether (col, row) addresses a tile.
func (g *Grid) InBounds(col, row int) bool {
	return g != nil && col >= 0 && row >= 0 && col < g.width && row < g.height
}

func (g *Grid) index(col, row int) int {
	return row*g.width + col
}

// TileAt returns the tile at (col, row), or false when out of range.
func (g *Grid) TileAt(col, row int) (Tile, bool) {
	if !g.InBounds(col, row) {
		return Tile{}, false
	}
	return g.tiles[g.index(col, row)], true
}

// TileAtCell is TileAt for a Cell.
func (g *Grid) TileAtCell(c Cell) (Tile, bool) {
	return g.TileAt(c.Column, c.Row)
}

// Locate converts a world position to tile indices without a bounds check.
func (g *Grid) Locate(x, z float64) (int, int) {
	if g == nil {
		return -1, -1
	}
	col := math.Floor(x/g.tileSize + float64(g.width)/2)
	row := math.Floor(z/g.tileSize + float64(g.height)/2)
	return clampIndex(col), clampIndex(row)
}

// TileAtWorldPosition returns the tile containing the world point (x, z).
func (g *Grid) TileAtWorldPosition(x, z float64) (Tile, bool) {
	if g == nil || math.IsNaN(x) || math.IsNaN(z) {
		return Tile{}, false
	}
	col, row := g.Locate(x, z)
	return g.TileAt(col, row)
}

// ToWorld returns the world-space centre of tile (col, row).
func (g *Grid) ToWorld(col, row int) (float64, float64) {
	x := (float64(col) + 0.5 - float64(g.width)/2) * g.tileSize
	z := (float64(row) + 0.5 - float64(g.height)/2) * g.tileSize
	return x, z
}

// Passable reports whether (col, row) exists, is walkable and is unoccupied.
func (g *Grid) Passable(col, row int) bool {
	tile, ok := g.TileAt(col, row)
	return ok && tile.Passable()
}

// SetWalkable updates the terrain flag; false when out of range.
func (g *Grid) SetWalkable(col, row int, walkable bool) bool {
	if !g.InBounds(col, row) {
		return false
	}
	g.tiles[g.index(col, row)].Walkable = walkable
	return true
}

// SetOccupied updates the dynamic blocker flag; false when out of range.
func (g *Grid) SetOccupied(col, row int, occupied bool) bool {
	if !g.InBounds(col, row) {
		return false
	}
	g.tiles[g.index(col, row)].Occupied = occupied
	return true
}

// SetMoveCost assigns a terrain multiplier. Costs must be positive and finite.
func (g *Grid) SetMoveCost(col, row int, cost float64) bool {
	if !g.InBounds(col, row) || cost <= 0 || math.IsNaN(cost) || math.IsInf(cost, 0) {
		return false
	}
	idx := g.index(col, row)
	prev := g.tiles[idx].MoveCost
	g.tiles[idx].MoveCost = cost
	if cost < g.minCost {
		g.minCost = cost
	} else if prev == g.minCost && cost > prev {
		g.recomputeMinCost()
	}
	return true
}

// MinMoveCost is the smallest multiplier on the grid. Heuristics scale by it
// to stay admissible.
func (g *Grid) MinMoveCost() float64 {
	if g == nil {
		return DefaultMoveCost
	}
	return g.minCost
}

func (g *Grid) recomputeMinCost() {
	minCost := math.Inf(1)
	for i := range g.tiles {
		if g.tiles[i].MoveCost < minCost {
			minCost = g.tiles[i].MoveCost
		}
	}
	g.minCost = minCost
}

// Each visits tiles in row-major order.
func (g *Grid) Each(fn func(Tile)) {
	if g == nil || fn == nil {
		return
	}
	for _, tile := range g.tiles {
		fn(tile)
	}
}

// clampIndex keeps huge or infinite coordinates from overflowing int
// conversion; anything outside int32 range is out of bounds anyway.
func clampIndex(v float64) int {
	if v < math.MinInt32 {
		return math.MinInt32
	}
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(v)
}
