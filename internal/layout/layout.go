// Package layout loads the YAML documents describing a navigation grid:
// terrain rows, blocking objects and the spawn tile.
package layout

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"tilewalk/server/internal/grid"
)

// ErrInvalidLayout marks documents that parse but describe an impossible
// grid.
var ErrInvalidLayout = errors.New("invalid layout")

const (
	TileOpen    = '.'
	TileBlocked = '#'
	TileRough   = '~'

	// RoughMoveCost is the move cost of TileRough tiles.
	RoughMoveCost = 2.0
	// DefaultTileSize is used when tile_size is omitted.
	DefaultTileSize = 1.0
)

// Object is a blocking entity placed on the grid at load time.
type Object struct {
	ID     string `yaml:"id" json:"id" jsonschema:"minLength=1"`
	Kind   string `yaml:"kind" json:"kind"`
	Column int    `yaml:"column" json:"column" jsonschema:"minimum=0"`
	Row    int    `yaml:"row" json:"row" jsonschema:"minimum=0"`
}

// Cell returns the tile the object stands on.
func (o Object) Cell() grid.Cell {
	return grid.Cell{Column: o.Column, Row: o.Row}
}

// Document is the on-disk layout format.
type Document struct {
	Width    int       `yaml:"width" json:"width" jsonschema:"minimum=1"`
	Height   int       `yaml:"height" json:"height" jsonschema:"minimum=1"`
	TileSize float64   `yaml:"tile_size,omitempty" json:"tile_size,omitempty" jsonschema:"description=World units per tile; defaults to 1"`
	Rows     []string  `yaml:"rows,omitempty" json:"rows,omitempty" jsonschema:"description=One string per row; '.' open; '#' blocked; '~' rough"`
	Objects  []Object  `yaml:"objects,omitempty" json:"objects,omitempty"`
	Spawn    grid.Cell `yaml:"spawn" json:"spawn"`
}

// Load reads and validates the document at path.
func Load(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("layout: read %s: %w", path, err)
	}
	doc, err := Parse(data)
	if err != nil {
		return Document{}, fmt.Errorf("layout: %s: %w", path, err)
	}
	return doc, nil
}

// Parse decodes and validates a YAML document. Unknown fields are rejected.
func Parse(data []byte) (Document, error) {
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return Document{}, fmt.Errorf("unmarshal: %w", err)
	}
	if doc.TileSize == 0 {
		doc.TileSize = DefaultTileSize
	}
	if err := doc.Validate(); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// Validate checks geometry, row contents, objects and spawn.
func (d Document) Validate() error {
	if d.Width <= 0 || d.Height <= 0 {
		return fmt.Errorf("%w: dimensions %dx%d", ErrInvalidLayout, d.Width, d.Height)
	}
	if d.TileSize < 0 {
		return fmt.Errorf("%w: tile_size %v", ErrInvalidLayout, d.TileSize)
	}
	if len(d.Rows) != 0 && len(d.Rows) != d.Height {
		return fmt.Errorf("%w: %d rows, want %d", ErrInvalidLayout, len(d.Rows), d.Height)
	}
	for r, line := range d.Rows {
		if len(line) != d.Width {
			return fmt.Errorf("%w: row %d has %d tiles, want %d", ErrInvalidLayout, r, len(line), d.Width)
		}
		for c := 0; c < len(line); c++ {
			switch line[c] {
			case TileOpen, TileBlocked, TileRough:
			default:
				return fmt.Errorf("%w: row %d column %d: unknown tile %q", ErrInvalidLayout, r, c, line[c])
			}
		}
	}

	seen := make(map[string]struct{}, len(d.Objects))
	taken := make(map[grid.Cell]string, len(d.Objects))
	for _, obj := range d.Objects {
		if strings.TrimSpace(obj.ID) == "" {
			return fmt.Errorf("%w: object at (%d,%d) has no id", ErrInvalidLayout, obj.Column, obj.Row)
		}
		if _, dup := seen[obj.ID]; dup {
			return fmt.Errorf("%w: duplicate object id %q", ErrInvalidLayout, obj.ID)
		}
		seen[obj.ID] = struct{}{}
		if !d.open(obj.Column, obj.Row) {
			return fmt.Errorf("%w: object %q on blocked or missing tile (%d,%d)", ErrInvalidLayout, obj.ID, obj.Column, obj.Row)
		}
		if other, clash := taken[obj.Cell()]; clash {
			return fmt.Errorf("%w: objects %q and %q share tile (%d,%d)", ErrInvalidLayout, other, obj.ID, obj.Column, obj.Row)
		}
		taken[obj.Cell()] = obj.ID
	}

	if !d.open(d.Spawn.Column, d.Spawn.Row) {
		return fmt.Errorf("%w: spawn (%d,%d) is blocked or outside the grid", ErrInvalidLayout, d.Spawn.Column, d.Spawn.Row)
	}
	if id, clash := taken[d.Spawn]; clash {
		return fmt.Errorf("%w: spawn (%d,%d) is occupied by %q", ErrInvalidLayout, d.Spawn.Column, d.Spawn.Row, id)
	}
	return nil
}

func (d Document) open(col, row int) bool {
	if col < 0 || row < 0 || col >= d.Width || row >= d.Height {
		return false
	}
	if len(d.Rows) == 0 {
		return true
	}
	return d.Rows[row][col] != TileBlocked
}

// Terrain builds the grid with walkability and move costs only. Objects
// are left for the caller to place.
func (d Document) Terrain() (*grid.Grid, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	tileSize := d.TileSize
	if tileSize == 0 {
		tileSize = DefaultTileSize
	}
	g := grid.New(d.Width, d.Height, tileSize)
	for r, line := range d.Rows {
		for c := 0; c < len(line); c++ {
			switch line[c] {
			case TileBlocked:
				g.SetWalkable(c, r, false)
			case TileRough:
				g.SetMoveCost(c, r, RoughMoveCost)
			}
		}
	}
	return g, nil
}

// Build returns the terrain grid with every object's tile marked occupied.
func (d Document) Build() (*grid.Grid, error) {
	g, err := d.Terrain()
	if err != nil {
		return nil, err
	}
	for _, obj := range d.Objects {
		g.SetOccupied(obj.Column, obj.Row, true)
	}
	return g, nil
}

// Encode renders the grid's terrain back into document rows. Occupancy is
// not part of terrain and is ignored.
func Encode(g *grid.Grid) []string {
	if g == nil {
		return nil
	}
	rows := make([]string, g.Height())
	var b strings.Builder
	for r := 0; r < g.Height(); r++ {
		b.Reset()
		for c := 0; c < g.Width(); c++ {
			tile, _ := g.TileAt(c, r)
			switch {
			case !tile.Walkable:
				b.WriteByte(TileBlocked)
			case tile.MoveCost > grid.DefaultMoveCost:
				b.WriteByte(TileRough)
			default:
				b.WriteByte(TileOpen)
			}
		}
		rows[r] = b.String()
	}
	return rows
}
