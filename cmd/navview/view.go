package main

import (
	"fmt"

	"github.com/gdamore/tcell/v2"

	"tilewalk/server/internal/grid"
	"tilewalk/server/internal/layout"
	"tilewalk/server/internal/world"
)

const (
	agentID   = "walker"
	headerRow = 1
)

var (
	styleOpen   = tcell.StyleDefault.Foreground(tcell.ColorGray)
	styleWall   = tcell.StyleDefault.Foreground(tcell.ColorWhite)
	styleRough  = tcell.StyleDefault.Foreground(tcell.ColorGreen)
	styleObject = tcell.StyleDefault.Foreground(tcell.ColorYellow)
	stylePath   = tcell.StyleDefault.Foreground(tcell.ColorBlue)
	styleAgent  = tcell.StyleDefault.Foreground(tcell.ColorRed).Bold(true)
)

type view struct {
	world  *world.World
	blocks int
	status string
}

func newView(doc layout.Document) (*view, error) {
	w, err := world.New(doc, world.DefaultConfig(), world.Deps{})
	if err != nil {
		return nil, err
	}
	if !w.AddAgent(agentID, w.Spawn()) {
		return nil, fmt.Errorf("spawn %v is not passable", w.Spawn())
	}
	return &view{world: w, status: "left click: walk  right click: crate  q: quit"}, nil
}

// handle applies one input event and reports whether the viewer keeps
// running.
func (v *view) handle(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		if ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC {
			return false
		}
		if ev.Key() == tcell.KeyRune && ev.Rune() == 'q' {
			return false
		}
	case *tcell.EventMouse:
		x, y := ev.Position()
		cell := grid.Cell{Column: x, Row: y - headerRow}
		if !v.world.Grid().InBounds(cell.Column, cell.Row) {
			return true
		}
		switch {
		case ev.Buttons()&tcell.Button1 != 0:
			v.walk(cell)
		case ev.Buttons()&tcell.Button2 != 0:
			v.toggle(cell)
		}
	}
	return true
}

func (v *view) walk(cell grid.Cell) {
	if v.world.MoveAgent(agentID, cell.Column, cell.Row) {
		v.status = fmt.Sprintf("walking to %d,%d", cell.Column, cell.Row)
		return
	}
	v.status = fmt.Sprintf("no route to %d,%d", cell.Column, cell.Row)
}

func (v *view) toggle(cell grid.Cell) {
	for _, obj := range v.world.Objects() {
		if obj.Cell() == cell {
			v.world.RemoveObject(obj.ID)
			v.status = fmt.Sprintf("removed %s", obj.ID)
			return
		}
	}
	v.blocks++
	obj := world.Object{ID: fmt.Sprintf("crate-%d", v.blocks), Kind: "crate", Column: cell.Column, Row: cell.Row}
	if v.world.PlaceObject(obj) {
		v.status = fmt.Sprintf("placed %s", obj.ID)
		return
	}
	v.status = fmt.Sprintf("cannot place at %d,%d", cell.Column, cell.Row)
}

func (v *view) draw(screen tcell.Screen) {
	screen.Clear()
	drawText(screen, 0, 0, v.status)

	v.world.Grid().Each(func(tile grid.Tile) {
		r, style := '.', styleOpen
		switch {
		case !tile.Walkable:
			r, style = '#', styleWall
		case tile.MoveCost > grid.DefaultMoveCost:
			r, style = '~', styleRough
		}
		screen.SetContent(tile.Column, tile.Row+headerRow, r, nil, style)
	})
	for _, obj := range v.world.Objects() {
		screen.SetContent(obj.Column, obj.Row+headerRow, 'o', nil, styleObject)
	}

	snap := v.world.Snapshot()
	for _, agent := range snap.Agents {
		for _, cell := range agent.Path {
			screen.SetContent(cell.Column, cell.Row+headerRow, '*', nil, stylePath)
		}
		if agent.Destination != nil {
			screen.SetContent(agent.Destination.Column, agent.Destination.Row+headerRow, 'X', nil, stylePath)
		}
		screen.SetContent(agent.Tile.Column, agent.Tile.Row+headerRow, '@', nil, styleAgent)
	}
	screen.Show()
}

func drawText(screen tcell.Screen, x, y int, text string) {
	for i, r := range text {
		screen.SetContent(x+i, y, r, nil, tcell.StyleDefault)
	}
}
