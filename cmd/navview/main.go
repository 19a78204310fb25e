// Command navview drives a single agent around a layout in the terminal.
// Left click walks the agent, right click toggles a blocking crate and q
// quits.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/gdamore/tcell/v2"

	"tilewalk/server/internal/layout"
)

const frameInterval = 33 * time.Millisecond

func main() {
	var layoutPath string
	flag.StringVar(&layoutPath, "layout", "", "layout file to explore")
	flag.Parse()

	if layoutPath == "" {
		fmt.Fprintln(os.Stderr, "--layout is required")
		os.Exit(1)
	}

	doc, err := layout.Load(layoutPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load layout: %v\n", err)
		os.Exit(1)
	}
	v, err := newView(doc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build world: %v\n", err)
		os.Exit(1)
	}

	screen, err := tcell.NewScreen()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize: %v\n", err)
		os.Exit(1)
	}
	if err := screen.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize: %v\n", err)
		os.Exit(1)
	}
	screen.EnableMouse()
	defer screen.Fini()

	run(screen, v)
}

func run(screen tcell.Screen, v *view) {
	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	events := make(chan tcell.Event, 100)
	go func() {
		for {
			ev := screen.PollEvent()
			if ev == nil {
				close(events)
				return
			}
			events <- ev
		}
	}()

	last := time.Now()
	for {
		select {
		case ev, ok := <-events:
			if !ok || !v.handle(ev) {
				return
			}
		case now := <-ticker.C:
			v.world.Step(now.Sub(last).Seconds())
			last = now
			v.draw(screen)
		}
	}
}
