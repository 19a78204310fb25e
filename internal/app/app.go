package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	server "tilewalk/server"
	"tilewalk/server/internal/burden"
	"tilewalk/server/internal/layout"
	servernet "tilewalk/server/internal/net"
	"tilewalk/server/internal/telemetry"
	"tilewalk/server/logging"
	loggingSinks "tilewalk/server/logging/sinks"
)

const shutdownTimeout = 5 * time.Second

// DefaultLayout is served when no layout file is configured.
const DefaultLayout = `
width: 16
height: 10
rows:
  - "................"
  - "......#........."
  - "..~~..#...####.."
  - "..~~..#......#.."
  - "......#......#.."
  - "......####...#.."
  - "..............~."
  - "....##.......~~."
  - "....##.........."
  - "................"
objects:
  - {id: well, kind: well, column: 10, row: 3}
  - {id: crate-1, kind: crate, column: 2, row: 8}
spawn: {column: 0, row: 0}
`

// Server is an assembled but not yet listening process.
type Server struct {
	config  Config
	logger  telemetry.Logger
	hub     *server.Hub
	router  *logging.Router
	metrics *logging.Metrics
	handler http.Handler
	closers []io.Closer
}

// New loads the layout and wires logging, the hub and the HTTP surface.
func New(cfg Config, logger telemetry.Logger) (*Server, error) {
	if logger == nil {
		logger = telemetry.WrapLogger(log.Default())
	}

	doc, err := loadLayout(cfg.LayoutPath)
	if err != nil {
		return nil, err
	}

	srv := &Server{config: cfg, logger: logger, metrics: &logging.Metrics{}}

	namedSinks, err := srv.buildSinks()
	if err != nil {
		srv.closeFiles()
		return nil, err
	}
	router, err := logging.NewRouter(logging.SystemClock(), cfg.Logging, namedSinks,
		logging.WithMetrics(srv.metrics),
		logging.WithFallback(fallbackLogger(logger)),
	)
	if err != nil {
		srv.closeFiles()
		return nil, fmt.Errorf("failed to construct logging router: %w", err)
	}
	srv.router = router

	var script *burden.Script
	if cfg.Hub.World.BurdenScript != "" {
		script, err = burden.LoadScript(cfg.Hub.World.BurdenScript)
		if err != nil {
			srv.close(context.Background())
			return nil, err
		}
	}

	hub, err := server.NewHub(doc, cfg.Hub, server.HubDeps{
		Logger:    logger,
		Publisher: router,
		Metrics:   srv.metrics,
		Script:    script,
	})
	if err != nil {
		srv.close(context.Background())
		return nil, err
	}
	srv.hub = hub

	srv.handler = servernet.NewHTTPHandler(hub, servernet.HTTPHandlerConfig{
		ClientDir:     cfg.ClientDir,
		LayoutPath:    cfg.LayoutPath,
		Logger:        logger,
		Publisher:     router,
		Observability: cfg.Observability,
	})
	return srv, nil
}

func (s *Server) Hub() *server.Hub {
	return s.hub
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

// Serve runs the simulation, the HTTP server on ln and the optional layout
// watcher until ctx is cancelled or one of them fails. Logging is flushed
// before Serve returns.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer s.close(context.Background())

	var watcher *layout.Watcher
	if s.config.WatchLayout && s.config.LayoutPath != "" {
		var err error
		watcher, err = layout.NewWatcher(layout.DefaultDebounce, s.config.LayoutPath)
		if err != nil {
			ln.Close()
			return fmt.Errorf("watch layout: %w", err)
		}
	}

	group, ctx := errgroup.WithContext(ctx)
	httpServer := &http.Server{Handler: s.handler}

	group.Go(func() error {
		return s.hub.Run(ctx)
	})
	group.Go(func() error {
		s.logger.Printf("server listening on %s", ln.Addr())
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	if watcher != nil {
		group.Go(func() error {
			defer watcher.Close()
			s.watchLayout(ctx, watcher)
			return nil
		})
	}
	return group.Wait()
}

func (s *Server) watchLayout(ctx context.Context, watcher *layout.Watcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case path, ok := <-watcher.Events:
			if !ok {
				return
			}
			if err := s.hub.ReloadLayout(path); err != nil {
				s.logger.Printf("[layout] reload of %s rejected: %v", path, err)
				continue
			}
			s.logger.Printf("[layout] reloaded %s", path)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Printf("[layout] watcher error: %v", err)
		}
	}
}

func (s *Server) buildSinks() ([]logging.NamedSink, error) {
	var named []logging.NamedSink
	if s.config.Logging.HasSink("console") {
		named = append(named, logging.NamedSink{
			Name: "console",
			Sink: loggingSinks.NewConsoleSink(os.Stdout, s.config.Logging.Console),
		})
	}
	if s.config.Logging.HasSink("json") {
		file, err := os.OpenFile(s.config.Logging.JSON.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open json log: %w", err)
		}
		s.closers = append(s.closers, file)
		named = append(named, logging.NamedSink{
			Name: "json",
			Sink: loggingSinks.NewJSON(file, s.config.Logging.JSON.FlushInterval),
		})
	}
	return named, nil
}

func (s *Server) close(ctx context.Context) {
	if s.router != nil {
		ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		if err := s.router.Close(ctx); err != nil {
			s.logger.Printf("failed to close logging router: %v", err)
		}
		cancel()
	}
	s.closeFiles()
}

func (s *Server) closeFiles() {
	for _, closer := range s.closers {
		if err := closer.Close(); err != nil {
			s.logger.Printf("failed to close log file: %v", err)
		}
	}
	s.closers = nil
}

// Run builds the server and serves cfg.Addr until ctx is cancelled.
func Run(ctx context.Context, cfg Config, logger telemetry.Logger) error {
	srv, err := New(cfg, logger)
	if err != nil {
		return err
	}
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		srv.close(context.Background())
		return fmt.Errorf("listen %s: %w", cfg.Addr, err)
	}
	return srv.Serve(ctx, ln)
}

func loadLayout(path string) (layout.Document, error) {
	if path == "" {
		return layout.Parse([]byte(DefaultLayout))
	}
	return layout.Load(path)
}

func fallbackLogger(logger telemetry.Logger) *log.Logger {
	if provider, ok := logger.(interface{ StandardLogger() *log.Logger }); ok {
		if candidate := provider.StandardLogger(); candidate != nil {
			return candidate
		}
	}
	return log.Default()
}
