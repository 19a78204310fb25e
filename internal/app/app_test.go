package app

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"tilewalk/server/internal/telemetry"
)

type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) Printf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

func (l *recordingLogger) contains(fragment string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if strings.Contains(line, fragment) {
			return true
		}
	}
	return false
}

func envOf(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func quietConfig() Config {
	cfg := DefaultConfig()
	cfg.Logging.EnabledSinks = nil
	return cfg
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(envOf(nil), telemetry.Discard())
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("expected default addr, got %q", cfg.Addr)
	}
	if cfg.Hub.Loop.TickRate != 15 {
		t.Fatalf("expected default tick rate 15, got %d", cfg.Hub.Loop.TickRate)
	}
	if cfg.Observability.EnablePprof {
		t.Fatalf("expected pprof disabled by default")
	}
}

func TestLoadConfigAppliesFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tilewalk.yaml")
	file := `
addr: ":9000"
watch_layout: true
hub:
  heartbeat_interval: 1s
  loop:
    tick_rate: 30
  world:
    allow_occupied_goal: true
`
	if err := os.WriteFile(path, []byte(file), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	logger := &recordingLogger{}
	cfg, err := LoadConfig(envOf(map[string]string{
		EnvConfig:   path,
		EnvAddr:     "127.0.0.1:7000",
		EnvTickRate: "fast",
		EnvLogSinks: "console, json,",
		EnvPprof:    "true",
	}), logger)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Addr != "127.0.0.1:7000" {
		t.Fatalf("expected env addr to win, got %q", cfg.Addr)
	}
	if cfg.Hub.Loop.TickRate != 30 {
		t.Fatalf("expected file tick rate to survive invalid env, got %d", cfg.Hub.Loop.TickRate)
	}
	if !logger.contains(EnvTickRate) {
		t.Fatalf("expected invalid tick rate to be logged, got %v", logger.lines)
	}
	if cfg.Hub.HeartbeatInterval != time.Second {
		t.Fatalf("expected 1s heartbeat, got %v", cfg.Hub.HeartbeatInterval)
	}
	if !cfg.Hub.World.AllowOccupiedGoal || !cfg.WatchLayout {
		t.Fatalf("expected file booleans to be applied: %+v", cfg)
	}
	if len(cfg.Logging.EnabledSinks) != 2 || !cfg.Logging.HasSink("json") {
		t.Fatalf("expected console and json sinks, got %v", cfg.Logging.EnabledSinks)
	}
	if !cfg.Observability.EnablePprof {
		t.Fatalf("expected pprof enabled from env")
	}
	if cfg.Hub.World.BaseSpeed == 0 {
		t.Fatalf("expected defaults to remain under partial world config")
	}
}

func TestLoadConfigRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tilewalk.yaml")
	if err := os.WriteFile(path, []byte("adress: \":1\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadConfig(envOf(map[string]string{EnvConfig: path}), nil); err == nil {
		t.Fatalf("expected unknown key to be rejected")
	}
	if _, err := LoadConfig(envOf(map[string]string{EnvConfig: filepath.Join(t.TempDir(), "missing.yaml")}), nil); err == nil {
		t.Fatalf("expected missing config file to fail")
	}
}

func TestNewServesDefaultLayout(t *testing.T) {
	srv, err := New(quietConfig(), telemetry.Discard())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(func() { srv.close(context.Background()) })

	doc := srv.Hub().Layout()
	if doc.Width != 16 || doc.Height != 10 || len(doc.Objects) != 2 {
		t.Fatalf("unexpected default layout %+v", doc)
	}

	resp := httptest.NewRecorder()
	srv.Handler().ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/join", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected join to succeed, got %d", resp.Code)
	}
}

func TestNewRejectsBadInputs(t *testing.T) {
	dir := t.TempDir()

	cfg := quietConfig()
	cfg.LayoutPath = filepath.Join(dir, "missing.yaml")
	if _, err := New(cfg, telemetry.Discard()); err == nil {
		t.Fatalf("expected missing layout to fail")
	}

	script := filepath.Join(dir, "burden.tengo")
	if err := os.WriteFile(script, []byte("factor = ("), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}
	cfg = quietConfig()
	cfg.Hub.World.BurdenScript = script
	if _, err := New(cfg, telemetry.Discard()); err == nil {
		t.Fatalf("expected broken burden script to fail")
	}
}

func TestNewWritesJSONEvents(t *testing.T) {
	cfg := quietConfig()
	cfg.Logging.EnabledSinks = []string{"json"}
	cfg.Logging.JSON.FilePath = filepath.Join(t.TempDir(), "events.ndjson")

	srv, err := New(cfg, telemetry.Discard())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	if _, ok := srv.Hub().Join(); !ok {
		t.Fatalf("join failed")
	}
	srv.close(context.Background())

	data, err := os.ReadFile(cfg.Logging.JSON.FilePath)
	if err != nil {
		t.Fatalf("read events: %v", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		t.Fatalf("expected lifecycle events in json log")
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	srv, err := New(quietConfig(), telemetry.Discard())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	if err != nil {
		t.Fatalf("health request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected health 200, got %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("server did not stop")
	}
}

func TestServeReloadsWatchedLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "field.yaml")
	if err := os.WriteFile(path, []byte("width: 3\nheight: 3\n"), 0o644); err != nil {
		t.Fatalf("write layout: %v", err)
	}
	cfg := quietConfig()
	cfg.LayoutPath = path
	cfg.WatchLayout = true

	logger := &recordingLogger{}
	srv, err := New(cfg, logger)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	waitHealthy(t, ln.Addr().String())

	if err := os.WriteFile(path, []byte("width: 5\nheight: 4\n"), 0o644); err != nil {
		t.Fatalf("rewrite layout: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for srv.Hub().Layout().Width != 5 {
		if time.Now().After(deadline) {
			t.Fatalf("layout was not reloaded; log: %v", logger.lines)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func waitHealthy(t *testing.T, addr string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get("http://" + addr + "/health")
		if err == nil {
			resp.Body.Close()
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never became healthy: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}
}
