package app

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	server "tilewalk/server"
	"tilewalk/server/internal/observability"
	"tilewalk/server/internal/telemetry"
	"tilewalk/server/logging"
)

// Environment variables read by LoadConfig.
const (
	EnvConfig      = "TILEWALK_CONFIG"
	EnvAddr        = "TILEWALK_ADDR"
	EnvTickRate    = "TILEWALK_TICK_RATE"
	EnvLayout      = "TILEWALK_LAYOUT"
	EnvWatchLayout = "TILEWALK_WATCH_LAYOUT"
	EnvLogSinks    = "TILEWALK_LOG_SINKS"
	EnvLogJSONPath = "TILEWALK_LOG_JSON_PATH"
	EnvPprof       = "TILEWALK_ENABLE_PPROF"
)

// Config is the process configuration.
type Config struct {
	Addr      string `yaml:"addr"`
	ClientDir string `yaml:"client_dir"`
	// LayoutPath is the YAML layout to load; empty uses the built-in field.
	LayoutPath    string               `yaml:"layout"`
	WatchLayout   bool                 `yaml:"watch_layout"`
	Hub           server.HubConfig     `yaml:"hub"`
	Logging       logging.Config       `yaml:"logging"`
	Observability observability.Config `yaml:"observability"`
}

func DefaultConfig() Config {
	return Config{
		Addr:    ":8080",
		Hub:     server.DefaultHubConfig(),
		Logging: logging.DefaultConfig(),
	}
}

// LoadConfig starts from DefaultConfig, applies the YAML file named by
// TILEWALK_CONFIG and then the individual environment overrides. Invalid
// override values are reported through logger and ignored.
func LoadConfig(getenv func(string) string, logger telemetry.Logger) (Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	if logger == nil {
		logger = telemetry.Discard()
	}

	cfg := DefaultConfig()
	if path := getenv(EnvConfig); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("app: read config %s: %w", path, err)
		}
		if err := decodeConfig(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("app: config %s: %w", path, err)
		}
	}
	applyEnv(&cfg, getenv, logger)
	return cfg, nil
}

func decodeConfig(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config, getenv func(string) string, logger telemetry.Logger) {
	if raw := getenv(EnvAddr); raw != "" {
		cfg.Addr = raw
	}
	if raw := getenv(EnvTickRate); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.Hub.Loop.TickRate = value
		} else {
			logger.Printf("invalid %s=%q", EnvTickRate, raw)
		}
	}
	if raw := getenv(EnvLayout); raw != "" {
		cfg.LayoutPath = raw
	}
	if raw := getenv(EnvWatchLayout); raw != "" {
		if value, err := strconv.ParseBool(raw); err == nil {
			cfg.WatchLayout = value
		} else {
			logger.Printf("invalid %s=%q: %v", EnvWatchLayout, raw, err)
		}
	}
	if raw := getenv(EnvLogSinks); raw != "" {
		var sinks []string
		for _, name := range strings.Split(raw, ",") {
			if name = strings.TrimSpace(name); name != "" {
				sinks = append(sinks, name)
			}
		}
		cfg.Logging.EnabledSinks = sinks
	}
	if raw := getenv(EnvLogJSONPath); raw != "" {
		cfg.Logging.JSON.FilePath = raw
	}
	if raw := getenv(EnvPprof); raw != "" {
		if value, err := strconv.ParseBool(raw); err == nil {
			cfg.Observability.EnablePprof = value
		} else {
			logger.Printf("invalid %s=%q: %v", EnvPprof, raw, err)
		}
	}
}
