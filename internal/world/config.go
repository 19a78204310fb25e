package world

import (
	"math"
	"strings"

	"tilewalk/server/internal/burden"
	"tilewalk/server/internal/movement"
	"tilewalk/server/internal/pathfind"
)

const (
	DefaultCapacity = 30.0
	maxBaseSpeed    = 50.0
)

// Config tunes agent movement.
type Config struct {
	BaseSpeed float64 `yaml:"base_speed" json:"baseSpeed"`
	// Capacity is handed to burden scripts alongside the carried load.
	Capacity float64          `yaml:"capacity" json:"capacity"`
	Burden   burden.LoadTable `yaml:"burden" json:"burden"`
	// BurdenScript names a tengo file that replaces the load table.
	BurdenScript string `yaml:"burden_script" json:"burdenScript,omitempty"`
	// AllowOccupiedGoal lets move requests end on an occupied tile.
	AllowOccupiedGoal bool `yaml:"allow_occupied_goal" json:"allowOccupiedGoal"`
}

// DefaultConfig walks at the controller's default speed with the default
// load table.
func DefaultConfig() Config {
	return Config{
		BaseSpeed: movement.DefaultBaseSpeed,
		Capacity:  DefaultCapacity,
		Burden:    burden.DefaultLoadTable(),
	}
}

func (cfg Config) normalized() Config {
	normalized := cfg
	if normalized.BaseSpeed <= 0 || math.IsNaN(normalized.BaseSpeed) {
		normalized.BaseSpeed = movement.DefaultBaseSpeed
	}
	if normalized.BaseSpeed > maxBaseSpeed {
		normalized.BaseSpeed = maxBaseSpeed
	}
	if normalized.Capacity <= 0 || math.IsNaN(normalized.Capacity) {
		normalized.Capacity = DefaultCapacity
	}
	if len(normalized.Burden.Steps) == 0 {
		normalized.Burden = burden.DefaultLoadTable()
	}
	normalized.Burden = normalized.Burden.Normalized()
	normalized.BurdenScript = strings.TrimSpace(normalized.BurdenScript)
	return normalized
}

func (cfg Config) pathing() pathfind.Options {
	if cfg.AllowOccupiedGoal {
		return pathfind.Options{Goal: pathfind.GoalMayBeOccupied}
	}
	return pathfind.Options{Goal: pathfind.GoalMustBeFree}
}
