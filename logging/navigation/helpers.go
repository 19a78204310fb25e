// Package navigation publishes the events produced while agents plan and
// follow routes.
package navigation

import (
	"context"

	"tilewalk/server/logging"
)

const (
	// EventPathPlanned is emitted when a move request produced a route.
	EventPathPlanned logging.EventType = "navigation.path_planned"
	// EventPathRejected is emitted when a move request was refused.
	EventPathRejected logging.EventType = "navigation.path_rejected"
	// EventWaypointReached is emitted each time an agent settles on a waypoint.
	EventWaypointReached logging.EventType = "navigation.waypoint_reached"
	// EventDestinationReached is emitted when an agent consumes its last waypoint.
	EventDestinationReached logging.EventType = "navigation.destination_reached"
	// EventObstructed is emitted when an object has no free approach tile.
	EventObstructed logging.EventType = "navigation.obstructed"
	// EventLayoutReloaded is emitted after the grid was rebuilt from disk.
	EventLayoutReloaded logging.EventType = "navigation.layout_reloaded"
)

// Reasons attached to rejected paths.
const (
	ReasonUnknownAgent = "unknown_agent"
	ReasonNoTile       = "no_tile"
	ReasonNotWalkable  = "not_walkable"
	ReasonOccupied     = "occupied"
	ReasonNoRoute      = "no_route"
	ReasonNoApproach   = "no_approach"
)

// PathPlannedPayload summarises an accepted route.
type PathPlannedPayload struct {
	FromColumn int     `json:"fromColumn"`
	FromRow    int     `json:"fromRow"`
	ToColumn   int     `json:"toColumn"`
	ToRow      int     `json:"toRow"`
	Steps      int     `json:"steps"`
	Cost       float64 `json:"cost"`
}

// PathRejectedPayload names the refused target.
type PathRejectedPayload struct {
	ToColumn int    `json:"toColumn"`
	ToRow    int    `json:"toRow"`
	Reason   string `json:"reason"`
}

// TilePayload locates a waypoint or destination.
type TilePayload struct {
	Column int     `json:"column"`
	Row    int     `json:"row"`
	X      float64 `json:"x"`
	Z      float64 `json:"z"`
}

// ObstructedPayload locates the unreachable object.
type ObstructedPayload struct {
	ObjectID string `json:"objectId"`
	Column   int    `json:"column"`
	Row      int    `json:"row"`
	Reason   string `json:"reason"`
}

// LayoutReloadedPayload describes the rebuilt grid.
type LayoutReloadedPayload struct {
	Path      string `json:"path"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Objects   int    `json:"objects"`
	Respawned int    `json:"respawned"`
}

func publish(ctx context.Context, pub logging.Publisher, event logging.Event) {
	if pub == nil {
		return
	}
	event.Category = logging.CategoryNavigation
	pub.Publish(ctx, event)
}

// PathPlanned publishes an accepted move request.
func PathPlanned(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload PathPlannedPayload, extra map[string]any) {
	publish(ctx, pub, logging.Event{
		Type:     EventPathPlanned,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Payload:  payload,
		Extra:    extra,
	})
}

// PathRejected publishes a refused move request.
func PathRejected(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload PathRejectedPayload, extra map[string]any) {
	publish(ctx, pub, logging.Event{
		Type:     EventPathRejected,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Payload:  payload,
		Extra:    extra,
	})
}

func WaypointReached(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload TilePayload, extra map[string]any) {
	publish(ctx, pub, logging.Event{
		Type:     EventWaypointReached,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Payload:  payload,
		Extra:    extra,
	})
}

func DestinationReached(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload TilePayload, extra map[string]any) {
	publish(ctx, pub, logging.Event{
		Type:     EventDestinationReached,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Payload:  payload,
		Extra:    extra,
	})
}

// Obstructed publishes an interaction that found no free approach tile or
// no route to one.
func Obstructed(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload ObstructedPayload, extra map[string]any) {
	event := logging.Event{
		Type:     EventObstructed,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Payload:  payload,
		Extra:    extra,
	}
	if payload.ObjectID != "" {
		event.Targets = []logging.EntityRef{logging.ObjectRef(payload.ObjectID)}
	}
	publish(ctx, pub, event)
}

func LayoutReloaded(ctx context.Context, pub logging.Publisher, tick uint64, payload LayoutReloadedPayload, extra map[string]any) {
	publish(ctx, pub, logging.Event{
		Type:     EventLayoutReloaded,
		Tick:     tick,
		Actor:    logging.EntityRef{Kind: logging.EntityKindWorld},
		Severity: logging.SeverityInfo,
		Payload:  payload,
		Extra:    extra,
	})
}
