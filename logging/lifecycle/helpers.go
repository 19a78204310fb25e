package lifecycle

import (
	"context"

	"tilewalk/server/logging"
)

const (
	// EventAgentJoined is emitted when an agent is added to the world.
	EventAgentJoined logging.EventType = "lifecycle.agent_joined"
	// EventAgentLeft is emitted when an agent is removed from the world.
	EventAgentLeft logging.EventType = "lifecycle.agent_left"
)

// AgentJoinedPayload captures where the agent appeared.
type AgentJoinedPayload struct {
	Column int `json:"column"`
	Row    int `json:"row"`
}

// AgentLeftPayload captures why the agent left and where it last settled.
type AgentLeftPayload struct {
	Reason string `json:"reason"`
	Column int    `json:"column"`
	Row    int    `json:"row"`
}

// AgentJoined publishes an agent join event.
func AgentJoined(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload AgentJoinedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventAgentJoined,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
		Extra:    extra,
	})
}

// AgentLeft publishes an agent removal event.
func AgentLeft(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload AgentLeftPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventAgentLeft,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
		Extra:    extra,
	})
}
