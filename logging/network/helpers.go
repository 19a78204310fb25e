package network

import (
	"context"

	"tilewalk/server/logging"
)

const (
	// EventCommandReplayed is emitted when a client resends a sequence number that was already acknowledged.
	EventCommandReplayed logging.EventType = "network.command_replayed"
	// EventSessionClosed is emitted when a websocket session ends.
	EventSessionClosed logging.EventType = "network.session_closed"
)

// SeqPayload captures the replayed sequence number against the last acknowledged one.
type SeqPayload struct {
	LastAcked uint64 `json:"lastAcked"`
	Seq       uint64 `json:"seq"`
}

// SessionClosedPayload records why the transport went away.
type SessionClosedPayload struct {
	Reason string `json:"reason"`
}

// CommandReplayed publishes a debug event for an idempotent resend.
func CommandReplayed(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload SeqPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventCommandReplayed,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: "network",
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// SessionClosed publishes an info event when a session ends.
func SessionClosed(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload SessionClosedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventSessionClosed,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: "network",
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}
