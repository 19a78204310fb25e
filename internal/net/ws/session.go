package ws

import (
	"context"
	"time"

	"github.com/gorilla/websocket"

	"tilewalk/server"
	"tilewalk/server/internal/net/intake"
	"tilewalk/server/internal/net/proto"
	"tilewalk/server/internal/sim"
	"tilewalk/server/logging"
	"tilewalk/server/logging/network"
)

const (
	closeReadFailed   = "read_failed"
	closeWriteFailed  = "write_failed"
	closeEncodeFailed = "encode_failed"
)

type subscription interface {
	WriteMessage(messageType int, data []byte) error
	LastCommandSeq() uint64
	StoreLastCommandSeq(seq uint64)
}

// Serve runs a websocket session for an agent that already joined.
func (h *Handler) Serve(agentID string, conn *websocket.Conn) {
	if h == nil || h.hub == nil || conn == nil {
		return
	}

	sub, state, ok := h.hub.Subscribe(agentID, conn)
	if !ok {
		message := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unknown agent")
		conn.WriteMessage(websocket.CloseMessage, message)
		conn.Close()
		return
	}
	session := subscription(sub)

	data, err := proto.EncodeStateSnapshot(state)
	if err != nil {
		h.logger.Printf("failed to marshal initial state for %s: %v", agentID, err)
		h.close(agentID, closeEncodeFailed)
		return
	}
	if err := session.WriteMessage(websocket.TextMessage, data); err != nil {
		h.close(agentID, closeWriteFailed)
		return
	}

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			h.close(agentID, closeReadFailed)
			return
		}

		msg, err := proto.DecodeClientMessage(payload)
		if err != nil {
			h.logger.Printf("discarding malformed message from %s: %v", agentID, err)
			continue
		}

		if msg.Type == proto.TypeHeartbeat {
			if !h.heartbeat(agentID, session, msg) {
				return
			}
			continue
		}

		if !h.command(agentID, session, msg) {
			return
		}
	}
}

func (h *Handler) close(agentID, reason string) {
	network.SessionClosed(context.Background(), h.publisher, h.hub.Tick(), logging.AgentRef(agentID), network.SessionClosedPayload{Reason: reason}, nil)
	h.hub.Disconnect(agentID)
}

func (h *Handler) heartbeat(agentID string, session subscription, msg proto.ClientMessage) bool {
	now := time.Now()
	rtt, ok := h.hub.UpdateHeartbeat(agentID, now, msg.SentAt)
	if !ok {
		return true
	}
	data, err := proto.EncodeHeartbeat(proto.Heartbeat{
		ServerTime: now.UnixMilli(),
		ClientTime: msg.SentAt,
		RTTMillis:  rtt.Milliseconds(),
	})
	if err != nil {
		h.logger.Printf("failed to marshal heartbeat ack for %s: %v", agentID, err)
		return true
	}
	return h.write(agentID, session, data)
}

// command stages msg and answers with an ack or reject when the client
// numbered it. Replayed sequence numbers are acked without queueing.
func (h *Handler) command(agentID string, session subscription, msg proto.ClientMessage) bool {
	seq := msg.Seq()
	if seq > 0 {
		if last := session.LastCommandSeq(); last > 0 && seq <= last {
			network.CommandReplayed(context.Background(), h.publisher, h.hub.Tick(), logging.AgentRef(agentID), network.SeqPayload{LastAcked: last, Seq: seq}, nil)
			return h.ack(agentID, session, proto.CommandAck{Seq: seq})
		}
	}

	_, tick, ok, reason := intake.StageClientCommand(intake.CommandContext{Queue: h.hub}, agentID, msg)
	switch {
	case ok:
	case reason == server.CommandRejectUnknownActor:
		h.logger.Printf("%s ignored for unknown agent %s", msg.Type, agentID)
	case reason == sim.CommandRejectInvalid:
		h.logger.Printf("invalid %q message from %s", msg.Type, agentID)
	}
	if seq == 0 {
		return true
	}
	if !ok {
		retry := reason == sim.CommandRejectQueueLimit || reason == sim.CommandRejectQueueFull
		data, err := proto.EncodeCommandReject(proto.CommandReject{Seq: seq, Reason: reason, Retry: retry})
		if err != nil {
			h.logger.Printf("failed to marshal response for %s: %v", agentID, err)
			return true
		}
		return h.write(agentID, session, data)
	}
	if !h.ack(agentID, session, proto.CommandAck{Seq: seq, Tick: tick}) {
		return false
	}
	session.StoreLastCommandSeq(seq)
	return true
}

func (h *Handler) ack(agentID string, session subscription, ack proto.CommandAck) bool {
	data, err := proto.EncodeCommandAck(ack)
	if err != nil {
		h.logger.Printf("failed to marshal response for %s: %v", agentID, err)
		return true
	}
	return h.write(agentID, session, data)
}

func (h *Handler) write(agentID string, session subscription, data []byte) bool {
	if err := session.WriteMessage(websocket.TextMessage, data); err != nil {
		h.close(agentID, closeWriteFailed)
		return false
	}
	return true
}
