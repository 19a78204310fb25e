package proto

import (
	"encoding/json"
	"fmt"

	"tilewalk/server/internal/grid"
	"tilewalk/server/internal/sim"
	"tilewalk/server/internal/world"
)

const (
	// Version tracks the wire-protocol revision expected by clients.
	Version = 1

	typeCommandAck    = "commandAck"
	typeCommandReject = "commandReject"
	typeHeartbeat     = "heartbeat"
	typeState         = "state"
	typeInteraction   = "interaction"
)

// Client message type identifiers.
const (
	TypeMove         = "move"
	TypeInteract     = "interact"
	TypeStop         = "stop"
	TypeSetLoad      = "setLoad"
	TypePlaceObject  = "placeObject"
	TypeRemoveObject = "removeObject"
	TypeHeartbeat    = "heartbeat"
)

// Exported aliases for outbound message type identifiers.
const (
	TypeState       = typeState
	TypeInteraction = typeInteraction
)

// ClientMessage captures an inbound websocket message from the client.
type ClientMessage struct {
	Ver        int     `json:"ver,omitempty"`
	Type       string  `json:"type"`
	Column     int     `json:"column"`
	Row        int     `json:"row"`
	ObjectID   string  `json:"objectId,omitempty"`
	Kind       string  `json:"kind,omitempty"`
	Load       float64 `json:"load"`
	SentAt     int64   `json:"sentAt"`
	CommandSeq *uint64 `json:"seq,omitempty"`
}

// DecodeClientMessage converts raw websocket payloads into a structured message.
func DecodeClientMessage(payload []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return msg, err
	}
	if msg.Ver == 0 {
		msg.Ver = Version
	}
	if msg.Ver != Version {
		return msg, fmt.Errorf("unsupported client protocol version %d", msg.Ver)
	}
	return msg, nil
}

// Seq returns the client command sequence, zero when absent.
func (m ClientMessage) Seq() uint64 {
	if m.CommandSeq == nil {
		return 0
	}
	return *m.CommandSeq
}

// ClientCommand converts a client message into a simulation command. The
// actor id and origin metadata are filled in by the hub.
func ClientCommand(msg ClientMessage) (sim.Command, bool) {
	switch msg.Type {
	case TypeMove:
		return sim.Command{
			Type: sim.CommandMoveTo,
			Move: &sim.MoveCommand{Column: msg.Column, Row: msg.Row},
		}, true
	case TypeInteract:
		if msg.ObjectID == "" {
			return sim.Command{}, false
		}
		return sim.Command{
			Type:     sim.CommandInteract,
			Interact: &sim.InteractCommand{ObjectID: msg.ObjectID},
		}, true
	case TypeStop:
		return sim.Command{Type: sim.CommandStop}, true
	case TypeSetLoad:
		return sim.Command{
			Type: sim.CommandSetLoad,
			Load: &sim.LoadCommand{Load: msg.Load},
		}, true
	case TypePlaceObject:
		if msg.ObjectID == "" {
			return sim.Command{}, false
		}
		return sim.Command{
			Type: sim.CommandPlaceObject,
			Object: &sim.ObjectCommand{
				ID:     msg.ObjectID,
				Kind:   msg.Kind,
				Column: msg.Column,
				Row:    msg.Row,
			},
		}, true
	case TypeRemoveObject:
		if msg.ObjectID == "" {
			return sim.Command{}, false
		}
		return sim.Command{
			Type:   sim.CommandRemoveObject,
			Object: &sim.ObjectCommand{ID: msg.ObjectID},
		}, true
	default:
		return sim.Command{}, false
	}
}

// CommandAck describes an acknowledgement of a queued command.
type CommandAck struct {
	Seq  uint64
	Tick uint64
}

// EncodeCommandAck renders a command acknowledgement response.
func EncodeCommandAck(msg CommandAck) ([]byte, error) {
	frame := struct {
		Ver  int    `json:"ver"`
		Type string `json:"type"`
		Seq  uint64 `json:"seq"`
		Tick uint64 `json:"tick,omitempty"`
	}{
		Ver:  Version,
		Type: typeCommandAck,
		Seq:  msg.Seq,
		Tick: msg.Tick,
	}
	return json.Marshal(frame)
}

// CommandReject notifies the client that a command was refused.
type CommandReject struct {
	Seq    uint64
	Reason string
	Retry  bool
}

// EncodeCommandReject renders a command rejection response.
func EncodeCommandReject(msg CommandReject) ([]byte, error) {
	frame := struct {
		Ver    int    `json:"ver"`
		Type   string `json:"type"`
		Seq    uint64 `json:"seq"`
		Reason string `json:"reason"`
		Retry  bool   `json:"retry,omitempty"`
	}{
		Ver:    Version,
		Type:   typeCommandReject,
		Seq:    msg.Seq,
		Reason: msg.Reason,
		Retry:  msg.Retry,
	}
	return json.Marshal(frame)
}

// Heartbeat echoes timing metadata back to the client.
type Heartbeat struct {
	ServerTime int64
	ClientTime int64
	RTTMillis  int64
}

// EncodeHeartbeat renders a heartbeat acknowledgement payload.
func EncodeHeartbeat(msg Heartbeat) ([]byte, error) {
	frame := struct {
		Ver        int    `json:"ver"`
		Type       string `json:"type"`
		ServerTime int64  `json:"serverTime"`
		ClientTime int64  `json:"clientTime"`
		RTTMillis  int64  `json:"rtt"`
	}{
		Ver:        Version,
		Type:       typeHeartbeat,
		ServerTime: msg.ServerTime,
		ClientTime: msg.ClientTime,
		RTTMillis:  msg.RTTMillis,
	}
	return json.Marshal(frame)
}

// StateSnapshot is broadcast to every subscriber after each step.
type StateSnapshot struct {
	Ver        int                   `json:"ver"`
	Type       string                `json:"type"`
	Tick       uint64                `json:"t"`
	ServerTime int64                 `json:"serverTime"`
	Width      int                   `json:"width"`
	Height     int                   `json:"height"`
	TileSize   float64               `json:"tileSize"`
	Agents     []world.AgentSnapshot `json:"agents"`
	Objects    []world.Object        `json:"objects"`
}

// NewStateSnapshot wraps a world snapshot for the wire.
func NewStateSnapshot(snap world.Snapshot, serverTime int64) StateSnapshot {
	return StateSnapshot{
		Ver:        Version,
		Type:       typeState,
		Tick:       snap.Tick,
		ServerTime: serverTime,
		Width:      snap.Width,
		Height:     snap.Height,
		TileSize:   snap.TileSize,
		Agents:     snap.Agents,
		Objects:    snap.Objects,
	}
}

// EncodeStateSnapshot renders a state snapshot payload.
func EncodeStateSnapshot(msg StateSnapshot) ([]byte, error) {
	if msg.Type == "" {
		msg.Type = TypeState
	}
	msg.Ver = Version
	if msg.Agents == nil {
		msg.Agents = []world.AgentSnapshot{}
	}
	if msg.Objects == nil {
		msg.Objects = []world.Object{}
	}
	return json.Marshal(msg)
}

// JoinResponse answers POST /join.
type JoinResponse struct {
	Ver   int           `json:"ver"`
	ID    string        `json:"id"`
	Spawn grid.Cell     `json:"spawn"`
	State StateSnapshot `json:"state"`
}

// EncodeJoinResponse renders a join response payload.
func EncodeJoinResponse(msg JoinResponse) ([]byte, error) {
	msg.Ver = Version
	msg.State.Ver = Version
	if msg.State.Type == "" {
		msg.State.Type = TypeState
	}
	return json.Marshal(msg)
}

// Interaction tells an agent's client that it reached an object.
type Interaction struct {
	AgentID  string
	ObjectID string
	Kind     string
	Tick     uint64
}

// EncodeInteraction renders an interaction notice.
func EncodeInteraction(msg Interaction) ([]byte, error) {
	frame := struct {
		Ver      int    `json:"ver"`
		Type     string `json:"type"`
		AgentID  string `json:"agentId"`
		ObjectID string `json:"objectId"`
		Kind     string `json:"kind,omitempty"`
		Tick     uint64 `json:"t"`
	}{
		Ver:      Version,
		Type:     typeInteraction,
		AgentID:  msg.AgentID,
		ObjectID: msg.ObjectID,
		Kind:     msg.Kind,
		Tick:     msg.Tick,
	}
	return json.Marshal(frame)
}
