package sim

import "time"

// CommandType enumerates the supported simulation commands.
type CommandType string

const (
	CommandMoveTo       CommandType = "MoveTo"
	CommandInteract     CommandType = "Interact"
	CommandStop         CommandType = "Stop"
	CommandSetLoad      CommandType = "SetLoad"
	CommandPlaceObject  CommandType = "PlaceObject"
	CommandRemoveObject CommandType = "RemoveObject"
)

// MoveCommand targets a tile.
type MoveCommand struct {
	Column int `json:"column"`
	Row    int `json:"row"`
}

// InteractCommand asks the actor to walk beside an object and use it.
type InteractCommand struct {
	ObjectID string `json:"objectId"`
}

// LoadCommand sets the weight an actor carries.
type LoadCommand struct {
	Load float64 `json:"load"`
}

// ObjectCommand places or removes a blocking object. Removal only needs ID.
type ObjectCommand struct {
	ID     string `json:"id"`
	Kind   string `json:"kind,omitempty"`
	Column int    `json:"column"`
	Row    int    `json:"row"`
}

// Command represents an intent captured for processing on the next tick.
type Command struct {
	OriginTick uint64           `json:"originTick"`
	ActorID    string           `json:"actorId"`
	Type       CommandType      `json:"type"`
	IssuedAt   time.Time        `json:"issuedAt"`
	Move       *MoveCommand     `json:"move,omitempty"`
	Interact   *InteractCommand `json:"interact,omitempty"`
	Load       *LoadCommand     `json:"load,omitempty"`
	Object     *ObjectCommand   `json:"object,omitempty"`
}

// Valid reports whether the payload required by Type is present.
func (c Command) Valid() bool {
	switch c.Type {
	case CommandMoveTo:
		return c.Move != nil
	case CommandInteract:
		return c.Interact != nil && c.Interact.ObjectID != ""
	case CommandStop:
		return true
	case CommandSetLoad:
		return c.Load != nil
	case CommandPlaceObject:
		return c.Object != nil && c.Object.ID != ""
	case CommandRemoveObject:
		return c.Object != nil && c.Object.ID != ""
	default:
		return false
	}
}
