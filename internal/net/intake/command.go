package intake

import (
	"math"
	"time"

	"tilewalk/server/internal/net/proto"
	"tilewalk/server/internal/sim"
)

// Enqueuer accepts staged commands for an agent and reports the tick they
// were queued on.
type Enqueuer interface {
	Enqueue(agentID string, cmd sim.Command) (uint64, bool, string)
}

type CommandContext struct {
	Queue Enqueuer
	Now   func() time.Time
}

// StageClientCommand translates a client message into a simulation command,
// stamps it and queues it. The reason is empty on success.
func StageClientCommand(ctx CommandContext, agentID string, msg proto.ClientMessage) (sim.Command, uint64, bool, string) {
	var zero sim.Command

	command, ok := proto.ClientCommand(msg)
	if !ok || !command.Valid() {
		return zero, 0, false, sim.CommandRejectInvalid
	}
	if command.Load != nil && (math.IsNaN(command.Load.Load) || math.IsInf(command.Load.Load, 0)) {
		return zero, 0, false, sim.CommandRejectInvalid
	}

	command.ActorID = agentID
	if ctx.Now != nil {
		command.IssuedAt = ctx.Now()
	} else {
		command.IssuedAt = time.Now()
	}

	if ctx.Queue == nil {
		return zero, 0, false, sim.CommandRejectQueueFull
	}
	tick, ok, reason := ctx.Queue.Enqueue(agentID, command)
	if !ok {
		return zero, tick, false, reason
	}
	command.OriginTick = tick
	return command, tick, true, ""
}
