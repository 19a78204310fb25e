package server

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"tilewalk/server/internal/burden"
	"tilewalk/server/internal/grid"
	"tilewalk/server/internal/layout"
	"tilewalk/server/internal/net/proto"
	"tilewalk/server/internal/sim"
	"tilewalk/server/internal/telemetry"
	"tilewalk/server/internal/world"
	"tilewalk/server/logging"
)

const (
	// CommandRejectUnknownActor is returned for commands from agents that
	// are not (or no longer) in the world.
	CommandRejectUnknownActor = "unknown_actor"

	defaultHeartbeatInterval = 2 * time.Second

	metricBroadcasts     = "hub_broadcasts_total"
	metricBroadcastBytes = "hub_broadcast_bytes_total"
	metricSubscribers    = "hub_subscribers"
	metricReloads        = "hub_layout_reloads_total"
)

// HubConfig tunes the hub, its loop and its world.
type HubConfig struct {
	Loop              sim.LoopConfig `yaml:"loop"`
	World             world.Config   `yaml:"world"`
	HeartbeatInterval time.Duration  `yaml:"heartbeat_interval"`
}

// DefaultHubConfig returns the production defaults.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		Loop:              sim.DefaultLoopConfig(),
		World:             world.DefaultConfig(),
		HeartbeatInterval: defaultHeartbeatInterval,
	}
}

// DisconnectAfter is how long a silent agent survives.
func (cfg HubConfig) DisconnectAfter() time.Duration {
	return 3 * cfg.HeartbeatInterval
}

// HubDeps carries the infrastructure shared with the loop and the world.
type HubDeps struct {
	Logger    telemetry.Logger
	Publisher logging.Publisher
	Metrics   *logging.Metrics
	Clock     logging.Clock
	Script    *burden.Script
}

// Hub owns the world, the loop driving it and every connected subscriber.
type Hub struct {
	mu          sync.Mutex
	world       *world.World
	loop        *sim.Loop
	subscribers map[string]*subscriber
	heartbeats  map[string]*heartbeatState
	nextID      atomic.Uint64

	// interactions are queued during a step and flushed after broadcast.
	interactions []proto.Interaction

	config    HubConfig
	logger    telemetry.Logger
	publisher logging.Publisher
	metrics   *logging.Metrics
	clock     logging.Clock
}

type heartbeatState struct {
	last time.Time
	rtt  time.Duration
}

// DiagnosticsAgent is the per-agent row of /diagnostics.
type DiagnosticsAgent struct {
	ID            string  `json:"id"`
	LastHeartbeat int64   `json:"lastHeartbeat"`
	RTTMillis     int64   `json:"rttMillis"`
	Load          float64 `json:"load"`
	Subscribed    bool    `json:"subscribed"`
}

// NewHub builds the world from doc and wires a loop to it. The loop does not
// run until Run is called.
func NewHub(doc layout.Document, cfg HubConfig, deps HubDeps) (*Hub, error) {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaultHeartbeatInterval
	}
	h := &Hub{
		subscribers: make(map[string]*subscriber),
		heartbeats:  make(map[string]*heartbeatState),
		config:      cfg,
		logger:      deps.Logger,
		publisher:   deps.Publisher,
		metrics:     deps.Metrics,
		clock:       deps.Clock,
	}
	if h.logger == nil {
		h.logger = telemetry.Discard()
	}
	if h.publisher == nil {
		h.publisher = logging.NopPublisher()
	}
	if h.metrics == nil {
		h.metrics = &logging.Metrics{}
	}
	if h.clock == nil {
		h.clock = logging.SystemClock()
	}
	metrics := telemetry.WrapMetrics(h.metrics)

	w, err := world.New(doc, cfg.World, world.Deps{
		Publisher:  h.publisher,
		Metrics:    metrics,
		Script:     deps.Script,
		OnInteract: h.queueInteraction,
	})
	if err != nil {
		return nil, fmt.Errorf("hub: %w", err)
	}
	h.world = w

	engine := sim.EngineFuncs{
		ApplyFunc: func(_ uint64, commands []sim.Command) {
			h.mu.Lock()
			h.world.Apply(commands)
			h.mu.Unlock()
		},
		StepFunc: func(_ uint64, dt float64) {
			h.mu.Lock()
			h.world.Step(dt)
			h.mu.Unlock()
		},
	}
	h.loop = sim.NewLoop(engine, cfg.Loop, sim.Deps{
		Logger:    h.logger,
		Metrics:   metrics,
		Clock:     h.clock,
		Publisher: h.publisher,
	}, sim.LoopHooks{
		AfterStep: h.afterStep,
		OnQueueWarning: func(length int) {
			h.logger.Printf("[backpressure] command queue length=%d", length)
		},
	})
	return h, nil
}

// Run drives the simulation until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	return h.loop.Run(ctx)
}

// Config returns the hub configuration.
func (h *Hub) Config() HubConfig {
	return h.config
}

// Tick is the last tick the loop completed.
func (h *Hub) Tick() uint64 {
	return h.loop.Tick()
}

// TickRate is the loop frequency in Hz.
func (h *Hub) TickRate() int {
	return h.loop.Config().TickRate
}

// Join spawns a new agent on the layout spawn tile.
func (h *Hub) Join() (proto.JoinResponse, bool) {
	id := fmt.Sprintf("agent-%d", h.nextID.Add(1))

	h.mu.Lock()
	spawn := h.world.Spawn()
	if !h.world.AddAgent(id, spawn) {
		h.mu.Unlock()
		return proto.JoinResponse{}, false
	}
	h.heartbeats[id] = &heartbeatState{last: h.clock.Now()}
	state := proto.NewStateSnapshot(h.world.Snapshot(), h.clock.Now().UnixMilli())
	h.mu.Unlock()

	return proto.JoinResponse{ID: id, Spawn: spawn, State: state}, true
}

// Subscribe attaches a connection to an existing agent. A previous
// connection for the same agent is closed.
func (h *Hub) Subscribe(agentID string, conn Conn) (*subscriber, proto.StateSnapshot, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.world.HasAgent(agentID) {
		return nil, proto.StateSnapshot{}, false
	}
	if hb, ok := h.heartbeats[agentID]; ok {
		hb.last = h.clock.Now()
	}
	if existing, ok := h.subscribers[agentID]; ok {
		existing.Close()
	}
	sub := newSubscriber(conn)
	h.subscribers[agentID] = sub
	h.metrics.TelemetryStore(metricSubscribers, uint64(len(h.subscribers)))
	return sub, proto.NewStateSnapshot(h.world.Snapshot(), h.clock.Now().UnixMilli()), true
}

// Disconnect removes the agent and closes its connection. False when the
// agent was already gone.
func (h *Hub) Disconnect(agentID string) bool {
	return h.disconnect(agentID, "disconnect")
}

func (h *Hub) disconnect(agentID, reason string) bool {
	h.mu.Lock()
	sub, subOK := h.subscribers[agentID]
	if subOK {
		delete(h.subscribers, agentID)
	}
	delete(h.heartbeats, agentID)
	_, agentOK := h.world.RemoveAgent(agentID, reason)
	h.metrics.TelemetryStore(metricSubscribers, uint64(len(h.subscribers)))
	h.mu.Unlock()

	if subOK {
		sub.Close()
	}
	return agentOK
}

// Enqueue stages a command for agentID. The returned tick is the tick the
// command was accepted on.
func (h *Hub) Enqueue(agentID string, cmd sim.Command) (uint64, bool, string) {
	h.mu.Lock()
	known := h.world.HasAgent(agentID)
	h.mu.Unlock()
	if !known {
		return 0, false, CommandRejectUnknownActor
	}
	cmd.ActorID = agentID
	ok, reason := h.loop.Enqueue(cmd)
	return h.loop.Tick(), ok, reason
}

// UpdateHeartbeat records a heartbeat and returns the measured round trip.
func (h *Hub) UpdateHeartbeat(agentID string, receivedAt time.Time, clientSent int64) (time.Duration, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	hb, ok := h.heartbeats[agentID]
	if !ok {
		return 0, false
	}
	hb.last = receivedAt
	if clientSent > 0 {
		clientTime := time.UnixMilli(clientSent)
		if clientTime.Before(receivedAt.Add(5 * time.Second)) {
			rtt := receivedAt.Sub(clientTime)
			if rtt < 0 {
				rtt = 0
			}
			hb.rtt = rtt
		}
	}
	return hb.rtt, true
}

// Snapshot returns the current world view.
func (h *Hub) Snapshot() world.Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.world.Snapshot()
}

// Layout renders the live grid and objects as a layout document.
func (h *Hub) Layout() layout.Document {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.world.Layout()
}

// Settled returns every agent's settled tile.
func (h *Hub) Settled() map[string]grid.Cell {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.world.Settled()
}

// ReloadLayout rebuilds the world from the layout file at path and
// broadcasts the result. The old world stays in place when the file is
// invalid.
func (h *Hub) ReloadLayout(path string) error {
	doc, err := layout.Load(path)
	if err != nil {
		return err
	}
	h.mu.Lock()
	respawned, err := h.world.Reload(doc, path)
	h.mu.Unlock()
	if err != nil {
		return err
	}
	h.metrics.TelemetryAdd(metricReloads, 1)
	h.logger.Printf("[layout] reloaded %s respawned=%d", path, respawned)
	h.broadcastState()
	return nil
}

// DiagnosticsSnapshot lists connected agents in id order.
func (h *Hub) DiagnosticsSnapshot() []DiagnosticsAgent {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]DiagnosticsAgent, 0, len(h.heartbeats))
	for id, hb := range h.heartbeats {
		load, _ := h.world.Load(id)
		_, subscribed := h.subscribers[id]
		out = append(out, DiagnosticsAgent{
			ID:            id,
			LastHeartbeat: hb.last.UnixMilli(),
			RTTMillis:     hb.rtt.Milliseconds(),
			Load:          load,
			Subscribed:    subscribed,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// TelemetrySnapshot returns the counters shared by the hub, loop and world.
func (h *Hub) TelemetrySnapshot() map[string]uint64 {
	return h.metrics.Snapshot()
}

func (h *Hub) queueInteraction(agentID string, obj world.Object) {
	// Runs inside world.Step with h.mu held.
	h.interactions = append(h.interactions, proto.Interaction{
		AgentID:  agentID,
		ObjectID: obj.ID,
		Kind:     obj.Kind,
		Tick:     h.world.Tick(),
	})
}

func (h *Hub) afterStep(result sim.LoopStepResult) {
	now := result.Now
	if now.IsZero() {
		now = h.clock.Now()
	}
	for _, id := range h.staleAgents(now) {
		h.logger.Printf("disconnecting %s due to heartbeat timeout", id)
		h.disconnect(id, "heartbeat_timeout")
	}
	h.broadcastState()
	h.flushInteractions()
}

func (h *Hub) staleAgents(now time.Time) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	limit := h.config.DisconnectAfter()
	var stale []string
	for id, hb := range h.heartbeats {
		if now.Sub(hb.last) > limit {
			stale = append(stale, id)
		}
	}
	sort.Strings(stale)
	return stale
}

func (h *Hub) broadcastState() {
	h.mu.Lock()
	state := proto.NewStateSnapshot(h.world.Snapshot(), h.clock.Now().UnixMilli())
	subs := make(map[string]*subscriber, len(h.subscribers))
	for id, sub := range h.subscribers {
		subs[id] = sub
	}
	h.mu.Unlock()

	data, err := proto.EncodeStateSnapshot(state)
	if err != nil {
		h.logger.Printf("failed to marshal state message: %v", err)
		return
	}
	h.metrics.TelemetryAdd(metricBroadcasts, 1)
	h.metrics.TelemetryAdd(metricBroadcastBytes, uint64(len(data)))

	for id, sub := range subs {
		if err := sub.WriteText(data); err != nil {
			h.logger.Printf("failed to send update to %s: %v", id, err)
			h.disconnect(id, "write_failed")
		}
	}
}

func (h *Hub) flushInteractions() {
	h.mu.Lock()
	pending := h.interactions
	h.interactions = nil
	h.mu.Unlock()

	for _, msg := range pending {
		h.mu.Lock()
		sub, ok := h.subscribers[msg.AgentID]
		h.mu.Unlock()
		if !ok {
			continue
		}
		data, err := proto.EncodeInteraction(msg)
		if err != nil {
			h.logger.Printf("failed to marshal interaction for %s: %v", msg.AgentID, err)
			continue
		}
		if err := sub.WriteText(data); err != nil {
			h.disconnect(msg.AgentID, "write_failed")
		}
	}
}
