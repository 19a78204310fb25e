package sim

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"tilewalk/server/logging"
	"tilewalk/server/logging/simulation"
)

const (
	// CommandRejectQueueLimit indicates a command was dropped due to per-actor
	// queue throttling.
	CommandRejectQueueLimit = "queue_limit"
	// CommandRejectQueueFull indicates the global command buffer is saturated.
	CommandRejectQueueFull = "queue_full"
	// CommandRejectInvalid indicates the command payload did not match its type.
	CommandRejectInvalid = "invalid"

	tickMetricKey          = "sim_tick"
	overrunMetricKey       = "sim_tick_budget_overrun_total"
	commandsAppliedKey     = "sim_commands_applied_total"
	commandsRejectedKey    = "sim_commands_rejected_total"
	defaultTickRate        = 15
	defaultCommandCapacity = 1024
)

// LoopConfig tunes the command buffer and tick loop orchestration.
type LoopConfig struct {
	TickRate        int `yaml:"tick_rate"`
	CatchupMaxTicks int `yaml:"catchup_max_ticks"`
	CommandCapacity int `yaml:"command_capacity"`
	PerActorLimit   int `yaml:"per_actor_limit"`
	WarningStep     int `yaml:"warning_step"`
}

// DefaultLoopConfig runs at 15Hz with room for a burst of clicks per agent.
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		TickRate:        defaultTickRate,
		CatchupMaxTicks: 3,
		CommandCapacity: defaultCommandCapacity,
		PerActorLimit:   8,
		WarningStep:     256,
	}
}

func (cfg LoopConfig) normalized() LoopConfig {
	if cfg.TickRate <= 0 {
		cfg.TickRate = defaultTickRate
	}
	if cfg.CatchupMaxTicks < 1 {
		cfg.CatchupMaxTicks = 1
	}
	if cfg.CommandCapacity <= 0 {
		cfg.CommandCapacity = defaultCommandCapacity
	}
	return cfg
}

// LoopHooks observe the loop. All of them run on the loop goroutine except
// OnCommandDrop and OnQueueWarning, which run on the enqueuing goroutine.
type LoopHooks struct {
	AfterStep      func(LoopStepResult)
	OnCommandDrop  func(reason string, cmd Command)
	OnQueueWarning func(length int)
}

// LoopTickContext describes the step about to run.
type LoopTickContext struct {
	Tick  uint64
	Now   time.Time
	Delta float64
}

// LoopStepResult reports a completed step.
type LoopStepResult struct {
	Tick         uint64
	Now          time.Time
	Delta        float64
	Duration     time.Duration
	Budget       time.Duration
	ClampedDelta bool
	MaxDelta     float64
	Commands     []Command
}

// Loop coordinates command ingestion and the fixed-timestep simulation runner.
type Loop struct {
	engine Engine
	buffer *CommandBuffer
	hooks  LoopHooks
	config LoopConfig
	deps   Deps

	tick          atomic.Uint64
	overrunStreak uint64

	queueMu       sync.Mutex
	perActorCount map[string]int
	dropCounts    map[string]uint64
}

// NewLoop wraps engine with a ring-buffer queue and a fixed-timestep runner.
func NewLoop(engine Engine, cfg LoopConfig, deps Deps, hooks LoopHooks) *Loop {
	if engine == nil {
		return nil
	}
	cfg = cfg.normalized()
	deps = deps.withDefaults()
	return &Loop{
		engine:        engine,
		buffer:        NewCommandBuffer(cfg.CommandCapacity, deps.Metrics),
		hooks:         hooks,
		config:        cfg,
		deps:          deps,
		perActorCount: make(map[string]int),
		dropCounts:    make(map[string]uint64),
	}
}

// Config returns the normalised configuration.
func (l *Loop) Config() LoopConfig {
	if l == nil {
		return LoopConfig{}
	}
	return l.config
}

// Tick reports the last completed tick.
func (l *Loop) Tick() uint64 {
	if l == nil {
		return 0
	}
	return l.tick.Load()
}

// Pending reports the number of staged commands.
func (l *Loop) Pending() int {
	if l == nil {
		return 0
	}
	return l.buffer.Len()
}

// DrainCommands clears the staged command queue without advancing the engine.
func (l *Loop) DrainCommands() []Command {
	if l == nil {
		return nil
	}
	return l.drainCommands()
}

// Enqueue stages a command, enforcing per-actor throttling and capacity limits.
func (l *Loop) Enqueue(cmd Command) (bool, string) {
	if l == nil {
		return false, CommandRejectQueueFull
	}
	if !cmd.Valid() {
		l.reportDrop(CommandRejectInvalid, cmd, 0)
		return false, CommandRejectInvalid
	}
	if cmd.OriginTick == 0 {
		cmd.OriginTick = l.tick.Load()
	}
	if cmd.IssuedAt.IsZero() {
		cmd.IssuedAt = l.deps.Clock.Now()
	}

	reason := ""
	var dropCount uint64
	warnAt := 0
	l.queueMu.Lock()
	if l.config.PerActorLimit > 0 && cmd.ActorID != "" {
		count := l.perActorCount[cmd.ActorID]
		if count >= l.config.PerActorLimit {
			reason = CommandRejectQueueLimit
			dropCount = l.incrementDropLocked(cmd.ActorID)
		} else {
			l.perActorCount[cmd.ActorID] = count + 1
		}
	}
	if reason == "" {
		if !l.buffer.Push(cmd) {
			reason = CommandRejectQueueFull
			dropCount = l.incrementDropLocked(cmd.ActorID)
			if cmd.ActorID != "" && l.perActorCount[cmd.ActorID] > 0 {
				l.perActorCount[cmd.ActorID]--
			}
		} else if step := l.config.WarningStep; step > 0 {
			if length := l.buffer.Len(); length >= step && length%step == 0 {
				warnAt = length
			}
		}
	}
	l.queueMu.Unlock()

	if reason != "" {
		l.reportDrop(reason, cmd, dropCount)
		return false, reason
	}
	if warnAt > 0 && l.hooks.OnQueueWarning != nil {
		l.hooks.OnQueueWarning(warnAt)
	}
	return true, ""
}

// Advance executes a single simulation step using the staged commands.
func (l *Loop) Advance(ctx LoopTickContext) LoopStepResult {
	if l == nil {
		return LoopStepResult{}
	}
	commands := l.drainCommands()
	if len(commands) > 0 {
		l.engine.Apply(ctx.Tick, commands)
		if l.deps.Metrics != nil {
			l.deps.Metrics.Add(commandsAppliedKey, uint64(len(commands)))
		}
	}
	l.engine.Step(ctx.Tick, ctx.Delta)
	l.tick.Store(ctx.Tick)
	if l.deps.Metrics != nil {
		l.deps.Metrics.Store(tickMetricKey, ctx.Tick)
	}
	return LoopStepResult{
		Tick:     ctx.Tick,
		Now:      ctx.Now,
		Delta:    ctx.Delta,
		Commands: commands,
	}
}

// Run drives the fixed-timestep loop until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	if l == nil {
		return nil
	}
	budget := time.Second / time.Duration(l.config.TickRate)
	ticker := time.NewTicker(budget)
	defer ticker.Stop()

	clock := l.deps.Clock
	last := clock.Now()
	budgetSeconds := budget.Seconds()
	maxDt := budgetSeconds * float64(l.config.CatchupMaxTicks)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			now := clock.Now()
			dt := now.Sub(last).Seconds()
			clamped := false
			if dt <= 0 {
				dt = budgetSeconds
			} else if dt > maxDt {
				dt = maxDt
				clamped = true
			}
			last = now

			start := clock.Now()
			result := l.Advance(LoopTickContext{Tick: l.tick.Load() + 1, Now: now, Delta: dt})
			result.Duration = clock.Now().Sub(start)
			result.Budget = budget
			result.ClampedDelta = clamped
			result.MaxDelta = maxDt
			l.checkBudget(ctx, result)

			if l.hooks.AfterStep != nil {
				l.hooks.AfterStep(result)
			}
		}
	}
}

func (l *Loop) checkBudget(ctx context.Context, result LoopStepResult) {
	if result.Budget <= 0 || result.Duration <= result.Budget {
		l.overrunStreak = 0
		return
	}
	l.overrunStreak++
	if l.deps.Metrics != nil {
		l.deps.Metrics.Add(overrunMetricKey, 1)
	}
	simulation.TickBudgetOverrun(ctx, l.deps.Publisher, result.Tick, simulation.TickBudgetOverrunPayload{
		DurationMillis: result.Duration.Milliseconds(),
		BudgetMillis:   result.Budget.Milliseconds(),
		Ratio:          float64(result.Duration) / float64(result.Budget),
		Streak:         l.overrunStreak,
	}, nil)
}

func (l *Loop) drainCommands() []Command {
	l.queueMu.Lock()
	defer l.queueMu.Unlock()
	commands := l.buffer.Drain()
	if len(l.perActorCount) > 0 {
		l.perActorCount = make(map[string]int)
	}
	return commands
}

func (l *Loop) incrementDropLocked(actorID string) uint64 {
	if actorID == "" {
		return 0
	}
	count := l.dropCounts[actorID] + 1
	l.dropCounts[actorID] = count
	return count
}

func (l *Loop) reportDrop(reason string, cmd Command, count uint64) {
	if l.deps.Metrics != nil {
		l.deps.Metrics.Add(commandsRejectedKey, 1)
	}
	if l.hooks.OnCommandDrop != nil {
		l.hooks.OnCommandDrop(reason, cmd)
	}
	// Throttled drops are reported on powers of two only.
	if reason != CommandRejectInvalid && (count == 0 || count&(count-1) != 0) {
		return
	}
	l.deps.Logger.Printf(
		"[backpressure] dropping command actor=%s type=%s reason=%s count=%d limit=%d",
		cmd.ActorID,
		cmd.Type,
		reason,
		count,
		l.config.PerActorLimit,
	)
	simulation.CommandRejected(context.Background(), l.deps.Publisher, l.tick.Load(), logging.AgentRef(cmd.ActorID),
		simulation.CommandRejectedPayload{Kind: string(cmd.Type), Reason: reason}, nil)
}
