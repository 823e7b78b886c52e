package platform

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"harmonia/internal/oscillator"
	"harmonia/internal/score"
	"harmonia/internal/toggle"
	"harmonia/internal/variant"
)

type StopReason string

const (
	StopReasonNormal   StopReason = "normal"
	StopReasonShutdown StopReason = "shutdown"
)

// SupportModule is an external collaborator attached to the engine. Modules
// are started in order on Start, with rollback on partial failure, and
// stopped in reverse order on Stop.
type SupportModule interface {
	Name() string
	Start(engine *Engine) error
	Stop() error
}

type Config struct {
	Oscillator oscillator.Config
	Score      score.Config
	Toggle     toggle.Config
	Variant    variant.Config

	TickInterval time.Duration
	Clock        func() time.Time
	Logger       *zap.Logger
	Modules      []SupportModule
}

func DefaultConfig() Config {
	return Config{
		Oscillator:   oscillator.DefaultConfig(),
		Score:        score.DefaultConfig(),
		Toggle:       toggle.DefaultConfig(),
		Variant:      variant.DefaultConfig(),
		TickInterval: 500 * time.Millisecond,
	}
}

// Engine is the constructible control loop: oscillator cohorts, the score
// pipeline, the flag board and the variant population behind one mutex, with
// a supervised tick loop and synchronous event dispatch.
type Engine struct {
	mu sync.Mutex

	cfg    Config
	clock  func() time.Time
	logger *zap.Logger

	osc      *oscillator.Engine
	pipeline *score.Pipeline
	board    *toggle.Board
	variants *variant.Manager

	emitter *emitter
	balance *balanceTracker

	supervisor     *Supervisor
	startedModules []SupportModule
	started        bool
	lastStopReason StopReason
	lastRegime     oscillator.Regime
}

func New(cfg Config) (*Engine, error) {
	if cfg.TickInterval <= 0 {
		return nil, fmt.Errorf("tick interval must be > 0, got %s", cfg.TickInterval)
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	osc, err := oscillator.New(cfg.Oscillator)
	if err != nil {
		return nil, fmt.Errorf("oscillator config: %w", err)
	}
	pipeline, err := score.NewPipeline(cfg.Score)
	if err != nil {
		return nil, fmt.Errorf("score config: %w", err)
	}
	board, err := toggle.NewBoard(cfg.Toggle)
	if err != nil {
		return nil, fmt.Errorf("toggle config: %w", err)
	}
	variants, err := variant.NewManager(cfg.Variant)
	if err != nil {
		return nil, fmt.Errorf("variant config: %w", err)
	}

	e := &Engine{
		cfg:            cfg,
		clock:          cfg.Clock,
		logger:         cfg.Logger,
		osc:            osc,
		pipeline:       pipeline,
		board:          board,
		variants:       variants,
		emitter:        newEmitter(cfg.Logger),
		balance:        newBalanceTracker(),
		lastStopReason: StopReasonNormal,
		lastRegime:     osc.State().Regime,
	}
	return e, nil
}

// Start launches the periodic tick loop and the configured support modules.
// It is idempotent; a partial module failure rolls back the modules already
// started and leaves the engine stopped.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return nil
	}

	started := make([]SupportModule, 0, len(e.cfg.Modules))
	seen := make(map[string]struct{}, len(e.cfg.Modules))
	for i, module := range e.cfg.Modules {
		if module == nil {
			stopModules(started, e.logger)
			return fmt.Errorf("support module is nil at index %d", i)
		}
		name := module.Name()
		if name == "" {
			stopModules(started, e.logger)
			return fmt.Errorf("support module name is required at index %d", i)
		}
		if _, exists := seen[name]; exists {
			stopModules(started, e.logger)
			return fmt.Errorf("duplicate support module: %s", name)
		}
		if err := module.Start(e); err != nil {
			stopModules(started, e.logger)
			return fmt.Errorf("start support module %s: %w", name, err)
		}
		seen[name] = struct{}{}
		started = append(started, module)
	}

	supervisor := NewSupervisorWithHooks(SupervisorPolicy{}, SupervisorHooks{
		OnTaskRestart: func(name string, err error, restartCount int) {
			e.logger.Warn("loop task restarted",
				zap.String("task", name),
				zap.Int("restarts", restartCount),
				zap.Error(err))
		},
	})
	if err := supervisor.Start("tick-loop", e.runLoop); err != nil {
		stopModules(started, e.logger)
		return err
	}

	e.supervisor = supervisor
	e.startedModules = started
	e.started = true
	e.logger.Info("engine started",
		zap.Duration("tick_interval", e.cfg.TickInterval),
		zap.Int("modules", len(started)))
	return nil
}

func (e *Engine) runLoop(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.Tick()
		}
	}
}

// Stop halts the tick loop, freezes any pending perturbation countdown and
// stops the support modules in reverse order. Idempotent.
func (e *Engine) Stop() {
	e.StopWithReason(StopReasonNormal)
}

func (e *Engine) StopWithReason(reason StopReason) {
	if reason == "" {
		reason = StopReasonNormal
	}

	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return
	}
	supervisor := e.supervisor
	modules := e.startedModules
	e.supervisor = nil
	e.startedModules = nil
	e.started = false
	e.lastStopReason = reason
	e.mu.Unlock()

	if supervisor != nil {
		supervisor.StopAll()
	}
	stopModules(modules, e.logger)
	e.logger.Info("engine stopped", zap.String("reason", string(reason)))
}

func stopModules(modules []SupportModule, logger *zap.Logger) {
	for i := len(modules) - 1; i >= 0; i-- {
		if err := modules[i].Stop(); err != nil {
			logger.Warn("stop support module",
				zap.String("module", modules[i].Name()),
				zap.Error(err))
		}
	}
}

// Tick advances the oscillator set one step. A panicking advance is recovered
// and the last known-good state is reported instead of halting the loop.
func (e *Engine) Tick() oscillator.State {
	e.mu.Lock()
	state, events := e.tickLocked()
	e.mu.Unlock()

	e.emitter.emit(events...)
	return state
}

func (e *Engine) tickLocked() (state oscillator.State, events []Event) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("tick recovered", zap.Any("panic", r))
			state = e.osc.State()
			events = nil
		}
	}()

	_, _, beforeActive := e.osc.Perturbed()
	state = e.osc.Tick()
	_, _, afterActive := e.osc.Perturbed()
	now := e.clock()

	e.balance.record(state.Value, 1-state.Value, now)

	events = append(events, Event{Kind: EventTick, At: now, State: &state})
	if state.Regime != e.lastRegime {
		e.lastRegime = state.Regime
		events = append(events, Event{Kind: EventRegimeChanged, At: now, State: &state})
	}
	if beforeActive && !afterActive {
		events = append(events, Event{
			Kind:         EventPerturbationEnded,
			At:           now,
			State:        &state,
			Perturbation: &PerturbationInfo{Target: state.Value},
		})
	}
	return state, events
}

// EvaluateScore runs the composite pipeline once against the current entropy
// and flag multiplier. A panicking evaluation falls back to the last
// known-good entry.
func (e *Engine) EvaluateScore(metrics score.SubMetrics, load score.Workload) score.Result {
	e.mu.Lock()
	result := e.evaluateLocked(metrics, load)
	e.mu.Unlock()
	return result
}

func (e *Engine) evaluateLocked(metrics score.SubMetrics, load score.Workload) (result score.Result) {
	now := e.clock()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("score evaluation recovered", zap.Any("panic", r))
			e.balance.recordFailure(now)
			if last, ok := e.pipeline.Last(); ok {
				result = score.Result{Raw: last.Raw, Smoothed: last.Smoothed, Final: last.Final}
				return
			}
			result = score.Result{}
		}
	}()

	state := e.osc.State()
	multiplier := e.board.Multiplier(now)
	result = e.pipeline.Evaluate(metrics, load, state.Entropy, multiplier, now, e.board.ActiveNames())

	e.variants.SetMetrics(metrics)
	e.balance.record(clampUnit(result.Final), state.Entropy, now)
	return result
}

// ActivateFlag authorizes and activates one control flag. An authorization
// failure mutates nothing.
func (e *Engine) ActivateFlag(kind toggle.Kind, source, reason string, balance float64, target string) (toggle.Event, error) {
	e.mu.Lock()
	event, err := e.board.Activate(kind, source, reason, balance, target, e.clock())
	e.mu.Unlock()
	if err != nil {
		return toggle.Event{}, err
	}

	e.logger.Info("flag activated",
		zap.String("kind", string(kind)),
		zap.String("source", source),
		zap.Float64("value", event.Value),
		zap.String("impact", string(event.Impact)))
	e.emitter.emit(Event{Kind: EventFlagActivated, At: event.At, Flag: &event})
	return event, nil
}

func (e *Engine) DeactivateFlag(kind toggle.Kind, source, reason string, balance float64) (toggle.Event, error) {
	e.mu.Lock()
	event, err := e.board.Deactivate(kind, source, reason, balance, e.clock())
	e.mu.Unlock()
	if err != nil {
		return toggle.Event{}, err
	}

	e.logger.Info("flag deactivated",
		zap.String("kind", string(kind)),
		zap.String("source", source))
	e.emitter.emit(Event{Kind: EventFlagDeactivated, At: event.At, Flag: &event})
	return event, nil
}

// Perturb forces the reported synchrony value for the given number of ticks.
// A second perturbation replaces the one in flight.
func (e *Engine) Perturb(target float64, ticks int) error {
	e.mu.Lock()
	err := e.osc.Perturb(target, ticks)
	now := e.clock()
	e.mu.Unlock()
	if err != nil {
		return err
	}

	e.logger.Info("perturbation started",
		zap.Float64("target", target),
		zap.Int("ticks", ticks))
	e.emitter.emit(Event{
		Kind:         EventPerturbationStarted,
		At:           now,
		Perturbation: &PerturbationInfo{Target: target, Ticks: ticks},
	})
	return nil
}

// ReleasePerturbation clears an active perturbation early.
func (e *Engine) ReleasePerturbation() bool {
	e.mu.Lock()
	target, _, _ := e.osc.Perturbed()
	released := e.osc.Release()
	now := e.clock()
	e.mu.Unlock()
	if !released {
		return false
	}

	e.emitter.emit(Event{
		Kind:         EventPerturbationEnded,
		At:           now,
		Perturbation: &PerturbationInfo{Target: target},
	})
	return true
}

// SpawnVariant attempts one spawn near the critical balance point. A
// successful spawn reweighs the population.
func (e *Engine) SpawnVariant(balance, entropy float64, parentID string) (variant.Agent, bool) {
	e.mu.Lock()
	agent, ok := e.variants.Spawn(balance, entropy, parentID, e.clock())
	if ok {
		e.variants.Reweigh()
	}
	now := e.clock()
	e.mu.Unlock()
	if !ok {
		return variant.Agent{}, false
	}

	e.logger.Info("variant spawned",
		zap.String("id", agent.ID),
		zap.Int("generation", agent.Generation),
		zap.Float64("balance", agent.Balance),
		zap.Float64("score", agent.Score))
	e.emitter.emit(Event{Kind: EventVariantSpawned, At: now, Variant: &agent})
	return agent, true
}

func (e *Engine) PopulationScore() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.variants.AggregateScore()
}

func (e *Engine) Variants() []variant.Agent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.variants.Agents()
}

func (e *Engine) History(limit int) []score.Entry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pipeline.History(limit)
}

func (e *Engine) LastState() oscillator.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.osc.State()
}

func (e *Engine) Flags() []toggle.Flag {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.board.Flags()
}

func (e *Engine) ToggleMultiplier() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.board.Multiplier(e.clock())
}

func (e *Engine) BalanceSnapshot() Balance {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.balance.snapshot()
}

func (e *Engine) Started() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.started
}

func (e *Engine) LastStopReason() StopReason {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastStopReason
}

// Subscribe registers a handler for the given event kinds (all kinds when
// none are named) and returns the subscription id.
func (e *Engine) Subscribe(handler Handler, kinds ...EventKind) string {
	return e.emitter.subscribe(handler, kinds...)
}

func (e *Engine) Unsubscribe(id string) bool {
	return e.emitter.unsubscribe(id)
}
