package archive

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"harmonia/internal/platform"
	"harmonia/internal/toggle"
)

// Recorder is a platform support module that records a run snapshot into a
// Store: flag events as they happen, then the score trajectory, the variant
// lineage and the run summary on Stop. The engine core never touches the
// store; the recorder consumes the same events any external collaborator
// would.
type Recorder struct {
	store Store
	runID string
	seed  int64

	mu        sync.Mutex
	engine    *platform.Engine
	subID     string
	startedAt time.Time
	ticks     int
	flags     []toggle.Event
}

func NewRecorder(store Store, runID string, seed int64) (*Recorder, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if runID == "" {
		return nil, errors.New("run id is required")
	}
	return &Recorder{store: store, runID: runID, seed: seed}, nil
}

func (r *Recorder) Name() string {
	return "archive-recorder"
}

func (r *Recorder) Start(engine *platform.Engine) error {
	if err := r.store.Init(context.Background()); err != nil {
		return fmt.Errorf("init archive store: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.engine = engine
	r.startedAt = time.Now()
	r.ticks = 0
	r.flags = nil
	r.subID = engine.Subscribe(r.onEvent,
		platform.EventTick, platform.EventFlagActivated, platform.EventFlagDeactivated)
	return nil
}

func (r *Recorder) onEvent(event platform.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if event.Kind == platform.EventTick {
		r.ticks++
		return
	}
	if event.Flag != nil {
		r.flags = append(r.flags, *event.Flag)
	}
}

// Stop flushes the snapshot. The engine is already out of its loop when
// support modules stop, so the history and lineage reads are final.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	engine := r.engine
	subID := r.subID
	startedAt := r.startedAt
	ticks := r.ticks
	flags := append([]toggle.Event(nil), r.flags...)
	r.engine = nil
	r.subID = ""
	r.mu.Unlock()

	if engine == nil {
		return nil
	}
	engine.Unsubscribe(subID)

	ctx := context.Background()
	history := engine.History(0)
	state := engine.LastState()

	run := RunRecord{
		VersionedRecord: CurrentVersion(),
		ID:              r.runID,
		StartedAt:       startedAt,
		FinishedAt:      time.Now(),
		Seed:            r.seed,
		Ticks:           ticks,
		AggregateScore:  engine.PopulationScore(),
		FinalEntropy:    state.Entropy,
		FinalRegime:     string(state.Regime),
	}
	if len(history) > 0 {
		run.FinalScore = history[0].Final
	}

	if err := r.store.SaveRun(ctx, run); err != nil {
		return err
	}
	if err := r.store.SaveScoreHistory(ctx, r.runID, history); err != nil {
		return err
	}
	if err := r.store.SaveFlagAudit(ctx, r.runID, flags); err != nil {
		return err
	}
	return r.store.SaveLineage(ctx, r.runID, engine.Variants())
}
