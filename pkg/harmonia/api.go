package harmonia

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"harmonia/internal/archive"
	"harmonia/internal/oscillator"
	"harmonia/internal/platform"
	"harmonia/internal/score"
	"harmonia/internal/stats"
	"harmonia/internal/toggle"
	"harmonia/internal/variant"
)

const (
	defaultArtifactsDir = "artifacts"
	defaultDBPath       = "harmonia.db"
	defaultRunTicks     = 100
	defaultBalance      = 0.5
)

type Options struct {
	StoreKind    string
	DBPath       string
	ArtifactsDir string
	TickInterval time.Duration
	Logger       *zap.Logger
}

// Client drives coherence runs against isolated engines and archives their
// snapshots. One client may execute many runs; each run owns its own engine.
type Client struct {
	store        archive.Store
	logger       *zap.Logger
	tickInterval time.Duration
	artifactsDir string
}

type Metrics struct {
	Grounding   float64
	Efficiency  float64
	Consistency float64
}

type Workload struct {
	Modules     int
	Parallelism int
	Depth       int
	Latency     float64
	ErrorRate   float64
}

type PerturbSpec struct {
	AtTick int
	Target float64
	Ticks  int
}

// FlagSpec schedules one flag operation during a run.
type FlagSpec struct {
	AtTick     int
	Kind       string
	Source     string
	Reason     string
	Target     string
	Deactivate bool
}

type RunRequest struct {
	RunID    string
	Ticks    int
	Seed     int64
	Balance  float64
	Metrics  *Metrics
	Workload Workload
	Perturb  *PerturbSpec
	Flags    []FlagSpec

	// SkipArtifacts suppresses the per-run artifacts directory; the archive
	// store still records the run.
	SkipArtifacts bool
}

type RunSummary struct {
	RunID          string
	Ticks          int
	Evaluations    int
	FinalScore     float64
	ScoreSummary   stats.Summary
	AggregateScore float64
	Variants       int
	FinalValue     float64
	FinalEntropy   float64
	FinalRegime    string
	Balance        platform.Balance
	ArtifactsDir   string
}

type RunItem struct {
	RunID          string
	StartedAtUTC   string
	Seed           int64
	FinalScore     float64
	AggregateScore float64
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = archive.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	artifactsDir := opts.ArtifactsDir
	if artifactsDir == "" {
		artifactsDir = defaultArtifactsDir
	}
	tickInterval := opts.TickInterval
	if tickInterval <= 0 {
		tickInterval = 500 * time.Millisecond
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	store, err := archive.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:        store,
		logger:       logger,
		tickInterval: tickInterval,
		artifactsDir: artifactsDir,
	}, nil
}

func (c *Client) Close() error {
	return archive.CloseIfSupported(c.store)
}

// Run executes one caller-driven run: every tick advances the oscillators,
// evaluates the score pipeline and offers the population one spawn attempt.
func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	if req.Ticks <= 0 {
		req.Ticks = defaultRunTicks
	}
	if req.Balance <= 0 {
		req.Balance = defaultBalance
	}
	if req.RunID == "" {
		req.RunID = fmt.Sprintf("coh:%d:%d", req.Seed, req.Ticks)
	}

	metrics := score.DefaultSubMetrics()
	if req.Metrics != nil {
		metrics = score.SubMetrics{
			Grounding:   req.Metrics.Grounding,
			Efficiency:  req.Metrics.Efficiency,
			Consistency: req.Metrics.Consistency,
		}
	}
	load := score.Workload{
		Modules:     req.Workload.Modules,
		Parallelism: req.Workload.Parallelism,
		Depth:       req.Workload.Depth,
		Latency:     req.Workload.Latency,
		ErrorRate:   req.Workload.ErrorRate,
	}

	recorder, err := archive.NewRecorder(c.store, req.RunID, req.Seed)
	if err != nil {
		return RunSummary{}, err
	}

	cfg := platform.DefaultConfig()
	// The run loop below drives every tick itself; the supervised background
	// loop stays idle so tick counts are exact.
	cfg.TickInterval = time.Hour
	cfg.Oscillator.Seed = req.Seed
	cfg.Variant.Seed = req.Seed
	cfg.Logger = c.logger
	cfg.Modules = []platform.SupportModule{recorder}

	engine, err := platform.New(cfg)
	if err != nil {
		return RunSummary{}, err
	}
	if err := engine.Start(); err != nil {
		return RunSummary{}, err
	}
	defer engine.Stop()

	flagsAt := make(map[int][]FlagSpec)
	for _, spec := range req.Flags {
		flagsAt[spec.AtTick] = append(flagsAt[spec.AtTick], spec)
	}

	for tick := 0; tick < req.Ticks; tick++ {
		if err := ctx.Err(); err != nil {
			return RunSummary{}, err
		}
		if req.Perturb != nil && tick == req.Perturb.AtTick {
			if err := engine.Perturb(req.Perturb.Target, req.Perturb.Ticks); err != nil {
				return RunSummary{}, err
			}
		}
		for _, spec := range flagsAt[tick] {
			if err := c.applyFlag(engine, spec, req.Balance); err != nil {
				return RunSummary{}, err
			}
		}

		state := engine.Tick()
		engine.EvaluateScore(metrics, load)
		engine.SpawnVariant(req.Balance, state.Entropy, "")
	}

	history := engine.History(0)
	state := engine.LastState()
	summary := RunSummary{
		RunID:          req.RunID,
		Ticks:          req.Ticks,
		Evaluations:    len(history),
		AggregateScore: engine.PopulationScore(),
		Variants:       len(engine.Variants()),
		FinalValue:     state.Value,
		FinalEntropy:   state.Entropy,
		FinalRegime:    string(state.Regime),
		Balance:        engine.BalanceSnapshot(),
		ScoreSummary:   stats.Summarize(stats.FinalsOf(history)),
	}
	if len(history) > 0 {
		summary.FinalScore = history[0].Final
	}

	if !req.SkipArtifacts {
		runDir, err := c.writeArtifacts(req, metrics, load, engine, history, state, summary)
		if err != nil {
			return RunSummary{}, err
		}
		summary.ArtifactsDir = runDir
	}
	return summary, nil
}

func (c *Client) applyFlag(engine *platform.Engine, spec FlagSpec, balance float64) error {
	kind, err := toggle.ParseKind(spec.Kind)
	if err != nil {
		return err
	}
	if spec.Deactivate {
		_, err = engine.DeactivateFlag(kind, spec.Source, spec.Reason, balance)
		return err
	}
	_, err = engine.ActivateFlag(kind, spec.Source, spec.Reason, balance, spec.Target)
	return err
}

func (c *Client) writeArtifacts(req RunRequest, metrics score.SubMetrics, load score.Workload,
	engine *platform.Engine, history []score.Entry, state oscillator.State, summary RunSummary) (string, error) {
	artifacts := stats.RunArtifacts{
		Settings: stats.RunSettings{
			RunID:          req.RunID,
			Seed:           req.Seed,
			Ticks:          req.Ticks,
			TickIntervalMS: c.tickInterval.Milliseconds(),
			Balance:        req.Balance,
			Metrics:        metrics,
			Workload:       load,
		},
		Trajectory:     history,
		FinalState:     state,
		Balance:        summary.Balance,
		Variants:       engine.Variants(),
		FinalScore:     summary.FinalScore,
		AggregateScore: summary.AggregateScore,
	}
	runDir, err := stats.WriteRunArtifacts(c.artifactsDir, artifacts)
	if err != nil {
		return "", err
	}
	if err := stats.AppendRunIndex(c.artifactsDir, stats.RunIndexEntry{
		RunID:          req.RunID,
		Seed:           req.Seed,
		Ticks:          req.Ticks,
		FinalScore:     summary.FinalScore,
		AggregateScore: summary.AggregateScore,
		Variants:       summary.Variants,
		CreatedAtUTC:   time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		return "", err
	}
	return runDir, nil
}

// Runs lists archived runs, newest first.
func (c *Client) Runs(ctx context.Context, limit int) ([]RunItem, error) {
	runs, err := c.store.ListRuns(ctx)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}

	out := make([]RunItem, 0, len(runs))
	for _, run := range runs {
		out = append(out, RunItem{
			RunID:          run.ID,
			StartedAtUTC:   run.StartedAt.UTC().Format(time.RFC3339),
			Seed:           run.Seed,
			FinalScore:     run.FinalScore,
			AggregateScore: run.AggregateScore,
		})
	}
	return out, nil
}

// History returns the archived score trajectory of a run, newest first.
func (c *Client) History(ctx context.Context, runID string, limit int) ([]score.Entry, bool, error) {
	entries, ok, err := c.store.GetScoreHistory(ctx, runID)
	if err != nil || !ok {
		return nil, ok, err
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, true, nil
}

// FlagAudit returns the archived flag events of a run in emission order.
func (c *Client) FlagAudit(ctx context.Context, runID string) ([]toggle.Event, bool, error) {
	return c.store.GetFlagAudit(ctx, runID)
}

// Lineage returns the archived variant population of a run.
func (c *Client) Lineage(ctx context.Context, runID string) ([]variant.Agent, bool, error) {
	return c.store.GetLineage(ctx, runID)
}
