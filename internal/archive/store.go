package archive

import (
	"context"
	"time"

	"harmonia/internal/score"
	"harmonia/internal/toggle"
	"harmonia/internal/variant"
)

// RunRecord summarizes one completed engine run.
type RunRecord struct {
	VersionedRecord
	ID             string    `json:"id"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	Seed           int64     `json:"seed"`
	Ticks          int       `json:"ticks"`
	FinalScore     float64   `json:"final_score"`
	AggregateScore float64   `json:"aggregate_score"`
	FinalEntropy   float64   `json:"final_entropy"`
	FinalRegime    string    `json:"final_regime,omitempty"`
}

// Store persists run snapshots: the run summary, the score trajectory, the
// flag audit trail and the variant lineage.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run RunRecord) error
	GetRun(ctx context.Context, id string) (RunRecord, bool, error)
	ListRuns(ctx context.Context) ([]RunRecord, error)
	SaveScoreHistory(ctx context.Context, runID string, entries []score.Entry) error
	GetScoreHistory(ctx context.Context, runID string) ([]score.Entry, bool, error)
	SaveFlagAudit(ctx context.Context, runID string, events []toggle.Event) error
	GetFlagAudit(ctx context.Context, runID string) ([]toggle.Event, bool, error)
	SaveLineage(ctx context.Context, runID string, agents []variant.Agent) error
	GetLineage(ctx context.Context, runID string) ([]variant.Agent, bool, error)
}

type Resetter interface {
	Reset(ctx context.Context) error
}
