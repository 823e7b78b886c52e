package archive

import (
	"context"
	"sort"
	"sync"

	"harmonia/internal/score"
	"harmonia/internal/toggle"
	"harmonia/internal/variant"
)

type MemoryStore struct {
	mu      sync.RWMutex
	runs    map[string]RunRecord
	history map[string][]score.Entry
	audit   map[string][]toggle.Event
	lineage map[string][]variant.Agent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Init is idempotent: records survive repeated initialization. Reset wipes.
func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.runs == nil {
		s.runs = make(map[string]RunRecord)
		s.history = make(map[string][]score.Entry)
		s.audit = make(map[string][]toggle.Event)
		s.lineage = make(map[string][]variant.Agent)
	}
	return nil
}

func (s *MemoryStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs = make(map[string]RunRecord)
	s.history = make(map[string][]score.Entry)
	s.audit = make(map[string][]toggle.Event)
	s.lineage = make(map[string][]variant.Agent)
	return nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[run.ID] = run
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	return run, ok, nil
}

// ListRuns returns all runs, most recently started first.
func (s *MemoryStore) ListRuns(_ context.Context) ([]RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out, nil
}

func (s *MemoryStore) SaveScoreHistory(_ context.Context, runID string, entries []score.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]score.Entry, len(entries))
	copy(copied, entries)
	s.history[runID] = copied
	return nil
}

func (s *MemoryStore) GetScoreHistory(_ context.Context, runID string) ([]score.Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, ok := s.history[runID]
	if !ok {
		return nil, false, nil
	}
	copied := make([]score.Entry, len(entries))
	copy(copied, entries)
	return copied, true, nil
}

func (s *MemoryStore) SaveFlagAudit(_ context.Context, runID string, events []toggle.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]toggle.Event, len(events))
	copy(copied, events)
	s.audit[runID] = copied
	return nil
}

func (s *MemoryStore) GetFlagAudit(_ context.Context, runID string) ([]toggle.Event, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events, ok := s.audit[runID]
	if !ok {
		return nil, false, nil
	}
	copied := make([]toggle.Event, len(events))
	copy(copied, events)
	return copied, true, nil
}

func (s *MemoryStore) SaveLineage(_ context.Context, runID string, agents []variant.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]variant.Agent, len(agents))
	copy(copied, agents)
	s.lineage[runID] = copied
	return nil
}

func (s *MemoryStore) GetLineage(_ context.Context, runID string) ([]variant.Agent, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agents, ok := s.lineage[runID]
	if !ok {
		return nil, false, nil
	}
	copied := make([]variant.Agent, len(agents))
	copy(copied, agents)
	return copied, true, nil
}
