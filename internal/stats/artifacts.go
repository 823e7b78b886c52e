package stats

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"harmonia/internal/oscillator"
	"harmonia/internal/platform"
	"harmonia/internal/score"
	"harmonia/internal/variant"
)

const runIndexFile = "run_index.json"

// RunSettings is the input side of a run, written alongside its outputs so a
// run can be reproduced from its artifacts directory.
type RunSettings struct {
	RunID          string           `json:"run_id"`
	Seed           int64            `json:"seed"`
	Ticks          int              `json:"ticks"`
	TickIntervalMS int64            `json:"tick_interval_ms"`
	Balance        float64          `json:"balance"`
	Store          string           `json:"store,omitempty"`
	Metrics        score.SubMetrics `json:"metrics"`
	Workload       score.Workload   `json:"workload"`
}

type RunArtifacts struct {
	Settings       RunSettings      `json:"settings"`
	Trajectory     []score.Entry    `json:"trajectory"`
	FinalState     oscillator.State `json:"final_state"`
	Balance        platform.Balance `json:"balance"`
	Variants       []variant.Agent  `json:"variants,omitempty"`
	FinalScore     float64          `json:"final_score"`
	AggregateScore float64          `json:"aggregate_score"`
}

type RunIndexEntry struct {
	RunID          string  `json:"run_id"`
	Seed           int64   `json:"seed"`
	Ticks          int     `json:"ticks"`
	FinalScore     float64 `json:"final_score"`
	AggregateScore float64 `json:"aggregate_score"`
	Variants       int     `json:"variants"`
	CreatedAtUTC   string  `json:"created_at_utc"`
}

func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Settings.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.Settings.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, "settings.json"), artifacts.Settings); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "trajectory.json"), artifacts.Trajectory); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "final_state.json"), artifacts.FinalState); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "variants.json"), artifacts.Variants); err != nil {
		return "", err
	}
	summary := map[string]any{
		"final_score":     artifacts.FinalScore,
		"aggregate_score": artifacts.AggregateScore,
		"balance":         artifacts.Balance,
	}
	if err := writeJSON(filepath.Join(runDir, "summary.json"), summary); err != nil {
		return "", err
	}

	return runDir, nil
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns the run index, newest first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	path := filepath.Join(baseDir, runIndexFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// Prefer later appended entries for equal timestamps.
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

func ReadRunSettings(baseDir, runID string) (RunSettings, bool, error) {
	path := filepath.Join(baseDir, runID, "settings.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return RunSettings{}, false, nil
		}
		return RunSettings{}, false, err
	}

	var settings RunSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return RunSettings{}, false, err
	}
	return settings, true, nil
}

func ReadTrajectory(baseDir, runID string) ([]score.Entry, bool, error) {
	path := filepath.Join(baseDir, runID, "trajectory.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var trajectory []score.Entry
	if err := json.Unmarshal(data, &trajectory); err != nil {
		return nil, false, err
	}
	return trajectory, true, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}
