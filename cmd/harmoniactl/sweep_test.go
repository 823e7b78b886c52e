package main

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"harmonia/pkg/harmonia"
)

func newSweepClient(t *testing.T) *harmonia.Client {
	t.Helper()
	client, err := harmonia.New(harmonia.Options{
		ArtifactsDir: filepath.Join(t.TempDir(), "artifacts"),
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}

func TestSweepSeedsRunsEverySeed(t *testing.T) {
	client := newSweepClient(t)

	results, summary, err := sweepSeeds(context.Background(), client, sweepOptions{
		Seeds:    4,
		BaseSeed: 10,
		Ticks:    10,
		Balance:  0.5,
		Workers:  2,
	})
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("results = %d, want 4", len(results))
	}
	for i, res := range results {
		if res.Seed != int64(10+i) {
			t.Fatalf("results not ordered by seed: %+v", results)
		}
		if res.FinalScore == 0 {
			t.Fatalf("seed %d produced no score", res.Seed)
		}
	}
	if summary.Count != 4 {
		t.Fatalf("summary count = %d, want 4", summary.Count)
	}
	if summary.Min > summary.Max {
		t.Fatalf("summary bounds inverted: %+v", summary)
	}
}

func TestSweepSeedsMoreWorkersThanSeeds(t *testing.T) {
	client := newSweepClient(t)

	results, _, err := sweepSeeds(context.Background(), client, sweepOptions{
		Seeds:    2,
		BaseSeed: 1,
		Ticks:    5,
		Balance:  0.5,
		Workers:  8,
	})
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
}

func TestSweepSeedsHonorsCancellation(t *testing.T) {
	client := newSweepClient(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := sweepSeeds(ctx, client, sweepOptions{
		Seeds:    4,
		BaseSeed: 1,
		Ticks:    10,
		Balance:  0.5,
		Workers:  2,
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
