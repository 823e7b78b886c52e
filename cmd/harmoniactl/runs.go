package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"harmonia/internal/stats"
)

var runsFlags struct {
	limit   int
	jsonOut bool
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List archived runs from the artifacts index, newest first",
	RunE:  runRuns,
}

func init() {
	runsCmd.Flags().IntVar(&runsFlags.limit, "limit", 20, "max runs to list")
	runsCmd.Flags().BoolVar(&runsFlags.jsonOut, "json", false, "emit the runs list as JSON")
}

func runRuns(cmd *cobra.Command, args []string) error {
	if runsFlags.limit <= 0 {
		return errors.New("limit must be > 0")
	}

	entries, err := stats.ListRunIndex(artifactsDir)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("no runs found")
		return nil
	}
	if len(entries) > runsFlags.limit {
		entries = entries[:runsFlags.limit]
	}

	if runsFlags.jsonOut {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(entries)
	}

	for _, entry := range entries {
		fmt.Printf("run_id=%s created_at=%s seed=%d ticks=%d final_score=%.6f aggregate_score=%.6f variants=%d\n",
			entry.RunID, entry.CreatedAtUTC, entry.Seed, entry.Ticks,
			entry.FinalScore, entry.AggregateScore, entry.Variants)
	}
	return nil
}
