package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"harmonia/internal/stats"
)

var historyFlags struct {
	runID   string
	limit   int
	jsonOut bool
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the archived score trajectory of a run",
	Long: `Reads a run's score trajectory, preferring the store and falling back to
the artifacts directory. Entries print newest first.`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&historyFlags.runID, "run-id", "", "run id")
	historyCmd.Flags().IntVar(&historyFlags.limit, "limit", 20, "max entries to print (0 for all)")
	historyCmd.Flags().BoolVar(&historyFlags.jsonOut, "json", false, "emit the trajectory as JSON")
	_ = historyCmd.MarkFlagRequired("run-id")
}

func runHistory(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	entries, ok, err := client.History(cmd.Context(), historyFlags.runID, historyFlags.limit)
	if err != nil {
		return err
	}
	if !ok {
		trajectory, found, err := stats.ReadTrajectory(artifactsDir, historyFlags.runID)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("run %s not found in store or artifacts", historyFlags.runID)
		}
		entries = trajectory
		if historyFlags.limit > 0 && len(entries) > historyFlags.limit {
			entries = entries[:historyFlags.limit]
		}
	}

	if historyFlags.jsonOut {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(entries)
	}

	for _, entry := range entries {
		flags := ""
		if len(entry.ActiveFlags) > 0 {
			flags = " flags=" + strings.Join(entry.ActiveFlags, ",")
		}
		fmt.Printf("time=%s final=%.6f raw=%.6f smoothed=%.6f entropy=%.6f toggle=%.4f%s\n",
			entry.Time.UTC().Format("2006-01-02T15:04:05.000Z"),
			entry.Final, entry.Raw, entry.Smoothed, entry.Entropy, entry.Toggle, flags)
	}
	return nil
}
