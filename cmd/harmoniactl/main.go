package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"harmonia/internal/archive"
	"harmonia/pkg/harmonia"
)

var (
	verbose      bool
	storeKind    string
	dbPath       string
	artifactsDir string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "harmoniactl",
	Short: "harmoniactl drives coherence runs against the harmonia engine",
	Long: `harmoniactl runs the harmonia coherence engine: a cohort of coupled
oscillators whose synchrony feeds a composite score pipeline, gated by a
control flag board and a self-spawning variant population.

Runs are archived to a store (memory or sqlite) and written as JSON
artifacts under the artifacts directory.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&storeKind, "store", archive.DefaultStoreKind(), "store backend: memory|sqlite")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db-path", "harmonia.db", "sqlite database path")
	rootCmd.PersistentFlags().StringVar(&artifactsDir, "artifacts-dir", "artifacts", "run artifacts directory")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(scoreCmd)
	rootCmd.AddCommand(flagCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(sweepCmd)
}

func newClient() (*harmonia.Client, error) {
	return harmonia.New(harmonia.Options{
		StoreKind:    storeKind,
		DBPath:       dbPath,
		ArtifactsDir: artifactsDir,
		Logger:       logger,
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
