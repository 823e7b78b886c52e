package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"harmonia/pkg/harmonia"
)

var runFlags struct {
	configPath string
	runID      string
	ticks      int
	seed       int64
	balance    float64

	grounding   float64
	efficiency  float64
	consistency float64

	modules     int
	parallelism int
	depth       int
	latency     float64
	errorRate   float64

	perturbAt     int
	perturbTarget float64
	perturbTicks  int

	noArtifacts bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one coherence run and archive its snapshot",
	Long: `Drives an isolated engine for the requested number of ticks. Every tick
advances the oscillator cohort, evaluates the score pipeline and offers the
variant population one spawn attempt. The run snapshot lands in the store
and, unless suppressed, in the artifacts directory.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runFlags.configPath, "config", "", "optional run config YAML path")
	runCmd.Flags().StringVar(&runFlags.runID, "run-id", "", "explicit run id (optional)")
	runCmd.Flags().IntVar(&runFlags.ticks, "ticks", 100, "tick count")
	runCmd.Flags().Int64Var(&runFlags.seed, "seed", 1, "rng seed")
	runCmd.Flags().Float64Var(&runFlags.balance, "balance", 0.5, "stability/exploration balance in [0, 1]")
	runCmd.Flags().Float64Var(&runFlags.grounding, "grounding", 0.75, "grounding sub-metric")
	runCmd.Flags().Float64Var(&runFlags.efficiency, "efficiency", 0.75, "efficiency sub-metric")
	runCmd.Flags().Float64Var(&runFlags.consistency, "consistency", 0.75, "consistency sub-metric")
	runCmd.Flags().IntVar(&runFlags.modules, "modules", 4, "active module count")
	runCmd.Flags().IntVar(&runFlags.parallelism, "parallelism", 2, "parallel execution lanes")
	runCmd.Flags().IntVar(&runFlags.depth, "depth", 1, "pipeline depth")
	runCmd.Flags().Float64Var(&runFlags.latency, "latency", 0, "observed latency in [0, 1]")
	runCmd.Flags().Float64Var(&runFlags.errorRate, "error-rate", 0, "observed error rate in [0, 1]")
	runCmd.Flags().IntVar(&runFlags.perturbAt, "perturb-at", -1, "tick to start a perturbation override (-1 disables)")
	runCmd.Flags().Float64Var(&runFlags.perturbTarget, "perturb-target", 0.9, "perturbation override value in [0, 1]")
	runCmd.Flags().IntVar(&runFlags.perturbTicks, "perturb-ticks", 10, "perturbation duration in ticks")
	runCmd.Flags().BoolVar(&runFlags.noArtifacts, "no-artifacts", false, "skip the per-run artifacts directory")
}

func runRun(cmd *cobra.Command, args []string) error {
	var req harmonia.RunRequest
	if runFlags.configPath != "" {
		cfg, err := loadRunConfig(runFlags.configPath)
		if err != nil {
			return err
		}
		req = cfg.toRequest()
	}

	set := cmd.Flags().Changed
	if runFlags.configPath == "" || set("run-id") {
		req.RunID = runFlags.runID
	}
	if runFlags.configPath == "" || set("ticks") {
		req.Ticks = runFlags.ticks
	}
	if runFlags.configPath == "" || set("seed") {
		req.Seed = runFlags.seed
	}
	if runFlags.configPath == "" || set("balance") {
		req.Balance = runFlags.balance
	}
	if runFlags.configPath == "" || set("grounding") || set("efficiency") || set("consistency") {
		req.Metrics = &harmonia.Metrics{
			Grounding:   runFlags.grounding,
			Efficiency:  runFlags.efficiency,
			Consistency: runFlags.consistency,
		}
	}
	if runFlags.configPath == "" || set("modules") || set("parallelism") || set("depth") || set("latency") || set("error-rate") {
		req.Workload = harmonia.Workload{
			Modules:     runFlags.modules,
			Parallelism: runFlags.parallelism,
			Depth:       runFlags.depth,
			Latency:     runFlags.latency,
			ErrorRate:   runFlags.errorRate,
		}
	}
	if set("perturb-at") && runFlags.perturbAt >= 0 {
		req.Perturb = &harmonia.PerturbSpec{
			AtTick: runFlags.perturbAt,
			Target: runFlags.perturbTarget,
			Ticks:  runFlags.perturbTicks,
		}
	}
	if set("no-artifacts") {
		req.SkipArtifacts = runFlags.noArtifacts
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Run(cmd.Context(), req)
	if err != nil {
		return err
	}

	fmt.Printf("run completed run_id=%s ticks=%d seed=%d\n", summary.RunID, summary.Ticks, req.Seed)
	fmt.Printf("final_score=%.6f mean=%.6f std=%.6f min=%.6f max=%.6f\n",
		summary.FinalScore,
		summary.ScoreSummary.Mean,
		summary.ScoreSummary.Std,
		summary.ScoreSummary.Min,
		summary.ScoreSummary.Max,
	)
	fmt.Printf("aggregate_score=%.6f variants=%d\n", summary.AggregateScore, summary.Variants)
	fmt.Printf("final_value=%.6f final_entropy=%.6f regime=%s\n", summary.FinalValue, summary.FinalEntropy, summary.FinalRegime)
	fmt.Printf("balance stability=%.4f exploration=%.4f ratio=%.4f\n",
		summary.Balance.Stability,
		summary.Balance.Exploration,
		summary.Balance.Ratio,
	)
	if summary.ArtifactsDir != "" {
		fmt.Printf("artifacts_dir=%s\n", summary.ArtifactsDir)
	}
	return nil
}
