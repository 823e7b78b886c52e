package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/spf13/cobra"

	"harmonia/internal/stats"
	"harmonia/pkg/harmonia"
)

var sweepFlags struct {
	seeds    int
	baseSeed int64
	ticks    int
	balance  float64
	workers  int
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run a seed sweep on a worker pool and report score statistics",
	Long: `Executes one isolated run per seed on a bounded worker pool and prints
the final score of each run plus mean, std, min and max across the sweep.
Sweep runs skip the artifacts directory; only the store records them.`,
	RunE: runSweep,
}

func init() {
	sweepCmd.Flags().IntVar(&sweepFlags.seeds, "seeds", 8, "number of consecutive seeds to sweep")
	sweepCmd.Flags().Int64Var(&sweepFlags.baseSeed, "base-seed", 1, "first seed of the sweep")
	sweepCmd.Flags().IntVar(&sweepFlags.ticks, "ticks", 100, "tick count per run")
	sweepCmd.Flags().Float64Var(&sweepFlags.balance, "balance", 0.5, "stability/exploration balance in [0, 1]")
	sweepCmd.Flags().IntVar(&sweepFlags.workers, "workers", 4, "worker count")
}

type sweepResult struct {
	Seed           int64
	FinalScore     float64
	AggregateScore float64
	Variants       int
}

func runSweep(cmd *cobra.Command, args []string) error {
	if sweepFlags.seeds <= 0 {
		return errors.New("seeds must be > 0")
	}
	if sweepFlags.workers <= 0 {
		return errors.New("workers must be > 0")
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	results, summary, err := sweepSeeds(cmd.Context(), client, sweepOptions{
		Seeds:    sweepFlags.seeds,
		BaseSeed: sweepFlags.baseSeed,
		Ticks:    sweepFlags.ticks,
		Balance:  sweepFlags.balance,
		Workers:  sweepFlags.workers,
	})
	if err != nil {
		return err
	}

	for _, res := range results {
		fmt.Printf("seed=%d final_score=%.6f aggregate_score=%.6f variants=%d\n",
			res.Seed, res.FinalScore, res.AggregateScore, res.Variants)
	}
	fmt.Printf("sweep runs=%d mean=%.6f std=%.6f min=%.6f max=%.6f\n",
		summary.Count, summary.Mean, summary.Std, summary.Min, summary.Max)
	return nil
}

type sweepOptions struct {
	Seeds    int
	BaseSeed int64
	Ticks    int
	Balance  float64
	Workers  int
}

func sweepSeeds(ctx context.Context, client *harmonia.Client, opts sweepOptions) ([]sweepResult, stats.Summary, error) {
	type job struct {
		seed int64
	}
	type outcome struct {
		result sweepResult
		err    error
	}

	jobs := make(chan job)
	outcomes := make(chan outcome, opts.Seeds)

	workerCount := opts.Workers
	if workerCount > opts.Seeds {
		workerCount = opts.Seeds
	}

	var wg sync.WaitGroup
	wg.Add(workerCount)
	for w := 0; w < workerCount; w++ {
		go func() {
			defer wg.Done()
			for j := range jobs {
				if err := ctx.Err(); err != nil {
					outcomes <- outcome{err: err}
					continue
				}

				summary, err := client.Run(ctx, harmonia.RunRequest{
					RunID:         fmt.Sprintf("sweep:%d:%d", j.seed, opts.Ticks),
					Ticks:         opts.Ticks,
					Seed:          j.seed,
					Balance:       opts.Balance,
					SkipArtifacts: true,
				})
				if err != nil {
					outcomes <- outcome{err: err}
					continue
				}
				outcomes <- outcome{result: sweepResult{
					Seed:           j.seed,
					FinalScore:     summary.FinalScore,
					AggregateScore: summary.AggregateScore,
					Variants:       summary.Variants,
				}}
			}
		}()
	}

	for i := 0; i < opts.Seeds; i++ {
		jobs <- job{seed: opts.BaseSeed + int64(i)}
	}
	close(jobs)

	wg.Wait()
	close(outcomes)

	results := make([]sweepResult, 0, opts.Seeds)
	for out := range outcomes {
		if out.err != nil {
			return nil, stats.Summary{}, out.err
		}
		results = append(results, out.result)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Seed < results[j].Seed
	})

	finals := make([]float64, 0, len(results))
	for _, res := range results {
		finals = append(finals, res.FinalScore)
	}
	return results, stats.Summarize(finals), nil
}
