package score

import (
	"math"
	"testing"
	"time"
)

func testWorkload() Workload {
	return Workload{Modules: 3, Parallelism: 2, Depth: 1, Latency: 0.2, ErrorRate: 0.05}
}

func TestNewPipelineRejectsInvalidConfig(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero exponent", func(cfg *Config) { cfg.Exponent = 0 }},
		{"zero max error rate", func(cfg *Config) { cfg.MaxErrorRate = 0 }},
		{"negative entropy scale", func(cfg *Config) { cfg.EntropyScale = -1 }},
		{"zero epsilon", func(cfg *Config) { cfg.Epsilon = 0 }},
		{"negative alpha", func(cfg *Config) { cfg.FeedbackAlpha = -0.1 }},
		{"lambda at one", func(cfg *Config) { cfg.Lambda = 1 }},
		{"negative lambda", func(cfg *Config) { cfg.Lambda = -0.5 }},
		{"zero gain", func(cfg *Config) { cfg.Gain = 0 }},
		{"zero history limit", func(cfg *Config) { cfg.HistoryLimit = 0 }},
	}
	for _, tc := range cases {
		cfg := DefaultConfig()
		tc.mutate(&cfg)
		if _, err := NewPipeline(cfg); err == nil {
			t.Fatalf("%s: expected configuration error", tc.name)
		}
	}
}

func TestEvaluateKeepsFinalBounded(t *testing.T) {
	pipeline, err := NewPipeline(DefaultConfig())
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	metrics := []SubMetrics{
		{Grounding: 1.8, Efficiency: 2.0, Consistency: 3.0},
		{Grounding: -1, Efficiency: -0.5, Consistency: 0},
		DefaultSubMetrics(),
	}
	entropies := []float64{0, 0.001, 0.5, 1, 2}
	toggles := []float64{0, 0.5, 1, 1.5, 10}
	loads := []Workload{
		{},
		testWorkload(),
		{Modules: 500, Parallelism: 64, Depth: 12, Latency: 1, ErrorRate: 1},
		{Modules: -3, Parallelism: -1, Depth: -2, Latency: -4, ErrorRate: 9},
	}

	at := time.Unix(0, 0)
	for _, m := range metrics {
		for _, h := range entropies {
			for _, toggle := range toggles {
				for _, load := range loads {
					result := pipeline.Evaluate(m, load, h, toggle, at, nil)
					if result.Final < 0 || result.Final > 1 {
						t.Fatalf("final out of range: %f (metrics=%+v entropy=%f toggle=%f)", result.Final, m, h, toggle)
					}
					if math.IsNaN(result.Raw) || math.IsInf(result.Raw, 0) {
						t.Fatalf("raw not finite: %f", result.Raw)
					}
					at = at.Add(time.Second)
				}
			}
		}
	}
}

func TestEvaluateSmoothingConvergesOnConstantInput(t *testing.T) {
	pipeline, err := NewPipeline(DefaultConfig())
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	at := time.Unix(0, 0)
	pipeline.Evaluate(SubMetrics{Grounding: 0.2, Efficiency: 0.3, Consistency: 0.4}, testWorkload(), 0.5, 1, at, nil)

	var last Result
	for i := 0; i < 50; i++ {
		at = at.Add(time.Second)
		last = pipeline.Evaluate(DefaultSubMetrics(), testWorkload(), 0.5, 1, at, nil)
	}
	if diff := math.Abs(last.Smoothed - last.Raw); diff > 1e-9 {
		t.Fatalf("smoothed did not converge to raw: diff %g", diff)
	}
}

func TestEvaluateClampsInputsIntoHistoryEntry(t *testing.T) {
	pipeline, err := NewPipeline(DefaultConfig())
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	pipeline.Evaluate(
		SubMetrics{Grounding: 1.5, Efficiency: -0.2, Consistency: 0.6},
		Workload{Modules: -2, Parallelism: -1, Depth: -9, Latency: 3, ErrorRate: -1},
		1.7,
		-2,
		time.Unix(10, 0),
		[]string{"stop"},
	)

	entry, ok := pipeline.Last()
	if !ok {
		t.Fatalf("expected a history entry")
	}
	if entry.Metrics != (SubMetrics{Grounding: 1, Efficiency: 0, Consistency: 0.6}) {
		t.Fatalf("metrics not clamped: %+v", entry.Metrics)
	}
	if entry.Workload != (Workload{Latency: 1}) {
		t.Fatalf("workload not clamped: %+v", entry.Workload)
	}
	if entry.Entropy != 1 || entry.Toggle != 0 {
		t.Fatalf("entropy/toggle not clamped: %f %f", entry.Entropy, entry.Toggle)
	}
	if len(entry.ActiveFlags) != 1 || entry.ActiveFlags[0] != "stop" {
		t.Fatalf("active flags not recorded: %v", entry.ActiveFlags)
	}
}

func TestHistoryKeepsNewestEntriesFirst(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HistoryLimit = 5
	pipeline, err := NewPipeline(cfg)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	for i := 0; i < 8; i++ {
		pipeline.Evaluate(DefaultSubMetrics(), testWorkload(), 0.5, 1, time.Unix(int64(i), 0), nil)
	}

	all := pipeline.History(0)
	if len(all) != 5 {
		t.Fatalf("expected ring of 5 entries, got %d", len(all))
	}
	if all[0].Time != time.Unix(7, 0) || all[4].Time != time.Unix(3, 0) {
		t.Fatalf("history not newest first: %v .. %v", all[0].Time, all[4].Time)
	}

	two := pipeline.History(2)
	if len(two) != 2 || two[0].Time != time.Unix(7, 0) || two[1].Time != time.Unix(6, 0) {
		t.Fatalf("limited history wrong: %+v", two)
	}

	last, ok := pipeline.Last()
	if !ok || last.Time != time.Unix(7, 0) {
		t.Fatalf("last entry wrong: ok=%v time=%v", ok, last.Time)
	}
}

func TestFeedbackFloorsRawAfterLargeJump(t *testing.T) {
	jumped, err := NewPipeline(DefaultConfig())
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	fresh, err := NewPipeline(DefaultConfig())
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	// Near-zero entropy makes the first raw enormous; the next evaluation
	// sees a jump far beyond the feedback range and hits the 0.5 floor.
	jumped.Evaluate(SubMetrics{Grounding: 1, Efficiency: 1, Consistency: 1}, testWorkload(), 0, 1.5, time.Unix(0, 0), nil)
	damped := jumped.Evaluate(DefaultSubMetrics(), testWorkload(), 0.5, 1, time.Unix(1, 0), nil)
	undamped := fresh.Evaluate(DefaultSubMetrics(), testWorkload(), 0.5, 1, time.Unix(1, 0), nil)

	if diff := math.Abs(damped.Raw - 0.5*undamped.Raw); diff > 1e-9 {
		t.Fatalf("expected floored feedback raw %g, got %g", 0.5*undamped.Raw, damped.Raw)
	}
}

func TestCyclicModulatorDampsOverTime(t *testing.T) {
	mod := CyclicModulator{Amplitude: 0.1, Period: 4}

	if got := mod.Apply(0, 1); math.Abs(got-1.1) > 1e-12 {
		t.Fatalf("expected full correction at t=0, got %f", got)
	}
	if got := mod.Apply(200, 1); math.Abs(got-1) > 1e-3 {
		t.Fatalf("expected damped correction at t=200, got %f", got)
	}

	flat := CyclicModulator{Amplitude: 0.1, Period: 0}
	if got := flat.Apply(3, 0.7); got != 0.7 {
		t.Fatalf("zero period must pass through, got %f", got)
	}
}

func TestEvaluateAppliesConfiguredModulator(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Modulator = CyclicModulator{Amplitude: 0.1, Period: 4}
	modulated, err := NewPipeline(cfg)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	plain, err := NewPipeline(DefaultConfig())
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	at := time.Unix(0, 0)
	got := modulated.Evaluate(DefaultSubMetrics(), testWorkload(), 0.5, 1, at, nil)
	want := plain.Evaluate(DefaultSubMetrics(), testWorkload(), 0.5, 1, at, nil)

	if diff := math.Abs(got.Smoothed - want.Smoothed*1.1); diff > 1e-12 {
		t.Fatalf("modulator not applied at t=0: got %f want %f", got.Smoothed, want.Smoothed*1.1)
	}
}
