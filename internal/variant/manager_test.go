package variant

import (
	"math"
	"testing"
	"time"

	"harmonia/internal/score"
)

// spikeEntropy drives the spawn probability to 1 so gating alone decides.
const spikeEntropy = 0.05

func newTestManager(t *testing.T, mutate func(*Config)) *Manager {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Seed = 17
	if mutate != nil {
		mutate(&cfg)
	}
	manager, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return manager
}

func TestNewManagerRejectsInvalidConfig(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero capacity", func(cfg *Config) { cfg.Capacity = 0 }},
		{"zero max generation", func(cfg *Config) { cfg.MaxGeneration = 0 }},
		{"zero entropy threshold", func(cfg *Config) { cfg.EntropyThreshold = 0 }},
		{"zero critical window", func(cfg *Config) { cfg.CriticalWindow = 0 }},
		{"wide critical window", func(cfg *Config) { cfg.CriticalWindow = 0.6 }},
		{"mutation rate above one", func(cfg *Config) { cfg.MutationRate = 1.5 }},
		{"negative resonance", func(cfg *Config) { cfg.GlobalResonance = -1 }},
		{"zero resonance decay", func(cfg *Config) { cfg.ResonanceDecay = 0 }},
	}
	for _, tc := range cases {
		cfg := DefaultConfig()
		tc.mutate(&cfg)
		if _, err := NewManager(cfg); err == nil {
			t.Fatalf("%s: expected configuration error", tc.name)
		}
	}
}

func TestSpawnNeverFiresBelowEntropyThreshold(t *testing.T) {
	manager := newTestManager(t, nil)

	for balance := 0.0; balance <= 1.0; balance += 0.05 {
		for attempt := 0; attempt < 20; attempt++ {
			if _, ok := manager.Spawn(balance, 0.01, "", time.Unix(0, 0)); ok {
				t.Fatalf("spawn fired at entropy 0.01, balance %g", balance)
			}
		}
	}
	if manager.Len() != 0 {
		t.Fatalf("population should stay empty, got %d", manager.Len())
	}
}

func TestSpawnChainsStopAtGenerationCap(t *testing.T) {
	manager := newTestManager(t, nil)
	at := time.Unix(0, 0)

	parent, ok := manager.Spawn(0.5, spikeEntropy, "", at)
	if !ok {
		t.Fatalf("root spawn refused")
	}
	if parent.Generation != 0 || parent.ParentID != "" {
		t.Fatalf("root agent lineage wrong: %+v", parent)
	}

	for want := 1; want <= 3; want++ {
		at = at.Add(time.Second)
		child, ok := manager.Spawn(0.5, spikeEntropy, parent.ID, at)
		if !ok {
			t.Fatalf("spawn at generation %d refused", want)
		}
		if child.Generation != want || child.ParentID != parent.ID {
			t.Fatalf("generation %d lineage wrong: %+v", want, child)
		}
		parent = child
	}

	if _, ok := manager.Spawn(0.5, spikeEntropy, parent.ID, at.Add(time.Second)); ok {
		t.Fatalf("spawn beyond generation cap must be refused")
	}
	for _, agent := range manager.Agents() {
		if agent.Generation > 3 {
			t.Fatalf("agent exceeds generation cap: %+v", agent)
		}
	}
}

func TestSpawnUnknownParentFallsBackToRootLineage(t *testing.T) {
	manager := newTestManager(t, nil)

	agent, ok := manager.Spawn(0.5, spikeEntropy, "no-such-agent", time.Unix(0, 0))
	if !ok {
		t.Fatalf("spawn refused")
	}
	if agent.Generation != 0 || agent.ParentID != "" {
		t.Fatalf("unknown parent should spawn root lineage: %+v", agent)
	}
}

func TestSpawnPullsBalanceTowardCenterOnEntropySpike(t *testing.T) {
	manager := newTestManager(t, nil)

	agent, ok := manager.Spawn(0.8, spikeEntropy, "", time.Unix(0, 0))
	if !ok {
		t.Fatalf("spawn refused")
	}
	if math.Abs(agent.Balance-0.68) > 1e-12 {
		t.Fatalf("spike spawn should pull balance 40%% toward 0.5: got %g, want 0.68", agent.Balance)
	}
}

func TestSpawnPerturbsBalanceInsideCriticalWindow(t *testing.T) {
	manager := newTestManager(t, nil)

	for i := 0; i < 30; i++ {
		agent, ok := manager.Spawn(0.5, spikeEntropy, "", time.Unix(int64(i), 0))
		if !ok {
			t.Fatalf("spawn %d refused", i)
		}
		if agent.Balance < 0.4-1e-12 || agent.Balance > 0.6+1e-12 {
			t.Fatalf("near-critical spawn outside perturbation window: %g", agent.Balance)
		}
	}
}

func TestSpawnClampsBalanceIntoOperatingRange(t *testing.T) {
	manager := newTestManager(t, func(cfg *Config) {
		cfg.CriticalWindow = 0.5
		cfg.Capacity = 100
	})

	for i := 0; i < 50; i++ {
		agent, ok := manager.Spawn(0.5, spikeEntropy, "", time.Unix(int64(i), 0))
		if !ok {
			t.Fatalf("spawn %d refused", i)
		}
		if agent.Balance < 0.1 || agent.Balance > 0.9 {
			t.Fatalf("balance escaped operating range: %g", agent.Balance)
		}
	}
}

func TestSpawnKeepsCriticalPluginsThroughMutation(t *testing.T) {
	manager := newTestManager(t, func(cfg *Config) {
		cfg.MutationRate = 1
		cfg.Capacity = 200
	})

	catalog := map[string]bool{}
	for _, p := range DefaultConfig().PluginCatalog {
		catalog[p] = true
	}

	mutated := false
	for i := 0; i < 100; i++ {
		agent, ok := manager.Spawn(0.5, spikeEntropy, "", time.Unix(int64(i), 0))
		if !ok {
			t.Fatalf("spawn %d refused", i)
		}
		if !contains(agent.Plugins, "stabilizer") {
			t.Fatalf("critical plugin removed: %v", agent.Plugins)
		}
		for _, p := range agent.Plugins {
			if !catalog[p] {
				t.Fatalf("plugin outside catalog: %q", p)
			}
		}
		if len(agent.Plugins) != 2 || agent.Plugins[0] != "stabilizer" || agent.Plugins[1] != "drift-monitor" {
			mutated = true
		}
	}
	if !mutated {
		t.Fatalf("expected at least one plugin mutation across 100 spawns")
	}
}

func TestSpawnAdvancesAlignmentTowardCeiling(t *testing.T) {
	manager := newTestManager(t, nil)
	at := time.Unix(0, 0)

	parent, ok := manager.Spawn(0.5, spikeEntropy, "", at)
	if !ok {
		t.Fatalf("root spawn refused")
	}
	child, ok := manager.Spawn(0.5, spikeEntropy, parent.ID, at.Add(time.Second))
	if !ok {
		t.Fatalf("child spawn refused")
	}

	if child.Alignment <= parent.Alignment {
		t.Fatalf("alignment should increase along lineage: parent %g child %g", parent.Alignment, child.Alignment)
	}
	if child.Alignment > 0.999 {
		t.Fatalf("alignment above ceiling: %g", child.Alignment)
	}
}

func TestReweighRenormalizesWeightsIntoBand(t *testing.T) {
	manager := newTestManager(t, nil)
	base := time.Unix(1000, 0)
	manager.agents = []Agent{
		{ID: "a", Score: 0.9, Entropy: 0.01, Alignment: 0.8, CreatedAt: base},
		{ID: "b", Score: 0.85, Entropy: 0.012, Alignment: 0.79, CreatedAt: base.Add(time.Second)},
		{ID: "c", Score: 0.2, Entropy: 0.3, Alignment: 0.3, CreatedAt: base.Add(10 * time.Minute)},
	}

	manager.Reweigh()

	agents := manager.Agents()
	lowest := 2.0
	highest := -1.0
	for _, agent := range agents {
		if agent.Weight < 0.25 || agent.Weight > 1 {
			t.Fatalf("weight outside [0.25, 1]: %+v", agent)
		}
		lowest = math.Min(lowest, agent.Weight)
		highest = math.Max(highest, agent.Weight)
	}
	if math.Abs(lowest-0.25) > 1e-12 || math.Abs(highest-1) > 1e-12 {
		t.Fatalf("renormalization should span the band, got [%g, %g]", lowest, highest)
	}

	if agents[2].Weight >= agents[0].Weight {
		t.Fatalf("outlier agent should carry the lowest weight: %+v", agents)
	}
}

func TestReweighLoneAgentKeepsFullWeight(t *testing.T) {
	manager := newTestManager(t, nil)
	manager.agents = []Agent{{ID: "solo", Score: 0.5, Weight: 0.4, CreatedAt: time.Unix(0, 0)}}

	manager.Reweigh()
	if got := manager.Agents()[0].Weight; got != 1 {
		t.Fatalf("lone agent weight should be 1, got %g", got)
	}
}

func TestAggregateScoreUsesWeights(t *testing.T) {
	manager := newTestManager(t, nil)
	if got := manager.AggregateScore(); got != 0 {
		t.Fatalf("empty population aggregate should be 0, got %g", got)
	}

	manager.agents = []Agent{
		{ID: "a", Score: 0.8, Weight: 1},
		{ID: "b", Score: 0.4, Weight: 0.25},
	}
	want := (0.8*1 + 0.4*0.25) / 1.25
	if got := manager.AggregateScore(); math.Abs(got-want) > 1e-12 {
		t.Fatalf("aggregate %g, want %g", got, want)
	}
}

func TestOverflowEvictsLowestWeightOldestFirst(t *testing.T) {
	manager := newTestManager(t, func(cfg *Config) { cfg.Capacity = 3 })
	base := time.Unix(0, 0)
	manager.agents = []Agent{
		{ID: "strong", Score: 0.8, Weight: 0.9, CreatedAt: base},
		{ID: "weak-old", Score: 0.5, Weight: 0.3, CreatedAt: base.Add(time.Second)},
		{ID: "weak-new", Score: 0.5, Weight: 0.3, CreatedAt: base.Add(2 * time.Second)},
	}

	spawned, ok := manager.Spawn(0.5, spikeEntropy, "", base.Add(time.Hour))
	if !ok {
		t.Fatalf("spawn refused")
	}

	if manager.Len() != 3 {
		t.Fatalf("population must stay at capacity, got %d", manager.Len())
	}
	ids := map[string]bool{}
	for _, agent := range manager.Agents() {
		ids[agent.ID] = true
	}
	if ids["weak-old"] {
		t.Fatalf("expected the older low-weight agent to be evicted: %v", ids)
	}
	if !ids["strong"] || !ids["weak-new"] || !ids[spawned.ID] {
		t.Fatalf("unexpected survivors: %v", ids)
	}
}

func TestSetMetricsInfluencesSpawnScore(t *testing.T) {
	rich := newTestManager(t, nil)
	poor := newTestManager(t, nil)

	rich.SetMetrics(score.SubMetrics{Grounding: 0.9, Efficiency: 0.9, Consistency: 0.9})
	poor.SetMetrics(score.SubMetrics{Grounding: 0.1, Efficiency: 0.1, Consistency: 0.1})

	at := time.Unix(0, 0)
	richAgent, ok := rich.Spawn(0.5, spikeEntropy, "", at)
	if !ok {
		t.Fatalf("rich spawn refused")
	}
	poorAgent, ok := poor.Spawn(0.5, spikeEntropy, "", at)
	if !ok {
		t.Fatalf("poor spawn refused")
	}

	if richAgent.Score <= poorAgent.Score {
		t.Fatalf("higher metrics should score higher: %g vs %g", richAgent.Score, poorAgent.Score)
	}
	if richAgent.Score < 0 || richAgent.Score > 1 || poorAgent.Score < 0 || poorAgent.Score > 1 {
		t.Fatalf("scores must stay in [0,1]: %g, %g", richAgent.Score, poorAgent.Score)
	}
}
