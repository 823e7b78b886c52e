package variant

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"harmonia/internal/score"
)

const epsilon = 1e-9

// rootAlignment seeds the alignment lineage for agents spawned without a
// known parent.
const rootAlignment = 0.75

// Agent is one derived parameter set orbiting the critical balance point.
type Agent struct {
	ID         string    `json:"id"`
	Score      float64   `json:"score"`
	Entropy    float64   `json:"entropy"`
	Balance    float64   `json:"balance"`
	Alignment  float64   `json:"alignment"`
	Plugins    []string  `json:"plugins,omitempty"`
	Weight     float64   `json:"weight"`
	ParentID   string    `json:"parent_id,omitempty"`
	Generation int       `json:"generation"`
	CreatedAt  time.Time `json:"created_at"`
}

type Config struct {
	Capacity         int
	MaxGeneration    int
	EntropyThreshold float64
	CriticalWindow   float64
	MutationRate     float64
	GlobalResonance  float64
	ResonanceDecay   time.Duration
	PluginCatalog    []string
	CriticalPlugins  []string
	SeedPlugins      []string
	Seed             int64
}

func DefaultConfig() Config {
	return Config{
		Capacity:         10,
		MaxGeneration:    3,
		EntropyThreshold: 0.015,
		CriticalWindow:   0.1,
		MutationRate:     0.15,
		GlobalResonance:  0.75,
		ResonanceDecay:   time.Minute,
		PluginCatalog: []string{
			"stabilizer",
			"entropy-damper",
			"phase-lock",
			"drift-monitor",
			"resonance-probe",
			"noise-filter",
		},
		CriticalPlugins: []string{"stabilizer"},
		SeedPlugins:     []string{"stabilizer", "drift-monitor"},
	}
}

func (cfg Config) validate() error {
	if cfg.Capacity <= 0 {
		return fmt.Errorf("capacity must be > 0, got %d", cfg.Capacity)
	}
	if cfg.MaxGeneration < 1 {
		return fmt.Errorf("max generation must be >= 1, got %d", cfg.MaxGeneration)
	}
	if cfg.EntropyThreshold <= 0 {
		return fmt.Errorf("entropy threshold must be > 0, got %g", cfg.EntropyThreshold)
	}
	if cfg.CriticalWindow <= 0 || cfg.CriticalWindow > 0.5 {
		return fmt.Errorf("critical window must be in (0, 0.5], got %g", cfg.CriticalWindow)
	}
	if cfg.MutationRate < 0 || cfg.MutationRate > 1 {
		return fmt.Errorf("mutation rate must be in [0, 1], got %g", cfg.MutationRate)
	}
	if cfg.GlobalResonance < 0 {
		return errors.New("global resonance must be >= 0")
	}
	if cfg.ResonanceDecay <= 0 {
		return errors.New("resonance decay must be > 0")
	}
	return nil
}

// Manager spawns, scores and resonance-weights a bounded agent population.
// Not safe for concurrent use; callers serialize access.
type Manager struct {
	cfg     Config
	rng     *rand.Rand
	agents  []Agent
	metrics score.SubMetrics
}

func NewManager(cfg Config) (*Manager, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Manager{
		cfg:     cfg,
		rng:     rand.New(rand.NewSource(cfg.Seed)),
		metrics: score.DefaultSubMetrics(),
	}, nil
}

// SetMetrics updates the quality signals used to score newly spawned agents.
func (m *Manager) SetMetrics(metrics score.SubMetrics) {
	m.metrics = score.SubMetrics{
		Grounding:   clamp01(metrics.Grounding),
		Efficiency:  clamp01(metrics.Efficiency),
		Consistency: clamp01(metrics.Consistency),
	}
}

// Spawn attempts to derive a new agent near the critical balance point.
// It reports false when the gate or the probability draw refuses the spawn.
// An unknown parent id falls back to root lineage.
func (m *Manager) Spawn(balance, entropy float64, parentID string, now time.Time) (Agent, bool) {
	balance = clamp01(balance)
	entropy = clamp01(entropy)

	nearCritical := math.Abs(balance-0.5) < m.cfg.CriticalWindow
	entropySpike := entropy > 2*m.cfg.EntropyThreshold

	var parent *Agent
	if parentID != "" {
		if idx := m.indexOf(parentID); idx >= 0 {
			parent = &m.agents[idx]
		}
	}
	parentGeneration := 0
	if parent != nil {
		parentGeneration = parent.Generation
	}

	if !nearCritical && !entropySpike {
		return Agent{}, false
	}
	if entropy <= m.cfg.EntropyThreshold {
		return Agent{}, false
	}
	if parentGeneration >= m.cfg.MaxGeneration {
		return Agent{}, false
	}

	probability := math.Min(1, (1-math.Exp(-entropy/m.cfg.EntropyThreshold))*(1+2*math.Max(0, entropy-0.02)))
	if m.rng.Float64() >= probability {
		return Agent{}, false
	}

	newBalance := balance
	if entropySpike && !nearCritical {
		newBalance += 0.4 * (0.5 - balance)
	} else {
		newBalance += (m.rng.Float64()*2 - 1) * m.cfg.CriticalWindow
	}
	newBalance = clampRange(newBalance, 0.1, 0.9)

	parentAlignment := rootAlignment
	plugins := append([]string(nil), m.cfg.SeedPlugins...)
	generation := 0
	recordedParent := ""
	if parent != nil {
		parentAlignment = parent.Alignment
		plugins = append([]string(nil), parent.Plugins...)
		generation = parent.Generation + 1
		recordedParent = parent.ID
	}

	alignment := math.Min(0.999, parentAlignment+0.05*(1-math.Min(1, math.Abs(newBalance-0.5)/0.4)))

	if m.rng.Float64() < m.cfg.MutationRate*entropy*10 {
		plugins = m.mutatePlugins(plugins)
	}

	agent := Agent{
		ID:         uuid.NewString(),
		Score:      m.scoreFor(newBalance, entropy),
		Entropy:    entropy,
		Balance:    newBalance,
		Alignment:  alignment,
		Plugins:    plugins,
		Weight:     1,
		ParentID:   recordedParent,
		Generation: generation,
		CreatedAt:  now,
	}
	m.agents = append(m.agents, agent)
	m.evict()
	return agent, true
}

// scoreFor blends the order-favoring and disorder-favoring terms by the
// balance parameter.
func (m *Manager) scoreFor(balance, entropy float64) float64 {
	g := m.metrics.Grounding
	e := m.metrics.Efficiency
	c := m.metrics.Consistency

	ordered := (g * e * c) / math.Sqrt(10*entropy+epsilon)
	disordered := math.Sqrt(entropy+epsilon) / math.Max((1-g)*(1-e)*(1-c), epsilon)
	return clamp01((1-balance)*ordered + balance*disordered)
}

func (m *Manager) mutatePlugins(plugins []string) []string {
	var additions []string
	for _, p := range m.cfg.PluginCatalog {
		if !contains(plugins, p) {
			additions = append(additions, p)
		}
	}
	var removable []string
	for _, p := range plugins {
		if !contains(m.cfg.CriticalPlugins, p) {
			removable = append(removable, p)
		}
	}

	switch {
	case len(additions) > 0 && len(removable) > 0:
		if m.rng.Float64() < 0.5 {
			return append(plugins, additions[m.rng.Intn(len(additions))])
		}
		return without(plugins, removable[m.rng.Intn(len(removable))])
	case len(additions) > 0:
		return append(plugins, additions[m.rng.Intn(len(additions))])
	case len(removable) > 0:
		return without(plugins, removable[m.rng.Intn(len(removable))])
	default:
		return plugins
	}
}

// evict drops the lowest-weight agent once the population exceeds capacity;
// equal weights evict the oldest.
func (m *Manager) evict() {
	for len(m.agents) > m.cfg.Capacity {
		victim := 0
		for i := 1; i < len(m.agents); i++ {
			candidate := m.agents[i]
			current := m.agents[victim]
			if candidate.Weight < current.Weight ||
				(candidate.Weight == current.Weight && candidate.CreatedAt.Before(current.CreatedAt)) {
				victim = i
			}
		}
		m.agents = append(m.agents[:victim], m.agents[victim+1:]...)
	}
}

// Reweigh recomputes every agent's weight as its mean resonance with the
// rest of the population, renormalized into [0.25, 1.0]. A lone agent keeps
// weight 1.
func (m *Manager) Reweigh() {
	n := len(m.agents)
	if n == 0 {
		return
	}
	if n == 1 {
		m.agents[0].Weight = 1
		return
	}

	means := make([]float64, n)
	for i := range m.agents {
		total := 0.0
		for j := range m.agents {
			if i == j {
				continue
			}
			total += m.resonance(m.agents[i], m.agents[j])
		}
		means[i] = total / float64(n-1)
	}

	lo := means[0]
	hi := means[0]
	for _, mean := range means[1:] {
		lo = math.Min(lo, mean)
		hi = math.Max(hi, mean)
	}
	for i := range m.agents {
		weight := 1.0
		if hi > lo {
			weight = 0.25 + 0.75*(means[i]-lo)/(hi-lo)
		}
		m.agents[i].Weight = weight
	}
}

// resonance measures how strongly agent a couples to agent b: similarity of
// score, entropy and alignment, attenuated by their age difference and
// amplified when a carries spiking entropy.
func (m *Manager) resonance(a, b Agent) float64 {
	similarity := 0.5*(1-math.Abs(a.Score-b.Score)) +
		0.3*(1-math.Abs(a.Entropy-b.Entropy)) +
		0.2*(1-math.Abs(a.Alignment-b.Alignment))

	ageGap := a.CreatedAt.Sub(b.CreatedAt).Seconds()
	if ageGap < 0 {
		ageGap = -ageGap
	}
	decay := math.Exp(-ageGap / m.cfg.ResonanceDecay.Seconds())
	spike := 1 + 2*math.Max(0, a.Entropy-0.02)

	return m.cfg.GlobalResonance * similarity * decay * spike
}

// AggregateScore is the weight-weighted mean score of the population.
func (m *Manager) AggregateScore() float64 {
	if len(m.agents) == 0 {
		return 0
	}
	weighted := 0.0
	total := 0.0
	for _, agent := range m.agents {
		weighted += agent.Weight * agent.Score
		total += agent.Weight
	}
	if total < epsilon {
		return 0
	}
	return weighted / total
}

func (m *Manager) Agents() []Agent {
	return append([]Agent(nil), m.agents...)
}

func (m *Manager) Len() int {
	return len(m.agents)
}

func (m *Manager) indexOf(id string) int {
	for i := range m.agents {
		if m.agents[i].ID == id {
			return i
		}
	}
	return -1
}

func contains(items []string, target string) bool {
	for _, item := range items {
		if item == target {
			return true
		}
	}
	return false
}

func without(items []string, target string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item == target {
			continue
		}
		out = append(out, item)
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
