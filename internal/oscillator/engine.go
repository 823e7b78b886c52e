package oscillator

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
)

type Cohort string

const (
	CohortStability    Cohort = "stability"
	CohortAdaptability Cohort = "adaptability"
)

type Regime string

const (
	RegimeStability    Regime = "stability"
	RegimeAdaptability Regime = "adaptability"
)

const (
	phaseBins = 10

	// Share of each cycle spent in the stability regime. The trailing
	// remainder runs with the cohort roles inverted.
	stabilityPhaseShare = 0.75
)

var ErrPerturbationTicks = errors.New("perturbation ticks must be > 0")

type Oscillator struct {
	Phase  float64 `json:"phase"`
	Omega  float64 `json:"omega"`
	Cohort Cohort  `json:"cohort"`
	Weight float64 `json:"weight"`
}

// State is the authoritative synchrony measurement for one tick.
type State struct {
	Value         float64 `json:"value"`
	CycleIndex    int     `json:"cycle_index"`
	Regime        Regime  `json:"regime"`
	CyclePosition float64 `json:"cycle_position"`
	NoiseLevel    float64 `json:"noise_level"`
	Entropy       float64 `json:"entropy"`
}

type Config struct {
	Count                  int
	StabilityShare         float64
	CycleLength            int
	Dt                     float64
	CouplingStrong         float64
	CouplingWeak           float64
	NoiseLow               float64
	NoiseHigh              float64
	FreqStability          float64
	FreqSpreadStability    float64
	FreqAdaptability       float64
	FreqSpreadAdaptability float64
	DominantWeight         float64
	RecessiveWeight        float64
	Seed                   int64
}

func DefaultConfig() Config {
	return Config{
		Count:                  32,
		StabilityShare:         0.75,
		CycleLength:            20,
		Dt:                     0.05,
		CouplingStrong:         0.8,
		CouplingWeak:           0.4,
		NoiseLow:               0.05,
		NoiseHigh:              0.15,
		FreqStability:          1.0,
		FreqSpreadStability:    0.1,
		FreqAdaptability:       1.4,
		FreqSpreadAdaptability: 0.5,
		DominantWeight:         1.2,
		RecessiveWeight:        0.8,
	}
}

func (cfg Config) validate() error {
	if cfg.Count < 2 {
		return fmt.Errorf("oscillator count must be >= 2, got %d", cfg.Count)
	}
	if cfg.StabilityShare <= 0 || cfg.StabilityShare >= 1 {
		return fmt.Errorf("stability share must be in (0, 1), got %g", cfg.StabilityShare)
	}
	if cfg.CycleLength < 4 {
		return fmt.Errorf("cycle length must be >= 4, got %d", cfg.CycleLength)
	}
	if cfg.Dt <= 0 {
		return fmt.Errorf("dt must be > 0, got %g", cfg.Dt)
	}
	if cfg.CouplingStrong < 0 || cfg.CouplingWeak < 0 {
		return errors.New("coupling strengths must be >= 0")
	}
	if cfg.NoiseLow < 0 || cfg.NoiseHigh < 0 {
		return errors.New("noise amplitudes must be >= 0")
	}
	if cfg.FreqSpreadStability < 0 || cfg.FreqSpreadAdaptability < 0 {
		return errors.New("frequency spreads must be >= 0")
	}
	if cfg.DominantWeight <= 0 || cfg.RecessiveWeight <= 0 {
		return errors.New("cohort weights must be > 0")
	}
	return nil
}

// Engine advances a two-cohort oscillator set and reports a synchrony
// measurement per tick. It is not safe for concurrent use; callers serialize
// access.
type Engine struct {
	cfg         Config
	rng         *rand.Rand
	oscillators []Oscillator
	cycleIndex  int
	last        State

	perturbTarget float64
	perturbTicks  int
	perturbActive bool
}

func New(cfg Config) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}
	e.populate()
	e.last = e.snapshot(0)
	return e, nil
}

// Reset rebuilds the oscillator set from cfg and clears any active
// perturbation and cycle progress.
func (e *Engine) Reset(cfg Config) error {
	if err := cfg.validate(); err != nil {
		return err
	}
	e.cfg = cfg
	e.rng = rand.New(rand.NewSource(cfg.Seed))
	e.cycleIndex = 0
	e.perturbActive = false
	e.perturbTicks = 0
	e.perturbTarget = 0
	e.populate()
	e.last = e.snapshot(0)
	return nil
}

func (e *Engine) populate() {
	count := e.cfg.Count
	stabilityCount := int(math.Round(float64(count) * e.cfg.StabilityShare))
	if stabilityCount < 1 {
		stabilityCount = 1
	}
	if stabilityCount > count-1 {
		stabilityCount = count - 1
	}

	oscillators := make([]Oscillator, 0, count)
	for i := 0; i < count; i++ {
		cohort := CohortStability
		omega := e.cfg.FreqStability + e.spread(e.cfg.FreqSpreadStability)
		weight := e.cfg.DominantWeight
		if i >= stabilityCount {
			cohort = CohortAdaptability
			omega = e.cfg.FreqAdaptability + e.spread(e.cfg.FreqSpreadAdaptability)
			weight = e.cfg.RecessiveWeight
		}
		oscillators = append(oscillators, Oscillator{
			Phase:  e.rng.Float64() * 2 * math.Pi,
			Omega:  omega,
			Cohort: cohort,
			Weight: weight,
		})
	}
	e.oscillators = oscillators
}

// spread returns a uniform sample in [-width, width].
func (e *Engine) spread(width float64) float64 {
	return (e.rng.Float64()*2 - 1) * width
}

type cohortParams struct {
	weight   float64
	coupling float64
	noise    float64
}

func (e *Engine) regimeParams(regime Regime) (stability, adaptability cohortParams) {
	dominant := cohortParams{
		weight:   e.cfg.DominantWeight,
		coupling: e.cfg.CouplingStrong,
		noise:    e.cfg.NoiseLow,
	}
	recessive := cohortParams{
		weight:   e.cfg.RecessiveWeight,
		coupling: e.cfg.CouplingWeak,
		noise:    e.cfg.NoiseHigh,
	}
	if regime == RegimeStability {
		return dominant, recessive
	}
	return recessive, dominant
}

func regimeAt(position float64) Regime {
	if position < stabilityPhaseShare {
		return RegimeStability
	}
	return RegimeAdaptability
}

// Tick advances every phase one Euler step and returns the resulting state.
// An active perturbation overrides the reported value only; phases keep
// integrating underneath and the override releases itself when its countdown
// reaches zero.
func (e *Engine) Tick() State {
	idx := e.cycleIndex
	e.cycleIndex++

	position := float64(idx%e.cfg.CycleLength) / float64(e.cfg.CycleLength)
	regime := regimeAt(position)
	stability, adaptability := e.regimeParams(regime)

	sumWeights := 0.0
	sumX := 0.0
	sumY := 0.0
	for i := range e.oscillators {
		osc := &e.oscillators[i]
		params := stability
		if osc.Cohort == CohortAdaptability {
			params = adaptability
		}
		osc.Weight = params.weight
		sin, cos := math.Sincos(osc.Phase)
		sumX += params.weight * cos
		sumY += params.weight * sin
		sumWeights += params.weight
	}

	if sumWeights < 1e-9 {
		sumWeights = 1e-9
	}
	value := clamp01(math.Hypot(sumX, sumY) / sumWeights)
	meanPhase := math.Atan2(sumY, sumX)

	for i := range e.oscillators {
		osc := &e.oscillators[i]
		params := stability
		if osc.Cohort == CohortAdaptability {
			params = adaptability
		}
		noise := (e.rng.Float64()*2 - 1) * params.noise
		step := e.cfg.Dt * (osc.Omega + params.coupling*value*math.Sin(meanPhase-osc.Phase) + noise)
		osc.Phase = normalizePhase(osc.Phase + step)
	}

	state := State{
		Value:         value,
		CycleIndex:    idx,
		Regime:        regime,
		CyclePosition: position,
		NoiseLevel:    e.meanNoise(stability, adaptability),
		Entropy:       e.entropy(),
	}
	if e.perturbActive {
		state.Value = e.perturbTarget
		e.perturbTicks--
		if e.perturbTicks <= 0 {
			e.perturbActive = false
			e.perturbTicks = 0
		}
	}
	e.last = state
	return state
}

// snapshot measures the current phases without advancing them.
func (e *Engine) snapshot(idx int) State {
	position := float64(idx%e.cfg.CycleLength) / float64(e.cfg.CycleLength)
	regime := regimeAt(position)
	stability, adaptability := e.regimeParams(regime)

	sumWeights := 0.0
	sumX := 0.0
	sumY := 0.0
	for i := range e.oscillators {
		osc := e.oscillators[i]
		params := stability
		if osc.Cohort == CohortAdaptability {
			params = adaptability
		}
		sin, cos := math.Sincos(osc.Phase)
		sumX += params.weight * cos
		sumY += params.weight * sin
		sumWeights += params.weight
	}

	if sumWeights < 1e-9 {
		sumWeights = 1e-9
	}
	return State{
		Value:         clamp01(math.Hypot(sumX, sumY) / sumWeights),
		CycleIndex:    idx,
		Regime:        regime,
		CyclePosition: position,
		NoiseLevel:    e.meanNoise(stability, adaptability),
		Entropy:       e.entropy(),
	}
}

func (e *Engine) entropy() float64 {
	if len(e.oscillators) == 0 {
		return 0
	}
	bins := make([]int, phaseBins)
	for _, osc := range e.oscillators {
		idx := int(osc.Phase / (2 * math.Pi) * phaseBins)
		if idx >= phaseBins {
			idx = phaseBins - 1
		}
		if idx < 0 {
			idx = 0
		}
		bins[idx]++
	}

	total := float64(len(e.oscillators))
	entropy := 0.0
	for _, occupied := range bins {
		if occupied == 0 {
			continue
		}
		p := float64(occupied) / total
		entropy -= p * math.Log2(p)
	}
	return clamp01(entropy / math.Log2(phaseBins))
}

func (e *Engine) meanNoise(stability, adaptability cohortParams) float64 {
	if len(e.oscillators) == 0 {
		return 0
	}
	total := 0.0
	for _, osc := range e.oscillators {
		if osc.Cohort == CohortAdaptability {
			total += adaptability.noise
			continue
		}
		total += stability.noise
	}
	return total / float64(len(e.oscillators))
}

// Perturb forces the reported synchrony value to target for the given number
// of ticks. A second call replaces any perturbation already in flight.
func (e *Engine) Perturb(target float64, ticks int) error {
	if ticks <= 0 {
		return ErrPerturbationTicks
	}
	e.perturbTarget = clamp01(target)
	e.perturbTicks = ticks
	e.perturbActive = true
	return nil
}

// Release clears an active perturbation and reports whether one was active.
func (e *Engine) Release() bool {
	active := e.perturbActive
	e.perturbActive = false
	e.perturbTicks = 0
	return active
}

func (e *Engine) Perturbed() (target float64, remaining int, active bool) {
	if !e.perturbActive {
		return 0, 0, false
	}
	return e.perturbTarget, e.perturbTicks, true
}

func (e *Engine) State() State {
	return e.last
}

func (e *Engine) Oscillators() []Oscillator {
	return append([]Oscillator(nil), e.oscillators...)
}

func normalizePhase(phase float64) float64 {
	phase = math.Mod(phase, 2*math.Pi)
	if phase < 0 {
		phase += 2 * math.Pi
	}
	return phase
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
