package score

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// SubMetrics are the three bounded quality signals feeding the pipeline.
// Values outside [0,1] are clamped on entry, never rejected.
type SubMetrics struct {
	Grounding   float64 `json:"grounding"`
	Efficiency  float64 `json:"efficiency"`
	Consistency float64 `json:"consistency"`
}

func DefaultSubMetrics() SubMetrics {
	return SubMetrics{Grounding: 0.75, Efficiency: 0.75, Consistency: 0.75}
}

func (m SubMetrics) clamped() SubMetrics {
	return SubMetrics{
		Grounding:   clamp01(m.Grounding),
		Efficiency:  clamp01(m.Efficiency),
		Consistency: clamp01(m.Consistency),
	}
}

// Workload describes the scaling context of the evaluated system.
type Workload struct {
	Modules     int     `json:"modules"`
	Parallelism int     `json:"parallelism"`
	Depth       int     `json:"depth"`
	Latency     float64 `json:"latency"`
	ErrorRate   float64 `json:"error_rate"`
}

func (w Workload) clamped() Workload {
	if w.Modules < 0 {
		w.Modules = 0
	}
	if w.Parallelism < 0 {
		w.Parallelism = 0
	}
	if w.Depth < 0 {
		w.Depth = 0
	}
	w.Latency = clamp01(w.Latency)
	w.ErrorRate = clamp01(w.ErrorRate)
	return w
}

type Result struct {
	Raw      float64 `json:"raw"`
	Smoothed float64 `json:"smoothed"`
	Final    float64 `json:"final"`
}

// Entry is an immutable history snapshot of one evaluation.
type Entry struct {
	Time        time.Time  `json:"time"`
	Final       float64    `json:"final"`
	Raw         float64    `json:"raw"`
	Smoothed    float64    `json:"smoothed"`
	Metrics     SubMetrics `json:"metrics"`
	Workload    Workload   `json:"workload"`
	Entropy     float64    `json:"entropy"`
	Toggle      float64    `json:"toggle"`
	ActiveFlags []string   `json:"active_flags,omitempty"`
}

type Config struct {
	Exponent       float64
	Kappa          float64
	Eta            float64
	LatencyPenalty float64
	MaxErrorRate   float64
	EntropyScale   float64
	Epsilon        float64
	FeedbackAlpha  float64
	FeedbackBeta   float64
	Lambda         float64
	Gain           float64
	HistoryLimit   int
	Modulator      Modulator
}

func DefaultConfig() Config {
	return Config{
		Exponent:       1.618,
		Kappa:          1.0,
		Eta:            0.05,
		LatencyPenalty: 0.3,
		MaxErrorRate:   0.5,
		EntropyScale:   10,
		Epsilon:        1e-9,
		FeedbackAlpha:  0.3,
		FeedbackBeta:   0.2,
		Lambda:         0.8,
		Gain:           1.0,
		HistoryLimit:   100,
		Modulator:      NopModulator{},
	}
}

func (cfg Config) validate() error {
	if cfg.Exponent <= 0 {
		return fmt.Errorf("exponent must be > 0, got %g", cfg.Exponent)
	}
	if cfg.MaxErrorRate <= 0 {
		return fmt.Errorf("max error rate must be > 0, got %g", cfg.MaxErrorRate)
	}
	if cfg.EntropyScale < 0 {
		return errors.New("entropy scale must be >= 0")
	}
	if cfg.Epsilon <= 0 {
		return fmt.Errorf("epsilon must be > 0, got %g", cfg.Epsilon)
	}
	if cfg.FeedbackAlpha < 0 || cfg.FeedbackBeta < 0 {
		return errors.New("feedback coefficients must be >= 0")
	}
	if cfg.Lambda < 0 || cfg.Lambda >= 1 {
		return fmt.Errorf("lambda must be in [0, 1), got %g", cfg.Lambda)
	}
	if cfg.Gain <= 0 {
		return fmt.Errorf("gain must be > 0, got %g", cfg.Gain)
	}
	if cfg.HistoryLimit <= 0 {
		return fmt.Errorf("history limit must be > 0, got %d", cfg.HistoryLimit)
	}
	return nil
}

// Pipeline runs the three stage evaluation: raw score with feedback damping,
// temporal smoothing with optional cyclic modulation, then tanh normalization.
// Deterministic given identical input sequences. Not safe for concurrent use.
type Pipeline struct {
	cfg Config

	evaluations int
	prevRaw     float64
	prevDelta   float64
	priorDelta  float64
	deltas      int

	history []Entry
}

func NewPipeline(cfg Config) (*Pipeline, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Modulator == nil {
		cfg.Modulator = NopModulator{}
	}
	return &Pipeline{cfg: cfg}, nil
}

// Evaluate runs one pass of the pipeline. It never fails: inputs are clamped
// to their documented ranges and denominators are floored by epsilon.
func (p *Pipeline) Evaluate(metrics SubMetrics, load Workload, entropy, toggle float64, now time.Time, activeFlags []string) Result {
	metrics = metrics.clamped()
	load = load.clamped()
	entropy = clamp01(entropy)
	if toggle < 0 {
		toggle = 0
	}

	t := p.evaluations
	p.evaluations++

	raw := p.rawScore(metrics, load, entropy, toggle)

	smoothed := raw
	if t > 0 {
		smoothed = p.cfg.Lambda*p.prevRaw + (1-p.cfg.Lambda)*raw
	}
	smoothed = p.cfg.Modulator.Apply(t, smoothed)

	final := math.Tanh(p.cfg.Gain * smoothed)

	if t > 0 {
		p.priorDelta = p.prevDelta
		p.prevDelta = raw - p.prevRaw
		if p.deltas < 2 {
			p.deltas++
		}
	}
	p.prevRaw = raw

	result := Result{Raw: raw, Smoothed: smoothed, Final: final}
	p.append(Entry{
		Time:        now,
		Final:       final,
		Raw:         raw,
		Smoothed:    smoothed,
		Metrics:     metrics,
		Workload:    load,
		Entropy:     entropy,
		Toggle:      toggle,
		ActiveFlags: append([]string(nil), activeFlags...),
	})
	return result
}

func (p *Pipeline) rawScore(metrics SubMetrics, load Workload, entropy, toggle float64) float64 {
	kappa := p.cfg.Kappa * (1 - load.ErrorRate/p.cfg.MaxErrorRate)
	growth := kappa *
		math.Log(float64(load.Modules)+1) *
		math.Log(float64(load.Parallelism)+1) *
		(1 + p.cfg.Eta*float64(load.Depth))
	dimension := clampRange(1+growth*(1-p.cfg.LatencyPenalty*load.Latency), 1, 2)

	disorder := math.Sqrt(p.cfg.EntropyScale*entropy + p.cfg.Epsilon)
	if disorder < p.cfg.Epsilon {
		disorder = p.cfg.Epsilon
	}
	base := math.Pow(metrics.Grounding*metrics.Efficiency*metrics.Consistency*dimension, p.cfg.Exponent)
	raw := base * toggle / disorder

	return raw * p.feedback(raw)
}

// feedback dampens the raw score against its own recent movement: the bigger
// the jump since the previous evaluation, or the bigger the extrapolated next
// jump, the stronger the attenuation, floored at 0.5.
func (p *Pipeline) feedback(raw float64) float64 {
	if p.evaluations <= 1 {
		return 1
	}
	predicted := p.prevDelta
	if p.deltas >= 2 {
		predicted = 2*p.prevDelta - p.priorDelta
	}
	factor := 1 - p.cfg.FeedbackAlpha*math.Abs(raw-p.prevRaw) - p.cfg.FeedbackBeta*math.Abs(predicted)
	return clampRange(factor, 0.5, 1)
}

func (p *Pipeline) append(entry Entry) {
	p.history = append(p.history, entry)
	if len(p.history) > p.cfg.HistoryLimit {
		p.history = p.history[len(p.history)-p.cfg.HistoryLimit:]
	}
}

// History returns retained entries, newest first. A non-positive limit
// returns everything retained.
func (p *Pipeline) History(limit int) []Entry {
	n := len(p.history)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Entry, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, p.history[i])
	}
	return out
}

// Last returns the most recent entry, the known-good fallback when an
// evaluation cannot run.
func (p *Pipeline) Last() (Entry, bool) {
	if len(p.history) == 0 {
		return Entry{}, false
	}
	return p.history[len(p.history)-1], true
}

func (p *Pipeline) Evaluations() int {
	return p.evaluations
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
