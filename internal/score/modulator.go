package score

import "math"

// Modulator reshapes the smoothed score before normalization.
type Modulator interface {
	Name() string
	Apply(t int, smoothed float64) float64
}

type NopModulator struct{}

func (NopModulator) Name() string { return "nop" }

func (NopModulator) Apply(_ int, smoothed float64) float64 { return smoothed }

// CyclicModulator applies a damped cosine correction: the smoothed score
// breathes with the configured period while the damping term fades the
// effect out across evaluations.
type CyclicModulator struct {
	Amplitude float64
	Period    float64
	Phase     float64
}

func (CyclicModulator) Name() string { return "cyclic" }

func (m CyclicModulator) Apply(t int, smoothed float64) float64 {
	if m.Period <= 0 {
		return smoothed
	}
	at := float64(t)
	correction := 1 + m.Amplitude*math.Exp(-0.05*at)*math.Cos(2*math.Pi*at/m.Period+m.Phase)
	return smoothed * correction
}
