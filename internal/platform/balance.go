package platform

import (
	"math"
	"time"
)

const (
	stabilityTarget   = 0.75
	explorationTarget = 0.25

	// Fresh readings are pulled this far toward the attractor targets before
	// they replace the current blend.
	attractorPull = 0.75

	// A failed evaluation leans the blend back toward stability instead of
	// recording a reading.
	failurePull = 0.4
)

// Balance tracks the stability/exploration blend against the 3:1 attractor.
type Balance struct {
	Stability   float64   `json:"stability"`
	Exploration float64   `json:"exploration"`
	Ratio       float64   `json:"ratio"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type balanceTracker struct {
	current Balance
}

func newBalanceTracker() *balanceTracker {
	t := &balanceTracker{}
	t.current.Stability = stabilityTarget
	t.current.Exploration = explorationTarget
	t.current.Ratio = ratioOf(stabilityTarget, explorationTarget)
	return t
}

// record folds a fresh stability/exploration reading into the blend. Readings
// are clamped to [0,1] and pulled toward the attractor targets so a single
// outlier cannot swing the blend.
func (t *balanceTracker) record(stability, exploration float64, now time.Time) {
	stability = clampUnit(stability)
	exploration = clampUnit(exploration)

	t.current.Stability = stabilityTarget*attractorPull + stability*(1-attractorPull)
	t.current.Exploration = explorationTarget*attractorPull + exploration*(1-attractorPull)
	t.current.Ratio = ratioOf(t.current.Stability, t.current.Exploration)
	t.current.UpdatedAt = now
}

// recordFailure pulls the blend toward the stability target.
func (t *balanceTracker) recordFailure(now time.Time) {
	t.current.Stability += failurePull * (stabilityTarget - t.current.Stability)
	t.current.Exploration += failurePull * (explorationTarget - t.current.Exploration)
	t.current.Ratio = ratioOf(t.current.Stability, t.current.Exploration)
	t.current.UpdatedAt = now
}

func (t *balanceTracker) snapshot() Balance {
	return t.current
}

func ratioOf(stability, exploration float64) float64 {
	return stability / math.Max(exploration, 1e-9)
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
