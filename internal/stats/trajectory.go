package stats

import (
	"math"

	"harmonia/internal/score"
)

// Summary holds order statistics of one score series.
type Summary struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	Std   float64 `json:"std"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

func Summarize(series []float64) Summary {
	if len(series) == 0 {
		return Summary{}
	}

	sum := 0.0
	minValue := series[0]
	maxValue := series[0]
	for _, v := range series {
		sum += v
		minValue = math.Min(minValue, v)
		maxValue = math.Max(maxValue, v)
	}
	mean := sum / float64(len(series))

	variance := 0.0
	for _, v := range series {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(series))

	return Summary{
		Count: len(series),
		Mean:  mean,
		Std:   math.Sqrt(variance),
		Min:   minValue,
		Max:   maxValue,
	}
}

// FinalsOf extracts the final-score series from a trajectory in evaluation
// order (score history entries arrive newest first).
func FinalsOf(trajectory []score.Entry) []float64 {
	out := make([]float64, 0, len(trajectory))
	for i := len(trajectory) - 1; i >= 0; i-- {
		out = append(out, trajectory[i].Final)
	}
	return out
}
