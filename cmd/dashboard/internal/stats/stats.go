package stats

import (
	"math"

	"github.com/shubham-shewale/stock-dashboard/pkg/models"
)

// RunningStats is the mean/max/min over every tick observed since the stream opened.
// Max is -Inf and Min is +Inf until the first observation.
type RunningStats struct {
	Count int64   `json:"count"`
	Mean  float64 `json:"mean"`
	Max   float64 `json:"max"`
	Min   float64 `json:"min"`
}

// Empty returns the state before any tick.
func Empty() RunningStats {
	return RunningStats{
		Max: math.Inf(-1),
		Min: math.Inf(1),
	}
}

// Observe folds one tick into the statistics in O(1).
func (s RunningStats) Observe(t models.Tick) RunningStats {
	next := s.Count + 1
	return RunningStats{
		Count: next,
		Mean:  s.Mean + (t.Price-s.Mean)/float64(next),
		Max:   math.Max(s.Max, t.Price),
		Min:   math.Min(s.Min, t.Price),
	}
}

// Replay rebuilds the statistics for a tick sequence from the empty state.
func Replay(ticks []models.Tick) RunningStats {
	s := Empty()
	for _, t := range ticks {
		s = s.Observe(t)
	}
	return s
}

// Snapshot is the JSON-safe form; encoding/json rejects infinities.
type Snapshot struct {
	Count int64    `json:"count"`
	Mean  *float64 `json:"mean"`
	Max   *float64 `json:"max"`
	Min   *float64 `json:"min"`
}

func (s RunningStats) Snapshot() Snapshot {
	if s.Count == 0 {
		return Snapshot{}
	}
	mean, hi, lo := s.Mean, s.Max, s.Min
	return Snapshot{Count: s.Count, Mean: &mean, Max: &hi, Min: &lo}
}
