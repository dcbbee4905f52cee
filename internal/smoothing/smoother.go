package smoothing

import "github.com/terminal-bench/gridflow/internal/grid"

// Smoothing factors. Edges chase their targets at 25% of the remaining gap
// per tick; the raw-vs-safe comparison bars at 30%.
const (
	EdgeAlpha   = 0.25
	MetricAlpha = 0.3
)

// EdgeSmoother applies exponential smoothing to edge magnitudes keyed by
// (from,to,type). The previous-tick cache is replaced wholesale every pass;
// it is never partially mutated.
type EdgeSmoother struct {
	prev map[grid.EdgeKey]float64
}

// NewEdgeSmoother creates an edge smoother with an empty history.
func NewEdgeSmoother() *EdgeSmoother {
	return &EdgeSmoother{prev: make(map[grid.EdgeKey]float64)}
}

// Smooth returns the edge set with displayed power moved toward each target.
// Edges with no prior match take the target unsmoothed (first observation).
func (s *EdgeSmoother) Smooth(edges []grid.Edge) []grid.Edge {
	next := make(map[grid.EdgeKey]float64, len(edges))
	out := make([]grid.Edge, len(edges))
	for i, e := range edges {
		target := e.PowerKW
		if prev, ok := s.prev[e.Key()]; ok {
			e.PowerKW = prev + (target-prev)*EdgeAlpha
		}
		next[e.Key()] = e.PowerKW
		out[i] = e
	}
	s.prev = next
	return out
}

// Reset drops all smoothing history.
func (s *EdgeSmoother) Reset() {
	s.prev = make(map[grid.EdgeKey]float64)
}

// MetricSmoother smooths auxiliary UI values (diff-bar widths) keyed by
// metric name, under the same law as the edge smoother.
type MetricSmoother struct {
	prev map[string]float64
}

// NewMetricSmoother creates a metric smoother with an empty history.
func NewMetricSmoother() *MetricSmoother {
	return &MetricSmoother{prev: make(map[string]float64)}
}

// Smooth moves the named metric toward target and records the result.
func (s *MetricSmoother) Smooth(name string, target float64) float64 {
	v := target
	if prev, ok := s.prev[name]; ok {
		v = prev + (target-prev)*MetricAlpha
	}
	s.prev[name] = v
	return v
}
