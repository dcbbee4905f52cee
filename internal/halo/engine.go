package halo

import (
	"math"
	"strings"
	"time"

	"github.com/terminal-bench/gridflow/internal/grid"
)

// Presentation constants. Fade is an ease-out quadratic over a fixed window;
// base alpha is the severity's full-intensity opacity before modulation.
const (
	FadeDuration = 1500 * time.Millisecond

	highSawtoothHz  = 7.0
	highSawWeight   = 0.9
	highJitterBound = 0.6

	calmPeriod = 370 * time.Millisecond
	calmFloor  = 0.35
	calmCeil   = 1.0

	reducedHighLevel = 0.75
	reducedCalmLevel = 0.55

	ringMargin      = 14.0
	highRingSpacing = 6.0
)

var baseAlpha = map[grid.Severity]float64{
	grid.SeverityHigh:   0.75,
	grid.SeverityMedium: 0.65,
	grid.SeverityLow:    0.60,
}

// typeKeywords maps alert type-string keywords to the node type whose halo
// they drive. Unmatched alerts produce no halo.
var typeKeywords = []struct {
	keyword string
	node    grid.NodeType
}{
	{"battery", grid.NodeBattery},
	{"soc", grid.NodeBattery},
	{"temp", grid.NodeBattery},
	{"grid", grid.NodeGrid},
	{"volt", grid.NodeGrid},
	{"load", grid.NodeLoad},
	{"solar", grid.NodeSolar},
	{"pv", grid.NodeSolar},
}

// Halo is the derived presentation state for one node-type slot.
type Halo struct {
	Node      grid.NodeType `json:"node"`
	Severity  grid.Severity `json:"severity"`
	Opacity   float64       `json:"opacity"`
	Radius    float64       `json:"radius"`
	OuterRing bool          `json:"outer_ring,omitempty"` // HIGH only, at Radius+6
	Additive  bool          `json:"additive"`             // non-occluding blend
}

// Engine derives halo presentation from the current alert list. It holds no
// per-tick state of its own; everything is recomputed from (alerts, now,
// reduced-motion) each call. The randomness behind HIGH-severity jitter is
// injected so tests can pin it.
type Engine struct {
	rand func() float64
}

// NewEngine creates a halo engine with the given jitter source.
func NewEngine(rand func() float64) *Engine {
	return &Engine{rand: rand}
}

// NodeFor classifies an alert's type string against the keyword table.
func NodeFor(alertType string) (grid.NodeType, bool) {
	lower := strings.ToLower(alertType)
	for _, kw := range typeKeywords {
		if strings.Contains(lower, kw.keyword) {
			return kw.node, true
		}
	}
	return "", false
}

// Select picks, per node-type slot, the compatible alert with the highest
// severity rank. Ties resolve to the first-seen alert in input order.
func Select(alerts []grid.Alert) map[grid.NodeType]grid.Alert {
	selected := make(map[grid.NodeType]grid.Alert)
	for _, a := range alerts {
		node, ok := NodeFor(a.Type)
		if !ok {
			continue
		}
		if cur, exists := selected[node]; !exists || a.Severity.Rank() > cur.Severity.Rank() {
			selected[node] = a
		}
	}
	return selected
}

// Fade returns the acknowledgment fade factor at the given instant:
// 1 while unacknowledged, an ease-out quadratic from 1 to 0 over the fade
// window, exactly 0 from the window's end onward.
func Fade(a grid.Alert, now time.Time) float64 {
	if a.AckAt == nil {
		return 1
	}
	elapsed := now.Sub(*a.AckAt)
	if elapsed < 0 {
		return 1
	}
	if elapsed >= FadeDuration {
		return 0
	}
	x := float64(elapsed) / float64(FadeDuration)
	return 1 - x*x
}

// Modulation returns the 0..1 flicker intensity for a severity at the given
// instant. HIGH uses a fast sawtooth with bounded pseudo-random jitter; the
// rest breathe on a smooth sinusoid. Reduced motion pins both to constants.
func (e *Engine) Modulation(severity grid.Severity, now time.Time, reducedMotion bool) float64 {
	if reducedMotion {
		if severity == grid.SeverityHigh {
			return reducedHighLevel
		}
		return reducedCalmLevel
	}

	t := float64(now.UnixNano()) / float64(time.Second)
	if severity == grid.SeverityHigh {
		saw := t*highSawtoothHz - math.Floor(t*highSawtoothHz)
		return math.Min(1, highSawWeight*saw+highJitterBound*e.rand())
	}
	phase := 2 * math.Pi * t * float64(time.Second) / float64(calmPeriod)
	wave := 0.5 + 0.5*math.Sin(phase)
	return calmFloor + (calmCeil-calmFloor)*wave
}

// Compute derives the halo set for the current tick. glyphSize maps node
// types to their glyph's (width, height); the halo radius keys off the
// larger dimension plus a fixed margin.
func (e *Engine) Compute(alerts []grid.Alert, now time.Time, reducedMotion bool, glyphSize func(grid.NodeType) (w, h float64)) []Halo {
	selected := Select(alerts)

	var halos []Halo
	for _, node := range grid.NodeTypes {
		a, ok := selected[node]
		if !ok {
			continue
		}
		fade := Fade(a, now)
		if fade == 0 {
			continue
		}
		w, h := glyphSize(node)
		halos = append(halos, Halo{
			Node:      node,
			Severity:  a.Severity,
			Opacity:   e.Modulation(a.Severity, now, reducedMotion) * baseAlpha[a.Severity] * fade,
			Radius:    math.Max(w, h)/2 + ringMargin,
			OuterRing: a.Severity == grid.SeverityHigh,
			Additive:  true,
		})
	}
	return halos
}

// OuterRingRadius is where the HIGH-severity outer ring sits for a halo.
func OuterRingRadius(h Halo) float64 { return h.Radius + highRingSpacing }
