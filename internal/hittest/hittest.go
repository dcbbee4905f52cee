package hittest

import (
	"math"
	"strconv"

	"github.com/terminal-bench/gridflow/internal/grid"
)

// Threshold is the pointer-to-node pickup distance.
const Threshold = 42.0

// Hit returns the first node (in input order) whose Euclidean distance to
// the pointer is below the threshold, or false when nothing is close enough.
func Hit(nodes []grid.Node, x, y float64) (grid.Node, bool) {
	for _, n := range nodes {
		if math.Hypot(n.X-x, n.Y-y) < Threshold {
			return n, true
		}
	}
	return grid.Node{}, false
}

// Tooltip is the hover description for a node.
type Tooltip struct {
	Label   string             `json:"label"`
	Type    grid.NodeType      `json:"type"`
	Metrics map[string]float64 `json:"metrics"`
	Extras  map[string]string  `json:"extras,omitempty"`
}

// Describe builds the tooltip object for a node, including type-specific
// extras (battery state of charge, EV session count).
func Describe(n grid.Node) Tooltip {
	tip := Tooltip{Label: n.Label, Type: n.Type, Metrics: n.Metrics}
	switch n.Type {
	case grid.NodeBattery:
		if soc, ok := n.Metric("soc"); ok {
			tip.Extras = map[string]string{"soc": formatPct(soc)}
		}
	case grid.NodeEV:
		if sessions, ok := n.Metric("sessions"); ok {
			tip.Extras = map[string]string{"sessions": formatCount(sessions)}
		}
	}
	return tip
}

func formatPct(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64) + "%"
}

func formatCount(v float64) string {
	return strconv.Itoa(int(math.Round(v)))
}
