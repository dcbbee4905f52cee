package grid

import (
	"strconv"
	"time"
)

// NodeType identifies a microgrid asset class. The set is closed; dispatch
// on it goes through lookup tables so a missing entry is visible in one place.
type NodeType string

const (
	NodeSolar   NodeType = "solar"
	NodeGrid    NodeType = "grid"
	NodeBattery NodeType = "battery"
	NodeEV      NodeType = "ev"
	NodeLoad    NodeType = "load"
)

// NodeTypes lists every valid node type in a stable order.
var NodeTypes = []NodeType{NodeSolar, NodeGrid, NodeBattery, NodeEV, NodeLoad}

func (t NodeType) Valid() bool {
	switch t {
	case NodeSolar, NodeGrid, NodeBattery, NodeEV, NodeLoad:
		return true
	}
	return false
}

func (t NodeType) String() string { return string(t) }

// Direction indicates which way power flows along an edge relative to its
// declared from/to endpoints.
type Direction string

const (
	DirectionForward Direction = "forward"
	DirectionReverse Direction = "reverse"
)

// Node is a microgrid asset as supplied by the upstream feed. Position is
// fixed for the session; identity is ID.
type Node struct {
	ID      string             `json:"id"`
	Type    NodeType           `json:"type"`
	Label   string             `json:"label"`
	X       float64            `json:"x"`
	Y       float64            `json:"y"`
	Metrics map[string]float64 `json:"metrics"`
}

// Metric returns a named metric and whether it is present.
func (n Node) Metric(name string) (float64, bool) {
	v, ok := n.Metrics[name]
	return v, ok
}

// Edge is a power flow between two nodes. Identity across frames is the
// (From, To, Type) triple; at most one edge per triple exists in a frame.
type Edge struct {
	From        string    `json:"from"`
	To          string    `json:"to"`
	Type        string    `json:"type"`
	PowerKW     float64   `json:"power_kw"`
	Direction   Direction `json:"direction"`
	SignedDelta float64   `json:"_delta,omitempty"`
}

// EdgeKey is the matching key for edges across frames.
type EdgeKey struct {
	From string
	To   string
	Type string
}

func (e Edge) Key() EdgeKey { return EdgeKey{From: e.From, To: e.To, Type: e.Type} }

// Frame is one reconciled node/edge set. It is transient: rebuilt every tick
// and never persisted beyond the smoothing caches derived from it.
type Frame struct {
	Nodes     []Node    `json:"nodes"`
	Edges     []Edge    `json:"edges"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NodeByID returns the node with the given ID, if present.
func (f Frame) NodeByID(id string) (Node, bool) {
	for _, n := range f.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// SemanticVector is a controller's intended power allocation. Sign
// conventions: battery > 0 charging, < 0 discharging; grid > 0 import,
// < 0 export; ev >= 0 charging demand.
type SemanticVector struct {
	BatteryKW   float64 `json:"battery_kw"`
	Battery1KW  float64 `json:"battery1_kw,omitempty"`
	Battery2KW  float64 `json:"battery2_kw,omitempty"`
	GridKW      float64 `json:"grid_kw"`
	EVKW        float64 `json:"ev_kw"`
	Curtailment float64 `json:"curtailment,omitempty"`
}

// Capacities are the static per-asset limits used to normalize semantic
// magnitudes into visual fractions. Fetched once; never mutated.
type Capacities struct {
	Bat1MaxCharge    float64 `json:"BAT1_MAX_CHARGE"`
	Bat2MaxCharge    float64 `json:"BAT2_MAX_CHARGE"`
	Bat1MaxDischarge float64 `json:"BAT1_MAX_DISCHARGE"`
	Bat2MaxDischarge float64 `json:"BAT2_MAX_DISCHARGE"`
	GridMaxImport    float64 `json:"GRID_MAX_IMPORT"`
	GridMaxExport    float64 `json:"GRID_MAX_EXPORT"`
	EVMaxAggCharge   float64 `json:"EV_MAX_AGG_CHARGE"`
}

// ChargeTotal is the aggregate battery charge limit.
func (c Capacities) ChargeTotal() float64 { return c.Bat1MaxCharge + c.Bat2MaxCharge }

// DischargeTotal is the aggregate battery discharge limit.
func (c Capacities) DischargeTotal() float64 { return c.Bat1MaxDischarge + c.Bat2MaxDischarge }

// Severity ranks an alert. Rank ordering drives halo selection.
type Severity string

const (
	SeverityHigh   Severity = "HIGH"
	SeverityMedium Severity = "MEDIUM"
	SeverityLow    Severity = "LOW"
)

// Rank maps severity to its numeric rank; unknown severities rank lowest.
func (s Severity) Rank() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

// Alert is an externally-owned alert. The engine never creates, mutates, or
// deletes one; it only derives presentation state from the list each tick.
type Alert struct {
	ID       string     `json:"id,omitempty"`
	Type     string     `json:"type"`
	Severity Severity   `json:"severity"`
	Message  string     `json:"message,omitempty"`
	AckAt    *time.Time `json:"ack_ts,omitempty"`
}

// CoerceFloat parses loosely-typed numeric input with a zero fallback.
// Upstream payloads sometimes carry numbers as strings; nothing downstream
// should ever see a NaN or a parse error.
func CoerceFloat(v interface{}) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case float32:
		return float64(x)
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0
		}
		return f
	}
	return 0
}
