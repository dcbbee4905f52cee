package overlay

import (
	"math"

	"github.com/terminal-bench/gridflow/internal/grid"
)

// Mode selects which semantic vector the overlay visualizes.
type Mode string

const (
	ModeSafe Mode = "safe"
	ModeRaw  Mode = "raw"
	ModeOff  Mode = "off"
)

// Dead-band and scaling constants. The dead-bands reject measurement noise
// before switching visual regime; the multipliers put each edge family on a
// comparable visual scale.
const (
	batteryDischargeFloor = -1.0
	batteryChargeFloor    = 5.0
	solarDampFloor        = -5.0
	gridImportFloor       = 50.0
	gridExportFloor       = -50.0
	evChargeFloor         = 10.0

	dischargeScale   = 40.0
	chargeHintScale  = 6.0
	chargeHintMin    = 0.2
	solarChargeScale = 30.0
	solarDampFactor  = 0.3
	solarDampMin     = 0.1
	gridScale        = 50.0
	evScale          = 30.0
)

// Select picks the vector to display for a mode: safe prefers the
// safety-filtered vector and falls back to the raw proposal, raw the
// opposite. Off, or no vector at all, disables the overlay.
func Select(mode Mode, raw, safe *grid.SemanticVector) *grid.SemanticVector {
	switch mode {
	case ModeSafe:
		if safe != nil {
			return safe
		}
		return raw
	case ModeRaw:
		if raw != nil {
			return raw
		}
		return safe
	}
	return nil
}

// Apply overrides power and direction on a fixed whitelist of edge shapes to
// visualize controller intent instead of measured flow. It is a pure
// function of (edge, vector, capacities); edges outside the whitelist pass
// through unmodified. A nil vector is a no-op.
func Apply(edge grid.Edge, vec *grid.SemanticVector, caps grid.Capacities) grid.Edge {
	if vec == nil {
		return edge
	}

	switch {
	case edge.From == "battery" && (edge.To == "load" || edge.To == "ev"):
		if vec.BatteryKW < batteryDischargeFloor {
			edge.PowerKW = frac(math.Abs(vec.BatteryKW), caps.DischargeTotal()) * dischargeScale
			edge.Direction = grid.DirectionForward
		} else if vec.BatteryKW > batteryChargeFloor {
			// Charging: suppress the discharge visual to a reverse hint.
			edge.PowerKW = math.Max(chargeHintMin, frac(vec.BatteryKW, caps.ChargeTotal())*chargeHintScale)
			edge.Direction = grid.DirectionReverse
		}

	case edge.From == "solar" && edge.To == "battery":
		if vec.BatteryKW > batteryChargeFloor {
			edge.PowerKW = frac(vec.BatteryKW, caps.ChargeTotal()) * solarChargeScale
			edge.Direction = grid.DirectionForward
		} else if vec.BatteryKW < solarDampFloor {
			// Battery discharging: solar is not charging it, dampen.
			edge.PowerKW = math.Max(solarDampMin, edge.PowerKW*solarDampFactor)
		}

	case edge.From == "grid" && edge.To == "load":
		if vec.GridKW > gridImportFloor {
			edge.PowerKW = frac(vec.GridKW, caps.GridMaxImport) * gridScale
			edge.Direction = grid.DirectionForward
		} else if vec.GridKW < gridExportFloor {
			edge.PowerKW = frac(math.Abs(vec.GridKW), caps.GridMaxExport) * gridScale
			edge.Direction = grid.DirectionReverse
		}

	case edge.From == "grid" && edge.To == "ev":
		if vec.EVKW > evChargeFloor {
			edge.PowerKW = frac(vec.EVKW, caps.EVMaxAggCharge) * evScale
			edge.Direction = grid.DirectionForward
		}
	}
	return edge
}

// ApplyAll maps a whole edge set through the overlay.
func ApplyAll(edges []grid.Edge, vec *grid.SemanticVector, caps grid.Capacities) []grid.Edge {
	if vec == nil {
		return edges
	}
	out := make([]grid.Edge, len(edges))
	for i, e := range edges {
		out[i] = Apply(e, vec, caps)
	}
	return out
}

// frac normalizes a magnitude against a capacity, clamped to [0, 1]. A zero
// or negative capacity yields the full fraction rather than a division blowup.
func frac(value, capacity float64) float64 {
	if capacity <= 0 {
		return 1
	}
	return math.Min(1, value/capacity)
}
