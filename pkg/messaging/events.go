package messaging

import (
	"encoding/json"
	"time"

	"github.com/terminal-bench/gridflow/internal/grid"
)

// Subjects the engine listens on. The embedding application pushes live
// inputs here; nothing is fetched from these.
const (
	SubjectSemantic = "gridflow.semantic"
	SubjectAlerts   = "gridflow.alerts"
	SubjectDisplay  = "gridflow.display"
)

// SemanticUpdate carries the controller's proposed and safety-filtered
// action vectors plus model provenance for staleness labeling.
type SemanticUpdate struct {
	Raw          *grid.SemanticVector `json:"raw,omitempty"`
	Safe         *grid.SemanticVector `json:"safe,omitempty"`
	ModelVersion string               `json:"model_version,omitempty"`
	Timestamp    time.Time            `json:"timestamp"`
}

// AlertEvent replaces the engine's view of the current alert list wholesale.
type AlertEvent struct {
	Alerts []grid.Alert `json:"alerts"`
}

// DisplayUpdate carries user display controls.
type DisplayUpdate struct {
	Mode            string `json:"mode,omitempty"` // "safe", "raw" or "off"
	ReducedMotion   *bool  `json:"reduced_motion,omitempty"`
	HighlightAction string `json:"highlight_action,omitempty"`
}

// DecodeSemantic parses a semantic update, coercing loosely-typed numerics
// with a zero fallback. A payload that is not a JSON object at all returns
// an error; bad individual fields never do.
func DecodeSemantic(data []byte) (SemanticUpdate, error) {
	var raw struct {
		Raw          map[string]interface{} `json:"raw"`
		Safe         map[string]interface{} `json:"safe"`
		ModelVersion string                 `json:"model_version"`
		Timestamp    time.Time              `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return SemanticUpdate{}, err
	}
	upd := SemanticUpdate{ModelVersion: raw.ModelVersion, Timestamp: raw.Timestamp}
	if raw.Raw != nil {
		v := coerceVector(raw.Raw)
		upd.Raw = &v
	}
	if raw.Safe != nil {
		v := coerceVector(raw.Safe)
		upd.Safe = &v
	}
	return upd, nil
}

func coerceVector(m map[string]interface{}) grid.SemanticVector {
	return grid.SemanticVector{
		BatteryKW:   grid.CoerceFloat(m["battery_kw"]),
		Battery1KW:  grid.CoerceFloat(m["battery1_kw"]),
		Battery2KW:  grid.CoerceFloat(m["battery2_kw"]),
		GridKW:      grid.CoerceFloat(m["grid_kw"]),
		EVKW:        grid.CoerceFloat(m["ev_kw"]),
		Curtailment: grid.CoerceFloat(m["curtailment"]),
	}
}
