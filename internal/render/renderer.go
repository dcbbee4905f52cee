package render

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/terminal-bench/gridflow/internal/grid"
	"github.com/terminal-bench/gridflow/internal/halo"
)

// Edge styling constants.
const (
	maxThickness   = 18.0
	baseThickness  = 2.0
	thicknessScale = 3.0

	deltaPulseFloor = 0.4 // |signed delta| above which the white pulse kicks in

	highlightHz       = 4.0
	highlightAlphaLo  = 0.45
	highlightAlphaHi  = 1.0
	deltaPulseHz      = 4.0
	deltaPulseAlphaLo = 0.55

	arrowSpeedFloor = 0.2 // curve traversals per second
	arrowSpeedCeil  = 2.2
	arrowSpeedGain  = 0.04
	arrowMinSize    = 6.0
	arrowSizeFactor = 1.8

	ambientRingHz     = 0.8
	ambientRingAlpha  = 0.18
	ambientRingMargin = 8.0

	solarGlowNorm = 25.0 // kW at which the solar glow saturates
	pulseFreqGain = 0.05 // node opacity pulse Hz per kW
	pulseFreqCeil = 3.0
)

// Op is one draw operation in a scene. Kind selects which fields are
// meaningful; the stream stays flat so the painting client needs no schema
// negotiation.
type Op struct {
	Kind string `json:"kind"` // curve, triangle, glyph, batteryFill, glow, ring, halo, text

	Curve     *QuadCurve  `json:"curve,omitempty"`
	Points    []Point     `json:"points,omitempty"`
	Center    *Point      `json:"center,omitempty"`
	Radius    float64     `json:"radius,omitempty"`
	Gradient  *RadialGeom `json:"gradient,omitempty"`
	Glyph     string      `json:"glyph,omitempty"`
	Size      *GlyphSize  `json:"size,omitempty"`
	Fraction  float64     `json:"fraction,omitempty"`
	Color     string      `json:"color,omitempty"`
	Alpha     float64     `json:"alpha,omitempty"`
	Thickness float64     `json:"thickness,omitempty"`
	Outlined  bool        `json:"outlined,omitempty"`
	Additive  bool        `json:"additive,omitempty"`
	Text      string      `json:"text,omitempty"`
	NodeID    string      `json:"node_id,omitempty"`
}

// Scene is one rendered frame: an ordered draw-op list plus metadata the
// embedding client shows alongside it.
type Scene struct {
	Ops          []Op               `json:"ops"`
	GeneratedAt  time.Time          `json:"generated_at"`
	StaleSeconds float64            `json:"stale_seconds"`
	Stale        bool               `json:"stale"`
	DiffBars     map[string]float64 `json:"diff_bars,omitempty"`
}

// Options carries the per-tick inputs the renderer does not own.
type Options struct {
	Now             time.Time
	Start           time.Time // animation clock epoch
	ReducedMotion   bool
	HighlightAction string
}

// Renderer turns a reconciled frame plus halos into a scene. It owns only
// the memoized gradient geometry; styles are recomputed every frame.
type Renderer struct {
	gradients map[string]RadialGeom
}

// NewRenderer creates a renderer with an empty gradient memo.
func NewRenderer() *Renderer {
	return &Renderer{gradients: make(map[string]RadialGeom)}
}

// Render builds the draw-op scene for one tick.
func (r *Renderer) Render(frame grid.Frame, halos []halo.Halo, opts Options) Scene {
	scene := Scene{GeneratedAt: opts.Now}
	clock := opts.Now.Sub(opts.Start).Seconds()

	for _, e := range frame.Edges {
		from, okFrom := frame.NodeByID(e.From)
		to, okTo := frame.NodeByID(e.To)
		if !okFrom || !okTo {
			continue
		}
		scene.Ops = append(scene.Ops, r.edgeOps(e, from, to, clock, opts)...)
	}

	haloByNode := make(map[grid.NodeType]halo.Halo, len(halos))
	for _, h := range halos {
		haloByNode[h.Node] = h
	}
	for _, n := range frame.Nodes {
		if h, ok := haloByNode[n.Type]; ok {
			scene.Ops = append(scene.Ops, haloOps(n, h)...)
		}
		scene.Ops = append(scene.Ops, r.nodeOps(n, clock, opts)...)
	}
	return scene
}

// edgeOps draws one edge: the bowed curve in its highlight-resolved color
// plus the traveling arrowhead.
func (r *Renderer) edgeOps(e grid.Edge, from, to grid.Node, clock float64, opts Options) []Op {
	curve := CurveBetween(from.X, from.Y, to.X, to.Y)
	thickness := Thickness(e.PowerKW)
	color, alpha := r.edgeStyle(e, from, to, clock, opts)

	ops := []Op{{
		Kind:      "curve",
		Curve:     &curve,
		Color:     color,
		Alpha:     alpha,
		Thickness: thickness,
	}}

	t := arrowParam(e, clock, opts.ReducedMotion)
	size := math.Max(arrowMinSize, thickness*arrowSizeFactor)
	pts := ArrowheadAt(curve, t, size, e.Direction == grid.DirectionReverse)
	ops = append(ops, Op{
		Kind:     "triangle",
		Points:   pts[:],
		Color:    color,
		Alpha:    alpha,
		Outlined: true,
	})
	return ops
}

// edgeStyle resolves the edge color and alpha. The three highlight states
// are mutually exclusive, in priority order: externally-highlighted action,
// non-trivial reconciler delta, plain source color.
func (r *Renderer) edgeStyle(e grid.Edge, from, to grid.Node, clock float64, opts Options) (string, float64) {
	source := SourceType(e, from, to)
	base := ColorFor(source)

	if highlightMatches(opts.HighlightAction, from.Type, to.Type) {
		if opts.ReducedMotion {
			return base, highlightAlphaHi
		}
		wave := 0.5 + 0.5*math.Sin(2*math.Pi*highlightHz*clock)
		return base, highlightAlphaLo + (highlightAlphaHi-highlightAlphaLo)*wave
	}

	if math.Abs(e.SignedDelta) > deltaPulseFloor {
		if opts.ReducedMotion {
			return "#ffffff", 1
		}
		wave := 0.5 + 0.5*math.Sin(2*math.Pi*deltaPulseHz*clock)
		return "#ffffff", deltaPulseAlphaLo + (1-deltaPulseAlphaLo)*wave
	}

	return base, 1
}

// SourceType is the node type power flows from: the to-node when the edge
// runs in reverse, the from-node otherwise. Edge color always indicates the
// supplying side.
func SourceType(e grid.Edge, from, to grid.Node) grid.NodeType {
	if e.Direction == grid.DirectionReverse {
		return to.Type
	}
	return from.Type
}

// Thickness compresses edge magnitude logarithmically so large flows do not
// dominate the diagram.
func Thickness(powerKW float64) float64 {
	return math.Min(maxThickness, baseThickness+math.Log(math.Abs(powerKW)+1)*thicknessScale)
}

// arrowParam places the traveling arrowhead on the curve. Speed scales with
// magnitude inside floor/ceiling bounds; reverse edges travel backwards.
// Reduced motion pins the arrowhead at the midpoint.
func arrowParam(e grid.Edge, clock float64, reducedMotion bool) float64 {
	if reducedMotion {
		return 0.5
	}
	speed := math.Min(arrowSpeedCeil, math.Max(arrowSpeedFloor, arrowSpeedFloor+math.Abs(e.PowerKW)*arrowSpeedGain))
	t := clock * speed
	t -= math.Floor(t)
	if e.Direction == grid.DirectionReverse {
		t = 1 - t
	}
	return t
}

// highlightMatches reports whether a highlighted-action signal targets this
// edge's node-type pair.
func highlightMatches(action string, from, to grid.NodeType) bool {
	switch action {
	case "battery_discharge":
		return from == grid.NodeBattery && (to == grid.NodeLoad || to == grid.NodeEV)
	case "battery_charge":
		return from == grid.NodeSolar && to == grid.NodeBattery
	case "grid_import":
		return from == grid.NodeGrid && to == grid.NodeLoad
	case "grid_export":
		return from == grid.NodeGrid && to == grid.NodeLoad
	case "ev_charge":
		return from == grid.NodeGrid && to == grid.NodeEV
	}
	return false
}

// nodeOps draws one node: glyph, type-specific decoration, ambient liveness
// ring, and the metric label.
func (r *Renderer) nodeOps(n grid.Node, clock float64, opts Options) []Op {
	w, h := SizeFor(n.Type)
	size := GlyphSize{W: w, H: h}
	center := Point{X: n.X, Y: n.Y}

	ops := []Op{{
		Kind:   "glyph",
		Center: &center,
		Glyph:  GlyphFor(n.Type),
		Size:   &size,
		Color:  ColorFor(n.Type),
		Alpha:  nodeAlpha(n, clock, opts.ReducedMotion),
		NodeID: n.ID,
	}}

	switch n.Type {
	case grid.NodeBattery:
		soc, _ := n.Metric("soc")
		ops = append(ops, Op{
			Kind:     "batteryFill",
			Center:   &center,
			Size:     &size,
			Fraction: math.Max(0, math.Min(100, soc)) / 100,
			Color:    ColorFor(n.Type),
			NodeID:   n.ID,
		})
	case grid.NodeSolar:
		power, _ := n.Metric("power_kw")
		geom := r.gradientGeom("glow:"+n.ID, n.X, n.Y, math.Max(w, h))
		ops = append(ops, Op{
			Kind:     "glow",
			Gradient: &geom,
			Color:    ColorFor(n.Type),
			Alpha:    math.Min(1, math.Abs(power)/solarGlowNorm),
			Additive: true,
			NodeID:   n.ID,
		})
	}

	ops = append(ops, Op{
		Kind:   "ring",
		Center: &center,
		Radius: math.Max(w, h)/2 + ambientRingMargin,
		Color:  ColorFor(n.Type),
		Alpha:  ambientAlpha(clock, opts.ReducedMotion),
		NodeID: n.ID,
	})

	ops = append(ops, Op{
		Kind:   "text",
		Center: &Point{X: n.X, Y: n.Y + h/2 + 16},
		Text:   Label(n),
		Color:  "#e8e8f0",
		Alpha:  1,
		NodeID: n.ID,
	})
	return ops
}

// nodeAlpha pulses grid/load glyph opacity with a frequency tied to the
// node's power magnitude when motion is enabled.
func nodeAlpha(n grid.Node, clock float64, reducedMotion bool) float64 {
	if reducedMotion || (n.Type != grid.NodeGrid && n.Type != grid.NodeLoad) {
		return 1
	}
	power, ok := n.Metric("power_kw")
	if !ok {
		return 1
	}
	freq := math.Min(pulseFreqCeil, math.Abs(power)*pulseFreqGain)
	return 0.75 + 0.25*math.Sin(2*math.Pi*freq*clock)
}

// ambientAlpha drives the subtle liveness ring drawn around every node.
func ambientAlpha(clock float64, reducedMotion bool) float64 {
	if reducedMotion {
		return ambientRingAlpha
	}
	return ambientRingAlpha * (0.6 + 0.4*math.Sin(2*math.Pi*ambientRingHz*clock))
}

// haloOps draws an alert halo: an additive radial fill plus, for HIGH
// severity, a faint outer ring.
func haloOps(n grid.Node, h halo.Halo) []Op {
	center := Point{X: n.X, Y: n.Y}
	geom := RadialGeom{CX: n.X, CY: n.Y, R: h.Radius}
	ops := []Op{{
		Kind:     "halo",
		Gradient: &geom,
		Color:    severityColor(h.Severity),
		Alpha:    h.Opacity,
		Additive: true,
		NodeID:   n.ID,
	}}
	if h.OuterRing {
		ops = append(ops, Op{
			Kind:   "ring",
			Center: &center,
			Radius: halo.OuterRingRadius(h),
			Color:  severityColor(h.Severity),
			Alpha:  h.Opacity * 0.4,
			NodeID: n.ID,
		})
	}
	return ops
}

func severityColor(s grid.Severity) string {
	switch s {
	case grid.SeverityHigh:
		return "#ef4444"
	case grid.SeverityMedium:
		return "#f97316"
	}
	return "#eab308"
}

// Label picks the node's metric label: signed power with one decimal and a
// leading +, then state of charge, then the plain label.
func Label(n grid.Node) string {
	if power, ok := n.Metric("power_kw"); ok {
		return fmt.Sprintf("%+.1f kW", power)
	}
	if soc, ok := n.Metric("soc"); ok {
		return strconv.FormatFloat(soc, 'f', 1, 64) + "%"
	}
	return n.Label
}

// gradientGeom memoizes reusable gradient geometry per key. Only the shape
// is cached; callers restate color and alpha every frame.
func (r *Renderer) gradientGeom(key string, cx, cy, radius float64) RadialGeom {
	if g, ok := r.gradients[key]; ok {
		return g
	}
	g := RadialGeom{CX: cx, CY: cy, R: radius}
	r.gradients[key] = g
	return g
}
