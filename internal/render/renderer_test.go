package render

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terminal-bench/gridflow/internal/grid"
	"github.com/terminal-bench/gridflow/internal/halo"
)

func testFrame() grid.Frame {
	return grid.Frame{
		Nodes: []grid.Node{
			{ID: "solar", Type: grid.NodeSolar, Label: "Solar", X: 120, Y: 60, Metrics: map[string]float64{"power_kw": 14.2}},
			{ID: "battery", Type: grid.NodeBattery, Label: "Battery", X: 520, Y: 180, Metrics: map[string]float64{"soc": 62.4, "power_kw": -12.1}},
		},
		Edges: []grid.Edge{
			{From: "solar", To: "battery", Type: "charge", PowerKW: 8.1, Direction: grid.DirectionForward},
		},
	}
}

func opsOfKind(scene Scene, kind string) []Op {
	var out []Op
	for _, op := range scene.Ops {
		if op.Kind == kind {
			out = append(out, op)
		}
	}
	return out
}

func TestThickness(t *testing.T) {
	assert.Equal(t, 2.0, Thickness(0))
	assert.InDelta(t, 2+math.Log(11)*3, Thickness(10), 1e-9)
	assert.InDelta(t, 2+math.Log(11)*3, Thickness(-10), 1e-9, "magnitude only")
	assert.Equal(t, 18.0, Thickness(1e9), "capped")
}

func TestSourceType(t *testing.T) {
	from := grid.Node{Type: grid.NodeSolar}
	to := grid.Node{Type: grid.NodeBattery}

	assert.Equal(t, grid.NodeSolar, SourceType(grid.Edge{Direction: grid.DirectionForward}, from, to))
	assert.Equal(t, grid.NodeBattery, SourceType(grid.Edge{Direction: grid.DirectionReverse}, from, to))
}

func TestLabelPriority(t *testing.T) {
	t.Run("signed power first", func(t *testing.T) {
		n := grid.Node{Label: "Battery", Metrics: map[string]float64{"power_kw": 12.34, "soc": 50}}
		assert.Equal(t, "+12.3 kW", Label(n))
	})

	t.Run("negative power keeps its sign", func(t *testing.T) {
		n := grid.Node{Metrics: map[string]float64{"power_kw": -3.25}}
		assert.Equal(t, "-3.2 kW", Label(n))
	})

	t.Run("soc when no power", func(t *testing.T) {
		n := grid.Node{Label: "Battery", Metrics: map[string]float64{"soc": 62.4}}
		assert.Equal(t, "62.4%", Label(n))
	})

	t.Run("plain label when neither", func(t *testing.T) {
		n := grid.Node{Label: "Facility Load"}
		assert.Equal(t, "Facility Load", Label(n))
	})
}

func TestRenderPlainEdgeUsesSourceColor(t *testing.T) {
	r := NewRenderer()
	start := time.Unix(0, 0)
	scene := r.Render(testFrame(), nil, Options{Now: start.Add(time.Second), Start: start})

	curves := opsOfKind(scene, "curve")
	require.Len(t, curves, 1)
	assert.Equal(t, ColorFor(grid.NodeSolar), curves[0].Color)
	assert.Equal(t, 1.0, curves[0].Alpha)
	assert.InDelta(t, Thickness(8.1), curves[0].Thickness, 1e-9)
}

func TestRenderReverseEdgeColorsFromDestination(t *testing.T) {
	r := NewRenderer()
	frame := testFrame()
	frame.Edges[0].Direction = grid.DirectionReverse
	start := time.Unix(0, 0)

	scene := r.Render(frame, nil, Options{Now: start, Start: start})
	curves := opsOfKind(scene, "curve")
	require.Len(t, curves, 1)
	assert.Equal(t, ColorFor(grid.NodeBattery), curves[0].Color, "color indicates the supplying side")
}

func TestRenderDeltaPulsesWhite(t *testing.T) {
	r := NewRenderer()
	frame := testFrame()
	frame.Edges[0].SignedDelta = 5
	start := time.Unix(0, 0)

	scene := r.Render(frame, nil, Options{Now: start, Start: start})
	curves := opsOfKind(scene, "curve")
	require.Len(t, curves, 1)
	assert.Equal(t, "#ffffff", curves[0].Color)
}

func TestRenderTrivialDeltaDoesNotPulse(t *testing.T) {
	r := NewRenderer()
	frame := testFrame()
	frame.Edges[0].SignedDelta = 0.3 // below the 0.4 floor
	start := time.Unix(0, 0)

	scene := r.Render(frame, nil, Options{Now: start, Start: start})
	curves := opsOfKind(scene, "curve")
	require.Len(t, curves, 1)
	assert.Equal(t, ColorFor(grid.NodeSolar), curves[0].Color)
}

func TestRenderHighlightOutranksDeltaPulse(t *testing.T) {
	r := NewRenderer()
	frame := testFrame()
	frame.Edges[0].SignedDelta = 5
	start := time.Unix(0, 0)

	scene := r.Render(frame, nil, Options{
		Now:             start,
		Start:           start,
		HighlightAction: "battery_charge", // matches solar→battery
	})
	curves := opsOfKind(scene, "curve")
	require.Len(t, curves, 1)
	assert.Equal(t, ColorFor(grid.NodeSolar), curves[0].Color, "highlight wins over the white delta pulse")
}

func TestRenderArrowhead(t *testing.T) {
	t.Run("reduced motion pins the arrowhead at the midpoint", func(t *testing.T) {
		r := NewRenderer()
		start := time.Unix(0, 0)

		a := r.Render(testFrame(), nil, Options{Now: start.Add(time.Second), Start: start, ReducedMotion: true})
		b := r.Render(testFrame(), nil, Options{Now: start.Add(7 * time.Second), Start: start, ReducedMotion: true})

		ta := opsOfKind(a, "triangle")
		tb := opsOfKind(b, "triangle")
		require.Len(t, ta, 1)
		require.Len(t, tb, 1)
		assert.Equal(t, ta[0].Points, tb[0].Points, "no motion between ticks")

		curve := CurveBetween(120, 60, 520, 180)
		mid := curve.PointAt(0.5)
		tip := ta[0].Points[0]
		dist := math.Hypot(tip.X-mid.X, tip.Y-mid.Y)
		assert.Less(t, dist, 40.0, "tip sits by the curve midpoint")
	})

	t.Run("arrowhead travels when motion is enabled", func(t *testing.T) {
		r := NewRenderer()
		start := time.Unix(0, 0)

		a := r.Render(testFrame(), nil, Options{Now: start.Add(100 * time.Millisecond), Start: start})
		b := r.Render(testFrame(), nil, Options{Now: start.Add(400 * time.Millisecond), Start: start})

		assert.NotEqual(t, opsOfKind(a, "triangle")[0].Points, opsOfKind(b, "triangle")[0].Points)
	})

	t.Run("outlined with a size floor", func(t *testing.T) {
		r := NewRenderer()
		frame := testFrame()
		frame.Edges[0].PowerKW = 0.01
		start := time.Unix(0, 0)

		scene := r.Render(frame, nil, Options{Now: start, Start: start, ReducedMotion: true})
		tri := opsOfKind(scene, "triangle")
		require.Len(t, tri, 1)
		assert.True(t, tri[0].Outlined)
	})
}

func TestRenderNodeDecorations(t *testing.T) {
	r := NewRenderer()
	start := time.Unix(0, 0)
	scene := r.Render(testFrame(), nil, Options{Now: start, Start: start, ReducedMotion: true})

	t.Run("battery fill proportional to soc", func(t *testing.T) {
		fills := opsOfKind(scene, "batteryFill")
		require.Len(t, fills, 1)
		assert.InDelta(t, 0.624, fills[0].Fraction, 1e-9)
	})

	t.Run("solar glow is additive", func(t *testing.T) {
		glows := opsOfKind(scene, "glow")
		require.Len(t, glows, 1)
		assert.True(t, glows[0].Additive)
		assert.InDelta(t, 14.2/25.0, glows[0].Alpha, 1e-9)
	})

	t.Run("every node gets an ambient ring and a label", func(t *testing.T) {
		assert.Len(t, opsOfKind(scene, "ring"), 2)
		texts := opsOfKind(scene, "text")
		require.Len(t, texts, 2)
		assert.Equal(t, "+14.2 kW", texts[0].Text)
		assert.Equal(t, "-12.1 kW", texts[1].Text)
	})
}

func TestRenderBatteryFillClamped(t *testing.T) {
	r := NewRenderer()
	frame := testFrame()
	frame.Nodes[1].Metrics["soc"] = 150
	start := time.Unix(0, 0)

	scene := r.Render(frame, nil, Options{Now: start, Start: start, ReducedMotion: true})
	fills := opsOfKind(scene, "batteryFill")
	require.Len(t, fills, 1)
	assert.Equal(t, 1.0, fills[0].Fraction)
}

func TestRenderHalos(t *testing.T) {
	r := NewRenderer()
	start := time.Unix(0, 0)
	halos := []halo.Halo{{
		Node:      grid.NodeBattery,
		Severity:  grid.SeverityHigh,
		Opacity:   0.5,
		Radius:    36,
		OuterRing: true,
		Additive:  true,
	}}

	scene := r.Render(testFrame(), halos, Options{Now: start, Start: start, ReducedMotion: true})

	haloOps := opsOfKind(scene, "halo")
	require.Len(t, haloOps, 1)
	assert.True(t, haloOps[0].Additive)
	assert.Equal(t, 0.5, haloOps[0].Alpha)

	// Battery gets its halo ring, plus the two ambient rings.
	rings := opsOfKind(scene, "ring")
	require.Len(t, rings, 3)
	var outer *Op
	for i := range rings {
		if rings[i].Radius == 42 {
			outer = &rings[i]
		}
	}
	require.NotNil(t, outer, "outer ring at radius+6")
}

func TestRenderSkipsEdgesWithMissingEndpoints(t *testing.T) {
	r := NewRenderer()
	frame := testFrame()
	frame.Edges = append(frame.Edges, grid.Edge{From: "ghost", To: "battery", Type: "x", PowerKW: 5})
	start := time.Unix(0, 0)

	scene := r.Render(frame, nil, Options{Now: start, Start: start})
	assert.Len(t, opsOfKind(scene, "curve"), 1)
}

func TestGradientGeometryMemoized(t *testing.T) {
	r := NewRenderer()
	start := time.Unix(0, 0)

	a := r.Render(testFrame(), nil, Options{Now: start, Start: start})
	// Move the node; the memoized glow geometry must not chase it mid-session.
	moved := testFrame()
	moved.Nodes[0].X += 500
	b := r.Render(moved, nil, Options{Now: start.Add(time.Second), Start: start})

	ga := opsOfKind(a, "glow")
	gb := opsOfKind(b, "glow")
	require.Len(t, ga, 1)
	require.Len(t, gb, 1)
	assert.Equal(t, ga[0].Gradient, gb[0].Gradient, "geometry cached per node key")
}
