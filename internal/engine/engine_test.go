package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/terminal-bench/gridflow/internal/feed"
	"github.com/terminal-bench/gridflow/internal/grid"
	"github.com/terminal-bench/gridflow/internal/render"
	"github.com/terminal-bench/gridflow/pkg/messaging"
)

type fakeFetcher struct {
	topo  grid.Frame
	delta []grid.Edge
}

func (f *fakeFetcher) FetchTopology(context.Context) (grid.Frame, error) {
	return f.topo, nil
}

func (f *fakeFetcher) FetchDelta(context.Context) ([]grid.Edge, error) {
	return f.delta, nil
}

func testTopology() grid.Frame {
	return grid.Frame{
		Nodes: []grid.Node{
			{ID: "solar", Type: grid.NodeSolar, Label: "Solar", X: 0, Y: 0, Metrics: map[string]float64{"power_kw": 10}},
			{ID: "battery", Type: grid.NodeBattery, Label: "Battery", X: 100, Y: 0, Metrics: map[string]float64{"soc": 50}},
		},
		Edges: []grid.Edge{
			{From: "solar", To: "battery", Type: "charge", PowerKW: 10, Direction: grid.DirectionForward},
		},
		UpdatedAt: time.Now(),
	}
}

func newTestEngine(fake *fakeFetcher) *Engine {
	recon := feed.NewReconciler(fake, nil, zap.NewNop())
	return New(Config{
		Reconciler: recon,
		Capacities: grid.Capacities{Bat1MaxCharge: 600, Bat1MaxDischarge: 600},
		Logger:     zap.NewNop(),
		Rand:       func() float64 { return 0 },
	})
}

func curveOps(scene render.Scene) []render.Op {
	var out []render.Op
	for _, op := range scene.Ops {
		if op.Kind == "curve" {
			out = append(out, op)
		}
	}
	return out
}

func TestTickBeforeBootstrapPublishesNothing(t *testing.T) {
	eng := newTestEngine(&fakeFetcher{topo: testTopology()})
	eng.Tick(context.Background(), time.Now())

	assert.Empty(t, eng.Scene().Ops)
}

func TestTickRendersReconciledFrame(t *testing.T) {
	fake := &fakeFetcher{topo: testTopology()}
	eng := newTestEngine(fake)
	eng.recon.Bootstrap(context.Background())

	eng.Tick(context.Background(), time.Now())

	curves := curveOps(eng.Scene())
	require.Len(t, curves, 1)
	assert.InDelta(t, render.Thickness(10), curves[0].Thickness, 1e-9)
}

func TestTickSmoothsDeltaUpdates(t *testing.T) {
	fake := &fakeFetcher{topo: testTopology()}
	eng := newTestEngine(fake)
	ctx := context.Background()
	eng.recon.Bootstrap(ctx)

	// First tick seeds the smoothing cache at 10 kW.
	eng.Tick(ctx, time.Now())

	fake.delta = []grid.Edge{
		{From: "solar", To: "battery", Type: "charge", PowerKW: 15, Direction: grid.DirectionForward},
	}
	eng.recon.Poll(ctx)
	eng.Tick(ctx, time.Now())

	scene := eng.Scene()
	curves := curveOps(scene)
	require.Len(t, curves, 1)
	assert.InDelta(t, render.Thickness(11.25), curves[0].Thickness, 1e-9, "10 + (15-10)*0.25")
	assert.Equal(t, "#ffffff", curves[0].Color, "5 kW delta pulses white")
}

func TestStaleness(t *testing.T) {
	eng := newTestEngine(&fakeFetcher{topo: testTopology()})

	t.Run("stale until the first semantic update", func(t *testing.T) {
		st := eng.StalenessNow(time.Now())
		assert.True(t, st.Stale)
	})

	t.Run("fresh within the threshold", func(t *testing.T) {
		now := time.Now()
		eng.SetSemantic(messaging.SemanticUpdate{
			Safe:         &grid.SemanticVector{BatteryKW: -10},
			ModelVersion: "v3",
			Timestamp:    now.Add(-5 * time.Second),
		})
		st := eng.StalenessNow(now)
		assert.False(t, st.Stale)
		assert.InDelta(t, 5, st.Seconds, 0.01)
		assert.Equal(t, "v3", st.ModelVersion)
	})

	t.Run("stale at exactly the threshold", func(t *testing.T) {
		now := time.Now()
		eng.SetSemantic(messaging.SemanticUpdate{
			Safe:      &grid.SemanticVector{},
			Timestamp: now.Add(-StaleThreshold),
		})
		assert.True(t, eng.StalenessNow(now).Stale)
	})
}

func TestTickCarriesDiffBars(t *testing.T) {
	fake := &fakeFetcher{topo: testTopology()}
	eng := newTestEngine(fake)
	ctx := context.Background()
	eng.recon.Bootstrap(ctx)

	eng.SetSemantic(messaging.SemanticUpdate{
		Raw:       &grid.SemanticVector{BatteryKW: -30, GridKW: 100},
		Safe:      &grid.SemanticVector{BatteryKW: -10, GridKW: 100},
		Timestamp: time.Now(),
	})
	eng.Tick(ctx, time.Now())

	bars := eng.Scene().DiffBars
	require.NotNil(t, bars)
	assert.InDelta(t, 20, bars["battery_kw"], 1e-9, "first observation unsmoothed")
	assert.Equal(t, 0.0, bars["grid_kw"])
}

func TestTickMergesStoredAndPushedAlerts(t *testing.T) {
	fake := &fakeFetcher{topo: testTopology()}
	eng := newTestEngine(fake)
	ctx := context.Background()
	eng.recon.Bootstrap(ctx)

	eng.SetStoredAlerts([]grid.Alert{{ID: "db-1", Type: "SOC_LOW", Severity: grid.SeverityLow}})
	eng.SetAlerts([]grid.Alert{{ID: "live-1", Type: "BATTERY_OVERTEMP", Severity: grid.SeverityHigh}})
	eng.SetDisplay(messaging.DisplayUpdate{ReducedMotion: boolPtr(true)})
	eng.Tick(ctx, time.Now())

	var halos int
	for _, op := range eng.Scene().Ops {
		if op.Kind == "halo" {
			halos++
		}
	}
	assert.Equal(t, 1, halos, "both alerts target the battery; one halo wins")
}

func TestSetDisplay(t *testing.T) {
	eng := newTestEngine(&fakeFetcher{})

	eng.SetDisplay(messaging.DisplayUpdate{Mode: "raw", ReducedMotion: boolPtr(true), HighlightAction: "grid_import"})
	eng.mu.RLock()
	in := eng.in
	eng.mu.RUnlock()
	assert.Equal(t, "raw", string(in.mode))
	assert.True(t, in.reducedMotion)
	assert.Equal(t, "grid_import", in.highlight)

	// Zero-valued mode and motion leave the current settings untouched.
	eng.SetDisplay(messaging.DisplayUpdate{})
	eng.mu.RLock()
	in = eng.in
	eng.mu.RUnlock()
	assert.Equal(t, "raw", string(in.mode))
	assert.True(t, in.reducedMotion)
	assert.Empty(t, in.highlight, "highlight clears when the update omits it")
}

func TestTooltip(t *testing.T) {
	fake := &fakeFetcher{topo: testTopology()}
	eng := newTestEngine(fake)
	ctx := context.Background()
	eng.recon.Bootstrap(ctx)
	eng.Tick(ctx, time.Now())

	tip, ok := eng.Tooltip(5, 5)
	require.True(t, ok)
	assert.Equal(t, "Solar", tip.Label)

	_, ok = eng.Tooltip(50, 400)
	assert.False(t, ok)
}

func boolPtr(b bool) *bool { return &b }
