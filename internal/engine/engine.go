package engine

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/terminal-bench/gridflow/internal/feed"
	"github.com/terminal-bench/gridflow/internal/grid"
	"github.com/terminal-bench/gridflow/internal/halo"
	"github.com/terminal-bench/gridflow/internal/hittest"
	"github.com/terminal-bench/gridflow/internal/overlay"
	"github.com/terminal-bench/gridflow/internal/render"
	"github.com/terminal-bench/gridflow/internal/smoothing"
	"github.com/terminal-bench/gridflow/internal/telemetry"
	"github.com/terminal-bench/gridflow/pkg/messaging"
)

// StaleThreshold is the semantic-update age at which the scene is labeled
// stale.
const StaleThreshold = 15 * time.Second

// inputs is the externally-pushed live state. Replaced field-wise under the
// engine mutex; the tick loop reads a consistent snapshot at tick start.
type inputs struct {
	raw, safe     *grid.SemanticVector
	semanticAt    time.Time
	modelVersion  string
	alerts        []grid.Alert
	storedAlerts  []grid.Alert
	mode          overlay.Mode
	reducedMotion bool
	highlight     string
}

// Staleness describes the age of the controller's last semantic update.
type Staleness struct {
	Seconds      float64 `json:"seconds"`
	Stale        bool    `json:"stale"`
	ModelVersion string  `json:"model_version,omitempty"`
}

// Engine is the tick-driven orchestrator: it reconciles the feed, applies
// the semantic overlay, smooths, renders, and publishes one scene per tick.
// The smoothing caches are confined to the tick goroutine; everything shared
// with HTTP readers is swapped under the mutex, never held across a redraw.
type Engine struct {
	recon    *feed.Reconciler
	caps     grid.Capacities
	edges    *smoothing.EdgeSmoother
	metrics  *smoothing.MetricSmoother
	renderer *render.Renderer
	halos    *halo.Engine
	hub      *Hub
	tel      *telemetry.Writer
	log      *zap.Logger

	tickInterval time.Duration
	pollInterval time.Duration
	start        time.Time

	mu    sync.RWMutex
	in    inputs
	scene render.Scene
	frame grid.Frame

	polling atomic.Bool
	stopCh  chan struct{}
	stopped sync.Once
	wg      sync.WaitGroup
}

// Config wires an engine together.
type Config struct {
	Reconciler   *feed.Reconciler
	Capacities   grid.Capacities
	Hub          *Hub
	Telemetry    *telemetry.Writer
	Logger       *zap.Logger
	TickInterval time.Duration
	PollInterval time.Duration
	Rand         func() float64
}

// New creates an engine. Rand defaults to math/rand; tests inject a pinned
// source through it.
func New(cfg Config) *Engine {
	rnd := cfg.Rand
	if rnd == nil {
		rnd = rand.Float64
	}
	return &Engine{
		recon:        cfg.Reconciler,
		caps:         cfg.Capacities,
		edges:        smoothing.NewEdgeSmoother(),
		metrics:      smoothing.NewMetricSmoother(),
		renderer:     render.NewRenderer(),
		halos:        halo.NewEngine(rnd),
		hub:          cfg.Hub,
		tel:          cfg.Telemetry,
		log:          cfg.Logger,
		tickInterval: cfg.TickInterval,
		pollInterval: cfg.PollInterval,
		in:           inputs{mode: overlay.ModeSafe},
		stopCh:       make(chan struct{}),
	}
}

// Start bootstraps the topology and launches the tick and poll clocks.
func (e *Engine) Start(ctx context.Context) {
	e.start = time.Now()
	e.recon.Bootstrap(ctx)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		tick := time.NewTicker(e.tickInterval)
		poll := time.NewTicker(e.pollInterval)
		defer tick.Stop()
		defer poll.Stop()

		for {
			select {
			case <-tick.C:
				e.Tick(ctx, time.Now())
			case <-poll.C:
				// Fire-and-forget: a slow upstream must never delay a draw.
				if e.polling.CompareAndSwap(false, true) {
					go func() {
						defer e.polling.Store(false)
						e.recon.Poll(ctx)
						e.tel.RecordPoll(e.recon.Failures() == 0, e.recon.Failures())
					}()
				}
			case <-e.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts both clocks and closes the frame stream. Safe to call more
// than once.
func (e *Engine) Stop() {
	e.stopped.Do(func() {
		close(e.stopCh)
	})
	e.wg.Wait()
	if e.hub != nil {
		e.hub.Close()
	}
}

// Tick runs one full reconcile-overlay-smooth-render pass and publishes the
// resulting scene. Exported so integration tests can drive the pipeline
// without real clocks.
func (e *Engine) Tick(ctx context.Context, now time.Time) {
	began := time.Now()

	frame, ok := e.recon.Frame()
	if !ok {
		// Nothing reconciled yet; keep whatever scene is already published.
		return
	}

	e.mu.RLock()
	in := e.in
	e.mu.RUnlock()

	vec := overlay.Select(in.mode, in.raw, in.safe)
	frame.Edges = e.edges.Smooth(overlay.ApplyAll(frame.Edges, vec, e.caps))

	alerts := append(append([]grid.Alert(nil), in.storedAlerts...), in.alerts...)
	halos := e.halos.Compute(alerts, now, in.reducedMotion, render.SizeFor)
	scene := e.renderer.Render(frame, halos, render.Options{
		Now:             now,
		Start:           e.start,
		ReducedMotion:   in.reducedMotion,
		HighlightAction: in.highlight,
	})

	st := staleness(in.semanticAt, e.start, now)
	scene.StaleSeconds = st.Seconds
	scene.Stale = st.Stale
	scene.DiffBars = e.diffBars(in.raw, in.safe)

	e.mu.Lock()
	e.scene = scene
	e.frame = frame
	e.mu.Unlock()

	if e.hub != nil {
		e.hub.Broadcast(scene)
	}
	e.tel.RecordTick(time.Since(began), len(frame.Edges), scene.Stale)
}

// diffBars smooths the raw-vs-safe delta magnitude per semantic metric for
// the comparison bars next to the diagram.
func (e *Engine) diffBars(raw, safe *grid.SemanticVector) map[string]float64 {
	if raw == nil || safe == nil {
		return nil
	}
	abs := func(v float64) float64 {
		if v < 0 {
			return -v
		}
		return v
	}
	return map[string]float64{
		"battery_kw": e.metrics.Smooth("battery_kw", abs(raw.BatteryKW-safe.BatteryKW)),
		"grid_kw":    e.metrics.Smooth("grid_kw", abs(raw.GridKW-safe.GridKW)),
		"ev_kw":      e.metrics.Smooth("ev_kw", abs(raw.EVKW-safe.EVKW)),
	}
}

func staleness(semanticAt, start, now time.Time) Staleness {
	if semanticAt.IsZero() {
		return Staleness{Seconds: now.Sub(start).Seconds(), Stale: true}
	}
	age := now.Sub(semanticAt)
	return Staleness{Seconds: age.Seconds(), Stale: age >= StaleThreshold}
}

// Scene returns the most recently published scene.
func (e *Engine) Scene() render.Scene {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.scene
}

// Tooltip hit-tests the pointer against the current frame's nodes.
func (e *Engine) Tooltip(x, y float64) (hittest.Tooltip, bool) {
	e.mu.RLock()
	nodes := e.frame.Nodes
	e.mu.RUnlock()

	n, ok := hittest.Hit(nodes, x, y)
	if !ok {
		return hittest.Tooltip{}, false
	}
	return hittest.Describe(n), true
}

// Capacities returns the static limit table.
func (e *Engine) Capacities() grid.Capacities { return e.caps }

// StalenessNow reports the current semantic staleness.
func (e *Engine) StalenessNow(now time.Time) Staleness {
	e.mu.RLock()
	defer e.mu.RUnlock()
	st := staleness(e.in.semanticAt, e.start, now)
	st.ModelVersion = e.in.modelVersion
	return st
}

// SetSemantic replaces the live semantic vectors.
func (e *Engine) SetSemantic(upd messaging.SemanticUpdate) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.in.raw = upd.Raw
	e.in.safe = upd.Safe
	e.in.modelVersion = upd.ModelVersion
	if upd.Timestamp.IsZero() {
		e.in.semanticAt = time.Now()
	} else {
		e.in.semanticAt = upd.Timestamp
	}
}

// SetAlerts replaces the pushed (NATS/HTTP) alert list wholesale.
func (e *Engine) SetAlerts(alerts []grid.Alert) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.in.alerts = alerts
}

// SetStoredAlerts replaces the store-loaded alert list wholesale. Stored
// alerts come first in halo tie-breaking since they are the older ones.
func (e *Engine) SetStoredAlerts(alerts []grid.Alert) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.in.storedAlerts = alerts
}

// SetDisplay applies user display controls. Zero-valued fields leave the
// current setting untouched.
func (e *Engine) SetDisplay(upd messaging.DisplayUpdate) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if upd.Mode != "" {
		e.in.mode = overlay.Mode(upd.Mode)
	}
	if upd.ReducedMotion != nil {
		e.in.reducedMotion = *upd.ReducedMotion
	}
	e.in.highlight = upd.HighlightAction
}

// BindMessaging subscribes the engine's live inputs to their NATS subjects.
// Malformed payloads are dropped with a warning; they are never fatal.
func (e *Engine) BindMessaging(mc *messaging.Client) error {
	if err := mc.Subscribe(messaging.SubjectSemantic, func(msg *nats.Msg) {
		upd, err := messaging.DecodeSemantic(msg.Data)
		if err != nil {
			e.log.Warn("dropping malformed semantic update", zap.Error(err))
			return
		}
		e.SetSemantic(upd)
	}); err != nil {
		return err
	}

	if err := mc.Subscribe(messaging.SubjectAlerts, func(msg *nats.Msg) {
		var ev messaging.AlertEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			e.log.Warn("dropping malformed alert event", zap.Error(err))
			return
		}
		e.SetAlerts(ev.Alerts)
	}); err != nil {
		return err
	}

	return mc.Subscribe(messaging.SubjectDisplay, func(msg *nats.Msg) {
		var upd messaging.DisplayUpdate
		if err := json.Unmarshal(msg.Data, &upd); err != nil {
			e.log.Warn("dropping malformed display update", zap.Error(err))
			return
		}
		e.SetDisplay(upd)
	})
}
