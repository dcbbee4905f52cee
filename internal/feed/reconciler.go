package feed

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/terminal-bench/gridflow/internal/grid"
)

const snapshotKey = "gridflow:topology:last"

// failureThreshold is the consecutive delta-poll failure count that triggers
// one full-snapshot resynchronization.
const failureThreshold = 2

// Reconciler maintains the authoritative node/edge set from full snapshots
// and incremental deltas. Every failure mode degrades to retaining the last
// good frame; nothing here is fatal and nothing surfaces to the UI.
type Reconciler struct {
	fetcher Fetcher
	cache   *redis.Client // optional last-good snapshot store
	log     *zap.Logger

	mu       sync.RWMutex
	frame    grid.Frame
	hasFrame bool
	failures int
}

// NewReconciler creates a reconciler. cache may be nil.
func NewReconciler(fetcher Fetcher, cache *redis.Client, log *zap.Logger) *Reconciler {
	return &Reconciler{fetcher: fetcher, cache: cache, log: log}
}

// Bootstrap loads the initial topology: upstream first, then the redis
// snapshot from a previous run if the upstream is down. Starting blank is
// acceptable only when both are unavailable.
func (r *Reconciler) Bootstrap(ctx context.Context) {
	frame, err := r.fetcher.FetchTopology(ctx)
	if err == nil {
		r.acceptSnapshot(ctx, frame)
		return
	}
	r.log.Warn("initial topology fetch failed", zap.Error(err))

	if r.cache == nil {
		return
	}
	raw, err := r.cache.Get(ctx, snapshotKey).Result()
	if err != nil {
		return
	}
	var cached grid.Frame
	if err := json.Unmarshal([]byte(raw), &cached); err != nil {
		return
	}
	r.mu.Lock()
	r.frame = cached
	r.hasFrame = true
	r.mu.Unlock()
	r.log.Info("seeded topology from snapshot cache")
}

// Poll runs one delta cycle: fetch the delta, merge it, and on repeated
// failure escalate to exactly one full-snapshot fetch. The counter resets
// after the escalation regardless of its outcome.
func (r *Reconciler) Poll(ctx context.Context) {
	edges, err := r.fetcher.FetchDelta(ctx)
	if err != nil {
		r.mu.Lock()
		r.failures++
		escalate := r.failures >= failureThreshold
		if escalate {
			r.failures = 0
		}
		r.mu.Unlock()

		r.log.Warn("delta fetch failed", zap.Error(err), zap.Bool("escalating", escalate))
		if escalate {
			r.resync(ctx)
		}
		return
	}

	r.mu.Lock()
	r.failures = 0
	r.mu.Unlock()
	r.ApplyDelta(edges)
}

// resync replaces the frame with a fresh full snapshot. A failed resync
// leaves the last-known frame in place (fail-static, never fail-blank).
func (r *Reconciler) resync(ctx context.Context) {
	frame, err := r.fetcher.FetchTopology(ctx)
	if err != nil {
		r.log.Warn("full topology resync failed, retaining last frame", zap.Error(err))
		return
	}
	r.acceptSnapshot(ctx, frame)
}

func (r *Reconciler) acceptSnapshot(ctx context.Context, frame grid.Frame) {
	r.mu.Lock()
	r.frame = frame
	r.hasFrame = true
	r.mu.Unlock()

	if r.cache != nil {
		if raw, err := json.Marshal(frame); err == nil {
			if err := r.cache.Set(ctx, snapshotKey, raw, 0).Err(); err != nil {
				r.log.Warn("snapshot cache write failed", zap.Error(err))
			}
		}
	}
}

// ApplyDelta merges a fresh edge list into the current frame. Edges whose
// endpoints are unknown in the retained node set are dropped silently; edges
// matching a prior (from,to,type) key carry the signed power change for
// visual emphasis downstream.
func (r *Reconciler) ApplyDelta(edges []grid.Edge) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.hasFrame {
		return
	}

	known := make(map[string]bool, len(r.frame.Nodes))
	for _, n := range r.frame.Nodes {
		known[n.ID] = true
	}
	prior := make(map[grid.EdgeKey]grid.Edge, len(r.frame.Edges))
	for _, e := range r.frame.Edges {
		prior[e.Key()] = e
	}

	merged := make([]grid.Edge, 0, len(edges))
	for _, e := range edges {
		if !known[e.From] || !known[e.To] {
			continue
		}
		if old, ok := prior[e.Key()]; ok {
			e.SignedDelta = e.PowerKW - old.PowerKW
		}
		merged = append(merged, e)
	}
	r.frame.Edges = merged
}

// Frame returns a copy of the last good frame and whether one exists.
func (r *Reconciler) Frame() (grid.Frame, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.hasFrame {
		return grid.Frame{}, false
	}
	out := r.frame
	out.Nodes = append([]grid.Node(nil), r.frame.Nodes...)
	out.Edges = append([]grid.Edge(nil), r.frame.Edges...)
	return out, true
}

// Failures returns the current consecutive-failure count.
func (r *Reconciler) Failures() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.failures
}
