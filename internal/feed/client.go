package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/terminal-bench/gridflow/internal/grid"
)

// Fetcher is the upstream contract the reconciler depends on. Concrete
// transport lives in Client; tests substitute their own.
type Fetcher interface {
	FetchTopology(ctx context.Context) (grid.Frame, error)
	FetchDelta(ctx context.Context) ([]grid.Edge, error)
}

// Client fetches topology, deltas and capacities from the microgrid backend.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a feed client against a base URL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// FetchTopology returns a complete node/edge snapshot.
func (c *Client) FetchTopology(ctx context.Context) (grid.Frame, error) {
	var frame grid.Frame
	if err := c.get(ctx, "/api/v1/topology", &frame); err != nil {
		return grid.Frame{}, err
	}
	if frame.UpdatedAt.IsZero() {
		frame.UpdatedAt = time.Now()
	}
	return frame, nil
}

// FetchDelta returns a fresh edge list with current magnitudes. Node
// metadata is not guaranteed fresh on this path.
func (c *Client) FetchDelta(ctx context.Context) ([]grid.Edge, error) {
	var body struct {
		Edges []grid.Edge `json:"edges"`
	}
	if err := c.get(ctx, "/api/v1/topology/delta", &body); err != nil {
		return nil, err
	}
	return body.Edges, nil
}

// FetchCapacities returns the static per-asset limits. Fetched once at
// startup.
func (c *Client) FetchCapacities(ctx context.Context) (grid.Capacities, error) {
	var raw map[string]interface{}
	if err := c.get(ctx, "/api/v1/capacities", &raw); err != nil {
		return grid.Capacities{}, err
	}
	// Coerce field by field: a backend serializing limits as strings must
	// not take the whole table down.
	return grid.Capacities{
		Bat1MaxCharge:    grid.CoerceFloat(raw["BAT1_MAX_CHARGE"]),
		Bat2MaxCharge:    grid.CoerceFloat(raw["BAT2_MAX_CHARGE"]),
		Bat1MaxDischarge: grid.CoerceFloat(raw["BAT1_MAX_DISCHARGE"]),
		Bat2MaxDischarge: grid.CoerceFloat(raw["BAT2_MAX_DISCHARGE"]),
		GridMaxImport:    grid.CoerceFloat(raw["GRID_MAX_IMPORT"]),
		GridMaxExport:    grid.CoerceFloat(raw["GRID_MAX_EXPORT"]),
		EVMaxAggCharge:   grid.CoerceFloat(raw["EV_MAX_AGG_CHARGE"]),
	}, nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch %s: unexpected status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
