package telemetry

import (
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
)

// Writer records tick metrics to InfluxDB. All writes are asynchronous and
// best-effort; the render loop never waits on telemetry.
type Writer struct {
	client influxdb2.Client
	write  api.WriteAPI
}

// NewWriter connects a telemetry writer. Returns nil when no URL is
// configured, and callers treat a nil writer as a no-op.
func NewWriter(url, token, org, bucket string) *Writer {
	if url == "" {
		return nil
	}
	client := influxdb2.NewClient(url, token)
	return &Writer{
		client: client,
		write:  client.WriteAPI(org, bucket),
	}
}

// RecordTick records one render pass.
func (w *Writer) RecordTick(duration time.Duration, edges int, stale bool) {
	if w == nil {
		return
	}
	p := influxdb2.NewPointWithMeasurement("gridflow_tick").
		AddField("duration_ms", float64(duration.Microseconds())/1000).
		AddField("edges", edges).
		AddField("stale", stale).
		SetTime(time.Now())
	w.write.WritePoint(p)
}

// RecordPoll records one delta poll outcome.
func (w *Writer) RecordPoll(ok bool, consecutiveFailures int) {
	if w == nil {
		return
	}
	p := influxdb2.NewPointWithMeasurement("gridflow_poll").
		AddField("ok", ok).
		AddField("consecutive_failures", consecutiveFailures).
		SetTime(time.Now())
	w.write.WritePoint(p)
}

// Close flushes and shuts the client down.
func (w *Writer) Close() {
	if w == nil {
		return
	}
	w.write.Flush()
	w.client.Close()
}
