// Package observe provides application-wide observability primitives for
// pwmlive: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all pwmlive metrics.
const meterName = "github.com/pwmlive/pwmlive"

// Drop reasons reported on [Metrics.FramesDropped].
const (
	DropNotOpen      = "not_open"
	DropBackpressure = "backpressure"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Audio path ---

	// FramesSent counts outbound PCM frames written to the connection.
	FramesSent metric.Int64Counter

	// FramesDropped counts outbound frames that were never sent. Use with
	// attribute:
	//   attribute.String("reason", DropNotOpen|DropBackpressure)
	FramesDropped metric.Int64Counter

	// SegmentsScheduled counts inbound audio segments handed to the output.
	SegmentsScheduled metric.Int64Counter

	// PlaybackLead tracks how far ahead of the output clock each segment was
	// scheduled. Zero means the segment arrived late and played immediately.
	PlaybackLead metric.Float64Histogram

	// InputVolume and OutputVolume hold the latest meter readings in [0, 1].
	InputVolume  metric.Float64Gauge
	OutputVolume metric.Float64Gauge

	// --- Protocol ---

	// DecodeErrors counts skipped inbound payloads. Use with attribute:
	//   attribute.String("kind", "json"|"audio")
	DecodeErrors metric.Int64Counter

	// SessionErrors counts errors surfaced to the host. Use with attribute:
	//   attribute.String("kind", ...)
	SessionErrors metric.Int64Counter

	// ToolCalls counts tool invocations. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolCalls metric.Int64Counter

	// ToolExecutionDuration tracks host tool callback latency.
	ToolExecutionDuration metric.Float64Histogram

	// BoardCommands counts commands published to the board. Use with
	// attributes:
	//   attribute.String("command", ...), attribute.String("status", ...)
	BoardCommands metric.Int64Counter

	// ConfigReloads counts configuration changes picked up by the watcher.
	ConfigReloads metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of open live sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- Admin server ---

	// HTTPRequestDuration tracks admin request latency, labelled by the
	// matched mux "route" and the response "status".
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for tool
// execution and playback lead.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Audio path.
	if met.FramesSent, err = m.Int64Counter("pwmlive.audio.frames_sent",
		metric.WithDescription("Total outbound PCM frames sent."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("pwmlive.audio.frames_dropped",
		metric.WithDescription("Total outbound PCM frames dropped by reason."),
	); err != nil {
		return nil, err
	}
	if met.SegmentsScheduled, err = m.Int64Counter("pwmlive.audio.segments_scheduled",
		metric.WithDescription("Total inbound audio segments scheduled for playback."),
	); err != nil {
		return nil, err
	}
	if met.PlaybackLead, err = m.Float64Histogram("pwmlive.audio.playback_lead",
		metric.WithDescription("Distance between the output clock and a segment's scheduled start."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.InputVolume, err = m.Float64Gauge("pwmlive.audio.input_volume",
		metric.WithDescription("Latest microphone level in [0, 1]."),
	); err != nil {
		return nil, err
	}
	if met.OutputVolume, err = m.Float64Gauge("pwmlive.audio.output_volume",
		metric.WithDescription("Latest playback level in [0, 1]."),
	); err != nil {
		return nil, err
	}

	// Protocol.
	if met.DecodeErrors, err = m.Int64Counter("pwmlive.live.decode_errors",
		metric.WithDescription("Total skipped inbound payloads by kind."),
	); err != nil {
		return nil, err
	}
	if met.SessionErrors, err = m.Int64Counter("pwmlive.live.errors",
		metric.WithDescription("Total errors surfaced to the host by kind."),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("pwmlive.tool.calls",
		metric.WithDescription("Total tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.ToolExecutionDuration, err = m.Float64Histogram("pwmlive.tool_execution.duration",
		metric.WithDescription("Latency of host tool execution."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.BoardCommands, err = m.Int64Counter("pwmlive.board.commands",
		metric.WithDescription("Total board commands published by command and status."),
	); err != nil {
		return nil, err
	}
	if met.ConfigReloads, err = m.Int64Counter("pwmlive.config.reloads",
		metric.WithDescription("Total configuration reloads."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("pwmlive.active_sessions",
		metric.WithDescription("Number of open live sessions."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("pwmlive.http.request.duration",
		metric.WithDescription("Admin request latency by route and status."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordFrameDropped records one dropped outbound frame.
func (m *Metrics) RecordFrameDropped(ctx context.Context, reason string) {
	m.FramesDropped.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}

// RecordDecodeError records one skipped inbound payload.
func (m *Metrics) RecordDecodeError(ctx context.Context, kind string) {
	m.DecodeErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}

// RecordSessionError records one error surfaced to the host.
func (m *Metrics) RecordSessionError(ctx context.Context, kind string) {
	m.SessionErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}

// RecordToolCall is a convenience method that records a tool call counter
// increment with the standard attribute set.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string) {
	m.ToolCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("status", status),
		),
	)
}

// RecordBoardCommand records a board command publish attempt.
func (m *Metrics) RecordBoardCommand(ctx context.Context, command, status string) {
	m.BoardCommands.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("command", command),
			attribute.String("status", status),
		),
	)
}

// RecordVolume stores the latest input and output levels.
func (m *Metrics) RecordVolume(ctx context.Context, input, output float64) {
	m.InputVolume.Record(ctx, input)
	m.OutputVolume.Record(ctx, output)
}

// RecordConfigReload records one watcher reload attempt.
func (m *Metrics) RecordConfigReload(ctx context.Context, result string) {
	m.ConfigReloads.Add(ctx, 1,
		metric.WithAttributes(attribute.String("result", result)),
	)
}
