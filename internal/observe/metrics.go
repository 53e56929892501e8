// Package observe provides observability primitives for Lyra:
// OpenTelemetry metric instruments and the SDK/Prometheus wiring
// behind the /metrics endpoint.
//
// Metrics are recorded through the OpenTelemetry Metrics API; a
// Prometheus exporter bridge is installed by [InitProvider]. A
// package-level default [Metrics] instance ([DefaultMetrics]) exists
// for convenience; tests should use [NewMetrics] with their own
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Lyra metrics.
const meterName = "github.com/lyra-voice/lyra"

// Metrics holds all OpenTelemetry metric instruments for the
// application. The underlying OTel types handle their own
// synchronisation.
type Metrics struct {
	// TurnDuration tracks the length of one conversational turn, from
	// the first fragment or request to the finalized reply.
	TurnDuration metric.Float64Histogram

	// RecognitionDuration tracks the batch-mode speech recognition pass.
	RecognitionDuration metric.Float64Histogram

	// SynthesisDuration tracks batch-mode speech synthesis.
	SynthesisDuration metric.Float64Histogram

	// ChunksSent counts capture chunks sent upstream.
	ChunksSent metric.Int64Counter

	// ChunksPlayed counts playback chunks scheduled.
	ChunksPlayed metric.Int64Counter

	// DecodeDrops counts inbound chunks dropped as malformed.
	DecodeDrops metric.Int64Counter

	// ToolCalls counts tool invocations. Attributes: tool, status.
	ToolCalls metric.Int64Counter

	// Messages counts finalized log messages. Attribute: role.
	Messages metric.Int64Counter

	// LiveUnits tracks scheduled but unfinished playback units.
	LiveUnits metric.Int64UpDownCounter

	// ActiveSessions tracks live voice sessions (0 or 1 per process).
	ActiveSessions metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds)
// sized for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] using the given
// [metric.MeterProvider]. Returns an error if any instrument creation
// fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.TurnDuration, err = m.Float64Histogram("lyra.turn.duration",
		metric.WithDescription("Length of one conversational turn."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RecognitionDuration, err = m.Float64Histogram("lyra.recognition.duration",
		metric.WithDescription("Latency of the batch-mode speech recognition pass."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SynthesisDuration, err = m.Float64Histogram("lyra.synthesis.duration",
		metric.WithDescription("Latency of batch-mode speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.ChunksSent, err = m.Int64Counter("lyra.chunks.sent",
		metric.WithDescription("Capture audio chunks sent upstream."),
	); err != nil {
		return nil, err
	}
	if met.ChunksPlayed, err = m.Int64Counter("lyra.chunks.played",
		metric.WithDescription("Playback audio chunks scheduled."),
	); err != nil {
		return nil, err
	}
	if met.DecodeDrops, err = m.Int64Counter("lyra.chunks.decode_drops",
		metric.WithDescription("Inbound chunks dropped as malformed."),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("lyra.tool.calls",
		metric.WithDescription("Tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.Messages, err = m.Int64Counter("lyra.messages",
		metric.WithDescription("Finalized log messages by role."),
	); err != nil {
		return nil, err
	}

	if met.LiveUnits, err = m.Int64UpDownCounter("lyra.playback.live_units",
		metric.WithDescription("Scheduled but unfinished playback units."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("lyra.active_sessions",
		metric.WithDescription("Live voice sessions."),
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

// DefaultMetrics returns the package-level [Metrics] instance,
// creating it on first call from [otel.GetMeterProvider]. Panics if
// instrument creation fails (should not happen with the global
// provider).
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

// Attr is a convenience alias for [attribute.String] to reduce
// verbosity at call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}
