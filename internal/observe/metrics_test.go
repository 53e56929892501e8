package observe

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader
// for programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestNewMetricsCreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestCounterRecordsSum(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ChunksSent.Add(ctx, 3)
	m.ChunksSent.Add(ctx, 2)

	rm := collect(t, reader)
	found := findMetric(rm, "lyra.chunks.sent")
	if found == nil {
		t.Fatal("lyra.chunks.sent not collected")
	}
	sum, ok := found.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("unexpected data type %T", found.Data)
	}
	if len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 5 {
		t.Errorf("sum = %+v, want single point of 5", sum.DataPoints)
	}
}

func TestHistogramObservation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.TurnDuration.Record(ctx, 0.123)
	m.TurnDuration.Record(ctx, 0.456)

	rm := collect(t, reader)
	found := findMetric(rm, "lyra.turn.duration")
	if found == nil {
		t.Fatal("lyra.turn.duration not collected")
	}
	hist, ok := found.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("unexpected data type %T", found.Data)
	}
	if len(hist.DataPoints) != 1 || hist.DataPoints[0].Count != 2 {
		t.Errorf("histogram = %+v, want single point with count 2", hist.DataPoints)
	}
}
