package otel_test

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/petal-labs/behaveflow/core"
	bfotel "github.com/petal-labs/behaveflow/otel"
	"github.com/petal-labs/behaveflow/runtime"
)

func collectMetrics(t *testing.T, reader *metric.ManualReader) *metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}
	return &rm
}

func findMetric(rm *metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, scope := range rm.ScopeMetrics {
		for i := range scope.Metrics {
			if scope.Metrics[i].Name == name {
				return &scope.Metrics[i]
			}
		}
	}
	return nil
}

func sumOf(t *testing.T, m *metricdata.Metrics) int64 {
	t.Helper()
	if m == nil {
		t.Fatal("metric not found")
	}
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %s has data %T", m.Name, m.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestMetricsHandler(t *testing.T) {
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))
	h, err := bfotel.NewMetricsHandler(mp.Meter("test"))
	if err != nil {
		t.Fatalf("NewMetricsHandler: %v", err)
	}

	finished := func(id string, typ core.NodeType) runtime.Event {
		e := runtime.NewEvent(runtime.EventNodeFinished, "run-1").WithElapsed(10 * time.Millisecond)
		e.NodeID = id
		e.NodeType = typ
		return e
	}
	h.Handle(finished("log", core.NodeTypeFlow))
	h.Handle(finished("seq", core.NodeTypeFlow))
	h.Handle(finished("delay", core.NodeTypeAsync))
	h.Handle(runtime.NewEvent(runtime.EventAsyncPending, "run-1"))
	h.Handle(runtime.NewEvent(runtime.EventNodeFailed, "run-1"))
	h.Handle(runtime.NewEvent(runtime.EventFiberCompleted, "run-1").WithPayload("steps", 4))
	h.Handle(runtime.NewEvent(runtime.EventEngineDisposed, "run-1"))

	rm := collectMetrics(t, reader)
	if got := sumOf(t, findMetric(rm, "behaveflow.node.executions")); got != 3 {
		t.Errorf("executions = %d, want 3", got)
	}
	if got := sumOf(t, findMetric(rm, "behaveflow.node.failures")); got != 1 {
		t.Errorf("failures = %d, want 1", got)
	}
	if got := sumOf(t, findMetric(rm, "behaveflow.async.suspends")); got != 1 {
		t.Errorf("suspends = %d, want 1", got)
	}

	dur := findMetric(rm, "behaveflow.node.duration")
	if dur == nil {
		t.Fatal("duration histogram not found")
	}
	hist := dur.Data.(metricdata.Histogram[float64])
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	if count != 3 {
		t.Errorf("duration count = %d, want 3", count)
	}

	steps := findMetric(rm, "behaveflow.fiber.steps")
	if steps == nil {
		t.Fatal("steps histogram not found")
	}
	sh := steps.Data.(metricdata.Histogram[int64])
	if len(sh.DataPoints) != 1 || sh.DataPoints[0].Sum != 4 {
		t.Errorf("steps = %+v", sh.DataPoints)
	}
}
