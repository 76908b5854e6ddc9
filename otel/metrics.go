package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/petal-labs/behaveflow/runtime"
)

// MetricsHandler translates engine events into OpenTelemetry metrics.
type MetricsHandler struct {
	nodeExecutions metric.Int64Counter
	nodeFailures   metric.Int64Counter
	nodeDuration   metric.Float64Histogram
	fiberSteps     metric.Int64Histogram
	asyncSuspends  metric.Int64Counter
}

// NewMetricsHandler creates the instruments on meter.
func NewMetricsHandler(meter metric.Meter) (*MetricsHandler, error) {
	nodeExec, err := meter.Int64Counter("behaveflow.node.executions",
		metric.WithDescription("Number of completed node triggers"),
	)
	if err != nil {
		return nil, err
	}

	nodeFail, err := meter.Int64Counter("behaveflow.node.failures",
		metric.WithDescription("Number of node errors"),
	)
	if err != nil {
		return nil, err
	}

	nodeDur, err := meter.Float64Histogram("behaveflow.node.duration",
		metric.WithDescription("Time from node trigger to completion in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	fiberSteps, err := meter.Int64Histogram("behaveflow.fiber.steps",
		metric.WithDescription("Execution steps taken by a fiber"),
	)
	if err != nil {
		return nil, err
	}

	suspends, err := meter.Int64Counter("behaveflow.async.suspends",
		metric.WithDescription("Number of async node triggers that suspended"),
	)
	if err != nil {
		return nil, err
	}

	return &MetricsHandler{
		nodeExecutions: nodeExec,
		nodeFailures:   nodeFail,
		nodeDuration:   nodeDur,
		fiberSteps:     fiberSteps,
		asyncSuspends:  suspends,
	}, nil
}

// Handle records metrics for an engine event. It has the
// runtime.EventHandler shape.
func (h *MetricsHandler) Handle(e runtime.Event) {
	ctx := context.Background()
	switch e.Kind {
	case runtime.EventNodeFinished:
		attrs := nodeAttrs(e)
		h.nodeExecutions.Add(ctx, 1, attrs)
		h.nodeDuration.Record(ctx, e.Elapsed.Seconds(), attrs)
	case runtime.EventNodeFailed:
		h.nodeFailures.Add(ctx, 1, nodeAttrs(e))
	case runtime.EventAsyncPending:
		h.asyncSuspends.Add(ctx, 1, metric.WithAttributes(attribute.String("type", e.TypeName)))
	case runtime.EventFiberCompleted, runtime.EventFiberFailed:
		if steps, ok := e.Payload["steps"].(int); ok {
			h.fiberSteps.Record(ctx, int64(steps),
				metric.WithAttributes(attribute.Bool("failed", e.Kind == runtime.EventFiberFailed)))
		}
	}
}

func nodeAttrs(e runtime.Event) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("node_type", string(e.NodeType)),
		attribute.String("type", e.TypeName),
		attribute.String("node_id", e.NodeID),
	)
}
