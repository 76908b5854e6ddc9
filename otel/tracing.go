// Package otel provides OpenTelemetry integration for behavior graph engines.
//
// TracingHandler and MetricsHandler consume runtime events. EnrichEmitter
// stamps emitted events with the active trace and span ids. Setup builds
// a tracer provider exporting over OTLP/HTTP.
package otel

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/petal-labs/behaveflow/runtime"
)

// TracingHandler translates engine events into spans.
//
// Each engine run gets a root span, ended when the engine is disposed.
// Each fiber is a child of the root span and each node trigger is a child
// of its fiber. Async node spans end when the node reports it has finished,
// which can be long after the fiber that triggered it completed.
type TracingHandler struct {
	tracer trace.Tracer

	mu         sync.RWMutex
	runSpans   map[string]trace.Span      // runID -> span
	runCtxs    map[string]context.Context // runID -> context
	fiberSpans map[string]trace.Span      // runID:fiberID -> span
	fiberCtxs  map[string]context.Context // runID:fiberID -> context
	nodeSpans  map[string]trace.Span      // runID:fiberID:nodeID -> span
}

// NewTracingHandler creates a TracingHandler that starts spans on tracer.
func NewTracingHandler(tracer trace.Tracer) *TracingHandler {
	return &TracingHandler{
		tracer:     tracer,
		runSpans:   make(map[string]trace.Span),
		runCtxs:    make(map[string]context.Context),
		fiberSpans: make(map[string]trace.Span),
		fiberCtxs:  make(map[string]context.Context),
		nodeSpans:  make(map[string]trace.Span),
	}
}

// Handle processes an engine event. It has the runtime.EventHandler shape.
func (h *TracingHandler) Handle(e runtime.Event) {
	switch e.Kind {
	case runtime.EventEngineInitialized:
		h.runContext(e)
	case runtime.EventFiberStarted:
		h.handleFiberStarted(e)
	case runtime.EventFiberCompleted, runtime.EventFiberFailed:
		h.handleFiberEnded(e)
	case runtime.EventNodeStarted:
		h.handleNodeStarted(e)
	case runtime.EventAsyncPending:
		h.handleAsyncPending(e)
	case runtime.EventNodeFinished:
		h.handleNodeFinished(e)
	case runtime.EventNodeFailed:
		h.handleNodeFailed(e)
	case runtime.EventEngineDisposed:
		h.handleDisposed(e)
	}
}

func fiberKey(runID, fiberID string) string { return runID + ":" + fiberID }

func nodeKey(e runtime.Event) string { return e.RunID + ":" + e.FiberID + ":" + e.NodeID }

// runContext returns the context of the run root span, starting the span
// on first use.
func (h *TracingHandler) runContext(e runtime.Event) context.Context {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ctx, ok := h.runCtxs[e.RunID]; ok {
		return ctx
	}
	ctx, span := h.tracer.Start(context.Background(), "engine:"+e.RunID,
		trace.WithAttributes(attribute.String("behaveflow.run_id", e.RunID)),
		trace.WithTimestamp(e.Time),
	)
	h.runSpans[e.RunID] = span
	h.runCtxs[e.RunID] = ctx
	return ctx
}

func (h *TracingHandler) handleFiberStarted(e runtime.Event) {
	parent := h.runContext(e)
	ctx, span := h.tracer.Start(parent, "fiber",
		trace.WithAttributes(
			attribute.String("behaveflow.run_id", e.RunID),
			attribute.String("behaveflow.fiber_id", e.FiberID),
		),
		trace.WithTimestamp(e.Time),
	)

	key := fiberKey(e.RunID, e.FiberID)
	h.mu.Lock()
	h.fiberSpans[key] = span
	h.fiberCtxs[key] = ctx
	h.mu.Unlock()
}

func (h *TracingHandler) handleFiberEnded(e runtime.Event) {
	key := fiberKey(e.RunID, e.FiberID)
	h.mu.Lock()
	span, ok := h.fiberSpans[key]
	delete(h.fiberSpans, key)
	delete(h.fiberCtxs, key)
	h.mu.Unlock()
	if !ok {
		return
	}

	if steps, ok := e.Payload["steps"].(int); ok {
		span.SetAttributes(attribute.Int("behaveflow.steps", steps))
	}
	if e.Kind == runtime.EventFiberFailed {
		span.SetStatus(codes.Error, payloadString(e, "error", "fiber failed"))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End(trace.WithTimestamp(e.Time))
}

func (h *TracingHandler) handleNodeStarted(e runtime.Event) {
	h.mu.RLock()
	parent, ok := h.fiberCtxs[fiberKey(e.RunID, e.FiberID)]
	h.mu.RUnlock()
	if !ok {
		parent = h.runContext(e)
	}

	_, span := h.tracer.Start(parent, "node:"+e.NodeID,
		trace.WithAttributes(
			attribute.String("behaveflow.run_id", e.RunID),
			attribute.String("behaveflow.node_id", e.NodeID),
			attribute.String("behaveflow.node_type", string(e.NodeType)),
			attribute.String("behaveflow.type_name", e.TypeName),
			attribute.String("behaveflow.socket", e.Socket),
		),
		trace.WithTimestamp(e.Time),
	)

	h.mu.Lock()
	h.nodeSpans[nodeKey(e)] = span
	h.mu.Unlock()
}

func (h *TracingHandler) handleAsyncPending(e runtime.Event) {
	h.mu.RLock()
	span, ok := h.nodeSpans[nodeKey(e)]
	h.mu.RUnlock()
	if ok {
		span.AddEvent("pending", trace.WithTimestamp(e.Time))
	}
}

func (h *TracingHandler) takeNodeSpan(e runtime.Event) (trace.Span, bool) {
	key := nodeKey(e)
	h.mu.Lock()
	defer h.mu.Unlock()
	span, ok := h.nodeSpans[key]
	delete(h.nodeSpans, key)
	return span, ok
}

func (h *TracingHandler) handleNodeFinished(e runtime.Event) {
	span, ok := h.takeNodeSpan(e)
	if !ok {
		return
	}
	span.SetAttributes(attribute.String("behaveflow.duration", e.Elapsed.String()))
	span.SetStatus(codes.Ok, "")
	span.End(trace.WithTimestamp(e.Time))
}

// handleNodeFailed ends the node span with an error. Failures before the
// node started, such as input resolution errors, are recorded on the
// enclosing fiber or run span instead.
func (h *TracingHandler) handleNodeFailed(e runtime.Event) {
	errMsg := payloadString(e, "error", "unknown error")

	if span, ok := h.takeNodeSpan(e); ok {
		span.SetStatus(codes.Error, errMsg)
		span.RecordError(spanError(errMsg), trace.WithTimestamp(e.Time))
		span.End(trace.WithTimestamp(e.Time))
		return
	}

	h.mu.RLock()
	span, ok := h.fiberSpans[fiberKey(e.RunID, e.FiberID)]
	if !ok {
		span, ok = h.runSpans[e.RunID]
	}
	h.mu.RUnlock()
	if ok {
		span.RecordError(spanError(errMsg),
			trace.WithTimestamp(e.Time),
			trace.WithAttributes(attribute.String("behaveflow.node_id", e.NodeID)),
		)
	}
}

// handleDisposed ends every span left open for the run. Node spans still
// open belong to async triggers that never finished.
func (h *TracingHandler) handleDisposed(e runtime.Event) {
	prefix := e.RunID + ":"

	h.mu.Lock()
	var open []trace.Span
	for key, span := range h.nodeSpans {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			open = append(open, span)
			delete(h.nodeSpans, key)
		}
	}
	for key, span := range h.fiberSpans {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			open = append(open, span)
			delete(h.fiberSpans, key)
			delete(h.fiberCtxs, key)
		}
	}
	root, ok := h.runSpans[e.RunID]
	delete(h.runSpans, e.RunID)
	delete(h.runCtxs, e.RunID)
	h.mu.Unlock()

	for _, span := range open {
		span.SetAttributes(attribute.Bool("behaveflow.abandoned", true))
		span.End(trace.WithTimestamp(e.Time))
	}
	if ok {
		if steps, ok := e.Payload["steps"].(int); ok {
			root.SetAttributes(attribute.Int("behaveflow.steps", steps))
		}
		root.SetStatus(codes.Ok, "")
		root.End(trace.WithTimestamp(e.Time))
	}
}

// ActiveSpanContext returns the span context of the innermost open span
// for the event's run, fiber and node. It is empty when nothing is open.
func (h *TracingHandler) ActiveSpanContext(e runtime.Event) trace.SpanContext {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if e.NodeID != "" {
		if span, ok := h.nodeSpans[nodeKey(e)]; ok {
			return span.SpanContext()
		}
	}
	if e.FiberID != "" {
		if span, ok := h.fiberSpans[fiberKey(e.RunID, e.FiberID)]; ok {
			return span.SpanContext()
		}
	}
	if span, ok := h.runSpans[e.RunID]; ok {
		return span.SpanContext()
	}
	return trace.SpanContext{}
}

func payloadString(e runtime.Event, key, fallback string) string {
	if s, ok := e.Payload[key].(string); ok {
		return s
	}
	return fallback
}

type spanError string

func (e spanError) Error() string { return string(e) }
