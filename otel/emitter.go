package otel

import (
	"github.com/petal-labs/behaveflow/runtime"
)

// EnrichEmitter stamps events with the trace and span ids of the innermost
// span tracing has open for them. Events without an open span pass through
// unchanged.
func EnrichEmitter(emit runtime.EventEmitter, tracing *TracingHandler) runtime.EventEmitter {
	return func(e runtime.Event) {
		if sc := tracing.ActiveSpanContext(e); sc.IsValid() {
			e.TraceID = sc.TraceID().String()
			e.SpanID = sc.SpanID().String()
		}
		emit(e)
	}
}

// Decorator returns EnrichEmitter as a runtime.EventEmitterDecorator.
func Decorator(tracing *TracingHandler) runtime.EventEmitterDecorator {
	return func(emit runtime.EventEmitter) runtime.EventEmitter {
		return EnrichEmitter(emit, tracing)
	}
}
