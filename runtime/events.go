// Package runtime provides the fiber-based execution engine for behavior graphs.
package runtime

import (
	"sync/atomic"
	"time"

	"github.com/petal-labs/behaveflow/core"
)

// EventKind identifies the type of event emitted by the engine.
type EventKind string

const (
	// EventEngineInitialized is emitted after event nodes have been initialized.
	EventEngineInitialized EventKind = "engine.initialized"

	// EventEngineDisposed is emitted once the engine has disposed its nodes.
	EventEngineDisposed EventKind = "engine.disposed"

	// EventFiberStarted is emitted when a queued fiber takes its first step.
	EventFiberStarted EventKind = "fiber.started"

	// EventFiberCompleted is emitted when a fiber has nothing left to evaluate.
	EventFiberCompleted EventKind = "fiber.completed"

	// EventFiberFailed is emitted when a fiber is terminated by an error.
	EventFiberFailed EventKind = "fiber.failed"

	// EventNodeStarted is emitted before a node is triggered or executed.
	EventNodeStarted EventKind = "node.started"

	// EventNodeFinished is emitted when a node completes. For async nodes
	// this happens when the node reports it has finished.
	EventNodeFinished EventKind = "node.finished"

	// EventNodeFailed is emitted once per error, tagged with the node it came from.
	EventNodeFailed EventKind = "node.failed"

	// EventAsyncPending is emitted when an async node suspends.
	EventAsyncPending EventKind = "async.pending"
)

// String returns the string representation of the EventKind.
func (k EventKind) String() string {
	return string(k)
}

// Event is an observational record of engine activity. Nodes must never
// depend on events for control flow.
type Event struct {
	// Kind identifies the event type.
	Kind EventKind

	// RunID is the engine identifier.
	RunID string

	// FiberID is the fiber the event happened on (empty for engine-level events).
	FiberID string

	// NodeID is the node that produced this event (empty for engine-level events).
	NodeID string

	// NodeType is the variant of the node.
	NodeType core.NodeType

	// TypeName is the registered type name of the node.
	TypeName string

	// Socket is the input socket a node was triggered through, when known.
	Socket string

	// Time is when the event occurred.
	Time time.Time

	// Elapsed is the time since the node or fiber started.
	Elapsed time.Duration

	// Payload contains event-specific data.
	Payload map[string]any

	// Seq is a monotonic sequence number per engine (1-indexed).
	Seq uint64

	// TraceID is the OpenTelemetry trace ID (hex-encoded, empty when OTel inactive).
	TraceID string

	// SpanID is the OpenTelemetry span ID (hex-encoded, empty when OTel inactive).
	SpanID string
}

// NewEvent creates a new event with the current timestamp.
func NewEvent(kind EventKind, runID string) Event {
	return Event{
		Kind:    kind,
		RunID:   runID,
		Time:    time.Now(),
		Payload: make(map[string]any),
	}
}

// WithNode sets the node information on the event.
func (e Event) WithNode(n core.Node) Event {
	e.NodeID = n.ID()
	e.NodeType = n.Type()
	e.TypeName = n.Description().TypeName
	return e
}

// WithFiber sets the fiber the event belongs to.
func (e Event) WithFiber(fiberID string) Event {
	e.FiberID = fiberID
	return e
}

// WithSocket sets the triggering socket name.
func (e Event) WithSocket(name string) Event {
	e.Socket = name
	return e
}

// WithTime overrides the event timestamp.
func (e Event) WithTime(t time.Time) Event {
	e.Time = t
	return e
}

// WithElapsed sets the elapsed duration on the event.
func (e Event) WithElapsed(elapsed time.Duration) Event {
	e.Elapsed = elapsed
	return e
}

// WithPayload adds a key-value pair to the event payload.
func (e Event) WithPayload(key string, value any) Event {
	if e.Payload == nil {
		e.Payload = make(map[string]any)
	}
	e.Payload[key] = value
	return e
}

// EventEmitter is a function type for emitting events.
type EventEmitter func(Event)

// EventEmitterDecorator wraps an emitter to add cross-cutting behavior.
// Typical uses include enriching emitted events (for example with trace metadata).
type EventEmitterDecorator func(EventEmitter) EventEmitter

// EventPublisher can publish events to external subscribers.
// This interface is satisfied by bus.EventBus, allowing the engine
// to distribute events without importing the bus package directly.
type EventPublisher interface {
	Publish(event Event)
}

// EventHandler is a function type for handling events.
type EventHandler func(Event)

// MultiEventHandler combines multiple handlers into one.
func MultiEventHandler(handlers ...EventHandler) EventHandler {
	return func(e Event) {
		for _, h := range handlers {
			if h != nil {
				h(e)
			}
		}
	}
}

// ChannelEventHandler returns a handler that sends events to a channel.
// Events are dropped if the channel is full.
func ChannelEventHandler(ch chan<- Event) EventHandler {
	return func(e Event) {
		select {
		case ch <- e:
		default:
		}
	}
}

// seqGen produces monotonically increasing sequence numbers for one engine.
type seqGen struct {
	counter atomic.Uint64
}

// Next returns the next sequence number (1-indexed).
func (s *seqGen) Next() uint64 {
	return s.counter.Add(1)
}
