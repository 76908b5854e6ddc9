// Package bus distributes engine events to subscribers and persists them
// for later inspection. The engine publishes into an EventBus through
// runtime.EngineOptions; stores and throttles sit behind subscribers.
package bus

import "github.com/petal-labs/behaveflow/runtime"

// EventBus distributes events to subscribers.
type EventBus interface {
	// Publish sends an event to all matching subscribers.
	Publish(event runtime.Event)

	// Subscribe registers a subscriber for one engine run. When kinds are
	// given only events of those kinds are delivered.
	Subscribe(runID string, kinds ...runtime.EventKind) Subscription

	// SubscribeAll registers a subscriber that receives events from all runs.
	SubscribeAll(kinds ...runtime.EventKind) Subscription

	// Close shuts down the bus and all subscriptions.
	Close() error
}

// Subscription receives events.
type Subscription interface {
	// Events returns the channel events are delivered on. It is closed
	// when the subscription or the bus is closed.
	Events() <-chan runtime.Event

	// Dropped reports how many events were discarded because the channel
	// was full.
	Dropped() uint64

	// Close unsubscribes and releases resources.
	Close() error
}
