package bus

import (
	"context"
	"log/slog"

	"github.com/petal-labs/behaveflow/runtime"
)

// StoreSubscriber writes events to an EventStore. Failures are logged and
// never reach the engine.
type StoreSubscriber struct {
	store  EventStore
	logger *slog.Logger
}

// NewStoreSubscriber creates a new StoreSubscriber.
func NewStoreSubscriber(store EventStore, logger *slog.Logger) *StoreSubscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &StoreSubscriber{
		store:  store,
		logger: logger,
	}
}

// Handle persists a single event. It has the runtime.EventHandler shape.
func (s *StoreSubscriber) Handle(event runtime.Event) {
	if err := s.store.Append(context.Background(), event); err != nil {
		s.logger.Error("failed to persist event",
			"run_id", event.RunID,
			"kind", event.Kind,
			"seq", event.Seq,
			"error", err,
		)
	}
}

// Consume persists events from sub until its channel closes or ctx is done.
// It returns the number of events handled.
func (s *StoreSubscriber) Consume(ctx context.Context, sub Subscription) int {
	n := 0
	for {
		select {
		case <-ctx.Done():
			return n
		case e, ok := <-sub.Events():
			if !ok {
				if d := sub.Dropped(); d > 0 {
					s.logger.Warn("subscription dropped events", "count", d)
				}
				return n
			}
			s.Handle(e)
			n++
		}
	}
}
