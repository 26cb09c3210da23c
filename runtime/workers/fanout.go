package workers

import (
	"context"
	"log/slog"

	"chat-sync/contract"
	"chat-sync/domain/event"
)

// MutationFanout broadcasts gateway mutation notifications to in-process
// side-effect sinks (insight counters, telemetry). Best effort, no
// delivery or durability guarantee; query invalidation does not go through
// it, so a lost event can never desynchronize a feed.
//
// Safe for concurrent use by multiple goroutines.
type MutationFanout struct {
	Log       *slog.Logger
	Mutations chan event.FeedEvent
	sinks     []contract.EventSink
}

func NewMutationFanout(log *slog.Logger, mutations chan event.FeedEvent, sinks ...contract.EventSink) *MutationFanout {
	return &MutationFanout{Log: log, Mutations: mutations, sinks: sinks}
}

func (w *MutationFanout) Add(sinks ...contract.EventSink) *MutationFanout {
	w.sinks = append(w.sinks, sinks...)
	return w
}

func (w *MutationFanout) Run(ctx context.Context) error {
	for {
		select {
		case evt := <-w.Mutations:
			w.Fanout(ctx, evt)
		case <-ctx.Done():
			w.Log.Debug("Context done, stopping mutation fanout")
			return nil
		}
	}
}

// Fanout delivers one event to every sink; a failing sink is logged and
// skipped.
func (w *MutationFanout) Fanout(ctx context.Context, evt event.FeedEvent) {
	for _, sink := range w.sinks {
		if err := sink.Consume(ctx, evt); err != nil {
			w.Log.Warn("Sink rejected event", "error", err)
		}
	}
}
