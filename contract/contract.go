//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"chat-sync/domain/event"
)

// EventSink receives feed events. Sinks must tolerate events arriving in
// any interleaving across collections; per sink the order is FIFO.
type EventSink interface {
	Consume(ctx context.Context, e event.FeedEvent) error
}

// Worker is a supervised run loop. Workers don't protect themselves; the
// supervisor recovers panics and restarts them.
type Worker interface {
	Run(ctx context.Context) error
}

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// GetWorkerName uses reflection to retrieve the type name of a worker for
// logging and supervision, avoiding manual naming on the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}
