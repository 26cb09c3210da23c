// Package runtime is the live-query synchronization engine: continuous
// query evaluation, diffing, composite publications and subscriber
// registries. It carries no chat business rules; those live in the gateway
// and the publications.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"chat-sync/contract"
	"chat-sync/domain"
	"chat-sync/domain/event"

	"github.com/google/uuid"
)

// Snapshot is the read surface the evaluator needs from the document store.
type Snapshot interface {
	Documents(collection domain.Collection) ([]domain.Document, error)
}

// LiveQuery is one registered query kept continuously correct. It remembers
// the last delivered evaluation so a re-run can be diffed against it.
type LiveQuery struct {
	id    string
	query domain.Query
	sink  contract.EventSink

	mu   sync.Mutex
	last []domain.Document
}

func (lq *LiveQuery) ID() string { return lq.id }

// Evaluator owns every live query and re-runs the ones touching a mutated
// collection. Evaluation itself is a pure read over a store snapshot.
type Evaluator struct {
	log      *slog.Logger
	snapshot Snapshot

	mu   sync.RWMutex
	live map[string]*LiveQuery
}

func NewEvaluator(snapshot Snapshot, log *slog.Logger) *Evaluator {
	return &Evaluator{
		log:      log,
		snapshot: snapshot,
		live:     make(map[string]*LiveQuery),
	}
}

// Evaluate runs one query against the current snapshot: filter, sort with
// id tie-break, then limit. Deterministic given store state, no side
// effects.
func (e *Evaluator) Evaluate(query domain.Query) ([]domain.Document, error) {
	docs, err := e.snapshot.Documents(query.Collection)
	if err != nil {
		return nil, fmt.Errorf("evaluating %s: %w", query.Collection, err)
	}
	return query.Apply(docs), nil
}

// Register turns a query into a live one. The initial result set is
// delivered to the sink as Added events before Register returns, so the
// subscriber starts from a complete mirror. The query is published to the
// live set before the initial evaluation, still holding its own lock: a
// mutation committed while the snapshot is read finds the query registered
// and its Invalidate re-evaluates once the initial delivery is done,
// instead of falling into the registration window unseen.
func (e *Evaluator) Register(ctx context.Context, query domain.Query, sink contract.EventSink) (*LiveQuery, error) {
	lq := &LiveQuery{id: uuid.NewString(), query: query, sink: sink}
	lq.mu.Lock()
	defer lq.mu.Unlock()

	e.mu.Lock()
	e.live[lq.id] = lq
	e.mu.Unlock()

	initial, err := e.Evaluate(query)
	if err != nil {
		e.Release(lq)
		return nil, err
	}

	for _, evt := range Diff(query.Collection, nil, initial) {
		if err = sink.Consume(ctx, evt); err != nil {
			e.Release(lq)
			return nil, err
		}
	}
	lq.last = initial
	return lq, nil
}

// Release stops further delivery for the live query. Safe to call twice.
func (e *Evaluator) Release(lq *LiveQuery) {
	if lq == nil {
		return
	}
	e.mu.Lock()
	delete(e.live, lq.id)
	e.mu.Unlock()
}

// Invalidate re-runs every live query touching the mutated collections and
// delivers the resulting diffs. Queries over untouched collections are not
// re-evaluated, so an unrelated mutation can never produce spurious diffs.
// A query whose re-evaluation fails is failed on its own stream and
// released; the remaining affected queries are still refreshed, and the
// mutating caller is never handed an error for a write that committed.
func (e *Evaluator) Invalidate(ctx context.Context, collections ...domain.Collection) {
	touched := make(map[domain.Collection]struct{}, len(collections))
	for _, c := range collections {
		touched[c] = struct{}{}
	}

	e.mu.RLock()
	var affected []*LiveQuery
	for _, lq := range e.live {
		if _, ok := touched[lq.query.Collection]; ok {
			affected = append(affected, lq)
		}
	}
	e.mu.RUnlock()

	for _, lq := range affected {
		e.refresh(ctx, lq)
	}
}

// refresh re-evaluates one live query and pushes the diff to its sink. The
// whole evaluate-diff-deliver cycle runs under the per-query mutex, so two
// concurrent invalidations of the same query serialize completely and an
// older snapshot can never be committed over a newer one.
func (e *Evaluator) refresh(ctx context.Context, lq *LiveQuery) {
	lq.mu.Lock()
	defer lq.mu.Unlock()
	if !e.alive(lq) {
		return
	}

	current, err := e.Evaluate(lq.query)
	if err != nil {
		e.fail(ctx, lq, err)
		return
	}

	events := Diff(lq.query.Collection, lq.last, current)
	lq.last = current
	for _, evt := range events {
		if err = lq.sink.Consume(ctx, evt); err != nil {
			e.fail(ctx, lq, err)
			return
		}
	}
}

// fail releases the query and delivers the terminal failure to its sink.
// Called with lq.mu held.
func (e *Evaluator) fail(ctx context.Context, lq *LiveQuery, err error) {
	e.log.Error("Live query refresh failed", "collection", lq.query.Collection, "error", err)
	e.Release(lq)
	_ = lq.sink.Consume(ctx, event.FeedFailed{Err: err})
}

func (e *Evaluator) alive(lq *LiveQuery) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.live[lq.id]
	return ok
}

// LiveCount reports how many queries are currently registered.
func (e *Evaluator) LiveCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.live)
}
