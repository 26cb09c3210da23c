// Package client hosts the consumer side of the sync engine: the local
// mirror kept in step by diff events and the subscription controller that
// paginates and debounces feed parameters.
package client

import (
	"context"
	"sync"

	"chat-sync/domain"
	"chat-sync/domain/event"
)

// Mirror is the client-local copy of one feed's result set. Diff events
// mutate it; derived view builders register as dependents and are
// recomputed on change, never by polling.
type Mirror struct {
	order domain.Query // ordering only; its Limit and Match are ignored

	mu         sync.RWMutex
	docs       map[string]domain.Document
	dependents []func([]domain.Document)
}

// NewMirror creates a mirror ordered like the feed it shadows.
func NewMirror(order domain.Query) *Mirror {
	order.Limit = 0
	order.Match = nil
	return &Mirror{order: order, docs: make(map[string]domain.Document)}
}

// OnChange registers a dependent recomputed after every applied event.
// This is the explicit dependency registration replacing ambient reactive
// tracking: a mirror change notifies exactly its registered dependents.
func (m *Mirror) OnChange(dependent func([]domain.Document)) {
	m.mu.Lock()
	m.dependents = append(m.dependents, dependent)
	m.mu.Unlock()
}

// Consume applies one diff event. Implements contract.EventSink.
func (m *Mirror) Consume(_ context.Context, e event.FeedEvent) error {
	m.mu.Lock()
	switch evt := e.(type) {
	case event.DocumentAdded:
		m.docs[evt.Document.DocumentID()] = evt.Document
	case event.DocumentChanged:
		m.docs[evt.Document.DocumentID()] = evt.Document
	case event.DocumentRemoved:
		delete(m.docs, evt.ID)
	default:
		m.mu.Unlock()
		return nil
	}
	snapshot := m.snapshotLocked()
	dependents := m.dependents
	m.mu.Unlock()

	for _, dependent := range dependents {
		dependent(snapshot)
	}
	return nil
}

// Snapshot returns the mirrored set in feed order.
func (m *Mirror) Snapshot() []domain.Document {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

func (m *Mirror) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

// Reset drops the mirrored set, for a re-subscription with new parameters.
func (m *Mirror) Reset() {
	m.mu.Lock()
	m.docs = make(map[string]domain.Document)
	m.mu.Unlock()
}

func (m *Mirror) snapshotLocked() []domain.Document {
	all := make([]domain.Document, 0, len(m.docs))
	for _, doc := range m.docs {
		all = append(all, doc)
	}
	return m.order.Apply(all)
}
