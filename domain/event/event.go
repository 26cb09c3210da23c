// Package event defines the events flowing between the sync engine and its
// consumers: per-document diff events produced by re-evaluating a live
// query, feed lifecycle events, and view notifications.
package event

import "chat-sync/domain"

type FeedEvent interface {
	EventCollection() domain.Collection
}

// DocumentAdded reports a document newly matching a live query.
type DocumentAdded struct {
	Document domain.Document
}

func (e DocumentAdded) EventCollection() domain.Collection {
	return e.Document.DocumentCollection()
}

// DocumentChanged reports a document whose field-level content differs from
// the previous evaluation.
type DocumentChanged struct {
	Document domain.Document
}

func (e DocumentChanged) EventCollection() domain.Collection {
	return e.Document.DocumentCollection()
}

// DocumentRemoved reports a document no longer matching a live query.
type DocumentRemoved struct {
	Collection domain.Collection
	ID         string
}

func (e DocumentRemoved) EventCollection() domain.Collection { return e.Collection }

// FeedFailed is terminal: the feed delivers it once and closes. The
// subscription controller surfaces it and waits for a manual retry.
type FeedFailed struct {
	Feed string
	Err  error
}

func (e FeedFailed) EventCollection() domain.Collection { return "" }

// ItemsAppended notifies view-layer collaborators that a rebuild grew the
// rendered list, replacing DOM-level mutation observation.
type ItemsAppended struct {
	Feed  string
	Count int
}

func (e ItemsAppended) EventCollection() domain.Collection { return "" }

// MutationApplied is emitted by the gateway after a successful command, for
// side-effect sinks. Query invalidation does not depend on it.
type MutationApplied struct {
	Command  string
	Document domain.Document
}

func (e MutationApplied) EventCollection() domain.Collection {
	if e.Document == nil {
		return ""
	}
	return e.Document.DocumentCollection()
}
