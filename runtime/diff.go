package runtime

import (
	"reflect"

	"chat-sync/domain"
	"chat-sync/domain/event"

	"github.com/samber/lo"
)

// Diff compares two evaluations of the same query and yields the ordered
// event stream reconciling previous into current.
//
// Added and Removed are positional-insensitive set differences on document
// id; Changed fires only when a document present in both has different
// field-level content. A document never produces both an Added and a
// Removed in one diff, and an unchanged document produces nothing, so
// Diff(S, S) is always empty.
func Diff(collection domain.Collection, previous, current []domain.Document) []event.FeedEvent {
	before := lo.KeyBy(previous, domain.Document.DocumentID)
	after := lo.KeyBy(current, domain.Document.DocumentID)

	var events []event.FeedEvent
	for _, doc := range current {
		old, seen := before[doc.DocumentID()]
		switch {
		case !seen:
			events = append(events, event.DocumentAdded{Document: doc})
		case !reflect.DeepEqual(old, doc):
			events = append(events, event.DocumentChanged{Document: doc})
		}
	}
	for _, doc := range previous {
		if _, kept := after[doc.DocumentID()]; !kept {
			events = append(events, event.DocumentRemoved{Collection: collection, ID: doc.DocumentID()})
		}
	}
	return events
}
