package runtime

import (
	"context"
	"log/slog"
	"sync"

	"chat-sync/domain"
	"chat-sync/domain/event"

	"github.com/google/uuid"
)

// ChildFactory builds the child query of one relation for a given parent
// document, e.g. "latest message of this chat, limit 1".
type ChildFactory func(parent domain.Document) domain.Query

// FeedSpec describes one named server feed: a parent query plus zero or
// more per-parent child relations.
type FeedSpec struct {
	Name     string
	Parent   domain.Query
	Children []ChildFactory
}

// Handle is one open feed. Events are FIFO for this handle; parent and
// child events may interleave, consumers merge tolerantly.
type Handle struct {
	id      string
	Feed    string
	queue   *queue
	release func()
	once    sync.Once
}

// Events is closed when the feed terminates, after a FeedFailed event if
// the termination was a failure.
func (h *Handle) Events() <-chan event.FeedEvent { return h.queue.out }

// Close releases all underlying live queries and stops delivery.
func (h *Handle) Close() {
	h.once.Do(func() {
		if h.release != nil {
			h.release()
		}
		h.queue.Close()
	})
}

// Composer joins a parent query with per-parent-document child queries into
// one composite event stream. Children are opened as parents appear and
// closed as they disappear; a mutation to a child collection re-runs only
// the child queries it touches.
type Composer struct {
	log       *slog.Logger
	evaluator *Evaluator
}

func NewComposer(evaluator *Evaluator, log *slog.Logger) *Composer {
	return &Composer{log: log, evaluator: evaluator}
}

// OpenEmpty returns an immediately-complete stream with no events. This is
// the response to unauthenticated viewers; they never receive an error.
func (c *Composer) OpenEmpty(name string) *Handle {
	q := newQueue()
	q.Finish()
	return &Handle{id: uuid.NewString(), Feed: name, queue: q}
}

// Open registers the parent query and, per parent document, every child
// query. The initial snapshot is queued before Open returns.
func (c *Composer) Open(ctx context.Context, spec FeedSpec) (*Handle, error) {
	feed := &compositeFeed{
		composer: c,
		spec:     spec,
		queue:    newQueue(),
		children: make(map[string][]*LiveQuery),
	}

	parent, err := c.evaluator.Register(ctx, spec.Parent, (*parentSink)(feed))
	if err != nil {
		feed.queue.Close()
		return nil, err
	}

	feed.mu.Lock()
	feed.parent = parent
	if feed.failed {
		// A child registration failed while the initial snapshot was being
		// delivered; the terminal failure is already queued.
		c.evaluator.Release(parent)
	}
	feed.mu.Unlock()

	return &Handle{
		id:      uuid.NewString(),
		Feed:    spec.Name,
		queue:   feed.queue,
		release: feed.releaseAll,
	}, nil
}

type compositeFeed struct {
	composer *Composer
	spec     FeedSpec
	queue    *queue
	parent   *LiveQuery

	mu       sync.Mutex
	children map[string][]*LiveQuery
	failed   bool
}

// parentSink receives the parent query's diff events. It forwards them to
// the feed and keeps the child-query set in step with the parent set.
type parentSink compositeFeed

func (s *parentSink) Consume(ctx context.Context, e event.FeedEvent) error {
	feed := (*compositeFeed)(s)
	switch evt := e.(type) {
	case event.DocumentAdded:
		feed.queue.Push(evt)
		feed.openChildren(ctx, evt.Document)
	case event.DocumentRemoved:
		feed.closeChildren(evt.ID)
		feed.queue.Push(evt)
	case event.FeedFailed:
		feed.fail(evt.Err)
	default:
		feed.queue.Push(e)
	}
	return nil
}

// childSink forwards child events as-is; attribution to the parent happens
// in the consuming view builder. A failed child refresh terminates the
// whole feed, same as the parent.
type childSink compositeFeed

func (s *childSink) Consume(_ context.Context, e event.FeedEvent) error {
	feed := (*compositeFeed)(s)
	if evt, ok := e.(event.FeedFailed); ok {
		feed.fail(evt.Err)
		return nil
	}
	feed.queue.Push(e)
	return nil
}

func (f *compositeFeed) openChildren(ctx context.Context, parent domain.Document) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failed {
		return
	}
	for _, factory := range f.spec.Children {
		child, err := f.composer.evaluator.Register(ctx, factory(parent), (*childSink)(f))
		if err != nil {
			f.failLocked(err)
			return
		}
		f.children[parent.DocumentID()] = append(f.children[parent.DocumentID()], child)
	}
}

func (f *compositeFeed) closeChildren(parentID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, child := range f.children[parentID] {
		f.composer.evaluator.Release(child)
	}
	delete(f.children, parentID)
}

func (f *compositeFeed) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failed {
		return
	}
	f.failLocked(err)
}

// failLocked delivers the terminal failure event and completes the stream.
// Never silent: the subscriber sees the failure and may retry manually.
func (f *compositeFeed) failLocked(err error) {
	f.failed = true
	f.composer.log.Error("composite feed failed", "feed", f.spec.Name, "error", err)
	f.composer.evaluator.Release(f.parent)
	for parentID, children := range f.children {
		for _, child := range children {
			f.composer.evaluator.Release(child)
		}
		delete(f.children, parentID)
	}
	f.queue.Push(event.FeedFailed{Feed: f.spec.Name, Err: err})
	f.queue.Finish()
}

func (f *compositeFeed) releaseAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.composer.evaluator.Release(f.parent)
	for parentID, children := range f.children {
		for _, child := range children {
			f.composer.evaluator.Release(child)
		}
		delete(f.children, parentID)
	}
}
