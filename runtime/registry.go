package runtime

import (
	"fmt"
	"sync"
)

// FeedKey is the identity of a subscription: publication name plus the
// canonical form of its argument tuple.
type FeedKey string

func NewFeedKey(name string, args ...any) FeedKey {
	return FeedKey(fmt.Sprintf("%s%v", name, args))
}

type subscription struct {
	key    FeedKey
	handle *Handle
}

// Registry tracks which connection owns which open feeds. A connection
// holds at most one subscription per publication name; re-subscribing with
// a new argument tuple destroys the previous one.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]map[string]subscription // connection -> feed name -> sub
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]map[string]subscription)}
}

// Subscribe records a freshly opened handle for a connection, closing any
// previous subscription of the same publication first.
func (r *Registry) Subscribe(connID, name string, key FeedKey, handle *Handle) {
	r.mu.Lock()
	feeds, ok := r.sessions[connID]
	if !ok {
		feeds = make(map[string]subscription)
		r.sessions[connID] = feeds
	}
	previous, replaced := feeds[name]
	feeds[name] = subscription{key: key, handle: handle}
	r.mu.Unlock()

	if replaced {
		previous.handle.Close()
	}
}

// Lookup returns the handle a connection holds for a publication, if any.
func (r *Registry) Lookup(connID, name string) (*Handle, FeedKey, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sub, ok := r.sessions[connID][name]
	return sub.handle, sub.key, ok
}

// Unsubscribe closes and forgets one subscription.
func (r *Registry) Unsubscribe(connID, name string) {
	r.mu.Lock()
	sub, ok := r.sessions[connID][name]
	if ok {
		delete(r.sessions[connID], name)
		if len(r.sessions[connID]) == 0 {
			delete(r.sessions, connID)
		}
	}
	r.mu.Unlock()

	if ok {
		sub.handle.Close()
	}
}

// DropConnection releases everything a disconnecting connection held.
func (r *Registry) DropConnection(connID string) {
	r.mu.Lock()
	feeds := r.sessions[connID]
	delete(r.sessions, connID)
	r.mu.Unlock()

	for _, sub := range feeds {
		sub.handle.Close()
	}
}

// SubscriptionCount reports the total number of open subscriptions.
func (r *Registry) SubscriptionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, feeds := range r.sessions {
		count += len(feeds)
	}
	return count
}
