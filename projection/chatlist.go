// Package projection builds presentation-only views over mirrored feeds:
// the chat list with resolved titles and last messages, and the per-day
// message groups. Builders never mutate source documents and recompute
// only when the mirror they depend on changes.
package projection

import (
	"context"
	"sort"
	"sync"

	"chat-sync/domain"
	"chat-sync/domain/event"
)

// ChatRow is one rendered chat list entry. Title and picture come from the
// profile of the member that is not the viewer; they are recomputed per
// update and never persisted.
type ChatRow struct {
	ChatID      string
	Title       string
	Picture     string
	LastMessage *domain.Message
}

// ChatList consumes the composite chats feed. Parent (chat) and child
// (message, profile) events may interleave in any order: a last-message
// event arriving before its chat row is buffered and merged once the chat
// arrives; one arriving after the chat was removed is dropped.
type ChatList struct {
	viewerID string

	mu         sync.RWMutex
	chats      map[string]domain.Chat
	last       map[string]domain.Message
	pending    map[string]domain.Message
	removed    map[string]struct{}
	profiles   map[string]domain.Profile
	dependents []func()
}

func NewChatList(viewerID string) *ChatList {
	return &ChatList{
		viewerID: viewerID,
		chats:    make(map[string]domain.Chat),
		last:     make(map[string]domain.Message),
		pending:  make(map[string]domain.Message),
		removed:  make(map[string]struct{}),
		profiles: make(map[string]domain.Profile),
	}
}

// OnChange registers a dependent notified after every applied event.
func (l *ChatList) OnChange(dependent func()) {
	l.mu.Lock()
	l.dependents = append(l.dependents, dependent)
	l.mu.Unlock()
}

// Consume applies one composite feed event. Implements contract.EventSink.
func (l *ChatList) Consume(_ context.Context, e event.FeedEvent) error {
	l.mu.Lock()
	switch evt := e.(type) {
	case event.DocumentAdded:
		l.applyDocument(evt.Document)
	case event.DocumentChanged:
		l.applyDocument(evt.Document)
	case event.DocumentRemoved:
		if evt.Collection == domain.Chats {
			delete(l.chats, evt.ID)
			delete(l.last, evt.ID)
			delete(l.pending, evt.ID)
			l.removed[evt.ID] = struct{}{}
		}
		// A removed message means the limit-1 child slid to a newer one;
		// the Added of the newer message carries the update.
	default:
		l.mu.Unlock()
		return nil
	}
	dependents := l.dependents
	l.mu.Unlock()

	for _, dependent := range dependents {
		dependent()
	}
	return nil
}

func (l *ChatList) applyDocument(doc domain.Document) {
	switch d := doc.(type) {
	case domain.Chat:
		delete(l.removed, d.ID)
		l.chats[d.ID] = d
		if message, ok := l.pending[d.ID]; ok {
			delete(l.pending, d.ID)
			l.keepNewest(d.ID, message)
		}
	case domain.Message:
		if _, gone := l.removed[d.ChatID]; gone {
			return // stale child event for a removed chat
		}
		if _, known := l.chats[d.ChatID]; !known {
			// Child arrived before its parent: buffer the newest.
			if buffered, ok := l.pending[d.ChatID]; !ok || d.CreatedAt.After(buffered.CreatedAt) {
				l.pending[d.ChatID] = d
			}
			return
		}
		l.keepNewest(d.ChatID, d)
	case domain.User:
		l.profiles[d.ID] = d.Profile
	}
}

func (l *ChatList) keepNewest(chatID string, message domain.Message) {
	current, ok := l.last[chatID]
	if !ok || !message.CreatedAt.Before(current.CreatedAt) {
		l.last[chatID] = message
	}
}

// Rows returns the chat list, most recently active first.
func (l *ChatList) Rows() []ChatRow {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rows := make([]ChatRow, 0, len(l.chats))
	for id, chat := range l.chats {
		row := ChatRow{ChatID: id}
		if other, ok := chat.OtherMember(l.viewerID); ok {
			profile := l.profiles[other]
			row.Title = profile.Name
			row.Picture = profile.Picture
		}
		if message, ok := l.last[id]; ok {
			m := message
			row.LastMessage = &m
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i].LastMessage, rows[j].LastMessage
		switch {
		case a != nil && b != nil && !a.CreatedAt.Equal(b.CreatedAt):
			return a.CreatedAt.After(b.CreatedAt)
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		}
		return rows[i].ChatID < rows[j].ChatID
	})
	return rows
}
