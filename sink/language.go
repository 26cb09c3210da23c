// Package sink holds side-effect consumers of mutation notifications.
// Sinks are best effort; losing one event never desynchronizes a feed.
package sink

import (
	"context"
	"sync"

	"chat-sync/domain"
	"chat-sync/domain/event"

	"github.com/abadojack/whatlanggo"
)

// LanguageSink counts the detected language of posted text messages.
// Detection is read-only insight over the event stream; message content is
// never touched.
type LanguageSink struct {
	mu  sync.Mutex
	hit map[string]uint64
}

func NewLanguageSink() *LanguageSink {
	return &LanguageSink{hit: make(map[string]uint64)}
}

func (s *LanguageSink) Consume(_ context.Context, e event.FeedEvent) error {
	applied, ok := e.(event.MutationApplied)
	if !ok {
		return nil
	}
	message, ok := applied.Document.(domain.Message)
	if !ok || message.Type != domain.TextMessage {
		return nil
	}

	info := whatlanggo.Detect(message.Content)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.hit[info.Lang.String()]++
	return nil
}

// Stats returns a copy of the per-language counters.
func (s *LanguageSink) Stats() map[string]uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := make(map[string]uint64, len(s.hit))
	for lang, count := range s.hit {
		stats[lang] = count
	}
	return stats
}
