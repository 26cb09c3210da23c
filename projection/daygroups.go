package projection

import (
	"sort"
	"sync"
	"time"

	"chat-sync/domain"
)

// dayFormat mirrors the "4 July 2024" style label of the message thread.
const dayFormat = "2 January 2006"

// MessageView is a message plus its transient view attributes.
type MessageView struct {
	domain.Message
	Ownership domain.Ownership
}

// DayGroup is the messages of one local calendar day, oldest first.
type DayGroup struct {
	Timestamp string
	Date      time.Time
	Today     bool
	Messages  []MessageView
}

// DayGrouper rebuilds the grouped message thread whenever the messages
// mirror changes. Ownership is assigned by comparing each sender to the
// viewing user. When a rebuild grows the thread it emits an appended
// notification so the scroll layer can react without watching the view
// tree.
type DayGrouper struct {
	viewerID string
	now      func() time.Time

	mu       sync.RWMutex
	groups   []DayGroup
	total    int
	appended []func(count int)
}

// NewDayGrouper builds a grouper for one viewer. now is injectable for
// tests; pass time.Now in production.
func NewDayGrouper(viewerID string, now func() time.Time) *DayGrouper {
	if now == nil {
		now = time.Now
	}
	return &DayGrouper{viewerID: viewerID, now: now}
}

// OnAppend registers a listener for "new items appended" notifications.
func (g *DayGrouper) OnAppend(listener func(count int)) {
	g.mu.Lock()
	g.appended = append(g.appended, listener)
	g.mu.Unlock()
}

// Rebuild recomputes the day groups from the mirrored set. The signature
// matches client.Mirror.OnChange, which is the only trigger; the grouper is
// never polled.
func (g *DayGrouper) Rebuild(docs []domain.Document) {
	messages := make([]domain.Message, 0, len(docs))
	for _, doc := range docs {
		if message, ok := doc.(domain.Message); ok {
			messages = append(messages, message)
		}
	}
	// The thread renders oldest first regardless of feed order.
	sort.Slice(messages, func(i, j int) bool {
		if !messages[i].CreatedAt.Equal(messages[j].CreatedAt) {
			return messages[i].CreatedAt.Before(messages[j].CreatedAt)
		}
		return messages[i].ID < messages[j].ID
	})

	today := dateOf(g.now())
	byDay := make(map[time.Time]*DayGroup)
	var order []time.Time
	for _, message := range messages {
		day := dateOf(message.CreatedAt)
		group, ok := byDay[day]
		if !ok {
			group = &DayGroup{
				Timestamp: day.Format(dayFormat),
				Date:      day,
				Today:     day.Equal(today),
			}
			byDay[day] = group
			order = append(order, day)
		}
		group.Messages = append(group.Messages, MessageView{
			Message:   message,
			Ownership: message.OwnershipFor(g.viewerID),
		})
	}

	groups := make([]DayGroup, 0, len(order))
	for _, day := range order {
		groups = append(groups, *byDay[day])
	}

	g.mu.Lock()
	grown := len(messages) - g.total
	g.groups = groups
	g.total = len(messages)
	listeners := g.appended
	g.mu.Unlock()

	if grown > 0 {
		for _, listener := range listeners {
			listener(grown)
		}
	}
}

// Groups returns the current day groups, oldest day first.
func (g *DayGrouper) Groups() []DayGroup {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.groups
}

// dateOf truncates to the local calendar date, independent of formatting.
func dateOf(t time.Time) time.Time {
	local := t.Local()
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location())
}
