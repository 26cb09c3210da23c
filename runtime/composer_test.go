package runtime_test

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"chat-sync/domain"
	"chat-sync/domain/event"
	"chat-sync/runtime"

	"github.com/stretchr/testify/require"
)

func chat(id, a, b string) domain.Chat {
	return domain.Chat{ID: id, MemberIDs: [2]string{a, b}}
}

// chatsWithLastMessage mirrors the composite chats publication: the
// viewer's chats joined with each chat's newest message.
func chatsWithLastMessage(viewerID string) runtime.FeedSpec {
	return runtime.FeedSpec{
		Name: "chats",
		Parent: domain.Query{
			Collection: domain.Chats,
			Match: func(doc domain.Document) bool {
				return doc.(domain.Chat).HasMember(viewerID)
			},
		},
		Children: []runtime.ChildFactory{
			func(parent domain.Document) domain.Query {
				chatID := parent.DocumentID()
				return domain.Query{
					Collection: domain.Messages,
					Match: func(doc domain.Document) bool {
						return doc.(domain.Message).ChatID == chatID
					},
					SortKey: func(doc domain.Document) int64 {
						return doc.(domain.Message).CreatedAt.UnixNano()
					},
					Direction: domain.Descending,
					Limit:     1,
				}
			},
		},
	}
}

// drain collects events until none arrive for a quiet period.
func drain(t *testing.T, handle *runtime.Handle) []event.FeedEvent {
	t.Helper()
	var events []event.FeedEvent
	for {
		select {
		case evt, open := <-handle.Events():
			if !open {
				return events
			}
			events = append(events, evt)
		case <-time.After(200 * time.Millisecond):
			return events
		}
	}
}

func Test_Open_queues_the_initial_composite_snapshot(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()

	// Given one chat of the viewer with one message
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	snapshot := newMemorySnapshot()
	snapshot.set(domain.Chats, chat("c1", "alice", "bob"))
	snapshot.set(domain.Messages, message("m1", "c1", at))
	evaluator := runtime.NewEvaluator(snapshot, slog.Default())
	composer := runtime.NewComposer(evaluator, slog.Default())

	// When opening the composite feed
	handle, err := composer.Open(ctx, chatsWithLastMessage("alice"))
	req.NoError(err)
	defer handle.Close()

	// Then the chat and its last message arrive as Added
	events := drain(t, handle)
	req.Len(events, 2)
	req.Equal(event.DocumentAdded{Document: chat("c1", "alice", "bob")}, events[0])
	req.Equal(event.DocumentAdded{Document: message("m1", "c1", at)}, events[1])
}

func Test_A_new_parent_opens_its_child_queries(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()

	snapshot := newMemorySnapshot()
	evaluator := runtime.NewEvaluator(snapshot, slog.Default())
	composer := runtime.NewComposer(evaluator, slog.Default())

	handle, err := composer.Open(ctx, chatsWithLastMessage("alice"))
	req.NoError(err)
	defer handle.Close()
	req.Empty(drain(t, handle))
	req.Equal(1, evaluator.LiveCount()) // parent only

	// When a chat appears
	snapshot.set(domain.Chats, chat("c1", "alice", "bob"))
	evaluator.Invalidate(ctx, domain.Chats)

	// Then its child query is live and message mutations flow through it
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	snapshot.set(domain.Messages, message("m1", "c1", at))
	evaluator.Invalidate(ctx, domain.Messages)

	events := drain(t, handle)
	req.Len(events, 2)
	req.Equal(event.DocumentAdded{Document: chat("c1", "alice", "bob")}, events[0])
	req.Equal(event.DocumentAdded{Document: message("m1", "c1", at)}, events[1])
	req.Equal(2, evaluator.LiveCount())
}

func Test_A_removed_parent_closes_its_children(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()

	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	snapshot := newMemorySnapshot()
	snapshot.set(domain.Chats, chat("c1", "alice", "bob"))
	snapshot.set(domain.Messages, message("m1", "c1", at))
	evaluator := runtime.NewEvaluator(snapshot, slog.Default())
	composer := runtime.NewComposer(evaluator, slog.Default())

	handle, err := composer.Open(ctx, chatsWithLastMessage("alice"))
	req.NoError(err)
	defer handle.Close()
	drain(t, handle)
	req.Equal(2, evaluator.LiveCount())

	// When the chat disappears
	snapshot.set(domain.Chats)
	evaluator.Invalidate(ctx, domain.Chats)

	events := drain(t, handle)
	req.Contains(events, event.FeedEvent(event.DocumentRemoved{Collection: domain.Chats, ID: "c1"}))
	req.Equal(1, evaluator.LiveCount())

	// And later message mutations no longer reach the feed
	snapshot.set(domain.Messages, message("m2", "c1", at.Add(time.Minute)))
	evaluator.Invalidate(ctx, domain.Messages)
	req.Empty(drain(t, handle))
}

func Test_Composite_converges_under_interleaved_mutations(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()

	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	snapshot := newMemorySnapshot()
	snapshot.set(domain.Chats, chat("c1", "alice", "bob"))
	evaluator := runtime.NewEvaluator(snapshot, slog.Default())
	composer := runtime.NewComposer(evaluator, slog.Default())

	handle, err := composer.Open(ctx, chatsWithLastMessage("alice"))
	req.NoError(err)
	defer handle.Close()

	// When chats and messages mutate in interleaved order
	snapshot.set(domain.Messages, message("m1", "c1", at))
	evaluator.Invalidate(ctx, domain.Messages)
	snapshot.set(domain.Chats, chat("c1", "alice", "bob"), chat("c2", "alice", "clara"))
	evaluator.Invalidate(ctx, domain.Chats)
	snapshot.set(domain.Messages, message("m1", "c1", at), message("m2", "c2", at.Add(time.Minute)))
	evaluator.Invalidate(ctx, domain.Messages)

	// Then replaying the stream ends at the latest state per chat
	lastMessage := make(map[string]string)
	chats := make(map[string]struct{})
	for _, evt := range drain(t, handle) {
		switch e := evt.(type) {
		case event.DocumentAdded:
			switch doc := e.Document.(type) {
			case domain.Chat:
				chats[doc.ID] = struct{}{}
			case domain.Message:
				lastMessage[doc.ChatID] = doc.ID
			}
		case event.DocumentRemoved:
			if e.Collection == domain.Chats {
				delete(chats, e.ID)
			}
		}
	}
	req.Equal(map[string]struct{}{"c1": {}, "c2": {}}, chats)
	req.Equal(map[string]string{"c1": "m1", "c2": "m2"}, lastMessage)
}

func Test_OpenEmpty_completes_immediately_without_events(t *testing.T) {
	req := require.New(t)

	composer := runtime.NewComposer(runtime.NewEvaluator(newMemorySnapshot(), slog.Default()), slog.Default())

	// When opening the unauthenticated stream
	handle := composer.OpenEmpty("chats")

	// Then the channel closes with no events and no failure
	select {
	case evt, open := <-handle.Events():
		req.False(open, "expected completion, got event %v", evt)
	case <-time.After(time.Second):
		req.Fail("stream should have completed")
	}
}

func Test_A_failing_refresh_terminates_only_its_feed(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()

	// Given a messages feed and a users feed over one evaluator
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	snapshot := newMemorySnapshot()
	snapshot.set(domain.Messages, message("m1", "c1", at))
	snapshot.set(domain.Users, user("u1", "Alice"))
	evaluator := runtime.NewEvaluator(snapshot, slog.Default())
	composer := runtime.NewComposer(evaluator, slog.Default())

	messagesFeed, err := composer.Open(ctx, runtime.FeedSpec{Name: "messages", Parent: messagesByCreatedAt(0)})
	req.NoError(err)
	defer messagesFeed.Close()
	usersFeed, err := composer.Open(ctx, runtime.FeedSpec{Name: "users", Parent: domain.Query{Collection: domain.Users}})
	req.NoError(err)
	defer usersFeed.Close()
	drain(t, messagesFeed)
	drain(t, usersFeed)

	// When the messages read breaks and both collections are invalidated
	snapshot.fail[domain.Messages] = fmt.Errorf("disk gone")
	snapshot.set(domain.Users, user("u1", "Alicia"))
	evaluator.Invalidate(ctx, domain.Messages, domain.Users)

	// Then the messages stream fails loudly and completes instead of going
	// silently stale
	var events []event.FeedEvent
	for evt := range messagesFeed.Events() {
		events = append(events, evt)
	}
	req.NotEmpty(events)
	failure, ok := events[len(events)-1].(event.FeedFailed)
	req.True(ok, "last event should be the terminal failure")
	req.Equal("messages", failure.Feed)
	req.ErrorContains(failure.Err, "disk gone")

	// And the users feed was still refreshed
	req.Contains(drain(t, usersFeed), event.FeedEvent(event.DocumentChanged{Document: user("u1", "Alicia")}))
	req.Equal(1, evaluator.LiveCount())
}

func Test_A_failing_child_registration_terminates_the_feed(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()

	// Given a readable parent collection and a broken child collection
	snapshot := newMemorySnapshot()
	snapshot.set(domain.Chats, chat("c1", "alice", "bob"))
	snapshot.fail[domain.Messages] = fmt.Errorf("disk gone")
	evaluator := runtime.NewEvaluator(snapshot, slog.Default())
	composer := runtime.NewComposer(evaluator, slog.Default())

	handle, err := composer.Open(ctx, chatsWithLastMessage("alice"))
	req.NoError(err)
	defer handle.Close()

	// Then the stream delivers what it has, fails loudly, and completes
	var events []event.FeedEvent
	for evt := range handle.Events() {
		events = append(events, evt)
	}
	req.NotEmpty(events)
	failure, ok := events[len(events)-1].(event.FeedFailed)
	req.True(ok, "last event should be the terminal failure")
	req.Equal("chats", failure.Feed)
	req.ErrorContains(failure.Err, "disk gone")
	req.Equal(0, evaluator.LiveCount())
}
