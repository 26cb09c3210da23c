package runtime_test

import (
	"context"
	"log/slog"
	"testing"

	"chat-sync/domain"
	"chat-sync/runtime"

	"github.com/stretchr/testify/require"
)

func openChatsFeed(t *testing.T, evaluator *runtime.Evaluator, composer *runtime.Composer) *runtime.Handle {
	t.Helper()
	handle, err := composer.Open(context.Background(), runtime.FeedSpec{
		Name:   "chats",
		Parent: domain.Query{Collection: domain.Chats},
	})
	require.NoError(t, err)
	return handle
}

func Test_Resubscribing_replaces_and_closes_the_previous_feed(t *testing.T) {
	req := require.New(t)

	evaluator := runtime.NewEvaluator(newMemorySnapshot(), slog.Default())
	composer := runtime.NewComposer(evaluator, slog.Default())
	registry := runtime.NewRegistry()

	// Given a connection subscribed to the chats publication
	first := openChatsFeed(t, evaluator, composer)
	registry.Subscribe("conn-1", "chats", runtime.NewFeedKey("chats", 1), first)
	req.Equal(1, evaluator.LiveCount())

	// When it re-subscribes with a different argument tuple
	second := openChatsFeed(t, evaluator, composer)
	registry.Subscribe("conn-1", "chats", runtime.NewFeedKey("chats", 2), second)

	// Then the previous feed was released and the new one replaces it
	req.Equal(1, evaluator.LiveCount())
	req.Equal(1, registry.SubscriptionCount())
	handle, key, ok := registry.Lookup("conn-1", "chats")
	req.True(ok)
	req.Equal(second, handle)
	req.Equal(runtime.NewFeedKey("chats", 2), key)
}

func Test_Unsubscribe_closes_and_forgets_one_feed(t *testing.T) {
	req := require.New(t)

	evaluator := runtime.NewEvaluator(newMemorySnapshot(), slog.Default())
	composer := runtime.NewComposer(evaluator, slog.Default())
	registry := runtime.NewRegistry()

	registry.Subscribe("conn-1", "chats", runtime.NewFeedKey("chats"), openChatsFeed(t, evaluator, composer))

	registry.Unsubscribe("conn-1", "chats")

	req.Equal(0, evaluator.LiveCount())
	req.Equal(0, registry.SubscriptionCount())
	_, _, ok := registry.Lookup("conn-1", "chats")
	req.False(ok)
}

func Test_Dropping_a_connection_releases_everything_it_held(t *testing.T) {
	req := require.New(t)

	evaluator := runtime.NewEvaluator(newMemorySnapshot(), slog.Default())
	composer := runtime.NewComposer(evaluator, slog.Default())
	registry := runtime.NewRegistry()

	registry.Subscribe("conn-1", "chats", runtime.NewFeedKey("chats"), openChatsFeed(t, evaluator, composer))
	registry.Subscribe("conn-1", "users", runtime.NewFeedKey("users", ""), openChatsFeed(t, evaluator, composer))
	registry.Subscribe("conn-2", "chats", runtime.NewFeedKey("chats"), openChatsFeed(t, evaluator, composer))
	req.Equal(3, registry.SubscriptionCount())

	registry.DropConnection("conn-1")

	req.Equal(1, registry.SubscriptionCount())
	req.Equal(1, evaluator.LiveCount())
	_, _, ok := registry.Lookup("conn-2", "chats")
	req.True(ok)
}
