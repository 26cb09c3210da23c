package test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"chat-sync/auth"
	"chat-sync/client"
	"chat-sync/domain"
	"chat-sync/domain/event"
	"chat-sync/gateway"
	"chat-sync/projection"
	"chat-sync/publications"
	"chat-sync/runtime"
	"chat-sync/runtime/workers"
	"chat-sync/sink"
	"chat-sync/store"

	"github.com/stretchr/testify/require"
)

type engine struct {
	store     *store.Store
	evaluator *runtime.Evaluator
	pubs      *publications.Server
	gateway   *gateway.Gateway
	auth      *auth.AuthService
	languages *sink.LanguageSink
}

func startEngine(t *testing.T, cfg Config) *engine {
	t.Helper()
	log := slog.Default()

	s, err := store.Open(t.TempDir(), t.TempDir(), log)
	require.NoError(t, err)

	mutations := make(chan event.FeedEvent, cfg.MutationBuffer)
	evaluator := runtime.NewEvaluator(s, log)
	composer := runtime.NewComposer(evaluator, log)
	registry := runtime.NewRegistry()
	languages := sink.NewLanguageSink()
	supervisor := workers.NewSupervisor(log).
		Add(workers.NewMutationFanout(log, mutations, languages))

	ctx, cancel := context.WithCancel(context.Background())
	go supervisor.Run(ctx)
	t.Cleanup(func() {
		cancel()
		_ = s.Close()
	})

	return &engine{
		store:     s,
		evaluator: evaluator,
		pubs:      publications.NewServer(s, composer, registry, cfg.PageSize, log),
		gateway:   gateway.New(s, evaluator, mutations, log),
		auth:      auth.NewAuthService(s, auth.NewTokens([]byte(cfg.SigningKey), time.Hour)),
		languages: languages,
	}
}

// register creates an account and resolves its token to a viewer id, the
// way a connection would authenticate.
func (e *engine) register(t *testing.T, username, name string) string {
	t.Helper()
	token, err := e.auth.Register(username, name, "Int3gration&Pass!")
	require.NoError(t, err)
	viewerID, err := e.auth.Authenticate(string(token))
	require.NoError(t, err)
	return viewerID
}

func Test_Scenario(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	cfg, err := LoadConfig()
	req.NoError(err)
	e := startEngine(t, cfg)

	// Given two registered users
	alice := e.register(t, "alice", "Alice")
	bob := e.register(t, "bob", "Bob")

	// And Alice's chat list, fed by the composite chats publication
	chatList := projection.NewChatList(alice)
	chatsHandle, err := e.pubs.Subscribe(ctx, "conn-alice", alice, publications.FeedChats, publications.Args{})
	req.NoError(err)
	go func() {
		for evt := range chatsHandle.Events() {
			_ = chatList.Consume(ctx, evt)
		}
	}()

	// When Alice starts a conversation and posts a message
	chat, err := e.gateway.AddChat(ctx, gateway.AddChatCommand{CallerID: alice, ReceiverID: bob})
	req.NoError(err)
	_, err = e.gateway.AddMessage(ctx, gateway.AddMessageCommand{
		CallerID: alice,
		ChatID:   chat.ID,
		Type:     domain.TextMessage,
		Content:  "hello there my friend, shall we meet for lunch tomorrow",
	})
	req.NoError(err)

	// Then her chat list shows the chat titled after Bob, with the message
	req.Eventually(func() bool {
		rows := chatList.Rows()
		return len(rows) == 1 &&
			rows[0].Title == "Bob" &&
			rows[0].LastMessage != nil &&
			rows[0].LastMessage.SenderID == alice
	}, 2*time.Second, 20*time.Millisecond)

	// And the message thread, opened through the subscription controller,
	// groups today's conversation with her ownership
	mirror := client.NewMirror(domain.Query{
		Collection: domain.Messages,
		SortKey: func(doc domain.Document) int64 {
			return doc.(domain.Message).CreatedAt.UnixNano()
		},
		Direction: domain.Descending,
	})
	grouper := projection.NewDayGrouper(alice, time.Now)
	mirror.OnChange(grouper.Rebuild)

	controller := client.NewController(publications.FeedMessages,
		publications.Args{ChatID: chat.ID}, mirror,
		func(ctx context.Context, name string, args publications.Args) (*runtime.Handle, error) {
			return e.pubs.Subscribe(ctx, "conn-alice", alice, name, args)
		},
		func(ctx context.Context) (int, error) {
			return e.gateway.CountMessages(ctx, gateway.CountMessagesCommand{CallerID: alice, ChatID: chat.ID})
		},
		50*time.Millisecond, slog.Default())
	t.Cleanup(controller.Close)

	req.NoError(controller.Subscribe(ctx))
	req.Eventually(func() bool {
		groups := grouper.Groups()
		return len(groups) == 1 &&
			groups[0].Today &&
			len(groups[0].Messages) == 1 &&
			groups[0].Messages[0].Ownership == domain.OwnershipMine
	}, 2*time.Second, 20*time.Millisecond)

	// And scrolling reports exhaustion, since the whole history is mirrored
	req.NoError(controller.OnScrollToTop(ctx))
	req.Equal(client.Exhausted, controller.State())

	// And the language sink eventually counted the message
	req.Eventually(func() bool {
		return e.languages.Stats()["English"] == 1
	}, 2*time.Second, 20*time.Millisecond)
}
