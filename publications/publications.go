// Package publications defines the named server feeds: users, messages and
// the composite chats feed. A publication binds the generic composer to a
// concrete parent query, child relations and viewer scoping.
package publications

import (
	"context"
	"fmt"
	"log/slog"

	"chat-sync/domain"
	syncerrors "chat-sync/errors"
	"chat-sync/runtime"
	"chat-sync/store"

	"github.com/samber/lo"
)

const (
	FeedUsers    = "users"
	FeedMessages = "messages"
	FeedChats    = "chats"
)

// Args is the argument tuple of a subscription. Unused fields stay zero.
type Args struct {
	ChatID        string
	BatchNumber   int
	SearchPattern string
}

type Server struct {
	log      *slog.Logger
	store    *store.Store
	composer *runtime.Composer
	registry *runtime.Registry
	pageSize int
}

func NewServer(s *store.Store, composer *runtime.Composer, registry *runtime.Registry, pageSize int, log *slog.Logger) *Server {
	return &Server{log: log, store: s, composer: composer, registry: registry, pageSize: pageSize}
}

func (s *Server) PageSize() int { return s.pageSize }

// Subscribe opens the named feed for a connection and records it in the
// registry, destroying any previous subscription of the same publication
// held by that connection. Unauthenticated viewers always get an empty,
// immediately-complete stream.
func (s *Server) Subscribe(ctx context.Context, connID, viewerID, name string, args Args) (*runtime.Handle, error) {
	handle, err := s.Open(ctx, viewerID, name, args)
	if err != nil {
		return nil, err
	}
	key := runtime.NewFeedKey(name, args.ChatID, args.BatchNumber, args.SearchPattern)
	s.registry.Subscribe(connID, name, key, handle)
	return handle, nil
}

// Unsubscribe closes one subscription of a connection.
func (s *Server) Unsubscribe(connID, name string) {
	s.registry.Unsubscribe(connID, name)
}

// DropConnection releases every feed of a disconnecting connection.
func (s *Server) DropConnection(connID string) {
	s.registry.DropConnection(connID)
}

// Open builds and opens the named feed without registry bookkeeping.
func (s *Server) Open(ctx context.Context, viewerID, name string, args Args) (*runtime.Handle, error) {
	if viewerID == "" {
		return s.composer.OpenEmpty(name), nil
	}
	switch name {
	case FeedUsers:
		return s.openUsers(ctx, viewerID, args.SearchPattern)
	case FeedMessages:
		return s.openMessages(ctx, args.ChatID, args.BatchNumber)
	case FeedChats:
		return s.openChats(ctx, viewerID)
	}
	return nil, fmt.Errorf("%w: %q", syncerrors.ErrUnknownFeed, name)
}

// openUsers serves the new-chat directory: every user except the viewer and
// the viewer's existing chat partners, optionally narrowed by a name
// search. The partner exclusion set and the name match set are snapshotted
// at open time; the client re-opens the feed after creating a chat, and the
// search box re-subscribes per settled pattern, so a user registered or
// renamed mid-subscription appears on the next open.
func (s *Server) openUsers(ctx context.Context, viewerID, searchPattern string) (*runtime.Handle, error) {
	excluded, err := s.partnerIDs(viewerID)
	if err != nil {
		return nil, err
	}
	excluded[viewerID] = struct{}{}

	var matched map[string]struct{}
	if searchPattern != "" {
		ids, err := s.store.SearchUsers(ctx, searchPattern)
		if err != nil {
			return nil, err
		}
		matched = lo.SliceToMap(ids, func(id string) (string, struct{}) { return id, struct{}{} })
	}

	return s.composer.Open(ctx, runtime.FeedSpec{
		Name: FeedUsers,
		Parent: domain.Query{
			Collection: domain.Users,
			Match: func(doc domain.Document) bool {
				if _, skip := excluded[doc.DocumentID()]; skip {
					return false
				}
				if matched == nil {
					return true
				}
				_, ok := matched[doc.DocumentID()]
				return ok
			},
		},
	})
}

// openMessages serves one chat's history, newest first, widened page by
// page: the limit is batchNumber times the page size. The predicate scopes
// strictly to the chat, so an unrelated query can never receive another
// chat's messages.
func (s *Server) openMessages(ctx context.Context, chatID string, batchNumber int) (*runtime.Handle, error) {
	if batchNumber < 1 {
		return nil, fmt.Errorf("%w: batchNumber must be >= 1", syncerrors.ErrInvalidArgument)
	}
	return s.composer.Open(ctx, runtime.FeedSpec{
		Name:   FeedMessages,
		Parent: messagesQuery(chatID, batchNumber*s.pageSize),
	})
}

// openChats is the composite feed: the viewer's chats, each joined with its
// latest message and the profiles of its members.
func (s *Server) openChats(ctx context.Context, viewerID string) (*runtime.Handle, error) {
	return s.composer.Open(ctx, runtime.FeedSpec{
		Name: FeedChats,
		Parent: domain.Query{
			Collection: domain.Chats,
			Match: func(doc domain.Document) bool {
				return doc.(domain.Chat).HasMember(viewerID)
			},
		},
		Children: []runtime.ChildFactory{
			func(parent domain.Document) domain.Query {
				return messagesQuery(parent.DocumentID(), 1)
			},
			func(parent domain.Document) domain.Query {
				chat := parent.(domain.Chat)
				return domain.Query{
					Collection: domain.Users,
					Match: func(doc domain.Document) bool {
						return chat.HasMember(doc.DocumentID())
					},
				}
			},
		},
	})
}

func messagesQuery(chatID string, limit int) domain.Query {
	return domain.Query{
		Collection: domain.Messages,
		Match: func(doc domain.Document) bool {
			return doc.(domain.Message).ChatID == chatID
		},
		SortKey: func(doc domain.Document) int64 {
			return doc.(domain.Message).CreatedAt.UnixNano()
		},
		Direction: domain.Descending,
		Limit:     limit,
	}
}

// partnerIDs collects the ids the viewer already chats with.
func (s *Server) partnerIDs(viewerID string) (map[string]struct{}, error) {
	docs, err := s.store.Documents(domain.Chats)
	if err != nil {
		return nil, err
	}
	partners := make(map[string]struct{})
	for _, doc := range docs {
		if other, ok := doc.(domain.Chat).OtherMember(viewerID); ok {
			partners[other] = struct{}{}
		}
	}
	return partners, nil
}
