// Package gateway is the single write path. It authorizes and validates
// commands, applies them to the document store, and invalidates the
// continuous query evaluator before returning, so a caller re-reading
// after a successful command always observes its own write.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"chat-sync/domain"
	"chat-sync/domain/event"
	syncerrors "chat-sync/errors"
	"chat-sync/runtime"
	"chat-sync/store"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New()

type Gateway struct {
	log       *slog.Logger
	store     *store.Store
	evaluator *runtime.Evaluator
	mutations chan<- event.FeedEvent
}

// New wires the gateway. mutations may be nil when no side-effect sinks are
// attached (tests).
func New(s *store.Store, evaluator *runtime.Evaluator, mutations chan<- event.FeedEvent, log *slog.Logger) *Gateway {
	return &Gateway{log: log, store: s, evaluator: evaluator, mutations: mutations}
}

// AddChatCommand creates the unique chat between the caller and a receiver.
type AddChatCommand struct {
	CallerID   string
	ReceiverID string `validate:"required"`
}

type RemoveChatCommand struct {
	CallerID string
	ChatID   string `validate:"required"`
}

type AddMessageCommand struct {
	CallerID string
	Type     domain.MessageType `validate:"required,oneof=TEXT LOCATION PICTURE"`
	ChatID   string             `validate:"required"`
	Content  string             `validate:"required"`
}

type UpdateProfileCommand struct {
	CallerID string
	Profile  domain.Profile `validate:"required"`
}

type CountMessagesCommand struct {
	CallerID string
	ChatID   string `validate:"required"`
}

// check runs authentication then schema validation, in that order:
// an unauthenticated caller sees Unauthorized even for malformed input.
func check(callerID string, cmd any) error {
	if callerID == "" {
		return syncerrors.ErrUnauthorized
	}
	if err := validate.Struct(cmd); err != nil {
		return fmt.Errorf("%w: %s", syncerrors.ErrInvalidArgument, err)
	}
	return nil
}

func (g *Gateway) AddChat(ctx context.Context, cmd AddChatCommand) (domain.Chat, error) {
	if err := check(cmd.CallerID, cmd); err != nil {
		return domain.Chat{}, err
	}
	if cmd.ReceiverID == cmd.CallerID {
		return domain.Chat{}, syncerrors.ErrIllegalReceiver
	}
	if _, exists, err := g.store.FindChatByMembers(cmd.CallerID, cmd.ReceiverID); err != nil {
		return domain.Chat{}, err
	} else if exists {
		return domain.Chat{}, syncerrors.ErrChatAlreadyExists
	}

	chat := domain.Chat{
		ID:        uuid.NewString(),
		MemberIDs: [2]string{cmd.CallerID, cmd.ReceiverID},
	}
	if err := g.store.PutChat(chat); err != nil {
		return domain.Chat{}, err
	}
	return chat, g.applied(ctx, "addChat", chat, domain.Chats)
}

// RemoveChat deletes the chat and cascades to its messages: orphaned
// messages would be unreachable by every query yet still counted.
func (g *Gateway) RemoveChat(ctx context.Context, cmd RemoveChatCommand) error {
	if err := check(cmd.CallerID, cmd); err != nil {
		return err
	}
	exists, err := g.store.HasChat(cmd.ChatID)
	if err != nil {
		return err
	}
	if !exists {
		return syncerrors.ErrChatNotFound
	}
	if err = g.store.DeleteChat(cmd.ChatID); err != nil {
		return err
	}
	if err = g.store.DeleteMessagesForChat(cmd.ChatID); err != nil {
		return err
	}
	return g.applied(ctx, "removeChat", nil, domain.Chats, domain.Messages)
}

// AddMessage stamps the message with a server-assigned creation time and
// the caller as sender, then returns the new message id.
func (g *Gateway) AddMessage(ctx context.Context, cmd AddMessageCommand) (string, error) {
	if err := check(cmd.CallerID, cmd); err != nil {
		return "", err
	}
	if cmd.Type == domain.PictureMessage && !isImagePayload(cmd.Content) {
		return "", fmt.Errorf("%w: picture message payload is not an image", syncerrors.ErrUnsupportedContent)
	}
	exists, err := g.store.HasChat(cmd.ChatID)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", syncerrors.ErrChatNotFound
	}

	message := domain.Message{
		ID:        uuid.NewString(),
		ChatID:    cmd.ChatID,
		SenderID:  cmd.CallerID,
		Type:      cmd.Type,
		Content:   cmd.Content,
		CreatedAt: time.Now().UTC(),
	}
	if err = g.store.PutMessage(message); err != nil {
		return "", err
	}
	return message.ID, g.applied(ctx, "addMessage", message, domain.Messages)
}

func (g *Gateway) UpdateProfile(ctx context.Context, cmd UpdateProfileCommand) error {
	if err := check(cmd.CallerID, cmd); err != nil {
		return err
	}
	if strings.TrimSpace(cmd.Profile.Name) == "" {
		return fmt.Errorf("%w: profile name is required", syncerrors.ErrInvalidArgument)
	}
	if err := g.store.UpdateProfile(cmd.CallerID, cmd.Profile); err != nil {
		return err
	}
	return g.applied(ctx, "updateProfile", domain.User{ID: cmd.CallerID, Profile: cmd.Profile}, domain.Users)
}

// CountMessages is the separately-fetched total the pagination controller
// compares against its mirror to detect exhaustion.
func (g *Gateway) CountMessages(_ context.Context, cmd CountMessagesCommand) (int, error) {
	if err := check(cmd.CallerID, cmd); err != nil {
		return 0, err
	}
	return g.store.CountMessages(cmd.ChatID)
}

// applied invalidates the touched collections synchronously, then notifies
// side-effect sinks best effort. The write already committed; a feed whose
// refresh fails is terminated on its own stream, not reported here.
func (g *Gateway) applied(ctx context.Context, command string, doc domain.Document, touched ...domain.Collection) error {
	g.evaluator.Invalidate(ctx, touched...)
	if g.mutations != nil {
		select {
		case g.mutations <- event.MutationApplied{Command: command, Document: doc}:
		default:
			g.log.Warn("Mutation channel full, dropping notification", "command", command)
		}
	}
	return nil
}

func isImagePayload(content string) bool {
	return strings.HasPrefix(mimetype.Detect([]byte(content)).String(), "image/")
}
