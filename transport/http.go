// Package transport exposes the engine over HTTP: JSON endpoints for the
// command gateway and account service, and server-sent events for feed
// subscriptions. One SSE request is one connection in the registry; closing
// the request drops every feed it holds.
package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"chat-sync/auth"
	"chat-sync/domain"
	"chat-sync/domain/event"
	syncerrors "chat-sync/errors"
	"chat-sync/gateway"
	"chat-sync/publications"

	"github.com/google/uuid"
)

type Server struct {
	log     *slog.Logger
	auth    auth.IAuthService
	gateway *gateway.Gateway
	pubs    *publications.Server
}

func NewServer(log *slog.Logger, authService auth.IAuthService, gw *gateway.Gateway, pubs *publications.Server) *Server {
	return &Server{log: log, auth: authService, gateway: gw, pubs: pubs}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /register", s.handleRegister)
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("POST /chats", s.handleAddChat)
	mux.HandleFunc("DELETE /chats/{id}", s.handleRemoveChat)
	mux.HandleFunc("GET /chats/{id}/count", s.handleCountMessages)
	mux.HandleFunc("POST /messages", s.handleAddMessage)
	mux.HandleFunc("PUT /profile", s.handleUpdateProfile)
	mux.HandleFunc("GET /feeds/{name}", s.handleFeed)
	return mux
}

type credentialsRequest struct {
	Username string `json:"username"`
	Name     string `json:"name,omitempty"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, fmt.Errorf("%w: %v", syncerrors.ErrInvalidArgument, err))
		return
	}
	token, err := s.auth.Register(req.Username, req.Name, req.Password)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.reply(w, http.StatusCreated, tokenResponse{Token: string(token)})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, fmt.Errorf("%w: %v", syncerrors.ErrInvalidArgument, err))
		return
	}
	token, err := s.auth.Login(req.Username, req.Password)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.reply(w, http.StatusOK, tokenResponse{Token: string(token)})
}

func (s *Server) handleAddChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ReceiverID string `json:"receiverId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, fmt.Errorf("%w: %v", syncerrors.ErrInvalidArgument, err))
		return
	}
	chat, err := s.gateway.AddChat(r.Context(), gateway.AddChatCommand{
		CallerID:   s.viewerID(r),
		ReceiverID: req.ReceiverID,
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	s.reply(w, http.StatusCreated, chat)
}

func (s *Server) handleRemoveChat(w http.ResponseWriter, r *http.Request) {
	err := s.gateway.RemoveChat(r.Context(), gateway.RemoveChatCommand{
		CallerID: s.viewerID(r),
		ChatID:   r.PathValue("id"),
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCountMessages(w http.ResponseWriter, r *http.Request) {
	count, err := s.gateway.CountMessages(r.Context(), gateway.CountMessagesCommand{
		CallerID: s.viewerID(r),
		ChatID:   r.PathValue("id"),
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	s.reply(w, http.StatusOK, map[string]int{"count": count})
}

func (s *Server) handleAddMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChatID  string `json:"chatId"`
		Type    string `json:"type"`
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, fmt.Errorf("%w: %v", syncerrors.ErrInvalidArgument, err))
		return
	}
	id, err := s.gateway.AddMessage(r.Context(), gateway.AddMessageCommand{
		CallerID: s.viewerID(r),
		ChatID:   req.ChatID,
		Type:     domain.MessageType(req.Type),
		Content:  req.Content,
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	s.reply(w, http.StatusCreated, map[string]string{"messageId": id})
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, fmt.Errorf("%w: %v", syncerrors.ErrInvalidArgument, err))
		return
	}
	err := s.gateway.UpdateProfile(r.Context(), gateway.UpdateProfileCommand{
		CallerID: s.viewerID(r),
		Profile:  domain.Profile{Name: req.Name, Picture: req.Picture},
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleFeed streams one named feed as server-sent events until the client
// disconnects or the feed completes. The sender receives its own mutations
// through this stream like any other subscriber, keeping a single source of
// truth for ordering.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	name := r.PathValue("name")
	args, err := feedArgs(r)
	if err != nil {
		s.fail(w, err)
		return
	}

	connID := uuid.NewString()
	handle, err := s.pubs.Subscribe(r.Context(), connID, s.viewerID(r), name, args)
	if err != nil {
		s.fail(w, err)
		return
	}
	defer s.pubs.DropConnection(connID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.log.Debug("Feed client disconnected", "feed", name, "conn_id", connID)
			return
		case evt, open := <-handle.Events():
			if !open {
				fmt.Fprint(w, "event: complete\ndata: {}\n\n")
				flusher.Flush()
				return
			}
			payload, err := json.Marshal(encodeEvent(evt))
			if err != nil {
				s.log.Error("failed to encode feed event", "feed", name, "error", err)
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

// viewerID resolves the bearer token to a user id. An absent or invalid
// token yields the empty viewer, which downstream means unauthenticated.
func (s *Server) viewerID(r *http.Request) string {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found {
		return ""
	}
	viewerID, err := s.auth.Authenticate(strings.TrimSpace(token))
	if err != nil {
		return ""
	}
	return viewerID
}

func feedArgs(r *http.Request) (publications.Args, error) {
	args := publications.Args{
		ChatID:        r.URL.Query().Get("chatId"),
		SearchPattern: r.URL.Query().Get("searchPattern"),
	}
	if raw := r.URL.Query().Get("batchNumber"); raw != "" {
		batch, err := strconv.Atoi(raw)
		if err != nil {
			return args, fmt.Errorf("%w: batchNumber: %v", syncerrors.ErrInvalidArgument, err)
		}
		args.BatchNumber = batch
	}
	return args, nil
}

type wireEvent struct {
	Type       string `json:"type"`
	Collection string `json:"collection,omitempty"`
	ID         string `json:"id,omitempty"`
	Document   any    `json:"document,omitempty"`
	Feed       string `json:"feed,omitempty"`
	Error      string `json:"error,omitempty"`
}

func encodeEvent(evt event.FeedEvent) wireEvent {
	switch e := evt.(type) {
	case event.DocumentAdded:
		return wireEvent{Type: "added", Collection: string(e.EventCollection()), ID: e.Document.DocumentID(), Document: e.Document}
	case event.DocumentChanged:
		return wireEvent{Type: "changed", Collection: string(e.EventCollection()), ID: e.Document.DocumentID(), Document: e.Document}
	case event.DocumentRemoved:
		return wireEvent{Type: "removed", Collection: string(e.Collection), ID: e.ID}
	case event.FeedFailed:
		return wireEvent{Type: "failed", Feed: e.Feed, Error: e.Err.Error()}
	default:
		return wireEvent{Type: "unknown"}
	}
}

func (s *Server) reply(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error("failed to write response", "error", err)
	}
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	s.log.Warn("Request failed", "error", err)
	http.Error(w, err.Error(), statusOf(err))
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, syncerrors.ErrUnauthorized), errors.Is(err, syncerrors.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, syncerrors.ErrChatAlreadyExists), errors.Is(err, syncerrors.ErrUserAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, syncerrors.ErrChatNotFound), errors.Is(err, syncerrors.ErrUnknownFeed):
		return http.StatusNotFound
	case errors.Is(err, syncerrors.ErrInvalidArgument), errors.Is(err, syncerrors.ErrIllegalReceiver),
		errors.Is(err, syncerrors.ErrInvalidPassword), errors.Is(err, syncerrors.ErrUnsupportedContent):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
