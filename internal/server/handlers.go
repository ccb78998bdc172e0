package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	apperrors "quantb/internal/errors"
	"quantb/internal/logging"
	"quantb/internal/models"
	"quantb/internal/store"
	"quantb/internal/stream"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// chatRequest is the body of POST /api/chat.
type chatRequest struct {
	ConversationID string `json:"conversationId,omitempty"`
	Message        string `json:"message"`
	Stream         bool   `json:"stream,omitempty"`
}

// chatResponse is the non-streaming reply of POST /api/chat.
type chatResponse struct {
	ConversationID string                `json:"conversationId"`
	Message        models.Message        `json:"message"`
	Context        models.MessageContext `json:"context"`
}

type screenRequest struct {
	Prompt string `json:"prompt"`
}

type conversationsResponse struct {
	Conversations []store.ConversationSummary `json:"conversations"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	text := strings.TrimSpace(req.Message)
	if text == "" {
		s.writeError(w, r, badRequest("message", req.Message, "required"))
		return
	}

	ctx := r.Context()
	conv, err := s.conversation(ctx, req.ConversationID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	logger := logging.WithConversation(logging.FromContext(ctx), conv.ID)
	ctx = logging.WithLogger(ctx, logger)

	conv.Append(models.Message{
		ID:        s.newID(),
		Role:      models.RoleUser,
		Content:   text,
		Timestamp: s.now(),
	})
	history := append([]models.Message(nil), conv.Messages...)

	if req.Stream {
		s.streamChat(ctx, w, conv, history)
		return
	}

	reply, err := s.chat.Respond(ctx, history)
	if err != nil {
		s.persist(ctx, conv)
		s.writeError(w, r, err)
		return
	}
	msg := reply.Message()
	conv.Append(msg)
	s.persist(ctx, conv)

	writeJSON(w, http.StatusOK, chatResponse{
		ConversationID: conv.ID,
		Message:        msg,
		Context:        reply.Context,
	})
}

// streamChat answers with an event stream. Once headers are written an
// error can only end the stream early; the missing done marker tells the
// client the turn failed.
func (s *Server) streamChat(ctx context.Context, w http.ResponseWriter, conv *models.Conversation, history []models.Message) {
	logger := logging.FromContext(ctx)

	stream.SetHeaders(w)
	w.Header().Set("X-Conversation-ID", conv.ID)
	w.WriteHeader(http.StatusOK)

	enc := stream.NewEncoder(w)
	reply, err := s.chat.Stream(ctx, history, enc)
	if err != nil {
		if ctx.Err() != nil {
			logger.Info().Err(err).Msg("Client went away mid-stream")
		} else {
			logger.Error().Err(err).Msg("Streaming turn failed")
		}
		s.persist(ctx, conv)
		return
	}

	conv.Append(reply.Message())
	s.persist(ctx, conv)
}

// conversation loads id, or starts a new conversation when id is empty or
// unknown.
func (s *Server) conversation(ctx context.Context, id string) (*models.Conversation, error) {
	if id == "" {
		return models.NewConversation(s.newID(), s.now()), nil
	}
	conv, err := s.convs.Load(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return models.NewConversation(id, s.now()), nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading conversation: %w", err)
	}
	return conv, nil
}

// persist saves conv even when the request context is already cancelled.
func (s *Server) persist(ctx context.Context, conv *models.Conversation) {
	if err := s.convs.Save(context.WithoutCancel(ctx), conv); err != nil {
		logger := logging.FromContext(ctx)
		logger.Error().Err(err).Msg("Failed to save conversation")
	}
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, r, badRequest("limit", v, "must be a non-negative integer"))
			return
		}
		limit = n
	}

	list, err := s.convs.List(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []store.ConversationSummary{}
	}
	writeJSON(w, http.StatusOK, conversationsResponse{Conversations: list})
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := s.convs.Load(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := s.convs.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleScreen(w http.ResponseWriter, r *http.Request) {
	if s.screener == nil {
		s.writeError(w, r, fmt.Errorf("screener: %w", apperrors.ErrNotConfigured))
		return
	}
	var req screenRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		s.writeError(w, r, badRequest("prompt", req.Prompt, "required"))
		return
	}

	res, err := s.screener.Screen(r.Context(), req.Prompt)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return badRequest("body", "", "invalid JSON: "+err.Error())
	}
	return nil
}
