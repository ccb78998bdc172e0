// Package server exposes the assistant over HTTP: chat turns as JSON or as
// an event stream, conversation history and stock screening.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"quantb/internal/chat"
	"quantb/internal/config"
	apperrors "quantb/internal/errors"
	"quantb/internal/models"
	"quantb/internal/screener"
	"quantb/internal/store"
	"quantb/internal/stream"
)

// Chatter runs assistant turns.
type Chatter interface {
	Respond(ctx context.Context, history []models.Message) (*chat.Reply, error)
	Stream(ctx context.Context, history []models.Message, sink stream.Sink) (*chat.Reply, error)
}

// Screener runs screening requests.
type Screener interface {
	Screen(ctx context.Context, prompt string) (*screener.Result, error)
}

// Server holds the HTTP API dependencies.
type Server struct {
	chat     Chatter
	screener Screener
	convs    store.ConversationRepository
	logger   zerolog.Logger
	now      func() time.Time
	newID    func() string
}

// New creates a Server. scr may be nil, which disables /api/screen.
func New(c Chatter, scr Screener, convs store.ConversationRepository, logger zerolog.Logger) *Server {
	return &Server{
		chat:     c,
		screener: scr,
		convs:    convs,
		logger:   logger.With().Str("component", "server").Logger(),
		now:      time.Now,
		newID:    newID,
	}
}

// Handler returns the routed API handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("GET /api/conversations", s.handleListConversations)
	mux.HandleFunc("GET /api/conversations/{id}", s.handleGetConversation)
	mux.HandleFunc("DELETE /api/conversations/{id}", s.handleDeleteConversation)
	mux.HandleFunc("POST /api/screen", s.handleScreen)

	return chain(mux, s.withRecover, s.withLogging, withCORS)
}

// Run serves the API on cfg.Addr until ctx is cancelled, then drains
// in-flight requests.
func (s *Server) Run(ctx context.Context, cfg config.ServerConfig) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: cfg.ReadTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		// Streaming responses outlive any fixed write deadline; zero disables it.
		WriteTimeout: cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", cfg.Addr).Msg("HTTP API listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info().Msg("Shutting down HTTP API")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type errorBody struct {
	Error *apperrors.APIError `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := apperrors.ToAPIError(err)
	event := s.logger.Warn()
	if apiErr.Status >= http.StatusInternalServerError {
		event = s.logger.Error()
	}
	event.Err(err).
		Str("path", r.URL.Path).
		Str("code", apiErr.Code).
		Msg("Request failed")
	writeJSON(w, apiErr.Status, errorBody{Error: apiErr})
}

func badRequest(field string, value any, msg string) error {
	return apperrors.NewValidationError(field, value, msg)
}
