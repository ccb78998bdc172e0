// Package store provides conversation and holdings persistence.
package store

import (
	"context"
	"fmt"
	"time"

	"quantb/internal/config"
	apperrors "quantb/internal/errors"
	"quantb/internal/models"
)

// ErrNotFound is returned for unknown conversation ids.
var ErrNotFound = apperrors.ErrNotFound

// ConversationSummary is a conversation without its messages.
type ConversationSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	MessageCount int       `json:"messageCount"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// ConversationRepository persists conversations.
type ConversationRepository interface {
	// Save replaces the stored conversation with conv.
	Save(ctx context.Context, conv *models.Conversation) error
	Load(ctx context.Context, id string) (*models.Conversation, error)
	// List returns summaries, most recently updated first. A limit <= 0
	// returns all.
	List(ctx context.Context, limit int) ([]ConversationSummary, error)
	Delete(ctx context.Context, id string) error
}

// HoldingsRepository persists the user's positions.
type HoldingsRepository interface {
	ListHoldings(ctx context.Context) ([]models.Holding, error)
	// SaveHolding upserts by symbol; zero shares removes the holding.
	SaveHolding(ctx context.Context, h models.Holding) error
}

// Store is the full persistence surface.
type Store interface {
	ConversationRepository
	HoldingsRepository
	Close() error
}

// Open creates the backend named by cfg.
func Open(cfg config.StoreConfig) (Store, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite", "":
		return NewSQLiteStore(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown store backend %q: %w", cfg.Backend, apperrors.ErrConfigInvalid)
	}
}

func notFound(id string) error {
	return fmt.Errorf("conversation %s: %w", id, ErrNotFound)
}
