package store

import (
	apperrors "quantb/internal/errors"
	"quantb/internal/models"
)

func validateConversation(c *models.Conversation) error {
	if c == nil || c.ID == "" {
		return apperrors.NewValidationError("id", "", "conversation id is required")
	}
	seen := make(map[string]bool, len(c.Messages))
	for _, m := range c.Messages {
		if m.ID == "" {
			return apperrors.NewValidationError("message.id", "", "message id is required")
		}
		if seen[m.ID] {
			return apperrors.NewValidationError("message.id", m.ID, "duplicate message id")
		}
		seen[m.ID] = true
	}
	return nil
}

func validateHolding(h models.Holding) error {
	if h.Symbol == "" {
		return apperrors.NewValidationError("symbol", "", "symbol is required")
	}
	if h.Shares < 0 {
		return apperrors.NewValidationError("shares", h.Shares, "must not be negative")
	}
	if h.AverageCost < 0 {
		return apperrors.NewValidationError("averageCost", h.AverageCost, "must not be negative")
	}
	return nil
}
