package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"quantb/internal/models"
)

// MemoryStore keeps everything in process memory. Values are copied on the
// way in and out so callers cannot mutate stored state.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*models.Conversation
	holdings      map[string]models.Holding
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*models.Conversation),
		holdings:      make(map[string]models.Holding),
	}
}

func (s *MemoryStore) Save(ctx context.Context, conv *models.Conversation) error {
	if err := validateConversation(conv); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[conv.ID] = cloneConversation(conv)
	return nil
}

func (s *MemoryStore) Load(ctx context.Context, id string) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[id]
	if !ok {
		return nil, notFound(id)
	}
	return cloneConversation(conv), nil
}

func (s *MemoryStore) List(ctx context.Context, limit int) ([]ConversationSummary, error) {
	s.mu.RLock()
	out := make([]ConversationSummary, 0, len(s.conversations))
	for _, c := range s.conversations {
		out = append(out, ConversationSummary{
			ID:           c.ID,
			Title:        c.Title,
			MessageCount: len(c.Messages),
			CreatedAt:    c.CreatedAt,
			UpdatedAt:    c.UpdatedAt,
		})
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[id]; !ok {
		return notFound(id)
	}
	delete(s.conversations, id)
	return nil
}

func (s *MemoryStore) ListHoldings(ctx context.Context) ([]models.Holding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Holding, 0, len(s.holdings))
	for _, h := range s.holdings {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (s *MemoryStore) SaveHolding(ctx context.Context, h models.Holding) error {
	h.Symbol = strings.ToUpper(strings.TrimSpace(h.Symbol))
	if err := validateHolding(h); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if h.Shares == 0 {
		delete(s.holdings, h.Symbol)
		return nil
	}
	if h.UpdatedAt.IsZero() {
		h.UpdatedAt = time.Now()
	}
	s.holdings[h.Symbol] = h
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

func cloneConversation(c *models.Conversation) *models.Conversation {
	out := *c
	out.Messages = make([]models.Message, len(c.Messages))
	for i, m := range c.Messages {
		if m.Metadata != nil {
			meta := *m.Metadata
			m.Metadata = &meta
		}
		m.Components = append([]models.SmartComponent(nil), m.Components...)
		m.QuickActions = append([]models.QuickAction(nil), m.QuickActions...)
		out.Messages[i] = m
	}
	return &out
}
