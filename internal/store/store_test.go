package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	apperrors "quantb/internal/errors"
	"quantb/internal/models"
)

func newSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "quantb.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// backends runs fn against every Store implementation.
func backends(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("memory", func(t *testing.T) { fn(t, NewMemoryStore()) })
	t.Run("sqlite", func(t *testing.T) { fn(t, newSQLite(t)) })
}

func sampleConversation(id string, at time.Time) *models.Conversation {
	conv := models.NewConversation(id, at)
	conv.Append(models.Message{
		ID:        id + "-u1",
		Role:      models.RoleUser,
		Content:   "How is AAPL doing today compared to the rest of the market overall?",
		Timestamp: at,
	})
	conv.Append(models.Message{
		ID:      id + "-a1",
		Role:    models.RoleAssistant,
		Content: "AAPL is up 1.2%.",
		Metadata: &models.MessageMetadata{
			Symbols:   []string{"AAPL"},
			Intent:    models.IntentResearch,
			ToolsUsed: []string{"get_stock_quote"},
			Layout:    models.LayoutInline,
		},
		Components: []models.SmartComponent{{
			ID:          "c1",
			Type:        models.ComponentStockQuote,
			Data:        json.RawMessage(`{"symbol":"AAPL","currentPrice":190.2}`),
			Priority:    9,
			Interactive: true,
		}},
		QuickActions: []models.QuickAction{{ID: "q1", Label: "News", Prompt: "What is the latest news on AAPL?"}},
		Timestamp:    at.Add(time.Second),
	})
	return conv
}

func TestConversationRoundTrip(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		at := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)
		conv := sampleConversation("conv-1", at)

		if err := s.Save(ctx, conv); err != nil {
			t.Fatalf("Save: %v", err)
		}
		got, err := s.Load(ctx, "conv-1")
		if err != nil {
			t.Fatalf("Load: %v", err)
		}

		if got.Title != "How is AAPL doing today compared to the rest of th" {
			t.Errorf("title = %q", got.Title)
		}
		if len(got.Messages) != 2 {
			t.Fatalf("expected 2 messages, got %d", len(got.Messages))
		}
		a := got.Messages[1]
		if a.Metadata == nil || !reflect.DeepEqual(a.Metadata.Symbols, []string{"AAPL"}) {
			t.Errorf("metadata = %+v", a.Metadata)
		}
		if len(a.Components) != 1 || a.Components[0].Type != models.ComponentStockQuote || a.Components[0].Priority != 9 {
			t.Errorf("components = %+v", a.Components)
		}
		var data map[string]any
		if err := json.Unmarshal(a.Components[0].Data, &data); err != nil || data["symbol"] != "AAPL" {
			t.Errorf("component data = %s", a.Components[0].Data)
		}
		if len(a.QuickActions) != 1 || a.QuickActions[0].Label != "News" {
			t.Errorf("quick actions = %+v", a.QuickActions)
		}
		if !a.Timestamp.Equal(at.Add(time.Second)) {
			t.Errorf("timestamp = %v", a.Timestamp)
		}
		if got.Messages[0].Metadata != nil {
			t.Error("user message must not gain metadata")
		}
	})
}

func TestSaveReplacesMessages(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		conv := sampleConversation("conv-2", time.Now())
		if err := s.Save(ctx, conv); err != nil {
			t.Fatal(err)
		}

		conv.Messages = conv.Messages[:1]
		conv.Title = "Renamed"
		if err := s.Save(ctx, conv); err != nil {
			t.Fatal(err)
		}

		got, err := s.Load(ctx, "conv-2")
		if err != nil {
			t.Fatal(err)
		}
		if got.Title != "Renamed" || len(got.Messages) != 1 {
			t.Errorf("unexpected conversation %q with %d messages", got.Title, len(got.Messages))
		}
	})
}

func TestListOrdersByUpdatedAt(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		for i, id := range []string{"old", "new", "mid"} {
			conv := sampleConversation(id, base.Add(time.Duration([]int{0, 2, 1}[i])*time.Hour))
			if err := s.Save(ctx, conv); err != nil {
				t.Fatal(err)
			}
		}

		list, err := s.List(ctx, 0)
		if err != nil {
			t.Fatal(err)
		}
		var ids []string
		for _, c := range list {
			ids = append(ids, c.ID)
			if c.MessageCount != 2 {
				t.Errorf("%s: message count %d", c.ID, c.MessageCount)
			}
		}
		if !reflect.DeepEqual(ids, []string{"new", "mid", "old"}) {
			t.Errorf("order = %v", ids)
		}

		limited, err := s.List(ctx, 1)
		if err != nil || len(limited) != 1 || limited[0].ID != "new" {
			t.Errorf("limited list = %+v, %v", limited, err)
		}
	})
}

func TestDeleteAndNotFound(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		if err := s.Save(ctx, sampleConversation("gone", time.Now())); err != nil {
			t.Fatal(err)
		}
		if err := s.Delete(ctx, "gone"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if _, err := s.Load(ctx, "gone"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Load after delete: %v", err)
		}
		if err := s.Delete(ctx, "gone"); !errors.Is(err, ErrNotFound) {
			t.Errorf("second Delete: %v", err)
		}
		if apperrors.ToAPIError(ErrNotFound).Code != apperrors.CodeNotFound {
			t.Error("ErrNotFound must map to not_found")
		}
	})
}

func TestSaveRejectsInvalidConversations(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		if err := s.Save(ctx, &models.Conversation{}); !errors.Is(err, apperrors.ErrInputValidation) {
			t.Errorf("missing id: %v", err)
		}

		conv := sampleConversation("dup", time.Now())
		conv.Messages[1].ID = conv.Messages[0].ID
		if err := s.Save(ctx, conv); !errors.Is(err, apperrors.ErrInputValidation) {
			t.Errorf("duplicate message id: %v", err)
		}
	})
}

func TestHoldings(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		for _, h := range []models.Holding{
			{Symbol: "msft", Shares: 5, AverageCost: 300},
			{Symbol: "AAPL", Shares: 10, AverageCost: 150},
		} {
			if err := s.SaveHolding(ctx, h); err != nil {
				t.Fatalf("SaveHolding: %v", err)
			}
		}
		if err := s.SaveHolding(ctx, models.Holding{Symbol: "AAPL", Shares: 12, AverageCost: 155}); err != nil {
			t.Fatal(err)
		}

		got, err := s.ListHoldings(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 2 || got[0].Symbol != "AAPL" || got[0].Shares != 12 || got[1].Symbol != "MSFT" {
			t.Fatalf("holdings = %+v", got)
		}

		if err := s.SaveHolding(ctx, models.Holding{Symbol: "MSFT"}); err != nil {
			t.Fatal(err)
		}
		got, _ = s.ListHoldings(ctx)
		if len(got) != 1 {
			t.Errorf("zero shares must remove the holding: %+v", got)
		}

		if err := s.SaveHolding(ctx, models.Holding{Symbol: "X", Shares: -1}); !errors.Is(err, apperrors.ErrInputValidation) {
			t.Errorf("negative shares: %v", err)
		}
	})
}

func TestOpenSelectsBackend(t *testing.T) {
	s, err := Open(configFor("memory", ""))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*MemoryStore); !ok {
		t.Errorf("expected MemoryStore, got %T", s)
	}

	s, err = Open(configFor("sqlite", filepath.Join(t.TempDir(), "db", "q.db")))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if _, ok := s.(*SQLiteStore); !ok {
		t.Errorf("expected SQLiteStore, got %T", s)
	}

	if _, err := Open(configFor("redis", "")); !errors.Is(err, apperrors.ErrConfigInvalid) {
		t.Errorf("unknown backend: %v", err)
	}
}

// Property: any conversation saved to SQLite loads back with the same
// message ids, roles, contents and component types, in order.
func TestProperty_ConversationRoundTripConsistency(t *testing.T) {
	s := newSQLite(t)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	typeGen := gen.OneConstOf(
		models.ComponentStockQuote, models.ComponentNewsSummary,
		models.ComponentTechnicalAnalysis, models.ComponentMarketAnalysis,
	)

	n := 0
	properties.Property("save then load preserves messages", prop.ForAll(
		func(contents []string, types []models.ComponentType) bool {
			ctx := context.Background()
			n++
			conv := models.NewConversation(fmt.Sprintf("prop-%d", n), time.Now())
			for i, c := range contents {
				m := models.Message{ID: fmt.Sprintf("m%d", i), Role: models.RoleUser, Content: c, Timestamp: time.Now()}
				if i%2 == 1 {
					m.Role = models.RoleAssistant
					for j, typ := range types {
						m.Components = append(m.Components, models.SmartComponent{ID: fmt.Sprintf("c%d", j), Type: typ, Priority: j})
					}
				}
				conv.Append(m)
			}

			if err := s.Save(ctx, conv); err != nil {
				return false
			}
			got, err := s.Load(ctx, conv.ID)
			if err != nil || len(got.Messages) != len(conv.Messages) {
				return false
			}
			for i := range conv.Messages {
				want, have := conv.Messages[i], got.Messages[i]
				if want.ID != have.ID || want.Role != have.Role || want.Content != have.Content {
					return false
				}
				if len(want.Components) != len(have.Components) {
					return false
				}
				for j := range want.Components {
					if want.Components[j].Type != have.Components[j].Type {
						return false
					}
				}
			}
			return true
		},
		gen.SliceOf(gen.AlphaString()),
		gen.SliceOf(typeGen),
	))

	properties.TestingRun(t)
}
