package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"quantb/internal/models"
)

// SQLiteStore implements Store using SQLite. Components, quick actions and
// metadata are stored as JSON columns.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for concurrent access
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT NOT NULL,
		conversation_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		metadata_json TEXT,
		components_json TEXT,
		quick_actions_json TEXT,
		created_at DATETIME NOT NULL,
		PRIMARY KEY (conversation_id, id),
		FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS holdings (
		symbol TEXT PRIMARY KEY,
		shares REAL NOT NULL,
		average_cost REAL NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_conversations_updated_at ON conversations(updated_at);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation_seq ON messages(conversation_id, seq);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// ============================================================================
// Conversations
// ============================================================================

// Save replaces the conversation and all its messages in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, conv *models.Conversation) error {
	if err := validateConversation(conv); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversations (id, title, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET title = excluded.title, updated_at = excluded.updated_at
	`, conv.ID, conv.Title, conv.CreatedAt.UTC(), conv.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save conversation: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, conv.ID); err != nil {
		return fmt.Errorf("failed to clear messages: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages (id, conversation_id, seq, role, content, metadata_json, components_json, quick_actions_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare message insert: %w", err)
	}
	defer stmt.Close()

	for i, m := range conv.Messages {
		meta, err := marshalNullable(m.Metadata, m.Metadata == nil)
		if err != nil {
			return err
		}
		comps, err := marshalNullable(m.Components, len(m.Components) == 0)
		if err != nil {
			return err
		}
		actions, err := marshalNullable(m.QuickActions, len(m.QuickActions) == 0)
		if err != nil {
			return err
		}

		if _, err := stmt.ExecContext(ctx, m.ID, conv.ID, i, m.Role, m.Content, meta, comps, actions, m.Timestamp.UTC()); err != nil {
			return fmt.Errorf("failed to save message %s: %w", m.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit conversation: %w", err)
	}
	return nil
}

// Load retrieves a conversation with its messages in order.
func (s *SQLiteStore) Load(ctx context.Context, id string) (*models.Conversation, error) {
	conv := &models.Conversation{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, created_at, updated_at FROM conversations WHERE id = ?
	`, id).Scan(&conv.ID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, content, metadata_json, components_json, quick_actions_json, created_at
		FROM messages WHERE conversation_id = ? ORDER BY seq ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			m                    models.Message
			meta, comps, actions sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.Role, &m.Content, &meta, &comps, &actions, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if meta.Valid {
			m.Metadata = &models.MessageMetadata{}
			if err := json.Unmarshal([]byte(meta.String), m.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode metadata of %s: %w", m.ID, err)
			}
		}
		if comps.Valid {
			if err := json.Unmarshal([]byte(comps.String), &m.Components); err != nil {
				return nil, fmt.Errorf("failed to decode components of %s: %w", m.ID, err)
			}
		}
		if actions.Valid {
			if err := json.Unmarshal([]byte(actions.String), &m.QuickActions); err != nil {
				return nil, fmt.Errorf("failed to decode quick actions of %s: %w", m.ID, err)
			}
		}
		conv.Messages = append(conv.Messages, m)
	}

	return conv, rows.Err()
}

// List returns conversation summaries, most recently updated first.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]ConversationSummary, error) {
	query := `
		SELECT c.id, c.title, c.created_at, c.updated_at, COUNT(m.id)
		FROM conversations c
		LEFT JOIN messages m ON m.conversation_id = c.id
		GROUP BY c.id
		ORDER BY c.updated_at DESC, c.id ASC`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	out := []ConversationSummary{}
	for rows.Next() {
		var c ConversationSummary
		if err := rows.Scan(&c.ID, &c.Title, &c.CreatedAt, &c.UpdatedAt, &c.MessageCount); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		out = append(out, c)
	}

	return out, rows.Err()
}

// Delete removes a conversation and, by cascade, its messages.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return notFound(id)
	}
	return nil
}

// ============================================================================
// Holdings
// ============================================================================

// ListHoldings returns all holdings ordered by symbol.
func (s *SQLiteStore) ListHoldings(ctx context.Context) ([]models.Holding, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, shares, average_cost, updated_at FROM holdings ORDER BY symbol ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query holdings: %w", err)
	}
	defer rows.Close()

	out := []models.Holding{}
	for rows.Next() {
		var h models.Holding
		if err := rows.Scan(&h.Symbol, &h.Shares, &h.AverageCost, &h.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}
		out = append(out, h)
	}

	return out, rows.Err()
}

// SaveHolding upserts a holding by symbol. Zero shares deletes it.
func (s *SQLiteStore) SaveHolding(ctx context.Context, h models.Holding) error {
	h.Symbol = strings.ToUpper(strings.TrimSpace(h.Symbol))
	if err := validateHolding(h); err != nil {
		return err
	}

	if h.Shares == 0 {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM holdings WHERE symbol = ?`, h.Symbol); err != nil {
			return fmt.Errorf("failed to delete holding: %w", err)
		}
		return nil
	}

	if h.UpdatedAt.IsZero() {
		h.UpdatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO holdings (symbol, shares, average_cost, updated_at)
		VALUES (?, ?, ?, ?)
	`, h.Symbol, h.Shares, h.AverageCost, h.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save holding: %w", err)
	}
	return nil
}

func marshalNullable(v any, empty bool) (sql.NullString, error) {
	if empty {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode column: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}
