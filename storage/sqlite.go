// Package storage provides SQLite persistence for fetched documents and
// conversation transcripts.
//
// Information Hiding:
// - SQLite connection management hidden
// - Schema details encapsulated
// - Thread-safe via sql.DB's built-in connection pooling

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/richinex/marionette/llm"
)

// Document is one archived page fetch.
type Document struct {
	SessionID  string
	URL        string
	Title      string
	Content    string
	HTML       string
	TokenCount int
	CreatedAt  int64
}

// Store persists documents and transcripts in a SQLite database.
// Thread-safe: sql.DB handles connection pooling and concurrent access.
type Store struct {
	db *sql.DB
}

// Open opens or creates a SQLite database at the given path.
// Creates parent directories if they don't exist.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	store := &Store{db: db}
	if err := store.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// OpenInMemory creates an in-memory database (useful for testing).
func OpenInMemory() (*Store, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite: %w", err)
	}

	store := &Store{db: db}
	if err := store.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS documents (
			session_id TEXT NOT NULL,
			url TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			content_html TEXT NOT NULL DEFAULT '',
			token_count INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (session_id, url)
		);

		CREATE INDEX IF NOT EXISTS idx_documents_session
		ON documents(session_id, created_at DESC);

		CREATE TABLE IF NOT EXISTS transcripts (
			session_id TEXT NOT NULL,
			message_index INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			tool_call_id TEXT,
			is_error INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (session_id, message_index)
		);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// SaveDocument stores a fetched document, replacing any earlier fetch of
// the same URL in the same session.
func (s *Store) SaveDocument(ctx context.Context, doc Document) error {
	if doc.CreatedAt == 0 {
		doc.CreatedAt = time.Now().Unix()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO documents
		(session_id, url, title, content, content_html, token_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		doc.SessionID,
		doc.URL,
		doc.Title,
		doc.Content,
		doc.HTML,
		doc.TokenCount,
		doc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}
	return nil
}

// Documents loads all documents for a session, newest first.
func (s *Store) Documents(ctx context.Context, sessionID string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, url, title, content, content_html, token_count, created_at
		FROM documents
		WHERE session_id = ?
		ORDER BY created_at DESC`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	documents := []Document{} // Start with empty slice, not nil
	for rows.Next() {
		var doc Document
		err := rows.Scan(
			&doc.SessionID,
			&doc.URL,
			&doc.Title,
			&doc.Content,
			&doc.HTML,
			&doc.TokenCount,
			&doc.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		documents = append(documents, doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating documents: %w", err)
	}

	return documents, nil
}

// DeleteSession removes all documents and transcripts for a session.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	// defer tx.Rollback() is safe even after Commit() - it becomes a no-op
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("failed to delete session documents: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM transcripts WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("failed to delete session transcript: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// SaveTranscript stores a conversation for a session, replacing any
// previously stored transcript.
func (s *Store) SaveTranscript(ctx context.Context, sessionID string, messages []llm.ChatMessage) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM transcripts WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("failed to clear old transcript: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO transcripts (session_id, message_index, role, content, tool_call_id, is_error)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert statement: %w", err)
	}
	defer stmt.Close()

	for i, msg := range messages {
		var toolCallID interface{}
		if msg.ToolCallID != "" {
			toolCallID = msg.ToolCallID
		}
		if _, err := stmt.ExecContext(ctx, sessionID, i, msg.Role, msg.Content, toolCallID, msg.IsError); err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// LoadTranscript loads a stored conversation in order.
// Returns an empty slice if the session has no transcript.
func (s *Store) LoadTranscript(ctx context.Context, sessionID string) ([]llm.ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content, tool_call_id, is_error
		FROM transcripts
		WHERE session_id = ?
		ORDER BY message_index ASC`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transcript: %w", err)
	}
	defer rows.Close()

	messages := []llm.ChatMessage{} // Start with empty slice, not nil
	for rows.Next() {
		var msg llm.ChatMessage
		var toolCallID sql.NullString
		if err := rows.Scan(&msg.Role, &msg.Content, &toolCallID, &msg.IsError); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if toolCallID.Valid {
			msg.ToolCallID = toolCallID.String
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transcript: %w", err)
	}

	return messages, nil
}
