// Package store provides durable conversation and chat-log persistence.
//
// The schema is two append-only tables: conversations (identity is a
// unique human-readable name) and chats (the ordered message log).
// Rows are never updated or deleted; ordering is by timestamp with the
// autoincrement row id breaking ties, so interleaved writes within the
// same clock tick still read back in insertion order.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Message roles. Every chat row carries exactly one of these.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Conversation is a named, persisted thread of messages.
type Conversation struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is one persisted turn within a conversation.
//
// Field presence follows the role: ToolCallID and ToolName are set only
// on tool rows; ToolCalls holds serialized JSON and is set only on
// assistant rows that requested tools. Empty strings read back for
// absent fields.
type Message struct {
	Role       string    `json:"role"`
	Content    string    `json:"content,omitempty"`
	ToolCallID string    `json:"tool_call_id,omitempty"`
	ToolName   string    `json:"tool_name,omitempty"`
	ToolCalls  string    `json:"tool_calls,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Store persists conversations and their chat logs in SQLite.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database at path and runs migrations.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// NewWithDB creates a store using an existing database connection.
// The caller retains ownership of db.
func NewWithDB(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// migrate creates the database schema. Idempotent.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL UNIQUE,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chats (
		id                INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation_name TEXT NOT NULL,
		role              TEXT NOT NULL,
		content           TEXT,
		tool_call_id      TEXT,
		tool_name         TEXT,
		tool_calls        TEXT,
		timestamp         TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chats_conversation ON chats(conversation_name, timestamp, id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// FindConversation looks up a conversation by name.
// Returns (nil, nil) when no conversation has that name.
func (s *Store) FindConversation(name string) (*Conversation, error) {
	row := s.db.QueryRow(`
		SELECT id, name, created_at FROM conversations WHERE name = ?
	`, name)

	var conv Conversation
	if err := row.Scan(&conv.ID, &conv.Name, &conv.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find conversation: %w", err)
	}
	return &conv, nil
}

// CreateConversation inserts a new conversation. The name must be
// non-empty and unused; a collision returns a DuplicateNameError so
// the caller can re-resolve naming.
func (s *Store) CreateConversation(name string) (*Conversation, error) {
	if name == "" {
		return nil, fmt.Errorf("conversation name must not be empty")
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate id: %w", err)
	}
	now := time.Now().UTC()

	_, err = s.db.Exec(`
		INSERT INTO conversations (id, name, created_at) VALUES (?, ?, ?)
	`, id.String(), name, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &DuplicateNameError{Name: name}
		}
		return nil, fmt.Errorf("create conversation: %w", err)
	}

	return &Conversation{ID: id.String(), Name: name, CreatedAt: now}, nil
}

// AppendMessage appends a message to a conversation's chat log. The
// append is a single atomic insert; the row's position is assigned by
// its timestamp and autoincrement id.
func (s *Store) AppendMessage(conversationName string, m Message) error {
	if m.Role == RoleAssistant && m.Content == "" && m.ToolCalls == "" {
		return fmt.Errorf("assistant message must carry content or tool calls")
	}

	ts := m.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	_, err := s.db.Exec(`
		INSERT INTO chats (conversation_name, role, content, tool_call_id, tool_name, tool_calls, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, conversationName, m.Role,
		nullIfEmpty(m.Content), nullIfEmpty(m.ToolCallID),
		nullIfEmpty(m.ToolName), nullIfEmpty(m.ToolCalls), ts)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// LoadMessages returns a conversation's full chat log in order.
func (s *Store) LoadMessages(conversationName string) ([]Message, error) {
	rows, err := s.db.Query(`
		SELECT role, content, tool_call_id, tool_name, tool_calls, timestamp
		FROM chats
		WHERE conversation_name = ?
		ORDER BY timestamp, id
	`, conversationName)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		var content, toolCallID, toolName, toolCalls sql.NullString
		if err := rows.Scan(&m.Role, &content, &toolCallID, &toolName, &toolCalls, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Content = content.String
		m.ToolCallID = toolCallID.String
		m.ToolName = toolName.String
		m.ToolCalls = toolCalls.String
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}

	return messages, nil
}

// ListConversationNames returns all distinct non-empty conversation names.
func (s *Store) ListConversationNames() ([]string, error) {
	rows, err := s.db.Query(`
		SELECT name FROM conversations WHERE name != '' ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	return names, nil
}

// nullIfEmpty maps "" to NULL so absent fields round-trip as NULL rows,
// matching the wire format where the fields are omitted entirely.
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
