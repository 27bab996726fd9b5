package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/deepresearch/dbopen"
	"github.com/hazyhaar/deepresearch/idgen"
)

// Schema creates the chat tables. Times are Unix milliseconds.
const Schema = `
CREATE TABLE IF NOT EXISTS chats (
    id          TEXT PRIMARY KEY,
    session_id  TEXT NOT NULL DEFAULT 'legacy_session',
    title       TEXT NOT NULL DEFAULT 'New Chat',
    query       TEXT NOT NULL DEFAULT '',
    first_done  INTEGER NOT NULL DEFAULT 0,
    created_at  INTEGER NOT NULL,
    updated_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chats_session ON chats(session_id, created_at DESC);

CREATE TABLE IF NOT EXISTS messages (
    seq         INTEGER PRIMARY KEY AUTOINCREMENT,
    id          TEXT NOT NULL UNIQUE,
    chat_id     TEXT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
    role        TEXT NOT NULL,
    content     TEXT NOT NULL,
    is_research INTEGER NOT NULL DEFAULT 0,
    created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages(chat_id, seq);
`

// Store persists chats. Safe for concurrent use.
type Store struct {
	db         *sql.DB
	newID      idgen.Generator
	now        func() time.Time
	logger     *slog.Logger
	maxHistory int
	expiry     time.Duration
}

// Option configures a Store.
type Option func(*Store)

func WithIDGenerator(g idgen.Generator) Option { return func(s *Store) { s.newID = g } }
func WithClock(now func() time.Time) Option    { return func(s *Store) { s.now = now } }
func WithLogger(l *slog.Logger) Option         { return func(s *Store) { s.logger = l } }

// WithMaxHistory overrides MaxHistory.
func WithMaxHistory(n int) Option { return func(s *Store) { s.maxHistory = n } }

// WithExpiry overrides Expiry.
func WithExpiry(d time.Duration) Option { return func(s *Store) { s.expiry = d } }

// NewStore returns a Store over db. The caller applies Schema.
func NewStore(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:         db,
		newID:      idgen.Default,
		now:        time.Now,
		logger:     slog.Default(),
		maxHistory: MaxHistory,
		expiry:     Expiry,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) cutoff() int64 { return s.now().Add(-s.expiry).UnixMilli() }

// Create starts an empty chat for sessionID. An empty session is stored as
// LegacySession.
func (s *Store) Create(ctx context.Context, sessionID string) (*Chat, error) {
	if sessionID == "" {
		sessionID = LegacySession
	}
	now := s.now()
	c := &Chat{
		ID:        s.newID(),
		SessionID: sessionID,
		Title:     DefaultTitle,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := dbopen.Exec(ctx, s.db,
		`INSERT INTO chats (id, session_id, title, query, first_done, created_at, updated_at)
		 VALUES (?, ?, ?, '', 0, ?, ?)`,
		c.ID, c.SessionID, c.Title, now.UnixMilli(), now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("chat: create: %w", err)
	}
	s.logger.Info("chat: created", "chat_id", c.ID, "session", shortID(sessionID))
	return c, nil
}

const chatColumns = `id, session_id, title, query, first_done, created_at, updated_at`

func scanChat(row interface{ Scan(...any) error }) (*Chat, error) {
	var c Chat
	var created, updated int64
	if err := row.Scan(&c.ID, &c.SessionID, &c.Title, &c.Query, &c.FirstDone, &created, &updated); err != nil {
		return nil, err
	}
	c.CreatedAt = time.UnixMilli(created)
	c.UpdatedAt = time.UnixMilli(updated)
	return &c, nil
}

// Get loads a live chat with its messages in order.
func (s *Store) Get(ctx context.Context, id string) (*Chat, error) {
	c, err := scanChat(s.db.QueryRowContext(ctx,
		`SELECT `+chatColumns+` FROM chats WHERE id = ? AND created_at > ?`, id, s.cutoff()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("chat: get %s: %w", id, err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_id, role, content, is_research, created_at
		 FROM messages WHERE chat_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("chat: messages %s: %w", id, err)
	}
	defer rows.Close()
	for rows.Next() {
		var m Message
		var created int64
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Role, &m.Content, &m.IsResearch, &created); err != nil {
			return nil, fmt.Errorf("chat: scan message: %w", err)
		}
		m.CreatedAt = time.UnixMilli(created)
		c.Messages = append(c.Messages, &m)
	}
	return c, rows.Err()
}

// ListBySession returns the live chats of sessionID, newest first, without
// messages. Expired chats are purged first.
func (s *Store) ListBySession(ctx context.Context, sessionID string) ([]*Chat, error) {
	if _, err := s.PurgeExpired(ctx); err != nil {
		s.logger.Warn("chat: purge before list", "error", err)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+chatColumns+` FROM chats
		 WHERE session_id = ? AND created_at > ?
		 ORDER BY created_at DESC, rowid DESC`, sessionID, s.cutoff())
	if err != nil {
		return nil, fmt.Errorf("chat: list: %w", err)
	}
	defer rows.Close()

	var out []*Chat
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, fmt.Errorf("chat: scan: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Latest returns the newest live chat of sessionID, without messages.
func (s *Store) Latest(ctx context.Context, sessionID string) (*Chat, error) {
	c, err := scanChat(s.db.QueryRowContext(ctx,
		`SELECT `+chatColumns+` FROM chats
		 WHERE session_id = ? AND created_at > ?
		 ORDER BY created_at DESC, rowid DESC LIMIT 1`, sessionID, s.cutoff()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("chat: latest: %w", err)
	}
	return c, nil
}

// AppendMessage adds m to chat chatID and drops the oldest messages beyond
// the history limit. ID and CreatedAt are assigned when empty.
func (s *Store) AppendMessage(ctx context.Context, chatID string, m *Message) error {
	if m.Role == "" {
		return errors.New("chat: message role required")
	}
	if m.ID == "" {
		m.ID = s.newID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}
	m.ChatID = chatID

	return dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE chats SET updated_at = ? WHERE id = ? AND created_at > ?`,
			m.CreatedAt.UnixMilli(), chatID, s.cutoff())
		if err != nil {
			return fmt.Errorf("chat: touch: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages (id, chat_id, role, content, is_research, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			m.ID, chatID, m.Role, m.Content, m.IsResearch, m.CreatedAt.UnixMilli()); err != nil {
			return fmt.Errorf("chat: insert message: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM messages WHERE chat_id = ? AND seq NOT IN (
			   SELECT seq FROM messages WHERE chat_id = ? ORDER BY seq DESC LIMIT ?)`,
			chatID, chatID, s.maxHistory); err != nil {
			return fmt.Errorf("chat: trim history: %w", err)
		}
		return nil
	})
}

// UpdateTitle records query as the chat's research question and derives
// the title from it. It returns the new title.
func (s *Store) UpdateTitle(ctx context.Context, chatID, query string) (string, error) {
	title := Title(query)
	res, err := dbopen.Exec(ctx, s.db,
		`UPDATE chats SET title = ?, query = ?, updated_at = ? WHERE id = ?`,
		title, query, s.now().UnixMilli(), chatID)
	if err != nil {
		return "", fmt.Errorf("chat: update title: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return "", ErrNotFound
	}
	return title, nil
}

// MarkFirstDone records that the chat's research report was delivered.
func (s *Store) MarkFirstDone(ctx context.Context, chatID string) error {
	res, err := dbopen.Exec(ctx, s.db,
		`UPDATE chats SET first_done = 1, updated_at = ? WHERE id = ?`, s.now().UnixMilli(), chatID)
	if err != nil {
		return fmt.Errorf("chat: mark first done: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a chat and its messages.
func (s *Store) Delete(ctx context.Context, chatID string) error {
	if _, err := dbopen.Exec(ctx, s.db, `DELETE FROM chats WHERE id = ?`, chatID); err != nil {
		return fmt.Errorf("chat: delete: %w", err)
	}
	return nil
}

// PurgeExpired deletes chats older than the expiry with their messages.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := dbopen.Exec(ctx, s.db, `DELETE FROM chats WHERE created_at <= ?`, s.cutoff())
	if err != nil {
		return 0, fmt.Errorf("chat: purge: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.logger.Info("chat: purged expired chats", "count", n)
	}
	return n, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8] + "..."
	}
	return id
}
