// Package feedback records readers' ratings of assistant replies: helpful
// or not, with an optional comment. A session rates a message at most
// once; rating again replaces the earlier rating.
package feedback

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hazyhaar/deepresearch/dbopen"
	"github.com/hazyhaar/deepresearch/idgen"
)

// MaxComment is the longest comment kept, in runes. Longer comments are
// truncated.
const MaxComment = 2000

var ErrInvalid = errors.New("feedback: invalid rating")

// Schema creates the ratings table. It references chat messages, so it is
// applied after chat.Schema; ratings disappear with their message.
const Schema = `
CREATE TABLE IF NOT EXISTS feedback (
    id         TEXT PRIMARY KEY,
    chat_id    TEXT NOT NULL,
    message_id TEXT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
    session_id TEXT NOT NULL,
    helpful    INTEGER NOT NULL,
    comment    TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,
    UNIQUE (message_id, session_id)
);
CREATE INDEX IF NOT EXISTS idx_feedback_chat ON feedback(chat_id);
`

// Rating is one reader's verdict on one assistant message.
type Rating struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id"`
	MessageID string    `json:"message_id"`
	SessionID string    `json:"session_id"`
	Helpful   bool      `json:"helpful"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Summary counts ratings.
type Summary struct {
	Helpful    int `json:"helpful"`
	NotHelpful int `json:"not_helpful"`
}

// Store persists ratings.
type Store struct {
	db    *sql.DB
	newID idgen.Generator
	now   func() time.Time
}

type Option func(*Store)

func WithIDGenerator(g idgen.Generator) Option { return func(s *Store) { s.newID = g } }
func WithClock(now func() time.Time) Option    { return func(s *Store) { s.now = now } }

// NewStore returns a Store over db. The caller applies Schema.
func NewStore(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db, newID: idgen.Prefixed("fb_", idgen.Default), now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Submit stores r, replacing any earlier rating of the same message by the
// same session. ID and CreatedAt are assigned.
func (s *Store) Submit(ctx context.Context, r *Rating) error {
	if r.ChatID == "" || r.MessageID == "" || r.SessionID == "" {
		return fmt.Errorf("%w: chat, message and session are required", ErrInvalid)
	}
	r.Comment = strings.TrimSpace(r.Comment)
	if utf8.RuneCountInString(r.Comment) > MaxComment {
		r.Comment = string([]rune(r.Comment)[:MaxComment])
	}
	r.ID = s.newID()
	r.CreatedAt = s.now()

	_, err := dbopen.Exec(ctx, s.db,
		`INSERT INTO feedback (id, chat_id, message_id, session_id, helpful, comment, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (message_id, session_id) DO UPDATE SET
		   id = excluded.id, helpful = excluded.helpful,
		   comment = excluded.comment, created_at = excluded.created_at`,
		r.ID, r.ChatID, r.MessageID, r.SessionID, r.Helpful, r.Comment, r.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("feedback: submit: %w", err)
	}
	return nil
}

// ForChat returns the ratings of a chat's messages, oldest first.
func (s *Store) ForChat(ctx context.Context, chatID string) ([]Rating, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_id, message_id, session_id, helpful, comment, created_at
		 FROM feedback WHERE chat_id = ? ORDER BY created_at, id`, chatID)
	if err != nil {
		return nil, fmt.Errorf("feedback: list: %w", err)
	}
	defer rows.Close()
	var out []Rating
	for rows.Next() {
		var r Rating
		var created int64
		if err := rows.Scan(&r.ID, &r.ChatID, &r.MessageID, &r.SessionID, &r.Helpful, &r.Comment, &created); err != nil {
			return nil, fmt.Errorf("feedback: scan: %w", err)
		}
		r.CreatedAt = time.UnixMilli(created)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Summarize counts every stored rating.
func (s *Store) Summarize(ctx context.Context) (Summary, error) {
	var sum Summary
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(helpful), 0), COALESCE(SUM(1 - helpful), 0) FROM feedback`).
		Scan(&sum.Helpful, &sum.NotHelpful)
	if err != nil {
		return Summary{}, fmt.Errorf("feedback: summary: %w", err)
	}
	return sum, nil
}
