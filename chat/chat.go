// Package chat stores research conversations in SQLite. A chat belongs to
// one browser session, lives for 24 hours, and keeps at most MaxHistory
// messages. The first user message of a chat triggers a research report;
// later ones are answered conversationally.
package chat

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// MaxHistory is the number of messages kept per chat.
	MaxHistory = 50

	// PreviewLength is the rune length of chat previews in listings.
	PreviewLength = 100

	// Expiry is how long a chat is kept after creation.
	Expiry = 24 * time.Hour

	// LegacySession owns chats stored without a session.
	LegacySession = "legacy_session"

	// DefaultTitle names a chat until its first message.
	DefaultTitle = "New Chat"
)

var ErrNotFound = errors.New("chat: not found")

// Chat is a conversation. Messages is filled by Store.Get only.
type Chat struct {
	ID        string     `json:"id"`
	SessionID string     `json:"session_id"`
	Title     string     `json:"title"`
	Query     string     `json:"query"`
	FirstDone bool       `json:"first_done"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	Messages  []*Message `json:"messages,omitempty"`
}

// Message is one turn. IsResearch marks assistant messages holding a
// formatted research report.
type Message struct {
	ID         string    `json:"id"`
	ChatID     string    `json:"chat_id"`
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	IsResearch bool      `json:"is_research"`
	CreatedAt  time.Time `json:"created_at"`
}

// Title derives a chat title from its first query: the query itself when
// it has at most three words, otherwise the first three words and "...".
func Title(query string) string {
	words := strings.Fields(query)
	if len(words) == 0 {
		return DefaultTitle
	}
	if len(words) <= 3 {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:3], " ") + "..."
}

// Preview truncates s to PreviewLength runes, marking the cut with "...".
func Preview(s string) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= PreviewLength {
		return s
	}
	r := []rune(s)
	return string(r[:PreviewLength]) + "..."
}

// Age renders how long ago t was: minutes under an hour, hours beyond.
func Age(t, now time.Time) string {
	d := now.Sub(t)
	if d < time.Hour {
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	}
	return fmt.Sprintf("%dh ago", int(d.Hours()))
}
