// Package export writes chats as downloadable documents.
package export

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/hazyhaar/deepresearch/chat"
)

// Exporter writes one chat in one document format.
type Exporter interface {
	Name() string
	ContentType() string
	Ext() string
	Export(ctx context.Context, w io.Writer, c *chat.Chat) error
}

// Registry maps format names to exporters.
type Registry struct {
	byName map[string]Exporter
}

// NewRegistry returns a registry holding exps, keyed by Name.
func NewRegistry(exps ...Exporter) *Registry {
	r := &Registry{byName: make(map[string]Exporter, len(exps))}
	for _, e := range exps {
		r.byName[e.Name()] = e
	}
	return r
}

// Get returns the exporter for name ("md", "html").
func (r *Registry) Get(name string) (Exporter, error) {
	e, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("export: unsupported format %q (have %s)", name, strings.Join(r.Names(), ", "))
	}
	return e, nil
}

// Names lists the registered formats in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

var unsafeName = regexp.MustCompile(`[^a-z0-9]+`)

// Filename builds a download name from the chat title and creation date,
// e.g. "quantum-computing-2025-03-10.md".
func Filename(c *chat.Chat, ext string) string {
	base := unsafeName.ReplaceAllString(strings.ToLower(strings.TrimSuffix(c.Title, "...")), "-")
	base = strings.Trim(base, "-")
	if len(base) > 60 {
		base = strings.TrimRight(base[:60], "-")
	}
	if base == "" {
		base = "chat"
	}
	created := c.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	return fmt.Sprintf("%s-%s.%s", base, created.UTC().Format("2006-01-02"), strings.TrimPrefix(ext, "."))
}

func speaker(m *chat.Message) string {
	switch {
	case m.Role == "user":
		return "You"
	case m.IsResearch:
		return "Research report"
	default:
		return "Assistant"
	}
}
