package export

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/deepresearch/chat"
)

// Markdown exports a chat as Markdown with YAML front matter. Research
// reports carry inline HTML (citation links, credibility pills); it is
// converted back to plain Markdown.
type Markdown struct {
	conv *converter.Converter
}

// NewMarkdown returns the Markdown exporter.
func NewMarkdown() *Markdown {
	return &Markdown{
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

func (*Markdown) Name() string        { return "md" }
func (*Markdown) ContentType() string { return "text/markdown; charset=utf-8" }
func (*Markdown) Ext() string         { return "md" }

type frontMatter struct {
	Title    string    `yaml:"title"`
	Query    string    `yaml:"query,omitempty"`
	ChatID   string    `yaml:"chat_id"`
	Created  time.Time `yaml:"created"`
	Messages int       `yaml:"messages"`
}

// Export writes c to w.
func (m *Markdown) Export(ctx context.Context, w io.Writer, c *chat.Chat) error {
	fm, err := yaml.Marshal(frontMatter{
		Title:    c.Title,
		Query:    c.Query,
		ChatID:   c.ID,
		Created:  c.CreatedAt.UTC(),
		Messages: len(c.Messages),
	})
	if err != nil {
		return fmt.Errorf("export md: front matter: %w", err)
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.Write(fm)
	b.WriteString("---\n\n")
	fmt.Fprintf(&b, "# %s\n", c.Title)

	for _, msg := range c.Messages {
		if err := ctx.Err(); err != nil {
			return err
		}
		body := msg.Content
		if msg.IsResearch {
			body, err = m.reportMarkdown(body)
			if err != nil {
				return fmt.Errorf("export md: message %s: %w", msg.ID, err)
			}
		}
		fmt.Fprintf(&b, "\n## %s\n\n_%s_\n\n%s\n", speaker(msg), msg.CreatedAt.UTC().Format(time.RFC3339), strings.TrimSpace(body))
	}

	_, err = io.WriteString(w, b.String())
	return err
}

// reportMarkdown converts the HTML fragments of a formatted report to
// Markdown while keeping the Markdown around them. The converter is run
// per line so headings and lists written as Markdown are left as is.
func (m *Markdown) reportMarkdown(report string) (string, error) {
	lines := strings.Split(report, "\n")
	for i, line := range lines {
		if !strings.Contains(line, "<") {
			continue
		}
		prefix, rest := markdownPrefix(line)
		out, err := m.conv.ConvertString(rest)
		if err != nil {
			return "", err
		}
		lines[i] = prefix + strings.TrimSpace(out)
	}
	return strings.Join(lines, "\n"), nil
}

// markdownPrefix splits a leading "N. ", "- " or "#.. " marker from line;
// the converter would otherwise escape it.
func markdownPrefix(line string) (string, string) {
	trimmed := strings.TrimLeft(line, " ")
	indent := line[:len(line)-len(trimmed)]
	if strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* ") {
		return indent + trimmed[:2], trimmed[2:]
	}
	if h := strings.IndexFunc(trimmed, func(r rune) bool { return r != '#' }); h > 0 && trimmed[h] == ' ' {
		return indent + trimmed[:h+1], trimmed[h+1:]
	}
	return indent, trimmed
}
