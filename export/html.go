package export

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/hazyhaar/deepresearch/chat"
	"github.com/hazyhaar/deepresearch/domstyle"
	"github.com/hazyhaar/deepresearch/render"
)

//go:embed document.html.tmpl
var templateFS embed.FS

var documentTmpl = template.Must(template.New("document.html.tmpl").
	Funcs(template.FuncMap{"speaker": speaker}).
	ParseFS(templateFS, "document.html.tmpl"))

// HTML exports a chat as a self-contained page: the theme stylesheet is
// inlined and messages are rendered the way the chat UI renders them.
type HTML struct {
	styles   func() string
	renderer *render.Renderer
}

// NewHTML returns the HTML exporter. styles supplies the stylesheet at
// export time so theme reloads are picked up; nil uses the default theme.
func NewHTML(styles func() string, r *render.Renderer) *HTML {
	if styles == nil {
		reg := domstyle.DefaultRegistry()
		styles = reg.Stylesheet
	}
	if r == nil {
		r = render.New()
	}
	return &HTML{styles: styles, renderer: r}
}

func (*HTML) Name() string        { return "html" }
func (*HTML) ContentType() string { return "text/html; charset=utf-8" }
func (*HTML) Ext() string         { return "html" }

type documentMessage struct {
	*chat.Message
	Body template.HTML
}

// Export writes c to w.
func (h *HTML) Export(ctx context.Context, w io.Writer, c *chat.Chat) error {
	msgs := make([]documentMessage, 0, len(c.Messages))
	for _, m := range c.Messages {
		if err := ctx.Err(); err != nil {
			return err
		}
		msgs = append(msgs, documentMessage{Message: m, Body: h.renderer.Text(m.Content)})
	}
	err := documentTmpl.Execute(w, map[string]any{
		"Chat":       c,
		"Messages":   msgs,
		"Stylesheet": template.CSS(h.styles()),
		"Exported":   time.Now().UTC().Format(time.RFC1123),
	})
	if err != nil {
		return fmt.Errorf("export html: %w", err)
	}
	return nil
}
