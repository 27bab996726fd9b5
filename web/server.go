// Package web serves the research chat UI: a chi router behind the shield
// middleware stack, server-rendered pages styled by a domstyle pass before
// they are written, and a small JSON API.
package web

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/deepresearch/chat"
	"github.com/hazyhaar/deepresearch/domstyle"
	"github.com/hazyhaar/deepresearch/domstyle/memdom"
	"github.com/hazyhaar/deepresearch/export"
	"github.com/hazyhaar/deepresearch/feedback"
	"github.com/hazyhaar/deepresearch/render"
	"github.com/hazyhaar/deepresearch/research"
	"github.com/hazyhaar/deepresearch/shield"
)

//go:embed templates static
var assets embed.FS

// Config wires a Server.
type Config struct {
	Chats     *chat.Store
	Research  *research.Service
	Theme     *Theme
	Exporters *export.Registry
	Renderer  *render.Renderer

	// Feedback enables rating assistant replies. Nil hides the controls.
	Feedback *feedback.Store

	// RateLimiter limits POST requests per client. Nil disables it.
	RateLimiter *shield.RateLimiter

	// NumQueries and ResultsPerQuery drive the first-message search.
	// Defaults: 3 and 5.
	NumQueries      int
	ResultsPerQuery int

	Now    func() time.Time
	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.NumQueries <= 0 {
		c.NumQueries = 3
	}
	if c.ResultsPerQuery <= 0 {
		c.ResultsPerQuery = 5
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Renderer == nil {
		c.Renderer = render.New()
	}
	if c.Exporters == nil {
		var styles func() string
		if c.Theme != nil {
			styles = c.Theme.Stylesheet
		}
		c.Exporters = export.NewRegistry(export.NewMarkdown(), export.NewHTML(styles, c.Renderer))
	}
}

// Server is the chat UI HTTP handler.
type Server struct {
	cfg    Config
	logger *slog.Logger
	pages  *template.Template
	router chi.Router
}

// New builds the router. cfg.Chats, cfg.Research and cfg.Theme are
// required.
func New(cfg Config) *Server {
	cfg.defaults()
	s := &Server{cfg: cfg, logger: cfg.Logger}
	s.pages = template.Must(template.New("").Funcs(template.FuncMap{
		"age":     func(t time.Time) string { return chat.Age(t, s.cfg.Now()) },
		"preview": chat.Preview,
	}).ParseFS(assets, "templates/*.html.tmpl"))
	s.router = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	for _, mw := range shield.DefaultStack(s.cfg.RateLimiter) {
		r.Use(mw)
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	static, _ := fs.Sub(assets, "static")
	r.Get("/static/theme.css", s.handleThemeCSS)
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServerFS(static)))

	r.Group(func(r chi.Router) {
		r.Use(s.session)

		r.Get("/", s.handleIndex)
		r.Post("/chats", s.handleCreateChat)
		r.Get("/chats/{id}", s.handleChatPage)
		r.Post("/chats/{id}/messages", s.handlePostMessage)
		r.Get("/chats/{id}/export", s.handleExport)

		r.Get("/api/chats", s.handleListChats)
		r.Get("/api/chats/{id}", s.handleGetChat)
		r.Delete("/api/chats/{id}", s.handleDeleteChat)

		if s.cfg.Feedback != nil {
			r.Post("/chats/{id}/messages/{msgID}/feedback", s.handleFeedback)
			r.Get("/api/feedback", s.handleFeedbackSummary)
		}
	})
	return r
}

func (s *Server) handleThemeCSS(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write([]byte(s.cfg.Theme.Stylesheet()))
}

// --- Pages ---

type pageMessage struct {
	*chat.Message
	Body template.HTML
}

type pageData struct {
	Chat     *chat.Chat
	Chats    []*chat.Chat
	Messages []pageMessage
	Error    string
	Feedback bool
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := sessionID(ctx)
	c, err := s.cfg.Chats.Latest(ctx, sess)
	if errors.Is(err, chat.ErrNotFound) {
		c, err = s.cfg.Chats.Create(ctx, sess)
	}
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	http.Redirect(w, r, "/chats/"+c.ID, http.StatusFound)
}

func (s *Server) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	c, err := s.cfg.Chats.Create(r.Context(), sessionID(r.Context()))
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	shield.GetLogger(r.Context()).Info("web: chat created", "chat_id", c.ID)
	if wantsJSON(r) {
		writeJSON(w, http.StatusCreated, c)
		return
	}
	http.Redirect(w, r, "/chats/"+c.ID, http.StatusSeeOther)
}

func (s *Server) handleChatPage(w http.ResponseWriter, r *http.Request) {
	c, ok := s.loadChat(w, r)
	if !ok {
		return
	}
	s.renderChat(w, r, http.StatusOK, c, "")
}

// renderChat executes the chat template, runs a reconciliation pass over
// the result and writes the styled document.
func (s *Server) renderChat(w http.ResponseWriter, r *http.Request, status int, c *chat.Chat, errMsg string) {
	ctx := r.Context()
	chats, err := s.cfg.Chats.ListBySession(ctx, sessionID(ctx))
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	data := pageData{Chat: c, Chats: chats, Error: errMsg, Feedback: s.cfg.Feedback != nil}
	for _, m := range c.Messages {
		data.Messages = append(data.Messages, pageMessage{Message: m, Body: s.cfg.Renderer.Text(m.Content)})
	}

	var buf bytes.Buffer
	if err := s.pages.ExecuteTemplate(&buf, "chat.html.tmpl", data); err != nil {
		s.serverError(w, r, err)
		return
	}
	doc, err := memdom.Parse(&buf)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	st := domstyle.NewReconciler(s.cfg.Theme.Registry(), doc, shield.GetLogger(ctx), domstyle.WithStylesheetHover()).Pass(ctx)
	shield.GetLogger(ctx).Debug("web: page styled",
		"chat_id", c.ID, "matched", st.Matched, "written", st.Written, "failures", st.Failures)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := doc.Render(w); err != nil {
		shield.GetLogger(ctx).Warn("web: write page", "error", err)
	}
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	c, ok := s.loadChat(w, r)
	if !ok {
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "md"
	}
	exp, err := s.cfg.Exporters.Get(format)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var buf bytes.Buffer
	if err := exp.Export(r.Context(), &buf, c); err != nil {
		s.serverError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", exp.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.Filename(c, exp.Ext())+`"`)
	w.Write(buf.Bytes())
}

// --- API ---

type chatSummary struct {
	*chat.Chat
	Preview string `json:"preview"`
	Age     string `json:"age"`
}

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	chats, err := s.cfg.Chats.ListBySession(r.Context(), sessionID(r.Context()))
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	now := s.cfg.Now()
	out := make([]chatSummary, 0, len(chats))
	for _, c := range chats {
		out = append(out, chatSummary{Chat: c, Preview: chat.Preview(c.Query), Age: chat.Age(c.UpdatedAt, now)})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetChat(w http.ResponseWriter, r *http.Request) {
	c, ok := s.loadChat(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleDeleteChat(w http.ResponseWriter, r *http.Request) {
	c, ok := s.loadChat(w, r)
	if !ok {
		return
	}
	if err := s.cfg.Chats.Delete(r.Context(), c.ID); err != nil {
		s.serverError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// loadChat fetches the {id} chat and checks the session owns it. Chats
// stored before sessions existed are readable by every session.
func (s *Server) loadChat(w http.ResponseWriter, r *http.Request) (*chat.Chat, bool) {
	c, err := s.cfg.Chats.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, chat.ErrNotFound) {
		s.notFound(w, r)
		return nil, false
	}
	if err != nil {
		s.serverError(w, r, err)
		return nil, false
	}
	if c.SessionID != sessionID(r.Context()) && c.SessionID != chat.LegacySession {
		s.notFound(w, r)
		return nil, false
	}
	return c, true
}

// --- Helpers ---

func wantsJSON(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") ||
		strings.Contains(r.Header.Get("Accept"), "application/json")
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	if wantsJSON(r) || strings.HasPrefix(r.URL.Path, "/api/") {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "chat not found"})
		return
	}
	http.Error(w, "chat not found", http.StatusNotFound)
}

func (s *Server) serverError(w http.ResponseWriter, r *http.Request, err error) {
	shield.GetLogger(r.Context()).Error("web: request failed", "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
