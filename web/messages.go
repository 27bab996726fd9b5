package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/hazyhaar/deepresearch/chat"
	"github.com/hazyhaar/deepresearch/connectivity"
	"github.com/hazyhaar/deepresearch/llm"
	"github.com/hazyhaar/deepresearch/research"
	"github.com/hazyhaar/deepresearch/shield"
)

type messageRequest struct {
	Content string `json:"content"`
}

type messageResponse struct {
	ChatID  string        `json:"chat_id"`
	Title   string        `json:"title"`
	Message *chat.Message `json:"message"`
	HTML    template.HTML `json:"html"`
}

func readContent(r *http.Request) (string, error) {
	var content string
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req messageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return "", fmt.Errorf("invalid JSON body: %w", err)
		}
		content = req.Content
	} else {
		if err := r.ParseForm(); err != nil {
			return "", fmt.Errorf("invalid form body: %w", err)
		}
		content = r.PostForm.Get("content")
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return "", errors.New("content is required")
	}
	return content, nil
}

// handlePostMessage stores the user's message and answers it. The first
// message of a chat is a research question: it is searched, reported on
// and the formatted report becomes the reply. Later messages continue the
// conversation. Clients asking for text/event-stream receive the reply
// incrementally as "chunk" events followed by "done" or "error".
func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	c, ok := s.loadChat(w, r)
	if !ok {
		return
	}
	content, err := readContent(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ctx := r.Context()
	log := shield.GetLogger(ctx).With("chat_id", c.ID)

	user := &chat.Message{Role: llm.RoleUser, Content: content}
	if err := s.cfg.Chats.AppendMessage(ctx, c.ID, user); err != nil {
		s.serverError(w, r, err)
		return
	}
	c.Messages = append(c.Messages, user)

	var emit func(string) error
	stream := strings.Contains(r.Header.Get("Accept"), "text/event-stream")
	if stream {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
		rc := http.NewResponseController(w)
		emit = func(chunk string) error {
			if err := writeEvent(w, "chunk", chunk); err != nil {
				return err
			}
			return rc.Flush()
		}
	}

	var reply *chat.Message
	if c.FirstDone {
		reply, err = s.converse(ctx, c, emit)
	} else {
		reply, err = s.research(ctx, c, content, emit)
	}
	if err == nil {
		err = s.cfg.Chats.AppendMessage(ctx, c.ID, reply)
	}
	if err != nil {
		status, msg := describe(err)
		log.Warn("web: message failed", "status", status, "error", err)
		switch {
		case stream:
			writeEvent(w, "error", map[string]string{"error": msg})
		case wantsJSON(r):
			writeJSON(w, status, map[string]string{"error": msg})
		default:
			s.renderChat(w, r, status, c, msg)
		}
		return
	}

	if reply.IsResearch {
		if err := s.cfg.Chats.MarkFirstDone(ctx, c.ID); err != nil {
			log.Warn("web: mark first done", "error", err)
		}
	}
	log.Info("web: message answered", "research", reply.IsResearch, "chars", len(reply.Content))

	resp := messageResponse{ChatID: c.ID, Title: c.Title, Message: reply, HTML: s.cfg.Renderer.Text(reply.Content)}
	switch {
	case stream:
		writeEvent(w, "done", resp)
	case wantsJSON(r):
		writeJSON(w, http.StatusCreated, resp)
	default:
		http.Redirect(w, r, "/chats/"+c.ID+"#msg-"+reply.ID, http.StatusSeeOther)
	}
}

// research answers a chat's first message with a formatted report.
func (s *Server) research(ctx context.Context, c *chat.Chat, question string, emit func(string) error) (*chat.Message, error) {
	if title, err := s.cfg.Chats.UpdateTitle(ctx, c.ID, question); err != nil {
		shield.GetLogger(ctx).Warn("web: update title", "chat_id", c.ID, "error", err)
	} else {
		c.Title, c.Query = title, question
	}

	results, err := s.cfg.Research.SearchWeb(ctx, question, s.cfg.NumQueries, s.cfg.ResultsPerQuery)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, research.ErrNoResults
	}

	var report *research.Report
	if emit != nil {
		report, err = s.cfg.Research.StreamReport(ctx, question, results, emit)
	} else {
		report, err = s.cfg.Research.GenerateReport(ctx, question, results)
	}
	if err != nil {
		return nil, err
	}
	formatted, err := research.FormatReport(report, research.FormatOptions{ShowSources: true})
	if err != nil {
		return nil, err
	}
	return &chat.Message{Role: llm.RoleAssistant, Content: formatted, IsResearch: true}, nil
}

// converse answers a follow-up with the chat history as context.
func (s *Server) converse(ctx context.Context, c *chat.Chat, emit func(string) error) (*chat.Message, error) {
	history := make([]llm.Message, 0, len(c.Messages))
	for _, m := range c.Messages {
		history = append(history, llm.Message{Role: m.Role, Content: m.Content})
	}
	var (
		reply string
		err   error
	)
	if emit != nil {
		reply, err = s.cfg.Research.ConverseStream(ctx, history, emit)
	} else {
		reply, err = s.cfg.Research.Converse(ctx, history)
	}
	if err != nil {
		return nil, err
	}
	return &chat.Message{Role: llm.RoleAssistant, Content: reply}, nil
}

// describe maps a failure to the HTTP status and the message shown to the
// user.
func describe(err error) (int, string) {
	var open *connectivity.ErrCircuitOpen
	switch {
	case errors.Is(err, research.ErrNoSearch):
		return http.StatusServiceUnavailable, "Search API could not be initialized. Please check your API keys."
	case errors.Is(err, research.ErrNoResults):
		return http.StatusUnprocessableEntity, "No search results found. Please try a different query."
	case errors.Is(err, llm.ErrNotConfigured):
		return http.StatusServiceUnavailable, "The language model is not configured. Please check your API keys."
	case errors.Is(err, research.ErrEmptyReport):
		return http.StatusBadGateway, "Generated report is empty. Please try again."
	case errors.Is(err, research.ErrShortReport):
		return http.StatusBadGateway, "Failed to generate report. Please try again."
	case errors.Is(err, llm.ErrRateLimited):
		return http.StatusTooManyRequests, "The model is busy. Please wait a moment and try again."
	case errors.As(err, &open):
		return http.StatusServiceUnavailable, "The " + open.Service + " service is temporarily unavailable. Please try again later."
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "The request timed out. Please try again."
	default:
		return http.StatusBadGateway, "An error occurred: " + err.Error()
	}
}

func writeEvent(w http.ResponseWriter, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
