package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/deepresearch/feedback"
	"github.com/hazyhaar/deepresearch/llm"
	"github.com/hazyhaar/deepresearch/shield"
)

type feedbackRequest struct {
	Helpful bool   `json:"helpful"`
	Comment string `json:"comment"`
}

func readFeedback(r *http.Request) (feedbackRequest, error) {
	var req feedbackRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		err := json.NewDecoder(r.Body).Decode(&req)
		return req, err
	}
	if err := r.ParseForm(); err != nil {
		return req, err
	}
	helpful, err := strconv.ParseBool(r.PostForm.Get("helpful"))
	if err != nil {
		return req, errors.New("helpful must be true or false")
	}
	req.Helpful = helpful
	req.Comment = r.PostForm.Get("comment")
	return req, nil
}

// handleFeedback rates one assistant message of the session's chat.
func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	c, ok := s.loadChat(w, r)
	if !ok {
		return
	}
	msgID := chi.URLParam(r, "msgID")
	found := false
	for _, m := range c.Messages {
		if m.ID == msgID && m.Role == llm.RoleAssistant {
			found = true
			break
		}
	}
	if !found {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "message not found"})
		return
	}
	req, err := readFeedback(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	rating := &feedback.Rating{
		ChatID:    c.ID,
		MessageID: msgID,
		SessionID: sessionID(r.Context()),
		Helpful:   req.Helpful,
		Comment:   req.Comment,
	}
	if err := s.cfg.Feedback.Submit(r.Context(), rating); err != nil {
		s.serverError(w, r, err)
		return
	}
	shield.GetLogger(r.Context()).Info("web: feedback", "chat_id", c.ID, "message_id", msgID, "helpful", req.Helpful)

	if wantsJSON(r) {
		writeJSON(w, http.StatusCreated, rating)
		return
	}
	http.Redirect(w, r, "/chats/"+c.ID+"#msg-"+msgID, http.StatusSeeOther)
}

func (s *Server) handleFeedbackSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.cfg.Feedback.Summarize(r.Context())
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}
