package research

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/hazyhaar/deepresearch/llm"
)

const querySystemPrompt = `You are a search query generator. Your task is to generate effective search queries for a given research question.
Return a JSON array of strings, with each string being a search query.`

func queryPrompt(today, question string, n int) string {
	return fmt.Sprintf(`Today is %s. I need to research the following question:

"%s"

Generate %d different search queries that would help gather diverse and relevant information about this topic.

Requirements for the search queries:
1. Each query should be a clear, concise search term (not a complete sentence or question)
2. Focus on keywords and specific terms that search engines respond well to
3. Cover different aspects of the original question
4. Include any necessary context or time-relevant information
5. DO NOT include any articles (a, an, the) unless absolutely necessary
6. DO NOT use punctuation like question marks, periods, or quotation marks
7. Keep each query between 3-7 words for optimal search results

Format your response as a JSON array of strings, each containing one search query.
Example: ["machine learning applications healthcare", "AI medical diagnosis current research", "deep learning radiology examples"]`, today, question, n)
}

var jsonArray = regexp.MustCompile(`(?s)\[.*\]`)

// ParseQueries extracts the string items of the first JSON array in text.
// Non-string and blank items are dropped.
func ParseQueries(text string) []string {
	m := jsonArray.FindString(text)
	if m == "" {
		return nil
	}
	var items []any
	if err := json.Unmarshal([]byte(m), &items); err != nil {
		return nil
	}
	var out []string
	for _, it := range items {
		if s, ok := it.(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// GenerateQueries asks the LLM for n search queries. It never fails: any
// error or unusable answer falls back to the question itself.
func (s *Service) GenerateQueries(ctx context.Context, question string, n int) []string {
	if n <= 0 {
		n = 3
	}
	fallback := []string{question}
	if s.cfg.LLM == nil {
		return fallback
	}

	reply, err := s.cfg.LLM.Complete(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: querySystemPrompt},
		{Role: llm.RoleUser, Content: queryPrompt(s.today(), question, n)},
	})
	if err != nil {
		s.logger.Warn("research: query generation failed", "error", err)
		return fallback
	}

	queries := ParseQueries(reply)
	if len(queries) == 0 {
		s.logger.Warn("research: no queries in reply", "reply_len", len(reply))
		return fallback
	}
	if len(queries) > n {
		queries = queries[:n]
	}
	return queries
}
