package research

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hazyhaar/deepresearch/cache"
	"github.com/hazyhaar/deepresearch/llm"
)

// Source is a cited result as it appears under a report.
type Source struct {
	Title       string  `json:"title"`
	URL         string  `json:"url"`
	Credibility float64 `json:"credibility"`
}

// Report is a generated research report. Content is Markdown citing
// sources as [Source N], 1-based into Sources.
type Report struct {
	Query     string    `json:"query"`
	Content   string    `json:"content"`
	Sources   []Source  `json:"sources"`
	CreatedAt time.Time `json:"created_at"`
}

const reportSystemPrompt = "You are a research assistant. Generate a comprehensive report based on the query."

func reportPrompt(today, question string, results []Result) string {
	ctx := make([]string, len(results))
	for i, r := range results {
		ctx[i] = fmt.Sprintf("Source %d: %s\nURL: %s\nContent: %s\nCredibility: %.2f",
			i+1, r.Title, r.URL, r.Snippet, r.Credibility)
	}
	return fmt.Sprintf(`Today is %[1]s. You are a research assistant tasked with creating a comprehensive report on the following query:

Query: %[2]s

I have gathered the following information from various sources. Please analyze this information and create a detailed report.

%[3]s

Your report should:
1. Provide a thorough answer to the query
2. Synthesize information from multiple sources
3. Cite sources using [Source X] notation
4. Highlight any contradictions or uncertainties
5. Be well-structured with headings and sections
6. Include a brief summary at the beginning
7. Consider the current date (%[1]s) for context if relevant

Please format your response in Markdown.`, today, question, strings.Join(ctx, "\n\n"))
}

func sourcesOf(results []Result) []Source {
	out := make([]Source, len(results))
	for i, r := range results {
		title := r.Title
		if title == "" {
			title = "Unknown Source"
		}
		out[i] = Source{Title: title, URL: r.URL, Credibility: r.Credibility}
	}
	return out
}

func reportKey(question string, results []Result) string {
	var b strings.Builder
	b.WriteString("report:")
	b.WriteString(question)
	for _, r := range results {
		b.WriteByte('\n')
		b.WriteString(r.URL)
	}
	return b.String()
}

// CleanContent removes "[object Object]" artifacts some models emit, with
// the commas around them, and trims commas left at line ends.
func CleanContent(s string) string {
	if !strings.Contains(s, "[object Object]") {
		return s
	}
	s = strings.ReplaceAll(s, ",[object Object],", ",")
	s = strings.ReplaceAll(s, ",[object Object]", "")
	s = strings.ReplaceAll(s, "[object Object],", "")
	s = strings.ReplaceAll(s, "[object Object]", "")
	for strings.Contains(s, ",,") {
		s = strings.ReplaceAll(s, ",,", ",")
	}
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.Trim(l, ",")
	}
	return strings.Join(lines, "\n")
}

// GenerateReport asks the LLM for a report on question grounded in results.
// Reports are cached per question and source list.
func (s *Service) GenerateReport(ctx context.Context, question string, results []Result) (*Report, error) {
	if len(results) == 0 {
		return nil, ErrNoResults
	}
	key := reportKey(question, results)
	if s.cfg.Cache != nil {
		var cached Report
		if ok, err := s.cfg.Cache.Get(ctx, key, &cached); err == nil && ok {
			s.logger.Info("research: report cache hit", "question", question)
			return &cached, nil
		}
	}

	content, err := s.cfg.LLM.Complete(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: reportSystemPrompt},
		{Role: llm.RoleUser, Content: reportPrompt(s.today(), question, results)},
	})
	if err != nil {
		return nil, fmt.Errorf("research: generate report: %w", err)
	}

	r := &Report{
		Query:     question,
		Content:   CleanContent(content),
		Sources:   sourcesOf(results),
		CreatedAt: s.cfg.Now(),
	}
	if s.cfg.Cache != nil {
		if err := s.cfg.Cache.Set(ctx, key, cache.Academic, r); err != nil {
			s.logger.Warn("research: cache write", "error", err)
		}
	}
	s.logger.Info("research: report generated", "question", question, "chars", len(r.Content), "sources", len(r.Sources))
	return r, nil
}

// fallbackChunk is the size, in runes, of the pieces a non-streaming
// report is replayed in.
const fallbackChunk = 10

// StreamReport is GenerateReport with incremental output: fn receives every
// chunk as it arrives. When the LLM cannot stream, the full report is
// generated and replayed to fn in small chunks. The returned report holds
// the complete content.
func (s *Service) StreamReport(ctx context.Context, question string, results []Result, fn func(chunk string) error) (*Report, error) {
	if len(results) == 0 {
		return nil, ErrNoResults
	}

	st, ok := s.cfg.LLM.(Streamer)
	if !ok {
		r, err := s.GenerateReport(ctx, question, results)
		if err != nil {
			return nil, err
		}
		if err := replay(r.Content, fn); err != nil {
			return nil, err
		}
		return r, nil
	}

	var b strings.Builder
	err := st.Stream(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: reportSystemPrompt},
		{Role: llm.RoleUser, Content: reportPrompt(s.today(), question, results)},
	}, func(delta string) error {
		b.WriteString(delta)
		return fn(delta)
	})
	if err != nil {
		return nil, fmt.Errorf("research: stream report: %w", err)
	}
	if b.Len() == 0 {
		return nil, errors.New("research: stream report: empty response")
	}
	return &Report{
		Query:     question,
		Content:   CleanContent(b.String()),
		Sources:   sourcesOf(results),
		CreatedAt: s.cfg.Now(),
	}, nil
}

func replay(content string, fn func(string) error) error {
	for len(content) > 0 {
		n, i := 0, 0
		for i < len(content) && n < fallbackChunk {
			_, size := utf8.DecodeRuneInString(content[i:])
			i += size
			n++
		}
		if err := fn(content[:i]); err != nil {
			return err
		}
		content = content[i:]
	}
	return nil
}
