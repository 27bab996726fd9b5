package research

import (
	"context"
	"errors"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/deepresearch/kit"
)

// RegisterMCP registers the research tools on an MCP server.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerSearchTool(srv)
	s.registerReportTool(srv)
}

// inputSchema builds a JSON Schema object with type "object".
func inputSchema(properties map[string]any, required []string) map[string]any {
	sch := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		sch["required"] = required
	}
	return sch
}

var researchProps = map[string]any{
	"question":          map[string]any{"type": "string", "description": "Research question"},
	"num_queries":       map[string]any{"type": "integer", "description": "Search queries to generate (default 3)"},
	"results_per_query": map[string]any{"type": "integer", "description": "Results per query (default 5)"},
}

type searchRequest struct {
	Question        string `json:"question"`
	NumQueries      int    `json:"num_queries,omitempty"`
	ResultsPerQuery int    `json:"results_per_query,omitempty"`
}

func (r *searchRequest) validate() error {
	r.Question = strings.TrimSpace(r.Question)
	if r.Question == "" {
		return errors.New("question is required")
	}
	return nil
}

func (s *Service) registerSearchTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "research_search",
		Description: "Search the web for a research question. Returns deduplicated results with credibility scores.",
		InputSchema: inputSchema(researchProps, []string{"question"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*searchRequest)
		if err := r.validate(); err != nil {
			return nil, err
		}
		return s.SearchWeb(ctx, r.Question, r.NumQueries, r.ResultsPerQuery)
	}
	kit.RegisterMCPTool(srv, tool, endpoint, kit.DecodeJSON[searchRequest]())
}

type reportResponse struct {
	Query    string   `json:"query"`
	Markdown string   `json:"markdown"`
	Sources  []Source `json:"sources"`
}

func (s *Service) registerReportTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "research_report",
		Description: "Research a question end to end and return a Markdown report with linked citations and a sources list.",
		InputSchema: inputSchema(researchProps, []string{"question"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*searchRequest)
		if err := r.validate(); err != nil {
			return nil, err
		}
		results, err := s.SearchWeb(ctx, r.Question, r.NumQueries, r.ResultsPerQuery)
		if err != nil {
			return nil, err
		}
		report, err := s.GenerateReport(ctx, r.Question, results)
		if err != nil {
			return nil, err
		}
		md, err := FormatReport(report, FormatOptions{ShowSources: true})
		if err != nil {
			return nil, err
		}
		return &reportResponse{Query: report.Query, Markdown: md, Sources: report.Sources}, nil
	}
	kit.RegisterMCPTool(srv, tool, endpoint, kit.DecodeJSON[searchRequest]())
}
