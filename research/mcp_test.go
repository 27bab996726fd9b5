package research

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/deepresearch/serper"
)

var testImpl = &mcp.Implementation{Name: "research-test", Version: "0.1.0"}

func mcpSession(t *testing.T, svc *Service) *mcp.ClientSession {
	t.Helper()
	srv := mcp.NewServer(testImpl, nil)
	svc.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() {
		_ = srv.Run(ctx, serverT)
	}()

	client := mcp.NewClient(testImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func callTool(t *testing.T, session *mcp.ClientSession, name string, args any) (string, bool) {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if len(result.Content) == 0 {
		t.Fatalf("CallTool(%s): empty content", name)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent, got %T", name, result.Content[0])
	}
	return tc.Text, result.IsError
}

func mcpService(t *testing.T) *Service {
	l := &fakeLLM{
		queries: `["fusion ignition"]`,
		report:  "# Fusion\n\nIgnition was achieved at NIF [Source 1], a milestone for inertial confinement.",
	}
	s := &fakeSearch{hits: map[string][]serper.Result{
		"fusion ignition": {{Title: "NIF", Link: "https://llnl.gov/nif", Snippet: "ignition"}},
	}}
	return newService(t, l, s, false)
}

func TestMCP_Search(t *testing.T) {
	session := mcpSession(t, mcpService(t))
	text, isErr := callTool(t, session, "research_search", map[string]any{"question": "is fusion close"})
	if isErr {
		t.Fatalf("tool error: %s", text)
	}
	var results []Result
	if err := json.Unmarshal([]byte(text), &results); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(results) != 1 || results[0].Domain != "llnl.gov" {
		t.Fatalf("results = %+v", results)
	}
}

func TestMCP_Report(t *testing.T) {
	session := mcpSession(t, mcpService(t))
	text, isErr := callTool(t, session, "research_report", map[string]any{"question": "is fusion close"})
	if isErr {
		t.Fatalf("tool error: %s", text)
	}
	var resp reportResponse
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !strings.Contains(resp.Markdown, `href="https://llnl.gov/nif"`) || !strings.Contains(resp.Markdown, "## Sources") {
		t.Fatalf("markdown = %q", resp.Markdown)
	}
}

func TestMCP_MissingQuestion(t *testing.T) {
	session := mcpSession(t, mcpService(t))
	text, isErr := callTool(t, session, "research_search", map[string]any{"question": "  "})
	if !isErr || !strings.Contains(text, "question is required") {
		t.Fatalf("isErr=%v text=%q", isErr, text)
	}
}
