package dispatch

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// connectClient wires an in-memory client session to server.
func connectClient(t *testing.T, ctx context.Context, server *mcpsdk.Server) *mcpsdk.ClientSession {
	t.Helper()
	ct, st := mcpsdk.NewInMemoryTransports()
	if _, err := server.Connect(ctx, st, nil); err != nil {
		t.Fatalf("server connect: %v", err)
	}
	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test-client", Version: "0.0.1"}, nil)
	session, err := client.Connect(ctx, ct, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { _ = session.Close() })
	return session
}

// textContent concatenates the text blocks of a tool result.
func textContent(t *testing.T, res *mcpsdk.CallToolResult) string {
	t.Helper()
	var sb strings.Builder
	for _, c := range res.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	if sb.Len() == 0 {
		t.Fatal("tool result carries no text content")
	}
	return sb.String()
}

func TestServer_ListsAllTools(t *testing.T) {
	ctx := context.Background()
	server := NewServer(newTestDispatcher(&stubUpstream{page: inceptionPage()}), "1.2.3")
	session := connectClient(t, ctx, server)

	res, err := session.ListTools(ctx, &mcpsdk.ListToolsParams{})
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}

	seen := map[string]bool{}
	for _, tool := range res.Tools {
		seen[tool.Name] = true
		if tool.Description == "" {
			t.Errorf("tool %q has no description", tool.Name)
		}
	}
	for _, name := range []string{"search_title", "get_recommendations", "discover", "health"} {
		if !seen[name] {
			t.Errorf("tool %q not listed", name)
		}
	}
	if len(res.Tools) != 4 {
		t.Errorf("listed %d tools, want 4", len(res.Tools))
	}
}

func TestServer_SearchTitleDeliversEnvelope(t *testing.T) {
	ctx := context.Background()
	server := NewServer(newTestDispatcher(&stubUpstream{page: inceptionPage()}), "1.2.3")
	session := connectClient(t, ctx, server)

	res, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      "search_title",
		Arguments: map[string]any{"query": "Inception", "type": "movie", "year": 2010},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if res.IsError {
		t.Fatalf("IsError set, content: %s", textContent(t, res))
	}

	var env struct {
		Result []struct {
			ID     int64   `json:"id"`
			Title  string  `json:"title"`
			Type   string  `json:"type"`
			Year   int     `json:"year"`
			Rating float64 `json:"rating"`
		} `json:"result"`
		CacheHit  bool      `json:"cache_hit"`
		Source    string    `json:"source"`
		FetchedAt time.Time `json:"fetched_at"`
	}
	if err := json.Unmarshal([]byte(textContent(t, res)), &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.Source != "TMDB" {
		t.Errorf("source = %q, want TMDB", env.Source)
	}
	if env.CacheHit {
		t.Error("first call must not be a cache hit")
	}
	if env.FetchedAt.IsZero() {
		t.Error("fetched_at must be set")
	}
	if len(env.Result) != 1 {
		t.Fatalf("result has %d entries, want 1", len(env.Result))
	}
	got := env.Result[0]
	if got.ID != 27205 || got.Title != "Inception" || got.Type != "movie" || got.Year != 2010 || got.Rating != 8.8 {
		t.Errorf("result[0] = %+v", got)
	}
}

func TestServer_InvalidArgumentsSurfaceAsErrorEnvelope(t *testing.T) {
	ctx := context.Background()
	stub := &stubUpstream{page: inceptionPage()}
	server := NewServer(newTestDispatcher(stub), "1.2.3")
	session := connectClient(t, ctx, server)

	res, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      "search_title",
		Arguments: map[string]any{"query": "Inception", "bogus": 1},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !res.IsError {
		t.Error("IsError must be set for an error envelope")
	}

	var env struct {
		Err *struct {
			Kind      string `json:"kind"`
			Message   string `json:"message"`
			Retryable bool   `json:"retryable"`
		} `json:"error"`
	}
	if err := json.Unmarshal([]byte(textContent(t, res)), &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.Err == nil || env.Err.Kind != "invalid_argument" {
		t.Fatalf("envelope error = %+v, want invalid_argument", env.Err)
	}
	if env.Err.Retryable {
		t.Error("invalid_argument must not be retryable")
	}
	if got := stub.callCount(); got != 0 {
		t.Errorf("upstream calls = %d, want 0", got)
	}
}

func TestServer_HealthAlwaysOK(t *testing.T) {
	ctx := context.Background()
	server := NewServer(newTestDispatcher(&stubUpstream{}), "1.2.3")
	session := connectClient(t, ctx, server)

	res, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      "health",
		Arguments: map[string]any{},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if res.IsError {
		t.Error("health must never set IsError")
	}
	if got := textContent(t, res); got != `{"status":"ok"}` {
		t.Errorf("health = %s, want {\"status\":\"ok\"}", got)
	}
}

// validateAgainstSchema checks that payload conforms to a tool's declared
// input schema.
func validateAgainstSchema(t *testing.T, schemaValue any, payload string) {
	t.Helper()

	raw, err := json.Marshal(schemaValue)
	if err != nil {
		t.Fatalf("marshal schema: %v", err)
	}
	var schema jsonschema.Schema
	if err := json.Unmarshal(raw, &schema); err != nil {
		t.Fatalf("decode schema: %v", err)
	}

	resolved, err := schema.Resolve(nil)
	if err != nil {
		t.Fatalf("resolve schema: %v", err)
	}

	var decoded any
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if err := resolved.Validate(decoded); err != nil {
		t.Errorf("payload %s rejected: %v", payload, err)
	}
}

func TestToolDefinitions_AcceptDocumentedArguments(t *testing.T) {
	samples := map[string][]string{
		"search_title": {
			`{"query":"Inception"}`,
			`{"query":"Breaking Bad","type":"tv","year":2008,"language":"en"}`,
		},
		"get_recommendations": {
			`{"id":27205,"type":"movie"}`,
		},
		"discover": {
			`{}`,
			`{"type":"movie","genre":["science fiction","thriller"],"year":1999,"sort_by":"vote_average"}`,
		},
	}

	for _, tool := range toolDefinitions() {
		payloads, ok := samples[tool.Name]
		if !ok {
			t.Errorf("no sample arguments for tool %q", tool.Name)
			continue
		}
		for _, payload := range payloads {
			validateAgainstSchema(t, tool.InputSchema, payload)
		}
	}
}
