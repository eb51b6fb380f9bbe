package dispatch

import (
	"context"
	"encoding/json"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/cinescope/internal/health"
	"github.com/MrWong99/cinescope/internal/tools"
)

// NewServer builds the MCP server exposing the three data tools plus the
// health probe. Data tool calls are routed through d so every response is a
// [types.Envelope] rendered as a single text content block; the health probe
// bypasses the dispatcher because it takes no arguments and touches no
// shared state.
//
// Run the returned server over stdio with:
//
//	server.Run(ctx, &mcpsdk.StdioTransport{})
func NewServer(d *Dispatcher, version string) *mcpsdk.Server {
	server := mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    "cinescope",
		Version: version,
	}, &mcpsdk.ServerOptions{
		HasTools: true,
	})

	for _, tool := range toolDefinitions() {
		server.AddTool(&tool, d.toolHandler(tool.Name))
	}

	server.AddTool(&mcpsdk.Tool{
		Name:        tools.ToolHealth,
		Description: "Report whether the server is alive. Takes no arguments and always succeeds while the process is running.",
		InputSchema: map[string]any{"type": "object"},
	}, healthHandler)

	return server
}

// toolHandler adapts [Dispatcher.Dispatch] to the MCP SDK handler signature.
// The envelope is always delivered as JSON text; IsError mirrors the envelope
// so MCP clients see application failures without parsing the body.
func (d *Dispatcher) toolHandler(name string) mcpsdk.ToolHandler {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		env := d.Dispatch(ctx, name, json.RawMessage(req.Params.Arguments))
		body, err := json.Marshal(env)
		if err != nil {
			return nil, err
		}
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(body)}},
			IsError: env.Err != nil,
		}, nil
	}
}

// healthHandler serves the liveness probe.
func healthHandler(_ context.Context, _ *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
	body, err := json.Marshal(health.OK())
	if err != nil {
		return nil, err
	}
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(body)}},
	}, nil
}

// toolDefinitions returns the MCP declarations of the three data tools. The
// schemas describe the same contracts the handlers enforce; the handlers
// remain authoritative for validation.
func toolDefinitions() []mcpsdk.Tool {
	mediaType := map[string]any{
		"type":        "string",
		"description": "Media type, either \"movie\" or \"tv\".",
		"enum":        []string{"movie", "tv"},
	}
	language := map[string]any{
		"type":        "string",
		"description": "ISO-639-1 language code for result text, e.g. \"en\" or \"pt-BR\". Defaults to the configured language.",
	}

	return []mcpsdk.Tool{
		{
			Name:        tools.ToolSearchTitle,
			Description: "Search TMDB for movies or TV shows by title. Returns matching titles with id, type, year, rating, overview, and poster path, in upstream relevance order.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "Title text to search for, e.g. \"Inception\".",
					},
					"type": mediaType,
					"year": map[string]any{
						"type":        "integer",
						"description": "Release year to narrow the search, e.g. 2010.",
					},
					"language": language,
				},
				"required": []string{"query"},
			},
		},
		{
			Name:        tools.ToolGetRecommendations,
			Description: "Fetch titles similar to a given movie or TV show. Each recommendation carries a short reason derived from its rating and popularity.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id": map[string]any{
						"type":        "integer",
						"description": "TMDB id of the reference title, e.g. 27205.",
					},
					"type": mediaType,
				},
				"required": []string{"id", "type"},
			},
		},
		{
			Name:        tools.ToolDiscover,
			Description: "Browse the TMDB catalogue filtered by genre, year, and language. Provide at least one of genre or year; without filters the result is a generic popularity ranking.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"type": mediaType,
					"genre": map[string]any{
						"type":        "array",
						"description": "Genre names to filter by, e.g. [\"science fiction\", \"thriller\"]. Unknown names are rejected, with a suggestion when a close match exists.",
						"items":       map[string]any{"type": "string"},
					},
					"year": map[string]any{
						"type":        "integer",
						"description": "Release year (movies) or first air year (TV) to filter by.",
					},
					"language": language,
					"sort_by": map[string]any{
						"type":        "string",
						"description": "Sort key for results, descending. Defaults to popularity.",
						"enum":        []string{"popularity", "vote_average"},
					},
				},
			},
		},
	}
}
