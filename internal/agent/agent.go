// Package agent implements an interactive terminal client for the Cinescope
// MCP server. It launches the server as a subprocess, advertises the server's
// tools to an LLM via github.com/mozilla-ai/any-llm-go, and loops between
// model completions and tool executions until the model produces a final
// answer.
//
// Usage:
//
//	a, err := agent.New(cfg.Agent)
//	err = a.Connect(ctx, cfg.Agent.ServerCommand)
//	defer a.Close()
//	err = a.Run(ctx, os.Stdin, os.Stdout)
package agent

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/cinescope/internal/config"
)

// maxToolRounds caps how many completion and tool-execution cycles a single
// question may trigger before the agent gives up.
const maxToolRounds = 8

// Agent is a single-session chat client. It keeps the full conversation
// history so follow-up questions can refer to earlier answers.
//
// The zero value is not usable; create instances with [New], then call
// [Agent.Connect] before asking anything. Agent is not safe for concurrent
// use.
type Agent struct {
	backend anyllmlib.Provider
	model   string

	session *mcpsdk.ClientSession
	tools   []anyllmlib.Tool

	history []anyllmlib.Message
}

// New creates an Agent speaking to the LLM selected by cfg. The conversation
// starts with the combined system instruction from [Instruction].
func New(cfg config.AgentConfig) (*Agent, error) {
	if cfg.Provider == "" {
		return nil, fmt.Errorf("agent: provider must not be empty")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("agent: model must not be empty")
	}

	backend, err := newBackend(cfg)
	if err != nil {
		return nil, fmt.Errorf("agent: create %q backend: %w", cfg.Provider, err)
	}

	return &Agent{
		backend: backend,
		model:   cfg.Model,
		history: []anyllmlib.Message{
			{Role: anyllmlib.RoleSystem, Content: Instruction()},
		},
	}, nil
}

// Connect launches the MCP server described by command as a subprocess,
// establishes a stdio session, and imports the server's tool catalogue.
// command is split on spaces into executable + args, e.g.
// "cinescope -config config.yaml".
func (a *Agent) Connect(ctx context.Context, command string) error {
	executable, args := splitCommand(command)
	if executable == "" {
		return fmt.Errorf("agent: server command must not be empty")
	}

	cmd := exec.CommandContext(ctx, executable, args...)
	// The MCP framing owns the subprocess's stdin and stdout; its logs go to
	// stderr and stay visible in the agent's terminal.
	cmd.Stderr = os.Stderr

	client := mcpsdk.NewClient(
		&mcpsdk.Implementation{Name: "cinescope-agent", Version: "0.1.0"},
		nil,
	)
	session, err := client.Connect(ctx, &mcpsdk.CommandTransport{Command: cmd}, nil)
	if err != nil {
		return fmt.Errorf("agent: connect to MCP server: %w", err)
	}

	declarations, err := collectTools(ctx, session)
	if err != nil {
		_ = session.Close()
		return fmt.Errorf("agent: list tools: %w", err)
	}
	if len(declarations) == 0 {
		_ = session.Close()
		return fmt.Errorf("agent: server %q advertises no tools", executable)
	}

	a.session = session
	a.tools = declarations
	slog.Info("connected to MCP server", "command", executable, "tools", len(declarations))
	return nil
}

// Close terminates the MCP session and the server subprocess behind it.
func (a *Agent) Close() error {
	if a.session == nil {
		return nil
	}
	return a.session.Close()
}

// Ask runs one user question through the model, executing MCP tool calls as
// the model requests them, and returns the final text answer. Tool failures
// are fed back to the model as tool results so it can recover or explain.
func (a *Agent) Ask(ctx context.Context, question string) (string, error) {
	if a.session == nil {
		return "", fmt.Errorf("agent: not connected")
	}

	a.history = append(a.history, anyllmlib.Message{Role: "user", Content: question})

	for range maxToolRounds {
		resp, err := a.backend.Completion(ctx, anyllmlib.CompletionParams{
			Model:    a.model,
			Messages: a.history,
			Tools:    a.tools,
		})
		if err != nil {
			return "", fmt.Errorf("agent: completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("agent: empty choices in response")
		}
		reply := resp.Choices[0].Message

		assistant := anyllmlib.Message{
			Role:    "assistant",
			Content: reply.ContentString(),
		}
		for _, tc := range reply.ToolCalls {
			assistant.ToolCalls = append(assistant.ToolCalls, anyllmlib.ToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: anyllmlib.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
		a.history = append(a.history, assistant)

		if len(assistant.ToolCalls) == 0 {
			return assistant.ContentString(), nil
		}

		for _, tc := range assistant.ToolCalls {
			result := a.callTool(ctx, tc)
			a.history = append(a.history, anyllmlib.Message{
				Role:       "tool",
				Content:    result,
				ToolCallID: tc.ID,
			})
		}
	}

	return "", fmt.Errorf("agent: no final answer after %d tool rounds", maxToolRounds)
}

// Run reads questions from r line by line and prints answers to w, until r
// is exhausted or the user types "exit" or "quit".
func (a *Agent) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	for {
		fmt.Fprint(w, "you> ")
		if !scanner.Scan() {
			break
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}
		if question == "exit" || question == "quit" {
			break
		}

		answer, err := a.Ask(ctx, question)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(w, "error: %v\n", err)
			continue
		}
		fmt.Fprintf(w, "\n%s\n\n", answer)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("agent: read input: %w", err)
	}
	return nil
}

// callTool executes one tool call against the MCP session and returns the
// text payload the model will read. Failures are folded into that text
// instead of aborting the conversation.
func (a *Agent) callTool(ctx context.Context, tc anyllmlib.ToolCall) string {
	slog.Info("executing tool call", "tool", tc.Function.Name)

	args := map[string]any{}
	if tc.Function.Arguments != "" {
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
			return fmt.Sprintf("tool call %s failed: arguments are not valid JSON: %v", tc.Function.Name, err)
		}
	}

	res, err := a.session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      tc.Function.Name,
		Arguments: args,
	})
	if err != nil {
		return fmt.Sprintf("tool call %s failed: %v", tc.Function.Name, err)
	}

	var sb strings.Builder
	for _, content := range res.Content {
		if text, ok := content.(*mcpsdk.TextContent); ok {
			sb.WriteString(text.Text)
		}
	}
	if sb.Len() == 0 {
		return fmt.Sprintf("tool call %s returned no text content", tc.Function.Name)
	}
	return sb.String()
}

// collectTools converts the server's advertised tools into the function
// declarations the model receives.
func collectTools(ctx context.Context, session *mcpsdk.ClientSession) ([]anyllmlib.Tool, error) {
	var declarations []anyllmlib.Tool
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			return nil, err
		}
		declarations = append(declarations, anyllmlib.Tool{
			Type: "function",
			Function: anyllmlib.Function{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  schemaToMap(tool.InputSchema),
			},
		})
	}
	return declarations, nil
}

// schemaToMap converts any schema value to a map[string]any.
func schemaToMap(schema any) map[string]any {
	if schema == nil {
		return map[string]any{"type": "object"}
	}
	if m, ok := schema.(map[string]any); ok {
		return m
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{"type": "object"}
	}
	return m
}

// splitCommand splits a command string into executable and arguments.
// e.g. "cinescope -config config.yaml" → ("cinescope", ["-config", "config.yaml"]).
func splitCommand(command string) (executable string, args []string) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return "", nil
	}
	return parts[0], parts[1:]
}
