// Package dispatch routes tool calls by name to their handlers and wraps
// every outcome in the wire envelope shared with the agent collaborator.
//
// The dispatcher is the last line of defence on the serving path: whatever
// happens inside a handler (validation failure, upstream trouble, even a
// panic), [Dispatcher.Dispatch] returns a well-formed [types.Envelope] and
// never lets a call terminate without one.
//
// Typical usage:
//
//	d := dispatch.New(set, observe.DefaultMetrics())
//	env := d.Dispatch(ctx, "search_title", raw)
//	body, _ := json.Marshal(env)
package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/cinescope/internal/observe"
	"github.com/MrWong99/cinescope/internal/tools"
	"github.com/MrWong99/cinescope/pkg/types"
)

// source names the upstream data provider in every success envelope.
const source = "TMDB"

// handler executes a single tool against raw JSON arguments.
type handler func(ctx context.Context, raw json.RawMessage) (tools.Response, error)

// Dispatcher routes tool calls to the matching [tools.Set] handler. It owns
// no state beyond the routing table and is safe for concurrent use; calls
// for different cache keys proceed independently.
//
// The zero value is not usable; create instances with [New].
type Dispatcher struct {
	handlers map[string]handler
	metrics  *observe.Metrics
}

// New creates a Dispatcher over the three data tools served by set.
// metrics may be nil, in which case no measurements are recorded.
func New(set *tools.Set, metrics *observe.Metrics) *Dispatcher {
	return &Dispatcher{
		handlers: map[string]handler{
			tools.ToolSearchTitle:        set.SearchTitle,
			tools.ToolGetRecommendations: set.Recommendations,
			tools.ToolDiscover:           set.Discover,
		},
		metrics: metrics,
	}
}

// Dispatch executes the named tool with raw JSON arguments and returns the
// response envelope. Unknown tool names yield an unknown_tool error envelope;
// handler errors are converted via [types.AsError] so the envelope always
// carries {kind, message, retryable}.
//
// Every call is logged with its tool name, cache hit/miss, outcome, and a
// per-call correlation ID. ctx cancellation propagates into the handler and
// interrupts any backoff sleep in flight.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, raw json.RawMessage) types.Envelope {
	callID := uuid.NewString()

	ctx, span := observe.StartSpan(ctx, "tool "+name)
	defer span.End()

	start := time.Now()
	resp, err := d.invoke(ctx, name, raw)
	duration := time.Since(start)

	outcome := "ok"
	var toolErr *types.Error
	if err != nil {
		toolErr = types.AsError(err)
		outcome = string(toolErr.Kind)
	}

	if d.metrics != nil {
		d.metrics.RecordToolCall(ctx, name, outcome, resp.CacheHit, duration.Seconds())
	}

	attrs := []slog.Attr{
		slog.String("trace_id", observe.CorrelationID(ctx)),
		slog.String("call_id", callID),
		slog.String("tool", name),
		slog.Bool("cache_hit", resp.CacheHit),
		slog.String("outcome", outcome),
		slog.Duration("duration", duration),
	}
	if toolErr != nil {
		attrs = append(attrs, slog.Bool("retryable", toolErr.Retryable))
	}
	slog.LogAttrs(ctx, slog.LevelInfo, "tool call completed", attrs...)

	if resp.Unconstrained {
		slog.LogAttrs(ctx, slog.LevelInfo, "discover ran without genre or year filters",
			slog.String("call_id", callID),
		)
	}

	if toolErr != nil {
		return types.Failure(toolErr)
	}
	return types.Success(resp.Result, resp.CacheHit, source, resp.FetchedAt)
}

// invoke resolves the handler and runs it, converting panics into internal
// errors so a misbehaving handler cannot take down the serving loop.
func (d *Dispatcher) invoke(ctx context.Context, name string, raw json.RawMessage) (resp tools.Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = types.Errorf(types.KindInternal, "panic in %s handler: %v", name, r)
		}
	}()

	h, ok := d.handlers[name]
	if !ok {
		return tools.Response{}, types.Errorf(types.KindUnknownTool, "unknown tool %q", name)
	}
	return h(ctx, raw)
}
