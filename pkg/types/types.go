// Package types defines the shared wire types used across all CineScope packages.
//
// These types form the lingua franca between the TMDB client, the tool layer,
// and the dispatcher. They are intentionally minimal: each package defines its
// own domain types, but the response envelope and the error taxonomy cross
// package boundaries and live here to avoid circular imports.
package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Kind classifies a tool failure so callers can decide how to react without
// parsing message text.
type Kind string

// The full set of failure kinds carried across the tool boundary.
const (
	// KindInvalidArgument marks a request rejected before any upstream call.
	KindInvalidArgument Kind = "invalid_argument"

	// KindUnknownTool marks a call naming a tool the dispatcher does not serve.
	KindUnknownTool Kind = "unknown_tool"

	// KindNotFound marks a well-formed query that matched nothing upstream.
	KindNotFound Kind = "not_found"

	// KindRateLimited marks an upstream HTTP 429.
	KindRateLimited Kind = "rate_limited"

	// KindTransientNetwork marks connection failures, timeouts, and resets.
	KindTransientNetwork Kind = "transient_network_error"

	// KindUpstream marks an upstream HTTP error response. Retryability depends
	// on the status class: 5xx is retryable, other 4xx is not.
	KindUpstream Kind = "upstream_error"

	// KindMalformedResponse marks an upstream body that failed to parse.
	KindMalformedResponse Kind = "malformed_response"

	// KindRetryExhausted marks a transient failure that persisted through the
	// full retry schedule.
	KindRetryExhausted Kind = "retry_exhausted"

	// KindInternal marks a bug or unclassified failure inside the server.
	KindInternal Kind = "internal_error"
)

// retryableByDefault reports the default retryability for errors of this kind.
// [KindUpstream] defaults to false; callers set the flag explicitly for 5xx.
func (k Kind) retryableByDefault() bool {
	switch k {
	case KindRateLimited, KindTransientNetwork, KindRetryExhausted:
		return true
	default:
		return false
	}
}

// Error is the structured failure carried across the tool boundary. It
// serializes to the {kind, message, retryable} object embedded in the error
// envelope.
type Error struct {
	Kind      Kind   `json:"kind"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`

	// Cause preserves the underlying error for logs and errors.Is/As chains.
	// It is never serialized.
	Cause error `json:"-"`
}

// Errorf builds a kind-tagged [Error] with the kind's default retryability.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{
		Kind:      kind,
		Message:   fmt.Sprintf(format, args...),
		Retryable: kind.retryableByDefault(),
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap exposes the underlying cause to errors.Is and errors.As.
func (e *Error) Unwrap() error { return e.Cause }

// AsError extracts the first *Error in err's chain. Errors without one are
// wrapped as [KindInternal] so every failure can cross the wire in the same
// shape.
func AsError(err error) *Error {
	var te *Error
	if errors.As(err, &te) {
		return te
	}
	return &Error{
		Kind:      KindInternal,
		Message:   err.Error(),
		Retryable: false,
		Cause:     err,
	}
}

// Retryable reports whether err is worth another attempt. Errors outside the
// taxonomy are treated as permanent.
func Retryable(err error) bool {
	var te *Error
	if errors.As(err, &te) {
		return te.Retryable
	}
	return false
}

// Envelope is the JSON object returned for every tool call. Exactly one of
// Result or Err is populated: a success serializes as
//
//	{"result": ..., "cache_hit": false, "source": "TMDB", "fetched_at": "..."}
//
// and a failure as
//
//	{"error": {"kind": "...", "message": "...", "retryable": false}}
type Envelope struct {
	Result    any
	CacheHit  bool
	Source    string
	FetchedAt time.Time
	Err       *Error
}

// Success builds a success envelope. fetchedAt records when the result was
// obtained from upstream; cache hits keep the original fetch time.
func Success(result any, cacheHit bool, source string, fetchedAt time.Time) Envelope {
	return Envelope{Result: result, CacheHit: cacheHit, Source: source, FetchedAt: fetchedAt}
}

// Failure builds an error envelope from any error via [AsError].
func Failure(err error) Envelope {
	return Envelope{Err: AsError(err)}
}

// MarshalJSON renders the success or failure shape depending on which side of
// the envelope is populated. Error envelopes never leak result fields and vice
// versa.
func (e Envelope) MarshalJSON() ([]byte, error) {
	if e.Err != nil {
		return json.Marshal(struct {
			Err *Error `json:"error"`
		}{e.Err})
	}
	return json.Marshal(struct {
		Result    any       `json:"result"`
		CacheHit  bool      `json:"cache_hit"`
		Source    string    `json:"source"`
		FetchedAt time.Time `json:"fetched_at"`
	}{e.Result, e.CacheHit, e.Source, e.FetchedAt})
}
