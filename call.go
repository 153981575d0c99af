package dispatchy

import (
	"encoding/json"
	"fmt"
)

// ErrorKind classifies the failure recorded in an Outcome.
type ErrorKind string

// Error kinds. Every per-call failure is tagged with exactly one of these.
const (
	// KindArgumentParse: the call's Args were not a valid JSON object.
	KindArgumentParse ErrorKind = "argument_parse"
	// KindUnknownTool: the resolver knows no tool with the requested name.
	KindUnknownTool ErrorKind = "unknown_tool"
	// KindArgumentBinding: positional/keyword binding failed (see Adapter.Bind).
	KindArgumentBinding ErrorKind = "argument_binding"
	// KindToolRaised: the invocable itself returned an error or panicked.
	KindToolRaised ErrorKind = "tool_raised"
	// KindWorkerCrashed: a worker process died abnormally while the call was
	// routed to the process pool.
	KindWorkerCrashed ErrorKind = "worker_crashed"
)

// Call is a single execution request (as produced by the LLM).
// ID is caller-assigned and must be unique within a batch.
type Call struct {
	ID   string
	Name string
	Args json.RawMessage // JSON object of arguments
}

// CallError is the failed side of an Outcome: a kind tag plus a
// human-readable message safe to hand back to the calling layer.
type CallError struct {
	Kind    ErrorKind
	Message string
}

func (e *CallError) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// Outcome is the per-call result: either a value or a CallError, never both.
type Outcome struct {
	Value any
	Err   *CallError
}

// OK reports whether the call produced a value.
func (o Outcome) OK() bool { return o.Err == nil }

func errOutcome(kind ErrorKind, format string, args ...any) Outcome {
	return Outcome{Err: &CallError{Kind: kind, Message: fmt.Sprintf(format, args...)}}
}

// normalizeValue makes a successful value safe to hand to a downstream
// consumer: anything json.Marshal cannot represent is replaced with its
// fmt.Sprint rendering.
func normalizeValue(v any) any {
	if v == nil {
		return nil
	}
	if _, err := json.Marshal(v); err != nil {
		return fmt.Sprint(v)
	}
	return v
}
