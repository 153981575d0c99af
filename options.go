package dispatchy

import (
	"context"
	"log/slog"
	"time"
)

type contextOptions struct {
	mode      Mode
	cap       int
	workerCmd []string
	logger    *slog.Logger
}

// ContextOption configures an ExecContext.
type ContextOption func(*contextOptions)

// WithDefaultMode sets the initial default execution mode (default ModeThread).
func WithDefaultMode(m Mode) ContextOption {
	return func(o *contextOptions) {
		o.mode = m
	}
}

// WithMaxWorkers caps both pools' parallelism. Defaults to runtime.NumCPU();
// values below 1 are clamped to 1. A batch of any size is queued onto the
// fixed-size pool, never one worker per call.
func WithMaxWorkers(n int) ContextOption {
	return func(o *contextOptions) {
		o.cap = n
	}
}

// WithWorkerCommand sets the command spawned as a pool worker process. The
// command must call MaybeWorker (or ServeWorker) after registering the same
// references as the host. Defaults to re-executing the current binary.
func WithWorkerCommand(name string, args ...string) ContextOption {
	return func(o *contextOptions) {
		o.workerCmd = append([]string{name}, args...)
	}
}

// WithLogger sets the structured logger for pool lifecycle, fallback, and
// crash-recovery events. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) ContextOption {
	return func(o *contextOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithOnBefore sets a hook called before each call is dispatched.
func WithOnBefore(fn func(context.Context, Call)) ExecutorOption {
	return func(e *Executor) {
		e.onBefore = fn
	}
}

// WithOnAfter sets a hook called after each call's outcome is known, with the
// wall-clock duration of the whole per-call pipeline.
func WithOnAfter(fn func(context.Context, Call, Outcome, time.Duration)) ExecutorOption {
	return func(e *Executor) {
		e.onAfter = fn
	}
}

type executeOptions struct {
	mode    Mode
	modeSet bool
}

// ExecuteOption configures a single Execute call.
type ExecuteOption func(*executeOptions)

// WithMode overrides the execution mode for this one batch without mutating
// the ExecContext's default.
func WithMode(m Mode) ExecuteOption {
	return func(o *executeOptions) {
		o.mode = m
		o.modeSet = true
	}
}

type toolOptions struct {
	ref    string
	strict bool
	params []string
}

// ToolOption configures a tool built with NewTool.
type ToolOption func(*toolOptions)

// WithRef makes the tool's adapter transferable to worker processes under the
// given qualified name (see RegisterRef). Without it the tool always runs on
// the thread pool, even under ModeProcess.
func WithRef(ref string) ToolOption {
	return func(o *toolOptions) {
		o.ref = ref
	}
}

// WithStrict sets additionalProperties: false for all objects in the
// generated schema and makes every property required (OpenAI Structured
// Outputs compatibility).
func WithStrict() ToolOption {
	return func(o *toolOptions) {
		o.strict = true
	}
}

// WithParams overrides the declared positional parameter order derived from
// the argument struct's field order.
func WithParams(params ...string) ToolOption {
	return func(o *toolOptions) {
		o.params = params
	}
}
