package dispatchy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Executor dispatches batches of tool calls onto an ExecContext's pools.
// Every call in a batch gets exactly one Outcome; one call's failure or crash
// never aborts its siblings. Safe for concurrent use.
type Executor struct {
	pools    *ExecContext
	onBefore func(context.Context, Call)
	onAfter  func(context.Context, Call, Outcome, time.Duration)
}

// NewExecutor creates an Executor on the given ExecContext. A nil pools
// argument gets a default NewContext(); close it through Executor.Close.
func NewExecutor(pools *ExecContext, opts ...ExecutorOption) *Executor {
	if pools == nil {
		pools = NewContext()
	}
	e := &Executor{pools: pools}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Context returns the underlying ExecContext (e.g. to switch the default mode).
func (e *Executor) Context() *ExecContext { return e.pools }

// Close tears down the underlying ExecContext.
func (e *Executor) Close() error { return e.pools.Close() }

// Execute runs every call concurrently and blocks until all outcomes are
// known, then returns a map with exactly one entry per input call ID.
// Per-call failures are always captured as error Outcomes; the error return
// is reserved for caller contract violations (duplicate IDs, closed context).
// Completion order across calls is unconstrained.
func (e *Executor) Execute(ctx context.Context, calls []Call, resolver Resolver, opts ...ExecuteOption) (map[string]Outcome, error) {
	var o executeOptions
	for _, opt := range opts {
		opt(&o)
	}
	if e.pools.isClosed() {
		return nil, ErrShutdown
	}
	if err := checkIDs(calls); err != nil {
		return nil, err
	}

	mode := e.pools.DefaultMode()
	if o.modeSet {
		mode = o.mode
	}

	// The pool is acquired once per batch. If it cannot be built at all
	// (worker command missing, spawn failure), the whole batch falls back to
	// the thread pool rather than failing: pool absence is an environment
	// problem, not a tool failure.
	var pool *procPool
	if mode == ModeProcess {
		p, err := e.pools.processPool()
		if err != nil && !errors.Is(err, ErrShutdown) {
			e.pools.logger.Warn("process pool unavailable, batch falls back to threads", "error", err)
		} else if err == nil {
			pool = p
		}
	}

	results := make(map[string]Outcome, len(calls))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, call := range calls {
		wg.Go(func() {
			out := e.executeOne(ctx, call, resolver, pool)
			mu.Lock()
			results[call.ID] = out
			mu.Unlock()
		})
	}
	wg.Wait()

	if pool != nil && pool.isBroken() {
		e.pools.retire(pool)
	}
	return results, nil
}

func (e *Executor) executeOne(ctx context.Context, call Call, resolver Resolver, pool *procPool) Outcome {
	start := time.Now()
	if e.onBefore != nil {
		e.onBefore(ctx, call)
	}
	out := e.runCall(ctx, call, resolver, pool)
	if e.onAfter != nil {
		e.onAfter(ctx, call, out, time.Since(start))
	}
	return out
}

// runCall is the per-call pipeline: parse, resolve, bind, dispatch. Each step
// failure short-circuits into an Outcome of the matching kind.
func (e *Executor) runCall(ctx context.Context, call Call, resolver Resolver, pool *procPool) Outcome {
	named, err := parseArgs(call.Args)
	if err != nil {
		return errOutcome(KindArgumentParse, "call %s: %s", call.ID, err)
	}
	tool, ok := resolver.Resolve(call.Name)
	if !ok {
		return errOutcome(KindUnknownTool, "no tool named %q", call.Name)
	}
	bound, err := tool.Adapter.Bind(nil, named)
	if err != nil {
		return errOutcome(KindArgumentBinding, "tool %q: %s", call.Name, err)
	}

	if pool != nil {
		if ref := adapterRef(tool.Adapter); ref != "" {
			return e.runInWorker(ctx, pool, ref, call, bound)
		}
		// Opaque adapter: a closure over live state cannot cross the process
		// boundary. This one call drops to the thread pool; its siblings stay
		// wherever they were routed.
		e.pools.logger.Debug("adapter not transferable, using thread pool",
			"tool", call.Name, "call", call.ID)
	}
	return e.runInThread(ctx, tool, bound)
}

func (e *Executor) runInThread(ctx context.Context, tool Tool, args map[string]any) Outcome {
	slots := e.pools.threadSlots()
	if err := slots.Acquire(ctx, 1); err != nil {
		return errOutcome(KindToolRaised, "tool %q: %s", tool.Name, err)
	}
	defer slots.Release(1)
	v, err := invoke(ctx, tool.Adapter, args)
	if err != nil {
		return errOutcome(KindToolRaised, "%s", err)
	}
	return Outcome{Value: normalizeValue(v)}
}

func (e *Executor) runInWorker(ctx context.Context, pool *procPool, ref string, call Call, args map[string]any) Outcome {
	v, err := pool.dispatch(ctx, ref, call.Name, args)
	switch {
	case err == nil:
		return Outcome{Value: v}
	case errors.Is(err, ErrPoolBroken):
		return errOutcome(KindWorkerCrashed, "process pool broke while executing %q", call.Name)
	default:
		return errOutcome(KindToolRaised, "%s", err)
	}
}

// invoke calls the adapter synchronously with panic recovery, so a panicking
// invocable degrades to an error instead of taking the batch down.
func invoke(ctx context.Context, a Adapter, args map[string]any) (v any, err error) {
	defer func() {
		if p := recover(); p != nil {
			v = nil
			err = &panicError{p: p}
		}
	}()
	return a.CallSync(ctx, args)
}

// parseArgs decodes the raw argument payload into a keyword map. Empty and
// null payloads mean "no arguments".
func parseArgs(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var named map[string]any
	if err := json.Unmarshal(raw, &named); err != nil {
		return nil, fmt.Errorf("arguments are not a JSON object: %w", err)
	}
	if named == nil {
		named = map[string]any{}
	}
	return named, nil
}

func checkIDs(calls []Call) error {
	seen := make(map[string]struct{}, len(calls))
	for _, c := range calls {
		if _, dup := seen[c.ID]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateCallID, c.ID)
		}
		seen[c.ID] = struct{}{}
	}
	return nil
}
