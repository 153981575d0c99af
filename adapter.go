package dispatchy

import (
	"context"
	"fmt"
	"maps"
	"slices"
)

// AsyncResult is delivered exactly once on the channel returned by
// Adapter.CallAsync and StartFunc.
type AsyncResult struct {
	Value any
	Err   error
}

// Adapter presents one invocable behind a dual sync/async contract,
// independent of how the invocable executes natively. Adapters carry no
// per-call state: concurrent calls on the same adapter are safe.
//
// The caller chooses the entry point; the adapter never inspects its ambient
// execution context to guess. Batch workers use CallSync. CallAsync exists
// for callers that compose invocations into their own pipelines and must not
// block.
type Adapter interface {
	// Params returns the declared parameter names in positional order.
	Params() []string
	// Bind maps positional arguments left-to-right onto the declared
	// parameters and merges them with named arguments. It fails with a
	// BindingError when more positional arguments are supplied than declared
	// parameters, or when a parameter is supplied both positionally and by
	// name. Omitted parameters are the invocable's concern.
	Bind(pos []any, named map[string]any) (map[string]any, error)
	// CallSync invokes and blocks until completion. Safe to call from any
	// goroutine or worker process; a future-backed invocable is driven to
	// completion right here, on resources private to this one call.
	CallSync(ctx context.Context, args map[string]any) (any, error)
	// CallAsync begins the invocation and returns a completion channel that
	// receives exactly one AsyncResult.
	CallAsync(ctx context.Context, args map[string]any) <-chan AsyncResult
}

// Referencer is implemented by adapters that can cross a process boundary by
// qualified name. A worker process re-resolves the reference in its own
// reference table instead of receiving serialized code. Adapters without a
// reference are opaque and stay on the thread pool.
type Referencer interface {
	Ref() string
}

// Func is a blocking invocable: a plain Go function.
type Func func(ctx context.Context, args map[string]any) (any, error)

// StartFunc begins an invocation and immediately returns its completion
// channel, in the manner of rpc.Client.Go. The channel must receive exactly
// one AsyncResult.
type StartFunc func(ctx context.Context, args map[string]any) <-chan AsyncResult

// binder implements Params and Bind for both adapter kinds.
type binder struct {
	params []string
}

func (b binder) Params() []string { return slices.Clone(b.params) }

func (b binder) Bind(pos []any, named map[string]any) (map[string]any, error) {
	if len(pos) > len(b.params) {
		return nil, &BindingError{Reason: fmt.Sprintf(
			"expected at most %d positional arguments, got %d", len(b.params), len(pos))}
	}
	bound := make(map[string]any, len(pos)+len(named))
	maps.Copy(bound, named)
	for i, v := range pos {
		name := b.params[i]
		if _, dup := bound[name]; dup {
			return nil, &BindingError{Reason: fmt.Sprintf(
				"parameter %q passed both positionally and by name", name)}
		}
		bound[name] = v
	}
	return bound, nil
}

// FuncAdapter wraps a blocking Go function. CallSync runs it inline;
// CallAsync runs it on a fresh goroutine so the caller is never blocked.
type FuncAdapter struct {
	binder
	fn  Func
	ref string
}

// NewFuncAdapter wraps fn with the given declared parameter order.
func NewFuncAdapter(fn Func, params ...string) *FuncAdapter {
	return &FuncAdapter{binder: binder{params: params}, fn: fn}
}

// Ref returns the qualified reference name, or "" for an opaque adapter.
func (a *FuncAdapter) Ref() string { return a.ref }

func (a *FuncAdapter) CallSync(ctx context.Context, args map[string]any) (any, error) {
	return a.fn(ctx, args)
}

func (a *FuncAdapter) CallAsync(ctx context.Context, args map[string]any) <-chan AsyncResult {
	out := make(chan AsyncResult, 1)
	go func() {
		v, err := a.fn(ctx, args)
		out <- AsyncResult{Value: v, Err: err}
	}()
	return out
}

// StartAdapter wraps a future-returning invocable (remote clients, anything
// rpc.Client.Go-shaped). CallAsync hands the future straight through;
// CallSync drives it to completion on the calling goroutine.
type StartAdapter struct {
	binder
	start StartFunc
	ref   string
}

// NewStartAdapter wraps start with the given declared parameter order.
func NewStartAdapter(start StartFunc, params ...string) *StartAdapter {
	return &StartAdapter{binder: binder{params: params}, start: start}
}

// Ref returns the qualified reference name, or "" for an opaque adapter.
func (a *StartAdapter) Ref() string { return a.ref }

func (a *StartAdapter) CallSync(ctx context.Context, args map[string]any) (any, error) {
	select {
	case res := <-a.start(ctx, args):
		return res.Value, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (a *StartAdapter) CallAsync(ctx context.Context, args map[string]any) <-chan AsyncResult {
	return a.start(ctx, args)
}

// adapterRef extracts the transfer reference, or "" if the adapter is opaque.
func adapterRef(a Adapter) string {
	if r, ok := a.(Referencer); ok {
		return r.Ref()
	}
	return ""
}

var (
	_ Adapter    = (*FuncAdapter)(nil)
	_ Adapter    = (*StartAdapter)(nil)
	_ Referencer = (*FuncAdapter)(nil)
	_ Referencer = (*StartAdapter)(nil)
)
