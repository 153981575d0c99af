// Package dispatchy executes batches of heterogeneous tool calls
// concurrently, giving every call exactly one outcome: a value or an
// isolated, typed error. One call's failure, panic, or worker crash never
// aborts its siblings.
//
// # Overview
//
// LLMs produce tool calls as JSON. This package runs a whole batch of them at
// once: parse arguments, resolve the tool, bind arguments, dispatch to a
// worker pool, capture the result. Two concurrency models are available per
// batch: ModeThread (goroutines sharing process memory) and ModeProcess
// (isolated worker OS processes, for invocables that must not share state
// with the host).
//
// Pipeline: Call -> Resolver -> Tool.Adapter (Bind, CallSync/CallAsync) ->
// ExecContext pool -> Outcome map keyed by call ID.
//
// # Key concepts
//
//   - Dual-mode adapters: an Adapter exposes CallSync and CallAsync; the
//     caller picks the entry point, the adapter never guesses from context.
//   - Partial failure isolation: Execute always returns one Outcome per input
//     ID; errors are per-call, tagged with an ErrorKind.
//   - Reference transfer: process-mode calls are shipped by qualified name
//     (RegisterRef) and re-resolved in the worker, never serialized. Opaque
//     adapters silently fall back to the thread pool, one call at a time.
//   - Broken pool recovery: an abnormal worker death fails the pool's pending
//     calls with worker_crashed and the next batch gets a fresh pool.
//
// # Example
//
//	type Args struct{ A, B float64 }
//	add, err := dispatchy.NewTool("add", "Add two numbers",
//	    func(_ context.Context, a Args) (any, error) { return a.A + a.B, nil })
//	if err != nil { ... }
//	reg := dispatchy.NewRegistry()
//	reg.Register(add)
//	exec := dispatchy.NewExecutor(dispatchy.NewContext())
//	defer exec.Close()
//	results, err := exec.Execute(ctx, []dispatchy.Call{
//	    {ID: "1", Name: "add", Args: []byte(`{"A": 3, "B": 5}`)},
//	}, reg)
package dispatchy
