package dispatchy

import (
	"sync"
)

var (
	refMu  sync.RWMutex
	refTab = make(map[string]Adapter)
)

// RegisterRef wraps fn in a FuncAdapter transferable to worker processes by
// the qualified name ref, and records it in the process-wide reference table.
// A worker process re-resolves ref in its own table, so the host and its
// workers must perform the same registrations (usually by running the same
// init path before MaybeWorker). Registering an existing ref replaces it.
func RegisterRef(ref string, fn Func, params ...string) *FuncAdapter {
	a := &FuncAdapter{binder: binder{params: params}, fn: fn, ref: ref}
	refMu.Lock()
	defer refMu.Unlock()
	refTab[ref] = a
	return a
}

// RegisterStartRef is RegisterRef for future-returning invocables. In a
// worker process the adapter's CallSync drives the future to completion on
// the worker's own goroutine; nothing is shared with the host.
func RegisterStartRef(ref string, start StartFunc, params ...string) *StartAdapter {
	a := &StartAdapter{binder: binder{params: params}, start: start, ref: ref}
	refMu.Lock()
	defer refMu.Unlock()
	refTab[ref] = a
	return a
}

// lookupRef resolves a reference on the worker side of the process boundary.
func lookupRef(ref string) (Adapter, bool) {
	refMu.RLock()
	defer refMu.RUnlock()
	a, ok := refTab[ref]
	return a, ok
}
