// Package testutil provides test helpers for dispatchy (e.g. MockAdapter).
package testutil

import (
	"context"

	"github.com/skosovsky/dispatchy"
)

// MockAdapter is a configurable Adapter implementation for tests.
type MockAdapter struct {
	ParamsVal []string
	RefVal    string
	SyncFn    func(ctx context.Context, args map[string]any) (any, error)
}

// Params returns ParamsVal.
func (m *MockAdapter) Params() []string {
	return append([]string(nil), m.ParamsVal...)
}

// Bind delegates to a FuncAdapter with the same declared parameters.
func (m *MockAdapter) Bind(pos []any, named map[string]any) (map[string]any, error) {
	return dispatchy.NewFuncAdapter(nil, m.ParamsVal...).Bind(pos, named)
}

// CallSync runs SyncFn if set, otherwise returns nil.
func (m *MockAdapter) CallSync(ctx context.Context, args map[string]any) (any, error) {
	if m.SyncFn != nil {
		return m.SyncFn(ctx, args)
	}
	return nil, nil
}

// CallAsync runs CallSync on a goroutine and delivers one result.
func (m *MockAdapter) CallAsync(ctx context.Context, args map[string]any) <-chan dispatchy.AsyncResult {
	out := make(chan dispatchy.AsyncResult, 1)
	go func() {
		v, err := m.CallSync(ctx, args)
		out <- dispatchy.AsyncResult{Value: v, Err: err}
	}()
	return out
}

// Ref returns RefVal, making the adapter transferable when non-empty.
func (m *MockAdapter) Ref() string { return m.RefVal }

// StaticResolver resolves tools from a fixed map.
type StaticResolver map[string]dispatchy.Tool

// Resolve implements dispatchy.Resolver.
func (r StaticResolver) Resolve(name string) (dispatchy.Tool, bool) {
	t, ok := r[name]
	return t, ok
}

var (
	_ dispatchy.Adapter  = (*MockAdapter)(nil)
	_ dispatchy.Resolver = (StaticResolver)(nil)
)
