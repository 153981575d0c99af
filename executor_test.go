package dispatchy

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func raw(s string) json.RawMessage { return []byte(s) }

func newThreadExecutor(t *testing.T, opts ...ExecutorOption) *Executor {
	t.Helper()
	e := NewExecutor(NewContext(WithMaxWorkers(4)), opts...)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestExecute_AllIDsPresent(t *testing.T) {
	e := newThreadExecutor(t)
	calls := []Call{
		{ID: "c1", Name: "add", Args: raw(`{"a": 1, "b": 2}`)},
		{ID: "c2", Name: "echo", Args: raw(`{"msg": "hello"}`)},
		{ID: "c3", Name: "divide", Args: raw(`{"a": 8, "b": 2}`)},
	}
	results, err := e.Execute(context.Background(), calls, testRegistry())
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, c := range calls {
		out, ok := results[c.ID]
		require.True(t, ok, "missing outcome for %s", c.ID)
		require.True(t, out.OK(), "unexpected error for %s: %v", c.ID, out.Err)
	}
	assert.Equal(t, float64(3), results["c1"].Value)
	assert.Equal(t, "hello", results["c2"].Value)
	assert.Equal(t, float64(4), results["c3"].Value)
}

func TestExecute_FailureIsolation(t *testing.T) {
	e := newThreadExecutor(t)
	calls := []Call{
		{ID: "c1", Name: "add", Args: raw(`{"a": 1, "b": 2}`)},
		{ID: "c2", Name: "divide", Args: raw(`{"a": 1, "b": 0}`)},
	}
	results, err := e.Execute(context.Background(), calls, testRegistry())
	require.NoError(t, err)
	require.Len(t, results, 2)

	require.True(t, results["c1"].OK())
	assert.Equal(t, float64(3), results["c1"].Value)

	require.False(t, results["c2"].OK())
	assert.Equal(t, KindToolRaised, results["c2"].Err.Kind)
	assert.Contains(t, results["c2"].Err.Message, "division by zero")
}

func TestExecute_PanicBecomesToolRaised(t *testing.T) {
	e := newThreadExecutor(t)
	results, err := e.Execute(context.Background(), []Call{
		{ID: "c1", Name: "panic", Args: raw(`{}`)},
	}, testRegistry())
	require.NoError(t, err)
	require.False(t, results["c1"].OK())
	assert.Equal(t, KindToolRaised, results["c1"].Err.Kind)
	assert.Contains(t, results["c1"].Err.Message, "tool exploded")
}

func TestExecute_UnknownTool(t *testing.T) {
	e := newThreadExecutor(t)
	results, err := e.Execute(context.Background(), []Call{
		{ID: "c1", Name: "missing", Args: raw(`{}`)},
	}, testRegistry())
	require.NoError(t, err)
	require.False(t, results["c1"].OK())
	assert.Equal(t, KindUnknownTool, results["c1"].Err.Kind)
}

func TestExecute_ArgumentParseError(t *testing.T) {
	e := newThreadExecutor(t)
	results, err := e.Execute(context.Background(), []Call{
		{ID: "bad", Name: "add", Args: raw(`{"a": `)},
		{ID: "array", Name: "add", Args: raw(`[1, 2]`)},
		{ID: "empty", Name: "echo", Args: nil},
	}, testRegistry())
	require.NoError(t, err)
	assert.Equal(t, KindArgumentParse, results["bad"].Err.Kind)
	assert.Equal(t, KindArgumentParse, results["array"].Err.Kind)
	assert.True(t, results["empty"].OK(), "empty args mean no arguments")
}

func TestExecute_BindingError(t *testing.T) {
	// The batch surface carries named arguments only, so a binding failure
	// needs an adapter whose Bind rejects. Positional conflicts themselves
	// are covered in adapter_test.go.
	a := NewFuncAdapter(func(_ context.Context, args map[string]any) (any, error) {
		return args, nil
	}, "x")
	reg := NewRegistry()
	reg.Register(Tool{Name: "one", Adapter: bindRejecting{a}})

	e := newThreadExecutor(t)
	results, err := e.Execute(context.Background(), []Call{
		{ID: "c1", Name: "one", Args: raw(`{"x": 1}`)},
	}, reg)
	require.NoError(t, err)
	require.False(t, results["c1"].OK())
	assert.Equal(t, KindArgumentBinding, results["c1"].Err.Kind)
}

// bindRejecting fails every Bind with a BindingError.
type bindRejecting struct{ Adapter }

func (bindRejecting) Bind([]any, map[string]any) (map[string]any, error) {
	return nil, &BindingError{Reason: "rejected"}
}

func TestExecute_DuplicateIDsFailFast(t *testing.T) {
	e := newThreadExecutor(t)
	var ran atomic.Int32
	reg := NewRegistry()
	reg.Register(Tool{Name: "count", Adapter: NewFuncAdapter(
		func(_ context.Context, _ map[string]any) (any, error) {
			ran.Add(1)
			return nil, nil
		})})
	_, err := e.Execute(context.Background(), []Call{
		{ID: "c1", Name: "count", Args: raw(`{}`)},
		{ID: "c1", Name: "count", Args: raw(`{}`)},
	}, reg)
	require.ErrorIs(t, err, ErrDuplicateCallID)
	assert.Zero(t, ran.Load(), "nothing may be dispatched on a contract violation")
}

func TestExecute_NonSerializableValueBecomesString(t *testing.T) {
	reg := NewRegistry()
	reg.Register(Tool{Name: "chan", Adapter: NewFuncAdapter(
		func(_ context.Context, _ map[string]any) (any, error) {
			return make(chan int), nil
		})})
	e := newThreadExecutor(t)
	results, err := e.Execute(context.Background(), []Call{
		{ID: "c1", Name: "chan", Args: raw(`{}`)},
	}, reg)
	require.NoError(t, err)
	require.True(t, results["c1"].OK())
	_, isString := results["c1"].Value.(string)
	assert.True(t, isString, "non-serializable value must be stringified, got %T", results["c1"].Value)
}

func TestExecute_Hooks(t *testing.T) {
	var before, after atomic.Int32
	var lastDur atomic.Int64
	e := newThreadExecutor(t,
		WithOnBefore(func(_ context.Context, _ Call) { before.Add(1) }),
		WithOnAfter(func(_ context.Context, _ Call, _ Outcome, d time.Duration) {
			after.Add(1)
			lastDur.Store(int64(d))
		}),
	)
	_, err := e.Execute(context.Background(), []Call{
		{ID: "c1", Name: "add", Args: raw(`{"a": 1, "b": 2}`)},
		{ID: "c2", Name: "missing", Args: raw(`{}`)},
	}, testRegistry())
	require.NoError(t, err)
	assert.Equal(t, int32(2), before.Load())
	assert.Equal(t, int32(2), after.Load(), "hooks fire for failed calls too")
	assert.GreaterOrEqual(t, lastDur.Load(), int64(0))
}

func TestExecute_AfterCloseReturnsShutdown(t *testing.T) {
	e := NewExecutor(NewContext(WithMaxWorkers(2)))
	require.NoError(t, e.Close())
	_, err := e.Execute(context.Background(), []Call{
		{ID: "c1", Name: "add", Args: raw(`{}`)},
	}, testRegistry())
	require.ErrorIs(t, err, ErrShutdown)
}

func TestExecute_StartAdapterTool(t *testing.T) {
	start := StartFunc(func(_ context.Context, args map[string]any) <-chan AsyncResult {
		out := make(chan AsyncResult, 1)
		go func() {
			v, _ := args["x"].(float64)
			out <- AsyncResult{Value: v * 10}
		}()
		return out
	})
	reg := NewRegistry()
	reg.Register(Tool{Name: "tenfold", Adapter: NewStartAdapter(start, "x")})

	// Direct await in isolation.
	direct := <-start(context.Background(), map[string]any{"x": float64(4)})
	require.NoError(t, direct.Err)

	e := newThreadExecutor(t)
	results, err := e.Execute(context.Background(), []Call{
		{ID: "c1", Name: "tenfold", Args: raw(`{"x": 4}`)},
	}, reg)
	require.NoError(t, err)
	require.True(t, results["c1"].OK())
	assert.Equal(t, direct.Value, results["c1"].Value)
}

func TestExecute_ConcurrentBatches(t *testing.T) {
	e := newThreadExecutor(t)
	reg := testRegistry()
	done := make(chan error, 2)
	for range 2 {
		go func() {
			results, err := e.Execute(context.Background(), []Call{
				{ID: "c1", Name: "add", Args: raw(`{"a": 1, "b": 1}`)},
				{ID: "c2", Name: "add", Args: raw(`{"a": 2, "b": 2}`)},
			}, reg)
			if err == nil && len(results) != 2 {
				err = assert.AnError
			}
			done <- err
		}()
	}
	for range 2 {
		require.NoError(t, <-done)
	}
}
