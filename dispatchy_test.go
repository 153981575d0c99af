package dispatchy

import (
	"context"
	"errors"
	"os"
	"testing"

	"go.uber.org/goleak"
)

// TestMain doubles as the worker entrypoint: when the test binary is spawned
// as a pool worker it serves requests and exits inside MaybeWorker. The
// reference table must be populated before that, and identically in host and
// worker, which is why registration happens here and not in individual tests.
func TestMain(m *testing.M) {
	registerTestRefs()
	MaybeWorker()
	goleak.VerifyTestMain(m)
}

const (
	refAdd    = "dispatchytest.add"
	refDivide = "dispatchytest.divide"
	refEcho   = "dispatchytest.echo"
	refPanic  = "dispatchytest.panic"
	refExit   = "dispatchytest.exit"
	refAsync  = "dispatchytest.async"
)

func registerTestRefs() {
	RegisterRef(refAdd, func(_ context.Context, args map[string]any) (any, error) {
		a, _ := args["a"].(float64)
		b, _ := args["b"].(float64)
		return a + b, nil
	}, "a", "b")
	RegisterRef(refDivide, func(_ context.Context, args map[string]any) (any, error) {
		a, _ := args["a"].(float64)
		b, _ := args["b"].(float64)
		if b == 0 {
			return nil, errors.New("division by zero")
		}
		return a / b, nil
	}, "a", "b")
	RegisterRef(refEcho, func(_ context.Context, args map[string]any) (any, error) {
		return args["msg"], nil
	}, "msg")
	RegisterRef(refPanic, func(_ context.Context, _ map[string]any) (any, error) {
		panic("tool exploded")
	})
	RegisterRef(refExit, func(_ context.Context, _ map[string]any) (any, error) {
		os.Exit(3)
		return nil, nil
	})
	RegisterStartRef(refAsync, func(_ context.Context, args map[string]any) <-chan AsyncResult {
		out := make(chan AsyncResult, 1)
		go func() {
			v, _ := args["x"].(float64)
			out <- AsyncResult{Value: v * 2}
		}()
		return out
	}, "x")
}

// refTool wraps a registered reference adapter in a Tool for resolver maps.
func refTool(name, ref string) Tool {
	a, ok := lookupRef(ref)
	if !ok {
		panic("unregistered test ref: " + ref)
	}
	return Tool{Name: name, Adapter: a}
}

// testRegistry builds the registry shared by executor tests: add, divide,
// echo, panic, and exit, all transferable by reference.
func testRegistry() *Registry {
	reg := NewRegistry()
	reg.Register(refTool("add", refAdd))
	reg.Register(refTool("divide", refDivide))
	reg.Register(refTool("echo", refEcho))
	reg.Register(refTool("panic", refPanic))
	reg.Register(refTool("exit", refExit))
	reg.Register(refTool("double", refAsync))
	return reg
}
