package dispatchy

import (
	"errors"
	"fmt"
)

// Sentinel errors for dispatchy. Use errors.Is to check.
var (
	// ErrDuplicateCallID is returned by Execute before any dispatch when two
	// calls in the same batch share an ID. This is a caller contract
	// violation, not a tool failure, so it fails the whole batch fast.
	ErrDuplicateCallID = errors.New("duplicate call id in batch")
	// ErrShutdown is returned by Execute after the ExecContext was closed.
	ErrShutdown = errors.New("execution context is closed")
	// ErrPoolBroken signals that a worker process terminated abnormally and
	// the process pool is unusable until it is recreated.
	ErrPoolBroken = errors.New("process pool is broken")
	// ErrUnknownRef is reported by a worker when an adapter reference is not
	// registered on its side of the process boundary.
	ErrUnknownRef = errors.New("adapter reference not registered")
)

// BindingError reports a positional/keyword binding conflict or an excess of
// positional arguments. The executor converts it into an argument_binding
// Outcome; direct Bind callers can detect it with errors.As.
type BindingError struct {
	Reason string
}

func (e *BindingError) Error() string {
	return "argument binding failed: " + e.Reason
}

// IsBindingError returns true if err is or wraps a BindingError.
func IsBindingError(err error) bool {
	var be *BindingError
	return errors.As(err, &be)
}

// panicError wraps a recovered panic value so it can travel as an ordinary
// error; used by the executor and the worker loop.
type panicError struct{ p any }

func (e *panicError) Error() string {
	return "panic: " + fmt.Sprint(e.p)
}
