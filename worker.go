package dispatchy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// MaybeWorker turns the current process into a pool worker when the worker
// environment marker is set, and never returns in that case. Host binaries
// call it early in main, after every RegisterRef registration, so the worker
// resolves the same references as the host:
//
//	func main() {
//		registerTools() // RegisterRef calls
//		dispatchy.MaybeWorker()
//		// ... normal program
//	}
func MaybeWorker() {
	if os.Getenv(workerEnvVar) == "" {
		return
	}
	ServeWorker(os.Stdin, os.Stdout)
	os.Exit(0)
}

// ServeWorker runs the worker loop: decode one request at a time, execute it
// via the reference table, encode the response. Returns when the input
// stream closes. Exposed separately from MaybeWorker for custom worker
// binaries and tests.
func ServeWorker(r io.Reader, w io.Writer) {
	dec := json.NewDecoder(r)
	enc := json.NewEncoder(w)
	for {
		var req workRequest
		if err := dec.Decode(&req); err != nil {
			return
		}
		if err := enc.Encode(serveOne(req)); err != nil {
			return
		}
	}
}

// serveOne executes a single request. Tool failures and panics become the
// response's Error field; they must never kill the worker process.
func serveOne(req workRequest) workResponse {
	resp := workResponse{Token: req.Token}
	adapter, ok := lookupRef(req.Ref)
	if !ok {
		resp.Error = fmt.Sprintf("tool %q: %s (%s)", req.Name, ErrUnknownRef, req.Ref)
		return resp
	}
	v, err := invoke(context.Background(), adapter, req.Args)
	if err != nil {
		resp.Error = err.Error()
		return resp
	}
	data, err := json.Marshal(normalizeValue(v))
	if err != nil {
		data, _ = json.Marshal(fmt.Sprint(v))
	}
	resp.Value = data
	return resp
}
