package dispatchy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	"github.com/google/uuid"
)

// workerEnvVar marks a spawned process as a pool worker. MaybeWorker checks it.
const workerEnvVar = "DISPATCHY_WORKER"

// workRequest travels host -> worker as one JSON document. The invocable is
// never serialized: Ref names an adapter the worker re-resolves in its own
// reference table. Token is pool-unique because call IDs are only unique
// within one batch and the pool multiplexes batches.
type workRequest struct {
	Token string         `json:"token"`
	Ref   string         `json:"ref"`
	Name  string         `json:"name"`
	Args  map[string]any `json:"args"`
}

// workResponse travels worker -> host. Exactly one of Value and Error is set.
type workResponse struct {
	Token string          `json:"token"`
	Value json.RawMessage `json:"value,omitempty"`
	Error string          `json:"error,omitempty"`
}

// procWorker is one worker OS process plus its stdin/stdout codec.
// A worker handles one request at a time; the pool hands it out via the idle
// channel and takes it back after a round trip.
type procWorker struct {
	cmd *exec.Cmd
	in  io.WriteCloser
	enc *json.Encoder
	dec *json.Decoder
}

func startWorker(command []string) (*procWorker, error) {
	cmd := exec.Command(command[0], command[1:]...)
	cmd.Env = append(os.Environ(), workerEnvVar+"=1")
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("worker stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("worker stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker %q: %w", command[0], err)
	}
	return &procWorker{
		cmd: cmd,
		in:  stdin,
		enc: json.NewEncoder(stdin),
		dec: json.NewDecoder(stdout),
	}, nil
}

// roundTrip sends one request and blocks for its response. Any transport
// failure means the worker process is gone or the protocol is corrupted.
func (w *procWorker) roundTrip(req workRequest) (workResponse, error) {
	if err := w.enc.Encode(req); err != nil {
		return workResponse{}, err
	}
	var resp workResponse
	if err := w.dec.Decode(&resp); err != nil {
		return workResponse{}, err
	}
	if resp.Token != req.Token {
		return workResponse{}, fmt.Errorf("response token mismatch: sent %s, got %s", req.Token, resp.Token)
	}
	return resp, nil
}

func (w *procWorker) stop() {
	_ = w.in.Close()
	if w.cmd.Process != nil {
		_ = w.cmd.Process.Kill()
	}
	_ = w.cmd.Wait()
}

// procPool is a fixed-size set of worker processes. A batch of any size is
// scheduled onto it; dispatch queues on the idle channel. One abnormal worker
// death breaks the whole pool: every not-yet-completed dispatch fails with
// ErrPoolBroken and the ExecContext replaces the pool for the next batch.
type procPool struct {
	logger     *slog.Logger
	idle       chan *procWorker
	all        []*procWorker
	broken     chan struct{}
	brokenOnce sync.Once
	closeOnce  sync.Once
}

func newProcPool(size int, command []string, logger *slog.Logger) (*procPool, error) {
	p := &procPool{
		logger: logger,
		idle:   make(chan *procWorker, size),
		broken: make(chan struct{}),
	}
	for range size {
		w, err := startWorker(command)
		if err != nil {
			p.close()
			return nil, err
		}
		p.all = append(p.all, w)
		p.idle <- w
	}
	return p, nil
}

// dispatch executes one transferable call on a worker process. A worker-side
// tool failure comes back as a plain error (the executor tags it tool_raised);
// a dead worker or a broken pool comes back as ErrPoolBroken.
func (p *procPool) dispatch(ctx context.Context, ref, name string, args map[string]any) (any, error) {
	var w *procWorker
	select {
	case w = <-p.idle:
	case <-p.broken:
		return nil, ErrPoolBroken
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	req := workRequest{Token: uuid.NewString(), Ref: ref, Name: name, Args: args}
	type reply struct {
		resp workResponse
		err  error
	}
	done := make(chan reply, 1)
	go func() {
		resp, err := w.roundTrip(req)
		done <- reply{resp: resp, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			p.logger.Warn("worker round trip failed", "tool", name, "error", r.err)
			p.markBroken()
			return nil, ErrPoolBroken
		}
		p.idle <- w
		if r.resp.Error != "" {
			return nil, errors.New(r.resp.Error)
		}
		var v any
		if err := json.Unmarshal(r.resp.Value, &v); err != nil {
			return nil, err
		}
		return v, nil
	case <-p.broken:
		// A sibling call's worker died. The pool is condemned wholesale, so
		// this call fails too even if its own worker was healthy.
		return nil, ErrPoolBroken
	}
}

func (p *procPool) markBroken() {
	p.brokenOnce.Do(func() { close(p.broken) })
}

func (p *procPool) isBroken() bool {
	select {
	case <-p.broken:
		return true
	default:
		return false
	}
}

func (p *procPool) close() {
	p.closeOnce.Do(func() {
		p.markBroken()
		for _, w := range p.all {
			w.stop()
		}
	})
}
