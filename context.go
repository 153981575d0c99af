package dispatchy

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Mode selects the concurrency model for a batch.
type Mode int

const (
	// ModeThread runs calls on goroutines sharing process memory, bounded by
	// the context's worker cap. No transfer of the invocable is needed.
	ModeThread Mode = iota
	// ModeProcess runs transferable calls in isolated worker OS processes.
	// Calls whose adapter cannot cross the process boundary silently fall
	// back to ModeThread, one call at a time.
	ModeProcess
)

func (m Mode) String() string {
	switch m {
	case ModeThread:
		return "thread"
	case ModeProcess:
		return "process"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ExecContext owns the process-lifetime worker pools and the default
// execution mode. Pools are created lazily on first use of their mode, at
// most once each, and torn down exactly once by Close. All pool state
// mutation is serialized: two batches racing to create the same pool get the
// same instance, and crash recovery never races a fresh creation.
type ExecContext struct {
	mu        sync.Mutex
	mode      Mode
	cap       int
	workerCmd []string
	logger    *slog.Logger

	threads *semaphore.Weighted
	procs   *procPool
	closed  bool
}

// NewContext creates an ExecContext. Without options it defaults to
// ModeThread, a worker cap of runtime.NumCPU(), re-executing the current
// binary as the worker command, and slog.Default() for logging.
func NewContext(opts ...ContextOption) *ExecContext {
	o := contextOptions{
		mode:   ModeThread,
		cap:    runtime.NumCPU(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.cap < 1 {
		o.cap = 1
	}
	return &ExecContext{
		mode:      o.mode,
		cap:       o.cap,
		workerCmd: o.workerCmd,
		logger:    o.logger,
	}
}

// SetDefaultMode permanently changes the default mode for subsequent batches.
// Idempotent and safe for concurrent use; it does not affect batches already
// in flight or batches passing an explicit WithMode override.
func (c *ExecContext) SetDefaultMode(m Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode == m {
		return
	}
	c.mode = m
	c.logger.Info("default execution mode changed", "mode", m.String())
}

// DefaultMode returns the current default mode.
func (c *ExecContext) DefaultMode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

func (c *ExecContext) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// threadSlots returns the shared thread-pool semaphore, creating it on first use.
func (c *ExecContext) threadSlots() *semaphore.Weighted {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.threads == nil {
		c.threads = semaphore.NewWeighted(int64(c.cap))
		c.logger.Debug("thread pool ready", "workers", c.cap)
	}
	return c.threads
}

// processPool returns a usable process pool, creating one on first use.
// A pool retired after a crash is replaced here, so the batch after a crash
// runs on fresh workers.
func (c *ExecContext) processPool() (*procPool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrShutdown
	}
	if c.procs != nil {
		return c.procs, nil
	}
	cmd := c.workerCmd
	if len(cmd) == 0 {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolve worker command: %w", err)
		}
		cmd = []string{exe}
	}
	p, err := newProcPool(c.cap, cmd, c.logger)
	if err != nil {
		return nil, err
	}
	c.procs = p
	c.logger.Debug("process pool ready", "workers", c.cap)
	return p, nil
}

// retire discards a broken pool so the next processPool call builds a fresh
// one. Idempotent: concurrent batches observing the same crash retire the
// same pool once.
func (c *ExecContext) retire(p *procPool) {
	c.mu.Lock()
	if c.procs == p {
		c.procs = nil
	}
	c.mu.Unlock()
	p.close()
	c.logger.Warn("process pool retired after worker crash; next batch gets a fresh pool")
}

// Close tears down both pools. Safe to call more than once; Execute calls
// after Close return ErrShutdown. Tie it to the owner's lifetime with defer.
func (c *ExecContext) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	procs := c.procs
	c.procs = nil
	c.mu.Unlock()
	if procs != nil {
		procs.close()
	}
	return nil
}
