package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
)

// Handler cancels the run on SIGINT or SIGTERM. The change applier only
// looks at the context between changes, so an interrupted run never leaves
// a file half renamed. A second signal calls the force function.
type Handler struct {
	ctx         context.Context
	cancel      context.CancelFunc
	once        sync.Once
	mu          sync.Mutex
	cleanupFns  []func()
	signals     atomic.Int32
	interrupted atomic.Bool
	force       func()
}

// New creates a new shutdown handler
func New() *Handler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Handler{
		ctx:    ctx,
		cancel: cancel,
		force:  func() { os.Exit(130) },
	}
}

// Context returns the shutdown context
func (h *Handler) Context() context.Context {
	return h.ctx
}

// OnForce replaces what happens on the second signal.
func (h *Handler) OnForce(fn func()) {
	h.force = fn
}

// AddCleanup registers a cleanup function. Cleanups run once, newest first.
func (h *Handler) AddCleanup(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cleanupFns = append(h.cleanupFns, fn)
}

// Listen starts listening for shutdown signals
func (h *Handler) Listen() {
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		for range sigChan {
			if h.signals.Add(1) > 1 {
				h.force()
				return
			}
			h.interrupted.Store(true)
			h.cancel()
		}
	}()
}

// Interrupted reports whether a signal cancelled the run.
func (h *Handler) Interrupted() bool {
	return h.interrupted.Load()
}

// Shutdown cancels the context and runs the cleanup functions.
func (h *Handler) Shutdown() {
	h.cancel()

	h.once.Do(func() {
		h.mu.Lock()
		fns := h.cleanupFns
		h.cleanupFns = nil
		h.mu.Unlock()

		for i := len(fns) - 1; i >= 0; i-- {
			fns[i]()
		}
	})
}
