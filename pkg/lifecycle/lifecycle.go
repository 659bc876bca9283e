// Package lifecycle coordinates startup checks, background workers, and
// shutdown hooks for long-running services.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// StartupFunc runs once during startup. A non-nil error marks the
// service not ready.
type StartupFunc func(ctx context.Context) error

// ShutdownFunc releases a resource. ctx expires at the shutdown deadline.
type ShutdownFunc func(ctx context.Context) error

// Coordinator tracks startup hooks, workers, and shutdown hooks.
type Coordinator struct {
	ctx    context.Context
	cancel context.CancelFunc

	startupWg sync.WaitGroup
	workersWg sync.WaitGroup

	mu          sync.Mutex
	startupErrs []error
	shutdown    []namedShutdown
	ready       bool
}

type namedShutdown struct {
	name string
	fn   ShutdownFunc
}

// New creates a Coordinator with a cancellable context.
func New() *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		ctx:    ctx,
		cancel: cancel,
	}
}

// Context returns the coordinator's context, cancelled when Shutdown begins.
func (c *Coordinator) Context() context.Context {
	return c.ctx
}

// OnStartup runs fn concurrently. Its error is reported by WaitForStartup.
func (c *Coordinator) OnStartup(name string, fn StartupFunc) {
	c.startupWg.Go(func() {
		if err := fn(c.ctx); err != nil {
			c.mu.Lock()
			c.startupErrs = append(c.startupErrs, fmt.Errorf("%s: %w", name, err))
			c.mu.Unlock()
		}
	})
}

// Go runs a background worker until the coordinator's context is cancelled.
// Shutdown waits for every worker to return.
func (c *Coordinator) Go(fn func(ctx context.Context)) {
	c.workersWg.Go(func() {
		fn(c.ctx)
	})
}

// OnShutdown registers fn to run when Shutdown is called, after workers stop.
func (c *Coordinator) OnShutdown(name string, fn ShutdownFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shutdown = append(c.shutdown, namedShutdown{name: name, fn: fn})
}

// Ready reports whether startup completed without errors.
func (c *Coordinator) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

// WaitForStartup blocks until all startup hooks have returned. The
// coordinator becomes ready only if none failed.
func (c *Coordinator) WaitForStartup() error {
	c.startupWg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	err := errors.Join(c.startupErrs...)
	c.ready = err == nil
	return err
}

// Shutdown cancels the context, waits for workers, then runs shutdown hooks
// concurrently. All of it must finish within timeout.
func (c *Coordinator) Shutdown(timeout time.Duration) error {
	c.mu.Lock()
	c.ready = false
	hooks := c.shutdown
	c.mu.Unlock()

	c.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var (
		errMu sync.Mutex
		errs  []error
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.workersWg.Wait()

		var wg sync.WaitGroup
		for _, h := range hooks {
			wg.Go(func() {
				if err := h.fn(ctx); err != nil {
					errMu.Lock()
					errs = append(errs, fmt.Errorf("%s: %w", h.name, err))
					errMu.Unlock()
				}
			})
		}
		wg.Wait()
	}()

	select {
	case <-done:
		return errors.Join(errs...)
	case <-ctx.Done():
		return fmt.Errorf("shutdown timeout after %v", timeout)
	}
}
