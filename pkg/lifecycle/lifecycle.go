// Package lifecycle coordinates startup and shutdown hooks for long-lived
// subsystems and tracks whether they came up healthy.
package lifecycle

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"
)

// Coordinator manages startup and shutdown hooks for the application lifecycle.
type Coordinator struct {
	ctx        context.Context
	cancel     context.CancelFunc
	startupWg  sync.WaitGroup
	shutdownWg sync.WaitGroup

	mu       sync.RWMutex
	ready    bool
	failures map[string]string
}

// New creates a Coordinator with a cancellable context.
func New() *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		ctx:      ctx,
		cancel:   cancel,
		failures: make(map[string]string),
	}
}

// Context returns the coordinator's context, cancelled on shutdown.
func (c *Coordinator) Context() context.Context {
	return c.ctx
}

// OnStartup registers a function to run concurrently during startup.
func (c *Coordinator) OnStartup(fn func()) {
	c.startupWg.Go(fn)
}

// OnShutdown registers a function to run concurrently during shutdown.
// Shutdown hooks should block on <-c.Context().Done() before executing cleanup.
func (c *Coordinator) OnShutdown(fn func()) {
	c.shutdownWg.Go(fn)
}

// Fail records that a subsystem could not start. A coordinator with any
// recorded failure never reports ready.
func (c *Coordinator) Fail(subsystem string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[subsystem] = err.Error()
}

// Failures returns a copy of the recorded startup failures keyed by subsystem.
func (c *Coordinator) Failures() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return maps.Clone(c.failures)
}

// Ready returns true after all startup hooks completed without a recorded failure.
func (c *Coordinator) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready && len(c.failures) == 0
}

// WaitForStartup blocks until all startup hooks have completed and sets the ready flag.
func (c *Coordinator) WaitForStartup() {
	c.startupWg.Wait()
	c.mu.Lock()
	c.ready = true
	c.mu.Unlock()
}

// Shutdown cancels the context and waits for shutdown hooks to complete
// within the given timeout.
func (c *Coordinator) Shutdown(timeout time.Duration) error {
	c.cancel()

	done := make(chan struct{})
	go func() {
		c.shutdownWg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("shutdown timeout after %v", timeout)
	}
}
