package camera

import (
	"fmt"
	"log"
	"sync"
)

// ReadGuard coordinates a blocking device read with Close. Close never waits
// for a read in flight: when one is running, the release runs as that read
// finishes instead.
type ReadGuard struct {
	mu      sync.Mutex
	reading bool
	closed  bool
	release func() error
}

// NewReadGuard returns a guard that calls release exactly once after Close.
func NewReadGuard(release func() error) *ReadGuard {
	return &ReadGuard{release: release}
}

// Begin marks a read as started. It fails once the guard is closed or while
// an earlier read is still blocked on the device.
func (g *ReadGuard) Begin() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return fmt.Errorf("%w: camera closed", ErrCapture)
	}
	if g.reading {
		return fmt.Errorf("%w: previous read still in progress", ErrCapture)
	}
	g.reading = true
	return nil
}

// End marks the read finished and performs a release deferred by Close.
func (g *ReadGuard) End() {
	g.mu.Lock()
	g.reading = false
	pending := g.closed
	g.mu.Unlock()

	if pending {
		if err := g.release(); err != nil {
			log.Printf("Warning: releasing camera after read: %v", err)
		}
	}
}

// Close releases the device right away when idle. Otherwise it returns
// immediately and leaves the release to the in-flight read.
func (g *ReadGuard) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	busy := g.reading
	g.mu.Unlock()

	if busy {
		return nil
	}
	return g.release()
}
