package camera

import (
	"image"
	"sync"
	"sync/atomic"
)

// Headless is a Display with no window. It keeps the most recent frame so it
// can be served elsewhere, and stops when RequestStop is called.
type Headless struct {
	mu     sync.RWMutex
	latest image.Image
	shown  atomic.Int64
	stop   atomic.Bool
}

// NewHeadless creates a headless display.
func NewHeadless() *Headless {
	return &Headless{}
}

// Show stores frame as the latest frame.
func (h *Headless) Show(frame image.Image) error {
	h.mu.Lock()
	h.latest = frame
	h.mu.Unlock()
	h.shown.Add(1)
	return nil
}

// Latest returns the most recently shown frame, or nil.
func (h *Headless) Latest() image.Image {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.latest
}

// Shown returns the number of frames shown.
func (h *Headless) Shown() int64 {
	return h.shown.Load()
}

// RequestStop makes StopRequested return true.
func (h *Headless) RequestStop() {
	h.stop.Store(true)
}

// StopRequested implements Display.
func (h *Headless) StopRequested() bool {
	return h.stop.Load()
}

// Close implements Display.
func (h *Headless) Close() error {
	return nil
}

// Tee shows every frame on all displays and stops when any of them asks to.
type Tee []Display

// Show implements Display. The first error is returned after all displays ran.
func (t Tee) Show(frame image.Image) error {
	var first error
	for _, d := range t {
		if err := d.Show(frame); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// StopRequested implements Display.
func (t Tee) StopRequested() bool {
	for _, d := range t {
		if d.StopRequested() {
			return true
		}
	}
	return false
}

// Close implements Display.
func (t Tee) Close() error {
	var first error
	for _, d := range t {
		if err := d.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
