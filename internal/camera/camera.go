// Package camera provides frame sources and display surfaces for the
// capture loop.
package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"
)

var (
	// ErrCapture is returned (wrapped) when a frame cannot be acquired.
	ErrCapture = errors.New("capture failed")
	// ErrSourceExhausted is returned by finite sources after the last frame.
	ErrSourceExhausted = errors.New("capture source exhausted")
)

// Source produces frames one at a time.
type Source interface {
	// Read blocks until the next frame is available.
	Read(ctx context.Context) (image.Image, error)
	Close() error
}

// Display presents annotated frames and reports operator stop requests.
type Display interface {
	Show(frame image.Image) error
	// StopRequested reports whether the operator asked to stop (e.g. pressed 'q').
	StopRequested() bool
	Close() error
}

// ReadFrame reads one frame from src, giving up after timeout. A timeout of
// zero waits until ctx is done. Every failure other than ErrSourceExhausted
// is wrapped with ErrCapture.
func ReadFrame(ctx context.Context, src Source, timeout time.Duration) (image.Image, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type result struct {
		img image.Image
		err error
	}
	ch := make(chan result, 1)
	go func() {
		img, err := src.Read(ctx)
		ch <- result{img, err}
	}()

	select {
	case r := <-ch:
		switch {
		case r.err == nil && r.img == nil:
			return nil, fmt.Errorf("%w: empty frame", ErrCapture)
		case r.err == nil:
			return r.img, nil
		case errors.Is(r.err, ErrSourceExhausted), errors.Is(r.err, ErrCapture):
			return nil, r.err
		default:
			return nil, fmt.Errorf("%w: %w", ErrCapture, r.err)
		}
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: frame read: %w", ErrCapture, ctx.Err())
	}
}
