package camera

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	_ "golang.org/x/image/bmp"
)

var replayExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
}

// Replay plays back the image files of a directory in lexical order.
type Replay struct {
	mu       sync.Mutex
	files    []string
	pos      int
	interval time.Duration
	last     time.Time
}

// OpenReplay lists the frames in dir. interval, if positive, paces reads.
func OpenReplay(dir string, interval time.Duration) (*Replay, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: open replay directory: %w", ErrCapture, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if replayExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no frames in %s", ErrCapture, dir)
	}
	slices.Sort(files)

	return &Replay{files: files, interval: interval}, nil
}

// Len returns the number of frames.
func (r *Replay) Len() int {
	return len(r.files)
}

// Read decodes the next frame, returning ErrSourceExhausted after the last.
func (r *Replay) Read(ctx context.Context) (image.Image, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pos >= len(r.files) {
		return nil, ErrSourceExhausted
	}

	if r.interval > 0 && !r.last.IsZero() {
		if wait := r.interval - time.Since(r.last); wait > 0 {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	path := r.files[r.pos]
	r.pos++
	r.last = time.Now()

	f, err := os.Open(path) //nolint:gosec // path comes from the listed directory
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrCapture, path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", ErrCapture, path, err)
	}
	return img, nil
}

// Close implements Source.
func (r *Replay) Close() error {
	return nil
}
