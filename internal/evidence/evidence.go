// Package evidence stores a snapshot for every confirmed detection.
package evidence

import (
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/kozaktomas/rollcall/internal/facematch"
)

// ErrStorage is returned (wrapped) when a snapshot cannot be written.
var ErrStorage = errors.New("evidence storage failed")

const (
	// DefaultJPEGQuality is used when no quality is configured.
	DefaultJPEGQuality = 90

	fileTimeLayout = "20060102_150405"

	// maxCollisions bounds the numbered suffixes tried when a name is taken.
	maxCollisions = 99
)

// Recorder writes snapshots into a single directory. Files are created once
// and never overwritten or removed.
type Recorder struct {
	dir     string
	quality int
}

// NewRecorder creates a recorder for dir. The directory is created lazily.
func NewRecorder(dir string, quality int) *Recorder {
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	return &Recorder{dir: dir, quality: quality}
}

// Dir returns the evidence directory.
func (r *Recorder) Dir() string {
	return r.dir
}

// FileName returns the base filename for identityID captured at ts,
// e.g. "S001_20240301_073000.jpg".
func FileName(identityID string, ts time.Time) string {
	return fmt.Sprintf("%s_%s.jpg", facematch.Slug(identityID), ts.Format(fileTimeLayout))
}

// Save encodes img as JPEG and returns its path with forward slashes.
func (r *Recorder) Save(img image.Image, identityID string, ts time.Time) (string, error) {
	if img == nil {
		return "", fmt.Errorf("%w: no frame for %s", ErrStorage, identityID)
	}
	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return "", fmt.Errorf("%w: create %s: %w", ErrStorage, r.dir, err)
	}

	f, path, err := r.create(identityID, ts)
	if err != nil {
		return "", err
	}

	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: r.quality}); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("%w: encode %s: %w", ErrStorage, path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("%w: close %s: %w", ErrStorage, path, err)
	}

	return filepath.ToSlash(path), nil
}

// create opens a new file exclusively, adding _1, _2, ... when the name is taken.
func (r *Recorder) create(identityID string, ts time.Time) (*os.File, string, error) {
	base := FileName(identityID, ts)
	stem := base[:len(base)-len(".jpg")]

	for i := 0; i <= maxCollisions; i++ {
		name := base
		if i > 0 {
			name = fmt.Sprintf("%s_%d.jpg", stem, i)
		}
		path := filepath.Join(r.dir, name)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644) //nolint:gosec // name is slugged
		if err == nil {
			return f, path, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, "", fmt.Errorf("%w: create %s: %w", ErrStorage, path, err)
		}
	}
	return nil, "", fmt.Errorf("%w: too many snapshots named %s", ErrStorage, base)
}
