// Package detect adapts face detection and embedding backends to the
// Detection type consumed by the matcher.
package detect

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/kozaktomas/rollcall/internal/facematch"
	"golang.org/x/image/draw"
)

// DefaultMaxFrameSize caps the longer side of a frame sent to a backend.
const DefaultMaxFrameSize = 1280

const frameJPEGQuality = 85

// Detector finds faces in a frame and returns one Detection per face,
// with regions in the frame's own coordinates.
type Detector interface {
	Detect(ctx context.Context, frame image.Image) ([]facematch.Detection, error)
}

// PreparedFrame is a JPEG-encoded frame plus the factor that maps
// coordinates in the encoded image back to the original frame.
type PreparedFrame struct {
	JPEG  []byte
	Scale float64
}

// PrepareFrame downsizes frame to fit within maxSize (keeping aspect ratio)
// and encodes it as JPEG. maxSize <= 0 disables resizing.
func PrepareFrame(frame image.Image, maxSize int) (*PreparedFrame, error) {
	bounds := frame.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("empty frame")
	}

	src := frame
	scale := 1.0

	if maxSize > 0 && (width > maxSize || height > maxSize) {
		var newWidth, newHeight int
		if width > height {
			newWidth = maxSize
			newHeight = int(float64(height) * float64(maxSize) / float64(width))
		} else {
			newHeight = maxSize
			newWidth = int(float64(width) * float64(maxSize) / float64(height))
		}

		resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
		draw.CatmullRom.Scale(resized, resized.Bounds(), frame, bounds, draw.Over, nil)
		src = resized
		scale = float64(width) / float64(newWidth)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: frameJPEGQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}

	return &PreparedFrame{JPEG: buf.Bytes(), Scale: scale}, nil
}

// toFrame maps a region from prepared-frame coordinates back into the frame.
func toFrame(r image.Rectangle, p *PreparedFrame, frame image.Rectangle) image.Rectangle {
	r = facematch.ScaleRect(r, p.Scale).Add(frame.Min)
	return r.Intersect(frame)
}
