// Package dlib runs face detection and 128-d embedding in process using
// dlib through go-face. It requires cgo and the dlib model files.
package dlib

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/Kagami/go-face"
	"github.com/kozaktomas/rollcall/internal/detect"
	"github.com/kozaktomas/rollcall/internal/facematch"
)

// Model is the embedding model name recorded for dlib galleries.
const Model = "dlib_face_recognition_resnet_model_v1"

// Detector wraps a go-face recognizer. go-face recognizers are not safe for
// concurrent use, so calls are serialized.
type Detector struct {
	mu           sync.Mutex
	rec          *face.Recognizer
	maxFrameSize int
}

// New loads the models from modelsPath, which must contain
// shape_predictor_5_face_landmarks.dat and dlib_face_recognition_resnet_model_v1.dat.
func New(modelsPath string, maxFrameSize int) (*Detector, error) {
	rec, err := face.NewRecognizer(modelsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load dlib models from %s: %w", modelsPath, err)
	}
	return &Detector{rec: rec, maxFrameSize: maxFrameSize}, nil
}

// Detect implements detect.Detector.
func (d *Detector) Detect(ctx context.Context, frame image.Image) ([]facematch.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prepared, err := detect.PrepareFrame(frame, d.maxFrameSize)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	faces, err := d.rec.Recognize(prepared.JPEG)
	d.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("face detection failed: %w", err)
	}

	bounds := frame.Bounds()
	detections := make([]facematch.Detection, len(faces))
	for i, f := range faces {
		region := facematch.ScaleRect(f.Rectangle, prepared.Scale).Add(bounds.Min).Intersect(bounds)
		emb := make([]float32, len(f.Descriptor))
		copy(emb, f.Descriptor[:])
		detections[i] = facematch.Detection{Region: region, Embedding: emb}
	}
	return detections, nil
}

// Close releases the recognizer.
func (d *Detector) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.rec != nil {
		d.rec.Close()
		d.rec = nil
	}
}
