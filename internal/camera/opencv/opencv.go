// Package opencv captures frames from a local camera and shows them in a
// window using OpenCV. It requires cgo and an OpenCV installation.
package opencv

import (
	"context"
	"fmt"
	"image"
	"strconv"
	"sync/atomic"

	"github.com/kozaktomas/rollcall/internal/camera"
	"gocv.io/x/gocv"
)

// StopKey is the key that stops the capture loop from the window.
const StopKey = 'q'

// Webcam is a camera.Source backed by an OpenCV VideoCapture.
type Webcam struct {
	guard *camera.ReadGuard
	cap   *gocv.VideoCapture
	mat   gocv.Mat
}

// OpenWebcam opens a camera by index ("0") or a device path / stream URL.
func OpenWebcam(device string) (*Webcam, error) {
	var (
		vc  *gocv.VideoCapture
		err error
	)
	if idx, convErr := strconv.Atoi(device); convErr == nil {
		vc, err = gocv.OpenVideoCapture(idx)
	} else {
		vc, err = gocv.OpenVideoCapture(device)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: open camera %s: %w", camera.ErrCapture, device, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w: camera %s is not available", camera.ErrCapture, device)
	}
	w := &Webcam{cap: vc, mat: gocv.NewMat()}
	w.guard = camera.NewReadGuard(w.release)
	return w, nil
}

// Read grabs the next frame. The returned image is a copy owned by the caller.
func (w *Webcam) Read(ctx context.Context) (image.Image, error) {
	if err := w.guard.Begin(); err != nil {
		return nil, err
	}
	defer w.guard.End()

	if ok := w.cap.Read(&w.mat); !ok {
		return nil, fmt.Errorf("%w: camera read failed", camera.ErrCapture)
	}
	if w.mat.Empty() {
		return nil, fmt.Errorf("%w: camera returned an empty frame", camera.ErrCapture)
	}

	img, err := w.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("%w: convert frame: %w", camera.ErrCapture, err)
	}
	return img, nil
}

// Close releases the device. A Read stuck on a stalled device does not block
// it; the device is released when that Read returns.
func (w *Webcam) Close() error {
	return w.guard.Close()
}

func (w *Webcam) release() error {
	w.mat.Close()
	if err := w.cap.Close(); err != nil {
		return fmt.Errorf("closing camera: %w", err)
	}
	return nil
}

// Window is a camera.Display backed by an OpenCV HighGUI window.
type Window struct {
	win  *gocv.Window
	stop atomic.Bool
}

// NewWindow opens a window with the given title.
func NewWindow(title string) *Window {
	return &Window{win: gocv.NewWindow(title)}
}

// Show draws frame and polls the keyboard for StopKey.
func (w *Window) Show(frame image.Image) error {
	mat, err := gocv.ImageToMatRGB(frame)
	if err != nil {
		return fmt.Errorf("convert frame for display: %w", err)
	}
	defer mat.Close()

	w.win.IMShow(mat)
	if key := w.win.WaitKey(1); key == StopKey || key == 'Q' {
		w.stop.Store(true)
	}
	return nil
}

// StopRequested implements camera.Display.
func (w *Window) StopRequested() bool {
	return w.stop.Load()
}

// Close destroys the window.
func (w *Window) Close() error {
	if err := w.win.Close(); err != nil {
		return fmt.Errorf("closing window: %w", err)
	}
	return nil
}
