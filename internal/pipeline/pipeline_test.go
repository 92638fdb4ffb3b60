package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kozaktomas/rollcall/internal/annotate"
	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/camera"
	"github.com/kozaktomas/rollcall/internal/delivery"
	"github.com/kozaktomas/rollcall/internal/evidence"
	"github.com/kozaktomas/rollcall/internal/facematch"
	"github.com/kozaktomas/rollcall/internal/gallery"
	"github.com/kozaktomas/rollcall/internal/presence"
)

// sliceSource yields a fixed number of blank frames, then ErrSourceExhausted.
type sliceSource struct {
	remaining int
	closed    atomic.Bool
	err       error // returned instead of exhaustion when set
}

func (s *sliceSource) Read(ctx context.Context) (image.Image, error) {
	if s.remaining == 0 {
		if s.err != nil {
			return nil, s.err
		}
		return nil, camera.ErrSourceExhausted
	}
	s.remaining--
	return image.NewRGBA(image.Rect(0, 0, 64, 48)), nil
}

func (s *sliceSource) Close() error {
	s.closed.Store(true)
	return nil
}

// scriptedDetector returns the same detections for every frame.
type scriptedDetector struct {
	detections []facematch.Detection
	err        error
}

func (d scriptedDetector) Detect(ctx context.Context, frame image.Image) ([]facematch.Detection, error) {
	return d.detections, d.err
}

type sinkRecorder struct {
	mu     sync.Mutex
	events []attendance.Event
}

func (s *sinkRecorder) Enqueue(ctx context.Context, ev attendance.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

type failingRecorder struct{}

func (failingRecorder) Save(img image.Image, identityID string, ts time.Time) (string, error) {
	return "", evidence.ErrStorage
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func aliceGallery(t *testing.T) *gallery.Gallery {
	t.Helper()
	g, err := gallery.New([]gallery.Entry{
		{ID: "S001", Name: "Alice", Embedding: []float32{0, 0, 0, 0}},
	}, "")
	if err != nil {
		t.Fatalf("gallery.New() error = %v", err)
	}
	return g
}

func newMatcher(t *testing.T, g *gallery.Gallery) *facematch.Matcher {
	t.Helper()
	m, err := facematch.NewMatcher(g, facematch.Options{Threshold: 0.6})
	if err != nil {
		t.Fatalf("NewMatcher() error = %v", err)
	}
	return m
}

var aliceDetection = facematch.Detection{
	Region:    image.Rect(5, 5, 30, 30),
	Embedding: []float32{0.1, 0, 0, 0},
}

func TestLoop_EndToEnd(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "attendance_photos")
	sink := &sinkRecorder{}
	src := &sliceSource{remaining: 2}
	display := camera.NewHeadless()
	ts := time.Date(2024, 3, 1, 7, 30, 0, 0, time.Local)

	loop, err := New(Deps{
		Source:     src,
		Display:    display,
		Detector:   scriptedDetector{detections: []facematch.Detection{aliceDetection}},
		Matcher:    newMatcher(t, aliceGallery(t)),
		Tracker:    presence.NewTracker(presence.ScopeRun, nil),
		Evidence:   evidence.NewRecorder(dir, 90),
		Events:     sink,
		Classifier: attendance.NewClassifier(8, "", ""),
		Now:        fixedClock(ts),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(sink.events) != 1 {
		t.Fatalf("expected exactly 1 event over 2 frames, got %d", len(sink.events))
	}
	ev := sink.events[0]
	if ev.StudentID != "S001" || ev.Date != "2024-03-01" || ev.Time != "07:30:00" || ev.Status != "on-time" {
		t.Errorf("unexpected event %+v", ev)
	}
	if ev.ImagePath != filepath.ToSlash(filepath.Join(dir, "S001_20240301_073000.jpg")) {
		t.Errorf("unexpected image path %q", ev.ImagePath)
	}

	files, _ := os.ReadDir(dir)
	if len(files) != 1 {
		t.Errorf("expected 1 evidence file, got %d", len(files))
	}

	if loop.State() != StateStopped {
		t.Errorf("State() = %v, want STOPPED", loop.State())
	}
	if !src.closed.Load() {
		t.Error("capture source must be released")
	}
	if display.Shown() != 2 {
		t.Errorf("expected every frame displayed, got %d", display.Shown())
	}

	stats := loop.Stats()
	if stats.Frames != 2 || stats.Recognized != 2 || stats.Events != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestLoop_UnknownOnlyAnnotated(t *testing.T) {
	sink := &sinkRecorder{}
	display := camera.NewHeadless()
	stranger := facematch.Detection{Region: image.Rect(5, 5, 30, 30), Embedding: []float32{1, 1, 1, 1}}

	loop, _ := New(Deps{
		Source:     &sliceSource{remaining: 3},
		Display:    display,
		Detector:   scriptedDetector{detections: []facematch.Detection{stranger}},
		Matcher:    newMatcher(t, aliceGallery(t)),
		Tracker:    presence.NewTracker(presence.ScopeRun, nil),
		Evidence:   evidence.NewRecorder(t.TempDir(), 90),
		Events:     sink,
		Classifier: attendance.NewClassifier(8, "", ""),
	})

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(sink.events) != 0 {
		t.Errorf("unknown detections must not produce events, got %d", len(sink.events))
	}
	if loop.Stats().Unknown != 3 {
		t.Errorf("Unknown = %d, want 3", loop.Stats().Unknown)
	}

	// The region is outlined in the unknown color.
	latest := display.Latest().(*image.RGBA)
	if got := latest.RGBAAt(5, 15); got != annotate.UnknownColor {
		t.Errorf("expected unknown outline, got %v", got)
	}
}

func TestLoop_EvidenceFailureStillEmits(t *testing.T) {
	sink := &sinkRecorder{}
	loop, _ := New(Deps{
		Source:     &sliceSource{remaining: 1},
		Detector:   scriptedDetector{detections: []facematch.Detection{aliceDetection}},
		Matcher:    newMatcher(t, aliceGallery(t)),
		Tracker:    presence.NewTracker(presence.ScopeRun, nil),
		Evidence:   failingRecorder{},
		Events:     sink,
		Classifier: attendance.NewClassifier(8, "", ""),
	})

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(sink.events) != 1 {
		t.Fatalf("expected the event to be emitted exactly once, got %d", len(sink.events))
	}
	if sink.events[0].ImagePath != "" {
		t.Errorf("expected empty evidence reference, got %q", sink.events[0].ImagePath)
	}
	if loop.Stats().EvidenceFailures != 1 {
		t.Errorf("EvidenceFailures = %d, want 1", loop.Stats().EvidenceFailures)
	}
}

func TestLoop_DeliveryFailureDoesNotStopLoop(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	g, _ := gallery.New([]gallery.Entry{
		{ID: "S001", Name: "Alice", Embedding: []float32{0, 0}},
		{ID: "S002", Name: "Bob", Embedding: []float32{5, 5}},
	}, "")

	dispatcher := delivery.NewDispatcher(delivery.NewClient(server.URL, time.Second), delivery.DispatcherOptions{QueueSize: 0})
	loop, _ := New(Deps{
		Source: &sliceSource{remaining: 4},
		Detector: scriptedDetector{detections: []facematch.Detection{
			{Region: image.Rect(0, 0, 10, 10), Embedding: []float32{0.1, 0}},
			{Region: image.Rect(20, 20, 30, 30), Embedding: []float32{5, 5.1}},
		}},
		Matcher:    newMatcher(t, g),
		Tracker:    presence.NewTracker(presence.ScopeRun, nil),
		Evidence:   evidence.NewRecorder(t.TempDir(), 90),
		Events:     dispatcher,
		Classifier: attendance.NewClassifier(8, "", ""),
	})

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	dispatcher.Close()

	if loop.Stats().Frames != 4 {
		t.Errorf("loop must keep processing frames, got %d", loop.Stats().Frames)
	}
	if calls.Load() != 2 {
		t.Errorf("expected one attempt per identity and no retries, got %d", calls.Load())
	}
	if dispatcher.Stats().Failed != 2 {
		t.Errorf("Failed = %d, want 2", dispatcher.Stats().Failed)
	}
}

func TestLoop_LateStatusAndBody(t *testing.T) {
	var body map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	dispatcher := delivery.NewDispatcher(delivery.NewClient(server.URL, time.Second), delivery.DispatcherOptions{QueueSize: 1})
	loop, _ := New(Deps{
		Source:     &sliceSource{remaining: 1},
		Detector:   scriptedDetector{detections: []facematch.Detection{aliceDetection}},
		Matcher:    newMatcher(t, aliceGallery(t)),
		Tracker:    presence.NewTracker(presence.ScopeRun, nil),
		Evidence:   failingRecorder{},
		Events:     dispatcher,
		Classifier: attendance.NewClassifier(8, "Đúng giờ", "Trễ"),
		Now:        fixedClock(time.Date(2024, 3, 1, 8, 0, 0, 0, time.Local)),
	})

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if err := dispatcher.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if body["status"] != "Trễ" || body["time"] != "08:00:00" || body["image_path"] != "" {
		t.Errorf("unexpected body %v", body)
	}
}

func TestLoop_DetectErrorSkipsFrame(t *testing.T) {
	sink := &sinkRecorder{}
	display := camera.NewHeadless()
	loop, _ := New(Deps{
		Source:     &sliceSource{remaining: 2},
		Display:    display,
		Detector:   scriptedDetector{err: errors.New("embedding server unavailable")},
		Matcher:    newMatcher(t, aliceGallery(t)),
		Tracker:    presence.NewTracker(presence.ScopeRun, nil),
		Evidence:   evidence.NewRecorder(t.TempDir(), 90),
		Events:     sink,
		Classifier: attendance.NewClassifier(8, "", ""),
	})

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("detection errors must not stop the loop, got %v", err)
	}
	if loop.Stats().DetectErrors != 2 || loop.Stats().Frames != 2 {
		t.Errorf("unexpected stats %+v", loop.Stats())
	}
	if display.Shown() != 2 {
		t.Errorf("frames must still be displayed, got %d", display.Shown())
	}
}

func TestLoop_CaptureErrorStops(t *testing.T) {
	src := &sliceSource{remaining: 1, err: errors.New("device unplugged")}
	loop, _ := New(Deps{
		Source:     src,
		Detector:   scriptedDetector{},
		Matcher:    newMatcher(t, aliceGallery(t)),
		Tracker:    presence.NewTracker(presence.ScopeRun, nil),
		Evidence:   evidence.NewRecorder(t.TempDir(), 90),
		Events:     &sinkRecorder{},
		Classifier: attendance.NewClassifier(8, "", ""),
	})

	err := loop.Run(context.Background())
	if !errors.Is(err, camera.ErrCapture) {
		t.Fatalf("expected ErrCapture, got %v", err)
	}
	if !src.closed.Load() || loop.State() != StateStopped {
		t.Error("resources must be released after a capture error")
	}
}

func TestLoop_StopAndCancel(t *testing.T) {
	newLoop := func(display camera.Display) *Loop {
		l, _ := New(Deps{
			Source:     &sliceSource{remaining: 1000},
			Display:    display,
			Detector:   scriptedDetector{},
			Matcher:    newMatcher(t, aliceGallery(t)),
			Tracker:    presence.NewTracker(presence.ScopeRun, nil),
			Evidence:   evidence.NewRecorder(t.TempDir(), 90),
			Events:     &sinkRecorder{},
			Classifier: attendance.NewClassifier(8, "", ""),
		})
		return l
	}

	t.Run("stop before run", func(t *testing.T) {
		l := newLoop(nil)
		l.Stop()
		l.Stop()
		if err := l.Run(context.Background()); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if l.Stats().Frames != 0 {
			t.Errorf("stop must be observed before the first frame, got %d frames", l.Stats().Frames)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		l := newLoop(nil)
		if err := l.Run(ctx); err != nil {
			t.Fatalf("cancellation must return normally, got %v", err)
		}
	})

	t.Run("display stop key", func(t *testing.T) {
		display := camera.NewHeadless()
		display.RequestStop()
		l := newLoop(display)
		if err := l.Run(context.Background()); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if l.Stats().Frames != 0 {
			t.Errorf("expected no frames after stop key, got %d", l.Stats().Frames)
		}
	})

	t.Run("run twice", func(t *testing.T) {
		l := newLoop(nil)
		l.Stop()
		_ = l.Run(context.Background())
		if err := l.Run(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
			t.Errorf("expected ErrAlreadyStarted, got %v", err)
		}
	})
}

func TestNew_RequiresDeps(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Error("expected error for missing dependencies")
	}
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		StateIdle:     "IDLE",
		StateRunning:  "RUNNING",
		StateStopping: "STOPPING",
		StateStopped:  "STOPPED",
		State(42):     "UNKNOWN",
	}
	for s, want := range tests {
		if s.String() != want {
			t.Errorf("State(%d).String() = %q, want %q", s, s.String(), want)
		}
	}
}
