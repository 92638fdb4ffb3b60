// Package pipeline runs the capture loop: read a frame, detect faces, match
// them against the gallery, report each identity once, then annotate and
// display the frame.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kozaktomas/rollcall/internal/annotate"
	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/camera"
	"github.com/kozaktomas/rollcall/internal/detect"
	"github.com/kozaktomas/rollcall/internal/facematch"
)

// overlapIoU is the overlap above which two detections are treated as one face.
const overlapIoU = 0.5

// ErrAlreadyStarted is returned when Run is called more than once.
var ErrAlreadyStarted = errors.New("capture loop already started")

// Matcher resolves detections to identities.
type Matcher interface {
	Match(detections []facematch.Detection) []facematch.MatchResult
}

// Tracker decides whether an identity is reported for the first time.
type Tracker interface {
	TryMark(ctx context.Context, id, date string) (bool, error)
}

// Recorder stores evidence snapshots.
type Recorder interface {
	Save(img image.Image, identityID string, ts time.Time) (string, error)
}

// EventSink accepts events for delivery.
type EventSink interface {
	Enqueue(ctx context.Context, ev attendance.Event) error
}

// Deps are the collaborators of a Loop. Display and Now are optional.
type Deps struct {
	Source      camera.Source
	Display     camera.Display
	Detector    detect.Detector
	Matcher     Matcher
	Tracker     Tracker
	Evidence    Recorder
	Events      EventSink
	Classifier  attendance.Classifier
	ReadTimeout time.Duration
	Now         func() time.Time
}

// Loop is a single-use capture loop.
type Loop struct {
	deps Deps

	state    atomic.Int32
	stopCh   chan struct{}
	stopOnce sync.Once

	startedAt atomic.Int64 // unix nanos
	stats     counters
}

type counters struct {
	frames           atomic.Int64
	detections       atomic.Int64
	recognized       atomic.Int64
	unknown          atomic.Int64
	events           atomic.Int64
	evidenceFailures atomic.Int64
	detectErrors     atomic.Int64
	lastEventAt      atomic.Int64 // unix nanos
}

// New validates deps and returns an idle loop.
func New(deps Deps) (*Loop, error) {
	switch {
	case deps.Source == nil:
		return nil, errors.New("capture source is required")
	case deps.Detector == nil:
		return nil, errors.New("detector is required")
	case deps.Matcher == nil:
		return nil, errors.New("matcher is required")
	case deps.Tracker == nil:
		return nil, errors.New("presence tracker is required")
	case deps.Evidence == nil:
		return nil, errors.New("evidence recorder is required")
	case deps.Events == nil:
		return nil, errors.New("event sink is required")
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Loop{deps: deps, stopCh: make(chan struct{})}, nil
}

// Run drives the loop until ctx is cancelled, Stop is called, the display
// requests a stop, or the source fails. The source and display are closed
// before Run returns. A capture failure is returned wrapped in
// camera.ErrCapture; every other exit returns nil.
func (l *Loop) Run(ctx context.Context) error {
	if !l.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return ErrAlreadyStarted
	}
	l.startedAt.Store(l.deps.Now().UnixNano())
	defer l.release()

	log.Printf("Capture loop running")

	for {
		if reason := l.stopReason(ctx); reason != "" {
			l.state.Store(int32(StateStopping))
			log.Printf("Capture loop stopping: %s", reason)
			return nil
		}

		frame, err := camera.ReadFrame(ctx, l.deps.Source, l.deps.ReadTimeout)
		if err != nil {
			l.state.Store(int32(StateStopping))
			switch {
			case errors.Is(err, camera.ErrSourceExhausted):
				log.Printf("Capture loop stopping: end of input after %d frames", l.stats.frames.Load())
				return nil
			case ctx.Err() != nil:
				log.Printf("Capture loop stopping: %v", ctx.Err())
				return nil
			default:
				log.Printf("Error: %v", err)
				return err
			}
		}

		l.processFrame(ctx, frame)
	}
}

// Stop asks the loop to exit. It is observed at the top of the next iteration.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

// State returns the current loop state.
func (l *Loop) State() State {
	return State(l.state.Load())
}

func (l *Loop) stopReason(ctx context.Context) string {
	select {
	case <-l.stopCh:
		return "stop requested"
	case <-ctx.Done():
		return ctx.Err().Error()
	default:
	}
	if l.deps.Display != nil && l.deps.Display.StopRequested() {
		return "stop key pressed"
	}
	return ""
}

func (l *Loop) release() {
	if err := l.deps.Source.Close(); err != nil {
		log.Printf("Warning: failed to release capture source: %v", err)
	}
	if l.deps.Display != nil {
		if err := l.deps.Display.Close(); err != nil {
			log.Printf("Warning: failed to close display: %v", err)
		}
	}
	l.state.Store(int32(StateStopped))
	log.Printf("Capture loop stopped")
}

func (l *Loop) processFrame(ctx context.Context, frame image.Image) {
	l.stats.frames.Add(1)

	var results []facematch.MatchResult
	detections, err := l.deps.Detector.Detect(ctx, frame)
	if err != nil {
		l.stats.detectErrors.Add(1)
		log.Printf("Warning: face detection failed on frame %d: %v", l.stats.frames.Load(), err)
	} else {
		detections = facematch.SuppressOverlaps(detections, overlapIoU)
		l.stats.detections.Add(int64(len(detections)))
		results = l.deps.Matcher.Match(detections)
	}

	for _, r := range results {
		if !r.Known() {
			l.stats.unknown.Add(1)
			continue
		}
		l.stats.recognized.Add(1)
		l.report(ctx, frame, r)
	}

	if l.deps.Display != nil {
		if err := l.deps.Display.Show(annotate.Frame(frame, results)); err != nil {
			log.Printf("Warning: failed to display frame: %v", err)
		}
	}
}

// report emits an event for r if its identity has not been reported yet.
func (l *Loop) report(ctx context.Context, frame image.Image, r facematch.MatchResult) {
	ts := l.deps.Now()
	date := attendance.Day(ts)

	fresh, err := l.deps.Tracker.TryMark(ctx, r.IdentityID, date)
	if err != nil {
		log.Printf("Warning: presence check failed for %s at %s: %v", r.IdentityID, ts.Format(time.DateTime), err)
		return
	}
	if !fresh {
		return
	}

	status := l.deps.Classifier.Classify(ts)

	ref, err := l.deps.Evidence.Save(frame, r.IdentityID, ts)
	if err != nil {
		l.stats.evidenceFailures.Add(1)
		log.Printf("Warning: evidence for %s at %s not saved, sending event without image: %v",
			r.IdentityID, ts.Format(time.DateTime), err)
		ref = ""
	}

	ev := attendance.NewEvent(r.IdentityID, r.Name, ts, status, ref)
	l.stats.events.Add(1)
	l.stats.lastEventAt.Store(ts.UnixNano())
	fmt.Printf("Attendance: %s (%s) %s %s %s (distance %.3f)\n", ev.StudentID, ev.Name, ev.Date, ev.Time, ev.Status, r.Distance)

	if err := l.deps.Events.Enqueue(ctx, ev); err != nil {
		log.Printf("Warning: attendance for %s at %s %s not queued: %v", ev.StudentID, ev.Date, ev.Time, err)
	}
}
