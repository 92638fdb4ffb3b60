package pipeline

import "time"

// State is the lifecycle state of a Loop.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Stats is a point-in-time snapshot of loop counters.
type Stats struct {
	State            string     `json:"state"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	Frames           int64      `json:"frames"`
	Detections       int64      `json:"detections"`
	Recognized       int64      `json:"recognized"`
	Unknown          int64      `json:"unknown"`
	Events           int64      `json:"events"`
	EvidenceFailures int64      `json:"evidence_failures"`
	DetectErrors     int64      `json:"detect_errors"`
	LastEventAt      *time.Time `json:"last_event_at,omitempty"`
}

// Stats returns current counters. Safe to call from any goroutine.
func (l *Loop) Stats() Stats {
	s := Stats{
		State:            l.State().String(),
		Frames:           l.stats.frames.Load(),
		Detections:       l.stats.detections.Load(),
		Recognized:       l.stats.recognized.Load(),
		Unknown:          l.stats.unknown.Load(),
		Events:           l.stats.events.Load(),
		EvidenceFailures: l.stats.evidenceFailures.Load(),
		DetectErrors:     l.stats.detectErrors.Load(),
	}
	if ns := l.startedAt.Load(); ns != 0 {
		t := time.Unix(0, ns)
		s.StartedAt = &t
	}
	if ns := l.stats.lastEventAt.Load(); ns != 0 {
		t := time.Unix(0, ns)
		s.LastEventAt = &t
	}
	return s
}
