// Package attendance defines the attendance event emitted for a confirmed
// detection and the cutoff rule that classifies it.
package attendance

import (
	"time"

	"github.com/google/uuid"
)

// Wire formats for the date and time fields.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04:05"
)

// Status labels sent when none are configured.
const (
	DefaultOnTime = "on-time"
	DefaultLate   = "late"
)

// Classifier assigns a status from the local hour of a detection.
type Classifier struct {
	CutoffHour  int    // detections strictly before this hour are on time
	OnTimeLabel string // e.g. "on-time"
	LateLabel   string // e.g. "late"
}

// NewClassifier returns a classifier, falling back to the default labels.
func NewClassifier(cutoffHour int, onTime, late string) Classifier {
	if onTime == "" {
		onTime = DefaultOnTime
	}
	if late == "" {
		late = DefaultLate
	}
	return Classifier{CutoffHour: cutoffHour, OnTimeLabel: onTime, LateLabel: late}
}

// Classify returns the on-time label if t's local hour is before the cutoff.
func (c Classifier) Classify(t time.Time) string {
	if t.Hour() < c.CutoffHour {
		return c.OnTimeLabel
	}
	return c.LateLabel
}

// Event is one attendance record. It is built once per confirmed new detection
// and not modified afterwards.
type Event struct {
	ID         string    `json:"-"` // idempotency key, sent as a header
	StudentID  string    `json:"student_id"`
	Name       string    `json:"-"`
	Date       string    `json:"date"`
	Time       string    `json:"time"`
	Status     string    `json:"status"`
	ImagePath  string    `json:"image_path"`
	CapturedAt time.Time `json:"-"`
}

// NewEvent builds an event for identityID captured at t.
func NewEvent(identityID, name string, t time.Time, status, imagePath string) Event {
	return Event{
		ID:         uuid.New().String(),
		StudentID:  identityID,
		Name:       name,
		Date:       t.Format(DateLayout),
		Time:       t.Format(TimeLayout),
		Status:     status,
		ImagePath:  imagePath,
		CapturedAt: t,
	}
}

// Day returns the calendar date an event belongs to, used as the dedup key.
func Day(t time.Time) string {
	return t.Format(DateLayout)
}
