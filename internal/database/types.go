package database

import (
	"time"
)

// AttendanceRecord is a delivered attendance event as persisted in the local history.
type AttendanceRecord struct {
	EventID    string
	StudentID  string
	Date       string // YYYY-MM-DD, the dedup day
	Time       string // HH:MM:SS
	Status     string
	ImagePath  string
	RecordedAt time.Time
}

// GalleryRow is one gallery entry as stored in PostgreSQL.
type GalleryRow struct {
	IdentityID  string
	DisplayName string
	Embedding   []float32
	Position    int
	Model       string
	CreatedAt   time.Time
}
