package database

import (
	"context"
)

// HistoryReader answers "has attendance already been recorded for this identity on this day".
type HistoryReader interface {
	// HasAttendance reports whether a record exists for (studentID, date).
	HasAttendance(ctx context.Context, studentID, date string) (bool, error)
}

// HistoryWriter persists delivered events so day-scoped dedup survives restarts.
type HistoryWriter interface {
	HistoryReader

	// RecordAttendance stores a delivered event. Recording the same (student, date) twice is a no-op.
	RecordAttendance(ctx context.Context, rec AttendanceRecord) error

	// CountByDate returns the number of identities recorded for a date.
	CountByDate(ctx context.Context, date string) (int, error)
}

// HistoryReaders consults several history backends. A record in any of them counts.
type HistoryReaders []HistoryReader

// HasAttendance returns true as soon as one backend has a record. If none has
// one and at least one lookup failed, the first error is returned.
func (hs HistoryReaders) HasAttendance(ctx context.Context, studentID, date string) (bool, error) {
	var firstErr error
	for _, h := range hs {
		ok, err := h.HasAttendance(ctx, studentID, date)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if ok {
			return true, nil
		}
	}
	return false, firstErr
}
