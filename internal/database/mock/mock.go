// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"sync"

	"github.com/kozaktomas/rollcall/internal/database"
)

// MockHistory is an in-memory implementation of database.HistoryWriter
type MockHistory struct {
	mu      sync.RWMutex
	records []database.AttendanceRecord
	seen    map[string]bool

	// Error injection
	HasError    error
	RecordError error
	CountError  error
}

// NewMockHistory creates a new empty mock history
func NewMockHistory() *MockHistory {
	return &MockHistory{seen: make(map[string]bool)}
}

func historyKey(studentID, date string) string {
	return studentID + "|" + date
}

// Seed marks (studentID, date) as already recorded without storing a full record
func (m *MockHistory) Seed(studentID, date string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen[historyKey(studentID, date)] = true
}

// HasAttendance reports whether (studentID, date) has been recorded or seeded
func (m *MockHistory) HasAttendance(ctx context.Context, studentID, date string) (bool, error) {
	if m.HasError != nil {
		return false, m.HasError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.seen[historyKey(studentID, date)], nil
}

// RecordAttendance stores rec unless the same (student, date) is already present
func (m *MockHistory) RecordAttendance(ctx context.Context, rec database.AttendanceRecord) error {
	if m.RecordError != nil {
		return m.RecordError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := historyKey(rec.StudentID, rec.Date)
	if m.seen[key] {
		return nil
	}
	m.seen[key] = true
	m.records = append(m.records, rec)
	return nil
}

// CountByDate returns the number of identities marked for date
func (m *MockHistory) CountByDate(ctx context.Context, date string) (int, error) {
	if m.CountError != nil {
		return 0, m.CountError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, rec := range m.records {
		if rec.Date == date {
			n++
		}
	}
	return n, nil
}

// Records returns a copy of all recorded events in insertion order
func (m *MockHistory) Records() []database.AttendanceRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]database.AttendanceRecord, len(m.records))
	copy(out, m.records)
	return out
}

// Verify interface compliance
var _ database.HistoryWriter = (*MockHistory)(nil)
