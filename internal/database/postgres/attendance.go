package postgres

import (
	"context"
	"fmt"

	"github.com/kozaktomas/rollcall/internal/database"
)

// AttendanceRepository provides PostgreSQL-backed attendance history.
type AttendanceRepository struct {
	pool *Pool
}

// NewAttendanceRepository creates a new PostgreSQL attendance repository.
func NewAttendanceRepository(pool *Pool) *AttendanceRepository {
	return &AttendanceRepository{pool: pool}
}

// HasAttendance checks if attendance was already recorded for a student on a date.
func (r *AttendanceRepository) HasAttendance(ctx context.Context, studentID, date string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM attendance_events WHERE student_id = $1 AND date = $2)",
		studentID, date,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check attendance exists: %w", err)
	}
	return exists, nil
}

// RecordAttendance stores a delivered event. The first record per (student, date) wins.
func (r *AttendanceRepository) RecordAttendance(ctx context.Context, rec database.AttendanceRecord) error {
	query := `
		INSERT INTO attendance_events (event_id, student_id, date, time, status, image_path, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (student_id, date) DO NOTHING
	`

	_, err := r.pool.Exec(ctx, query, rec.EventID, rec.StudentID, rec.Date, rec.Time, rec.Status, rec.ImagePath)
	if err != nil {
		return fmt.Errorf("record attendance: %w", err)
	}
	return nil
}

// CountByDate returns the number of students recorded for a date.
func (r *AttendanceRepository) CountByDate(ctx context.Context, date string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM attendance_events WHERE date = $1", date).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count attendance: %w", err)
	}
	return count, nil
}

// ListByDate returns all records for a date ordered by time.
func (r *AttendanceRepository) ListByDate(ctx context.Context, date string) ([]database.AttendanceRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT event_id, student_id, to_char(date, 'YYYY-MM-DD'), time, status, image_path, recorded_at
		FROM attendance_events
		WHERE date = $1
		ORDER BY time, student_id
	`, date)
	if err != nil {
		return nil, fmt.Errorf("query attendance: %w", err)
	}
	defer rows.Close()

	var records []database.AttendanceRecord
	for rows.Next() {
		var rec database.AttendanceRecord
		if err := rows.Scan(&rec.EventID, &rec.StudentID, &rec.Date, &rec.Time, &rec.Status, &rec.ImagePath, &rec.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan attendance: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance: %w", err)
	}
	return records, nil
}
