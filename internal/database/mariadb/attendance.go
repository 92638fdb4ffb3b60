package mariadb

import (
	"context"
	"fmt"
)

// HasAttendance checks the recording service's attendance table for an existing
// row. The table is owned by the recording service and only read here.
func (p *Pool) HasAttendance(ctx context.Context, studentID, date string) (bool, error) {
	var exists bool
	err := p.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM attendance WHERE student_id = ? AND date = ?)`,
		studentID, date,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check attendance for %s on %s: %w", studentID, date, err)
	}
	return exists, nil
}
