package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/database"
)

// AttendanceLister lists persisted attendance records.
type AttendanceLister interface {
	ListByDate(ctx context.Context, date string) ([]database.AttendanceRecord, error)
}

// AttendanceHandler serves the delivered attendance history.
type AttendanceHandler struct {
	history AttendanceLister
	now     func() time.Time
}

// NewAttendanceHandler creates an attendance handler.
func NewAttendanceHandler(history AttendanceLister) *AttendanceHandler {
	return &AttendanceHandler{history: history, now: time.Now}
}

// AttendanceRecordResponse is one record in the list response.
type AttendanceRecordResponse struct {
	EventID   string `json:"event_id"`
	StudentID string `json:"student_id"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	Status    string `json:"status"`
	ImagePath string `json:"image_path"`
}

// AttendanceListResponse is returned by GET /api/v1/attendance.
type AttendanceListResponse struct {
	Date    string                     `json:"date"`
	Count   int                        `json:"count"`
	Records []AttendanceRecordResponse `json:"records"`
}

// List returns records for ?date=YYYY-MM-DD, defaulting to today.
func (h *AttendanceHandler) List(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = attendance.Day(h.now())
	} else if _, err := time.Parse(attendance.DateLayout, date); err != nil {
		respondError(w, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		return
	}

	records, err := h.history.ListByDate(r.Context(), date)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load attendance")
		return
	}

	resp := AttendanceListResponse{
		Date:    date,
		Count:   len(records),
		Records: make([]AttendanceRecordResponse, len(records)),
	}
	for i, rec := range records {
		resp.Records[i] = AttendanceRecordResponse{
			EventID:   rec.EventID,
			StudentID: rec.StudentID,
			Date:      rec.Date,
			Time:      rec.Time,
			Status:    rec.Status,
			ImagePath: rec.ImagePath,
		}
	}
	respondJSON(w, http.StatusOK, resp)
}
