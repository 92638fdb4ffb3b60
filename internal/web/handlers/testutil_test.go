package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/delivery"
	"github.com/kozaktomas/rollcall/internal/pipeline"
)

type fakeLoop struct {
	stats   pipeline.Stats
	stopped atomic.Bool
}

func (f *fakeLoop) Stats() pipeline.Stats { return f.stats }
func (f *fakeLoop) Stop()                 { f.stopped.Store(true) }

type fakeDelivery struct{ stats delivery.Stats }

func (f fakeDelivery) Stats() delivery.Stats { return f.stats }

type fakePresence []string

func (f fakePresence) Count() int         { return len(f) }
func (f fakePresence) Reported() []string { return append([]string(nil), f...) }

type fakeFrames struct{ img image.Image }

func (f fakeFrames) Latest() image.Image { return f.img }

type fakeHistory struct {
	records []database.AttendanceRecord
	gotDate string
	err     error
}

func (f *fakeHistory) ListByDate(ctx context.Context, date string) ([]database.AttendanceRecord, error) {
	f.gotDate = date
	if f.err != nil {
		return nil, f.err
	}
	return f.records, nil
}

var errDatabaseDown = errors.New("database down")

// parseJSONResponse parses the JSON response body into the target
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
