package web

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/rollcall/internal/camera"
	"github.com/kozaktomas/rollcall/internal/config"
	"github.com/kozaktomas/rollcall/internal/pipeline"
)

type stubLoop struct{ stops int }

func (s *stubLoop) Stats() pipeline.Stats { return pipeline.Stats{State: "RUNNING"} }
func (s *stubLoop) Stop()                 { s.stops++ }

func TestRoutes(t *testing.T) {
	loop := &stubLoop{}
	srv := NewServer(Options{
		Addr:   "127.0.0.1:0",
		Token:  "s3cret",
		Config: config.Defaults(),
		Loop:   loop,
		Frames: camera.NewHeadless(),
	})

	tests := []struct {
		name   string
		method string
		path   string
		auth   string
		want   int
	}{
		{"health", "GET", "/api/v1/health", "", http.StatusOK},
		{"status", "GET", "/api/v1/status", "", http.StatusOK},
		{"config", "GET", "/api/v1/config", "", http.StatusOK},
		{"frame before capture", "GET", "/api/v1/frame", "", http.StatusServiceUnavailable},
		{"attendance without history", "GET", "/api/v1/attendance", "", http.StatusNotFound},
		{"stop without token", "POST", "/api/v1/stop", "", http.StatusUnauthorized},
		{"stop with token", "POST", "/api/v1/stop", "Bearer s3cret", http.StatusAccepted},
		{"stop via GET", "GET", "/api/v1/stop", "Bearer s3cret", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			rec := httptest.NewRecorder()
			srv.Router().ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("%s %s = %d, want %d (%s)", tt.method, tt.path, rec.Code, tt.want, rec.Body.String())
			}
		})
	}

	if loop.stops != 1 {
		t.Errorf("expected exactly one authorized stop, got %d", loop.stops)
	}
}
