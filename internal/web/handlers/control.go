package handlers

import (
	"bytes"
	"image"
	"image/jpeg"
	"log"
	"net/http"
	"slices"

	"github.com/kozaktomas/rollcall/internal/delivery"
	"github.com/kozaktomas/rollcall/internal/pipeline"
)

const frameJPEGQuality = 80

// LoopController is the part of the capture loop exposed over HTTP.
type LoopController interface {
	Stats() pipeline.Stats
	Stop()
}

// DeliveryStatser reports dispatcher counters.
type DeliveryStatser interface {
	Stats() delivery.Stats
}

// PresenceCounter reports the identities reported this run.
type PresenceCounter interface {
	Count() int
	Reported() []string
}

// FrameSource returns the most recent annotated frame, or nil.
type FrameSource interface {
	Latest() image.Image
}

// ControlHandler serves loop status and accepts stop requests.
type ControlHandler struct {
	loop     LoopController
	delivery DeliveryStatser
	presence PresenceCounter
	frames   FrameSource
}

// NewControlHandler creates a control handler. Everything except loop may be nil.
func NewControlHandler(loop LoopController, d DeliveryStatser, p PresenceCounter, f FrameSource) *ControlHandler {
	return &ControlHandler{loop: loop, delivery: d, presence: p, frames: f}
}

// StatusResponse is returned by GET /api/v1/status.
type StatusResponse struct {
	Loop        pipeline.Stats  `json:"loop"`
	Delivery    *delivery.Stats `json:"delivery,omitempty"`
	Reported    int             `json:"reported"`
	ReportedIDs []string        `json:"reported_ids"`
}

// Status returns loop, delivery and presence counters.
func (h *ControlHandler) Status(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{Loop: h.loop.Stats(), ReportedIDs: []string{}}
	if h.delivery != nil {
		s := h.delivery.Stats()
		resp.Delivery = &s
	}
	if h.presence != nil {
		resp.Reported = h.presence.Count()
		resp.ReportedIDs = h.presence.Reported()
		slices.Sort(resp.ReportedIDs)
	}
	respondJSON(w, http.StatusOK, resp)
}

// Stop asks the capture loop to stop after the current frame.
func (h *ControlHandler) Stop(w http.ResponseWriter, r *http.Request) {
	log.Printf("Stop requested over HTTP from %s", sanitizeForLog(r.RemoteAddr))
	h.loop.Stop()
	respondJSON(w, http.StatusAccepted, map[string]string{
		"status": "stopping",
	})
}

// Frame returns the latest annotated frame as JPEG.
func (h *ControlHandler) Frame(w http.ResponseWriter, r *http.Request) {
	if h.frames == nil {
		respondError(w, http.StatusNotFound, "frame preview not available")
		return
	}
	img := h.frames.Latest()
	if img == nil {
		respondError(w, http.StatusServiceUnavailable, "no frame captured yet")
		return
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: frameJPEGQuality}); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to encode frame")
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
