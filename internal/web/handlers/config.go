package handlers

import (
	"net/http"

	"github.com/kozaktomas/rollcall/internal/config"
)

// ConfigHandler handles configuration endpoints
type ConfigHandler struct {
	config *config.Config
}

// NewConfigHandler creates a new config handler
func NewConfigHandler(cfg *config.Config) *ConfigHandler {
	return &ConfigHandler{
		config: cfg,
	}
}

// ConfigResponse is the non-secret part of the running configuration
type ConfigResponse struct {
	Camera        string  `json:"camera"`
	GallerySource string  `json:"gallery_source"`
	Metric        string  `json:"metric"`
	Threshold     float64 `json:"threshold"`
	Selection     string  `json:"selection"`
	Index         string  `json:"index"`
	PresenceScope string  `json:"presence_scope"`
	CutoffHour    int     `json:"cutoff_hour"`
	DeliveryURL   string  `json:"delivery_url"`
	Detector      string  `json:"detector"`
	HistoryStore  bool    `json:"history_store"`
}

// Get returns the running configuration without credentials
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	c := h.config
	respondJSON(w, http.StatusOK, ConfigResponse{
		Camera:        c.Camera.Device,
		GallerySource: c.Gallery.Source,
		Metric:        c.Matcher.Metric,
		Threshold:     c.Matcher.Threshold,
		Selection:     c.Matcher.Selection,
		Index:         c.Matcher.Index,
		PresenceScope: c.Presence.Scope,
		CutoffHour:    c.Attendance.CutoffHour,
		DeliveryURL:   c.Delivery.URL,
		Detector:      c.Detector.Backend,
		HistoryStore:  c.Database.URL != "",
	})
}
