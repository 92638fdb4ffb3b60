package facematch

import "image"

// Unknown is the label drawn for detections that resolve to no enrolled identity.
const Unknown = "Unknown"

// Detection is one face found in a single frame.
type Detection struct {
	Region    image.Rectangle
	Embedding []float32
	Score     float64 // detector confidence, 0 when the backend does not report one
}

// MatchResult is the resolution of one detection. An empty IdentityID means UNKNOWN.
type MatchResult struct {
	IdentityID string
	Name       string
	Region     image.Rectangle
	Distance   float64 // distance to the nearest gallery entry (even when above threshold)
}

// Known reports whether the detection resolved to an enrolled identity.
func (m MatchResult) Known() bool {
	return m.IdentityID != ""
}

// Label returns the text drawn next to the region.
func (m MatchResult) Label() string {
	if !m.Known() {
		return Unknown
	}
	return m.Name
}
