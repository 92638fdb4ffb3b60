package facematch

import (
	"errors"
	"fmt"
	"math"

	"github.com/kozaktomas/rollcall/internal/gallery"
)

// Selection decides which qualifying gallery entry a detection resolves to.
type Selection string

const (
	// SelectNearest picks the entry with the minimum distance.
	SelectNearest Selection = "nearest"
	// SelectFirst picks the first entry in gallery order whose distance is below
	// the threshold. Kept only for compatibility with galleries tuned against it.
	SelectFirst Selection = "first"
)

// DefaultThreshold is the distance gate used when none is configured.
const DefaultThreshold = 0.6

// ParseSelection converts a config value into a Selection.
func ParseSelection(s string) (Selection, error) {
	switch Selection(s) {
	case SelectNearest, SelectFirst:
		return Selection(s), nil
	case "":
		return SelectNearest, nil
	default:
		return "", fmt.Errorf("unknown match selection %q (want nearest or first)", s)
	}
}

// Options configure a Matcher.
type Options struct {
	Metric    Metric
	Threshold float64
	Selection Selection
	Index     *Index // optional ANN index over the same gallery; nil scans exhaustively
}

// Matcher resolves detections against a gallery. It never mutates the gallery
// and holds no per-call state, so one Matcher may be shared freely.
type Matcher struct {
	gallery *gallery.Gallery
	opts    Options
}

// NewMatcher creates a matcher for g.
func NewMatcher(g *gallery.Gallery, opts Options) (*Matcher, error) {
	if g == nil {
		return nil, errors.New("gallery is required")
	}
	if opts.Threshold <= 0 {
		return nil, fmt.Errorf("threshold must be positive, got %v", opts.Threshold)
	}
	if opts.Metric == "" {
		opts.Metric = MetricEuclidean
	}
	if opts.Selection == "" {
		opts.Selection = SelectNearest
	}
	return &Matcher{gallery: g, opts: opts}, nil
}

// Match resolves detections against g with the default metric and nearest selection.
func Match(detections []Detection, g *gallery.Gallery, threshold float64) []MatchResult {
	m := &Matcher{gallery: g, opts: Options{Metric: MetricEuclidean, Threshold: threshold, Selection: SelectNearest}}
	return m.Match(detections)
}

// Threshold returns the configured distance gate.
func (m *Matcher) Threshold() float64 {
	return m.opts.Threshold
}

// Match resolves every detection of one frame. Results are in detection order.
func (m *Matcher) Match(detections []Detection) []MatchResult {
	results := make([]MatchResult, len(detections))
	for i, d := range detections {
		results[i] = m.resolve(d)
	}
	return results
}

func (m *Matcher) resolve(d Detection) MatchResult {
	result := MatchResult{Region: d.Region, Distance: math.Inf(1)}

	var idx int
	var dist float64
	switch {
	case m.opts.Selection == SelectFirst:
		idx, dist = m.firstBelow(d.Embedding)
	case m.opts.Index != nil:
		idx, dist = m.nearestIndexed(d.Embedding)
	default:
		idx, dist = m.nearestExact(d.Embedding)
	}

	if idx < 0 {
		return result
	}
	result.Distance = dist
	if dist < m.opts.Threshold {
		e := m.gallery.Entry(idx)
		result.IdentityID = e.ID
		result.Name = e.Name
	}
	return result
}

// nearestExact scans the whole gallery. Ties keep the earlier entry.
func (m *Matcher) nearestExact(query []float32) (int, float64) {
	best, bestDist := -1, math.Inf(1)
	for i := range m.gallery.Len() {
		d := m.opts.Metric.Distance(query, m.gallery.Entry(i).Embedding)
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	return best, bestDist
}

// nearestIndexed asks the index for candidates and re-scores them exactly,
// falling back to a full scan when the index yields nothing.
func (m *Matcher) nearestIndexed(query []float32) (int, float64) {
	candidates := m.opts.Index.Search(query, HNSWSearchCandidates)
	if len(candidates) == 0 {
		return m.nearestExact(query)
	}

	best, bestDist := -1, math.Inf(1)
	for _, i := range candidates {
		d := m.opts.Metric.Distance(query, m.gallery.Entry(i).Embedding)
		if d < bestDist || (d == bestDist && i < best) {
			best, bestDist = i, d
		}
	}
	return best, bestDist
}

// firstBelow returns the first entry in gallery order under the threshold.
// When none qualifies it reports the nearest entry so the distance can still be logged.
func (m *Matcher) firstBelow(query []float32) (int, float64) {
	best, bestDist := -1, math.Inf(1)
	for i := range m.gallery.Len() {
		d := m.opts.Metric.Distance(query, m.gallery.Entry(i).Embedding)
		if d < m.opts.Threshold {
			return i, d
		}
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	return best, bestDist
}
