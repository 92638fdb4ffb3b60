package facematch

import (
	"image"
	"math"
	"testing"
)

func TestComputeIoU(t *testing.T) {
	tests := []struct {
		name     string
		a        image.Rectangle
		b        image.Rectangle
		expected float64
	}{
		{"identical boxes", image.Rect(0, 0, 10, 10), image.Rect(0, 0, 10, 10), 1.0},
		{"no overlap", image.Rect(0, 0, 10, 10), image.Rect(20, 20, 30, 30), 0.0},
		{"partial overlap", image.Rect(0, 0, 10, 10), image.Rect(5, 5, 15, 15), 25.0 / 175.0},
		{"one inside other", image.Rect(0, 0, 20, 20), image.Rect(5, 5, 15, 15), 100.0 / 400.0},
		{"empty boxes", image.Rectangle{}, image.Rectangle{}, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ComputeIoU(tt.a, tt.b)
			if math.Abs(result-tt.expected) > 0.0001 {
				t.Errorf("ComputeIoU(%v, %v) = %v, want %v", tt.a, tt.b, result, tt.expected)
			}
		})
	}
}

func TestBBoxToRect(t *testing.T) {
	tests := []struct {
		name     string
		bbox     []float64
		expected image.Rectangle
	}{
		{"simple conversion", []float64{10.2, 20.6, 110.4, 220.5}, image.Rect(10, 21, 110, 221)},
		{"swapped corners", []float64{100, 200, 10, 20}, image.Rect(10, 20, 100, 200)},
		{"invalid bbox", []float64{100, 200}, image.Rectangle{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := BBoxToRect(tt.bbox); result != tt.expected {
				t.Errorf("BBoxToRect(%v) = %v, want %v", tt.bbox, result, tt.expected)
			}
		})
	}
}

func TestScaleRect(t *testing.T) {
	r := image.Rect(10, 20, 30, 40)

	if got := ScaleRect(r, 2); got != image.Rect(20, 40, 60, 80) {
		t.Errorf("ScaleRect(x2) = %v", got)
	}
	if got := ScaleRect(r, 1); got != r {
		t.Errorf("ScaleRect(x1) should be identity, got %v", got)
	}
	if got := ScaleRect(r, 0); got != r {
		t.Errorf("ScaleRect(0) should be identity, got %v", got)
	}
}

func TestSuppressOverlaps(t *testing.T) {
	a := Detection{Region: image.Rect(0, 0, 100, 100), Score: 0.9}
	aDup := Detection{Region: image.Rect(5, 5, 105, 105), Score: 0.7}
	b := Detection{Region: image.Rect(200, 0, 300, 100), Score: 0.8}

	// Each link of the chain overlaps its neighbour by IoU 0.54; the ends only by 0.25.
	chainHigh := Detection{Region: image.Rect(0, 0, 100, 100), Score: 3}
	chainMid := Detection{Region: image.Rect(30, 0, 130, 100), Score: 2}
	chainLow := Detection{Region: image.Rect(60, 0, 160, 100), Score: 1}

	tests := []struct {
		name     string
		input    []Detection
		expected []Detection
	}{
		{"empty", nil, nil},
		{"single", []Detection{a}, []Detection{a}},
		{"disjoint kept", []Detection{a, b}, []Detection{a, b}},
		{"lower score dropped", []Detection{aDup, a, b}, []Detection{a, b}},
		{"suppressed detection does not suppress", []Detection{chainLow, chainMid, chainHigh}, []Detection{chainLow, chainHigh}},
		{"equal scores keep first", []Detection{{Region: a.Region}, {Region: aDup.Region}}, []Detection{{Region: a.Region}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SuppressOverlaps(tt.input, 0.5)
			if len(result) != len(tt.expected) {
				t.Fatalf("expected %d detections, got %d", len(tt.expected), len(result))
			}
			for i := range result {
				if result[i].Region != tt.expected[i].Region {
					t.Errorf("detection %d: expected region %v, got %v", i, tt.expected[i].Region, result[i].Region)
				}
			}
		})
	}
}
