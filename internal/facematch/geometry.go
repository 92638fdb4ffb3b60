package facematch

import (
	"image"
	"math"
	"sort"
)

// BBoxToRect converts a pixel bbox [x1, y1, x2, y2] into an image.Rectangle.
// Invalid input yields the empty rectangle.
func BBoxToRect(bbox []float64) image.Rectangle {
	if len(bbox) != 4 {
		return image.Rectangle{}
	}
	return image.Rect(
		int(math.Round(bbox[0])),
		int(math.Round(bbox[1])),
		int(math.Round(bbox[2])),
		int(math.Round(bbox[3])),
	).Canon()
}

// ScaleRect maps a rectangle detected on a resized frame back to original
// frame coordinates. factor is original size divided by resized size.
func ScaleRect(r image.Rectangle, factor float64) image.Rectangle {
	if factor <= 0 || factor == 1 {
		return r
	}
	return image.Rect(
		int(math.Round(float64(r.Min.X)*factor)),
		int(math.Round(float64(r.Min.Y)*factor)),
		int(math.Round(float64(r.Max.X)*factor)),
		int(math.Round(float64(r.Max.Y)*factor)),
	)
}

// ComputeIoU calculates Intersection over Union between two regions.
func ComputeIoU(a, b image.Rectangle) float64 {
	inter := a.Intersect(b)
	if inter.Empty() {
		return 0 // No intersection
	}

	intersection := float64(inter.Dx() * inter.Dy())
	union := float64(a.Dx()*a.Dy()+b.Dx()*b.Dy()) - intersection
	if union <= 0 {
		return 0
	}
	return intersection / union
}

// SuppressOverlaps is greedy non-maximum suppression: detections are visited
// by descending score and one is kept only if it overlaps no already kept
// detection by more than maxIoU. Kept detections stay in input order; on
// equal scores the earlier detection wins.
func SuppressOverlaps(detections []Detection, maxIoU float64) []Detection {
	if len(detections) < 2 {
		return detections
	}

	order := make([]int, len(detections))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return detections[order[a]].Score > detections[order[b]].Score
	})

	keep := make([]bool, len(detections))
	var kept []int
	for _, i := range order {
		overlaps := false
		for _, k := range kept {
			if ComputeIoU(detections[i].Region, detections[k].Region) > maxIoU {
				overlaps = true
				break
			}
		}
		if !overlaps {
			keep[i] = true
			kept = append(kept, i)
		}
	}

	out := make([]Detection, 0, len(kept))
	for i, d := range detections {
		if keep[i] {
			out = append(out, d)
		}
	}
	return out
}
