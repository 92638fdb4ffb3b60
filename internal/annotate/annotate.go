// Package annotate draws match results onto frames.
package annotate

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/kozaktomas/rollcall/internal/facematch"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	// KnownColor outlines regions that resolved to an enrolled identity.
	KnownColor = color.RGBA{R: 0, G: 200, B: 0, A: 255}
	// UnknownColor outlines regions that did not.
	UnknownColor = color.RGBA{R: 220, G: 0, B: 0, A: 255}

	labelText = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

const (
	borderWidth  = 2
	labelPadding = 3
)

// Frame returns a copy of frame with a box and label drawn for every result.
// The input frame is not modified.
func Frame(frame image.Image, results []facematch.MatchResult) *image.RGBA {
	bounds := frame.Bounds()
	out := image.NewRGBA(bounds)
	draw.Draw(out, bounds, frame, bounds.Min, draw.Src)

	for _, r := range results {
		c := UnknownColor
		if r.Known() {
			c = KnownColor
		}
		region := r.Region.Intersect(bounds)
		if region.Empty() {
			continue
		}
		drawBox(out, region, c)
		drawLabel(out, region, labelFor(r), c)
	}
	return out
}

func drawBox(img *image.RGBA, r image.Rectangle, c color.Color) {
	src := image.NewUniform(c)
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+borderWidth),
		image.Rect(r.Min.X, r.Max.Y-borderWidth, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+borderWidth, r.Max.Y),
		image.Rect(r.Max.X-borderWidth, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(img, e.Intersect(r), src, image.Point{}, draw.Src)
	}
}

// labelFor returns the result label folded to ASCII, the only range the
// bitmap font has glyphs for.
func labelFor(r facematch.MatchResult) string {
	return facematch.ASCIIFold(r.Label())
}

// drawLabel fills a strip along the bottom of the region and writes text on it.
func drawLabel(img *image.RGBA, r image.Rectangle, text string, bg color.Color) {
	face := basicfont.Face7x13
	metrics := face.Metrics()
	height := (metrics.Ascent + metrics.Descent).Ceil() + 2*labelPadding

	strip := image.Rect(r.Min.X, r.Max.Y-height, r.Max.X, r.Max.Y).Intersect(img.Bounds())
	if strip.Empty() {
		return
	}
	draw.Draw(img, strip, image.NewUniform(bg), image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(labelText),
		Face: face,
		Dot: fixed.Point26_6{
			X: fixed.I(strip.Min.X + labelPadding),
			Y: fixed.I(strip.Max.Y-labelPadding) - metrics.Descent,
		},
	}
	d.DrawString(text)
}
