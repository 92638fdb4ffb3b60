package annotate

import (
	"image"
	"image/color"
	"testing"

	"github.com/kozaktomas/rollcall/internal/facematch"
	"golang.org/x/image/font/basicfont"
)

func grayFrame(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 128
	}
	return img
}

func TestFrame_DrawsBoxes(t *testing.T) {
	frame := grayFrame(200, 200)
	results := []facematch.MatchResult{
		{IdentityID: "S001", Name: "Alice", Region: image.Rect(10, 10, 90, 90)},
		{Region: image.Rect(110, 110, 190, 190)},
	}

	out := Frame(frame, results)

	if got := out.RGBAAt(10, 50); got != KnownColor {
		t.Errorf("known region border = %v, want %v", got, KnownColor)
	}
	if got := out.RGBAAt(110, 130); got != UnknownColor {
		t.Errorf("unknown region border = %v, want %v", got, UnknownColor)
	}
	if got := out.RGBAAt(50, 30); got != (color.RGBA{128, 128, 128, 128}) {
		t.Errorf("region interior must be untouched, got %v", got)
	}
}

func TestFrame_DoesNotModifyInput(t *testing.T) {
	frame := grayFrame(50, 50)
	Frame(frame, []facematch.MatchResult{{Region: image.Rect(0, 0, 50, 50)}})

	for i, p := range frame.Pix {
		if p != 128 {
			t.Fatalf("input frame modified at byte %d", i)
		}
	}
}

func TestFrame_LabelDrawn(t *testing.T) {
	frame := grayFrame(120, 120)
	out := Frame(frame, []facematch.MatchResult{{Region: image.Rect(0, 0, 120, 120)}})

	// The label strip is filled with the region color and carries white text.
	white := 0
	for y := 100; y < 118; y++ {
		for x := 2; x < 60; x++ {
			if out.RGBAAt(x, y) == labelText {
				white++
			}
		}
	}
	if white == 0 {
		t.Error("expected label text pixels in the label strip")
	}
}

func TestLabelFor_VietnameseName(t *testing.T) {
	r := facematch.MatchResult{IdentityID: "S003", Name: "Trần Thị Đào"}

	label := labelFor(r)
	if label != "Tran Thi Dao" {
		t.Errorf("labelFor() = %q, want %q", label, "Tran Thi Dao")
	}
	for _, c := range label {
		if _, ok := basicfont.Face7x13.GlyphAdvance(c); !ok {
			t.Errorf("label rune %q has no glyph in the label font", c)
		}
	}
}

func TestFrame_RegionOutsideFrame(t *testing.T) {
	frame := grayFrame(40, 40)
	out := Frame(frame, []facematch.MatchResult{{Region: image.Rect(100, 100, 150, 150)}})
	if out.Bounds() != frame.Bounds() {
		t.Errorf("bounds changed: %v", out.Bounds())
	}
}
