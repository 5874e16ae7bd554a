package export

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapmark/snapmark/internal/annotation"
)

func whiteBase(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{255, 255, 255, 255})
		}
	}
	return img
}

func TestFlattenLeavesBaseUntouched(t *testing.T) {
	base := whiteBase(20, 20)
	shapes := []annotation.Shape{
		&annotation.Rectangle{
			Base: annotation.Base{StrokeColor: "#ff0000", StrokeWidth: 2, Opacity: 1},
			Box:  annotation.Rect{X: 2, Y: 2, W: 10, H: 10},
		},
	}

	out := Flatten(base, shapes)

	assert.Equal(t, color.RGBA{255, 255, 255, 255}, base.RGBAAt(2, 2))
	assert.NotEqual(t, color.RGBA{255, 255, 255, 255}, out.RGBAAt(2, 2))
}

func TestFlattenStampsStrokeColor(t *testing.T) {
	base := whiteBase(40, 40)
	shapes := []annotation.Shape{
		&annotation.Pen{
			Base:   annotation.Base{StrokeColor: "#0000ff", StrokeWidth: 4, Opacity: 1},
			Points: []annotation.Point{annotation.Pt(5, 20), annotation.Pt(35, 20)},
			Blend:  annotation.BlendNormal,
		},
	}

	out := Flatten(base, shapes)
	got := out.RGBAAt(20, 20)
	assert.Equal(t, color.RGBA{0, 0, 255, 255}, got)
	// Far from the stroke the base shows through.
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, out.RGBAAt(20, 35))
}

func TestHighlighterMultipliesInsteadOfCovering(t *testing.T) {
	base := whiteBase(40, 40)
	// Paint a mid-gray band to multiply against.
	for x := 0; x < 40; x++ {
		base.SetRGBA(x, 20, color.RGBA{100, 100, 100, 255})
	}
	shapes := []annotation.Shape{
		&annotation.Pen{
			Base:   annotation.Base{StrokeColor: "#ffff00", StrokeWidth: 6, Opacity: 0.4},
			Points: []annotation.Point{annotation.Pt(5, 20), annotation.Pt(35, 20)},
			Blend:  annotation.BlendMultiply,
		},
	}

	out := Flatten(base, shapes)
	got := out.RGBAAt(20, 20)
	// Multiply with yellow keeps R and G, darkens B; 0.4 opacity blends
	// toward that from gray 100. Blue channel must drop, red must not rise
	// above the underlying value.
	assert.Less(t, got.B, uint8(100))
	assert.Equal(t, uint8(100), got.R)
}

func TestArrowDrawsHeadAtToEndpoint(t *testing.T) {
	base := whiteBase(60, 40)
	shapes := []annotation.Shape{
		&annotation.Arrow{
			Base:       annotation.Base{StrokeColor: "#00ff00", StrokeWidth: 2, Opacity: 1},
			From:       annotation.Pt(5, 20),
			To:         annotation.Pt(50, 20),
			HeadLength: 8,
			HeadWidth:  6,
		},
	}

	out := Flatten(base, shapes)
	assert.Equal(t, color.RGBA{0, 255, 0, 255}, out.RGBAAt(50, 20))
	// A barb pixel above the shaft near the tip.
	barb := out.RGBAAt(45, 18)
	assert.NotEqual(t, color.RGBA{255, 255, 255, 255}, barb)
}

func TestTextRendersGlyphPixels(t *testing.T) {
	base := whiteBase(120, 40)
	shapes := []annotation.Shape{
		&annotation.Text{
			Base:     annotation.Base{StrokeColor: "#000000", Opacity: 1},
			Anchor:   annotation.Pt(10, 10),
			Content:  "Hi",
			FontSize: 18,
		},
	}

	out := Flatten(base, shapes)
	changed := 0
	for y := 0; y < 40; y++ {
		for x := 0; x < 120; x++ {
			if out.RGBAAt(x, y) != (color.RGBA{255, 255, 255, 255}) {
				changed++
			}
		}
	}
	assert.Greater(t, changed, 0)
}

func TestEncodePNGRoundTrips(t *testing.T) {
	base := whiteBase(16, 16)
	data, err := EncodePNG(base, nil)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 16, 16), img.Bounds())
}

func TestMalformedColorFallsBackToBlack(t *testing.T) {
	base := whiteBase(20, 20)
	shapes := []annotation.Shape{
		&annotation.Rectangle{
			Base: annotation.Base{StrokeColor: "not-a-color", StrokeWidth: 2, Opacity: 1},
			Box:  annotation.Rect{X: 4, Y: 4, W: 8, H: 8},
		},
	}
	out := Flatten(base, shapes)
	assert.Equal(t, color.RGBA{0, 0, 0, 255}, out.RGBAAt(4, 4))
}
