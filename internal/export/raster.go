// Package export flattens an annotation document onto its captured base image
// and encodes the result for saving or clipboard use. Rendering is a plain
// software rasterizer: shapes are stamped in paint order, oldest first, so the
// output matches what the editor canvas showed.
package export

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/snapmark/snapmark/internal/annotation"
)

// Flatten composites shapes over base and returns the merged image. The base
// image is not modified.
func Flatten(base image.Image, shapes []annotation.Shape) *image.RGBA {
	bounds := base.Bounds()
	out := image.NewRGBA(bounds)
	draw.Draw(out, bounds, base, bounds.Min, draw.Src)

	for _, s := range shapes {
		drawShape(out, s)
	}
	return out
}

// EncodePNG renders the flattened document to PNG bytes.
func EncodePNG(base image.Image, shapes []annotation.Shape) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, Flatten(base, shapes)); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func drawShape(img *image.RGBA, s annotation.Shape) {
	switch v := s.(type) {
	case *annotation.Pen:
		p := painter{img: img, color: parseHex(v.StrokeColor), opacity: v.Opacity}
		if v.Blend == annotation.BlendMultiply {
			p.multiply = true
		}
		for i := 1; i < len(v.Points); i++ {
			p.segment(v.Points[i-1], v.Points[i], v.StrokeWidth)
		}
		if len(v.Points) == 1 {
			p.dot(v.Points[0], v.StrokeWidth/2)
		}
	case *annotation.Rectangle:
		p := painter{img: img, color: parseHex(v.StrokeColor), opacity: v.Opacity}
		tl := annotation.Pt(v.Box.X, v.Box.Y)
		tr := annotation.Pt(v.Box.X+v.Box.W, v.Box.Y)
		br := annotation.Pt(v.Box.X+v.Box.W, v.Box.Y+v.Box.H)
		bl := annotation.Pt(v.Box.X, v.Box.Y+v.Box.H)
		p.segment(tl, tr, v.StrokeWidth)
		p.segment(tr, br, v.StrokeWidth)
		p.segment(br, bl, v.StrokeWidth)
		p.segment(bl, tl, v.StrokeWidth)
	case *annotation.Ellipse:
		p := painter{img: img, color: parseHex(v.StrokeColor), opacity: v.Opacity}
		// Step count scales with circumference so large ellipses stay smooth.
		steps := int(math.Max(32, 2*math.Pi*math.Max(v.RadiusX, v.RadiusY)/2))
		prev := annotation.Pt(v.Center.X+v.RadiusX, v.Center.Y)
		for i := 1; i <= steps; i++ {
			t := 2 * math.Pi * float64(i) / float64(steps)
			next := annotation.Pt(v.Center.X+v.RadiusX*math.Cos(t), v.Center.Y+v.RadiusY*math.Sin(t))
			p.segment(prev, next, v.StrokeWidth)
			prev = next
		}
	case *annotation.Arrow:
		p := painter{img: img, color: parseHex(v.StrokeColor), opacity: v.Opacity}
		p.segment(v.From, v.To, v.StrokeWidth)
		drawArrowHead(p, v)
	case *annotation.Text:
		drawText(img, v)
	}
}

// drawArrowHead stamps the two barbs of the head at the To endpoint.
func drawArrowHead(p painter, a *annotation.Arrow) {
	dx := a.To.X - a.From.X
	dy := a.To.Y - a.From.Y
	length := math.Hypot(dx, dy)
	if length == 0 {
		return
	}
	ux, uy := dx/length, dy/length
	// Perpendicular unit vector.
	px, py := -uy, ux

	baseX := a.To.X - ux*a.HeadLength
	baseY := a.To.Y - uy*a.HeadLength
	left := annotation.Pt(baseX+px*a.HeadWidth/2, baseY+py*a.HeadWidth/2)
	right := annotation.Pt(baseX-px*a.HeadWidth/2, baseY-py*a.HeadWidth/2)
	p.segment(a.To, left, a.StrokeWidth)
	p.segment(a.To, right, a.StrokeWidth)
}

func drawText(img *image.RGBA, t *annotation.Text) {
	c := parseHex(t.StrokeColor)
	c.A = uint8(clamp01(t.Opacity) * 255)
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot: fixed.Point26_6{
			X: fixed.I(int(math.Round(t.Anchor.X))),
			// Anchor is the top-left of the text box; the drawer wants the
			// baseline.
			Y: fixed.I(int(math.Round(t.Anchor.Y)) + basicfont.Face7x13.Ascent),
		},
	}
	d.DrawString(t.Content)
}

// painter stamps anti-alias-free dots and segments with a fixed color,
// opacity, and blend mode.
type painter struct {
	img      *image.RGBA
	color    color.RGBA
	opacity  float64
	multiply bool
}

// segment draws a thick line by stamping discs along its length.
func (p painter) segment(a, b annotation.Point, width float64) {
	r := math.Max(width/2, 0.5)
	length := a.Distance(b)
	steps := int(length/0.75) + 1
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		p.dot(annotation.Pt(a.X+(b.X-a.X)*t, a.Y+(b.Y-a.Y)*t), r)
	}
}

func (p painter) dot(center annotation.Point, radius float64) {
	minX := int(math.Floor(center.X - radius))
	maxX := int(math.Ceil(center.X + radius))
	minY := int(math.Floor(center.Y - radius))
	maxY := int(math.Ceil(center.Y + radius))
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			dx := float64(x) + 0.5 - center.X
			dy := float64(y) + 0.5 - center.Y
			if dx*dx+dy*dy <= radius*radius {
				p.pixel(x, y)
			}
		}
	}
}

func (p painter) pixel(x, y int) {
	if !(image.Point{X: x, Y: y}).In(p.img.Bounds()) {
		return
	}
	dst := p.img.RGBAAt(x, y)
	src := p.color
	alpha := clamp01(p.opacity)

	var blended color.RGBA
	if p.multiply {
		blended = color.RGBA{
			R: uint8(uint16(dst.R) * uint16(src.R) / 255),
			G: uint8(uint16(dst.G) * uint16(src.G) / 255),
			B: uint8(uint16(dst.B) * uint16(src.B) / 255),
			A: dst.A,
		}
	} else {
		blended = src
		blended.A = dst.A
	}
	p.img.SetRGBA(x, y, color.RGBA{
		R: lerp8(dst.R, blended.R, alpha),
		G: lerp8(dst.G, blended.G, alpha),
		B: lerp8(dst.B, blended.B, alpha),
		A: dst.A,
	})
}

func lerp8(a, b uint8, t float64) uint8 {
	return uint8(math.Round(float64(a) + (float64(b)-float64(a))*t))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// parseHex decodes #rrggbb. Malformed input falls back to opaque black so a
// corrupt document still renders something visible.
func parseHex(s string) color.RGBA {
	var r, g, b uint8
	if len(s) == 7 && s[0] == '#' {
		if _, err := fmt.Sscanf(s[1:], "%02x%02x%02x", &r, &g, &b); err == nil {
			return color.RGBA{R: r, G: g, B: b, A: 255}
		}
	}
	return color.RGBA{A: 255}
}
