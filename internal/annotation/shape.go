// Package annotation owns the mutable ordered shape collection drawn over a
// captured image, the active tool context, and a linear undo/redo history of
// document snapshots. All operations are total: malformed references are
// absorbed as no-ops, never errors.
package annotation

import (
	"math"
	"time"
)

// Kind tags the closed set of shape variants.
type Kind string

const (
	KindPen     Kind = "pen"
	KindRect    Kind = "rect"
	KindEllipse Kind = "ellipse"
	KindArrow   Kind = "arrow"
	KindText    Kind = "text"
)

// BlendMode is the compositing intent a shape asks of the renderer.
type BlendMode string

const (
	BlendNormal   BlendMode = "normal"
	BlendMultiply BlendMode = "multiply" // highlighter
)

// Base carries the fields shared by every shape variant. IDs are assigned at
// creation and never reused.
type Base struct {
	ID          string    `json:"id"`
	StrokeColor string    `json:"stroke_color"` // #rrggbb
	StrokeWidth float64   `json:"stroke_width"`
	Opacity     float64   `json:"opacity"` // 0..1
	CreatedAt   time.Time `json:"created_at"`
}

// Shape is the sealed interface over the five annotation variants. Only
// types in this package can implement it; consumers switch on the concrete
// type (render, hit-test, serialize) so new variants surface every handler.
type Shape interface {
	Kind() Kind
	// base exposes the shared fields and seals the interface.
	base() *Base
	// clone returns a deep copy; history snapshots rely on it.
	clone() Shape
	// hitTest reports whether p touches the shape, with a small tolerance.
	hitTest(p Point) bool
	// translate moves the shape by (dx, dy) preserving its geometry.
	translate(dx, dy float64)
}

// ── Pen ──────────────────────────────────────────────────────────────────────

// Pen is a freehand stroke: an ordered point sequence. A highlighter is a Pen
// with the multiply blend intent.
type Pen struct {
	Base
	Points []Point   `json:"points"`
	Blend  BlendMode `json:"blend"`
}

func (s *Pen) Kind() Kind { return KindPen }
func (s *Pen) base() *Base { return &s.Base }
func (s *Pen) clone() Shape {
	cp := *s
	cp.Points = append([]Point(nil), s.Points...)
	return &cp
}

func (s *Pen) hitTest(p Point) bool {
	tol := s.StrokeWidth/2 + 4
	for i := 1; i < len(s.Points); i++ {
		if segmentDistance(p, s.Points[i-1], s.Points[i]) <= tol {
			return true
		}
	}
	return false
}

func (s *Pen) translate(dx, dy float64) {
	for i := range s.Points {
		s.Points[i].X += dx
		s.Points[i].Y += dy
	}
}

// ── Rectangle ────────────────────────────────────────────────────────────────

// Rectangle is an axis-aligned outlined box.
type Rectangle struct {
	Base
	Box Rect `json:"box"`
}

func (s *Rectangle) Kind() Kind { return KindRect }
func (s *Rectangle) base() *Base { return &s.Base }
func (s *Rectangle) clone() Shape { cp := *s; return &cp }

func (s *Rectangle) hitTest(p Point) bool {
	tol := s.StrokeWidth/2 + 4
	outer := s.Box.Inset(-tol)
	return outer.Contains(p)
}

func (s *Rectangle) translate(dx, dy float64) {
	s.Box.X += dx
	s.Box.Y += dy
}

// ── Ellipse ──────────────────────────────────────────────────────────────────

// Ellipse is an outlined axis-aligned ellipse given by center and radii.
type Ellipse struct {
	Base
	Center  Point   `json:"center"`
	RadiusX float64 `json:"radius_x"`
	RadiusY float64 `json:"radius_y"`
}

func (s *Ellipse) Kind() Kind { return KindEllipse }
func (s *Ellipse) base() *Base { return &s.Base }
func (s *Ellipse) clone() Shape { cp := *s; return &cp }

func (s *Ellipse) hitTest(p Point) bool {
	tol := s.StrokeWidth/2 + 4
	rx := s.RadiusX + tol
	ry := s.RadiusY + tol
	if rx <= 0 || ry <= 0 {
		return false
	}
	nx := (p.X - s.Center.X) / rx
	ny := (p.Y - s.Center.Y) / ry
	return nx*nx+ny*ny <= 1
}

func (s *Ellipse) translate(dx, dy float64) {
	s.Center.X += dx
	s.Center.Y += dy
}

// ── Arrow ────────────────────────────────────────────────────────────────────

// Arrow stores its two raw endpoints plus arrowhead dimensions derived from
// the stroke width at creation time.
type Arrow struct {
	Base
	From       Point   `json:"from"`
	To         Point   `json:"to"`
	HeadLength float64 `json:"head_length"`
	HeadWidth  float64 `json:"head_width"`
}

func (s *Arrow) Kind() Kind { return KindArrow }
func (s *Arrow) base() *Base { return &s.Base }
func (s *Arrow) clone() Shape { cp := *s; return &cp }

func (s *Arrow) hitTest(p Point) bool {
	tol := math.Max(s.StrokeWidth/2+4, s.HeadWidth/2)
	return segmentDistance(p, s.From, s.To) <= tol
}

// translate moves both endpoints by the same delta.
func (s *Arrow) translate(dx, dy float64) {
	s.From.X += dx
	s.From.Y += dy
	s.To.X += dx
	s.To.Y += dy
}

// ── Text ─────────────────────────────────────────────────────────────────────

// Text is an annotation anchored at a point.
type Text struct {
	Base
	Anchor     Point   `json:"anchor"`
	Content    string  `json:"content"`
	FontSize   float64 `json:"font_size"`
	FontFamily string  `json:"font_family"`
}

func (s *Text) Kind() Kind { return KindText }
func (s *Text) base() *Base { return &s.Base }
func (s *Text) clone() Shape { cp := *s; return &cp }

func (s *Text) hitTest(p Point) bool {
	// Approximate extent from font metrics; good enough for eraser/select.
	w := math.Max(float64(len(s.Content))*s.FontSize*0.6, s.FontSize)
	h := s.FontSize * 1.3
	return Rect{X: s.Anchor.X, Y: s.Anchor.Y, W: w, H: h}.Inset(-4).Contains(p)
}

func (s *Text) translate(dx, dy float64) {
	s.Anchor.X += dx
	s.Anchor.Y += dy
}

// cloneShapes deep-copies a shape list; the history log stores the copies.
func cloneShapes(shapes []Shape) []Shape {
	out := make([]Shape, len(shapes))
	for i, s := range shapes {
		out[i] = s.clone()
	}
	return out
}
