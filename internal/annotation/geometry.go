package annotation

import "math"

// Point represents a 2D point or vector in canvas coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Pt is a convenience function to create a Point.
func Pt(x, y float64) Point {
	return Point{X: x, Y: y}
}

// Add returns the sum of two points (vector addition).
func (p Point) Add(q Point) Point {
	return Point{X: p.X + q.X, Y: p.Y + q.Y}
}

// Sub returns the difference of two points (vector subtraction).
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Distance returns the distance between two points.
func (p Point) Distance(q Point) float64 {
	dx := p.X - q.X
	dy := p.Y - q.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Rect is an axis-aligned rectangle. X,Y is always the top-left corner;
// W and H are non-negative.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// RectFromCorners builds a normalized Rect from two opposite corners,
// regardless of drag direction.
func RectFromCorners(a, b Point) Rect {
	return Rect{
		X: math.Min(a.X, b.X),
		Y: math.Min(a.Y, b.Y),
		W: math.Abs(b.X - a.X),
		H: math.Abs(b.Y - a.Y),
	}
}

// Contains reports whether p lies inside or on the border of r.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X <= r.X+r.W && p.Y >= r.Y && p.Y <= r.Y+r.H
}

// Inset returns r grown (negative d) or shrunk (positive d) by d on every
// side. Used for hit-test tolerance.
func (r Rect) Inset(d float64) Rect {
	return Rect{X: r.X + d, Y: r.Y + d, W: r.W - 2*d, H: r.H - 2*d}
}

// segmentDistance returns the distance from p to the segment a-b.
func segmentDistance(p, a, b Point) float64 {
	ab := b.Sub(a)
	lenSq := ab.X*ab.X + ab.Y*ab.Y
	if lenSq == 0 {
		return p.Distance(a)
	}
	t := ((p.X-a.X)*ab.X + (p.Y-a.Y)*ab.Y) / lenSq
	t = math.Max(0, math.Min(1, t))
	return p.Distance(Point{X: a.X + t*ab.X, Y: a.Y + t*ab.Y})
}
