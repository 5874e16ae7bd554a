package annotation

import "math"

// Gesture translates pointer and key input into document commands, enforcing
// the shape-construction policy: minimum drag sizes, geometry normalization,
// and the single history commit per completed gesture. One Gesture serves one
// annotation surface alongside its Engine.
type Gesture struct {
	engine *Engine

	active bool
	tool   Tool // captured at pointer-down so mid-drag tool changes don't mix
	start  Point
	last   Point
	points []Point

	// select-tool drag state
	dragID    string
	dragMoved bool

	// text edit-in-place state; the pending shape is not in the document
	// until confirmed, so click+type+confirm is one committed mutation
	pending *Text
}

// NewGesture creates a gesture translator for e.
func NewGesture(e *Engine) *Gesture {
	return &Gesture{engine: e}
}

// Editing reports whether a text shape is in its edit-in-place state.
func (g *Gesture) Editing() bool { return g.pending != nil }

// Preview returns the in-progress shape for the renderer to draw above the
// document, or nil when no gesture is forming one. Eraser and select have no
// preview state.
func (g *Gesture) Preview() Shape {
	if g.pending != nil {
		return g.pending
	}
	if !g.active {
		return nil
	}
	switch g.tool {
	case ToolPen, ToolHighlighter:
		if len(g.points) < 2 {
			return nil
		}
		return g.penShape(g.points)
	case ToolRect:
		return &Rectangle{Base: g.newBase(), Box: RectFromCorners(g.start, g.last)}
	case ToolEllipse:
		c, rx, ry := ellipseFromDrag(g.start, g.last)
		return &Ellipse{Base: g.newBase(), Center: c, RadiusX: rx, RadiusY: ry}
	case ToolArrow:
		return g.arrowShape(g.start, g.last)
	}
	return nil
}

// PointerDown begins a gesture at p. With the text tool it immediately opens
// an edit-in-place shape (no drag, no minimum size); a pending text from an
// earlier click is confirmed first.
func (g *Gesture) PointerDown(p Point) {
	if g.pending != nil {
		g.ConfirmText()
	}

	g.tool = g.engine.Tool().Tool
	g.start = p
	g.last = p
	g.active = true

	switch g.tool {
	case ToolSelect:
		id := g.engine.HitTest(p)
		g.engine.Select(id)
		g.dragID = id
		g.dragMoved = false
	case ToolEraser:
		if id := g.engine.HitTest(p); id != "" {
			g.engine.DeleteShape(id)
		}
	case ToolPen, ToolHighlighter:
		g.points = []Point{p}
	case ToolText:
		tc := g.engine.Tool()
		g.pending = &Text{
			Base:       g.newBase(),
			Anchor:     p,
			FontSize:   tc.FontSize,
			FontFamily: tc.FontFamily,
		}
		g.active = false
	}
}

// PointerMove extends the gesture to p.
func (g *Gesture) PointerMove(p Point) {
	if !g.active {
		return
	}
	switch g.tool {
	case ToolPen, ToolHighlighter:
		g.points = append(g.points, p)
	case ToolEraser:
		if id := g.engine.HitTest(p); id != "" {
			g.engine.DeleteShape(id)
		}
	case ToolSelect:
		if g.dragID != "" {
			if s := g.engine.find(g.dragID); s != nil {
				s.translate(p.X-g.last.X, p.Y-g.last.Y)
				g.dragMoved = true
			}
		}
	}
	g.last = p
}

// PointerUp finishes the gesture at p, committing a shape when the
// construction thresholds are met and discarding it otherwise.
func (g *Gesture) PointerUp(p Point) {
	if !g.active {
		return
	}
	g.active = false
	g.last = p

	switch g.tool {
	case ToolPen, ToolHighlighter:
		if len(g.points) >= 2 {
			g.engine.AddShape(g.penShape(g.points))
		}
		g.points = nil

	case ToolRect:
		if math.Abs(p.X-g.start.X) > minRectDelta && math.Abs(p.Y-g.start.Y) > minRectDelta {
			g.engine.AddShape(&Rectangle{Base: g.newBase(), Box: RectFromCorners(g.start, p)})
		}

	case ToolEllipse:
		c, rx, ry := ellipseFromDrag(g.start, p)
		if rx > minEllipseRad && ry > minEllipseRad {
			g.engine.AddShape(&Ellipse{Base: g.newBase(), Center: c, RadiusX: rx, RadiusY: ry})
		}

	case ToolArrow:
		if g.start.Distance(p) > minArrowLength {
			g.engine.AddShape(g.arrowShape(g.start, p))
		}

	case ToolSelect:
		if g.dragID != "" && g.dragMoved {
			if s := g.engine.find(g.dragID); s != nil {
				// One committed mutation for the whole drag: the live shape
				// already carries the end-state geometry.
				g.engine.UpdateShape(g.dragID, geometryPatch(s))
			}
		}
		g.dragID = ""
		g.dragMoved = false
	}
}

// ResizeSelected rescales the selected rectangle's width and height by the
// given factors, clamped to the 5px minimum, and commits. Only rectangles
// have resize affordances; any other selection is a no-op.
func (g *Gesture) ResizeSelected(scaleX, scaleY float64) {
	id := g.engine.SelectedID()
	if id == "" {
		return
	}
	r, ok := g.engine.find(id).(*Rectangle)
	if !ok {
		return
	}
	box := r.Box
	box.W = math.Max(box.W*scaleX, minRectResize)
	box.H = math.Max(box.H*scaleY, minRectResize)
	g.engine.UpdateShape(id, Patch{Box: &box})
}

// ── Text edit-in-place ───────────────────────────────────────────────────────

// KeyDown routes a key event to the pending text editor. Printable runes are
// appended; "enter" confirms, "escape" cancels, "backspace" deletes.
func (g *Gesture) KeyDown(key string) {
	if g.pending == nil {
		return
	}
	switch key {
	case "enter":
		g.ConfirmText()
	case "escape":
		g.CancelText()
	case "backspace":
		g.Backspace()
	default:
		for _, r := range key {
			g.TypeRune(r)
		}
	}
}

// TypeRune appends r to the pending text content.
func (g *Gesture) TypeRune(r rune) {
	if g.pending == nil {
		return
	}
	g.pending.Content += string(r)
}

// Backspace removes the last rune of the pending text content.
func (g *Gesture) Backspace() {
	if g.pending == nil {
		return
	}
	runes := []rune(g.pending.Content)
	if len(runes) > 0 {
		g.pending.Content = string(runes[:len(runes)-1])
	}
}

// ConfirmText commits the pending text shape as a single document mutation.
// Confirming with empty content discards the shape instead, so empty text
// annotations never accumulate in the document.
func (g *Gesture) ConfirmText() {
	p := g.pending
	g.pending = nil
	if p == nil || p.Content == "" {
		return
	}
	g.engine.AddShape(p)
}

// CancelText discards the pending text shape. The shape was never committed
// to the document, so escape leaves no trace whether or not it was edited.
func (g *Gesture) CancelText() {
	g.pending = nil
}

// ── helpers ──────────────────────────────────────────────────────────────────

func (g *Gesture) newBase() Base {
	tc := g.engine.Tool()
	return Base{
		StrokeColor: tc.StrokeColor,
		StrokeWidth: tc.StrokeWidth,
		Opacity:     tc.Opacity,
	}
}

func (g *Gesture) penShape(points []Point) *Pen {
	b := g.newBase()
	blend := BlendNormal
	if g.tool == ToolHighlighter {
		b.Opacity = highlighterOpacity
		b.StrokeWidth *= highlighterWidthScale
		blend = BlendMultiply
	}
	return &Pen{Base: b, Points: append([]Point(nil), points...), Blend: blend}
}

func (g *Gesture) arrowShape(from, to Point) *Arrow {
	b := g.newBase()
	return &Arrow{
		Base:       b,
		From:       from,
		To:         to,
		HeadLength: b.StrokeWidth * arrowHeadLenMul,
		HeadWidth:  b.StrokeWidth * arrowHeadWidMul,
	}
}

func ellipseFromDrag(a, b Point) (center Point, rx, ry float64) {
	center = Point{X: (a.X + b.X) / 2, Y: (a.Y + b.Y) / 2}
	rx = math.Abs(b.X-a.X) / 2
	ry = math.Abs(b.Y-a.Y) / 2
	return center, rx, ry
}

// geometryPatch captures a shape's current geometry as a Patch, used to turn
// a live drag end-state into one committed update.
func geometryPatch(s Shape) Patch {
	switch v := s.(type) {
	case *Pen:
		return Patch{Points: append([]Point(nil), v.Points...)}
	case *Rectangle:
		box := v.Box
		return Patch{Box: &box}
	case *Ellipse:
		c := v.Center
		rx, ry := v.RadiusX, v.RadiusY
		return Patch{Center: &c, RadiusX: &rx, RadiusY: &ry}
	case *Arrow:
		from, to := v.From, v.To
		return Patch{From: &from, To: &to}
	case *Text:
		a := v.Anchor
		return Patch{Anchor: &a}
	}
	return Patch{}
}
