package annotation

import (
	"time"

	"github.com/google/uuid"
)

// Patch carries the mutable fields of a shape for UpdateShape. Nil fields are
// left untouched; fields that do not apply to the target variant are ignored.
type Patch struct {
	StrokeColor *string
	StrokeWidth *float64
	Opacity     *float64

	Points []Point // pen
	Box    *Rect   // rectangle

	Center  *Point // ellipse
	RadiusX *float64
	RadiusY *float64

	From *Point // arrow
	To   *Point

	Anchor     *Point // text
	Content    *string
	FontSize   *float64
	FontFamily *string
}

// EngineOption configures an Engine at construction time.
type EngineOption func(*Engine)

// WithEngineClock replaces the wall clock used for shape creation stamps.
func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator replaces the shape ID generator. Tests use it for
// deterministic ids.
func WithIDGenerator(gen func() string) EngineOption {
	return func(e *Engine) { e.newID = gen }
}

// Engine owns one annotation document and its history. It is created when an
// annotation surface opens over a captured image and discarded when the
// surface closes. Operations are total functions: unknown ids are no-ops.
type Engine struct {
	shapes     []Shape
	selectedID string
	history    *History
	tool       ToolContext
	now        func() time.Time
	newID      func() string
}

// NewEngine creates an engine over an empty document. The history starts
// with the empty snapshot so the first real edit is undoable back to it.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		history: NewHistory(nil),
		tool:    DefaultToolContext(),
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Shapes returns the render-ready shape list in paint order (insertion
// order; later entries paint on top). Callers must treat it as read-only.
func (e *Engine) Shapes() []Shape { return e.shapes }

// SelectedID returns the id of the selected shape, or "" when none.
func (e *Engine) SelectedID() string { return e.selectedID }

// Tool returns the current tool context.
func (e *Engine) Tool() ToolContext { return e.tool }

// ── Mutating operations (each commits one history snapshot) ─────────────────

// AddShape appends s to the document and commits. A missing id or creation
// stamp is filled in. Text shapes are auto-selected for immediate editing;
// any other kind clears the selection.
func (e *Engine) AddShape(s Shape) {
	b := s.base()
	if b.ID == "" {
		b.ID = e.newID()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = e.now()
	}
	e.shapes = append(e.shapes, s)
	if s.Kind() == KindText {
		e.selectedID = b.ID
	} else {
		e.selectedID = ""
	}
	e.history.Commit(e.shapes)
}

// UpdateShape applies p to the shape with the given id, preserving its paint
// order position, and commits. Unknown ids are silently ignored.
func (e *Engine) UpdateShape(id string, p Patch) {
	s := e.find(id)
	if s == nil {
		return
	}
	applyPatch(s, p)
	e.history.Commit(e.shapes)
}

// DeleteShape removes the shape with the given id and commits. Deleting the
// selected shape clears the selection. Unknown ids are silently ignored.
func (e *Engine) DeleteShape(id string) {
	idx := -1
	for i, s := range e.shapes {
		if s.base().ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	e.shapes = append(e.shapes[:idx], e.shapes[idx+1:]...)
	if e.selectedID == id {
		e.selectedID = ""
	}
	e.history.Commit(e.shapes)
}

// Clear empties the document and commits, so clear is itself undoable.
func (e *Engine) Clear() {
	e.shapes = nil
	e.selectedID = ""
	e.history.Commit(e.shapes)
}

// ── Non-historized operations ────────────────────────────────────────────────

// Select marks the shape with the given id as selected; "" clears the
// selection. Selection is UI state, not undoable document state.
func (e *Engine) Select(id string) {
	if id != "" && e.find(id) == nil {
		return
	}
	e.selectedID = id
}

// SetTool selects the active tool.
func (e *Engine) SetTool(t Tool) { e.tool.Tool = t }

// SetColor sets the stroke color for subsequently created shapes.
func (e *Engine) SetColor(hex string) { e.tool.StrokeColor = hex }

// SetStrokeWidth sets the stroke width for subsequently created shapes.
func (e *Engine) SetStrokeWidth(w float64) { e.tool.StrokeWidth = w }

// SetFontSize sets the font size for subsequently created text shapes.
func (e *Engine) SetFontSize(size float64) { e.tool.FontSize = size }

// SetFontFamily sets the font family for subsequently created text shapes.
func (e *Engine) SetFontFamily(f string) { e.tool.FontFamily = f }

// SetOpacity sets the opacity for subsequently created shapes.
func (e *Engine) SetOpacity(o float64) { e.tool.Opacity = o }

// ── History navigation ───────────────────────────────────────────────────────

// Undo steps the document back one snapshot and clears the selection. No-op
// at the oldest snapshot.
func (e *Engine) Undo() {
	shapes, ok := e.history.Undo()
	if !ok {
		return
	}
	e.shapes = shapes
	e.selectedID = ""
}

// Redo steps the document forward one snapshot and clears the selection.
// No-op at the newest snapshot.
func (e *Engine) Redo() {
	shapes, ok := e.history.Redo()
	if !ok {
		return
	}
	e.shapes = shapes
	e.selectedID = ""
}

// CanUndo reports whether Undo would change the document.
func (e *Engine) CanUndo() bool { return e.history.CanUndo() }

// CanRedo reports whether Redo would change the document.
func (e *Engine) CanRedo() bool { return e.history.CanRedo() }

// HitTest returns the id of the topmost shape containing p, or "" if the
// point is over empty canvas.
func (e *Engine) HitTest(p Point) string {
	for i := len(e.shapes) - 1; i >= 0; i-- {
		if e.shapes[i].hitTest(p) {
			return e.shapes[i].base().ID
		}
	}
	return ""
}

func (e *Engine) find(id string) Shape {
	for _, s := range e.shapes {
		if s.base().ID == id {
			return s
		}
	}
	return nil
}

func applyPatch(s Shape, p Patch) {
	b := s.base()
	if p.StrokeColor != nil {
		b.StrokeColor = *p.StrokeColor
	}
	if p.StrokeWidth != nil {
		b.StrokeWidth = *p.StrokeWidth
	}
	if p.Opacity != nil {
		b.Opacity = *p.Opacity
	}

	switch v := s.(type) {
	case *Pen:
		if p.Points != nil {
			v.Points = append([]Point(nil), p.Points...)
		}
	case *Rectangle:
		if p.Box != nil {
			v.Box = *p.Box
		}
	case *Ellipse:
		if p.Center != nil {
			v.Center = *p.Center
		}
		if p.RadiusX != nil {
			v.RadiusX = *p.RadiusX
		}
		if p.RadiusY != nil {
			v.RadiusY = *p.RadiusY
		}
	case *Arrow:
		if p.From != nil {
			v.From = *p.From
		}
		if p.To != nil {
			v.To = *p.To
		}
	case *Text:
		if p.Anchor != nil {
			v.Anchor = *p.Anchor
		}
		if p.Content != nil {
			v.Content = *p.Content
		}
		if p.FontSize != nil {
			v.FontSize = *p.FontSize
		}
		if p.FontFamily != nil {
			v.FontFamily = *p.FontFamily
		}
	}
}
