package annotation

// Tool identifies the active drawing tool.
type Tool string

const (
	ToolSelect      Tool = "select"
	ToolPen         Tool = "pen"
	ToolHighlighter Tool = "highlighter"
	ToolRect        Tool = "rect"
	ToolEllipse     Tool = "ellipse"
	ToolArrow       Tool = "arrow"
	ToolText        Tool = "text"
	ToolEraser      Tool = "eraser"
)

// Highlighter styling relative to the base pen style.
const (
	highlighterOpacity    = 0.4
	highlighterWidthScale = 3.0
)

// Commit thresholds for drag-built shapes, in pixels.
const (
	minRectDelta    = 5.0
	minEllipseRad   = 5.0
	minArrowLength  = 10.0
	minRectResize   = 5.0
	arrowHeadLenMul = 4.0 // head length = mul × stroke width
	arrowHeadWidMul = 3.0
)

// ToolContext is the current tool selection and the default style applied to
// newly created shapes. Changing it never affects existing shapes.
type ToolContext struct {
	Tool        Tool
	StrokeColor string
	StrokeWidth float64
	Opacity     float64
	FontSize    float64
	FontFamily  string
}

// DefaultToolContext returns the style a fresh annotation surface starts with.
func DefaultToolContext() ToolContext {
	return ToolContext{
		Tool:        ToolPen,
		StrokeColor: "#ff3b30",
		StrokeWidth: 3,
		Opacity:     1,
		FontSize:    18,
		FontFamily:  "sans-serif",
	}
}
