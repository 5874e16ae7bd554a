package annotation

import (
	"encoding/json"
	"fmt"
	"time"
)

// shapeEnvelope is the on-disk form of one shape: the kind tag plus the
// union of every variant's fields. Unused fields stay empty.
type shapeEnvelope struct {
	Kind        Kind      `json:"kind"`
	ID          string    `json:"id"`
	StrokeColor string    `json:"stroke_color"`
	StrokeWidth float64   `json:"stroke_width"`
	Opacity     float64   `json:"opacity"`
	CreatedAt   time.Time `json:"created_at"`

	Points []Point   `json:"points,omitempty"`
	Blend  BlendMode `json:"blend,omitempty"`

	Box *Rect `json:"box,omitempty"`

	Center  *Point  `json:"center,omitempty"`
	RadiusX float64 `json:"radius_x,omitempty"`
	RadiusY float64 `json:"radius_y,omitempty"`

	From       *Point  `json:"from,omitempty"`
	To         *Point  `json:"to,omitempty"`
	HeadLength float64 `json:"head_length,omitempty"`
	HeadWidth  float64 `json:"head_width,omitempty"`

	Anchor     *Point  `json:"anchor,omitempty"`
	Content    string  `json:"content,omitempty"`
	FontSize   float64 `json:"font_size,omitempty"`
	FontFamily string  `json:"font_family,omitempty"`
}

type documentFile struct {
	Shapes []shapeEnvelope `json:"shapes"`
}

// MarshalDocument serialises shapes to indented JSON in paint order.
func MarshalDocument(shapes []Shape) ([]byte, error) {
	doc := documentFile{Shapes: make([]shapeEnvelope, 0, len(shapes))}
	for _, s := range shapes {
		doc.Shapes = append(doc.Shapes, toEnvelope(s))
	}
	return json.MarshalIndent(doc, "", "  ")
}

// UnmarshalDocument parses a shape document, rejecting unknown kinds.
func UnmarshalDocument(data []byte) ([]Shape, error) {
	var doc documentFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse shape document: %w", err)
	}
	shapes := make([]Shape, 0, len(doc.Shapes))
	for i, env := range doc.Shapes {
		s, err := fromEnvelope(env)
		if err != nil {
			return nil, fmt.Errorf("shape %d: %w", i, err)
		}
		shapes = append(shapes, s)
	}
	return shapes, nil
}

func toEnvelope(s Shape) shapeEnvelope {
	b := s.base()
	env := shapeEnvelope{
		Kind:        s.Kind(),
		ID:          b.ID,
		StrokeColor: b.StrokeColor,
		StrokeWidth: b.StrokeWidth,
		Opacity:     b.Opacity,
		CreatedAt:   b.CreatedAt,
	}
	switch v := s.(type) {
	case *Pen:
		env.Points = v.Points
		env.Blend = v.Blend
	case *Rectangle:
		box := v.Box
		env.Box = &box
	case *Ellipse:
		c := v.Center
		env.Center = &c
		env.RadiusX = v.RadiusX
		env.RadiusY = v.RadiusY
	case *Arrow:
		from, to := v.From, v.To
		env.From = &from
		env.To = &to
		env.HeadLength = v.HeadLength
		env.HeadWidth = v.HeadWidth
	case *Text:
		a := v.Anchor
		env.Anchor = &a
		env.Content = v.Content
		env.FontSize = v.FontSize
		env.FontFamily = v.FontFamily
	}
	return env
}

func fromEnvelope(env shapeEnvelope) (Shape, error) {
	b := Base{
		ID:          env.ID,
		StrokeColor: env.StrokeColor,
		StrokeWidth: env.StrokeWidth,
		Opacity:     env.Opacity,
		CreatedAt:   env.CreatedAt,
	}
	switch env.Kind {
	case KindPen:
		blend := env.Blend
		if blend == "" {
			blend = BlendNormal
		}
		return &Pen{Base: b, Points: env.Points, Blend: blend}, nil
	case KindRect:
		if env.Box == nil {
			return nil, fmt.Errorf("rect shape missing box")
		}
		return &Rectangle{Base: b, Box: *env.Box}, nil
	case KindEllipse:
		if env.Center == nil {
			return nil, fmt.Errorf("ellipse shape missing center")
		}
		return &Ellipse{Base: b, Center: *env.Center, RadiusX: env.RadiusX, RadiusY: env.RadiusY}, nil
	case KindArrow:
		if env.From == nil || env.To == nil {
			return nil, fmt.Errorf("arrow shape missing endpoints")
		}
		return &Arrow{Base: b, From: *env.From, To: *env.To, HeadLength: env.HeadLength, HeadWidth: env.HeadWidth}, nil
	case KindText:
		if env.Anchor == nil {
			return nil, fmt.Errorf("text shape missing anchor")
		}
		return &Text{Base: b, Anchor: *env.Anchor, Content: env.Content, FontSize: env.FontSize, FontFamily: env.FontFamily}, nil
	default:
		return nil, fmt.Errorf("unknown shape kind %q", env.Kind)
	}
}
