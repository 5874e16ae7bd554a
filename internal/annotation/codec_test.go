package annotation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDocument() []Shape {
	created := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	base := func(id string) Base {
		return Base{ID: id, StrokeColor: "#ff3b30", StrokeWidth: 3, Opacity: 1, CreatedAt: created}
	}
	hl := base("s2")
	hl.Opacity = 0.4
	hl.StrokeWidth = 9
	return []Shape{
		&Pen{Base: base("s1"), Points: []Point{Pt(1, 2), Pt(3, 4)}, Blend: BlendNormal},
		&Pen{Base: hl, Points: []Point{Pt(5, 5), Pt(9, 5)}, Blend: BlendMultiply},
		&Rectangle{Base: base("s3"), Box: Rect{X: 10, Y: 20, W: 30, H: 40}},
		&Ellipse{Base: base("s4"), Center: Pt(50, 50), RadiusX: 20, RadiusY: 10},
		&Arrow{Base: base("s5"), From: Pt(0, 0), To: Pt(40, 30), HeadLength: 12, HeadWidth: 9},
		&Text{Base: base("s6"), Anchor: Pt(5, 5), Content: "note", FontSize: 18, FontFamily: "sans-serif"},
	}
}

func TestDocumentRoundTrip(t *testing.T) {
	want := sampleDocument()
	data, err := MarshalDocument(want)
	require.NoError(t, err)

	got, err := UnmarshalDocument(data)
	require.NoError(t, err)
	require.Len(t, got, len(want))

	for i := range want {
		assert.Equal(t, want[i], got[i], "shape %d", i)
	}
}

func TestUnmarshalPreservesPaintOrder(t *testing.T) {
	data, err := MarshalDocument(sampleDocument())
	require.NoError(t, err)
	got, err := UnmarshalDocument(data)
	require.NoError(t, err)

	ids := make([]string, len(got))
	for i, s := range got {
		ids[i] = s.base().ID
	}
	assert.Equal(t, []string{"s1", "s2", "s3", "s4", "s5", "s6"}, ids)
}

func TestUnmarshalRejectsUnknownKind(t *testing.T) {
	_, err := UnmarshalDocument([]byte(`{"shapes":[{"kind":"sticker","id":"x"}]}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown shape kind")
}

func TestUnmarshalRejectsMissingGeometry(t *testing.T) {
	cases := map[string]string{
		"rect":    `{"shapes":[{"kind":"rect","id":"x"}]}`,
		"ellipse": `{"shapes":[{"kind":"ellipse","id":"x"}]}`,
		"arrow":   `{"shapes":[{"kind":"arrow","id":"x","from":{"x":0,"y":0}}]}`,
		"text":    `{"shapes":[{"kind":"text","id":"x","content":"hi"}]}`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := UnmarshalDocument([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestUnmarshalDefaultsPenBlend(t *testing.T) {
	doc := `{"shapes":[{"kind":"pen","id":"x","points":[{"x":0,"y":0},{"x":1,"y":1}]}]}`
	got, err := UnmarshalDocument([]byte(doc))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, BlendNormal, got[0].(*Pen).Blend)
}

func TestEmptyDocumentRoundTrip(t *testing.T) {
	data, err := MarshalDocument(nil)
	require.NoError(t, err)
	got, err := UnmarshalDocument(data)
	require.NoError(t, err)
	assert.Empty(t, got)
}
