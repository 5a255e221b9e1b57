package export

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-playground/assert/v2"

	"github.com/framepad/framepad/annotate"
)

func testAnnotations() map[string]*annotate.Annotation {
	return map[string]*annotate.Annotation{
		"b": {
			Id:       "b",
			Frame:    2,
			Duration: 1,
			Shape:    annotate.ShapeCircle,
			Points: []annotate.Point{
				{X: 0.2, Y: 0.2},
				{X: 0.6, Y: 0.6},
			},
			Style: annotate.Style{Color: "#ff3b30", StrokeWidth: 0.004},
		},
		"a": {
			Id:       "a",
			Frame:    2,
			Duration: 3,
			Shape:    annotate.ShapeFreehand,
			Points: []annotate.Point{
				{X: 0.1, Y: 0.1},
				{X: 0.5, Y: 0.5},
				{X: 0.9, Y: 0.1},
			},
			Style: annotate.Style{Color: "#34c759", StrokeWidth: 0.002},
		},
		"c": {
			Id:    "c",
			Frame: 10,
			Shape: annotate.ShapeText,
			Text:  "check the parallax here",
			Points: []annotate.Point{
				{X: 0.3, Y: 0.8},
			},
			Style: annotate.Style{Color: "#0a84ff"},
		},
	}
}

func TestJsonRoundTrip(t *testing.T) {
	annotations := testAnnotations()

	data, err := MarshalAnnotations(annotations)
	assert.Equal(t, err, nil)

	decoded, err := UnmarshalAnnotations(data)
	assert.Equal(t, err, nil)
	assert.Equal(t, len(decoded), len(annotations))
	for annotationId, annotation := range annotations {
		assert.Equal(t, decoded[annotationId].Equal(annotation), true)
	}
}

func TestMarshalDeterministic(t *testing.T) {
	annotations := testAnnotations()

	first, err := MarshalAnnotations(annotations)
	assert.Equal(t, err, nil)
	for i := 0; i < 8; i += 1 {
		again, err := MarshalAnnotations(annotations)
		assert.Equal(t, err, nil)
		assert.Equal(t, string(again), string(first))
	}
}

func TestFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "annotations.json")
	annotations := testAnnotations()

	assert.Equal(t, WriteFile(path, annotations), nil)
	decoded, err := ReadFile(path)
	assert.Equal(t, err, nil)
	assert.Equal(t, len(decoded), 3)
	assert.Equal(t, decoded["c"].Text, "check the parallax here")
}

func TestUnmarshalSkipsEntriesWithoutId(t *testing.T) {
	decoded, err := UnmarshalAnnotations([]byte(`[{"frame":1},{"id":"a","frame":2}]`))
	assert.Equal(t, err, nil)
	assert.Equal(t, len(decoded), 1)
	assert.Equal(t, decoded["a"].Frame, 2)

	_, err = UnmarshalAnnotations([]byte("not json"))
	assert.NotEqual(t, err, nil)
}

func TestAnnotatedFrames(t *testing.T) {
	annotations := testAnnotations()

	// a covers 2..4, b covers 2, c covers 10
	assert.Equal(t, annotatedFrames(annotations, 1), []int{2, 3, 4, 10})

	// a longer hold stretches the short annotations
	assert.Equal(t, annotatedFrames(annotations, 3), []int{2, 3, 4, 10, 11, 12})

	visible := visibleOnFrame(annotations, 2, 1)
	assert.Equal(t, len(visible), 2)
	assert.Equal(t, visible[0].Id, "a")
	assert.Equal(t, visible[1].Id, "b")
}

func TestParseHexColor(t *testing.T) {
	r, g, b := parseHexColor("#ff3b30")
	assert.Equal(t, r, 255)
	assert.Equal(t, g, 59)
	assert.Equal(t, b, 48)

	r, g, b = parseHexColor("red")
	assert.Equal(t, r, 0)
	assert.Equal(t, g, 0)
	assert.Equal(t, b, 0)
}

func TestWritePdf(t *testing.T) {
	path := filepath.Join(t.TempDir(), "review.pdf")

	assert.Equal(t, WritePDF(path, testAnnotations(), 1), nil)

	data, err := os.ReadFile(path)
	assert.Equal(t, err, nil)
	assert.Equal(t, 4 < len(data), true)
	assert.Equal(t, string(data[:4]), "%PDF")
}
