package annotate

import (
	"flag"
	"testing"

	"github.com/go-playground/assert/v2"
)

func init() {
	initGlog()
}

func initGlog() {
	flag.Set("logtostderr", "true")
	flag.Set("stderrthreshold", "INFO")
	flag.Set("v", "0")
}

func TestAnnotationIdUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 4096; i++ {
		annotationId := NewAnnotationId()
		assert.Equal(t, seen[annotationId], false)
		assert.Equal(t, IsTempId(annotationId), false)
		seen[annotationId] = true
	}
	assert.Equal(t, IsTempId(TempIdPrefix+NewAnnotationId()), true)
}

func TestEffectiveDuration(t *testing.T) {
	annotation := &Annotation{
		Id:       NewAnnotationId(),
		Frame:    10,
		Duration: 3,
		Shape:    ShapeFreehand,
	}

	// native duration wins over a shorter hold
	assert.Equal(t, annotation.EffectiveDuration(1), 3)
	assert.Equal(t, annotation.VisibleAt(9, 1), false)
	assert.Equal(t, annotation.VisibleAt(10, 1), true)
	assert.Equal(t, annotation.VisibleAt(11, 1), true)
	assert.Equal(t, annotation.VisibleAt(12, 1), true)
	assert.Equal(t, annotation.VisibleAt(13, 1), false)

	// a longer hold extends visibility
	assert.Equal(t, annotation.EffectiveDuration(5), 5)
	assert.Equal(t, annotation.VisibleAt(13, 5), true)
	assert.Equal(t, annotation.VisibleAt(14, 5), true)
	assert.Equal(t, annotation.VisibleAt(15, 5), false)

	// duration defaults to one frame
	annotation.Duration = 0
	assert.Equal(t, annotation.EffectiveDuration(1), 1)
	assert.Equal(t, annotation.VisibleAt(10, 1), true)
	assert.Equal(t, annotation.VisibleAt(11, 1), false)
}

func TestAnnotationEqual(t *testing.T) {
	a := &Annotation{
		Id:    "a",
		Frame: 5,
		Shape: ShapeArrow,
		Points: []Point{
			{X: 0.1, Y: 0.2},
			{X: 0.3, Y: 0.4, Pressure: 0.5},
		},
		Style: Style{Color: "#112233", StrokeWidth: 0.01},
	}
	b := a.Clone()
	assert.Equal(t, a.Equal(b), true)
	assert.Equal(t, b.Equal(a), true)

	b.Points[1].X = 0.35
	assert.Equal(t, a.Equal(b), false)

	b = a.Clone()
	transform := Transform{Scale: 2}
	b.Transform = &transform
	assert.Equal(t, a.Equal(b), false)
	a2 := b.Clone()
	assert.Equal(t, a2.Equal(b), true)
	// clone does not share the transform
	a2.Transform.Rotate = 45
	assert.Equal(t, b.Transform.Rotate, float64(0))
}

func TestAppStateClone(t *testing.T) {
	state := DefaultAppState()
	annotation := &Annotation{
		Id:    "a",
		Frame: 1,
		Shape: ShapeCircle,
		Points: []Point{
			{X: 0.2, Y: 0.2},
			{X: 0.8, Y: 0.8},
		},
	}
	state.Annotations[annotation.Id] = annotation
	state.SelectedAnnotationIds.Add(annotation.Id)

	clone := state.Clone()
	clone.Annotations["a"].Frame = 99
	clone.SelectedAnnotationIds.Add("b")

	assert.Equal(t, state.Annotations["a"].Frame, 1)
	assert.Equal(t, state.SelectedAnnotationIds.Contains("b"), false)
}

func TestVisibleAnnotations(t *testing.T) {
	state := DefaultAppState()
	state.HoldDuration = 2
	state.Annotations = map[string]*Annotation{
		"a": {Id: "a", Frame: 1, Duration: 1},
		"b": {Id: "b", Frame: 2, Duration: 5},
		"c": {Id: "c", Frame: 10, Duration: 1},
	}

	visible := state.VisibleAnnotations(2)
	assert.Equal(t, len(visible), 2)
	assert.Equal(t, visible[0].Id, "a")
	assert.Equal(t, visible[1].Id, "b")

	visible = state.VisibleAnnotations(6)
	assert.Equal(t, len(visible), 1)
	assert.Equal(t, visible[0].Id, "b")
}
