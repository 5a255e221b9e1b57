package annotate

import (
	"strings"

	"github.com/oklog/ulid/v2"
	"golang.org/x/exp/slices"
)

// TempIdPrefix marks an in-progress annotation that has not been committed
// by its drawing tool yet. Temporary annotations are never synchronized.
const TempIdPrefix = "tmp-"

// NewAnnotationId returns a globally unique annotation id.
// Ulids from the same client are ordered by create time.
func NewAnnotationId() string {
	return strings.ToLower(ulid.Make().String())
}

func IsTempId(annotationId string) bool {
	return strings.HasPrefix(annotationId, TempIdPrefix)
}

type Shape string

const (
	ShapeFreehand Shape = "freehand"
	ShapeArrow    Shape = "arrow"
	ShapeLine     Shape = "line"
	ShapeCircle   Shape = "circle"
	ShapeSquare   Shape = "square"
	ShapePolyline Shape = "polyline"
	ShapeText     Shape = "text"
)

// Point is a position in unit-square media coordinates (0-1 on both axes),
// optionally carrying pen pressure.
type Point struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Pressure float64 `json:"pressure,omitempty"`
}

type Style struct {
	Color       string  `json:"color"`
	StrokeWidth float64 `json:"strokeWidth"`
	Fill        string  `json:"fill,omitempty"`
	FontSize    float64 `json:"fontSize,omitempty"`
}

type Transform struct {
	TranslateX float64 `json:"translateX"`
	TranslateY float64 `json:"translateY"`
	Scale      float64 `json:"scale"`
	Rotate     float64 `json:"rotate"`
}

// Annotation is one drawn object anchored to a start frame.
// The id is immutable after creation. All other fields may be replaced
// wholesale by an update.
type Annotation struct {
	Id        string     `json:"id"`
	Frame     int        `json:"frame"`
	Duration  int        `json:"duration,omitempty"`
	Shape     Shape      `json:"shape"`
	Points    []Point    `json:"points,omitempty"`
	Text      string     `json:"text,omitempty"`
	Style     Style      `json:"style"`
	Transform *Transform `json:"transform,omitempty"`
}

func (self *Annotation) Clone() *Annotation {
	if self == nil {
		return nil
	}
	annotation := *self
	annotation.Points = slices.Clone(self.Points)
	if self.Transform != nil {
		transform := *self.Transform
		annotation.Transform = &transform
	}
	return &annotation
}

// Equal is structural equality over all fields.
// Used for dirty detection instead of serialized comparison,
// which is sensitive to field order.
func (self *Annotation) Equal(annotation *Annotation) bool {
	if self == nil || annotation == nil {
		return self == annotation
	}
	if self.Id != annotation.Id {
		return false
	}
	if self.Frame != annotation.Frame {
		return false
	}
	if self.Duration != annotation.Duration {
		return false
	}
	if self.Shape != annotation.Shape {
		return false
	}
	if !slices.Equal(self.Points, annotation.Points) {
		return false
	}
	if self.Text != annotation.Text {
		return false
	}
	if self.Style != annotation.Style {
		return false
	}
	if self.Transform == nil || annotation.Transform == nil {
		return self.Transform == annotation.Transform
	}
	return *self.Transform == *annotation.Transform
}

// NativeDuration is the number of frames the annotation persists for
// on its own, at least one.
func (self *Annotation) NativeDuration() int {
	if self.Duration < 1 {
		return 1
	}
	return self.Duration
}

// EffectiveDuration is max(native duration, session-wide hold duration).
func (self *Annotation) EffectiveDuration(holdDuration int) int {
	return max(self.NativeDuration(), holdDuration)
}

// VisibleAt returns whether the annotation is visible on `frame`
// given the session-wide hold duration.
func (self *Annotation) VisibleAt(frame int, holdDuration int) bool {
	if frame < self.Frame {
		return false
	}
	return frame < self.Frame+self.EffectiveDuration(holdDuration)
}

func sortAnnotations(annotations []*Annotation) {
	slices.SortFunc(annotations, func(a *Annotation, b *Annotation) int {
		if a.Frame != b.Frame {
			return a.Frame - b.Frame
		}
		return strings.Compare(a.Id, b.Id)
	})
}

// AnnotationPatch replaces the set fields of an annotation.
// A nil field is left unchanged.
type AnnotationPatch struct {
	Frame          *int
	Duration       *int
	Shape          *Shape
	Points         *[]Point
	Text           *string
	Style          *Style
	Transform      *Transform
	ClearTransform bool
}

// PatchFromAnnotation is a full-replacement patch, used when a remote
// payload or a history snapshot carries the whole annotation.
func PatchFromAnnotation(annotation *Annotation) AnnotationPatch {
	patch := AnnotationPatch{
		Frame:    &annotation.Frame,
		Duration: &annotation.Duration,
		Shape:    &annotation.Shape,
		Points:   &annotation.Points,
		Text:     &annotation.Text,
		Style:    &annotation.Style,
	}
	if annotation.Transform != nil {
		patch.Transform = annotation.Transform
	} else {
		patch.ClearTransform = true
	}
	return patch
}

func (self AnnotationPatch) apply(annotation *Annotation) {
	if self.Frame != nil {
		annotation.Frame = *self.Frame
	}
	if self.Duration != nil {
		annotation.Duration = *self.Duration
	}
	if self.Shape != nil {
		annotation.Shape = *self.Shape
	}
	if self.Points != nil {
		annotation.Points = slices.Clone(*self.Points)
	}
	if self.Text != nil {
		annotation.Text = *self.Text
	}
	if self.Style != nil {
		annotation.Style = *self.Style
	}
	if self.Transform != nil {
		transform := *self.Transform
		annotation.Transform = &transform
	} else if self.ClearTransform {
		annotation.Transform = nil
	}
}
