package annotate

import (
	mapset "github.com/deckarep/golang-set/v2"
)

type Tool string

const (
	ToolSelect   Tool = "select"
	ToolPan      Tool = "pan"
	ToolFreehand Tool = "freehand"
	ToolArrow    Tool = "arrow"
	ToolLine     Tool = "line"
	ToolCircle   Tool = "circle"
	ToolSquare   Tool = "square"
	ToolPolyline Tool = "polyline"
	ToolText     Tool = "text"
)

type MediaType string

const (
	MediaVideo MediaType = "video"
	MediaImage MediaType = "image"
	MediaGif   MediaType = "gif"
)

type Viewport struct {
	PanX float64 `json:"panX"`
	PanY float64 `json:"panY"`
	Zoom float64 `json:"zoom"`
}

// OnionSkin configures translucent ghosting of nearby frames' annotations.
type OnionSkin struct {
	Enabled      bool    `json:"enabled"`
	FramesBefore int     `json:"framesBefore"`
	FramesAfter  int     `json:"framesAfter"`
	Opacity      float64 `json:"opacity"`
}

// AppState is the single live snapshot of the client.
// The annotation map is replaced wholesale on mutation (copy-on-write),
// so a previously returned state never changes under the caller.
type AppState struct {
	IsPlaying     bool
	CurrentFrame  int
	Fps           float64
	Duration      int
	Volume        float64
	Muted         bool
	PlaybackSpeed float64

	Annotations           map[string]*Annotation
	SelectedAnnotationIds mapset.Set[string]

	ActiveTool        Tool
	ActiveColor       string
	ActiveStrokeWidth float64
	DefaultDuration   int
	HoldDuration      int
	OnionSkin         OnionSkin

	Viewport  Viewport
	MediaType MediaType
}

func DefaultAppState() AppState {
	return AppState{
		Fps:                   24,
		Volume:                1,
		PlaybackSpeed:         1,
		Annotations:           map[string]*Annotation{},
		SelectedAnnotationIds: mapset.NewSet[string](),
		ActiveTool:            ToolFreehand,
		ActiveColor:           "#ff3b30",
		ActiveStrokeWidth:     0.004,
		DefaultDuration:       1,
		HoldDuration:          1,
		OnionSkin: OnionSkin{
			FramesBefore: 1,
			FramesAfter:  1,
			Opacity:      0.35,
		},
		Viewport: Viewport{
			Zoom: 1,
		},
		MediaType: MediaVideo,
	}
}

func (self *AppState) Clone() AppState {
	state := *self
	annotations := make(map[string]*Annotation, len(self.Annotations))
	for annotationId, annotation := range self.Annotations {
		annotations[annotationId] = annotation.Clone()
	}
	state.Annotations = annotations
	if self.SelectedAnnotationIds != nil {
		state.SelectedAnnotationIds = self.SelectedAnnotationIds.Clone()
	} else {
		state.SelectedAnnotationIds = mapset.NewSet[string]()
	}
	return state
}

// VisibleAnnotations returns the annotations visible on `frame` under the
// state's hold duration, in stable id order.
func (self *AppState) VisibleAnnotations(frame int) []*Annotation {
	visible := []*Annotation{}
	for _, annotation := range self.Annotations {
		if annotation.VisibleAt(frame, self.HoldDuration) {
			visible = append(visible, annotation)
		}
	}
	sortAnnotations(visible)
	return visible
}

// StatePatch shallow-merges the set fields into AppState.
// A nil field is left unchanged.
type StatePatch struct {
	IsPlaying     *bool
	CurrentFrame  *int
	Fps           *float64
	Duration      *int
	Volume        *float64
	Muted         *bool
	PlaybackSpeed *float64

	// replaced wholesale when set
	Annotations           map[string]*Annotation
	SelectedAnnotationIds mapset.Set[string]

	ActiveTool        *Tool
	ActiveColor       *string
	ActiveStrokeWidth *float64
	DefaultDuration   *int
	HoldDuration      *int
	OnionSkin         *OnionSkin

	Viewport  *Viewport
	MediaType *MediaType
}

func (self StatePatch) apply(state *AppState) {
	if self.IsPlaying != nil {
		state.IsPlaying = *self.IsPlaying
	}
	if self.CurrentFrame != nil {
		state.CurrentFrame = *self.CurrentFrame
	}
	if self.Fps != nil {
		state.Fps = *self.Fps
	}
	if self.Duration != nil {
		state.Duration = *self.Duration
	}
	if self.Volume != nil {
		state.Volume = *self.Volume
	}
	if self.Muted != nil {
		state.Muted = *self.Muted
	}
	if self.PlaybackSpeed != nil {
		state.PlaybackSpeed = *self.PlaybackSpeed
	}
	if self.Annotations != nil {
		annotations := make(map[string]*Annotation, len(self.Annotations))
		for annotationId, annotation := range self.Annotations {
			annotations[annotationId] = annotation.Clone()
		}
		state.Annotations = annotations
	}
	if self.SelectedAnnotationIds != nil {
		state.SelectedAnnotationIds = self.SelectedAnnotationIds.Clone()
	}
	if self.ActiveTool != nil {
		state.ActiveTool = *self.ActiveTool
	}
	if self.ActiveColor != nil {
		state.ActiveColor = *self.ActiveColor
	}
	if self.ActiveStrokeWidth != nil {
		state.ActiveStrokeWidth = *self.ActiveStrokeWidth
	}
	if self.DefaultDuration != nil {
		state.DefaultDuration = *self.DefaultDuration
	}
	if self.HoldDuration != nil {
		state.HoldDuration = *self.HoldDuration
	}
	if self.OnionSkin != nil {
		state.OnionSkin = *self.OnionSkin
	}
	if self.Viewport != nil {
		state.Viewport = *self.Viewport
	}
	if self.MediaType != nil {
		state.MediaType = *self.MediaType
	}
}

// settingsPatch extracts the non-annotation, non-selection fields of a
// snapshot as a patch. Used when restoring history, where annotations are
// reconciled individually.
func settingsPatch(state *AppState) StatePatch {
	return StatePatch{
		IsPlaying:             &state.IsPlaying,
		CurrentFrame:          &state.CurrentFrame,
		Fps:                   &state.Fps,
		Duration:              &state.Duration,
		Volume:                &state.Volume,
		Muted:                 &state.Muted,
		PlaybackSpeed:         &state.PlaybackSpeed,
		SelectedAnnotationIds: state.SelectedAnnotationIds,
		ActiveTool:            &state.ActiveTool,
		ActiveColor:           &state.ActiveColor,
		ActiveStrokeWidth:     &state.ActiveStrokeWidth,
		DefaultDuration:       &state.DefaultDuration,
		HoldDuration:          &state.HoldDuration,
		OnionSkin:             &state.OnionSkin,
		Viewport:              &state.Viewport,
		MediaType:             &state.MediaType,
	}
}
