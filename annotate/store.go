package annotate

import (
	"sync"

	"github.com/golang/glog"

	"github.com/framepad/framepad/event"
)

// Event is the tagged union of store notifications.
// Subscribers switch on the concrete variant.
type Event interface {
	EventOrigin() event.Origin
}

type AnnotationAdded struct {
	Annotation *Annotation
	Origin     event.Origin
}

func (self AnnotationAdded) EventOrigin() event.Origin {
	return self.Origin
}

type AnnotationUpdated struct {
	Annotation *Annotation
	Origin     event.Origin
}

func (self AnnotationUpdated) EventOrigin() event.Origin {
	return self.Origin
}

type AnnotationDeleted struct {
	AnnotationId string
	Origin       event.Origin
}

func (self AnnotationDeleted) EventOrigin() event.Origin {
	return self.Origin
}

type StateChanged struct {
	State    AppState
	Previous AppState
	Origin   event.Origin
}

func (self StateChanged) EventOrigin() event.Origin {
	return self.Origin
}

type EventFunction func(ev Event)

type StoreSettings struct {
	// maximum history snapshots kept. Oldest are discarded first.
	HistoryLimit int
}

func DefaultStoreSettings() *StoreSettings {
	return &StoreSettings{
		HistoryLimit: 50,
	}
}

// Store owns the canonical application state plus the undo/redo history.
// It is constructed explicitly and passed to consumers. One live AppState
// per client.
//
// All mutations are synchronous. The only re-entrancy protection is the
// restoring guard, which suppresses snapshot capture while an undo/redo
// is replaying mutations.
type Store struct {
	settings *StoreSettings

	stateLock sync.Mutex
	state     AppState
	history   []AppState
	redo      []AppState
	restoring bool

	eventCallbacks event.CallbackList[EventFunction]
}

func NewStoreWithDefaults() *Store {
	return NewStore(DefaultAppState(), DefaultStoreSettings())
}

func NewStore(initialState AppState, settings *StoreSettings) *Store {
	store := &Store{
		settings: settings,
		state:    initialState.Clone(),
	}
	// the history stack always holds at least the initial state
	store.history = []AppState{store.state.Clone()}
	return store
}

// Subscribe registers an event callback and returns a function to remove it.
func (self *Store) Subscribe(callback EventFunction) func() {
	return self.eventCallbacks.Add(callback)
}

func (self *Store) dispatch(ev Event) {
	for _, callback := range self.eventCallbacks.Get() {
		func() {
			defer func() {
				if r := recover(); r != nil {
					glog.Errorf("[store]event callback panic = %v\n", r)
				}
			}()
			callback(ev)
		}()
	}
}

// State returns a deep copy of the live state.
func (self *Store) State() AppState {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	return self.state.Clone()
}

// Annotation returns a copy of one annotation, or nil if absent.
func (self *Store) Annotation(annotationId string) *Annotation {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	return self.state.Annotations[annotationId].Clone()
}

// SetState shallow-merges the patch into the live state and emits
// StateChanged. History is not touched.
func (self *Store) SetState(patch StatePatch) {
	self.setState(patch, event.OriginLocal)
}

func (self *Store) SetStateWithOrigin(patch StatePatch, origin event.Origin) {
	self.setState(patch, origin)
}

func (self *Store) setState(patch StatePatch, origin event.Origin) {
	self.stateLock.Lock()
	previous := self.state.Clone()
	patch.apply(&self.state)
	state := self.state.Clone()
	self.stateLock.Unlock()

	self.dispatch(StateChanged{
		State:    state,
		Previous: previous,
		Origin:   origin,
	})
}

// AddAnnotation inserts a copy of the annotation. Adding an id that is
// already present replaces it wholesale, like an update.
func (self *Store) AddAnnotation(annotation *Annotation, origin event.Origin) {
	if annotation == nil || annotation.Id == "" {
		return
	}

	self.stateLock.Lock()
	if origin == event.OriginRemote {
		self.applyRemoteToHistory(annotation.Id, annotation)
	}
	annotations := cloneAnnotations(self.state.Annotations)
	annotations[annotation.Id] = annotation.Clone()
	self.state.Annotations = annotations
	added := annotation.Clone()
	self.stateLock.Unlock()

	glog.V(2).Infof("[store]add %s (%s)\n", annotation.Id, origin)
	self.dispatch(AnnotationAdded{
		Annotation: added,
		Origin:     origin,
	})
}

// UpdateAnnotation applies the patch to the annotation. Unknown ids are a
// no-op so stale remote references are tolerated.
func (self *Store) UpdateAnnotation(annotationId string, patch AnnotationPatch, origin event.Origin) {
	self.stateLock.Lock()
	annotation, ok := self.state.Annotations[annotationId]
	if !ok {
		self.stateLock.Unlock()
		glog.V(2).Infof("[store]update unknown %s (%s)\n", annotationId, origin)
		return
	}
	updated := annotation.Clone()
	patch.apply(updated)
	if origin == event.OriginRemote {
		self.applyRemoteToHistory(annotationId, updated)
	}
	annotations := cloneAnnotations(self.state.Annotations)
	annotations[annotationId] = updated
	self.state.Annotations = annotations
	dispatched := updated.Clone()
	self.stateLock.Unlock()

	glog.V(2).Infof("[store]update %s (%s)\n", annotationId, origin)
	self.dispatch(AnnotationUpdated{
		Annotation: dispatched,
		Origin:     origin,
	})
}

// DeleteAnnotation removes the annotation. Unknown ids are a no-op.
func (self *Store) DeleteAnnotation(annotationId string, origin event.Origin) {
	self.stateLock.Lock()
	if _, ok := self.state.Annotations[annotationId]; !ok {
		self.stateLock.Unlock()
		glog.V(2).Infof("[store]delete unknown %s (%s)\n", annotationId, origin)
		return
	}
	if origin == event.OriginRemote {
		self.applyRemoteToHistory(annotationId, nil)
	}
	annotations := cloneAnnotations(self.state.Annotations)
	delete(annotations, annotationId)
	self.state.Annotations = annotations
	if self.state.SelectedAnnotationIds != nil {
		selected := self.state.SelectedAnnotationIds.Clone()
		selected.Remove(annotationId)
		self.state.SelectedAnnotationIds = selected
	}
	self.stateLock.Unlock()

	glog.V(2).Infof("[store]delete %s (%s)\n", annotationId, origin)
	self.dispatch(AnnotationDeleted{
		AnnotationId: annotationId,
		Origin:       origin,
	})
}

func cloneAnnotations(annotations map[string]*Annotation) map[string]*Annotation {
	next := make(map[string]*Annotation, len(annotations))
	for annotationId, annotation := range annotations {
		next[annotationId] = annotation
	}
	return next
}
