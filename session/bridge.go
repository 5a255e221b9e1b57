package session

import (
	"encoding/json"

	"github.com/golang/glog"

	"github.com/framepad/framepad/annotate"
	"github.com/framepad/framepad/event"
	"github.com/framepad/framepad/replica"
)

// session map keys
const (
	sessionKeyHoldDuration = "holdDuration"
	sessionKeyOnionSkin    = "onionSkin"
)

// Bridge is the one place where the local->network and network->local
// directions are told apart.
//
// Store events that were not caused by a remote merge are mirrored into
// the replicated document; document changes that originate from a remote
// merge are applied back to the store tagged OriginRemote. Everything else
// is dropped, which is what prevents echo loops.
type Bridge struct {
	store *annotate.Store
	doc   *replica.Doc

	unsubs []func()
}

func NewBridge(store *annotate.Store, doc *replica.Doc) *Bridge {
	bridge := &Bridge{
		store: store,
		doc:   doc,
	}
	bridge.unsubs = []func(){
		store.Subscribe(bridge.storeEvent),
		doc.Observe(replica.MapAnnotations, bridge.annotationsChanged),
		doc.Observe(replica.MapSession, bridge.sessionChanged),
	}
	return bridge
}

func (self *Bridge) Close() {
	for _, unsub := range self.unsubs {
		unsub()
	}
	self.unsubs = nil
}

// PublishAll mirrors the complete current store state into the document.
// Called once when a session starts so peers can sync pre-session work.
func (self *Bridge) PublishAll() {
	state := self.store.State()
	for _, annotation := range state.Annotations {
		self.publishAnnotation(annotation)
	}
	self.publishSettings(&state)
}

func (self *Bridge) storeEvent(ev annotate.Event) {
	// remote-origin events are already in the document
	if !ev.EventOrigin().IsLocal() {
		return
	}

	switch v := ev.(type) {
	case annotate.AnnotationAdded:
		self.publishAnnotation(v.Annotation)
	case annotate.AnnotationUpdated:
		self.publishAnnotation(v.Annotation)
	case annotate.AnnotationDeleted:
		if annotate.IsTempId(v.AnnotationId) {
			return
		}
		self.doc.Delete(replica.MapAnnotations, v.AnnotationId)
	case annotate.StateChanged:
		if v.Previous.HoldDuration != v.State.HoldDuration || v.Previous.OnionSkin != v.State.OnionSkin {
			self.publishSettings(&v.State)
		}
	}
}

func (self *Bridge) publishAnnotation(annotation *annotate.Annotation) {
	// in-progress annotations are local-only until their tool commits them
	if annotate.IsTempId(annotation.Id) {
		return
	}
	annotationJson, err := json.Marshal(annotation)
	if err != nil {
		glog.Errorf("[b]annotation %s encode error = %s\n", annotation.Id, err)
		return
	}
	self.doc.Set(replica.MapAnnotations, annotation.Id, annotationJson)
}

func (self *Bridge) publishSettings(state *annotate.AppState) {
	holdJson, err := json.Marshal(state.HoldDuration)
	if err == nil {
		self.doc.Set(replica.MapSession, sessionKeyHoldDuration, holdJson)
	}
	onionJson, err := json.Marshal(state.OnionSkin)
	if err == nil {
		self.doc.Set(replica.MapSession, sessionKeyOnionSkin, onionJson)
	}
}

func (self *Bridge) annotationsChanged(keys []string, origin event.Origin) {
	// local-origin observations are the store's own writes round-tripping
	if origin != event.OriginRemote {
		return
	}

	for _, annotationId := range keys {
		annotationJson, ok := self.doc.Get(replica.MapAnnotations, annotationId)
		if !ok {
			self.store.DeleteAnnotation(annotationId, event.OriginRemote)
			continue
		}
		annotation := &annotate.Annotation{}
		if err := json.Unmarshal(annotationJson, annotation); err != nil {
			glog.V(1).Infof("[b]annotation %s decode error = %s\n", annotationId, err)
			continue
		}
		annotation.Id = annotationId
		if self.store.Annotation(annotationId) != nil {
			self.store.UpdateAnnotation(annotationId, annotate.PatchFromAnnotation(annotation), event.OriginRemote)
		} else {
			self.store.AddAnnotation(annotation, event.OriginRemote)
		}
	}
}

func (self *Bridge) sessionChanged(keys []string, origin event.Origin) {
	if origin != event.OriginRemote {
		return
	}

	patch := annotate.StatePatch{}
	for _, key := range keys {
		valueJson, ok := self.doc.Get(replica.MapSession, key)
		if !ok {
			continue
		}
		switch key {
		case sessionKeyHoldDuration:
			holdDuration := 0
			if err := json.Unmarshal(valueJson, &holdDuration); err == nil {
				patch.HoldDuration = &holdDuration
			}
		case sessionKeyOnionSkin:
			onionSkin := annotate.OnionSkin{}
			if err := json.Unmarshal(valueJson, &onionSkin); err == nil {
				patch.OnionSkin = &onionSkin
			}
		}
	}
	if patch.HoldDuration != nil || patch.OnionSkin != nil {
		self.store.SetStateWithOrigin(patch, event.OriginRemote)
	}
}
