package annotate

import (
	"github.com/golang/glog"

	"github.com/framepad/framepad/event"
)

// CaptureSnapshot pushes a deep copy of the live state onto the history
// stack and clears the redo stack. The history is capped at
// StoreSettings.HistoryLimit entries, oldest discarded first.
//
// Capture is suppressed while an undo/redo restore is replaying mutations,
// since subscribers reacting to restore events must not fork history.
func (self *Store) CaptureSnapshot() {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	if self.restoring {
		return
	}

	self.history = append(self.history, self.state.Clone())
	if self.settings.HistoryLimit < len(self.history) {
		overflow := len(self.history) - self.settings.HistoryLimit
		self.history = self.history[overflow:]
	}
	self.redo = nil
}

// HistoryDepth is the number of snapshots on the history stack,
// the seeded initial state included.
func (self *Store) HistoryDepth() int {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	return len(self.history)
}

func (self *Store) RedoDepth() int {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	return len(self.redo)
}

func (self *Store) CanUndo() bool {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	// the bottom entry is the initial state and is never popped
	return 1 < len(self.history)
}

func (self *Store) CanRedo() bool {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	return 0 < len(self.redo)
}

// Undo moves the top history snapshot to the redo stack and restores the
// snapshot underneath it.
func (self *Store) Undo() bool {
	self.stateLock.Lock()
	if len(self.history) <= 1 {
		self.stateLock.Unlock()
		return false
	}
	top := self.history[len(self.history)-1]
	self.history = self.history[:len(self.history)-1]
	self.redo = append(self.redo, top)
	target := self.history[len(self.history)-1].Clone()
	self.stateLock.Unlock()

	glog.V(1).Infof("[store]undo depth=%d\n", len(self.history))
	self.restore(target)
	return true
}

// Redo restores the top redo snapshot and pushes it back onto history.
func (self *Store) Redo() bool {
	self.stateLock.Lock()
	if len(self.redo) == 0 {
		self.stateLock.Unlock()
		return false
	}
	top := self.redo[len(self.redo)-1]
	self.redo = self.redo[:len(self.redo)-1]
	self.history = append(self.history, top)
	target := top.Clone()
	self.stateLock.Unlock()

	glog.V(1).Infof("[store]redo depth=%d\n", len(self.redo))
	self.restore(target)
	return true
}

// restore reconciles the live state against the target snapshot with
// individual mutations instead of a wholesale swap. Every change goes
// through the normal event path so sync observers see it, and annotations
// that only exist in the live state because a peer created them after the
// snapshot was taken are deleted explicitly rather than silently dropped.
func (self *Store) restore(target AppState) {
	self.stateLock.Lock()
	self.restoring = true
	current := self.state
	deleted := []string{}
	for annotationId := range current.Annotations {
		if _, ok := target.Annotations[annotationId]; !ok {
			deleted = append(deleted, annotationId)
		}
	}
	added := []*Annotation{}
	updated := []*Annotation{}
	for annotationId, annotation := range target.Annotations {
		if existing, ok := current.Annotations[annotationId]; !ok {
			added = append(added, annotation)
		} else if !existing.Equal(annotation) {
			updated = append(updated, annotation)
		}
	}
	self.stateLock.Unlock()

	defer func() {
		self.stateLock.Lock()
		self.restoring = false
		self.stateLock.Unlock()
	}()

	for _, annotationId := range deleted {
		self.DeleteAnnotation(annotationId, event.OriginHistory)
	}
	for _, annotation := range added {
		self.AddAnnotation(annotation, event.OriginHistory)
	}
	for _, annotation := range updated {
		self.UpdateAnnotation(annotation.Id, PatchFromAnnotation(annotation), event.OriginHistory)
	}
	self.setState(settingsPatch(&target), event.OriginHistory)
}

// applyRemoteToHistory applies a remote add/update (annotation != nil) or
// delete (annotation == nil) to every snapshot on both stacks, before the
// live state changes. A remote edit must look like it always existed, or a
// later undo would revert it just because an older local snapshot predates
// it. Called with stateLock held.
func (self *Store) applyRemoteToHistory(annotationId string, annotation *Annotation) {
	apply := func(snapshot *AppState) {
		if annotation != nil {
			snapshot.Annotations[annotationId] = annotation.Clone()
		} else {
			delete(snapshot.Annotations, annotationId)
		}
	}
	for i := range self.history {
		apply(&self.history[i])
	}
	for i := range self.redo {
		apply(&self.redo[i])
	}
}
