package event

import (
	"sync"

	"golang.org/x/exp/slices"
)

// Origin marks where a mutation was authored.
// It is checked once at the sync boundary to prevent echo loops.
type Origin int

const (
	// OriginLocal is a mutation authored by this client.
	OriginLocal Origin = iota
	// OriginRemote is a mutation applied from a merged peer delta.
	OriginRemote
	// OriginHistory is a mutation emitted while restoring an undo/redo
	// snapshot. It is broadcast like a local mutation.
	OriginHistory
)

func (self Origin) String() string {
	switch self {
	case OriginLocal:
		return "local"
	case OriginRemote:
		return "remote"
	case OriginHistory:
		return "history"
	default:
		return "unknown"
	}
}

// IsLocal returns whether the mutation should be forwarded to peers.
func (self Origin) IsLocal() bool {
	return self != OriginRemote
}

// makes a copy of the list on update
type CallbackList[T any] struct {
	mutex       sync.Mutex
	nextHandle  int
	callbackIds []int
	callbacks   map[int]T
}

func (self *CallbackList[T]) Get() []T {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	callbacks := make([]T, 0, len(self.callbackIds))
	for _, handle := range self.callbackIds {
		callbacks = append(callbacks, self.callbacks[handle])
	}
	return callbacks
}

// Add registers a callback and returns a function to remove it.
func (self *CallbackList[T]) Add(callback T) func() {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	if self.callbacks == nil {
		self.callbacks = map[int]T{}
	}
	handle := self.nextHandle
	self.nextHandle += 1
	self.callbacks[handle] = callback
	self.callbackIds = append(slices.Clone(self.callbackIds), handle)

	return func() {
		self.remove(handle)
	}
}

func (self *CallbackList[T]) remove(handle int) {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	if _, ok := self.callbacks[handle]; !ok {
		// not present
		return
	}
	delete(self.callbacks, handle)
	i := slices.Index(self.callbackIds, handle)
	nextCallbackIds := slices.Clone(self.callbackIds)
	self.callbackIds = slices.Delete(nextCallbackIds, i, i+1)
}

func (self *CallbackList[T]) Len() int {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	return len(self.callbacks)
}
