package replica

import (
	"encoding/json"
	"sync"

	"github.com/golang/glog"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/framepad/framepad/event"
)

// MapName selects one of the document's logical maps.
type MapName string

const (
	// annotation id -> annotation payload
	MapAnnotations MapName = "annotations"
	// session-wide editor settings that must match across peers
	MapSession MapName = "session"
	// peer id -> {name, color}
	MapPresence MapName = "presence"
)

var mapNames = []MapName{MapAnnotations, MapSession, MapPresence}

// entry is one replicated register. Writes are stamped with a lamport
// timestamp for last-write-wins ordering and a per-site sequence number for
// diff computation. Deletes keep a tombstone so they propagate.
type entry struct {
	Map     MapName         `json:"m"`
	Key     string          `json:"k"`
	Value   json.RawMessage `json:"v,omitempty"`
	Lamport int64           `json:"t"`
	Site    string          `json:"s"`
	Seq     int64           `json:"q"`
	Deleted bool            `json:"d,omitempty"`
}

// newerThan is the total LWW order: lamport timestamp, site id as the
// deterministic tie break.
func (self *entry) newerThan(other *entry) bool {
	if self.Lamport != other.Lamport {
		return other.Lamport < self.Lamport
	}
	return other.Site < self.Site
}

// Version is a version vector: the highest write sequence seen per site.
type Version map[string]int64

func (self Version) covers(e *entry) bool {
	return e.Seq <= self[e.Site]
}

type ObserveFunction func(keys []string, origin event.Origin)

type UpdateFunction func(diff []byte, origin event.Origin)

// Doc is a multi-writer replicated key-value document. Replicas that apply
// the same set of writes converge regardless of order, and applying the
// same diff twice is a no-op.
type Doc struct {
	site string

	stateLock sync.Mutex
	clock     int64
	seq       int64
	version   Version
	entries   map[MapName]map[string]*entry

	observers       map[MapName]*event.CallbackList[ObserveFunction]
	updateCallbacks event.CallbackList[UpdateFunction]
}

// NewDoc creates an empty replica. The site id must be unique per client
// in a session; ties between concurrent writes break on it.
func NewDoc(site string) *Doc {
	doc := &Doc{
		site:      site,
		version:   Version{},
		entries:   map[MapName]map[string]*entry{},
		observers: map[MapName]*event.CallbackList[ObserveFunction]{},
	}
	for _, mapName := range mapNames {
		doc.entries[mapName] = map[string]*entry{}
		doc.observers[mapName] = &event.CallbackList[ObserveFunction]{}
	}
	return doc
}

func (self *Doc) Site() string {
	return self.site
}

// Observe registers a per-map callback invoked with the changed keys and
// the origin of the transaction that changed them.
func (self *Doc) Observe(mapName MapName, callback ObserveFunction) func() {
	return self.observers[mapName].Add(callback)
}

// OnUpdate registers a callback invoked with the encoded delta of every
// transaction. Local-origin deltas are the ones a sync layer must
// broadcast; remote-origin deltas are already known to peers.
func (self *Doc) OnUpdate(callback UpdateFunction) func() {
	return self.updateCallbacks.Add(callback)
}

// Get returns the value for the key, or ok=false if absent or deleted.
func (self *Doc) Get(mapName MapName, key string) (json.RawMessage, bool) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	e, ok := self.entries[mapName][key]
	if !ok || e.Deleted {
		return nil, false
	}
	return slices.Clone(e.Value), true
}

// Keys returns the live (non-tombstone) keys of a map in sorted order.
func (self *Doc) Keys(mapName MapName) []string {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	keys := []string{}
	for key, e := range self.entries[mapName] {
		if !e.Deleted {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)
	return keys
}

// Len returns the number of live keys of a map.
func (self *Doc) Len(mapName MapName) int {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	n := 0
	for _, e := range self.entries[mapName] {
		if !e.Deleted {
			n += 1
		}
	}
	return n
}

// Set writes the value and emits a local-origin delta.
func (self *Doc) Set(mapName MapName, key string, value json.RawMessage) {
	self.write(mapName, key, slices.Clone(value), false)
}

// Delete writes a tombstone and emits a local-origin delta.
// Deleting an absent key still writes the tombstone, which is what makes
// the delete win over a concurrent stale update.
func (self *Doc) Delete(mapName MapName, key string) {
	self.write(mapName, key, nil, true)
}

func (self *Doc) write(mapName MapName, key string, value json.RawMessage, deleted bool) {
	self.stateLock.Lock()
	self.clock += 1
	self.seq += 1
	e := &entry{
		Map:     mapName,
		Key:     key,
		Value:   value,
		Lamport: self.clock,
		Site:    self.site,
		Seq:     self.seq,
		Deleted: deleted,
	}
	self.entries[mapName][key] = e
	self.version[self.site] = self.seq
	diff, err := encodeEntries([]*entry{e})
	self.stateLock.Unlock()

	if err != nil {
		// entries are plain data, this cannot happen
		glog.Errorf("[doc]encode error = %s\n", err)
		return
	}

	self.notify(map[MapName][]string{mapName: {key}}, event.OriginLocal)
	self.emitUpdate(diff, event.OriginLocal)
}

// StateVector returns the opaque encoded summary of everything this
// replica has seen.
func (self *Doc) StateVector() []byte {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	b, _ := json.Marshal(self.version)
	return b
}

// Version returns a copy of the raw version vector.
func (self *Doc) Version() Version {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	return maps.Clone(self.version)
}

// EncodeDiff returns the encoded set of writes the remote replica is
// missing, given its encoded state vector.
func (self *Doc) EncodeDiff(remoteStateVector []byte) ([]byte, error) {
	remote := Version{}
	if len(remoteStateVector) != 0 {
		if err := json.Unmarshal(remoteStateVector, &remote); err != nil {
			return nil, err
		}
	}

	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	missing := []*entry{}
	for _, mapName := range mapNames {
		for _, e := range self.entries[mapName] {
			if !remote.covers(e) {
				missing = append(missing, e)
			}
		}
	}
	// stable order for reproducible payloads
	slices.SortFunc(missing, func(a *entry, b *entry) int {
		if a.Site != b.Site {
			if a.Site < b.Site {
				return -1
			}
			return 1
		}
		return int(a.Seq - b.Seq)
	})
	return encodeEntries(missing)
}

// ApplyDiff merges a diff. The merge is idempotent and commutative: every
// register keeps the write that wins the LWW order, and already-seen writes
// are skipped. A malformed diff leaves the document untouched.
func (self *Doc) ApplyDiff(diff []byte, origin event.Origin) error {
	incoming, err := decodeEntries(diff)
	if err != nil {
		return err
	}

	self.stateLock.Lock()
	changed := map[MapName][]string{}
	for _, e := range incoming {
		entries, ok := self.entries[e.Map]
		if !ok {
			// unknown map from a newer peer, ignore
			continue
		}
		if self.clock < e.Lamport {
			self.clock = e.Lamport
		}
		if self.version[e.Site] < e.Seq {
			self.version[e.Site] = e.Seq
		}
		existing, ok := entries[e.Key]
		if ok && !e.newerThan(existing) {
			continue
		}
		entries[e.Key] = e
		changed[e.Map] = append(changed[e.Map], e.Key)
	}
	self.stateLock.Unlock()

	if 0 < len(changed) {
		self.notify(changed, origin)
		self.emitUpdate(diff, origin)
	}
	return nil
}

func (self *Doc) notify(changed map[MapName][]string, origin event.Origin) {
	for _, mapName := range mapNames {
		keys := changed[mapName]
		if len(keys) == 0 {
			continue
		}
		slices.Sort(keys)
		keys = slices.Compact(keys)
		for _, callback := range self.observers[mapName].Get() {
			func() {
				defer func() {
					if r := recover(); r != nil {
						glog.Errorf("[doc]observe callback panic = %v\n", r)
					}
				}()
				callback(keys, origin)
			}()
		}
	}
}

func (self *Doc) emitUpdate(diff []byte, origin event.Origin) {
	for _, callback := range self.updateCallbacks.Get() {
		func() {
			defer func() {
				if r := recover(); r != nil {
					glog.Errorf("[doc]update callback panic = %v\n", r)
				}
			}()
			callback(diff, origin)
		}()
	}
}

func encodeEntries(entries []*entry) ([]byte, error) {
	return json.Marshal(entries)
}

func decodeEntries(diff []byte) ([]*entry, error) {
	entries := []*entry{}
	if err := json.Unmarshal(diff, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
