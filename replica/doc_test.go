package replica

import (
	"encoding/json"
	"flag"
	"fmt"
	"testing"

	"github.com/go-playground/assert/v2"

	"github.com/framepad/framepad/event"
)

func init() {
	initGlog()
}

func initGlog() {
	flag.Set("logtostderr", "true")
	flag.Set("stderrthreshold", "INFO")
	flag.Set("v", "0")
}

func raw(value string) json.RawMessage {
	b, err := json.Marshal(value)
	if err != nil {
		panic(err)
	}
	return b
}

// exchange runs one bidirectional state-vector/diff round trip.
func exchange(t *testing.T, a *Doc, b *Doc) {
	diffForB, err := a.EncodeDiff(b.StateVector())
	assert.Equal(t, err, nil)
	diffForA, err := b.EncodeDiff(a.StateVector())
	assert.Equal(t, err, nil)
	assert.Equal(t, b.ApplyDiff(diffForB, event.OriginRemote), nil)
	assert.Equal(t, a.ApplyDiff(diffForA, event.OriginRemote), nil)
}

func assertConverged(t *testing.T, a *Doc, b *Doc) {
	for _, mapName := range mapNames {
		assert.Equal(t, a.Keys(mapName), b.Keys(mapName))
		for _, key := range a.Keys(mapName) {
			valueA, okA := a.Get(mapName, key)
			valueB, okB := b.Get(mapName, key)
			assert.Equal(t, okA, okB)
			assert.Equal(t, valueA, valueB)
		}
	}
}

func TestConvergence(t *testing.T) {
	a := NewDoc("a")
	b := NewDoc("b")

	// concurrent writes on both sides before any exchange,
	// including a conflict on the same key
	a.Set(MapAnnotations, "n1", raw("a1"))
	a.Set(MapAnnotations, "shared", raw("from-a"))
	a.Set(MapSession, "holdDuration", raw("2"))
	b.Set(MapAnnotations, "n2", raw("b1"))
	b.Set(MapAnnotations, "shared", raw("from-b"))
	b.Delete(MapAnnotations, "n2")

	exchange(t, a, b)
	assertConverged(t, a, b)

	// the conflicting register resolved the same way on both sides
	sharedA, ok := a.Get(MapAnnotations, "shared")
	assert.Equal(t, ok, true)
	sharedB, _ := b.Get(MapAnnotations, "shared")
	assert.Equal(t, sharedA, sharedB)

	// the delete won on both sides
	_, ok = a.Get(MapAnnotations, "n2")
	assert.Equal(t, ok, false)
	_, ok = b.Get(MapAnnotations, "n2")
	assert.Equal(t, ok, false)
}

func TestConvergenceAnyOrder(t *testing.T) {
	// the same multiset of operations applied in different orders
	// converges to the same contents
	writer := NewDoc("w")
	diffs := [][]byte{}
	writer.OnUpdate(func(diff []byte, origin event.Origin) {
		diffs = append(diffs, diff)
	})
	for i := 0; i < 8; i += 1 {
		writer.Set(MapAnnotations, fmt.Sprintf("n%d", i%3), raw(fmt.Sprintf("v%d", i)))
	}
	writer.Delete(MapAnnotations, "n1")

	forward := NewDoc("f")
	backward := NewDoc("b")
	for _, diff := range diffs {
		assert.Equal(t, forward.ApplyDiff(diff, event.OriginRemote), nil)
	}
	for i := len(diffs) - 1; 0 <= i; i -= 1 {
		assert.Equal(t, backward.ApplyDiff(diffs[i], event.OriginRemote), nil)
	}

	assertConverged(t, forward, backward)
	assertConverged(t, forward, writer)
}

func TestIdempotentMerge(t *testing.T) {
	a := NewDoc("a")
	b := NewDoc("b")
	a.Set(MapAnnotations, "n1", raw("v1"))
	a.Set(MapPresence, "a", raw("alice"))

	diff, err := a.EncodeDiff(b.StateVector())
	assert.Equal(t, err, nil)

	assert.Equal(t, b.ApplyDiff(diff, event.OriginRemote), nil)

	notified := 0
	b.Observe(MapAnnotations, func(keys []string, origin event.Origin) {
		notified += 1
	})

	// the second apply is a no-op: same contents, no notifications
	assert.Equal(t, b.ApplyDiff(diff, event.OriginRemote), nil)
	assert.Equal(t, notified, 0)
	assertConverged(t, a, b)
}

func TestDiffIsMinimal(t *testing.T) {
	a := NewDoc("a")
	b := NewDoc("b")
	a.Set(MapAnnotations, "n1", raw("v1"))

	exchange(t, a, b)

	a.Set(MapAnnotations, "n2", raw("v2"))
	diff, err := a.EncodeDiff(b.StateVector())
	assert.Equal(t, err, nil)

	entries, err := decodeEntries(diff)
	assert.Equal(t, err, nil)
	// only the write b has not seen
	assert.Equal(t, len(entries), 1)
	assert.Equal(t, entries[0].Key, "n2")
}

func TestObserveOrigin(t *testing.T) {
	a := NewDoc("a")

	origins := []event.Origin{}
	a.Observe(MapAnnotations, func(keys []string, origin event.Origin) {
		origins = append(origins, origin)
	})

	a.Set(MapAnnotations, "n1", raw("v1"))
	assert.Equal(t, origins, []event.Origin{event.OriginLocal})

	b := NewDoc("b")
	b.Set(MapAnnotations, "n2", raw("v2"))
	diff, err := b.EncodeDiff(a.StateVector())
	assert.Equal(t, err, nil)
	assert.Equal(t, a.ApplyDiff(diff, event.OriginRemote), nil)
	assert.Equal(t, origins, []event.Origin{event.OriginLocal, event.OriginRemote})
}

func TestMalformedDiff(t *testing.T) {
	a := NewDoc("a")
	a.Set(MapAnnotations, "n1", raw("v1"))

	notified := 0
	a.Observe(MapAnnotations, func(keys []string, origin event.Origin) {
		notified += 1
	})

	err := a.ApplyDiff([]byte("not json"), event.OriginRemote)
	assert.NotEqual(t, err, nil)
	assert.Equal(t, notified, 0)

	value, ok := a.Get(MapAnnotations, "n1")
	assert.Equal(t, ok, true)
	assert.Equal(t, value, raw("v1"))
}

func TestLastWriteWins(t *testing.T) {
	a := NewDoc("a")
	b := NewDoc("b")

	a.Set(MapSession, "holdDuration", raw("old"))
	exchange(t, a, b)

	// b writes after seeing a's write, so b's lamport is higher
	b.Set(MapSession, "holdDuration", raw("new"))
	exchange(t, a, b)

	value, ok := a.Get(MapSession, "holdDuration")
	assert.Equal(t, ok, true)
	assert.Equal(t, value, raw("new"))
}

func TestDeleteAbsentKeyPropagates(t *testing.T) {
	a := NewDoc("a")
	b := NewDoc("b")

	// a deletes before it ever saw b's write
	a.Delete(MapAnnotations, "n1")
	b.Set(MapAnnotations, "n1", raw("v1"))

	exchange(t, a, b)
	assertConverged(t, a, b)
}
