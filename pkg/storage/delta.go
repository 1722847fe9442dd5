package storage

import (
	"sort"
	"strings"
)

// Delta stages writes over a parent. A root delta sits on a Snapshot; nested
// deltas sit on another Delta and are merged back with Apply or dropped by
// simply discarding them.
//
// Ephemeral objects are held alongside the verifiable writes but are never
// committed. Objects must be treated as immutable: store a fresh value
// instead of mutating one obtained from GetObject, otherwise a discarded
// nested delta could leak changes into its parent.
type Delta struct {
	snapshot    *Snapshot
	parentDelta *Delta

	// a nil value is a tombstone.
	writes  map[string]*[]byte
	objects map[string]any
	// deleted objects shadow the parent's.
	deletedObjects map[string]struct{}
}

var _ Writer = (*Delta)(nil)

// NewDelta returns a root delta over snap.
func NewDelta(snap *Snapshot) *Delta {
	return &Delta{
		snapshot:       snap,
		writes:         make(map[string]*[]byte),
		objects:        make(map[string]any),
		deletedObjects: make(map[string]struct{}),
	}
}

// Nested opens a child delta whose writes only reach d through Apply.
func (d *Delta) Nested() *Delta {
	child := NewDelta(d.snapshot)
	child.parentDelta = d
	return child
}

// Snapshot returns the committed snapshot at the root of the delta chain.
func (d *Delta) Snapshot() *Snapshot { return d.snapshot }

// Apply merges the child's writes and objects into its parent. Applying a
// root delta is a no-op; root deltas are committed through Storage.
func (d *Delta) Apply() {
	p := d.parentDelta
	if p == nil {
		return
	}
	for k, v := range d.writes {
		p.writes[k] = v
	}
	for k := range d.deletedObjects {
		delete(p.objects, k)
		p.deletedObjects[k] = struct{}{}
	}
	for k, v := range d.objects {
		p.objects[k] = v
		delete(p.deletedObjects, k)
	}
	d.reset()
}

func (d *Delta) reset() {
	d.writes = make(map[string]*[]byte)
	d.objects = make(map[string]any)
	d.deletedObjects = make(map[string]struct{})
}

// Len returns the number of staged verifiable writes, tombstones included.
func (d *Delta) Len() int { return len(d.writes) }

func (d *Delta) Get(key string) ([]byte, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	for cur := d; cur != nil; cur = cur.parentDelta {
		if v, ok := cur.writes[key]; ok {
			if v == nil {
				return nil, nil
			}
			return *v, nil
		}
	}
	return d.snapshot.Get(key)
}

func (d *Delta) Put(key string, value []byte) {
	cp := make([]byte, len(value))
	copy(cp, value)
	d.writes[key] = &cp
}

func (d *Delta) Delete(key string) {
	d.writes[key] = nil
}

func (d *Delta) GetObject(key string) (any, bool) {
	for cur := d; cur != nil; cur = cur.parentDelta {
		if v, ok := cur.objects[key]; ok {
			return v, true
		}
		if _, ok := cur.deletedObjects[key]; ok {
			return nil, false
		}
	}
	return nil, false
}

func (d *Delta) PutObject(key string, value any) {
	d.objects[key] = value
	delete(d.deletedObjects, key)
}

func (d *Delta) DeleteObject(key string) {
	delete(d.objects, key)
	d.deletedObjects[key] = struct{}{}
}

// Iterate merges staged writes of the whole chain with the snapshot.
func (d *Delta) Iterate(prefix string, fn func(key string, value []byte) bool) error {
	merged := make(map[string][]byte)
	if err := d.snapshot.Iterate(prefix, func(k string, v []byte) bool {
		merged[k] = v
		return true
	}); err != nil {
		return err
	}

	var chain []*Delta
	for cur := d; cur != nil; cur = cur.parentDelta {
		chain = append(chain, cur)
	}
	// oldest first so newer writes win
	for i := len(chain) - 1; i >= 0; i-- {
		for k, v := range chain[i].writes {
			if !strings.HasPrefix(k, prefix) {
				continue
			}
			if v == nil {
				delete(merged, k)
				continue
			}
			merged[k] = *v
		}
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !fn(k, merged[k]) {
			return nil
		}
	}
	return nil
}
