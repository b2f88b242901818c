package gc

import "fmt"

const (
	objectIDInitial   = 8
	objectIDIncrement = 8
)

// objectIDs maps objects to stable integer ids, assigned on first request.
type objectIDs struct {
	next  uint64
	byObj map[Handle]uint64
	byID  map[uint64]Handle
}

func newObjectIDs() objectIDs {
	return objectIDs{
		next:  objectIDInitial,
		byObj: make(map[Handle]uint64),
		byID:  make(map[uint64]Handle),
	}
}

func (t *objectIDs) get(h Handle) uint64 {
	if id, ok := t.byObj[h]; ok {
		return id
	}
	id := t.next
	t.next += objectIDIncrement
	t.byObj[h] = id
	t.byID[id] = h
	return id
}

func (t *objectIDs) forget(h Handle) {
	id, ok := t.byObj[h]
	if !ok {
		return
	}
	delete(t.byObj, h)
	delete(t.byID, id)
}

func (t *objectIDs) lookup(id uint64) (Handle, error) {
	if h, ok := t.byID[id]; ok {
		return h, nil
	}
	if id < objectIDInitial || id >= t.next || id%objectIDIncrement != 0 {
		return Nil, fmt.Errorf("gc: id %d: %w", id, ErrNotIDValue)
	}
	return Nil, fmt.Errorf("gc: id %d: %w", id, ErrRecycledObject)
}

// ObjectID returns obj's id, assigning one on first use.
func (c *Collector) ObjectID(obj Handle) uint64 {
	var id uint64
	c.locked(func() {
		c.registry.Lookup(obj)
		id = c.ids.get(obj)
	})
	return id
}

// ObjectIDToRef resolves an id issued by ObjectID.
func (c *Collector) ObjectIDToRef(id uint64) (Handle, error) {
	var (
		h   Handle
		err error
	)
	c.locked(func() {
		h, err = c.ids.lookup(id)
	})
	return h, err
}
