package gc

import (
	"slices"
)

// ---------------------------------------------------------------------------
// Registry: handle -> ObjectInfo
// ---------------------------------------------------------------------------

// Registry is the single source of truth for every live object. It has no
// locking of its own; all calls happen under the collector lock.
type Registry struct {
	objects    map[Handle]*ObjectInfo
	lastHandle Handle
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		objects: make(map[Handle]*ObjectInfo),
	}
}

// reserve hands out the next unused heap handle. Handles are never reused.
func (r *Registry) reserve() Handle {
	r.lastHandle += handleAlign
	return r.lastHandle
}

// Register creates the metadata for h in (Clear, Black).
func (r *Registry) Register(h Handle, size int, wbProtected bool) *ObjectInfo {
	if !h.IsHeap() {
		fatalf(InternalInvariantBroken, "register of non-heap handle %s", h)
	}
	if _, exists := r.objects[h]; exists {
		fatalf(InternalInvariantBroken, "double register of %s", h)
	}
	info := &ObjectInfo{
		allocSize:   size,
		wbProtected: wbProtected,
		lifecycle:   Clear,
		color:       Black,
	}
	r.objects[h] = info
	return info
}

// Lookup returns the metadata for h. A missing handle means the collector's
// bookkeeping is corrupt and is fatal.
func (r *Registry) Lookup(h Handle) *ObjectInfo {
	info, ok := r.objects[h]
	if !ok {
		fatalf(InternalInvariantBroken, "lookup of unknown handle %s", h)
	}
	return info
}

// Get returns the metadata for h, if registered.
func (r *Registry) Get(h Handle) (*ObjectInfo, bool) {
	info, ok := r.objects[h]
	return info, ok
}

// Unregister removes the metadata for h. Releasing an unknown handle is a
// double release and is fatal.
func (r *Registry) Unregister(h Handle) {
	if _, ok := r.objects[h]; !ok {
		fatalf(InternalInvariantBroken, "double release of %s", h)
	}
	delete(r.objects, h)
}

// Len returns the number of registered objects, zombies included.
func (r *Registry) Len() int {
	return len(r.objects)
}

// Handles returns every registered handle in ascending order.
func (r *Registry) Handles() []Handle {
	out := make([]Handle, 0, len(r.objects))
	for h := range r.objects {
		out = append(out, h)
	}
	slices.Sort(out)
	return out
}
