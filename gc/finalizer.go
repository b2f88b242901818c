package gc

// ---------------------------------------------------------------------------
// Finalizers
// ---------------------------------------------------------------------------

type finalizerJob struct {
	obj        Handle
	finalizers []*Finalizer
}

func (j finalizerJob) run() {
	for _, f := range j.finalizers {
		runFinalizer(j.obj, f)
	}
}

func runFinalizer(obj Handle, f *Finalizer) {
	defer func() {
		if r := recover(); r != nil {
			if fe, ok := AsFatal(r); ok {
				panic(fe)
			}
			logger().Errorf("finalizer for %s panicked: %v", obj, r)
		}
	}()
	if f.Fn != nil {
		f.Fn(obj)
	}
}

// DefineFinalizer appends f to obj's finalizers. Registering a finalizer that
// is already present is a no-op returning the existing registration.
func (c *Collector) DefineFinalizer(obj Handle, f *Finalizer) *Finalizer {
	if f == nil {
		fatalf(InternalInvariantBroken, "nil finalizer for %s", obj)
	}
	var out *Finalizer
	c.locked(func() {
		info := c.registry.Lookup(obj)
		for _, existing := range info.finalizers {
			if existing == f {
				out = existing
				return
			}
		}
		info.finalizers = append(info.finalizers, f)
		out = f
	})
	return out
}

// UndefineFinalizer removes every finalizer registered for obj without
// running them.
func (c *Collector) UndefineFinalizer(obj Handle) {
	c.locked(func() {
		c.registry.Lookup(obj).finalizers = nil
	})
}

// CopyFinalizer gives dest the same finalizer registrations as src,
// replacing any dest already had.
func (c *Collector) CopyFinalizer(dest, src Handle) {
	c.locked(func() {
		from := c.registry.Lookup(src)
		to := c.registry.Lookup(dest)
		if !from.hasFinalizers() {
			to.finalizers = nil
			return
		}
		to.finalizers = make([]*Finalizer, len(from.finalizers))
		copy(to.finalizers, from.finalizers)
	})
}

// Finalizers returns obj's registrations in insertion order.
func (c *Collector) Finalizers(obj Handle) []*Finalizer {
	var out []*Finalizer
	c.locked(func() {
		fins := c.registry.Lookup(obj).finalizers
		out = make([]*Finalizer, len(fins))
		copy(out, fins)
	})
	return out
}

// RunFinalizers runs and clears obj's finalizers now, outside the lock.
func (c *Collector) RunFinalizers(obj Handle) {
	var job finalizerJob
	c.locked(func() {
		info := c.registry.Lookup(obj)
		job = finalizerJob{obj: obj, finalizers: info.finalizers}
		info.finalizers = nil
	})
	job.run()
}

// queueFinalizers moves info's finalizers onto the deferred list and clears
// them. Caller holds the lock.
func (c *Collector) queueFinalizers(obj Handle, info *ObjectInfo) {
	if !info.hasFinalizers() {
		return
	}
	c.deferredFinalizers = append(c.deferredFinalizers, finalizerJob{obj: obj, finalizers: info.finalizers})
	info.finalizers = nil
}
