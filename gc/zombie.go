package gc

// zombieEntry is a node of the singly linked zombie list.
type zombieEntry struct {
	obj  Handle
	fn   TeardownFunc
	arg  any
	next *zombieEntry
}

// zombify pushes obj onto the zombie list. It stays registered until its
// teardown has run. Caller holds the lock.
func (c *Collector) zombify(obj Handle, info *ObjectInfo, fn TeardownFunc, arg any) {
	info.zombie = true
	info.teardown = nil
	info.snapshot.Free()
	info.writeLog.Free()
	info.snapshot, info.writeLog = nil, nil
	info.lifecycle = Clear
	c.stats.zombieCount++
	c.heapStats[info.sizeClass].LiveSlots--
	c.heapStats[info.sizeClass].FinalSlots++
	c.zombies = &zombieEntry{obj: obj, fn: fn, arg: arg, next: c.zombies}
}

// MakeZombie turns obj into a zombie immediately. fn(arg) runs at the next
// zombie pass, before obj's metadata is released.
func (c *Collector) MakeZombie(obj Handle, fn TeardownFunc, arg any) {
	c.withTick(func() {
		info := c.registry.Lookup(obj)
		if info.zombie {
			fatalf(InternalInvariantBroken, "%s is already a zombie", obj)
		}
		c.queueFinalizers(obj, info)
		c.zombify(obj, info, fn, arg)
	})
}

// SetNativeTeardown registers fn(arg) to run when obj is swept. Such objects
// pass through the zombie list instead of being released directly.
func (c *Collector) SetNativeTeardown(obj Handle, fn TeardownFunc, arg any) {
	c.locked(func() {
		info := c.registry.Lookup(obj)
		if fn == nil {
			info.teardown = nil
			return
		}
		info.teardown = &teardown{fn: fn, arg: arg}
	})
}

// processZombies runs each zombie's teardown and then releases it. The list
// is processed head first, so zombies are torn down newest first.
func (c *Collector) processZombies(z *zombieEntry) {
	for ; z != nil; z = z.next {
		if z.fn != nil {
			runTeardown(z)
		}
		c.locked(func() {
			c.release(z.obj)
		})
	}
}

func runTeardown(z *zombieEntry) {
	defer func() {
		if r := recover(); r != nil {
			if fe, ok := AsFatal(r); ok {
				panic(fe)
			}
			logger().Errorf("teardown for %s panicked: %v", z.obj, r)
		}
	}()
	z.fn(z.arg)
}
