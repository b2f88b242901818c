package gc

import "fmt"

// Shutdown runs every outstanding finalizer, verifies each remaining
// protected object one last time, and releases everything. It returns an
// error wrapping ErrViolations if any missed barrier was recorded during
// the collector's lifetime.
func (c *Collector) Shutdown() error {
	var done bool
	c.locked(func() { done = c.shutdown })
	if done {
		return c.violationError()
	}

	// Finalizers may allocate or register new finalizers; keep going until
	// a pass finds nothing left to run.
	for {
		var d deferred
		c.locked(func() {
			if !c.epsilon {
				c.drainQueues()
			}
			for _, h := range c.registry.Handles() {
				info := c.registry.Lookup(h)
				if !info.zombie {
					c.queueFinalizers(h, info)
				}
			}
			d = c.takeDeferred()
		})
		if len(d.finalizers) == 0 && d.zombies == nil && len(d.cycles) == 0 {
			break
		}
		c.runDeferred(d)
	}

	var d deferred
	c.locked(func() {
		c.shutdown = true
		handles := c.registry.Handles()
		if !c.epsilon {
			for _, h := range handles {
				info := c.registry.Lookup(h)
				if info.zombie || !info.wbProtected || info.lifecycle == Clear {
					continue
				}
				c.verify(h)
			}
		}
		for slot := range c.weak {
			*slot = Nil
		}
		clear(c.weak)
		for _, h := range handles {
			info := c.registry.Lookup(h)
			if info.zombie {
				continue
			}
			if info.teardown != nil {
				c.zombify(h, info, info.teardown.fn, info.teardown.arg)
				continue
			}
			c.release(h)
		}
		d = c.takeDeferred()
	})
	c.runDeferred(d)

	logger().Infof("collector %s shut down after %d cycle(s)", c.id, c.Count())
	return c.violationError()
}

func (c *Collector) violationError() error {
	n := c.Violations()
	if n == 0 {
		return nil
	}
	return fmt.Errorf("gc: %d object(s) with missed write barriers: %w", n, ErrViolations)
}

// IsShutdown reports whether Shutdown has completed.
func (c *Collector) IsShutdown() bool {
	var done bool
	c.locked(func() { done = c.shutdown })
	return done
}
