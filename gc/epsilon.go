package gc

// NewEpsilon returns a backend that allocates and tracks objects but never
// collects. Barriers are accepted and ignored; finalizers and zombies run at
// Shutdown.
func NewEpsilon(cfg Config, rt Runtime) *Collector {
	cfg.Backend = BackendEpsilon
	c := NewCollector(cfg, rt)
	c.epsilon = true
	c.enabled = false
	return c
}

// Epsilon reports whether c is the non-collecting backend.
func (c *Collector) Epsilon() bool { return c.epsilon }
