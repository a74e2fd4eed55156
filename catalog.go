package keel

import (
	"sync"
)

// catalog stores the registrations made on a Builder. It is append-only
// until sealed; after that it is read-only and safe for concurrent lookups.
type catalog struct {
	registrations []*Registration
	byService     map[Service][]*Registration // registration order
	sealed        bool
	seq           uint64
	mu            sync.RWMutex
}

// newCatalog creates an empty catalog
func newCatalog() *catalog {
	return &catalog{
		byService: make(map[Service][]*Registration),
	}
}

// add appends a registration. The services it exposes may still change until
// the catalog is sealed.
func (c *catalog) add(reg *Registration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sealed {
		return ErrContainerFrozen
	}

	c.seq++
	reg.seq = c.seq
	c.registrations = append(c.registrations, reg)

	return nil
}

// seal freezes the catalog and indexes registrations by service.
func (c *catalog) seal() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sealed {
		return
	}

	for _, reg := range c.registrations {
		seen := make(map[Service]bool, len(reg.Services))
		for _, svc := range reg.Services {
			if seen[svc] {
				continue
			}
			seen[svc] = true
			c.byService[svc] = append(c.byService[svc], reg)
		}
	}

	c.sealed = true
}

// isSealed reports whether seal has been called
func (c *catalog) isSealed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sealed
}

// lookup returns the registrations exposing svc in default order: most recent
// first, with registrations that preserve existing defaults after the others.
func (c *catalog) lookup(svc Service) []*Registration {
	c.mu.RLock()
	regs := c.byService[svc]
	c.mu.RUnlock()

	if len(regs) == 0 {
		return nil
	}
	return defaultOrder(regs)
}

// inOrder returns the registrations exposing svc in registration order.
func (c *catalog) inOrder(svc Service) []*Registration {
	c.mu.RLock()
	defer c.mu.RUnlock()

	regs := c.byService[svc]
	out := make([]*Registration, len(regs))
	copy(out, regs)
	return out
}

// has checks if any registration exposes svc
func (c *catalog) has(svc Service) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byService[svc]) > 0
}

// all returns every registration in registration order
func (c *catalog) all() []*Registration {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*Registration, len(c.registrations))
	copy(out, c.registrations)
	return out
}
