package keel

import (
	"strconv"
	"sync"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// registry answers "which registrations provide this service" for a built
// container. It combines the sealed catalog with registration sources and
// decorators, memoizing every synthesized registration so that its identity,
// and therefore its shared-instance slot, stays stable.
type registry struct {
	catalog    *catalog
	sources    []RegistrationSource
	decorators []*decorator
	memo       *gocache.Cache
	synth      sync.Mutex
	logger     *zap.Logger
}

// newRegistry creates a registry over a sealed catalog
func newRegistry(cat *catalog, sources []RegistrationSource, decorators []*decorator, logger *zap.Logger) *registry {
	return &registry{
		catalog:    cat,
		sources:    sources,
		decorators: decorators,
		memo:       gocache.New(gocache.NoExpiration, 0),
		logger:     logger,
	}
}

// defaults returns the candidates for a single-service request, the default
// first. Sources are consulted only when nothing is registered directly, and
// the first source with a result wins.
func (r *registry) defaults(svc Service) []*Registration {
	if direct := r.catalog.lookup(svc); len(direct) > 0 {
		return direct
	}

	for i := range r.sources {
		if regs := r.fromSource(i, svc); len(regs) > 0 {
			return defaultOrder(regs)
		}
	}
	return nil
}

// collection returns every registration contributing to a collection of svc,
// in registration order: direct registrations, then adapted ones.
func (r *registry) collection(svc Service) []*Registration {
	regs := r.catalog.inOrder(svc)
	for i, src := range r.sources {
		if !src.IsAdapterForIndividualComponents() {
			continue
		}
		regs = append(regs, r.fromSource(i, svc)...)
	}
	return regs
}

// has reports whether any registration or source can provide svc.
func (r *registry) has(svc Service) bool {
	return len(r.defaults(svc)) > 0
}

// fromSource returns the memoized registrations source i provides for svc.
func (r *registry) fromSource(i int, svc Service) []*Registration {
	key := "source|" + strconv.Itoa(i) + "|" + svc.cacheKey()
	if cached, ok := r.memo.Get(key); ok {
		return cached.([]*Registration)
	}

	r.synth.Lock()
	defer r.synth.Unlock()

	// Double-check after acquiring the lock
	if cached, ok := r.memo.Get(key); ok {
		return cached.([]*Registration)
	}

	regs := r.sources[i].RegistrationsFor(svc, r.catalog.inOrder)
	r.memo.Set(key, regs, gocache.NoExpiration)

	if len(regs) > 0 {
		r.logger.Debug("registration source synthesized registrations",
			zap.String("service", svc.String()),
			zap.Int("count", len(regs)),
		)
	}
	return regs
}

// decorate returns the registration that serves svc once decorators are
// applied; reg itself when no decorator applies.
func (r *registry) decorate(reg *Registration, svc Service) *Registration {
	if len(r.decorators) == 0 {
		return reg
	}

	key := "decorated|" + reg.ID.String() + "|" + svc.cacheKey()
	if cached, ok := r.memo.Get(key); ok {
		return cached.(*Registration)
	}

	r.synth.Lock()
	defer r.synth.Unlock()

	if cached, ok := r.memo.Get(key); ok {
		return cached.(*Registration)
	}

	var (
		applied []string
		decs    []*decorator
	)
	for _, d := range r.decorators {
		dc := DecoratorContext{Service: svc, Registration: reg, Applied: applied}
		if !d.appliesTo(dc) {
			continue
		}
		decs = append(decs, d)
		applied = append(applied, d.label)
	}

	result := reg
	if len(decs) > 0 {
		result = decorated(reg, svc, decs)
		r.logger.Debug("decorators applied",
			zap.String("service", svc.String()),
			zap.Strings("decorators", applied),
		)
	}

	r.memo.Set(key, result, gocache.NoExpiration)
	return result
}

// defaultOrder orders registrations given in registration order the way the
// catalog orders a lookup.
func defaultOrder(regs []*Registration) []*Registration {
	out := make([]*Registration, 0, len(regs))
	for i := len(regs) - 1; i >= 0; i-- {
		if !regs[i].PreserveDefaults {
			out = append(out, regs[i])
		}
	}
	for i := len(regs) - 1; i >= 0; i-- {
		if regs[i].PreserveDefaults {
			out = append(out, regs[i])
		}
	}
	return out
}
