package keel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// RootTag is the tag of the container's root lifetime scope.
const RootTag = "root"

// ScopeOption configures a child lifetime scope.
type ScopeOption func(*scopeOptions)

type scopeOptions struct {
	tag any
	ctx context.Context
}

// WithTag tags the scope so that PerMatchingScope registrations can find it.
func WithTag(tag any) ScopeOption {
	return func(o *scopeOptions) {
		o.tag = tag
	}
}

// WithContext sets the context.Context passed to middleware for resolves made
// from the scope. Child scopes inherit it.
func WithContext(ctx context.Context) ScopeOption {
	return func(o *scopeOptions) {
		o.ctx = ctx
	}
}

// LifetimeScope is a node of the scope tree rooted at the Container. It owns
// the shared instances whose lifetime maps to it and releases the instances
// it owns when disposed.
type LifetimeScope struct {
	tag       any
	ctx       context.Context
	parent    *LifetimeScope
	root      *LifetimeScope
	container *Container

	shared   map[uuid.UUID]*sharedEntry
	owned    []ownedInstance
	children []*LifetimeScope
	disposed bool
	mu       sync.Mutex
}

// sharedEntry holds one shared instance. One operation at a time builds it;
// concurrent first requests wait on ready and then read the result.
type sharedEntry struct {
	instance any
	done     atomic.Bool

	// builder and ready are guarded by container.waits.
	builder *resolveOperation
	ready   chan struct{}
}

// ownedInstance is an instance the scope releases on disposal.
type ownedInstance struct {
	reg      *Registration
	service  Service
	instance any
}

// newScope creates a scope under parent; parent is nil for the root.
func newScope(c *Container, parent *LifetimeScope, opts scopeOptions) *LifetimeScope {
	s := &LifetimeScope{
		tag:       opts.tag,
		ctx:       opts.ctx,
		parent:    parent,
		container: c,
		shared:    make(map[uuid.UUID]*sharedEntry),
	}
	if parent == nil {
		s.root = s
	} else {
		s.root = parent.root
	}
	if s.ctx == nil {
		s.ctx = context.Background()
	}
	return s
}

// Tag returns the tag of the scope.
func (s *LifetimeScope) Tag() any {
	return s.tag
}

// Parent returns the enclosing scope, nil for the root.
func (s *LifetimeScope) Parent() *LifetimeScope {
	return s.parent
}

// Context returns the context.Context of the scope.
func (s *LifetimeScope) Context() context.Context {
	return s.ctx
}

// IsDisposed reports whether Dispose has been called.
func (s *LifetimeScope) IsDisposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

// BeginLifetimeScope creates a child scope. The child sees every registration
// but builds its own PerLifetimeScope instances.
func (s *LifetimeScope) BeginLifetimeScope(opts ...ScopeOption) (*LifetimeScope, error) {
	o := scopeOptions{ctx: s.ctx}
	for _, opt := range opts {
		opt(&o)
	}

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return nil, ErrScopeDisposed
	}
	child := newScope(s.container, s, o)
	s.children = append(s.children, child)
	s.mu.Unlock()

	s.container.middleware.onScopeBegin(child.tag)
	s.container.logger.Debug("lifetime scope started", zap.Any("tag", child.tag))

	return child, nil
}

// Dispose disposes the child scopes that are still open, then releases the
// instances owned by this scope in reverse activation order. Every instance
// is released even when some fail; failures are reported together.
func (s *LifetimeScope) Dispose() error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrScopeDisposed
	}
	s.disposed = true
	children := s.children
	owned := s.owned
	s.children = nil
	s.owned = nil
	s.shared = nil
	s.mu.Unlock()

	var err error

	for i := len(children) - 1; i >= 0; i-- {
		if cerr := children[i].Dispose(); cerr != nil && !errors.Is(cerr, ErrScopeDisposed) {
			err = multierr.Append(err, cerr)
		}
	}

	for i := len(owned) - 1; i >= 0; i-- {
		if rerr := release(owned[i]); rerr != nil {
			err = multierr.Append(err, fmt.Errorf("failed to dispose %s: %w", owned[i].service, rerr))
		}
	}

	if s.parent != nil {
		s.parent.removeChild(s)
	}

	s.container.middleware.onScopeEnd(s.tag)

	logger := s.container.logger
	logger.Debug("lifetime scope disposed",
		zap.Any("tag", s.tag),
		zap.Int("released", len(owned)),
		zap.Int("children", len(children)),
	)

	if err != nil {
		logger.Warn("lifetime scope disposal failed", zap.Any("tag", s.tag), zap.Error(err))
		return ErrDisposalFailed(s.tag, err)
	}

	return nil
}

func (s *LifetimeScope) removeChild(child *LifetimeScope) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, c := range s.children {
		if c == child {
			s.children = append(s.children[:i], s.children[i+1:]...)
			return
		}
	}
}

// ResolveService implements Resolver.
func (s *LifetimeScope) ResolveService(svc Service, params ...Parameter) (any, error) {
	return s.ResolveRequest(Request{Service: svc, Parameters: params})
}

// ResolveRequest implements Resolver.
func (s *LifetimeScope) ResolveRequest(req Request) (any, error) {
	return s.resolveFrom(nil, req)
}

// resolveFrom resolves req for a relationship created by parent.
func (s *LifetimeScope) resolveFrom(parent *resolveOperation, req Request) (any, error) {
	return s.resolveTop(req.Service, parent, func(op *resolveOperation) (any, error) {
		return op.execute(s, req)
	})
}

// ResolveCollection implements Resolver.
func (s *LifetimeScope) ResolveCollection(svc Service, filter MetadataFilter) ([]Resolved, error) {
	var items []Resolved

	_, err := s.resolveTop(svc, nil, func(op *resolveOperation) (any, error) {
		var err error
		items, err = op.collection(s, svc, filter)
		return items, err
	})
	if err != nil {
		return nil, err
	}

	return items, nil
}

// IsRegisteredService implements Resolver.
func (s *LifetimeScope) IsRegisteredService(svc Service) bool {
	return s.container.registry.has(svc)
}

func (s *LifetimeScope) lifetimeScope() *LifetimeScope {
	return s
}

// resolveTop runs one top-level resolve wrapped by the middleware chain.
func (s *LifetimeScope) resolveTop(svc Service, parent *resolveOperation, run func(op *resolveOperation) (any, error)) (any, error) {
	if s.IsDisposed() {
		return nil, ErrScopeDisposed
	}

	c := s.container
	ctx := context.WithValue(s.ctx, resolveStartKey{}, time.Now())

	// Call middleware before resolve
	if err := c.middleware.beforeResolve(ctx, svc); err != nil {
		return nil, err
	}

	// Perform actual resolution
	op := newResolveOperation(c, ctx, parent)
	op.setRunning(true)
	instance, err := run(op)
	op.setRunning(false)

	// Call middleware after resolve
	if mwErr := c.middleware.afterResolve(ctx, svc, instance, err); mwErr != nil {
		return nil, mwErr
	}

	if err != nil {
		return nil, err
	}
	return instance, nil
}

// owningScope returns the scope whose table holds the shared instance of reg.
func (s *LifetimeScope) owningScope(reg *Registration, svc Service) (*LifetimeScope, error) {
	switch reg.Lifetime {
	case SingleInstance:
		return s.root, nil
	case PerMatchingScope:
		for scope := s; scope != nil; scope = scope.parent {
			for _, tag := range reg.MatchingTags {
				if sameKey(scope.tag, tag) {
					return scope, nil
				}
			}
		}
		return nil, ErrNoMatchingScope(svc, reg.MatchingTags)
	default:
		return s, nil
	}
}

// sharedInstance returns the instance of reg held by this scope, creating it
// with create on first use. A request that would wait on an instance its own
// chain is building, directly or through other waiting operations, fails with
// a circular dependency error instead of blocking.
func (s *LifetimeScope) sharedInstance(op *resolveOperation, reg *Registration, svc Service, create func() (any, error)) (any, error) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return nil, ErrScopeDisposed
	}
	entry, ok := s.shared[reg.ID]
	if !ok {
		entry = &sharedEntry{}
		s.shared[reg.ID] = entry
	}
	s.mu.Unlock()

	// Fast path: already created
	if entry.done.Load() {
		return entry.instance, nil
	}

	waits := &s.container.waits
	for {
		waits.Lock()
		if entry.done.Load() {
			waits.Unlock()
			return entry.instance, nil
		}
		if entry.builder == nil {
			entry.builder = op
			entry.ready = make(chan struct{})
			waits.Unlock()
			break
		}
		if op.blockedBy(entry) {
			waits.Unlock()
			return nil, ErrCircularDependency(op.path(svc))
		}
		root := op.root()
		root.waiting = entry
		ready := entry.ready
		waits.Unlock()

		<-ready

		waits.Lock()
		root.waiting = nil
		waits.Unlock()
	}

	instance, err := create()
	disposed := s.IsDisposed()

	waits.Lock()
	entry.builder = nil
	if err == nil && !disposed {
		entry.instance = instance
		entry.done.Store(true)
	}
	close(entry.ready)
	waits.Unlock()

	if err != nil {
		return nil, err
	}

	// Disposal began while the instance was being built; it was released
	// with the rest of the scope.
	if disposed {
		return nil, ErrScopeDisposed
	}

	return instance, nil
}

// track records an instance for release when the scope ends. If the scope is
// already disposed the instance is released at once.
func (s *LifetimeScope) track(reg *Registration, svc Service, instance any) error {
	owned := ownedInstance{reg: reg, service: svc, instance: instance}

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		if err := release(owned); err != nil {
			s.container.logger.Warn("release after scope disposal failed",
				zap.String("service", svc.String()), zap.Error(err))
		}
		return ErrScopeDisposed
	}
	s.owned = append(s.owned, owned)
	s.mu.Unlock()

	return nil
}

// ownedCount returns the number of instances awaiting release.
func (s *LifetimeScope) ownedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.owned)
}

// release runs the release hooks of an instance, or disposes it when the
// registration has none and the container owns it.
func release(o ownedInstance) error {
	if len(o.reg.onRelease) > 0 {
		var err error
		for _, hook := range o.reg.onRelease {
			err = multierr.Append(err, hook(o.instance))
		}
		return err
	}

	if o.reg.Ownership == ExternallyOwned {
		return nil
	}

	switch v := o.instance.(type) {
	case Disposable:
		return v.Dispose()
	case io.Closer:
		return v.Close()
	}
	return nil
}
