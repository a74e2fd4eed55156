package keel

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
)

// relationship is implemented by the pointer receivers of types the container
// builds itself instead of looking them up: Lazy, Owned, Func and friends.
type relationship interface {
	relate(ctx *ResolveContext, key any) error
}

var relationshipType = reflect.TypeOf((*relationship)(nil)).Elem()

// isRelationship reports whether t (or *t) is a relationship type.
func isRelationship(t reflect.Type) bool {
	if t == nil {
		return false
	}
	if t.Kind() == reflect.Ptr {
		return t.Implements(relationshipType)
	}
	if t.Kind() == reflect.Interface {
		return false
	}
	return reflect.PointerTo(t).Implements(relationshipType)
}

// Lazy wraps a dependency that is resolved on first access.
// This is useful for breaking circular dependencies or deferring
// resolution of expensive services until they're actually needed.
//
// Take it as *Lazy[T] in a constructor; a keyed dependency uses the `name` tag
// of an In struct field.
type Lazy[T any] struct {
	scope    *LifetimeScope
	parent   *resolveOperation
	service  Service
	mu       sync.Once
	value    T
	err      error
	resolved atomic.Bool
}

// NewLazy creates a lazy wrapper resolving T from r on first access.
func NewLazy[T any](r Resolver) *Lazy[T] {
	return &Lazy[T]{
		scope:   r.lifetimeScope(),
		parent:  operationOf(r),
		service: ServiceOf[T](),
	}
}

func (l *Lazy[T]) relate(ctx *ResolveContext, key any) error {
	l.scope = ctx.scope
	l.parent = ctx.op
	l.service = KeyedServiceOf[T](key)
	return nil
}

// Get resolves the dependency and returns it.
// The resolution happens only once; subsequent calls return the cached value.
func (l *Lazy[T]) Get() (T, error) {
	l.mu.Do(func() {
		instance, err := l.scope.resolveFrom(l.parent, Request{Service: l.service})
		if err != nil {
			l.err = err

			return
		}

		l.value, l.err = as[T](l.service, instance)
		l.resolved.Store(l.err == nil)
	})

	return l.value, l.err
}

// MustGet resolves the dependency and returns it, panicking on error.
func (l *Lazy[T]) MustGet() T {
	value, err := l.Get()
	if err != nil {
		panic(fmt.Sprintf("lazy dependency %s failed: %v", l.service, err))
	}

	return value
}

// IsResolved returns true if the dependency has been resolved.
func (l *Lazy[T]) IsResolved() bool {
	return l.resolved.Load()
}

// Service returns the service the wrapper resolves.
func (l *Lazy[T]) Service() Service {
	return l.service
}

// OptionalLazy wraps an optional dependency that is resolved on first access.
// Returns the zero value without error if the dependency is not registered.
type OptionalLazy[T any] struct {
	scope    *LifetimeScope
	parent   *resolveOperation
	service  Service
	mu       sync.Once
	value    T
	err      error
	resolved atomic.Bool
	found    atomic.Bool
}

func (l *OptionalLazy[T]) relate(ctx *ResolveContext, key any) error {
	l.scope = ctx.scope
	l.parent = ctx.op
	l.service = KeyedServiceOf[T](key)
	return nil
}

// Get resolves the dependency and returns it.
// Returns the zero value without error if the dependency is not found.
func (l *OptionalLazy[T]) Get() (T, error) {
	l.mu.Do(func() {
		instance, err := l.scope.resolveFrom(l.parent, Request{Service: l.service, Optional: true})
		if err != nil {
			l.err = err

			return
		}

		if instance != nil {
			l.value, l.err = as[T](l.service, instance)
			l.found.Store(l.err == nil)
		}
		l.resolved.Store(true)
	})

	return l.value, l.err
}

// IsResolved returns true if the dependency has been resolved.
func (l *OptionalLazy[T]) IsResolved() bool {
	return l.resolved.Load()
}

// IsFound returns true if the dependency was found (only valid after resolution).
func (l *OptionalLazy[T]) IsFound() bool {
	return l.found.Load()
}

// Provider resolves the dependency again on each access. Whether that yields
// a new instance depends on the lifetime of the registration.
type Provider[T any] struct {
	scope   *LifetimeScope
	parent  *resolveOperation
	service Service
}

func (p *Provider[T]) relate(ctx *ResolveContext, key any) error {
	p.scope = ctx.scope
	p.parent = ctx.op
	p.service = KeyedServiceOf[T](key)
	return nil
}

// Provide resolves and returns an instance of the dependency.
func (p *Provider[T]) Provide(params ...Parameter) (T, error) {
	instance, err := p.scope.resolveFrom(p.parent, Request{Service: p.service, Parameters: params})
	if err != nil {
		var zero T

		return zero, err
	}

	return as[T](p.service, instance)
}

// Func is a delegate that resolves T each time it is called. A constructor
// taking a Func[T] gets a factory bound to the scope that owns the instance
// being built.
type Func[T any] func() (T, error)

func (f *Func[T]) relate(ctx *ResolveContext, key any) error {
	scope, parent, svc := ctx.scope, ctx.op, KeyedServiceOf[T](key)
	*f = func() (T, error) {
		instance, err := scope.resolveFrom(parent, Request{Service: svc})
		if err != nil {
			var zero T
			return zero, err
		}
		return as[T](svc, instance)
	}
	return nil
}

// Func1 is a delegate that resolves T with a late-bound argument. The argument
// is supplied as a typed parameter, so it binds to the constructor parameter
// of type A.
type Func1[A, T any] func(a A) (T, error)

func (f *Func1[A, T]) relate(ctx *ResolveContext, key any) error {
	scope, parent, svc := ctx.scope, ctx.op, KeyedServiceOf[T](key)
	*f = func(a A) (T, error) {
		instance, err := scope.resolveFrom(parent, Request{Service: svc, Parameters: []Parameter{TypedAs[A](a)}})
		if err != nil {
			var zero T
			return zero, err
		}
		return as[T](svc, instance)
	}
	return nil
}

// Func2 is a delegate that resolves T with two late-bound arguments, bound by
// type. A and B must be different types.
type Func2[A, B, T any] func(a A, b B) (T, error)

func (f *Func2[A, B, T]) relate(ctx *ResolveContext, key any) error {
	if typeOf[A]() == typeOf[B]() {
		return ErrInvalidRegistration(
			fmt.Sprintf("Func2 arguments must have distinct types, got %s twice", typeOf[A]()), nil)
	}

	scope, parent, svc := ctx.scope, ctx.op, KeyedServiceOf[T](key)
	*f = func(a A, b B) (T, error) {
		instance, err := scope.resolveFrom(parent, Request{
			Service:    svc,
			Parameters: []Parameter{TypedAs[A](a), TypedAs[B](b)},
		})
		if err != nil {
			var zero T
			return zero, err
		}
		return as[T](svc, instance)
	}
	return nil
}

// Owned holds an instance resolved in its own child lifetime scope. Disposing
// the Owned value ends that scope, releasing the instance and every
// dependency created for it.
type Owned[T any] struct {
	Value T
	scope *LifetimeScope
}

func (o *Owned[T]) relate(ctx *ResolveContext, key any) error {
	svc := KeyedServiceOf[T](key)

	child, err := ctx.scope.BeginLifetimeScope(WithTag(svc))
	if err != nil {
		return err
	}

	instance, err := ctx.op.execute(child, Request{Service: svc})
	if err != nil {
		_ = child.Dispose()
		return err
	}

	value, err := as[T](svc, instance)
	if err != nil {
		_ = child.Dispose()
		return err
	}

	o.Value = value
	o.scope = child
	return nil
}

// Dispose ends the scope owning the value.
func (o *Owned[T]) Dispose() error {
	if o.scope == nil {
		return nil
	}
	return o.scope.Dispose()
}

// Index resolves T by key.
type Index[T any] struct {
	scope  *LifetimeScope
	parent *resolveOperation
}

func (ix *Index[T]) relate(ctx *ResolveContext, _ any) error {
	ix.scope = ctx.scope
	ix.parent = ctx.op
	return nil
}

// Get resolves the T registered under key.
func (ix *Index[T]) Get(key any) (T, error) {
	svc := KeyedServiceOf[T](key)
	instance, err := ix.scope.resolveFrom(ix.parent, Request{Service: svc})
	if err != nil {
		var zero T
		return zero, err
	}
	return as[T](svc, instance)
}

// Has reports whether a T is registered under key.
func (ix *Index[T]) Has(key any) bool {
	return ix.scope.IsRegisteredService(KeyedServiceOf[T](key))
}

func (m *Meta[T]) relate(ctx *ResolveContext, key any) error {
	svc := KeyedServiceOf[T](key)

	instance, reg, err := ctx.op.resolveDefault(ctx.scope, svc)
	if err != nil {
		return err
	}

	value, err := as[T](svc, instance)
	if err != nil {
		return err
	}

	m.Value = value
	m.Metadata = reg.Metadata
	return nil
}

// operationOf returns the operation r belongs to when r is a ResolveContext.
func operationOf(r Resolver) *resolveOperation {
	if rc, ok := r.(*ResolveContext); ok {
		return rc.op
	}
	return nil
}
