package keel

import (
	"context"
	"errors"
	"reflect"
)

// Resolver resolves services. It is implemented by *Container, *LifetimeScope
// and the *ResolveContext handed to activators, factories and hooks.
type Resolver interface {
	// ResolveService resolves the default registration of svc.
	ResolveService(svc Service, params ...Parameter) (any, error)

	// ResolveRequest resolves a single service with an optional metadata
	// filter; optional requests return nil when nothing is registered.
	ResolveRequest(req Request) (any, error)

	// ResolveCollection resolves every registration of svc accepted by
	// filter, in registration order. It never fails on zero matches.
	ResolveCollection(svc Service, filter MetadataFilter) ([]Resolved, error)

	// IsRegisteredService reports whether svc can be resolved.
	IsRegisteredService(svc Service) bool

	lifetimeScope() *LifetimeScope
}

// Request describes one single-service resolution.
type Request struct {
	Service    Service
	Parameters []Parameter
	Filter     MetadataFilter
	Optional   bool
}

// Resolved is one element of a collection resolution.
type Resolved struct {
	Instance     any
	Registration *Registration
}

// ResolveContext is the Resolver passed to activators, factories and hooks
// while an instance is being built. Dependencies resolved through it share
// the activation stack of the outer request, so cycles are detected, and are
// resolved from the scope that owns the instance being built.
//
// A ResolveContext must not be retained after the activation returns or used
// from other goroutines; resolve a Lazy or Func relationship for that.
type ResolveContext struct {
	op           *resolveOperation
	scope        *LifetimeScope
	service      Service
	registration *Registration
	callerParams []Parameter
	untracked    bool
}

// Service returns the service being activated.
func (c *ResolveContext) Service() Service {
	return c.service
}

// Registration returns the registration being activated, or nil when the
// context belongs to a relationship.
func (c *ResolveContext) Registration() *Registration {
	return c.registration
}

// Scope returns the lifetime scope the activation runs in.
func (c *ResolveContext) Scope() *LifetimeScope {
	return c.scope
}

// Context returns the context.Context of the outer request.
func (c *ResolveContext) Context() context.Context {
	return c.op.ctx
}

// ResolveService implements Resolver.
func (c *ResolveContext) ResolveService(svc Service, params ...Parameter) (any, error) {
	return c.op.execute(c.scope, Request{Service: svc, Parameters: params})
}

// ResolveRequest implements Resolver.
func (c *ResolveContext) ResolveRequest(req Request) (any, error) {
	return c.op.execute(c.scope, req)
}

// ResolveCollection implements Resolver.
func (c *ResolveContext) ResolveCollection(svc Service, filter MetadataFilter) ([]Resolved, error) {
	return c.op.collection(c.scope, svc, filter)
}

// IsRegisteredService implements Resolver.
func (c *ResolveContext) IsRegisteredService(svc Service) bool {
	return c.op.container.registry.has(svc)
}

func (c *ResolveContext) lifetimeScope() *LifetimeScope {
	return c.scope
}

// resolveRegistration resolves svc from a specific registration, applying
// decorators and sharing.
func (c *ResolveContext) resolveRegistration(reg *Registration, svc Service, params []Parameter) (any, error) {
	return c.op.resolveRegistration(c.scope, reg, svc, params)
}

// bindParameter produces the value of one constructor parameter or struct
// field. Explicit parameters of the request win over those of the
// registration; the container is asked last.
func (c *ResolveContext) bindParameter(owner Service, p paramInfo, params []Parameter) (reflect.Value, error) {
	info := p.info()

	split := len(c.callerParams)
	if split > len(params) {
		split = len(params)
	}

	for _, group := range [][]Parameter{params[:split], params[split:]} {
		provide, ok := findParameter(group, info, c)
		if !ok {
			continue
		}
		v, err := provide()
		if err != nil {
			if hasCode(err) {
				return reflect.Value{}, err
			}
			return reflect.Value{}, ErrParameterBinding(owner, info, err)
		}
		rv, err := coerce(v, p.typ)
		if err != nil {
			return reflect.Value{}, ErrParameterBinding(owner, info, err)
		}
		return rv, nil
	}

	instance, err := c.op.execute(c.scope, Request{
		Service:  p.service(),
		Filter:   p.filter,
		Optional: p.optional,
	})
	if err != nil {
		if !errors.Is(err, ErrParameterBindingSentinel) && errors.Is(err, ErrServiceNotRegisteredSentinel) {
			return reflect.Value{}, ErrParameterBinding(owner, info, err)
		}
		return reflect.Value{}, err
	}

	rv, err := coerce(instance, p.typ)
	if err != nil {
		return reflect.Value{}, ErrParameterBinding(owner, info, err)
	}
	return rv, nil
}

// bindStruct allocates t (a struct or pointer to struct) and binds fields.
func (c *ResolveContext) bindStruct(owner Service, t reflect.Type, fields []paramInfo, params []Parameter) (reflect.Value, error) {
	isPtr := t.Kind() == reflect.Ptr
	elem := t
	if isPtr {
		elem = t.Elem()
	}

	v := reflect.New(elem)
	for _, f := range fields {
		fv, err := c.bindParameter(owner, f, params)
		if err != nil {
			return reflect.Value{}, err
		}
		v.Elem().Field(f.index).Set(fv)
	}

	if isPtr {
		return v, nil
	}
	return v.Elem(), nil
}
