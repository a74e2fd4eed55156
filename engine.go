package keel

import (
	"context"
	"reflect"
	"sync"
	"time"
)

// activationFrame is one registration under construction.
type activationFrame struct {
	reg *Registration
	svc Service
}

// resolveOperation carries the state of one top-level resolve: the stack of
// registrations being built, used to detect cycles.
//
// An operation started by a relationship (Lazy, Func, Provider, Index) keeps
// the operation that created the relationship as its parent. While the parent
// is still running, its stack counts as part of the child's, so a cycle that
// passes through a delegate call is reported instead of blocking on the
// instance the parent is building.
type resolveOperation struct {
	container *Container
	ctx       context.Context
	parent    *resolveOperation

	mu      sync.Mutex // guards stack and running
	stack   []activationFrame
	running bool

	// waiting is the shared entry the operation is blocked on. Only set on
	// the root of a chain; guarded by container.waits.
	waiting *sharedEntry
}

func newResolveOperation(c *Container, ctx context.Context, parent *resolveOperation) *resolveOperation {
	return &resolveOperation{container: c, ctx: ctx, parent: parent}
}

func (op *resolveOperation) setRunning(running bool) {
	op.mu.Lock()
	op.running = running
	op.mu.Unlock()
}

func (op *resolveOperation) isRunning() bool {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.running
}

// chain returns op followed by the ancestors that are still running,
// innermost first.
func (op *resolveOperation) chain() []*resolveOperation {
	ops := []*resolveOperation{op}
	for p := op.parent; p != nil && p.isRunning(); p = p.parent {
		ops = append(ops, p)
	}
	return ops
}

// root returns the outermost running operation of the chain.
func (op *resolveOperation) root() *resolveOperation {
	ops := op.chain()
	return ops[len(ops)-1]
}

func (op *resolveOperation) frames() []activationFrame {
	op.mu.Lock()
	defer op.mu.Unlock()
	return append([]activationFrame(nil), op.stack...)
}

func (op *resolveOperation) push(frame activationFrame) {
	op.mu.Lock()
	op.stack = append(op.stack, frame)
	op.mu.Unlock()
}

func (op *resolveOperation) pop() {
	op.mu.Lock()
	op.stack = op.stack[:len(op.stack)-1]
	op.mu.Unlock()
}

// building reports whether reg is under construction anywhere in the chain.
func (op *resolveOperation) building(reg *Registration) bool {
	for _, o := range op.chain() {
		if o.onStack(reg) {
			return true
		}
	}
	return false
}

func (op *resolveOperation) onStack(reg *Registration) bool {
	op.mu.Lock()
	defer op.mu.Unlock()
	for _, frame := range op.stack {
		if frame.reg.ID == reg.ID {
			return true
		}
	}
	return false
}

// blockedBy reports whether waiting for entry would never end: the entry is
// built by this chain, or by an operation that waits, directly or through
// others, on an entry this chain builds. The caller holds container.waits.
func (op *resolveOperation) blockedBy(entry *sharedEntry) bool {
	self := op.root()
	seen := make(map[*resolveOperation]bool)
	for e := entry; e != nil && e.builder != nil; {
		b := e.builder.root()
		if b == self {
			return true
		}
		if seen[b] {
			return false
		}
		seen[b] = true
		e = b.waiting
	}
	return false
}

// execute resolves a single-service request from scope.
func (op *resolveOperation) execute(scope *LifetimeScope, req Request) (any, error) {
	svc := req.Service
	if svc.Type == nil {
		return nil, ErrServiceNotRegistered(svc)
	}

	reg := op.container.registry
	regs := reg.catalog.lookup(svc)
	if len(regs) == 0 && isRelationship(svc.Type) {
		return op.relationship(scope, svc)
	}
	if len(regs) == 0 {
		regs = reg.defaults(svc)
	}
	if req.Filter != nil {
		regs = filterRegistrations(regs, req.Filter)
	}

	if len(regs) == 0 {
		if svc.Type.Kind() == reflect.Slice {
			return op.implicitCollection(scope, svc, req.Filter)
		}
		if req.Optional {
			return nil, nil
		}
		return nil, ErrServiceNotRegistered(svc)
	}

	return op.resolveRegistration(scope, regs[0], svc, req.Parameters)
}

// resolveDefault resolves the default registration of svc and reports which
// registration served it.
func (op *resolveOperation) resolveDefault(scope *LifetimeScope, svc Service) (any, *Registration, error) {
	regs := op.container.registry.defaults(svc)
	if len(regs) == 0 {
		return nil, nil, ErrServiceNotRegistered(svc)
	}

	instance, err := op.resolveRegistration(scope, regs[0], svc, nil)
	if err != nil {
		return nil, nil, err
	}
	return instance, regs[0], nil
}

// collection resolves every registration contributing to svc.
func (op *resolveOperation) collection(scope *LifetimeScope, svc Service, filter MetadataFilter) ([]Resolved, error) {
	regs := op.container.registry.collection(svc)
	out := make([]Resolved, 0, len(regs))
	for _, reg := range regs {
		if filter != nil && !filter(reg.Metadata) {
			continue
		}
		instance, err := op.resolveRegistration(scope, reg, svc, nil)
		if err != nil {
			return nil, err
		}
		out = append(out, Resolved{Instance: instance, Registration: reg})
	}
	return out, nil
}

// implicitCollection resolves a slice type that is not registered itself as
// the collection of its element type.
func (op *resolveOperation) implicitCollection(scope *LifetimeScope, svc Service, filter MetadataFilter) (any, error) {
	elem := Service{Type: svc.Type.Elem(), Key: svc.Key}
	items, err := op.collection(scope, elem, filter)
	if err != nil {
		return nil, err
	}

	slice := reflect.MakeSlice(svc.Type, 0, len(items))
	for _, item := range items {
		v, err := coerce(item.Instance, elem.Type)
		if err != nil {
			return nil, ErrTypeMismatch(elem, item.Instance)
		}
		slice = reflect.Append(slice, v)
	}
	return slice.Interface(), nil
}

// resolveRegistration applies decorators to reg, then shares or activates it.
func (op *resolveOperation) resolveRegistration(scope *LifetimeScope, reg *Registration, svc Service, params []Parameter) (any, error) {
	return op.share(scope, op.container.registry.decorate(reg, svc), svc, params)
}

// share returns the shared instance of reg from its owning scope, activating
// it on first use. Transient registrations are activated every time.
func (op *resolveOperation) share(scope *LifetimeScope, reg *Registration, svc Service, params []Parameter) (any, error) {
	// The stack must be checked before waiting for a shared instance: the
	// entry may be the one this very chain is building.
	if op.building(reg) {
		return nil, ErrCircularDependency(op.path(svc))
	}

	op.push(activationFrame{reg: reg, svc: svc})
	defer op.pop()

	owner, err := scope.owningScope(reg, svc)
	if err != nil {
		return nil, err
	}

	if !reg.Lifetime.shared() {
		return op.activate(scope, reg, svc, params)
	}

	return owner.sharedInstance(op, reg, svc, func() (any, error) {
		return op.activate(owner, reg, svc, params)
	})
}

// path returns the services under construction in the chain, outermost
// first, followed by svc.
func (op *resolveOperation) path(svc Service) []Service {
	ops := op.chain()
	var path []Service
	for i := len(ops) - 1; i >= 0; i-- {
		for _, frame := range ops[i].frames() {
			if n := len(path); n > 0 && path[n-1] == frame.svc {
				continue
			}
			path = append(path, frame.svc)
		}
	}
	return append(path, svc)
}

// activate runs the activation pipeline of reg in scope:
// preparing, activator, activating, tracking for release, activated.
func (op *resolveOperation) activate(scope *LifetimeScope, reg *Registration, svc Service, caller []Parameter) (any, error) {
	ctx := &ResolveContext{
		op:           op,
		scope:        scope,
		service:      svc,
		registration: reg,
		callerParams: caller,
	}

	if len(reg.onPreparing) > 0 {
		event := &PreparingEvent{Context: ctx, Registration: reg, Parameters: caller}
		for _, handler := range reg.onPreparing {
			if err := handler(event); err != nil {
				return nil, wrapActivation(svc, "preparing", err)
			}
		}
		ctx.callerParams = event.Parameters
	}

	params := make([]Parameter, 0, len(ctx.callerParams)+len(reg.Parameters))
	params = append(params, ctx.callerParams...)
	params = append(params, reg.Parameters...)

	start := time.Now()

	instance, err := reg.Activator(ctx, params)
	if err != nil {
		return nil, wrapActivation(svc, "activation", err)
	}

	if len(reg.onActivating) > 0 {
		event := &ActivatingEvent{Context: ctx, Registration: reg, Parameters: params, Instance: instance}
		for _, handler := range reg.onActivating {
			if err := handler(event); err != nil {
				return nil, wrapActivation(svc, "activating", err)
			}
		}
		instance = event.Instance
	}

	if !ctx.untracked && reg.needsRelease(instance) {
		if err := scope.track(reg, svc, instance); err != nil {
			return nil, err
		}
	}

	if len(reg.onActivated) > 0 {
		event := &ActivatedEvent{Context: ctx, Registration: reg, Instance: instance}
		for _, handler := range reg.onActivated {
			if err := handler(event); err != nil {
				return nil, wrapActivation(svc, "activated", err)
			}
		}
	}

	op.container.middleware.onActivation(op.ctx, ActivationInfo{
		RegistrationID: reg.ID,
		Service:        svc,
		Lifetime:       reg.Lifetime,
		Description:    reg.Description,
		ScopeTag:       scope.tag,
		Start:          start,
		Duration:       time.Since(start),
	})

	return instance, nil
}

// relationship builds a relationship type (Lazy, Owned, Func, ...) for svc.
func (op *resolveOperation) relationship(scope *LifetimeScope, svc Service) (any, error) {
	ctx := &ResolveContext{op: op, scope: scope, service: svc}

	t := svc.Type
	if t.Kind() == reflect.Ptr && t.Implements(relationshipType) {
		v := reflect.New(t.Elem())
		if err := v.Interface().(relationship).relate(ctx, svc.Key); err != nil {
			return nil, err
		}
		return v.Interface(), nil
	}

	v := reflect.New(t)
	if err := v.Interface().(relationship).relate(ctx, svc.Key); err != nil {
		return nil, err
	}
	return v.Elem().Interface(), nil
}

// wrapActivation wraps errors from activators and hooks, passing container
// errors through unchanged.
func wrapActivation(svc Service, stage string, err error) error {
	if hasCode(err) {
		return err
	}
	return ErrActivationFailed(svc, stage, err)
}

// filterRegistrations keeps the registrations whose metadata is accepted.
func filterRegistrations(regs []*Registration, filter MetadataFilter) []*Registration {
	out := make([]*Registration, 0, len(regs))
	for _, reg := range regs {
		if filter(reg.Metadata) {
			out = append(out, reg)
		}
	}
	return out
}
