package keel

import (
	"fmt"
	"reflect"
)

// DecoratorContext describes the registration a decorator is about to wrap.
type DecoratorContext struct {
	// Service is the requested service.
	Service Service

	// Registration is the undecorated registration selected for Service.
	Registration *Registration

	// Applied lists the decorators already applied, innermost first.
	Applied []string
}

// DecoratorOption configures a decorator registration.
type DecoratorOption func(*decorator)

// DecorateKeyed restricts a decorator to the service registered under key.
func DecorateKeyed(key any) DecoratorOption {
	return func(d *decorator) {
		d.key = key
		d.keyed = true
	}
}

// When applies the decorator only to registrations accepted by pred. The
// decision is made once per registration and service.
func When(pred func(DecoratorContext) bool) DecoratorOption {
	return func(d *decorator) {
		d.when = pred
	}
}

// DecoratorLabel names the decorator in DecoratorContext.Applied and in
// registration descriptions.
func DecoratorLabel(label string) DecoratorOption {
	return func(d *decorator) {
		d.label = label
	}
}

// decorator wraps every instance of a service type.
type decorator struct {
	service reflect.Type
	key     any
	keyed   bool
	when    func(DecoratorContext) bool
	label   string
	fn      func(r Resolver, inner any) (any, error)
}

// appliesTo reports whether the decorator wraps svc at this point of the chain.
func (d *decorator) appliesTo(dc DecoratorContext) bool {
	if dc.Service.Type != d.service {
		return false
	}
	if d.keyed && !sameKey(dc.Service.Key, d.key) {
		return false
	}
	if d.when != nil && !d.when(dc) {
		return false
	}
	return true
}

// decorated builds the registration that applies decs, in order, to the
// instances of base. It keeps the lifetime of base, so a shared instance is
// decorated once per owning scope.
func decorated(base *Registration, svc Service, decs []*decorator) *Registration {
	labels := make([]string, len(decs))
	for i, d := range decs {
		labels[i] = d.label
	}

	return base.derive(svc, func(ctx *ResolveContext, _ []Parameter) (any, error) {
		inner, err := ctx.op.share(ctx.scope, base, svc, ctx.callerParams)
		if err != nil {
			return nil, err
		}

		instance := inner

		for _, d := range decs {
			instance, err = d.fn(ctx, instance)
			if err != nil {
				if hasCode(err) {
					return nil, err
				}
				return nil, ErrActivationFailed(svc, "decorator "+d.label, err)
			}
		}

		// The undecorated instance is already tracked by its own activation.
		ctx.untracked = sameInstance(inner, instance)
		return instance, nil
	}, fmt.Sprintf("%s decorated by %v", base.Description, labels))
}

// sameInstance reports whether a decorator chain handed back the instance it
// was given. Uncomparable values are compared by reference, or deeply when
// they have none.
func sameInstance(a, b any) bool {
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if !va.IsValid() || !vb.IsValid() {
		return va.IsValid() == vb.IsValid()
	}
	if va.Type() != vb.Type() {
		return false
	}
	if va.Comparable() {
		return va.Equal(vb)
	}
	switch va.Kind() {
	case reflect.Slice:
		return va.Pointer() == vb.Pointer() && va.Len() == vb.Len()
	case reflect.Map, reflect.Func:
		return va.Pointer() == vb.Pointer()
	}
	return reflect.DeepEqual(a, b)
}

// sameKey compares two service keys without panicking on uncomparable values.
func sameKey(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}
