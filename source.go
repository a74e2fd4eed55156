package keel

import (
	"fmt"
	"reflect"
)

// RegistrationAccessor returns the registrations made on the builder that
// expose a service, in registration order.
type RegistrationAccessor func(svc Service) []*Registration

// RegistrationSource synthesizes registrations for services that have no
// direct registration. Implementations must be free of side effects and
// return equivalent results for the same service; the container memoizes
// what they return.
type RegistrationSource interface {
	// RegistrationsFor returns the registrations the source can provide for svc.
	RegistrationsFor(svc Service, lookup RegistrationAccessor) []*Registration

	// IsAdapterForIndividualComponents reports whether the source derives one
	// registration per existing registration. Only such sources contribute to
	// collection requests.
	IsAdapterForIndividualComponents() bool
}

// AnyConcreteTypeSource provides a transient registration for any struct or
// pointer-to-struct type that has not been registered. Fields tagged `inject`
// are resolved from the container.
type AnyConcreteTypeSource struct {
	// Predicate restricts the eligible types; nil accepts every struct type.
	Predicate func(t reflect.Type) bool
}

// RegistrationsFor implements RegistrationSource.
func (s AnyConcreteTypeSource) RegistrationsFor(svc Service, lookup RegistrationAccessor) []*Registration {
	if svc.IsKeyed() || !isConstructible(svc.Type) || isRelationship(svc.Type) {
		return nil
	}
	if s.Predicate != nil && !s.Predicate(svc.Type) {
		return nil
	}
	if len(lookup(svc)) > 0 {
		return nil
	}

	info, err := analyzeStruct(svc.Type)
	if err != nil {
		return nil
	}

	return []*Registration{{
		ID:           newRegistrationID(),
		Services:     []Service{svc},
		Activator:    info.activator(svc),
		Lifetime:     Transient,
		Ownership:    OwnedByLifetimeScope,
		Dependencies: info.dependencies(),
		Description:  fmt.Sprintf("any concrete type %s", svc.Type),
	}}
}

// IsAdapterForIndividualComponents implements RegistrationSource.
func (AnyConcreteTypeSource) IsAdapterForIndividualComponents() bool {
	return false
}

// adapterSource turns every registration of one service type into a
// registration of another.
type adapterSource struct {
	from  reflect.Type
	to    reflect.Type
	adapt func(r Resolver, from any) (any, error)
	label string
}

func (a *adapterSource) RegistrationsFor(svc Service, lookup RegistrationAccessor) []*Registration {
	if svc.Type != a.to {
		return nil
	}

	fromSvc := Service{Type: a.from, Key: svc.Key}
	bases := lookup(fromSvc)
	if len(bases) == 0 {
		return nil
	}

	out := make([]*Registration, 0, len(bases))
	for _, base := range bases {
		base := base
		reg := base.derive(svc, func(ctx *ResolveContext, _ []Parameter) (any, error) {
			from, err := ctx.resolveRegistration(base, fromSvc, nil)
			if err != nil {
				return nil, err
			}
			return a.adapt(ctx, from)
		}, fmt.Sprintf("adapter %s -> %s", a.label, svc))

		// Adapted instances are transient; the adapted-from instance keeps its
		// own lifetime.
		reg.Lifetime = Transient
		reg.MatchingTags = nil
		reg.PreserveDefaults = base.PreserveDefaults
		out = append(out, reg)
	}
	return out
}

func (a *adapterSource) IsAdapterForIndividualComponents() bool {
	return true
}
