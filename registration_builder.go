package keel

import (
	"fmt"
	"reflect"

	"github.com/google/uuid"
	"go.uber.org/multierr"
)

// RegistrationBuilder configures one registration. Every method returns the
// builder so calls can be chained; configuration errors are collected and
// reported by Err and by Builder.Build.
type RegistrationBuilder struct {
	reg      *Registration
	builder  *Builder
	implType reflect.Type
	ctor     *constructorInfo
	err      error
}

func newRegistrationBuilder(b *Builder, implType reflect.Type, description string) *RegistrationBuilder {
	return &RegistrationBuilder{
		builder:  b,
		implType: implType,
		reg: &Registration{
			ID:          newRegistrationID(),
			Lifetime:    Transient,
			Ownership:   OwnedByLifetimeScope,
			Description: description,
		},
	}
}

// fail records a configuration error.
func (rb *RegistrationBuilder) fail(err error) *RegistrationBuilder {
	rb.err = multierr.Append(rb.err, err)
	return rb
}

// modify applies fn unless the registration is already part of a built
// container.
func (rb *RegistrationBuilder) modify(fn func()) *RegistrationBuilder {
	if rb.builder != nil && rb.builder.catalog.isSealed() {
		return rb.fail(ErrContainerFrozen)
	}
	fn()
	return rb
}

// Err returns the configuration errors of this registration.
func (rb *RegistrationBuilder) Err() error {
	return rb.err
}

// ID returns the identifier of the registration.
func (rb *RegistrationBuilder) ID() uuid.UUID {
	return rb.reg.ID
}

// As exposes the registration as the given services. The produced type must
// be assignable to each service type.
func (rb *RegistrationBuilder) As(services ...Service) *RegistrationBuilder {
	return rb.modify(func() {
		for _, svc := range services {
			if err := rb.checkService(svc); err != nil {
				rb.fail(err)
				continue
			}
			rb.reg.Services = append(rb.reg.Services, svc)
		}
	})
}

func (rb *RegistrationBuilder) checkService(svc Service) error {
	if svc.Type == nil {
		return ErrInvalidRegistration(rb.reg.Description, fmt.Errorf("service type cannot be nil"))
	}
	if svc.Key != nil && !reflect.TypeOf(svc.Key).Comparable() {
		return ErrInvalidRegistration(rb.reg.Description,
			fmt.Errorf("service key of type %T is not comparable", svc.Key))
	}
	if rb.implType != nil && !rb.implType.AssignableTo(svc.Type) {
		return ErrInvalidRegistration(rb.reg.Description,
			fmt.Errorf("%s is not assignable to %s", rb.implType, svc.Type))
	}
	return nil
}

// AsSelf exposes the registration as its own concrete type, in addition to
// any service given to As.
func (rb *RegistrationBuilder) AsSelf() *RegistrationBuilder {
	if rb.implType == nil {
		return rb
	}
	return rb.As(Service{Type: rb.implType})
}

// Keyed exposes the registration as svc discriminated by key.
func (rb *RegistrationBuilder) Keyed(key any, svc Service) *RegistrationBuilder {
	return rb.As(svc.WithKey(key))
}

// Named exposes the registration as svc discriminated by a string name.
func (rb *RegistrationBuilder) Named(name string, svc Service) *RegistrationBuilder {
	return rb.Keyed(name, svc)
}

// WithMetadata attaches a metadata value to the registration.
func (rb *RegistrationBuilder) WithMetadata(key string, value any) *RegistrationBuilder {
	return rb.modify(func() {
		if rb.reg.Metadata == nil {
			rb.reg.Metadata = make(Metadata)
		}
		rb.reg.Metadata[key] = value
	})
}

// InstancePerDependency creates a new instance on every request. This is the
// default.
func (rb *RegistrationBuilder) InstancePerDependency() *RegistrationBuilder {
	return rb.withLifetime(Transient, nil)
}

// SingleInstance shares one instance across the whole container.
func (rb *RegistrationBuilder) SingleInstance() *RegistrationBuilder {
	return rb.withLifetime(SingleInstance, nil)
}

// InstancePerLifetimeScope shares one instance per lifetime scope.
func (rb *RegistrationBuilder) InstancePerLifetimeScope() *RegistrationBuilder {
	return rb.withLifetime(PerLifetimeScope, nil)
}

// InstancePerMatchingLifetimeScope shares one instance per scope tagged with
// one of tags; resolving outside such a scope fails with NoMatchingScope.
func (rb *RegistrationBuilder) InstancePerMatchingLifetimeScope(tags ...any) *RegistrationBuilder {
	if len(tags) == 0 {
		return rb.fail(ErrInvalidRegistration(rb.reg.Description, fmt.Errorf("at least one scope tag is required")))
	}
	for _, tag := range tags {
		if tag == nil {
			return rb.fail(ErrInvalidRegistration(rb.reg.Description, fmt.Errorf("scope tag cannot be nil")))
		}
	}
	return rb.withLifetime(PerMatchingScope, tags)
}

func (rb *RegistrationBuilder) withLifetime(l Lifetime, tags []any) *RegistrationBuilder {
	return rb.modify(func() {
		rb.reg.Lifetime = l
		rb.reg.MatchingTags = tags
	})
}

// ExternallyOwned stops the container from disposing the instances.
func (rb *RegistrationBuilder) ExternallyOwned() *RegistrationBuilder {
	return rb.modify(func() { rb.reg.Ownership = ExternallyOwned })
}

// OwnedByLifetimeScope makes the owning scope dispose the instances. This is
// the default for everything but RegisterInstance.
func (rb *RegistrationBuilder) OwnedByLifetimeScope() *RegistrationBuilder {
	return rb.modify(func() { rb.reg.Ownership = OwnedByLifetimeScope })
}

// WithParameter adds parameters used for every activation. Parameters passed
// to Resolve take precedence.
func (rb *RegistrationBuilder) WithParameter(params ...Parameter) *RegistrationBuilder {
	return rb.modify(func() {
		rb.reg.Parameters = append(rb.reg.Parameters, params...)
	})
}

// WithParameterNames declares the names of the constructor parameters, in
// order, so that NamedParameter values can bind to them.
func (rb *RegistrationBuilder) WithParameterNames(names ...string) *RegistrationBuilder {
	return rb.modify(func() {
		if rb.ctor == nil {
			rb.fail(ErrInvalidRegistration(rb.reg.Description,
				fmt.Errorf("parameter names require a constructor registration")))
			return
		}
		if err := rb.ctor.withNames(names); err != nil {
			rb.fail(ErrInvalidRegistration(rb.reg.Description, err))
		}
	})
}

// UsingConstructor builds instances with fn instead of the default
// activator. fn must return a value assignable to the registered type.
func (rb *RegistrationBuilder) UsingConstructor(fn any) *RegistrationBuilder {
	return rb.modify(func() {
		info, err := analyzeConstructor(fn)
		if err != nil {
			rb.fail(ErrInvalidRegistration(rb.reg.Description, err))
			return
		}
		if rb.implType != nil && !info.result.AssignableTo(rb.implType) {
			rb.fail(ErrInvalidRegistration(rb.reg.Description,
				fmt.Errorf("constructor returns %s, not assignable to %s", info.result, rb.implType)))
			return
		}

		rb.ctor = info
		rb.reg.Activator = info.activator(Service{Type: rb.implType})
		rb.reg.Dependencies = info.dependencies()
		rb.reg.Description = "constructor " + funcName(fn)
	})
}

// OnPreparing registers a handler run before the activator; it may add
// parameters.
func (rb *RegistrationBuilder) OnPreparing(handler func(*PreparingEvent) error) *RegistrationBuilder {
	return rb.modify(func() { rb.reg.onPreparing = append(rb.reg.onPreparing, handler) })
}

// OnActivating registers a handler run after the activator; it may replace
// the instance.
func (rb *RegistrationBuilder) OnActivating(handler func(*ActivatingEvent) error) *RegistrationBuilder {
	return rb.modify(func() { rb.reg.onActivating = append(rb.reg.onActivating, handler) })
}

// OnActivated registers a handler run once the instance is final.
func (rb *RegistrationBuilder) OnActivated(handler func(*ActivatedEvent) error) *RegistrationBuilder {
	return rb.modify(func() { rb.reg.onActivated = append(rb.reg.onActivated, handler) })
}

// OnRelease registers a handler run when the owning scope ends. It replaces
// the automatic disposal of the instance.
func (rb *RegistrationBuilder) OnRelease(handler func(instance any) error) *RegistrationBuilder {
	return rb.modify(func() { rb.reg.onRelease = append(rb.reg.onRelease, handler) })
}

// PreserveExistingDefaults keeps earlier registrations of the same services
// as the default. The registration still takes part in collections.
func (rb *RegistrationBuilder) PreserveExistingDefaults() *RegistrationBuilder {
	return rb.modify(func() { rb.reg.PreserveDefaults = true })
}

// AutoActivate resolves the registration as soon as the container is built.
func (rb *RegistrationBuilder) AutoActivate() *RegistrationBuilder {
	return rb.modify(func() { rb.reg.autoActivate = true })
}

// finalize applies defaults once configuration is over.
func (rb *RegistrationBuilder) finalize() error {
	if rb.err != nil {
		return rb.err
	}
	if rb.reg.Activator == nil {
		return ErrInvalidRegistration(rb.reg.Description, fmt.Errorf("no activator"))
	}
	if len(rb.reg.Services) == 0 {
		rb.reg.Services = []Service{{Type: rb.implType}}
	}
	return nil
}
