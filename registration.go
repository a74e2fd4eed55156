package keel

import (
	"io"

	"github.com/google/uuid"
	"github.com/xraph/go-utils/di"
)

// Activator produces an instance for a registration. ctx resolves further
// dependencies within the current activation; params are the explicit
// parameters of the request followed by the registration's own.
type Activator func(ctx *ResolveContext, params []Parameter) (any, error)

// Disposable is implemented by instances that release resources when their
// owning lifetime scope ends.
type Disposable = di.Disposable

// Registration describes how to produce instances for one or more services.
// It is immutable once the container has been built.
type Registration struct {
	ID           uuid.UUID
	Services     []Service
	Activator    Activator
	Lifetime     Lifetime
	MatchingTags []any
	Ownership    Ownership
	Metadata     Metadata
	Parameters   []Parameter

	// PreserveDefaults keeps earlier registrations of the same services as
	// the default; this registration is still part of collections.
	PreserveDefaults bool

	// Dependencies lists the services a constructor registration declares.
	// Factory registrations leave it empty.
	Dependencies []Service

	// Target is the registration this one was synthesized from by a
	// decorator, adapter or source; nil for registrations made on a Builder.
	Target *Registration

	// Description is a short diagnostic label such as "constructor main.NewCar".
	Description string

	onPreparing  []func(*PreparingEvent) error
	onActivating []func(*ActivatingEvent) error
	onActivated  []func(*ActivatedEvent) error
	onRelease    []func(instance any) error

	autoActivate bool
	seq          uint64
}

// PreparingEvent is raised before the activator runs. Handlers may add
// parameters for the activation.
type PreparingEvent struct {
	Context      *ResolveContext
	Registration *Registration
	Parameters   []Parameter
}

// ActivatingEvent is raised after the activator returns and before the
// instance is exposed. Handlers may replace the instance.
type ActivatingEvent struct {
	Context      *ResolveContext
	Registration *Registration
	Parameters   []Parameter
	Instance     any
}

// ReplaceInstance substitutes the instance that will be handed out.
func (e *ActivatingEvent) ReplaceInstance(instance any) {
	e.Instance = instance
}

// ActivatedEvent is raised once the final instance is known.
type ActivatedEvent struct {
	Context      *ResolveContext
	Registration *Registration
	Instance     any
}

// Exposes reports whether the registration provides svc.
func (r *Registration) Exposes(svc Service) bool {
	for _, s := range r.Services {
		if s == svc {
			return true
		}
	}
	return false
}

// Root follows Target links back to the registration made on the builder.
func (r *Registration) Root() *Registration {
	reg := r
	for reg.Target != nil {
		reg = reg.Target
	}
	return reg
}

// needsRelease reports whether the scope must track instance for teardown.
func (r *Registration) needsRelease(instance any) bool {
	if len(r.onRelease) > 0 {
		return true
	}
	if r.Ownership == ExternallyOwned || instance == nil {
		return false
	}
	return isDisposable(instance)
}

func isDisposable(instance any) bool {
	switch instance.(type) {
	case Disposable, io.Closer:
		return true
	}
	return false
}

// derive copies the sharing and ownership policy of r into a synthesized
// registration exposing svc.
func (r *Registration) derive(svc Service, activator Activator, description string) *Registration {
	return &Registration{
		ID:           newRegistrationID(),
		Services:     []Service{svc},
		Activator:    activator,
		Lifetime:     r.Lifetime,
		MatchingTags: r.MatchingTags,
		Ownership:    r.Ownership,
		Metadata:     r.Metadata,
		Dependencies: r.Dependencies,
		Target:       r,
		Description:  description,
		seq:          r.seq,
	}
}

func newRegistrationID() uuid.UUID {
	return uuid.New()
}
