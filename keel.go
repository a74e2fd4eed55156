// Package keel is a dependency-injection container with Autofac-style
// registration and resolution.
//
// Registrations accumulate on a Builder and are sealed into a Container,
// the root of a tree of lifetime scopes:
//
//	b := keel.NewBuilder()
//	keel.RegisterType[*ConsoleLog](b).As(keel.ServiceOf[ILog]()).SingleInstance()
//	keel.RegisterConstructor(b, NewEngine)
//	keel.RegisterConstructor(b, NewCar)
//
//	c, err := b.Build()
//	if err != nil {
//	    return err
//	}
//	defer c.Dispose()
//
//	car, err := keel.Resolve[*Car](c)
//
// Each registration has a lifetime (transient, single instance, per lifetime
// scope or per matching scope) and an ownership that decides whether the
// scope owning an instance disposes it. Services can be keyed, carry
// metadata, be decorated or adapted, and be resolved as collections or
// through relationship types such as Lazy, Func, Owned and Meta.
package keel

// New builds a container from the registrations made by configure.
func New(configure func(b *Builder) error, opts ...BuilderOption) (*Container, error) {
	b := NewBuilder(opts...)
	if configure != nil {
		if err := configure(b); err != nil {
			return nil, err
		}
	}
	return b.Build()
}
