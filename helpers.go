package keel

// RegisterSingleton is a convenience wrapper for single-instance factories.
func RegisterSingleton[T any](b *Builder, factory func(Resolver) (T, error)) *RegistrationBuilder {
	return RegisterFactory(b, factory).SingleInstance()
}

// RegisterTransient is a convenience wrapper for transient factories.
func RegisterTransient[T any](b *Builder, factory func(Resolver) (T, error)) *RegistrationBuilder {
	return RegisterFactory(b, factory).InstancePerDependency()
}

// RegisterScoped is a convenience wrapper for per-lifetime-scope factories.
func RegisterScoped[T any](b *Builder, factory func(Resolver) (T, error)) *RegistrationBuilder {
	return RegisterFactory(b, factory).InstancePerLifetimeScope()
}

// RegisterInterface registers a factory for the implementation T exposed as
// the interface I.
//
// Usage:
//
//	keel.RegisterInterface[ILog, *ConsoleLog](b, func(keel.Resolver) (*ConsoleLog, error) {
//	    return &ConsoleLog{}, nil
//	}).SingleInstance()
func RegisterInterface[I, T any](b *Builder, factory func(Resolver) (T, error)) *RegistrationBuilder {
	return RegisterFactory(b, factory).As(ServiceOf[I]())
}

// RegisterSingletonInterface registers a single-instance factory exposed as I.
func RegisterSingletonInterface[I, T any](b *Builder, factory func(Resolver) (T, error)) *RegistrationBuilder {
	return RegisterInterface[I](b, factory).SingleInstance()
}

// RegisterScopedInterface registers a per-lifetime-scope factory exposed as I.
func RegisterScopedInterface[I, T any](b *Builder, factory func(Resolver) (T, error)) *RegistrationBuilder {
	return RegisterInterface[I](b, factory).InstancePerLifetimeScope()
}

// RegisterTransientInterface registers a transient factory exposed as I.
func RegisterTransientInterface[I, T any](b *Builder, factory func(Resolver) (T, error)) *RegistrationBuilder {
	return RegisterInterface[I](b, factory).InstancePerDependency()
}
