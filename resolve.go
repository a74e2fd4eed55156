package keel

// as converts a resolved instance to T.
func as[T any](svc Service, instance any) (T, error) {
	typed, ok := instance.(T)
	if !ok {
		var zero T
		if instance == nil {
			return zero, nil
		}
		return zero, ErrTypeMismatch(svc, instance)
	}
	return typed, nil
}

// Resolve resolves the default registration of T.
//
// Example:
//
//	car, err := keel.Resolve[*Car](container)
func Resolve[T any](r Resolver, params ...Parameter) (T, error) {
	return resolveAs[T](r, Request{Service: ServiceOf[T](), Parameters: params})
}

// MustResolve resolves T and panics on error.
// Use only during application startup, where failure should abort.
func MustResolve[T any](r Resolver, params ...Parameter) T {
	instance, err := Resolve[T](r, params...)
	if err != nil {
		panic(err)
	}
	return instance
}

// ResolveKeyed resolves the T registered under key.
func ResolveKeyed[T any](r Resolver, key any, params ...Parameter) (T, error) {
	return resolveAs[T](r, Request{Service: KeyedServiceOf[T](key), Parameters: params})
}

// ResolveNamed resolves the T registered under a string name.
func ResolveNamed[T any](r Resolver, name string, params ...Parameter) (T, error) {
	return ResolveKeyed[T](r, name, params...)
}

// ResolveOptional resolves T, reporting false instead of failing when nothing
// is registered.
func ResolveOptional[T any](r Resolver, params ...Parameter) (T, bool, error) {
	svc := ServiceOf[T]()
	instance, err := r.ResolveRequest(Request{Service: svc, Parameters: params, Optional: true})
	if err != nil || instance == nil {
		var zero T
		return zero, false, err
	}

	typed, err := as[T](svc, instance)
	return typed, err == nil, err
}

// ResolveWhere resolves the most recent T whose metadata is accepted by filter.
//
// Example:
//
//	svc, err := keel.ResolveWhere[Processor](c, keel.MetadataEquals("tier", "premium"))
func ResolveWhere[T any](r Resolver, filter MetadataFilter, params ...Parameter) (T, error) {
	return resolveAs[T](r, Request{Service: ServiceOf[T](), Parameters: params, Filter: filter})
}

// ResolveAll resolves every registration of T in registration order. It
// returns an empty slice when nothing is registered.
func ResolveAll[T any](r Resolver) ([]T, error) {
	return ResolveAllWhere[T](r, nil)
}

// ResolveAllWhere resolves every registration of T accepted by filter.
func ResolveAllWhere[T any](r Resolver, filter MetadataFilter) ([]T, error) {
	svc := ServiceOf[T]()
	items, err := r.ResolveCollection(svc, filter)
	if err != nil {
		return nil, err
	}

	out := make([]T, 0, len(items))
	for _, item := range items {
		typed, err := as[T](svc, item.Instance)
		if err != nil {
			return nil, err
		}
		out = append(out, typed)
	}
	return out, nil
}

// ResolveAllMeta resolves every registration of T together with its metadata.
func ResolveAllMeta[T any](r Resolver) ([]Meta[T], error) {
	svc := ServiceOf[T]()
	items, err := r.ResolveCollection(svc, nil)
	if err != nil {
		return nil, err
	}

	out := make([]Meta[T], 0, len(items))
	for _, item := range items {
		typed, err := as[T](svc, item.Instance)
		if err != nil {
			return nil, err
		}
		out = append(out, Meta[T]{Value: typed, Metadata: item.Registration.Metadata})
	}
	return out, nil
}

// IsRegistered reports whether T can be resolved.
func IsRegistered[T any](r Resolver) bool {
	return r.IsRegisteredService(ServiceOf[T]())
}

// IsRegisteredKeyed reports whether a T is registered under key.
func IsRegisteredKeyed[T any](r Resolver, key any) bool {
	return r.IsRegisteredService(KeyedServiceOf[T](key))
}

func resolveAs[T any](r Resolver, req Request) (T, error) {
	instance, err := r.ResolveRequest(req)
	if err != nil {
		var zero T
		return zero, err
	}
	return as[T](req.Service, instance)
}
