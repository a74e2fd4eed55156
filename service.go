package keel

import (
	"fmt"
	"reflect"
)

// Service identifies a requested dependency: a Go type plus an optional
// discriminator key. Two registrations may expose the same Service; the most
// recent one wins for single-instance requests.
type Service struct {
	Type reflect.Type
	Key  any // nil for unkeyed services; must be comparable
}

// ServiceOf returns the unkeyed Service for T. Interface types work as
// expected: ServiceOf[io.Reader]() names the interface, not a pointer to it.
func ServiceOf[T any]() Service {
	return Service{Type: typeOf[T]()}
}

// KeyedServiceOf returns the Service for T discriminated by key.
func KeyedServiceOf[T any](key any) Service {
	return Service{Type: typeOf[T](), Key: key}
}

// Named returns the Service for T discriminated by a string name.
func Named[T any](name string) Service {
	return KeyedServiceOf[T](name)
}

// TypedService returns the unkeyed Service for t.
func TypedService(t reflect.Type) Service {
	return Service{Type: t}
}

// IsKeyed reports whether the service carries a discriminator.
func (s Service) IsKeyed() bool {
	return s.Key != nil
}

// WithKey returns a copy of the service discriminated by key.
func (s Service) WithKey(key any) Service {
	return Service{Type: s.Type, Key: key}
}

// Unkeyed returns the service without its discriminator.
func (s Service) Unkeyed() Service {
	return Service{Type: s.Type}
}

// String returns a human-readable representation of the service.
func (s Service) String() string {
	typeName := "<nil>"
	if s.Type != nil {
		typeName = s.Type.String()
	}
	if s.Key == nil {
		return typeName
	}
	return fmt.Sprintf("%s[key=%v]", typeName, s.Key)
}

// cacheKey is a string identity used by the source memo cache. It includes the
// package path of named types so same-named types from different packages do
// not collide.
func (s Service) cacheKey() string {
	k := qualifiedTypeName(s.Type)
	if s.Key != nil {
		k += fmt.Sprintf("|%T|%v", s.Key, s.Key)
	}
	return k
}

func qualifiedTypeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	if t.Name() != "" && t.PkgPath() != "" {
		return t.PkgPath() + "." + t.Name()
	}
	switch t.Kind() {
	case reflect.Ptr:
		return "*" + qualifiedTypeName(t.Elem())
	case reflect.Slice:
		return "[]" + qualifiedTypeName(t.Elem())
	default:
		return t.String()
	}
}

func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// ServiceKey provides type-safe service identification.
// Use NewServiceKey to create typed keys for your services.
type ServiceKey[T any] struct {
	name string
}

// NewServiceKey creates a new typed service key.
// The type parameter T ensures type safety when registering and resolving services.
//
// Example:
//
//	var PrimaryDB = keel.NewServiceKey[*Database]("primary")
//	keel.RegisterConstructor(b, NewDatabase).Named(PrimaryDB.Name(), keel.ServiceOf[*Database]())
//	db, err := keel.ResolveWithKey(scope, PrimaryDB)
func NewServiceKey[T any](name string) ServiceKey[T] {
	return ServiceKey[T]{name: name}
}

// Name returns the string name of the service key.
func (k ServiceKey[T]) Name() string {
	return k.name
}

// Service returns the keyed Service the key stands for.
func (k ServiceKey[T]) Service() Service {
	return Named[T](k.name)
}

// ResolveWithKey resolves a service using a typed service key.
func ResolveWithKey[T any](r Resolver, key ServiceKey[T], params ...Parameter) (T, error) {
	return ResolveNamed[T](r, key.name, params...)
}

// MustWithKey resolves a service using a typed service key and panics on error.
func MustWithKey[T any](r Resolver, key ServiceKey[T]) T {
	result, err := ResolveWithKey(r, key)
	if err != nil {
		panic(err)
	}
	return result
}
