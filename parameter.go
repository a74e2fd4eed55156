package keel

import (
	"fmt"
	"math"
	"reflect"
)

// ParameterInfo describes one constructor/factory parameter as seen by the
// binder: its declared name (if known), its Go type and its position.
type ParameterInfo struct {
	Name     string
	Type     reflect.Type
	Position int
	Optional bool
}

// String returns a human-readable representation of the parameter.
func (p ParameterInfo) String() string {
	if p.Name != "" {
		return fmt.Sprintf("#%d %s %s", p.Position, p.Name, p.Type)
	}
	return fmt.Sprintf("#%d %s", p.Position, p.Type)
}

// matchRank orders how strongly a parameter kind claims a slot. Lower ranks
// are tried first: by name, then by type, then by position, then custom.
type matchRank int

const (
	rankName matchRank = iota
	rankType
	rankPosition
	rankResolved
)

// Parameter supplies a value for a constructor or factory parameter. Values
// passed to Resolve take precedence over registration parameters, which take
// precedence over container resolution.
type Parameter interface {
	// CanSupply returns a value provider when the parameter applies to p.
	CanSupply(p ParameterInfo, r Resolver) (func() (any, error), bool)

	rank() matchRank
}

// Parameters is the explicit parameter set handed to a factory registered
// with RegisterFactoryWithParams.
type Parameters []Parameter

// NamedParameter matches a parameter by its declared name.
type NamedParameter struct {
	Name  string
	Value any
}

// NamedParam creates a NamedParameter.
func NamedParam(name string, value any) NamedParameter {
	return NamedParameter{Name: name, Value: value}
}

// CanSupply implements Parameter.
func (n NamedParameter) CanSupply(p ParameterInfo, _ Resolver) (func() (any, error), bool) {
	if p.Name == "" || p.Name != n.Name {
		return nil, false
	}
	return constant(n.Value), true
}

func (NamedParameter) rank() matchRank { return rankName }

// TypedParameter matches a parameter by its exact declared type.
type TypedParameter struct {
	Type  reflect.Type
	Value any
}

// TypedAs creates a TypedParameter for T. Use it for interface-typed
// parameters, where the dynamic type of the value differs from the declared one.
func TypedAs[T any](value T) TypedParameter {
	return TypedParameter{Type: typeOf[T](), Value: value}
}

// TypedParam creates a TypedParameter matching the dynamic type of value.
func TypedParam(value any) TypedParameter {
	return TypedParameter{Type: reflect.TypeOf(value), Value: value}
}

// CanSupply implements Parameter.
func (t TypedParameter) CanSupply(p ParameterInfo, _ Resolver) (func() (any, error), bool) {
	if t.Type == nil || p.Type != t.Type {
		return nil, false
	}
	return constant(t.Value), true
}

func (TypedParameter) rank() matchRank { return rankType }

// PositionalParameter matches a parameter by its zero-based position.
type PositionalParameter struct {
	Position int
	Value    any
}

// PositionalParam creates a PositionalParameter.
func PositionalParam(position int, value any) PositionalParameter {
	return PositionalParameter{Position: position, Value: value}
}

// CanSupply implements Parameter.
func (pp PositionalParameter) CanSupply(p ParameterInfo, _ Resolver) (func() (any, error), bool) {
	if p.Position != pp.Position {
		return nil, false
	}
	return constant(pp.Value), true
}

func (PositionalParameter) rank() matchRank { return rankPosition }

// ResolvedParameter supplies a value computed at bind time for every
// parameter accepted by Predicate.
type ResolvedParameter struct {
	Predicate func(p ParameterInfo, r Resolver) bool
	Value     func(p ParameterInfo, r Resolver) (any, error)
}

// CanSupply implements Parameter.
func (rp ResolvedParameter) CanSupply(p ParameterInfo, r Resolver) (func() (any, error), bool) {
	if rp.Predicate == nil || rp.Value == nil || !rp.Predicate(p, r) {
		return nil, false
	}
	return func() (any, error) { return rp.Value(p, r) }, true
}

func (ResolvedParameter) rank() matchRank { return rankResolved }

// ResolvedService binds every parameter accepted by match to the given
// service, typically a keyed one:
//
//	keel.RegisterConstructor(b, NewTruck).
//	    WithParameter(keel.ResolvedService(keel.ParamOfType[IDriver](), keel.Named[IDriver]("sane")))
func ResolvedService(match func(ParameterInfo) bool, svc Service) ResolvedParameter {
	return ResolvedParameter{
		Predicate: func(p ParameterInfo, _ Resolver) bool { return match(p) },
		Value: func(_ ParameterInfo, r Resolver) (any, error) {
			return r.ResolveService(svc)
		},
	}
}

// ParamNamed matches parameters by declared name.
func ParamNamed(name string) func(ParameterInfo) bool {
	return func(p ParameterInfo) bool { return p.Name == name }
}

// ParamOfType matches parameters declared as T.
func ParamOfType[T any]() func(ParameterInfo) bool {
	t := typeOf[T]()
	return func(p ParameterInfo) bool { return p.Type == t }
}

func constant(v any) func() (any, error) {
	return func() (any, error) { return v, nil }
}

// findParameter returns the provider of the best matching parameter, honouring
// the name > type > position > resolved precedence.
func findParameter(params []Parameter, p ParameterInfo, r Resolver) (func() (any, error), bool) {
	for rank := rankName; rank <= rankResolved; rank++ {
		for _, param := range params {
			if param == nil || param.rank() != rank {
				continue
			}
			if provide, ok := param.CanSupply(p, r); ok {
				return provide, true
			}
		}
	}
	return nil, false
}

// coerce converts a supplied value into a reflect.Value assignable to t.
func coerce(v any, t reflect.Type) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(t), nil
	}
	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(t) {
		if rv.Type() == t {
			return rv, nil
		}
		out := reflect.New(t).Elem()
		out.Set(rv)
		return out, nil
	}
	if isNumeric(rv.Kind()) && isNumeric(t.Kind()) {
		out := rv.Convert(t)
		if !roundTrips(rv, out) {
			return reflect.Value{}, fmt.Errorf("value %v of type %s does not fit %s", v, rv.Type(), t)
		}
		return out, nil
	}
	return reflect.Value{}, fmt.Errorf("value of type %s is not assignable to %s", rv.Type(), t)
}

// roundTrips reports whether converting out back to the type of in yields in,
// i.e. the numeric conversion lost nothing.
func roundTrips(in, out reflect.Value) bool {
	back := out.Convert(in.Type())
	if back.Equal(in) {
		return true
	}
	isFloat := in.Kind() == reflect.Float32 || in.Kind() == reflect.Float64
	return isFloat && math.IsNaN(in.Float()) && math.IsNaN(back.Float())
}

func isNumeric(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Float64
}

// NamedValue returns the value of the named parameter in ps.
func NamedValue[T any](ps Parameters, name string) (T, bool) {
	for _, p := range ps {
		if np, ok := p.(NamedParameter); ok && np.Name == name {
			return valueAs[T](np.Value)
		}
	}
	var zero T
	return zero, false
}

// TypedValue returns the value of the first typed parameter of type T in ps.
func TypedValue[T any](ps Parameters) (T, bool) {
	t := typeOf[T]()
	for _, p := range ps {
		if tp, ok := p.(TypedParameter); ok && tp.Type == t {
			return valueAs[T](tp.Value)
		}
	}
	var zero T
	return zero, false
}

// PositionalValue returns the value of the positional parameter at position in ps.
func PositionalValue[T any](ps Parameters, position int) (T, bool) {
	for _, p := range ps {
		if pp, ok := p.(PositionalParameter); ok && pp.Position == position {
			return valueAs[T](pp.Value)
		}
	}
	var zero T
	return zero, false
}

func valueAs[T any](v any) (T, bool) {
	typed, ok := v.(T)
	return typed, ok
}
