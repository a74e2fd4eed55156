package keel

import (
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"strings"
)

// RegisterType registers the concrete type T, a struct or pointer to struct.
// Instances are allocated zeroed and their fields tagged `inject` are
// resolved from the container:
//
//	type Car struct {
//	    Engine *Engine `inject:""`
//	    Log    ILog    `inject:"" optional:"true"`
//	}
//
//	keel.RegisterType[*Car](b)
//
// Use UsingConstructor to build T with a constructor function instead.
func RegisterType[T any](b *Builder) *RegistrationBuilder {
	t := typeOf[T]()
	rb := newRegistrationBuilder(b, t, fmt.Sprintf("type %s", t))

	info, err := analyzeStruct(t)
	if err != nil {
		return b.add(rb.fail(ErrInvalidRegistration(rb.reg.Description, err)))
	}

	rb.reg.Activator = info.activator(Service{Type: t})
	rb.reg.Dependencies = info.dependencies()

	return b.add(rb)
}

// RegisterConstructor registers a constructor function. Its parameters are
// resolved from the container, its first result is the instance and an
// optional second error result fails the activation. The registration is
// exposed as the result type unless As is used.
//
// Example:
//
//	keel.RegisterConstructor(b, func(log ILog) *Engine {
//	    return &Engine{log: log}
//	})
func RegisterConstructor(b *Builder, constructor any) *RegistrationBuilder {
	info, err := analyzeConstructor(constructor)
	if err != nil {
		rb := newRegistrationBuilder(b, nil, "constructor "+funcName(constructor))
		return b.add(rb.fail(ErrInvalidRegistration(rb.reg.Description, err)))
	}

	rb := newRegistrationBuilder(b, info.result, "constructor "+funcName(constructor))
	rb.ctor = info
	rb.reg.Activator = info.activator(Service{Type: info.result})
	rb.reg.Dependencies = info.dependencies()

	return b.add(rb)
}

// RegisterFactory registers a function building T from the container.
func RegisterFactory[T any](b *Builder, factory func(r Resolver) (T, error)) *RegistrationBuilder {
	t := typeOf[T]()
	rb := newRegistrationBuilder(b, t, fmt.Sprintf("factory %s", t))
	if factory == nil {
		return b.add(rb.fail(ErrInvalidRegistration(rb.reg.Description, errors.New("factory cannot be nil"))))
	}

	rb.reg.Activator = func(ctx *ResolveContext, _ []Parameter) (any, error) {
		return factory(ctx)
	}
	return b.add(rb)
}

// RegisterFactoryWithParams registers a function building T from the
// container and the explicit parameters of the request, followed by the
// parameters of the registration.
//
// Example:
//
//	keel.RegisterFactoryWithParams(b, func(r keel.Resolver, ps keel.Parameters) (*Car, error) {
//	    owner, _ := keel.NamedValue[string](ps, "owner")
//	    return &Car{Owner: owner}, nil
//	})
func RegisterFactoryWithParams[T any](b *Builder, factory func(r Resolver, params Parameters) (T, error)) *RegistrationBuilder {
	t := typeOf[T]()
	rb := newRegistrationBuilder(b, t, fmt.Sprintf("factory %s", t))
	if factory == nil {
		return b.add(rb.fail(ErrInvalidRegistration(rb.reg.Description, errors.New("factory cannot be nil"))))
	}

	rb.reg.Activator = func(ctx *ResolveContext, params []Parameter) (any, error) {
		return factory(ctx, params)
	}
	return b.add(rb)
}

// RegisterInstance registers an existing value. It is a single instance and
// externally owned: the container never disposes it unless
// OwnedByLifetimeScope is called.
func RegisterInstance[T any](b *Builder, instance T) *RegistrationBuilder {
	t := typeOf[T]()
	rb := newRegistrationBuilder(b, t, fmt.Sprintf("instance %s", t))
	rb.reg.Lifetime = SingleInstance
	rb.reg.Ownership = ExternallyOwned
	rb.reg.Activator = func(*ResolveContext, []Parameter) (any, error) {
		return instance, nil
	}
	return b.add(rb)
}

// RegisterSource adds a registration source consulted when a service has no
// direct registration. Sources are consulted in the order they are added.
func RegisterSource(b *Builder, src RegistrationSource) {
	if src == nil {
		b.recordErr(ErrInvalidRegistration("registration source", errors.New("source cannot be nil")))
		return
	}
	b.addSource(src)
}

// RegisterDecorator wraps every instance of T handed out by the container.
// Decorators apply in the order they are registered, the first one innermost.
//
// Example:
//
//	keel.RegisterDecorator(b, func(_ keel.Resolver, inner ILog) (ILog, error) {
//	    return &TimestampLog{inner: inner}, nil
//	}, keel.DecoratorLabel("timestamp"))
func RegisterDecorator[T any](b *Builder, fn func(r Resolver, inner T) (T, error), opts ...DecoratorOption) {
	t := typeOf[T]()
	if fn == nil {
		b.recordErr(ErrInvalidRegistration(fmt.Sprintf("decorator %s", t), errors.New("decorator cannot be nil")))
		return
	}

	d := &decorator{
		service: t,
		fn: func(r Resolver, inner any) (any, error) {
			typed, err := as[T](ServiceOf[T](), inner)
			if err != nil {
				return nil, err
			}
			return fn(r, typed)
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	b.addDecorator(d)
}

// RegisterAdapter provides a To for every registration of From. Each adapted
// registration carries the metadata of the registration it adapts and is
// transient; the From instance keeps its own lifetime.
func RegisterAdapter[From, To any](b *Builder, fn func(r Resolver, from From) (To, error)) {
	from, to := typeOf[From](), typeOf[To]()
	label := fmt.Sprintf("%s -> %s", from, to)
	if fn == nil {
		b.recordErr(ErrInvalidRegistration("adapter "+label, errors.New("adapter cannot be nil")))
		return
	}

	b.addSource(&adapterSource{
		from:  from,
		to:    to,
		label: from.String(),
		adapt: func(r Resolver, instance any) (any, error) {
			typed, err := as[From](Service{Type: from}, instance)
			if err != nil {
				return nil, err
			}
			return fn(r, typed)
		},
	})
}

// funcName returns the short name of a function value for descriptions.
func funcName(fn any) string {
	v := reflect.ValueOf(fn)
	if !v.IsValid() || v.Kind() != reflect.Func {
		return fmt.Sprintf("%T", fn)
	}
	f := runtime.FuncForPC(v.Pointer())
	if f == nil {
		return v.Type().String()
	}
	name := f.Name()
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return name
}
