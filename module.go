package keel

import (
	"errors"
	"fmt"
)

// Module groups related registrations. Modules can carry configuration of
// their own, set before they are registered:
//
//	type TransportModule struct{ ObeySpeedLimit bool }
//
//	func (m TransportModule) Load(b *keel.Builder) error {
//	    if m.ObeySpeedLimit {
//	        keel.RegisterType[*SaneDriver](b).As(keel.ServiceOf[IDriver]())
//	    } else {
//	        keel.RegisterType[*CrazyDriver](b).As(keel.ServiceOf[IDriver]())
//	    }
//	    return nil
//	}
type Module interface {
	Load(b *Builder) error
}

// ModuleFunc adapts a function to Module.
type ModuleFunc func(b *Builder) error

// Load implements Module.
func (f ModuleFunc) Load(b *Builder) error {
	return f(b)
}

// RegisterModule loads m into b. A failing module is also reported by Build.
func RegisterModule(b *Builder, m Module) error {
	if m == nil {
		err := ErrInvalidRegistration("module", errors.New("module cannot be nil"))
		b.recordErr(err)
		return err
	}

	if err := m.Load(b); err != nil {
		wrapped := ErrInvalidRegistration(fmt.Sprintf("module %T", m), err)
		b.recordErr(wrapped)
		return wrapped
	}

	b.opts.logger.Debug("module loaded")

	return nil
}
