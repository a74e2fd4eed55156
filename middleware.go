package keel

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Middleware provides hooks for intercepting container operations.
// Middleware can be used for logging, metrics, tracing, testing, etc.
type Middleware interface {
	// BeforeResolve is called before a top-level resolve.
	// Return error to abort resolution.
	BeforeResolve(ctx context.Context, svc Service) error

	// AfterResolve is called after a top-level resolve.
	// Called even if resolution failed (instance and err may both be set).
	AfterResolve(ctx context.Context, svc Service, instance any, err error) error

	// OnActivation is called each time an instance is built, including
	// dependencies built during a resolve.
	OnActivation(ctx context.Context, info ActivationInfo)

	// OnScopeBegin is called when a child lifetime scope starts.
	OnScopeBegin(tag any)

	// OnScopeEnd is called when a lifetime scope is disposed.
	OnScopeEnd(tag any)
}

// ActivationInfo describes one completed activation.
type ActivationInfo struct {
	RegistrationID uuid.UUID
	Service        Service
	Lifetime       Lifetime
	Description    string
	ScopeTag       any
	Start          time.Time
	Duration       time.Duration
}

type resolveStartKey struct{}

// ResolveStart returns the time the top-level resolve carried by ctx started.
// It is available to middleware.
func ResolveStart(ctx context.Context) (time.Time, bool) {
	start, ok := ctx.Value(resolveStartKey{}).(time.Time)
	return start, ok
}

// middlewareChain manages multiple middleware.
type middlewareChain struct {
	middleware []Middleware
}

// newMiddlewareChain creates a new middleware chain.
func newMiddlewareChain(mw ...Middleware) *middlewareChain {
	return &middlewareChain{
		middleware: append(make([]Middleware, 0, len(mw)), mw...),
	}
}

// beforeResolve calls BeforeResolve on all middleware.
func (m *middlewareChain) beforeResolve(ctx context.Context, svc Service) error {
	for _, mw := range m.middleware {
		if err := mw.BeforeResolve(ctx, svc); err != nil {
			return err
		}
	}
	return nil
}

// afterResolve calls AfterResolve on all middleware.
func (m *middlewareChain) afterResolve(ctx context.Context, svc Service, instance any, err error) error {
	for _, mw := range m.middleware {
		if mwErr := mw.AfterResolve(ctx, svc, instance, err); mwErr != nil {
			return mwErr
		}
	}
	return nil
}

func (m *middlewareChain) onActivation(ctx context.Context, info ActivationInfo) {
	for _, mw := range m.middleware {
		mw.OnActivation(ctx, info)
	}
}

func (m *middlewareChain) onScopeBegin(tag any) {
	for _, mw := range m.middleware {
		mw.OnScopeBegin(tag)
	}
}

func (m *middlewareChain) onScopeEnd(tag any) {
	for _, mw := range m.middleware {
		mw.OnScopeEnd(tag)
	}
}

// FuncMiddleware wraps functions as Middleware.
type FuncMiddleware struct {
	BeforeResolveFunc func(ctx context.Context, svc Service) error
	AfterResolveFunc  func(ctx context.Context, svc Service, instance any, err error) error
	OnActivationFunc  func(ctx context.Context, info ActivationInfo)
	OnScopeBeginFunc  func(tag any)
	OnScopeEndFunc    func(tag any)
}

// BeforeResolve implements Middleware.
func (f *FuncMiddleware) BeforeResolve(ctx context.Context, svc Service) error {
	if f.BeforeResolveFunc != nil {
		return f.BeforeResolveFunc(ctx, svc)
	}
	return nil
}

// AfterResolve implements Middleware.
func (f *FuncMiddleware) AfterResolve(ctx context.Context, svc Service, instance any, err error) error {
	if f.AfterResolveFunc != nil {
		return f.AfterResolveFunc(ctx, svc, instance, err)
	}
	return nil
}

// OnActivation implements Middleware.
func (f *FuncMiddleware) OnActivation(ctx context.Context, info ActivationInfo) {
	if f.OnActivationFunc != nil {
		f.OnActivationFunc(ctx, info)
	}
}

// OnScopeBegin implements Middleware.
func (f *FuncMiddleware) OnScopeBegin(tag any) {
	if f.OnScopeBeginFunc != nil {
		f.OnScopeBeginFunc(tag)
	}
}

// OnScopeEnd implements Middleware.
func (f *FuncMiddleware) OnScopeEnd(tag any) {
	if f.OnScopeEndFunc != nil {
		f.OnScopeEndFunc(tag)
	}
}
