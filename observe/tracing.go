package observe

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/keel"
)

// Span names and attribute keys used by Tracing.
const (
	SpanResolve  = "keel.resolve"
	SpanActivate = "keel.activate"

	AttrService        = "keel.service"
	AttrLifetime       = "keel.lifetime"
	AttrRegistrationID = "keel.registration.id"
	AttrDescription    = "keel.registration.description"
	AttrScopeTag       = "keel.scope.tag"
	AttrActivations    = "keel.activations"

	EventScopeBegin = "keel.scope.begin"
	EventScopeEnd   = "keel.scope.end"
)

// Tracing is a keel.Middleware that emits one span per top-level resolve,
// with a child span for every instance built while serving it.
type Tracing struct {
	tracer  trace.Tracer
	pending sync.Map // context.Context -> *pendingResolve
}

type pendingResolve struct {
	mu          sync.Mutex
	activations []keel.ActivationInfo
}

// NewTracing creates tracing middleware using tp. A nil tp uses the global
// provider.
func NewTracing(tp trace.TracerProvider) *Tracing {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Tracing{tracer: tp.Tracer("github.com/xraph/keel")}
}

// BeforeResolve implements keel.Middleware.
func (t *Tracing) BeforeResolve(ctx context.Context, _ keel.Service) error {
	t.pending.Store(ctx, &pendingResolve{})
	return nil
}

// AfterResolve implements keel.Middleware.
func (t *Tracing) AfterResolve(ctx context.Context, svc keel.Service, _ any, err error) error {
	var activations []keel.ActivationInfo
	if v, ok := t.pending.LoadAndDelete(ctx); ok {
		p := v.(*pendingResolve)
		p.mu.Lock()
		activations = p.activations
		p.mu.Unlock()
	}

	start, ok := keel.ResolveStart(ctx)
	if !ok {
		start = time.Now()
	}

	spanCtx, span := t.tracer.Start(ctx, SpanResolve,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithTimestamp(start),
		trace.WithAttributes(
			attribute.String(AttrService, svc.String()),
			attribute.Int(AttrActivations, len(activations)),
		),
	)

	for _, info := range activations {
		_, child := t.tracer.Start(spanCtx, SpanActivate,
			trace.WithSpanKind(trace.SpanKindInternal),
			trace.WithTimestamp(info.Start),
			trace.WithAttributes(
				attribute.String(AttrService, info.Service.String()),
				attribute.String(AttrLifetime, info.Lifetime.String()),
				attribute.String(AttrRegistrationID, info.RegistrationID.String()),
				attribute.String(AttrDescription, info.Description),
				attribute.String(AttrScopeTag, fmt.Sprint(info.ScopeTag)),
			),
		)
		child.End(trace.WithTimestamp(info.Start.Add(info.Duration)))
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()

	return nil
}

// OnActivation implements keel.Middleware.
func (t *Tracing) OnActivation(ctx context.Context, info keel.ActivationInfo) {
	v, ok := t.pending.Load(ctx)
	if !ok {
		return
	}
	p := v.(*pendingResolve)
	p.mu.Lock()
	p.activations = append(p.activations, info)
	p.mu.Unlock()
}

// OnScopeBegin implements keel.Middleware.
func (t *Tracing) OnScopeBegin(tag any) {
	t.scopeEvent(EventScopeBegin, tag)
}

// OnScopeEnd implements keel.Middleware.
func (t *Tracing) OnScopeEnd(tag any) {
	t.scopeEvent(EventScopeEnd, tag)
}

func (t *Tracing) scopeEvent(name string, tag any) {
	_, span := t.tracer.Start(context.Background(), name,
		trace.WithAttributes(attribute.String(AttrScopeTag, fmt.Sprint(tag))),
	)
	span.End()
}
