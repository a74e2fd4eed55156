package keel

import (
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// BuilderOption configures a Builder.
type BuilderOption func(*builderOptions)

type builderOptions struct {
	logger     *zap.Logger
	middleware []Middleware
	validate   bool
}

// WithLogger sets the logger used by the container. The default discards
// everything.
func WithLogger(logger *zap.Logger) BuilderOption {
	return func(o *builderOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMiddleware adds middleware to the container.
// Middleware is called in the order it is added.
func WithMiddleware(mw ...Middleware) BuilderOption {
	return func(o *builderOptions) {
		o.middleware = append(o.middleware, mw...)
	}
}

// WithValidation makes Build check the declared dependencies of constructor
// registrations for cycles before the container is returned.
func WithValidation() BuilderOption {
	return func(o *builderOptions) {
		o.validate = true
	}
}

// Builder accumulates registrations, sources, decorators and modules, and is
// sealed into a Container by Build.
type Builder struct {
	opts       builderOptions
	catalog    *catalog
	pending    []*RegistrationBuilder
	sources    []RegistrationSource
	decorators []*decorator
	callbacks  []func(*Container) error
	errs       []error
	built      bool
	mu         sync.Mutex
}

// NewBuilder creates an empty builder.
func NewBuilder(opts ...BuilderOption) *Builder {
	o := builderOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	return &Builder{
		opts:    o,
		catalog: newCatalog(),
	}
}

// Err returns the configuration errors recorded so far, combined.
func (b *Builder) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	err := multierr.Combine(b.errs...)
	for _, rb := range b.pending {
		err = multierr.Append(err, rb.err)
	}
	return err
}

// BuildCallback registers fn to run once the container has been built.
// A failing callback fails Build.
func (b *Builder) BuildCallback(fn func(*Container) error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.built {
		b.errs = append(b.errs, ErrContainerFrozen)
		return
	}
	b.callbacks = append(b.callbacks, fn)
}

// recordErr stores a configuration error reported by Build.
func (b *Builder) recordErr(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errs = append(b.errs, err)
}

// add registers a pending registration builder.
func (b *Builder) add(rb *RegistrationBuilder) *RegistrationBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.catalog.add(rb.reg); err != nil {
		rb.err = multierr.Append(rb.err, err)
		return rb
	}
	b.pending = append(b.pending, rb)
	return rb
}

func (b *Builder) addSource(src RegistrationSource) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.built {
		b.errs = append(b.errs, ErrContainerFrozen)
		return
	}
	b.sources = append(b.sources, src)
}

func (b *Builder) addDecorator(d *decorator) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.built {
		b.errs = append(b.errs, ErrContainerFrozen)
		return
	}
	if d.label == "" {
		d.label = fmt.Sprintf("decorator#%d", len(b.decorators)+1)
	}
	b.decorators = append(b.decorators, d)
}

// Build seals the builder and returns the container. Build fails when any
// registration was malformed, when validation finds a cycle, or when an
// auto-activated registration or build callback fails. A builder can be built
// once.
func (b *Builder) Build() (*Container, error) {
	b.mu.Lock()
	if b.built {
		b.mu.Unlock()
		return nil, ErrContainerFrozen
	}
	b.built = true

	err := multierr.Combine(b.errs...)
	for _, rb := range b.pending {
		err = multierr.Append(err, rb.finalize())
	}
	pending := b.pending
	callbacks := b.callbacks
	b.mu.Unlock()

	if err != nil {
		return nil, err
	}

	b.catalog.seal()

	logger := b.opts.logger.Named("keel")

	if b.opts.validate {
		graph := NewDependencyGraph()
		for _, reg := range b.catalog.all() {
			graph.AddRegistration(reg)
		}
		if _, err := graph.TopologicalSort(); err != nil {
			return nil, err
		}
	}

	c := &Container{
		registry:   newRegistry(b.catalog, b.sources, b.decorators, logger),
		middleware: newMiddlewareChain(b.opts.middleware...),
		logger:     logger,
	}
	c.LifetimeScope = newScope(c, nil, scopeOptions{tag: RootTag})

	logger.Debug("container built",
		zap.Int("registrations", len(pending)),
		zap.Int("sources", len(b.sources)),
		zap.Int("decorators", len(b.decorators)),
	)

	for _, rb := range pending {
		if !rb.reg.autoActivate {
			continue
		}
		reg := rb.reg
		svc := reg.Services[0]
		_, err := c.resolveTop(svc, nil, func(op *resolveOperation) (any, error) {
			return op.resolveRegistration(c.LifetimeScope, reg, svc, nil)
		})
		if err != nil {
			_ = c.Dispose()
			return nil, err
		}
	}

	for _, cb := range callbacks {
		if err := cb(c); err != nil {
			_ = c.Dispose()
			return nil, err
		}
	}

	return c, nil
}

// Container is the root lifetime scope of a built registration set. It is
// safe for concurrent use.
type Container struct {
	*LifetimeScope

	registry   *registry
	middleware *middlewareChain
	logger     *zap.Logger

	// waits guards the builders of shared entries and the entries
	// operations are waiting on.
	waits sync.Mutex
}

// Registrations returns the registrations made on the builder, in
// registration order.
func (c *Container) Registrations() []*Registration {
	return c.registry.catalog.all()
}

// SourceCount returns the number of registration sources, adapters included.
func (c *Container) SourceCount() int {
	return len(c.registry.sources)
}

// Dispose disposes the root scope and with it every open child scope and
// every container-owned instance.
func (c *Container) Dispose() error {
	err := c.LifetimeScope.Dispose()
	c.logger.Debug("container disposed", zap.Bool("clean", err == nil))
	return err
}
