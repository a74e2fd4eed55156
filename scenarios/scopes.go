package scenarios

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/xraph/keel"
)

// RequestTag tags the scope of one simulated request.
const RequestTag = "request"

var connectionSeq atomic.Int64

// Connection is a disposable per-scope resource.
type Connection struct {
	id  int64
	out io.Writer
}

// NewConnection opens a connection.
func NewConnection(out io.Writer) *Connection {
	c := &Connection{id: connectionSeq.Add(1), out: out}
	fmt.Fprintf(out, "connection %d opened\n", c.id)
	return c
}

// Dispose closes the connection.
func (c *Connection) Dispose() error {
	fmt.Fprintf(c.out, "connection %d closed\n", c.id)
	return nil
}

// UnitOfWork is shared by everything resolved within one request.
type UnitOfWork struct {
	Conn *Connection `inject:""`
}

// Repository works inside the unit of work of its request.
type Repository struct {
	Work *UnitOfWork `inject:""`
}

func init() {
	register(Scenario{
		Name:    "scopes",
		Summary: "Per-scope and per-request instances and their disposal",
		Run:     runScopes,
	})
	register(Scenario{
		Name:    "owned",
		Summary: "Owned instances that control the lifetime of their dependencies",
		Run:     runOwned,
	})
}

func registerData(b *keel.Builder, env Env) {
	keel.RegisterInstance[io.Writer](b, env.Out)
	keel.RegisterConstructor(b, NewConnection).InstancePerLifetimeScope()
	keel.RegisterType[*UnitOfWork](b).InstancePerMatchingLifetimeScope(RequestTag)
	keel.RegisterType[*Repository](b)
}

func runScopes(_ context.Context, env Env) error {
	return withContainer(env, func(b *keel.Builder) error {
		registerData(b, env)
		return nil
	}, func(c *keel.Container) error {
		for i := 1; i <= 2; i++ {
			request, err := c.BeginLifetimeScope(keel.WithTag(RequestTag))
			if err != nil {
				return err
			}

			nested, err := request.BeginLifetimeScope()
			if err != nil {
				return err
			}

			outer, err := keel.Resolve[*Repository](request)
			if err != nil {
				return err
			}
			inner, err := keel.Resolve[*Repository](nested)
			if err != nil {
				return err
			}

			env.printf("request %d: shared unit of work %t, connection %d",
				i, outer.Work == inner.Work, outer.Work.Conn.id)

			if err := request.Dispose(); err != nil {
				return err
			}
		}

		if _, err := keel.Resolve[*Repository](c); err != nil {
			env.printf("outside a request: %v", err)
		}
		return nil
	})
}

// ReportJob renders one report on a connection of its own.
type ReportJob struct {
	Conn *Connection `inject:""`
}

func runOwned(_ context.Context, env Env) error {
	return withContainer(env, func(b *keel.Builder) error {
		keel.RegisterInstance[io.Writer](b, env.Out)
		keel.RegisterConstructor(b, NewConnection).InstancePerLifetimeScope()
		keel.RegisterType[*ReportJob](b)
		return nil
	}, func(c *keel.Container) error {
		for i := 1; i <= 2; i++ {
			job, err := keel.Resolve[*keel.Owned[*ReportJob]](c)
			if err != nil {
				return err
			}
			env.printf("job %d running on connection %d", i, job.Value.Conn.id)
			if err := job.Dispose(); err != nil {
				return err
			}
		}
		return nil
	})
}
