package scenarios

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/xraph/keel"
)

// Greeter produces a greeting.
type Greeter interface {
	Greet(name string) string
}

type plainGreeter struct{}

func (plainGreeter) Greet(name string) string {
	return "hello " + name
}

type politeGreeter struct{ inner Greeter }

func (g politeGreeter) Greet(name string) string {
	return g.inner.Greet(name) + ", nice to meet you"
}

type shoutingGreeter struct{ inner Greeter }

func (g shoutingGreeter) Greet(name string) string {
	return strings.ToUpper(g.inner.Greet(name)) + "!"
}

func init() {
	register(Scenario{
		Name:    "decorators",
		Summary: "Wrapping a service with decorators applied in registration order",
		Run:     runDecorators,
	})
	register(Scenario{
		Name:    "adapters",
		Summary: "Deriving one service from every registration of another",
		Run:     runAdapters,
	})
}

func runDecorators(_ context.Context, env Env) error {
	return withContainer(env, func(b *keel.Builder) error {
		keel.RegisterFactory(b, func(keel.Resolver) (Greeter, error) {
			return plainGreeter{}, nil
		}).SingleInstance()
		keel.RegisterFactory(b, func(keel.Resolver) (Greeter, error) {
			return plainGreeter{}, nil
		}).Named("loud", keel.ServiceOf[Greeter]())

		keel.RegisterDecorator(b, func(_ keel.Resolver, inner Greeter) (Greeter, error) {
			return politeGreeter{inner: inner}, nil
		}, keel.DecoratorLabel("polite"))
		keel.RegisterDecorator(b, func(_ keel.Resolver, inner Greeter) (Greeter, error) {
			return shoutingGreeter{inner: inner}, nil
		}, keel.DecorateKeyed("loud"), keel.DecoratorLabel("shouting"))
		return nil
	}, func(c *keel.Container) error {
		g, err := keel.Resolve[Greeter](c)
		if err != nil {
			return err
		}
		env.printf("%s", g.Greet("world"))

		loud, err := keel.ResolveNamed[Greeter](c, "loud")
		if err != nil {
			return err
		}
		env.printf("%s", loud.Greet("world"))
		return nil
	})
}

// Command is a named action.
type Command interface {
	Name() string
	Execute(out io.Writer)
}

type echoCommand struct{ name string }

func (c echoCommand) Name() string { return c.name }

func (c echoCommand) Execute(out io.Writer) {
	fmt.Fprintf(out, "executing %s\n", c.name)
}

// ToolbarButton triggers a command from the toolbar.
type ToolbarButton struct {
	Label   string
	command Command
}

// Click runs the command behind the button.
func (b *ToolbarButton) Click(out io.Writer) {
	b.command.Execute(out)
}

func runAdapters(_ context.Context, env Env) error {
	return withContainer(env, func(b *keel.Builder) error {
		for _, name := range []string{"save", "open", "print"} {
			keel.RegisterFactory(b, func(keel.Resolver) (Command, error) {
				return echoCommand{name: name}, nil
			}).WithMetadata("name", name)
		}

		keel.RegisterAdapter(b, func(_ keel.Resolver, cmd Command) (*ToolbarButton, error) {
			return &ToolbarButton{Label: strings.ToUpper(cmd.Name()), command: cmd}, nil
		})
		return nil
	}, func(c *keel.Container) error {
		buttons, err := keel.ResolveAll[*ToolbarButton](c)
		if err != nil {
			return err
		}
		for _, button := range buttons {
			env.printf("[%s]", button.Label)
			button.Click(env.Out)
		}
		return nil
	})
}
