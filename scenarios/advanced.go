package scenarios

import (
	"context"
	"fmt"
	"io"

	"github.com/xraph/keel"
)

// ICanSpeak says something.
type ICanSpeak interface {
	Speak()
}

// Person is never registered; the container builds it on demand.
type Person struct {
	Out io.Writer `inject:""`
}

// Speak implements ICanSpeak.
func (p *Person) Speak() {
	fmt.Fprintln(p.Out, "HELLO!")
}

func init() {
	register(Scenario{
		Name:    "advanced",
		Summary: "Resolving an unregistered concrete type through a registration source",
		Run:     runAdvanced,
	})
}

func runAdvanced(_ context.Context, env Env) error {
	return withContainer(env, func(b *keel.Builder) error {
		keel.RegisterInstance[io.Writer](b, env.Out)
		keel.RegisterSource(b, keel.AnyConcreteTypeSource{})
		return nil
	}, func(c *keel.Container) error {
		person, err := keel.Resolve[*Person](c)
		if err != nil {
			return err
		}
		person.Speak()
		return nil
	})
}
