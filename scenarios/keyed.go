package scenarios

import (
	"context"
	"fmt"
	"io"

	"github.com/xraph/keel"
)

// Notifier delivers a message over some channel.
type Notifier interface {
	Notify(message string)
}

// EmailNotifier notifies by email.
type EmailNotifier struct {
	Out io.Writer `inject:""`
}

// Notify implements Notifier.
func (n *EmailNotifier) Notify(message string) {
	fmt.Fprintf(n.Out, "email: %s\n", message)
}

// SMSNotifier notifies by text message.
type SMSNotifier struct {
	Out io.Writer `inject:""`
}

// Notify implements Notifier.
func (n *SMSNotifier) Notify(message string) {
	fmt.Fprintf(n.Out, "sms: %s\n", message)
}

// Channel keys of the keyed scenario.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Alerts picks a notifier per channel through an index.
type Alerts struct {
	notifiers keel.Index[Notifier]
}

// NewAlerts creates the alert dispatcher.
func NewAlerts(notifiers keel.Index[Notifier]) *Alerts {
	return &Alerts{notifiers: notifiers}
}

// Send notifies message over channel.
func (a *Alerts) Send(channel Channel, message string) error {
	n, err := a.notifiers.Get(channel)
	if err != nil {
		return err
	}
	n.Notify(message)
	return nil
}

var primaryNotifier = keel.NewServiceKey[Notifier]("primary")

func init() {
	register(Scenario{
		Name:    "keyed",
		Summary: "Several implementations of one service told apart by key",
		Run:     runKeyed,
	})
	register(Scenario{
		Name:    "metadata",
		Summary: "Choosing among registrations by the metadata attached to them",
		Run:     runMetadata,
	})
}

func runKeyed(_ context.Context, env Env) error {
	return withContainer(env, func(b *keel.Builder) error {
		keel.RegisterInstance[io.Writer](b, env.Out)
		keel.RegisterType[*EmailNotifier](b).Keyed(ChannelEmail, keel.ServiceOf[Notifier]())
		keel.RegisterType[*SMSNotifier](b).
			Keyed(ChannelSMS, keel.ServiceOf[Notifier]()).
			Named(primaryNotifier.Name(), keel.ServiceOf[Notifier]())
		keel.RegisterConstructor(b, NewAlerts)
		return nil
	}, func(c *keel.Container) error {
		email, err := keel.ResolveKeyed[Notifier](c, ChannelEmail)
		if err != nil {
			return err
		}
		email.Notify("resolved by key")

		primary, err := keel.ResolveWithKey(c, primaryNotifier)
		if err != nil {
			return err
		}
		primary.Notify("resolved by typed name")

		alerts, err := keel.Resolve[*Alerts](c)
		if err != nil {
			return err
		}
		if err := alerts.Send(ChannelSMS, "resolved through an index"); err != nil {
			return err
		}

		if keel.IsRegistered[Notifier](c) {
			return fmt.Errorf("unkeyed notifier should not be registered")
		}
		env.printf("unkeyed notifier registered: %t", false)
		return nil
	})
}

// Processor handles payments for one tier.
type Processor interface {
	Process(amount int) string
}

type tierProcessor struct{ tier string }

func (p *tierProcessor) Process(amount int) string {
	return fmt.Sprintf("%s processed %d", p.tier, amount)
}

func registerProcessor(b *keel.Builder, tier string, rate int) {
	keel.RegisterFactory(b, func(keel.Resolver) (*tierProcessor, error) {
		return &tierProcessor{tier: tier}, nil
	}).
		As(keel.ServiceOf[Processor]()).
		WithMetadata("tier", tier).
		WithMetadata("rate", rate)
}

func runMetadata(_ context.Context, env Env) error {
	return withContainer(env, func(b *keel.Builder) error {
		registerProcessor(b, "basic", 3)
		registerProcessor(b, "premium", 1)
		registerProcessor(b, "enterprise", 0)
		return nil
	}, func(c *keel.Container) error {
		all, err := keel.ResolveAllMeta[Processor](c)
		if err != nil {
			return err
		}
		for _, m := range all {
			env.printf("%s (rate %v)", m.Value.Process(100), m.Metadata["rate"])
		}

		premium, err := keel.ResolveWhere[Processor](c, keel.MetadataEquals("tier", "premium"))
		if err != nil {
			return err
		}
		env.printf("selected: %s", premium.Process(50))

		latest, err := keel.Resolve[keel.Meta[Processor]](c)
		if err != nil {
			return err
		}
		env.printf("default tier: %s", latest.Metadata.String("tier"))
		return nil
	})
}
