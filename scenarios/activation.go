package scenarios

import (
	"context"
	"fmt"
	"io"

	"github.com/xraph/keel"
)

// Cache is configured by activation hooks and closed on release.
type Cache struct {
	Name    string
	Size    int
	Warm    bool
	entries map[string]string
}

// NewCache creates a cache of the given size.
func NewCache(name string, size int) *Cache {
	return &Cache{Name: name, Size: size, entries: make(map[string]string, size)}
}

// Warmer fills a cache after it has been built.
type Warmer struct {
	Out io.Writer `inject:""`
}

func (w *Warmer) warm(c *Cache) {
	c.entries["greeting"] = "hello"
	c.Warm = true
	fmt.Fprintf(w.Out, "cache %s warmed\n", c.Name)
}

func init() {
	register(Scenario{
		Name:    "activation",
		Summary: "Parameters and activation hooks around instance construction",
		Run:     runActivation,
	})
	register(Scenario{
		Name:    "delegates",
		Summary: "Lazy values and factory delegates with late-bound arguments",
		Run:     runDelegates,
	})
}

func runActivation(_ context.Context, env Env) error {
	return withContainer(env, func(b *keel.Builder) error {
		keel.RegisterInstance[io.Writer](b, env.Out)
		keel.RegisterType[*Warmer](b).SingleInstance()

		keel.RegisterConstructor(b, NewCache).
			WithParameterNames("name", "size").
			WithParameter(keel.NamedParam("name", "sessions"), keel.TypedAs(16)).
			SingleInstance().
			OnPreparing(func(e *keel.PreparingEvent) error {
				env.printf("preparing cache")
				return nil
			}).
			OnActivating(func(e *keel.ActivatingEvent) error {
				cache := e.Instance.(*Cache)
				if cache.Size > 8 {
					env.printf("capping cache size %d to 8", cache.Size)
					cache.Size = 8
				}
				return nil
			}).
			OnActivated(func(e *keel.ActivatedEvent) error {
				w, err := keel.Resolve[*Warmer](e.Context)
				if err != nil {
					return err
				}
				w.warm(e.Instance.(*Cache))
				return nil
			}).
			OnRelease(func(instance any) error {
				env.printf("cache %s released", instance.(*Cache).Name)
				return nil
			}).
			AutoActivate()
		return nil
	}, func(c *keel.Container) error {
		env.printf("container built")

		cache, err := keel.Resolve[*Cache](c)
		if err != nil {
			return err
		}
		env.printf("cache %s size %d warm %t", cache.Name, cache.Size, cache.Warm)

		custom, err := keel.Resolve[*Cache](c, keel.NamedParam("name", "ignored"))
		if err != nil {
			return err
		}
		env.printf("single instance reused: %t", custom == cache)
		return nil
	})
}

// Shipment is built per call with a caller-supplied destination and weight.
type Shipment struct {
	Destination string
	Weight      float64
	Log         ILog
}

// NewShipment creates a shipment.
func NewShipment(destination string, weight float64, log ILog) *Shipment {
	return &Shipment{Destination: destination, Weight: weight, Log: log}
}

// Dispatcher creates shipments on demand.
type Dispatcher struct {
	newShipment keel.Func2[string, float64, *Shipment]
	engine      *keel.Lazy[*Engine]
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(newShipment keel.Func2[string, float64, *Shipment], engine *keel.Lazy[*Engine]) *Dispatcher {
	return &Dispatcher{newShipment: newShipment, engine: engine}
}

// Ship sends a shipment to destination.
func (d *Dispatcher) Ship(destination string, weight float64) error {
	s, err := d.newShipment(destination, weight)
	if err != nil {
		return err
	}
	s.Log.Write(fmt.Sprintf("shipping %.1fkg to %s", s.Weight, s.Destination))
	return nil
}

func runDelegates(_ context.Context, env Env) error {
	return withContainer(env, func(b *keel.Builder) error {
		registerVehicle(b, env)
		keel.RegisterConstructor(b, NewShipment)
		keel.RegisterConstructor(b, NewDispatcher).SingleInstance()
		return nil
	}, func(c *keel.Container) error {
		d, err := keel.Resolve[*Dispatcher](c)
		if err != nil {
			return err
		}

		if err := d.Ship("Lisbon", 12.5); err != nil {
			return err
		}
		if err := d.Ship("Oslo", 3); err != nil {
			return err
		}

		env.printf("engine built before use: %t", d.engine.IsResolved())
		engine, err := d.engine.Get()
		if err != nil {
			return err
		}
		engine.Ahead(10)
		env.printf("engine built after use: %t", d.engine.IsResolved())
		return nil
	})
}
