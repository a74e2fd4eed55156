package scenarios

import (
	"context"
	"fmt"
	"io"

	"github.com/xraph/keel"
)

// IVehicle is something that can go.
type IVehicle interface {
	Go()
}

// IDriver drives a vehicle.
type IDriver interface {
	Drive()
}

// Truck is driven by whichever driver the container provides.
type Truck struct {
	driver IDriver
}

// NewTruck creates a truck.
func NewTruck(driver IDriver) *Truck {
	return &Truck{driver: driver}
}

// Go implements IVehicle.
func (t *Truck) Go() {
	t.driver.Drive()
}

// SaneDriver keeps to the speed limit.
type SaneDriver struct {
	Out io.Writer `inject:""`
}

// Drive implements IDriver.
func (d *SaneDriver) Drive() {
	fmt.Fprintln(d.Out, "Driving safely to destination")
}

// CrazyDriver does not.
type CrazyDriver struct {
	Out io.Writer `inject:""`
}

// Drive implements IDriver.
func (d *CrazyDriver) Drive() {
	fmt.Fprintln(d.Out, "Going too fast and crashing into a tree")
}

// TransportModule registers a truck and the driver selected by ObeySpeedLimit.
type TransportModule struct {
	ObeySpeedLimit bool
}

// Load implements keel.Module.
func (m TransportModule) Load(b *keel.Builder) error {
	if m.ObeySpeedLimit {
		keel.RegisterType[*SaneDriver](b).As(keel.ServiceOf[IDriver]())
	} else {
		keel.RegisterType[*CrazyDriver](b).As(keel.ServiceOf[IDriver]())
	}

	return keel.RegisterConstructor(b, NewTruck).As(keel.ServiceOf[IVehicle]()).Err()
}

func init() {
	register(Scenario{
		Name:    "configuration",
		Summary: "A module whose registrations depend on its configuration",
		Run:     runConfiguration,
	})
}

func runConfiguration(_ context.Context, env Env) error {
	return withContainer(env, func(b *keel.Builder) error {
		keel.RegisterInstance[io.Writer](b, env.Out)
		return keel.RegisterModule(b, TransportModule{ObeySpeedLimit: env.Config.ObeySpeedLimit})
	}, func(c *keel.Container) error {
		vehicle, err := keel.Resolve[IVehicle](c)
		if err != nil {
			return err
		}
		vehicle.Go()
		return nil
	})
}
