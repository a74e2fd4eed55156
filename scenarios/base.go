package scenarios

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"

	"github.com/xraph/keel"
)

// ILog writes messages.
type ILog interface {
	Write(message string)
}

// ConsoleLog writes each message on its own line.
type ConsoleLog struct {
	Out io.Writer `inject:""`
}

// Write implements ILog.
func (l *ConsoleLog) Write(message string) {
	fmt.Fprintln(l.Out, message)
}

// Engine reports through the log it was built with.
type Engine struct {
	log ILog
	id  int
}

// NewEngine creates an engine with a random id.
func NewEngine(log ILog) *Engine {
	return &Engine{log: log, id: rand.IntN(1_000_000)}
}

// Ahead logs the engine moving ahead at power.
func (e *Engine) Ahead(power int) {
	e.log.Write(fmt.Sprintf("Engine [%d] ahead %d", e.id, power))
}

// Car drives its engine.
type Car struct {
	engine *Engine
	log    ILog
}

// NewCar creates a car.
func NewCar(engine *Engine, log ILog) *Car {
	return &Car{engine: engine, log: log}
}

// Go moves the car forward.
func (c *Car) Go() {
	c.engine.Ahead(100)
	c.log.Write("Car going forward")
}

// registerVehicle registers the log, engine and car used by several scenarios.
func registerVehicle(b *keel.Builder, env Env) {
	keel.RegisterInstance[io.Writer](b, env.Out)
	keel.RegisterType[*ConsoleLog](b).As(keel.ServiceOf[ILog]()).SingleInstance()
	keel.RegisterConstructor(b, NewEngine)
	keel.RegisterConstructor(b, NewCar)
}

func init() {
	register(Scenario{
		Name:    "base",
		Summary: "A car built from an engine and a shared console log",
		Run:     runBase,
	})
}

func runBase(_ context.Context, env Env) error {
	return withContainer(env, func(b *keel.Builder) error {
		registerVehicle(b, env)
		return nil
	}, func(c *keel.Container) error {
		car, err := keel.Resolve[*Car](c)
		if err != nil {
			return err
		}
		car.Go()

		if car.log != car.engine.log {
			return fmt.Errorf("car and engine were given different logs")
		}
		return nil
	})
}
