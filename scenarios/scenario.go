// Package scenarios contains small self-contained programs that each
// demonstrate one feature of the keel container. They share no state; every
// run builds and disposes its own container.
package scenarios

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/xraph/keel"
)

// Config holds the settings scenarios read.
type Config struct {
	// ObeySpeedLimit selects the driver registered by the transport module.
	ObeySpeedLimit bool `yaml:"obey_speed_limit" mapstructure:"obey_speed_limit"`

	// LogLevel is the level of the container logger (debug, info, warn, error).
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`

	// Output is "stdout" or the path of a file scenario output is written to.
	Output string `yaml:"output" mapstructure:"output"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		ObeySpeedLimit: true,
		LogLevel:       "info",
		Output:         "stdout",
	}
}

// LoadConfig reads a YAML configuration on top of DefaultConfig. An empty
// document yields the defaults; unknown keys are rejected.
func LoadConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse scenario config: %w", err)
	}
	return cfg, nil
}

// Settings returns the configuration keyed by its setting names.
func (c Config) Settings() map[string]any {
	return map[string]any{
		"obey_speed_limit": c.ObeySpeedLimit,
		"log_level":        c.LogLevel,
		"output":           c.Output,
	}
}

// Env is what a scenario runs against.
type Env struct {
	Out    io.Writer
	Logger *zap.Logger
	Config Config
}

// builderOptions returns the container options every scenario uses.
func (e Env) builderOptions(extra ...keel.BuilderOption) []keel.BuilderOption {
	logger := e.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return append([]keel.BuilderOption{keel.WithLogger(logger)}, extra...)
}

func (e Env) printf(format string, args ...any) {
	fmt.Fprintf(e.Out, format+"\n", args...)
}

// Scenario is one runnable demonstration.
type Scenario struct {
	Name    string
	Summary string
	Run     func(ctx context.Context, env Env) error
}

var registry = map[string]Scenario{}

func register(s Scenario) {
	if _, dup := registry[s.Name]; dup {
		panic("scenarios: duplicate scenario " + s.Name)
	}
	registry[s.Name] = s
}

// order lists the scenarios the way All returns them; the three original
// demos first, then one scenario per container feature.
var order = []string{
	"base",
	"configuration",
	"advanced",
	"keyed",
	"metadata",
	"decorators",
	"scopes",
	"owned",
	"activation",
	"delegates",
	"adapters",
}

// All returns every scenario in a stable order.
func All() []Scenario {
	out := make([]Scenario, 0, len(registry))
	seen := make(map[string]bool, len(order))
	for _, name := range order {
		if s, ok := registry[name]; ok {
			out = append(out, s)
			seen[name] = true
		}
	}

	var rest []string
	for name := range registry {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	for _, name := range rest {
		out = append(out, registry[name])
	}
	return out
}

// Find returns the scenario called name.
func Find(name string) (Scenario, bool) {
	s, ok := registry[name]
	return s, ok
}

// withContainer builds a container, runs fn and disposes the container.
func withContainer(env Env, configure func(b *keel.Builder) error, fn func(c *keel.Container) error, opts ...keel.BuilderOption) (err error) {
	c, err := keel.New(configure, env.builderOptions(opts...)...)
	if err != nil {
		return err
	}
	defer func() {
		if derr := c.Dispose(); derr != nil && err == nil {
			err = derr
		}
	}()
	return fn(c)
}
