package keel

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// Test fixtures shared across the package tests.

type ILog interface {
	Write(message string)
}

type ConsoleLog struct {
	mu    sync.Mutex
	lines []string
}

func (l *ConsoleLog) Write(message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, message)
}

func (l *ConsoleLog) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines...)
}

type Engine struct {
	Log ILog
}

func NewEngine(log ILog) *Engine {
	return &Engine{Log: log}
}

type Car struct {
	Engine *Engine
	Log    ILog
}

func NewCar(engine *Engine, log ILog) *Car {
	return &Car{Engine: engine, Log: log}
}

// registerCar registers the ILog/Engine/Car graph with a single-instance log.
func registerCar(b *Builder) {
	RegisterType[*ConsoleLog](b).As(ServiceOf[ILog]()).SingleInstance()
	RegisterConstructor(b, NewEngine)
	RegisterConstructor(b, NewCar)
}

// disposable records its disposal in a shared journal.
type disposable struct {
	name    string
	journal *journal
	err     error
	count   atomic.Int32
}

func (d *disposable) Dispose() error {
	d.count.Add(1)
	d.journal.add(d.name)
	return d.err
}

// closer is released through io.Closer.
type closer struct {
	closed atomic.Bool
}

func (c *closer) Close() error {
	c.closed.Store(true)
	return nil
}

type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(entry string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

func (j *journal) String() string {
	return strings.Join(j.list(), ",")
}

// counter counts activations of a factory.
type counter struct {
	n atomic.Int32
}

func (c *counter) next() int {
	return int(c.n.Add(1))
}

func (c *counter) get() int {
	return int(c.n.Load())
}

type numbered struct {
	N int
}

// build builds a container from configure and disposes it when the test ends.
func build(t *testing.T, configure func(b *Builder), opts ...BuilderOption) *Container {
	t.Helper()

	b := NewBuilder(opts...)
	configure(b)
	c, err := b.Build()
	require.NoError(t, err)
	t.Cleanup(func() {
		if !c.IsDisposed() {
			_ = c.Dispose()
		}
	})
	return c
}

var errBoom = errors.New("boom")
