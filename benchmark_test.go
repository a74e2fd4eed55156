package keel

import (
	"testing"
)

// Benchmark container build.
func BenchmarkBuild_Singleton(b *testing.B) {
	for i := 0; i < b.N; i++ {
		builder := NewBuilder()
		RegisterSingleton(builder, func(Resolver) (string, error) {
			return "value", nil
		})
		c, _ := builder.Build()
		_ = c.Dispose()
	}
}

func BenchmarkBuild_CarGraph(b *testing.B) {
	for i := 0; i < b.N; i++ {
		builder := NewBuilder()
		registerCar(builder)
		c, _ := builder.Build()
		_ = c.Dispose()
	}
}

// Benchmark service resolution.
func BenchmarkResolve_Singleton_Cached(b *testing.B) {
	c, _ := New(func(builder *Builder) error {
		RegisterSingleton(builder, func(Resolver) (string, error) {
			return "value", nil
		})
		return nil
	})
	defer c.Dispose()

	// Warm up cache
	_, _ = Resolve[string](c)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Resolve[string](c)
	}
}

func BenchmarkResolve_Transient(b *testing.B) {
	c, _ := New(func(builder *Builder) error {
		RegisterTransient(builder, func(Resolver) (*numbered, error) {
			return &numbered{}, nil
		})
		return nil
	})
	defer c.Dispose()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Resolve[*numbered](c)
	}
}

func BenchmarkResolve_Constructor(b *testing.B) {
	c, _ := New(func(builder *Builder) error {
		registerCar(builder)
		return nil
	})
	defer c.Dispose()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Resolve[*Car](c)
	}
}

func BenchmarkResolve_Decorated(b *testing.B) {
	c, _ := New(func(builder *Builder) error {
		RegisterInstance[greeter](builder, &plainGreeter{word: "hi"})
		RegisterDecorator(builder, suffix("!"))
		return nil
	})
	defer c.Dispose()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Resolve[greeter](c)
	}
}

func BenchmarkResolve_Collection(b *testing.B) {
	c, _ := New(func(builder *Builder) error {
		for i := 0; i < 10; i++ {
			RegisterInstance(builder, &numbered{N: i})
		}
		return nil
	})
	defer c.Dispose()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = ResolveAll[*numbered](c)
	}
}

// Benchmark scoped resolution.
func BenchmarkScope_BeginResolveDispose(b *testing.B) {
	c, _ := New(func(builder *Builder) error {
		RegisterScoped(builder, func(Resolver) (*numbered, error) {
			return &numbered{}, nil
		})
		return nil
	})
	defer c.Dispose()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		scope, _ := c.BeginLifetimeScope()
		_, _ = Resolve[*numbered](scope)
		_ = scope.Dispose()
	}
}

// Benchmark concurrent access.
func BenchmarkResolve_Concurrent(b *testing.B) {
	c, _ := New(func(builder *Builder) error {
		registerCar(builder)
		return nil
	})
	defer c.Dispose()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_, _ = Resolve[*Car](c)
		}
	})
}
