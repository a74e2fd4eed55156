package keel

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xraph/go-utils/errs"
	"pgregory.net/rapid"
)

func registerNumbered(b *Builder, c *counter) *RegistrationBuilder {
	return RegisterFactory(b, func(Resolver) (*numbered, error) {
		return &numbered{N: c.next()}, nil
	})
}

func TestLifetime_Transient(t *testing.T) {
	var built counter
	c := build(t, func(b *Builder) {
		registerNumbered(b, &built)
	})

	a := MustResolve[*numbered](c)
	b := MustResolve[*numbered](c)
	assert.NotSame(t, a, b)
	assert.Equal(t, 2, built.get())
}

func TestLifetime_SingleInstanceAcrossScopes(t *testing.T) {
	var built counter
	c := build(t, func(b *Builder) {
		registerNumbered(b, &built).SingleInstance()
	})

	s1, err := c.BeginLifetimeScope()
	require.NoError(t, err)
	s2, err := s1.BeginLifetimeScope()
	require.NoError(t, err)

	assert.Same(t, MustResolve[*numbered](c), MustResolve[*numbered](s1))
	assert.Same(t, MustResolve[*numbered](s1), MustResolve[*numbered](s2))
	assert.Equal(t, 1, built.get())
}

func TestLifetime_SingleInstanceDependenciesComeFromRoot(t *testing.T) {
	c := build(t, func(b *Builder) {
		RegisterType[*ConsoleLog](b).As(ServiceOf[ILog]()).InstancePerLifetimeScope()
		RegisterConstructor(b, NewEngine).SingleInstance()
	})

	scope, err := c.BeginLifetimeScope()
	require.NoError(t, err)

	engine := MustResolve[*Engine](scope)
	assert.Same(t, MustResolve[ILog](c), engine.Log)
	assert.NotSame(t, MustResolve[ILog](scope), engine.Log)
}

func TestLifetime_PerLifetimeScope(t *testing.T) {
	var built counter
	c := build(t, func(b *Builder) {
		registerNumbered(b, &built).InstancePerLifetimeScope()
	})

	s1, err := c.BeginLifetimeScope()
	require.NoError(t, err)
	s2, err := c.BeginLifetimeScope()
	require.NoError(t, err)

	a1 := MustResolve[*numbered](s1)
	assert.Same(t, a1, MustResolve[*numbered](s1))

	a2 := MustResolve[*numbered](s2)
	assert.NotSame(t, a1, a2)

	root := MustResolve[*numbered](c)
	assert.NotSame(t, a1, root)
	assert.NotSame(t, a2, root)
	assert.Equal(t, 3, built.get())
}

func TestLifetime_PerLifetimeScopeIsolation(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var built counter
		b := NewBuilder()
		registerNumbered(b, &built).InstancePerLifetimeScope()
		c, err := b.Build()
		if err != nil {
			t.Fatalf("build: %v", err)
		}
		defer c.Dispose()

		scopes := []*LifetimeScope{c.LifetimeScope}
		seen := map[*LifetimeScope]*numbered{}

		steps := rapid.IntRange(1, 40).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			parent := scopes[rapid.IntRange(0, len(scopes)-1).Draw(t, "parent")]
			if rapid.Bool().Draw(t, "begin") {
				child, err := parent.BeginLifetimeScope()
				if err != nil {
					t.Fatalf("begin: %v", err)
				}
				scopes = append(scopes, child)
				continue
			}

			n, err := Resolve[*numbered](parent)
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			if prev, ok := seen[parent]; ok && prev != n {
				t.Fatalf("scope returned two different instances")
			}
			for other, inst := range seen {
				if other != parent && inst == n {
					t.Fatalf("two scopes share one instance")
				}
			}
			seen[parent] = n
		}

		if built.get() != len(seen) {
			t.Fatalf("built %d instances for %d scopes", built.get(), len(seen))
		}
	})
}

func TestLifetime_PerMatchingScope(t *testing.T) {
	var built counter
	c := build(t, func(b *Builder) {
		registerNumbered(b, &built).InstancePerMatchingLifetimeScope("request")
	})

	request, err := c.BeginLifetimeScope(WithTag("request"))
	require.NoError(t, err)
	nested, err := request.BeginLifetimeScope()
	require.NoError(t, err)
	deeper, err := nested.BeginLifetimeScope(WithTag("unit"))
	require.NoError(t, err)

	n := MustResolve[*numbered](request)
	assert.Same(t, n, MustResolve[*numbered](nested))
	assert.Same(t, n, MustResolve[*numbered](deeper))

	other, err := c.BeginLifetimeScope(WithTag("request"))
	require.NoError(t, err)
	assert.NotSame(t, n, MustResolve[*numbered](other))
	assert.Equal(t, 2, built.get())
}

func TestLifetime_PerMatchingScopeNearestAncestor(t *testing.T) {
	c := build(t, func(b *Builder) {
		var built counter
		registerNumbered(b, &built).InstancePerMatchingLifetimeScope("tx")
	})

	outer, err := c.BeginLifetimeScope(WithTag("tx"))
	require.NoError(t, err)
	inner, err := outer.BeginLifetimeScope(WithTag("tx"))
	require.NoError(t, err)

	assert.NotSame(t, MustResolve[*numbered](outer), MustResolve[*numbered](inner))
}

func TestLifetime_NoMatchingScope(t *testing.T) {
	c := build(t, func(b *Builder) {
		var built counter
		registerNumbered(b, &built).InstancePerMatchingLifetimeScope("request", "job")
	})

	scope, err := c.BeginLifetimeScope(WithTag("unit"))
	require.NoError(t, err)

	_, err = Resolve[*numbered](scope)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoMatchingScopeSentinel)

	var keelErr *errs.Error
	require.ErrorAs(t, err, &keelErr)
	assert.Equal(t, ServiceOf[*numbered]().String(), keelErr.GetContext()["service"])

	job, err := c.BeginLifetimeScope(WithTag("job"))
	require.NoError(t, err)
	_, err = Resolve[*numbered](job)
	assert.NoError(t, err)
}

func TestLifetime_InvalidMatchingTags(t *testing.T) {
	b := NewBuilder()
	rb := RegisterType[*numbered](b).InstancePerMatchingLifetimeScope()
	assert.ErrorIs(t, rb.Err(), ErrInvalidRegistrationSentinel)

	rb = RegisterType[*numbered](b).InstancePerMatchingLifetimeScope(nil)
	assert.ErrorIs(t, rb.Err(), ErrInvalidRegistrationSentinel)
}

func TestScope_DisposeReleasesInReverseOrder(t *testing.T) {
	j := &journal{}
	c := build(t, func(b *Builder) {
		for _, name := range []string{"first", "second", "third"} {
			RegisterFactory(b, func(Resolver) (*disposable, error) {
				return &disposable{name: name, journal: j}, nil
			}).Keyed(name, ServiceOf[*disposable]()).InstancePerLifetimeScope()
		}
	})

	scope, err := c.BeginLifetimeScope()
	require.NoError(t, err)

	for _, name := range []string{"first", "second", "third"} {
		_, err := ResolveKeyed[*disposable](scope, name)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, scope.ownedCount())

	require.NoError(t, scope.Dispose())
	assert.Equal(t, []string{"third", "second", "first"}, j.list())
	assert.Equal(t, 0, scope.ownedCount())
}

func TestScope_DisposesTransientInstancesItCreated(t *testing.T) {
	j := &journal{}
	c := build(t, func(b *Builder) {
		RegisterFactory(b, func(Resolver) (*disposable, error) {
			return &disposable{name: "transient", journal: j}, nil
		})
	})

	scope, err := c.BeginLifetimeScope()
	require.NoError(t, err)

	d1 := MustResolve[*disposable](scope)
	d2 := MustResolve[*disposable](scope)

	require.NoError(t, scope.Dispose())
	assert.Equal(t, int32(1), d1.count.Load())
	assert.Equal(t, int32(1), d2.count.Load())
}

func TestScope_ChildrenDisposedFirstExactlyOnce(t *testing.T) {
	j := &journal{}
	c := build(t, func(b *Builder) {
		RegisterFactory(b, func(r Resolver) (*disposable, error) {
			tag := r.(*ResolveContext).Scope().Tag()
			return &disposable{name: tag.(string), journal: j}, nil
		}).InstancePerLifetimeScope()
	})

	parent, err := c.BeginLifetimeScope(WithTag("parent"))
	require.NoError(t, err)
	child, err := parent.BeginLifetimeScope(WithTag("child"))
	require.NoError(t, err)
	grandchild, err := child.BeginLifetimeScope(WithTag("grandchild"))
	require.NoError(t, err)

	p := MustResolve[*disposable](parent)
	ch := MustResolve[*disposable](child)
	g := MustResolve[*disposable](grandchild)

	require.NoError(t, parent.Dispose())

	assert.Equal(t, []string{"grandchild", "child", "parent"}, j.list())
	for _, d := range []*disposable{p, ch, g} {
		assert.Equal(t, int32(1), d.count.Load())
	}
	assert.True(t, child.IsDisposed())
	assert.True(t, grandchild.IsDisposed())

	assert.ErrorIs(t, child.Dispose(), ErrScopeDisposed)
	assert.Equal(t, int32(1), ch.count.Load())
}

func TestScope_DisposedChildIsForgotten(t *testing.T) {
	j := &journal{}
	c := build(t, func(b *Builder) {
		RegisterFactory(b, func(Resolver) (*disposable, error) {
			return &disposable{name: "d", journal: j}, nil
		}).InstancePerLifetimeScope()
	})

	child, err := c.BeginLifetimeScope()
	require.NoError(t, err)
	MustResolve[*disposable](child)
	require.NoError(t, child.Dispose())

	require.NoError(t, c.Dispose())
	assert.Equal(t, []string{"d"}, j.list())
}

func TestScope_ExternallyOwnedNotDisposed(t *testing.T) {
	j := &journal{}
	external := &disposable{name: "external", journal: j}

	c := build(t, func(b *Builder) {
		RegisterInstance(b, external)
		RegisterFactory(b, func(Resolver) (*closer, error) {
			return &closer{}, nil
		}).ExternallyOwned()
	})

	MustResolve[*disposable](c)
	cl := MustResolve[*closer](c)

	require.NoError(t, c.Dispose())
	assert.Empty(t, j.list())
	assert.False(t, cl.closed.Load())
}

func TestScope_InstanceOwnedByLifetimeScope(t *testing.T) {
	j := &journal{}
	d := &disposable{name: "owned instance", journal: j}

	c := build(t, func(b *Builder) {
		RegisterInstance(b, d).OwnedByLifetimeScope()
	})

	MustResolve[*disposable](c)
	require.NoError(t, c.Dispose())
	assert.Equal(t, []string{"owned instance"}, j.list())
}

func TestScope_ClosersAreClosed(t *testing.T) {
	c := build(t, func(b *Builder) {
		RegisterFactory(b, func(Resolver) (*closer, error) {
			return &closer{}, nil
		}).SingleInstance()
	})

	cl := MustResolve[*closer](c)
	require.NoError(t, c.Dispose())
	assert.True(t, cl.closed.Load())
}

func TestScope_OnReleaseReplacesDispose(t *testing.T) {
	j := &journal{}
	var released []any

	c := build(t, func(b *Builder) {
		RegisterFactory(b, func(Resolver) (*disposable, error) {
			return &disposable{name: "d", journal: j}, nil
		}).
			SingleInstance().
			OnRelease(func(instance any) error {
				released = append(released, instance)
				return nil
			})
	})

	d := MustResolve[*disposable](c)
	require.NoError(t, c.Dispose())

	assert.Equal(t, []any{d}, released)
	assert.Empty(t, j.list(), "Dispose is not called when release hooks exist")
}

func TestScope_DisposalErrorsAggregated(t *testing.T) {
	j := &journal{}
	c := build(t, func(b *Builder) {
		RegisterFactory(b, func(Resolver) (*disposable, error) {
			return &disposable{name: "a", journal: j, err: errors.New("a failed")}, nil
		}).Keyed("a", ServiceOf[*disposable]()).SingleInstance()
		RegisterFactory(b, func(Resolver) (*disposable, error) {
			return &disposable{name: "b", journal: j}, nil
		}).Keyed("b", ServiceOf[*disposable]()).SingleInstance()
		RegisterFactory(b, func(Resolver) (*disposable, error) {
			return &disposable{name: "c", journal: j, err: errors.New("c failed")}, nil
		}).Keyed("c", ServiceOf[*disposable]()).SingleInstance()
	})

	for _, key := range []string{"a", "b", "c"} {
		_, err := ResolveKeyed[*disposable](c, key)
		require.NoError(t, err)
	}

	err := c.Dispose()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDisposalFailedSentinel)
	assert.Equal(t, []string{"c", "b", "a"}, j.list(), "every instance is released")

	var keelErr *errs.Error
	require.ErrorAs(t, err, &keelErr)
	assert.Equal(t, RootTag, keelErr.GetContext()["scope"])
	assert.Contains(t, keelErr.Cause().Error(), "a failed")
	assert.Contains(t, keelErr.Cause().Error(), "c failed")
}

func TestScope_UseAfterDispose(t *testing.T) {
	c := build(t, registerCar)

	scope, err := c.BeginLifetimeScope()
	require.NoError(t, err)
	require.NoError(t, scope.Dispose())

	_, err = Resolve[*Car](scope)
	assert.ErrorIs(t, err, ErrScopeDisposed)

	_, err = scope.BeginLifetimeScope()
	assert.ErrorIs(t, err, ErrScopeDisposed)

	assert.ErrorIs(t, scope.Dispose(), ErrScopeDisposed)
}

func TestScope_TrackAfterDisposeReleasesImmediately(t *testing.T) {
	j := &journal{}
	c := build(t, func(b *Builder) {})

	scope, err := c.BeginLifetimeScope()
	require.NoError(t, err)
	require.NoError(t, scope.Dispose())

	reg := &Registration{ID: newRegistrationID(), Ownership: OwnedByLifetimeScope}
	d := &disposable{name: "late", journal: j}

	err = scope.track(reg, ServiceOf[*disposable](), d)
	assert.ErrorIs(t, err, ErrScopeDisposed)
	assert.Equal(t, []string{"late"}, j.list())
}

func TestScope_Context(t *testing.T) {
	type ctxKey struct{}
	ctx := context.WithValue(context.Background(), ctxKey{}, "request-42")

	var seen any
	c := build(t, registerCar, WithMiddleware(&FuncMiddleware{
		BeforeResolveFunc: func(ctx context.Context, _ Service) error {
			seen = ctx.Value(ctxKey{})
			return nil
		},
	}))

	scope, err := c.BeginLifetimeScope(WithContext(ctx))
	require.NoError(t, err)
	assert.Equal(t, ctx, scope.Context())

	child, err := scope.BeginLifetimeScope()
	require.NoError(t, err)

	MustResolve[*Car](child)
	assert.Equal(t, "request-42", seen)
}

func TestScope_ParentAndTag(t *testing.T) {
	c := build(t, func(b *Builder) {})

	scope, err := c.BeginLifetimeScope(WithTag("request"))
	require.NoError(t, err)
	assert.Equal(t, "request", scope.Tag())
	assert.Same(t, c.LifetimeScope, scope.Parent())
}
