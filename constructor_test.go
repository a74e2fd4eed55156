package keel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xraph/go-utils/errs"
)

func TestAnalyzeConstructor(t *testing.T) {
	tests := []struct {
		name    string
		fn      any
		wantErr bool
	}{
		{"single result", NewEngine, false},
		{"result and error", func(ILog) (*Engine, error) { return nil, nil }, false},
		{"no parameters", func() *numbered { return nil }, false},
		{"nil", nil, true},
		{"not a function", 42, true},
		{"no results", func() {}, true},
		{"only error", func() error { return nil }, true},
		{"second result not error", func() (*Engine, int) { return nil, 0 }, true},
		{"three results", func() (*Engine, int, error) { return nil, 0, nil }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := analyzeConstructor(tt.fn)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAnalyzeConstructor_InStructPositions(t *testing.T) {
	type params struct {
		In

		Log    ILog
		Engine *Engine `name:"v8" optional:"true"`
		hidden int
	}

	info, err := analyzeConstructor(func(n int, p params, s string) *Car { return nil })
	require.NoError(t, err)
	require.Len(t, info.params, 3)

	assert.Equal(t, 0, info.params[0].position)
	require.True(t, info.params[1].isIn)
	require.Len(t, info.params[1].inFields, 2, "unexported fields are skipped")
	assert.Equal(t, 1, info.params[1].inFields[0].position)
	assert.Equal(t, 2, info.params[1].inFields[1].position)
	assert.Equal(t, "v8", info.params[1].inFields[1].key)
	assert.True(t, info.params[1].inFields[1].optional)
	assert.Equal(t, 3, info.params[2].position)

	assert.Equal(t, []Service{
		ServiceOf[int](),
		ServiceOf[ILog](),
		Named[*Engine]("v8"),
		ServiceOf[string](),
	}, info.dependencies())
}

func TestConstructor_ErrorResult(t *testing.T) {
	c := build(t, func(b *Builder) {
		RegisterConstructor(b, func() (*numbered, error) { return nil, errBoom })
	})

	_, err := Resolve[*numbered](c)
	assert.ErrorIs(t, err, ErrActivationFailedSentinel)
	assert.ErrorIs(t, err, errBoom)
}

func TestConstructor_InStructPointer(t *testing.T) {
	type params struct {
		In

		Engine *Engine
		Log    ILog
	}

	c := build(t, func(b *Builder) {
		registerCar(b)
		RegisterConstructor(b, func(p *params) *numbered {
			if p.Engine == nil || p.Log == nil {
				return nil
			}
			return &numbered{N: 1}
		})
	})

	assert.Equal(t, 1, MustResolve[*numbered](c).N)
}

func TestConstructor_EmbeddedInStruct(t *testing.T) {
	type base struct {
		In

		Log ILog
	}
	type params struct {
		base

		Engine *Engine
	}

	info, err := analyzeConstructor(func(p params) *numbered { return nil })
	require.NoError(t, err)
	require.True(t, info.params[0].isIn)
	assert.Len(t, info.params[0].inFields, 1, "only the direct fields of the outer struct are bound")
}

type injected struct {
	Engine *Engine `inject:""`
	Log    ILog    `inject:"" optional:"true"`
	File   ILog    `inject:"" name:"file" optional:"true"`
	Skip   ILog
}

func TestRegisterType_InjectFields(t *testing.T) {
	c := build(t, func(b *Builder) {
		registerCar(b)
		RegisterType[*injected](b)
	})

	v := MustResolve[*injected](c)
	assert.NotNil(t, v.Engine)
	assert.Same(t, MustResolve[ILog](c), v.Log)
	assert.Nil(t, v.File)
	assert.Nil(t, v.Skip)
}

func TestRegisterType_ValueStruct(t *testing.T) {
	c := build(t, func(b *Builder) {
		registerCar(b)
		RegisterType[injected](b)
	})

	v := MustResolve[injected](c)
	assert.NotNil(t, v.Engine)
}

func TestRegisterType_Invalid(t *testing.T) {
	type hidden struct {
		log ILog `inject:""`
	}

	b := NewBuilder()
	assert.ErrorIs(t, RegisterType[*hidden](b).Err(), ErrInvalidRegistrationSentinel)
	assert.ErrorIs(t, RegisterType[int](b).Err(), ErrInvalidRegistrationSentinel)
	assert.ErrorIs(t, RegisterType[ILog](b).Err(), ErrInvalidRegistrationSentinel)
}

// cache is built from a name and a size, both supplied as parameters.
type cache struct {
	Name string
	Size int
	Log  ILog
}

func newCache(name string, size int, log ILog) *cache {
	return &cache{Name: name, Size: size, Log: log}
}

func TestParameters_RegistrationParameters(t *testing.T) {
	c := build(t, func(b *Builder) {
		RegisterType[*ConsoleLog](b).As(ServiceOf[ILog]())
		RegisterConstructor(b, newCache).
			WithParameterNames("name", "size").
			WithParameter(NamedParam("name", "sessions"), TypedAs(16))
	})

	ch := MustResolve[*cache](c)
	assert.Equal(t, "sessions", ch.Name)
	assert.Equal(t, 16, ch.Size)
	assert.NotNil(t, ch.Log)
}

func TestParameters_CallerOverridesRegistration(t *testing.T) {
	c := build(t, func(b *Builder) {
		RegisterType[*ConsoleLog](b).As(ServiceOf[ILog]())
		RegisterConstructor(b, newCache).
			WithParameterNames("name", "size").
			WithParameter(NamedParam("name", "sessions"), NamedParam("size", 16))
	})

	ch, err := Resolve[*cache](c, TypedAs(64), PositionalParam(0, "tokens"))
	require.NoError(t, err)
	assert.Equal(t, "tokens", ch.Name, "caller positional beats registration named")
	assert.Equal(t, 64, ch.Size, "caller typed beats registration named")
}

func TestParameters_RankWithinGroup(t *testing.T) {
	c := build(t, func(b *Builder) {
		RegisterType[*ConsoleLog](b).As(ServiceOf[ILog]())
		RegisterConstructor(b, newCache).WithParameterNames("name", "size")
	})

	ch, err := Resolve[*cache](c,
		ResolvedService(ParamNamed("name"), Named[string]("unused")),
		PositionalParam(0, "positional"),
		TypedAs("typed"),
		NamedParam("name", "named"),
		TypedAs(1),
	)
	require.NoError(t, err)
	assert.Equal(t, "named", ch.Name)
	assert.Equal(t, 1, ch.Size)

	ch, err = Resolve[*cache](c,
		PositionalParam(0, "positional"),
		TypedAs("typed"),
		TypedAs(1),
	)
	require.NoError(t, err)
	assert.Equal(t, "typed", ch.Name)

	ch, err = Resolve[*cache](c, PositionalParam(0, "positional"), PositionalParam(1, 2))
	require.NoError(t, err)
	assert.Equal(t, "positional", ch.Name)
	assert.Equal(t, 2, ch.Size)
}

func TestParameters_ResolvedService(t *testing.T) {
	c := build(t, func(b *Builder) {
		RegisterInstance(b, &plainLog{name: "file"}).Named("file", ServiceOf[ILog]())
		RegisterInstance[ILog](b, &plainLog{name: "default"})
		RegisterConstructor(b, newCache).
			WithParameter(
				PositionalParam(0, "c"),
				PositionalParam(1, 1),
				ResolvedService(ParamOfType[ILog](), Named[ILog]("file")),
			)
	})

	ch := MustResolve[*cache](c)
	assert.Equal(t, "file", ch.Log.(*plainLog).name)
}

func TestParameters_InterfaceNeedsTypedAs(t *testing.T) {
	c := build(t, func(b *Builder) {
		RegisterConstructor(b, newCache).WithParameter(
			PositionalParam(0, "c"),
			PositionalParam(1, 1),
			TypedParam(&plainLog{name: "dynamic"}),
		)
	})

	_, err := Resolve[*cache](c)
	assert.ErrorIs(t, err, ErrParameterBindingSentinel, "TypedParam matches the dynamic type only")

	ch, err := Resolve[*cache](c, TypedAs[ILog](&plainLog{name: "declared"}))
	require.NoError(t, err)
	assert.Equal(t, "declared", ch.Log.(*plainLog).name)
}

func TestParameters_NumericCoercion(t *testing.T) {
	c := build(t, func(b *Builder) {
		RegisterType[*ConsoleLog](b).As(ServiceOf[ILog]())
		RegisterConstructor(b, newCache).WithParameterNames("name", "size")
	})

	ch, err := Resolve[*cache](c, NamedParam("name", "n"), NamedParam("size", int64(7)))
	require.NoError(t, err)
	assert.Equal(t, 7, ch.Size)

	_, err = Resolve[*cache](c, NamedParam("name", 3), NamedParam("size", 7))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrParameterBindingSentinel)

	var keelErr *errs.Error
	require.ErrorAs(t, err, &keelErr)
	assert.Contains(t, keelErr.GetContext()["parameter"], "name")
}

func TestParameters_LossyNumericConversionFails(t *testing.T) {
	type limits struct {
		Count int
		Small uint8
	}

	c := build(t, func(b *Builder) {
		RegisterConstructor(b, func(count int, small uint8) *limits {
			return &limits{Count: count, Small: small}
		}).WithParameterNames("count", "small")
	})

	tests := []struct {
		name  string
		count any
		small any
	}{
		{"fraction truncated", 3.9, 1},
		{"negative wrapped", 3, -1},
		{"overflow", 3, 256},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve[*limits](c, NamedParam("count", tt.count), NamedParam("small", tt.small))
			assert.ErrorIs(t, err, ErrParameterBindingSentinel)
		})
	}

	l, err := Resolve[*limits](c, NamedParam("count", 3.0), NamedParam("small", int64(255)))
	require.NoError(t, err)
	assert.Equal(t, &limits{Count: 3, Small: 255}, l)
}

func TestParameters_InStructParamTag(t *testing.T) {
	type params struct {
		In

		Label string `param:"label"`
		Log   ILog   `optional:"true"`
	}

	c := build(t, func(b *Builder) {
		RegisterConstructor(b, func(p params) *cache {
			return &cache{Name: p.Label, Log: p.Log}
		})
	})

	ch, err := Resolve[*cache](c, NamedParam("label", "tagged"))
	require.NoError(t, err)
	assert.Equal(t, "tagged", ch.Name)
	assert.Nil(t, ch.Log)
}

func TestParameters_FactoryWithParams(t *testing.T) {
	c := build(t, func(b *Builder) {
		RegisterFactoryWithParams(b, func(_ Resolver, ps Parameters) (*cache, error) {
			name, _ := NamedValue[string](ps, "name")
			size, _ := TypedValue[int](ps)
			pos, ok := PositionalValue[string](ps, 0)
			if ok {
				name += "/" + pos
			}
			return &cache{Name: name, Size: size}, nil
		}).WithParameter(NamedParam("name", "registered"), TypedAs(8))
	})

	ch, err := Resolve[*cache](c, NamedParam("name", "caller"), PositionalParam(0, "p"))
	require.NoError(t, err)
	assert.Equal(t, "caller/p", ch.Name, "caller parameters come first")
	assert.Equal(t, 8, ch.Size)
}

func TestWithParameterNames_Errors(t *testing.T) {
	b := NewBuilder()

	rb := RegisterFactory(b, func(Resolver) (*cache, error) { return nil, nil }).WithParameterNames("name")
	assert.ErrorIs(t, rb.Err(), ErrInvalidRegistrationSentinel)

	rb = RegisterConstructor(b, newCache).WithParameterNames("a", "b", "c", "d")
	assert.ErrorIs(t, rb.Err(), ErrInvalidRegistrationSentinel)
}

func TestUsingConstructor(t *testing.T) {
	c := build(t, func(b *Builder) {
		registerCar(b)
		RegisterType[*Car](b).
			As(Named[*Car]("custom")).
			UsingConstructor(func(e *Engine) *Car { return &Car{Engine: e} })
	})

	car, err := ResolveNamed[*Car](c, "custom")
	require.NoError(t, err)
	assert.NotNil(t, car.Engine)
	assert.Nil(t, car.Log)

	info := c.Inspect()
	assert.Contains(t, info[len(info)-1].Description, "constructor")
}

func TestUsingConstructor_WrongResult(t *testing.T) {
	b := NewBuilder()
	rb := RegisterType[*Car](b).UsingConstructor(func() *Engine { return nil })
	assert.ErrorIs(t, rb.Err(), ErrInvalidRegistrationSentinel)

	rb = RegisterType[*Car](b).UsingConstructor("nope")
	assert.ErrorIs(t, rb.Err(), ErrInvalidRegistrationSentinel)
}

func TestCoerce(t *testing.T) {
	v, err := coerce(nil, typeOf[ILog]())
	require.NoError(t, err)
	assert.True(t, v.IsZero())

	v, err = coerce(&plainLog{}, typeOf[ILog]())
	require.NoError(t, err)
	assert.Equal(t, typeOf[ILog](), v.Type())

	v, err = coerce(3, typeOf[float64]())
	require.NoError(t, err)
	assert.Equal(t, 3.0, v.Float())

	_, err = coerce("3", typeOf[int]())
	assert.Error(t, err)

	v, err = coerce(int64(200), typeOf[uint8]())
	require.NoError(t, err)
	assert.Equal(t, uint64(200), v.Uint())

	_, err = coerce(3.9, typeOf[int]())
	assert.Error(t, err, "fraction would be truncated")

	_, err = coerce(-1, typeOf[uint8]())
	assert.Error(t, err, "sign would be lost")

	_, err = coerce(300, typeOf[int8]())
	assert.Error(t, err, "value would wrap")

	_, err = coerce(int64(1)<<60+1, typeOf[float64]())
	assert.Error(t, err, "precision would be lost")
}
