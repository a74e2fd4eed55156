package keel

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// In is a marker type that should be embedded in structs to indicate
// they are parameter objects. Fields of the struct will be treated as
// dependencies to inject.
//
// Example:
//
//	type CarParams struct {
//	    keel.In
//
//	    Engine *Engine
//	    Log    ILog    `optional:"true"`
//	    Driver IDriver `name:"sane"`
//	    Tools  []Tool  `meta:"kind=hand"`
//	}
type In struct{}

var (
	inType    = reflect.TypeOf(In{})
	errorType = reflect.TypeOf((*error)(nil)).Elem()
)

// constructorInfo holds analyzed constructor metadata
type constructorInfo struct {
	fn       reflect.Value
	fnType   reflect.Type
	params   []paramInfo
	result   reflect.Type
	hasError bool
}

// paramInfo describes a constructor parameter or an injectable struct field
type paramInfo struct {
	typ      reflect.Type
	name     string         // Declared name used for named-parameter matching
	key      string         // From `name:"..."` tag, resolves a keyed service
	optional bool           // From `optional:"true"` tag
	filter   MetadataFilter // From `meta:"key=value"` tag
	index    int            // Position in function parameters or struct field index
	position int            // Position among bindable parameters
	isIn     bool           // Whether this is an In struct (expanded into multiple deps)
	inFields []paramInfo    // Expanded fields if isIn is true
}

func (p paramInfo) info() ParameterInfo {
	return ParameterInfo{Name: p.name, Type: p.typ, Position: p.position, Optional: p.optional}
}

func (p paramInfo) service() Service {
	svc := Service{Type: p.typ}
	if p.key != "" {
		svc.Key = p.key
	}
	return svc
}

// analyzeConstructor inspects a constructor function and extracts its
// dependency and result information. The function must return exactly one
// non-error value, optionally followed by an error.
func analyzeConstructor(constructor any) (*constructorInfo, error) {
	if constructor == nil {
		return nil, errors.New("constructor cannot be nil")
	}

	fnValue := reflect.ValueOf(constructor)
	fnType := fnValue.Type()

	if fnType.Kind() != reflect.Func {
		return nil, fmt.Errorf("constructor must be a function, got %s", fnType)
	}

	info := &constructorInfo{
		fn:     fnValue,
		fnType: fnType,
	}

	position := 0
	for i := 0; i < fnType.NumIn(); i++ {
		paramType := fnType.In(i)
		param, err := analyzeParam(paramType, i)
		if err != nil {
			return nil, fmt.Errorf("parameter %d: %w", i, err)
		}
		if param.isIn {
			for j := range param.inFields {
				param.inFields[j].position = position
				position++
			}
		} else {
			param.position = position
			position++
		}
		info.params = append(info.params, param)
	}

	switch fnType.NumOut() {
	case 1:
		if fnType.Out(0) == errorType {
			return nil, errors.New("constructor must return a non-error value")
		}
		info.result = fnType.Out(0)
	case 2:
		if fnType.Out(1) != errorType {
			return nil, errors.New("second return value must be error")
		}
		info.result = fnType.Out(0)
		info.hasError = true
	default:
		return nil, fmt.Errorf("constructor must return (T) or (T, error), got %d results", fnType.NumOut())
	}

	return info, nil
}

// analyzeParam analyzes a single parameter type
func analyzeParam(t reflect.Type, index int) (paramInfo, error) {
	param := paramInfo{
		typ:   t,
		index: index,
	}

	if isInStruct(t) {
		param.isIn = true
		fields, err := expandInStruct(t)
		if err != nil {
			return param, err
		}
		param.inFields = fields
	}

	return param, nil
}

// isInStruct checks if a type embeds keel.In
func isInStruct(t reflect.Type) bool {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	if t.Kind() != reflect.Struct {
		return false
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Anonymous && field.Type == inType {
			return true
		}
		if field.Anonymous && isInStruct(field.Type) {
			return true
		}
	}
	return false
}

// expandInStruct expands an In struct into its field dependencies
func expandInStruct(t reflect.Type) ([]paramInfo, error) {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	var params []paramInfo

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		if field.Anonymous && (field.Type == inType || isInStruct(field.Type)) {
			continue
		}

		if !field.IsExported() {
			continue
		}

		param, err := fieldParam(field, i)
		if err != nil {
			return nil, err
		}
		params = append(params, param)
	}

	return params, nil
}

// fieldParam builds the binding description of a struct field from its tags.
func fieldParam(field reflect.StructField, index int) (paramInfo, error) {
	param := paramInfo{
		typ:   field.Type,
		name:  field.Name,
		index: index,
	}

	if tag := field.Tag.Get("param"); tag != "" {
		param.name = tag
	}

	if tag := field.Tag.Get("name"); tag != "" {
		param.key = tag
	}

	if tag := field.Tag.Get("optional"); strings.ToLower(tag) == "true" {
		param.optional = true
	}

	if tag := field.Tag.Get("meta"); tag != "" {
		filter, err := parseMetaTag(tag)
		if err != nil {
			return param, fmt.Errorf("field %s: %w", field.Name, err)
		}
		param.filter = filter
	}

	return param, nil
}

// parseMetaTag turns `key=value[,key=value]` into a metadata filter matching
// string values.
func parseMetaTag(tag string) (MetadataFilter, error) {
	var filters []MetadataFilter
	for _, pair := range strings.Split(tag, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("meta tag %q must be key=value", pair)
		}
		filters = append(filters, MetadataEquals(k, v))
	}
	return AllOf(filters...), nil
}

// withNames assigns declared names to the plain (non-In) parameters in order.
func (c *constructorInfo) withNames(names []string) error {
	plain := 0
	for _, p := range c.params {
		if !p.isIn {
			plain++
		}
	}
	if len(names) > plain {
		return fmt.Errorf("%d parameter names given for %d parameters", len(names), plain)
	}

	n := 0
	for i := range c.params {
		if c.params[i].isIn {
			continue
		}
		if n < len(names) {
			c.params[i].name = names[n]
		}
		n++
	}
	return nil
}

// dependencies returns the services the constructor asks the container for.
func (c *constructorInfo) dependencies() []Service {
	var deps []Service
	for _, p := range c.params {
		if p.isIn {
			for _, f := range p.inFields {
				deps = append(deps, f.service())
			}
			continue
		}
		deps = append(deps, p.service())
	}
	return deps
}

// activator returns an Activator that binds every parameter and calls the
// constructor.
func (c *constructorInfo) activator(owner Service) Activator {
	return func(ctx *ResolveContext, params []Parameter) (any, error) {
		args := make([]reflect.Value, len(c.params))

		for i, param := range c.params {
			if param.isIn {
				inValue, err := ctx.bindStruct(owner, param.typ, param.inFields, params)
				if err != nil {
					return nil, err
				}
				args[i] = inValue
				continue
			}

			v, err := ctx.bindParameter(owner, param, params)
			if err != nil {
				return nil, err
			}
			args[i] = v
		}

		results := c.fn.Call(args)

		if c.hasError {
			if errResult := results[1]; !errResult.IsNil() {
				return nil, errResult.Interface().(error)
			}
		}

		return results[0].Interface(), nil
	}
}

// structInfo describes a concrete type built by allocating its zero value and
// injecting the fields tagged `inject`.
type structInfo struct {
	typ    reflect.Type // The registered type: S or *S
	elem   reflect.Type // The struct type S
	fields []paramInfo
}

// analyzeStruct inspects a struct or pointer-to-struct type for `inject` tags.
func analyzeStruct(t reflect.Type) (*structInfo, error) {
	elem := t
	if elem.Kind() == reflect.Ptr {
		elem = elem.Elem()
	}
	if elem.Kind() != reflect.Struct {
		return nil, fmt.Errorf("type %s is not a struct or pointer to struct", t)
	}

	info := &structInfo{typ: t, elem: elem}
	position := 0
	for i := 0; i < elem.NumField(); i++ {
		field := elem.Field(i)
		if _, ok := field.Tag.Lookup("inject"); !ok {
			continue
		}
		if !field.IsExported() {
			return nil, fmt.Errorf("field %s.%s is tagged inject but not exported", elem.Name(), field.Name)
		}
		param, err := fieldParam(field, i)
		if err != nil {
			return nil, err
		}
		param.position = position
		position++
		info.fields = append(info.fields, param)
	}
	return info, nil
}

// isConstructible reports whether a struct activator can build t.
func isConstructible(t reflect.Type) bool {
	if t == nil {
		return false
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Kind() == reflect.Struct
}

func (s *structInfo) dependencies() []Service {
	deps := make([]Service, 0, len(s.fields))
	for _, f := range s.fields {
		deps = append(deps, f.service())
	}
	return deps
}

func (s *structInfo) activator(owner Service) Activator {
	return func(ctx *ResolveContext, params []Parameter) (any, error) {
		v, err := ctx.bindStruct(owner, s.typ, s.fields, params)
		if err != nil {
			return nil, err
		}
		return v.Interface(), nil
	}
}
