package keel

import "reflect"

// Metadata is the key/value data attached to a registration with
// RegistrationBuilder.WithMetadata.
type Metadata map[string]any

// Get returns the value stored under key.
func (m Metadata) Get(key string) (any, bool) {
	v, ok := m[key]
	return v, ok
}

// String returns the value under key if it is a string.
func (m Metadata) String(key string) string {
	s, _ := m[key].(string)
	return s
}

func (m Metadata) clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// MetadataFilter selects registrations by their metadata.
type MetadataFilter func(Metadata) bool

// MetadataEquals matches registrations whose metadata value under key equals value.
func MetadataEquals(key string, value any) MetadataFilter {
	return func(m Metadata) bool {
		v, ok := m[key]
		if !ok {
			return false
		}
		return reflect.DeepEqual(v, value)
	}
}

// MetadataHas matches registrations carrying key, whatever its value.
func MetadataHas(key string) MetadataFilter {
	return func(m Metadata) bool {
		_, ok := m[key]
		return ok
	}
}

// AllOf matches registrations accepted by every filter.
func AllOf(filters ...MetadataFilter) MetadataFilter {
	return func(m Metadata) bool {
		for _, f := range filters {
			if !f(m) {
				return false
			}
		}
		return true
	}
}

// Meta pairs a resolved value with the metadata of the registration that
// produced it.
type Meta[T any] struct {
	Value    T
	Metadata Metadata
}
