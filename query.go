package keel

import (
	"reflect"
)

// RegistrationInfo contains diagnostic information about a registration.
type RegistrationInfo struct {
	ID               string
	Services         []string
	Description      string
	Lifetime         string
	Ownership        string
	MatchingTags     []any
	Dependencies     []string
	Metadata         Metadata
	PreserveDefaults bool
	AutoActivate     bool
}

// Inspect returns diagnostic information about every registration made on
// the builder, in registration order.
func (c *Container) Inspect() []RegistrationInfo {
	regs := c.Registrations()
	infos := make([]RegistrationInfo, 0, len(regs))
	for _, reg := range regs {
		infos = append(infos, inspect(reg))
	}
	return infos
}

func inspect(reg *Registration) RegistrationInfo {
	services := make([]string, len(reg.Services))
	for i, svc := range reg.Services {
		services[i] = svc.String()
	}

	deps := make([]string, len(reg.Dependencies))
	for i, dep := range reg.Dependencies {
		deps[i] = dep.String()
	}

	var metadata Metadata
	if reg.Metadata != nil {
		metadata = reg.Metadata.clone()
	}

	return RegistrationInfo{
		ID:               reg.ID.String(),
		Services:         services,
		Description:      reg.Description,
		Lifetime:         reg.Lifetime.String(),
		Ownership:        reg.Ownership.String(),
		MatchingTags:     reg.MatchingTags,
		Dependencies:     deps,
		Metadata:         metadata,
		PreserveDefaults: reg.PreserveDefaults,
		AutoActivate:     reg.autoActivate,
	}
}

// RegistrationQuery defines criteria for querying registrations.
type RegistrationQuery struct {
	// Lifetime filters by lifetime name (transient, single-instance,
	// per-lifetime-scope, per-matching-scope).
	// Empty string matches all lifetimes.
	Lifetime string

	// ServiceType filters by exposed service type.
	// nil matches all types.
	ServiceType reflect.Type

	// Metadata filters by metadata key-value pairs.
	// All specified metadata must match for a registration to be included.
	Metadata map[string]any

	// Keyed filters by whether the registration exposes a keyed service.
	// nil matches all registrations.
	Keyed *bool
}

// Query returns detailed information about registrations matching the query criteria.
//
// Example:
//
//	// Find all singletons exposed as ILog
//	results := keel.Query(c, keel.RegistrationQuery{
//	    Lifetime:    "single-instance",
//	    ServiceType: reflect.TypeOf((*ILog)(nil)).Elem(),
//	})
func Query(c *Container, query RegistrationQuery) []RegistrationInfo {
	var results []RegistrationInfo

	for _, reg := range c.Registrations() {
		// Filter by lifetime
		if query.Lifetime != "" && reg.Lifetime.String() != query.Lifetime {
			continue
		}

		// Filter by service type
		if query.ServiceType != nil && !exposesType(reg, query.ServiceType) {
			continue
		}

		// Filter by metadata
		if len(query.Metadata) > 0 {
			allMatch := true
			for key, value := range query.Metadata {
				if !MetadataEquals(key, value)(reg.Metadata) {
					allMatch = false
					break
				}
			}
			if !allMatch {
				continue
			}
		}

		// Filter by keyed services
		if query.Keyed != nil && hasKeyedService(reg) != *query.Keyed {
			continue
		}

		results = append(results, inspect(reg))
	}

	return results
}

// QueryServices returns the services exposed by registrations matching the
// query criteria.
func QueryServices(c *Container, query RegistrationQuery) []string {
	var services []string
	for _, info := range Query(c, query) {
		services = append(services, info.Services...)
	}
	return services
}

// FindByLifetime returns all registrations with a specific lifetime.
func FindByLifetime(c *Container, lifetime Lifetime) []RegistrationInfo {
	return Query(c, RegistrationQuery{Lifetime: lifetime.String()})
}

// FindByService returns all registrations exposing a service of type T.
func FindByService[T any](c *Container) []RegistrationInfo {
	return Query(c, RegistrationQuery{ServiceType: typeOf[T]()})
}

// FindKeyed returns all registrations exposing a keyed service.
func FindKeyed(c *Container) []RegistrationInfo {
	keyed := true
	return Query(c, RegistrationQuery{Keyed: &keyed})
}

func exposesType(reg *Registration, t reflect.Type) bool {
	for _, svc := range reg.Services {
		if svc.Type == t {
			return true
		}
	}
	return false
}

func hasKeyedService(reg *Registration) bool {
	for _, svc := range reg.Services {
		if svc.IsKeyed() {
			return true
		}
	}
	return false
}
