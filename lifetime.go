package keel

// Lifetime controls how many instances of a registration are created and
// which lifetime scope owns them.
type Lifetime int

const (
	// Transient creates a new instance on every resolve. This is the default.
	Transient Lifetime = iota

	// SingleInstance creates one instance for the whole container. The
	// instance lives in the root scope no matter which scope asked first.
	SingleInstance

	// PerLifetimeScope creates one instance per lifetime scope.
	PerLifetimeScope

	// PerMatchingScope creates one instance per scope carrying one of the
	// registration's tags, found by walking up from the requesting scope.
	PerMatchingScope
)

// String returns the human-readable name of the lifetime.
func (l Lifetime) String() string {
	switch l {
	case Transient:
		return "transient"
	case SingleInstance:
		return "single-instance"
	case PerLifetimeScope:
		return "per-lifetime-scope"
	case PerMatchingScope:
		return "per-matching-scope"
	default:
		return "unknown"
	}
}

// shared reports whether instances are cached in a scope table.
func (l Lifetime) shared() bool {
	return l != Transient
}

// Ownership decides whether the container disposes the instances it hands out.
type Ownership int

const (
	// OwnedByLifetimeScope instances are disposed when their owning scope ends.
	OwnedByLifetimeScope Ownership = iota

	// ExternallyOwned instances are never disposed by the container.
	ExternallyOwned
)

// String returns the human-readable name of the ownership.
func (o Ownership) String() string {
	if o == ExternallyOwned {
		return "externally-owned"
	}
	return "owned-by-lifetime-scope"
}
