package keel

import "reflect"

// DependencyGraph holds the declared dependencies between services, as
// derived from constructor and struct registrations.
type DependencyGraph struct {
	nodes map[Service]*node
	order []Service // Preserve registration order
}

type node struct {
	service      Service
	dependencies []Service
}

// NewDependencyGraph creates a new dependency graph.
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		nodes: make(map[Service]*node),
		order: make([]Service, 0),
	}
}

// AddNode adds a node with its dependencies. Adding the same service twice
// merges the dependency lists.
// Nodes are processed in the order they are added (FIFO) when no dependencies exist.
func (g *DependencyGraph) AddNode(svc Service, dependencies []Service) {
	if n, ok := g.nodes[svc]; ok {
		n.dependencies = append(n.dependencies, dependencies...)
		return
	}

	g.nodes[svc] = &node{
		service:      svc,
		dependencies: append([]Service(nil), dependencies...),
	}
	g.order = append(g.order, svc)
}

// AddRegistration adds one node per service exposed by reg.
func (g *DependencyGraph) AddRegistration(reg *Registration) {
	for _, svc := range reg.Services {
		g.AddNode(svc, reg.Dependencies)
	}
}

// GetDependencies returns the dependencies of a node.
func (g *DependencyGraph) GetDependencies(svc Service) []Service {
	if n, ok := g.nodes[svc]; ok {
		return n.dependencies
	}

	return nil
}

// HasNode checks if a node exists in the graph.
func (g *DependencyGraph) HasNode(svc Service) bool {
	_, ok := g.nodes[svc]

	return ok
}

// TopologicalSort returns services in dependency order.
// Nodes without dependencies maintain their registration order (FIFO).
// Returns error if circular dependency detected.
//
// Relationship dependencies such as Lazy and Func are resolved on demand and
// do not take part in the ordering.
func (g *DependencyGraph) TopologicalSort() ([]Service, error) {
	visited := make(map[Service]bool)
	visiting := make(map[Service]bool)
	result := make([]Service, 0, len(g.nodes))

	// Visit nodes in registration order to preserve FIFO for nodes without dependencies
	for _, svc := range g.order {
		var path []Service
		if err := g.visit(svc, visited, visiting, &path, &result); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// visit performs DFS traversal.
func (g *DependencyGraph) visit(svc Service, visited, visiting map[Service]bool, path, result *[]Service) error {
	if visited[svc] {
		return nil
	}

	if visiting[svc] {
		// Report the cycle starting at its first occurrence on the path
		cycle := []Service{svc}
		for i, s := range *path {
			if s == svc {
				cycle = append(append([]Service(nil), (*path)[i:]...), svc)
				break
			}
		}

		return ErrCircularDependency(cycle)
	}

	n := g.nodes[svc]
	if n == nil {
		// Not registered directly, skip (may be optional or provided by a source)
		return nil
	}

	visiting[svc] = true
	*path = append(*path, svc)

	// Visit dependencies first
	for _, dep := range n.dependencies {
		dep = g.edgeTarget(dep)
		if dep.Type == nil {
			continue
		}
		if err := g.visit(dep, visited, visiting, path, result); err != nil {
			return err
		}
	}

	*path = (*path)[:len(*path)-1]
	visiting[svc] = false
	visited[svc] = true
	*result = append(*result, svc)

	return nil
}

// edgeTarget maps a declared dependency onto the node it activates eagerly:
// an unregistered slice is its element collection, a relationship none.
func (g *DependencyGraph) edgeTarget(dep Service) Service {
	if dep.Type == nil || isRelationship(dep.Type) {
		return Service{}
	}
	if _, ok := g.nodes[dep]; !ok && dep.Type.Kind() == reflect.Slice {
		return Service{Type: dep.Type.Elem(), Key: dep.Key}
	}
	return dep
}
