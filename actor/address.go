package actor

import "fmt"

// Address is an opaque, comparable identifier for a logical actor. Two
// addresses are equal iff all four fields match. Addresses stay stable
// across restarts of the same logical actor: a fresh incarnation spawned
// at the same (node, kind, id, path) compares equal to the one it
// replaced.
type Address struct {
	// Node is the node identifier the actor is (logically) placed on.
	// Inter-node transport is abstracted away; the runtime itself is
	// single-node, but addresses still carry this field so a future
	// transport can route on it.
	Node string

	// Kind groups addresses that share a behavior factory, most
	// relevantly for virtual actors (see actor/virtual).
	Kind string

	// ID is the instance identifier within Kind.
	ID string

	// Path is an optional hierarchical qualifier, e.g. a virtual
	// partition or a supervision-tree path segment.
	Path string
}

// NewAddress builds an Address for the given node/kind/id, with no path.
func NewAddress(node, kind, id string) Address {
	return Address{Node: node, Kind: kind, ID: id}
}

// WithPath returns a copy of the address qualified with path.
func (a Address) WithPath(path string) Address {
	a.Path = path
	return a
}

// Equal reports whether two addresses name the same logical actor.
func (a Address) Equal(other Address) bool {
	return a == other
}

// String renders the printable form actor://<node>/<kind>/<id>[#<path>].
func (a Address) String() string {
	s := fmt.Sprintf("actor://%s/%s/%s", a.Node, a.Kind, a.ID)
	if a.Path != "" {
		s += "#" + a.Path
	}
	return s
}

// IsZero reports whether this is the zero-value Address (unset).
func (a Address) IsZero() bool {
	return a == Address{}
}
