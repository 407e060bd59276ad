package tree

import (
	"strings"
)

// EdgeType classifies why a Node depends on another.
type EdgeType string

const (
	Production   EdgeType = "production"
	Development  EdgeType = "development"
	Optional     EdgeType = "optional"
	Peer         EdgeType = "peer"
	PeerOptional EdgeType = "peer-optional"
)

func (t EdgeType) tolerant() bool {
	return t == Optional || t == PeerOptional
}

// Tolerant reports whether a failure to resolve an edge of this type
// should be swallowed rather than aborting the whole build.
func (t EdgeType) Tolerant() bool {
	return t.tolerant()
}

// Error codes an invalid Edge carries, mirroring spec.md §4.4's reload
// contract.
const (
	ErrMissing = "MISSING"
	ErrInvalid = "INVALID"
)

// Edge is a directed dependency relation from From to an optional
// resolved Node. From is an exclusive, non-owning back-reference; To is a
// weak reference maintained by Reload.
type Edge struct {
	From *Node

	Name         string // declared name, also the key under From.EdgesOut
	Spec         string // spec exactly as declared, alias prefix included
	Range        string // canonical range: Spec with any "npm:name@" prefix stripped
	RegistryName string // set only when Spec aliased to a different package
	Type         EdgeType

	To    *Node
	Valid bool
	Error string
}

// parseAliasSpec splits a dependency spec of the form "npm:X@Y" (or
// "npm:@scope/name@Y") into the aliased registry name and the range tail.
// A spec with no npm: prefix is not an alias.
func parseAliasSpec(spec string) (registryName, rangeTail string) {
	const prefix = "npm:"
	if len(spec) < len(prefix) || !strings.EqualFold(spec[:len(prefix)], prefix) {
		return "", spec
	}
	rest := spec[len(prefix):]

	if strings.HasPrefix(rest, "@") {
		slash := strings.Index(rest, "/")
		if slash == -1 {
			return rest, "*"
		}
		afterScope := rest[slash+1:]
		at := strings.Index(afterScope, "@")
		if at == -1 {
			return rest, "*"
		}
		return rest[:slash+1+at], afterScope[at+1:]
	}

	at := strings.Index(rest, "@")
	if at == -1 {
		return rest, "*"
	}
	return rest[:at], rest[at+1:]
}

// newEdge builds an Edge from a declared dependency spec, parsing any
// npm: alias prefix, but does not resolve or register it — callers use
// Node.AddEdge for that.
func newEdge(from *Node, name, spec string, t EdgeType) *Edge {
	registryName, rangeTail := parseAliasSpec(spec)
	return &Edge{
		From:         from,
		Name:         name,
		Spec:         spec,
		Range:        rangeTail,
		RegistryName: registryName,
		Type:         t,
	}
}

// SatisfiedBy reports whether node is a valid resolution target for this
// edge: same declared name, and its version satisfies the edge's range.
func (e *Edge) SatisfiedBy(node *Node) bool {
	if node == nil || node.Name != e.Name {
		return false
	}
	return node.Satisfies(e.Range)
}

// detachFromTarget removes this edge from its current target's edges-in
// set and clears To, used before re-resolving.
func (e *Edge) detachFromTarget() {
	if e.To == nil {
		return
	}
	e.To.removeEdgeIn(e)
	e.To = nil
}

// Reload re-resolves the edge by walking up the tree from From, following
// spec.md §4.4's reload contract exactly.
func (e *Edge) Reload() {
	e.detachFromTarget()

	resolved := e.From.Resolve(e.Name)
	if resolved == nil {
		if e.Type.tolerant() {
			e.Valid = true
			e.Error = ""
		} else {
			e.Valid = false
			e.Error = ErrMissing
		}
		return
	}

	e.To = resolved
	if resolved.Satisfies(e.Range) {
		e.Valid = true
		e.Error = ""
	} else {
		e.Valid = false
		e.Error = ErrInvalid
	}
	resolved.addEdgeIn(e)
}

// Problem reports whether this edge is a "problem edge" the builder
// still needs to resolve: missing, or resolved to a version that fails
// the edge's range.
func (e *Edge) Problem() bool {
	return !e.Valid
}
