// Package tree implements the Node/Edge/Inventory dependency-graph model:
// a Node is a package placed somewhere under a root, an Edge is a
// directed dependency relation that may or may not currently resolve,
// and an Inventory is a flat multi-index over every Node in a tree.
//
// Go's garbage collector reclaims reference cycles on its own, so Node
// and Edge hold direct pointers to each other (Node.Parent, Edge.From,
// Edge.To) instead of the arena-and-handle indirection a non-GC'd
// language would need to avoid leaking cyclic structures.
package tree

import (
	"github.com/pkgforge/pkgforge/internal/manifest"
	"github.com/pkgforge/pkgforge/pkg/semver"
)

// Node is a package placed somewhere in a dependency tree.
type Node struct {
	Name         string // declared name: the node_modules folder this lives under
	Version      string
	RegistryName string // real package name, set only when this Node was installed under an alias
	Manifest     *manifest.Manifest

	ResolvedURL string
	Integrity   string

	Dev        bool
	Optional   bool
	Peer       bool
	Extraneous bool
	Link       bool
	IsRoot     bool

	Path     string // filesystem path of the project root; set only on the root Node
	Location string // canonical node_modules path from the root; "" for the root

	Parent   *Node
	RootNode *Node
	Children map[string]*Node
	EdgesOut map[string]*Edge
	EdgesIn  []*Edge

	syntheticID string
}

// NewNode creates a Node with empty child/edge indices, loading its
// declared dependency maps from m. Callers call BuildEdges once the Node
// is ready to be wired into a tree.
func NewNode(name, version string, m *manifest.Manifest) *Node {
	return &Node{
		Name:     name,
		Version:  version,
		Manifest: m,
		Children: make(map[string]*Node),
		EdgesOut: make(map[string]*Edge),
	}
}

// RegistryLookupName is the name to resolve this Node's packument under:
// RegistryName when aliased, otherwise the declared Name.
func (n *Node) RegistryLookupName() string {
	if n.RegistryName != "" {
		return n.RegistryName
	}
	return n.Name
}

// CreateRoot builds the root Node of a tree from the project manifest at
// path, making the Node its own root reference.
func CreateRoot(path string, m *manifest.Manifest) *Node {
	n := NewNode(m.Name, m.Version, m)
	n.IsRoot = true
	n.Path = path
	n.Location = ""
	n.RootNode = n
	return n
}

// LockEntry is the subset of a canonical lockfile package entry needed to
// reconstruct a virtual-tree Node, decoupling pkg/tree from the lockfile
// package's richer schema types.
type LockEntry struct {
	Name                 string // registry name, if this entry is aliased
	Version              string
	Resolved             string
	Integrity            string
	Dev, Optional, Peer  bool
	Dependencies         map[string]string
	OptionalDependencies map[string]string
	PeerDependencies     map[string]string
	PeerDependenciesMeta map[string]manifest.PeerMeta
	Bin                  map[string]string
}

// CreateFromLockEntry builds a virtual-tree Node from a lockfile entry.
// If the entry's own name differs from the declared folder name, the
// declared name is an alias and the entry's name becomes RegistryName.
func CreateFromLockEntry(name string, entry *LockEntry, root *Node) *Node {
	m := &manifest.Manifest{
		Name:                 name,
		Version:              entry.Version,
		Dependencies:         entry.Dependencies,
		OptionalDependencies: entry.OptionalDependencies,
		PeerDependencies:     entry.PeerDependencies,
		PeerDependenciesMeta: entry.PeerDependenciesMeta,
		Bin:                  entry.Bin,
	}
	n := NewNode(name, entry.Version, m)
	if entry.Name != "" && entry.Name != name {
		n.RegistryName = entry.Name
	}
	n.ResolvedURL = entry.Resolved
	n.Integrity = entry.Integrity
	n.Dev = entry.Dev
	n.Optional = entry.Optional
	n.Peer = entry.Peer
	n.RootNode = root
	return n
}

// CreateFromPackument builds a Node from a registry packument's
// per-version manifest data, lifting dist.tarball/dist.integrity onto
// the Node's resolved-artifact fields.
func CreateFromPackument(name, version string, versionData *manifest.Manifest) *Node {
	n := NewNode(name, version, versionData)
	if versionData.Dist != nil {
		n.ResolvedURL = versionData.Dist.Tarball
		n.Integrity = versionData.Dist.Integrity
	}
	return n
}

// SetParent atomically re-parents n under p: removes n from any previous
// parent's child map, installs it under p keyed by n.Name, and recomputes
// location for n and every transitive descendant. A nil p detaches n.
func (n *Node) SetParent(p *Node) {
	if n.Parent != nil {
		delete(n.Parent.Children, n.Name)
	}
	n.Parent = p
	if p != nil {
		p.Children[n.Name] = n
	}
	recomputeLocations(n)
}

func recomputeLocations(n *Node) {
	switch {
	case n.IsRoot:
		n.Location = ""
		n.RootNode = n
	case n.Parent == nil:
		n.Location = ""
		n.RootNode = nil
	default:
		n.Location = joinLocation(n.Parent.Location, n.Name)
		n.RootNode = n.Parent.RootNode
	}
	for _, child := range n.Children {
		recomputeLocations(child)
	}
}

func joinLocation(parentLocation, name string) string {
	if parentLocation == "" {
		return "node_modules/" + name
	}
	return parentLocation + "/node_modules/" + name
}

// Resolve returns n's own child named name if present, otherwise recurses
// into the parent; walking stops at the root.
func (n *Node) Resolve(name string) *Node {
	if child, ok := n.Children[name]; ok {
		return child
	}
	if n.Parent == nil {
		return nil
	}
	return n.Parent.Resolve(name)
}

// Satisfies reports whether n's installed version satisfies range,
// delegating to the version algebra. A Node whose own version fails to
// parse can never satisfy anything.
func (n *Node) Satisfies(rangeStr string) bool {
	ok, err := semver.Satisfies(n.Version, rangeStr)
	if err != nil {
		return false
	}
	return ok
}

// BuildEdges clears edges-out and rebuilds it from the Node's manifest:
// production dependencies first, then (root only) development
// dependencies for names not already declared, then optional
// dependencies, then peer dependencies. A name already claimed by an
// earlier category is never overwritten by a later one.
func (n *Node) BuildEdges() {
	for _, e := range n.EdgesOut {
		e.detachFromTarget()
	}
	n.EdgesOut = make(map[string]*Edge)

	if n.Manifest == nil {
		return
	}

	for name, spec := range n.Manifest.Dependencies {
		n.addEdgeIfAbsent(name, spec, Production)
	}
	if n.IsRoot {
		for name, spec := range n.Manifest.DevDependencies {
			n.addEdgeIfAbsent(name, spec, Development)
		}
	}
	for name, spec := range n.Manifest.OptionalDependencies {
		n.addEdgeIfAbsent(name, spec, Optional)
	}
	for name, spec := range n.Manifest.PeerDependencies {
		t := Peer
		if meta, ok := n.Manifest.PeerDependenciesMeta[name]; ok && meta.Optional {
			t = PeerOptional
		}
		n.addEdgeIfAbsent(name, spec, t)
	}
}

func (n *Node) addEdgeIfAbsent(name, spec string, t EdgeType) {
	if _, exists := n.EdgesOut[name]; exists {
		return
	}
	n.AddEdge(name, spec, t)
}

// AddEdge parses spec for an npm: alias, stores the resulting Edge under
// name in n's edges-out map, and immediately reloads it.
func (n *Node) AddEdge(name, spec string, t EdgeType) *Edge {
	e := newEdge(n, name, spec, t)
	n.EdgesOut[name] = e
	e.Reload()
	return e
}

// ProblemEdges returns every outgoing edge that is missing or invalid —
// the set the ideal-tree builder still needs to resolve.
func (n *Node) ProblemEdges() []*Edge {
	var problems []*Edge
	for _, e := range n.EdgesOut {
		if e.Problem() {
			problems = append(problems, e)
		}
	}
	return problems
}

func (n *Node) addEdgeIn(e *Edge) {
	for _, existing := range n.EdgesIn {
		if existing == e {
			return
		}
	}
	n.EdgesIn = append(n.EdgesIn, e)
}

func (n *Node) removeEdgeIn(e *Edge) {
	for i, existing := range n.EdgesIn {
		if existing == e {
			n.EdgesIn = append(n.EdgesIn[:i], n.EdgesIn[i+1:]...)
			return
		}
	}
}

// Depth returns the number of node_modules hops from the root: 0 for the
// root itself.
func (n *Node) Depth() int {
	depth := 0
	for cur := n; cur.Parent != nil; cur = cur.Parent {
		depth++
	}
	return depth
}

// IsDescendantOf reports whether n is equal to or nested under ancestor.
func (n *Node) IsDescendantOf(ancestor *Node) bool {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur == ancestor {
			return true
		}
	}
	return false
}
