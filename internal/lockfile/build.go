package lockfile

import "github.com/pkgforge/pkgforge/pkg/tree"

// BuildCanonicalFromTree walks the final, reified tree and produces the
// canonical lockfile form to persist to disk: the root entry plus one
// entry per non-extraneous Node, keyed by its location.
func BuildCanonicalFromTree(root *tree.Node) *Canonical {
	c := NewCanonical(root.Name, root.Version)

	for _, n := range collectNodes(root) {
		if n.IsRoot {
			continue
		}
		c.Packages[n.Location] = nodeToEntry(n)
	}

	return c
}

func collectNodes(n *tree.Node) []*tree.Node {
	nodes := []*tree.Node{n}
	for _, child := range n.Children {
		nodes = append(nodes, collectNodes(child)...)
	}
	return nodes
}

func nodeToEntry(n *tree.Node) *Entry {
	entry := &Entry{
		Version:   n.Version,
		Resolved:  n.ResolvedURL,
		Integrity: n.Integrity,
		Dev:       n.Dev,
		Optional:  n.Optional,
		Peer:      n.Peer,
	}
	if n.RegistryName != "" {
		entry.Name = n.RegistryName
	}
	if n.Manifest != nil {
		entry.Dependencies = n.Manifest.Dependencies
		entry.OptionalDependencies = n.Manifest.OptionalDependencies
		entry.PeerDependencies = n.Manifest.PeerDependencies
		entry.PeerDependenciesMeta = n.Manifest.PeerDependenciesMeta
		entry.Engines = n.Manifest.Engines
		entry.Bin = n.Manifest.Bin
	}
	return entry
}
