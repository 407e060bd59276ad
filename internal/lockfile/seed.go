package lockfile

import (
	"sort"
	"strings"

	"github.com/pkgforge/pkgforge/pkg/tree"
)

// SeedVirtualTree builds a virtual tree.Node hierarchy from a canonical
// lockfile, rooted at root, so the ideal-tree builder can treat
// previously-locked versions as starting candidates instead of
// re-resolving every dependency against the registry from scratch.
// Entries are installed in ascending location-depth order so every
// non-root entry's parent location already has a Node by the time it is
// reached.
func SeedVirtualTree(root *tree.Node, c *Canonical) {
	locations := make([]string, 0, len(c.Packages))
	for loc := range c.Packages {
		if loc != "" {
			locations = append(locations, loc)
		}
	}
	sort.Slice(locations, func(i, j int) bool {
		return strings.Count(locations[i], "node_modules/") < strings.Count(locations[j], "node_modules/")
	})

	byLocation := map[string]*tree.Node{"": root}

	for _, loc := range locations {
		entry := c.Packages[loc]
		parentLoc, name := splitParentLocation(loc)
		parent, ok := byLocation[parentLoc]
		if !ok {
			continue // orphaned entry: its parent wasn't in the lockfile either
		}

		lockEntry := &tree.LockEntry{
			Name:                 entry.Name,
			Version:              entry.Version,
			Resolved:             entry.Resolved,
			Integrity:            entry.Integrity,
			Dev:                  entry.Dev,
			Optional:             entry.Optional,
			Peer:                 entry.Peer,
			Dependencies:         entry.Dependencies,
			OptionalDependencies: entry.OptionalDependencies,
			PeerDependencies:     entry.PeerDependencies,
			PeerDependenciesMeta: entry.PeerDependenciesMeta,
			Bin:                  entry.Bin,
		}

		n := tree.CreateFromLockEntry(name, lockEntry, root.RootNode)
		n.SetParent(parent)
		n.BuildEdges()
		byLocation[loc] = n
	}
}

// splitParentLocation splits a canonical location into its parent
// location and its own declared name, e.g.
// "node_modules/a/node_modules/b" -> ("node_modules/a", "b").
func splitParentLocation(location string) (parentLocation, name string) {
	idx := strings.LastIndex(location, "/node_modules/")
	if idx == -1 {
		return "", strings.TrimPrefix(location, "node_modules/")
	}
	return location[:idx], location[idx+len("/node_modules/"):]
}
