package tree

import (
	"testing"

	"github.com/pkgforge/pkgforge/internal/manifest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rootWithDeps(deps, devDeps map[string]string) *Node {
	m := &manifest.Manifest{
		Name:            "app",
		Version:         "1.0.0",
		Dependencies:    deps,
		DevDependencies: devDeps,
	}
	root := CreateRoot("/proj", m)
	root.BuildEdges()
	return root
}

func childNode(name, version string) *Node {
	return NewNode(name, version, &manifest.Manifest{Name: name, Version: version})
}

func TestSetParentComputesLocation(t *testing.T) {
	root := rootWithDeps(nil, nil)
	a := childNode("a", "1.0.0")
	a.SetParent(root)
	assert.Equal(t, "node_modules/a", a.Location)
	assert.Same(t, root, a.RootNode)

	b := childNode("b", "2.0.0")
	b.SetParent(a)
	assert.Equal(t, "node_modules/a/node_modules/b", b.Location)
	assert.Same(t, root, b.RootNode)
}

func TestSetParentRecomputesDescendantsOnReparent(t *testing.T) {
	root := rootWithDeps(nil, nil)
	other := childNode("other", "1.0.0")
	other.SetParent(root)

	a := childNode("a", "1.0.0")
	a.SetParent(root)
	b := childNode("b", "2.0.0")
	b.SetParent(a)

	// Move a under other; b's location must follow.
	a.SetParent(other)
	assert.Equal(t, "node_modules/other/node_modules/a", a.Location)
	assert.Equal(t, "node_modules/other/node_modules/a/node_modules/b", b.Location)

	_, stillUnderRoot := root.Children["a"]
	assert.False(t, stillUnderRoot)
	assert.Same(t, a, other.Children["a"])
}

func TestResolveWalksUpToRoot(t *testing.T) {
	root := rootWithDeps(nil, nil)
	a := childNode("a", "1.0.0")
	a.SetParent(root)
	shared := childNode("shared", "3.0.0")
	shared.SetParent(root)

	b := childNode("b", "1.0.0")
	b.SetParent(a)

	assert.Same(t, shared, b.Resolve("shared"))
	assert.Nil(t, b.Resolve("nonexistent"))
	assert.Same(t, b, a.Resolve("b"))
}

func TestBuildEdgesProductionBeforeDevBeforeOptionalBeforePeer(t *testing.T) {
	m := &manifest.Manifest{
		Name:                 "app",
		Version:              "1.0.0",
		Dependencies:         map[string]string{"shared": "^1.0.0"},
		DevDependencies:      map[string]string{"shared": "^9.9.9", "only-dev": "^1.0.0"},
		OptionalDependencies: map[string]string{"shared": "^8.8.8", "only-opt": "^1.0.0"},
		PeerDependencies:     map[string]string{"shared": "^7.7.7"},
	}
	root := CreateRoot("/proj", m)
	root.BuildEdges()

	// production entry for "shared" wins over dev/optional/peer duplicates.
	assert.Equal(t, "^1.0.0", root.EdgesOut["shared"].Range)
	assert.Equal(t, Production, root.EdgesOut["shared"].Type)

	require.Contains(t, root.EdgesOut, "only-dev")
	assert.Equal(t, Development, root.EdgesOut["only-dev"].Type)
	require.Contains(t, root.EdgesOut, "only-opt")
	assert.Equal(t, Optional, root.EdgesOut["only-opt"].Type)
}

func TestBuildEdgesOnlyRootGetsDevEdges(t *testing.T) {
	m := &manifest.Manifest{
		Name:            "lib",
		Version:         "1.0.0",
		DevDependencies: map[string]string{"only-dev": "^1.0.0"},
	}
	nonRoot := NewNode("lib", "1.0.0", m)
	nonRoot.BuildEdges()
	assert.NotContains(t, nonRoot.EdgesOut, "only-dev")
}

func TestPeerOptionalFromMeta(t *testing.T) {
	m := &manifest.Manifest{
		Name:                 "consumer",
		Version:              "1.0.0",
		PeerDependencies:     map[string]string{"react": "^18.0.0"},
		PeerDependenciesMeta: map[string]manifest.PeerMeta{"react": {Optional: true}},
	}
	root := CreateRoot("/proj", m)
	root.BuildEdges()
	assert.Equal(t, PeerOptional, root.EdgesOut["react"].Type)
}

func TestEdgeReloadMissingNonOptional(t *testing.T) {
	root := rootWithDeps(map[string]string{"missing-pkg": "^1.0.0"}, nil)
	e := root.EdgesOut["missing-pkg"]
	assert.False(t, e.Valid)
	assert.Equal(t, ErrMissing, e.Error)
	assert.Nil(t, e.To)
}

func TestEdgeReloadMissingOptionalIsValid(t *testing.T) {
	root := rootWithDeps(nil, nil)
	root.Manifest.OptionalDependencies = map[string]string{"opt-pkg": "^1.0.0"}
	root.BuildEdges()
	e := root.EdgesOut["opt-pkg"]
	assert.True(t, e.Valid)
	assert.Equal(t, "", e.Error)
	assert.Nil(t, e.To)
}

func TestEdgeReloadInvalidVersion(t *testing.T) {
	root := rootWithDeps(map[string]string{"a": "^2.0.0"}, nil)
	a := childNode("a", "1.0.0")
	a.SetParent(root)
	root.EdgesOut["a"].Reload()

	e := root.EdgesOut["a"]
	assert.False(t, e.Valid)
	assert.Equal(t, ErrInvalid, e.Error)
	assert.Same(t, a, e.To)

	// The invariant holds regardless of validity: a resolved edge (to != nil)
	// is listed in its target's edges-in.
	require.Len(t, a.EdgesIn, 1)
	assert.Same(t, e, a.EdgesIn[0])
}

func TestEdgeReloadValidRegistersEdgesIn(t *testing.T) {
	root := rootWithDeps(map[string]string{"a": "^1.0.0"}, nil)
	a := childNode("a", "1.2.3")
	a.SetParent(root)
	root.EdgesOut["a"].Reload()

	e := root.EdgesOut["a"]
	assert.True(t, e.Valid)
	require.Len(t, a.EdgesIn, 1)
	assert.Same(t, e, a.EdgesIn[0])
}

func TestEdgeReloadDropsFromPreviousTarget(t *testing.T) {
	root := rootWithDeps(map[string]string{"a": "^1.0.0"}, nil)
	oldA := childNode("a", "1.0.0")
	oldA.SetParent(root)
	edge := root.EdgesOut["a"]
	edge.Reload()
	require.Len(t, oldA.EdgesIn, 1)

	oldA.SetParent(nil) // simulate removal
	newA := childNode("a", "1.5.0")
	newA.SetParent(root)
	edge.Reload()

	assert.Empty(t, oldA.EdgesIn)
	require.Len(t, newA.EdgesIn, 1)
}

func TestSatisfiedBy(t *testing.T) {
	root := rootWithDeps(map[string]string{"a": "^1.0.0"}, nil)
	e := root.EdgesOut["a"]

	match := childNode("a", "1.5.0")
	assert.True(t, e.SatisfiedBy(match))

	wrongName := childNode("b", "1.5.0")
	assert.False(t, e.SatisfiedBy(wrongName))

	wrongVersion := childNode("a", "2.0.0")
	assert.False(t, e.SatisfiedBy(wrongVersion))
}

func TestAliasParsing(t *testing.T) {
	root := rootWithDeps(map[string]string{"foo": "npm:@scope/bar@^1"}, nil)
	e := root.EdgesOut["foo"]
	assert.Equal(t, "@scope/bar", e.RegistryName)
	assert.Equal(t, "^1", e.Range)
}

func TestAliasParsingWithoutVersionTail(t *testing.T) {
	root := rootWithDeps(map[string]string{"foo": "npm:left-pad"}, nil)
	e := root.EdgesOut["foo"]
	assert.Equal(t, "left-pad", e.RegistryName)
	assert.Equal(t, "*", e.Range)
}

func TestInventoryIndicesAndQuery(t *testing.T) {
	inv := NewInventory()
	root := rootWithDeps(nil, nil)
	inv.Add(root)

	a := childNode("a", "1.0.0")
	a.SetParent(root)
	inv.Add(a)

	got, ok := inv.Get("node_modules/a")
	require.True(t, ok)
	assert.Same(t, a, got)

	byNV, ok := inv.GetByNameVersion("a", "1.0.0")
	require.True(t, ok)
	assert.Same(t, a, byNV)

	matches := inv.Query("a", "^1.0.0")
	require.Len(t, matches, 1)
	assert.Same(t, a, matches[0])

	assert.Empty(t, inv.Query("a", "^2.0.0"))
}

func TestInventorySyntheticKeyForLocationlessNode(t *testing.T) {
	inv := NewInventory()
	floating := childNode("floating", "1.0.0") // never parented, has no location
	inv.Add(floating)

	assert.True(t, inv.Has(floating))
	all := inv.All()
	require.Len(t, all, 1)
	assert.Same(t, floating, all[0])
}

func TestScopedPackageLocation(t *testing.T) {
	root := rootWithDeps(nil, nil)
	scoped := childNode("@scope/name", "1.0.0")
	scoped.SetParent(root)
	assert.Equal(t, "node_modules/@scope/name", scoped.Location)

	nested := childNode("other", "1.0.0")
	nested.SetParent(scoped)
	assert.Equal(t, "node_modules/@scope/name/node_modules/other", nested.Location)
}
