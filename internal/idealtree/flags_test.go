package idealtree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkgforge/pkgforge/internal/manifest"
	"github.com/pkgforge/pkgforge/pkg/tree"
)

func TestFixFlagsMarksUnreachableNodeExtraneous(t *testing.T) {
	root := tree.CreateRoot("/project", &manifest.Manifest{
		Name:    "root",
		Version: "1.0.0",
	})

	orphan := tree.NewNode("orphan", "1.0.0", &manifest.Manifest{Name: "orphan", Version: "1.0.0"})
	orphan.SetParent(root)

	inv := tree.NewInventory()
	inv.Add(root)
	inv.Add(orphan)

	FixFlags(root, inv)

	require.True(t, orphan.Extraneous)
}

func TestFixFlagsPropagatesDevAndOptionalFlags(t *testing.T) {
	root := tree.CreateRoot("/project", &manifest.Manifest{
		Name:                 "root",
		Version:              "1.0.0",
		DevDependencies:      map[string]string{"devtool": "^1.0.0"},
		OptionalDependencies: map[string]string{"opt": "^1.0.0"},
	})
	root.BuildEdges()

	devtool := tree.NewNode("devtool", "1.0.0", &manifest.Manifest{Name: "devtool", Version: "1.0.0"})
	devtool.SetParent(root)
	devtool.BuildEdges()

	opt := tree.NewNode("opt", "1.0.0", &manifest.Manifest{Name: "opt", Version: "1.0.0"})
	opt.SetParent(root)
	opt.BuildEdges()

	root.BuildEdges() // reload root's edges now that children exist

	inv := tree.NewInventory()
	inv.Add(root)
	inv.Add(devtool)
	inv.Add(opt)

	FixFlags(root, inv)

	assert.True(t, devtool.Dev)
	assert.False(t, devtool.Extraneous)
	assert.True(t, opt.Optional)
	assert.False(t, opt.Extraneous)
}

func TestFixFlagsSetsPeerFromOutgoingPeerEdge(t *testing.T) {
	root := tree.CreateRoot("/project", &manifest.Manifest{
		Name:         "root",
		Version:      "1.0.0",
		Dependencies: map[string]string{"a": "^1.0.0"},
	})
	root.BuildEdges()

	a := tree.NewNode("a", "1.0.0", &manifest.Manifest{
		Name:             "a",
		Version:          "1.0.0",
		PeerDependencies: map[string]string{"react": "^17.0.0"},
	})
	a.SetParent(root)

	react := tree.NewNode("react", "17.0.0", &manifest.Manifest{Name: "react", Version: "17.0.0"})
	react.SetParent(root)

	a.BuildEdges()
	root.BuildEdges()

	inv := tree.NewInventory()
	inv.Add(root)
	inv.Add(a)
	inv.Add(react)

	FixFlags(root, inv)

	assert.True(t, a.Peer)
	assert.False(t, react.Peer)
}
