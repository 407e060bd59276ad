package fswriter

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkgforge/pkgforge/internal/manifest"
	"github.com/pkgforge/pkgforge/pkg/tree"
)

type fakeExtractor struct {
	files map[string]string
	err   error
}

func (f *fakeExtractor) Extract(fs afero.Fs, data []byte, destDir string) error {
	if f.err != nil {
		return f.err
	}
	for name, content := range f.files {
		if err := afero.WriteFile(fs, destDir+"/"+name, []byte(content), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func buildNode() (*tree.Node, *tree.Node) {
	root := tree.CreateRoot("/project", &manifest.Manifest{Name: "demo", Version: "1.0.0"})
	a := tree.NewNode("a", "1.2.3", &manifest.Manifest{Name: "a", Version: "1.2.3"})
	a.SetParent(root)
	return root, a
}

func TestWriteNodeExtractsIntoRealPath(t *testing.T) {
	fs := afero.NewMemMapFs()
	w := NewWriter(fs)
	_, a := buildNode()

	extractor := &fakeExtractor{files: map[string]string{"package.json": `{"name":"a","version":"1.2.3"}`}}
	require.NoError(t, w.WriteNode(a, []byte("tarball-bytes"), extractor))

	exists, err := afero.Exists(fs, "/project/node_modules/a/package.json")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestWriteNodeRemovesExistingDestinationFirst(t *testing.T) {
	fs := afero.NewMemMapFs()
	w := NewWriter(fs)
	_, a := buildNode()

	require.NoError(t, afero.WriteFile(fs, "/project/node_modules/a/stale.txt", []byte("old"), 0o644))

	extractor := &fakeExtractor{files: map[string]string{"package.json": `{"name":"a","version":"1.2.3"}`}}
	require.NoError(t, w.WriteNode(a, []byte("tarball-bytes"), extractor))

	exists, err := afero.Exists(fs, "/project/node_modules/a/stale.txt")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestWriteNodeWrapsExtractorFailure(t *testing.T) {
	fs := afero.NewMemMapFs()
	w := NewWriter(fs)
	_, a := buildNode()

	err := w.WriteNode(a, nil, &fakeExtractor{err: assert.AnError})
	require.Error(t, err)
}

func TestRemoveNodeDeletesDirectory(t *testing.T) {
	fs := afero.NewMemMapFs()
	w := NewWriter(fs)
	_, a := buildNode()
	require.NoError(t, afero.WriteFile(fs, "/project/node_modules/a/package.json", []byte(`{}`), 0o644))

	require.NoError(t, w.RemoveNode(a))

	exists, err := afero.Exists(fs, "/project/node_modules/a")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestNodeExistsRequiresManifest(t *testing.T) {
	fs := afero.NewMemMapFs()
	w := NewWriter(fs)
	_, a := buildNode()

	assert.False(t, w.NodeExists(a))

	require.NoError(t, fs.MkdirAll("/project/node_modules/a", 0o755))
	assert.False(t, w.NodeExists(a), "directory without a manifest is not a complete install")

	require.NoError(t, afero.WriteFile(fs, "/project/node_modules/a/package.json", []byte(`{}`), 0o644))
	assert.True(t, w.NodeExists(a))
}

func TestInstalledVersionReadsManifest(t *testing.T) {
	fs := afero.NewMemMapFs()
	w := NewWriter(fs)
	_, a := buildNode()

	_, ok := w.InstalledVersion(a)
	assert.False(t, ok)

	require.NoError(t, afero.WriteFile(fs, "/project/node_modules/a/package.json", []byte(`{"name":"a","version":"1.2.3"}`), 0o644))
	v, ok := w.InstalledVersion(a)
	require.True(t, ok)
	assert.Equal(t, "1.2.3", v)
}

func TestCreateBinLinksReportsUnsupportedOnNonLinkingFs(t *testing.T) {
	fs := afero.NewMemMapFs()
	w := NewWriter(fs)
	root, a := buildNode()
	a.Manifest.Bin = map[string]string{"a-cli": "./bin/cli.js"}

	err := w.CreateBinLinks(root, a)
	require.Error(t, err, "MemMapFs does not implement afero.Linker")
}

func TestCreateBinLinksNoOpWithoutBinEntries(t *testing.T) {
	fs := afero.NewMemMapFs()
	w := NewWriter(fs)
	root, a := buildNode()

	require.NoError(t, w.CreateBinLinks(root, a))
}
