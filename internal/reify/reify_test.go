package reify

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkgforge/pkgforge/internal/fswriter"
	"github.com/pkgforge/pkgforge/internal/manifest"
	"github.com/pkgforge/pkgforge/internal/progress"
	"github.com/pkgforge/pkgforge/internal/registry"
	"github.com/pkgforge/pkgforge/pkg/integrity"
	"github.com/pkgforge/pkgforge/pkg/tree"
)

// buildTarGz packages files (path -> content) into an npm-style tarball
// wrapped under a single "package/" directory.
func buildTarGz(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, content := range files {
		hdr := &tar.Header{Name: "package/" + name, Mode: 0o644, Size: int64(len(content)), Typeflag: tar.TypeReg}
		require.NoError(t, tw.WriteHeader(hdr))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

type fakeSource struct {
	tarballs map[string][]byte
	failURLs map[string]bool
}

func (f *fakeSource) FetchTarball(ctx context.Context, name, url string) ([]byte, error) {
	if f.failURLs[url] {
		return nil, fmt.Errorf("simulated fetch failure for %s", url)
	}
	data, ok := f.tarballs[url]
	if !ok {
		return nil, fmt.Errorf("no tarball registered for %s", url)
	}
	return data, nil
}

func (f *fakeSource) FetchTarballsParallel(ctx context.Context, reqs []registry.TarballRequest) (map[string][]byte, error) {
	out := make(map[string][]byte, len(reqs))
	for _, req := range reqs {
		data, err := f.FetchTarball(ctx, req.Name, req.URL)
		if err != nil {
			return nil, err
		}
		out[req.Name] = data
	}
	return out, nil
}

func newTestReifier(fs afero.Fs, source TarballSource) (*tree.Node, *Reifier) {
	root := tree.CreateRoot("/project", &manifest.Manifest{Name: "demo", Version: "1.0.0"})
	writer := fswriter.NewWriter(fs)
	r := NewReifier(root, writer, source, nil)
	return root, r
}

func TestReifyInstallsAddedNodes(t *testing.T) {
	fs := afero.NewMemMapFs()
	tarball := buildTarGz(t, map[string]string{"package.json": `{"name":"a","version":"1.2.3"}`})

	root, r := newTestReifier(fs, &fakeSource{tarballs: map[string][]byte{
		"https://registry.npmjs.org/a/-/a-1.2.3.tgz": tarball,
	}})

	a := tree.NewNode("a", "1.2.3", &manifest.Manifest{Name: "a", Version: "1.2.3"})
	a.ResolvedURL = "https://registry.npmjs.org/a/-/a-1.2.3.tgz"
	a.SetParent(root)

	err := r.Reify(context.Background(), Plan{Add: []*tree.Node{a}})
	require.NoError(t, err)

	exists, err := afero.Exists(fs, "/project/node_modules/a/package.json")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestReifyVerifiesIntegrityAndAbortsOnMismatch(t *testing.T) {
	fs := afero.NewMemMapFs()
	tarball := buildTarGz(t, map[string]string{"package.json": `{"name":"a","version":"1.2.3"}`})

	root, r := newTestReifier(fs, &fakeSource{tarballs: map[string][]byte{
		"https://registry.npmjs.org/a/-/a-1.2.3.tgz": tarball,
	}})

	a := tree.NewNode("a", "1.2.3", &manifest.Manifest{Name: "a", Version: "1.2.3"})
	a.ResolvedURL = "https://registry.npmjs.org/a/-/a-1.2.3.tgz"
	a.Integrity = "sha512-0000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000="
	a.SetParent(root)

	err := r.Reify(context.Background(), Plan{Add: []*tree.Node{a}})
	require.Error(t, err)

	exists, _ := afero.Exists(fs, "/project/node_modules/a/package.json")
	assert.False(t, exists, "a mismatched download must not be written to disk")
}

func TestReifyPassesWithCorrectIntegrity(t *testing.T) {
	fs := afero.NewMemMapFs()
	tarball := buildTarGz(t, map[string]string{"package.json": `{"name":"a","version":"1.2.3"}`})
	fullIntegrity, err := integrity.Calculate(tarball, integrity.SHA512)
	require.NoError(t, err)

	root, r := newTestReifier(fs, &fakeSource{tarballs: map[string][]byte{
		"https://registry.npmjs.org/a/-/a-1.2.3.tgz": tarball,
	}})

	a := tree.NewNode("a", "1.2.3", &manifest.Manifest{Name: "a", Version: "1.2.3"})
	a.ResolvedURL = "https://registry.npmjs.org/a/-/a-1.2.3.tgz"
	a.Integrity = fullIntegrity
	a.SetParent(root)

	require.NoError(t, r.Reify(context.Background(), Plan{Add: []*tree.Node{a}}))
}

func TestReifyRemovesStaleNodes(t *testing.T) {
	fs := afero.NewMemMapFs()
	root, r := newTestReifier(fs, &fakeSource{})

	stale := tree.NewNode("old", "0.9.0", &manifest.Manifest{Name: "old", Version: "0.9.0"})
	stale.SetParent(root)
	require.NoError(t, afero.WriteFile(fs, "/project/node_modules/old/package.json", []byte(`{}`), 0o644))

	err := r.Reify(context.Background(), Plan{Remove: []*tree.Node{stale}})
	require.NoError(t, err)

	exists, _ := afero.Exists(fs, "/project/node_modules/old")
	assert.False(t, exists)
}

func TestReifyAnyDownloadFailureAbortsWholeBatch(t *testing.T) {
	fs := afero.NewMemMapFs()
	tarball := buildTarGz(t, map[string]string{"package.json": `{"name":"a","version":"1.0.0"}`})

	root, r := newTestReifier(fs, &fakeSource{
		tarballs: map[string][]byte{"https://registry.npmjs.org/a/-/a-1.0.0.tgz": tarball},
		failURLs: map[string]bool{"https://registry.npmjs.org/b/-/b-1.0.0.tgz": true},
	})

	a := tree.NewNode("a", "1.0.0", &manifest.Manifest{Name: "a", Version: "1.0.0"})
	a.ResolvedURL = "https://registry.npmjs.org/a/-/a-1.0.0.tgz"
	a.SetParent(root)
	b := tree.NewNode("b", "1.0.0", &manifest.Manifest{Name: "b", Version: "1.0.0"})
	b.ResolvedURL = "https://registry.npmjs.org/b/-/b-1.0.0.tgz"
	b.SetParent(root)

	err := r.Reify(context.Background(), Plan{Add: []*tree.Node{a, b}})
	require.Error(t, err)

	exists, _ := afero.Exists(fs, "/project/node_modules/a/package.json")
	assert.False(t, exists, "no partial install state once the batch fails")
}

func TestReifyEmitsProgressEvents(t *testing.T) {
	fs := afero.NewMemMapFs()
	tarball := buildTarGz(t, map[string]string{"package.json": `{"name":"a","version":"1.0.0"}`})

	root := tree.CreateRoot("/project", &manifest.Manifest{Name: "demo", Version: "1.0.0"})
	writer := fswriter.NewWriter(fs)

	var events []progress.Event
	r := NewReifier(root, writer, &fakeSource{tarballs: map[string][]byte{
		"https://registry.npmjs.org/a/-/a-1.0.0.tgz": tarball,
	}}, func(evt progress.Event) { events = append(events, evt) })

	a := tree.NewNode("a", "1.0.0", &manifest.Manifest{Name: "a", Version: "1.0.0"})
	a.ResolvedURL = "https://registry.npmjs.org/a/-/a-1.0.0.tgz"
	a.SetParent(root)

	require.NoError(t, r.Reify(context.Background(), Plan{Add: []*tree.Node{a}}))

	require.NotEmpty(t, events)
	assert.Equal(t, progress.Done, events[len(events)-1].Type)
}
