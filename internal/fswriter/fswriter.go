// Package fswriter implements the on-disk half of reification: writing
// an extracted package into its Node's realpath, removing a Node's
// directory, and maintaining the shared .bin shim directory. Every
// operation is built against afero.Fs rather than bare os.* calls, the
// way internal/orchestrator/orchestrator.go took a tempDir string and
// never assumed a concrete filesystem root, so fswriter_test.go exercises
// the whole surface against afero.NewMemMapFs() without touching disk.
package fswriter

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/pkgforge/pkgforge/internal/errs"
	"github.com/pkgforge/pkgforge/internal/manifest"
	"github.com/pkgforge/pkgforge/pkg/tree"
)

// Extractor unpacks a downloaded tarball into destDir, already stripped
// of the npm tarball's conventional single top-level directory. It is
// the interface internal/reify's TarGzExtractor implements; fswriter
// depends only on the interface so its tests can substitute a fake.
type Extractor interface {
	Extract(fs afero.Fs, data []byte, destDir string) error
}

// Writer performs Node-level filesystem operations rooted at a tree's
// realpaths.
type Writer struct {
	fs afero.Fs
}

// NewWriter returns a Writer backed by fs. Real callers pass
// afero.NewOsFs(); tests pass afero.NewMemMapFs().
func NewWriter(fs afero.Fs) *Writer {
	return &Writer{fs: fs}
}

// RealPath returns the filesystem path a Node occupies: the root's
// project path joined with the Node's canonical node_modules location.
func RealPath(n *tree.Node) string {
	return filepath.Join(n.RootNode.Path, filepath.FromSlash(n.Location))
}

// WriteNode implements write_node from spec §4.9: ensure the parent
// directory exists, remove any existing destination, then hand the
// tarball bytes to extractor.
func (w *Writer) WriteNode(n *tree.Node, data []byte, extractor Extractor) error {
	dest := RealPath(n)
	if err := w.fs.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return &errs.FilesystemError{Path: dest, Op: "mkdir parent", Err: err}
	}
	if err := w.fs.RemoveAll(dest); err != nil {
		return &errs.FilesystemError{Path: dest, Op: "remove existing", Err: err}
	}
	if err := w.fs.MkdirAll(dest, 0o755); err != nil {
		return &errs.FilesystemError{Path: dest, Op: "mkdir destination", Err: err}
	}
	if err := extractor.Extract(w.fs, data, dest); err != nil {
		return &errs.FilesystemError{Path: dest, Op: "extract", Err: err}
	}
	return nil
}

// RemoveNode implements remove_node: recursively delete the Node's
// realpath. afero.Fs.RemoveAll does not follow symlinks it encounters
// along the way, matching the "unlink, never recurse through" rule.
func (w *Writer) RemoveNode(n *tree.Node) error {
	dest := RealPath(n)
	if err := w.fs.RemoveAll(dest); err != nil {
		return &errs.FilesystemError{Path: dest, Op: "remove", Err: err}
	}
	return nil
}

// NodeExists implements node_exists: the realpath is a directory and
// contains a manifest file.
func (w *Writer) NodeExists(n *tree.Node) bool {
	dest := RealPath(n)
	info, err := w.fs.Stat(dest)
	if err != nil || !info.IsDir() {
		return false
	}
	_, err = w.fs.Stat(filepath.Join(dest, "package.json"))
	return err == nil
}

// InstalledVersion implements installed_version: read the on-disk
// manifest's version field. Returns ok=false if no manifest is present
// or it fails to parse.
func (w *Writer) InstalledVersion(n *tree.Node) (string, bool) {
	data, err := afero.ReadFile(w.fs, filepath.Join(RealPath(n), "package.json"))
	if err != nil {
		return "", false
	}
	m, err := manifest.Parse(data)
	if err != nil {
		return "", false
	}
	return m.Version, true
}

// CreateBinLinks implements create_bin_links: for each entry in the
// Node's manifest.bin, relative-symlink the target into
// <root>/node_modules/.bin/<name>, replacing any existing entry, and
// mark the target executable.
func (w *Writer) CreateBinLinks(root *tree.Node, n *tree.Node) error {
	if n.Manifest == nil || len(n.Manifest.Bin) == 0 {
		return nil
	}

	binDir := filepath.Join(root.Path, "node_modules", ".bin")
	if err := w.fs.MkdirAll(binDir, 0o755); err != nil {
		return &errs.FilesystemError{Path: binDir, Op: "mkdir bin dir", Err: err}
	}

	linker, ok := w.fs.(afero.Linker)
	if !ok {
		return &errs.FilesystemError{Path: binDir, Op: "symlink", Err: fmt.Errorf("filesystem does not support symlinks")}
	}

	for name, target := range n.Manifest.Bin {
		targetPath := filepath.Join(RealPath(n), filepath.FromSlash(target))
		linkPath := filepath.Join(binDir, name)

		_ = w.fs.Remove(linkPath)

		rel, err := filepath.Rel(binDir, targetPath)
		if err != nil {
			rel = targetPath
		}
		if err := linker.SymlinkIfPossible(rel, linkPath); err != nil {
			return &errs.FilesystemError{Path: linkPath, Op: "symlink", Err: err}
		}
		if err := w.fs.Chmod(targetPath, 0o755); err != nil {
			return &errs.FilesystemError{Path: targetPath, Op: "chmod", Err: err}
		}
	}
	return nil
}

// RemoveBinLinks removes every .bin entry a Node's manifest declares,
// used by the remove phase ahead of deleting the Node's own directory.
func (w *Writer) RemoveBinLinks(root *tree.Node, n *tree.Node) error {
	if n.Manifest == nil || len(n.Manifest.Bin) == 0 {
		return nil
	}
	binDir := filepath.Join(root.Path, "node_modules", ".bin")
	for name := range n.Manifest.Bin {
		linkPath := filepath.Join(binDir, name)
		if err := w.fs.Remove(linkPath); err != nil && !os.IsNotExist(err) {
			return &errs.FilesystemError{Path: linkPath, Op: "remove bin link", Err: err}
		}
	}
	return nil
}
