package reify

import (
	"archive/tar"
	"bytes"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/spf13/afero"
)

// Extractor unpacks a downloaded npm tarball into destDir. pkgforge only
// ships one implementation, TarGzExtractor, but internal/fswriter
// depends on the Extractor interface rather than this concrete type so
// its own tests can substitute a fake.
type Extractor interface {
	Extract(fs afero.Fs, data []byte, destDir string) error
}

// TarGzExtractor decompresses with klauspost/compress/gzip and decodes
// with the standard library's archive/tar — no retrieval-pack repo ships
// a complete alternative tar reader, and npm tarballs are plain gzipped
// tar archives, so the decode step itself stays on the standard library.
// Entry paths are defended against zip-slip the same way
// internal/orchestrator/orchestrator.go's extractZip guards zip entries:
// filepath.IsLocal first, then a resolved-path containment check.
type TarGzExtractor struct{}

// NewTarGzExtractor returns the default Extractor.
func NewTarGzExtractor() *TarGzExtractor {
	return &TarGzExtractor{}
}

// Extract implements Extractor. Every entry's path has its first
// directory component stripped, whatever its name (npm tarballs use
// "package/"); entries with no directory component are skipped.
func (TarGzExtractor) Extract(fs afero.Fs, data []byte, destDir string) error {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("opening gzip stream: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading tar entry: %w", err)
		}

		name := stripTopLevelDir(hdr.Name)
		if name == "" {
			continue
		}
		if !filepath.IsLocal(name) {
			log.Printf("reify: skipping dangerous path in tarball: %s", hdr.Name)
			continue
		}

		path := filepath.Join(destDir, name)
		if !isSubPath(path, destDir) {
			log.Printf("reify: skipping path that escapes destination: %s", hdr.Name)
			continue
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := fs.MkdirAll(path, os.FileMode(hdr.Mode)); err != nil {
				return fmt.Errorf("creating directory %s: %w", path, err)
			}
		case tar.TypeReg:
			if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return fmt.Errorf("creating directory %s: %w", filepath.Dir(path), err)
			}
			out, err := fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, os.FileMode(hdr.Mode))
			if err != nil {
				return fmt.Errorf("creating file %s: %w", path, err)
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return fmt.Errorf("writing file %s: %w", path, err)
			}
			if err := out.Close(); err != nil {
				return fmt.Errorf("closing file %s: %w", path, err)
			}
		default:
			// symlinks and other entry types inside a tarball are not
			// followed; npm tarballs don't legitimately contain them.
			continue
		}
	}
}

// stripTopLevelDir removes an npm tarball's conventional "package/"
// wrapper directory from an entry name.
func stripTopLevelDir(name string) string {
	name = strings.TrimPrefix(name, "./")
	idx := strings.IndexByte(name, '/')
	if idx == -1 {
		return ""
	}
	return name[idx+1:]
}

// isSubPath reports whether path resolves to a location inside base.
func isSubPath(path, base string) bool {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return false
	}
	return !filepath.IsAbs(rel) && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
