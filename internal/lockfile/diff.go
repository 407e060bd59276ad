package lockfile

import (
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/pkgforge/pkgforge/internal/manifest"
	"github.com/pkgforge/pkgforge/pkg/tree"
)

// Diff is the set-difference between a tree's actual locations and a
// lockfile's canonical ones.
type Diff struct {
	Add    []string // present in tree, absent from lockfile
	Remove []string // present in lockfile, absent from tree
	Update []string // present in both, version mismatch
}

// DiffTreeAgainstLockfile compares every non-root Node in inv against
// the canonical lockfile's packages, keyed by location.
func DiffTreeAgainstLockfile(inv *tree.Inventory, c *Canonical) Diff {
	var d Diff

	treeLocations := make(map[string]*tree.Node)
	for _, n := range inv.All() {
		if n.IsRoot || n.Location == "" {
			continue
		}
		treeLocations[n.Location] = n
	}

	for loc, n := range treeLocations {
		entry, ok := c.Packages[loc]
		if !ok {
			d.Add = append(d.Add, loc)
			continue
		}
		if entry.Version != n.Version {
			d.Update = append(d.Update, loc)
		}
	}
	for loc := range c.Packages {
		if loc == "" {
			continue
		}
		if _, ok := treeLocations[loc]; !ok {
			d.Remove = append(d.Remove, loc)
		}
	}

	return d
}

// VerifyStatus is the per-location outcome of Verify.
type VerifyStatus string

const (
	VerifyOK              VerifyStatus = "ok"
	VerifyMissing         VerifyStatus = "missing"
	VerifyMissingManifest VerifyStatus = "missing_manifest"
	VerifyVersionMismatch VerifyStatus = "version_mismatch"
	VerifyInvalidManifest VerifyStatus = "invalid_manifest"
)

// VerifyResult reports the outcome for one non-root lockfile location.
type VerifyResult struct {
	Location string
	Status   VerifyStatus
}

// Verify checks, for each non-root location in the canonical lockfile,
// that root/<location> exists on disk, has a readable package.json, and
// that its declared version matches the lockfile's.
func Verify(fs afero.Fs, root string, c *Canonical) []VerifyResult {
	var results []VerifyResult

	for loc, entry := range c.Packages {
		if loc == "" {
			continue
		}
		path := filepath.Join(root, loc)

		info, err := fs.Stat(path)
		if err != nil || !info.IsDir() {
			results = append(results, VerifyResult{Location: loc, Status: VerifyMissing})
			continue
		}

		manifestPath := filepath.Join(path, "package.json")
		data, err := afero.ReadFile(fs, manifestPath)
		if err != nil {
			results = append(results, VerifyResult{Location: loc, Status: VerifyMissingManifest})
			continue
		}

		m, err := manifest.Parse(data)
		if err != nil {
			results = append(results, VerifyResult{Location: loc, Status: VerifyInvalidManifest})
			continue
		}

		if m.Version != entry.Version {
			results = append(results, VerifyResult{Location: loc, Status: VerifyVersionMismatch})
			continue
		}

		results = append(results, VerifyResult{Location: loc, Status: VerifyOK})
	}

	return results
}
