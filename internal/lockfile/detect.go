package lockfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkgforge/pkgforge/internal/errs"
	"github.com/pkgforge/pkgforge/internal/manifest"
)

// Format names a lockfile dialect on disk.
type Format string

const (
	FormatNPMShrinkwrap Format = "npm-shrinkwrap.json"
	FormatNPMLock       Format = "package-lock.json"
	FormatYarnLock      Format = "yarn.lock"
)

// DetectPath finds the first lockfile present in dir, in priority order:
// npm-shrinkwrap.json, package-lock.json, yarn.lock. Returns "" if none
// exist.
func DetectPath(dir string) (string, Format) {
	for _, f := range []Format{FormatNPMShrinkwrap, FormatNPMLock, FormatYarnLock} {
		path := filepath.Join(dir, string(f))
		if _, err := os.Stat(path); err == nil {
			return path, f
		}
	}
	return "", ""
}

// rawNPMLock captures just the fields needed to detect an npm-style
// lockfile's schema version before fully decoding it.
type rawNPMLock struct {
	LockfileVersion int                        `json:"lockfileVersion"`
	Packages        map[string]json.RawMessage `json:"packages"`
	Dependencies    map[string]json.RawMessage `json:"dependencies"`
}

// DetectNPMVersion inspects raw npm-style lockfile JSON and returns its
// schema version per spec.md §4.7: an explicit lockfileVersion always
// wins; otherwise packages-without-dependencies is 3, both present is 2,
// dependencies-only is 1, and neither present defaults to 3.
func DetectNPMVersion(data []byte) (int, error) {
	var raw rawNPMLock
	if err := json.Unmarshal(data, &raw); err != nil {
		return 0, &errs.LockfileError{Err: fmt.Errorf("decoding lockfile version probe: %w", err)}
	}
	if raw.LockfileVersion != 0 {
		return raw.LockfileVersion, nil
	}
	switch {
	case raw.Packages != nil && raw.Dependencies == nil:
		return 3, nil
	case raw.Packages != nil && raw.Dependencies != nil:
		return 2, nil
	case raw.Dependencies != nil:
		return 1, nil
	default:
		return 3, nil
	}
}

// Load reads the lockfile at path (detected via DetectPath), normalizes
// it into canonical form, and returns it alongside the Format it came
// from. rootManifest is only consulted for the yarn-berry dialect, whose
// hoisting pass needs the project's own declared dependency maps to seed
// its BFS.
func Load(dir string, rootManifest *manifest.Manifest) (*Canonical, Format, error) {
	path, format := DetectPath(dir)
	if path == "" {
		return nil, "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, format, &errs.LockfileError{Path: path, Err: err}
	}

	if format == FormatYarnLock {
		c, err := ParseYarnBerry(data, rootDepsUnion(rootManifest))
		return c, format, err
	}

	version, err := DetectNPMVersion(data)
	if err != nil {
		return nil, format, err
	}

	var canonical *Canonical
	switch version {
	case 1:
		canonical, err = v1ToCanonical(data)
	case 2:
		canonical, err = v2ToCanonical(data)
	default:
		canonical, err = v3ToCanonical(data)
	}
	if err != nil {
		return nil, format, &errs.LockfileError{Path: path, Err: err}
	}
	return canonical, format, nil
}

// rootDepsUnion merges a manifest's dependencies, devDependencies, and
// optionalDependencies maps, the "root's three dep maps" spec.md §4.7's
// yarn-berry hoisting pass starts BFS from. Production wins on collision,
// matching manifest.Manifest.AllDependencies's precedence.
func rootDepsUnion(m *manifest.Manifest) map[string]string {
	out := make(map[string]string)
	if m == nil {
		return out
	}
	for name, spec := range m.OptionalDependencies {
		out[name] = spec
	}
	for name, spec := range m.DevDependencies {
		out[name] = spec
	}
	for name, spec := range m.Dependencies {
		out[name] = spec
	}
	return out
}
