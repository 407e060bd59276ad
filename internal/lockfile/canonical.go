// Package lockfile models the canonical, version-independent lockfile
// form pkgforge resolves every on-disk dialect (npm v1/v2/v3,
// npm-shrinkwrap, yarn-berry) into before diffing or serializing.
package lockfile

import "github.com/pkgforge/pkgforge/internal/manifest"

// Canonical is the internal lockfile representation every dialect
// normalizes to and serializes from. The empty-string key in Packages is
// always the root; every other key is a slash-separated path starting
// with "node_modules/".
type Canonical struct {
	Name            string
	Version         string
	LockfileVersion int
	Packages        map[string]*Entry
}

// Entry is one non-root package entry in the canonical form.
type Entry struct {
	Version              string
	Name                 string // registry name, set only when aliased
	Resolved             string
	Integrity            string
	Dev                  bool
	Optional             bool
	Peer                 bool
	Dependencies         map[string]string
	DevDependencies      map[string]string
	OptionalDependencies map[string]string
	PeerDependencies     map[string]string
	PeerDependenciesMeta map[string]manifest.PeerMeta
	Engines              map[string]string
	Bin                  map[string]string
	License              string
	Funding              any
}

// NewCanonical returns an empty canonical lockfile for the given root
// name/version, always at lockfileVersion 3 (pkgforge's native dialect).
func NewCanonical(name, version string) *Canonical {
	return &Canonical{
		Name:            name,
		Version:         version,
		LockfileVersion: 3,
		Packages:        map[string]*Entry{"": {Version: version}},
	}
}

// Root returns the canonical form's root entry, or nil if absent.
func (c *Canonical) Root() *Entry {
	return c.Packages[""]
}
