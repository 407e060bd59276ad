// Package registry provides a content-addressed-ish view over a remote
// npm-compatible HTTP registry: packument and tarball fetches, each with
// a bounded-concurrency parallel variant and a process-local cache.
package registry

import (
	"github.com/pkgforge/pkgforge/internal/manifest"
)

// Packument is a registry package document: every published version's
// manifest data plus the dist-tags pointing at them.
type Packument struct {
	Name     string                       `json:"name"`
	DistTags map[string]string            `json:"dist-tags"`
	Versions map[string]*manifest.Manifest `json:"versions"`
}

// Version looks up a specific version's manifest data within the
// packument.
func (p *Packument) Version(v string) (*manifest.Manifest, bool) {
	m, ok := p.Versions[v]
	return m, ok
}

// AllVersions returns every published version string in the packument,
// in no particular order — callers needing the max-satisfying version
// run this through pkg/semver.MaxSatisfying.
func (p *Packument) AllVersions() []string {
	versions := make([]string, 0, len(p.Versions))
	for v := range p.Versions {
		versions = append(versions, v)
	}
	return versions
}
