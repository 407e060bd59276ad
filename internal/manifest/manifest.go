// Package manifest reads and writes the project's root package.json and
// decodes the per-version manifest data embedded in registry packuments.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Dist carries the tarball location and integrity data found on a
// packument version entry's "dist" field. The root manifest never has a
// Dist; it is only populated when a Manifest is built from registry data.
type Dist struct {
	Tarball   string `json:"tarball,omitempty"`
	Integrity string `json:"integrity,omitempty"`
	Shasum    string `json:"shasum,omitempty"`
}

// PeerMeta is an entry of peerDependenciesMeta, deciding whether a peer
// edge is ordinary or peer-optional.
type PeerMeta struct {
	Optional bool `json:"optional,omitempty"`
}

// Manifest is the declared-dependency and distribution data a Node loads
// from either the project's package.json or a registry packument's
// per-version entry.
type Manifest struct {
	Name                 string              `json:"name"`
	Version              string              `json:"version"`
	Dependencies         map[string]string   `json:"dependencies,omitempty"`
	DevDependencies      map[string]string   `json:"devDependencies,omitempty"`
	OptionalDependencies map[string]string   `json:"optionalDependencies,omitempty"`
	PeerDependencies     map[string]string   `json:"peerDependencies,omitempty"`
	PeerDependenciesMeta map[string]PeerMeta `json:"peerDependenciesMeta,omitempty"`
	Engines              map[string]string   `json:"engines,omitempty"`
	Bin                  map[string]string   `json:"bin,omitempty"`
	Dist                 *Dist               `json:"dist,omitempty"`
}

// rawManifest mirrors Manifest but leaves "bin" untyped so both the
// string and object forms npm allows can be decoded before normalizing.
type rawManifest struct {
	Name                 string              `json:"name"`
	Version              string              `json:"version"`
	Dependencies         map[string]string   `json:"dependencies,omitempty"`
	DevDependencies      map[string]string   `json:"devDependencies,omitempty"`
	OptionalDependencies map[string]string   `json:"optionalDependencies,omitempty"`
	PeerDependencies     map[string]string   `json:"peerDependencies,omitempty"`
	PeerDependenciesMeta map[string]PeerMeta `json:"peerDependenciesMeta,omitempty"`
	Engines              map[string]string   `json:"engines,omitempty"`
	Bin                  json.RawMessage     `json:"bin,omitempty"`
	Dist                 *Dist               `json:"dist,omitempty"`
}

// Parse decodes manifest JSON bytes, normalizing the bin field from
// either its string or object form into a name→path map.
func Parse(data []byte) (*Manifest, error) {
	var raw rawManifest
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	m := &Manifest{
		Name:                 raw.Name,
		Version:              raw.Version,
		Dependencies:         raw.Dependencies,
		DevDependencies:      raw.DevDependencies,
		OptionalDependencies: raw.OptionalDependencies,
		PeerDependencies:     raw.PeerDependencies,
		PeerDependenciesMeta: raw.PeerDependenciesMeta,
		Engines:              raw.Engines,
		Dist:                 raw.Dist,
	}
	m.Bin = normalizeBin(raw.Bin, raw.Name)
	return m, nil
}

// normalizeBin converts npm's "bin": "./cli.js" shorthand into the
// equivalent object form {"<unscoped-name>": "./cli.js"}, passing an
// already-object bin field through unchanged.
func normalizeBin(raw json.RawMessage, pkgName string) map[string]string {
	if len(raw) == 0 {
		return nil
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		unscoped := pkgName
		if strings.HasPrefix(pkgName, "@") {
			if parts := strings.SplitN(pkgName, "/", 2); len(parts) == 2 {
				unscoped = parts[1]
			}
		}
		if unscoped == "" || asString == "" {
			return nil
		}
		return map[string]string{unscoped: asString}
	}

	var asObject map[string]string
	if err := json.Unmarshal(raw, &asObject); err == nil {
		return asObject
	}
	return nil
}

// Load reads and parses the package.json file at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}
	return Parse(data)
}

// FindManifestPath locates package.json within dir.
func FindManifestPath(dir string) (string, error) {
	path := filepath.Join(dir, "package.json")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return "", fmt.Errorf("package.json not found in %s", dir)
	}
	return path, nil
}

// Validate checks that the manifest carries the minimum fields needed to
// seed a root Node.
func Validate(m *Manifest) error {
	if m.Name == "" {
		return fmt.Errorf("manifest missing 'name' field")
	}
	if m.Version == "" {
		return fmt.Errorf("manifest missing 'version' field")
	}
	return nil
}

// AllDependencies merges production and development dependency maps,
// production entries winning on name collision.
func (m *Manifest) AllDependencies() map[string]string {
	all := make(map[string]string, len(m.Dependencies)+len(m.DevDependencies))
	for k, v := range m.DevDependencies {
		all[k] = v
	}
	for k, v := range m.Dependencies {
		all[k] = v
	}
	return all
}

// DepKind names the dependency map a spec is added to or removed from.
type DepKind string

const (
	Production DepKind = "dependencies"
	Dev        DepKind = "devDependencies"
	OptionalK  DepKind = "optionalDependencies"
	PeerK      DepKind = "peerDependencies"
)
