package lockfile

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkgforge/pkgforge/internal/manifest"
)

// packageEntryV3 is the canonical on-disk v3 package entry. Field order
// is significant: encoding/json.Marshal emits struct fields in
// declaration order, so this order is exactly spec.md §4.7's
// {version, resolved, integrity, dev, optional, peer, dependencies,
// devDependencies, optionalDependencies, peerDependencies,
// peerDependenciesMeta, engines, bin, license, funding} key ordering.
// omitempty gives the "prune empty/false/null fields" rule for free.
type packageEntryV3 struct {
	Version              string                      `json:"version,omitempty"`
	Name                 string                      `json:"name,omitempty"`
	Resolved             string                      `json:"resolved,omitempty"`
	Integrity            string                      `json:"integrity,omitempty"`
	Dev                  bool                        `json:"dev,omitempty"`
	Optional             bool                        `json:"optional,omitempty"`
	Peer                 bool                        `json:"peer,omitempty"`
	Dependencies         map[string]string           `json:"dependencies,omitempty"`
	DevDependencies      map[string]string           `json:"devDependencies,omitempty"`
	OptionalDependencies map[string]string           `json:"optionalDependencies,omitempty"`
	PeerDependencies     map[string]string           `json:"peerDependencies,omitempty"`
	PeerDependenciesMeta map[string]manifest.PeerMeta `json:"peerDependenciesMeta,omitempty"`
	Engines              map[string]string           `json:"engines,omitempty"`
	Bin                  map[string]string           `json:"bin,omitempty"`
	License              string                      `json:"license,omitempty"`
	Funding              any                         `json:"funding,omitempty"`
}

type lockfileV3 struct {
	Name            string                     `json:"name,omitempty"`
	Version         string                     `json:"version,omitempty"`
	LockfileVersion int                        `json:"lockfileVersion"`
	Packages        map[string]*packageEntryV3 `json:"packages"`
}

func entryToV3(e *Entry) *packageEntryV3 {
	return &packageEntryV3{
		Version:              e.Version,
		Name:                 e.Name,
		Resolved:             e.Resolved,
		Integrity:            e.Integrity,
		Dev:                  e.Dev,
		Optional:             e.Optional,
		Peer:                 e.Peer,
		Dependencies:         e.Dependencies,
		DevDependencies:      e.DevDependencies,
		OptionalDependencies: e.OptionalDependencies,
		PeerDependencies:     e.PeerDependencies,
		PeerDependenciesMeta: e.PeerDependenciesMeta,
		Engines:              e.Engines,
		Bin:                  e.Bin,
		License:              e.License,
		Funding:              e.Funding,
	}
}

func v3ToEntry(v *packageEntryV3) *Entry {
	return &Entry{
		Version:              v.Version,
		Name:                 v.Name,
		Resolved:             v.Resolved,
		Integrity:            v.Integrity,
		Dev:                  v.Dev,
		Optional:             v.Optional,
		Peer:                 v.Peer,
		Dependencies:         v.Dependencies,
		DevDependencies:      v.DevDependencies,
		OptionalDependencies: v.OptionalDependencies,
		PeerDependencies:     v.PeerDependencies,
		PeerDependenciesMeta: v.PeerDependenciesMeta,
		Engines:              v.Engines,
		Bin:                  v.Bin,
		License:              v.License,
		Funding:              v.Funding,
	}
}

// v3ToCanonical decodes raw v3 JSON as-is: v3 already is the canonical
// shape.
func v3ToCanonical(data []byte) (*Canonical, error) {
	var raw lockfileV3
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding v3 lockfile: %w", err)
	}

	c := &Canonical{Name: raw.Name, Version: raw.Version, LockfileVersion: 3, Packages: make(map[string]*Entry)}
	for loc, e := range raw.Packages {
		c.Packages[loc] = v3ToEntry(e)
	}
	if _, ok := c.Packages[""]; !ok {
		c.Packages[""] = &Entry{Version: raw.Version}
	}
	return c, nil
}

// packageLockV2 carries both dialect blocks a v2 file has: "packages"
// (v3-shaped) and "dependencies" (v1-shaped), which v2ToCanonical reads
// only the former from — v2's packages block is already canonical.
type packageLockV2 struct {
	Name            string                     `json:"name,omitempty"`
	Version         string                     `json:"version,omitempty"`
	LockfileVersion int                        `json:"lockfileVersion"`
	Packages        map[string]*packageEntryV3 `json:"packages"`
}

// v2ToCanonical takes the v3-shaped "packages" block verbatim, ensuring
// a root entry exists.
func v2ToCanonical(data []byte) (*Canonical, error) {
	var raw packageLockV2
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding v2 lockfile: %w", err)
	}

	c := &Canonical{Name: raw.Name, Version: raw.Version, LockfileVersion: 2, Packages: make(map[string]*Entry)}
	for loc, e := range raw.Packages {
		c.Packages[loc] = v3ToEntry(e)
	}
	if _, ok := c.Packages[""]; !ok {
		c.Packages[""] = &Entry{Version: raw.Version}
	}
	return c, nil
}

// dependencyTreeV1 is v1's nested dependency shape: every entry may
// itself carry a "dependencies" map of further nested entries.
type dependencyTreeV1 struct {
	Version      string                       `json:"version"`
	Resolved     string                       `json:"resolved,omitempty"`
	Integrity    string                       `json:"integrity,omitempty"`
	Dev          bool                         `json:"dev,omitempty"`
	Optional     bool                         `json:"optional,omitempty"`
	Requires     map[string]string            `json:"requires,omitempty"`
	Dependencies map[string]*dependencyTreeV1 `json:"dependencies,omitempty"`
}

type lockfileV1 struct {
	Name            string                       `json:"name,omitempty"`
	Version         string                       `json:"version,omitempty"`
	LockfileVersion int                          `json:"lockfileVersion"`
	Requires        bool                         `json:"requires,omitempty"`
	Dependencies    map[string]*dependencyTreeV1 `json:"dependencies,omitempty"`
}

// v1ToCanonical walks the nested dependency tree, flattening each node
// into a canonical entry keyed by its full node_modules path, and lifts
// each node's "requires" map into the canonical "dependencies" field.
func v1ToCanonical(data []byte) (*Canonical, error) {
	var raw lockfileV1
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding v1 lockfile: %w", err)
	}

	c := &Canonical{Name: raw.Name, Version: raw.Version, LockfileVersion: 1, Packages: map[string]*Entry{
		"": {Version: raw.Version},
	}}
	flattenV1(c, "", raw.Dependencies)
	return c, nil
}

func flattenV1(c *Canonical, parentLocation string, deps map[string]*dependencyTreeV1) {
	for name, node := range deps {
		location := joinNodeModules(parentLocation, name)
		c.Packages[location] = &Entry{
			Version:      node.Version,
			Resolved:     node.Resolved,
			Integrity:    node.Integrity,
			Dev:          node.Dev,
			Optional:     node.Optional,
			Dependencies: node.Requires,
		}
		if node.Dependencies != nil {
			flattenV1(c, location, node.Dependencies)
		}
	}
}

func joinNodeModules(parentLocation, name string) string {
	if parentLocation == "" {
		return "node_modules/" + name
	}
	return parentLocation + "/node_modules/" + name
}

// SerializeV3 emits the canonical form as package-lock.json v3: packages
// only, with key order and field pruning coming from packageEntryV3's
// struct tags, plus a trailing newline.
func SerializeV3(c *Canonical) ([]byte, error) {
	out := lockfileV3{Name: c.Name, Version: c.Version, LockfileVersion: 3, Packages: make(map[string]*packageEntryV3)}
	for loc, e := range c.Packages {
		out.Packages[loc] = entryToV3(e)
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// SerializeV2 emits the union of the v3 "packages" block and the v1
// nested "dependencies" block, with lockfileVersion=2 and requires=true.
func SerializeV2(c *Canonical) ([]byte, error) {
	packages := make(map[string]*packageEntryV3)
	for loc, e := range c.Packages {
		packages[loc] = entryToV3(e)
	}

	deps := buildV1Tree(c, "")

	out := struct {
		Name            string                        `json:"name,omitempty"`
		Version         string                        `json:"version,omitempty"`
		LockfileVersion int                           `json:"lockfileVersion"`
		Requires        bool                          `json:"requires"`
		Packages        map[string]*packageEntryV3    `json:"packages"`
		Dependencies    map[string]*dependencyTreeV1  `json:"dependencies,omitempty"`
	}{
		Name:            c.Name,
		Version:         c.Version,
		LockfileVersion: 2,
		Requires:        true,
		Packages:        packages,
		Dependencies:    deps,
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// SerializeV1 rebuilds the nested dependency tree by splitting every
// location on "/node_modules/", emitting "requires" from canonical
// "dependencies".
func SerializeV1(c *Canonical) ([]byte, error) {
	out := lockfileV1{
		Name:            c.Name,
		Version:         c.Version,
		LockfileVersion: 1,
		Requires:        true,
		Dependencies:    buildV1Tree(c, ""),
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// buildV1Tree reconstructs the nested dependencies structure rooted at
// parentLocation by finding every canonical location that is a direct
// "node_modules/<name>" child of it.
func buildV1Tree(c *Canonical, parentLocation string) map[string]*dependencyTreeV1 {
	prefix := parentLocation
	if prefix != "" {
		prefix += "/"
	}
	prefix += "node_modules/"

	result := make(map[string]*dependencyTreeV1)
	for loc, e := range c.Packages {
		if loc == "" || !strings.HasPrefix(loc, prefix) {
			continue
		}
		rest := loc[len(prefix):]
		if strings.Contains(rest, "/node_modules/") {
			continue // not a direct child; handled by the recursive call below
		}
		name := rest

		node := &dependencyTreeV1{
			Version:   e.Version,
			Resolved:  e.Resolved,
			Integrity: e.Integrity,
			Dev:       e.Dev,
			Optional:  e.Optional,
			Requires:  e.Dependencies,
		}
		if children := buildV1Tree(c, loc); len(children) > 0 {
			node.Dependencies = children
		}
		result[name] = node
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
