package lockfile

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkgforge/pkgforge/internal/manifest"
	"github.com/pkgforge/pkgforge/pkg/tree"
)

const v3Fixture = `{
  "name": "demo",
  "version": "1.0.0",
  "lockfileVersion": 3,
  "packages": {
    "": {"version": "1.0.0"},
    "node_modules/a": {"version": "1.2.3", "resolved": "https://registry.npmjs.org/a/-/a-1.2.3.tgz", "integrity": "sha512-xxx", "dependencies": {"b": "^1.0.0"}},
    "node_modules/a/node_modules/b": {"version": "1.0.0"}
  }
}`

func TestDetectNPMVersionExplicit(t *testing.T) {
	v, err := DetectNPMVersion([]byte(`{"lockfileVersion": 2}`))
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestDetectNPMVersionInferredFromShape(t *testing.T) {
	v3, err := DetectNPMVersion([]byte(`{"packages": {}}`))
	require.NoError(t, err)
	assert.Equal(t, 3, v3)

	v2, err := DetectNPMVersion([]byte(`{"packages": {}, "dependencies": {}}`))
	require.NoError(t, err)
	assert.Equal(t, 2, v2)

	v1, err := DetectNPMVersion([]byte(`{"dependencies": {}}`))
	require.NoError(t, err)
	assert.Equal(t, 1, v1)

	vDefault, err := DetectNPMVersion([]byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, 3, vDefault)
}

func TestV3ToCanonicalRoundTrip(t *testing.T) {
	c, err := v3ToCanonical([]byte(v3Fixture))
	require.NoError(t, err)
	assert.Equal(t, "demo", c.Name)
	assert.Len(t, c.Packages, 3)
	assert.Equal(t, "1.2.3", c.Packages["node_modules/a"].Version)

	data, err := SerializeV3(c)
	require.NoError(t, err)

	reparsed, err := v3ToCanonical(data)
	require.NoError(t, err)
	assert.Equal(t, c.Packages["node_modules/a"].Version, reparsed.Packages["node_modules/a"].Version)
}

const v1Fixture = `{
  "name": "demo",
  "version": "1.0.0",
  "lockfileVersion": 1,
  "requires": true,
  "dependencies": {
    "a": {
      "version": "1.2.3",
      "resolved": "https://registry.npmjs.org/a/-/a-1.2.3.tgz",
      "requires": {"b": "^1.0.0"},
      "dependencies": {
        "b": {"version": "1.0.0"}
      }
    }
  }
}`

func TestV1ToCanonicalFlattensNestedTree(t *testing.T) {
	c, err := v1ToCanonical([]byte(v1Fixture))
	require.NoError(t, err)

	a, ok := c.Packages["node_modules/a"]
	require.True(t, ok)
	assert.Equal(t, "1.2.3", a.Version)
	assert.Equal(t, "^1.0.0", a.Dependencies["b"])

	b, ok := c.Packages["node_modules/a/node_modules/b"]
	require.True(t, ok)
	assert.Equal(t, "1.0.0", b.Version)
}

func TestCanonicalToV1SerializesNestedTree(t *testing.T) {
	c, err := v3ToCanonical([]byte(v3Fixture))
	require.NoError(t, err)

	data, err := SerializeV1(c)
	require.NoError(t, err)

	reparsed, err := v1ToCanonical(data)
	require.NoError(t, err)

	b, ok := reparsed.Packages["node_modules/a/node_modules/b"]
	require.True(t, ok)
	assert.Equal(t, "1.0.0", b.Version)
}

func TestDiffTreeAgainstLockfile(t *testing.T) {
	c, err := v3ToCanonical([]byte(v3Fixture))
	require.NoError(t, err)

	root := tree.CreateRoot("/project", &manifest.Manifest{Name: "demo", Version: "1.0.0"})
	a := tree.NewNode("a", "2.0.0", &manifest.Manifest{Name: "a", Version: "2.0.0"}) // version bump
	a.SetParent(root)
	newDep := tree.NewNode("c", "1.0.0", &manifest.Manifest{Name: "c", Version: "1.0.0"})
	newDep.SetParent(root)

	inv := tree.NewInventory()
	inv.Add(root)
	inv.Add(a)
	inv.Add(newDep)

	d := DiffTreeAgainstLockfile(inv, c)
	assert.Contains(t, d.Update, "node_modules/a")
	assert.Contains(t, d.Add, "node_modules/c")
	assert.Contains(t, d.Remove, "node_modules/a/node_modules/b")
}

func TestVerifyDetectsEachFailureMode(t *testing.T) {
	c, err := v3ToCanonical([]byte(v3Fixture))
	require.NoError(t, err)

	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/project/node_modules/a", 0o755))
	require.NoError(t, afero.WriteFile(fs, "/project/node_modules/a/package.json", []byte(`{"name":"a","version":"1.2.3"}`), 0o644))
	// node_modules/a/node_modules/b is entirely absent -> missing
	// add a version-mismatch and invalid-manifest case via extra entries
	c.Packages["node_modules/mismatch"] = &Entry{Version: "9.9.9"}
	require.NoError(t, fs.MkdirAll("/project/node_modules/mismatch", 0o755))
	require.NoError(t, afero.WriteFile(fs, "/project/node_modules/mismatch/package.json", []byte(`{"name":"mismatch","version":"1.0.0"}`), 0o644))

	c.Packages["node_modules/broken"] = &Entry{Version: "1.0.0"}
	require.NoError(t, fs.MkdirAll("/project/node_modules/broken", 0o755))
	require.NoError(t, afero.WriteFile(fs, "/project/node_modules/broken/package.json", []byte(`not json`), 0o644))

	results := Verify(fs, "/project", c)

	statuses := map[string]VerifyStatus{}
	for _, r := range results {
		statuses[r.Location] = r.Status
	}

	assert.Equal(t, VerifyOK, statuses["node_modules/a"])
	assert.Equal(t, VerifyMissing, statuses["node_modules/a/node_modules/b"])
	assert.Equal(t, VerifyVersionMismatch, statuses["node_modules/mismatch"])
	assert.Equal(t, VerifyInvalidManifest, statuses["node_modules/broken"])
}

func TestSeedVirtualTreeBuildsNestedNodes(t *testing.T) {
	c, err := v3ToCanonical([]byte(v3Fixture))
	require.NoError(t, err)

	root := tree.CreateRoot("/project", &manifest.Manifest{Name: "demo", Version: "1.0.0"})
	SeedVirtualTree(root, c)

	a, ok := root.Children["a"]
	require.True(t, ok)
	assert.Equal(t, "1.2.3", a.Version)

	b, ok := a.Children["b"]
	require.True(t, ok)
	assert.Equal(t, "1.0.0", b.Version)
	assert.Equal(t, "node_modules/a/node_modules/b", b.Location)
}

func TestBuildCanonicalFromTreeRoundTrips(t *testing.T) {
	root := tree.CreateRoot("/project", &manifest.Manifest{Name: "demo", Version: "1.0.0"})
	a := tree.NewNode("a", "1.2.3", &manifest.Manifest{Name: "a", Version: "1.2.3"})
	a.SetParent(root)
	a.ResolvedURL = "https://registry.npmjs.org/a/-/a-1.2.3.tgz"
	a.Integrity = "sha512-xxx"

	c := BuildCanonicalFromTree(root)
	entry, ok := c.Packages["node_modules/a"]
	require.True(t, ok)
	assert.Equal(t, "1.2.3", entry.Version)
	assert.Equal(t, "sha512-xxx", entry.Integrity)
}

const yarnFixture = `# This file is generated by Yarn.

__metadata:
  version: 6
  cacheKey: 8

"a@npm:^1.0.0":
  version: 1.2.3
  resolution: "a@npm:1.2.3"
  dependencies:
    b: "npm:^1.0.0"
  checksum: abc123
  languageName: node
  linkType: hard

"b@npm:^1.0.0":
  version: 1.0.0
  resolution: "b@npm:1.0.0"
  checksum: def456
  languageName: node
  linkType: hard
`

func TestParseYarnBerryHoistsEntries(t *testing.T) {
	rootDeps := map[string]string{"a": "^1.0.0"}
	c, err := ParseYarnBerry([]byte(yarnFixture), rootDeps)
	require.NoError(t, err)

	a, ok := c.Packages["node_modules/a"]
	require.True(t, ok)
	assert.Equal(t, "1.2.3", a.Version)

	b, ok := c.Packages["node_modules/b"]
	require.True(t, ok)
	assert.Equal(t, "1.0.0", b.Version)
}

func TestMustQuoteYAML(t *testing.T) {
	assert.True(t, mustQuoteYAML("@scope/name"))
	assert.True(t, mustQuoteYAML("-leading"))
	assert.True(t, mustQuoteYAML("123"))
	assert.False(t, mustQuoteYAML("plain"))
}
