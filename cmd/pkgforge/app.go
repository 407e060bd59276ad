package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/pkgforge/pkgforge/internal/config"
	"github.com/pkgforge/pkgforge/internal/fswriter"
	"github.com/pkgforge/pkgforge/internal/idealtree"
	"github.com/pkgforge/pkgforge/internal/lockfile"
	"github.com/pkgforge/pkgforge/internal/manifest"
	"github.com/pkgforge/pkgforge/internal/progress"
	"github.com/pkgforge/pkgforge/internal/registry"
	"github.com/pkgforge/pkgforge/internal/reify"
	"github.com/pkgforge/pkgforge/pkg/tree"
)

// saveTarget resolves which dependency map an add/remove writes to, from
// the exclusive --save-dev/--save-optional/--save-peer/--save/--no-save
// flag group spec.md §6 names.
func saveTarget(g *globalFlags) (manifest.DepKind, bool) {
	switch {
	case g.noSave:
		return "", false
	case g.saveDev:
		return manifest.Dev, true
	case g.saveOptional:
		return manifest.OptionalK, true
	case g.savePeer:
		return manifest.PeerK, true
	default:
		return manifest.Production, g.save
	}
}

// pipeline carries everything a run of install/ci/add/remove/update
// shares: the project directory, a loaded config, a registry client, and
// a progress reporter that prints one line per event to stderr.
type pipeline struct {
	dir               string
	cfg               *config.Config
	client            *registry.Client
	fs                afero.Fs
	cacheSnapshotPath string
}

func newPipeline(g *globalFlags) (*pipeline, error) {
	cfg, err := config.Load(nil, g.dir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	baseURL := cfg.Registry.URL
	if g.registry != "" {
		baseURL = g.registry
	}
	client := registry.NewClient(baseURL)
	client.Token = cfg.Registry.Token
	if cfg.Concurrency.Packuments > 0 {
		client.Concurrency = cfg.Concurrency.Packuments
	}
	if cfg.Concurrency.Tarballs > 0 {
		client.TarballConcurrency = cfg.Concurrency.Tarballs
	}

	fs := afero.NewOsFs()

	snapshotPath := ""
	switch cfg.Cache.PackumentBackend {
	case "redis":
		client.Cache = registry.NewRedisCache(cfg.Cache.RedisAddr, cfg.Cache.RedisPrefix, cfg.Cache.TTL)
	default:
		client.Cache = registry.NewLRUCache(512, cfg.Cache.TTL)
		if cfg.Cache.Dir != "" {
			snapshotPath = filepath.Join(cfg.Cache.Dir, "packuments.msgpack")
			if err := registry.LoadSnapshot(fs, snapshotPath, client.Cache); err != nil {
				return nil, fmt.Errorf("loading packument cache snapshot: %w", err)
			}
		}
	}

	switch cfg.Cache.TarballBackend {
	case "s3":
		tc, err := registry.NewS3TarballCache(cfg.Cache.S3Endpoint, cfg.Cache.S3AccessKey, cfg.Cache.S3SecretKey, cfg.Cache.S3Bucket, cfg.Cache.S3UseSSL)
		if err != nil {
			return nil, fmt.Errorf("constructing s3 tarball cache: %w", err)
		}
		client.TarballCache = tc
	default:
		if cfg.Cache.Dir != "" {
			client.TarballCache = registry.NewDiskTarballCache(fs, filepath.Join(cfg.Cache.Dir, "tarballs"))
		}
	}

	return &pipeline{dir: g.dir, cfg: cfg, client: client, fs: fs, cacheSnapshotPath: snapshotPath}, nil
}

func (p *pipeline) reporter() progress.Reporter {
	return func(evt progress.Event) {
		fmt.Fprintln(os.Stderr, evt.String())
	}
}

// mutation lets a subcommand change the in-memory root manifest's
// declared dependencies before the ideal tree is built from it. Whether
// the change is also persisted to package.json on disk is decided
// separately by the caller (via saveTarget), so `--no-save` can install
// a package without declaring it.
type mutation struct {
	apply      func(m *manifest.Manifest) error
	pruneAll   bool            // update with no package arguments: re-resolve every direct dependency
	invalidate map[string]bool // update with named arguments: re-resolve only these
}

// run executes one resolve/diff/reify cycle: load the manifest and any
// lockfile, apply an optional mutation, build the ideal tree, diff it
// against the previous lockfile, reify the difference, and persist the
// new lockfile plus the hidden node_modules manifest.
func (p *pipeline) run(ctx context.Context, m *mutation) error {
	manifestPath, err := manifest.FindManifestPath(p.dir)
	if err != nil {
		return err
	}
	rootManifest, err := manifest.Load(manifestPath)
	if err != nil {
		return err
	}
	if err := manifest.Validate(rootManifest); err != nil {
		return err
	}

	if m != nil && m.apply != nil {
		if err := m.apply(rootManifest); err != nil {
			return err
		}
	}

	root := tree.CreateRoot(p.dir, rootManifest)

	oldCanonical, format, err := lockfile.Load(p.dir, rootManifest)
	if err != nil {
		return err
	}
	if oldCanonical == nil {
		oldCanonical = lockfile.NewCanonical(rootManifest.Name, rootManifest.Version)
		format = lockfile.FormatNPMLock
	}

	lockfile.SeedVirtualTree(root, oldCanonical)
	root.BuildEdges()

	if m != nil && m.pruneAll {
		invalidateAllDirectEdges(root)
	}
	if m != nil && len(m.invalidate) > 0 {
		invalidateNamedEdges(root, m.invalidate)
	}

	builder := idealtree.NewBuilder(root, p.client, p.reporter())
	if err := builder.Build(ctx); err != nil {
		return err
	}

	pruneExtraneous(builder.Inventory)

	diff := lockfile.DiffTreeAgainstLockfile(builder.Inventory, oldCanonical)
	plan := buildPlan(diff, builder.Inventory, oldCanonical, root)

	writer := fswriter.NewWriter(p.fs)
	reifier := reify.NewReifier(root, writer, p.client, p.reporter())
	if err := reifier.Reify(ctx, plan); err != nil {
		return err
	}

	newCanonical := lockfile.BuildCanonicalFromTree(root)
	if err := persistLockfile(p.dir, newCanonical, format); err != nil {
		return err
	}
	if err := persistHiddenLockfile(p.fs, p.dir, newCanonical); err != nil {
		return err
	}

	if p.cacheSnapshotPath != "" {
		if err := registry.SaveSnapshot(p.fs, p.cacheSnapshotPath, p.client.Cache); err != nil {
			return err
		}
	}

	return nil
}

// invalidateAllDirectEdges marks every one of root's outgoing edges
// invalid so the builder treats them all as problems again, the
// no-arguments form of `update` re-resolving every direct dependency to
// the newest version its declared range allows.
func invalidateAllDirectEdges(root *tree.Node) {
	for _, e := range root.EdgesOut {
		e.Valid = false
	}
}

// invalidateNamedEdges is the update command's package-scoped form of
// invalidateAllDirectEdges: only root edges whose name is in names are
// forced back into problem state.
func invalidateNamedEdges(root *tree.Node, names map[string]bool) {
	for name, e := range root.EdgesOut {
		if names[name] {
			e.Valid = false
		}
	}
}

// pruneExtraneous detaches every Node FixFlags marked unreachable from
// its parent and the inventory, so the diff against the previous
// lockfile treats it as a removal instead of leaving an orphaned
// directory on disk. Mirrors npm's own prune-on-install behavior; the
// Node/Edge model itself only tracks the flag (spec.md §4.6), leaving
// the decision to drop it physically to the caller.
func pruneExtraneous(inv *tree.Inventory) {
	for _, n := range inv.All() {
		if n.IsRoot || !n.Extraneous {
			continue
		}
		inv.Remove(n)
		n.SetParent(nil)
	}
}

// buildPlan resolves a lockfile.Diff's bare locations back into concrete
// Nodes: additions and update targets come from the freshly-built ideal
// tree's Inventory, while removals and update sources are reconstructed
// from the previous lockfile entry since no Node for them survives in
// the new tree.
func buildPlan(diff lockfile.Diff, inv *tree.Inventory, oldCanonical *lockfile.Canonical, root *tree.Node) reify.Plan {
	var plan reify.Plan

	for _, loc := range diff.Add {
		if n, ok := inv.Get(loc); ok {
			plan.Add = append(plan.Add, n)
		}
	}
	for _, loc := range diff.Remove {
		if entry, ok := oldCanonical.Packages[loc]; ok {
			plan.Remove = append(plan.Remove, nodeFromOldEntry(loc, entry, root))
		}
	}
	for _, loc := range diff.Update {
		to, ok := inv.Get(loc)
		if !ok {
			continue
		}
		entry, ok := oldCanonical.Packages[loc]
		if !ok {
			continue
		}
		plan.Update = append(plan.Update, reify.Update{
			From: nodeFromOldEntry(loc, entry, root),
			To:   to,
		})
	}

	return plan
}

// nodeFromOldEntry reconstructs just enough of a Node to remove it from
// disk: its realpath (via Location) and its manifest's bin map (for
// shim cleanup). It is never attached to the tree.
func nodeFromOldEntry(loc string, entry *lockfile.Entry, root *tree.Node) *tree.Node {
	lockEntry := &tree.LockEntry{
		Name:                 entry.Name,
		Version:              entry.Version,
		Resolved:             entry.Resolved,
		Integrity:            entry.Integrity,
		Dev:                  entry.Dev,
		Optional:             entry.Optional,
		Peer:                 entry.Peer,
		Dependencies:         entry.Dependencies,
		OptionalDependencies: entry.OptionalDependencies,
		PeerDependencies:     entry.PeerDependencies,
		PeerDependenciesMeta: entry.PeerDependenciesMeta,
		Bin:                  entry.Bin,
	}
	n := tree.CreateFromLockEntry(locationBaseName(loc), lockEntry, root.RootNode)
	n.Location = loc
	return n
}

// locationBaseName returns the declared folder name at the end of a
// canonical location, e.g. "node_modules/a/node_modules/b" -> "b".
func locationBaseName(location string) string {
	idx := strings.LastIndex(location, "/node_modules/")
	if idx == -1 {
		return strings.TrimPrefix(location, "node_modules/")
	}
	return location[idx+len("/node_modules/"):]
}

// persistLockfile serializes c in format (falling back to v3 when no
// lockfile previously existed) and writes it to dir/<format file name>.
func persistLockfile(dir string, c *lockfile.Canonical, format lockfile.Format) error {
	var (
		data []byte
		err  error
		name string
	)

	switch format {
	case lockfile.FormatYarnLock:
		data, err = lockfile.SerializeYarnBerry(c)
		name = "yarn.lock"
	default:
		switch c.LockfileVersion {
		case 1:
			data, err = lockfile.SerializeV1(c)
		case 2:
			data, err = lockfile.SerializeV2(c)
		default:
			data, err = lockfile.SerializeV3(c)
		}
		name = "package-lock.json"
	}
	if err != nil {
		return fmt.Errorf("serializing lockfile: %w", err)
	}

	return os.WriteFile(filepath.Join(dir, name), data, 0o644)
}

// persistHiddenLockfile writes node_modules/.package-lock.json, the
// same canonical shape npm keeps as a fast verification cache.
func persistHiddenLockfile(fs afero.Fs, dir string, c *lockfile.Canonical) error {
	data, err := lockfile.SerializeV3(c)
	if err != nil {
		return fmt.Errorf("serializing hidden lockfile: %w", err)
	}
	path := filepath.Join(dir, "node_modules", ".package-lock.json")
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating node_modules: %w", err)
	}
	return afero.WriteFile(fs, path, data, 0o644)
}

// printInventoryJSON dumps every non-extraneous Node's name, version,
// and location as a JSON array, the machine-readable form `list --json`
// offers the same way the teacher's `spr check --output` wrote its
// dependency graph.
func printInventoryJSON(w *os.File, inv *tree.Inventory) error {
	type entry struct {
		Name     string `json:"name"`
		Version  string `json:"version"`
		Location string `json:"location"`
		Dev      bool   `json:"dev,omitempty"`
		Optional bool   `json:"optional,omitempty"`
	}

	var entries []entry
	for _, n := range inv.All() {
		if n.IsRoot {
			continue
		}
		entries = append(entries, entry{Name: n.Name, Version: n.Version, Location: n.Location, Dev: n.Dev, Optional: n.Optional})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(entries)
}
