// Package idealtree builds the fully-resolved ideal tree: starting from
// a root Node with edges built from the project manifest, it drains a
// depth-ordered queue of unresolved edges, fetching packuments, choosing
// versions, placing Nodes, and finally fixing up dev/optional/peer/
// extraneous flags in a dedicated pass once placement can no longer
// change which Nodes are reachable from which edge type.
package idealtree

import (
	"context"
	"fmt"

	"github.com/pkgforge/pkgforge/internal/errs"
	"github.com/pkgforge/pkgforge/internal/manifest"
	"github.com/pkgforge/pkgforge/internal/placement"
	"github.com/pkgforge/pkgforge/internal/progress"
	"github.com/pkgforge/pkgforge/internal/registry"
	"github.com/pkgforge/pkgforge/pkg/semver"
	"github.com/pkgforge/pkgforge/pkg/tree"
)

// PackumentSource is the subset of registry.Client the builder needs,
// narrowed so tests can substitute a fake without standing up an
// httptest.Server. FetchPackumentsParallel is what Build actually drives
// a same-depth batch through; FetchPackument remains for callers that
// only ever need one name at a time.
type PackumentSource interface {
	FetchPackument(ctx context.Context, name string) (*registry.Packument, error)
	FetchPackumentsParallel(ctx context.Context, names []string) (map[string]*registry.Packument, map[string]error)
}

// Builder drains a DepsQueue against a root Node, producing a complete
// ideal tree and its Inventory.
type Builder struct {
	Root      *tree.Node
	Source    PackumentSource
	Inventory *tree.Inventory
	Reporter  progress.Reporter

	engine *placement.Engine
	queue  *placement.DepsQueue
}

// NewBuilder prepares a Builder over root, seeding the Inventory with
// any Nodes already present (e.g. from a pre-seeded virtual tree loaded
// from a lockfile).
func NewBuilder(root *tree.Node, source PackumentSource, reporter progress.Reporter) *Builder {
	inv := tree.NewInventory()
	seedInventory(inv, root)

	return &Builder{
		Root:      root,
		Source:    source,
		Inventory: inv,
		Reporter:  reporter,
		engine:    placement.NewEngine(inv),
		queue:     placement.NewDepsQueue(),
	}
}

func seedInventory(inv *tree.Inventory, n *tree.Node) {
	inv.Add(n)
	for _, child := range n.Children {
		seedInventory(inv, child)
	}
}

func (b *Builder) report(evt progress.Event) {
	if b.Reporter != nil {
		b.Reporter(evt)
	}
}

// Build drains the queue to completion (step 1-8 of the ideal-tree
// algorithm) and then runs the flag-fixing pass. Any non-optional
// ResolveError or PlacementConflictError aborts the whole build. Each
// pass through the loop resolves one same-depth batch of problem edges:
// spec.md §5 promises that completion order within a fan-out batch is
// unobservable to downstream logic, and placement only ever runs once
// the whole batch's packuments are in hand, matching §9's "the builder
// needs a stable snapshot of packuments before making placement
// decisions" note. Placing entries from one batch can enqueue new
// problem edges from the Nodes it just placed, but those always land at
// least one depth deeper, so they form a later batch rather than
// invalidating this one.
func (b *Builder) Build(ctx context.Context) error {
	for _, e := range b.Root.ProblemEdges() {
		b.queue.Queue(placement.QueueEntry{From: b.Root, Edge: e})
	}

	for {
		batch := b.queue.NextBatch()
		if len(batch) == 0 {
			break
		}
		if err := b.processBatch(ctx, batch); err != nil {
			return err
		}
	}

	FixFlags(b.Root, b.Inventory)
	return nil
}

// pendingFetch pairs a still-live queue entry with the registry name its
// edge resolves against, so processBatch can fetch each distinct name
// exactly once and then fan the result back out to every entry that
// wanted it (two edges can name the same package under different
// specs).
type pendingFetch struct {
	entry        placement.QueueEntry
	registryName string
}

// processBatch resolves every entry in batch through a single
// FetchPackumentsParallel call, then places each one's candidate in
// turn. Placement itself stays sequential (it mutates the shared tree
// and Inventory CanPlace/FindPlacement read from), but the network
// round-trip that dominates wall-clock time happens once for the whole
// batch.
func (b *Builder) processBatch(ctx context.Context, batch []placement.QueueEntry) error {
	pending := make([]pendingFetch, 0, len(batch))
	names := make([]string, 0, len(batch))
	requested := make(map[string]bool, len(batch))

	for _, entry := range batch {
		edge := entry.Edge
		if edge.To != nil && edge.Valid {
			continue // resolved by an earlier entry's placement reload
		}

		b.report(progress.Event{Type: progress.Resolving, Name: edge.Name, Detail: edge.Range})

		registryName := edge.RegistryName
		if registryName == "" {
			registryName = edge.Name
		}
		pending = append(pending, pendingFetch{entry: entry, registryName: registryName})
		if !requested[registryName] {
			requested[registryName] = true
			names = append(names, registryName)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	packuments, fetchErrs := b.Source.FetchPackumentsParallel(ctx, names)

	for _, pf := range pending {
		edge := pf.entry.Edge

		if err, failed := fetchErrs[pf.registryName]; failed {
			if edge.Type.Tolerant() {
				continue
			}
			return wrapResolveFailure(edge, err)
		}

		if err := b.placeResolved(pf.entry, pf.registryName, packuments[pf.registryName]); err != nil {
			return err
		}
	}
	return nil
}

// placeResolved picks a version out of packument and places it against
// entry's edge; processBatch calls it once per entry after the batch's
// packuments have been fetched.
func (b *Builder) placeResolved(entry placement.QueueEntry, registryName string, packument *registry.Packument) error {
	edge := entry.Edge

	version, versionData, err := pickVersion(packument, edge.Range)
	if err != nil {
		if edge.Type.Tolerant() {
			return nil
		}
		return &errs.ResolveError{Name: edge.Name, Range: edge.Range}
	}

	candidate := tree.CreateFromPackument(registryName, version, versionData)
	if edge.RegistryName != "" {
		candidate.Name = edge.Name
		candidate.RegistryName = edge.RegistryName
	}
	candidate.Dev = edge.Type == tree.Development
	candidate.Optional = edge.Type == tree.Optional || edge.Type == tree.PeerOptional
	candidate.Peer = edge.Type == tree.Peer || edge.Type == tree.PeerOptional

	p := b.engine.FindPlacement(entry.From, candidate, edge)
	placed, err := b.engine.Place(p, candidate)
	if err != nil {
		if edge.Type.Tolerant() {
			return nil
		}
		return err
	}

	if p.Decision == placement.OK || p.Decision == placement.REPLACE {
		if !b.Inventory.Has(placed) {
			b.Inventory.Add(placed)
		}
		placed.BuildEdges()
		for _, problem := range placed.ProblemEdges() {
			b.queue.Queue(placement.QueueEntry{From: placed, Edge: problem})
		}
	}

	edge.Reload()
	return nil
}

func wrapResolveFailure(edge *tree.Edge, err error) error {
	return fmt.Errorf("resolving %s@%s: %w", edge.Name, edge.Range, err)
}

// pickVersion chooses the version to install for a range string against
// a packument: an exact version match wins outright, then a bare
// dist-tag, then max-satisfying semver comparison.
func pickVersion(p *registry.Packument, rangeStr string) (string, *manifest.Manifest, error) {
	if m, ok := p.Version(rangeStr); ok {
		return rangeStr, m, nil
	}
	if tag, ok := p.DistTags[rangeStr]; ok {
		if m, ok := p.Version(tag); ok {
			return tag, m, nil
		}
	}

	best, err := semver.MaxSatisfying(p.AllVersions(), rangeStr)
	if err != nil || best == nil {
		return "", nil, fmt.Errorf("no version of %s satisfies %q", p.Name, rangeStr)
	}
	m, ok := p.Version(best.String())
	if !ok {
		return "", nil, fmt.Errorf("resolved version %s missing from packument", best.String())
	}
	return best.String(), m, nil
}
