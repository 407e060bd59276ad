// Package reify turns a diff between an ideal tree and the actual
// on-disk tree into filesystem state: removing stale packages,
// downloading and verifying new ones, extracting them into place, and
// rebuilding the shared .bin shim directory. It never resolves a version
// range itself — every Node it touches was already placed by
// internal/idealtree.
package reify

import (
	"context"
	"fmt"

	"github.com/pkgforge/pkgforge/internal/errs"
	"github.com/pkgforge/pkgforge/internal/fswriter"
	"github.com/pkgforge/pkgforge/internal/progress"
	"github.com/pkgforge/pkgforge/internal/registry"
	"github.com/pkgforge/pkgforge/pkg/integrity"
	"github.com/pkgforge/pkgforge/pkg/tree"
)

// TarballSource fetches tarball bytes given a resolved URL, singly or as
// a batch. A *registry.Client satisfies this.
type TarballSource interface {
	FetchTarball(ctx context.Context, name, url string) ([]byte, error)
	FetchTarballsParallel(ctx context.Context, reqs []registry.TarballRequest) (map[string][]byte, error)
}

// Update pairs the Node currently on disk at a location with the Node
// that should replace it.
type Update struct {
	From *tree.Node
	To   *tree.Node
}

// Plan is the union of an actual-vs-ideal diff, expressed as the
// concrete Nodes to act on rather than bare location strings: the
// reifier has no tree of its own to resolve a location back to a Node.
type Plan struct {
	Remove []*tree.Node
	Update []Update
	Add    []*tree.Node
}

// Reifier executes a Plan against a filesystem. Download fan-out
// concurrency is Source's own concern (registry.Client.TarballConcurrency
// for the production TarballSource), not the Reifier's.
type Reifier struct {
	Root      *tree.Node
	Writer    *fswriter.Writer
	Source    TarballSource
	Extractor Extractor
	Reporter  progress.Reporter
}

// NewReifier wires a Reifier with the default tar.gz extractor.
func NewReifier(root *tree.Node, writer *fswriter.Writer, source TarballSource, reporter progress.Reporter) *Reifier {
	return &Reifier{
		Root:      root,
		Writer:    writer,
		Source:    source,
		Extractor: NewTarGzExtractor(),
		Reporter:  reporter,
	}
}

func (r *Reifier) report(evt progress.Event) {
	if r.Reporter != nil {
		r.Reporter(evt)
	}
}

// Reify runs the four phases spec.md §4.8 describes in order: remove,
// prepare updates, download, install, then rebuilds bin links from the
// final tree.
func (r *Reifier) Reify(ctx context.Context, plan Plan) error {
	if err := r.removePhase(ctx, plan.Remove); err != nil {
		return err
	}
	if err := r.prepareUpdatesPhase(ctx, plan.Update); err != nil {
		return err
	}

	toInstall := make([]*tree.Node, 0, len(plan.Add)+len(plan.Update))
	toInstall = append(toInstall, plan.Add...)
	for _, u := range plan.Update {
		toInstall = append(toInstall, u.To)
	}

	downloaded, err := r.downloadPhase(ctx, toInstall)
	if err != nil {
		return err
	}
	if err := r.installPhase(ctx, downloaded); err != nil {
		return err
	}
	if err := r.binLinksPhase(); err != nil {
		return err
	}

	r.report(progress.NewDoneEvent("reify complete"))
	return nil
}

// removePhase implements spec.md §4.8 step 1: delete a removed Node's
// bin-shim links and its directory.
func (r *Reifier) removePhase(ctx context.Context, nodes []*tree.Node) error {
	for _, n := range nodes {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		r.report(progress.NewInstallingEvent(fmt.Sprintf("removing %s", n.Name)))
		if err := r.Writer.RemoveBinLinks(r.Root, n); err != nil {
			return err
		}
		if err := r.Writer.RemoveNode(n); err != nil {
			return err
		}
	}
	return nil
}

// prepareUpdatesPhase implements step 2: remove the old version ahead of
// installing its replacement at the same location.
func (r *Reifier) prepareUpdatesPhase(ctx context.Context, updates []Update) error {
	for _, u := range updates {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		r.report(progress.NewInstallingEvent(fmt.Sprintf("removing old %s@%s", u.From.Name, u.From.Version)))
		if err := r.Writer.RemoveBinLinks(r.Root, u.From); err != nil {
			return err
		}
		if err := r.Writer.RemoveNode(u.From); err != nil {
			return err
		}
	}
	return nil
}

type downloadResult struct {
	node *tree.Node
	data []byte
}

// downloadPhase implements step 3: fan out tarball fetches across
// add ∪ update.to through the registry client's own bounded parallel
// fetch, FetchTarballsParallel, rather than running a second pool
// alongside it. Any single failure is fatal and cancels the rest in
// flight, matching spec.md §5's tarball fan-out policy; that abort-the-
// batch behavior already lives in FetchTarballsParallel. Requests are
// keyed by the target Node's Location rather than its package name,
// since two Nodes being installed in the same batch can share a name at
// different versions.
func (r *Reifier) downloadPhase(ctx context.Context, nodes []*tree.Node) ([]downloadResult, error) {
	if len(nodes) == 0 {
		return nil, nil
	}

	reqs := make([]registry.TarballRequest, 0, len(nodes))
	for _, n := range nodes {
		if n.ResolvedURL == "" {
			return nil, &errs.ReifyError{Name: n.Name, Version: n.Version, Err: fmt.Errorf("no resolved tarball URL")}
		}
		r.report(progress.NewDownloadingEvent(n.Name, 0))
		reqs = append(reqs, registry.TarballRequest{Name: n.Location, URL: n.ResolvedURL})
	}

	tarballs, err := r.Source.FetchTarballsParallel(ctx, reqs)
	if err != nil {
		return nil, err
	}

	downloads := make([]downloadResult, len(nodes))
	for i, n := range nodes {
		downloads[i] = downloadResult{node: n, data: tarballs[n.Location]}
	}
	return downloads, nil
}

// installPhase implements step 4: verify integrity when the Node
// declares one, then extract under the Node's realpath.
func (r *Reifier) installPhase(ctx context.Context, downloads []downloadResult) error {
	for _, d := range downloads {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		r.report(progress.NewInstallingEvent(fmt.Sprintf("%s@%s", d.node.Name, d.node.Version)))

		if d.node.Integrity != "" && !integrity.Verify(d.data, d.node.Integrity) {
			return &errs.IntegrityMismatchError{Name: d.node.Name, Version: d.node.Version, Expected: d.node.Integrity}
		}
		if err := r.Writer.WriteNode(d.node, d.data, r.Extractor); err != nil {
			return err
		}
	}
	return nil
}

// binLinksPhase implements step 5: traverse the final tree and recreate
// every package's bin shims, relying on fswriter.CreateBinLinks's own
// "replace any existing entry" behavior rather than an explicit unlink
// pass first.
func (r *Reifier) binLinksPhase() error {
	return walkTree(r.Root, func(n *tree.Node) error {
		if n.IsRoot || n.Extraneous {
			return nil
		}
		return r.Writer.CreateBinLinks(r.Root, n)
	})
}

func walkTree(n *tree.Node, fn func(*tree.Node) error) error {
	if err := fn(n); err != nil {
		return err
	}
	for _, child := range n.Children {
		if err := walkTree(child, fn); err != nil {
			return err
		}
	}
	return nil
}
