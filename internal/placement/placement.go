// Package placement implements the hoisting-with-shadowing algorithm that
// decides where a resolved Node lives in the tree: the shallowest
// location that satisfies the requesting edge without breaking any
// existing constraint, walking from the requester up toward the root.
package placement

import (
	"github.com/pkgforge/pkgforge/internal/errs"
	"github.com/pkgforge/pkgforge/pkg/semver"
	"github.com/pkgforge/pkgforge/pkg/tree"
)

// Decision is the outcome of evaluating whether a candidate Node D can
// live at a target location T.
type Decision int

const (
	// OK means T has no child under D's name; D can be added directly.
	OK Decision = iota
	// KEEP means T already has a child under D's name that serves the
	// requesting edge (the same version, or a version that satisfies the
	// edge and is not older than D); reuse it.
	KEEP
	// REPLACE means T's existing child under D's name is older but
	// still satisfies the requesting edge, D is strictly newer, and D can
	// safely replace it.
	REPLACE
	// CONFLICT means T cannot host D and no fallback applies.
	CONFLICT
)

func (d Decision) String() string {
	switch d {
	case OK:
		return "OK"
	case KEEP:
		return "KEEP"
	case REPLACE:
		return "REPLACE"
	case CONFLICT:
		return "CONFLICT"
	default:
		return "UNKNOWN"
	}
}

// Placement is the result of findPlacement: where D should go, what
// decision got it there, and (for REPLACE) the Node it displaces.
type Placement struct {
	Target   *tree.Node
	Decision Decision
	Existing *tree.Node // non-nil only for KEEP/REPLACE
	Conflict *tree.Edge // non-nil only for CONFLICT
}

// Engine evaluates placement decisions against a snapshot Inventory,
// used only to answer CanPlace's descendant-conflict scan without
// re-walking the whole tree from scratch for every candidate.
type Engine struct {
	inventory *tree.Inventory
}

// NewEngine builds a placement Engine over a snapshot Inventory of the
// tree being mutated. The Inventory should be refreshed (or at least
// have Add/Remove called) as placement proceeds, so later decisions see
// earlier ones.
func NewEngine(inv *tree.Inventory) *Engine {
	return &Engine{inventory: inv}
}

// CanPlace decides whether candidate D (requested by edge e) can live at
// target T, per spec.md §4.5's three-rule contract:
//  1. If T has its own outgoing edge under D's name that D does not
//     satisfy, that is an immediate CONFLICT.
//  2. Otherwise scan every transitive descendant of T that has an
//     outgoing edge under D's name and no own child shadowing it — the
//     first one D's version doesn't satisfy is a CONFLICT.
//  3. Otherwise: OK if T has no child under D's name; KEEP if that
//     child has D's version, or satisfies e and is not older than D;
//     REPLACE if it satisfies e, D is strictly newer, and D satisfies
//     every other edge into it (e itself is reloaded onto D); else
//     CONFLICT.
func (eng *Engine) CanPlace(target *tree.Node, candidate *tree.Node, e *tree.Edge) Placement {
	if ownEdge, ok := target.EdgesOut[candidate.Name]; ok {
		if !candidate.Satisfies(ownEdge.Range) {
			return Placement{Target: target, Decision: CONFLICT, Conflict: ownEdge}
		}
	}

	if conflict := eng.descendantConflict(target, candidate); conflict != nil {
		return Placement{Target: target, Decision: CONFLICT, Conflict: conflict}
	}

	existing, hasExisting := target.Children[candidate.Name]
	if !hasExisting {
		return Placement{Target: target, Decision: OK}
	}
	if existing.Version == candidate.Version {
		return Placement{Target: target, Decision: KEEP, Existing: existing}
	}
	if existing.Satisfies(e.Range) {
		cv, cErr := semver.Parse(candidate.Version)
		ev, eErr := semver.Parse(existing.Version)
		if cErr == nil && eErr == nil && !semver.GT(cv, ev) {
			return Placement{Target: target, Decision: KEEP, Existing: existing}
		}
		if !replaceBreaksEdgesIn(existing, e, candidate) {
			return Placement{Target: target, Decision: REPLACE, Existing: existing}
		}
	}
	return Placement{Target: target, Decision: CONFLICT}
}

// descendantConflict scans target's transitive descendants (via the
// inventory, filtered to IsDescendantOf target) for an outgoing edge
// under candidate's name that candidate's version would violate, skipping
// descendants that already have their own child shadowing that name
// (their edge resolves to that child, not to whatever lands at target).
func (eng *Engine) descendantConflict(target, candidate *tree.Node) *tree.Edge {
	if eng.inventory == nil {
		return nil
	}
	for _, n := range eng.inventory.All() {
		if n == target || !n.IsDescendantOf(target) {
			continue
		}
		if _, shadowed := n.Children[candidate.Name]; shadowed {
			continue
		}
		edge, ok := n.EdgesOut[candidate.Name]
		if !ok {
			continue
		}
		if !candidate.Satisfies(edge.Range) {
			return edge
		}
	}
	return nil
}

// replaceBreaksEdgesIn reports whether replacing existing with candidate
// would leave any of existing's other dependents unsatisfied. e's own
// from-Node is exempted since it is the edge driving this placement and
// will be reloaded onto the new candidate regardless.
func replaceBreaksEdgesIn(existing *tree.Node, e *tree.Edge, candidate *tree.Node) bool {
	for _, in := range existing.EdgesIn {
		if in == e {
			continue
		}
		if !candidate.Satisfies(in.Range) {
			return true
		}
	}
	return false
}

// FindPlacement walks from start up through ancestors (inclusive),
// evaluating CanPlace at each candidate target. A KEEP is returned at
// once. Each OK or REPLACE replaces the recorded best, so the shallowest
// one reached wins; the first CONFLICT met after an OK or REPLACE stops
// the walk and returns that recorded placement, which nests D below the
// conflicting ancestor. A CONFLICT met before any OK or REPLACE does not
// stop the walk. If no target accepts D, the result is a CONFLICT
// Placement with a nil Target carrying the first conflicting edge found.
func (eng *Engine) FindPlacement(start, candidate *tree.Node, e *tree.Edge) Placement {
	best := Placement{Decision: CONFLICT}
	haveBest := false

	for t := start; t != nil; t = t.Parent {
		decision := eng.CanPlace(t, candidate, e)
		switch decision.Decision {
		case KEEP:
			return decision
		case CONFLICT:
			if haveBest {
				return best
			}
			if best.Conflict == nil {
				best.Conflict = decision.Conflict
			}
		default:
			best = decision
			haveBest = true
		}
	}
	return best
}

// Place executes a Placement against the live tree: OK adds candidate as
// a child of the target; REPLACE detaches the existing child's own
// children (left for the queue to re-resolve), removes it, installs
// candidate, and reloads every edge that pointed at the old Node; KEEP
// returns the existing Node without mutation; CONFLICT returns a
// PlacementConflictError. Place is a method on Engine (rather than a
// bare function) so a REPLACE can immediately drop the displaced
// subtree from the same Inventory CanPlace/FindPlacement read from,
// instead of leaving it to linger as a stale entry until some later
// end-of-build prune pass gets around to it.
func (eng *Engine) Place(p Placement, candidate *tree.Node) (*tree.Node, error) {
	switch p.Decision {
	case OK:
		candidate.SetParent(p.Target)
		return candidate, nil

	case KEEP:
		return p.Existing, nil

	case REPLACE:
		old := p.Existing
		removeSubtreeFromInventory(eng.inventory, old)

		for _, child := range old.Children {
			child.SetParent(nil)
		}
		old.SetParent(nil)
		candidate.SetParent(p.Target)

		edgesIn := append([]*tree.Edge(nil), old.EdgesIn...)
		for _, in := range edgesIn {
			in.Reload()
		}
		return candidate, nil

	default:
		name := candidate.Name
		version := candidate.Version
		conflictName := ""
		if p.Conflict != nil {
			conflictName = p.Conflict.Name
		}
		return nil, &errs.PlacementConflictError{Name: name, Version: version, ConflictName: conflictName}
	}
}

// removeSubtreeFromInventory drops n and every descendant still parented
// under it from inv, depth-first so a child's own Location is read
// before any ancestor's detachment could disturb it. Must run before any
// SetParent(nil) call on n or its children: Inventory.Remove keys a Node
// by its current Location, which SetParent(nil) clears.
func removeSubtreeFromInventory(inv *tree.Inventory, n *tree.Node) {
	if inv == nil {
		return
	}
	for _, child := range n.Children {
		removeSubtreeFromInventory(inv, child)
	}
	inv.Remove(n)
}
