package idealtree

import "github.com/pkgforge/pkgforge/pkg/tree"

// FixFlags recomputes every non-root Node's extraneous/dev/optional/peer
// flags from scratch in a dedicated pass, rather than maintaining them
// incrementally during placement: placement can change which Nodes are
// reachable from which edge type mid-build, so any flag set while a
// Node was provisionally placed could be stale by the time the queue
// drains. Mirrors spec.md §4.6's flag-fixing pass exactly: two full
// reachability sweeps from root (non-dev edges, then dev edges), each
// an OR onto whatever flags survive, no early exit.
func FixFlags(root *tree.Node, inv *tree.Inventory) {
	for _, n := range inv.All() {
		if n.IsRoot {
			continue
		}
		n.Extraneous = true
		n.Dev = false
		n.Optional = false
	}

	visitedNonDev := make(map[*tree.Node]bool)
	for _, e := range root.EdgesOut {
		if e.To == nil || e.Type == tree.Development {
			continue
		}
		markReachable(e.To, false, isOptionalEdge(e), visitedNonDev)
	}

	visitedDev := make(map[*tree.Node]bool)
	for _, e := range root.EdgesOut {
		if e.To == nil || e.Type != tree.Development {
			continue
		}
		markReachable(e.To, true, false, visitedDev)
	}

	for _, n := range inv.All() {
		n.Peer = false
		for _, e := range n.EdgesOut {
			if e.Type == tree.Peer || e.Type == tree.PeerOptional {
				n.Peer = true
				break
			}
		}
	}
}

func isOptionalEdge(e *tree.Edge) bool {
	return e.Type == tree.Optional || e.Type == tree.PeerOptional
}

// markReachable marks n (and, recursively, everything n's own edges
// resolve to) no longer extraneous, OR-ing dev/opt onto n's existing
// flags. Non-root Nodes never carry Development edges of their own
// (BuildEdges only populates those at the root), so once inside a
// subtree every further edge is walked regardless of type. visited
// prevents infinite recursion around dependency cycles.
func markReachable(n *tree.Node, dev, opt bool, visited map[*tree.Node]bool) {
	if visited[n] {
		return
	}
	visited[n] = true

	n.Extraneous = false
	if dev {
		n.Dev = true
	}
	if opt {
		n.Optional = true
	}

	for _, e := range n.EdgesOut {
		if e.To == nil {
			continue
		}
		childOpt := opt || isOptionalEdge(e)
		markReachable(e.To, dev, childOpt, visited)
	}
}
