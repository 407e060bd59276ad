package placement

import (
	"container/heap"

	"github.com/pkgforge/pkgforge/pkg/tree"
)

// QueueEntry is one unit of placement work: an edge, still dangling or
// invalid, that needs a resolved candidate placed somewhere in the tree.
type QueueEntry struct {
	From *tree.Node
	Edge *tree.Edge
}

func entryKey(e QueueEntry) [3]string {
	return [3]string{e.From.Location, e.Edge.Name, e.Edge.Spec}
}

// DepsQueue orders pending edges by depth (shallowest first), ties
// broken lexicographically by edge name, and deduplicates by
// (fromNode.location, edge.name, edge.spec) so pushing an already-queued
// entry is a no-op. Backed by container/heap for O(log n) push/pop.
type DepsQueue struct {
	items []QueueEntry
	seen  map[[3]string]bool
}

// NewDepsQueue returns an empty queue.
func NewDepsQueue() *DepsQueue {
	return &DepsQueue{seen: make(map[[3]string]bool)}
}

// Len implements heap.Interface.
func (q *DepsQueue) Len() int { return len(q.items) }

// Less implements heap.Interface: shallower depth first, then
// lexicographic edge name.
func (q *DepsQueue) Less(i, j int) bool {
	di, dj := q.items[i].From.Depth(), q.items[j].From.Depth()
	if di != dj {
		return di < dj
	}
	return q.items[i].Edge.Name < q.items[j].Edge.Name
}

// Swap implements heap.Interface.
func (q *DepsQueue) Swap(i, j int) { q.items[i], q.items[j] = q.items[j], q.items[i] }

// Push implements heap.Interface; use Queue for deduplication.
func (q *DepsQueue) Push(x any) { q.items = append(q.items, x.(QueueEntry)) }

// Pop implements heap.Interface; use Next for the typed entry.
func (q *DepsQueue) Pop() any {
	n := len(q.items)
	item := q.items[n-1]
	q.items = q.items[:n-1]
	return item
}

// Queue pushes entry onto the queue unless an entry with the same
// (location, name, spec) key has already been queued.
func (q *DepsQueue) Queue(entry QueueEntry) {
	key := entryKey(entry)
	if q.seen[key] {
		return
	}
	q.seen[key] = true
	heap.Push(q, entry)
}

// Next pops the shallowest, lexicographically-earliest entry. Returns
// false when the queue is empty.
func (q *DepsQueue) Next() (QueueEntry, bool) {
	if q.Len() == 0 {
		return QueueEntry{}, false
	}
	entry := heap.Pop(q).(QueueEntry)
	return entry, true
}

// Empty reports whether the queue has no pending entries.
func (q *DepsQueue) Empty() bool {
	return q.Len() == 0
}

// NextBatch pops every entry sharing the shallowest depth currently
// queued, so a caller can resolve a whole same-depth batch's packuments
// through one parallel fan-out instead of one at a time. The heap
// invariant puts the overall-minimum entry at items[0], so the batch is
// exactly the run of pops whose depth matches that first one. Returns
// nil once the queue is empty.
func (q *DepsQueue) NextBatch() []QueueEntry {
	if q.Len() == 0 {
		return nil
	}
	depth := q.items[0].From.Depth()

	var batch []QueueEntry
	for q.Len() > 0 && q.items[0].From.Depth() == depth {
		batch = append(batch, heap.Pop(q).(QueueEntry))
	}
	return batch
}
