package tree

import (
	"github.com/google/uuid"
)

// Inventory is a flat index over every Node in a tree, with three lookup
// views: by canonical location, by declared name (multi-valued), and by
// "name@version". It holds only non-owning back-references — a Node is
// owned exclusively by its parent's child map (or, for the root, by
// whoever holds the Inventory).
type Inventory struct {
	byLocation    map[string]*Node
	byName        map[string]map[string]*Node // name -> key -> Node
	byNameVersion map[string]*Node
}

// NewInventory returns an empty Inventory.
func NewInventory() *Inventory {
	return &Inventory{
		byLocation:    make(map[string]*Node),
		byName:        make(map[string]map[string]*Node),
		byNameVersion: make(map[string]*Node),
	}
}

// key returns the Node's primary index key: its Location when it has
// one, otherwise a lazily-assigned stable synthetic identifier.
func key(n *Node) string {
	if n.Location != "" || n.IsRoot {
		return n.Location
	}
	if n.syntheticID == "" {
		n.syntheticID = uuid.NewString()
	}
	return n.syntheticID
}

// Add inserts n into every index view, overwriting any prior entry under
// the same key.
func (inv *Inventory) Add(n *Node) {
	k := key(n)
	inv.byLocation[k] = n

	if inv.byName[n.Name] == nil {
		inv.byName[n.Name] = make(map[string]*Node)
	}
	inv.byName[n.Name][k] = n

	inv.byNameVersion[n.Name+"@"+n.Version] = n
}

// Remove deletes n from every index view.
func (inv *Inventory) Remove(n *Node) {
	k := key(n)
	delete(inv.byLocation, k)
	if set, ok := inv.byName[n.Name]; ok {
		delete(set, k)
		if len(set) == 0 {
			delete(inv.byName, n.Name)
		}
	}
	delete(inv.byNameVersion, n.Name+"@"+n.Version)
}

// Has reports whether a Node with n's current key is already present —
// used by the builder's "add to inventory if new" step.
func (inv *Inventory) Has(n *Node) bool {
	_, ok := inv.byLocation[key(n)]
	return ok
}

// Get looks up a Node by its canonical location.
func (inv *Inventory) Get(location string) (*Node, bool) {
	n, ok := inv.byLocation[location]
	return n, ok
}

// GetByNameVersion looks up a Node by its "name@version" key.
func (inv *Inventory) GetByNameVersion(name, version string) (*Node, bool) {
	n, ok := inv.byNameVersion[name+"@"+version]
	return n, ok
}

// ByName returns every Node currently registered under a declared name.
func (inv *Inventory) ByName(name string) []*Node {
	set, ok := inv.byName[name]
	if !ok {
		return nil
	}
	nodes := make([]*Node, 0, len(set))
	for _, n := range set {
		nodes = append(nodes, n)
	}
	return nodes
}

// All returns every Node in the inventory, order unspecified.
func (inv *Inventory) All() []*Node {
	nodes := make([]*Node, 0, len(inv.byLocation))
	for _, n := range inv.byLocation {
		nodes = append(nodes, n)
	}
	return nodes
}

// Filter returns every Node for which pred returns true.
func (inv *Inventory) Filter(pred func(*Node) bool) []*Node {
	var matched []*Node
	for _, n := range inv.byLocation {
		if pred(n) {
			matched = append(matched, n)
		}
	}
	return matched
}

// Query returns every Node registered under name whose version satisfies
// rangeStr.
func (inv *Inventory) Query(name, rangeStr string) []*Node {
	var matched []*Node
	for _, n := range inv.ByName(name) {
		if n.Satisfies(rangeStr) {
			matched = append(matched, n)
		}
	}
	return matched
}
