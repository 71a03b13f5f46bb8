// Package location resolves where corporation assets are stored: it derives the
// container hierarchy from an inventory snapshot and names the outermost
// location of each item.
package location

import "github.com/rewired-gh/buybackd/internal/models"

// Hierarchy maps an item id to the id of its immediate container.
// It is read-only after BuildHierarchy returns.
type Hierarchy struct {
	parent map[int64]int64
}

// BuildHierarchy derives the containment relation from an asset snapshot.
// Items located in themselves are not entries.
func BuildHierarchy(assets []models.Asset) Hierarchy {
	parent := make(map[int64]int64, len(assets))
	for _, a := range assets {
		if a.ItemID != a.LocationID {
			parent[a.ItemID] = a.LocationID
		}
	}
	return Hierarchy{parent: parent}
}

// Len returns the number of entries.
func (h Hierarchy) Len() int {
	return len(h.parent)
}

// Parent returns the immediate container of id.
func (h Hierarchy) Parent(id int64) (int64, bool) {
	p, ok := h.parent[id]
	return p, ok
}

// Root follows container links from id until an id without a parent is reached.
// The walk is bounded by the number of entries, so a containment cycle in a
// corrupt snapshot terminates on some id of the cycle.
func (h Hierarchy) Root(id int64) int64 {
	for steps := 0; steps <= len(h.parent); steps++ {
		p, ok := h.Parent(id)
		if !ok {
			return id
		}
		id = p
	}
	return id
}
