package remap

// Merger is a union-find over integer indices. Indices never merged resolve
// to themselves, so no explicit set creation is needed.
type Merger struct {
	parent map[int]int
}

// NewMerger creates an empty Merger.
func NewMerger() *Merger {
	return &Merger{parent: make(map[int]int)}
}

// Merge unions absorbed into survivor: afterwards Resolve(absorbed), and
// everything that resolved to it, returns Resolve(survivor). Merging two
// indices that already share a root is a no-op.
func (m *Merger) Merge(survivor, absorbed int) {
	rs := m.Resolve(survivor)
	ra := m.Resolve(absorbed)
	if rs == ra {
		return
	}
	m.parent[ra] = rs
}

// Resolve returns the current root of index, compressing the traversed path.
func (m *Merger) Resolve(index int) int {
	root := index
	for {
		p, ok := m.parent[root]
		if !ok {
			break
		}
		root = p
	}

	// Second pass: point every node on the chain straight at the root.
	for index != root {
		next := m.parent[index]
		m.parent[index] = root
		index = next
	}
	return root
}

// Merged reports whether index has been absorbed into another index.
func (m *Merger) Merged(index int) bool {
	_, ok := m.parent[index]
	return ok
}

// Len returns the number of absorbed indices.
func (m *Merger) Len() int {
	return len(m.parent)
}
