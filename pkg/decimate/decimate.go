// Package decimate simplifies triangle meshes with quadric error metric
// edge collapses (Garland and Heckbert), keeping open boundaries in place
// with weighted constraint planes.
//
// The decimator only works on indices: vertices are collapsed onto one of
// the edge endpoints, never moved, so every vertex attribute and morph target
// can be carried over through the returned Packer.
package decimate

import (
	"cmp"
	"math"
	"slices"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/vrmslim/pkg/containers"
	"github.com/Faultbox/vrmslim/pkg/invariant"
	"github.com/Faultbox/vrmslim/pkg/remap"
)

// DefaultBoundaryWeight scales open edge constraint planes relative to face planes.
const DefaultBoundaryWeight = 10

// Options control a decimation run.
type Options struct {
	// TargetRatio in (0, 1]. floor(edges * (1 - TargetRatio)) collapses are attempted.
	TargetRatio float64
	// BoundaryWeight multiplies open edge constraint planes. Zero means DefaultBoundaryWeight.
	BoundaryWeight float64
}

// Mesh is one vertex array shared by several triangle lists.
type Mesh struct {
	Positions  []r3.Vec
	Primitives [][]uint32
}

// Result holds the simplified index lists, already renumbered through Packer.
type Result struct {
	// Packer maps old vertex indices to the compacted vertex array.
	Packer     *remap.Packer
	Primitives [][]uint32
	// Collapses is the number of edges actually collapsed.
	Collapses int
	// Popped is the number of edges taken off the queue, degenerate ones included.
	Popped int
}

type edge struct {
	a, b uint32 // a < b
}

func makeEdge(u, v uint32) edge {
	if u > v {
		u, v = v, u
	}
	return edge{u, v}
}

type decimator struct {
	positions []r3.Vec
	quadrics  []Quadric
	merger    *remap.Merger
	queue     *containers.PriorityQueue[edge]
	adjacent  map[uint32][]edge
}

// Decimate collapses edges of m in order of increasing quadric error.
func Decimate(m Mesh, opts Options) (*Result, error) {
	if !(opts.TargetRatio > 0 && opts.TargetRatio <= 1) {
		return nil, invariant.Errorf("target ratio %v outside (0, 1]", opts.TargetRatio)
	}
	if opts.BoundaryWeight == 0 {
		opts.BoundaryWeight = DefaultBoundaryWeight
	}
	n := len(m.Positions)
	for p, tris := range m.Primitives {
		if len(tris)%3 != 0 {
			return nil, invariant.Errorf("primitive %d has %d indices, not a triangle list", p, len(tris))
		}
		for _, idx := range tris {
			if err := invariant.CheckIndex("vertex", int(idx), n); err != nil {
				return nil, err
			}
		}
	}

	d := newDecimator(m, opts.BoundaryWeight)
	res := &Result{}
	pops := int(math.Floor(float64(d.queue.Len()) * (1 - opts.TargetRatio)))
	var err error
	if res.Popped, res.Collapses, err = d.run(pops); err != nil {
		return nil, err
	}

	res.Primitives = make([][]uint32, len(m.Primitives))
	var used []int
	for p, tris := range m.Primitives {
		res.Primitives[p] = d.rewrite(tris)
		for _, idx := range res.Primitives[p] {
			used = append(used, int(idx))
		}
	}
	packer, err := remap.NewPacker(len(m.Positions), used)
	if err != nil {
		return nil, err
	}
	for _, tris := range res.Primitives {
		for i, idx := range tris {
			nidx, err := packer.Convert(int(idx))
			if err != nil {
				return nil, err
			}
			tris[i] = uint32(nidx)
		}
	}
	res.Packer = packer
	return res, nil
}

// newDecimator builds the vertex quadrics of m and seeds the queue with
// every edge.
func newDecimator(m Mesh, boundaryWeight float64) *decimator {
	d := &decimator{
		positions: m.Positions,
		quadrics:  make([]Quadric, len(m.Positions)),
		merger:    remap.NewMerger(),
		adjacent:  make(map[uint32][]edge),
	}
	for i := range d.quadrics {
		d.quadrics[i] = NewQuadric()
	}

	edges := make(map[edge]struct{})
	for _, tris := range m.Primitives {
		d.accumulate(tris, boundaryWeight, edges)
	}
	sorted := make([]edge, 0, len(edges))
	for e := range edges {
		sorted = append(sorted, e)
	}
	slices.SortFunc(sorted, func(x, y edge) int {
		return cmp.Or(cmp.Compare(x.a, y.a), cmp.Compare(x.b, y.b))
	})

	d.queue = containers.NewPriorityQueue[edge](len(sorted))
	for _, e := range sorted {
		d.queue.Insert(e, d.cost(e.a, e.b))
		d.adjacent[e.a] = append(d.adjacent[e.a], e)
		d.adjacent[e.b] = append(d.adjacent[e.b], e)
	}
	return d
}

// run pops up to pops edges, collapsing the non-degenerate ones.
func (d *decimator) run(pops int) (popped, collapses int, err error) {
	for ; popped < pops && !d.queue.IsEmpty(); popped++ {
		item, err := d.queue.PopMin()
		if err != nil {
			return popped, collapses, err
		}
		if d.collapse(item.Key) {
			collapses++
		}
	}
	return popped, collapses, nil
}

// accumulate adds face planes and open edge constraint planes of one
// primitive to the vertex quadrics and records its edges.
func (d *decimator) accumulate(tris []uint32, boundaryWeight float64, edges map[edge]struct{}) {
	uses := make(map[edge]int)
	normals := make(map[edge]r3.Vec)
	for t := 0; t+2 < len(tris); t += 3 {
		v := [3]uint32{tris[t], tris[t+1], tris[t+2]}
		normal, off, ok := facePlane(d.positions[v[0]], d.positions[v[1]], d.positions[v[2]])
		if ok {
			for _, i := range v {
				d.quadrics[i].AddPlane(normal, off, 1)
			}
		}
		for k := 0; k < 3; k++ {
			if v[k] == v[(k+1)%3] {
				continue
			}
			e := makeEdge(v[k], v[(k+1)%3])
			uses[e]++
			edges[e] = struct{}{}
			if _, seen := normals[e]; !seen && ok {
				normals[e] = normal
			}
		}
	}
	for e, count := range uses {
		if count != 1 {
			continue
		}
		faceNormal, ok := normals[e]
		if !ok {
			continue
		}
		pa, pb := d.positions[e.a], d.positions[e.b]
		n, off, ok := boundaryPlane(pa, pb, faceNormal)
		if !ok {
			continue
		}
		d.quadrics[e.a].AddPlane(n, off, boundaryWeight)
		d.quadrics[e.b].AddPlane(n, off, boundaryWeight)
	}
}

// cost is the smaller error of collapsing u and v onto either endpoint.
func (d *decimator) cost(u, v uint32) float64 {
	if u == v {
		return d.quadrics[u].Error(d.positions[u])
	}
	q := d.quadrics[u].Sum(d.quadrics[v])
	return math.Min(q.Error(d.positions[u]), q.Error(d.positions[v]))
}

func (d *decimator) resolve(v uint32) uint32 {
	return uint32(d.merger.Resolve(int(v)))
}

// collapse merges the endpoints of e. It returns false when they already
// resolve to the same vertex.
func (d *decimator) collapse(e edge) bool {
	u, v := d.resolve(e.a), d.resolve(e.b)
	if u == v {
		return false
	}
	q := d.quadrics[u].Sum(d.quadrics[v])
	survivor, absorbed := u, v
	if q.Error(d.positions[v]) < q.Error(d.positions[u]) {
		survivor, absorbed = v, u
	}
	d.quadrics[survivor] = q
	d.merger.Merge(int(survivor), int(absorbed))

	d.adjacent[survivor] = append(d.adjacent[survivor], d.adjacent[absorbed]...)
	delete(d.adjacent, absorbed)
	for _, other := range d.adjacent[survivor] {
		d.queue.Update(other, d.cost(d.resolve(other.a), d.resolve(other.b)))
	}
	return true
}

// rewrite resolves every triangle through the merger and drops degenerate
// triangles and rotations of triangles already kept.
func (d *decimator) rewrite(tris []uint32) []uint32 {
	out := make([]uint32, 0, len(tris))
	seen := make(map[[3]uint32]struct{})
	for t := 0; t+2 < len(tris); t += 3 {
		a, b, c := d.resolve(tris[t]), d.resolve(tris[t+1]), d.resolve(tris[t+2])
		if a == b || b == c || a == c {
			continue
		}
		key := canonicalRotation(a, b, c)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, a, b, c)
	}
	return out
}

// canonicalRotation rotates (a, b, c) so the smallest index comes first,
// keeping the winding.
func canonicalRotation(a, b, c uint32) [3]uint32 {
	switch {
	case a <= b && a <= c:
		return [3]uint32{a, b, c}
	case b <= a && b <= c:
		return [3]uint32{b, c, a}
	default:
		return [3]uint32{c, a, b}
	}
}
