package reduce

import (
	"context"
	"maps"
	"slices"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/vrmslim/pkg/decimate"
	"github.com/Faultbox/vrmslim/pkg/remap"
	"github.com/Faultbox/vrmslim/pkg/vrm"
)

// primitiveGroup is a set of primitives of one mesh that share the same
// vertex attributes and therefore one vertex index space.
type primitiveGroup struct {
	mesh       int
	primitives []int
}

func groupPrimitives(doc *vrm.Document) []primitiveGroup {
	var groups []primitiveGroup
	for m, mesh := range doc.Meshes {
		start := len(groups)
	next:
		for p, prim := range mesh.Primitives {
			for g := start; g < len(groups); g++ {
				first := mesh.Primitives[groups[g].primitives[0]]
				if maps.Equal(first.Attributes, prim.Attributes) {
					groups[g].primitives = append(groups[g].primitives, p)
					continue next
				}
			}
			groups = append(groups, primitiveGroup{mesh: m, primitives: []int{p}})
		}
	}
	return groups
}

// accessors returns every vertex attribute and morph target accessor read by
// the group, and its index accessors.
func (g primitiveGroup) accessors(doc *vrm.Document) (vertex, index []int) {
	vset := make(map[int]bool)
	iset := make(map[int]bool)
	for _, p := range g.primitives {
		prim := doc.Meshes[g.mesh].Primitives[p]
		for _, acc := range prim.Attributes {
			vset[acc] = true
		}
		for _, target := range prim.Targets {
			for _, acc := range target {
				vset[acc] = true
			}
		}
		if prim.Indices != nil {
			iset[*prim.Indices] = true
		}
	}
	return slices.Sorted(maps.Keys(vset)), slices.Sorted(maps.Keys(iset))
}

// decimateMeshes simplifies every primitive group to the target ratio.
// Groups that share accessors with other groups, that are not triangle
// lists, or whose attributes disagree on vertex count are skipped.
func (p *Pipeline) decimateMeshes(ctx context.Context, a *vrm.Asset, r *Report) error {
	doc := a.Doc
	groups := groupPrimitives(doc)

	owners := make(map[int]map[int]bool)
	for gi, g := range groups {
		vertex, index := g.accessors(doc)
		for _, acc := range append(vertex, index...) {
			if owners[acc] == nil {
				owners[acc] = make(map[int]bool)
			}
			owners[acc][gi] = true
		}
	}

	for gi, g := range groups {
		if err := ctx.Err(); err != nil {
			return err
		}
		fields := []zap.Field{zap.Int("mesh", g.mesh), zap.Ints("primitives", g.primitives)}
		mesh := doc.Meshes[g.mesh]
		if !allTriangles(mesh, g.primitives) {
			p.warn(r, "primitive group is not a triangle list, skipping decimation", fields...)
			continue
		}
		vertex, index := g.accessors(doc)
		if shared(owners, gi, vertex, index) {
			p.warn(r, "primitive group shares accessors with other meshes, skipping decimation", fields...)
			continue
		}
		pos, ok := mesh.Primitives[g.primitives[0]].Attributes["POSITION"]
		if !ok {
			continue
		}
		collapses, err := p.decimateGroup(a, r, g, pos, vertex)
		if err != nil {
			return err
		}
		r.Collapses += collapses
	}
	return nil
}

func allTriangles(mesh *vrm.Mesh, prims []int) bool {
	for _, p := range prims {
		if !mesh.Primitives[p].IsTriangleList() {
			return false
		}
	}
	return true
}

func shared(owners map[int]map[int]bool, group int, lists ...[]int) bool {
	for _, list := range lists {
		for _, acc := range list {
			if len(owners[acc]) > 1 || !owners[acc][group] {
				return true
			}
		}
	}
	return false
}

func (p *Pipeline) decimateGroup(a *vrm.Asset, r *Report, g primitiveGroup, pos int, vertex []int) (int, error) {
	doc := a.Doc
	mesh := doc.Meshes[g.mesh]

	positions, err := a.ReadAccessor(pos)
	if err != nil {
		return 0, err
	}
	n := positions.Count()
	if n == 0 || positions.Components != 3 {
		return 0, nil
	}
	for _, acc := range vertex {
		if doc.Accessors[acc].Count != n {
			p.warn(r, "vertex attributes disagree on vertex count, skipping decimation",
				zap.Int("mesh", g.mesh), zap.Int("accessor", acc))
			return 0, nil
		}
	}

	dm := decimate.Mesh{Positions: make([]r3.Vec, n)}
	for i := range dm.Positions {
		e := positions.Element(i)
		dm.Positions[i] = r3.Vec{X: e[0], Y: e[1], Z: e[2]}
	}
	for _, pi := range g.primitives {
		indices, err := a.ReadIndices(mesh.Primitives[pi])
		if err != nil {
			return 0, err
		}
		dm.Primitives = append(dm.Primitives, indices)
	}

	res, err := decimate.Decimate(dm, decimate.Options{
		TargetRatio:    p.opts.MeshTargetRatio,
		BoundaryWeight: p.opts.BoundaryWeight,
	})
	if err != nil {
		return 0, err
	}
	if res.Collapses == 0 && res.Packer.Identity() && sameIndices(dm.Primitives, res.Primitives) {
		return 0, nil
	}

	for k, pi := range g.primitives {
		if len(res.Primitives[k]) == 0 {
			p.warn(r, "decimation would leave a primitive without triangles, skipping mesh",
				zap.Int("mesh", g.mesh), zap.Int("primitive", pi))
			return 0, nil
		}
	}

	if err := packVertexAccessors(a, res.Packer, vertex); err != nil {
		return 0, err
	}
	for k, pi := range g.primitives {
		if err := a.WriteIndices(mesh.Primitives[pi], res.Primitives[k]); err != nil {
			return 0, err
		}
	}
	p.log.Debug("mesh decimated",
		zap.Int("mesh", g.mesh),
		zap.Int("vertices_before", n),
		zap.Int("vertices_after", res.Packer.Kept()),
		zap.Int("collapses", res.Collapses),
	)
	return res.Collapses, nil
}

func sameIndices(a, b [][]uint32) bool {
	return slices.EqualFunc(a, b, slices.Equal[[]uint32])
}

// packVertexAccessors drops the vertices the packer does not keep from every
// attribute and morph target accessor.
func packVertexAccessors(a *vrm.Asset, packer *remap.Packer, accessors []int) error {
	for _, acc := range accessors {
		s, err := a.ReadAccessor(acc)
		if err != nil {
			return err
		}
		if s.Values, err = remap.ApplyStrided(packer, s.Values, s.Components); err != nil {
			return err
		}
		if err := a.WriteAccessor(acc, s); err != nil {
			return err
		}
	}
	return nil
}
