package reduce

import (
	"cmp"
	"context"
	"slices"
	"strconv"

	"github.com/qmuntal/gltf"
	"go.uber.org/zap"

	"github.com/Faultbox/vrmslim/pkg/invariant"
	"github.com/Faultbox/vrmslim/pkg/math"
	"github.com/Faultbox/vrmslim/pkg/remap"
	"github.com/Faultbox/vrmslim/pkg/vrm"
)

// influencesPerSet is the number of (joint, weight) pairs in one
// JOINTS_n/WEIGHTS_n attribute pair.
const influencesPerSet = 4

// skinnedAttributes are the JOINTS_n/WEIGHTS_n accessor pairs of one primitive.
type skinnedAttributes struct {
	joints  []int
	weights []int
}

func skinAttributes(prim *vrm.Primitive) skinnedAttributes {
	var sa skinnedAttributes
	for set := 0; ; set++ {
		j, okJ := prim.Attributes[attrName("JOINTS", set)]
		w, okW := prim.Attributes[attrName("WEIGHTS", set)]
		if !okJ || !okW {
			return sa
		}
		sa.joints = append(sa.joints, j)
		sa.weights = append(sa.weights, w)
	}
}

func attrName(prefix string, set int) string {
	return prefix + "_" + strconv.Itoa(set)
}

// boneGraph is the node hierarchy with the pinned and kept node sets.
type boneGraph struct {
	doc     *vrm.Document
	parents []int
	pinned  []bool
	kept    []bool
}

func newBoneGraph(doc *vrm.Document) *boneGraph {
	g := &boneGraph{
		doc:     doc,
		parents: doc.ParentIndexes(),
		pinned:  make([]bool, len(doc.Nodes)),
	}
	g.pinStructural()
	return g
}

func (g *boneGraph) pin(node int) {
	if node >= 0 && node < len(g.pinned) {
		g.pinned[node] = true
	}
}

func (g *boneGraph) pinSubtree(node int) {
	stack := []int{node}
	seen := make(map[int]bool)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[n] || n < 0 || n >= len(g.pinned) {
			continue
		}
		seen[n] = true
		g.pinned[n] = true
		stack = append(stack, g.doc.Nodes[n].Children...)
	}
}

// pinStructural pins nodes that must survive whatever their skin weights:
// mesh and camera holders, humanoid bones, spring bone chains, colliders,
// skeleton roots and animated nodes.
func (g *boneGraph) pinStructural() {
	doc := g.doc
	for i, node := range doc.Nodes {
		if node.Mesh != nil || node.Skin != nil || node.Camera != nil {
			g.pin(i)
		}
	}
	for _, skin := range doc.Skins {
		if skin.Skeleton != nil {
			g.pin(*skin.Skeleton)
		}
	}
	for _, anim := range doc.Animations {
		for _, ch := range anim.Channels {
			if ch.Target.Node != nil {
				g.pin(*ch.Target.Node)
			}
		}
	}
	v := doc.VRM
	if v == nil {
		return
	}
	for _, node := range v.HumanBoneNodes() {
		g.pin(node)
	}
	if fp := v.FirstPerson; fp != nil && fp.FirstPersonBone != nil {
		g.pin(*fp.FirstPersonBone)
	}
	if sa := v.SecondaryAnimation; sa != nil {
		for _, group := range sa.BoneGroups {
			for _, bone := range group.Bones {
				g.pinSubtree(bone)
			}
			g.pin(group.Center)
		}
		for _, cg := range sa.ColliderGroups {
			g.pin(cg.Node)
		}
	}
}

// computeKept marks pinned nodes and all their ancestors as kept.
func (g *boneGraph) computeKept() {
	g.kept = make([]bool, len(g.pinned))
	for i, pinned := range g.pinned {
		if !pinned {
			continue
		}
		for n, depth := i, 0; n >= 0 && !g.kept[n] && depth <= len(g.kept); n, depth = g.parents[n], depth+1 {
			g.kept[n] = true
		}
	}
}

// keptAncestor returns the nearest kept ancestor of node, or -1.
func (g *boneGraph) keptAncestor(node int) int {
	for n, depth := g.parents[node], 0; n >= 0 && depth <= len(g.kept); n, depth = g.parents[n], depth+1 {
		if g.kept[n] {
			return n
		}
	}
	return -1
}

// skinBinding maps each mesh to the single skin it is drawn with.
func skinBinding(doc *vrm.Document) (map[int]int, bool) {
	binding := make(map[int]int)
	for _, node := range doc.Nodes {
		if node.Mesh == nil || node.Skin == nil {
			continue
		}
		if s, ok := binding[*node.Mesh]; ok && s != *node.Skin {
			return nil, false
		}
		binding[*node.Mesh] = *node.Skin
	}
	return binding, true
}

// weightedJoints returns the nodes that carry a non-zero weight in any
// skinned primitive.
func weightedJoints(a *vrm.Asset, binding map[int]int) (map[int]bool, error) {
	doc := a.Doc
	out := make(map[int]bool)
	for m, s := range binding {
		if err := invariant.CheckIndex("mesh", m, len(doc.Meshes)); err != nil {
			return nil, err
		}
		if err := invariant.CheckIndex("skin", s, len(doc.Skins)); err != nil {
			return nil, err
		}
		joints := doc.Skins[s].Joints
		for _, prim := range doc.Meshes[m].Primitives {
			sa := skinAttributes(prim)
			for k := range sa.joints {
				js, err := a.ReadAccessor(sa.joints[k])
				if err != nil {
					return nil, err
				}
				ws, err := a.ReadAccessor(sa.weights[k])
				if err != nil {
					return nil, err
				}
				if len(js.Values) != len(ws.Values) {
					return nil, invariant.Errorf("mesh %d: JOINTS_%d and WEIGHTS_%d lengths differ", m, k, k)
				}
				for i, w := range ws.Values {
					slot := int(js.Values[i])
					if w > 0 && slot >= 0 && slot < len(joints) {
						out[joints[slot]] = true
					}
				}
			}
		}
	}
	return out, nil
}

// pruneBones deletes nodes that nothing needs and moves their skin weights
// to the nearest kept ancestor.
func (p *Pipeline) pruneBones(_ context.Context, a *vrm.Asset, r *Report) error {
	doc := a.Doc
	if doc.HasExtension("VRMC_vrm") || doc.HasExtension("VRMC_springBone") {
		p.warn(r, "VRM 1.0 node references are not tracked, skipping bone pruning")
		return nil
	}
	binding, ok := skinBinding(doc)
	if !ok {
		p.warn(r, "a mesh is drawn with more than one skin, skipping bone pruning")
		return nil
	}
	weighted, err := weightedJoints(a, binding)
	if err != nil {
		return err
	}

	g := newBoneGraph(doc)
	g.computeKept()
	// Weighted joints without any kept ancestor have nowhere to move their
	// weights, so they stay.
	for changed := true; changed; {
		changed = false
		for node := range weighted {
			if !g.kept[node] && g.keptAncestor(node) < 0 {
				g.pin(node)
				changed = true
			}
		}
		if changed {
			g.computeKept()
		}
	}

	merger := remap.NewMerger()
	removed := 0
	for n := range doc.Nodes {
		if g.kept[n] {
			continue
		}
		removed++
		if anc := g.keptAncestor(n); anc >= 0 {
			merger.Merge(anc, n)
		}
	}
	if removed == 0 {
		return nil
	}

	for s := range doc.Skins {
		if err := p.remapSkin(a, g, merger, binding, s); err != nil {
			return err
		}
	}
	if err := renumberNodes(doc, g.kept); err != nil {
		return err
	}
	r.RemovedNodes += removed
	p.log.Debug("bones pruned", zap.Int("removed", removed), zap.Int("kept", len(doc.Nodes)))
	a.Touch()
	return nil
}

// remapSkin rewrites the joint list of skin s to the surviving nodes, gives
// newly promoted ancestors an inverse bind matrix and merges the vertex
// weights of removed joints into their survivors.
func (p *Pipeline) remapSkin(a *vrm.Asset, g *boneGraph, merger *remap.Merger, binding map[int]int, s int) error {
	doc := a.Doc
	skin := doc.Skins[s]

	var ibm *vrm.Stream
	if skin.InverseBindMatrices != nil {
		var err error
		if ibm, err = a.ReadAccessor(*skin.InverseBindMatrices); err != nil {
			return err
		}
		if ibm.Components != 16 || ibm.Count() < len(skin.Joints) {
			return invariant.Errorf("skin %d inverse bind matrices do not cover %d joints", s, len(skin.Joints))
		}
	}

	var joints []int
	position := make(map[int]int) // node -> new slot
	slots := make([]int, len(skin.Joints))
	for old, node := range skin.Joints {
		survivor := node
		if node >= 0 && node < len(g.kept) && !g.kept[node] {
			survivor = merger.Resolve(node)
		}
		if survivor < 0 || survivor >= len(g.kept) || !g.kept[survivor] {
			slots[old] = -1
			continue
		}
		slot, ok := position[survivor]
		if !ok {
			slot = len(joints)
			position[survivor] = slot
			joints = append(joints, survivor)
		}
		slots[old] = slot
	}
	if len(joints) == 0 {
		return invariant.Errorf("skin %d loses every joint", s)
	}
	identity := len(joints) == len(skin.Joints)
	for old, slot := range slots {
		identity = identity && slot == old
	}
	if identity {
		return nil
	}

	if ibm != nil {
		values, err := inverseBindMatrices(doc, skin, ibm, joints)
		if err != nil {
			return err
		}
		acc, err := a.AddAccessor(vrm.NewStream(gltf.AccessorMat4, values), 0)
		if err != nil {
			return err
		}
		skin.InverseBindMatrices = &acc
	}
	skin.Joints = joints

	done := make(map[int]bool)
	for m, bound := range binding {
		if bound != s {
			continue
		}
		for _, prim := range doc.Meshes[m].Primitives {
			sa := skinAttributes(prim)
			if len(sa.joints) == 0 || done[sa.joints[0]] {
				continue
			}
			done[sa.joints[0]] = true
			if err := mergeInfluences(a, sa, slots); err != nil {
				return err
			}
		}
	}
	return nil
}

// inverseBindMatrices returns the matrices for the new joint list. Joints
// that were already in the skin keep their matrix; promoted ancestors get
// the inverse of their current world transform.
func inverseBindMatrices(doc *vrm.Document, skin *vrm.Skin, ibm *vrm.Stream, joints []int) ([]float64, error) {
	oldSlot := make(map[int]int, len(skin.Joints))
	for i, node := range skin.Joints {
		if _, ok := oldSlot[node]; !ok {
			oldSlot[node] = i
		}
	}
	var world []math.Mat4
	values := make([]float64, 0, len(joints)*16)
	for _, node := range joints {
		if i, ok := oldSlot[node]; ok {
			values = append(values, ibm.Element(i)...)
			continue
		}
		if world == nil {
			world = worldTransforms(doc)
		}
		inv, ok := world[node].Inverse()
		if !ok {
			return nil, invariant.Errorf("node %d has a singular world transform", node)
		}
		values = append(values, inv.Slice()...)
	}
	return values, nil
}

func worldTransforms(doc *vrm.Document) []math.Mat4 {
	locals := make([]math.Mat4, len(doc.Nodes))
	for i, n := range doc.Nodes {
		locals[i] = math.LocalTransform(n.Matrix, n.Translation, n.Rotation, n.Scale)
	}
	return math.WorldTransforms(doc.ParentIndexes(), locals)
}

type influence struct {
	slot   int
	weight float64
}

// mergeInfluences maps every vertex influence through slots, sums the
// weights that land on the same joint and keeps the strongest ones. Weights
// are not renormalised when influences are dropped.
func mergeInfluences(a *vrm.Asset, sa skinnedAttributes, slots []int) error {
	jointStreams := make([]*vrm.Stream, len(sa.joints))
	weightStreams := make([]*vrm.Stream, len(sa.weights))
	for k := range sa.joints {
		var err error
		if jointStreams[k], err = a.ReadAccessor(sa.joints[k]); err != nil {
			return err
		}
		if weightStreams[k], err = a.ReadAccessor(sa.weights[k]); err != nil {
			return err
		}
		if jointStreams[k].Count() != weightStreams[k].Count() ||
			jointStreams[k].Components != influencesPerSet || weightStreams[k].Components != influencesPerSet {
			return invariant.Errorf("JOINTS_%d and WEIGHTS_%d are not matching VEC4 streams", k, k)
		}
	}

	capacity := influencesPerSet * len(sa.joints)
	count := jointStreams[0].Count()
	for v := 0; v < count; v++ {
		sums := make(map[int]float64, capacity)
		for k := range sa.joints {
			js, ws := jointStreams[k].Element(v), weightStreams[k].Element(v)
			for c := 0; c < influencesPerSet; c++ {
				old := int(js[c])
				if ws[c] <= 0 || old < 0 || old >= len(slots) || slots[old] < 0 {
					continue
				}
				sums[slots[old]] += ws[c]
			}
		}
		merged := make([]influence, 0, len(sums))
		for slot, w := range sums {
			merged = append(merged, influence{slot, w})
		}
		slices.SortFunc(merged, func(x, y influence) int {
			return cmp.Or(cmp.Compare(y.weight, x.weight), cmp.Compare(x.slot, y.slot))
		})
		if len(merged) > capacity {
			merged = merged[:capacity]
		}
		for k := range sa.joints {
			js, ws := jointStreams[k].Element(v), weightStreams[k].Element(v)
			for c := 0; c < influencesPerSet; c++ {
				i := k*influencesPerSet + c
				if i < len(merged) {
					js[c], ws[c] = float64(merged[i].slot), merged[i].weight
				} else {
					js[c], ws[c] = 0, 0
				}
			}
		}
	}

	for k := range sa.joints {
		if err := a.WriteAccessor(sa.joints[k], jointStreams[k]); err != nil {
			return err
		}
		if err := a.WriteAccessor(sa.weights[k], weightStreams[k]); err != nil {
			return err
		}
	}
	return nil
}

// renumberNodes drops the nodes that are not kept and rewrites every node
// reference in the document.
func renumberNodes(doc *vrm.Document, kept []bool) error {
	packer := remap.NewPackerFunc(len(doc.Nodes), func(i int) bool { return kept[i] })
	conv := func(i *int) error {
		n, err := packer.Convert(*i)
		if err != nil {
			return err
		}
		*i = n
		return nil
	}
	filter := func(list []int) []int {
		out := list[:0]
		for _, i := range list {
			if n, err := packer.Convert(i); err == nil {
				out = append(out, n)
			}
		}
		return out
	}

	for _, node := range doc.Nodes {
		node.Children = filter(node.Children)
	}
	for _, scene := range doc.Scenes {
		scene.Nodes = filter(scene.Nodes)
	}
	for _, skin := range doc.Skins {
		for j := range skin.Joints {
			if err := conv(&skin.Joints[j]); err != nil {
				return err
			}
		}
		if skin.Skeleton != nil {
			if err := conv(skin.Skeleton); err != nil {
				return err
			}
		}
	}
	for _, anim := range doc.Animations {
		for _, ch := range anim.Channels {
			if ch.Target.Node != nil {
				if err := conv(ch.Target.Node); err != nil {
					return err
				}
			}
		}
	}
	if v := doc.VRM; v != nil {
		if v.Humanoid != nil {
			for _, b := range v.Humanoid.HumanBones {
				if err := conv(&b.Node); err != nil {
					return err
				}
			}
		}
		if fp := v.FirstPerson; fp != nil && fp.FirstPersonBone != nil {
			if err := conv(fp.FirstPersonBone); err != nil {
				return err
			}
		}
		if sa := v.SecondaryAnimation; sa != nil {
			for _, group := range sa.BoneGroups {
				for i := range group.Bones {
					if err := conv(&group.Bones[i]); err != nil {
						return err
					}
				}
				if group.Center >= 0 {
					if err := conv(&group.Center); err != nil {
						return err
					}
				}
			}
			for _, cg := range sa.ColliderGroups {
				if err := conv(&cg.Node); err != nil {
					return err
				}
			}
		}
	}

	var err error
	doc.Nodes, err = remap.Apply(packer, doc.Nodes)
	return err
}
