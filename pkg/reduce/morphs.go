package reduce

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/Faultbox/vrmslim/pkg/remap"
	"github.com/Faultbox/vrmslim/pkg/vrm"
)

// stripBlendShapes deletes every blendshape group.
func (p *Pipeline) stripBlendShapes(_ context.Context, a *vrm.Asset, r *Report) error {
	v := a.Doc.VRM
	if v == nil || v.BlendShapeMaster == nil || len(v.BlendShapeMaster.BlendShapeGroups) == 0 {
		return nil
	}
	r.RemovedBlendShapes += len(v.BlendShapeMaster.BlendShapeGroups)
	v.BlendShapeMaster.BlendShapeGroups = []*vrm.BlendShapeGroup{}
	a.Touch()
	return nil
}

// pruneMorphTargets drops morph targets that no blendshape bind refers to.
// Meshes whose primitives disagree on the number of targets, or whose
// weights are animated, are left alone.
func (p *Pipeline) pruneMorphTargets(_ context.Context, a *vrm.Asset, r *Report) error {
	doc := a.Doc
	if name, ok := morphTargetExtension(doc); ok {
		if hasMorphTargets(doc) {
			p.warn(r, "morph targets are bound by an unmodeled extension, skipping morph pruning", zap.String("extension", name))
		}
		return nil
	}
	used := make(map[[2]int]bool)
	for _, g := range doc.VRM.BlendShapeGroups() {
		for _, b := range g.Binds {
			used[[2]int{b.Mesh, b.Index}] = true
		}
	}
	animated := animatedMeshes(doc)

	for m, mesh := range doc.Meshes {
		count, ok := targetCount(mesh)
		if !ok {
			p.warn(r, "primitives disagree on morph target count, skipping mesh", zap.Int("mesh", m))
			continue
		}
		if count == 0 || animated[m] {
			continue
		}
		packer := remap.NewPackerFunc(count, func(i int) bool {
			return used[[2]int{m, i}]
		})
		if packer.Identity() {
			continue
		}
		if err := applyMorphPacker(doc, m, packer); err != nil {
			return err
		}
		r.RemovedMorphTargets += count - packer.Kept()
		p.log.Debug("morph targets pruned", zap.Int("mesh", m), zap.Int("kept", packer.Kept()), zap.Int("of", count))
		a.Touch()
	}
	return nil
}

func targetCount(mesh *vrm.Mesh) (int, bool) {
	if len(mesh.Primitives) == 0 {
		return 0, true
	}
	count := len(mesh.Primitives[0].Targets)
	for _, prim := range mesh.Primitives[1:] {
		if len(prim.Targets) != count {
			return 0, false
		}
	}
	return count, true
}

// animatedMeshes returns the meshes whose morph weights an animation drives.
func animatedMeshes(doc *vrm.Document) map[int]bool {
	out := make(map[int]bool)
	for _, anim := range doc.Animations {
		for _, ch := range anim.Channels {
			node := ch.Target.Node
			if ch.Target.Path != "weights" || node == nil || *node < 0 || *node >= len(doc.Nodes) {
				continue
			}
			if mesh := doc.Nodes[*node].Mesh; mesh != nil {
				out[*mesh] = true
			}
		}
	}
	return out
}

func applyMorphPacker(doc *vrm.Document, m int, packer *remap.Packer) error {
	mesh := doc.Meshes[m]
	var err error
	for _, prim := range mesh.Primitives {
		if prim.Targets, err = remap.Apply(packer, prim.Targets); err != nil {
			return err
		}
		if prim.Extras, err = filterTargetNames(prim.Extras, packer); err != nil {
			return err
		}
	}
	if len(mesh.Weights) == packer.Length() {
		if mesh.Weights, err = remap.Apply(packer, mesh.Weights); err != nil {
			return err
		}
	}
	if mesh.Extras, err = filterTargetNames(mesh.Extras, packer); err != nil {
		return err
	}
	for _, node := range doc.Nodes {
		if node.Mesh != nil && *node.Mesh == m && len(node.Weights) == packer.Length() {
			if node.Weights, err = remap.Apply(packer, node.Weights); err != nil {
				return err
			}
		}
	}
	for _, g := range doc.VRM.BlendShapeGroups() {
		binds := g.Binds[:0]
		for _, b := range g.Binds {
			if b.Mesh == m {
				if !packer.Keeps(b.Index) {
					continue // out of range
				}
				if b.Index, err = packer.Convert(b.Index); err != nil {
					return err
				}
			}
			binds = append(binds, b)
		}
		g.Binds = binds
	}
	return nil
}

// filterTargetNames applies packer to extras.targetNames when it has one
// name per morph target. Other extras are kept verbatim.
func filterTargetNames(extras json.RawMessage, packer *remap.Packer) (json.RawMessage, error) {
	if len(extras) == 0 {
		return extras, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(extras, &fields); err != nil {
		return extras, nil
	}
	var names []string
	if err := json.Unmarshal(fields["targetNames"], &names); err != nil || len(names) != packer.Length() {
		return extras, nil
	}
	names, err := remap.Apply(packer, names)
	if err != nil {
		return nil, err
	}
	if fields["targetNames"], err = json.Marshal(names); err != nil {
		return nil, err
	}
	return json.Marshal(fields)
}

// morphTargetExtensions bind morph targets by index outside the VRM 0.x block.
var morphTargetExtensions = []string{"VRMC_vrm"}

func morphTargetExtension(doc *vrm.Document) (string, bool) {
	for _, name := range morphTargetExtensions {
		if _, ok := doc.Extensions[name]; ok || doc.HasExtension(name) {
			return name, true
		}
	}
	return "", false
}

func hasMorphTargets(doc *vrm.Document) bool {
	for _, mesh := range doc.Meshes {
		for _, prim := range mesh.Primitives {
			if len(prim.Targets) > 0 {
				return true
			}
		}
	}
	return false
}
