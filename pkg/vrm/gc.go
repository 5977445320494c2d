package vrm

import (
	"github.com/Faultbox/vrmslim/pkg/remap"
)

// RemoveUnusedTextures drops textures that nothing references and renumbers
// every texture reference.
func (a *Asset) RemoveUnusedTextures() (*remap.Packer, error) {
	doc := a.Doc
	p, err := remap.NewPacker(len(doc.Textures), BuildUsage(doc).DirectlyUsedTextures())
	if err != nil {
		return nil, err
	}
	if p.Identity() {
		return p, nil
	}
	for _, mat := range doc.Materials {
		for _, slot := range mat.TextureSlots() {
			if slot.Index, err = p.Convert(slot.Index); err != nil {
				return nil, err
			}
		}
	}
	if v := doc.VRM; v != nil {
		for _, prop := range v.MaterialProperties {
			for name, tex := range prop.TextureProperties {
				if prop.TextureProperties[name], err = p.Convert(tex); err != nil {
					return nil, err
				}
			}
		}
		if v.Meta != nil && v.Meta.Texture != nil && *v.Meta.Texture >= 0 {
			v.Meta.Texture = p.ConvertOptional(v.Meta.Texture)
		}
	}
	if doc.Textures, err = remap.Apply(p, doc.Textures); err != nil {
		return nil, err
	}
	a.version++
	return p, nil
}

// RemoveUnusedImages drops images that no used texture points at.
func (a *Asset) RemoveUnusedImages() (*remap.Packer, error) {
	doc := a.Doc
	p, err := remap.NewPacker(len(doc.Images), BuildUsage(doc).DirectlyUsedImages())
	if err != nil {
		return nil, err
	}
	if p.Identity() {
		return p, nil
	}
	for _, tex := range doc.Textures {
		tex.Source = p.ConvertOptional(tex.Source)
	}
	if doc.Images, err = remap.Apply(p, doc.Images); err != nil {
		return nil, err
	}
	a.version++
	return p, nil
}

// RemoveUnusedAccessors drops accessors that no primitive, skin or animation
// reads.
func (a *Asset) RemoveUnusedAccessors() (*remap.Packer, error) {
	doc := a.Doc
	p, err := remap.NewPacker(len(doc.Accessors), BuildUsage(doc).DirectlyUsedAccessors())
	if err != nil {
		return nil, err
	}
	if p.Identity() {
		return p, nil
	}
	convertMap := func(m map[string]int) error {
		for k, v := range m {
			n, err := p.Convert(v)
			if err != nil {
				return err
			}
			m[k] = n
		}
		return nil
	}
	for _, mesh := range doc.Meshes {
		for _, prim := range mesh.Primitives {
			if prim.Indices != nil {
				if prim.Indices, err = convertRequired(p, prim.Indices); err != nil {
					return nil, err
				}
			}
			if err := convertMap(prim.Attributes); err != nil {
				return nil, err
			}
			for _, target := range prim.Targets {
				if err := convertMap(target); err != nil {
					return nil, err
				}
			}
		}
	}
	for _, skin := range doc.Skins {
		if skin.InverseBindMatrices != nil {
			if skin.InverseBindMatrices, err = convertRequired(p, skin.InverseBindMatrices); err != nil {
				return nil, err
			}
		}
	}
	for _, anim := range doc.Animations {
		for _, smp := range anim.Samplers {
			if smp.Input, err = p.Convert(smp.Input); err != nil {
				return nil, err
			}
			if smp.Output, err = p.Convert(smp.Output); err != nil {
				return nil, err
			}
		}
	}
	if doc.Accessors, err = remap.Apply(p, doc.Accessors); err != nil {
		return nil, err
	}
	a.version++
	return p, nil
}

// RemoveUnusedBufferViews drops bufferViews that no used image or accessor
// reads. The bytes stay in the buffer until RepackBuffer.
func (a *Asset) RemoveUnusedBufferViews() (*remap.Packer, error) {
	doc := a.Doc
	p, err := remap.NewPacker(len(doc.BufferViews), BuildUsage(doc).DirectlyUsedBuffers())
	if err != nil {
		return nil, err
	}
	if p.Identity() {
		return p, nil
	}
	for _, img := range doc.Images {
		if img.BufferView != nil {
			if img.BufferView, err = convertRequired(p, img.BufferView); err != nil {
				return nil, err
			}
		}
	}
	for _, acc := range doc.Accessors {
		if acc.BufferView != nil {
			if acc.BufferView, err = convertRequired(p, acc.BufferView); err != nil {
				return nil, err
			}
		}
		if sp := acc.Sparse; sp != nil {
			if sp.Indices.BufferView, err = p.Convert(sp.Indices.BufferView); err != nil {
				return nil, err
			}
			if sp.Values.BufferView, err = p.Convert(sp.Values.BufferView); err != nil {
				return nil, err
			}
		}
	}
	if doc.BufferViews, err = remap.Apply(p, doc.BufferViews); err != nil {
		return nil, err
	}
	a.version++
	return p, nil
}

// CollectGarbage removes unused textures, images, accessors and bufferViews
// in dependency order. Each step rebuilds the usage graph so it sees the
// previous step's deletions.
func (a *Asset) CollectGarbage() error {
	steps := []func() (*remap.Packer, error){
		a.RemoveUnusedTextures,
		a.RemoveUnusedImages,
		a.RemoveUnusedAccessors,
		a.RemoveUnusedBufferViews,
	}
	for _, step := range steps {
		if _, err := step(); err != nil {
			return err
		}
	}
	return nil
}

func convertRequired(p *remap.Packer, old *int) (*int, error) {
	n, err := p.Convert(*old)
	if err != nil {
		return nil, err
	}
	return &n, nil
}
