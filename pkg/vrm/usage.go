package vrm

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
)

// Usage records why each texture, image, accessor and bufferView is
// reachable. Elements missing from a map are garbage.
type Usage struct {
	Textures    map[int][]string
	Images      map[int][]string
	Accessors   map[int][]string
	BufferViews map[int][]string

	// Opaque lists extension objects that hold texture or image indices
	// this package does not rewrite. While it is non-empty every texture
	// and image counts as used.
	Opaque []string

	unreferenced map[int]string
}

// BuildUsage walks the document bottom-up and records every reference.
// It is not maintained incrementally: rebuild it after each mutation.
func BuildUsage(doc *Document) *Usage {
	u := &Usage{
		Textures:     make(map[int][]string),
		Images:       make(map[int][]string),
		Accessors:    make(map[int][]string),
		BufferViews:  make(map[int][]string),
		Opaque:       OpaqueTextureRefs(doc),
		unreferenced: make(map[int]string),
	}
	u.collectTextures(doc)
	u.collectImages(doc)
	u.collectAccessors(doc)
	u.collectBufferViews(doc)
	return u
}

func (u *Usage) collectTextures(doc *Document) {
	if len(u.Opaque) > 0 {
		for t := range doc.Textures {
			u.Textures[t] = append(u.Textures[t], u.Opaque[0])
		}
	}
	for m, mat := range doc.Materials {
		slots := mat.TextureSlots()
		for _, slot := range slices.Sorted(maps.Keys(slots)) {
			reason := fmt.Sprintf("material[%d].%s", m, slot)
			u.Textures[slots[slot].Index] = append(u.Textures[slots[slot].Index], reason)
		}
	}
	if doc.VRM == nil {
		return
	}
	for m, prop := range doc.VRM.MaterialProperties {
		for _, name := range slices.Sorted(maps.Keys(prop.TextureProperties)) {
			reason := fmt.Sprintf("VRM.materialProperties[%d].textureProperties.%s", m, name)
			tex := prop.TextureProperties[name]
			u.Textures[tex] = append(u.Textures[tex], reason)
		}
	}
	if meta := doc.VRM.Meta; meta != nil && meta.Texture != nil && *meta.Texture >= 0 {
		u.Textures[*meta.Texture] = append(u.Textures[*meta.Texture], "VRM.meta.texture")
	}
}

func (u *Usage) collectImages(doc *Document) {
	for t, tex := range doc.Textures {
		if tex.Source == nil {
			continue
		}
		if _, used := u.Textures[t]; used {
			u.Images[*tex.Source] = append(u.Images[*tex.Source], fmt.Sprintf("texture[%d]", t))
		}
	}
	if len(u.Opaque) > 0 {
		for i := range doc.Images {
			u.Images[i] = append(u.Images[i], u.Opaque[0])
		}
	}
	for i := range doc.Images {
		if _, used := u.Images[i]; !used {
			u.unreferenced[i] = "not referenced"
		}
	}
}

func (u *Usage) addAccessor(acc int, reason string) {
	u.Accessors[acc] = append(u.Accessors[acc], reason)
}

func (u *Usage) collectAccessors(doc *Document) {
	for m, mesh := range doc.Meshes {
		shared := false
		for p, prim := range mesh.Primitives {
			if p > 0 && sameAccessors(mesh.Primitives[0], prim) {
				if !shared {
					u.addPrimitive(fmt.Sprintf("mesh[%d].primitives[*]", m), prim)
					shared = true
				}
				continue
			}
			u.addPrimitive(fmt.Sprintf("mesh[%d].primitives[%d]", m, p), prim)
		}
	}
	for s, skin := range doc.Skins {
		if skin.InverseBindMatrices != nil {
			u.addAccessor(*skin.InverseBindMatrices, fmt.Sprintf("skin[%d].inverseBindMatrices", s))
		}
	}
	for a, anim := range doc.Animations {
		for s, smp := range anim.Samplers {
			u.addAccessor(smp.Input, fmt.Sprintf("animation[%d].samplers[%d].input", a, s))
			u.addAccessor(smp.Output, fmt.Sprintf("animation[%d].samplers[%d].output", a, s))
		}
	}
}

func (u *Usage) addPrimitive(where string, prim *Primitive) {
	if prim.Indices != nil {
		u.addAccessor(*prim.Indices, where+".indices")
	}
	for _, name := range slices.Sorted(maps.Keys(prim.Attributes)) {
		u.addAccessor(prim.Attributes[name], where+".attributes."+name)
	}
	for t, target := range prim.Targets {
		for _, name := range slices.Sorted(maps.Keys(target)) {
			u.addAccessor(target[name], fmt.Sprintf("%s.targets[%d].%s", where, t, name))
		}
	}
}

// sameAccessors reports whether two primitives read exactly the same index,
// attribute and morph target accessors.
func sameAccessors(a, b *Primitive) bool {
	if (a.Indices == nil) != (b.Indices == nil) || (a.Indices != nil && *a.Indices != *b.Indices) {
		return false
	}
	if !maps.Equal(a.Attributes, b.Attributes) || len(a.Targets) != len(b.Targets) {
		return false
	}
	for i := range a.Targets {
		if !maps.Equal(a.Targets[i], b.Targets[i]) {
			return false
		}
	}
	return true
}

func (u *Usage) collectBufferViews(doc *Document) {
	for i, img := range doc.Images {
		if img.BufferView == nil {
			continue
		}
		if _, used := u.Images[i]; used {
			u.BufferViews[*img.BufferView] = append(u.BufferViews[*img.BufferView], fmt.Sprintf("image[%d]", i))
		}
	}
	for i, acc := range doc.Accessors {
		if _, used := u.Accessors[i]; !used {
			continue
		}
		if acc.BufferView != nil {
			u.BufferViews[*acc.BufferView] = append(u.BufferViews[*acc.BufferView], fmt.Sprintf("accessor[%d]", i))
		}
		if sp := acc.Sparse; sp != nil {
			u.BufferViews[sp.Indices.BufferView] = append(u.BufferViews[sp.Indices.BufferView],
				fmt.Sprintf("accessor[%d].sparse.indices", i))
			u.BufferViews[sp.Values.BufferView] = append(u.BufferViews[sp.Values.BufferView],
				fmt.Sprintf("accessor[%d].sparse.values", i))
		}
	}
}

// DirectlyUsedTextures returns the sorted indices of used textures.
func (u *Usage) DirectlyUsedTextures() []int {
	return slices.Sorted(maps.Keys(u.Textures))
}

// DirectlyUsedImages returns the sorted indices of used images.
func (u *Usage) DirectlyUsedImages() []int {
	return slices.Sorted(maps.Keys(u.Images))
}

// DirectlyUsedAccessors returns the sorted indices of used accessors.
func (u *Usage) DirectlyUsedAccessors() []int {
	return slices.Sorted(maps.Keys(u.Accessors))
}

// DirectlyUsedBuffers returns the sorted indices of used bufferViews.
func (u *Usage) DirectlyUsedBuffers() []int {
	return slices.Sorted(maps.Keys(u.BufferViews))
}

// Unreferenced returns the images that no used texture points at.
func (u *Usage) Unreferenced() []int {
	return slices.Sorted(maps.Keys(u.unreferenced))
}

// indexKeys are the member names glTF and its extensions use to point at a
// texture or an image.
var indexKeys = []string{"index", "source", "thumbnailImage"}

// OpaqueTextureRefs returns the extension objects on the document root,
// materials and textures that may point at textures or images. The VRM 0.x
// block is modeled and never listed.
func OpaqueTextureRefs(doc *Document) []string {
	var refs []string
	scan := func(where string, exts Extensions) {
		for _, name := range slices.Sorted(maps.Keys(exts)) {
			if where == "" && name == ExtensionName {
				continue
			}
			if holdsIndex(exts[name]) {
				refs = append(refs, where+"extensions."+name)
			}
		}
	}
	scan("", doc.Extensions)
	for m, mat := range doc.Materials {
		scan(fmt.Sprintf("material[%d].", m), mat.Extensions)
		if pbr := mat.PBRMetallicRoughness; pbr != nil {
			scan(fmt.Sprintf("material[%d].pbrMetallicRoughness.", m), pbr.Extensions)
		}
	}
	for t, tex := range doc.Textures {
		scan(fmt.Sprintf("texture[%d].", t), tex.Extensions)
	}
	return refs
}

// holdsIndex reports whether raw contains an index-like member at any depth.
// Malformed JSON counts as holding one.
func holdsIndex(raw json.RawMessage) bool {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return true
	}
	return hasIndexKey(v)
}

func hasIndexKey(v any) bool {
	switch v := v.(type) {
	case map[string]any:
		for k, child := range v {
			if slices.Contains(indexKeys, k) || hasIndexKey(child) {
				return true
			}
		}
	case []any:
		for _, child := range v {
			if hasIndexKey(child) {
				return true
			}
		}
	}
	return false
}
