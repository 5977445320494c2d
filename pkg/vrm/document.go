// Package vrm holds the in-memory model of a VRM avatar: the glTF scene
// document, the VRM extension block and the raw binary buffers.
package vrm

import (
	"encoding/json"

	"github.com/qmuntal/gltf"
)

// Extensions is a passthrough bag for extension objects that are not modeled.
type Extensions map[string]json.RawMessage

// Document is the JSON part of a VRM file.
type Document struct {
	ExtensionsUsed     []string          `json:"extensionsUsed,omitempty"`
	ExtensionsRequired []string          `json:"extensionsRequired,omitempty"`
	Asset              AssetInfo         `json:"asset"`
	Scene              *int              `json:"scene,omitempty"`
	Scenes             []*Scene          `json:"scenes,omitempty"`
	Nodes              []*Node           `json:"nodes,omitempty"`
	Meshes             []*Mesh           `json:"meshes,omitempty"`
	Skins              []*Skin           `json:"skins,omitempty"`
	Materials          []*Material       `json:"materials,omitempty"`
	Textures           []*Texture        `json:"textures,omitempty"`
	Images             []*Image          `json:"images,omitempty"`
	Samplers           []*Sampler        `json:"samplers,omitempty"`
	Animations         []*Animation      `json:"animations,omitempty"`
	Cameras            []json.RawMessage `json:"cameras,omitempty"`
	Accessors          []*Accessor       `json:"accessors,omitempty"`
	BufferViews        []*BufferView     `json:"bufferViews,omitempty"`
	Buffers            []*Buffer         `json:"buffers,omitempty"`
	Extensions         Extensions        `json:"extensions,omitempty"`
	Extras             json.RawMessage   `json:"extras,omitempty"`

	// VRM is decoded from Extensions["VRM"] on load and written back on save.
	VRM *VRM `json:"-"`
}

// AssetInfo is the glTF "asset" block.
type AssetInfo struct {
	Version    string          `json:"version"`
	Generator  string          `json:"generator,omitempty"`
	Copyright  string          `json:"copyright,omitempty"`
	MinVersion string          `json:"minVersion,omitempty"`
	Extensions Extensions      `json:"extensions,omitempty"`
	Extras     json.RawMessage `json:"extras,omitempty"`
}

// Scene lists root nodes.
type Scene struct {
	Name       string          `json:"name,omitempty"`
	Nodes      []int           `json:"nodes,omitempty"`
	Extensions Extensions      `json:"extensions,omitempty"`
	Extras     json.RawMessage `json:"extras,omitempty"`
}

// Node is an element of the scene graph.
type Node struct {
	Name        string          `json:"name,omitempty"`
	Children    []int           `json:"children,omitempty"`
	Mesh        *int            `json:"mesh,omitempty"`
	Skin        *int            `json:"skin,omitempty"`
	Camera      *int            `json:"camera,omitempty"`
	Matrix      []float64       `json:"matrix,omitempty"`
	Translation []float64       `json:"translation,omitempty"`
	Rotation    []float64       `json:"rotation,omitempty"`
	Scale       []float64       `json:"scale,omitempty"`
	Weights     []float64       `json:"weights,omitempty"`
	Extensions  Extensions      `json:"extensions,omitempty"`
	Extras      json.RawMessage `json:"extras,omitempty"`
}

// Mesh is a set of primitives drawn together.
type Mesh struct {
	Name       string          `json:"name,omitempty"`
	Primitives []*Primitive    `json:"primitives"`
	Weights    []float64       `json:"weights,omitempty"`
	Extensions Extensions      `json:"extensions,omitempty"`
	Extras     json.RawMessage `json:"extras,omitempty"`
}

// Primitive modes.
const (
	ModePoints    = 0
	ModeTriangles = 4
)

// Primitive is one draw call: an index buffer, vertex attributes and morph targets.
type Primitive struct {
	Attributes map[string]int   `json:"attributes"`
	Indices    *int             `json:"indices,omitempty"`
	Material   *int             `json:"material,omitempty"`
	Mode       *int             `json:"mode,omitempty"`
	Targets    []map[string]int `json:"targets,omitempty"`
	Extensions Extensions       `json:"extensions,omitempty"`
	Extras     json.RawMessage  `json:"extras,omitempty"`
}

// IsTriangleList reports whether the primitive draws a triangle list.
func (p *Primitive) IsTriangleList() bool {
	return p.Mode == nil || *p.Mode == ModeTriangles
}

// Skin binds a mesh to joint nodes.
type Skin struct {
	Name                string          `json:"name,omitempty"`
	InverseBindMatrices *int            `json:"inverseBindMatrices,omitempty"`
	Skeleton            *int            `json:"skeleton,omitempty"`
	Joints              []int           `json:"joints"`
	Extensions          Extensions      `json:"extensions,omitempty"`
	Extras              json.RawMessage `json:"extras,omitempty"`
}

// TextureInfo references a texture from a material slot.
type TextureInfo struct {
	Index      int             `json:"index"`
	TexCoord   int             `json:"texCoord,omitempty"`
	Scale      *float64        `json:"scale,omitempty"`
	Strength   *float64        `json:"strength,omitempty"`
	Extensions Extensions      `json:"extensions,omitempty"`
	Extras     json.RawMessage `json:"extras,omitempty"`
}

// PBRMetallicRoughness is the core glTF material model.
type PBRMetallicRoughness struct {
	BaseColorFactor          []float64       `json:"baseColorFactor,omitempty"`
	BaseColorTexture         *TextureInfo    `json:"baseColorTexture,omitempty"`
	MetallicFactor           *float64        `json:"metallicFactor,omitempty"`
	RoughnessFactor          *float64        `json:"roughnessFactor,omitempty"`
	MetallicRoughnessTexture *TextureInfo    `json:"metallicRoughnessTexture,omitempty"`
	Extensions               Extensions      `json:"extensions,omitempty"`
	Extras                   json.RawMessage `json:"extras,omitempty"`
}

// Material describes surface appearance.
type Material struct {
	Name                 string                `json:"name,omitempty"`
	PBRMetallicRoughness *PBRMetallicRoughness `json:"pbrMetallicRoughness,omitempty"`
	NormalTexture        *TextureInfo          `json:"normalTexture,omitempty"`
	OcclusionTexture     *TextureInfo          `json:"occlusionTexture,omitempty"`
	EmissiveTexture      *TextureInfo          `json:"emissiveTexture,omitempty"`
	EmissiveFactor       []float64             `json:"emissiveFactor,omitempty"`
	AlphaMode            string                `json:"alphaMode,omitempty"`
	AlphaCutoff          *float64              `json:"alphaCutoff,omitempty"`
	DoubleSided          bool                  `json:"doubleSided,omitempty"`
	Extensions           Extensions            `json:"extensions,omitempty"`
	Extras               json.RawMessage       `json:"extras,omitempty"`
}

// TextureSlots returns every texture reference of the material with its slot name.
func (m *Material) TextureSlots() map[string]*TextureInfo {
	slots := make(map[string]*TextureInfo)
	if pbr := m.PBRMetallicRoughness; pbr != nil {
		if pbr.BaseColorTexture != nil {
			slots["pbrMetallicRoughness.baseColorTexture"] = pbr.BaseColorTexture
		}
		if pbr.MetallicRoughnessTexture != nil {
			slots["pbrMetallicRoughness.metallicRoughnessTexture"] = pbr.MetallicRoughnessTexture
		}
	}
	if m.NormalTexture != nil {
		slots["normalTexture"] = m.NormalTexture
	}
	if m.OcclusionTexture != nil {
		slots["occlusionTexture"] = m.OcclusionTexture
	}
	if m.EmissiveTexture != nil {
		slots["emissiveTexture"] = m.EmissiveTexture
	}
	return slots
}

// Texture pairs an image with a sampler.
type Texture struct {
	Name       string          `json:"name,omitempty"`
	Sampler    *int            `json:"sampler,omitempty"`
	Source     *int            `json:"source,omitempty"`
	Extensions Extensions      `json:"extensions,omitempty"`
	Extras     json.RawMessage `json:"extras,omitempty"`
}

// Image is either embedded through a bufferView or referenced by URI.
type Image struct {
	Name       string          `json:"name,omitempty"`
	URI        string          `json:"uri,omitempty"`
	MimeType   string          `json:"mimeType,omitempty"`
	BufferView *int            `json:"bufferView,omitempty"`
	Extensions Extensions      `json:"extensions,omitempty"`
	Extras     json.RawMessage `json:"extras,omitempty"`
}

// Sampler holds texture filtering and wrapping modes.
type Sampler struct {
	Name       string          `json:"name,omitempty"`
	MagFilter  int             `json:"magFilter,omitempty"`
	MinFilter  int             `json:"minFilter,omitempty"`
	WrapS      int             `json:"wrapS,omitempty"`
	WrapT      int             `json:"wrapT,omitempty"`
	Extensions Extensions      `json:"extensions,omitempty"`
	Extras     json.RawMessage `json:"extras,omitempty"`
}

// Animation is a set of keyframe channels.
type Animation struct {
	Name       string              `json:"name,omitempty"`
	Channels   []*AnimationChannel `json:"channels"`
	Samplers   []*AnimationSampler `json:"samplers"`
	Extensions Extensions          `json:"extensions,omitempty"`
	Extras     json.RawMessage     `json:"extras,omitempty"`
}

// AnimationChannel targets one node property.
type AnimationChannel struct {
	Sampler int             `json:"sampler"`
	Target  AnimationTarget `json:"target"`
}

// AnimationTarget names the animated node and property.
type AnimationTarget struct {
	Node *int   `json:"node,omitempty"`
	Path string `json:"path"`
}

// AnimationSampler pairs keyframe times with values.
type AnimationSampler struct {
	Input         int    `json:"input"`
	Output        int    `json:"output"`
	Interpolation string `json:"interpolation,omitempty"`
}

// Accessor is a typed view into a bufferView.
type Accessor struct {
	Name          string             `json:"name,omitempty"`
	BufferView    *int               `json:"bufferView,omitempty"`
	ByteOffset    int                `json:"byteOffset,omitempty"`
	ComponentType gltf.ComponentType `json:"componentType"`
	Normalized    bool               `json:"normalized,omitempty"`
	Count         int                `json:"count"`
	Type          gltf.AccessorType  `json:"type"`
	Max           []float64          `json:"max,omitempty"`
	Min           []float64          `json:"min,omitempty"`
	Sparse        *Sparse            `json:"sparse,omitempty"`
	Extensions    Extensions         `json:"extensions,omitempty"`
	Extras        json.RawMessage    `json:"extras,omitempty"`
}

// Sparse stores deviations from an accessor's dense data.
type Sparse struct {
	Count   int           `json:"count"`
	Indices SparseIndices `json:"indices"`
	Values  SparseValues  `json:"values"`
}

// SparseIndices locates the indices of sparse elements.
type SparseIndices struct {
	BufferView    int                `json:"bufferView"`
	ByteOffset    int                `json:"byteOffset,omitempty"`
	ComponentType gltf.ComponentType `json:"componentType"`
}

// SparseValues locates the replacement values.
type SparseValues struct {
	BufferView int `json:"bufferView"`
	ByteOffset int `json:"byteOffset,omitempty"`
}

// BufferView is a byte range [ByteOffset, ByteOffset+ByteLength) of one buffer.
type BufferView struct {
	Name       string          `json:"name,omitempty"`
	Buffer     int             `json:"buffer"`
	ByteOffset int             `json:"byteOffset,omitempty"`
	ByteLength int             `json:"byteLength"`
	ByteStride int             `json:"byteStride,omitempty"`
	Target     int             `json:"target,omitempty"`
	Extensions Extensions      `json:"extensions,omitempty"`
	Extras     json.RawMessage `json:"extras,omitempty"`
}

// Buffer is a raw byte blob. In a GLB the data lives in a BIN chunk.
type Buffer struct {
	Name       string          `json:"name,omitempty"`
	URI        string          `json:"uri,omitempty"`
	ByteLength int             `json:"byteLength"`
	Extensions Extensions      `json:"extensions,omitempty"`
	Extras     json.RawMessage `json:"extras,omitempty"`
}

// Root returns the node indices of the active scene.
func (d *Document) Root() []int {
	if len(d.Scenes) == 0 {
		return nil
	}
	i := 0
	if d.Scene != nil && *d.Scene >= 0 && *d.Scene < len(d.Scenes) {
		i = *d.Scene
	}
	return d.Scenes[i].Nodes
}

// ParentIndexes returns the parent of every node, or -1 for roots.
func (d *Document) ParentIndexes() []int {
	parents := make([]int, len(d.Nodes))
	for i := range parents {
		parents[i] = -1
	}
	for p, node := range d.Nodes {
		for _, c := range node.Children {
			if c >= 0 && c < len(parents) {
				parents[c] = p
			}
		}
	}
	return parents
}

// HasExtension reports whether name is listed in extensionsUsed.
func (d *Document) HasExtension(name string) bool {
	for _, ext := range d.ExtensionsUsed {
		if ext == name {
			return true
		}
	}
	return false
}
