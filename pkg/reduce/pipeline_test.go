package reduce

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/qmuntal/gltf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Faultbox/vrmslim/pkg/imageproc"
	"github.com/Faultbox/vrmslim/pkg/vrm"
)

func intPtr(i int) *int { return &i }

// fakeResizer shrinks every image to a fixed payload.
type fakeResizer struct {
	calls int
	err   error
}

func (f *fakeResizer) ResizeImage(_ context.Context, data []byte, mime string, maxSide int) (imageproc.Result, error) {
	f.calls++
	if f.err != nil {
		return imageproc.Result{}, f.err
	}
	return imageproc.Result{Data: []byte("\x89PNG small"), MimeType: "image/png", Width: maxSide, Height: maxSide, Resized: true}, nil
}

var cubeCorners = []float64{
	0, 0, 0, 1, 0, 0, 1, 0, 1, 0, 0, 1,
	0, 1, 0, 1, 1, 0, 1, 1, 1, 0, 1, 1,
}

// openBox is a cube without its top face plus a reversed copy of the bottom.
var openBox = []uint32{
	0, 1, 2, 0, 2, 3,
	0, 4, 5, 0, 5, 1,
	1, 5, 6, 1, 6, 2,
	2, 6, 7, 2, 7, 3,
	3, 7, 4, 3, 4, 0,
	0, 2, 1, 0, 3, 2,
}

// newBoxAsset builds a textured open box with two morph targets, two
// blendshape groups, a thumbnail and one image nothing else uses.
func newBoxAsset(t *testing.T) *vrm.Asset {
	t.Helper()
	doc := &vrm.Document{
		Scene:  intPtr(0),
		Scenes: []*vrm.Scene{{Nodes: []int{0}}},
		Nodes:  []*vrm.Node{{Name: "box", Mesh: intPtr(0)}},
		Materials: []*vrm.Material{{
			Name:                 "body",
			PBRMetallicRoughness: &vrm.PBRMetallicRoughness{BaseColorTexture: &vrm.TextureInfo{Index: 0}},
		}},
		Textures: []*vrm.Texture{{Source: intPtr(0)}, {Source: intPtr(1)}},
	}
	a, err := vrm.NewAsset(doc, nil)
	require.NoError(t, err)

	pos, err := a.AddAccessor(vrm.NewStream(gltf.AccessorVec3, cubeCorners), vrm.TargetArrayBuffer)
	require.NoError(t, err)
	uv := make([]float64, 16)
	for i := range uv {
		uv[i] = float64(i%4) / 4
	}
	tex, err := a.AddAccessor(vrm.NewStream(gltf.AccessorVec2, uv), vrm.TargetArrayBuffer)
	require.NoError(t, err)
	var targets []map[string]int
	for k := 0; k < 2; k++ {
		delta := make([]float64, len(cubeCorners))
		delta[1+3*k] = 0.1
		acc, err := a.AddAccessor(vrm.NewStream(gltf.AccessorVec3, delta), vrm.TargetArrayBuffer)
		require.NoError(t, err)
		targets = append(targets, map[string]int{"POSITION": acc})
	}
	prim := &vrm.Primitive{
		Attributes: map[string]int{"POSITION": pos, "TEXCOORD_0": tex},
		Material:   intPtr(0),
		Targets:    targets,
	}
	require.NoError(t, a.WriteIndices(prim, openBox))
	doc.Meshes = []*vrm.Mesh{{Name: "box", Primitives: []*vrm.Primitive{prim}, Weights: []float64{0, 0}}}

	albedo, err := a.AddBufferView([]byte("\x89PNG albedo texture data"), 0)
	require.NoError(t, err)
	thumb, err := a.AddBufferView([]byte("\xff\xd8 thumbnail"), 0)
	require.NoError(t, err)
	doc.Images = []*vrm.Image{
		{Name: "albedo", MimeType: "image/png", BufferView: intPtr(albedo)},
		{Name: "thumbnail", MimeType: "image/jpeg", BufferView: intPtr(thumb)},
	}
	doc.VRM = &vrm.VRM{
		SpecVersion: "0.0",
		Meta:        &vrm.Meta{Title: "box", Texture: intPtr(1)},
		BlendShapeMaster: &vrm.BlendShapeMaster{BlendShapeGroups: []*vrm.BlendShapeGroup{
			{Name: "A", PresetName: "a", Binds: []*vrm.BlendShapeBind{{Mesh: 0, Index: 0, Weight: 100}}},
			{Name: "Blink", PresetName: "blink", Binds: []*vrm.BlendShapeBind{{Mesh: 0, Index: 1, Weight: 100}}},
		}},
	}
	return a
}

func TestReduceEndToEnd(t *testing.T) {
	a := newBoxAsset(t)
	resizer := &fakeResizer{}
	opts := DefaultOptions()
	p := New(opts, WithResizer(resizer))

	r, err := p.Reduce(context.Background(), a)
	require.NoError(t, err)

	assert.Equal(t, 8, r.Before.Vertices)
	assert.Equal(t, 12, r.Before.Triangles)
	assert.Less(t, r.After.Vertices, 8)
	assert.Less(t, r.After.Triangles, 12)
	assert.Positive(t, r.Collapses)

	assert.Equal(t, 2, r.RemovedBlendShapes)
	assert.Equal(t, 2, r.RemovedMorphTargets)
	assert.Equal(t, 0, r.After.MorphTargets)
	assert.Empty(t, a.Doc.Meshes[0].Primitives[0].Targets)
	assert.Empty(t, a.Doc.Meshes[0].Weights)
	assert.Empty(t, a.Doc.VRM.BlendShapeGroups())

	assert.Equal(t, 1, resizer.calls)
	assert.Equal(t, 1, r.ResizedImages)
	require.Len(t, a.Doc.Images, 1)
	assert.Equal(t, "albedo", a.Doc.Images[0].Name)
	require.Len(t, a.Doc.Textures, 1)
	assert.Nil(t, a.Doc.VRM.Meta.Texture)
	img, err := a.GetImageBytes(0)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG small"), img)

	// POSITION, TEXCOORD_0 and indices survive; both morph deltas are gone.
	assert.Len(t, a.Doc.Accessors, 3)
	assert.Len(t, a.Doc.BufferViews, 4)
	assert.Empty(t, r.Warnings)
	assert.Equal(t, []string{
		"prune bones", "remove thumbnail", "resize textures", "strip blend shapes",
		"prune morph targets", "decimate meshes", "collect garbage", "repack buffer",
	}, r.Steps)

	idx, err := a.ReadIndices(a.Doc.Meshes[0].Primitives[0])
	require.NoError(t, err)
	vertices := a.Doc.Accessors[a.Doc.Meshes[0].Primitives[0].Attributes["POSITION"]].Count
	for _, i := range idx {
		assert.Less(t, int(i), vertices)
	}

	data, err := a.Serialize()
	require.NoError(t, err)
	b, err := vrm.Load(data)
	require.NoError(t, err)
	assert.Equal(t, r.After, b.Stats())
}

func TestReduceGarbageCollectionIsIdempotent(t *testing.T) {
	a := newBoxAsset(t)
	_, err := New(DefaultOptions(), WithResizer(&fakeResizer{})).Reduce(context.Background(), a)
	require.NoError(t, err)

	version := a.Version()
	require.NoError(t, a.CollectGarbage())
	assert.Equal(t, version, a.Version())
}

func TestReduceKeepsBoundMorphTargets(t *testing.T) {
	a := newBoxAsset(t)
	opts := DefaultOptions()
	opts.StripBlendShapes = false
	opts.MeshTargetRatio = 1
	opts.TextureMaxSide = 0

	r, err := New(opts).Reduce(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, 0, r.RemovedMorphTargets)
	assert.Equal(t, 2, r.After.MorphTargets)
	assert.Equal(t, 12, r.After.Triangles)
	assert.Equal(t, 2, r.After.BlendShapes)
}

func TestReducePrunesUnboundMorphTargets(t *testing.T) {
	a := newBoxAsset(t)
	groups := a.Doc.VRM.BlendShapeMaster.BlendShapeGroups
	a.Doc.VRM.BlendShapeMaster.BlendShapeGroups = groups[1:]
	opts := Options{MeshTargetRatio: 1}

	r, err := New(opts).Reduce(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, 1, r.RemovedMorphTargets)
	require.Len(t, a.Doc.Meshes[0].Primitives[0].Targets, 1)
	assert.Equal(t, []float64{0}, a.Doc.Meshes[0].Weights)
	bind := a.Doc.VRM.BlendShapeGroups()[0].Binds[0]
	assert.Equal(t, 0, bind.Index)

	delta, err := a.ReadAccessor(a.Doc.Meshes[0].Primitives[0].Targets[0]["POSITION"])
	require.NoError(t, err)
	assert.InDelta(t, 0.1, delta.Values[4], 1e-6)
}

func TestReduceMorphCountMismatchWarns(t *testing.T) {
	a := newBoxAsset(t)
	mesh := a.Doc.Meshes[0]
	second := *mesh.Primitives[0]
	second.Targets = second.Targets[:1]
	mesh.Primitives = append(mesh.Primitives, &second)

	core, logs := observer.New(zap.WarnLevel)
	opts := Options{MeshTargetRatio: 1, StripBlendShapes: true}
	r, err := New(opts, WithLogger(zap.New(core))).Reduce(context.Background(), a)
	require.NoError(t, err)

	assert.Equal(t, 0, r.RemovedMorphTargets)
	assert.Len(t, mesh.Primitives[0].Targets, 2)
	assert.Equal(t, []string{"primitives disagree on morph target count, skipping mesh (mesh=0)"}, r.Warnings)
	assert.Equal(t, 1, logs.FilterMessage("primitives disagree on morph target count, skipping mesh").Len())
}

func TestReduceSkipsMorphPruningForExpressionExtension(t *testing.T) {
	a := newBoxAsset(t)
	a.Doc.ExtensionsUsed = []string{"VRMC_vrm"}
	a.Doc.Extensions = vrm.Extensions{"VRMC_vrm": json.RawMessage(
		`{"expressions":{"preset":{"blink":{"morphTargetBinds":[{"node":0,"index":1,"weight":1}]}}}}`)}

	core, logs := observer.New(zap.WarnLevel)
	opts := Options{MeshTargetRatio: 1, StripBlendShapes: true}
	r, err := New(opts, WithLogger(zap.New(core))).Reduce(context.Background(), a)
	require.NoError(t, err)

	assert.Equal(t, 0, r.RemovedMorphTargets)
	assert.Len(t, a.Doc.Meshes[0].Primitives[0].Targets, 2)
	assert.Contains(t, r.Warnings, "morph targets are bound by an unmodeled extension, skipping morph pruning (extension=VRMC_vrm)")
	assert.Equal(t, 1, logs.FilterMessage("morph targets are bound by an unmodeled extension, skipping morph pruning").Len())
}

func TestReduceKeepsTexturesReferencedByExtensions(t *testing.T) {
	a := newBoxAsset(t)
	mtoon := json.RawMessage(`{"shadeMultiplyTexture":{"index":1}}`)
	a.Doc.Materials[0].Extensions = vrm.Extensions{"VRMC_materials_mtoon": mtoon}

	opts := Options{MeshTargetRatio: 1, RemoveThumbnail: true}
	r, err := New(opts).Reduce(context.Background(), a)
	require.NoError(t, err)

	assert.Nil(t, a.Doc.VRM.Meta.Texture)
	assert.Len(t, a.Doc.Textures, 2)
	require.Len(t, a.Doc.Images, 2)
	assert.Equal(t, "thumbnail", a.Doc.Images[1].Name)
	assert.JSONEq(t, string(mtoon), string(a.Doc.Materials[0].Extensions["VRMC_materials_mtoon"]))
	assert.Equal(t, []string{
		"extensions reference textures, keeping every texture and image (extensions=[material[0].extensions.VRMC_materials_mtoon])",
	}, r.Warnings)
}

func TestReduceSkipsDecimationThatEmptiesPrimitive(t *testing.T) {
	a := newBoxAsset(t)
	mesh := a.Doc.Meshes[0]
	sliver := *mesh.Primitives[0]
	sliver.Indices = nil
	require.NoError(t, a.WriteIndices(&sliver, []uint32{0, 0, 1}))
	mesh.Primitives = append(mesh.Primitives, &sliver)

	opts := Options{MeshTargetRatio: 0.5}
	r, err := New(opts).Reduce(context.Background(), a)
	require.NoError(t, err)

	assert.Zero(t, r.Collapses)
	assert.Equal(t, []string{"decimation would leave a primitive without triangles, skipping mesh (mesh=0 primitive=1)"}, r.Warnings)
	first, err := a.ReadIndices(mesh.Primitives[0])
	require.NoError(t, err)
	assert.Equal(t, openBox, first)
	second, err := a.ReadIndices(mesh.Primitives[1])
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 0, 1}, second)
}

func TestReduceResizerFailureWarns(t *testing.T) {
	a := newBoxAsset(t)
	opts := Options{MeshTargetRatio: 1, TextureMaxSide: 64, RemoveThumbnail: true}
	r, err := New(opts, WithResizer(&fakeResizer{err: errors.New("unsupported format")})).Reduce(context.Background(), a)
	require.NoError(t, err)

	assert.Equal(t, 0, r.ResizedImages)
	require.Len(t, r.Warnings, 1)
	assert.Contains(t, r.Warnings[0], "image not resized")
	assert.Contains(t, r.Warnings[0], "image=0")
}

func TestReduceRejectsBadRatio(t *testing.T) {
	for _, ratio := range []float64{0, -1, 1.5} {
		opts := DefaultOptions()
		opts.MeshTargetRatio = ratio
		_, err := New(opts).Reduce(context.Background(), newBoxAsset(t))
		assert.Error(t, err, "ratio %v", ratio)
	}
}

func TestReduceCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(DefaultOptions()).Reduce(ctx, newBoxAsset(t))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReduceFunction(t *testing.T) {
	a := newBoxAsset(t)
	opts := DefaultOptions()
	opts.TextureMaxSide = 0
	out, err := Reduce(context.Background(), a, opts)
	require.NoError(t, err)
	assert.Same(t, a, out)
	assert.Len(t, out.Doc.Images, 1)
}
