package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/qmuntal/gltf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Faultbox/vrmslim/internal/config"
	"github.com/Faultbox/vrmslim/pkg/vrm"
)

// writeGrid saves an n x n quad grid and returns its path.
func writeGrid(t *testing.T, n int) string {
	t.Helper()
	doc := &vrm.Document{
		Scenes: []*vrm.Scene{{Nodes: []int{0}}},
		Nodes:  []*vrm.Node{{Name: "grid", Mesh: new(int)}},
	}
	a, err := vrm.NewAsset(doc, nil)
	require.NoError(t, err)

	var pos []float64
	for y := 0; y <= n; y++ {
		for x := 0; x <= n; x++ {
			pos = append(pos, float64(x), float64(y), 0)
		}
	}
	var idx []uint32
	row := uint32(n + 1)
	for y := uint32(0); y < uint32(n); y++ {
		for x := uint32(0); x < uint32(n); x++ {
			i := y*row + x
			idx = append(idx, i, i+1, i+row, i+1, i+row+1, i+row)
		}
	}
	acc, err := a.AddAccessor(vrm.NewStream(gltf.AccessorVec3, pos), vrm.TargetArrayBuffer)
	require.NoError(t, err)
	prim := &vrm.Primitive{Attributes: map[string]int{"POSITION": acc}}
	require.NoError(t, a.WriteIndices(prim, idx))
	doc.Meshes = []*vrm.Mesh{{Primitives: []*vrm.Primitive{prim}}}

	path := filepath.Join(t.TempDir(), "grid.vrm")
	require.NoError(t, a.SaveFile(path))
	return path
}

func TestReduceCommandRun(t *testing.T) {
	in := writeGrid(t, 4)
	out := filepath.Join(t.TempDir(), "out.vrm")
	rc := &reduceCommand{cfg: config.Default(), log: zap.NewNop()}

	report, err := rc.run(context.Background(), in, out)
	require.NoError(t, err)
	assert.Equal(t, 32, report.Before.Triangles)
	assert.Less(t, report.After.Triangles, 32)

	a, err := vrm.LoadFile(out)
	require.NoError(t, err)
	assert.Equal(t, report.After.Triangles, a.Stats().Triangles)
}

func TestReduceCommandDryRun(t *testing.T) {
	in := writeGrid(t, 4)
	out := filepath.Join(t.TempDir(), "out.vrm")
	rc := &reduceCommand{cfg: config.Default(), dryRun: true, log: zap.NewNop()}

	report, err := rc.run(context.Background(), in, out)
	require.NoError(t, err)
	assert.Less(t, report.After.Triangles, report.Before.Triangles)

	_, err = os.Stat(out)
	assert.True(t, os.IsNotExist(err))
}

func TestReduceCommandMissingInput(t *testing.T) {
	rc := &reduceCommand{cfg: config.Default(), log: zap.NewNop()}
	_, err := rc.run(context.Background(), filepath.Join(t.TempDir(), "missing.vrm"), "out.vrm")
	assert.Error(t, err)
}
