package math

import "testing"

func TestLocalTransform(t *testing.T) {
	m := LocalTransform(nil, []float64{1, 2, 3}, []float64{0, 0, 0, 1}, []float64{2, 2, 2})
	if got := transformPoint(m, [3]float64{1, 1, 1}); got != [3]float64{3, 4, 5} {
		t.Errorf("TRS applied to (1,1,1) = %v, want (3,4,5)", got)
	}

	matrix := Translate(7, 0, 0).Slice()
	if got := LocalTransform(matrix, []float64{1, 1, 1}, nil, nil); got != Translate(7, 0, 0) {
		t.Errorf("matrix should override TRS, got %v", got)
	}
}

func TestWorldTransforms(t *testing.T) {
	// 0 -> 1 -> 2, each translating by +1 on X
	parents := []int{-1, 0, 1}
	locals := []Mat4{Translate(1, 0, 0), Translate(1, 0, 0), Translate(1, 0, 0)}

	world := WorldTransforms(parents, locals)
	for i, want := range []float64{1, 2, 3} {
		if world[i][12] != want {
			t.Errorf("node %d world x = %v, want %v", i, world[i][12], want)
		}
	}
}
