package math

import (
	"math"
	"testing"
)

func TestQuatIdentity(t *testing.T) {
	q := QuatIdentity()
	if q.X != 0 || q.Y != 0 || q.Z != 0 || q.W != 1 {
		t.Errorf("Identity quaternion should be (0,0,0,1), got (%v,%v,%v,%v)", q.X, q.Y, q.Z, q.W)
	}
}

func TestQuatNormalize(t *testing.T) {
	n := Quat{X: 1, Y: 2, Z: 3, W: 4}.Normalize()

	length := math.Sqrt(n.X*n.X + n.Y*n.Y + n.Z*n.Z + n.W*n.W)
	if math.Abs(length-1.0) > 1e-9 {
		t.Errorf("Normalized quaternion length should be 1, got %v", length)
	}
	if got := (Quat{}).Normalize(); got != QuatIdentity() {
		t.Errorf("zero quaternion should normalize to identity, got %v", got)
	}
}

func TestQuatToMat4(t *testing.T) {
	if m := QuatIdentity().ToMat4(); !approxEqual(m, Identity(), 1e-12) {
		t.Errorf("Identity quat should produce identity matrix, got %v", m)
	}

	// 90 degrees around Y maps +X to -Z.
	m := Quat{Y: math.Sqrt2 / 2, W: math.Sqrt2 / 2}.ToMat4()
	p := transformPoint(m, [3]float64{1, 0, 0})
	if math.Abs(p[0]) > 1e-9 || math.Abs(p[1]) > 1e-9 || math.Abs(p[2]+1) > 1e-9 {
		t.Errorf("rotate Y 90: got %v, want (0, 0, -1)", p)
	}
}

func TestQuatFromSlice(t *testing.T) {
	if got := QuatFromSlice([]float64{0, 0, 1, 0}); got != (Quat{Z: 1}) {
		t.Errorf("QuatFromSlice = %v", got)
	}
	if got := QuatFromSlice(nil); got != QuatIdentity() {
		t.Errorf("QuatFromSlice(nil) = %v, want identity", got)
	}
}
