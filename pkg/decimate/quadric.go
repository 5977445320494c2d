package decimate

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Quadric is a 4x4 symmetric error quadric: the sum of p*p^T over planes
// p = (a, b, c, d) with unit normal (a, b, c).
type Quadric struct {
	m *mat.SymDense
}

// NewQuadric returns the zero quadric.
func NewQuadric() Quadric {
	return Quadric{m: mat.NewSymDense(4, nil)}
}

// AddPlane accumulates the plane n.x + d = 0 with the given weight.
func (q Quadric) AddPlane(n r3.Vec, d, weight float64) {
	p := mat.NewVecDense(4, []float64{n.X, n.Y, n.Z, d})
	q.m.SymRankOne(q.m, weight, p)
}

// Add accumulates o into q.
func (q Quadric) Add(o Quadric) {
	q.m.AddSym(q.m, o.m)
}

// Sum returns q + o as a new quadric.
func (q Quadric) Sum(o Quadric) Quadric {
	s := NewQuadric()
	s.m.AddSym(q.m, o.m)
	return s
}

// Error evaluates [v,1] Q [v,1]^T, clamped at zero. NaN reads as +Inf.
func (q Quadric) Error(v r3.Vec) float64 {
	x := mat.NewVecDense(4, []float64{v.X, v.Y, v.Z, 1})
	e := mat.Inner(x, q.m, x)
	if math.IsNaN(e) {
		return math.Inf(1)
	}
	return math.Max(0, e)
}

// facePlane returns the unit normal and offset of triangle (a, b, c).
// ok is false for zero-area triangles.
func facePlane(a, b, c r3.Vec) (n r3.Vec, d float64, ok bool) {
	n = r3.Cross(r3.Sub(b, a), r3.Sub(c, a))
	length := r3.Norm(n)
	if length == 0 || math.IsNaN(length) || math.IsInf(length, 0) {
		return r3.Vec{}, 0, false
	}
	n = r3.Scale(1/length, n)
	return n, -r3.Dot(n, a), true
}

// boundaryPlane returns the constraint plane through edge (a, b) that
// contains the face normal: its normal is edgeDirection x faceNormal.
func boundaryPlane(a, b, faceNormal r3.Vec) (n r3.Vec, d float64, ok bool) {
	dir := r3.Sub(b, a)
	n = r3.Cross(dir, faceNormal)
	length := r3.Norm(n)
	if length == 0 || math.IsNaN(length) || math.IsInf(length, 0) {
		return r3.Vec{}, 0, false
	}
	n = r3.Scale(1/length, n)
	return n, -r3.Dot(n, a), true
}
