package math

import (
	"math"
	"testing"
)

func TestIdentity(t *testing.T) {
	m := Identity()
	// Diagonal should be 1
	if m[0] != 1 || m[5] != 1 || m[10] != 1 || m[15] != 1 {
		t.Error("Identity diagonal should be 1")
	}
	if m[1] != 0 || m[4] != 0 {
		t.Error("Identity off-diagonal should be 0")
	}
}

func TestMulIdentity(t *testing.T) {
	m := Translate(1, 2, 3)
	result := m.Mul(Identity())
	if result != m {
		t.Errorf("M * I should equal M, got %v", result)
	}
}

func TestTranslate(t *testing.T) {
	m := Translate(5, 10, 15)

	// Translation lives in column 4 (indices 12, 13, 14)
	if m[12] != 5 || m[13] != 10 || m[14] != 15 {
		t.Errorf("Translate: got (%f, %f, %f), want (5, 10, 15)", m[12], m[13], m[14])
	}
}

// transformPoint applies m to p with w=1.
func transformPoint(m Mat4, p [3]float64) [3]float64 {
	return [3]float64{
		m[0]*p[0] + m[4]*p[1] + m[8]*p[2] + m[12],
		m[1]*p[0] + m[5]*p[1] + m[9]*p[2] + m[13],
		m[2]*p[0] + m[6]*p[1] + m[10]*p[2] + m[14],
	}
}

func approxEqual(a, b Mat4, eps float64) bool {
	for i := range a {
		if math.Abs(a[i]-b[i]) > eps {
			return false
		}
	}
	return true
}

func TestMulAppliesRightFirst(t *testing.T) {
	tests := []struct {
		name string
		m    Mat4
		p    [3]float64
		want [3]float64
	}{
		{"translate", Translate(10, 20, 30), [3]float64{1, 2, 3}, [3]float64{11, 22, 33}},
		{"scale", Scale(2, 2, 2), [3]float64{1, 2, 3}, [3]float64{2, 4, 6}},
		{"scale then translate", Translate(1, 0, 0).Mul(Scale(3, 3, 3)), [3]float64{1, 1, 1}, [3]float64{4, 3, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := transformPoint(tt.m, tt.p); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInverse(t *testing.T) {
	// 60 degrees around Y.
	rot := Quat{Y: math.Sin(math.Pi / 6), W: math.Cos(math.Pi / 6)}
	m := Translate(1, 2, 3).Mul(rot.ToMat4()).Mul(Scale(2, 2, 2))
	inv, ok := m.Inverse()
	if !ok {
		t.Fatal("Inverse reported a singular matrix")
	}
	if got := m.Mul(inv); !approxEqual(got, Identity(), 1e-9) {
		t.Errorf("M * M^-1 = %v, want identity", got)
	}

	if _, ok := Scale(0, 1, 1).Inverse(); ok {
		t.Error("Inverse of a singular matrix should report !ok")
	}
}

func TestMat4FromSlice(t *testing.T) {
	m := Translate(4, 5, 6)
	if got := Mat4FromSlice(m.Slice()); got != m {
		t.Errorf("Mat4FromSlice(Slice()) = %v, want %v", got, m)
	}
	if got := Mat4FromSlice([]float64{1, 2}); got != Identity() {
		t.Errorf("short slice should give identity, got %v", got)
	}
}
