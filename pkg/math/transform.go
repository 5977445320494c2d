package math

// LocalTransform composes a glTF node transform. A 16-element matrix wins
// over translation, rotation and scale, which are applied as T * R * S.
func LocalTransform(matrix, translation, rotation, scale []float64) Mat4 {
	if len(matrix) == 16 {
		return Mat4FromSlice(matrix)
	}
	m := Identity()
	if len(translation) == 3 {
		m = Translate(translation[0], translation[1], translation[2])
	}
	if len(rotation) == 4 {
		m = m.Mul(QuatFromSlice(rotation).ToMat4())
	}
	if len(scale) == 3 {
		m = m.Mul(Scale(scale[0], scale[1], scale[2]))
	}
	return m
}

// WorldTransforms resolves local transforms through the hierarchy. parents
// holds the parent of each node or -1 for roots. Cycles are cut at the
// first revisited node.
func WorldTransforms(parents []int, locals []Mat4) []Mat4 {
	world := make([]Mat4, len(locals))
	done := make([]bool, len(locals))
	var resolve func(i int, depth int) Mat4
	resolve = func(i int, depth int) Mat4 {
		if done[i] {
			return world[i]
		}
		p := parents[i]
		if p < 0 || p >= len(locals) || depth > len(locals) {
			world[i] = locals[i]
		} else {
			world[i] = resolve(p, depth+1).Mul(locals[i])
		}
		done[i] = true
		return world[i]
	}
	for i := range locals {
		resolve(i, 0)
	}
	return world
}
