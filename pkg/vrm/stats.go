package vrm

// Stats summarises the size of an asset.
type Stats struct {
	Nodes        int
	Meshes       int
	Primitives   int
	Triangles    int
	Vertices     int
	MorphTargets int
	Materials    int
	Textures     int
	Images       int
	Accessors    int
	BufferViews  int
	BufferBytes  int
	BlendShapes  int
}

// Stats counts the elements of the asset. Vertices are counted once per
// distinct POSITION accessor and morph targets once per mesh.
func (a *Asset) Stats() Stats {
	doc := a.Doc
	s := Stats{
		Nodes:       len(doc.Nodes),
		Meshes:      len(doc.Meshes),
		Materials:   len(doc.Materials),
		Textures:    len(doc.Textures),
		Images:      len(doc.Images),
		Accessors:   len(doc.Accessors),
		BufferViews: len(doc.BufferViews),
		BlendShapes: len(doc.VRM.BlendShapeGroups()),
	}
	positions := make(map[int]bool)
	for _, mesh := range doc.Meshes {
		if len(mesh.Primitives) > 0 {
			s.MorphTargets += len(mesh.Primitives[0].Targets)
		}
		for _, prim := range mesh.Primitives {
			s.Primitives++
			pos, hasPos := prim.Attributes["POSITION"]
			hasPos = hasPos && pos >= 0 && pos < len(doc.Accessors)
			if hasPos && !positions[pos] {
				positions[pos] = true
				s.Vertices += doc.Accessors[pos].Count
			}
			if !prim.IsTriangleList() {
				continue
			}
			if prim.Indices != nil && *prim.Indices < len(doc.Accessors) {
				s.Triangles += doc.Accessors[*prim.Indices].Count / 3
			} else if hasPos {
				s.Triangles += doc.Accessors[pos].Count / 3
			}
		}
	}
	for _, b := range a.Buffers {
		s.BufferBytes += len(b)
	}
	return s
}
