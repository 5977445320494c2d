package vrm

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/qmuntal/gltf"
	"golang.org/x/exp/constraints"

	"github.com/Faultbox/vrmslim/pkg/invariant"
)

// bufferView targets.
const (
	TargetArrayBuffer        = 34962
	TargetElementArrayBuffer = 34963
)

// Stream is the decoded content of an accessor: Count elements of
// Components values each, flattened into Values.
type Stream struct {
	Type          gltf.AccessorType
	ComponentType gltf.ComponentType
	Normalized    bool
	Components    int
	Values        []float64
}

// Count returns the number of elements in the stream.
func (s *Stream) Count() int {
	if s.Components == 0 {
		return 0
	}
	return len(s.Values) / s.Components
}

// Element returns the components of element i.
func (s *Stream) Element(i int) []float64 {
	return s.Values[i*s.Components : (i+1)*s.Components]
}

func componentSize(ct gltf.ComponentType) int {
	switch ct {
	case gltf.ComponentByte, gltf.ComponentUbyte:
		return 1
	case gltf.ComponentShort, gltf.ComponentUshort:
		return 2
	default:
		return 4
	}
}

func componentCount(t gltf.AccessorType) int {
	switch t {
	case gltf.AccessorScalar:
		return 1
	case gltf.AccessorVec2:
		return 2
	case gltf.AccessorVec3:
		return 3
	case gltf.AccessorVec4, gltf.AccessorMat2:
		return 4
	case gltf.AccessorMat3:
		return 9
	case gltf.AccessorMat4:
		return 16
	default:
		return 1
	}
}

func readComponent(b []byte, ct gltf.ComponentType) float64 {
	switch ct {
	case gltf.ComponentByte:
		return float64(int8(b[0]))
	case gltf.ComponentUbyte:
		return float64(b[0])
	case gltf.ComponentShort:
		return float64(int16(binary.LittleEndian.Uint16(b)))
	case gltf.ComponentUshort:
		return float64(binary.LittleEndian.Uint16(b))
	case gltf.ComponentUint:
		return float64(binary.LittleEndian.Uint32(b))
	default:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	}
}

func writeComponent(b []byte, ct gltf.ComponentType, v float64) {
	switch ct {
	case gltf.ComponentByte:
		b[0] = byte(int8(v))
	case gltf.ComponentUbyte:
		b[0] = byte(v)
	case gltf.ComponentShort:
		binary.LittleEndian.PutUint16(b, uint16(int16(v)))
	case gltf.ComponentUshort:
		binary.LittleEndian.PutUint16(b, uint16(v))
	case gltf.ComponentUint:
		binary.LittleEndian.PutUint32(b, uint32(v))
	default:
		binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v)))
	}
}

// ReadAccessor decodes accessor i, honouring byteStride and sparse
// substitution. An accessor without a bufferView reads as zeros.
func (a *Asset) ReadAccessor(i int) (*Stream, error) {
	if err := invariant.CheckIndex("accessor", i, len(a.Doc.Accessors)); err != nil {
		return nil, err
	}
	acc := a.Doc.Accessors[i]
	n := componentCount(acc.Type)
	s := &Stream{
		Type:          acc.Type,
		ComponentType: acc.ComponentType,
		Normalized:    acc.Normalized,
		Components:    n,
		Values:        make([]float64, acc.Count*n),
	}
	size := componentSize(acc.ComponentType)
	elemSize := n * size

	if acc.BufferView != nil {
		data, err := a.BufferViewData(*acc.BufferView)
		if err != nil {
			return nil, fmt.Errorf("accessor %d: %w", i, err)
		}
		stride := a.Doc.BufferViews[*acc.BufferView].ByteStride
		if stride == 0 {
			stride = elemSize
		}
		if acc.Count > 0 && acc.ByteOffset+(acc.Count-1)*stride+elemSize > len(data) {
			return nil, invariant.Errorf("accessor %d overruns bufferView %d", i, *acc.BufferView)
		}
		for e := 0; e < acc.Count; e++ {
			base := acc.ByteOffset + e*stride
			for c := 0; c < n; c++ {
				s.Values[e*n+c] = readComponent(data[base+c*size:], acc.ComponentType)
			}
		}
	}

	if sp := acc.Sparse; sp != nil && sp.Count > 0 {
		idxData, err := a.BufferViewData(sp.Indices.BufferView)
		if err != nil {
			return nil, fmt.Errorf("accessor %d sparse indices: %w", i, err)
		}
		valData, err := a.BufferViewData(sp.Values.BufferView)
		if err != nil {
			return nil, fmt.Errorf("accessor %d sparse values: %w", i, err)
		}
		isize := componentSize(sp.Indices.ComponentType)
		if sp.Indices.ByteOffset+sp.Count*isize > len(idxData) ||
			sp.Values.ByteOffset+sp.Count*elemSize > len(valData) {
			return nil, invariant.Errorf("accessor %d sparse data overruns its bufferViews", i)
		}
		for k := 0; k < sp.Count; k++ {
			e := int(readComponent(idxData[sp.Indices.ByteOffset+k*isize:], sp.Indices.ComponentType))
			if err := invariant.CheckIndex("sparse element", e, acc.Count); err != nil {
				return nil, err
			}
			base := sp.Values.ByteOffset + k*elemSize
			for c := 0; c < n; c++ {
				s.Values[e*n+c] = readComponent(valData[base+c*size:], acc.ComponentType)
			}
		}
	}
	return s, nil
}

// EncodeStream packs values tightly as ct components.
func EncodeStream(values []float64, ct gltf.ComponentType) []byte {
	size := componentSize(ct)
	out := make([]byte, len(values)*size)
	for i, v := range values {
		writeComponent(out[i*size:], ct, v)
	}
	return out
}

// WriteAccessor replaces the content of accessor i with s. The accessor gets
// the stream's type and count; sparse data is folded in and dropped. When the
// accessor's bufferView is shared with another accessor a new view is created.
func (a *Asset) WriteAccessor(i int, s *Stream) error {
	if err := invariant.CheckIndex("accessor", i, len(a.Doc.Accessors)); err != nil {
		return err
	}
	if s.Components != componentCount(s.Type) || len(s.Values)%s.Components != 0 {
		return invariant.Errorf("stream of %d values does not hold whole %v elements", len(s.Values), s.Type)
	}
	acc := a.Doc.Accessors[i]
	data := EncodeStream(s.Values, s.ComponentType)

	if acc.BufferView != nil && a.viewOwnedBy(*acc.BufferView, i) {
		if err := a.SetBufferViewData(*acc.BufferView, data); err != nil {
			return err
		}
	} else {
		target := 0
		if acc.BufferView != nil {
			target = a.Doc.BufferViews[*acc.BufferView].Target
		}
		view, err := a.AddBufferView(data, target)
		if err != nil {
			return err
		}
		acc.BufferView = &view
	}

	acc.ByteOffset = 0
	acc.Type = s.Type
	acc.ComponentType = s.ComponentType
	acc.Normalized = s.Normalized
	acc.Count = s.Count()
	acc.Sparse = nil
	if acc.Min != nil || acc.Max != nil {
		acc.Min, acc.Max = s.Bounds()
	}
	a.version++
	return nil
}

// viewOwnedBy reports whether accessor is the only user of view.
func (a *Asset) viewOwnedBy(view, accessor int) bool {
	for j, acc := range a.Doc.Accessors {
		if j == accessor {
			continue
		}
		if acc.BufferView != nil && *acc.BufferView == view {
			return false
		}
		if sp := acc.Sparse; sp != nil && (sp.Indices.BufferView == view || sp.Values.BufferView == view) {
			return false
		}
	}
	for _, img := range a.Doc.Images {
		if img.BufferView != nil && *img.BufferView == view {
			return false
		}
	}
	return true
}

// Bounds returns the per-component minimum and maximum of the stream.
func (s *Stream) Bounds() (min, max []float64) {
	if s.Count() == 0 {
		return nil, nil
	}
	min = append([]float64(nil), s.Element(0)...)
	max = append([]float64(nil), s.Element(0)...)
	for e := 1; e < s.Count(); e++ {
		for c, v := range s.Element(e) {
			min[c] = math.Min(min[c], v)
			max[c] = math.Max(max[c], v)
		}
	}
	return min, max
}

// ReadIndices returns the index list of a primitive. Primitives without an
// index accessor draw vertices 0..count-1 of their POSITION accessor.
func (a *Asset) ReadIndices(p *Primitive) ([]uint32, error) {
	if p.Indices == nil {
		pos, ok := p.Attributes["POSITION"]
		if !ok {
			return nil, nil
		}
		if err := invariant.CheckIndex("accessor", pos, len(a.Doc.Accessors)); err != nil {
			return nil, err
		}
		out := make([]uint32, a.Doc.Accessors[pos].Count)
		for i := range out {
			out[i] = uint32(i)
		}
		return out, nil
	}
	s, err := a.ReadAccessor(*p.Indices)
	if err != nil {
		return nil, err
	}
	out := make([]uint32, len(s.Values))
	for i, v := range s.Values {
		out[i] = uint32(v)
	}
	return out, nil
}

// IndexComponentType returns the narrowest unsigned component type that can
// hold every index.
func IndexComponentType(indices []uint32) gltf.ComponentType {
	switch m := maxOf(indices); {
	case m < 1<<8:
		return gltf.ComponentUbyte
	case m < 1<<16:
		return gltf.ComponentUshort
	default:
		return gltf.ComponentUint
	}
}

// WriteIndices stores indices as the primitive's index buffer using the
// narrowest unsigned component type. A primitive without an index accessor
// gets a new one. An empty list is rejected since accessors hold at least
// one element.
func (a *Asset) WriteIndices(p *Primitive, indices []uint32) error {
	if len(indices) == 0 {
		return invariant.Errorf("empty index list")
	}
	values := make([]float64, len(indices))
	for i, v := range indices {
		values[i] = float64(v)
	}
	s := &Stream{
		Type:          gltf.AccessorScalar,
		ComponentType: IndexComponentType(indices),
		Components:    1,
		Values:        values,
	}
	if p.Indices == nil {
		a.Doc.Accessors = append(a.Doc.Accessors, &Accessor{})
		idx := len(a.Doc.Accessors) - 1
		p.Indices = &idx
		if err := a.WriteAccessor(idx, s); err != nil {
			return err
		}
		a.Doc.BufferViews[*a.Doc.Accessors[idx].BufferView].Target = TargetElementArrayBuffer
		return nil
	}
	return a.WriteAccessor(*p.Indices, s)
}

func maxOf[T constraints.Integer | constraints.Float](values []T) T {
	var m T
	for i, v := range values {
		if i == 0 || v > m {
			m = v
		}
	}
	return m
}

// AddAccessor stores s in a new bufferView and registers an accessor for it,
// returning the accessor index. Float streams get min and max.
func (a *Asset) AddAccessor(s *Stream, target int) (int, error) {
	if s.Components != componentCount(s.Type) || len(s.Values)%s.Components != 0 {
		return 0, invariant.Errorf("stream of %d values does not hold whole %v elements", len(s.Values), s.Type)
	}
	view, err := a.AddBufferView(EncodeStream(s.Values, s.ComponentType), target)
	if err != nil {
		return 0, err
	}
	acc := &Accessor{
		BufferView:    &view,
		ComponentType: s.ComponentType,
		Normalized:    s.Normalized,
		Count:         s.Count(),
		Type:          s.Type,
	}
	if s.ComponentType == gltf.ComponentFloat {
		acc.Min, acc.Max = s.Bounds()
	}
	a.Doc.Accessors = append(a.Doc.Accessors, acc)
	return len(a.Doc.Accessors) - 1, nil
}

// NewStream builds a float stream of the given element type.
func NewStream(t gltf.AccessorType, values []float64) *Stream {
	return &Stream{
		Type:          t,
		ComponentType: gltf.ComponentFloat,
		Components:    componentCount(t),
		Values:        values,
	}
}
