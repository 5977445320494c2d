// Package remap provides the index bookkeeping used when elements of an
// asset are deleted (Packer) or merged together (Merger).
package remap

import "github.com/Faultbox/vrmslim/pkg/invariant"

// Packer is an order-preserving compaction of the universe [0, length) down
// to the indices that are kept. If a < b are both kept then
// Convert(a) < Convert(b).
type Packer struct {
	length  int
	mapping []int // old -> new, -1 when dropped
	kept    int
}

// NewPacker builds a Packer keeping the given indices. Duplicates are allowed.
func NewPacker(length int, used []int) (*Packer, error) {
	keep := make([]bool, length)
	for _, u := range used {
		if err := invariant.CheckIndex("packer", u, length); err != nil {
			return nil, err
		}
		keep[u] = true
	}
	return newPacker(keep), nil
}

// NewPackerFunc builds a Packer keeping every index for which keep returns true.
func NewPackerFunc(length int, keep func(i int) bool) *Packer {
	flags := make([]bool, length)
	for i := range flags {
		flags[i] = keep(i)
	}
	return newPacker(flags)
}

func newPacker(keep []bool) *Packer {
	p := &Packer{
		length:  len(keep),
		mapping: make([]int, len(keep)),
	}
	for i, k := range keep {
		if k {
			p.mapping[i] = p.kept
			p.kept++
		} else {
			p.mapping[i] = -1
		}
	}
	return p
}

// Length returns the size of the original universe.
func (p *Packer) Length() int {
	return p.length
}

// Kept returns the number of kept indices.
func (p *Packer) Kept() int {
	return p.kept
}

// Identity reports whether every index is kept.
func (p *Packer) Identity() bool {
	return p.kept == p.length
}

// Keeps reports whether old survives the packing.
func (p *Packer) Keeps(old int) bool {
	return old >= 0 && old < p.length && p.mapping[old] >= 0
}

// Convert maps a kept old index to its new index.
func (p *Packer) Convert(old int) (int, error) {
	if err := invariant.CheckIndex("packer", old, p.length); err != nil {
		return 0, err
	}
	n := p.mapping[old]
	if n < 0 {
		return 0, invariant.Errorf("index %d is not kept by packer", old)
	}
	return n, nil
}

// ConvertOptional maps *old through the packer, returning nil when old is nil
// or was dropped.
func (p *Packer) ConvertOptional(old *int) *int {
	if old == nil || !p.Keeps(*old) {
		return nil
	}
	n := p.mapping[*old]
	return &n
}

// Apply filters items, which must have Length() elements, down to the kept
// elements in their original order.
func Apply[T any](p *Packer, items []T) ([]T, error) {
	if len(items) != p.length {
		return nil, invariant.Errorf("packer over %d elements applied to %d", p.length, len(items))
	}
	out := make([]T, 0, p.kept)
	for i, item := range items {
		if p.mapping[i] >= 0 {
			out = append(out, item)
		}
	}
	return out, nil
}

// ApplyStrided filters a flat array holding stride values per element.
func ApplyStrided[T any](p *Packer, values []T, stride int) ([]T, error) {
	if stride <= 0 || len(values) != p.length*stride {
		return nil, invariant.Errorf("packer over %d elements applied to %d values with stride %d",
			p.length, len(values), stride)
	}
	out := make([]T, 0, p.kept*stride)
	for i := 0; i < p.length; i++ {
		if p.mapping[i] >= 0 {
			out = append(out, values[i*stride:(i+1)*stride]...)
		}
	}
	return out, nil
}
