package vrm

import (
	"fmt"

	"github.com/tiendc/go-deepcopy"
)

// Clone returns an independent copy of the asset. The copy starts with the
// same version.
func (a *Asset) Clone() (*Asset, error) {
	var doc *Document
	if err := deepcopy.Copy(&doc, a.Doc); err != nil {
		return nil, fmt.Errorf("clone document: %w", err)
	}
	if a.Doc.VRM != nil {
		var v *VRM
		if err := deepcopy.Copy(&v, a.Doc.VRM); err != nil {
			return nil, fmt.Errorf("clone VRM extension: %w", err)
		}
		doc.VRM = v
	}
	buffers := make([][]byte, len(a.Buffers))
	for i, b := range a.Buffers {
		buffers[i] = append([]byte(nil), b...)
	}
	c := newAsset(doc, buffers)
	c.version = a.version
	return c, nil
}
