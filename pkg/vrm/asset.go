package vrm

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Faultbox/vrmslim/pkg/glb"
	"github.com/Faultbox/vrmslim/pkg/invariant"
)

// Asset owns a VRM document and its binary buffers.
//
// Asset is not safe for concurrent use.
type Asset struct {
	Doc     *Document
	Buffers [][]byte

	version  uint64
	dataURLs *lru.Cache[dataURLKey, string]
}

type dataURLKey struct {
	image   int
	version uint64
}

// NewAsset wraps an existing document and its buffers. The buffer slice must
// have one entry per doc.Buffers element.
func NewAsset(doc *Document, buffers [][]byte) (*Asset, error) {
	if doc == nil {
		doc = &Document{}
	}
	if doc.Asset.Version == "" {
		doc.Asset.Version = "2.0"
	}
	if len(buffers) != len(doc.Buffers) {
		return nil, invariant.Errorf("document has %d buffers, got %d blobs", len(doc.Buffers), len(buffers))
	}
	return newAsset(doc, buffers), nil
}

func newAsset(doc *Document, buffers [][]byte) *Asset {
	cache, _ := lru.New[dataURLKey, string](64)
	return &Asset{Doc: doc, Buffers: buffers, dataURLs: cache}
}

// LoadFile reads and parses a .vrm/.glb file.
func LoadFile(path string) (*Asset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return Load(data)
}

// Load parses a GLB container into an Asset. Buffers without a URI take the
// BIN chunks in order; base64 data URIs are decoded in place.
func Load(data []byte) (*Asset, error) {
	c, err := glb.Decode(data)
	if err != nil {
		return nil, err
	}
	doc := &Document{}
	if err := json.Unmarshal(c.JSON, doc); err != nil {
		return nil, fmt.Errorf("%w: %v", glb.ErrInvalidJSON, err)
	}
	if raw, ok := doc.Extensions[ExtensionName]; ok {
		doc.VRM = &VRM{}
		if err := json.Unmarshal(raw, doc.VRM); err != nil {
			return nil, fmt.Errorf("%w: VRM extension: %v", glb.ErrInvalidJSON, err)
		}
	}

	buffers := make([][]byte, len(doc.Buffers))
	nextChunk := 0
	for i, b := range doc.Buffers {
		switch {
		case strings.HasPrefix(b.URI, "data:"):
			blob, err := decodeDataURI(b.URI)
			if err != nil {
				return nil, fmt.Errorf("buffer %d: %w", i, err)
			}
			buffers[i] = blob
		case b.URI != "":
			return nil, fmt.Errorf("buffer %d: external uri %q is not supported", i, b.URI)
		case b.ByteLength == 0:
			buffers[i] = nil
		default:
			if nextChunk >= len(c.BIN) {
				return nil, fmt.Errorf("%w: buffer %d has no BIN chunk", glb.ErrTruncatedData, i)
			}
			chunk := c.BIN[nextChunk]
			nextChunk++
			if len(chunk) < b.ByteLength {
				return nil, fmt.Errorf("%w: buffer %d needs %d bytes, BIN chunk has %d",
					glb.ErrTruncatedData, i, b.ByteLength, len(chunk))
			}
			buffers[i] = chunk[:b.ByteLength:b.ByteLength]
		}
		if len(buffers[i]) < b.ByteLength {
			return nil, fmt.Errorf("%w: buffer %d shorter than byteLength", glb.ErrTruncatedData, i)
		}
	}
	return newAsset(doc, buffers), nil
}

func decodeDataURI(uri string) ([]byte, error) {
	comma := strings.IndexByte(uri, ',')
	if comma < 0 || !strings.HasSuffix(uri[:comma], ";base64") {
		return nil, fmt.Errorf("unsupported data uri")
	}
	return base64.StdEncoding.DecodeString(uri[comma+1:])
}

// Serialize encodes the asset as a GLB container. Every buffer becomes one
// BIN chunk and loses its URI.
func (a *Asset) Serialize() ([]byte, error) {
	doc := *a.Doc
	doc.Buffers = make([]*Buffer, len(a.Doc.Buffers))
	for i, b := range a.Doc.Buffers {
		nb := *b
		nb.URI = ""
		nb.ByteLength = len(a.Buffers[i])
		doc.Buffers[i] = &nb
	}

	doc.Extensions = make(Extensions, len(a.Doc.Extensions)+1)
	for k, v := range a.Doc.Extensions {
		doc.Extensions[k] = v
	}
	if a.Doc.VRM != nil {
		raw, err := json.Marshal(a.Doc.VRM)
		if err != nil {
			return nil, fmt.Errorf("encode VRM extension: %w", err)
		}
		doc.Extensions[ExtensionName] = raw
	}
	if len(doc.Extensions) == 0 {
		doc.Extensions = nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(&doc); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	jsonData := bytes.TrimRight(buf.Bytes(), "\n")

	bins := make([][]byte, 0, len(a.Buffers))
	for _, b := range a.Buffers {
		if len(b) > 0 {
			bins = append(bins, b)
		}
	}
	return glb.Encode(jsonData, bins...)
}

// SaveFile serializes the asset to path.
func (a *Asset) SaveFile(path string) error {
	data, err := a.Serialize()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

// Version returns the change counter. It starts at 0 and grows by one on
// every mutation.
func (a *Asset) Version() uint64 {
	return a.version
}

// Touch records a mutation made directly on Doc or Buffers.
func (a *Asset) Touch() {
	a.version++
}

// BufferViewData returns the bytes of a bufferView. The slice aliases the buffer.
func (a *Asset) BufferViewData(view int) ([]byte, error) {
	if err := invariant.CheckIndex("bufferView", view, len(a.Doc.BufferViews)); err != nil {
		return nil, err
	}
	bv := a.Doc.BufferViews[view]
	if err := invariant.CheckIndex("buffer", bv.Buffer, len(a.Buffers)); err != nil {
		return nil, err
	}
	buf := a.Buffers[bv.Buffer]
	end := bv.ByteOffset + bv.ByteLength
	if bv.ByteOffset < 0 || end > len(buf) {
		return nil, invariant.Errorf("bufferView %d [%d, %d) exceeds buffer %d of %d bytes",
			view, bv.ByteOffset, end, bv.Buffer, len(buf))
	}
	return buf[bv.ByteOffset:end], nil
}

// AppendDataToBuffer grows a buffer by data, aligned to 4 bytes, and returns
// a bufferView describing the appended region. The view is not added to the
// document.
func (a *Asset) AppendDataToBuffer(data []byte, buffer int) (BufferView, error) {
	if err := invariant.CheckIndex("buffer", buffer, len(a.Buffers)); err != nil {
		return BufferView{}, err
	}
	buf := a.Buffers[buffer]
	for len(buf)%4 != 0 {
		buf = append(buf, 0)
	}
	offset := len(buf)
	buf = append(buf, data...)
	a.Buffers[buffer] = buf
	a.Doc.Buffers[buffer].ByteLength = len(buf)
	a.version++
	return BufferView{Buffer: buffer, ByteOffset: offset, ByteLength: len(data)}, nil
}

// AddBufferView appends data to buffer 0 and registers a new bufferView,
// returning its index.
func (a *Asset) AddBufferView(data []byte, target int) (int, error) {
	if len(a.Buffers) == 0 {
		a.Doc.Buffers = append(a.Doc.Buffers, &Buffer{})
		a.Buffers = append(a.Buffers, nil)
	}
	bv, err := a.AppendDataToBuffer(data, 0)
	if err != nil {
		return 0, err
	}
	bv.Target = target
	a.Doc.BufferViews = append(a.Doc.BufferViews, &bv)
	return len(a.Doc.BufferViews) - 1, nil
}

// SetBufferViewData replaces the content of a bufferView. The new bytes are
// appended to the view's buffer; the old bytes stay until RepackBuffer.
// Any byteStride is dropped.
func (a *Asset) SetBufferViewData(view int, data []byte) error {
	if err := invariant.CheckIndex("bufferView", view, len(a.Doc.BufferViews)); err != nil {
		return err
	}
	bv := a.Doc.BufferViews[view]
	appended, err := a.AppendDataToBuffer(data, bv.Buffer)
	if err != nil {
		return err
	}
	bv.ByteOffset = appended.ByteOffset
	bv.ByteLength = appended.ByteLength
	bv.ByteStride = 0
	return nil
}

// RepackBuffer rewrites buffer 0 as the concatenation of every bufferView in
// order, each aligned to 4 bytes. All other buffers are removed. Views are
// copied whether or not anything reads them, so run CollectGarbage first to
// keep only referenced bytes.
func (a *Asset) RepackBuffer() error {
	var out []byte
	offsets := make([]int, len(a.Doc.BufferViews))
	for i := range a.Doc.BufferViews {
		data, err := a.BufferViewData(i)
		if err != nil {
			return err
		}
		for len(out)%4 != 0 {
			out = append(out, 0)
		}
		offsets[i] = len(out)
		out = append(out, data...)
	}
	for len(out)%4 != 0 {
		out = append(out, 0)
	}
	for i, bv := range a.Doc.BufferViews {
		bv.Buffer = 0
		bv.ByteOffset = offsets[i]
	}

	first := &Buffer{}
	if len(a.Doc.Buffers) > 0 {
		first = a.Doc.Buffers[0]
		first.URI = ""
	}
	first.ByteLength = len(out)
	a.Doc.Buffers = []*Buffer{first}
	a.Buffers = [][]byte{out}
	a.version++
	return nil
}
