// Package glb reads and writes the binary glTF container used by VRM files.
//
// A container is a 12-byte header followed by a JSON chunk and zero or more
// BIN chunks. All integers are little-endian uint32.
package glb

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
)

// Container constants.
const (
	Magic   uint32 = 0x46546C67 // "glTF"
	Version uint32 = 2

	ChunkJSON uint32 = 0x4E4F534A // "JSON"
	ChunkBIN  uint32 = 0x004E4942 // "BIN\0"

	HeaderSize      = 12
	ChunkHeaderSize = 8
)

// GLB format errors.
var (
	ErrInvalidMagic       = errors.New("invalid GLB magic: expected 'glTF'")
	ErrUnsupportedVersion = errors.New("unsupported GLB version")
	ErrTruncatedData      = errors.New("truncated GLB data")
	ErrMissingJSONChunk   = errors.New("GLB has no JSON chunk")
	ErrChunkOrder         = errors.New("GLB JSON chunk must be first and unique")
	ErrTooLarge           = errors.New("GLB exceeds 4 GiB")
	ErrInvalidJSON        = errors.New("GLB JSON chunk is not a valid glTF document")
)

// Header is the fixed 12-byte file header.
type Header struct {
	Magic   uint32
	Version uint32
	Length  uint32
}

// Container is a decoded GLB file.
type Container struct {
	Header Header
	JSON   []byte   // JSON chunk payload with padding removed
	BIN    [][]byte // payloads of every BIN chunk, in file order
}

// Decode parses a GLB byte slice. The returned slices alias data.
func Decode(data []byte) (*Container, error) {
	if len(data) < HeaderSize {
		return nil, ErrTruncatedData
	}

	c := &Container{
		Header: Header{
			Magic:   binary.LittleEndian.Uint32(data[0:4]),
			Version: binary.LittleEndian.Uint32(data[4:8]),
			Length:  binary.LittleEndian.Uint32(data[8:12]),
		},
	}

	if c.Header.Magic != Magic {
		return nil, ErrInvalidMagic
	}
	if c.Header.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, c.Header.Version)
	}

	total := int(c.Header.Length)
	if total > len(data) || total < HeaderSize {
		return nil, fmt.Errorf("%w: header declares %d bytes, have %d", ErrTruncatedData, total, len(data))
	}

	seenJSON := false
	for offset, index := HeaderSize, 0; offset < total; index++ {
		if offset+ChunkHeaderSize > total {
			return nil, fmt.Errorf("%w: chunk %d header at offset %d", ErrTruncatedData, index, offset)
		}
		length := int(binary.LittleEndian.Uint32(data[offset:]))
		chunkType := binary.LittleEndian.Uint32(data[offset+4:])
		start := offset + ChunkHeaderSize
		end := start + length
		if length < 0 || end > total {
			return nil, fmt.Errorf("%w: chunk %d declares %d bytes at offset %d", ErrTruncatedData, index, length, offset)
		}
		payload := data[start:end]

		switch chunkType {
		case ChunkJSON:
			if index != 0 || seenJSON {
				return nil, ErrChunkOrder
			}
			seenJSON = true
			c.JSON = bytes.TrimRight(payload, " \x00")
		case ChunkBIN:
			if !seenJSON {
				return nil, ErrChunkOrder
			}
			c.BIN = append(c.BIN, payload)
		default:
			// Unknown chunk types are skipped.
		}

		offset = end
	}

	if !seenJSON {
		return nil, ErrMissingJSONChunk
	}
	return c, nil
}

// DecodeFile parses a GLB file from disk.
func DecodeFile(path string) (*Container, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading GLB file: %w", err)
	}
	return Decode(data)
}

// Encode assembles a GLB from a JSON document and BIN payloads. The JSON is
// padded with spaces and every BIN chunk with zeros to 4-byte multiples.
// Empty BIN payloads are omitted.
func Encode(jsonData []byte, bins ...[]byte) ([]byte, error) {
	total := HeaderSize + ChunkHeaderSize + align4(len(jsonData))
	for _, bin := range bins {
		if len(bin) > 0 {
			total += ChunkHeaderSize + align4(len(bin))
		}
	}
	if total > math.MaxUint32 {
		return nil, ErrTooLarge
	}

	buf := bytes.NewBuffer(make([]byte, 0, total))
	binary.Write(buf, binary.LittleEndian, Header{Magic: Magic, Version: Version, Length: uint32(total)})

	writeChunk(buf, ChunkJSON, jsonData, ' ')
	for _, bin := range bins {
		if len(bin) > 0 {
			writeChunk(buf, ChunkBIN, bin, 0)
		}
	}

	return buf.Bytes(), nil
}

func writeChunk(buf *bytes.Buffer, chunkType uint32, payload []byte, pad byte) {
	padded := align4(len(payload))
	binary.Write(buf, binary.LittleEndian, [2]uint32{uint32(padded), chunkType})
	buf.Write(payload)
	for i := len(payload); i < padded; i++ {
		buf.WriteByte(pad)
	}
}

func align4(n int) int {
	return (n + 3) &^ 3
}
