// Package hap encodes and decodes HAP sections: GPU-texture-compressed video
// frames stored as BC1/BC3 blocks that the graphics hardware decompresses at
// sample time, so no CPU pixel decode is needed.
//
// Section layout, bit-exact for interoperability with HAP-encoded media:
//
//	offset 0  size 4  section magic "HAPF"
//	offset 4  size 4  payload size, little-endian
//	offset 8  size 1  section type: 0x0B HAP (BC1), 0x0E HAP Alpha (BC3),
//	                  0x0C HAP Q (dual BC3, luma+chroma)
//	offset 9  size 1  compressor: 0xA0 none, 0xB0 Snappy, 0xC0 complex
//	offset 10 size n  payload
//
// A complex payload is a chunk table followed by independently compressed
// chunks that are decompressed in parallel and reassembled at their declared
// output offsets.
package hap

import "errors"

// Magic identifies the start of every HAP section.
var Magic = [4]byte{'H', 'A', 'P', 'F'}

// HeaderSize is the fixed byte length of a section header.
const HeaderSize = 10

// SectionType identifies the block-compressed texture variant carried by a
// section.
type SectionType byte

const (
	// TypeRGB is the HAP variant: BC1 blocks, no alpha.
	TypeRGB SectionType = 0x0B
	// TypeYCoCg is the HAP Q variant: two BC3 planes, scaled-luma plus
	// chroma, combined to RGB in the sampling shader.
	TypeYCoCg SectionType = 0x0C
	// TypeRGBA is the HAP Alpha variant: BC3 blocks with alpha.
	TypeRGBA SectionType = 0x0E
)

// String returns the variant name used in logs.
func (t SectionType) String() string {
	switch t {
	case TypeRGB:
		return "hap"
	case TypeRGBA:
		return "hap-alpha"
	case TypeYCoCg:
		return "hap-q"
	default:
		return "unknown"
	}
}

// valid reports whether t is a known section type.
func (t SectionType) valid() bool {
	return t == TypeRGB || t == TypeRGBA || t == TypeYCoCg
}

// BlockSize returns the byte size of one 4x4 texel block.
func (t SectionType) BlockSize() int {
	if t == TypeRGB {
		return 8 // BC1
	}
	return 16 // BC3
}

// Compressor identifies the second-stage compression applied to a section
// payload.
type Compressor byte

const (
	// CompressorNone stores block data directly.
	CompressorNone Compressor = 0xA0
	// CompressorSnappy stores a single Snappy-compressed payload.
	CompressorSnappy Compressor = 0xB0
	// CompressorComplex stores a chunk table of independently compressed
	// sub-sections.
	CompressorComplex Compressor = 0xC0
)

func (c Compressor) valid() bool {
	return c == CompressorNone || c == CompressorSnappy || c == CompressorComplex
}

// Section is one decoded HAP frame: opaque block-compressed texture data
// ready for upload.
type Section struct {
	// Type is the HAP variant.
	Type SectionType
	// Data holds the BC1 or BC3 blocks. For HAP Q this is the scaled-luma
	// plane.
	Data []byte
	// Chroma holds the second BC3 plane for HAP Q sections and is nil for
	// all other types.
	Chroma []byte
}

// PlaneSize returns the byte length of one block-compressed plane for a
// picture of the given dimensions. Dimensions round up to whole 4x4 blocks.
func PlaneSize(t SectionType, width, height int) int {
	blocksX := (width + 3) / 4
	blocksY := (height + 3) / 4
	return blocksX * blocksY * t.BlockSize()
}

// Errors returned by Decode. All decode failures fail the frame, never the
// session; the playback layer escalates only on repeated occurrences.
var (
	ErrBadMagic          = errors.New("hap: bad section magic")
	ErrTruncated         = errors.New("hap: truncated section")
	ErrUnknownType       = errors.New("hap: unknown section type")
	ErrUnknownCompressor = errors.New("hap: unknown compressor")
	ErrSizeMismatch      = errors.New("hap: decoded size mismatch")
	ErrBadChunkTable     = errors.New("hap: malformed chunk table")
)
