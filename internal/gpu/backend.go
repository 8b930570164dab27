// Package gpu manages the GPU-resident side of the pipeline: a texture pool
// keyed by dimensions and format, a size-classed staging buffer pool, and the
// upload path that moves decoded frame bytes into pooled textures.
//
// All GPU access goes through the Backend interface so the pools and upload
// logic can be tested against an in-memory implementation.
package gpu

import (
	"errors"
	"fmt"
	"time"

	"github.com/lumen-media/lumen/media"
)

// Format identifies a texture format the pipeline can upload into.
type Format uint8

const (
	// FormatRGBA8 is packed 8-bit RGBA, 4 bytes per texel.
	FormatRGBA8 Format = iota
	// FormatBC1 is BC1 block compression, 8 bytes per 4x4 block.
	FormatBC1
	// FormatBC3 is BC3 block compression, 16 bytes per 4x4 block.
	FormatBC3
)

func (f Format) String() string {
	switch f {
	case FormatRGBA8:
		return "rgba8"
	case FormatBC1:
		return "bc1"
	case FormatBC3:
		return "bc3"
	default:
		return fmt.Sprintf("format(%d)", uint8(f))
	}
}

// Compressed reports whether the format is block compressed.
func (f Format) Compressed() bool { return f == FormatBC1 || f == FormatBC3 }

// BlockSize returns the byte size of one format unit: a texel for packed
// formats, a 4x4 block for compressed ones.
func (f Format) BlockSize() int {
	switch f {
	case FormatBC1:
		return 8
	case FormatBC3:
		return 16
	default:
		return 4
	}
}

// FormatFor maps a decoded frame layout to the texture format it uploads
// into. LayoutBC3Pair maps to FormatBC3 twice (color and chroma planes each
// get a texture).
func FormatFor(layout media.PixelLayout) (Format, error) {
	switch layout {
	case media.LayoutRGBA8, media.LayoutYUV420:
		return FormatRGBA8, nil
	case media.LayoutBC1:
		return FormatBC1, nil
	case media.LayoutBC3, media.LayoutBC3Pair:
		return FormatBC3, nil
	default:
		return 0, fmt.Errorf("no texture format for layout %s", layout)
	}
}

// TextureID identifies a backend texture.
type TextureID uint64

// BufferID identifies a backend staging buffer.
type BufferID uint64

// FenceValue orders submissions on the backend's timeline. A later
// submission always carries a larger value.
type FenceValue uint64

// CopyLayout describes how frame bytes in a staging buffer map onto a
// texture region. For compressed formats rows are block rows.
type CopyLayout struct {
	Offset       uint64
	BytesPerRow  int
	RowsPerImage int
	// Width and Height are the copy extent in texels.
	Width  int
	Height int
}

// ErrDeviceLost is wrapped by backend errors when the device is gone and
// every pooled resource with it.
var ErrDeviceLost = errors.New("gpu: device lost")

// Backend is the minimal device surface the pools and uploader need.
// Implementations must be safe for concurrent use.
type Backend interface {
	// CreateTexture allocates a texture the upload path can copy into and
	// the renderer can sample.
	CreateTexture(width, height int, format Format) (TextureID, error)
	DestroyTexture(TextureID)

	// CreateStagingBuffer allocates a CPU-writable copy source of the
	// given byte size.
	CreateStagingBuffer(size int) (BufferID, error)
	DestroyBuffer(BufferID)

	// WriteBuffer stores data into a staging buffer at offset.
	WriteBuffer(id BufferID, offset uint64, data []byte) error

	// CopyToTexture submits a staging-to-texture copy and returns the
	// fence value that signals its completion.
	CopyToTexture(src BufferID, dst TextureID, layout CopyLayout) (FenceValue, error)

	// FenceDone reports whether the submission with the given value has
	// completed.
	FenceDone(FenceValue) (bool, error)

	// WaitFence blocks until the submission completes or the timeout
	// elapses.
	WaitFence(v FenceValue, timeout time.Duration) error

	Close() error
}
