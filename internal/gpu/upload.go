package gpu

import (
	"errors"
	"fmt"
	"image/color"
	"log/slog"
	"time"

	"github.com/lumen-media/lumen/media"
)

// Uploaded is a frame resident on the GPU. Chroma is set only for dual-plane
// frames (scaled YCoCg color in the first texture, its companion plane in
// the second).
type Uploaded struct {
	PTS    time.Duration
	Color  *Texture
	Chroma *Texture
}

// Uploader moves decoded frame bytes into pool-vended textures through
// staging buffers. Not safe for concurrent use; each session runs its own.
type Uploader struct {
	backend Backend
	pool    *TexturePool
	staging *StagingPool
	log     *slog.Logger
}

// NewUploader builds an uploader sharing pool's backend. Each uploader owns
// its staging pool.
func NewUploader(backend Backend, pool *TexturePool, log *slog.Logger) *Uploader {
	if log == nil {
		log = slog.Default()
	}
	return &Uploader{
		backend: backend,
		pool:    pool,
		staging: NewStagingPool(backend),
		log:     log.With("component", "uploader"),
	}
}

// rowAlignment is the buffer row pitch required for buffer-to-texture
// copies (hal.ImageDataLayout.BytesPerRow must be a multiple of 256).
const rowAlignment = 256

// planeLayout returns the copy layout for one plane plus its tight row
// length and row count. Compressed formats copy block rows; packed formats
// copy texel rows. The layout's BytesPerRow is padded to the copy alignment;
// rows narrower than that are staged padded.
func planeLayout(format Format, width, height int) (layout CopyLayout, row, rows int) {
	if format.Compressed() {
		blocksX := (width + 3) / 4
		row = blocksX * format.BlockSize()
		rows = (height + 3) / 4
	} else {
		row = width * format.BlockSize()
		rows = height
	}
	pitch := (row + rowAlignment - 1) &^ (rowAlignment - 1)
	return CopyLayout{
		BytesPerRow:  pitch,
		RowsPerImage: rows,
		Width:        width,
		Height:       height,
	}, row, rows
}

// padRows re-lays tightly packed rows at the aligned pitch.
func padRows(data []byte, row, pitch, rows int) []byte {
	out := make([]byte, rows*pitch)
	for r := 0; r < rows; r++ {
		copy(out[r*pitch:], data[r*row:(r+1)*row])
	}
	return out
}

func (u *Uploader) uploadPlane(data []byte, width, height int, format Format) (*Texture, error) {
	layout, row, rows := planeLayout(format, width, height)
	if len(data) != row*rows {
		return nil, fmt.Errorf("plane %dx%d %s: %d bytes, want %d",
			width, height, format, len(data), row*rows)
	}
	staged := data
	if layout.BytesPerRow != row {
		staged = padRows(data, row, layout.BytesPerRow, rows)
	}

	tex, err := u.pool.Acquire(width, height, format)
	if err != nil {
		return nil, err
	}

	buf, err := u.staging.Acquire(len(staged))
	if err != nil {
		u.pool.Release(tex)
		return nil, err
	}
	if err := u.backend.WriteBuffer(buf.ID, 0, staged); err != nil {
		u.staging.Discard(buf)
		u.pool.Release(tex)
		return nil, err
	}

	fence, err := u.backend.CopyToTexture(buf.ID, tex.ID, layout)
	if err != nil {
		u.staging.Discard(buf)
		u.pool.Discard(tex)
		return nil, err
	}
	u.staging.ReleaseAfter(buf, fence)
	return tex, nil
}

// Upload stages f's payload and copies it into pooled textures. The returned
// frame's textures belong to the caller until passed back through Release.
// A device loss invalidates the texture pool before the error returns.
func (u *Uploader) Upload(f *media.Frame) (*Uploaded, error) {
	format, err := FormatFor(f.Layout)
	if err != nil {
		return nil, &media.UploadError{Err: err}
	}

	payload := f.Payload
	if f.Layout == media.LayoutYUV420 {
		payload, err = yuv420ToRGBA(f.Payload, f.Width, f.Height)
		if err != nil {
			return nil, &media.UploadError{Err: err}
		}
	}

	colorTex, err := u.uploadPlane(payload, f.Width, f.Height, format)
	if err != nil {
		return nil, u.fail(err)
	}

	up := &Uploaded{PTS: f.PTS, Color: colorTex}
	if f.Layout == media.LayoutBC3Pair {
		chroma, err := u.uploadPlane(f.Alpha, f.Width, f.Height, FormatBC3)
		if err != nil {
			u.pool.Discard(colorTex)
			return nil, u.fail(err)
		}
		up.Chroma = chroma
	}
	return up, nil
}

func (u *Uploader) fail(err error) error {
	if errors.Is(err, ErrDeviceLost) {
		u.log.Error("device lost during upload", "error", err)
		u.pool.Invalidate()
	}
	return &media.UploadError{Err: err}
}

// Release returns an uploaded frame's textures to the pool.
func (u *Uploader) Release(up *Uploaded) {
	if up == nil {
		return
	}
	u.pool.Release(up.Color)
	u.pool.Release(up.Chroma)
}

// Close releases the uploader's staging buffers.
func (u *Uploader) Close() {
	u.staging.Close()
}

// yuv420ToRGBA converts planar 4:2:0 YCbCr to packed RGBA. The destination
// textures are RGBA8, so the conversion happens on the way in.
func yuv420ToRGBA(data []byte, width, height int) ([]byte, error) {
	cw := (width + 1) / 2
	ch := (height + 1) / 2
	ySize := width * height
	cSize := cw * ch
	if len(data) != ySize+2*cSize {
		return nil, fmt.Errorf("yuv420 %dx%d: %d bytes, want %d",
			width, height, len(data), ySize+2*cSize)
	}
	yp := data[:ySize]
	up := data[ySize : ySize+cSize]
	vp := data[ySize+cSize:]

	out := make([]byte, width*height*4)
	for y := 0; y < height; y++ {
		ci := (y / 2) * cw
		for x := 0; x < width; x++ {
			r, g, b := color.YCbCrToRGB(yp[y*width+x], up[ci+x/2], vp[ci+x/2])
			o := (y*width + x) * 4
			out[o] = r
			out[o+1] = g
			out[o+2] = b
			out[o+3] = 0xFF
		}
	}
	return out, nil
}
