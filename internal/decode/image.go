package decode

import (
	"fmt"
	"image"
	"image/draw"
	"image/gif"
	"io"
	"os"
	"time"

	// Still-image format registration for image.Decode.
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/lumen-media/lumen/media"
)

// imageDecoder serves a single still image as an unbounded source: one frame
// at PTS zero, held by the session forever.
type imageDecoder struct {
	info    media.SourceInfo
	payload []byte
	emitted bool
}

// OpenImage decodes a still image file.
func OpenImage(path string) (Decoder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	rgba := toRGBA(img)
	b := rgba.Bounds()
	return &imageDecoder{
		info: media.SourceInfo{
			Path:      path,
			Container: media.ContainerImage,
			Width:     b.Dx(),
			Height:    b.Dy(),
		},
		payload: tightRGBA(rgba, b.Dx(), b.Dy()),
	}, nil
}

func (d *imageDecoder) Info() media.SourceInfo { return d.info }

func (d *imageDecoder) Decode() (*media.Frame, error) {
	if d.emitted {
		return nil, io.EOF
	}
	d.emitted = true
	payload := make([]byte, len(d.payload))
	copy(payload, d.payload)
	return &media.Frame{
		Width:    d.info.Width,
		Height:   d.info.Height,
		Layout:   media.LayoutRGBA8,
		Payload:  payload,
		Keyframe: true,
	}, nil
}

func (d *imageDecoder) Seek(time.Duration) error {
	d.emitted = false
	return nil
}

func (d *imageDecoder) Close() error { return nil }

// animationDecoder plays an animated GIF using its per-frame delay table.
// Frames are composited once at open time so seeking is random access.
type animationDecoder struct {
	info   media.SourceInfo
	frames [][]byte
	pts    []time.Duration
	next   int
}

// OpenAnimation decodes an animated GIF, compositing partial frames onto the
// logical canvas and honoring disposal modes.
func OpenAnimation(path string) (Decoder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	g, err := gif.DecodeAll(f)
	if err != nil {
		return nil, fmt.Errorf("decode gif: %w", err)
	}
	if len(g.Image) == 0 {
		return nil, fmt.Errorf("decode gif: no frames")
	}

	width, height := g.Config.Width, g.Config.Height
	if width == 0 || height == 0 {
		b := g.Image[0].Bounds()
		width, height = b.Dx(), b.Dy()
	}
	bounds := image.Rect(0, 0, width, height)

	canvas := image.NewRGBA(bounds)
	prev := image.NewRGBA(bounds)

	frames := make([][]byte, 0, len(g.Image))
	pts := make([]time.Duration, 0, len(g.Image))
	delays := make([]time.Duration, 0, len(g.Image))
	var clock time.Duration

	for i, src := range g.Image {
		disposal := byte(gif.DisposalNone)
		if i < len(g.Disposal) {
			disposal = g.Disposal[i]
		}
		if disposal == gif.DisposalPrevious {
			copy(prev.Pix, canvas.Pix)
		}

		draw.Draw(canvas, src.Bounds(), src, src.Bounds().Min, draw.Over)
		frames = append(frames, tightRGBA(canvas, width, height))

		// GIF delays are hundredths of a second; zero means "as fast as
		// possible", clamped to a sane floor.
		delay := 100 * time.Millisecond
		if i < len(g.Delay) && g.Delay[i] > 0 {
			delay = time.Duration(g.Delay[i]) * 10 * time.Millisecond
		}
		pts = append(pts, clock)
		delays = append(delays, delay)
		clock += delay

		switch disposal {
		case gif.DisposalBackground:
			draw.Draw(canvas, src.Bounds(), image.Transparent, image.Point{}, draw.Src)
		case gif.DisposalPrevious:
			copy(canvas.Pix, prev.Pix)
		}
	}

	return &animationDecoder{
		info: media.SourceInfo{
			Path:      path,
			Container: media.ContainerAnimation,
			Width:     width,
			Height:    height,
			Duration:  clock,
			Delays:    delays,
		},
		frames: frames,
		pts:    pts,
	}, nil
}

func (d *animationDecoder) Info() media.SourceInfo { return d.info }

func (d *animationDecoder) Decode() (*media.Frame, error) {
	if d.next >= len(d.frames) {
		return nil, io.EOF
	}
	i := d.next
	d.next++

	payload := make([]byte, len(d.frames[i]))
	copy(payload, d.frames[i])
	return &media.Frame{
		PTS:      d.pts[i],
		Width:    d.info.Width,
		Height:   d.info.Height,
		Layout:   media.LayoutRGBA8,
		Payload:  payload,
		Keyframe: true,
	}, nil
}

func (d *animationDecoder) Seek(t time.Duration) error {
	i := 0
	for i+1 < len(d.pts) && d.pts[i+1] <= t {
		i++
	}
	d.next = i
	return nil
}

func (d *animationDecoder) Close() error { return nil }

// toRGBA converts any decoded image to packed RGBA without stride tricks.
func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba
}
