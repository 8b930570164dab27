// Command gen-media produces deterministic test media for the playback
// pipeline: HAP section streams (.haps) and PNG image sequences. Frames carry
// a moving gradient so successive frames differ and seeks are visually
// verifiable.
package main

import (
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/lumen-media/lumen/hap"
)

func main() {
	kind := flag.String("kind", "haps", "output kind: haps, sequence")
	out := flag.String("out", "", "output file (.haps) or directory (sequence)")
	width := flag.Int("width", 256, "frame width in pixels")
	height := flag.Int("height", 144, "frame height in pixels")
	frames := flag.Int("frames", 90, "number of frames")
	fps := flag.Int("fps", 30, "frame rate")
	variant := flag.String("variant", "bc3", "HAP variant: bc1, bc3, bc3pair")
	compressor := flag.String("compressor", "snappy", "second stage: none, snappy, complex")
	seed := flag.Int64("seed", 42, "deterministic noise seed")
	flag.Parse()

	if *out == "" {
		fatal("missing -out")
	}
	if *width <= 0 || *height <= 0 || *frames <= 0 || *fps <= 0 {
		fatal("width, height, frames, and fps must be positive")
	}

	rng := rand.New(rand.NewSource(*seed))

	var err error
	switch *kind {
	case "haps":
		err = genStream(*out, *width, *height, *frames, *fps, *variant, *compressor, rng)
	case "sequence":
		err = genSequence(*out, *width, *height, *frames)
	default:
		fatal("unknown kind %q", *kind)
	}
	if err != nil {
		fatal("%v", err)
	}
}

func genStream(path string, width, height, frames, fps int, variant, compressor string, rng *rand.Rand) error {
	secType, err := parseVariant(variant)
	if err != nil {
		return err
	}
	opts, err := parseCompressor(compressor)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	sw, err := hap.NewStreamWriter(f, hap.StreamInfo{
		Width:   width,
		Height:  height,
		RateNum: fps,
		RateDen: 1,
	})
	if err != nil {
		return err
	}

	interval := time.Second / time.Duration(fps)
	planeLen := hap.PlaneSize(secType, width, height)
	for i := 0; i < frames; i++ {
		sec := &hap.Section{Type: secType, Data: blockNoise(planeLen, i, rng)}
		if secType == hap.TypeYCoCg {
			sec.Chroma = blockNoise(hap.PlaneSize(hap.TypeRGBA, width, height), i, rng)
		}
		if err := sw.WriteSection(time.Duration(i)*interval, sec, opts); err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
	}
	if err := sw.Finish(); err != nil {
		return err
	}

	fmt.Printf("wrote %s: %d frames %dx%d @%dfps (%s, %s)\n",
		path, frames, width, height, fps, variant, compressor)
	return nil
}

func genSequence(dir string, width, height, frames int) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	for i := 0; i < frames; i++ {
		img := image.NewRGBA(image.Rect(0, 0, width, height))
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				img.Set(x, y, color.RGBA{
					R: uint8((x + i*4) % 256),
					G: uint8((y + i*2) % 256),
					B: uint8(i % 256),
					A: 255,
				})
			}
		}
		name := filepath.Join(dir, fmt.Sprintf("frame_%05d.png", i))
		f, err := os.Create(name)
		if err != nil {
			return err
		}
		if err := png.Encode(f, img); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	fmt.Printf("wrote %s: %d PNG frames %dx%d\n", dir, frames, width, height)
	return nil
}

// blockNoise fills a plane with frame-dependent bytes. Not valid BC block
// data visually, but structurally exact for codec and pipeline testing.
func blockNoise(n, frame int, rng *rand.Rand) []byte {
	b := make([]byte, n)
	rng.Read(b)
	for i := 0; i < n; i += 64 {
		b[i] = byte(frame)
	}
	return b
}

func parseVariant(s string) (hap.SectionType, error) {
	switch s {
	case "bc1":
		return hap.TypeRGB, nil
	case "bc3":
		return hap.TypeRGBA, nil
	case "bc3pair":
		return hap.TypeYCoCg, nil
	}
	return 0, fmt.Errorf("unknown variant %q", s)
}

func parseCompressor(s string) (hap.EncodeOptions, error) {
	switch s {
	case "none":
		return hap.EncodeOptions{Compressor: hap.CompressorNone}, nil
	case "snappy":
		return hap.EncodeOptions{Compressor: hap.CompressorSnappy}, nil
	case "complex":
		return hap.EncodeOptions{Compressor: hap.CompressorComplex}, nil
	}
	return hap.EncodeOptions{}, fmt.Errorf("unknown compressor %q", s)
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "gen-media: "+format+"\n", args...)
	os.Exit(1)
}
