package decode

import (
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/lumen-media/lumen/media"
)

// DefaultSequenceRate is the playback rate for image sequences when the
// caller does not specify one.
const DefaultSequenceRate = 30.0

// MaxSequenceFrames bounds how many files a sequence may reference. The cap
// keeps an accidentally selected directory of thousands of files from
// exhausting memory and open time.
const MaxSequenceFrames = 5000

// sequenceDecoder plays a directory of numbered image files at a fixed rate.
// Files are decoded lazily, one per Decode call, with the previous decode
// cached for repeated stepping on the same frame.
type sequenceDecoder struct {
	log    *slog.Logger
	files  []string
	info   media.SourceInfo
	next   int
	cached int
	cache  []byte
}

// OpenSequence scans a directory for image files, sorted by name.
func OpenSequence(dir string, fps float64, log *slog.Logger) (Decoder, error) {
	if log == nil {
		log = slog.Default()
	}
	if fps <= 0 {
		fps = DefaultSequenceRate
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		if len(files) >= MaxSequenceFrames {
			log.Warn("image sequence truncated",
				"dir", dir, "limit", MaxSequenceFrames)
			break
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no image files in %s", dir)
	}
	sort.Strings(files)

	// First frame establishes the sequence resolution.
	first, err := loadRGBA(files[0])
	if err != nil {
		return nil, fmt.Errorf("first frame: %w", err)
	}
	b := first.Bounds()

	return &sequenceDecoder{
		log:    log.With("component", "sequence", "dir", dir),
		files:  files,
		cached: -1,
		info: media.SourceInfo{
			Path:      dir,
			Container: media.ContainerSequence,
			Width:     b.Dx(),
			Height:    b.Dy(),
			Duration:  time.Duration(float64(len(files)) / fps * float64(time.Second)),
			FrameRate: fps,
		},
	}, nil
}

func (d *sequenceDecoder) Info() media.SourceInfo { return d.info }

// Decode loads the next file in the sequence. A file that fails to decode
// fails only that frame; the position still advances.
func (d *sequenceDecoder) Decode() (*media.Frame, error) {
	if d.next >= len(d.files) {
		return nil, io.EOF
	}
	i := d.next
	d.next++

	pts := time.Duration(float64(i) / d.info.FrameRate * float64(time.Second))

	if d.cached != i {
		img, err := loadRGBA(d.files[i])
		if err != nil {
			return nil, fmt.Errorf("frame %d (%s): %w", i, filepath.Base(d.files[i]), err)
		}
		if b := img.Bounds(); b.Dx() != d.info.Width || b.Dy() != d.info.Height {
			return nil, fmt.Errorf("frame %d (%s): size %dx%d, sequence is %dx%d",
				i, filepath.Base(d.files[i]), b.Dx(), b.Dy(), d.info.Width, d.info.Height)
		}
		d.cache = tightRGBA(img, d.info.Width, d.info.Height)
		d.cached = i
	}

	payload := make([]byte, len(d.cache))
	copy(payload, d.cache)
	return &media.Frame{
		PTS:      pts,
		Width:    d.info.Width,
		Height:   d.info.Height,
		Layout:   media.LayoutRGBA8,
		Payload:  payload,
		Keyframe: true,
	}, nil
}

// Seek positions the sequence at the frame covering t.
func (d *sequenceDecoder) Seek(t time.Duration) error {
	i := int(t.Seconds() * d.info.FrameRate)
	if i < 0 {
		i = 0
	}
	if i >= len(d.files) {
		i = len(d.files) - 1
	}
	d.next = i
	return nil
}

func (d *sequenceDecoder) Close() error { return nil }

// loadRGBA decodes one image file into packed RGBA.
func loadRGBA(path string) (*image.RGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, err
	}
	return toRGBA(img), nil
}
