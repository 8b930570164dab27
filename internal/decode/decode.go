// Package decode turns opened media sources into ordered streams of decoded
// frames. One concrete decoder exists per container kind; the variant is
// chosen once when the source is opened, never per frame.
package decode

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lumen-media/lumen/media"
)

// Decoder produces frames at a source's native cadence. Implementations are
// not safe for concurrent use; each playback session drives its decoder from
// a single goroutine.
type Decoder interface {
	// Info describes the open source.
	Info() media.SourceInfo
	// Decode returns the next frame in presentation order, or io.EOF at the
	// end of the stream. A non-EOF error fails only the requested frame;
	// calling Decode again attempts the next one.
	Decode() (*media.Frame, error)
	// Seek repositions the stream so the next Decode returns the frame at
	// the nearest keyframe at or before t, discarding any internal decoder
	// buffers.
	Seek(t time.Duration) error
	// Close releases the source.
	Close() error
}

var imageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".bmp": true,
	".tif": true, ".tiff": true, ".webp": true,
}

// Probe inspects path and reports which container kind it holds. Directories
// are image sequences; files are classified by extension, with HAP streams
// confirmed by their file magic.
func Probe(path string) (media.ContainerKind, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if fi.IsDir() {
		return media.ContainerSequence, nil
	}

	switch ext := strings.ToLower(filepath.Ext(path)); {
	case ext == ".haps":
		return media.ContainerHAP, nil
	case ext == ".gif":
		return media.ContainerAnimation, nil
	case imageExts[ext]:
		return media.ContainerImage, nil
	default:
		return media.ContainerVideo, nil
	}
}

// Open probes path and constructs the matching decoder variant. seqRate is
// the playback rate for image sequence directories; zero or negative selects
// DefaultSequenceRate. The log is used for per-frame skip warnings; nil
// falls back to slog.Default().
func Open(path string, seqRate float64, log *slog.Logger) (Decoder, error) {
	if log == nil {
		log = slog.Default()
	}

	kind, err := Probe(path)
	if err != nil {
		return nil, &media.OpenError{Path: path, Err: err}
	}

	var dec Decoder
	switch kind {
	case media.ContainerHAP:
		dec, err = OpenHAPStream(path)
	case media.ContainerImage:
		dec, err = OpenImage(path)
	case media.ContainerAnimation:
		dec, err = OpenAnimation(path)
	case media.ContainerSequence:
		dec, err = OpenSequence(path, seqRate, log)
	case media.ContainerVideo:
		dec, err = OpenContainer(path)
	default:
		err = fmt.Errorf("unsupported container kind %d", kind)
	}
	if err != nil {
		return nil, &media.OpenError{Path: path, Err: err}
	}

	info := dec.Info()
	log.Info("source opened",
		"path", path,
		"container", info.Container.String(),
		"size", fmt.Sprintf("%dx%d", info.Width, info.Height),
		"duration", info.Duration,
		"fps", info.FrameRate,
	)
	return dec, nil
}
