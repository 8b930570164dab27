package decode

import (
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/lumen-media/lumen/hap"
	"github.com/lumen-media/lumen/media"
)

// hapStreamDecoder plays HAP stream files. Sections come off disk already in
// GPU block layout, so decode is parse plus optional Snappy inflate and every
// frame is independently seekable.
type hapStreamDecoder struct {
	f    *os.File
	sr   *hap.StreamReader
	info media.SourceInfo
	next int
}

// OpenHAPStream opens a HAP stream file and indexes its frames.
func OpenHAPStream(path string) (Decoder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	sr, err := hap.OpenStream(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	si := sr.Info()
	return &hapStreamDecoder{
		f:  f,
		sr: sr,
		info: media.SourceInfo{
			Path:      path,
			Container: media.ContainerHAP,
			Width:     si.Width,
			Height:    si.Height,
			Duration:  sr.Duration(),
			FrameRate: si.FrameRate(),
		},
	}, nil
}

func (d *hapStreamDecoder) Info() media.SourceInfo { return d.info }

func (d *hapStreamDecoder) Decode() (*media.Frame, error) {
	index := d.sr.Index()
	if d.next >= len(index) {
		return nil, io.EOF
	}
	i := d.next
	d.next++ // a corrupt section fails this frame, not every later one

	sec, err := d.sr.ReadSection(i)
	if err != nil {
		return nil, &media.DecodeError{PTS: index[i].PTS, Err: err}
	}

	frame := &media.Frame{
		PTS:      index[i].PTS,
		Width:    d.info.Width,
		Height:   d.info.Height,
		Payload:  sec.Data,
		Keyframe: true,
	}
	switch sec.Type {
	case hap.TypeRGB:
		frame.Layout = media.LayoutBC1
	case hap.TypeRGBA:
		frame.Layout = media.LayoutBC3
	case hap.TypeYCoCg:
		frame.Layout = media.LayoutBC3Pair
		frame.Alpha = sec.Chroma
	default:
		return nil, &media.DecodeError{PTS: index[i].PTS, Err: fmt.Errorf("section type %s", sec.Type)}
	}
	return frame, nil
}

func (d *hapStreamDecoder) Seek(t time.Duration) error {
	index := d.sr.Index()
	d.next = sort.Search(len(index), func(i int) bool { return index[i].PTS >= t })
	return nil
}

func (d *hapStreamDecoder) Close() error { return d.f.Close() }
