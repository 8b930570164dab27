//go:build cgo

package decode

import (
	"fmt"
	"image"
	"io"
	"time"

	"github.com/zergon321/reisen"

	"github.com/lumen-media/lumen/media"
)

// containerDecoder wraps the FFmpeg-backed reisen demuxer/decoder for
// general multimedia containers (H.264/H.265/VP8/VP9/ProRes in MP4, MOV,
// WebM, and friends). Frames are converted to packed RGBA by the library.
type containerDecoder struct {
	source    *reisen.Media
	stream    *reisen.VideoStream
	streamIdx int
	info      media.SourceInfo
	keyNext   bool
}

// OpenContainer opens a multimedia container and prepares its first video
// stream for decoding.
func OpenContainer(path string) (Decoder, error) {
	source, err := reisen.NewMedia(path)
	if err != nil {
		return nil, fmt.Errorf("probe container: %w", err)
	}

	streams := source.VideoStreams()
	if len(streams) == 0 {
		source.Close()
		return nil, fmt.Errorf("no video stream")
	}
	stream := streams[0]

	if err := source.OpenDecode(); err != nil {
		source.Close()
		return nil, fmt.Errorf("open decode: %w", err)
	}
	if err := stream.Open(); err != nil {
		source.CloseDecode()
		source.Close()
		return nil, fmt.Errorf("open video stream: %w", err)
	}

	duration, err := stream.Duration()
	if err != nil {
		duration = 0 // live or header without duration
	}

	fps := 30.0
	if num, den := stream.FrameRate(); den > 0 && num > 0 {
		fps = float64(num) / float64(den)
	}

	d := &containerDecoder{
		source:    source,
		stream:    stream,
		streamIdx: stream.Index(),
		keyNext:   true,
		info: media.SourceInfo{
			Path:      path,
			Container: media.ContainerVideo,
			Width:     int(stream.Width()),
			Height:    int(stream.Height()),
			Duration:  duration,
			FrameRate: fps,
		},
	}
	return d, nil
}

func (d *containerDecoder) Info() media.SourceInfo { return d.info }

// Decode reads packets until the video stream yields a complete picture.
// Returns io.EOF when the container is exhausted.
func (d *containerDecoder) Decode() (*media.Frame, error) {
	for {
		packet, got, err := d.source.ReadPacket()
		if err != nil {
			return nil, fmt.Errorf("read packet: %w", err)
		}
		if !got {
			return nil, io.EOF
		}
		if packet.Type() != reisen.StreamVideo || packet.StreamIndex() != d.streamIdx {
			continue
		}

		frame, got, err := d.stream.ReadVideoFrame()
		if err != nil {
			return nil, fmt.Errorf("decode picture: %w", err)
		}
		if !got {
			return nil, io.EOF
		}
		if frame == nil {
			// Decoder is still buffering reference frames.
			continue
		}

		pts, err := frame.PresentationOffset()
		if err != nil {
			return nil, fmt.Errorf("frame timestamp: %w", err)
		}

		out := &media.Frame{
			PTS:      pts,
			Width:    d.info.Width,
			Height:   d.info.Height,
			Layout:   media.LayoutRGBA8,
			Payload:  tightRGBA(frame.Image(), d.info.Width, d.info.Height),
			Keyframe: d.keyNext,
		}
		d.keyNext = false
		return out, nil
	}
}

// Seek rewinds the stream to the nearest keyframe at or before t and drops
// buffered pictures. The next decoded frame is marked as a keyframe.
func (d *containerDecoder) Seek(t time.Duration) error {
	if t < 0 {
		t = 0
	}
	if err := d.stream.Rewind(t); err != nil {
		return fmt.Errorf("rewind to %s: %w", t, err)
	}
	d.keyNext = true
	return nil
}

func (d *containerDecoder) Close() error {
	d.stream.Close()
	d.source.CloseDecode()
	d.source.Close()
	return nil
}
