// Package media defines the core frame and source types that flow through
// the Lumen decode-and-present pipeline, from the per-source decoders through
// GPU upload.
package media

import "time"

// FrameQueueDepth is the default capacity of a session's frame queue. Sized
// to absorb decode jitter without adding presentation latency: at 30 fps four
// frames is ~130 ms of headroom.
const FrameQueueDepth = 4

// PixelLayout describes how a Frame's payload bytes are organized.
type PixelLayout uint8

const (
	// LayoutRGBA8 is packed 8-bit RGBA, 4 bytes per pixel.
	LayoutRGBA8 PixelLayout = iota
	// LayoutYUV420 is planar 4:2:0 YUV: a full-resolution luma plane
	// followed by two half-resolution chroma planes.
	LayoutYUV420
	// LayoutBC1 is block-compressed BC1/DXT1 data, 8 bytes per 4x4 block.
	// Produced by HAP sources; uploaded without CPU conversion.
	LayoutBC1
	// LayoutBC3 is block-compressed BC3/DXT5 data, 16 bytes per 4x4 block.
	// Produced by HAP Alpha sources.
	LayoutBC3
	// LayoutBC3Pair is two BC3 planes: scaled-luma in Payload and chroma in
	// Alpha. Produced by HAP Q sources; the luma/chroma-to-RGB conversion
	// happens in the compositor's sampling shader, not during upload.
	LayoutBC3Pair
)

// String returns the layout name used in logs.
func (l PixelLayout) String() string {
	switch l {
	case LayoutRGBA8:
		return "rgba8"
	case LayoutYUV420:
		return "yuv420"
	case LayoutBC1:
		return "bc1"
	case LayoutBC3:
		return "bc3"
	case LayoutBC3Pair:
		return "bc3-pair"
	default:
		return "unknown"
	}
}

// Compressed reports whether the layout is GPU block-compressed data that
// skips CPU color conversion on upload.
func (l PixelLayout) Compressed() bool {
	return l == LayoutBC1 || l == LayoutBC3 || l == LayoutBC3Pair
}

// Frame is a single decoded picture ready for GPU upload. A Frame is owned
// exclusively by whichever stage currently holds it; ownership transfers
// (never shared) as it moves queue -> upload -> texture.
type Frame struct {
	// PTS is the presentation timestamp relative to the source's own clock.
	PTS time.Duration
	// Width and Height are the picture dimensions in pixels.
	Width  int
	Height int
	// Layout describes the payload byte organization.
	Layout PixelLayout
	// Payload holds the pixel or block-compressed data.
	Payload []byte
	// Alpha holds the secondary plane for LayoutBC3Pair sources (HAP Q
	// chroma) and is nil for all other layouts.
	Alpha []byte
	// Keyframe marks frames that can be decoded without reference to
	// earlier frames.
	Keyframe bool
}

// ContainerKind identifies how a source's bytes are packaged, selected once
// when the source is opened.
type ContainerKind uint8

const (
	// ContainerVideo is a general multimedia container (MP4/MOV/WebM/...)
	// decoded through FFmpeg.
	ContainerVideo ContainerKind = iota
	// ContainerHAP is a HAP section stream carrying block-compressed frames.
	ContainerHAP
	// ContainerImage is a single still image.
	ContainerImage
	// ContainerAnimation is an animated image with a per-frame delay table.
	ContainerAnimation
	// ContainerSequence is a directory of numbered image files.
	ContainerSequence
)

// String returns the container name used in logs.
func (k ContainerKind) String() string {
	switch k {
	case ContainerVideo:
		return "video"
	case ContainerHAP:
		return "hap"
	case ContainerImage:
		return "image"
	case ContainerAnimation:
		return "animation"
	case ContainerSequence:
		return "sequence"
	default:
		return "unknown"
	}
}

// SourceInfo describes an open media source. It is created when the source
// is opened and immutable afterwards.
type SourceInfo struct {
	// Path is the file or directory the source was opened from.
	Path string
	// Container is the detected container kind.
	Container ContainerKind
	// Width and Height are the native resolution in pixels.
	Width  int
	Height int
	// Duration is the total length of the source. Zero means unbounded
	// (still images and live inputs).
	Duration time.Duration
	// FrameRate is the nominal frames per second. Zero when Delays is set.
	FrameRate float64
	// Delays holds per-frame display durations for variable-delay
	// animations. Nil for fixed-cadence sources.
	Delays []time.Duration
}

// FrameInterval returns the nominal time between frames, or zero when the
// source has no fixed cadence.
func (s SourceInfo) FrameInterval() time.Duration {
	if s.FrameRate <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / s.FrameRate)
}

// Bounded reports whether the source has a finite duration.
func (s SourceInfo) Bounded() bool {
	return s.Duration > 0
}
