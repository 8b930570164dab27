package hap

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

// StreamMagic opens every HAP stream file: a flat sequence of HAP sections
// with per-frame timestamps, the storage Lumen uses for HAP media.
//
//	offset 0  size 4  file magic "HAPS"
//	offset 4  size 2  version, little-endian (currently 1)
//	offset 6  size 2  reserved
//	offset 8  size 4  width, little-endian
//	offset 12 size 4  height, little-endian
//	offset 16 size 4  frame rate numerator, little-endian
//	offset 20 size 4  frame rate denominator, little-endian
//	offset 24 size 4  frame count, little-endian
//
// followed by frame records: u64 PTS in microseconds, u32 section length,
// then the section bytes (see the package comment for the section layout).
var StreamMagic = [4]byte{'H', 'A', 'P', 'S'}

const (
	// StreamVersion is the stream layout version this package writes.
	StreamVersion = 1
	// StreamHeaderSize is the byte length of the file header.
	StreamHeaderSize = 28
	// FrameRecordSize is the byte length of a frame record header.
	FrameRecordSize = 12
)

// StreamInfo is the fixed metadata of a HAP stream file.
type StreamInfo struct {
	Width      int
	Height     int
	RateNum    int
	RateDen    int
	FrameCount int
}

// FrameRate returns the stream's frames per second, defaulting to 30 when
// the stored rational is unusable.
func (si StreamInfo) FrameRate() float64 {
	if si.RateNum <= 0 || si.RateDen <= 0 {
		return 30
	}
	return float64(si.RateNum) / float64(si.RateDen)
}

// FrameIndex locates one frame record within a stream.
type FrameIndex struct {
	// PTS is the frame's presentation timestamp.
	PTS time.Duration
	// Offset is the file position of the section bytes, past the record
	// header.
	Offset int64
	// Length is the section byte count.
	Length int
}

// StreamReader provides random access to the frames of a HAP stream file.
type StreamReader struct {
	r     io.ReaderAt
	info  StreamInfo
	index []FrameIndex
}

// OpenStream reads a stream's header and builds its frame index by scanning
// record headers.
func OpenStream(r io.ReaderAt) (*StreamReader, error) {
	var hdr [StreamHeaderSize]byte
	if _, err := r.ReadAt(hdr[:], 0); err != nil {
		return nil, fmt.Errorf("hap: stream header: %w", err)
	}
	if [4]byte(hdr[0:4]) != StreamMagic {
		return nil, fmt.Errorf("hap: bad stream magic % X", hdr[0:4])
	}
	if v := binary.LittleEndian.Uint16(hdr[4:6]); v != StreamVersion {
		return nil, fmt.Errorf("hap: unsupported stream version %d", v)
	}

	info := StreamInfo{
		Width:      int(binary.LittleEndian.Uint32(hdr[8:12])),
		Height:     int(binary.LittleEndian.Uint32(hdr[12:16])),
		RateNum:    int(binary.LittleEndian.Uint32(hdr[16:20])),
		RateDen:    int(binary.LittleEndian.Uint32(hdr[20:24])),
		FrameCount: int(binary.LittleEndian.Uint32(hdr[24:28])),
	}
	if info.Width <= 0 || info.Height <= 0 {
		return nil, fmt.Errorf("hap: invalid stream dimensions %dx%d", info.Width, info.Height)
	}

	index := make([]FrameIndex, 0, info.FrameCount)
	offset := int64(StreamHeaderSize)
	var rec [FrameRecordSize]byte
	for i := 0; i < info.FrameCount; i++ {
		if _, err := r.ReadAt(rec[:], offset); err != nil {
			return nil, fmt.Errorf("hap: frame %d record: %w", i, err)
		}
		length := int(binary.LittleEndian.Uint32(rec[8:12]))
		index = append(index, FrameIndex{
			PTS:    time.Duration(binary.LittleEndian.Uint64(rec[0:8])) * time.Microsecond,
			Offset: offset + FrameRecordSize,
			Length: length,
		})
		offset += FrameRecordSize + int64(length)
	}

	return &StreamReader{r: r, info: info, index: index}, nil
}

// Info returns the stream's fixed metadata.
func (sr *StreamReader) Info() StreamInfo { return sr.info }

// Index returns the frame index in presentation order.
func (sr *StreamReader) Index() []FrameIndex { return sr.index }

// Duration returns the stream length: the last frame's PTS plus one nominal
// frame interval.
func (sr *StreamReader) Duration() time.Duration {
	if len(sr.index) == 0 {
		return 0
	}
	interval := time.Duration(float64(time.Second) / sr.info.FrameRate())
	return sr.index[len(sr.index)-1].PTS + interval
}

// ReadSection reads and decodes the section of frame i.
func (sr *StreamReader) ReadSection(i int) (*Section, error) {
	if i < 0 || i >= len(sr.index) {
		return nil, fmt.Errorf("hap: frame %d out of range (%d frames)", i, len(sr.index))
	}
	rec := sr.index[i]
	buf := make([]byte, rec.Length)
	if _, err := sr.r.ReadAt(buf, rec.Offset); err != nil {
		return nil, fmt.Errorf("hap: read section at %s: %w", rec.PTS, err)
	}
	return Decode(buf, sr.info.Width, sr.info.Height)
}

// StreamWriter writes a HAP stream file front to back. Frames must be
// appended in ascending PTS order; Finish rewrites the header with the final
// frame count.
type StreamWriter struct {
	w      io.WriteSeeker
	info   StreamInfo
	frames int
}

// NewStreamWriter writes the stream header and returns a writer positioned
// for the first frame.
func NewStreamWriter(w io.WriteSeeker, info StreamInfo) (*StreamWriter, error) {
	sw := &StreamWriter{w: w, info: info}
	if err := sw.writeHeader(); err != nil {
		return nil, err
	}
	return sw, nil
}

func (sw *StreamWriter) writeHeader() error {
	var hdr [StreamHeaderSize]byte
	copy(hdr[0:4], StreamMagic[:])
	binary.LittleEndian.PutUint16(hdr[4:6], StreamVersion)
	binary.LittleEndian.PutUint32(hdr[8:12], uint32(sw.info.Width))
	binary.LittleEndian.PutUint32(hdr[12:16], uint32(sw.info.Height))
	binary.LittleEndian.PutUint32(hdr[16:20], uint32(sw.info.RateNum))
	binary.LittleEndian.PutUint32(hdr[20:24], uint32(sw.info.RateDen))
	binary.LittleEndian.PutUint32(hdr[24:28], uint32(sw.frames))
	_, err := sw.w.Write(hdr[:])
	return err
}

// WriteSection encodes sec and appends it as a frame record at pts.
func (sw *StreamWriter) WriteSection(pts time.Duration, sec *Section, opts EncodeOptions) error {
	buf, err := Encode(sec, opts)
	if err != nil {
		return err
	}

	var rec [FrameRecordSize]byte
	binary.LittleEndian.PutUint64(rec[0:8], uint64(pts/time.Microsecond))
	binary.LittleEndian.PutUint32(rec[8:12], uint32(len(buf)))
	if _, err := sw.w.Write(rec[:]); err != nil {
		return err
	}
	if _, err := sw.w.Write(buf); err != nil {
		return err
	}
	sw.frames++
	return nil
}

// Finish seeks back to the header and records the final frame count.
func (sw *StreamWriter) Finish() error {
	if _, err := sw.w.Seek(0, io.SeekStart); err != nil {
		return err
	}
	return sw.writeHeader()
}
