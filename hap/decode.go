package hap

import (
	"encoding/binary"
	"fmt"
	"runtime"

	"github.com/golang/snappy"
	"golang.org/x/sync/errgroup"
)

// chunkEntrySize is the byte length of one chunk-table record in a complex
// payload: compressor (1), compressed size (4), decoded size (4), decoded
// offset (4).
const chunkEntrySize = 13

// Decode parses one HAP section and returns GPU-ready block data. width and
// height are the picture dimensions from the container and are used to
// validate the decoded block payload.
func Decode(buf []byte, width, height int) (*Section, error) {
	if len(buf) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTruncated, len(buf))
	}
	if [4]byte(buf[0:4]) != Magic {
		return nil, fmt.Errorf("%w: % X", ErrBadMagic, buf[0:4])
	}

	size := int(binary.LittleEndian.Uint32(buf[4:8]))
	typ := SectionType(buf[8])
	comp := Compressor(buf[9])

	if !typ.valid() {
		return nil, fmt.Errorf("%w: 0x%02X", ErrUnknownType, buf[8])
	}
	if !comp.valid() {
		return nil, fmt.Errorf("%w: 0x%02X", ErrUnknownCompressor, buf[9])
	}
	if len(buf)-HeaderSize < size {
		return nil, fmt.Errorf("%w: header declares %d payload bytes, have %d",
			ErrTruncated, size, len(buf)-HeaderSize)
	}
	payload := buf[HeaderSize : HeaderSize+size]

	plane := PlaneSize(typ, width, height)
	want := plane
	if typ == TypeYCoCg {
		want = 2 * plane
	}

	var (
		blocks []byte
		err    error
	)
	switch comp {
	case CompressorNone:
		// Copy so the section owns its data independently of the caller's
		// read buffer.
		blocks = make([]byte, len(payload))
		copy(blocks, payload)
	case CompressorSnappy:
		// Validate the declared length before decoding so a forged header
		// cannot make us allocate gigabytes.
		declared, derr := snappy.DecodedLen(payload)
		if derr != nil {
			return nil, fmt.Errorf("hap: snappy payload: %w", derr)
		}
		if declared != want {
			return nil, fmt.Errorf("%w: snappy declares %d bytes, want %d for %dx%d %s",
				ErrSizeMismatch, declared, want, width, height, typ)
		}
		blocks, err = snappy.Decode(make([]byte, want), payload)
		if err != nil {
			return nil, fmt.Errorf("hap: snappy payload: %w", err)
		}
	case CompressorComplex:
		blocks, err = decodeComplex(payload, want)
		if err != nil {
			return nil, err
		}
	}
	if len(blocks) != want {
		return nil, fmt.Errorf("%w: got %d bytes, want %d for %dx%d %s",
			ErrSizeMismatch, len(blocks), want, width, height, typ)
	}

	s := &Section{Type: typ, Data: blocks}
	if typ == TypeYCoCg {
		s.Data = blocks[:plane]
		s.Chroma = blocks[plane:]
	}
	return s, nil
}

// decodeComplex reassembles a multi-chunk payload. Each chunk is
// independently compressed, so chunks decompress in parallel and land at
// their declared offsets in the output buffer. max caps the total declared
// output, keeping forged chunk tables from driving huge allocations.
func decodeComplex(payload []byte, max int) ([]byte, error) {
	if len(payload) < 4 {
		return nil, fmt.Errorf("%w: %d bytes", ErrBadChunkTable, len(payload))
	}
	count := int(binary.LittleEndian.Uint32(payload[0:4]))
	if count == 0 || count > 64 {
		return nil, fmt.Errorf("%w: %d chunks", ErrBadChunkTable, count)
	}
	tableEnd := 4 + count*chunkEntrySize
	if len(payload) < tableEnd {
		return nil, fmt.Errorf("%w: table needs %d bytes, have %d",
			ErrBadChunkTable, tableEnd, len(payload))
	}

	type chunk struct {
		comp    Compressor
		data    []byte
		decoded int
		offset  int
	}

	chunks := make([]chunk, count)
	total := 0
	dataOff := tableEnd
	for i := range chunks {
		rec := payload[4+i*chunkEntrySize:]
		c := chunk{
			comp:    Compressor(rec[0]),
			decoded: int(binary.LittleEndian.Uint32(rec[5:9])),
			offset:  int(binary.LittleEndian.Uint32(rec[9:13])),
		}
		compressed := int(binary.LittleEndian.Uint32(rec[1:5]))
		if c.decoded <= 0 {
			return nil, fmt.Errorf("%w: chunk %d declares %d decoded bytes",
				ErrBadChunkTable, i, c.decoded)
		}
		if c.comp != CompressorNone && c.comp != CompressorSnappy {
			return nil, fmt.Errorf("%w: chunk %d compressor 0x%02X",
				ErrBadChunkTable, i, rec[0])
		}
		if dataOff+compressed > len(payload) {
			return nil, fmt.Errorf("%w: chunk %d overruns payload",
				ErrBadChunkTable, i)
		}
		c.data = payload[dataOff : dataOff+compressed]
		dataOff += compressed

		// Chunks must tile the output contiguously; overlapping regions
		// would race during the parallel decompress below.
		if c.offset != total {
			return nil, fmt.Errorf("%w: chunk %d offset %d, want %d",
				ErrBadChunkTable, i, c.offset, total)
		}
		total = c.offset + c.decoded
		if total > max {
			return nil, fmt.Errorf("%w: chunks declare %d bytes, at most %d expected",
				ErrBadChunkTable, total, max)
		}
		chunks[i] = c
	}

	out := make([]byte, total)
	g := new(errgroup.Group)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range chunks {
		c := chunks[i]
		g.Go(func() error {
			dst := out[c.offset : c.offset+c.decoded]
			if c.comp == CompressorNone {
				if len(c.data) != c.decoded {
					return fmt.Errorf("%w: stored chunk size %d, declared %d",
						ErrBadChunkTable, len(c.data), c.decoded)
				}
				copy(dst, c.data)
				return nil
			}
			decoded, err := snappy.Decode(dst, c.data)
			if err != nil {
				return fmt.Errorf("hap: snappy chunk at offset %d: %w", c.offset, err)
			}
			if len(decoded) != c.decoded {
				return fmt.Errorf("%w: chunk decoded to %d bytes, declared %d",
					ErrBadChunkTable, len(decoded), c.decoded)
			}
			// snappy.Decode allocates when dst is too small; make sure the
			// bytes end up in the shared output either way.
			if &decoded[0] != &dst[0] {
				copy(dst, decoded)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
