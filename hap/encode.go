package hap

import (
	"encoding/binary"
	"fmt"

	"github.com/golang/snappy"
)

// EncodeOptions controls how Encode packages a section.
type EncodeOptions struct {
	// Compressor selects the second-stage compression. Defaults to
	// CompressorSnappy when zero.
	Compressor Compressor
	// ChunkSize is the decoded byte length of each chunk when Compressor is
	// CompressorComplex. Defaults to 64 KiB when zero.
	ChunkSize int
}

// Encode serializes a section into the bit-exact wire layout that Decode
// parses. HAP Q sections store the luma plane followed by the chroma plane.
func Encode(s *Section, opts EncodeOptions) ([]byte, error) {
	if !s.Type.valid() {
		return nil, fmt.Errorf("%w: 0x%02X", ErrUnknownType, byte(s.Type))
	}
	comp := opts.Compressor
	if comp == 0 {
		comp = CompressorSnappy
	}
	if !comp.valid() {
		return nil, fmt.Errorf("%w: 0x%02X", ErrUnknownCompressor, byte(comp))
	}
	if len(s.Data) == 0 {
		return nil, fmt.Errorf("hap: empty section data")
	}
	if s.Type == TypeYCoCg && len(s.Chroma) != len(s.Data) {
		return nil, fmt.Errorf("hap: hap-q planes differ: luma %d bytes, chroma %d",
			len(s.Data), len(s.Chroma))
	}
	if s.Type != TypeYCoCg && s.Chroma != nil {
		return nil, fmt.Errorf("hap: chroma plane on %s section", s.Type)
	}

	blocks := s.Data
	if s.Type == TypeYCoCg {
		blocks = make([]byte, 0, len(s.Data)+len(s.Chroma))
		blocks = append(blocks, s.Data...)
		blocks = append(blocks, s.Chroma...)
	}

	var payload []byte
	switch comp {
	case CompressorNone:
		payload = blocks
	case CompressorSnappy:
		payload = snappy.Encode(nil, blocks)
	case CompressorComplex:
		chunkSize := opts.ChunkSize
		if chunkSize <= 0 {
			chunkSize = 64 << 10
		}
		payload = encodeComplex(blocks, chunkSize)
	}

	out := make([]byte, HeaderSize, HeaderSize+len(payload))
	copy(out[0:4], Magic[:])
	binary.LittleEndian.PutUint32(out[4:8], uint32(len(payload)))
	out[8] = byte(s.Type)
	out[9] = byte(comp)
	return append(out, payload...), nil
}

// encodeComplex splits blocks into fixed-size chunks, Snappy-compresses each
// one, and prepends the chunk table Decode expects. A chunk that does not
// shrink under Snappy is stored uncompressed.
func encodeComplex(blocks []byte, chunkSize int) []byte {
	count := (len(blocks) + chunkSize - 1) / chunkSize
	if count == 0 {
		count = 1
	}

	table := make([]byte, 4, 4+count*chunkEntrySize)
	binary.LittleEndian.PutUint32(table[0:4], uint32(count))

	var data []byte
	for i := 0; i < count; i++ {
		start := i * chunkSize
		end := min(start+chunkSize, len(blocks))
		raw := blocks[start:end]

		comp := CompressorSnappy
		stored := snappy.Encode(nil, raw)
		if len(stored) >= len(raw) {
			comp = CompressorNone
			stored = raw
		}

		var rec [chunkEntrySize]byte
		rec[0] = byte(comp)
		binary.LittleEndian.PutUint32(rec[1:5], uint32(len(stored)))
		binary.LittleEndian.PutUint32(rec[5:9], uint32(len(raw)))
		binary.LittleEndian.PutUint32(rec[9:13], uint32(start))
		table = append(table, rec[:]...)
		data = append(data, stored...)
	}
	return append(table, data...)
}
