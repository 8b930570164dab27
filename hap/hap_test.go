package hap

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

// testBlocks returns deterministic pseudo-random block data of the plane
// size for the given variant and dimensions.
func testBlocks(t SectionType, width, height int, seed byte) []byte {
	data := make([]byte, PlaneSize(t, width, height))
	x := uint32(seed) + 1
	for i := range data {
		x = x*1664525 + 1013904223
		data[i] = byte(x >> 24)
	}
	return data
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	compressors := []Compressor{CompressorNone, CompressorSnappy, CompressorComplex}
	types := []SectionType{TypeRGB, TypeRGBA, TypeYCoCg}

	for _, typ := range types {
		for _, comp := range compressors {
			sec := &Section{Type: typ, Data: testBlocks(typ, 64, 48, byte(comp))}
			if typ == TypeYCoCg {
				sec.Chroma = testBlocks(typ, 64, 48, byte(comp)+1)
			}

			buf, err := Encode(sec, EncodeOptions{Compressor: comp})
			if err != nil {
				t.Fatalf("%s/%02X: encode: %v", typ, byte(comp), err)
			}

			got, err := Decode(buf, 64, 48)
			if err != nil {
				t.Fatalf("%s/%02X: decode: %v", typ, byte(comp), err)
			}
			if got.Type != typ {
				t.Errorf("%s/%02X: type = %s, want %s", typ, byte(comp), got.Type, typ)
			}
			if !bytes.Equal(got.Data, sec.Data) {
				t.Errorf("%s/%02X: data does not round-trip", typ, byte(comp))
			}
			if !bytes.Equal(got.Chroma, sec.Chroma) {
				t.Errorf("%s/%02X: chroma does not round-trip", typ, byte(comp))
			}
		}
	}
}

func TestRoundTripMultiChunk(t *testing.T) {
	t.Parallel()

	// 1 KiB chunks over a 256x256 BC3 plane forces many parallel chunks.
	sec := &Section{Type: TypeRGBA, Data: testBlocks(TypeRGBA, 256, 256, 7)}
	buf, err := Encode(sec, EncodeOptions{Compressor: CompressorComplex, ChunkSize: 1 << 10})
	if err != nil {
		t.Fatal(err)
	}

	got, err := Decode(buf, 256, 256)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got.Data, sec.Data) {
		t.Error("multi-chunk data does not round-trip")
	}
}

func TestHeaderLayout(t *testing.T) {
	t.Parallel()

	sec := &Section{Type: TypeRGB, Data: testBlocks(TypeRGB, 16, 8, 1)}
	buf, err := Encode(sec, EncodeOptions{Compressor: CompressorNone})
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(buf[0:4], Magic[:]) {
		t.Errorf("magic = % X, want % X", buf[0:4], Magic[:])
	}
	if size := binary.LittleEndian.Uint32(buf[4:8]); int(size) != len(buf)-HeaderSize {
		t.Errorf("payload size = %d, want %d", size, len(buf)-HeaderSize)
	}
	if buf[8] != byte(TypeRGB) {
		t.Errorf("type byte = 0x%02X, want 0x%02X", buf[8], byte(TypeRGB))
	}
	if buf[9] != byte(CompressorNone) {
		t.Errorf("compressor byte = 0x%02X, want 0x%02X", buf[9], byte(CompressorNone))
	}
}

func TestDecodeBadMagic(t *testing.T) {
	t.Parallel()

	sec := &Section{Type: TypeRGB, Data: testBlocks(TypeRGB, 16, 8, 1)}
	buf, err := Encode(sec, EncodeOptions{})
	if err != nil {
		t.Fatal(err)
	}
	buf[0] = 'X'

	_, err = Decode(buf, 16, 8)
	if !errors.Is(err, ErrBadMagic) {
		t.Errorf("err = %v, want ErrBadMagic", err)
	}
}

func TestDecodeTruncated(t *testing.T) {
	t.Parallel()

	sec := &Section{Type: TypeRGB, Data: testBlocks(TypeRGB, 16, 8, 1)}
	buf, err := Encode(sec, EncodeOptions{Compressor: CompressorNone})
	if err != nil {
		t.Fatal(err)
	}

	for _, n := range []int{0, 3, HeaderSize - 1, HeaderSize, len(buf) - 1} {
		if _, err := Decode(buf[:n], 16, 8); !errors.Is(err, ErrTruncated) {
			t.Errorf("Decode(%d bytes): err = %v, want ErrTruncated", n, err)
		}
	}
}

func TestDecodeUnknownTypeAndCompressor(t *testing.T) {
	t.Parallel()

	sec := &Section{Type: TypeRGB, Data: testBlocks(TypeRGB, 16, 8, 1)}
	buf, err := Encode(sec, EncodeOptions{Compressor: CompressorNone})
	if err != nil {
		t.Fatal(err)
	}

	bad := bytes.Clone(buf)
	bad[8] = 0x42
	if _, err := Decode(bad, 16, 8); !errors.Is(err, ErrUnknownType) {
		t.Errorf("type 0x42: err = %v, want ErrUnknownType", err)
	}

	bad = bytes.Clone(buf)
	bad[9] = 0x42
	if _, err := Decode(bad, 16, 8); !errors.Is(err, ErrUnknownCompressor) {
		t.Errorf("compressor 0x42: err = %v, want ErrUnknownCompressor", err)
	}
}

func TestDecodeSizeMismatch(t *testing.T) {
	t.Parallel()

	sec := &Section{Type: TypeRGB, Data: testBlocks(TypeRGB, 16, 8, 1)}
	buf, err := Encode(sec, EncodeOptions{})
	if err != nil {
		t.Fatal(err)
	}

	// Declared dimensions do not match the encoded plane.
	if _, err := Decode(buf, 64, 64); !errors.Is(err, ErrSizeMismatch) {
		t.Errorf("err = %v, want ErrSizeMismatch", err)
	}
}

func TestDecodeSnappyDeclaredLengthBounded(t *testing.T) {
	t.Parallel()

	// A forged stream declaring a multi-gigabyte decoded length must be
	// rejected before anything that size is allocated.
	payload := binary.AppendUvarint(nil, 1<<31)
	payload = append(payload, 0xFF, 0xFF, 0xFF, 0xFF)

	buf := make([]byte, HeaderSize, HeaderSize+len(payload))
	copy(buf[0:4], Magic[:])
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(payload)))
	buf[8] = byte(TypeRGB)
	buf[9] = byte(CompressorSnappy)
	buf = append(buf, payload...)

	if _, err := Decode(buf, 16, 8); !errors.Is(err, ErrSizeMismatch) {
		t.Errorf("err = %v, want ErrSizeMismatch", err)
	}
}

func TestDecodeBadChunkTable(t *testing.T) {
	t.Parallel()

	mk := func(payload []byte) []byte {
		buf := make([]byte, HeaderSize, HeaderSize+len(payload))
		copy(buf[0:4], Magic[:])
		binary.LittleEndian.PutUint32(buf[4:8], uint32(len(payload)))
		buf[8] = byte(TypeRGB)
		buf[9] = byte(CompressorComplex)
		return append(buf, payload...)
	}

	cases := []struct {
		name    string
		payload []byte
	}{
		{"empty", nil},
		{"zero chunks", []byte{0, 0, 0, 0}},
		{"huge count", []byte{0xFF, 0xFF, 0, 0}},
		{"table overrun", []byte{2, 0, 0, 0, 0xB0}},
		{"oversized decode", func() []byte {
			p := []byte{1, 0, 0, 0}
			rec := make([]byte, chunkEntrySize)
			rec[0] = byte(CompressorNone)
			binary.LittleEndian.PutUint32(rec[1:5], 8)
			binary.LittleEndian.PutUint32(rec[5:9], 1<<20)
			p = append(p, rec...)
			return append(p, make([]byte, 8)...)
		}()},
	}
	for _, tc := range cases {
		if _, err := Decode(mk(tc.payload), 16, 8); !errors.Is(err, ErrBadChunkTable) {
			t.Errorf("%s: err = %v, want ErrBadChunkTable", tc.name, err)
		}
	}
}

func TestPlaneSize(t *testing.T) {
	t.Parallel()

	// 1920x1080 -> 480x270 blocks.
	if got := PlaneSize(TypeRGB, 1920, 1080); got != 480*270*8 {
		t.Errorf("BC1 1920x1080 = %d, want %d", got, 480*270*8)
	}
	if got := PlaneSize(TypeRGBA, 1920, 1080); got != 480*270*16 {
		t.Errorf("BC3 1920x1080 = %d, want %d", got, 480*270*16)
	}
	// Non-multiple-of-4 dimensions round up to whole blocks.
	if got := PlaneSize(TypeRGB, 5, 5); got != 2*2*8 {
		t.Errorf("BC1 5x5 = %d, want %d", got, 2*2*8)
	}
}
