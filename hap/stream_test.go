package hap

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeStream(t *testing.T, info StreamInfo, frames int) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.haps")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()

	sw, err := NewStreamWriter(f, info)
	if err != nil {
		t.Fatalf("NewStreamWriter: %v", err)
	}
	interval := time.Second / 30
	for i := 0; i < frames; i++ {
		sec := &Section{Type: TypeRGBA, Data: testBlocks(TypeRGBA, info.Width, info.Height, byte(i))}
		if err := sw.WriteSection(time.Duration(i)*interval, sec, EncodeOptions{}); err != nil {
			t.Fatalf("WriteSection %d: %v", i, err)
		}
	}
	if err := sw.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	return path
}

func TestStreamRoundTrip(t *testing.T) {
	t.Parallel()

	info := StreamInfo{Width: 64, Height: 48, RateNum: 30, RateDen: 1}
	path := writeStream(t, info, 5)

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	sr, err := OpenStream(f)
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}

	got := sr.Info()
	if got.Width != 64 || got.Height != 48 || got.FrameCount != 5 {
		t.Errorf("info = %+v, want 64x48 with 5 frames", got)
	}
	if len(sr.Index()) != 5 {
		t.Fatalf("index length = %d, want 5", len(sr.Index()))
	}

	interval := time.Second / 30
	for i, fi := range sr.Index() {
		if want := time.Duration(i) * interval; fi.PTS != want {
			t.Errorf("frame %d PTS = %v, want %v", i, fi.PTS, want)
		}
	}
	if want := 5 * interval; sr.Duration() != want {
		t.Errorf("Duration = %v, want %v", sr.Duration(), want)
	}

	sec, err := sr.ReadSection(3)
	if err != nil {
		t.Fatalf("ReadSection: %v", err)
	}
	if sec.Type != TypeRGBA {
		t.Errorf("section type = 0x%02X, want 0x%02X", byte(sec.Type), byte(TypeRGBA))
	}
	if want := testBlocks(TypeRGBA, 64, 48, 3); !bytes.Equal(sec.Data, want) {
		t.Error("frame 3 payload does not round-trip")
	}

	if _, err := sr.ReadSection(5); err == nil {
		t.Error("ReadSection(5) succeeded, want out of range error")
	}
}

func TestStreamHeaderLayout(t *testing.T) {
	t.Parallel()

	info := StreamInfo{Width: 16, Height: 8, RateNum: 60, RateDen: 1}
	path := writeStream(t, info, 2)

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(raw) < StreamHeaderSize {
		t.Fatalf("file too short: %d bytes", len(raw))
	}

	if [4]byte(raw[0:4]) != StreamMagic {
		t.Errorf("magic = % X, want % X", raw[0:4], StreamMagic)
	}
	if v := binary.LittleEndian.Uint16(raw[4:6]); v != StreamVersion {
		t.Errorf("version = %d, want %d", v, StreamVersion)
	}
	if w := binary.LittleEndian.Uint32(raw[8:12]); w != 16 {
		t.Errorf("width = %d, want 16", w)
	}
	if n := binary.LittleEndian.Uint32(raw[24:28]); n != 2 {
		t.Errorf("frame count = %d, want 2", n)
	}
}

func TestOpenStreamRejectsBadHeader(t *testing.T) {
	t.Parallel()

	good := func() []byte {
		var hdr [StreamHeaderSize]byte
		copy(hdr[0:4], StreamMagic[:])
		binary.LittleEndian.PutUint16(hdr[4:6], StreamVersion)
		binary.LittleEndian.PutUint32(hdr[8:12], 16)
		binary.LittleEndian.PutUint32(hdr[12:16], 8)
		return hdr[:]
	}

	cases := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{"bad magic", func(b []byte) []byte { b[0] = 'X'; return b }},
		{"future version", func(b []byte) []byte {
			binary.LittleEndian.PutUint16(b[4:6], 99)
			return b
		}},
		{"zero width", func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[8:12], 0)
			return b
		}},
		{"truncated record", func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[24:28], 1)
			return b
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := OpenStream(bytes.NewReader(tc.mutate(good()))); err == nil {
				t.Error("OpenStream succeeded, want error")
			}
		})
	}
}
